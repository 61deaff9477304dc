package workflow

import (
	"errors"

	"github.com/manifoldco/promptui"
)

// Prompter asks the operator for input.
type Prompter interface {
	Prompt(label, def string, validate func(string) error) (string, error)
	Confirm(label string) (bool, error)
}

// TerminalPrompter prompts on the controlling terminal.
type TerminalPrompter struct{}

func (TerminalPrompter) Prompt(label, def string, validate func(string) error) (string, error) {
	p := promptui.Prompt{Label: label, Default: def, Validate: validate}
	return p.Run()
}

// Confirm returns false, not an error, when the operator answers no.
func (TerminalPrompter) Confirm(label string) (bool, error) {
	p := promptui.Prompt{Label: label, IsConfirm: true}
	if _, err := p.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
