// File: cmd/interactive.go
package cmd

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/manifoldco/promptui"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/workflow"
)

const (
	menuExchange = "Create an exchange"
	menuSetup    = "Set up a wallet"
	menuStatus   = "Check a run"
	menuProfiles = "List profiles"
	menuDefaults = "Show defaults"
	menuQuit     = "Quit"
)

var menuItems = []string{menuExchange, menuSetup, menuStatus, menuProfiles, menuDefaults, menuQuit}

func newInteractiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "interactive",
		Aliases: []string{"menu"},
		Short:   "Guided menu for setup, exchanges and status checks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components()
			if err != nil {
				return err
			}
			svc := comps.Service
			out := cmd.OutOrStdout()
			runner := workflow.NewRunner(workflow.NewServiceBackend(svc), svc, workflow.TerminalPrompter{}, out, a.logger)

			for {
				sel := promptui.Select{Label: "What would you like to do", Items: menuItems, Size: len(menuItems)}
				_, choice, err := sel.Run()
				if err != nil {
					if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
						return nil
					}
					return err
				}

				d := svc.Defaults()
				base := workflow.Config{
					Wallet:       d.WalletAddress,
					Amount:       d.Amount,
					FromCurrency: d.FromCurrency,
					ToCurrency:   d.ToCurrency,
					Via:          workflow.ViaMCP,
					Interactive:  true,
					Monitor:      true,
				}
				switch choice {
				case menuExchange:
					printOutcome(out, runner.Run(cmd.Context(), base))
				case menuSetup:
					base.SetupRequired = true
					printOutcome(out, runner.Run(cmd.Context(), base))
				case menuStatus:
					p := promptui.Prompt{Label: "Run ID"}
					runID, err := p.Run()
					if err != nil {
						continue
					}
					report, err := svc.CheckStatus(cmd.Context(), strings.TrimSpace(runID), "")
					if err != nil {
						fmt.Fprintf(out, "%s %v\n", errorMark("x"), err)
						continue
					}
					fmt.Fprintf(out, "Run %s: %s\n", report.RunID, report.Status)
				case menuProfiles:
					for _, p := range svc.Profiles() {
						fmt.Fprintf(out, "  %-16s %s\n", p.Name, schemas.MaskWallet(p.WalletAddress))
					}
				case menuDefaults:
					fmt.Fprintf(out, "  $%g %s -> %s\n", d.Amount, d.FromCurrency, d.ToCurrency)
					if d.WalletAddress != "" {
						fmt.Fprintf(out, "  wallet %s\n", schemas.MaskWallet(d.WalletAddress))
					}
				case menuQuit:
					return nil
				}
			}
		},
	}
}

func printOutcome(w io.Writer, o workflow.Outcome) {
	if o.Success {
		fmt.Fprintf(w, "%s %s", successMark("v"), o.Message)
	} else {
		fmt.Fprintf(w, "%s %s", errorMark("x"), o.Error)
	}
	if o.RunID != "" {
		fmt.Fprintf(w, " (run %s)", o.RunID)
	}
	fmt.Fprintln(w)
}

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Read swapflow commands line by line, with history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			historyFile := ""
			if home, err := homedir.Dir(); err == nil {
				historyFile = filepath.Join(home, ".swapflow", "shell_history")
			}
			rl, err := readline.NewEx(&readline.Config{
				Prompt:            "swapflow > ",
				HistoryFile:       historyFile,
				InterruptPrompt:   "^C",
				EOFPrompt:         "exit",
				HistorySearchFold: true,
				Stdin:             readline.NewCancelableStdin(cmd.InOrStdin()),
				Stdout:            cmd.OutOrStdout(),
				Stderr:            cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("failed to initialize readline: %w", err)
			}
			defer rl.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "Type a command (e.g. 'profiles list'), 'help', or 'exit'.")
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						return nil
					}
					continue
				}
				if err != nil {
					return nil
				}
				line = strings.TrimSpace(line)
				switch line {
				case "":
					continue
				case "exit", "quit":
					return nil
				}
				a.runLine(cmd, strings.Fields(line))
			}
		},
	}
}

// runLine executes one shell line on a fresh command tree so that flag values
// never leak between lines. Panics are contained to the line.
func (a *app) runLine(parent *cobra.Command, args []string) {
	if args[0] == "shell" {
		fmt.Fprintln(parent.ErrOrStderr(), "Already in the shell.")
		return
	}
	if a.cfgFile != "" {
		args = append(args, "--config", a.cfgFile)
	}
	child := newRootCommand(&app{newComponents: a.newComponents})
	child.SetArgs(args)
	child.SetIn(parent.InOrStdin())
	child.SetOut(parent.OutOrStdout())
	child.SetErr(parent.ErrOrStderr())

	defer func() {
		if r := recover(); r != nil {
			if a.logger != nil {
				a.logger.Error("Shell command panicked", zap.Any("panic", r), zap.Strings("args", args))
			}
			fmt.Fprintf(parent.ErrOrStderr(), "Error: command panicked: %v\n", r)
		}
	}()
	if err := child.ExecuteContext(parent.Context()); err != nil {
		fmt.Fprintf(parent.ErrOrStderr(), "%s %v\n", errorMark("Error:"), err)
	}
}
