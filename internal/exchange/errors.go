package exchange

import (
	"errors"
	"fmt"
)

// ErrElementNotFound marks a page element that was absent when looked up.
var ErrElementNotFound = errors.New("element not found")

// InteractionError is an expected page element that could not be found or used
// within its timeout.
type InteractionError struct {
	Step     string
	Selector string
	Err      error
}

func (e *InteractionError) Error() string {
	if e.Selector == "" {
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Step, e.Selector, e.Err)
}

func (e *InteractionError) Unwrap() error { return e.Err }
