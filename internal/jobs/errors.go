package jobs

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingToken is returned when no API token is configured.
var ErrMissingToken = errors.New("job service token is not configured (set APIFY_TOKEN or jobs.token)")

// TransportError is a failure talking to the job service: either the request
// never got a response, or the response was not a 2xx.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transient reports whether a retry could plausibly succeed.
func (e *TransportError) Transient() bool {
	if e.Err != nil {
		// No response at all; a body that failed to read or decode is final.
		return e.StatusCode == 0
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
