package exchange

// State is a node of the interaction flow.
type State int

const (
	StateInit State = iota
	StateLoaded
	StateAddressEntered
	StateValidated
	StateSubmitting
	StateSucceeded
	StateFailed
	StateErrored
)

var stateNames = map[State]string{
	StateInit:           "init",
	StateLoaded:         "loaded",
	StateAddressEntered: "address_entered",
	StateValidated:      "validated",
	StateSubmitting:     "submitting",
	StateSucceeded:      "succeeded",
	StateFailed:         "failed",
	StateErrored:        "errored",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the flow stops in this state.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateErrored
}
