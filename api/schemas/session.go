package schemas

import "time"

// SessionStatus tracks a front-end session.
type SessionStatus string

const (
	SessionCreated         SessionStatus = "created"
	SessionSetupInProgress SessionStatus = "setup_in_progress"
	SessionSwapInProgress  SessionStatus = "swap_in_progress"
	SessionRunning         SessionStatus = "running"
	SessionCompleted       SessionStatus = "completed"
	SessionFailed          SessionStatus = "failed"
)

// Terminal reports whether the session has reached a final status.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// Session links a request to its remote job and final outcome.
type Session struct {
	ID          string          `json:"session_id"`
	Request     ExchangeRequest `json:"request"`
	JobID       string          `json:"run_id,omitempty"`
	Status      SessionStatus   `json:"status"`
	ExchangeID  string          `json:"exchange_id,omitempty"`
	ExchangeURL string          `json:"exchange_url,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Defaults are the front-end fallbacks for request fields.
type Defaults struct {
	WalletAddress string  `json:"default_wallet,omitempty" yaml:"default_wallet,omitempty"`
	Amount        float64 `json:"default_amount" yaml:"default_amount"`
	FromCurrency  string  `json:"default_from_currency" yaml:"default_from_currency"`
	ToCurrency    string  `json:"default_to_currency" yaml:"default_to_currency"`
}

// Apply fills the empty fields of req from the defaults.
func (d Defaults) Apply(req ExchangeRequest) ExchangeRequest {
	if req.WalletAddress == "" {
		req.WalletAddress = d.WalletAddress
	}
	if req.Amount == 0 {
		req.Amount = d.Amount
	}
	if req.FromCurrency == "" {
		req.FromCurrency = d.FromCurrency
	}
	if req.ToCurrency == "" {
		req.ToCurrency = d.ToCurrency
	}
	return req.WithDefaults()
}
