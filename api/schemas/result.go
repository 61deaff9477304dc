package schemas

import "time"

// ResultStatus distinguishes business non-success (failed) from exceptional
// conditions (error).
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
	ResultError   ResultStatus = "error"
)

// Diagnostics are optional side-channel artifacts captured on non-success outcomes.
type Diagnostics struct {
	ScreenshotPath string `json:"screenshot_path,omitempty"`
	HTMLPath       string `json:"html_path,omitempty"`
}

// AutomationResult is the sole output artifact of a run.
type AutomationResult struct {
	Status        ResultStatus `json:"status"`
	WalletAddress string       `json:"wallet_address"`
	Amount        float64      `json:"amount"`
	FromCurrency  string       `json:"from_currency"`
	ToCurrency    string       `json:"to_currency"`
	Mode          Mode         `json:"mode"`
	ExchangeID    string       `json:"exchange_id,omitempty"`
	ExchangeURL   string       `json:"exchange_url,omitempty"`
	Error         string       `json:"error,omitempty"`
	CurrentURL    string       `json:"current_url,omitempty"`
	FinalState    string       `json:"final_state,omitempty"`
	Diagnostics   *Diagnostics `json:"diagnostics,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// NewResult echoes the request fields into a result with the given status.
func NewResult(req ExchangeRequest, status ResultStatus) AutomationResult {
	return AutomationResult{
		Status:        status,
		WalletAddress: req.WalletAddress,
		Amount:        req.Amount,
		FromCurrency:  req.FromCurrency,
		ToCurrency:    req.ToCurrency,
		Mode:          req.Mode(),
		CreatedAt:     time.Now().UTC(),
	}
}

// Succeeded builds a success result carrying the exchange identifier.
func Succeeded(req ExchangeRequest, exchangeID, exchangeURL string) AutomationResult {
	res := NewResult(req, ResultSuccess)
	res.ExchangeID = exchangeID
	res.ExchangeURL = exchangeURL
	return res
}

// Failed builds a business non-success result.
func Failed(req ExchangeRequest, reason string) AutomationResult {
	res := NewResult(req, ResultFailed)
	res.Error = reason
	return res
}

// Errored builds a result for an exceptional condition.
func Errored(req ExchangeRequest, err error) AutomationResult {
	res := NewResult(req, ResultError)
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Error = "unknown error"
	}
	return res
}
