package schemas

import (
	"fmt"
	"strings"
)

// -- Exchange Request Schemas --

// Mode selects which interaction sub-path a run takes.
type Mode string

const (
	// ModeSetup registers a wallet address with the exchange page.
	ModeSetup Mode = "setup"
	// ModeAutomation submits an exchange using a previously registered address.
	ModeAutomation Mode = "automation"
)

// Defaults applied by front-ends when a request field is left empty.
const (
	DefaultAmount       = 25.0
	DefaultFromCurrency = "usd-usd"
	DefaultToCurrency   = "pol-matic"
	WalletPrefix        = "0x"
)

// ExchangeRequest is the job submission payload. It is passed by value and never
// mutated once submitted.
type ExchangeRequest struct {
	WalletAddress string  `json:"wallet_address"`
	Amount        float64 `json:"amount"`
	FromCurrency  string  `json:"from_currency"`
	ToCurrency    string  `json:"to_currency"`
	SetupMode     bool    `json:"setup_mode"`
}

// Mode resolves the run mode from the request.
func (r ExchangeRequest) Mode() Mode {
	if r.SetupMode {
		return ModeSetup
	}
	return ModeAutomation
}

// WithDefaults fills empty amount and currency fields with the package defaults.
func (r ExchangeRequest) WithDefaults() ExchangeRequest {
	if r.Amount == 0 {
		r.Amount = DefaultAmount
	}
	if r.FromCurrency == "" {
		r.FromCurrency = DefaultFromCurrency
	}
	if r.ToCurrency == "" {
		r.ToCurrency = DefaultToCurrency
	}
	return r
}

// Validate checks the required fields. The wallet is only checked for presence and
// a recognizable prefix.
func (r ExchangeRequest) Validate() error {
	wallet := strings.TrimSpace(r.WalletAddress)
	if wallet == "" {
		return &ValidationError{Field: "wallet_address", Reason: "wallet address is required"}
	}
	if !strings.HasPrefix(strings.ToLower(wallet), WalletPrefix) {
		return &ValidationError{Field: "wallet_address", Reason: fmt.Sprintf("wallet address must start with %q", WalletPrefix)}
	}
	if r.Amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "amount must be a positive number"}
	}
	if r.FromCurrency == "" || r.ToCurrency == "" {
		return &ValidationError{Field: "currency", Reason: "from_currency and to_currency are required"}
	}
	return nil
}

// ValidationError reports missing or malformed request input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MaskWallet shortens a wallet address for listings (first 10 and last 6 characters).
func MaskWallet(wallet string) string {
	if len(wallet) <= 16 {
		return wallet
	}
	return wallet[:10] + "..." + wallet[len(wallet)-6:]
}
