package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchangeRequestValidate(t *testing.T) {
	valid := ExchangeRequest{
		WalletAddress: "0xABCDEF0123456789",
		Amount:        50,
		FromCurrency:  "usd-usd",
		ToCurrency:    "pol-matic",
	}
	require.NoError(t, valid.Validate())

	cases := map[string]struct {
		mutate func(r *ExchangeRequest)
		field  string
	}{
		"missing wallet":   {func(r *ExchangeRequest) { r.WalletAddress = "  " }, "wallet_address"},
		"unknown prefix":   {func(r *ExchangeRequest) { r.WalletAddress = "bc1qxyz" }, "wallet_address"},
		"zero amount":      {func(r *ExchangeRequest) { r.Amount = 0 }, "amount"},
		"missing currency": {func(r *ExchangeRequest) { r.ToCurrency = "" }, "currency"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			err := req.Validate()
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tc.field, vErr.Field)
		})
	}
}

func TestExchangeRequestMode(t *testing.T) {
	assert.Equal(t, ModeAutomation, ExchangeRequest{}.Mode())
	assert.Equal(t, ModeSetup, ExchangeRequest{SetupMode: true}.Mode())
}

func TestDefaultsApply(t *testing.T) {
	d := Defaults{WalletAddress: "0xdefault", FromCurrency: "eur-eur"}
	req := d.Apply(ExchangeRequest{Amount: 10})

	assert.Equal(t, "0xdefault", req.WalletAddress)
	assert.Equal(t, 10.0, req.Amount)
	assert.Equal(t, "eur-eur", req.FromCurrency)
	assert.Equal(t, DefaultToCurrency, req.ToCurrency)
}

func TestMaskWallet(t *testing.T) {
	assert.Equal(t, "0x12345678...abcdef", MaskWallet("0x1234567890000000000000000000000000abcdef"))
	assert.Equal(t, "0xshort", MaskWallet("0xshort"))
}

func TestParseRemoteStatus(t *testing.T) {
	assert.Equal(t, JobQueued, ParseRemoteStatus("READY"))
	assert.Equal(t, JobRunning, ParseRemoteStatus("running"))
	assert.Equal(t, JobRunning, ParseRemoteStatus("TIMING-OUT"))
	assert.Equal(t, JobSucceeded, ParseRemoteStatus("SUCCEEDED"))
	assert.Equal(t, JobFailed, ParseRemoteStatus("ABORTED"))
	assert.True(t, JobFailed.Terminal())
	assert.Less(t, JobQueued.Rank(), JobRunning.Rank())
	assert.Equal(t, JobSucceeded.Rank(), JobFailed.Rank())
}

func TestResultConstructors(t *testing.T) {
	req := ExchangeRequest{WalletAddress: "0xabc", Amount: 5, FromCurrency: "a", ToCurrency: "b"}

	ok := Succeeded(req, "XYZ", "https://x/exchange?id=XYZ")
	assert.Equal(t, ResultSuccess, ok.Status)
	assert.Equal(t, "XYZ", ok.ExchangeID)
	assert.Empty(t, ok.Error)
	assert.Equal(t, "0xabc", ok.WalletAddress)

	failed := Failed(req, "No redirect to exchange page")
	assert.Equal(t, ResultFailed, failed.Status)
	assert.Empty(t, failed.ExchangeID)

	errored := Errored(req, errors.New("boom"))
	assert.Equal(t, ResultError, errored.Status)
	assert.Equal(t, "boom", errored.Error)
}

func TestBrowserProfileClone(t *testing.T) {
	p := &BrowserProfile{
		Name:         "default",
		Cookies:      []Cookie{{Name: "sid", Value: "1"}},
		LocalStorage: map[string]string{"k": "v"},
	}
	c := p.Clone()
	c.Cookies[0].Value = "2"
	c.LocalStorage["k"] = "changed"

	assert.Equal(t, "1", p.Cookies[0].Value)
	assert.Equal(t, "v", p.LocalStorage["k"])
	assert.False(t, p.Empty())
	assert.True(t, (&BrowserProfile{}).Empty())
	assert.Nil(t, (*BrowserProfile)(nil).Clone())
}
