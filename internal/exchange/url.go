package exchange

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/xkilldash9x/swapflow/api/schemas"
)

// BuildExchangeURL encodes the currency pair and amount into the page URL as
// {base}?from=..&to=..&rate=floating&amount=.. in that order.
func BuildExchangeURL(base string, req schemas.ExchangeRequest) string {
	params := [][2]string{
		{"from", req.FromCurrency},
		{"to", req.ToCurrency},
		{"rate", "floating"},
		{"amount", strconv.FormatFloat(req.Amount, 'f', -1, 64)},
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(base)
	for _, p := range params {
		b.WriteString(sep)
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
		sep = "&"
	}
	return b.String()
}

// ExtractExchangeID returns the substring after "id=" up to the next "&" or the
// end of the URL. An empty identifier counts as absent.
func ExtractExchangeID(rawURL string) (string, bool) {
	_, rest, found := strings.Cut(rawURL, "id=")
	if !found {
		return "", false
	}
	id, _, _ := strings.Cut(rest, "&")
	if id == "" {
		return "", false
	}
	return id, true
}
