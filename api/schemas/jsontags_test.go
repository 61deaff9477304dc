package schemas_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/swapflow/api/schemas"
)

// TestStructJSONTags pins the wire names shared with the job service and the
// persisted profile record.
func TestStructJSONTags(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name         string
		structRef    interface{}
		expectedTags map[string]string
	}{
		{
			name:      "ExchangeRequest",
			structRef: schemas.ExchangeRequest{},
			expectedTags: map[string]string{
				"WalletAddress": "wallet_address",
				"Amount":        "amount",
				"FromCurrency":  "from_currency",
				"ToCurrency":    "to_currency",
				"SetupMode":     "setup_mode",
			},
		},
		{
			name:      "BrowserProfile",
			structRef: schemas.BrowserProfile{},
			expectedTags: map[string]string{
				"Name":           "name",
				"Cookies":        "cookies",
				"LocalStorage":   "localStorage",
				"SessionStorage": "sessionStorage",
				"UserAgent":      "userAgent",
				"WalletAddress":  "walletAddress,omitempty",
				"SavedAt":        "timestamp",
				"Version":        "version",
			},
		},
		{
			name:      "AutomationResult",
			structRef: schemas.AutomationResult{},
			expectedTags: map[string]string{
				"Status":        "status",
				"WalletAddress": "wallet_address",
				"Amount":        "amount",
				"FromCurrency":  "from_currency",
				"ToCurrency":    "to_currency",
				"ExchangeID":    "exchange_id,omitempty",
				"ExchangeURL":   "exchange_url,omitempty",
				"Error":         "error,omitempty",
				"CreatedAt":     "created_at",
			},
		},
		{
			name:      "Session",
			structRef: schemas.Session{},
			expectedTags: map[string]string{
				"ID":          "session_id",
				"JobID":       "run_id,omitempty",
				"Status":      "status",
				"CompletedAt": "completed_at,omitempty",
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			typ := reflect.TypeOf(tc.structRef)
			for fieldName, expectedTag := range tc.expectedTags {
				field, ok := typ.FieldByName(fieldName)
				if assert.True(t, ok, "field %s should exist on %s", fieldName, tc.name) {
					assert.Equal(t, expectedTag, field.Tag.Get("json"), "json tag mismatch for %s.%s", tc.name, fieldName)
				}
			}
		})
	}
}
