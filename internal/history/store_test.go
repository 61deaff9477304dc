package history

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

var resultColumns = []string{
	"id", "status", "mode", "wallet_address", "amount", "from_currency", "to_currency",
	"exchange_id", "exchange_url", "error", "final_state", "created_at",
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return s, mockPool
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t)
	mockPool.ExpectExec(flexibleSQLMatcher("CREATE TABLE IF NOT EXISTS swap_results")).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRecord(t *testing.T) {
	req := schemas.ExchangeRequest{
		WalletAddress: "0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
		Amount:        25,
		FromCurrency:  "usd-usd",
		ToCurrency:    "pol-matic",
	}

	t.Run("inserts a success result", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		res := schemas.Succeeded(req, "XYZ", "https://simpleswap.io/exchange?id=XYZ")
		res.FinalState = "succeeded"

		mockPool.ExpectExec(flexibleSQLMatcher("INSERT INTO swap_results")).
			WithArgs(
				pgxmock.AnyArg(), "success", "automation", req.WalletAddress, 25.0,
				"usd-usd", "pol-matic",
				"XYZ", "https://simpleswap.io/exchange?id=XYZ", "", "succeeded",
				pgxmock.AnyArg(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.Record(context.Background(), res))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("wraps insert failures", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		dbErr := errors.New("relation does not exist")
		anyArgs := make([]interface{}, 12)
		for i := range anyArgs {
			anyArgs[i] = pgxmock.AnyArg()
		}
		mockPool.ExpectExec(flexibleSQLMatcher("INSERT INTO swap_results")).
			WithArgs(anyArgs...).
			WillReturnError(dbErr)

		err := s.Record(context.Background(), schemas.Failed(req, "No redirect to exchange page"))
		require.Error(t, err)
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "failed to insert result")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestRecent(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("scans rows newest first", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		rows := pgxmock.NewRows(resultColumns).
			AddRow("b", "failed", "automation", "0xabc", 25.0, "usd-usd", "pol-matic", "", "", "No redirect to exchange page", "failed", created).
			AddRow("a", "success", "setup", "0xabc", 10.0, "usd-usd", "pol-matic", "XYZ", "https://x/?id=XYZ", "", "succeeded", created.Add(-time.Hour))
		mockPool.ExpectQuery(flexibleSQLMatcher("FROM swap_results")).WithArgs(5).WillReturnRows(rows)

		entries, err := s.Recent(context.Background(), 5)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		assert.Equal(t, "b", entries[0].ID)
		assert.Equal(t, schemas.ResultFailed, entries[0].Status)
		assert.Equal(t, schemas.ModeAutomation, entries[0].Mode)
		assert.Equal(t, created, entries[0].CreatedAt)

		assert.Equal(t, schemas.ResultSuccess, entries[1].Status)
		assert.Equal(t, schemas.ModeSetup, entries[1].Mode)
		assert.Equal(t, "XYZ", entries[1].ExchangeID)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("applies the default limit", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher("FROM swap_results")).
			WithArgs(defaultRecentLimit).
			WillReturnRows(pgxmock.NewRows(resultColumns))

		entries, err := s.Recent(context.Background(), 0)
		require.NoError(t, err)
		assert.Empty(t, entries)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("propagates query errors", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher("FROM swap_results")).
			WithArgs(3).
			WillReturnError(errors.New("timeout"))

		_, err := s.Recent(context.Background(), 3)
		assert.ErrorContains(t, err, "failed to query results")
	})
}
