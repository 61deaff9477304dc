// Package history archives automation results in PostgreSQL.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
)

const defaultRecentLimit = 20

const schemaSQL = `
    CREATE TABLE IF NOT EXISTS swap_results (
        id             TEXT PRIMARY KEY,
        status         TEXT NOT NULL,
        mode           TEXT NOT NULL,
        wallet_address TEXT NOT NULL,
        amount         DOUBLE PRECISION NOT NULL,
        from_currency  TEXT NOT NULL,
        to_currency    TEXT NOT NULL,
        exchange_id    TEXT NOT NULL DEFAULT '',
        exchange_url   TEXT NOT NULL DEFAULT '',
        error          TEXT NOT NULL DEFAULT '',
        final_state    TEXT NOT NULL DEFAULT '',
        created_at     TIMESTAMPTZ NOT NULL
    );
`

// DBPool abstracts pgxpool.Pool so the store can be tested against a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Entry is one archived result.
type Entry struct {
	ID string `json:"id"`
	schemas.AutomationResult
}

// Store provides the PostgreSQL result archive.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("history"),
	}, nil
}

// Connect opens a pool for url, creates the table if needed and returns the
// store with a function that closes the pool.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// EnsureSchema creates the results table.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create results table: %w", err)
	}
	return nil
}

// Record archives one result. Its signature matches orchestrator.SinkFunc.
func (s *Store) Record(ctx context.Context, res schemas.AutomationResult) error {
	createdAt := res.CreatedAt.UTC()
	if res.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	query := `
        INSERT INTO swap_results (id, status, mode, wallet_address, amount, from_currency, to_currency,
            exchange_id, exchange_url, error, final_state, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
    `
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, query,
		id, string(res.Status), string(res.Mode), res.WalletAddress, res.Amount,
		res.FromCurrency, res.ToCurrency,
		res.ExchangeID, res.ExchangeURL, res.Error, res.FinalState,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	s.log.Debug("Result archived", zap.String("id", id), zap.String("status", string(res.Status)))
	return nil
}

// Recent returns the newest results first. A non-positive limit uses 20.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	query := `
        SELECT id, status, mode, wallet_address, amount, from_currency, to_currency,
            exchange_id, exchange_url, error, final_state, created_at
        FROM swap_results
        ORDER BY created_at DESC
        LIMIT $1;
    `
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var status, mode string
		err := rows.Scan(
			&e.ID, &status, &mode, &e.WalletAddress, &e.Amount,
			&e.FromCurrency, &e.ToCurrency,
			&e.ExchangeID, &e.ExchangeURL, &e.Error, &e.FinalState,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		e.Status = schemas.ResultStatus(status)
		e.Mode = schemas.Mode(mode)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return entries, nil
}
