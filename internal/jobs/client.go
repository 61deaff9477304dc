// Package jobs is the client for the hosted job-execution service that runs
// the automation remotely.
package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/config"
	"github.com/xkilldash9x/swapflow/internal/network"
)

const (
	outputRecordKey = "OUTPUT"
	maxBodyBytes    = 4 << 20
	maxErrorBody    = 512
)

// API is the submit / poll / fetch surface shared by every front-end.
type API interface {
	Submit(ctx context.Context, req schemas.ExchangeRequest) (string, error)
	PollStatus(ctx context.Context, jobID string) (schemas.JobRecord, error)
	FetchOutput(ctx context.Context, jobID string) (schemas.AutomationResult, error)
}

// Client talks to the job service REST API. It keeps no per-job state; every
// call stands alone.
type Client struct {
	baseURL    string
	actorID    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

var _ API = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a client from the jobs config section.
func NewClient(cfg config.JobsConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrMissingToken
	}
	proxy, err := network.ParseProxyURL(cfg.ProxyURL)
	if err != nil {
		return nil, err
	}
	transport := network.NewDefaultClientConfig()
	if cfg.HTTPTimeout > 0 {
		transport.RequestTimeout = cfg.HTTPTimeout
	}
	transport.ProxyURL = proxy
	transport.Logger = logger.Named("jobs_transport")

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		actorID:    cfg.ActorID,
		token:      cfg.Token,
		httpClient: network.NewClient(transport),
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: max(cfg.MaxRetries, 0),
		backoff:    cfg.RetryBackoff,
		logger:     logger.Named("jobs_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// runPayload is the job input. Field names are the wire contract.
type runPayload struct {
	WalletAddress string  `json:"wallet_address"`
	Amount        float64 `json:"amount"`
	FromCurrency  string  `json:"from_currency"`
	ToCurrency    string  `json:"to_currency"`
	SetupMode     bool    `json:"setup_mode"`
}

type runEnvelope struct {
	Data runData `json:"data"`
}

type runData struct {
	ID                     string     `json:"id"`
	Status                 string     `json:"status"`
	StartedAt              time.Time  `json:"startedAt"`
	FinishedAt             *time.Time `json:"finishedAt"`
	DefaultKeyValueStoreID string     `json:"defaultKeyValueStoreId"`
}

func (d runData) record() schemas.JobRecord {
	return schemas.JobRecord{
		ID:             d.ID,
		Status:         schemas.ParseRemoteStatus(d.Status),
		RemoteStatus:   d.Status,
		StartedAt:      d.StartedAt,
		FinishedAt:     d.FinishedAt,
		OutputStoreRef: d.DefaultKeyValueStoreID,
	}
}

// Submit starts a remote run for req and returns its job ID.
func (c *Client) Submit(ctx context.Context, req schemas.ExchangeRequest) (string, error) {
	payload := runPayload{
		WalletAddress: req.WalletAddress,
		Amount:        req.Amount,
		FromCurrency:  req.FromCurrency,
		ToCurrency:    req.ToCurrency,
		SetupMode:     req.SetupMode,
	}
	var env runEnvelope
	path := fmt.Sprintf("/v2/acts/%s/runs", url.PathEscape(c.actorID))
	if err := c.do(ctx, "submit", http.MethodPost, path, payload, &env); err != nil {
		return "", err
	}
	if env.Data.ID == "" {
		return "", &TransportError{Op: "submit", Err: errors.New("response carried no run id")}
	}
	c.logger.Info("Job submitted",
		zap.String("job_id", env.Data.ID),
		zap.String("wallet", schemas.MaskWallet(req.WalletAddress)),
		zap.Bool("setup_mode", req.SetupMode),
	)
	return env.Data.ID, nil
}

// PollStatus reads the current state of a job. A FAILED job is a valid answer,
// not an error.
func (c *Client) PollStatus(ctx context.Context, jobID string) (schemas.JobRecord, error) {
	var env runEnvelope
	path := fmt.Sprintf("/v2/acts/%s/runs/%s", url.PathEscape(c.actorID), url.PathEscape(jobID))
	if err := c.do(ctx, "poll status", http.MethodGet, path, nil, &env); err != nil {
		return schemas.JobRecord{}, err
	}
	rec := env.Data.record()
	if rec.ID == "" {
		rec.ID = jobID
	}
	return rec, nil
}

// FetchOutput reads the job's result artifact from its output store.
func (c *Client) FetchOutput(ctx context.Context, jobID string) (schemas.AutomationResult, error) {
	rec, err := c.PollStatus(ctx, jobID)
	if err != nil {
		return schemas.AutomationResult{}, err
	}
	if rec.OutputStoreRef == "" {
		return schemas.AutomationResult{}, fmt.Errorf("job %s has no output store", jobID)
	}
	var result schemas.AutomationResult
	path := fmt.Sprintf("/v2/key-value-stores/%s/records/%s", url.PathEscape(rec.OutputStoreRef), outputRecordKey)
	if err := c.do(ctx, "fetch output", http.MethodGet, path, nil, &result); err != nil {
		return schemas.AutomationResult{}, err
	}
	return result, nil
}

// do performs one API call, retrying transient transport failures with
// exponential backoff. POSTs are not retried on 5xx since the run may have
// been created.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
	}

	var lastErr *TransportError
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff << (attempt - 1)
			c.logger.Debug("Retrying job service call",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
				zap.Error(lastErr),
			)
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		terr := c.once(ctx, op, method, path, body, out)
		if terr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = terr
		if !terr.Transient() || (method == http.MethodPost && terr.StatusCode >= 500) {
			break
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, op, method, path string, body []byte, out any) *TransportError {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Body: snippet}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid response body: %w", err)}
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
