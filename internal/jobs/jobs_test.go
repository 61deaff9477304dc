package jobs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/config"
)

const (
	testActor = "DsCczYpxTSp2ATS6D"
	testToken = "apify_api_test"
)

func testConfig(baseURL string) config.JobsConfig {
	return config.JobsConfig{
		BaseURL:      baseURL,
		ActorID:      testActor,
		Token:        testToken,
		HTTPTimeout:  2 * time.Second,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(testConfig(server.URL), zap.NewNop())
	require.NoError(t, err)
	return client
}

func writeRun(w http.ResponseWriter, id, status string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"data":{"id":"`+id+`","status":"`+status+`","startedAt":"2026-10-18T10:00:00Z","defaultKeyValueStoreId":"store-1"}}`)
}

func TestNewClient_MissingToken(t *testing.T) {
	_, err := NewClient(config.JobsConfig{BaseURL: "http://x"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestNewClient_InvalidProxy(t *testing.T) {
	_, err := NewClient(config.JobsConfig{BaseURL: "http://x", Token: "t", ProxyURL: "no-scheme"}, zap.NewNop())
	assert.ErrorContains(t, err, "invalid proxy url")
}

func TestClient_Submit(t *testing.T) {
	var got runPayload
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/acts/"+testActor+"/runs", r.URL.Path)
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		writeRun(w, "run-1", "READY")
	}))

	id, err := client.Submit(context.Background(), schemas.ExchangeRequest{
		WalletAddress: "0xABCDEF0123456789",
		Amount:        50,
		FromCurrency:  "usd-usd",
		ToCurrency:    "pol-matic",
		SetupMode:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)
	assert.Equal(t, runPayload{
		WalletAddress: "0xABCDEF0123456789",
		Amount:        50,
		FromCurrency:  "usd-usd",
		ToCurrency:    "pol-matic",
		SetupMode:     true,
	}, got)
}

func TestClient_SubmitDoesNotRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))

	_, err := client.Submit(context.Background(), schemas.ExchangeRequest{WalletAddress: "0x1"})
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusBadGateway, terr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_PollRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		switch n {
		case 1:
			http.Error(w, "busy", http.StatusServiceUnavailable)
		case 2:
			http.Error(w, "slow down", http.StatusTooManyRequests)
		default:
			writeRun(w, "run-1", "RUNNING")
		}
	}))

	rec, err := client.PollStatus(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, schemas.JobRunning, rec.Status)
	assert.Equal(t, "RUNNING", rec.RemoteStatus)
	assert.Equal(t, "store-1", rec.OutputStoreRef)
	assert.Equal(t, 2026, rec.StartedAt.Year())
}

func TestClient_NoRetryOnClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"type":"record-not-found"}}`, http.StatusNotFound)
	}))

	_, err := client.PollStatus(context.Background(), "missing")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusNotFound, terr.StatusCode)
	assert.Contains(t, terr.Error(), "record-not-found")
	assert.False(t, terr.Transient())
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.PollStatus(context.Background(), "run-1")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "poll status: HTTP 500", terr.Error())
	assert.Equal(t, int32(4), calls.Load(), "one call plus three retries")
}

func TestClient_FailedStatusIsAnAnswer(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeRun(w, "run-1", "FAILED")
	}))

	rec, err := client.PollStatus(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.JobFailed, rec.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_FetchOutput(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/acts/"+testActor+"/runs/run-1", func(w http.ResponseWriter, r *http.Request) {
		writeRun(w, "run-1", "SUCCEEDED")
	})
	mux.HandleFunc("/v2/key-value-stores/store-1/records/OUTPUT", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"success","wallet_address":"0xabc","amount":25,"from_currency":"usd-usd","to_currency":"pol-matic","mode":"automation","exchange_id":"XYZ","exchange_url":"https://simpleswap.io/exchange?id=XYZ","created_at":"2026-10-18T10:01:00Z"}`)
	})
	client := newTestClient(t, mux)

	res, err := client.FetchOutput(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.ResultSuccess, res.Status)
	assert.Equal(t, "XYZ", res.ExchangeID)
	assert.Equal(t, schemas.ModeAutomation, res.Mode)
}

func TestClient_InvalidBodyIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, "<html>")
	}))
	_, err := client.PollStatus(context.Background(), "run-1")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	cfg := testConfig(url)
	cfg.MaxRetries = 1
	client, err := NewClient(cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = client.PollStatus(context.Background(), "run-1")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.True(t, terr.Transient())
	assert.NotNil(t, errors.Unwrap(terr))
}

func TestRegistry_Monotonic(t *testing.T) {
	r := NewRegistry()
	started := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	got := r.Observe(schemas.JobRecord{ID: "a", Status: schemas.JobRunning, StartedAt: started, OutputStoreRef: "s"})
	assert.Equal(t, schemas.JobRunning, got.Status)

	got = r.Observe(schemas.JobRecord{ID: "a", Status: schemas.JobQueued})
	assert.Equal(t, schemas.JobRunning, got.Status, "never regresses")

	got = r.Observe(schemas.JobRecord{ID: "a", Status: schemas.JobSucceeded})
	assert.Equal(t, schemas.JobSucceeded, got.Status)
	assert.Equal(t, started, got.StartedAt)
	assert.Equal(t, "s", got.OutputStoreRef)

	for _, s := range []schemas.JobStatus{schemas.JobQueued, schemas.JobRunning, schemas.JobFailed} {
		got = r.Observe(schemas.JobRecord{ID: "a", Status: s})
		assert.Equal(t, schemas.JobSucceeded, got.Status, "terminal is final")
	}

	stored, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, schemas.JobSucceeded, stored.Status)
	_, ok = r.Get("b")
	assert.False(t, ok)
}

// fakeAPI scripts status sequences and counts calls.
type fakeAPI struct {
	mu       sync.Mutex
	statuses []schemas.JobStatus
	polls    int
	submits  int
	fetches  int
	pollErr  error
	result   schemas.AutomationResult
}

func (f *fakeAPI) Submit(context.Context, schemas.ExchangeRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	return "run-1", nil
}

func (f *fakeAPI) PollStatus(_ context.Context, id string) (schemas.JobRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollErr != nil && f.polls == 1 {
		return schemas.JobRecord{}, f.pollErr
	}
	idx := min(f.polls-1, len(f.statuses)-1)
	return schemas.JobRecord{ID: id, Status: f.statuses[idx], RemoteStatus: string(f.statuses[idx])}, nil
}

func (f *fakeAPI) FetchOutput(context.Context, string) (schemas.AutomationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.result, nil
}

func TestMonitor_Succeeds(t *testing.T) {
	defer goleak.VerifyNone(t)

	api := &fakeAPI{
		statuses: []schemas.JobStatus{schemas.JobQueued, schemas.JobRunning, schemas.JobSucceeded},
		result:   schemas.AutomationResult{Status: schemas.ResultSuccess, ExchangeID: "XYZ"},
		pollErr:  &TransportError{Op: "poll status", StatusCode: 502},
	}
	var seen []schemas.JobStatus
	m := NewMonitor(api, NewRegistry(), 5*time.Millisecond, time.Second, zap.NewNop())
	m.OnPoll = func(rec schemas.JobRecord) { seen = append(seen, rec.Status) }

	res := m.Wait(context.Background(), "run-1")

	assert.True(t, res.Success)
	require.NotNil(t, res.Result)
	assert.Equal(t, "XYZ", res.Result.ExchangeID)
	assert.Equal(t, schemas.JobSucceeded, res.Record.Status)
	assert.Equal(t, 1, api.fetches)
	assert.Equal(t, []schemas.JobStatus{schemas.JobRunning, schemas.JobSucceeded}, seen)
}

func TestMonitor_JobFailed(t *testing.T) {
	api := &fakeAPI{statuses: []schemas.JobStatus{schemas.JobFailed}}
	res := NewMonitor(api, nil, 5*time.Millisecond, time.Second, zap.NewNop()).Wait(context.Background(), "run-1")

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "failed")
	assert.Nil(t, res.Result)
	assert.Zero(t, api.fetches)
}

func TestMonitor_TimeoutLeavesJobAlone(t *testing.T) {
	defer goleak.VerifyNone(t)

	api := &fakeAPI{statuses: []schemas.JobStatus{schemas.JobRunning}}
	m := NewMonitor(api, NewRegistry(), 10*time.Millisecond, 60*time.Millisecond, zap.NewNop())

	start := time.Now()
	res := m.Wait(context.Background(), "run-1")

	assert.False(t, res.Success)
	assert.Equal(t, TimeoutReason, res.Error)
	assert.Equal(t, schemas.JobRunning, res.Record.Status)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Greater(t, api.polls, 1)
	assert.Zero(t, api.submits, "the monitor only reads")
	assert.Zero(t, api.fetches)
}

func TestMonitor_ParentCancelled(t *testing.T) {
	api := &fakeAPI{statuses: []schemas.JobStatus{schemas.JobRunning}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewMonitor(api, nil, time.Hour, time.Hour, zap.NewNop()).Wait(ctx, "run-1")
	assert.Equal(t, context.Canceled.Error(), res.Error)
}

func TestNewMonitorDefaults(t *testing.T) {
	m := NewMonitorFromConfig(&fakeAPI{}, nil, config.JobsConfig{}, zap.NewNop())
	assert.Equal(t, DefaultPollInterval, m.interval)
	assert.Equal(t, DefaultTimeout, m.timeout)
}
