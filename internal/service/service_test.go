package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/config"
	"github.com/xkilldash9x/swapflow/internal/jobs"
	"github.com/xkilldash9x/swapflow/internal/mocks"
	"github.com/xkilldash9x/swapflow/internal/state"
)

const wallet = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"

func newTestService(t *testing.T, api jobs.API) *Service {
	t.Helper()
	st, err := state.Open(filepath.Join(t.TempDir(), "state.json"),
		DefaultsFromConfig(config.NewDefaultConfig().Defaults()), zap.NewNop())
	require.NoError(t, err)
	cfg := config.NewDefaultConfig().Jobs()
	cfg.PollInterval = time.Millisecond
	cfg.MonitorTimeout = time.Second
	return New(st, api, cfg, zap.NewNop())
}

func isSetup(setup bool) interface{} {
	return mock.MatchedBy(func(req schemas.ExchangeRequest) bool { return req.SetupMode == setup })
}

func TestCreateSession(t *testing.T) {
	svc := newTestService(t, nil)

	sess, err := svc.CreateSession(schemas.ExchangeRequest{WalletAddress: wallet})
	require.NoError(t, err)
	assert.Equal(t, schemas.SessionCreated, sess.Status)
	assert.Equal(t, 25.0, sess.Request.Amount)
	assert.Equal(t, "usd-usd", sess.Request.FromCurrency)
	assert.Equal(t, "pol-matic", sess.Request.ToCurrency)

	_, err = svc.CreateSession(schemas.ExchangeRequest{})
	var verr *schemas.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Len(t, svc.Sessions(), 1)
}

func TestSetupWallet(t *testing.T) {
	api := new(mocks.MockJobAPI)
	api.On("Submit", mock.Anything, isSetup(true)).Return("run-setup", nil)
	svc := newTestService(t, api)

	sess, err := svc.CreateSession(schemas.ExchangeRequest{WalletAddress: wallet})
	require.NoError(t, err)

	jobID, err := svc.SetupWallet(context.Background(), wallet, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "run-setup", jobID)

	got, err := svc.Session(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, schemas.SessionSetupInProgress, got.Status)
	assert.Equal(t, "run-setup", got.JobID)

	// An unknown session id does not fail the setup.
	_, err = svc.SetupWallet(context.Background(), wallet, "session_unknown")
	assert.NoError(t, err)
	api.AssertNumberOfCalls(t, "Submit", 2)
}

func TestSetupWalletRejectsMissingWallet(t *testing.T) {
	api := new(mocks.MockJobAPI)
	svc := newTestService(t, api)

	_, err := svc.SetupWallet(context.Background(), "  ", "")
	var verr *schemas.ValidationError
	assert.ErrorAs(t, err, &verr)
	api.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestExecuteSwap(t *testing.T) {
	t.Run("unknown session", func(t *testing.T) {
		svc := newTestService(t, new(mocks.MockJobAPI))
		_, err := svc.ExecuteSwap(context.Background(), "session_missing")
		assert.ErrorIs(t, err, state.ErrSessionNotFound)
		assert.True(t, IsNotFound(err))
	})

	t.Run("submit failure marks the session failed", func(t *testing.T) {
		api := new(mocks.MockJobAPI)
		api.On("Submit", mock.Anything, isSetup(false)).Return("", &jobs.TransportError{Op: "submit", StatusCode: 401})
		svc := newTestService(t, api)
		sess, err := svc.CreateSession(schemas.ExchangeRequest{WalletAddress: wallet})
		require.NoError(t, err)

		_, err = svc.ExecuteSwap(context.Background(), sess.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to start swap")

		got, _ := svc.Session(sess.ID)
		assert.Equal(t, schemas.SessionFailed, got.Status)
		assert.Contains(t, got.Error, "HTTP 401")
	})

	t.Run("success links the run", func(t *testing.T) {
		api := new(mocks.MockJobAPI)
		api.On("Submit", mock.Anything, isSetup(false)).Return("run-1", nil)
		svc := newTestService(t, api)
		sess, err := svc.CreateSession(schemas.ExchangeRequest{WalletAddress: wallet, Amount: 40})
		require.NoError(t, err)

		jobID, err := svc.ExecuteSwap(context.Background(), sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "run-1", jobID)

		got, _ := svc.Session(sess.ID)
		assert.Equal(t, schemas.SessionSwapInProgress, got.Status)
		assert.Equal(t, "run-1", got.JobID)
		api.AssertCalled(t, "Submit", mock.Anything, mock.MatchedBy(func(req schemas.ExchangeRequest) bool {
			return req.Amount == 40 && req.WalletAddress == wallet
		}))
	})

	t.Run("started or finished sessions are not re-run", func(t *testing.T) {
		ctx := context.Background()
		api := new(mocks.MockJobAPI)
		api.On("Submit", mock.Anything, isSetup(false)).Return("run-1", nil).Once()
		api.On("PollStatus", mock.Anything, "run-1").
			Return(schemas.JobRecord{ID: "run-1", Status: schemas.JobSucceeded}, nil)
		api.On("FetchOutput", mock.Anything, "run-1").
			Return(schemas.AutomationResult{Status: schemas.ResultSuccess, ExchangeID: "XYZ"}, nil)
		svc := newTestService(t, api)
		sess, err := svc.CreateSession(schemas.ExchangeRequest{WalletAddress: wallet})
		require.NoError(t, err)

		_, err = svc.ExecuteSwap(ctx, sess.ID)
		require.NoError(t, err)

		_, err = svc.ExecuteSwap(ctx, sess.ID)
		assert.ErrorIs(t, err, ErrSwapStarted, "in progress")

		_, err = svc.CheckStatus(ctx, "run-1", sess.ID)
		require.NoError(t, err)
		done, _ := svc.Session(sess.ID)
		require.Equal(t, schemas.SessionCompleted, done.Status)

		_, err = svc.ExecuteSwap(ctx, sess.ID)
		assert.ErrorIs(t, err, ErrSwapStarted, "completed")

		got, _ := svc.Session(sess.ID)
		assert.Equal(t, schemas.SessionCompleted, got.Status)
		assert.Equal(t, "run-1", got.JobID)
		assert.Equal(t, done.CompletedAt, got.CompletedAt)
		api.AssertNumberOfCalls(t, "Submit", 1)
	})
}

func TestCheckStatus(t *testing.T) {
	ctx := context.Background()
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("session advances and then freezes", func(t *testing.T) {
		api := new(mocks.MockJobAPI)
		svc := newTestService(t, api)
		sess, err := svc.CreateSession(schemas.ExchangeRequest{WalletAddress: wallet})
		require.NoError(t, err)

		api.On("PollStatus", mock.Anything, "run-1").
			Return(schemas.JobRecord{ID: "run-1", Status: schemas.JobRunning, RemoteStatus: "RUNNING", StartedAt: started}, nil).Once()
		report, err := svc.CheckStatus(ctx, "run-1", sess.ID)
		require.NoError(t, err)
		assert.Equal(t, schemas.JobRunning, report.Status)
		require.NotNil(t, report.Session)
		assert.Equal(t, schemas.SessionRunning, report.Session.Status)

		api.On("PollStatus", mock.Anything, "run-1").
			Return(schemas.JobRecord{ID: "run-1", Status: schemas.JobSucceeded, RemoteStatus: "SUCCEEDED", StartedAt: started}, nil).Once()
		api.On("FetchOutput", mock.Anything, "run-1").
			Return(schemas.AutomationResult{Status: schemas.ResultSuccess, ExchangeID: "XYZ", ExchangeURL: "https://x/?id=XYZ"}, nil).Once()
		report, err = svc.CheckStatus(ctx, "run-1", sess.ID)
		require.NoError(t, err)
		assert.Equal(t, schemas.SessionCompleted, report.Session.Status)
		assert.Equal(t, "XYZ", report.Session.ExchangeID)
		assert.NotNil(t, report.Session.CompletedAt)

		// A stale RUNNING read cannot move the job or the session back.
		api.On("PollStatus", mock.Anything, "run-1").
			Return(schemas.JobRecord{ID: "run-1", Status: schemas.JobRunning, RemoteStatus: "RUNNING"}, nil).Once()
		report, err = svc.CheckStatus(ctx, "run-1", sess.ID)
		require.NoError(t, err)
		assert.Equal(t, schemas.JobSucceeded, report.Status)
		assert.Equal(t, schemas.SessionCompleted, report.Session.Status)
		api.AssertNumberOfCalls(t, "FetchOutput", 1)
	})

	t.Run("terminal session ignores a later failure", func(t *testing.T) {
		api := new(mocks.MockJobAPI)
		svc := newTestService(t, api)
		sess, err := svc.CreateSession(schemas.ExchangeRequest{WalletAddress: wallet})
		require.NoError(t, err)
		_, err = svc.state.UpdateSession(sess.ID, func(s *schemas.Session) { s.Status = schemas.SessionCompleted })
		require.NoError(t, err)

		api.On("PollStatus", mock.Anything, "run-2").
			Return(schemas.JobRecord{ID: "run-2", Status: schemas.JobFailed, RemoteStatus: "FAILED"}, nil)
		report, err := svc.CheckStatus(ctx, "run-2", sess.ID)
		require.NoError(t, err)
		assert.Equal(t, schemas.JobFailed, report.Status)
		assert.Equal(t, schemas.SessionCompleted, report.Session.Status)
	})

	t.Run("failed job fails the session", func(t *testing.T) {
		api := new(mocks.MockJobAPI)
		svc := newTestService(t, api)
		sess, err := svc.CreateSession(schemas.ExchangeRequest{WalletAddress: wallet})
		require.NoError(t, err)

		api.On("PollStatus", mock.Anything, "run-3").
			Return(schemas.JobRecord{ID: "run-3", Status: schemas.JobFailed, RemoteStatus: "TIMED-OUT"}, nil)
		report, err := svc.CheckStatus(ctx, "run-3", sess.ID)
		require.NoError(t, err)
		assert.Equal(t, schemas.SessionFailed, report.Session.Status)
		assert.Equal(t, "job TIMED-OUT", report.Session.Error)
		api.AssertNotCalled(t, "FetchOutput", mock.Anything, mock.Anything)
	})

	t.Run("without a session", func(t *testing.T) {
		api := new(mocks.MockJobAPI)
		svc := newTestService(t, api)
		api.On("PollStatus", mock.Anything, "run-4").
			Return(schemas.JobRecord{ID: "run-4", Status: schemas.JobQueued, RemoteStatus: "READY"}, nil)

		report, err := svc.CheckStatus(ctx, "run-4", "")
		require.NoError(t, err)
		assert.Nil(t, report.Session)
		assert.Equal(t, "READY", report.RemoteStatus)
	})

	t.Run("poll error", func(t *testing.T) {
		api := new(mocks.MockJobAPI)
		svc := newTestService(t, api)
		api.On("PollStatus", mock.Anything, "run-5").Return(schemas.JobRecord{}, errors.New("boom"))

		_, err := svc.CheckStatus(ctx, "run-5", "")
		assert.ErrorContains(t, err, "failed to check status")
	})
}

func TestMissingToken(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.SetupWallet(ctx, wallet, "")
	assert.ErrorIs(t, err, jobs.ErrMissingToken)
	_, err = svc.CheckStatus(ctx, "run", "")
	assert.ErrorIs(t, err, jobs.ErrMissingToken)
	_, err = svc.Result(ctx, "run")
	assert.ErrorIs(t, err, jobs.ErrMissingToken)

	res := svc.Wait(ctx, "run", nil)
	assert.False(t, res.Success)
	assert.Equal(t, jobs.ErrMissingToken.Error(), res.Error)
}

func TestWait(t *testing.T) {
	defer goleak.VerifyNone(t)

	api := new(mocks.MockJobAPI)
	api.On("PollStatus", mock.Anything, "run-w").
		Return(schemas.JobRecord{ID: "run-w", Status: schemas.JobRunning}, nil).Twice()
	api.On("PollStatus", mock.Anything, "run-w").
		Return(schemas.JobRecord{ID: "run-w", Status: schemas.JobSucceeded}, nil)
	api.On("FetchOutput", mock.Anything, "run-w").
		Return(schemas.AutomationResult{Status: schemas.ResultFailed, Error: "No redirect to exchange page"}, nil)
	svc := newTestService(t, api)

	var polls int
	res := svc.Wait(context.Background(), "run-w", func(schemas.JobRecord) { polls++ })

	assert.True(t, res.Success, "the job finished and its output was read")
	require.NotNil(t, res.Result)
	assert.Equal(t, schemas.ResultFailed, res.Result.Status)
	assert.Equal(t, 3, polls)
}

func TestResolveRequestAndProfiles(t *testing.T) {
	svc := newTestService(t, nil)

	require.NoError(t, svc.SaveProfile("main", wallet))
	assert.Error(t, svc.SaveProfile("empty", ""))

	req, err := svc.ResolveRequest(schemas.ExchangeRequest{Amount: 10}, "main")
	require.NoError(t, err)
	assert.Equal(t, wallet, req.WalletAddress)
	assert.Equal(t, 10.0, req.Amount)
	assert.Equal(t, "usd-usd", req.FromCurrency)

	_, err = svc.ResolveRequest(schemas.ExchangeRequest{}, "missing")
	assert.ErrorIs(t, err, state.ErrProfileNotFound)

	_, err = svc.SetDefaults(schemas.Defaults{WalletAddress: wallet, Amount: 60})
	require.NoError(t, err)
	req, err = svc.ResolveRequest(schemas.ExchangeRequest{}, "")
	require.NoError(t, err)
	assert.Equal(t, wallet, req.WalletAddress)
	assert.Equal(t, 60.0, req.Amount)

	require.NoError(t, svc.DeleteProfile("main"))
	assert.Empty(t, svc.Profiles())
	sessions, profiles := svc.Counts()
	assert.Zero(t, sessions)
	assert.Zero(t, profiles)
}

func TestNewComponentsWithoutToken(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.StateCfg.File = filepath.Join(t.TempDir(), "state.json")
	cfg.JobsCfg.Token = ""

	c, err := NewComponents(cfg, zap.NewNop())
	require.NoError(t, err)
	defer c.Shutdown()

	_, err = c.Service.Result(context.Background(), "run")
	assert.ErrorIs(t, err, jobs.ErrMissingToken)
	assert.NoError(t, c.EnableHistory(context.Background()), "history is skipped without a database URL")
	assert.Nil(t, c.History)

	cfg.ProfileCfg.Dir = t.TempDir()
	orch, err := c.NewRunner()
	require.NoError(t, err)
	assert.NotNil(t, orch)
}
