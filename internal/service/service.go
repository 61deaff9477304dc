// File: internal/service/service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/config"
	"github.com/xkilldash9x/swapflow/internal/jobs"
	"github.com/xkilldash9x/swapflow/internal/state"
)

// ErrSwapStarted is returned by ExecuteSwap for a session whose swap has
// already been started or has finished.
var ErrSwapStarted = errors.New("swap already started for session")

// swappable reports whether a session in status may start its swap.
func swappable(status schemas.SessionStatus) bool {
	return status == schemas.SessionCreated || status == schemas.SessionSetupInProgress
}

// Service is the facade shared by the CLI, the interactive prompt, the MCP
// server and the workflow composer. It ties remote jobs to front-end sessions.
type Service struct {
	state    *state.Store
	api      jobs.API
	registry *jobs.Registry
	jobsCfg  config.JobsConfig
	logger   *zap.Logger
}

// New builds the facade. api may be nil when no token is configured; remote
// operations then fail with jobs.ErrMissingToken.
func New(st *state.Store, api jobs.API, cfg config.JobsConfig, logger *zap.Logger) *Service {
	return &Service{
		state:    st,
		api:      api,
		registry: jobs.NewRegistry(),
		jobsCfg:  cfg,
		logger:   logger.Named("service"),
	}
}

func (s *Service) remote() (jobs.API, error) {
	if s.api == nil {
		return nil, jobs.ErrMissingToken
	}
	return s.api, nil
}

// StatusReport is the answer to a status check.
type StatusReport struct {
	RunID        string            `json:"run_id"`
	Status       schemas.JobStatus `json:"status"`
	RemoteStatus string            `json:"remote_status,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
	Session      *schemas.Session  `json:"session,omitempty"`
}

// ResolveRequest fills req from a named profile and the stored defaults.
func (s *Service) ResolveRequest(req schemas.ExchangeRequest, profileName string) (schemas.ExchangeRequest, error) {
	if profileName != "" {
		wallet, err := s.state.Profile(profileName)
		if err != nil {
			return req, err
		}
		req.WalletAddress = wallet
	}
	req.WalletAddress = strings.TrimSpace(req.WalletAddress)
	return s.state.Defaults().Apply(req), nil
}

// Submit validates req and starts a remote job for it.
func (s *Service) Submit(ctx context.Context, req schemas.ExchangeRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	api, err := s.remote()
	if err != nil {
		return "", err
	}
	return api.Submit(ctx, req)
}

// CreateSession records a session for req after applying defaults.
func (s *Service) CreateSession(req schemas.ExchangeRequest) (schemas.Session, error) {
	req = s.state.Defaults().Apply(req)
	if err := req.Validate(); err != nil {
		return schemas.Session{}, err
	}
	return s.state.CreateSession(req)
}

// SetupWallet starts a setup job for wallet. When sessionID names a known
// session it is linked to the job; an unknown id is ignored.
func (s *Service) SetupWallet(ctx context.Context, wallet, sessionID string) (string, error) {
	req := s.state.Defaults().Apply(schemas.ExchangeRequest{WalletAddress: strings.TrimSpace(wallet), SetupMode: true})
	jobID, err := s.Submit(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to start setup: %w", err)
	}
	if sessionID != "" {
		_, err := s.state.UpdateSession(sessionID, func(sess *schemas.Session) {
			sess.JobID = jobID
			sess.Status = schemas.SessionSetupInProgress
		})
		if err != nil {
			s.logger.Warn("Setup job not linked to session", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	s.logger.Info("Setup started", zap.String("wallet", schemas.MaskWallet(wallet)), zap.String("run_id", jobID))
	return jobID, nil
}

// ExecuteSwap starts the automation job for a created session.
func (s *Service) ExecuteSwap(ctx context.Context, sessionID string) (string, error) {
	sess, err := s.state.Session(sessionID)
	if err != nil {
		return "", err
	}
	if !swappable(sess.Status) {
		return "", fmt.Errorf("%w: %s is %s", ErrSwapStarted, sessionID, sess.Status)
	}
	req := sess.Request
	req.SetupMode = false

	jobID, submitErr := s.Submit(ctx, req)
	if submitErr != nil {
		_, err := s.state.UpdateSession(sessionID, func(sess *schemas.Session) {
			if !sess.Status.Terminal() {
				sess.Status = schemas.SessionFailed
				sess.Error = submitErr.Error()
			}
		})
		if err != nil {
			s.logger.Error("Failed to record swap failure", zap.String("session_id", sessionID), zap.Error(err))
		}
		return "", fmt.Errorf("failed to start swap: %w", submitErr)
	}

	linked := false
	updated, err := s.state.UpdateSession(sessionID, func(sess *schemas.Session) {
		if !swappable(sess.Status) {
			return
		}
		sess.JobID = jobID
		sess.Status = schemas.SessionSwapInProgress
		linked = true
	})
	if err != nil {
		return jobID, err
	}
	if !linked {
		s.logger.Warn("Swap run not linked; session moved on concurrently",
			zap.String("session_id", sessionID), zap.String("run_id", jobID))
		return jobID, fmt.Errorf("%w: %s is %s", ErrSwapStarted, sessionID, updated.Status)
	}
	s.logger.Info("Swap started", zap.String("session_id", sessionID), zap.String("run_id", jobID))
	return jobID, nil
}

// sessionStatusFor maps a job status onto the session lifecycle.
func sessionStatusFor(status schemas.JobStatus) (schemas.SessionStatus, bool) {
	switch status {
	case schemas.JobSucceeded:
		return schemas.SessionCompleted, true
	case schemas.JobFailed:
		return schemas.SessionFailed, true
	case schemas.JobRunning:
		return schemas.SessionRunning, true
	default:
		return "", false
	}
}

// CheckStatus polls jobID and, when sessionID is set, advances the session.
// A session that reached completed or failed is never changed again.
func (s *Service) CheckStatus(ctx context.Context, jobID, sessionID string) (StatusReport, error) {
	api, err := s.remote()
	if err != nil {
		return StatusReport{}, err
	}
	rec, err := api.PollStatus(ctx, jobID)
	if err != nil {
		return StatusReport{}, fmt.Errorf("failed to check status: %w", err)
	}
	rec = s.registry.Observe(rec)

	report := StatusReport{
		RunID:        jobID,
		Status:       rec.Status,
		RemoteStatus: rec.RemoteStatus,
		StartedAt:    rec.StartedAt,
		FinishedAt:   rec.FinishedAt,
	}
	if sessionID == "" {
		return report, nil
	}

	current, err := s.state.Session(sessionID)
	if err != nil {
		return report, err
	}
	next, ok := sessionStatusFor(rec.Status)
	if !ok || current.Status.Terminal() || current.Status == next {
		report.Session = &current
		return report, nil
	}

	var output *schemas.AutomationResult
	var outputErr error
	if rec.Status == schemas.JobSucceeded {
		res, err := api.FetchOutput(ctx, jobID)
		if err != nil {
			outputErr = err
			s.logger.Warn("Job succeeded but its result could not be fetched", zap.String("run_id", jobID), zap.Error(err))
		} else {
			output = &res
		}
	}

	updated, err := s.state.UpdateSession(sessionID, func(sess *schemas.Session) {
		if sess.Status.Terminal() {
			return
		}
		sess.Status = next
		if sess.JobID == "" {
			sess.JobID = jobID
		}
		if next.Terminal() {
			now := time.Now().UTC()
			sess.CompletedAt = &now
		}
		switch {
		case outputErr != nil:
			sess.Error = "failed to fetch result: " + outputErr.Error()
		case output != nil && output.Status == schemas.ResultSuccess:
			sess.ExchangeID = output.ExchangeID
			sess.ExchangeURL = output.ExchangeURL
		case output != nil:
			sess.Error = output.Error
		case rec.Status == schemas.JobFailed:
			sess.Error = "job " + rec.RemoteStatus
		}
	})
	if err != nil {
		return report, err
	}
	report.Session = &updated
	return report, nil
}

// Result fetches the output artifact of a finished job.
func (s *Service) Result(ctx context.Context, jobID string) (schemas.AutomationResult, error) {
	api, err := s.remote()
	if err != nil {
		return schemas.AutomationResult{}, err
	}
	return api.FetchOutput(ctx, jobID)
}

// Wait blocks until jobID finishes or the monitor deadline passes. onPoll may be nil.
func (s *Service) Wait(ctx context.Context, jobID string, onPoll func(schemas.JobRecord)) jobs.MonitorResult {
	api, err := s.remote()
	if err != nil {
		return jobs.MonitorResult{Error: err.Error()}
	}
	m := jobs.NewMonitorFromConfig(api, s.registry, s.jobsCfg, s.logger)
	m.OnPoll = onPoll
	return m.Wait(ctx, jobID)
}

// -- Sessions, profiles and defaults --

func (s *Service) Session(id string) (schemas.Session, error) { return s.state.Session(id) }
func (s *Service) Sessions() []schemas.Session                { return s.state.Sessions() }

func (s *Service) SaveProfile(name, wallet string) error {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return &schemas.ValidationError{Field: "wallet_address", Reason: "wallet address is required"}
	}
	return s.state.SaveProfile(name, wallet)
}

func (s *Service) Profile(name string) (string, error)  { return s.state.Profile(name) }
func (s *Service) Profiles() []state.NamedWallet         { return s.state.Profiles() }
func (s *Service) DeleteProfile(name string) error       { return s.state.DeleteProfile(name) }
func (s *Service) Defaults() schemas.Defaults            { return s.state.Defaults() }
func (s *Service) Counts() (sessions, profiles int)      { return s.state.Counts() }
func (s *Service) SetDefaults(d schemas.Defaults) (schemas.Defaults, error) {
	return s.state.UpdateDefaults(d)
}

// IsNotFound reports whether err is a missing session or profile.
func IsNotFound(err error) bool {
	return errors.Is(err, state.ErrSessionNotFound) || errors.Is(err, state.ErrProfileNotFound)
}
