package jobs

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/config"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultTimeout      = 300 * time.Second

	// TimeoutReason is the MonitorResult error when the deadline passes first.
	TimeoutReason = "timeout"
)

// MonitorResult is what a caller-side wait produced.
type MonitorResult struct {
	Success bool                     `json:"success"`
	Result  *schemas.AutomationResult `json:"result,omitempty"`
	Record  schemas.JobRecord         `json:"record"`
	Error   string                    `json:"error,omitempty"`
}

// Monitor polls a job until it finishes or the deadline passes. Giving up does
// not cancel the remote job.
type Monitor struct {
	api      API
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	// OnPoll, when set, is called with every observed record.
	OnPoll func(schemas.JobRecord)
}

// NewMonitor builds a monitor; non-positive durations fall back to 5s / 300s.
func NewMonitor(api API, registry *Registry, interval, timeout time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Monitor{
		api:      api,
		registry: registry,
		interval: interval,
		timeout:  timeout,
		logger:   logger.Named("jobs_monitor"),
	}
}

// NewMonitorFromConfig uses the configured poll interval and timeout.
func NewMonitorFromConfig(api API, registry *Registry, cfg config.JobsConfig, logger *zap.Logger) *Monitor {
	return NewMonitor(api, registry, cfg.PollInterval, cfg.MonitorTimeout, logger)
}

// Wait polls jobID immediately and then every interval until it is terminal.
func (m *Monitor) Wait(ctx context.Context, jobID string) MonitorResult {
	waitCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var last schemas.JobRecord
	for {
		rec, err := m.api.PollStatus(waitCtx, jobID)
		switch {
		case err != nil && waitCtx.Err() == nil:
			m.logger.Warn("Status poll failed, will retry", zap.String("job_id", jobID), zap.Error(err))
		case err == nil:
			last = m.registry.Observe(rec)
			if m.OnPoll != nil {
				m.OnPoll(last)
			}
			if last.Status.Terminal() {
				return m.finish(waitCtx, last)
			}
		}

		select {
		case <-waitCtx.Done():
			return m.expired(ctx, waitCtx, jobID, last)
		case <-ticker.C:
		}
	}
}

func (m *Monitor) finish(ctx context.Context, rec schemas.JobRecord) MonitorResult {
	if rec.Status == schemas.JobFailed {
		return MonitorResult{Record: rec, Error: "job " + rec.ID + " failed (" + rec.RemoteStatus + ")"}
	}
	result, err := m.api.FetchOutput(ctx, rec.ID)
	if err != nil {
		return MonitorResult{Record: rec, Error: err.Error()}
	}
	return MonitorResult{Success: true, Result: &result, Record: rec}
}

func (m *Monitor) expired(parent, waitCtx context.Context, jobID string, last schemas.JobRecord) MonitorResult {
	if parent.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		m.logger.Warn("Gave up waiting for job", zap.String("job_id", jobID), zap.Duration("timeout", m.timeout))
		return MonitorResult{Record: last, Error: TimeoutReason}
	}
	return MonitorResult{Record: last, Error: parent.Err().Error()}
}
