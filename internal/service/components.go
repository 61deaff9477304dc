// File: internal/service/components.go
package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/browser"
	"github.com/xkilldash9x/swapflow/internal/config"
	"github.com/xkilldash9x/swapflow/internal/history"
	"github.com/xkilldash9x/swapflow/internal/jobs"
	"github.com/xkilldash9x/swapflow/internal/orchestrator"
	"github.com/xkilldash9x/swapflow/internal/profile"
	"github.com/xkilldash9x/swapflow/internal/state"
)

// Components holds the initialized dependencies of a command and centralizes
// their lifecycle.
type Components struct {
	Config  config.Interface
	Logger  *zap.Logger
	State   *state.Store
	Service *Service
	History *history.Store

	profiles     profile.Store
	historyClose func()
}

// DefaultsFromConfig converts the config defaults section.
func DefaultsFromConfig(cfg config.DefaultsConfig) schemas.Defaults {
	return schemas.Defaults{
		WalletAddress: cfg.Wallet,
		Amount:        cfg.Amount,
		FromCurrency:  cfg.FromCurrency,
		ToCurrency:    cfg.ToCurrency,
	}
}

// NewComponents opens the state file and builds the job client and service. A
// missing job service token is not fatal here; remote calls report it later.
func NewComponents(cfg config.Interface, logger *zap.Logger) (*Components, error) {
	st, err := state.Open(config.ExpandPath(cfg.State().File), DefaultsFromConfig(cfg.Defaults()), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state: %w", err)
	}

	var api jobs.API
	client, err := jobs.NewClient(cfg.Jobs(), logger)
	switch {
	case errors.Is(err, jobs.ErrMissingToken):
		logger.Debug("No job service token configured; remote operations are disabled.")
	case err != nil:
		return nil, fmt.Errorf("failed to create job client: %w", err)
	default:
		api = client
	}

	return &Components{
		Config:  cfg,
		Logger:  logger,
		State:   st,
		Service: New(st, api, cfg.Jobs(), logger),
	}, nil
}

// EnableHistory connects the result archive when a database URL is configured.
func (c *Components) EnableHistory(ctx context.Context) error {
	if c.History != nil || c.Config.Database().URL == "" {
		return nil
	}
	store, closeFn, err := history.Connect(ctx, c.Config.Database().URL, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize result history: %w", err)
	}
	c.History = store
	c.historyClose = closeFn
	c.Logger.Debug("Result history initialized.")
	return nil
}

// NewRunner builds an orchestrator for local runs. Results go to sinks and, when
// enabled, to the history archive.
func (c *Components) NewRunner(sinks ...orchestrator.ResultSink) (*orchestrator.Orchestrator, error) {
	if c.profiles == nil {
		store, err := profile.New(c.Config.Profile(), c.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize profile store: %w", err)
		}
		c.profiles = store
	}
	if c.History != nil {
		sinks = append(sinks, orchestrator.SinkFunc(c.History.Record))
	}
	factory := orchestrator.BrowserFactory{Factory: browser.NewFactory(c.Config.Browser(), c.Logger)}
	orch, err := orchestrator.New(c.Config, c.Logger, factory, c.profiles, orchestrator.WithSinks(sinks...))
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	return orch, nil
}

// Shutdown releases connections in reverse order of creation.
func (c *Components) Shutdown() {
	if closer, ok := c.profiles.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.Logger.Warn("Error closing profile store.", zap.Error(err))
		}
	}
	if c.historyClose != nil {
		c.historyClose()
		c.Logger.Debug("Database connection pool closed.")
	}
}
