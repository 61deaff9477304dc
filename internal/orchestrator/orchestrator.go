// File: internal/orchestrator/orchestrator.go
// Description: Runs one exchange automation end to end. It is injected with the
// session factory and profile store via interfaces, so it can be driven by fakes.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/browser"
	"github.com/xkilldash9x/swapflow/internal/config"
	"github.com/xkilldash9x/swapflow/internal/exchange"
	"github.com/xkilldash9x/swapflow/internal/fsutil"
	"github.com/xkilldash9x/swapflow/internal/profile"
)

// ReasonNoProfile is the failure reason for an automation run with nothing to replay.
const ReasonNoProfile = "no saved profile for this identity; run setup first"

const persistTimeout = 15 * time.Second

// Session is an open browser session the state machine can drive.
type Session interface {
	exchange.Page
	Snapshot(ctx context.Context) (*schemas.BrowserProfile, error)
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}

// SessionFactory opens a session seeded with profile (nil for a fresh identity).
type SessionFactory interface {
	Open(ctx context.Context, profile *schemas.BrowserProfile) (Session, error)
}

// BrowserFactory adapts *browser.Factory to SessionFactory.
type BrowserFactory struct {
	*browser.Factory
}

func (b BrowserFactory) Open(ctx context.Context, p *schemas.BrowserProfile) (Session, error) {
	s, err := b.Factory.Open(ctx, p)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithSinks registers result sinks, called in order after every run.
func WithSinks(sinks ...ResultSink) Option {
	return func(o *Orchestrator) { o.sinks = append(o.sinks, sinks...) }
}

// WithSleeper replaces the delay implementation of the state machine.
func WithSleeper(sleep exchange.Sleeper) Option {
	return func(o *Orchestrator) { o.machineOpts.Sleep = sleep }
}

// Orchestrator owns the lifecycle of a single automation run.
type Orchestrator struct {
	sessions    SessionFactory
	profiles    profile.Store
	profileName string
	machineOpts exchange.Options
	diagnostics config.DiagnosticsConfig
	sinks       []ResultSink
	logger      *zap.Logger
}

// New creates an Orchestrator. All dependencies are required.
func New(
	cfg config.Interface,
	logger *zap.Logger,
	sessions SessionFactory,
	profiles profile.Store,
	opts ...Option,
) (*Orchestrator, error) {
	if cfg == nil ||
		logger == nil ||
		sessions == nil ||
		profiles == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	name := cfg.Profile().Name
	if name == "" {
		name = "default"
	}
	o := &Orchestrator{
		sessions:    sessions,
		profiles:    profiles,
		profileName: name,
		machineOpts: exchange.OptionsFromConfig(cfg.Exchange()),
		diagnostics: cfg.Exchange().Diagnostics,
		logger:      logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run executes req and returns its result. It never returns an error and never
// panics: every failure is folded into the result's status.
func (o *Orchestrator) Run(ctx context.Context, req schemas.ExchangeRequest) (res schemas.AutomationResult) {
	req.WalletAddress = strings.TrimSpace(req.WalletAddress)
	runID := uuid.NewString()
	log := o.logger.With(
		zap.String("run_id", runID),
		zap.String("mode", string(req.Mode())),
		zap.String("wallet", schemas.MaskWallet(req.WalletAddress)),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic during run", zap.Any("panic", r), zap.Stack("stack"))
			res = schemas.Errored(req, fmt.Errorf("unexpected panic: %v", r))
		}
		o.publish(ctx, res, log)
	}()

	res = o.run(ctx, runID, req, log)
	log.Info("Run finished",
		zap.String("status", string(res.Status)),
		zap.String("final_state", res.FinalState),
		zap.String("exchange_id", res.ExchangeID),
	)
	return res
}

func (o *Orchestrator) run(ctx context.Context, runID string, req schemas.ExchangeRequest, log *zap.Logger) schemas.AutomationResult {
	if err := req.Validate(); err != nil {
		log.Warn("Rejected invalid request", zap.Error(err))
		return schemas.Errored(req, err)
	}
	if !common.IsHexAddress(req.WalletAddress) {
		log.Warn("Wallet does not look like a 20-byte hex address; continuing")
	}

	mode := req.Mode()
	stored, found := o.profiles.Load(ctx, o.profileName)
	if mode == schemas.ModeAutomation && !found {
		log.Info("No saved profile, refusing automation run", zap.String("profile", o.profileName))
		return schemas.Failed(req, ReasonNoProfile)
	}
	var seed *schemas.BrowserProfile
	if found {
		seed = stored.Clone()
	}

	session, err := o.sessions.Open(ctx, seed)
	if err != nil {
		return schemas.Errored(req, fmt.Errorf("failed to open browser session: %w", err))
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("Failed to close browser session", zap.Error(err))
		}
	}()

	outcome := exchange.New(session, req, o.machineOpts, log).Run(ctx)
	res := toResult(req, outcome)

	if res.Status != schemas.ResultSuccess && o.diagnostics.Enabled {
		res.Diagnostics = o.captureDiagnostics(ctx, session, runID, outcome.State, log)
	}
	if mode == schemas.ModeSetup || outcome.State == exchange.StateSucceeded {
		o.persistProfile(ctx, session, req, seed, log)
	}
	return res
}

func toResult(req schemas.ExchangeRequest, outcome exchange.Outcome) schemas.AutomationResult {
	var res schemas.AutomationResult
	switch outcome.State {
	case exchange.StateSucceeded:
		res = schemas.Succeeded(req, outcome.ExchangeID, outcome.ExchangeURL)
	case exchange.StateFailed:
		res = schemas.Failed(req, outcome.Reason)
	default:
		res = schemas.Errored(req, errors.New(outcome.Reason))
	}
	res.CurrentURL = outcome.CurrentURL
	res.FinalState = outcome.State.String()
	return res
}

// persistProfile snapshots the live session. A setup run always writes something,
// falling back to the seed when the snapshot cannot be taken.
func (o *Orchestrator) persistProfile(ctx context.Context, session Session, req schemas.ExchangeRequest, seed *schemas.BrowserProfile, log *zap.Logger) {
	snapCtx, cancel := context.WithTimeout(browser.Detach(ctx), persistTimeout)
	defer cancel()

	snap, err := session.Snapshot(snapCtx)
	if err != nil || snap == nil {
		log.Warn("Could not snapshot browser state, saving last known profile", zap.Error(err))
		snap = seed.Clone()
		if snap == nil {
			snap = &schemas.BrowserProfile{}
		}
	}
	snap.WalletAddress = req.WalletAddress
	o.profiles.Save(snapCtx, o.profileName, snap)
	log.Info("Profile saved",
		zap.String("profile", o.profileName),
		zap.Int("cookies", len(snap.Cookies)),
		zap.Int("local_storage_keys", len(snap.LocalStorage)),
	)
}

// captureDiagnostics writes a screenshot and the page HTML. Each half is best effort.
func (o *Orchestrator) captureDiagnostics(ctx context.Context, session Session, runID string, state exchange.State, log *zap.Logger) *schemas.Diagnostics {
	capCtx, cancel := context.WithTimeout(browser.Detach(ctx), persistTimeout)
	defer cancel()

	dir := config.ExpandPath(o.diagnostics.Dir)
	stem := filepath.Join(dir, fmt.Sprintf("%s_%s", runID, state))
	diag := &schemas.Diagnostics{}

	if shot, err := session.Screenshot(capCtx); err != nil {
		log.Warn("Diagnostic screenshot failed", zap.Error(err))
	} else if err := fsutil.WriteFileAtomic(stem+".png", shot, 0o644); err != nil {
		log.Warn("Failed to write diagnostic screenshot", zap.Error(err))
	} else {
		diag.ScreenshotPath = stem + ".png"
	}

	if html, err := session.HTML(capCtx); err != nil {
		log.Warn("Diagnostic HTML capture failed", zap.Error(err))
	} else if err := fsutil.WriteFileAtomic(stem+".html", []byte(html), 0o644); err != nil {
		log.Warn("Failed to write diagnostic HTML", zap.Error(err))
	} else {
		diag.HTMLPath = stem + ".html"
	}

	if diag.ScreenshotPath == "" && diag.HTMLPath == "" {
		return nil
	}
	return diag
}

func (o *Orchestrator) publish(ctx context.Context, res schemas.AutomationResult, log *zap.Logger) {
	pubCtx := browser.Detach(ctx)
	for _, sink := range o.sinks {
		if err := o.safePublish(pubCtx, sink, res); err != nil {
			log.Error("Result sink failed", zap.Error(err))
		}
	}
}

func (o *Orchestrator) safePublish(ctx context.Context, sink ResultSink, res schemas.AutomationResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return sink.Publish(ctx, res)
}
