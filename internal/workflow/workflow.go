// Package workflow composes setup, profile bookkeeping, exchange execution and
// completion monitoring into one run, driven either through the command line
// binary or through the in-process service facade.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/jobs"
)

// Via selects the backend a workflow drives.
type Via string

const (
	ViaCLI Via = "cli"
	ViaMCP Via = "mcp"
)

// Config describes one workflow run.
type Config struct {
	Wallet        string  `json:"wallet"`
	Amount        float64 `json:"amount"`
	FromCurrency  string  `json:"from"`
	ToCurrency    string  `json:"to"`
	Profile       string  `json:"profile,omitempty"`
	SetupRequired bool    `json:"setup_required"`
	Interactive   bool    `json:"interactive"`
	Via           Via     `json:"via"`
	Async         bool    `json:"async"`
	Monitor       bool    `json:"monitor"`
}

// Validate checks the combination of options.
func (c Config) Validate() error {
	if c.Via != ViaCLI && c.Via != ViaMCP {
		return fmt.Errorf("unknown backend %q (want cli or mcp)", c.Via)
	}
	if !c.Interactive && strings.TrimSpace(c.Wallet) == "" && c.Profile == "" {
		return errors.New("a wallet address or profile is required")
	}
	if c.Amount < 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

// Outcome is the result of a workflow run.
type Outcome struct {
	Success bool                      `json:"success"`
	Message string                    `json:"message,omitempty"`
	RunID   string                    `json:"run_id,omitempty"`
	Result  *schemas.AutomationResult `json:"result,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

// Launch describes a started or finished remote operation.
type Launch struct {
	RunID     string
	SessionID string
	// Completed is set when the backend already waited for the outcome.
	Completed bool
}

// Backend performs the individual workflow steps.
type Backend interface {
	Setup(ctx context.Context, cfg Config) (Launch, error)
	Exchange(ctx context.Context, cfg Config) (Launch, error)
	SaveProfile(ctx context.Context, name, wallet string) error
}

// Waiter blocks until a run finishes; *service.Service implements it.
type Waiter interface {
	Wait(ctx context.Context, jobID string, onPoll func(schemas.JobRecord)) jobs.MonitorResult
}

// Runner executes workflows against a backend.
type Runner struct {
	backend  Backend
	waiter   Waiter
	prompter Prompter
	out      io.Writer
	logger   *zap.Logger
}

// NewRunner builds a runner. waiter may be nil when monitoring is never
// requested; prompter may be nil when runs are never interactive.
func NewRunner(backend Backend, waiter Waiter, prompter Prompter, out io.Writer, logger *zap.Logger) *Runner {
	return &Runner{
		backend:  backend,
		waiter:   waiter,
		prompter: prompter,
		out:      out,
		logger:   logger.Named("workflow"),
	}
}

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
	warnMark = color.New(color.FgYellow).SprintFunc()
)

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

func (r *Runner) banner(cfg Config) {
	wallet := "Not set"
	if cfg.Wallet != "" {
		wallet = schemas.MaskWallet(cfg.Wallet)
	}
	mode := "Automated"
	if cfg.Interactive {
		mode = "Interactive"
	}
	line := strings.Repeat("=", 50)
	r.printf("Exchange workflow\n%s\n", line)
	r.printf("   Wallet:    %s\n", wallet)
	r.printf("   Amount:    $%g\n", cfg.Amount)
	r.printf("   Exchange:  %s -> %s\n", strings.ToUpper(cfg.FromCurrency), strings.ToUpper(cfg.ToCurrency))
	r.printf("   Interface: %s\n", strings.ToUpper(string(cfg.Via)))
	r.printf("   Mode:      %s\n%s\n", mode, line)
}

// Run executes the workflow described by cfg. It never returns an error; all
// failures are reported in the Outcome.
func (r *Runner) Run(ctx context.Context, cfg Config) Outcome {
	if err := cfg.Validate(); err != nil {
		return Outcome{Error: err.Error()}
	}
	r.banner(cfg)

	if cfg.Interactive {
		if r.prompter == nil {
			return Outcome{Error: "interactive mode needs a terminal"}
		}
		var err error
		if cfg.SetupRequired {
			cfg, err = r.askSetup(cfg)
		} else {
			cfg, err = r.askExchange(cfg)
		}
		if err != nil {
			return Outcome{Error: err.Error()}
		}
	}

	if cfg.Profile != "" && cfg.Wallet != "" {
		r.printf("Saving profile: %s\n", cfg.Profile)
		if err := r.backend.SaveProfile(ctx, cfg.Profile, cfg.Wallet); err != nil {
			r.logger.Warn("Failed to save profile", zap.String("profile", cfg.Profile), zap.Error(err))
			r.printf("%s Failed to save profile, continuing...\n", warnMark("!"))
		}
	}

	if cfg.SetupRequired {
		return r.setup(ctx, cfg)
	}
	return r.exchange(ctx, cfg)
}

func (r *Runner) setup(ctx context.Context, cfg Config) Outcome {
	r.printf("Setting up wallet address...\n")
	launch, err := r.backend.Setup(ctx, cfg)
	if err != nil {
		r.printf("%s Setup failed: %v\n", failMark("x"), err)
		return Outcome{Error: "Setup failed: " + err.Error()}
	}
	if launch.Completed || launch.RunID == "" {
		r.printf("%s Setup completed successfully\n", okMark("v"))
		return Outcome{Success: true, Message: "Setup completed", RunID: launch.RunID}
	}
	r.printf("%s Setup started: %s\n", okMark("v"), launch.RunID)
	if !cfg.Monitor {
		return Outcome{Success: true, Message: "Setup started", RunID: launch.RunID}
	}
	out := r.monitor(ctx, launch.RunID)
	if out.Success {
		out.Message = "Setup completed"
	}
	return out
}

func (r *Runner) exchange(ctx context.Context, cfg Config) Outcome {
	r.printf("Executing exchange...\n")
	launch, err := r.backend.Exchange(ctx, cfg)
	if err != nil {
		r.printf("%s Exchange failed: %v\n", failMark("x"), err)
		return Outcome{Error: "Exchange execution failed: " + err.Error()}
	}
	if launch.Completed {
		r.printf("%s Exchange completed\n", okMark("v"))
		return Outcome{Success: true, Message: "Exchange completed", RunID: launch.RunID}
	}
	r.printf("%s Exchange started: %s\n", okMark("v"), launch.RunID)
	if cfg.Monitor && launch.RunID != "" {
		return r.monitor(ctx, launch.RunID)
	}
	return Outcome{Success: true, Message: "Exchange execution started", RunID: launch.RunID}
}

// monitor waits for runID and translates the monitor result.
func (r *Runner) monitor(ctx context.Context, runID string) Outcome {
	if r.waiter == nil {
		return Outcome{RunID: runID, Error: "no run monitor configured"}
	}
	r.printf("Monitoring execution: %s\n", runID)
	res := r.waiter.Wait(ctx, runID, func(rec schemas.JobRecord) {
		r.printf("   Status: %s\n", rec.Status)
	})
	if !res.Success {
		r.printf("%s %s\n", failMark("x"), res.Error)
		return Outcome{RunID: runID, Error: res.Error}
	}

	out := Outcome{Success: true, RunID: runID, Result: res.Result}
	if res.Result != nil && res.Result.Status == schemas.ResultSuccess {
		r.printf("%s Exchange created!\n   Exchange ID: %s\n   Exchange URL: %s\n",
			okMark("v"), res.Result.ExchangeID, res.Result.ExchangeURL)
		out.Message = "Exchange created"
	} else if res.Result != nil {
		r.printf("%s Run finished with status %s: %s\n", warnMark("!"), res.Result.Status, res.Result.Error)
		out.Message = "Run finished"
	}
	return out
}

// -- Interactive mode --

func (r *Runner) askSetup(cfg Config) (Config, error) {
	wallet, err := r.prompter.Prompt("Wallet address", cfg.Wallet, validateWallet)
	if err != nil {
		return cfg, err
	}
	cfg.Wallet = strings.TrimSpace(wallet)

	save, err := r.prompter.Confirm("Save as profile")
	if err != nil {
		return cfg, err
	}
	if save {
		name, err := r.prompter.Prompt("Profile name", cfg.Profile, required("profile name"))
		if err != nil {
			return cfg, err
		}
		cfg.Profile = strings.TrimSpace(name)
	}
	return cfg, nil
}

func (r *Runner) askExchange(cfg Config) (Config, error) {
	amount, err := r.prompter.Prompt("Amount in USD", strconv.FormatFloat(cfg.Amount, 'f', -1, 64), validateAmount)
	if err != nil {
		return cfg, err
	}
	cfg.Amount, _ = strconv.ParseFloat(strings.TrimSpace(amount), 64)

	useProfile, err := r.prompter.Confirm("Use saved profile")
	if err != nil {
		return cfg, err
	}
	if useProfile {
		name, err := r.prompter.Prompt("Profile name", cfg.Profile, required("profile name"))
		if err != nil {
			return cfg, err
		}
		cfg.Profile = strings.TrimSpace(name)
		return cfg, nil
	}
	if cfg.Wallet == "" {
		wallet, err := r.prompter.Prompt("Wallet address", "", validateWallet)
		if err != nil {
			return cfg, err
		}
		cfg.Wallet = strings.TrimSpace(wallet)
	}
	return cfg, nil
}

func validateWallet(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || !strings.HasPrefix(s, "0x") {
		return errors.New("invalid wallet address")
	}
	return nil
}

func validateAmount(s string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 {
		return errors.New("invalid amount")
	}
	return nil
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s required", what)
		}
		return nil
	}
}
