package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/service"
)

// DefaultCommandTimeout bounds a single command line invocation.
const DefaultCommandTimeout = 300 * time.Second

var runIDPattern = regexp.MustCompile(`Run ID:\s*(\S+)`)

// ParseRunID extracts the id printed as "Run ID: <id>".
func ParseRunID(output string) (string, bool) {
	m := runIDPattern.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// CLIBackend drives the workflow by invoking the swapflow binary.
type CLIBackend struct {
	executable string
	baseArgs   []string
	timeout    time.Duration
	logger     *zap.Logger

	// command is exec.CommandContext outside of tests.
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewCLIBackend runs executable with baseArgs prepended to every invocation
// (for example a --config flag).
func NewCLIBackend(executable string, logger *zap.Logger, baseArgs ...string) *CLIBackend {
	return &CLIBackend{
		executable: executable,
		baseArgs:   baseArgs,
		timeout:    DefaultCommandTimeout,
		logger:     logger.Named("workflow_cli"),
		command:    exec.CommandContext,
	}
}

// CommandError is a failed invocation.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("command failed: %v: %s", e.Err, e.Stderr)
	}
	return fmt.Sprintf("command failed: %v", e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// run executes one command and returns its stdout.
func (b *CLIBackend) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	full := append(append([]string(nil), b.baseArgs...), args...)
	b.logger.Info("Running command", zap.String("executable", b.executable), zap.Strings("args", full))

	cmd := b.command(ctx, b.executable, full...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", err
	}
	if err := cmd.Start(); err != nil {
		return "", &CommandError{Args: full, Err: err}
	}

	var outBuf, errBuf bytes.Buffer
	var g errgroup.Group
	g.Go(func() error { _, err := io.Copy(&outBuf, stdout); return err })
	g.Go(func() error { _, err := io.Copy(&errBuf, stderr); return err })
	copyErr := g.Wait()
	waitErr := cmd.Wait()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return outBuf.String(), &CommandError{Args: full, Err: fmt.Errorf("command timed out after %s", b.timeout)}
	}
	if waitErr != nil {
		return outBuf.String(), &CommandError{Args: full, Stderr: strings.TrimSpace(errBuf.String()), Err: waitErr}
	}
	if copyErr != nil {
		return outBuf.String(), fmt.Errorf("failed to read command output: %w", copyErr)
	}
	return outBuf.String(), nil
}

func (b *CLIBackend) launch(ctx context.Context, async bool, args ...string) (Launch, error) {
	if async {
		args = append(args, "--async-run")
	}
	out, err := b.run(ctx, args...)
	if err != nil {
		return Launch{}, err
	}
	runID, found := ParseRunID(out)
	if async && !found {
		return Launch{}, errors.New("no run id in command output")
	}
	return Launch{RunID: runID, Completed: !async}, nil
}

func formatAmount(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func (b *CLIBackend) Setup(ctx context.Context, cfg Config) (Launch, error) {
	args := []string{"swap"}
	if cfg.Wallet != "" {
		args = append(args, "--wallet", cfg.Wallet)
	} else {
		args = append(args, "--profile", cfg.Profile)
	}
	if cfg.Amount > 0 {
		args = append(args, "--amount", formatAmount(cfg.Amount))
	}
	args = append(args, "--setup")
	return b.launch(ctx, cfg.Async, args...)
}

func (b *CLIBackend) Exchange(ctx context.Context, cfg Config) (Launch, error) {
	args := []string{"swap"}
	if cfg.Wallet != "" {
		args = append(args, "--wallet", cfg.Wallet)
	}
	if cfg.Amount > 0 {
		args = append(args, "--amount", formatAmount(cfg.Amount))
	}
	if cfg.FromCurrency != "" {
		args = append(args, "--from-currency", cfg.FromCurrency)
	}
	if cfg.ToCurrency != "" {
		args = append(args, "--to-currency", cfg.ToCurrency)
	}
	if cfg.Profile != "" {
		args = append(args, "--profile", cfg.Profile)
	}
	return b.launch(ctx, cfg.Async, args...)
}

func (b *CLIBackend) SaveProfile(ctx context.Context, name, wallet string) error {
	_, err := b.run(ctx, "profiles", "add", name, wallet)
	return err
}

// ServiceBackend drives the workflow through the in-process service facade,
// using the same operations the MCP tools expose.
type ServiceBackend struct {
	svc *service.Service
}

func NewServiceBackend(svc *service.Service) *ServiceBackend {
	return &ServiceBackend{svc: svc}
}

func (b *ServiceBackend) wallet(cfg Config) (string, error) {
	if cfg.Wallet != "" || cfg.Profile == "" {
		return cfg.Wallet, nil
	}
	return b.svc.Profile(cfg.Profile)
}

func (b *ServiceBackend) Setup(ctx context.Context, cfg Config) (Launch, error) {
	wallet, err := b.wallet(cfg)
	if err != nil {
		return Launch{}, err
	}
	runID, err := b.svc.SetupWallet(ctx, wallet, "")
	if err != nil {
		return Launch{}, err
	}
	return Launch{RunID: runID}, nil
}

func (b *ServiceBackend) Exchange(ctx context.Context, cfg Config) (Launch, error) {
	profile := ""
	if cfg.Wallet == "" {
		profile = cfg.Profile
	}
	req, err := b.svc.ResolveRequest(schemas.ExchangeRequest{
		WalletAddress: cfg.Wallet,
		Amount:        cfg.Amount,
		FromCurrency:  cfg.FromCurrency,
		ToCurrency:    cfg.ToCurrency,
	}, profile)
	if err != nil {
		return Launch{}, err
	}
	sess, err := b.svc.CreateSession(req)
	if err != nil {
		return Launch{}, fmt.Errorf("session creation failed: %w", err)
	}
	runID, err := b.svc.ExecuteSwap(ctx, sess.ID)
	if err != nil {
		return Launch{SessionID: sess.ID}, err
	}
	return Launch{RunID: runID, SessionID: sess.ID}, nil
}

func (b *ServiceBackend) SaveProfile(_ context.Context, name, wallet string) error {
	return b.svc.SaveProfile(name, wallet)
}
