// Package exchange drives the exchange page through its interaction flow as an
// explicit state machine.
package exchange

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/config"
)

// ReasonNoRedirect is the failure reason when the submit did not land on an
// exchange page.
const ReasonNoRedirect = "No redirect to exchange page"

const defaultDialogTimeout = 5 * time.Second

// Page is the browser surface the flow needs.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Scroll(ctx context.Context, pixels int) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	Clear(ctx context.Context, selector string) error
	PressTab(ctx context.Context) error
	Enabled(ctx context.Context, selector string) (bool, error)
	ForceClick(ctx context.Context, selector string) (bool, error)
	ClickText(ctx context.Context, text string) (bool, error)
	SelectOption(ctx context.Context, selector, text string) (bool, error)
	URL(ctx context.Context) (string, error)
}

// Options configure a Machine.
type Options struct {
	BaseURL      string
	PrefixLength int
	Selectors    config.SelectorConfig
	Timings      Timings
	// Sleep defaults to ContextSleep.
	Sleep Sleeper
}

// OptionsFromConfig maps the exchange section of the config.
func OptionsFromConfig(cfg config.ExchangeConfig) Options {
	return Options{
		BaseURL:      cfg.BaseURL,
		PrefixLength: cfg.PrefixLength,
		Selectors:    cfg.Selectors,
		Timings:      TimingsFromConfig(cfg.Timings),
	}
}

// StepReport records one tolerated sub-step.
type StepReport struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Outcome is what a run of the machine produced.
type Outcome struct {
	State          State
	ExchangeID     string
	ExchangeURL    string
	CurrentURL     string
	Reason         string
	Trace          []State
	Steps          []StepReport
	SubmitEnabled  bool
	AddressChosen  bool
	PrefixFallback bool
}

type transition func(ctx context.Context) (State, error)

// Machine runs one interaction flow against one Page.
type Machine struct {
	page   Page
	req    schemas.ExchangeRequest
	opts   Options
	logger *zap.Logger

	transitions map[State]transition
	out         Outcome
}

// New builds a machine for req. The page must not be shared with another machine.
func New(page Page, req schemas.ExchangeRequest, opts Options, logger *zap.Logger) *Machine {
	if opts.Sleep == nil {
		opts.Sleep = ContextSleep
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Machine{
		page:   page,
		req:    req,
		opts:   opts,
		logger: logger.Named("exchange").With(zap.String("mode", string(req.Mode()))),
	}
	m.transitions = map[State]transition{
		StateInit:           m.load,
		StateLoaded:         m.enterAddress,
		StateAddressEntered: m.validate,
		StateValidated:      m.submit,
		StateSubmitting:     m.classify,
	}
	return m
}

// Run drives the flow from the start until a terminal state.
func (m *Machine) Run(ctx context.Context) Outcome {
	return m.RunFrom(ctx, StateInit)
}

// RunFrom drives the flow starting at state. Any error or panic in a transition
// ends the run in StateErrored with the raw error text.
func (m *Machine) RunFrom(ctx context.Context, state State) Outcome {
	m.out = Outcome{Trace: []State{state}}
	for !state.Terminal() {
		var next State
		if step, ok := m.transitions[state]; !ok {
			next = StateErrored
			m.out.Reason = fmt.Sprintf("no transition from state %s", state)
		} else if n, err := m.safeStep(ctx, state, step); err != nil {
			m.logger.Warn("Interaction step errored", zap.Stringer("state", state), zap.Error(err))
			next = StateErrored
			m.out.Reason = err.Error()
		} else {
			next = n
		}
		m.logger.Debug("State transition", zap.Stringer("from", state), zap.Stringer("to", next))
		state = next
		m.out.Trace = append(m.out.Trace, state)
	}
	m.out.State = state
	if state != StateSucceeded {
		m.out.ExchangeID, m.out.ExchangeURL = "", ""
	}
	return m.out
}

func (m *Machine) safeStep(ctx context.Context, state State, step transition) (next State, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Panic during interaction step",
				zap.Stringer("state", state),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic in state %s: %v", state, r)
		}
	}()
	return step(ctx)
}

func (m *Machine) sleep(ctx context.Context, d DelayRange) error {
	return m.opts.Sleep(ctx, d.Pick())
}

// load navigates to the exchange URL and pauses like a reader would.
func (m *Machine) load(ctx context.Context) (State, error) {
	target := BuildExchangeURL(m.opts.BaseURL, m.req)
	navCtx := ctx
	if t := m.opts.Timings.Navigation; t > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	m.logger.Info("Navigating to exchange page", zap.String("url", target))
	if err := m.page.Navigate(navCtx, target); err != nil {
		return StateErrored, &InteractionError{Step: "navigate", Err: err}
	}
	if err := m.sleep(ctx, m.opts.Timings.Settle); err != nil {
		return StateErrored, err
	}
	if err := m.page.Scroll(ctx, m.opts.Timings.scrollPixels()); err != nil {
		m.logger.Debug("Scroll failed", zap.Error(err))
	}
	if err := m.sleep(ctx, m.opts.Timings.Scroll); err != nil {
		return StateErrored, err
	}
	return StateLoaded, nil
}

func (m *Machine) enterAddress(ctx context.Context) (State, error) {
	if m.req.Mode() == schemas.ModeSetup {
		return m.enterSetup(ctx)
	}
	return m.enterAutomation(ctx)
}

// attempt runs a tolerated sub-step. Only cancellation of ctx is propagated.
func (m *Machine) attempt(ctx context.Context, name string, fn func(context.Context) error) (bool, error) {
	err := fn(ctx)
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	report := StepReport{Name: name, OK: err == nil}
	if err != nil {
		report.Error = err.Error()
		m.logger.Info("Setup step not confirmed", zap.String("step", name), zap.Error(err))
	}
	m.out.Steps = append(m.out.Steps, report)
	return report.OK, nil
}

// enterSetup registers the address with the page. Every sub-step may fail on
// its own; the flow continues as "attempted, unconfirmed".
func (m *Machine) enterSetup(ctx context.Context) (State, error) {
	sel := m.opts.Selectors
	wallet := m.req.WalletAddress

	if _, err := m.attempt(ctx, "fill_address", func(ctx context.Context) error {
		if err := m.page.WaitVisible(ctx, sel.AddressInput, m.opts.Timings.ElementTimeout); err != nil {
			return &InteractionError{Step: "fill_address", Selector: sel.AddressInput, Err: err}
		}
		if err := m.page.Click(ctx, sel.AddressInput); err != nil {
			return &InteractionError{Step: "fill_address", Selector: sel.AddressInput, Err: err}
		}
		return m.fillText(ctx, sel.AddressInput, wallet)
	}); err != nil {
		return StateErrored, err
	}
	if err := m.sleep(ctx, m.opts.Timings.AfterFill); err != nil {
		return StateErrored, err
	}

	if sel.AddNewAddressText != "" {
		if _, err := m.attempt(ctx, "add_new_address", func(ctx context.Context) error {
			return m.clickText(ctx, "add_new_address", sel.AddNewAddressText)
		}); err != nil {
			return StateErrored, err
		}
	}

	if sel.DialogInput != "" {
		if _, err := m.attempt(ctx, "fill_dialog", func(ctx context.Context) error {
			if err := m.page.WaitVisible(ctx, sel.DialogInput, m.dialogTimeout()); err != nil {
				return &InteractionError{Step: "fill_dialog", Selector: sel.DialogInput, Err: err}
			}
			return m.fillText(ctx, sel.DialogInput, wallet)
		}); err != nil {
			return StateErrored, err
		}
	}

	if sel.DialogConfirmText != "" {
		if _, err := m.attempt(ctx, "confirm_dialog", func(ctx context.Context) error {
			return m.clickText(ctx, "confirm_dialog", sel.DialogConfirmText)
		}); err != nil {
			return StateErrored, err
		}
	}
	return StateAddressEntered, nil
}

// enterAutomation picks the previously registered address from the field's
// suggestion list, falling back once to typing a prefix.
func (m *Machine) enterAutomation(ctx context.Context) (State, error) {
	sel := m.opts.Selectors
	wallet := m.req.WalletAddress

	if err := m.page.WaitVisible(ctx, sel.AddressInput, m.opts.Timings.ElementTimeout); err != nil {
		if ctx.Err() != nil {
			return StateErrored, ctx.Err()
		}
		m.out.Reason = (&InteractionError{Step: "address_input", Selector: sel.AddressInput, Err: err}).Error()
		return StateFailed, nil
	}
	if err := m.page.Click(ctx, sel.AddressInput); err != nil {
		if ctx.Err() != nil {
			return StateErrored, ctx.Err()
		}
		m.out.Reason = (&InteractionError{Step: "open_suggestions", Selector: sel.AddressInput, Err: err}).Error()
		return StateFailed, nil
	}
	if err := m.sleep(ctx, m.opts.Timings.AfterFill); err != nil {
		return StateErrored, err
	}

	found, err := m.page.SelectOption(ctx, sel.AddressOption, wallet)
	if err != nil {
		return StateErrored, fmt.Errorf("failed to search address suggestions: %w", err)
	}
	if !found {
		m.out.PrefixFallback = true
		prefix := wallet[:min(max(m.opts.PrefixLength, 1), len(wallet))]
		m.logger.Info("Saved address not listed, typing prefix", zap.String("prefix", prefix))
		if err := m.fillText(ctx, sel.AddressInput, prefix); err != nil {
			return StateErrored, err
		}
		if err := m.sleep(ctx, m.opts.Timings.AfterFill); err != nil {
			return StateErrored, err
		}
		found, err = m.page.SelectOption(ctx, sel.AddressOption, wallet)
		if err != nil {
			return StateErrored, fmt.Errorf("failed to search address suggestions: %w", err)
		}
	}
	if !found {
		m.out.Reason = fmt.Sprintf("saved address %s not found in suggestions; run setup first", schemas.MaskWallet(wallet))
		return StateFailed, nil
	}
	m.out.AddressChosen = true
	return StateAddressEntered, nil
}

// validate moves focus so the page validates the address, then waits for the
// submit button. A button that never reports enabled is not fatal.
func (m *Machine) validate(ctx context.Context) (State, error) {
	if err := m.page.PressTab(ctx); err != nil {
		return StateErrored, &InteractionError{Step: "tab", Err: err}
	}
	if err := m.sleep(ctx, m.opts.Timings.AfterTab); err != nil {
		return StateErrored, err
	}

	enabled, err := m.waitEnabled(ctx)
	if err != nil {
		return StateErrored, err
	}
	m.out.SubmitEnabled = enabled
	if !enabled {
		m.logger.Warn("Submit button did not report enabled, submitting anyway",
			zap.Duration("timeout", m.opts.Timings.EnableTimeout))
	}
	return StateValidated, nil
}

func (m *Machine) waitEnabled(ctx context.Context) (bool, error) {
	polls := m.opts.Timings.enablePolls()
	for i := 0; i < polls; i++ {
		enabled, err := m.page.Enabled(ctx, m.opts.Selectors.SubmitButton)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			m.logger.Debug("Enabled check failed", zap.Error(err))
		}
		if enabled {
			return true, nil
		}
		if i < polls-1 {
			if err := m.opts.Sleep(ctx, m.opts.Timings.EnablePollInterval); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

// submit force-clicks the submit button, by selector first and by text second.
func (m *Machine) submit(ctx context.Context) (State, error) {
	if err := m.sleep(ctx, m.opts.Timings.PreSubmit); err != nil {
		return StateErrored, err
	}
	sel := m.opts.Selectors
	clicked, err := m.page.ForceClick(ctx, sel.SubmitButton)
	if err != nil {
		m.logger.Debug("Force click by selector failed", zap.Error(err))
	}
	if !clicked && sel.SubmitText != "" {
		if clicked, err = m.page.ClickText(ctx, sel.SubmitText); err != nil {
			m.logger.Debug("Force click by text failed", zap.Error(err))
		}
	}
	if !clicked {
		if err == nil {
			err = ErrElementNotFound
		}
		return StateErrored, &InteractionError{Step: "submit", Selector: sel.SubmitButton, Err: err}
	}
	m.logger.Info("Exchange submitted")
	return StateSubmitting, nil
}

// classify decides the outcome from the URL alone.
func (m *Machine) classify(ctx context.Context) (State, error) {
	if err := m.opts.Sleep(ctx, m.opts.Timings.SubmitSettle); err != nil {
		return StateErrored, err
	}
	current, err := m.page.URL(ctx)
	if err != nil {
		return StateErrored, &InteractionError{Step: "read_url", Err: err}
	}
	m.out.CurrentURL = current
	if id, ok := ExtractExchangeID(current); ok {
		m.out.ExchangeID = id
		m.out.ExchangeURL = current
		m.logger.Info("Exchange created", zap.String("exchange_id", id))
		return StateSucceeded, nil
	}
	m.out.Reason = ReasonNoRedirect
	return StateFailed, nil
}

// fillText replaces the field's contents with text, typed key by key.
func (m *Machine) fillText(ctx context.Context, selector, text string) error {
	if err := m.page.Clear(ctx, selector); err != nil {
		return &InteractionError{Step: "clear", Selector: selector, Err: err}
	}
	return m.typeText(ctx, selector, text)
}

// typeText sends text one rune at a time with a keystroke pause in between.
func (m *Machine) typeText(ctx context.Context, selector, text string) error {
	for _, r := range text {
		if err := m.page.Type(ctx, selector, string(r)); err != nil {
			return &InteractionError{Step: "type", Selector: selector, Err: err}
		}
		if err := m.sleep(ctx, m.opts.Timings.Keystroke); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) clickText(ctx context.Context, step, text string) error {
	ok, err := m.page.ClickText(ctx, text)
	if err != nil {
		return &InteractionError{Step: step, Selector: text, Err: err}
	}
	if !ok {
		return &InteractionError{Step: step, Selector: text, Err: ErrElementNotFound}
	}
	return nil
}

func (m *Machine) dialogTimeout() time.Duration {
	t := m.opts.Timings.ElementTimeout
	if t <= 0 || t > defaultDialogTimeout {
		return defaultDialogTimeout
	}
	return t
}
