package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/browser/stealth"
	"github.com/xkilldash9x/swapflow/internal/config"
)

const defaultLaunchTimeout = 60 * time.Second

// Factory opens stealth browser sessions. Each session owns its own browser
// process; nothing is shared between runs.
type Factory struct {
	cfg     config.BrowserConfig
	persona stealth.Persona
	logger  *zap.Logger
}

// NewFactory builds a factory for the configured browser and persona.
func NewFactory(cfg config.BrowserConfig, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:     cfg,
		persona: stealth.PersonaFromConfig(cfg),
		logger:  logger.Named("browser"),
	}
}

// allocatorFlags returns the command-line switches layered over chromedp's
// defaults. enable-automation is switched off and the blink feature that exposes
// navigator.webdriver is disabled.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"enable-automation":      false,
		"disable-blink-features": "AutomationControlled",
		"no-sandbox":             true,
		"disable-dev-shm-usage":  true,
		"disable-setuid-sandbox": true,
		"headless":               cfg.Headless,
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", cfg.Viewport.Width, cfg.Viewport.Height)
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimPrefix(arg, "--")
		if key, value, found := strings.Cut(arg, "="); found {
			flags[key] = value
			continue
		}
		flags[arg] = true
	}
	return flags
}

// AllocatorOptions translates the browser config into chromedp allocator options.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// Open launches a browser, applies the stealth persona and, when a profile is
// given, replays its cookies and storage before the first navigation.
func (f *Factory) Open(ctx context.Context, profile *schemas.BrowserProfile) (*Session, error) {
	persona := f.persona
	if profile != nil && profile.UserAgent != "" {
		persona.UserAgent = profile.UserAgent
	}

	// The browser must not die with the caller's deadline; teardown is explicit.
	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), AllocatorOptions(f.cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(f.logger.Sugar().Debugf))

	s := &Session{
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		userAgent:   persona.UserAgent,
		logger:      f.logger,
	}

	if err := f.launch(ctx, tabCtx); err != nil {
		s.Close()
		return nil, err
	}

	tasks := chromedp.Tasks{network.Enable()}
	tasks = append(tasks, stealth.Apply(persona, f.logger)...)
	if profile != nil {
		tasks = append(tasks, seedProfile(profile)...)
	}
	if err := s.run(ctx, tasks); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to prepare browser session: %w", err)
	}

	f.logger.Debug("Browser session opened",
		zap.Bool("profile", profile != nil),
		zap.Int("cookies", cookieCount(profile)),
	)
	return s, nil
}

// launch allocates the browser on the tab context itself, so the process is
// bound to the session rather than to the launch deadline.
func (f *Factory) launch(ctx context.Context, tabCtx context.Context) error {
	timeout := f.cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = defaultLaunchTimeout
	}
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tabCtx) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to launch browser: %w", err)
		}
		return nil
	case <-timer.C:
		return errors.New("timed out launching browser")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func seedProfile(profile *schemas.BrowserProfile) chromedp.Tasks {
	var tasks chromedp.Tasks
	if params := cookieParams(profile.Cookies); len(params) > 0 {
		tasks = append(tasks, network.SetCookies(params))
	}
	tasks = append(tasks, stealth.SeedStorage(profile.LocalStorage, profile.SessionStorage))
	return tasks
}

func cookieParams(cookies []schemas.Cookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if p.Path == "" {
			p.Path = "/"
		}
		if c.Expires > 0 {
			sec := int64(c.Expires)
			nsec := int64((c.Expires - float64(sec)) * float64(time.Second))
			exp := cdp.TimeSinceEpoch(time.Unix(sec, nsec))
			p.Expires = &exp
		}
		switch strings.ToLower(c.SameSite) {
		case "strict":
			p.SameSite = network.CookieSameSiteStrict
		case "lax":
			p.SameSite = network.CookieSameSiteLax
		case "none":
			p.SameSite = network.CookieSameSiteNone
		}
		params = append(params, p)
	}
	return params
}

func fromNetworkCookies(cookies []*network.Cookie) []schemas.Cookie {
	out := make([]schemas.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		cookie := schemas.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		}
		// Session cookies report -1.
		if c.Expires > 0 {
			cookie.Expires = c.Expires
		}
		out = append(out, cookie)
	}
	return out
}

func cookieCount(p *schemas.BrowserProfile) int {
	if p == nil {
		return 0
	}
	return len(p.Cookies)
}
