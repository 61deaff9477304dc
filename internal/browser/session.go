package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
)

// Session is one browser tab driven by a single interaction flow. It is not
// safe to share between flows.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	userAgent   string
	logger      *zap.Logger

	mu     sync.Mutex
	closed bool
}

// run executes actions bounded by both the tab lifetime and the caller's ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the body to be ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Scroll moves the viewport down by pixels.
func (s *Session) Scroll(ctx context.Context, pixels int) error {
	return s.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", pixels), nil))
}

// WaitVisible blocks until selector is visible or timeout elapses.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Click performs a native click on the first visible match.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// Type focuses selector and sends text as key events.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	return s.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

// Clear empties the value of the field matched by selector.
func (s *Session) Clear(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.SetValue(selector, "", chromedp.ByQuery))
}

// PressTab moves focus, which is what triggers the page's own validation.
func (s *Session) PressTab(ctx context.Context) error {
	return s.run(ctx, chromedp.KeyEvent(kb.Tab))
}

// Enabled reports whether selector exists and is not disabled.
func (s *Session) Enabled(ctx context.Context, selector string) (bool, error) {
	var enabled bool
	expr := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  return !!el && !el.disabled && el.getAttribute('aria-disabled') !== 'true';
})()`, jsString(selector))
	err := s.run(ctx, chromedp.Evaluate(expr, &enabled))
	return enabled, err
}

// ForceClick dispatches a DOM click on selector, bypassing pointer-event checks.
func (s *Session) ForceClick(ctx context.Context, selector string) (bool, error) {
	var clicked bool
	expr := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) { return false; }
  el.removeAttribute('disabled');
  el.click();
  return true;
})()`, jsString(selector))
	err := s.run(ctx, chromedp.Evaluate(expr, &clicked))
	return clicked, err
}

// ClickText force-clicks the first button, link or option whose text contains
// text, case-insensitively.
func (s *Session) ClickText(ctx context.Context, text string) (bool, error) {
	var clicked bool
	expr := fmt.Sprintf(`(() => {
  const needle = %s.toLowerCase();
  const nodes = document.querySelectorAll('button, a, [role="button"], [role="option"], li, span, div');
  for (const el of nodes) {
    const t = (el.innerText || el.textContent || '').trim().toLowerCase();
    if (t && t.includes(needle) && el.children.length <= 2) {
      el.click();
      return true;
    }
  }
  return false;
})()`, jsString(text))
	err := s.run(ctx, chromedp.Evaluate(expr, &clicked))
	return clicked, err
}

// SelectOption clicks the first element matching selector whose text contains
// the exact text. It reports false when no such element is present.
func (s *Session) SelectOption(ctx context.Context, selector, text string) (bool, error) {
	var selected bool
	expr := fmt.Sprintf(`(() => {
  const needle = %s;
  for (const el of document.querySelectorAll(%s)) {
    if ((el.innerText || el.textContent || '').includes(needle)) {
      el.click();
      return true;
    }
  }
  return false;
})()`, jsString(text), jsString(selector))
	err := s.run(ctx, chromedp.Evaluate(expr, &selected))
	return selected, err
}

// URL returns the current document location.
func (s *Session) URL(ctx context.Context) (string, error) {
	var url string
	err := s.run(ctx, chromedp.Location(&url))
	return url, err
}

// Screenshot captures the full page as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.FullScreenshot(&buf, 100))
	return buf, err
}

// HTML returns the serialized document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

const storageDumpJS = `(() => {
  const items = {};
  try {
    const s = window[%q];
    for (let i = 0; i < s.length; i++) {
      const k = s.key(i);
      if (k !== null) { items[k] = s.getItem(k); }
    }
  } catch (e) {}
  return items;
})()`

// Snapshot captures cookies and storage so the identity can be replayed later.
func (s *Session) Snapshot(ctx context.Context) (*schemas.BrowserProfile, error) {
	var cookies []*network.Cookie
	profile := &schemas.BrowserProfile{
		LocalStorage:   map[string]string{},
		SessionStorage: map[string]string{},
		UserAgent:      s.userAgent,
	}

	err := s.run(ctx,
		chromedp.ActionFunc(func(c context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(c)
			return err
		}),
		chromedp.Evaluate(fmt.Sprintf(storageDumpJS, "localStorage"), &profile.LocalStorage),
		chromedp.Evaluate(fmt.Sprintf(storageDumpJS, "sessionStorage"), &profile.SessionStorage),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot browser state: %w", err)
	}
	profile.Cookies = fromNetworkCookies(cookies)
	return profile, nil
}

// Close tears down the tab, the browser and its process. Safe to call twice.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var err error
	if s.ctx != nil && chromedp.FromContext(s.ctx) != nil && chromedp.FromContext(s.ctx).Browser != nil {
		closeCtx, cancel := context.WithTimeout(Detach(s.ctx), 10*time.Second)
		err = chromedp.Cancel(closeCtx)
		cancel()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	if err != nil {
		s.logger.Debug("Browser did not close cleanly", zap.Error(err))
	}
	return err
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
