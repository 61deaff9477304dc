package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/config"
	"github.com/xkilldash9x/swapflow/internal/exchange"
)

var _ exchange.Page = (*Session)(nil)

func TestAllocatorFlags(t *testing.T) {
	t.Run("Stealth defaults", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Headless: true})
		assert.Equal(t, false, flags["enable-automation"])
		assert.Equal(t, "AutomationControlled", flags["disable-blink-features"])
		assert.Equal(t, true, flags["no-sandbox"])
		assert.Equal(t, true, flags["disable-dev-shm-usage"])
		assert.Equal(t, true, flags["disable-setuid-sandbox"])
		assert.Equal(t, true, flags["headless"])
		assert.NotContains(t, flags, "window-size")
	})

	t.Run("Headful with viewport", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{
			Viewport: config.ViewportConfig{Width: 1920, Height: 1080},
		})
		assert.Equal(t, false, flags["headless"])
		assert.Equal(t, "1920,1080", flags["window-size"])
	})

	t.Run("Custom args", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{
			Args: []string{"--proxy-server=http://127.0.0.1:8080", "mute-audio", "--enable-automation"},
		})
		assert.Equal(t, "http://127.0.0.1:8080", flags["proxy-server"])
		assert.Equal(t, true, flags["mute-audio"])
		// Explicit user args win over the defaults.
		assert.Equal(t, true, flags["enable-automation"])
	})

	t.Run("Options include exec path", func(t *testing.T) {
		base := AllocatorOptions(config.BrowserConfig{})
		withPath := AllocatorOptions(config.BrowserConfig{ExecPath: "/usr/bin/chromium"})
		assert.Len(t, withPath, len(base)+1)
	})
}

func TestCookieConversion(t *testing.T) {
	cookies := []schemas.Cookie{
		{Name: "sid", Value: "abc", Domain: ".simpleswap.io", Secure: true, HTTPOnly: true, SameSite: "Lax", Expires: 1893456000.5},
		{Name: "pref", Value: "1", Domain: "simpleswap.io", Path: "/x", SameSite: "none"},
		{Name: "", Value: "dropped"},
	}

	params := cookieParams(cookies)
	require.Len(t, params, 2)

	assert.Equal(t, "/", params[0].Path)
	assert.Equal(t, network.CookieSameSiteLax, params[0].SameSite)
	require.NotNil(t, params[0].Expires)
	assert.Equal(t, int64(1893456000), params[0].Expires.Time().Unix())
	assert.True(t, params[0].Secure)
	assert.True(t, params[0].HTTPOnly)

	assert.Equal(t, "/x", params[1].Path)
	assert.Equal(t, network.CookieSameSiteNone, params[1].SameSite)
	assert.Nil(t, params[1].Expires)

	back := fromNetworkCookies([]*network.Cookie{
		{Name: "sid", Value: "abc", Domain: ".simpleswap.io", Path: "/", Expires: 1893456000, SameSite: network.CookieSameSiteLax},
		{Name: "session", Value: "x", Domain: "simpleswap.io", Path: "/", Expires: -1},
		nil,
	})
	require.Len(t, back, 2)
	assert.Equal(t, "Lax", back[0].SameSite)
	assert.Equal(t, float64(1893456000), back[0].Expires)
	assert.Zero(t, back[1].Expires, "session cookies carry no expiry")
}

func TestSeedProfile(t *testing.T) {
	withCookies := seedProfile(&schemas.BrowserProfile{
		Cookies:      []schemas.Cookie{{Name: "sid", Value: "1"}},
		LocalStorage: map[string]string{"k": "v"},
	})
	assert.Len(t, withCookies, 2)

	storageOnly := seedProfile(&schemas.BrowserProfile{LocalStorage: map[string]string{"k": "v"}})
	assert.Len(t, storageOnly, 1)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	allocCtx, allocCancel := context.WithCancel(context.Background())
	s := &Session{ctx: ctx, cancel: cancel, allocCancel: allocCancel, logger: zap.NewNop()}

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.ErrorIs(t, allocCtx.Err(), context.Canceled)
}

func TestNewFactory(t *testing.T) {
	f := NewFactory(config.NewDefaultConfig().Browser(), zap.NewNop())
	assert.Equal(t, "MacIntel", f.persona.Platform)
	assert.Equal(t, int64(1920), f.persona.Width)
}

func TestJSString(t *testing.T) {
	assert.Equal(t, `"button[data-testid=\"x\"]"`, jsString(`button[data-testid="x"]`))
}

func TestCombineContext(t *testing.T) {
	type ctxKey string
	const key ctxKey = "target"

	t.Run("Inherits values from primary", func(t *testing.T) {
		primary := context.WithValue(context.Background(), key, "tab")
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()
		assert.Equal(t, "tab", combined.Value(key))
		assert.NoError(t, combined.Err())
	})

	t.Run("Cancelled by primary", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()
		cancelPrimary()
		assert.Eventually(t, func() bool { return combined.Err() != nil }, time.Second, 5*time.Millisecond)
	})

	t.Run("Cancelled by secondary", func(t *testing.T) {
		secondary, cancelSecondary := context.WithCancel(context.Background())
		combined, cancel := CombineContext(context.Background(), secondary)
		defer cancel()
		cancelSecondary()
		assert.Eventually(t, func() bool { return combined.Err() != nil }, time.Second, 5*time.Millisecond)
	})

	t.Run("Secondary deadline", func(t *testing.T) {
		secondary, cancelSecondary := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancelSecondary()
		combined, cancel := CombineContext(context.Background(), secondary)
		defer cancel()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context outlived the secondary deadline")
		}
	})
}

func TestDetach(t *testing.T) {
	type ctxKey string
	parent, cancel := context.WithTimeout(context.WithValue(context.Background(), ctxKey("k"), "v"), time.Millisecond)
	cancel()

	detached := Detach(parent)
	assert.Equal(t, "v", detached.Value(ctxKey("k")))
	assert.NoError(t, detached.Err())
	assert.Nil(t, detached.Done())
	_, ok := detached.Deadline()
	assert.False(t, ok)
}
