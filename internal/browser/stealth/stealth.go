package stealth

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/internal/config"
)

//go:embed evasions.js
var evasionsScript string

// Persona defines the browser characteristics to emulate.
type Persona struct {
	UserAgent string   `json:"userAgent"`
	Platform  string   `json:"platform"`
	Languages []string `json:"languages"`
	Timezone  string   `json:"timezone"`
	Locale    string   `json:"locale"`
	Width     int64    `json:"width"`
	Height    int64    `json:"height"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
}

// DefaultPersona is a desktop Chrome on macOS in New York.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	Platform:  "MacIntel",
	Languages: []string{"en-US", "en"},
	Timezone:  "America/New_York",
	Locale:    "en-US",
	Width:     1920,
	Height:    1080,
	Latitude:  40.7128,
	Longitude: -74.0060,
}

// PersonaFromConfig overlays the configured identity on DefaultPersona.
func PersonaFromConfig(cfg config.BrowserConfig) Persona {
	p := DefaultPersona
	if cfg.UserAgent != "" {
		p.UserAgent = cfg.UserAgent
	}
	if cfg.Platform != "" {
		p.Platform = cfg.Platform
	}
	if len(cfg.Languages) > 0 {
		p.Languages = append([]string(nil), cfg.Languages...)
	}
	if cfg.Timezone != "" {
		p.Timezone = cfg.Timezone
	}
	if cfg.Locale != "" {
		p.Locale = cfg.Locale
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		p.Width, p.Height = cfg.Viewport.Width, cfg.Viewport.Height
	}
	if cfg.Latitude != 0 || cfg.Longitude != 0 {
		p.Latitude, p.Longitude = cfg.Latitude, cfg.Longitude
	}
	return p
}

// AcceptLanguage renders the languages as an Accept-Language header value.
func (p Persona) AcceptLanguage() string {
	if len(p.Languages) == 0 {
		return "en-US"
	}
	parts := make([]string, 0, len(p.Languages))
	for i, lang := range p.Languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

// EvasionScript returns the fingerprint evasion script bound to this persona.
func (p Persona) EvasionScript() (string, error) {
	langs := p.Languages
	if len(langs) == 0 {
		langs = DefaultPersona.Languages
	}
	data, err := json.Marshal(struct {
		Platform  string   `json:"platform"`
		Languages []string `json:"languages"`
	}{p.Platform, langs})
	if err != nil {
		return "", fmt.Errorf("failed to encode persona: %w", err)
	}
	return fmt.Sprintf("(() => {\nconst persona = %s;\n%s\n})();", data, evasionsScript), nil
}

// Apply constructs the CDP actions that make the headless browser look like a
// user-operated desktop browser. They must run before the first navigation.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Applying browser stealth persona",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
		zap.String("timezone", p.Timezone),
	)

	return chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).
			WithPlatform(p.Platform).
			WithAcceptLanguage(p.AcceptLanguage()),
		emulation.SetDeviceMetricsOverride(p.Width, p.Height, 1, false),
		emulation.SetTimezoneOverride(p.Timezone),
		emulation.SetLocaleOverride().WithLocale(p.Locale),
		emulation.SetGeolocationOverride().
			WithLatitude(p.Latitude).
			WithLongitude(p.Longitude).
			WithAccuracy(100),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": p.AcceptLanguage(),
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			script, err := p.EvasionScript()
			if err != nil {
				return err
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
	}
}

// SeedStorageScript builds a script that writes the given entries into local
// and session storage before any page script runs. Keys the page already holds
// are left untouched so the page's own writes win on later navigations.
func SeedStorageScript(local, session map[string]string) (string, error) {
	if local == nil {
		local = map[string]string{}
	}
	if session == nil {
		session = map[string]string{}
	}
	localJSON, err := json.Marshal(local)
	if err != nil {
		return "", fmt.Errorf("failed to encode local storage: %w", err)
	}
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to encode session storage: %w", err)
	}
	return fmt.Sprintf(`(() => {
  const seed = (name, entries) => {
    try {
      const store = window[name];
      for (const [k, v] of Object.entries(entries)) {
        if (store.getItem(k) === null) { store.setItem(k, v); }
      }
    } catch (e) {}
  };
  seed('localStorage', %s);
  seed('sessionStorage', %s);
})();`, localJSON, sessionJSON), nil
}

// SeedStorage registers the seeding script for every new document.
func SeedStorage(local, session map[string]string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if len(local) == 0 && len(session) == 0 {
			return nil
		}
		script, err := SeedStorageScript(local, session)
		if err != nil {
			return err
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			return fmt.Errorf("failed to register storage seed: %w", err)
		}
		return nil
	})
}
