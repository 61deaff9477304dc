// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Exchange() ExchangeConfig
	Profile() ProfileConfig
	Jobs() JobsConfig
	State() StateConfig
	Database() DatabaseConfig
	Defaults() DefaultsConfig
	MCP() MCPConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	ExchangeCfg ExchangeConfig `mapstructure:"exchange" yaml:"exchange"`
	ProfileCfg  ProfileConfig  `mapstructure:"profile" yaml:"profile"`
	JobsCfg     JobsConfig     `mapstructure:"jobs" yaml:"jobs"`
	StateCfg    StateConfig    `mapstructure:"state" yaml:"state"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	DefaultsCfg DefaultsConfig `mapstructure:"defaults" yaml:"defaults"`
	MCPCfg      MCPConfig      `mapstructure:"mcp" yaml:"mcp"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Exchange() ExchangeConfig { return c.ExchangeCfg }
func (c *Config) Profile() ProfileConfig   { return c.ProfileCfg }
func (c *Config) Jobs() JobsConfig         { return c.JobsCfg }
func (c *Config) State() StateConfig       { return c.StateCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Defaults() DefaultsConfig { return c.DefaultsCfg }
func (c *Config) MCP() MCPConfig           { return c.MCPCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ViewportConfig is the fixed window size presented to the page.
type ViewportConfig struct {
	Width  int64 `mapstructure:"width" yaml:"width"`
	Height int64 `mapstructure:"height" yaml:"height"`
}

// BrowserConfig holds settings for the headless browser and the spoofed identity.
type BrowserConfig struct {
	Headless      bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath      string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args          []string       `mapstructure:"args" yaml:"args"`
	Viewport      ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	UserAgent     string         `mapstructure:"user_agent" yaml:"user_agent"`
	Platform      string         `mapstructure:"platform" yaml:"platform"`
	Languages     []string       `mapstructure:"languages" yaml:"languages"`
	Locale        string         `mapstructure:"locale" yaml:"locale"`
	Timezone      string         `mapstructure:"timezone" yaml:"timezone"`
	Latitude      float64        `mapstructure:"latitude" yaml:"latitude"`
	Longitude     float64        `mapstructure:"longitude" yaml:"longitude"`
	LaunchTimeout time.Duration  `mapstructure:"launch_timeout" yaml:"launch_timeout"`
}

// DelayConfig is a bounded uniform range for randomized pauses.
type DelayConfig struct {
	Min time.Duration `mapstructure:"min" yaml:"min"`
	Max time.Duration `mapstructure:"max" yaml:"max"`
}

// TimingConfig tunes every wait of the interaction flow.
type TimingConfig struct {
	Navigation         time.Duration `mapstructure:"navigation" yaml:"navigation"`
	Settle             DelayConfig   `mapstructure:"settle" yaml:"settle"`
	Scroll             DelayConfig   `mapstructure:"scroll" yaml:"scroll"`
	ScrollMinPixels    int           `mapstructure:"scroll_min_pixels" yaml:"scroll_min_pixels"`
	ScrollMaxPixels    int           `mapstructure:"scroll_max_pixels" yaml:"scroll_max_pixels"`
	AfterFill          DelayConfig   `mapstructure:"after_fill" yaml:"after_fill"`
	AfterTab           DelayConfig   `mapstructure:"after_tab" yaml:"after_tab"`
	PreSubmit          DelayConfig   `mapstructure:"pre_submit" yaml:"pre_submit"`
	Keystroke          DelayConfig   `mapstructure:"keystroke" yaml:"keystroke"`
	ElementTimeout     time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
	EnableTimeout      time.Duration `mapstructure:"enable_timeout" yaml:"enable_timeout"`
	EnablePollInterval time.Duration `mapstructure:"enable_poll_interval" yaml:"enable_poll_interval"`
	SubmitSettle       time.Duration `mapstructure:"submit_settle" yaml:"submit_settle"`
}

// SelectorConfig locates page elements. These change with the target page and are
// therefore never compiled in.
type SelectorConfig struct {
	AddressInput      string `mapstructure:"address_input" yaml:"address_input"`
	AddressOption     string `mapstructure:"address_option" yaml:"address_option"`
	AddNewAddressText string `mapstructure:"add_new_address_text" yaml:"add_new_address_text"`
	DialogInput       string `mapstructure:"dialog_input" yaml:"dialog_input"`
	DialogConfirmText string `mapstructure:"dialog_confirm_text" yaml:"dialog_confirm_text"`
	SubmitButton      string `mapstructure:"submit_button" yaml:"submit_button"`
	SubmitText        string `mapstructure:"submit_text" yaml:"submit_text"`
}

// DiagnosticsConfig controls best-effort failure captures.
type DiagnosticsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// ExchangeConfig describes the target page and the interaction flow.
type ExchangeConfig struct {
	BaseURL      string            `mapstructure:"base_url" yaml:"base_url"`
	PrefixLength int               `mapstructure:"prefix_length" yaml:"prefix_length"`
	Selectors    SelectorConfig    `mapstructure:"selectors" yaml:"selectors"`
	Timings      TimingConfig      `mapstructure:"timings" yaml:"timings"`
	Diagnostics  DiagnosticsConfig `mapstructure:"diagnostics" yaml:"diagnostics"`
}

// RedisConfig holds the connection for the redis profile backend.
type RedisConfig struct {
	Address    string        `mapstructure:"address" yaml:"address"`
	Password   string        `mapstructure:"password" yaml:"-"`
	DB         int           `mapstructure:"db" yaml:"db"`
	Prefix     string        `mapstructure:"prefix" yaml:"prefix"`
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// ProfileConfig selects where the browser identity is persisted.
type ProfileConfig struct {
	Backend string      `mapstructure:"backend" yaml:"backend"`
	Name    string      `mapstructure:"name" yaml:"name"`
	Dir     string      `mapstructure:"dir" yaml:"dir"`
	Redis   RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// JobsConfig configures the hosted job-execution service client.
type JobsConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	ActorID        string        `mapstructure:"actor_id" yaml:"actor_id"`
	Token          string        `mapstructure:"token" yaml:"-"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
	ProxyURL       string        `mapstructure:"proxy_url" yaml:"proxy_url,omitempty"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MonitorTimeout time.Duration `mapstructure:"monitor_timeout" yaml:"monitor_timeout"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	RateLimit      float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// StateConfig locates the front-end session log.
type StateConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// DatabaseConfig holds the database connection details for the result history.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"-"`
}

// DefaultsConfig seeds the front-end defaults on first use.
type DefaultsConfig struct {
	Wallet       string  `mapstructure:"wallet" yaml:"wallet"`
	Amount       float64 `mapstructure:"amount" yaml:"amount"`
	FromCurrency string  `mapstructure:"from_currency" yaml:"from_currency"`
	ToCurrency   string  `mapstructure:"to_currency" yaml:"to_currency"`
}

// MCPConfig configures the optional HTTP transport of the MCP server. The
// stdio transport needs no settings.
type MCPConfig struct {
	ListenAddr     string   `mapstructure:"listen_addr" yaml:"listen_addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "swapflow")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport.width", 1920)
	v.SetDefault("browser.viewport.height", 1080)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("browser.platform", "MacIntel")
	v.SetDefault("browser.languages", []string{"en-US", "en"})
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "America/New_York")
	v.SetDefault("browser.latitude", 40.7128)
	v.SetDefault("browser.longitude", -74.0060)
	v.SetDefault("browser.launch_timeout", "30s")

	// -- Exchange --
	v.SetDefault("exchange.base_url", "https://simpleswap.io/exchange")
	v.SetDefault("exchange.prefix_length", 6)
	v.SetDefault("exchange.selectors.address_input", `input[placeholder*="address" i]`)
	v.SetDefault("exchange.selectors.address_option", `[role="option"], [role="listbox"] li`)
	v.SetDefault("exchange.selectors.add_new_address_text", "Add new address")
	v.SetDefault("exchange.selectors.dialog_input", `[role="dialog"] input`)
	v.SetDefault("exchange.selectors.dialog_confirm_text", "Save")
	v.SetDefault("exchange.selectors.submit_button", `button[data-testid="create-exchange-button"]`)
	v.SetDefault("exchange.selectors.submit_text", "Create an exchange")
	v.SetDefault("exchange.timings.navigation", "30s")
	v.SetDefault("exchange.timings.settle.min", "3s")
	v.SetDefault("exchange.timings.settle.max", "5s")
	v.SetDefault("exchange.timings.scroll.min", "1s")
	v.SetDefault("exchange.timings.scroll.max", "2s")
	v.SetDefault("exchange.timings.scroll_min_pixels", 100)
	v.SetDefault("exchange.timings.scroll_max_pixels", 300)
	v.SetDefault("exchange.timings.after_fill.min", "1500ms")
	v.SetDefault("exchange.timings.after_fill.max", "2500ms")
	v.SetDefault("exchange.timings.after_tab.min", "2s")
	v.SetDefault("exchange.timings.after_tab.max", "3s")
	v.SetDefault("exchange.timings.pre_submit.min", "1s")
	v.SetDefault("exchange.timings.pre_submit.max", "2s")
	v.SetDefault("exchange.timings.keystroke.min", "50ms")
	v.SetDefault("exchange.timings.keystroke.max", "150ms")
	v.SetDefault("exchange.timings.element_timeout", "15s")
	v.SetDefault("exchange.timings.enable_timeout", "15s")
	v.SetDefault("exchange.timings.enable_poll_interval", "500ms")
	v.SetDefault("exchange.timings.submit_settle", "5s")
	v.SetDefault("exchange.diagnostics.enabled", true)
	v.SetDefault("exchange.diagnostics.dir", "~/.swapflow/diagnostics")

	// -- Profile --
	v.SetDefault("profile.backend", "file")
	v.SetDefault("profile.name", "default")
	v.SetDefault("profile.dir", "~/.swapflow/profiles")
	v.SetDefault("profile.redis.address", "localhost:6379")
	v.SetDefault("profile.redis.db", 0)
	v.SetDefault("profile.redis.prefix", "swapflow:profile")
	v.SetDefault("profile.redis.max_retries", 3)

	// -- Jobs --
	v.SetDefault("jobs.base_url", "https://api.apify.com")
	v.SetDefault("jobs.actor_id", "DsCczYpxTSp2ATS6D")
	v.SetDefault("jobs.http_timeout", "30s")
	v.SetDefault("jobs.poll_interval", "5s")
	v.SetDefault("jobs.monitor_timeout", "300s")
	v.SetDefault("jobs.max_retries", 3)
	v.SetDefault("jobs.retry_backoff", "500ms")
	v.SetDefault("jobs.rate_limit", 2.0)

	// -- State --
	v.SetDefault("state.file", "~/.swapflow/state.json")

	// -- Defaults --
	v.SetDefault("defaults.amount", 25.0)
	v.SetDefault("defaults.from_currency", "usd-usd")
	v.SetDefault("defaults.to_currency", "pol-matic")

	// -- MCP --
	v.SetDefault("mcp.listen_addr", "127.0.0.1:8765")
	v.SetDefault("mcp.allowed_origins", []string{})
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("jobs.token", "SWAPFLOW_JOBS_TOKEN", "APIFY_TOKEN")
	_ = v.BindEnv("database.url", "SWAPFLOW_DATABASE_URL")
	_ = v.BindEnv("profile.redis.password", "SWAPFLOW_REDIS_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.ExchangeCfg.Validate(); err != nil {
		return fmt.Errorf("exchange configuration invalid: %w", err)
	}
	if err := c.ProfileCfg.Validate(); err != nil {
		return fmt.Errorf("profile configuration invalid: %w", err)
	}
	if err := c.JobsCfg.Validate(); err != nil {
		return fmt.Errorf("jobs configuration invalid: %w", err)
	}
	if c.StateCfg.File == "" {
		return fmt.Errorf("state.file is a required configuration field")
	}
	return nil
}

// Validate checks the exchange flow configuration.
func (e *ExchangeConfig) Validate() error {
	if e.BaseURL == "" {
		return fmt.Errorf("base_url is a required configuration field")
	}
	if e.PrefixLength <= 0 {
		return fmt.Errorf("prefix_length must be a positive integer")
	}
	if e.Selectors.AddressInput == "" || e.Selectors.SubmitButton == "" {
		return fmt.Errorf("selectors.address_input and selectors.submit_button are required")
	}
	t := e.Timings
	ranges := map[string]DelayConfig{
		"settle":     t.Settle,
		"scroll":     t.Scroll,
		"after_fill": t.AfterFill,
		"after_tab":  t.AfterTab,
		"pre_submit": t.PreSubmit,
		"keystroke":  t.Keystroke,
	}
	for name, r := range ranges {
		if r.Min < 0 || r.Max < 0 {
			return fmt.Errorf("timings.%s must not be negative", name)
		}
		if r.Max < r.Min {
			return fmt.Errorf("timings.%s: min must not exceed max", name)
		}
	}
	if t.ScrollMaxPixels < t.ScrollMinPixels {
		return fmt.Errorf("timings.scroll_min_pixels must not exceed scroll_max_pixels")
	}
	return nil
}

// Validate checks the profile backend selection.
func (p *ProfileConfig) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is a required configuration field")
	}
	switch p.Backend {
	case "file":
		if p.Dir == "" {
			return fmt.Errorf("dir is required for the file backend")
		}
	case "redis":
		if p.Redis.Address == "" {
			return fmt.Errorf("redis.address is required for the redis backend")
		}
	default:
		return fmt.Errorf("backend must be one of: file, redis")
	}
	return nil
}

// Validate checks the job client and monitor settings.
func (j *JobsConfig) Validate() error {
	if j.BaseURL == "" || j.ActorID == "" {
		return fmt.Errorf("base_url and actor_id are required")
	}
	if j.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if j.MonitorTimeout <= 0 {
		return fmt.Errorf("monitor_timeout must be a positive duration")
	}
	if j.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if j.ProxyURL != "" {
		if u, err := url.Parse(j.ProxyURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("proxy_url must be an absolute URL")
		}
	}
	return nil
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}
