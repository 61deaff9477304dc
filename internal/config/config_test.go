// File: internal/config/config_test.go
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "swapflow", cfg.Logger().ServiceName)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, int64(1920), cfg.Browser().Viewport.Width)
	assert.Equal(t, "America/New_York", cfg.Browser().Timezone)
	assert.Equal(t, []string{"en-US", "en"}, cfg.Browser().Languages)
	assert.Equal(t, 3*time.Second, cfg.Exchange().Timings.Settle.Min)
	assert.Equal(t, 5*time.Second, cfg.Exchange().Timings.Settle.Max)
	assert.Equal(t, 1500*time.Millisecond, cfg.Exchange().Timings.AfterFill.Min)
	assert.Equal(t, 5*time.Second, cfg.Exchange().Timings.SubmitSettle)
	assert.Equal(t, "file", cfg.Profile().Backend)
	assert.Equal(t, "default", cfg.Profile().Name)
	assert.Equal(t, 5*time.Second, cfg.Jobs().PollInterval)
	assert.Equal(t, 300*time.Second, cfg.Jobs().MonitorTimeout)
	assert.Equal(t, 25.0, cfg.Defaults().Amount)
	assert.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Exchange Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.ExchangeCfg.Timings.AfterTab = DelayConfig{Min: 3 * time.Second, Max: time.Second}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timings.after_tab: min must not exceed max")

		cfg = NewDefaultConfig()
		cfg.ExchangeCfg.PrefixLength = 0
		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "prefix_length must be a positive integer")
	})

	t.Run("Profile Validation", func(t *testing.T) {
		valid := ProfileConfig{Backend: "redis", Name: "default", Redis: RedisConfig{Address: "localhost:6379"}}
		assert.NoError(t, valid.Validate())

		unknown := valid
		unknown.Backend = "s3"
		err := unknown.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "backend must be one of: file, redis")

		noAddr := valid
		noAddr.Redis.Address = ""
		err = noAddr.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis.address is required")

		noName := valid
		noName.Name = ""
		assert.Error(t, noName.Validate())
	})

	t.Run("Jobs Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Jobs()
		assert.NoError(t, valid.Validate())

		badInterval := valid
		badInterval.PollInterval = 0
		err := badInterval.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "poll_interval must be a positive duration")

		badTimeout := valid
		badTimeout.MonitorTimeout = -time.Second
		err = badTimeout.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "monitor_timeout must be a positive duration")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
exchange:
  timings:
    settle:
      min: 0s
      max: 0s
profile:
  name: alice
jobs:
  poll_interval: 1s
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, time.Duration(0), cfg.Exchange().Timings.Settle.Max)
		assert.Equal(t, "alice", cfg.Profile().Name)
		assert.Equal(t, time.Second, cfg.Jobs().PollInterval)
		// A default survives alongside the overrides.
		assert.Equal(t, "info", cfg.Logger().Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("jobs.poll_interval", "0s")

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "poll_interval must be a positive duration")
	})

	t.Run("Proxy URL Must Be Absolute", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("jobs.proxy_url", "localhost:8080")

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "proxy_url must be an absolute URL")

		v.Set("jobs.proxy_url", "http://127.0.0.1:8080")
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "http://127.0.0.1:8080", cfg.Jobs().ProxyURL)
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)

		t.Setenv("APIFY_TOKEN", "apify_env_token")
		t.Setenv("SWAPFLOW_DATABASE_URL", "postgres://envvar/db")
		t.Setenv("SWAPFLOW_REDIS_PASSWORD", "hunter2")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "apify_env_token", cfg.Jobs().Token)
		assert.Equal(t, "postgres://envvar/db", cfg.Database().URL)
		assert.Equal(t, "hunter2", cfg.Profile().Redis.Password)
	})
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".swapflow", "state.json"), ExpandPath("~/.swapflow/state.json"))
	assert.Equal(t, "/tmp/x", ExpandPath("/tmp/x"))
}
