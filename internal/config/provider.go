package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ProviderConfig holds the upstream enrichment provider settings together with
// the resilience tuning applied around its calls.
type ProviderConfig struct {
	BaseURL        string `mapstructure:"baseUrl"`
	EnrichEndpoint string `mapstructure:"enrichEndpoint"`
	ClientID       string `mapstructure:"clientId"`
	Secret         string `mapstructure:"secret"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`

	Bulkhead BulkheadConfig `mapstructure:"bulkhead"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
}

type BulkheadConfig struct {
	MaxConcurrent  int `mapstructure:"maxConcurrent"`
	MaxWaitSeconds int `mapstructure:"maxWaitSeconds"`
}

type RetryConfig struct {
	MaxAttempts           int `mapstructure:"maxAttempts"`
	InitialBackoffSeconds int `mapstructure:"initialBackoffSeconds"`
}

type BreakerConfig struct {
	WindowSize           int     `mapstructure:"windowSize"`
	MinimumCalls         int     `mapstructure:"minimumCalls"`
	FailureRateThreshold float64 `mapstructure:"failureRateThreshold"`
	OpenStateSeconds     int     `mapstructure:"openStateSeconds"`
	HalfOpenProbes       int     `mapstructure:"halfOpenProbes"`
}

func (c ProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		BaseURL:        "https://production.plaid.com",
		EnrichEndpoint: "/transactions/enrich",
		TimeoutSeconds: 10,
		Bulkhead: BulkheadConfig{
			MaxConcurrent:  10,
			MaxWaitSeconds: 2,
		},
		Retry: RetryConfig{
			MaxAttempts:           3,
			InitialBackoffSeconds: 1,
		},
		Breaker: BreakerConfig{
			WindowSize:           10,
			MinimumCalls:         5,
			FailureRateThreshold: 0.5,
			OpenStateSeconds:     10,
			HalfOpenProbes:       3,
		},
	}
}

// ProviderConfigHolder keeps the current provider config and swaps it
// atomically on file change. Resilience components snapshot it at startup;
// the client reads it per call so credential rotation takes effect live.
type ProviderConfigHolder struct {
	current atomic.Value // holds ProviderConfig
}

func NewProviderConfigHolder() (*ProviderConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("provider")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/enrich/config")
	v.AddConfigPath("/etc/enrich")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultProviderConfig()
	v.SetDefault("provider", defaults)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg ProviderConfig
	if err := v.UnmarshalKey("provider", &cfg); err != nil {
		return nil, err
	}
	applyProviderDefaults(&cfg, defaults)
	if err := validateProviderConfig(cfg); err != nil {
		return nil, err
	}

	holder := &ProviderConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ProviderConfig
		if err := v.UnmarshalKey("provider", &updated); err != nil {
			log.Printf("[provider-config] reload failed: %v", err)
			return
		}
		applyProviderDefaults(&updated, defaults)
		if err := validateProviderConfig(updated); err != nil {
			log.Printf("[provider-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
	})

	return holder, nil
}

// NewStaticProviderConfigHolder pins the holder to cfg with no file
// watching. Used by tests and tooling that bypass file configuration.
func NewStaticProviderConfigHolder(cfg ProviderConfig) *ProviderConfigHolder {
	applyProviderDefaults(&cfg, DefaultProviderConfig())
	holder := &ProviderConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *ProviderConfigHolder) Current() ProviderConfig {
	return h.current.Load().(ProviderConfig)
}

func applyProviderDefaults(cfg *ProviderConfig, defaults ProviderConfig) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if strings.TrimSpace(cfg.EnrichEndpoint) == "" {
		cfg.EnrichEndpoint = defaults.EnrichEndpoint
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = defaults.TimeoutSeconds
	}
	if cfg.Bulkhead.MaxConcurrent <= 0 {
		cfg.Bulkhead.MaxConcurrent = defaults.Bulkhead.MaxConcurrent
	}
	if cfg.Bulkhead.MaxWaitSeconds <= 0 {
		cfg.Bulkhead.MaxWaitSeconds = defaults.Bulkhead.MaxWaitSeconds
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}
	if cfg.Retry.InitialBackoffSeconds <= 0 {
		cfg.Retry.InitialBackoffSeconds = defaults.Retry.InitialBackoffSeconds
	}
	if cfg.Breaker.WindowSize <= 0 {
		cfg.Breaker.WindowSize = defaults.Breaker.WindowSize
	}
	if cfg.Breaker.MinimumCalls <= 0 {
		cfg.Breaker.MinimumCalls = defaults.Breaker.MinimumCalls
	}
	if cfg.Breaker.FailureRateThreshold <= 0 {
		cfg.Breaker.FailureRateThreshold = defaults.Breaker.FailureRateThreshold
	}
	if cfg.Breaker.OpenStateSeconds <= 0 {
		cfg.Breaker.OpenStateSeconds = defaults.Breaker.OpenStateSeconds
	}
	if cfg.Breaker.HalfOpenProbes <= 0 {
		cfg.Breaker.HalfOpenProbes = defaults.Breaker.HalfOpenProbes
	}
}

func validateProviderConfig(cfg ProviderConfig) error {
	if cfg.Breaker.FailureRateThreshold > 1 {
		return errors.New("breaker failure rate threshold must be in (0, 1]")
	}
	if cfg.Breaker.MinimumCalls > cfg.Breaker.WindowSize {
		return errors.New("breaker minimum calls cannot exceed window size")
	}
	return nil
}
