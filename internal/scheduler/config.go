package scheduler

import (
	"time"
)

// Config controls the monitor sweep cadence and staleness threshold.
type Config struct {
	RunInterval    time.Duration
	StaleThreshold time.Duration
	MaxReported    int
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    time.Minute,
		StaleThreshold: 5 * time.Minute,
		MaxReported:    20,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = defaults.StaleThreshold
	}
	if c.MaxReported <= 0 {
		c.MaxReported = defaults.MaxReported
	}
	return c
}
