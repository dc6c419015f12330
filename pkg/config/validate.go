package config

import (
	"fmt"
	"strings"
	"time"
)

// MaxQueueCapacity bounds queue_capacity.
const MaxQueueCapacity = 1 << 16

// MinPushInterval bounds push_interval from below.
const MinPushInterval = 100 * time.Millisecond

// Validate checks the config for structural correctness.
func Validate(c Config) []error {
	var errs []error

	if c.Version != 1 {
		errs = append(errs, fmt.Errorf("version must be 1, got %d", c.Version))
	}

	if c.Socket == "" {
		errs = append(errs, fmt.Errorf("socket is required"))
	}

	if c.QueueCapacity < 1 || c.QueueCapacity > MaxQueueCapacity {
		errs = append(errs, fmt.Errorf("queue_capacity must be between 1 and %d, got %d", MaxQueueCapacity, c.QueueCapacity))
	}

	if c.PushInterval.Duration < MinPushInterval {
		errs = append(errs, fmt.Errorf("push_interval must be at least %s, got %s", MinPushInterval, c.PushInterval))
	}

	if c.DrainTimeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("drain_timeout must be positive, got %s", c.DrainTimeout))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn, or error; got %q", c.LogLevel))
	}

	return errs
}
