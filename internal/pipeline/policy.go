package pipeline

import (
	"math"
	"time"
)

// Default retry policy values used when a field is left at zero
const (
	DefaultMaxAttempts = 3
	DefaultStepTimeout = 2 * time.Minute
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMultiplier  = 2.0
	DefaultMaxDelay    = 30 * time.Second
)

// RetryPolicy bounds how long and how often a step is attempted
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first
	Timeout     time.Duration // budget for a single attempt
	BaseDelay   time.Duration // delay after the first failed attempt
	Multiplier  float64       // growth factor between consecutive delays
	MaxDelay    time.Duration // cap for a single delay
}

// WithDefaults fills unset fields. A negative BaseDelay disables waiting between attempts.
func (p RetryPolicy) WithDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultStepTimeout
	}
	if p.BaseDelay == 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = DefaultMultiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// Backoff returns the delay to wait after failed attempt number attempt (1-based)
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt < 1 {
		return 0
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}
