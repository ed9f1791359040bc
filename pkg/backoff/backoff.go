// Package backoff computes retry delays for transient failures.
package backoff

import "time"

const (
	defaultInitial = 100 * time.Millisecond
	defaultMax     = 5 * time.Second
)

// Config bounds the delay curve. Zero values use defaults.
type Config struct {
	Initial time.Duration // default: 100ms
	Max     time.Duration // default: 5s
}

// Exponential returns the wait before retry number attempt (1-based).
// The delay doubles each attempt, starting at Initial and capped at Max.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial, ceiling := defaultInitial, defaultMax
	if cfg != nil {
		if cfg.Initial > 0 {
			initial = cfg.Initial
		}
		if cfg.Max > 0 {
			ceiling = cfg.Max
		}
	}

	if attempt < 1 {
		return initial
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		// Overflow lands negative; treat it as past the ceiling.
		if delay >= ceiling || delay <= 0 {
			return ceiling
		}
	}
	return delay
}
