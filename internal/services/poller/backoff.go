package poller

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

type BackoffConfig struct {
	Base    time.Duration // default: 2.5s
	Factor  float64       // default: 1.6
	Ceiling time.Duration // default: 30s
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Base:    2500 * time.Millisecond,
		Factor:  1.6,
		Ceiling: 30 * time.Second,
	}
}

// BackoffPolicy tracks the current polling interval on top of a jitter-free exponential
// backoff that never gives up. It is not safe for concurrent use; the Poller guards it with
// its own mutex.
type BackoffPolicy struct {
	cfg     BackoffConfig
	eb      *backoff.ExponentialBackOff
	current time.Duration
}

func NewBackoffPolicy(cfg BackoffConfig) *BackoffPolicy {
	def := DefaultBackoffConfig()
	if cfg.Base <= 0 {
		cfg.Base = def.Base
	}
	if cfg.Factor < 1 {
		cfg.Factor = def.Factor
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = def.Ceiling
	}
	if cfg.Ceiling < cfg.Base {
		cfg.Ceiling = cfg.Base
	}
	b := &BackoffPolicy{
		cfg: cfg,
		eb: &backoff.ExponentialBackOff{
			InitialInterval:     cfg.Base,
			RandomizationFactor: 0,
			Multiplier:          cfg.Factor,
			MaxInterval:         cfg.Ceiling,
			MaxElapsedTime:      0,
			Stop:                backoff.Stop,
			Clock:               backoff.SystemClock,
		},
	}
	b.Reset()
	return b
}

// Current is the delay before the next poll.
func (b *BackoffPolicy) Current() time.Duration {
	return b.current
}

// Next grows the interval after a failed fetch and returns it.
func (b *BackoffPolicy) Next() time.Duration {
	b.current = b.step()
	return b.current
}

// Reset returns to the base interval after a successful fetch.
func (b *BackoffPolicy) Reset() time.Duration {
	b.eb.Reset()
	b.current = b.step()
	return b.current
}

// step takes the next interval, rounded to whole milliseconds and clamped to the ceiling.
func (b *BackoffPolicy) step() time.Duration {
	d := b.eb.NextBackOff().Round(time.Millisecond)
	if d <= 0 || d > b.cfg.Ceiling {
		d = b.cfg.Ceiling
	}
	return d
}
