package queue

import (
	"math/rand"
	"time"
)

// BackoffStrategy names a retry-delay curve.
type BackoffStrategy string

const (
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// Backoff computes the delay before a failed job's next attempt.
type Backoff struct {
	Strategy BackoffStrategy
	Base     time.Duration
	Max      time.Duration
	Jitter   bool
}

// DefaultBackoff retries at 10s, 20s, 40s ... capped at 10 minutes.
func DefaultBackoff() Backoff {
	return Backoff{
		Strategy: BackoffExponential,
		Base:     10 * time.Second,
		Max:      10 * time.Minute,
		Jitter:   true,
	}
}

// Delay returns the wait before the given attempt retries. attempt counts
// completed attempts, so the first retry passes attempt == 1.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = 10 * time.Second
	}

	var delay time.Duration
	switch b.Strategy {
	case BackoffLinear:
		delay = base * time.Duration(attempt)
	default:
		delay = base
		for i := 1; i < attempt; i++ {
			delay *= 2
			if b.Max > 0 && delay >= b.Max {
				break
			}
		}
	}

	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	if b.Jitter {
		// Up to 25% random spread keeps retry storms from synchronizing.
		delay += time.Duration(rand.Int63n(int64(delay)/4 + 1))
	}
	return delay
}
