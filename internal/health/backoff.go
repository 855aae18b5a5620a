package health

import "time"

// Backoff computes the delay imposed before re-evaluating an agent after a
// restart attempt. Attempt numbers are 1-indexed.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// FixedBackoff waits the same delay between every restart attempt. This is
// the baseline policy.
type FixedBackoff struct {
	// Interval is the delay applied after each restart.
	Interval time.Duration
}

// Delay returns the fixed interval regardless of attempt number.
func (b FixedBackoff) Delay(attempt int) time.Duration {
	return b.Interval
}

// ExponentialBackoff doubles the delay after each restart attempt, capped at
// Max. Drop-in replacement for FixedBackoff when repeated immediate restarts
// of a wedged worker are wasted work.
type ExponentialBackoff struct {
	// Base is the delay after the first restart.
	Base time.Duration
	// Max caps the delay. Zero means no cap.
	Max time.Duration
}

// Delay returns Base * 2^(attempt-1), capped at Max.
func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
