// Package retry provides the exponential backoff used to space out scans
// after consecutive failures of the listing page.
package retry

import (
	"fmt"
	"math"
	"time"
)

// Strategy defines the backoff applied after failed scans.
//
// The delay follows: delay = min(BaseDelay * ExponentialBase^failures, MaxDelay)
//
// Example with defaults (30s base, 2.0 exponential, 30m max):
//
//	Failure 1: 1m
//	Failure 2: 2m
//	Failure 3: 4m
//	Failure 4: 8m
//	Failure 6+: 30m
//
// There is no attempt limit: a watcher keeps polling until stopped.
type Strategy struct {
	BaseDelay       time.Duration // Delay for the zeroth failure
	MaxDelay        time.Duration // Delay cap
	ExponentialBase float64       // Backoff multiplier (e.g., 2.0 for doubling)
}

// DefaultStrategy returns the default backoff: 30s doubling up to 30m.
func DefaultStrategy() Strategy {
	return Strategy{
		BaseDelay:       30 * time.Second,
		MaxDelay:        30 * time.Minute,
		ExponentialBase: 2.0,
	}
}

// CalculateRetryDelay calculates the delay after the given number of
// consecutive failures using exponential backoff.
func (s Strategy) CalculateRetryDelay(failures int) time.Duration {
	if failures <= 0 {
		return s.BaseDelay
	}

	delay := float64(s.BaseDelay) * math.Pow(s.ExponentialBase, float64(failures))

	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}

	return time.Duration(delay)
}

// NextAttempt returns the earliest time a scan may run after the given
// number of consecutive failures ending at last.
func (s Strategy) NextAttempt(last time.Time, failures int) time.Time {
	if failures <= 0 {
		return last
	}
	return last.Add(s.CalculateRetryDelay(failures))
}

// GetRetrySchedule returns a human-readable description of the first n delays.
//
// Example output:
//
//	Backoff Schedule:
//	  Failure 1: wait 1m0s
//	  Failure 2: wait 2m0s
func (s Strategy) GetRetrySchedule(n int) string {
	schedule := "Backoff Schedule:\n"
	for i := 1; i <= n; i++ {
		schedule += fmt.Sprintf("  Failure %d: wait %v\n", i, s.CalculateRetryDelay(i))
	}
	return schedule
}
