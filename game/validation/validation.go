// Package validation checks that a reported quest timing is plausible.
package validation

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrEndBeforeStart = errors.New("validation: end before start")
	ErrStartInFuture  = errors.New("validation: start is in the future")
	ErrEndInFuture    = errors.New("validation: end is in the future")
	ErrTooEarly       = errors.New("validation: completed too early")
	ErrTooLong        = errors.New("validation: completed too late")
)

// MinTolerance is the floor of the completion tolerance window.
const MinTolerance = 30 * time.Second

// Limits are the non-tolerance knobs of ValidateTimes.
type Limits struct {
	MaxLate          time.Duration
	FutureStartGrace time.Duration
	FutureEndGrace   time.Duration
}

// DefaultLimits allows ten minutes of lateness and five seconds of clock skew.
func DefaultLimits() Limits {
	return Limits{
		MaxLate:          10 * time.Minute,
		FutureStartGrace: 5 * time.Second,
		FutureEndGrace:   5 * time.Second,
	}
}

// Tolerance returns max(30s, 10% of expected), in whole seconds.
func Tolerance(expectedMinutes int) int64 {
	tol := int64(expectedMinutes) * 60 / 10
	if floor := int64(MinTolerance / time.Second); tol < floor {
		tol = floor
	}
	return tol
}

// ValidateTimes returns nil when a quest that ran from start to end plausibly
// lasted expectedMinutes as observed at now.
func ValidateTimes(start, end time.Time, expectedMinutes int, now time.Time, lim Limits) error {
	if end.Before(start) {
		return ErrEndBeforeStart
	}
	if start.After(now.Add(lim.FutureStartGrace)) {
		return fmt.Errorf("%w: %s ahead", ErrStartInFuture, start.Sub(now))
	}
	if end.After(now.Add(lim.FutureEndGrace)) {
		return fmt.Errorf("%w: %s ahead", ErrEndInFuture, end.Sub(now))
	}

	elapsed := int64(end.Sub(start) / time.Second)
	expected := int64(expectedMinutes) * 60
	tol := Tolerance(expectedMinutes)
	if elapsed < expected-tol {
		return fmt.Errorf("%w: %ds elapsed, want at least %ds", ErrTooEarly, elapsed, expected-tol)
	}
	if late := int64(lim.MaxLate / time.Second); elapsed > expected+tol+late {
		return fmt.Errorf("%w: %ds elapsed, want at most %ds", ErrTooLong, elapsed, expected+tol+late)
	}
	return nil
}
