// Package timeout measures elapsed time against a fixed budget and runs
// bounded retry loops on top of it.
//
// A Tracker is created fresh for every bounded operation and is never
// reused. Elapsed time is measured in whole milliseconds, so a positive
// budget is never reported as spent at a zero delta. A clock that runs
// backward between Start and a later check is an unrecoverable environment
// fault and panics with a CLOCK_REGRESSION error.
package timeout

import (
	"fmt"
	"runtime"
	"time"

	"github.com/billm/baaaht/messenger/pkg/types"
)

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// RealClock uses the standard library time functions
type RealClock struct{}

// Now returns the current time
func (RealClock) Now() time.Time { return time.Now() }

// Tracker records a start instant and a timeout budget
type Tracker struct {
	clock  Clock
	start  time.Time
	budget time.Duration
}

// Start begins tracking a budget against the wall clock
func Start(budget time.Duration) *Tracker {
	return StartWithClock(RealClock{}, budget)
}

// StartWithClock begins tracking a budget against the given clock
func StartWithClock(clock Clock, budget time.Duration) *Tracker {
	if clock == nil {
		panic(types.Violation("timeout: clock cannot be nil"))
	}
	if budget < 0 {
		panic(types.Violation(fmt.Sprintf("timeout: budget cannot be negative (%s)", budget)))
	}
	return &Tracker{
		clock:  clock,
		start:  clock.Now(),
		budget: budget,
	}
}

// Budget returns the configured budget
func (t *Tracker) Budget() time.Duration {
	return t.budget
}

// Started returns the instant the tracker was created
func (t *Tracker) Started() time.Time {
	return t.start
}

// since returns the time since start truncated to whole milliseconds
func (t *Tracker) since() time.Duration {
	now := t.clock.Now()
	if now.Before(t.start) {
		panic(types.NewError(types.ErrCodeClockRegression,
			fmt.Sprintf("timeout: clock ran backward by %s", t.start.Sub(now))))
	}
	return now.Sub(t.start).Truncate(time.Millisecond)
}

// Elapsed reports whether the budget has been spent
func (t *Tracker) Elapsed() bool {
	return t.since() >= t.budget
}

// Remaining returns the unspent part of the budget, never negative
func (t *Tracker) Remaining() time.Duration {
	left := t.budget - t.since()
	if left < 0 {
		return 0
	}
	return left
}

// Retry runs attempt until it reports done, fails, or the tracker elapses.
// At least one attempt is always made. Between failed attempts it sleeps for
// poll, capped at the remaining budget; a zero poll only yields the processor.
// The boolean result is false when the budget ran out first.
func Retry(t *Tracker, poll time.Duration, attempt func() (bool, error)) (bool, error) {
	for {
		done, err := attempt()
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
		if t.Elapsed() {
			return false, nil
		}
		pause(t, poll)
	}
}

// Waiter parks the caller until progress may be possible or d passes
type Waiter interface {
	Wait(d time.Duration)
}

// RetryWait is Retry with the pause delegated to w, which parks for the
// rest of the budget unless the transport signals progress first. A nil w
// falls back to Retry with the given poll interval.
func RetryWait(t *Tracker, poll time.Duration, w Waiter, attempt func() (bool, error)) (bool, error) {
	if w == nil {
		return Retry(t, poll, attempt)
	}
	for {
		done, err := attempt()
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
		if t.Elapsed() {
			return false, nil
		}
		w.Wait(t.Remaining())
	}
}

func pause(t *Tracker, poll time.Duration) {
	if poll <= 0 {
		runtime.Gosched()
		return
	}
	if remaining := t.Remaining(); poll > remaining {
		poll = remaining
	}
	time.Sleep(poll)
}
