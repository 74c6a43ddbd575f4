// Package timer implements the countdown that tracks how much time remains in
// the currently active step.
//
// The countdown never reads the wall clock. The host injects ticks (one per
// time unit) through Tick, which makes step timing deterministic and testable
// with synthetic ticks. A Countdown is not safe for concurrent use; callers
// serialize access the same way they serialize the sequencer that owns it.
package timer

import (
	"log/slog"

	"github.com/Rolii95/neurotype-planner/internal/models"
)

// EventKind classifies the result of a single tick.
type EventKind string

const (
	// EventRunning reports an ordinary decrement with time still remaining.
	EventRunning EventKind = "running"
	// EventWarning reports the single crossing of the warning threshold.
	EventWarning EventKind = "warning"
	// EventExpired reports the single exhaustion of the countdown.
	EventExpired EventKind = "expired"
	// EventOverrun reports continued ticking past zero when overrun is allowed.
	EventOverrun EventKind = "overrun"
	// EventIdle reports a tick that was ignored: the countdown is untimed,
	// paused, held, cancelled, or already expired without overrun.
	EventIdle EventKind = "idle"
)

// Event is the outcome of one tick.
type Event struct {
	Kind      EventKind
	Remaining int // seconds left after this tick
	Overrun   int // seconds elapsed past zero, only set for EventOverrun
}

// Countdown is the single source of truth for remaining time in one step.
// Arm creates it; the owner drives it with Tick.
type Countdown struct {
	duration  int
	remaining int
	warning   int

	allowOverrun bool
	untimed      bool

	paused    bool
	held      bool
	cancelled bool

	warningFired bool
	expiredFired bool
	overrun      int
}

// Option configures an armed countdown.
type Option func(*Countdown)

// AllowOverrun lets the countdown keep ticking past zero, reporting overrun
// elapsed instead of going silent after expiry.
func AllowOverrun() Option {
	return func(c *Countdown) { c.allowOverrun = true }
}

// Hold arms the countdown in a not-yet-ticking sub-state. Ticks are ignored
// until Resume releases it. Used for steps with auto_start disabled.
func Hold() Option {
	return func(c *Countdown) { c.held = true }
}

// Arm creates a countdown with the given duration and warning threshold, both
// in seconds. A negative duration is rejected with models.ErrInvalidDuration.
// A zero duration arms an untimed countdown that never ticks down and never
// expires; such a step must be completed manually. A zero warning threshold
// disables the warning.
func Arm(durationSeconds, warningSeconds int, opts ...Option) (*Countdown, error) {
	if durationSeconds < 0 {
		slog.Error("Countdown arm rejected", "duration", durationSeconds)
		return nil, models.ErrInvalidDuration
	}
	if warningSeconds < 0 {
		slog.Error("Countdown arm rejected", "warning", warningSeconds)
		return nil, models.ErrInvalidWarning
	}

	c := &Countdown{
		duration:  durationSeconds,
		remaining: durationSeconds,
		warning:   warningSeconds,
		untimed:   durationSeconds == 0,
	}
	for _, opt := range opts {
		opt(c)
	}

	slog.Debug("Countdown armed", "duration", durationSeconds, "warning", warningSeconds,
		"allowOverrun", c.allowOverrun, "held", c.held, "untimed", c.untimed)
	return c, nil
}

// Tick advances the countdown by exactly one time unit and reports what
// happened. Ticks arriving while the countdown is paused, held, untimed, or
// cancelled are ignored and reported as EventIdle; paused time is never
// deducted and never replayed.
func (c *Countdown) Tick() Event {
	if c.cancelled || c.untimed || c.paused || c.held {
		return Event{Kind: EventIdle, Remaining: c.remaining}
	}

	if c.remaining > 0 {
		pre := c.remaining
		c.remaining--
		if !c.warningFired && c.warning > 0 && pre <= c.warning {
			c.warningFired = true
			slog.Debug("Countdown warning fired", "remaining", c.remaining)
			return Event{Kind: EventWarning, Remaining: c.remaining}
		}
		return Event{Kind: EventRunning, Remaining: c.remaining}
	}

	if !c.expiredFired {
		c.expiredFired = true
		slog.Debug("Countdown expired")
		return Event{Kind: EventExpired, Remaining: 0}
	}

	if c.allowOverrun {
		c.overrun++
		return Event{Kind: EventOverrun, Remaining: 0, Overrun: c.overrun}
	}

	return Event{Kind: EventIdle, Remaining: 0}
}

// Pause freezes tick processing. Remaining time is preserved exactly;
// Pause is idempotent.
func (c *Countdown) Pause() {
	c.paused = true
}

// Resume releases a paused or held countdown. The next tick behaves exactly
// as it would have without the pause.
func (c *Countdown) Resume() {
	c.paused = false
	c.held = false
}

// Adjust adds delta seconds to the remaining time, extending or shortening a
// flexible step mid-run. The armed duration moves with it, so Elapsed is
// unchanged at the moment of adjustment. Warning and expiry state are not
// reset. Remaining never drops below zero; the applied delta is returned.
// Untimed, cancelled, and expired countdowns are not adjustable.
func (c *Countdown) Adjust(delta int) int {
	if c.untimed || c.cancelled || c.expiredFired {
		return 0
	}
	next := c.remaining + delta
	if next < 0 {
		next = 0
	}
	applied := next - c.remaining
	c.remaining = next
	c.duration += applied
	slog.Debug("Countdown adjusted", "delta", applied, "remaining", c.remaining)
	return applied
}

// Cancel stops the countdown permanently. Idempotent; subsequent ticks are
// ignored.
func (c *Countdown) Cancel() {
	c.cancelled = true
}

// Remaining returns the seconds left on the countdown.
func (c *Countdown) Remaining() int {
	return c.remaining
}

// OverrunElapsed returns how many seconds the countdown has run past zero.
func (c *Countdown) OverrunElapsed() int {
	return c.overrun
}

// Elapsed returns the seconds consumed by this step: armed duration minus
// remaining, plus any overrun past zero. Untimed countdowns report 0.
func (c *Countdown) Elapsed() int {
	return c.duration - c.remaining + c.overrun
}

// Untimed reports whether the countdown was armed with zero duration.
func (c *Countdown) Untimed() bool {
	return c.untimed
}

// Paused reports whether tick processing is currently frozen by Pause.
func (c *Countdown) Paused() bool {
	return c.paused
}

// Held reports whether the countdown is armed but waiting for an explicit
// start signal.
func (c *Countdown) Held() bool {
	return c.held
}

// Expired reports whether the countdown has exhausted its duration.
func (c *Countdown) Expired() bool {
	return c.expiredFired
}
