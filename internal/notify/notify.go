// Package notify translates abstract notification intents into channel
// effects.
//
// The dispatcher issues intents; rendering them (terminal output, audio,
// haptics, remote messages) is the job of pluggable effectors supplied by the
// host. Channel failures are soft by contract: they are logged and reported
// in the DispatchResult but never propagate as errors, so a missing or broken
// channel can never disturb step progression.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Rolii95/neurotype-planner/internal/models"
)

// errNoEffector reports a dispatch on a channel the host never wired up.
// It is a soft failure like any other channel error.
var errNoEffector = errors.New("no effector registered for channel")

// Intent names the engine event being announced.
type Intent string

const (
	// IntentWarning announces that the current step's warning threshold was crossed.
	IntentWarning Intent = "warning"
	// IntentStepComplete announces that a step finished.
	IntentStepComplete Intent = "step_complete"
	// IntentExecutionComplete announces that the whole board finished.
	IntentExecutionComplete Intent = "execution_complete"
)

// Effector renders one notification effect on a concrete channel. Hints carry
// the step's opaque neurotype adaptations; effectors may consult them for
// per-user tuning and must ignore keys they do not understand.
type Effector interface {
	Render(ctx context.Context, intent Intent, intensity models.NotificationIntensity, hints map[string]string) error
}

// DispatchResult reports what a single dispatch call did.
type DispatchResult struct {
	Intent    Intent
	Channel   models.NotificationChannel
	Delivered bool
	Err       error // soft failure, informational only
}

// Dispatcher routes intents to the effector registered for the configured
// channel. It holds no cross-call state and is safe to invoke concurrently
// for independent intents.
type Dispatcher struct {
	effectors map[models.NotificationChannel]Effector
	mirrors   []Effector
}

// Opts holds configuration options for the dispatcher.
type Opts struct {
	Effectors map[models.NotificationChannel]Effector
	Mirrors   []Effector
}

// Option defines a configuration option for the dispatcher.
type Option func(*Opts)

// WithEffector registers the effector rendering the given channel.
func WithEffector(channel models.NotificationChannel, e Effector) Option {
	return func(o *Opts) {
		if o.Effectors == nil {
			o.Effectors = make(map[models.NotificationChannel]Effector)
		}
		o.Effectors[channel] = e
	}
}

// WithMirror registers an effector that receives every dispatched intent in
// addition to the channel effector, regardless of the configured channel.
// Used for remote reminder sinks (SMS, WhatsApp).
func WithMirror(e Effector) Option {
	return func(o *Opts) {
		o.Mirrors = append(o.Mirrors, e)
	}
}

// NewDispatcher creates a dispatcher with the provided channel effectors.
// Channels without a registered effector soft-fail at dispatch time.
func NewDispatcher(opts ...Option) *Dispatcher {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Creating notification dispatcher", "effectors", len(cfg.Effectors), "mirrors", len(cfg.Mirrors))
	return &Dispatcher{effectors: cfg.Effectors, mirrors: cfg.Mirrors}
}

// Dispatch renders one intent through the channel selected by cfg. A channel
// of "none" is a successful no-op. Effector failures are logged and recorded
// in the result; Dispatch itself never fails.
func (d *Dispatcher) Dispatch(ctx context.Context, intent Intent, cfg models.NotificationConfig, hints map[string]string) DispatchResult {
	result := DispatchResult{Intent: intent, Channel: cfg.Channel}

	if cfg.Channel == models.ChannelNone {
		slog.Debug("Dispatch suppressed by channel none", "intent", intent)
		result.Delivered = true
		return result
	}

	effector, ok := d.effectors[cfg.Channel]
	if !ok {
		slog.Warn("Dispatch has no effector for channel", "intent", intent, "channel", cfg.Channel)
		result.Err = errNoEffector
	} else if err := effector.Render(ctx, intent, cfg.Intensity, hints); err != nil {
		slog.Warn("Notification effector failed", "error", err, "intent", intent, "channel", cfg.Channel, "intensity", cfg.Intensity)
		result.Err = err
	} else {
		result.Delivered = true
	}

	for _, m := range d.mirrors {
		if err := m.Render(ctx, intent, cfg.Intensity, hints); err != nil {
			slog.Warn("Notification mirror failed", "error", err, "intent", intent)
			if result.Err == nil {
				result.Err = err
			}
		}
	}

	slog.Debug("Dispatch finished", "intent", intent, "channel", cfg.Channel, "delivered", result.Delivered)
	return result
}
