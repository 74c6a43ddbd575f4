// Package models defines the core data structures for the board execution engine.
//
// It includes board/step definitions supplied by the authoring collaborator and
// the execution records produced by running them, which are shared across modules.
package models

import (
	"errors"
	"fmt"
	"time"
)

// StepType classifies the role of a step within a board.
type StepType string

const (
	// StepTypeTask is a concrete activity the user performs.
	StepTypeTask StepType = "task"
	// StepTypeBreak is a rest period between activities.
	StepTypeBreak StepType = "break"
	// StepTypeNote displays information without requiring action.
	StepTypeNote StepType = "note"
	// StepTypeTransition helps the user switch contexts between activities.
	StepTypeTransition StepType = "transition"
	// StepTypeCheckIn asks the user to reflect on how the run is going.
	StepTypeCheckIn StepType = "check-in"
)

// NotificationChannel selects how a notification intent is rendered.
type NotificationChannel string

const (
	// ChannelVisual renders a transient visual effect.
	ChannelVisual NotificationChannel = "visual"
	// ChannelAudio plays a short tone.
	ChannelAudio NotificationChannel = "audio"
	// ChannelVibration triggers a haptic pattern.
	ChannelVibration NotificationChannel = "vibration"
	// ChannelNone suppresses the notification entirely.
	ChannelNone NotificationChannel = "none"
)

// NotificationIntensity scales how strongly a channel effect is rendered.
type NotificationIntensity string

const (
	IntensitySubtle    NotificationIntensity = "subtle"
	IntensityNormal    NotificationIntensity = "normal"
	IntensityProminent NotificationIntensity = "prominent"
)

// Validation constants for board input validation
const (
	// MaxStepTitleLength defines the maximum allowed length for step titles
	MaxStepTitleLength = 200
	// MaxBoardNameLength defines the maximum allowed length for board names
	MaxBoardNameLength = 200
	// MaxStepDurationSeconds caps a single step at 24 hours
	MaxStepDurationSeconds = 86400
)

// Error variables for better error handling and testability
var (
	ErrEmptyBoard        = errors.New("board has no steps")
	ErrInvalidDuration   = errors.New("step duration cannot be negative")
	ErrDurationTooLong   = errors.New("step duration exceeds maximum length")
	ErrInvalidStepType   = errors.New("invalid step type")
	ErrInvalidChannel    = errors.New("invalid notification channel")
	ErrInvalidIntensity  = errors.New("invalid notification intensity")
	ErrEmptyBoardID      = errors.New("board ID cannot be empty")
	ErrEmptyStepID       = errors.New("step ID cannot be empty")
	ErrStepTitleTooLong  = errors.New("step title exceeds maximum length")
	ErrBoardNameTooLong  = errors.New("board name exceeds maximum length")
	ErrInvalidWarning    = errors.New("warning threshold cannot be negative")
)

// IsValidStepType checks if the given step type is supported.
func IsValidStepType(st StepType) bool {
	switch st {
	case StepTypeTask, StepTypeBreak, StepTypeNote, StepTypeTransition, StepTypeCheckIn:
		return true
	default:
		return false
	}
}

// IsValidChannel checks if the given notification channel is supported.
func IsValidChannel(c NotificationChannel) bool {
	switch c {
	case ChannelVisual, ChannelAudio, ChannelVibration, ChannelNone:
		return true
	default:
		return false
	}
}

// IsValidIntensity checks if the given notification intensity is supported.
func IsValidIntensity(i NotificationIntensity) bool {
	switch i {
	case IntensitySubtle, IntensityNormal, IntensityProminent:
		return true
	default:
		return false
	}
}

// VisualCue carries cosmetic styling for a step. The engine passes it through
// unmodified; only hosts interpret it.
type VisualCue struct {
	Color string `json:"color,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

// NotificationConfig selects the channel and intensity for a step's alerts.
type NotificationConfig struct {
	Channel   NotificationChannel   `json:"channel"`
	Intensity NotificationIntensity `json:"intensity"`
}

// Validate checks a notification configuration.
func (c NotificationConfig) Validate() error {
	if !IsValidChannel(c.Channel) {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, c.Channel)
	}
	if !IsValidIntensity(c.Intensity) {
		return fmt.Errorf("%w: %q", ErrInvalidIntensity, c.Intensity)
	}
	return nil
}

// TimerSettings controls countdown behavior for a single step.
type TimerSettings struct {
	AutoStart               bool               `json:"auto_start"`
	WarningThresholdSeconds int                `json:"warning_threshold_seconds"`
	AllowOverrun            bool               `json:"allow_overrun"`
	Notification            NotificationConfig `json:"notification"`
}

// BoardStep is one timed or untimed unit of a board, executed in sequence.
// A zero DurationSeconds means the step is untimed and must be completed
// manually.
type BoardStep struct {
	ID                   string            `json:"id"`
	OrderIndex           int               `json:"order_index"`
	Title                string            `json:"title,omitempty"`
	StepType             StepType          `json:"step_type"`
	DurationSeconds      int               `json:"duration_seconds"`
	IsFlexible           bool              `json:"is_flexible"`
	IsOptional           bool              `json:"is_optional"`
	VisualCue            VisualCue         `json:"visual_cue,omitempty"`
	TimerSettings        TimerSettings     `json:"timer_settings"`
	NeurotypeAdaptations map[string]string `json:"neurotype_adaptations,omitempty"`
}

// Untimed reports whether the step has no countdown and therefore no
// auto-progression.
func (s BoardStep) Untimed() bool {
	return s.DurationSeconds == 0
}

// Validate performs validation on a single board step.
func (s *BoardStep) Validate() error {
	if s.ID == "" {
		return ErrEmptyStepID
	}
	if !IsValidStepType(s.StepType) {
		return fmt.Errorf("%w: %q", ErrInvalidStepType, s.StepType)
	}
	if s.DurationSeconds < 0 {
		return ErrInvalidDuration
	}
	if s.DurationSeconds > MaxStepDurationSeconds {
		return ErrDurationTooLong
	}
	if len(s.Title) > MaxStepTitleLength {
		return ErrStepTitleTooLong
	}
	if s.TimerSettings.WarningThresholdSeconds < 0 {
		return ErrInvalidWarning
	}
	return s.TimerSettings.Notification.Validate()
}

// Board is an ordered sequence of steps authored externally. The engine reads
// it but never mutates it during execution.
type Board struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Steps     []BoardStep `json:"steps"`
	CreatedAt time.Time   `json:"created_at,omitempty"`
	UpdatedAt time.Time   `json:"updated_at,omitempty"`
}

// Validate performs validation on a board and all of its steps.
func (b *Board) Validate() error {
	if b.ID == "" {
		return ErrEmptyBoardID
	}
	if len(b.Name) > MaxBoardNameLength {
		return ErrBoardNameTooLong
	}
	for i := range b.Steps {
		if err := b.Steps[i].Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}
