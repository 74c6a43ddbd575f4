// Package models defines execution record structures for board runs.
package models

import (
	"errors"
	"fmt"
	"time"
)

// ExecutionStatus represents the lifecycle state of an execution record.
type ExecutionStatus string

const (
	ExecutionNotStarted ExecutionStatus = "not_started"
	ExecutionActive     ExecutionStatus = "active"
	ExecutionPaused     ExecutionStatus = "paused"
	ExecutionCompleted  ExecutionStatus = "completed"
	ExecutionAbandoned  ExecutionStatus = "abandoned"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionAbandoned
}

// IsValidExecutionStatus checks if the given execution status is supported.
func IsValidExecutionStatus(s ExecutionStatus) bool {
	switch s {
	case ExecutionNotStarted, ExecutionActive, ExecutionPaused, ExecutionCompleted, ExecutionAbandoned:
		return true
	default:
		return false
	}
}

// StepOutcome records how a step left the active position.
type StepOutcome string

const (
	OutcomeCompleted    StepOutcome = "completed"
	OutcomeSkipped      StepOutcome = "skipped"
	OutcomeAutoAdvanced StepOutcome = "auto_advanced"
	OutcomeInterrupted  StepOutcome = "interrupted"
)

// IsValidStepOutcome checks if the given step outcome is supported.
func IsValidStepOutcome(o StepOutcome) bool {
	switch o {
	case OutcomeCompleted, OutcomeSkipped, OutcomeAutoAdvanced, OutcomeInterrupted:
		return true
	default:
		return false
	}
}

// Rating bounds for finalize input.
const (
	MinRating = 1
	MaxRating = 5
)

// Error variables for execution record handling
var (
	ErrStepNotSkippable   = errors.New("step is not optional and cannot be skipped")
	ErrAlreadyFinalized   = errors.New("execution record is already finalized")
	ErrNotCompleted       = errors.New("execution is not in a completed state")
	ErrRecordTerminal     = errors.New("execution record is terminal and immutable")
	ErrRecordNotFound     = errors.New("execution record not found")
	ErrInvalidRating      = errors.New("rating must be between 1 and 5")
	ErrInvalidOutcome     = errors.New("invalid step outcome")
	ErrExecutionNotActive = errors.New("execution is not active")
	ErrExecutionNotPaused = errors.New("execution is not paused")
	ErrExecutionStarted   = errors.New("execution has already been started")
	ErrStepNotFlexible    = errors.New("step is not flexible and cannot be adjusted")
)

// StepRecord is one step_history entry: how one step was entered and left.
// Seq is the sequencer-assigned ordering and idempotency key within a record.
type StepRecord struct {
	Seq              int         `json:"seq"`
	StepID           string      `json:"step_id"`
	EnteredAt        time.Time   `json:"entered_at"`
	LeftAt           time.Time   `json:"left_at"`
	Outcome          StepOutcome `json:"outcome"`
	TimeSpentSeconds int         `json:"time_spent_seconds"`
}

// Interruption is one append-only interruptions audit entry.
type Interruption struct {
	Seq    int       `json:"seq"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason"`
}

// Interruption reasons recorded by the sequencer.
const (
	InterruptionUserPaused = "user_paused"
	InterruptionHostCrash  = "host_interrupted"
)

// Modification is one append-only modifications audit entry for mid-run
// adjustments of flexible steps.
type Modification struct {
	Seq      int       `json:"seq"`
	At       time.Time `json:"at"`
	Field    string    `json:"field"`
	OldValue string    `json:"old_value"`
	NewValue string    `json:"new_value"`
}

// Ratings is the user feedback attached during finalize.
type Ratings struct {
	Satisfaction *int   `json:"satisfaction_rating,omitempty"`
	Difficulty   *int   `json:"difficulty_rating,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// Validate checks rating bounds. Nil ratings are allowed (rating is optional).
func (r Ratings) Validate() error {
	for _, v := range []*int{r.Satisfaction, r.Difficulty} {
		if v != nil && (*v < MinRating || *v > MaxRating) {
			return fmt.Errorf("%w: got %d", ErrInvalidRating, *v)
		}
	}
	return nil
}

// ExecutionRecord is the persisted, append-only log of one run-through of a
// board. It is single-writer: only the owning sequencer mutates it while the
// run is live, and once terminal it is immutable except for ratings/notes
// attached by finalize.
type ExecutionRecord struct {
	ID                   string          `json:"id"`
	BoardID              string          `json:"board_id"`
	Status               ExecutionStatus `json:"status"`
	CurrentStepID        string          `json:"current_step_id,omitempty"`
	StepHistory          []StepRecord    `json:"step_history,omitempty"`
	Interruptions        []Interruption  `json:"interruptions,omitempty"`
	Modifications        []Modification  `json:"modifications,omitempty"`
	CompletionPercentage int             `json:"completion_percentage"`
	SatisfactionRating   *int            `json:"satisfaction_rating,omitempty"`
	DifficultyRating     *int            `json:"difficulty_rating,omitempty"`
	Notes                string          `json:"notes,omitempty"`
	Finalized            bool            `json:"finalized"`
	StartedAt            time.Time       `json:"started_at"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
}

// CompletionPercentage derives the percentage of a board consumed after
// `consumed` of `total` steps, rounded down to the nearest integer. It is
// monotonically non-decreasing because consumed only ever grows.
func CompletionPercentage(consumed, total int) int {
	if total <= 0 {
		return 0
	}
	if consumed >= total {
		return 100
	}
	return consumed * 100 / total
}

// DurationSeconds reports the wall-clock span of a terminal record, or 0 if
// the record has not reached a terminal state.
func (r *ExecutionRecord) DurationSeconds() int {
	if r.CompletedAt == nil {
		return 0
	}
	d := int(r.CompletedAt.Sub(r.StartedAt) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}
