// Package recorder provides durable append-only logging of execution
// transitions.
//
// The sequencer's in-memory state stays authoritative: the recorder is an
// observer/sink. Every append carries a sequencer-assigned sequence number as
// its stable identity, so a caller retrying a failed append after a
// persistence outage can repeat the exact call safely.
package recorder

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Rolii95/neurotype-planner/internal/models"
	"github.com/Rolii95/neurotype-planner/internal/store"
	"github.com/Rolii95/neurotype-planner/internal/util"
)

// Recorder is the persistence surface the sequencer writes through.
type Recorder interface {
	// Begin creates and persists a fresh active execution record for a board.
	// It returns before any step outcome can be appended.
	Begin(boardID string) (models.ExecutionRecord, error)
	// AppendStepOutcome persists one step-history entry. Idempotent per seq.
	AppendStepOutcome(recordID string, entry models.StepRecord) error
	// AppendInterruption persists one interruptions entry. Idempotent per seq.
	AppendInterruption(recordID string, entry models.Interruption) error
	// AppendModification persists one modifications entry. Idempotent per seq.
	AppendModification(recordID string, entry models.Modification) error
	// UpdateProgress persists the record's live status fields.
	UpdateProgress(recordID string, status models.ExecutionStatus, currentStepID string, completionPercentage int) error
	// Finalize moves the record to a terminal status and stamps completed_at.
	Finalize(recordID string, status models.ExecutionStatus, completedAt time.Time, completionPercentage int) error
	// AttachRatings attaches finalize-step ratings/notes exactly once;
	// repeated calls fail with models.ErrAlreadyFinalized.
	AttachRatings(recordID string, ratings models.Ratings) error
}

// StoreRecorder implements Recorder over a store.Store backend.
type StoreRecorder struct {
	store store.Store
	clock func() time.Time
}

// Compile-time check that StoreRecorder implements Recorder.
var _ Recorder = (*StoreRecorder)(nil)

// Opts holds configuration options for the recorder.
type Opts struct {
	Clock func() time.Time
}

// Option defines a configuration option for the recorder.
type Option func(*Opts)

// WithClock overrides the wall clock, used by tests to pin timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// NewStoreRecorder creates a recorder persisting to the given store.
func NewStoreRecorder(st store.Store, opts ...Option) *StoreRecorder {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	slog.Debug("Creating StoreRecorder")
	return &StoreRecorder{store: st, clock: cfg.Clock}
}

// Begin creates a fresh active execution record for the given board.
func (r *StoreRecorder) Begin(boardID string) (models.ExecutionRecord, error) {
	rec := models.ExecutionRecord{
		ID:        util.GenerateExecutionID(),
		BoardID:   boardID,
		Status:    models.ExecutionActive,
		StartedAt: r.clock(),
	}
	if err := r.store.CreateExecution(rec); err != nil {
		slog.Error("Recorder Begin failed", "error", err, "boardID", boardID)
		return models.ExecutionRecord{}, fmt.Errorf("failed to begin execution record: %w", err)
	}
	slog.Info("Recorder began execution", "executionID", rec.ID, "boardID", boardID)
	return rec, nil
}

// AppendStepOutcome persists one step-history entry.
func (r *StoreRecorder) AppendStepOutcome(recordID string, entry models.StepRecord) error {
	if !models.IsValidStepOutcome(entry.Outcome) {
		return fmt.Errorf("%w: %q", models.ErrInvalidOutcome, entry.Outcome)
	}
	if err := r.store.UpsertStepRecord(recordID, entry); err != nil {
		slog.Error("Recorder AppendStepOutcome failed", "error", err, "executionID", recordID, "seq", entry.Seq)
		return fmt.Errorf("failed to append step outcome: %w", err)
	}
	slog.Debug("Recorder AppendStepOutcome succeeded", "executionID", recordID, "seq", entry.Seq, "outcome", entry.Outcome)
	return nil
}

// AppendInterruption persists one interruptions entry.
func (r *StoreRecorder) AppendInterruption(recordID string, entry models.Interruption) error {
	if err := r.store.UpsertInterruption(recordID, entry); err != nil {
		slog.Error("Recorder AppendInterruption failed", "error", err, "executionID", recordID, "seq", entry.Seq)
		return fmt.Errorf("failed to append interruption: %w", err)
	}
	return nil
}

// AppendModification persists one modifications entry.
func (r *StoreRecorder) AppendModification(recordID string, entry models.Modification) error {
	if err := r.store.UpsertModification(recordID, entry); err != nil {
		slog.Error("Recorder AppendModification failed", "error", err, "executionID", recordID, "seq", entry.Seq)
		return fmt.Errorf("failed to append modification: %w", err)
	}
	return nil
}

// UpdateProgress persists the record's live status fields.
func (r *StoreRecorder) UpdateProgress(recordID string, status models.ExecutionStatus, currentStepID string, completionPercentage int) error {
	if err := r.store.UpdateExecutionProgress(recordID, status, currentStepID, completionPercentage); err != nil {
		slog.Error("Recorder UpdateProgress failed", "error", err, "executionID", recordID)
		return fmt.Errorf("failed to update execution progress: %w", err)
	}
	return nil
}

// Finalize moves the record to a terminal status.
func (r *StoreRecorder) Finalize(recordID string, status models.ExecutionStatus, completedAt time.Time, completionPercentage int) error {
	if !status.Terminal() {
		return fmt.Errorf("finalize requires a terminal status, got %q", status)
	}
	if err := r.store.FinalizeExecution(recordID, status, completedAt, completionPercentage); err != nil {
		slog.Error("Recorder Finalize failed", "error", err, "executionID", recordID, "status", status)
		return fmt.Errorf("failed to finalize execution record: %w", err)
	}
	slog.Info("Recorder finalized execution", "executionID", recordID, "status", status, "completion", completionPercentage)
	return nil
}

// AttachRatings attaches finalize-step ratings/notes exactly once.
func (r *StoreRecorder) AttachRatings(recordID string, ratings models.Ratings) error {
	if err := ratings.Validate(); err != nil {
		return err
	}
	rec, err := r.store.GetExecution(recordID)
	if err != nil {
		return fmt.Errorf("failed to load execution record: %w", err)
	}
	if rec == nil {
		return models.ErrRecordNotFound
	}
	if rec.Finalized {
		slog.Warn("Recorder AttachRatings rejected", "executionID", recordID, "reason", "already finalized")
		return models.ErrAlreadyFinalized
	}
	if err := r.store.AttachRatings(recordID, ratings); err != nil {
		slog.Error("Recorder AttachRatings failed", "error", err, "executionID", recordID)
		return fmt.Errorf("failed to attach ratings: %w", err)
	}
	slog.Debug("Recorder AttachRatings succeeded", "executionID", recordID)
	return nil
}
