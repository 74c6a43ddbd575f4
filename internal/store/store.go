// Package store provides storage backends for boards and execution records.
//
// It includes an in-memory store for tests and unit wiring, and persistent
// SQLite and PostgreSQL backends. All append operations are idempotent:
// step-history, interruption, and modification entries carry a
// sequencer-assigned sequence number, and backends upsert on
// (execution_id, seq) so a retried append never double-counts.
package store

import (
	"time"

	"github.com/Rolii95/neurotype-planner/internal/models"
)

// Store is the durable persistence surface consumed by the execution
// recorder and the analytics collector.
type Store interface {
	// SaveBoard inserts or replaces an externally authored board.
	SaveBoard(board models.Board) error
	// GetBoard returns a board by ID, or nil if absent.
	GetBoard(id string) (*models.Board, error)
	// ListBoards returns all stored boards.
	ListBoards() ([]models.Board, error)

	// CreateExecution inserts a new execution record. Creating an existing
	// ID again is a no-op so a retried begin is safe.
	CreateExecution(rec models.ExecutionRecord) error
	// GetExecution returns a fully hydrated execution record, or nil if
	// absent.
	GetExecution(id string) (*models.ExecutionRecord, error)
	// ListExecutionsByBoard returns all execution records for one board.
	ListExecutionsByBoard(boardID string) ([]models.ExecutionRecord, error)
	// ListExecutionsByStatus returns all execution records in one status.
	ListExecutionsByStatus(status models.ExecutionStatus) ([]models.ExecutionRecord, error)

	// UpsertStepRecord appends one step-history entry, keyed by seq.
	UpsertStepRecord(executionID string, entry models.StepRecord) error
	// UpsertInterruption appends one interruptions entry, keyed by seq.
	UpsertInterruption(executionID string, entry models.Interruption) error
	// UpsertModification appends one modifications entry, keyed by seq.
	UpsertModification(executionID string, entry models.Modification) error

	// UpdateExecutionProgress updates the live status fields of a running
	// record: status, current step, completion percentage.
	UpdateExecutionProgress(executionID string, status models.ExecutionStatus, currentStepID string, completionPercentage int) error
	// FinalizeExecution moves a record to a terminal status and stamps
	// completed_at. Repeating the identical call is safe.
	FinalizeExecution(executionID string, status models.ExecutionStatus, completedAt time.Time, completionPercentage int) error
	// AttachRatings stores finalize-step ratings/notes and marks the record
	// finalized.
	AttachRatings(executionID string, ratings models.Ratings) error

	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options for persistent store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the backend connection string: a file path for SQLite or a
// postgres:// URL for PostgreSQL.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}
