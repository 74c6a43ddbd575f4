// Package recovery reconciles execution records left behind by a crashed or
// killed runner.
//
// The in-memory sequencer is the single writer of a live execution, so a
// record still marked active or paused on startup belongs to a session that
// no longer exists. The sweeper closes such records as abandoned and notes
// the host interruption in their audit trail, keeping analytics honest about
// runs that never finished.
package recovery

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Rolii95/neurotype-planner/internal/models"
	"github.com/Rolii95/neurotype-planner/internal/store"
)

// Sweeper finalizes stale execution records on startup.
type Sweeper struct {
	store store.Store
	clock func() time.Time
}

// Opts holds configuration options for the sweeper.
type Opts struct {
	Clock func() time.Time
}

// Option defines a configuration option for the sweeper.
type Option func(*Opts)

// WithClock overrides the wall clock, used by tests to pin timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// NewSweeper creates a sweeper over the given store.
func NewSweeper(st store.Store, opts ...Option) *Sweeper {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Sweeper{store: st, clock: cfg.Clock}
}

// Sweep finds all executions still marked active or paused and closes them
// as abandoned. It returns the number of records swept; individual failures
// are collected so one wedged record does not block the rest.
func (s *Sweeper) Sweep() (int, error) {
	var stale []models.ExecutionRecord
	for _, status := range []models.ExecutionStatus{models.ExecutionActive, models.ExecutionPaused} {
		records, err := s.store.ListExecutionsByStatus(status)
		if err != nil {
			return 0, fmt.Errorf("failed to list %s executions: %w", status, err)
		}
		stale = append(stale, records...)
	}

	if len(stale) == 0 {
		slog.Debug("Recovery sweep found no stale executions")
		return 0, nil
	}

	slog.Info("Recovery sweep closing stale executions", "count", len(stale))

	swept := 0
	var errs []error
	for i := range stale {
		if err := s.close(&stale[i]); err != nil {
			slog.Error("Recovery sweep failed for execution", "error", err, "executionID", stale[i].ID)
			errs = append(errs, err)
			continue
		}
		swept++
	}

	slog.Info("Recovery sweep completed", "swept", swept, "errors", len(errs))
	return swept, errors.Join(errs...)
}

func (s *Sweeper) close(rec *models.ExecutionRecord) error {
	now := s.clock()

	entry := models.Interruption{
		Seq:    nextSeq(rec),
		At:     now,
		Reason: models.InterruptionHostCrash,
	}
	if err := s.store.UpsertInterruption(rec.ID, entry); err != nil {
		return fmt.Errorf("failed to record host interruption for %s: %w", rec.ID, err)
	}
	if err := s.store.FinalizeExecution(rec.ID, models.ExecutionAbandoned, now, rec.CompletionPercentage); err != nil {
		return fmt.Errorf("failed to finalize stale execution %s: %w", rec.ID, err)
	}

	slog.Debug("Recovery sweep closed execution", "executionID", rec.ID, "completion", rec.CompletionPercentage)
	return nil
}

// nextSeq returns one past the record's highest persisted sequence number so
// the sweep's interruption never collides with a sequencer-assigned entry.
func nextSeq(rec *models.ExecutionRecord) int {
	max := 0
	for _, e := range rec.StepHistory {
		if e.Seq > max {
			max = e.Seq
		}
	}
	for _, e := range rec.Interruptions {
		if e.Seq > max {
			max = e.Seq
		}
	}
	for _, e := range rec.Modifications {
		if e.Seq > max {
			max = e.Seq
		}
	}
	return max + 1
}
