// Package analytics computes roll-up statistics over finished executions.
//
// Stats are derived on demand from the store's execution records; nothing is
// cached or incrementally maintained, which keeps the collector trivially
// consistent with the append-only history.
package analytics

import (
	"fmt"
	"log/slog"

	"github.com/Rolii95/neurotype-planner/internal/models"
	"github.com/Rolii95/neurotype-planner/internal/store"
)

// BoardStats summarizes how a board's executions have gone over time.
type BoardStats struct {
	BoardID               string  `json:"board_id"`
	TotalExecutions       int     `json:"total_executions"`
	CompletedExecutions   int     `json:"completed_executions"`
	AbandonedExecutions   int     `json:"abandoned_executions"`
	CompletionRate        float64 `json:"completion_rate"`
	AverageDurationSecs   float64 `json:"average_duration_seconds"`
	AverageCompletionPct  float64 `json:"average_completion_percentage"`
	AverageSatisfaction   float64 `json:"average_satisfaction,omitempty"`
	RatedExecutions       int     `json:"rated_executions"`
	TotalInterruptions    int     `json:"total_interruptions"`
	SkippedStepOccurrence int     `json:"skipped_step_occurrences"`
}

// StepStats summarizes one step's behavior across a board's executions.
type StepStats struct {
	StepID              string  `json:"step_id"`
	Occurrences         int     `json:"occurrences"`
	AverageTimeSpent    float64 `json:"average_time_spent_seconds"`
	SkipCount           int     `json:"skip_count"`
	AutoAdvanceCount    int     `json:"auto_advance_count"`
	InterruptedOutcomes int     `json:"interrupted_outcomes"`
}

// Collector computes statistics from a store backend.
type Collector struct {
	store store.Store
}

// NewCollector creates a collector over the given store.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// BoardStats aggregates all terminal executions of one board. Live
// executions (active, paused) are excluded so a running session never skews
// the averages.
func (c *Collector) BoardStats(boardID string) (BoardStats, error) {
	records, err := c.store.ListExecutionsByBoard(boardID)
	if err != nil {
		slog.Error("Analytics BoardStats failed", "error", err, "boardID", boardID)
		return BoardStats{}, fmt.Errorf("failed to list executions for board: %w", err)
	}

	stats := Compute(boardID, records)
	slog.Debug("Analytics BoardStats computed", "boardID", boardID, "total", stats.TotalExecutions)
	return stats, nil
}

// StepStats aggregates per-step history across all terminal executions of
// one board, keyed by step ID.
func (c *Collector) StepStats(boardID string) (map[string]StepStats, error) {
	records, err := c.store.ListExecutionsByBoard(boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions for board: %w", err)
	}
	return ComputeSteps(records), nil
}

// Compute derives board statistics from a set of execution records. Only
// terminal records contribute.
func Compute(boardID string, records []models.ExecutionRecord) BoardStats {
	stats := BoardStats{BoardID: boardID}

	var durationSum, completionSum, satisfactionSum int
	for i := range records {
		rec := &records[i]
		if !rec.Status.Terminal() {
			continue
		}
		stats.TotalExecutions++
		completionSum += rec.CompletionPercentage
		stats.TotalInterruptions += len(rec.Interruptions)

		switch rec.Status {
		case models.ExecutionCompleted:
			stats.CompletedExecutions++
		case models.ExecutionAbandoned:
			stats.AbandonedExecutions++
		}

		durationSum += rec.DurationSeconds()

		if rec.SatisfactionRating != nil {
			stats.RatedExecutions++
			satisfactionSum += *rec.SatisfactionRating
		}
		for _, entry := range rec.StepHistory {
			if entry.Outcome == models.OutcomeSkipped {
				stats.SkippedStepOccurrence++
			}
		}
	}

	if stats.TotalExecutions > 0 {
		stats.CompletionRate = float64(stats.CompletedExecutions) / float64(stats.TotalExecutions)
		stats.AverageDurationSecs = float64(durationSum) / float64(stats.TotalExecutions)
		stats.AverageCompletionPct = float64(completionSum) / float64(stats.TotalExecutions)
	}
	if stats.RatedExecutions > 0 {
		stats.AverageSatisfaction = float64(satisfactionSum) / float64(stats.RatedExecutions)
	}
	return stats
}

// ComputeSteps derives per-step statistics from a set of execution records.
func ComputeSteps(records []models.ExecutionRecord) map[string]StepStats {
	timeSums := make(map[string]int)
	out := make(map[string]StepStats)

	for i := range records {
		rec := &records[i]
		if !rec.Status.Terminal() {
			continue
		}
		for _, entry := range rec.StepHistory {
			s := out[entry.StepID]
			s.StepID = entry.StepID
			s.Occurrences++
			timeSums[entry.StepID] += entry.TimeSpentSeconds
			switch entry.Outcome {
			case models.OutcomeSkipped:
				s.SkipCount++
			case models.OutcomeAutoAdvanced:
				s.AutoAdvanceCount++
			case models.OutcomeInterrupted:
				s.InterruptedOutcomes++
			}
			out[entry.StepID] = s
		}
	}

	for id, s := range out {
		if s.Occurrences > 0 {
			s.AverageTimeSpent = float64(timeSums[id]) / float64(s.Occurrences)
			out[id] = s
		}
	}
	return out
}
