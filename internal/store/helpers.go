package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Rolii95/neurotype-planner/internal/models"
)

// DetectDSNType inspects a connection string and reports "postgres" or
// "sqlite". Anything that is not a recognizable PostgreSQL URL or key/value
// DSN is treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalSteps serializes a board's steps for the steps_json column.
func marshalSteps(steps []models.BoardStep) (string, error) {
	data, err := json.Marshal(steps)
	if err != nil {
		return "", fmt.Errorf("failed to marshal board steps: %w", err)
	}
	return string(data), nil
}

// unmarshalSteps deserializes the steps_json column.
func unmarshalSteps(data string) ([]models.BoardStep, error) {
	if data == "" {
		return nil, nil
	}
	var steps []models.BoardStep
	if err := json.Unmarshal([]byte(data), &steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal board steps: %w", err)
	}
	return steps, nil
}

// scanExecutionRow scans the executions columns shared by both SQL backends.
func scanExecutionRow(scanner interface{ Scan(...interface{}) error }) (models.ExecutionRecord, error) {
	var rec models.ExecutionRecord
	var currentStepID, notes sql.NullString
	var satisfaction, difficulty sql.NullInt64
	var completedAt sql.NullTime

	err := scanner.Scan(
		&rec.ID, &rec.BoardID, &rec.Status, &currentStepID, &rec.CompletionPercentage,
		&satisfaction, &difficulty, &notes, &rec.Finalized, &rec.StartedAt, &completedAt,
	)
	if err != nil {
		return rec, err
	}
	rec.CurrentStepID = currentStepID.String
	rec.Notes = notes.String
	if satisfaction.Valid {
		v := int(satisfaction.Int64)
		rec.SatisfactionRating = &v
	}
	if difficulty.Valid {
		v := int(difficulty.Int64)
		rec.DifficultyRating = &v
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return rec, nil
}

// sortRecordEntries orders a hydrated record's audit trails by seq. SQL
// queries already order, but the shared hydration path keeps both backends
// honest.
func sortRecordEntries(rec *models.ExecutionRecord) {
	sort.Slice(rec.StepHistory, func(i, j int) bool { return rec.StepHistory[i].Seq < rec.StepHistory[j].Seq })
	sort.Slice(rec.Interruptions, func(i, j int) bool { return rec.Interruptions[i].Seq < rec.Interruptions[j].Seq })
	sort.Slice(rec.Modifications, func(i, j int) bool { return rec.Modifications[i].Seq < rec.Modifications[j].Seq })
}
