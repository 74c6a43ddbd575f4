// Package store PostgreSQL backend.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/Rolii95/neurotype-planner/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists boards and execution records in PostgreSQL. The
// original deployment of this system kept its data in a hosted Postgres, so
// this backend keeps parity with that shape.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	slog.Debug("Running PostgreSQL migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// SaveBoard inserts or replaces a board.
func (s *PostgresStore) SaveBoard(board models.Board) error {
	stepsJSON, err := marshalSteps(board.Steps)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO boards (id, name, steps_json, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, steps_json = EXCLUDED.steps_json, updated_at = EXCLUDED.updated_at`,
		board.ID, board.Name, stepsJSON, board.CreatedAt, board.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore SaveBoard failed", "error", err, "boardID", board.ID)
		return fmt.Errorf("failed to save board %s: %w", board.ID, err)
	}
	slog.Debug("PostgresStore SaveBoard succeeded", "boardID", board.ID)
	return nil
}

// GetBoard retrieves a board by ID, or nil if absent.
func (s *PostgresStore) GetBoard(id string) (*models.Board, error) {
	var b models.Board
	var stepsJSON string
	var createdAt, updatedAt sql.NullTime
	err := s.db.QueryRow(`SELECT id, name, steps_json, created_at, updated_at FROM boards WHERE id = $1`, id).
		Scan(&b.ID, &b.Name, &stepsJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetBoard failed", "error", err, "boardID", id)
		return nil, fmt.Errorf("failed to get board %s: %w", id, err)
	}
	if b.Steps, err = unmarshalSteps(stepsJSON); err != nil {
		return nil, err
	}
	if createdAt.Valid {
		b.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		b.UpdatedAt = updatedAt.Time
	}
	return &b, nil
}

// ListBoards returns all stored boards.
func (s *PostgresStore) ListBoards() ([]models.Board, error) {
	rows, err := s.db.Query(`SELECT id, name, steps_json, created_at, updated_at FROM boards ORDER BY name`)
	if err != nil {
		slog.Error("PostgresStore ListBoards query failed", "error", err)
		return nil, fmt.Errorf("failed to query boards: %w", err)
	}
	defer rows.Close()

	var boards []models.Board
	for rows.Next() {
		var b models.Board
		var stepsJSON string
		var createdAt, updatedAt sql.NullTime
		if err := rows.Scan(&b.ID, &b.Name, &stepsJSON, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan board row: %w", err)
		}
		if b.Steps, err = unmarshalSteps(stepsJSON); err != nil {
			return nil, err
		}
		if createdAt.Valid {
			b.CreatedAt = createdAt.Time
		}
		if updatedAt.Valid {
			b.UpdatedAt = updatedAt.Time
		}
		boards = append(boards, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate board rows: %w", err)
	}
	return boards, nil
}

// CreateExecution inserts a new execution record; re-creating the same ID is
// ignored.
func (s *PostgresStore) CreateExecution(rec models.ExecutionRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO executions
		 (id, board_id, status, current_step_id, completion_percentage, satisfaction_rating, difficulty_rating, notes, finalized, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.BoardID, rec.Status, nilIfEmpty(rec.CurrentStepID), rec.CompletionPercentage,
		rec.SatisfactionRating, rec.DifficultyRating, nilIfEmpty(rec.Notes), rec.Finalized, rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		slog.Error("PostgresStore CreateExecution failed", "error", err, "executionID", rec.ID)
		return fmt.Errorf("failed to create execution %s: %w", rec.ID, err)
	}
	slog.Debug("PostgresStore CreateExecution succeeded", "executionID", rec.ID, "boardID", rec.BoardID)
	return nil
}

// GetExecution retrieves a fully hydrated execution record, or nil if absent.
func (s *PostgresStore) GetExecution(id string) (*models.ExecutionRecord, error) {
	row := s.db.QueryRow(`SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)
	rec, err := scanExecutionRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetExecution failed", "error", err, "executionID", id)
		return nil, fmt.Errorf("failed to get execution %s: %w", id, err)
	}
	if err := s.hydrateEntries(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) hydrateEntries(rec *models.ExecutionRecord) error {
	rows, err := s.db.Query(
		`SELECT seq, step_id, entered_at, left_at, outcome, time_spent_seconds
		 FROM execution_steps WHERE execution_id = $1 ORDER BY seq`, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to query step history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e models.StepRecord
		if err := rows.Scan(&e.Seq, &e.StepID, &e.EnteredAt, &e.LeftAt, &e.Outcome, &e.TimeSpentSeconds); err != nil {
			return fmt.Errorf("failed to scan step history row: %w", err)
		}
		rec.StepHistory = append(rec.StepHistory, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate step history rows: %w", err)
	}

	irows, err := s.db.Query(
		`SELECT seq, at, reason FROM execution_interruptions WHERE execution_id = $1 ORDER BY seq`, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to query interruptions: %w", err)
	}
	defer irows.Close()
	for irows.Next() {
		var e models.Interruption
		if err := irows.Scan(&e.Seq, &e.At, &e.Reason); err != nil {
			return fmt.Errorf("failed to scan interruption row: %w", err)
		}
		rec.Interruptions = append(rec.Interruptions, e)
	}
	if err := irows.Err(); err != nil {
		return fmt.Errorf("failed to iterate interruption rows: %w", err)
	}

	mrows, err := s.db.Query(
		`SELECT seq, at, field, old_value, new_value FROM execution_modifications WHERE execution_id = $1 ORDER BY seq`, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to query modifications: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var e models.Modification
		var oldVal, newVal sql.NullString
		if err := mrows.Scan(&e.Seq, &e.At, &e.Field, &oldVal, &newVal); err != nil {
			return fmt.Errorf("failed to scan modification row: %w", err)
		}
		e.OldValue = oldVal.String
		e.NewValue = newVal.String
		rec.Modifications = append(rec.Modifications, e)
	}
	if err := mrows.Err(); err != nil {
		return fmt.Errorf("failed to iterate modification rows: %w", err)
	}

	sortRecordEntries(rec)
	return nil
}

func (s *PostgresStore) listExecutions(query string, arg interface{}) ([]models.ExecutionRecord, error) {
	rows, err := s.db.Query(query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var out []models.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecutionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate execution rows: %w", err)
	}
	for i := range out {
		if err := s.hydrateEntries(&out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListExecutionsByBoard returns all execution records for one board.
func (s *PostgresStore) ListExecutionsByBoard(boardID string) ([]models.ExecutionRecord, error) {
	return s.listExecutions(`SELECT `+executionColumns+` FROM executions WHERE board_id = $1 ORDER BY started_at`, boardID)
}

// ListExecutionsByStatus returns all execution records in one status.
func (s *PostgresStore) ListExecutionsByStatus(status models.ExecutionStatus) ([]models.ExecutionRecord, error) {
	return s.listExecutions(`SELECT `+executionColumns+` FROM executions WHERE status = $1 ORDER BY started_at`, string(status))
}

// UpsertStepRecord appends one step-history entry keyed by (execution_id, seq).
func (s *PostgresStore) UpsertStepRecord(executionID string, entry models.StepRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO execution_steps (execution_id, seq, step_id, entered_at, left_at, outcome, time_spent_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (execution_id, seq) DO UPDATE SET
		   step_id = EXCLUDED.step_id, entered_at = EXCLUDED.entered_at, left_at = EXCLUDED.left_at,
		   outcome = EXCLUDED.outcome, time_spent_seconds = EXCLUDED.time_spent_seconds`,
		executionID, entry.Seq, entry.StepID, entry.EnteredAt, entry.LeftAt, entry.Outcome, entry.TimeSpentSeconds,
	)
	if err != nil {
		slog.Error("PostgresStore UpsertStepRecord failed", "error", err, "executionID", executionID, "seq", entry.Seq)
		return fmt.Errorf("failed to upsert step record: %w", err)
	}
	return nil
}

// UpsertInterruption appends one interruptions entry keyed by (execution_id, seq).
func (s *PostgresStore) UpsertInterruption(executionID string, entry models.Interruption) error {
	_, err := s.db.Exec(
		`INSERT INTO execution_interruptions (execution_id, seq, at, reason) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (execution_id, seq) DO UPDATE SET at = EXCLUDED.at, reason = EXCLUDED.reason`,
		executionID, entry.Seq, entry.At, entry.Reason,
	)
	if err != nil {
		slog.Error("PostgresStore UpsertInterruption failed", "error", err, "executionID", executionID, "seq", entry.Seq)
		return fmt.Errorf("failed to upsert interruption: %w", err)
	}
	return nil
}

// UpsertModification appends one modifications entry keyed by (execution_id, seq).
func (s *PostgresStore) UpsertModification(executionID string, entry models.Modification) error {
	_, err := s.db.Exec(
		`INSERT INTO execution_modifications (execution_id, seq, at, field, old_value, new_value)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (execution_id, seq) DO UPDATE SET
		   at = EXCLUDED.at, field = EXCLUDED.field, old_value = EXCLUDED.old_value, new_value = EXCLUDED.new_value`,
		executionID, entry.Seq, entry.At, entry.Field, nilIfEmpty(entry.OldValue), nilIfEmpty(entry.NewValue),
	)
	if err != nil {
		slog.Error("PostgresStore UpsertModification failed", "error", err, "executionID", executionID, "seq", entry.Seq)
		return fmt.Errorf("failed to upsert modification: %w", err)
	}
	return nil
}

// UpdateExecutionProgress updates the live status fields of a record.
func (s *PostgresStore) UpdateExecutionProgress(executionID string, status models.ExecutionStatus, currentStepID string, completionPercentage int) error {
	_, err := s.db.Exec(
		`UPDATE executions SET status = $1, current_step_id = $2, completion_percentage = $3 WHERE id = $4 AND finalized = FALSE`,
		string(status), nilIfEmpty(currentStepID), completionPercentage, executionID,
	)
	if err != nil {
		slog.Error("PostgresStore UpdateExecutionProgress failed", "error", err, "executionID", executionID)
		return fmt.Errorf("failed to update execution progress: %w", err)
	}
	return nil
}

// FinalizeExecution moves a record to a terminal status and stamps completed_at.
func (s *PostgresStore) FinalizeExecution(executionID string, status models.ExecutionStatus, completedAt time.Time, completionPercentage int) error {
	_, err := s.db.Exec(
		`UPDATE executions SET status = $1, current_step_id = NULL, completion_percentage = $2, completed_at = $3 WHERE id = $4`,
		string(status), completionPercentage, completedAt, executionID,
	)
	if err != nil {
		slog.Error("PostgresStore FinalizeExecution failed", "error", err, "executionID", executionID)
		return fmt.Errorf("failed to finalize execution %s: %w", executionID, err)
	}
	slog.Debug("PostgresStore FinalizeExecution succeeded", "executionID", executionID, "status", status)
	return nil
}

// AttachRatings stores finalize-step ratings/notes and marks the record finalized.
func (s *PostgresStore) AttachRatings(executionID string, ratings models.Ratings) error {
	_, err := s.db.Exec(
		`UPDATE executions SET satisfaction_rating = $1, difficulty_rating = $2, notes = $3, finalized = TRUE WHERE id = $4`,
		ratings.Satisfaction, ratings.Difficulty, nilIfEmpty(ratings.Notes), executionID,
	)
	if err != nil {
		slog.Error("PostgresStore AttachRatings failed", "error", err, "executionID", executionID)
		return fmt.Errorf("failed to attach ratings to execution %s: %w", executionID, err)
	}
	return nil
}

// Close closes the PostgreSQL connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL connection")
	return s.db.Close()
}
