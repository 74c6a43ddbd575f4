// Package store SQLite backend.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/Rolii95/neurotype-planner/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists boards and execution records in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SaveBoard inserts or replaces a board.
func (s *SQLiteStore) SaveBoard(board models.Board) error {
	stepsJSON, err := marshalSteps(board.Steps)
	if err != nil {
		slog.Error("SQLiteStore SaveBoard marshal failed", "error", err, "boardID", board.ID)
		return err
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO boards (id, name, steps_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		board.ID, board.Name, stepsJSON, board.CreatedAt, board.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveBoard failed", "error", err, "boardID", board.ID)
		return fmt.Errorf("failed to save board %s: %w", board.ID, err)
	}
	slog.Debug("SQLiteStore SaveBoard succeeded", "boardID", board.ID)
	return nil
}

// GetBoard retrieves a board by ID, or nil if absent.
func (s *SQLiteStore) GetBoard(id string) (*models.Board, error) {
	var b models.Board
	var stepsJSON string
	var createdAt, updatedAt sql.NullTime
	err := s.db.QueryRow(`SELECT id, name, steps_json, created_at, updated_at FROM boards WHERE id = ?`, id).
		Scan(&b.ID, &b.Name, &stepsJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetBoard not found", "boardID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetBoard failed", "error", err, "boardID", id)
		return nil, fmt.Errorf("failed to get board %s: %w", id, err)
	}
	if b.Steps, err = unmarshalSteps(stepsJSON); err != nil {
		slog.Error("SQLiteStore GetBoard unmarshal failed", "error", err, "boardID", id)
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
func (s *SQLiteStore) ListBoards() ([]models.Board, error) {
	rows, err := s.db.Query(`SELECT id, name, steps_json, created_at, updated_at FROM boards ORDER BY name`)
	if err != nil {
		slog.Error("SQLiteStore ListBoards query failed", "error", err)
		return nil, fmt.Errorf("failed to query boards: %w", err)
	}
	defer rows.Close()

	var boards []models.Board
	for rows.Next() {
		var b models.Board
		var stepsJSON string
		var createdAt, updatedAt sql.NullTime
		if err := rows.Scan(&b.ID, &b.Name, &stepsJSON, &createdAt, &updatedAt); err != nil {
			slog.Error("SQLiteStore ListBoards scan failed", "error", err)
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
	slog.Debug("SQLiteStore ListBoards succeeded", "count", len(boards))
	return boards, nil
}

// CreateExecution inserts a new execution record; re-creating the same ID is
// ignored.
func (s *SQLiteStore) CreateExecution(rec models.ExecutionRecord) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO executions
		 (id, board_id, status, current_step_id, completion_percentage, satisfaction_rating, difficulty_rating, notes, finalized, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.BoardID, rec.Status, nilIfEmpty(rec.CurrentStepID), rec.CompletionPercentage,
		rec.SatisfactionRating, rec.DifficultyRating, nilIfEmpty(rec.Notes), rec.Finalized, rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore CreateExecution failed", "error", err, "executionID", rec.ID)
		return fmt.Errorf("failed to create execution %s: %w", rec.ID, err)
	}
	slog.Debug("SQLiteStore CreateExecution succeeded", "executionID", rec.ID, "boardID", rec.BoardID)
	return nil
}

const executionColumns = `id, board_id, status, current_step_id, completion_percentage,
	satisfaction_rating, difficulty_rating, notes, finalized, started_at, completed_at`

// GetExecution retrieves a fully hydrated execution record, or nil if absent.
func (s *SQLiteStore) GetExecution(id string) (*models.ExecutionRecord, error) {
	row := s.db.QueryRow(`SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	rec, err := scanExecutionRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetExecution not found", "executionID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetExecution failed", "error", err, "executionID", id)
		return nil, fmt.Errorf("failed to get execution %s: %w", id, err)
	}
	if err := s.hydrateEntries(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) hydrateEntries(rec *models.ExecutionRecord) error {
	rows, err := s.db.Query(
		`SELECT seq, step_id, entered_at, left_at, outcome, time_spent_seconds
		 FROM execution_steps WHERE execution_id = ? ORDER BY seq`, rec.ID)
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
		`SELECT seq, at, reason FROM execution_interruptions WHERE execution_id = ? ORDER BY seq`, rec.ID)
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
		`SELECT seq, at, field, old_value, new_value FROM execution_modifications WHERE execution_id = ? ORDER BY seq`, rec.ID)
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

func (s *SQLiteStore) listExecutions(query string, arg interface{}) ([]models.ExecutionRecord, error) {
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
func (s *SQLiteStore) ListExecutionsByBoard(boardID string) ([]models.ExecutionRecord, error) {
	return s.listExecutions(`SELECT `+executionColumns+` FROM executions WHERE board_id = ? ORDER BY started_at`, boardID)
}

// ListExecutionsByStatus returns all execution records in one status.
func (s *SQLiteStore) ListExecutionsByStatus(status models.ExecutionStatus) ([]models.ExecutionRecord, error) {
	return s.listExecutions(`SELECT `+executionColumns+` FROM executions WHERE status = ? ORDER BY started_at`, string(status))
}

// UpsertStepRecord appends one step-history entry keyed by (execution_id, seq).
func (s *SQLiteStore) UpsertStepRecord(executionID string, entry models.StepRecord) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO execution_steps (execution_id, seq, step_id, entered_at, left_at, outcome, time_spent_seconds)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		executionID, entry.Seq, entry.StepID, entry.EnteredAt, entry.LeftAt, entry.Outcome, entry.TimeSpentSeconds,
	)
	if err != nil {
		slog.Error("SQLiteStore UpsertStepRecord failed", "error", err, "executionID", executionID, "seq", entry.Seq)
		return fmt.Errorf("failed to upsert step record: %w", err)
	}
	return nil
}

// UpsertInterruption appends one interruptions entry keyed by (execution_id, seq).
func (s *SQLiteStore) UpsertInterruption(executionID string, entry models.Interruption) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO execution_interruptions (execution_id, seq, at, reason) VALUES (?, ?, ?, ?)`,
		executionID, entry.Seq, entry.At, entry.Reason,
	)
	if err != nil {
		slog.Error("SQLiteStore UpsertInterruption failed", "error", err, "executionID", executionID, "seq", entry.Seq)
		return fmt.Errorf("failed to upsert interruption: %w", err)
	}
	return nil
}

// UpsertModification appends one modifications entry keyed by (execution_id, seq).
func (s *SQLiteStore) UpsertModification(executionID string, entry models.Modification) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO execution_modifications (execution_id, seq, at, field, old_value, new_value)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		executionID, entry.Seq, entry.At, entry.Field, nilIfEmpty(entry.OldValue), nilIfEmpty(entry.NewValue),
	)
	if err != nil {
		slog.Error("SQLiteStore UpsertModification failed", "error", err, "executionID", executionID, "seq", entry.Seq)
		return fmt.Errorf("failed to upsert modification: %w", err)
	}
	return nil
}

// UpdateExecutionProgress updates the live status fields of a record.
func (s *SQLiteStore) UpdateExecutionProgress(executionID string, status models.ExecutionStatus, currentStepID string, completionPercentage int) error {
	_, err := s.db.Exec(
		`UPDATE executions SET status = ?, current_step_id = ?, completion_percentage = ? WHERE id = ? AND finalized = 0`,
		string(status), nilIfEmpty(currentStepID), completionPercentage, executionID,
	)
	if err != nil {
		slog.Error("SQLiteStore UpdateExecutionProgress failed", "error", err, "executionID", executionID)
		return fmt.Errorf("failed to update execution progress: %w", err)
	}
	return nil
}

// FinalizeExecution moves a record to a terminal status and stamps completed_at.
func (s *SQLiteStore) FinalizeExecution(executionID string, status models.ExecutionStatus, completedAt time.Time, completionPercentage int) error {
	_, err := s.db.Exec(
		`UPDATE executions SET status = ?, current_step_id = NULL, completion_percentage = ?, completed_at = ? WHERE id = ?`,
		string(status), completionPercentage, completedAt, executionID,
	)
	if err != nil {
		slog.Error("SQLiteStore FinalizeExecution failed", "error", err, "executionID", executionID)
		return fmt.Errorf("failed to finalize execution %s: %w", executionID, err)
	}
	slog.Debug("SQLiteStore FinalizeExecution succeeded", "executionID", executionID, "status", status)
	return nil
}

// AttachRatings stores finalize-step ratings/notes and marks the record finalized.
func (s *SQLiteStore) AttachRatings(executionID string, ratings models.Ratings) error {
	_, err := s.db.Exec(
		`UPDATE executions SET satisfaction_rating = ?, difficulty_rating = ?, notes = ?, finalized = 1 WHERE id = ?`,
		ratings.Satisfaction, ratings.Difficulty, nilIfEmpty(ratings.Notes), executionID,
	)
	if err != nil {
		slog.Error("SQLiteStore AttachRatings failed", "error", err, "executionID", executionID)
		return fmt.Errorf("failed to attach ratings to execution %s: %w", executionID, err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
