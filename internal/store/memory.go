package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Rolii95/neurotype-planner/internal/models"
)

// InMemoryStore keeps boards and execution records in process memory. It is
// the default backend for tests and for hosts that do not need durability.
type InMemoryStore struct {
	mu         sync.RWMutex
	boards     map[string]models.Board
	executions map[string]*models.ExecutionRecord
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		boards:     make(map[string]models.Board),
		executions: make(map[string]*models.ExecutionRecord),
	}
}

func copyRecord(rec models.ExecutionRecord) models.ExecutionRecord {
	out := rec
	out.StepHistory = append([]models.StepRecord(nil), rec.StepHistory...)
	out.Interruptions = append([]models.Interruption(nil), rec.Interruptions...)
	out.Modifications = append([]models.Modification(nil), rec.Modifications...)
	if rec.SatisfactionRating != nil {
		v := *rec.SatisfactionRating
		out.SatisfactionRating = &v
	}
	if rec.DifficultyRating != nil {
		v := *rec.DifficultyRating
		out.DifficultyRating = &v
	}
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

func copyBoard(b models.Board) models.Board {
	out := b
	out.Steps = append([]models.BoardStep(nil), b.Steps...)
	return out
}

// SaveBoard inserts or replaces a board.
func (s *InMemoryStore) SaveBoard(board models.Board) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards[board.ID] = copyBoard(board)
	slog.Debug("InMemoryStore SaveBoard succeeded", "boardID", board.ID)
	return nil
}

// GetBoard returns a board by ID, or nil if absent.
func (s *InMemoryStore) GetBoard(id string) (*models.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.boards[id]
	if !ok {
		return nil, nil
	}
	out := copyBoard(b)
	return &out, nil
}

// ListBoards returns all stored boards.
func (s *InMemoryStore) ListBoards() ([]models.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Board, 0, len(s.boards))
	for _, b := range s.boards {
		out = append(out, copyBoard(b))
	}
	return out, nil
}

// CreateExecution inserts a new execution record; re-creating an existing ID
// is a no-op.
func (s *InMemoryStore) CreateExecution(rec models.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.executions[rec.ID]; exists {
		slog.Debug("InMemoryStore CreateExecution already exists", "executionID", rec.ID)
		return nil
	}
	stored := copyRecord(rec)
	s.executions[rec.ID] = &stored
	slog.Debug("InMemoryStore CreateExecution succeeded", "executionID", rec.ID, "boardID", rec.BoardID)
	return nil
}

// GetExecution returns a copy of an execution record, or nil if absent.
func (s *InMemoryStore) GetExecution(id string) (*models.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.executions[id]
	if !ok {
		return nil, nil
	}
	out := copyRecord(*rec)
	return &out, nil
}

// ListExecutionsByBoard returns all execution records for one board.
func (s *InMemoryStore) ListExecutionsByBoard(boardID string) ([]models.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ExecutionRecord
	for _, rec := range s.executions {
		if rec.BoardID == boardID {
			out = append(out, copyRecord(*rec))
		}
	}
	return out, nil
}

// ListExecutionsByStatus returns all execution records in one status.
func (s *InMemoryStore) ListExecutionsByStatus(status models.ExecutionStatus) ([]models.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ExecutionRecord
	for _, rec := range s.executions {
		if rec.Status == status {
			out = append(out, copyRecord(*rec))
		}
	}
	return out, nil
}

// UpsertStepRecord appends one step-history entry, replacing any existing
// entry with the same seq.
func (s *InMemoryStore) UpsertStepRecord(executionID string, entry models.StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.executions[executionID]
	if !ok {
		return models.ErrRecordNotFound
	}
	for i := range rec.StepHistory {
		if rec.StepHistory[i].Seq == entry.Seq {
			rec.StepHistory[i] = entry
			return nil
		}
	}
	rec.StepHistory = append(rec.StepHistory, entry)
	return nil
}

// UpsertInterruption appends one interruptions entry keyed by seq.
func (s *InMemoryStore) UpsertInterruption(executionID string, entry models.Interruption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.executions[executionID]
	if !ok {
		return models.ErrRecordNotFound
	}
	for i := range rec.Interruptions {
		if rec.Interruptions[i].Seq == entry.Seq {
			rec.Interruptions[i] = entry
			return nil
		}
	}
	rec.Interruptions = append(rec.Interruptions, entry)
	return nil
}

// UpsertModification appends one modifications entry keyed by seq.
func (s *InMemoryStore) UpsertModification(executionID string, entry models.Modification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.executions[executionID]
	if !ok {
		return models.ErrRecordNotFound
	}
	for i := range rec.Modifications {
		if rec.Modifications[i].Seq == entry.Seq {
			rec.Modifications[i] = entry
			return nil
		}
	}
	rec.Modifications = append(rec.Modifications, entry)
	return nil
}

// UpdateExecutionProgress updates the live status fields of a record.
func (s *InMemoryStore) UpdateExecutionProgress(executionID string, status models.ExecutionStatus, currentStepID string, completionPercentage int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.executions[executionID]
	if !ok {
		return models.ErrRecordNotFound
	}
	if rec.Finalized {
		return models.ErrRecordTerminal
	}
	rec.Status = status
	rec.CurrentStepID = currentStepID
	rec.CompletionPercentage = completionPercentage
	return nil
}

// FinalizeExecution moves a record to a terminal status.
func (s *InMemoryStore) FinalizeExecution(executionID string, status models.ExecutionStatus, completedAt time.Time, completionPercentage int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.executions[executionID]
	if !ok {
		return models.ErrRecordNotFound
	}
	rec.Status = status
	rec.CurrentStepID = ""
	rec.CompletionPercentage = completionPercentage
	rec.CompletedAt = &completedAt
	slog.Debug("InMemoryStore FinalizeExecution succeeded", "executionID", executionID, "status", status)
	return nil
}

// AttachRatings stores finalize-step ratings and marks the record finalized.
func (s *InMemoryStore) AttachRatings(executionID string, ratings models.Ratings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.executions[executionID]
	if !ok {
		return models.ErrRecordNotFound
	}
	if ratings.Satisfaction != nil {
		v := *ratings.Satisfaction
		rec.SatisfactionRating = &v
	}
	if ratings.Difficulty != nil {
		v := *ratings.Difficulty
		rec.DifficultyRating = &v
	}
	rec.Notes = ratings.Notes
	rec.Finalized = true
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
