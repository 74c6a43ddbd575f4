package catalog

import (
	"testing"

	"github.com/Rolii95/neurotype-planner/internal/models"
)

func testBoard() models.Board {
	return models.Board{
		ID:   "board_1",
		Name: "Morning routine",
		Steps: []models.BoardStep{
			{ID: "step_c", OrderIndex: 2, StepType: models.StepTypeBreak},
			{ID: "step_a", OrderIndex: 0, StepType: models.StepTypeTask},
			{ID: "step_b", OrderIndex: 1, StepType: models.StepTypeTransition},
		},
	}
}

func TestSnapshotOrdersByOrderIndex(t *testing.T) {
	cat := Snapshot(testBoard())

	if cat.Len() != 3 {
		t.Fatalf("expected 3 steps, got %d", cat.Len())
	}
	expected := []string{"step_a", "step_b", "step_c"}
	for i, id := range expected {
		step, err := cat.At(i)
		if err != nil {
			t.Fatalf("At(%d) error: %v", i, err)
		}
		if step.ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, step.ID)
		}
	}
}

func TestSnapshotIsolatedFromAuthoringEdits(t *testing.T) {
	board := testBoard()
	cat := Snapshot(board)

	// Simulate an authoring edit after the execution started.
	board.Steps[1].ID = "step_edited"
	board.Steps = append(board.Steps, models.BoardStep{ID: "step_d", OrderIndex: 3})

	if cat.Len() != 3 {
		t.Errorf("snapshot grew after authoring edit: len=%d", cat.Len())
	}
	step, err := cat.At(0)
	if err != nil {
		t.Fatalf("At(0) error: %v", err)
	}
	if step.ID != "step_a" {
		t.Errorf("snapshot observed authoring edit: got %s", step.ID)
	}
}

func TestAtOutOfRange(t *testing.T) {
	cat := Snapshot(testBoard())
	if _, err := cat.At(-1); err == nil {
		t.Error("expected error for negative index")
	}
	if _, err := cat.At(3); err == nil {
		t.Error("expected error for index past end")
	}
}

func TestBoardID(t *testing.T) {
	cat := Snapshot(testBoard())
	if cat.BoardID() != "board_1" {
		t.Errorf("expected board_1, got %s", cat.BoardID())
	}
}
