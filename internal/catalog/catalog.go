// Package catalog provides an immutable per-execution snapshot of a board's
// ordered steps.
//
// The sequencer reads steps exclusively through a Catalog so that authoring
// edits made while an execution is live are never observed mid-run.
package catalog

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/Rolii95/neurotype-planner/internal/models"
)

// Catalog is a read-only ordered list of steps taken from a board at the
// moment an execution starts. The engine never mutates it.
type Catalog struct {
	boardID string
	steps   []models.BoardStep
}

// Snapshot copies the board's steps into a new Catalog, ordered by
// OrderIndex. Authoring-time integrity (contiguous, duplicate-free indices)
// is the authoring collaborator's responsibility; the snapshot only orders
// what it is given.
func Snapshot(board models.Board) *Catalog {
	steps := make([]models.BoardStep, len(board.Steps))
	copy(steps, board.Steps)
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].OrderIndex < steps[j].OrderIndex
	})

	slog.Debug("Catalog snapshot created", "boardID", board.ID, "steps", len(steps))
	return &Catalog{boardID: board.ID, steps: steps}
}

// BoardID returns the identity of the snapshotted board.
func (c *Catalog) BoardID() string {
	return c.boardID
}

// Len returns the number of steps in the catalog.
func (c *Catalog) Len() int {
	return len(c.steps)
}

// At returns a copy of the step at position i (zero-based execution order).
func (c *Catalog) At(i int) (models.BoardStep, error) {
	if i < 0 || i >= len(c.steps) {
		return models.BoardStep{}, fmt.Errorf("step index %d out of range (0..%d)", i, len(c.steps)-1)
	}
	return c.steps[i], nil
}

// Steps returns a copy of all steps in execution order.
func (c *Catalog) Steps() []models.BoardStep {
	out := make([]models.BoardStep, len(c.steps))
	copy(out, c.steps)
	return out
}
