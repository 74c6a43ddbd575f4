// Package schedule provides cron-based launching of recurring board runs.
//
// A user can pin a routine board (morning routine, shutdown ritual) to a cron
// expression; when it fires the scheduler hands the board ID to a launcher
// callback, typically the runner's session factory.
package schedule

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Launcher receives the board ID of a routine whose schedule fired.
type Launcher func(boardID string)

// Routine pins one board to a recurring cron schedule.
type Routine struct {
	BoardID  string `json:"board_id"`
	CronExpr string `json:"cron_expr"`
}

// Scheduler runs routine boards on cron schedules.
type Scheduler struct {
	cron     *cron.Cron
	launcher Launcher
	entries  map[string]cron.EntryID
}

// NewScheduler creates and starts a cron scheduler that launches routines
// through the given callback.
func NewScheduler(launcher Launcher) *Scheduler {
	// Standard 5-field cron (min, hour, dom, month, dow); panics in a
	// launched routine must not kill the scheduler goroutine.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{
		cron:     c,
		launcher: launcher,
		entries:  make(map[string]cron.EntryID),
	}
}

// AddRoutine schedules a board to launch on the routine's cron expression.
// Re-adding a board replaces its previous schedule.
func (s *Scheduler) AddRoutine(r Routine) error {
	if r.BoardID == "" {
		return fmt.Errorf("routine board ID cannot be empty")
	}
	boardID := r.BoardID
	id, err := s.cron.AddFunc(r.CronExpr, func() {
		slog.Info("Scheduler launching routine board", "boardID", boardID)
		s.launcher(boardID)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", r.CronExpr, err)
	}

	if old, ok := s.entries[boardID]; ok {
		s.cron.Remove(old)
	}
	s.entries[boardID] = id
	slog.Debug("Scheduler added routine", "boardID", boardID, "cron", r.CronExpr)
	return nil
}

// RemoveRoutine unschedules a board. Removing an unscheduled board is a no-op.
func (s *Scheduler) RemoveRoutine(boardID string) {
	if id, ok := s.entries[boardID]; ok {
		s.cron.Remove(id)
		delete(s.entries, boardID)
		slog.Debug("Scheduler removed routine", "boardID", boardID)
	}
}

// Routines returns the board IDs currently scheduled.
func (s *Scheduler) Routines() []string {
	out := make([]string, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	return out
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
