package recovery

import (
	"testing"
	"time"

	"github.com/Rolii95/neurotype-planner/internal/models"
	"github.com/Rolii95/neurotype-planner/internal/store"
)

func fixedClock() time.Time {
	return time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
}

func seed(t *testing.T, st store.Store, id string, status models.ExecutionStatus, pct int) {
	t.Helper()
	rec := models.ExecutionRecord{
		ID:                   id,
		BoardID:              "board-1",
		Status:               status,
		CompletionPercentage: pct,
		StartedAt:            fixedClock().Add(-time.Hour),
	}
	if status == models.ExecutionActive || status == models.ExecutionPaused {
		rec.CurrentStepID = "s1"
	}
	if err := st.CreateExecution(rec); err != nil {
		t.Fatalf("CreateExecution(%s) error = %v", id, err)
	}
}

func TestSweepClosesStaleExecutions(t *testing.T) {
	st := store.NewInMemoryStore()
	seed(t, st, "e-active", models.ExecutionActive, 40)
	seed(t, st, "e-paused", models.ExecutionPaused, 60)
	seed(t, st, "e-done", models.ExecutionCompleted, 100)

	swept, err := NewSweeper(st, WithClock(fixedClock)).Sweep()
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if swept != 2 {
		t.Errorf("Sweep() swept = %d, want 2", swept)
	}

	for _, tt := range []struct {
		id      string
		wantPct int
	}{
		{"e-active", 40},
		{"e-paused", 60},
	} {
		rec, err := st.GetExecution(tt.id)
		if err != nil {
			t.Fatalf("GetExecution(%s) error = %v", tt.id, err)
		}
		if rec.Status != models.ExecutionAbandoned {
			t.Errorf("%s status = %q, want abandoned", tt.id, rec.Status)
		}
		if rec.CompletionPercentage != tt.wantPct {
			t.Errorf("%s completion = %d, want %d (progress kept)", tt.id, rec.CompletionPercentage, tt.wantPct)
		}
		if rec.CompletedAt == nil || !rec.CompletedAt.Equal(fixedClock()) {
			t.Errorf("%s CompletedAt = %v, want sweep time", tt.id, rec.CompletedAt)
		}
		if len(rec.Interruptions) != 1 || rec.Interruptions[0].Reason != models.InterruptionHostCrash {
			t.Errorf("%s interruptions = %+v, want one host_interrupted entry", tt.id, rec.Interruptions)
		}
	}

	done, err := st.GetExecution("e-done")
	if err != nil {
		t.Fatalf("GetExecution(e-done) error = %v", err)
	}
	if done.Status != models.ExecutionCompleted {
		t.Errorf("completed record status = %q, want untouched", done.Status)
	}
}

func TestSweepEmptyStore(t *testing.T) {
	swept, err := NewSweeper(store.NewInMemoryStore()).Sweep()
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if swept != 0 {
		t.Errorf("Sweep() swept = %d, want 0", swept)
	}
}

func TestSweepSeqAvoidsCollisions(t *testing.T) {
	st := store.NewInMemoryStore()
	rec := models.ExecutionRecord{
		ID:        "e1",
		BoardID:   "board-1",
		Status:    models.ExecutionActive,
		StartedAt: fixedClock().Add(-time.Hour),
		StepHistory: []models.StepRecord{
			{Seq: 1, StepID: "s1", Outcome: models.OutcomeCompleted},
			{Seq: 3, StepID: "s2", Outcome: models.OutcomeCompleted},
		},
		Interruptions: []models.Interruption{
			{Seq: 2, At: fixedClock().Add(-30 * time.Minute), Reason: models.InterruptionUserPaused},
		},
	}
	if err := st.CreateExecution(rec); err != nil {
		t.Fatalf("CreateExecution() error = %v", err)
	}

	if _, err := NewSweeper(st, WithClock(fixedClock)).Sweep(); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	stored, err := st.GetExecution("e1")
	if err != nil {
		t.Fatalf("GetExecution() error = %v", err)
	}
	if len(stored.Interruptions) != 2 {
		t.Fatalf("Interruptions length = %d, want 2", len(stored.Interruptions))
	}
	var sweepEntry *models.Interruption
	for i := range stored.Interruptions {
		if stored.Interruptions[i].Reason == models.InterruptionHostCrash {
			sweepEntry = &stored.Interruptions[i]
		}
	}
	if sweepEntry == nil {
		t.Fatal("no host_interrupted interruption recorded")
	}
	if sweepEntry.Seq != 4 {
		t.Errorf("sweep interruption Seq = %d, want 4 (past highest existing seq)", sweepEntry.Seq)
	}
}
