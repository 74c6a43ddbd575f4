package runner

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Rolii95/neurotype-planner/internal/catalog"
	"github.com/Rolii95/neurotype-planner/internal/models"
	"github.com/Rolii95/neurotype-planner/internal/notify"
	"github.com/Rolii95/neurotype-planner/internal/recorder"
	"github.com/Rolii95/neurotype-planner/internal/sequencer"
	"github.com/Rolii95/neurotype-planner/internal/store"
)

func testBoard(steps ...models.BoardStep) models.Board {
	return models.Board{ID: "board-1", Name: "Morning", Steps: steps}
}

func untimedStep(id string, order int, optional bool) models.BoardStep {
	return models.BoardStep{
		ID:         id,
		OrderIndex: order,
		Title:      id,
		StepType:   models.StepTypeTask,
		IsOptional: optional,
		TimerSettings: models.TimerSettings{
			AutoStart:    true,
			Notification: models.NotificationConfig{Channel: models.ChannelNone, Intensity: models.IntensityNormal},
		},
	}
}

func newTestSession(t *testing.T, board models.Board, input string) (*Session, *bytes.Buffer) {
	t.Helper()
	rec := recorder.NewStoreRecorder(store.NewInMemoryStore())
	seq := sequencer.New(catalog.Snapshot(board), notify.NewDispatcher(), rec)
	var out bytes.Buffer
	session := NewSession(seq,
		WithInput(strings.NewReader(input)),
		WithOutput(&out),
		WithTickInterval(time.Hour))
	return session, &out
}

func TestSessionCompletesBoard(t *testing.T) {
	session, _ := newTestSession(t, testBoard(
		untimedStep("s1", 0, false),
		untimedStep("s2", 1, false),
	), "done\ndone\n")

	record, err := session.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if record.Status != models.ExecutionCompleted {
		t.Errorf("Status = %q, want completed", record.Status)
	}
	if record.CompletionPercentage != 100 {
		t.Errorf("CompletionPercentage = %d, want 100", record.CompletionPercentage)
	}
}

func TestSessionSkipAndComplete(t *testing.T) {
	session, _ := newTestSession(t, testBoard(
		untimedStep("s1", 0, true),
		untimedStep("s2", 1, false),
	), "skip\ndone\n")

	record, err := session.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if record.Status != models.ExecutionCompleted {
		t.Fatalf("Status = %q, want completed", record.Status)
	}
	if got := record.StepHistory[0].Outcome; got != models.OutcomeSkipped {
		t.Errorf("first step outcome = %q, want skipped", got)
	}
}

func TestSessionRejectedCommandKeepsRunning(t *testing.T) {
	// Skipping a mandatory step fails; the session reports the error and
	// stays on the step instead of dying.
	session, out := newTestSession(t, testBoard(
		untimedStep("s1", 0, false),
	), "skip\ndone\n")

	record, err := session.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if record.Status != models.ExecutionCompleted {
		t.Errorf("Status = %q, want completed", record.Status)
	}
	if !strings.Contains(out.String(), "cannot be skipped") {
		t.Errorf("output missing skip rejection: %q", out.String())
	}
}

func TestSessionExitAbandons(t *testing.T) {
	session, _ := newTestSession(t, testBoard(
		untimedStep("s1", 0, false),
		untimedStep("s2", 1, false),
	), "done\nexit\n")

	record, err := session.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if record.Status != models.ExecutionAbandoned {
		t.Errorf("Status = %q, want abandoned", record.Status)
	}
	if record.CompletionPercentage != 50 {
		t.Errorf("CompletionPercentage = %d, want 50", record.CompletionPercentage)
	}
}

func TestSessionEOFAbandons(t *testing.T) {
	session, _ := newTestSession(t, testBoard(untimedStep("s1", 0, false)), "")

	record, err := session.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if record.Status != models.ExecutionAbandoned {
		t.Errorf("Status = %q, want abandoned on EOF", record.Status)
	}
}

func TestSessionEmptyBoard(t *testing.T) {
	session, _ := newTestSession(t, testBoard(), "")
	if _, err := session.Run(context.Background()); err == nil {
		t.Error("Run() on empty board succeeded, want error")
	}
}

func TestExecuteUnknownCommand(t *testing.T) {
	session, _ := newTestSession(t, testBoard(untimedStep("s1", 0, false)), "")
	if err := session.seq.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := session.execute(context.Background(), "fly"); err == nil {
		t.Error("execute(fly) succeeded, want unknown command error")
	}
	if err := session.execute(context.Background(), "extend ten"); err == nil {
		t.Error("execute(extend ten) succeeded, want parse error")
	}
	if err := session.execute(context.Background(), ""); err != nil {
		t.Errorf("execute(blank) error = %v, want nil", err)
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0:00"},
		{59, "0:59"},
		{60, "1:00"},
		{615, "10:15"},
		{-5, "0:00"},
	}
	for _, tt := range tests {
		if got := formatSeconds(tt.in); got != tt.want {
			t.Errorf("formatSeconds(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
