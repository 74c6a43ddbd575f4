package sequencer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Rolii95/neurotype-planner/internal/catalog"
	"github.com/Rolii95/neurotype-planner/internal/models"
	"github.com/Rolii95/neurotype-planner/internal/notify"
	"github.com/Rolii95/neurotype-planner/internal/timer"
)

// fakeRecorder captures everything the sequencer persists. Appends are keyed
// by seq, mirroring the idempotent upsert semantics of the real stores.
type fakeRecorder struct {
	mu sync.Mutex

	failAppends bool

	begun         []string
	steps         map[int]models.StepRecord
	interruptions map[int]models.Interruption
	modifications map[int]models.Modification
	progress      []models.ExecutionStatus
	finalized     *models.ExecutionStatus
	finalPct      int
	ratings       *models.Ratings
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		steps:         make(map[int]models.StepRecord),
		interruptions: make(map[int]models.Interruption),
		modifications: make(map[int]models.Modification),
	}
}

func (f *fakeRecorder) Begin(boardID string) (models.ExecutionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begun = append(f.begun, boardID)
	return models.ExecutionRecord{
		ID:        "exec_test",
		BoardID:   boardID,
		Status:    models.ExecutionActive,
		StartedAt: time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeRecorder) AppendStepOutcome(recordID string, entry models.StepRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppends {
		return errors.New("store unavailable")
	}
	f.steps[entry.Seq] = entry
	return nil
}

func (f *fakeRecorder) AppendInterruption(recordID string, entry models.Interruption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppends {
		return errors.New("store unavailable")
	}
	f.interruptions[entry.Seq] = entry
	return nil
}

func (f *fakeRecorder) AppendModification(recordID string, entry models.Modification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppends {
		return errors.New("store unavailable")
	}
	f.modifications[entry.Seq] = entry
	return nil
}

func (f *fakeRecorder) UpdateProgress(recordID string, status models.ExecutionStatus, currentStepID string, completionPercentage int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppends {
		return errors.New("store unavailable")
	}
	f.progress = append(f.progress, status)
	return nil
}

func (f *fakeRecorder) Finalize(recordID string, status models.ExecutionStatus, completedAt time.Time, completionPercentage int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppends {
		return errors.New("store unavailable")
	}
	f.finalized = &status
	f.finalPct = completionPercentage
	return nil
}

func (f *fakeRecorder) AttachRatings(recordID string, ratings models.Ratings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ratings != nil {
		return models.ErrAlreadyFinalized
	}
	f.ratings = &ratings
	return nil
}

// captureEffector records rendered intents so tests can assert on dispatch.
type captureEffector struct {
	mu      sync.Mutex
	intents []notify.Intent
}

func (e *captureEffector) Render(ctx context.Context, intent notify.Intent, intensity models.NotificationIntensity, hints map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.intents = append(e.intents, intent)
	return nil
}

func (e *captureEffector) count(intent notify.Intent) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, i := range e.intents {
		if i == intent {
			n++
		}
	}
	return n
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
			Notification: models.NotificationConfig{Channel: models.ChannelVisual, Intensity: models.IntensityNormal},
		},
	}
}

func timedStep(id string, order, duration, warning int) models.BoardStep {
	s := untimedStep(id, order, false)
	s.DurationSeconds = duration
	s.TimerSettings.WarningThresholdSeconds = warning
	return s
}

func newTestSequencer(t *testing.T, steps []models.BoardStep) (*Sequencer, *fakeRecorder, *captureEffector) {
	t.Helper()
	rec := newFakeRecorder()
	eff := &captureEffector{}
	dispatcher := notify.NewDispatcher(notify.WithEffector(models.ChannelVisual, eff))
	cat := catalog.Snapshot(models.Board{ID: "board-1", Name: "Morning", Steps: steps})
	seq := New(cat, dispatcher, rec, WithClock(func() time.Time {
		return time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	}))
	return seq, rec, eff
}

func TestStartGuards(t *testing.T) {
	t.Run("empty board", func(t *testing.T) {
		seq, _, _ := newTestSequencer(t, nil)
		if err := seq.Start(); !errors.Is(err, models.ErrEmptyBoard) {
			t.Errorf("Start() on empty board = %v, want ErrEmptyBoard", err)
		}
		if got := seq.State(); got != models.ExecutionNotStarted {
			t.Errorf("State() = %q, want not_started", got)
		}
	})

	t.Run("double start", func(t *testing.T) {
		seq, _, _ := newTestSequencer(t, []models.BoardStep{untimedStep("s1", 0, false)})
		if err := seq.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := seq.Start(); !errors.Is(err, models.ErrExecutionStarted) {
			t.Errorf("second Start() = %v, want ErrExecutionStarted", err)
		}
	})
}

func TestStartRejectsUnarmableFirstStep(t *testing.T) {
	// A snapshot never validates, so a step that slipped past authoring
	// validation can carry a negative duration. Start must refuse it and
	// leave the sequencer exactly where it was.
	seq, rec, _ := newTestSequencer(t, []models.BoardStep{timedStep("s1", 0, -5, 0)})

	if err := seq.Start(); !errors.Is(err, models.ErrInvalidDuration) {
		t.Fatalf("Start() = %v, want ErrInvalidDuration", err)
	}
	if got := seq.State(); got != models.ExecutionNotStarted {
		t.Errorf("State() after failed Start = %q, want not_started", got)
	}
	if len(rec.begun) != 0 {
		t.Errorf("Begin called %d times after failed Start, want 0", len(rec.begun))
	}
	ev, err := seq.OnTick(context.Background())
	if err != nil || ev.Kind != timer.EventIdle {
		t.Errorf("OnTick() after failed Start = (%v, %v), want idle event", ev.Kind, err)
	}
	if err := seq.Start(); !errors.Is(err, models.ErrInvalidDuration) {
		t.Errorf("retried Start() = %v, want ErrInvalidDuration", err)
	}
}

func TestAdvanceRejectsUnarmableSuccessor(t *testing.T) {
	ctx := context.Background()
	steps := []models.BoardStep{
		untimedStep("s1", 0, false),
		timedStep("s2", 1, -5, 0),
	}
	seq, rec, _ := newTestSequencer(t, steps)
	if err := seq.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := seq.CompleteStep(ctx, models.OutcomeCompleted); !errors.Is(err, models.ErrInvalidDuration) {
		t.Fatalf("CompleteStep() = %v, want ErrInvalidDuration", err)
	}

	// The rejected transition leaves the first step active and untouched.
	if got := seq.State(); got != models.ExecutionActive {
		t.Errorf("State() = %q, want active", got)
	}
	step, ok := seq.CurrentStep()
	if !ok || step.ID != "s1" {
		t.Errorf("CurrentStep() = (%q, %v), want s1", step.ID, ok)
	}
	if got := len(seq.Record().StepHistory); got != 0 {
		t.Errorf("StepHistory has %d entries after rejected advance, want 0", got)
	}
	if got := len(rec.steps); got != 0 {
		t.Errorf("recorder holds %d step entries after rejected advance, want 0", got)
	}
	ev, err := seq.OnTick(ctx)
	if err != nil || ev.Kind != timer.EventIdle {
		t.Errorf("OnTick() after rejected advance = (%v, %v), want idle event", ev.Kind, err)
	}
}

func TestUntimedBoardManualCompletion(t *testing.T) {
	ctx := context.Background()
	steps := []models.BoardStep{
		untimedStep("s1", 0, false),
		untimedStep("s2", 1, false),
		untimedStep("s3", 2, false),
	}
	seq, rec, eff := newTestSequencer(t, steps)
	if err := seq.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Untimed steps never advance on their own no matter how many ticks pass.
	for i := 0; i < 100; i++ {
		ev, err := seq.OnTick(ctx)
		if err != nil {
			t.Fatalf("OnTick() error = %v", err)
		}
		if ev.Kind != timer.EventIdle {
			t.Fatalf("OnTick() kind = %v on untimed step, want idle", ev.Kind)
		}
	}

	for i := 0; i < len(steps); i++ {
		if err := seq.CompleteStep(ctx, models.OutcomeCompleted); err != nil {
			t.Fatalf("CompleteStep(%d) error = %v", i, err)
		}
	}

	if got := seq.State(); got != models.ExecutionCompleted {
		t.Errorf("State() = %q, want completed", got)
	}
	record := seq.Record()
	if record.CompletionPercentage != 100 {
		t.Errorf("CompletionPercentage = %d, want 100", record.CompletionPercentage)
	}
	if len(record.StepHistory) != 3 {
		t.Fatalf("StepHistory length = %d, want 3", len(record.StepHistory))
	}
	for i, entry := range record.StepHistory {
		if entry.Outcome != models.OutcomeCompleted {
			t.Errorf("StepHistory[%d].Outcome = %q, want completed", i, entry.Outcome)
		}
		if entry.Seq != i+1 {
			t.Errorf("StepHistory[%d].Seq = %d, want %d", i, entry.Seq, i+1)
		}
	}
	if got := eff.count(notify.IntentWarning); got != 0 {
		t.Errorf("warning dispatches = %d, want 0", got)
	}
	if got := eff.count(notify.IntentExecutionComplete); got != 1 {
		t.Errorf("execution_complete dispatches = %d, want 1", got)
	}
	if rec.finalized == nil || *rec.finalized != models.ExecutionCompleted {
		t.Errorf("recorder finalized = %v, want completed", rec.finalized)
	}
}

func TestTimedStepAutoAdvance(t *testing.T) {
	ctx := context.Background()
	seq, rec, eff := newTestSequencer(t, []models.BoardStep{timedStep("s1", 0, 10, 3)})
	if err := seq.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	wantKinds := []timer.EventKind{
		timer.EventRunning, timer.EventRunning, timer.EventRunning, timer.EventRunning,
		timer.EventRunning, timer.EventRunning, timer.EventRunning,
		timer.EventWarning,
		timer.EventRunning, timer.EventRunning,
		timer.EventExpired,
	}
	for i, want := range wantKinds {
		ev, err := seq.OnTick(ctx)
		if err != nil {
			t.Fatalf("OnTick(%d) error = %v", i+1, err)
		}
		if ev.Kind != want {
			t.Fatalf("tick %d kind = %v, want %v", i+1, ev.Kind, want)
		}
	}

	if got := seq.State(); got != models.ExecutionCompleted {
		t.Errorf("State() after expiry = %q, want completed", got)
	}
	record := seq.Record()
	if len(record.StepHistory) != 1 {
		t.Fatalf("StepHistory length = %d, want 1", len(record.StepHistory))
	}
	entry := record.StepHistory[0]
	if entry.Outcome != models.OutcomeAutoAdvanced {
		t.Errorf("Outcome = %q, want auto_advanced", entry.Outcome)
	}
	if entry.TimeSpentSeconds != 10 {
		t.Errorf("TimeSpentSeconds = %d, want 10", entry.TimeSpentSeconds)
	}
	if got := eff.count(notify.IntentWarning); got != 1 {
		t.Errorf("warning dispatches = %d, want 1", got)
	}
	if rec.finalPct != 100 {
		t.Errorf("finalized percentage = %d, want 100", rec.finalPct)
	}
}

func TestOverrunStepWaitsForUser(t *testing.T) {
	ctx := context.Background()
	step := timedStep("s1", 0, 3, 0)
	step.TimerSettings.AllowOverrun = true
	seq, _, _ := newTestSequencer(t, []models.BoardStep{step})
	if err := seq.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if ev, _ := seq.OnTick(ctx); ev.Kind != timer.EventRunning {
			t.Fatalf("tick %d kind = %v, want running", i+1, ev.Kind)
		}
	}
	if ev, _ := seq.OnTick(ctx); ev.Kind != timer.EventExpired {
		t.Fatalf("tick 4 kind = %v, want expired", ev.Kind)
	}
	if got := seq.State(); got != models.ExecutionActive {
		t.Fatalf("State() = %q, want active (overrun)", got)
	}
	for i := 0; i < 4; i++ {
		if ev, _ := seq.OnTick(ctx); ev.Kind != timer.EventOverrun {
			t.Fatalf("overrun tick %d kind = %v, want overrun", i+1, ev.Kind)
		}
	}

	if err := seq.CompleteStep(ctx, models.OutcomeCompleted); err != nil {
		t.Fatalf("CompleteStep() error = %v", err)
	}
	record := seq.Record()
	if got := record.StepHistory[0].TimeSpentSeconds; got != 7 {
		t.Errorf("TimeSpentSeconds = %d, want 7 (3 planned + 4 overrun)", got)
	}
	if got := seq.State(); got != models.ExecutionCompleted {
		t.Errorf("State() = %q, want completed", got)
	}
}

func TestSkipStep(t *testing.T) {
	ctx := context.Background()

	t.Run("mandatory step rejected without mutation", func(t *testing.T) {
		seq, rec, _ := newTestSequencer(t, []models.BoardStep{
			untimedStep("s1", 0, false),
			untimedStep("s2", 1, false),
		})
		if err := seq.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := seq.SkipStep(ctx); !errors.Is(err, models.ErrStepNotSkippable) {
			t.Fatalf("SkipStep() = %v, want ErrStepNotSkippable", err)
		}
		record := seq.Record()
		if len(record.StepHistory) != 0 {
			t.Errorf("StepHistory length = %d after rejected skip, want 0", len(record.StepHistory))
		}
		if record.CurrentStepID != "s1" {
			t.Errorf("CurrentStepID = %q, want s1", record.CurrentStepID)
		}
		if len(rec.steps) != 0 {
			t.Errorf("persisted steps = %d after rejected skip, want 0", len(rec.steps))
		}
	})

	t.Run("optional step advances with skipped outcome", func(t *testing.T) {
		seq, _, eff := newTestSequencer(t, []models.BoardStep{
			untimedStep("s1", 0, true),
			untimedStep("s2", 1, false),
		})
		if err := seq.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := seq.SkipStep(ctx); err != nil {
			t.Fatalf("SkipStep() error = %v", err)
		}
		record := seq.Record()
		if record.StepHistory[0].Outcome != models.OutcomeSkipped {
			t.Errorf("Outcome = %q, want skipped", record.StepHistory[0].Outcome)
		}
		if record.CurrentStepID != "s2" {
			t.Errorf("CurrentStepID = %q, want s2", record.CurrentStepID)
		}
		if record.CompletionPercentage != 50 {
			t.Errorf("CompletionPercentage = %d, want 50", record.CompletionPercentage)
		}
		// Skipped steps don't announce completion.
		if got := eff.count(notify.IntentStepComplete); got != 0 {
			t.Errorf("step_complete dispatches = %d, want 0", got)
		}
	})
}

func TestPauseAndResume(t *testing.T) {
	ctx := context.Background()
	seq, rec, _ := newTestSequencer(t, []models.BoardStep{timedStep("s1", 0, 10, 0)})
	if err := seq.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 4; i++ {
		seq.OnTick(ctx)
	}
	if err := seq.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if got := seq.State(); got != models.ExecutionPaused {
		t.Errorf("State() = %q, want paused", got)
	}

	remaining := seq.Remaining()
	for i := 0; i < 50; i++ {
		ev, err := seq.OnTick(ctx)
		if err != nil {
			t.Fatalf("OnTick() while paused error = %v", err)
		}
		if ev.Kind != timer.EventIdle {
			t.Fatalf("OnTick() while paused kind = %v, want idle", ev.Kind)
		}
	}
	if got := seq.Remaining(); got != remaining {
		t.Errorf("Remaining() changed while paused: %d, want %d", got, remaining)
	}

	if err := seq.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if got := seq.State(); got != models.ExecutionActive {
		t.Errorf("State() after Resume = %q, want active", got)
	}
	if got := seq.Remaining(); got != remaining {
		t.Errorf("Remaining() after Resume = %d, want %d", got, remaining)
	}

	record := seq.Record()
	if len(record.Interruptions) != 1 {
		t.Fatalf("Interruptions length = %d, want 1", len(record.Interruptions))
	}
	if got := record.Interruptions[0].Reason; got != models.InterruptionUserPaused {
		t.Errorf("Interruption reason = %q, want user_paused", got)
	}
	if len(rec.interruptions) != 1 {
		t.Errorf("persisted interruptions = %d, want 1", len(rec.interruptions))
	}

	if err := seq.Pause(); err != nil {
		t.Fatalf("second Pause() error = %v", err)
	}
	if err := seq.Pause(); !errors.Is(err, models.ErrExecutionNotActive) {
		t.Errorf("Pause() while paused = %v, want ErrExecutionNotActive", err)
	}
}

func TestHeldStepWaitsForResume(t *testing.T) {
	ctx := context.Background()
	step := timedStep("s1", 0, 5, 0)
	step.TimerSettings.AutoStart = false
	seq, _, _ := newTestSequencer(t, []models.BoardStep{step})
	if err := seq.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 20; i++ {
		if ev, _ := seq.OnTick(ctx); ev.Kind != timer.EventIdle {
			t.Fatalf("held tick %d kind = %v, want idle", i+1, ev.Kind)
		}
	}
	if got := seq.Remaining(); got != 5 {
		t.Errorf("Remaining() while held = %d, want 5", got)
	}

	if err := seq.Resume(); err != nil {
		t.Fatalf("Resume() on held step error = %v", err)
	}
	if ev, _ := seq.OnTick(ctx); ev.Kind != timer.EventRunning {
		t.Errorf("post-release tick kind = %v, want running", ev.Kind)
	}
}

func TestExtendStep(t *testing.T) {
	ctx := context.Background()

	t.Run("rigid step rejected", func(t *testing.T) {
		seq, _, _ := newTestSequencer(t, []models.BoardStep{timedStep("s1", 0, 10, 0)})
		if err := seq.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := seq.ExtendStep(60); !errors.Is(err, models.ErrStepNotFlexible) {
			t.Errorf("ExtendStep() on rigid step = %v, want ErrStepNotFlexible", err)
		}
	})

	t.Run("flexible step adjusted and audited", func(t *testing.T) {
		step := timedStep("s1", 0, 10, 0)
		step.IsFlexible = true
		seq, rec, _ := newTestSequencer(t, []models.BoardStep{step})
		if err := seq.Start(); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		for i := 0; i < 4; i++ {
			seq.OnTick(ctx)
		}
		if err := seq.ExtendStep(30); err != nil {
			t.Fatalf("ExtendStep() error = %v", err)
		}
		if got := seq.Remaining(); got != 36 {
			t.Errorf("Remaining() = %d, want 36", got)
		}
		record := seq.Record()
		if len(record.Modifications) != 1 {
			t.Fatalf("Modifications length = %d, want 1", len(record.Modifications))
		}
		mod := record.Modifications[0]
		if mod.Field != "remaining_seconds" || mod.OldValue != "6" || mod.NewValue != "36" {
			t.Errorf("Modification = %+v, want remaining_seconds 6 -> 36", mod)
		}
		if len(rec.modifications) != 1 {
			t.Errorf("persisted modifications = %d, want 1", len(rec.modifications))
		}
	})
}

func TestExitAbandonsWithProgressKept(t *testing.T) {
	ctx := context.Background()
	steps := []models.BoardStep{
		untimedStep("s1", 0, false),
		untimedStep("s2", 1, false),
		untimedStep("s3", 2, false),
		untimedStep("s4", 3, false),
		untimedStep("s5", 4, false),
	}
	seq, rec, _ := newTestSequencer(t, steps)
	if err := seq.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := seq.CompleteStep(ctx, models.OutcomeCompleted); err != nil {
			t.Fatalf("CompleteStep(%d) error = %v", i, err)
		}
	}
	if err := seq.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}

	if err := seq.Exit(); err != nil {
		t.Fatalf("Exit() error = %v", err)
	}
	record := seq.Record()
	if record.Status != models.ExecutionAbandoned {
		t.Errorf("Status = %q, want abandoned", record.Status)
	}
	if record.CompletionPercentage != 40 {
		t.Errorf("CompletionPercentage = %d, want 40", record.CompletionPercentage)
	}
	if record.CompletedAt == nil {
		t.Error("CompletedAt is nil after Exit, want timestamp")
	}
	if len(record.StepHistory) != 2 {
		t.Errorf("StepHistory length = %d, want 2", len(record.StepHistory))
	}
	if rec.finalized == nil || *rec.finalized != models.ExecutionAbandoned {
		t.Errorf("recorder finalized = %v, want abandoned", rec.finalized)
	}
	if rec.finalPct != 40 {
		t.Errorf("recorder final percentage = %d, want 40", rec.finalPct)
	}

	if err := seq.Exit(); err == nil {
		t.Error("Exit() on abandoned execution succeeded, want error")
	}
}

func TestFinalize(t *testing.T) {
	ctx := context.Background()
	rate := func(n int) *int { return &n }

	seq, rec, _ := newTestSequencer(t, []models.BoardStep{untimedStep("s1", 0, false)})
	if err := seq.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := seq.Finalize(models.Ratings{}); !errors.Is(err, models.ErrNotCompleted) {
		t.Errorf("Finalize() before completion = %v, want ErrNotCompleted", err)
	}

	if err := seq.CompleteStep(ctx, models.OutcomeCompleted); err != nil {
		t.Fatalf("CompleteStep() error = %v", err)
	}

	first := models.Ratings{Satisfaction: rate(4), Difficulty: rate(2), Notes: "smooth run"}
	if err := seq.Finalize(first); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	second := models.Ratings{Satisfaction: rate(1), Notes: "should be ignored"}
	if err := seq.Finalize(second); !errors.Is(err, models.ErrAlreadyFinalized) {
		t.Errorf("second Finalize() = %v, want ErrAlreadyFinalized", err)
	}

	record := seq.Record()
	if record.SatisfactionRating == nil || *record.SatisfactionRating != 4 {
		t.Errorf("SatisfactionRating = %v, want 4", record.SatisfactionRating)
	}
	if record.Notes != "smooth run" {
		t.Errorf("Notes = %q, want first finalize's notes", record.Notes)
	}
	if rec.ratings == nil || rec.ratings.Notes != "smooth run" {
		t.Errorf("persisted ratings = %+v, want first finalize's ratings", rec.ratings)
	}
}

func TestFinalizeRejectsInvalidRating(t *testing.T) {
	ctx := context.Background()
	bad := 9

	seq, _, _ := newTestSequencer(t, []models.BoardStep{untimedStep("s1", 0, false)})
	if err := seq.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := seq.CompleteStep(ctx, models.OutcomeCompleted); err != nil {
		t.Fatalf("CompleteStep() error = %v", err)
	}
	if err := seq.Finalize(models.Ratings{Satisfaction: &bad}); !errors.Is(err, models.ErrInvalidRating) {
		t.Errorf("Finalize() with rating 9 = %v, want ErrInvalidRating", err)
	}
	// The rejected call must not consume the single finalize slot.
	good := 3
	if err := seq.Finalize(models.Ratings{Satisfaction: &good}); err != nil {
		t.Errorf("Finalize() after rejected rating error = %v", err)
	}
}

func TestPersistenceOutageKeepsStateAuthoritative(t *testing.T) {
	ctx := context.Background()
	seq, rec, _ := newTestSequencer(t, []models.BoardStep{
		untimedStep("s1", 0, false),
		untimedStep("s2", 1, false),
	})
	if err := seq.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	rec.failAppends = true
	if err := seq.CompleteStep(ctx, models.OutcomeCompleted); err == nil {
		t.Fatal("CompleteStep() during outage succeeded, want retryable error")
	}
	// The in-memory transition completed despite the persistence failure.
	record := seq.Record()
	if len(record.StepHistory) != 1 {
		t.Fatalf("StepHistory length = %d, want 1", len(record.StepHistory))
	}
	if record.CurrentStepID != "s2" {
		t.Errorf("CurrentStepID = %q, want s2", record.CurrentStepID)
	}
	if len(rec.steps) != 0 {
		t.Fatalf("persisted steps during outage = %d, want 0", len(rec.steps))
	}

	rec.failAppends = false
	if err := seq.Resync(); err != nil {
		t.Fatalf("Resync() error = %v", err)
	}
	if len(rec.steps) != 1 {
		t.Errorf("persisted steps after Resync = %d, want 1", len(rec.steps))
	}
	if got := rec.steps[1].StepID; got != "s1" {
		t.Errorf("resynced step = %q, want s1", got)
	}

	// Resync is idempotent: replaying again changes nothing.
	if err := seq.Resync(); err != nil {
		t.Fatalf("second Resync() error = %v", err)
	}
	if len(rec.steps) != 1 {
		t.Errorf("persisted steps after second Resync = %d, want 1", len(rec.steps))
	}
}

func TestCompleteStepOutcomeValidation(t *testing.T) {
	ctx := context.Background()
	seq, _, _ := newTestSequencer(t, []models.BoardStep{untimedStep("s1", 0, false)})
	if err := seq.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	tests := []struct {
		name    string
		outcome models.StepOutcome
		wantErr bool
	}{
		{"skipped reserved for SkipStep", models.OutcomeSkipped, true},
		{"unknown outcome", models.StepOutcome("vanished"), true},
		{"interrupted allowed", models.OutcomeInterrupted, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := seq.CompleteStep(ctx, tt.outcome)
			if (err != nil) != tt.wantErr {
				t.Errorf("CompleteStep(%q) error = %v, wantErr %v", tt.outcome, err, tt.wantErr)
			}
		})
	}
}
