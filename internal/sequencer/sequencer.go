// Package sequencer implements the state machine that runs a user through a
// board's ordered steps.
//
// A Sequencer owns one execution: it arms the countdown for the active step,
// reacts to host-injected ticks, applies the auto-progression and skip/flex
// policies, requests notifications, and writes every transition through the
// recorder. In-memory state is authoritative; a failed recorder call is
// returned to the caller as a retryable error and never rolls back a
// transition. All methods serialize on an internal lock, so one sequencer
// instance may be driven from a ticker goroutine and a command goroutine at
// the same time.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Rolii95/neurotype-planner/internal/catalog"
	"github.com/Rolii95/neurotype-planner/internal/models"
	"github.com/Rolii95/neurotype-planner/internal/notify"
	"github.com/Rolii95/neurotype-planner/internal/recorder"
	"github.com/Rolii95/neurotype-planner/internal/timer"
)

// Sequencer advances one execution through its board's steps.
type Sequencer struct {
	mu sync.Mutex

	catalog    *catalog.Catalog
	dispatcher *notify.Dispatcher
	recorder   recorder.Recorder
	clock      func() time.Time

	state     models.ExecutionStatus
	record    models.ExecutionRecord
	stepIndex int
	countdown *timer.Countdown
	enteredAt time.Time
	nextSeq   int
}

// Opts holds configuration options for a sequencer.
type Opts struct {
	Clock func() time.Time
}

// Option defines a configuration option for a sequencer.
type Option func(*Opts)

// WithClock overrides the wall clock, used by tests to pin timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// New creates a sequencer for one execution of the catalog's board. Each
// execution gets its own instance; nothing is shared between runs.
func New(cat *catalog.Catalog, dispatcher *notify.Dispatcher, rec recorder.Recorder, opts ...Option) *Sequencer {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	slog.Debug("Creating sequencer", "boardID", cat.BoardID(), "steps", cat.Len())
	return &Sequencer{
		catalog:    cat,
		dispatcher: dispatcher,
		recorder:   rec,
		clock:      cfg.Clock,
		state:      models.ExecutionNotStarted,
		nextSeq:    1,
	}
}

// Start begins the execution: arms step 0's countdown and creates the
// execution record. It fails with models.ErrEmptyBoard on a stepless board
// and with models.ErrExecutionStarted if called twice. If step 0 cannot be
// armed or record creation fails the sequencer stays idle and Start may be
// retried.
func (s *Sequencer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.ExecutionNotStarted {
		return models.ErrExecutionStarted
	}
	if s.catalog.Len() == 0 {
		slog.Error("Sequencer start rejected", "boardID", s.catalog.BoardID(), "reason", "empty board")
		return models.ErrEmptyBoard
	}

	// Arm before committing anything so a step that cannot carry a countdown
	// leaves the sequencer untouched.
	step, countdown, err := s.prepareStep(0)
	if err != nil {
		slog.Error("Sequencer start rejected", "boardID", s.catalog.BoardID(), "error", err)
		return err
	}

	rec, err := s.recorder.Begin(s.catalog.BoardID())
	if err != nil {
		return fmt.Errorf("failed to start execution: %w", err)
	}
	s.record = rec
	s.state = models.ExecutionActive

	slog.Info("Sequencer started", "executionID", s.record.ID, "boardID", s.catalog.BoardID())
	return s.commitStep(0, step, countdown)
}

// prepareStep loads the step at index i and arms a countdown for it without
// touching sequencer state, so a failure here leaves the machine exactly
// where it was. Caller holds the lock.
func (s *Sequencer) prepareStep(i int) (models.BoardStep, *timer.Countdown, error) {
	step, err := s.catalog.At(i)
	if err != nil {
		return models.BoardStep{}, nil, err
	}

	var opts []timer.Option
	if step.TimerSettings.AllowOverrun {
		opts = append(opts, timer.AllowOverrun())
	}
	if !step.TimerSettings.AutoStart {
		opts = append(opts, timer.Hold())
	}
	countdown, err := timer.Arm(step.DurationSeconds, step.TimerSettings.WarningThresholdSeconds, opts...)
	if err != nil {
		return models.BoardStep{}, nil, fmt.Errorf("step %s: %w", step.ID, err)
	}
	return step, countdown, nil
}

// commitStep installs a prepared step as the active one. Caller holds the
// lock and has already armed the countdown via prepareStep.
func (s *Sequencer) commitStep(i int, step models.BoardStep, countdown *timer.Countdown) error {
	s.stepIndex = i
	s.countdown = countdown
	s.enteredAt = s.clock()
	s.record.CurrentStepID = step.ID

	slog.Debug("Sequencer armed step", "executionID", s.record.ID, "stepID", step.ID, "index", i,
		"duration", step.DurationSeconds, "autoStart", step.TimerSettings.AutoStart)
	return s.recorder.UpdateProgress(s.record.ID, s.state, step.ID, s.record.CompletionPercentage)
}

// OnTick advances the active countdown by one time unit. The host calls it
// once per second of real time. Ticks arriving while the execution is not
// active are ignored and reported as idle events — they are never queued or
// replayed. On expiry of a step that disallows overrun, the auto-progression
// policy advances exactly as completeStep would with outcome auto_advanced.
func (s *Sequencer) OnTick(ctx context.Context) (timer.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.ExecutionActive {
		return timer.Event{Kind: timer.EventIdle}, nil
	}

	step, err := s.catalog.At(s.stepIndex)
	if err != nil {
		return timer.Event{Kind: timer.EventIdle}, err
	}

	ev := s.countdown.Tick()
	switch ev.Kind {
	case timer.EventWarning:
		s.dispatcher.Dispatch(ctx, notify.IntentWarning, step.TimerSettings.Notification, step.NeurotypeAdaptations)
	case timer.EventExpired:
		if !step.TimerSettings.AllowOverrun {
			return ev, s.advance(ctx, models.OutcomeAutoAdvanced)
		}
		// Overrun permitted: stay on the step until the user completes or
		// skips it.
	}
	return ev, nil
}

// Pause suspends the execution. The countdown freezes exactly where it is
// and an interruptions entry is recorded. Only valid while active.
func (s *Sequencer) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.ExecutionActive {
		return models.ErrExecutionNotActive
	}

	s.countdown.Pause()
	s.state = models.ExecutionPaused
	s.record.Status = models.ExecutionPaused

	entry := models.Interruption{Seq: s.takeSeq(), At: s.clock(), Reason: models.InterruptionUserPaused}
	s.record.Interruptions = append(s.record.Interruptions, entry)

	slog.Info("Sequencer paused", "executionID", s.record.ID, "remaining", s.countdown.Remaining())
	return errors.Join(
		s.recorder.AppendInterruption(s.record.ID, entry),
		s.recorder.UpdateProgress(s.record.ID, s.state, s.record.CurrentStepID, s.record.CompletionPercentage),
	)
}

// Resume releases a paused execution, or releases a held countdown on a step
// armed with auto_start disabled. Paused time is never deducted from the
// step and missed ticks are not replayed.
func (s *Sequencer) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == models.ExecutionPaused:
		s.countdown.Resume()
		s.state = models.ExecutionActive
		s.record.Status = models.ExecutionActive
		slog.Info("Sequencer resumed", "executionID", s.record.ID)
		return s.recorder.UpdateProgress(s.record.ID, s.state, s.record.CurrentStepID, s.record.CompletionPercentage)
	case s.state == models.ExecutionActive && s.countdown.Held():
		s.countdown.Resume()
		slog.Debug("Sequencer released held countdown", "executionID", s.record.ID)
		return nil
	default:
		return models.ErrExecutionNotPaused
	}
}

// CompleteStep records the active step with the given outcome and advances.
// Valid outcomes for manual completion are completed and interrupted;
// auto_advanced is reserved for the expiry path and skipped for SkipStep.
func (s *Sequencer) CompleteStep(ctx context.Context, outcome models.StepOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.ExecutionActive {
		return models.ErrExecutionNotActive
	}
	if !models.IsValidStepOutcome(outcome) || outcome == models.OutcomeSkipped {
		return fmt.Errorf("%w: %q", models.ErrInvalidOutcome, outcome)
	}
	return s.advance(ctx, outcome)
}

// SkipStep advances past the active step without performing it. Mandatory
// steps reject the request with models.ErrStepNotSkippable and nothing is
// recorded. A skipped step dispatches no completion cue; the user declined
// the step, so only the record keeps the outcome.
func (s *Sequencer) SkipStep(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.ExecutionActive {
		return models.ErrExecutionNotActive
	}
	step, err := s.catalog.At(s.stepIndex)
	if err != nil {
		return err
	}
	if !step.IsOptional {
		slog.Warn("Sequencer skip rejected", "executionID", s.record.ID, "stepID", step.ID)
		return models.ErrStepNotSkippable
	}
	return s.advance(ctx, models.OutcomeSkipped)
}

// advance records the active step's outcome and moves to the next step or to
// completion. Caller holds the lock. The successor step is armed before any
// mutation, so an un-armable successor rejects the whole transition and the
// current step stays active. In-memory state then transitions fully before
// any recorder call; recorder failures are joined and returned as retryable
// errors.
func (s *Sequencer) advance(ctx context.Context, outcome models.StepOutcome) error {
	step, err := s.catalog.At(s.stepIndex)
	if err != nil {
		return err
	}

	consumed := s.stepIndex + 1
	var next models.BoardStep
	var nextCountdown *timer.Countdown
	if consumed < s.catalog.Len() {
		next, nextCountdown, err = s.prepareStep(consumed)
		if err != nil {
			slog.Error("Sequencer advance rejected", "executionID", s.record.ID, "error", err)
			return err
		}
	}
	now := s.clock()

	entry := models.StepRecord{
		Seq:              s.takeSeq(),
		StepID:           step.ID,
		EnteredAt:        s.enteredAt,
		LeftAt:           now,
		Outcome:          outcome,
		TimeSpentSeconds: s.countdown.Elapsed(),
	}
	s.record.StepHistory = append(s.record.StepHistory, entry)
	s.countdown.Cancel()

	s.record.CompletionPercentage = models.CompletionPercentage(consumed, s.catalog.Len())

	persistErr := s.recorder.AppendStepOutcome(s.record.ID, entry)

	slog.Info("Sequencer step finished", "executionID", s.record.ID, "stepID", step.ID,
		"outcome", outcome, "timeSpent", entry.TimeSpentSeconds, "completion", s.record.CompletionPercentage)

	if consumed >= s.catalog.Len() {
		s.state = models.ExecutionCompleted
		s.record.Status = models.ExecutionCompleted
		s.record.CurrentStepID = ""
		s.record.CompletionPercentage = 100
		s.record.CompletedAt = &now

		s.dispatcher.Dispatch(ctx, notify.IntentExecutionComplete, step.TimerSettings.Notification, step.NeurotypeAdaptations)
		slog.Info("Sequencer completed board", "executionID", s.record.ID, "boardID", s.catalog.BoardID())
		return errors.Join(persistErr,
			s.recorder.Finalize(s.record.ID, models.ExecutionCompleted, now, 100))
	}

	if outcome != models.OutcomeSkipped {
		s.dispatcher.Dispatch(ctx, notify.IntentStepComplete, step.TimerSettings.Notification, step.NeurotypeAdaptations)
	}
	return errors.Join(persistErr, s.commitStep(consumed, next, nextCountdown))
}

// ExtendStep adds (or with a negative value removes) seconds from the active
// step's remaining time. Only flexible steps may be adjusted; the change is
// recorded in the modifications audit trail. Warning state is not reset by
// an extension.
func (s *Sequencer) ExtendStep(seconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.ExecutionActive {
		return models.ErrExecutionNotActive
	}
	step, err := s.catalog.At(s.stepIndex)
	if err != nil {
		return err
	}
	if !step.IsFlexible {
		return models.ErrStepNotFlexible
	}

	before := s.countdown.Remaining()
	applied := s.countdown.Adjust(seconds)
	if applied == 0 {
		return nil
	}

	entry := models.Modification{
		Seq:      s.takeSeq(),
		At:       s.clock(),
		Field:    "remaining_seconds",
		OldValue: strconv.Itoa(before),
		NewValue: strconv.Itoa(before + applied),
	}
	s.record.Modifications = append(s.record.Modifications, entry)

	slog.Info("Sequencer adjusted flexible step", "executionID", s.record.ID, "stepID", step.ID, "delta", applied)
	return s.recorder.AppendModification(s.record.ID, entry)
}

// Exit abandons the execution from active or paused. Recorded history is
// kept as-is: completion percentage stays where it was and completed_at is
// stamped with the exit time.
func (s *Sequencer) Exit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.ExecutionActive && s.state != models.ExecutionPaused {
		return fmt.Errorf("cannot exit execution in state %q", s.state)
	}

	now := s.clock()
	s.countdown.Cancel()
	s.state = models.ExecutionAbandoned
	s.record.Status = models.ExecutionAbandoned
	s.record.CurrentStepID = ""
	s.record.CompletedAt = &now

	slog.Info("Sequencer abandoned execution", "executionID", s.record.ID, "completion", s.record.CompletionPercentage)
	return s.recorder.Finalize(s.record.ID, models.ExecutionAbandoned, now, s.record.CompletionPercentage)
}

// Finalize attaches ratings and notes to a completed execution. Valid
// exactly once, only from the completed state; a second call fails with
// models.ErrAlreadyFinalized and its arguments are not applied.
func (s *Sequencer) Finalize(ratings models.Ratings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.ExecutionCompleted {
		return models.ErrNotCompleted
	}
	if s.record.Finalized {
		return models.ErrAlreadyFinalized
	}
	if err := ratings.Validate(); err != nil {
		return err
	}

	if err := s.recorder.AttachRatings(s.record.ID, ratings); err != nil {
		return err
	}
	s.record.Finalized = true
	s.record.SatisfactionRating = ratings.Satisfaction
	s.record.DifficultyRating = ratings.Difficulty
	s.record.Notes = ratings.Notes

	slog.Info("Sequencer finalized execution", "executionID", s.record.ID)
	return nil
}

// Resync re-persists the authoritative in-memory record after a persistence
// outage. Every append is idempotent, so replaying the full history is safe.
func (s *Sequencer) Resync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == models.ExecutionNotStarted {
		return nil
	}

	var errs []error
	for _, e := range s.record.StepHistory {
		errs = append(errs, s.recorder.AppendStepOutcome(s.record.ID, e))
	}
	for _, e := range s.record.Interruptions {
		errs = append(errs, s.recorder.AppendInterruption(s.record.ID, e))
	}
	for _, e := range s.record.Modifications {
		errs = append(errs, s.recorder.AppendModification(s.record.ID, e))
	}
	if s.record.Status.Terminal() {
		errs = append(errs, s.recorder.Finalize(s.record.ID, s.record.Status, *s.record.CompletedAt, s.record.CompletionPercentage))
	} else {
		errs = append(errs, s.recorder.UpdateProgress(s.record.ID, s.record.Status, s.record.CurrentStepID, s.record.CompletionPercentage))
	}
	return errors.Join(errs...)
}

func (s *Sequencer) takeSeq() int {
	seq := s.nextSeq
	s.nextSeq++
	return seq
}

// State returns the sequencer's current lifecycle state.
func (s *Sequencer) State() models.ExecutionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Record returns a copy of the in-memory execution record.
func (s *Sequencer) Record() models.ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.record
	out.StepHistory = append([]models.StepRecord(nil), s.record.StepHistory...)
	out.Interruptions = append([]models.Interruption(nil), s.record.Interruptions...)
	out.Modifications = append([]models.Modification(nil), s.record.Modifications...)
	return out
}

// CurrentStep returns the active step while the execution is live.
func (s *Sequencer) CurrentStep() (models.BoardStep, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.ExecutionActive && s.state != models.ExecutionPaused {
		return models.BoardStep{}, false
	}
	step, err := s.catalog.At(s.stepIndex)
	if err != nil {
		return models.BoardStep{}, false
	}
	return step, true
}

// Remaining returns the seconds left on the active step's countdown.
func (s *Sequencer) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countdown == nil {
		return 0
	}
	return s.countdown.Remaining()
}
