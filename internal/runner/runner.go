// Package runner hosts an interactive board execution session.
//
// The engine itself is passive: the runner owns the wall clock, feeding the
// sequencer one tick per second, and translates line-based commands (done,
// skip, pause, resume, extend, exit) into sequencer operations. The
// sequencer serializes both inputs internally, so the ticker goroutine and
// the command reader never race.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/Rolii95/neurotype-planner/internal/models"
	"github.com/Rolii95/neurotype-planner/internal/sequencer"
	"github.com/Rolii95/neurotype-planner/internal/timer"
)

// TickInterval is how often the runner advances the active countdown. One
// tick represents one second of step time.
const TickInterval = time.Second

// Session drives one board execution interactively.
type Session struct {
	seq    *sequencer.Sequencer
	input  io.Reader
	output io.Writer

	tickInterval time.Duration
}

// Opts holds configuration options for a session.
type Opts struct {
	Input        io.Reader
	Output       io.Writer
	TickInterval time.Duration
}

// Option defines a configuration option for a session.
type Option func(*Opts)

// WithInput sets the command input stream, stdin by default.
func WithInput(r io.Reader) Option {
	return func(o *Opts) { o.Input = r }
}

// WithOutput sets the session's output stream, stdout by default.
func WithOutput(w io.Writer) Option {
	return func(o *Opts) { o.Output = w }
}

// WithTickInterval overrides the tick interval, used by tests to run fast.
func WithTickInterval(d time.Duration) Option {
	return func(o *Opts) { o.TickInterval = d }
}

// NewSession creates a session around an already constructed sequencer.
func NewSession(seq *sequencer.Sequencer, opts ...Option) *Session {
	cfg := Opts{TickInterval: TickInterval}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Output == nil {
		cfg.Output = color.Output
	}
	return &Session{
		seq:          seq,
		input:        cfg.Input,
		output:       cfg.Output,
		tickInterval: cfg.TickInterval,
	}
}

// Run starts the execution and blocks until it reaches a terminal state, the
// command stream ends, or the context is cancelled. A context cancellation
// or EOF mid-run abandons the execution.
func (s *Session) Run(ctx context.Context) (models.ExecutionRecord, error) {
	if err := s.seq.Start(); err != nil {
		return models.ExecutionRecord{}, err
	}
	s.showStep()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	commands := make(chan string)
	go s.readCommands(ctx, commands)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.abandon()
			return s.seq.Record(), ctx.Err()

		case <-ticker.C:
			prev, _ := s.seq.CurrentStep()
			ev, err := s.seq.OnTick(ctx)
			if err != nil {
				slog.Warn("Runner tick persistence error", "error", err)
			}
			s.renderTick(ev, prev)
			if s.seq.State().Terminal() {
				return s.finish()
			}

		case line, ok := <-commands:
			if !ok {
				s.abandon()
				return s.seq.Record(), nil
			}
			if err := s.execute(ctx, line); err != nil {
				if errors.Is(err, errSessionExit) {
					return s.seq.Record(), nil
				}
				fmt.Fprintln(s.output, color.RedString("! %v", err))
			}
			if s.seq.State().Terminal() {
				return s.finish()
			}
		}
	}
}

var errSessionExit = errors.New("session exit requested")

func (s *Session) readCommands(ctx context.Context, out chan<- string) {
	defer close(out)
	if s.input == nil {
		<-ctx.Done()
		return
	}
	scanner := bufio.NewScanner(s.input)
	for scanner.Scan() {
		select {
		case out <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}

// execute applies one command line to the sequencer.
func (s *Session) execute(ctx context.Context, line string) error {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(line)))
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "done", "d":
		if err := s.seq.CompleteStep(ctx, models.OutcomeCompleted); err != nil {
			return err
		}
		s.showStep()
		return nil
	case "skip", "s":
		if err := s.seq.SkipStep(ctx); err != nil {
			return err
		}
		s.showStep()
		return nil
	case "pause", "p":
		return s.seq.Pause()
	case "resume", "r", "start":
		return s.seq.Resume()
	case "extend", "e":
		if len(fields) < 2 {
			return fmt.Errorf("usage: extend <seconds>")
		}
		secs, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("extend wants a number of seconds, got %q", fields[1])
		}
		return s.seq.ExtendStep(secs)
	case "status":
		s.showStep()
		return nil
	case "exit", "quit", "q":
		s.abandon()
		return errSessionExit
	default:
		return fmt.Errorf("unknown command %q (done, skip, pause, resume, extend <s>, status, exit)", fields[0])
	}
}

func (s *Session) abandon() {
	state := s.seq.State()
	if state != models.ExecutionActive && state != models.ExecutionPaused {
		return
	}
	if err := s.seq.Exit(); err != nil {
		slog.Warn("Runner abandon persistence error", "error", err)
	}
	fmt.Fprintln(s.output, color.YellowString("Board abandoned at %d%%.", s.seq.Record().CompletionPercentage))
}

func (s *Session) finish() (models.ExecutionRecord, error) {
	record := s.seq.Record()
	if record.Status == models.ExecutionCompleted {
		fmt.Fprintln(s.output, color.GreenString("Board complete."))
	}
	return record, nil
}

func (s *Session) showStep() {
	step, ok := s.seq.CurrentStep()
	if !ok {
		return
	}
	title := step.Title
	if title == "" {
		title = step.ID
	}
	if step.Untimed() {
		fmt.Fprintf(s.output, "%s %s (untimed, finish with 'done')\n", color.CyanString("->"), title)
		return
	}
	fmt.Fprintf(s.output, "%s %s (%s)\n", color.CyanString("->"), title, formatSeconds(step.DurationSeconds))
}

// renderTick prints the countdown line for display-worthy tick events.
func (s *Session) renderTick(ev timer.Event, step models.BoardStep) {
	switch ev.Kind {
	case timer.EventRunning:
		fmt.Fprintf(s.output, "\r  %s remaining ", formatSeconds(ev.Remaining))
	case timer.EventOverrun:
		fmt.Fprintf(s.output, "\r  %s over ", color.RedString(formatSeconds(ev.Overrun)))
	case timer.EventExpired:
		fmt.Fprintln(s.output)
		if s.seq.State() == models.ExecutionActive {
			if cur, ok := s.seq.CurrentStep(); ok && cur.ID != step.ID {
				s.showStep()
			}
		}
	}
}

func formatSeconds(total int) string {
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
