// Command boardrunner executes a visual schedule board interactively in the
// terminal.
//
// It loads a board by ID from the configured store (or imports one from a
// JSON file first), runs it step by step with countdowns and notifications,
// and records the execution history. It can also print a board's execution
// statistics, or keep running and launch a routine board on a cron schedule.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/Rolii95/neurotype-planner/internal/analytics"
	"github.com/Rolii95/neurotype-planner/internal/catalog"
	"github.com/Rolii95/neurotype-planner/internal/lockfile"
	"github.com/Rolii95/neurotype-planner/internal/models"
	"github.com/Rolii95/neurotype-planner/internal/notify"
	"github.com/Rolii95/neurotype-planner/internal/recorder"
	"github.com/Rolii95/neurotype-planner/internal/recovery"
	"github.com/Rolii95/neurotype-planner/internal/runner"
	"github.com/Rolii95/neurotype-planner/internal/schedule"
	"github.com/Rolii95/neurotype-planner/internal/sequencer"
	"github.com/Rolii95/neurotype-planner/internal/store"
	"github.com/Rolii95/neurotype-planner/internal/twilio"
	"github.com/Rolii95/neurotype-planner/internal/util"
	"github.com/Rolii95/neurotype-planner/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for board runner state data
	DefaultStateDir = "/var/lib/neurotype-planner"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "planner.db"
)

func main() {
	initializeLogger()
	if !util.ParseBoolEnv("BOARDRUNNER_COLOR", true) {
		color.NoColor = true
	}

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := run(flags); err != nil {
		slog.Error("Board runner failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	slog.Info("Board runner exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir    string
	DatabaseURL string
	WhatsAppDSN string
	RemindTo    string
	RemindVia   string
	DefaultCron string
}

// Flags holds command line flag values
type Flags struct {
	boardID   *string
	boardFile *string
	stats     *bool
	stateDir  *string
	dbDSN     *string
	remindTo  *string
	remindVia *string
	cron      *string
	qrOutput  *string
	numeric   *bool
}

// initializeLogger sets up structured logging. Verbosity comes from
// BOARDRUNNER_LOG_LEVEL since the terminal doubles as the board display.
func initializeLogger() {
	level := slog.LevelWarn
	if v := os.Getenv("BOARDRUNNER_LOG_LEVEL"); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			level = slog.LevelWarn
		}
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:    os.Getenv("BOARDRUNNER_STATE_DIR"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		WhatsAppDSN: os.Getenv("WHATSAPP_DB_DSN"),
		RemindTo:    os.Getenv("REMIND_TO"),
		RemindVia:   os.Getenv("REMIND_VIA"),
		DefaultCron: os.Getenv("DEFAULT_SCHEDULE"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No BOARDRUNNER_STATE_DIR set, using default", "state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		boardID:   flag.String("board", "", "ID of the board to run"),
		boardFile: flag.String("board-file", "", "path to a board JSON file to import and run"),
		stats:     flag.Bool("stats", false, "print execution statistics for the board instead of running it"),
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for runner data (overrides $BOARDRUNNER_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN: SQLite file path or postgres:// URL (overrides $DATABASE_URL)"),
		remindTo:  flag.String("remind-to", config.RemindTo, "phone number to mirror reminders to (overrides $REMIND_TO)"),
		remindVia: flag.String("remind-via", config.RemindVia, "reminder transport: sms or whatsapp (overrides $REMIND_VIA)"),
		cron:      flag.String("cron", config.DefaultCron, "cron expression to run the board on a schedule (overrides $DEFAULT_SCHEDULE)"),
		qrOutput:  flag.String("qr-output", "", "path to write the WhatsApp login QR code"),
		numeric:   flag.Bool("numeric-code", false, "use a numeric WhatsApp login code instead of a QR code"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"board", *flags.boardID,
		"boardFile", *flags.boardFile,
		"stats", *flags.stats,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"remindVia", *flags.remindVia,
		"cron", *flags.cron)

	return flags
}

func run(flags Flags) error {
	st, err := openStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	// Close out any executions a previous crash left in flight.
	if swept, err := recovery.NewSweeper(st).Sweep(); err != nil {
		slog.Warn("Recovery sweep reported errors", "error", err, "swept", swept)
	} else if swept > 0 {
		fmt.Fprintf(os.Stderr, "Closed %d interrupted execution(s) from a previous session.\n", swept)
	}

	board, err := resolveBoard(st, flags)
	if err != nil {
		return err
	}

	if *flags.stats {
		return printStats(st, board.ID)
	}

	dispatcher, cleanup, err := buildDispatcher(flags)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *flags.cron != "" {
		return runScheduled(ctx, st, dispatcher, board, *flags.cron)
	}
	return runOnce(ctx, st, dispatcher, *board)
}

// openStore picks a backend from the DSN: postgres:// URLs get PostgreSQL,
// anything else is treated as a SQLite file path.
func openStore(dsn string) (store.Store, error) {
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// resolveBoard imports the board file if one was given, then loads the board
// to run by ID.
func resolveBoard(st store.Store, flags Flags) (*models.Board, error) {
	boardID := *flags.boardID

	if *flags.boardFile != "" {
		imported, err := importBoard(st, *flags.boardFile)
		if err != nil {
			return nil, err
		}
		if boardID == "" {
			boardID = imported
		}
	}

	if boardID == "" {
		return nil, fmt.Errorf("no board selected: pass -board <id> or -board-file <path>")
	}

	board, err := st.GetBoard(boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load board %s: %w", boardID, err)
	}
	if board == nil {
		return nil, fmt.Errorf("board %s not found in store", boardID)
	}
	return board, nil
}

// importBoard reads a board JSON file, validates it, and saves it to the
// store. Returns the imported board's ID.
func importBoard(st store.Store, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read board file %s: %w", path, err)
	}
	var board models.Board
	if err := json.Unmarshal(data, &board); err != nil {
		return "", fmt.Errorf("failed to parse board file %s: %w", path, err)
	}
	if board.ID == "" {
		board.ID = util.GenerateBoardID()
		slog.Debug("Board file had no ID, generated one", "boardID", board.ID)
	}
	if err := board.Validate(); err != nil {
		return "", fmt.Errorf("board file %s is invalid: %w", path, err)
	}
	if err := st.SaveBoard(board); err != nil {
		return "", fmt.Errorf("failed to save imported board: %w", err)
	}
	slog.Info("Imported board", "boardID", board.ID, "steps", len(board.Steps))
	return board.ID, nil
}

// buildDispatcher wires the local terminal effectors plus the optional
// remote reminder mirror.
func buildDispatcher(flags Flags) (*notify.Dispatcher, func(), error) {
	bell := notify.NewTerminalBell(os.Stdout)
	opts := []notify.Option{
		notify.WithEffector(models.ChannelVisual, notify.NewConsoleVisual(color.Output)),
		notify.WithEffector(models.ChannelAudio, bell),
		// A terminal has no haptics; vibration falls back to the bell.
		notify.WithEffector(models.ChannelVibration, bell),
	}
	cleanup := func() {}

	if *flags.remindTo != "" {
		sender, c, err := buildReminderSender(flags)
		if err != nil {
			return nil, nil, err
		}
		cleanup = c
		opts = append(opts, notify.WithMirror(notify.NewMessenger(sender, *flags.remindTo)))
	}

	return notify.NewDispatcher(opts...), cleanup, nil
}

func buildReminderSender(flags Flags) (notify.MessageSender, func(), error) {
	switch *flags.remindVia {
	case "", "sms":
		client, err := twilio.NewClient()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to configure SMS reminders: %w", err)
		}
		return client, func() {}, nil
	case "whatsapp":
		var waOpts []whatsapp.Option
		if dsn := os.Getenv("WHATSAPP_DB_DSN"); dsn != "" {
			waOpts = append(waOpts, whatsapp.WithSessionDSN(dsn))
		}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to configure WhatsApp reminders: %w", err)
		}
		return client, client.Disconnect, nil
	default:
		return nil, nil, fmt.Errorf("unknown reminder transport %q (sms or whatsapp)", *flags.remindVia)
	}
}

// runOnce executes the board a single time.
func runOnce(ctx context.Context, st store.Store, dispatcher *notify.Dispatcher, board models.Board) error {
	rec := recorder.NewStoreRecorder(st)
	seq := sequencer.New(catalog.Snapshot(board), dispatcher, rec)

	// BOARDRUNNER_TICK_MS compresses step time for demos and dry runs.
	tickMS := util.ParseIntEnv("BOARDRUNNER_TICK_MS", 1000)
	if tickMS <= 0 {
		tickMS = 1000
	}
	session := runner.NewSession(seq,
		runner.WithInput(os.Stdin),
		runner.WithTickInterval(time.Duration(tickMS)*time.Millisecond))

	record, err := session.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Execution %s finished: %s at %d%%.\n", record.ID, record.Status, record.CompletionPercentage)
	return nil
}

// runScheduled launches the board every time the cron expression fires, until
// interrupted.
func runScheduled(ctx context.Context, st store.Store, dispatcher *notify.Dispatcher, board *models.Board, cronExpr string) error {
	sched := schedule.NewScheduler(func(boardID string) {
		b, err := st.GetBoard(boardID)
		if err != nil || b == nil {
			slog.Error("Scheduled board no longer loadable", "boardID", boardID, "error", err)
			return
		}
		if err := runOnce(ctx, st, dispatcher, *b); err != nil {
			slog.Error("Scheduled board run failed", "boardID", boardID, "error", err)
		}
	})
	defer sched.Stop()

	if err := sched.AddRoutine(schedule.Routine{BoardID: board.ID, CronExpr: cronExpr}); err != nil {
		return err
	}

	fmt.Printf("Waiting to run board %q on schedule %q. Ctrl-C to stop.\n", board.Name, cronExpr)
	<-ctx.Done()
	return nil
}

// printStats prints the board's execution roll-up.
func printStats(st store.Store, boardID string) error {
	stats, err := analytics.NewCollector(st).BoardStats(boardID)
	if err != nil {
		return err
	}

	fmt.Printf("Board %s\n", boardID)
	fmt.Printf("  executions:      %d (%d completed, %d abandoned)\n",
		stats.TotalExecutions, stats.CompletedExecutions, stats.AbandonedExecutions)
	fmt.Printf("  completion rate: %.0f%%\n", stats.CompletionRate*100)
	fmt.Printf("  avg duration:    %.0fs\n", stats.AverageDurationSecs)
	fmt.Printf("  avg progress:    %.0f%%\n", stats.AverageCompletionPct)
	if stats.RatedExecutions > 0 {
		fmt.Printf("  avg satisfaction: %.1f/5 over %d rated runs\n", stats.AverageSatisfaction, stats.RatedExecutions)
	}
	if stats.TotalInterruptions > 0 {
		fmt.Printf("  interruptions:   %d\n", stats.TotalInterruptions)
	}
	return nil
}
