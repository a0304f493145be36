package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/npratt/wingman/internal/config"
	"github.com/npratt/wingman/internal/daemon"
	"github.com/npratt/wingman/internal/eventmanager"
	"github.com/npratt/wingman/internal/events"
	"github.com/npratt/wingman/internal/journal"
	"github.com/npratt/wingman/internal/projection"
	"github.com/npratt/wingman/internal/shutdown"
	"github.com/npratt/wingman/internal/store"
	"github.com/npratt/wingman/internal/tui"
)

const (
	shutdownTimeout = 30 * time.Second
	tuiBufferSize   = 5000
)

func newStartCmd(logger *slog.Logger, logLevel *slog.LevelVar) *cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the wingman engine",
		Long: `Start the event engine with the built-in projections.

The engine serves its state over a Unix socket, writes a JSONL transcript
of processed events and mirrors projection states to a JSON file. With
--journal-dir it also tails the game's journal and status files.

The terminal monitor starts automatically when stdout is a terminal.
Use --daemon to run in the background.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, logger, logLevel)
		},
	}

	startCmd.Flags().Bool(FlagDaemon, false, "Run as a background daemon")
	startCmd.Flags().Bool(FlagTUI, false, "Enable the terminal monitor")
	startCmd.Flags().Bool(FlagEphemeral, false, "Keep history in memory only")
	startCmd.Flags().String(FlagJournalDir, "", "Game journal directory to watch")

	// "tui" is also a config section and stays out of viper.
	for _, name := range []string{FlagDaemon, FlagEphemeral, FlagJournalDir} {
		_ = viper.BindPFlag(name, startCmd.Flags().Lookup(name))
	}
	return startCmd
}

func runStart(cmd *cobra.Command, logger *slog.Logger, logLevel *slog.LevelVar) error {
	daemonMode := viper.GetBool(FlagDaemon)

	// Determine TUI mode: explicit flag > auto-detect from TTY
	tuiEnabled, _ := cmd.Flags().GetBool(FlagTUI)
	if !cmd.Flags().Changed(FlagTUI) && !daemonMode {
		tuiEnabled = term.IsTerminal(int(os.Stdout.Fd()))
	}
	if tuiEnabled && daemonMode {
		return fmt.Errorf("--tui and --daemon flags are incompatible")
	}

	if viper.GetBool(FlagVerbose) {
		logLevel.Set(slog.LevelDebug)
		logger.Debug("verbose logging enabled")
	}

	cfg, err := loadStartConfig(cmd)
	if err != nil {
		return err
	}
	cfg.TUI.Enabled = tuiEnabled

	projectRoot := daemon.FindProjectRoot("")
	cfg.Paths, err = daemon.ResolvePaths(cfg.Paths, projectRoot)
	if err != nil {
		return fmt.Errorf("resolve paths: %w", err)
	}

	if daemonMode {
		client := daemon.NewClient(cfg.Paths.Socket)
		if client.IsRunning() {
			return fmt.Errorf("daemon already running (socket: %s)", cfg.Paths.Socket)
		}

		shouldExit, _, err := daemon.Daemonize(cfg, cmd.OutOrStdout())
		if err != nil {
			return fmt.Errorf("daemonize: %w", err)
		}
		if shouldExit {
			return nil
		}
	}

	infoPath := daemon.DaemonInfoPath(projectRoot)
	if err := os.MkdirAll(filepath.Dir(infoPath), 0755); err != nil {
		return fmt.Errorf("create %s directory: %w", config.ProjectConfigDir, err)
	}

	// TUI mode: redirect logging to a file before anything else logs
	appLogger := logger
	if tuiEnabled {
		tuiLog, err := SetupTUILogger(filepath.Dir(cfg.Paths.Log), logLevel, cfg.LogRotation)
		if err != nil {
			return err
		}
		defer func() { _ = tuiLog.Close() }()
		appLogger = tuiLog.Logger
		slog.SetDefault(appLogger)
	}

	ephemeral := viper.GetBool(FlagEphemeral)
	appLogger.Info("wingman starting",
		"version", version,
		"database", cfg.Paths.Database,
		"log_file", cfg.Paths.Log,
		"states_file", cfg.Paths.States,
		"journal", cfg.Journal.Enabled,
		"ephemeral", ephemeral,
		"daemon_mode", daemonMode,
	)

	return runEngine(cmd.Context(), cfg, ephemeral, infoPath, appLogger)
}

// loadStartConfig loads the layered config and applies explicitly set flags.
func loadStartConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cmd.Flags().Changed(FlagLogFile) {
		cfg.Paths.Log = viper.GetString(FlagLogFile)
	}
	if cmd.Flags().Changed(FlagStatesFile) {
		cfg.Paths.States = viper.GetString(FlagStatesFile)
	}
	if cmd.Flags().Changed(FlagSocketPath) {
		cfg.Paths.Socket = viper.GetString(FlagSocketPath)
	}
	if cmd.Flags().Changed(FlagDatabase) {
		cfg.Paths.Database = viper.GetString(FlagDatabase)
	}
	if cmd.Flags().Changed(FlagJournalDir) {
		dir, err := filepath.Abs(viper.GetString(FlagJournalDir))
		if err != nil {
			return nil, fmt.Errorf("resolve journal dir: %w", err)
		}
		cfg.Journal.Dir = dir
		cfg.Journal.Enabled = true
	}
	return cfg, nil
}

// openStore opens the SQLite event database, or an in-memory store.
func openStore(cfg *config.Config, ephemeral bool) (store.Store, error) {
	if ephemeral {
		return store.NewMemory(), nil
	}
	st, err := store.NewSQLite(cfg.Paths.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

// newManager builds the event manager and restores or clears history
// before registering the built-in projections.
func newManager(ctx context.Context, cfg *config.Config, st store.Store, logger *slog.Logger) (*eventmanager.Manager, error) {
	m := eventmanager.New(st,
		eventmanager.WithLogger(logger),
		eventmanager.WithProcessInterval(cfg.Manager.ProcessInterval),
		eventmanager.WithTimerInterval(cfg.Manager.TimerInterval),
		eventmanager.WithMaxDepth(cfg.Manager.MaxDepth),
	)

	if cfg.Manager.ContinueConversation {
		if err := m.LoadHistory(ctx, cfg.Manager.HistoryLimit); err != nil {
			return nil, err
		}
	} else if err := m.ClearHistory(ctx); err != nil {
		return nil, err
	}

	for _, p := range projection.Defaults(cfg.Projections) {
		if err := m.RegisterProjection(ctx, p, true); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// runEngine takes the instance lock, wires the store, manager, sinks,
// watchers, daemon and monitor together and blocks until shutdown.
func runEngine(parent context.Context, cfg *config.Config, ephemeral bool, infoPath string, logger *slog.Logger) error {
	lock, err := daemon.AcquireLock(cfg.Paths, ephemeral)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release instance lock", "path", lock.Path(), "error", err)
		}
	}()

	st, err := openStore(cfg, ephemeral)
	if err != nil {
		return err
	}

	g, ctx := shutdown.NewGroup(parent, logger, shutdownTimeout)
	g.OnShutdown("store", shutdown.ShutdownFunc(func(context.Context) error {
		return st.Close()
	}))

	m, err := newManager(ctx, cfg, st, logger)
	if err != nil {
		g.Stop()
		return errors.Join(err, g.Wait())
	}

	router := events.NewRouter(events.DefaultBufferSize)
	m.RegisterSideEffect(router.SideEffect)

	logSink := events.NewLogSink(cfg.Paths.Log)
	stateSink := events.NewStateSink(cfg.Paths.States)
	if err := logSink.Start(ctx, router.Subscribe()); err != nil {
		router.Close()
		g.Stop()
		return errors.Join(fmt.Errorf("start log sink: %w", err), g.Wait())
	}
	if err := stateSink.Start(ctx, router.SubscribeBuffered(events.StateBufferSize)); err != nil {
		router.Close()
		_ = logSink.Stop()
		g.Stop()
		return errors.Join(fmt.Errorf("start state sink: %w", err), g.Wait())
	}
	g.OnShutdown("sinks", shutdown.ShutdownFunc(func(context.Context) error {
		router.Close()
		return errors.Join(logSink.Stop(), stateSink.Stop())
	}))

	var tuiUpdates <-chan events.Update
	if cfg.TUI.Enabled {
		tuiUpdates = router.SubscribeBuffered(tuiBufferSize)
	}

	g.Go("manager", m.Run)

	if cfg.Journal.Enabled {
		g.Go("journal", runWatcher(journal.NewWatcher(cfg.Journal, m, logger)))
		g.Go("status", runWatcher(journal.NewStatusWatcher(cfg.Journal, m, logger)))
	}

	dmn := daemon.New(cfg, m, g.Stop, logger)
	g.Go("daemon", dmn.Start)

	if err := daemon.WriteDaemonInfo(infoPath, daemon.NewDaemonInfo(cfg, ephemeral)); err != nil {
		logger.Warn("failed to write daemon info", "error", err)
	}
	g.OnShutdown("daemon info", shutdown.ShutdownFunc(func(context.Context) error {
		return daemon.RemoveDaemonInfo(infoPath)
	}))

	if tuiUpdates != nil {
		monitor := tui.New(tuiUpdates,
			tui.WithOnQuit(g.Stop),
			tui.WithStatsGetter(m),
			tui.WithMaxEvents(cfg.TUI.RecentEvents),
		)
		g.Go("tui", func(ctx context.Context) error {
			defer g.Stop()
			return monitor.Run(ctx)
		})
	}

	return g.Wait()
}

// watcher is a journal or status watcher.
type watcher interface {
	Start(ctx context.Context) error
	Stop() error
}

// runWatcher adapts a background watcher to a group component.
func runWatcher(w watcher) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}
