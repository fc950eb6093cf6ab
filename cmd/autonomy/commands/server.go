package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/autonomy/am"
	"github.com/teranos/autonomy/auth"
	"github.com/teranos/autonomy/errors"
	"github.com/teranos/autonomy/logger"
	"github.com/teranos/autonomy/pulse/async"
	"github.com/teranos/autonomy/pulse/schedule"
	"github.com/teranos/autonomy/server"
)

// shutdownTimeout bounds graceful shutdown after the first signal
const shutdownTimeout = 15 * time.Second

// ServerCmd starts the autonomy job API
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the autonomy HTTP and WebSocket job API",
	Long: `Launch the job lifecycle API under /api/autonomy, the /ws/jobs update
stream and the schedule ticker. Reloadable settings (max_running, rate
limits, history limits, allowed origins, api keys) follow edits to the
active am.toml.`,
	RunE: runServer,
}

var (
	serverPort   int
	serverDBPath string
	serverMemory bool
)

func init() {
	ServerCmd.Flags().IntVar(&serverPort, "port", 0, "Listen port (overrides server.port)")
	ServerCmd.Flags().StringVar(&serverDBPath, "db-path", "", "Database path (overrides database.path)")
	ServerCmd.Flags().BoolVar(&serverMemory, "memory", false, "Keep jobs and schedules in memory only")
}

// serverConfigFrom extracts the reloadable server settings
func serverConfigFrom(cfg *am.Config) server.Config {
	return server.Config{
		AllowedOrigins:      cfg.GetServerAllowedOrigins(),
		HistoryDefaultLimit: cfg.Pulse.HistoryDefaultLimit,
		HistoryMaxLimit:     cfg.Pulse.HistoryMaxLimit,
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity == 0 {
		verbosity = 1
		if err := logger.Initialize(logger.JSONOutput, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
	}
	log := logger.Logger

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	ctx := context.Background()

	// Storage
	var (
		jobStore   async.Store
		schedStore schedule.Store
		storage    string
	)
	if serverMemory || cfg.Database.Driver == am.DriverMemory {
		jobStore = async.NewMemoryStore()
		schedStore = schedule.NewMemoryStore()
		storage = "memory"
	} else {
		database, path, err := openDatabase(serverDBPath)
		if err != nil {
			return err
		}
		defer database.Close()
		jobStore = async.NewSQLStore(database)
		schedStore = schedule.NewSQLStore(database)
		storage = "sqlite " + path
	}

	// Job lifecycle
	jobs := async.NewManager(jobStore, async.ClockScheduler{}, async.ManagerConfig{
		CompletionDelay: cfg.CompletionDelay(),
		MaxRunning:      cfg.Pulse.MaxRunning,
	}, log)
	defer jobs.Close()

	if _, err := jobs.Recover(ctx); err != nil {
		return errors.Wrap(err, "failed to recover jobs")
	}

	// Schedules
	schedules := schedule.NewService(schedStore, log)
	if cfg.Pulse.SchedulesFile != "" {
		entries, err := schedule.LoadFile(cfg.Pulse.SchedulesFile)
		if err != nil {
			return err
		}
		if _, err := schedules.Seed(ctx, entries); err != nil {
			return errors.Wrap(err, "failed to seed schedules")
		}
	}
	var ticker *schedule.Ticker
	if cfg.TickerInterval() > 0 {
		ticker = schedule.NewTicker(schedStore, jobs, schedule.TickerConfig{Interval: cfg.TickerInterval()}, log)
	}

	// Access control
	authorizer, err := auth.FromConfig(cfg.Auth)
	if err != nil {
		return errors.Wrap(err, "invalid auth configuration")
	}
	limiter := auth.NewRateLimiter(cfg.Server.RateLimitPerMinute, cfg.Server.RateLimitBurst)

	srv := server.New(server.Deps{
		Jobs:       jobs,
		Schedules:  schedules,
		Ticker:     ticker,
		Authorizer: authorizer,
		Limiter:    limiter,
	}, serverConfigFrom(cfg), log)

	if watcher := startConfigWatcher(srv, jobs, limiter, log); watcher != nil {
		defer watcher.Stop()
	}

	port := cfg.GetServerPort()
	if serverPort != 0 {
		port = serverPort
	}
	addr := fmt.Sprintf(":%d", port)

	printStartupBanner(verbosity, fmt.Sprintf("localhost%s", addr), storage, ticker != nil, cfg.Auth.Enabled)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(addr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Stop(stopCtx)
		if err != nil {
			return errors.Wrap(err, "server failed")
		}
		return nil
	case <-sigChan:
		pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			shutdownDone <- srv.Stop(stopCtx)
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return errors.Wrap(err, "shutdown error")
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("Force shutdown - exiting immediately")
			os.Exit(1)
			return nil
		}
	}
}

// startConfigWatcher applies reloadable settings when the active config file
// changes. Returns nil when no config file is in use.
func startConfigWatcher(srv *server.AutonomyServer, jobs *async.Manager, limiter *auth.RateLimiter, log *zap.SugaredLogger) *am.ConfigWatcher {
	path := am.ActiveConfigFile()
	if path == "" {
		return nil
	}

	watcher, err := am.NewConfigWatcher(path)
	if err != nil {
		log.Warnw("Config hot reload disabled", "path", path, logger.FieldError, err)
		return nil
	}

	watcher.OnReload(func(cfg *am.Config) error {
		jobs.SetMaxRunning(cfg.Pulse.MaxRunning)
		limiter.Update(cfg.Server.RateLimitPerMinute, cfg.Server.RateLimitBurst)
		srv.UpdateConfig(serverConfigFrom(cfg))

		authorizer, err := auth.FromConfig(cfg.Auth)
		if err != nil {
			return errors.Wrap(err, "keeping previous auth configuration")
		}
		srv.SetAuthorizer(authorizer)
		return nil
	})
	watcher.Start()

	log.Infow("Watching config for changes", "path", path)
	return watcher
}
