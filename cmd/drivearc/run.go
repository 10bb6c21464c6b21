package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drivearc/drivearc/internal/config"
	"github.com/drivearc/drivearc/internal/http/rest"
	"github.com/drivearc/drivearc/internal/index"
	"github.com/drivearc/drivearc/internal/journal"
	journalsqlite "github.com/drivearc/drivearc/internal/journal/sqlite"
	"github.com/drivearc/drivearc/internal/logctx"
	"github.com/drivearc/drivearc/internal/mirror"
	"github.com/drivearc/drivearc/internal/notifier"
	"github.com/drivearc/drivearc/internal/progress"
	"github.com/drivearc/drivearc/internal/remote"
	"github.com/drivearc/drivearc/internal/remote/drive"
	"github.com/drivearc/drivearc/internal/remote/putio"
	"github.com/drivearc/drivearc/internal/report"
	"github.com/drivearc/drivearc/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	flagGroup      string
	flagFolder     string
	flagWorkers    int
	flagTimeout    time.Duration
	flagSkipFailed bool
	flagOutput     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Download every pending file from the configured folder index",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&flagGroup, "group", "", "only mirror groups whose name contains this substring")
	runCmd.Flags().StringVar(&flagFolder, "folder", "", "mirror a single folder id, bypassing the index")
	runCmd.Flags().IntVar(&flagWorkers, "workers", 0, "number of parallel download workers")
	runCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "per-file download timeout")
	runCmd.Flags().BoolVar(&flagSkipFailed, "skip-failed", false, "do not retry files that failed in earlier runs")
	runCmd.Flags().StringVar(&flagOutput, "output", "", "destination root directory")
}

func runRun(cmd *cobra.Command, _ []string) error {
	applyRunFlags(cmd)

	if err := cfg.ValidateForRun(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logctx.WithLogger(ctx, slog.Default())

	return run(ctx, cmd)
}

// applyRunFlags lets explicit flags override the environment config.
func applyRunFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("workers") {
		cfg.Workers = flagWorkers
	}

	if cmd.Flags().Changed("timeout") {
		cfg.FetchTimeout = flagTimeout
	}

	if cmd.Flags().Changed("skip-failed") {
		cfg.SkipFailed = flagSkipFailed
	}

	if cmd.Flags().Changed("output") {
		cfg.OutputDir = flagOutput
	}
}

func run(ctx context.Context, cmd *cobra.Command) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "drivearc",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to shut down telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Resolve roots and progress state
	roots, err := resolveRoots()
	if err != nil {
		return err
	}

	store, err := progress.Open(cfg.ProgressFile)
	if err != nil {
		return err
	}

	// =========================================================================
	// Start Attempt Journal
	var recorder journal.Recorder

	if cfg.JournalPath != "" {
		db, err := journalsqlite.InitDB(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer db.Close()

		recorder = journalsqlite.NewInstrumentedJournal(db, tel)
	}

	// =========================================================================
	// Start Remote Client
	client, err := buildRemoteClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to build remote client: %w", err)
	}

	if c, ok := client.(*putio.Client); ok {
		if err := c.Authenticate(ctx); err != nil {
			return fmt.Errorf("authentication error: %w", err)
		}
	}

	// =========================================================================
	// Start Scheduler
	lister := mirror.NewLister(client, store, tel, cfg.ListTimeout)
	fetcher := mirror.NewFetcher(client, cfg.OutputDir, cfg.FetchTimeout)

	sched := mirror.NewScheduler(lister, fetcher, store, recorder, tel, mirror.Config{
		Workers:       cfg.Workers,
		SkipFailed:    cfg.SkipFailed,
		ShutdownGrace: cfg.ShutdownGrace,
	})

	ctx, logger = logctx.With(ctx, "run_id", sched.RunID())

	// =========================================================================
	// Start Status Server
	if cfg.Web.BindAddress != "" {
		handler := rest.NewStatusHandler(store, sched.Counters(), sched.RunID())
		server := setupServer(ctx, handler, tel)

		go func() {
			logger.Info("status server listening", "addr", cfg.Web.BindAddress)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server error", "err", err)
			}
		}()

		defer func() {
			shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutCtx); err != nil {
				logger.Error("failed to gracefully shutdown the status server", "err", err)

				_ = server.Close()
			}
		}()
	}

	// =========================================================================
	// Run
	logger.Info("starting run",
		"source", cfg.Source,
		"roots", len(roots),
		"output_dir", cfg.OutputDir,
		"workers", cfg.Workers,
		"skip_failed", cfg.SkipFailed,
	)

	start := time.Now()
	summary, runErr := sched.Run(ctx, roots)

	report.WriteSummary(cmd.OutOrStdout(), summary, time.Since(start), cfg.ProgressFile)
	notifyRun(ctx, summary, runErr)

	switch {
	case errors.Is(runErr, mirror.ErrRateLimited):
		fmt.Fprintln(cmd.OutOrStdout(),
			"The provider is rate limiting requests. Re-run the same command later; completed work is saved.")

		return runErr
	case runErr != nil:
		return runErr
	}

	return nil
}

// resolveRoots picks the folder trees to mirror: a single folder when --folder
// is given, otherwise every matching folder from the index file.
func resolveRoots() ([]mirror.Root, error) {
	if flagFolder != "" {
		group := flagGroup
		if group == "" {
			group = flagFolder
			if len(group) > 20 {
				group = group[:20]
			}
		}

		return []mirror.Root{{FolderID: flagFolder, Group: index.Sanitize(group)}}, nil
	}

	idx, err := index.Load(cfg.IndexFile)
	if err != nil {
		return nil, fmt.Errorf("folder index not available, run the index fetcher first: %w", err)
	}

	links := idx.Folders(flagGroup)
	if len(links) == 0 {
		return nil, fmt.Errorf("no folders in %s match group filter %q", cfg.IndexFile, flagGroup)
	}

	roots := make([]mirror.Root, 0, len(links))
	for _, l := range links {
		roots = append(roots, mirror.Root{FolderID: l.ID, Group: l.Group()})
	}

	return roots, nil
}

// buildRemoteClient is an abstract factory for the remote provider client.
func buildRemoteClient(cfg *config.Config) (remote.Client, error) {
	switch cfg.Source {
	case "drive":
		var opts []drive.Option
		if cfg.DriveBaseURL != "" {
			opts = append(opts, drive.WithBaseURL(cfg.DriveBaseURL))
		}

		return drive.NewClient(cfg.DriveAPIKey, opts...), nil
	case "putio":
		return putio.NewClient(cfg.PutioToken), nil
	}

	return nil, fmt.Errorf("invalid source: %s", cfg.Source)
}

// setupServer prepares the status server with its middleware chain.
func setupServer(ctx context.Context, handler *rest.StatusHandler, tel *telemetry.Telemetry) *http.Server {
	r := chi.NewRouter()

	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Method(http.MethodGet, "/metrics", tel.Handler())
	r.Mount("/", handler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "status-server"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

// notifyRun fires the optional webhook with the run result.
func notifyRun(ctx context.Context, summary mirror.Summary, runErr error) {
	if cfg.DiscordWebhookURL == "" {
		return
	}

	logger := logctx.LoggerFromContext(ctx)
	n := &notifier.DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL}

	var msg string

	switch {
	case errors.Is(runErr, mirror.ErrRateLimited):
		msg = "⛔ Run aborted: provider rate limit. Re-run later; progress is saved."
	case runErr != nil:
		msg = fmt.Sprintf("⚠️ Run stopped: %s (%d downloaded, %d failed)",
			runErr, summary.Downloaded, summary.Failed)
	default:
		msg = fmt.Sprintf("✅ Run finished: %d downloaded, %d skipped, %d failed",
			summary.Downloaded, summary.Skipped, summary.Failed)
	}

	if err := n.Notify(context.WithoutCancel(ctx), msg); err != nil {
		logger.Error("failed to send notification", "err", err)
	}
}
