package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/ted/internal/config"
	"github.com/JonMunkholm/ted/internal/logging"
	"github.com/JonMunkholm/ted/internal/service"
	"github.com/JonMunkholm/ted/internal/store"
	"github.com/JonMunkholm/ted/internal/ted"
	"github.com/JonMunkholm/ted/internal/tedarrow"
	"github.com/JonMunkholm/ted/internal/watch"
	"github.com/JonMunkholm/ted/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"archive_enabled", cfg.Database.Enabled(),
		"jobs_max_concurrent", cfg.Jobs.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"watch_dir", cfg.Watch.Dir,
	)
	slog.Debug("effective configuration", "config", cfg.String())

	opts, err := cfg.TedOptions()
	if err != nil {
		slog.Error("invalid format options", "error", err)
		os.Exit(1)
	}
	codec, err := ted.NewCodec(opts)
	if err != nil {
		slog.Error("failed to create codec", "error", err)
		os.Exit(1)
	}

	exporter, err := tedarrow.NewExporter(codec, tedarrow.Options{
		Compression:  cfg.Export.Compression,
		RowGroupSize: cfg.Export.RowGroupSize,
	})
	if err != nil {
		slog.Error("failed to create parquet exporter", "error", err)
		os.Exit(1)
	}

	svcOpts := []service.Option{
		service.WithExporter(exporter),
		service.WithLimiter(service.NewJobLimiter(cfg.Jobs.MaxConcurrent, cfg.Jobs.MaxWaitTime)),
	}

	ctx := context.Background()
	if cfg.Database.Enabled() {
		pool, err := connect(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		archive := store.New(pool)
		if err := archive.Migrate(ctx); err != nil {
			slog.Error("failed to migrate archive schema", "error", err)
			os.Exit(1)
		}
		svcOpts = append(svcOpts, service.WithArchive(archive))
	} else {
		slog.Info("DATABASE_URL not set, archive endpoints disabled")
	}

	svc := service.New(codec, svcOpts...)
	server := web.NewServer(svc, cfg)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(ctx)
	watchDone := make(chan struct{})

	if cfg.Watch.Dir != "" {
		go func() {
			defer close(watchDone)
			runWatcher(jobCtx, svc, cfg.Watch)
		}()
	} else {
		close(watchDone)
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop the watcher; it waits for files being handled
		cancelJobs()
		<-watchDone

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active jobs to complete (with timeout)
		if status := svc.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for jobs to complete", "active", status.Active)
			if err := svc.WaitForJobs(shutdownCtx); err != nil {
				slog.Warn("jobs did not complete in time", "error", err)
			} else {
				slog.Info("all jobs completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		cancelJobs()
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// connect opens and pings a connection pool configured from cfg.
func connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}

	// Apply pool configuration from config
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

// runWatcher handles files dropped into the inbox until ctx is done.
func runWatcher(ctx context.Context, svc *service.Service, cfg config.WatchConfig) {
	w := watch.New(cfg.Dir, func(ctx context.Context, path string) error {
		return svc.ProcessFile(ctx, path, cfg.Archive)
	}, cfg.Debounce)

	if cfg.ScanOnStart {
		n, err := w.Scan(ctx)
		if err != nil {
			slog.Error("inbox scan failed", "dir", cfg.Dir, "error", err)
			return
		}
		slog.Info("inbox scanned", "dir", cfg.Dir, "files", n)
	}

	if err := w.Run(ctx); err != nil {
		slog.Error("inbox watcher stopped", "dir", cfg.Dir, "error", err)
	}
}
