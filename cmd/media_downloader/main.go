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

	"github.com/go-chi/chi/v5"
	"github.com/lrstanley/go-ytdlp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/italolelis/media_downloader/internal/cleanup"
	"github.com/italolelis/media_downloader/internal/config"
	"github.com/italolelis/media_downloader/internal/downloader"
	"github.com/italolelis/media_downloader/internal/extractor"
	"github.com/italolelis/media_downloader/internal/http/rest"
	"github.com/italolelis/media_downloader/internal/logctx"
	"github.com/italolelis/media_downloader/internal/media"
	"github.com/italolelis/media_downloader/internal/notifier"
	"github.com/italolelis/media_downloader/internal/registry"
	"github.com/italolelis/media_downloader/internal/storage/sqlite"
	"github.com/italolelis/media_downloader/internal/telemetry"
)

var version = "dev"

const notifyTimeout = 10 * time.Second

// installTools fetches yt-dlp and ffmpeg; post-processing needs both.
var installTools = func(ctx context.Context) {
	ytdlp.MustInstallAll(ctx)
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	logger := slog.New(logctx.NewTraceHandler(handler))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("media downloader starting...", "version", version, "log_level", cfg.LogLevel, "debug", cfg.Debug)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Registry
	var opts []registry.Option

	opts = append(opts, registry.WithTelemetry(tel))

	if cfg.DBPath != "" {
		database, err := sqlite.InitDB(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer database.Close()

		opts = append(opts, registry.WithRepository(sqlite.NewInstrumentedFileRepository(database, tel)))
	}

	reg := registry.New(cfg.StoreDir(), int64(cfg.MaxFileSize), cfg.FileTTL, opts...)

	restored, err := reg.Recover(ctx)
	if err != nil {
		logger.Error("failed to recover journaled files", "err", err)
	}

	// leftovers from a previous run can never be collected
	if removed, err := cleanup.RemoveStale(ctx, cfg.WorkDir(), 0, nil); err != nil {
		logger.Error("failed to clear work dir", "dir", cfg.WorkDir(), "err", err)
	} else if removed > 0 {
		logger.Info("cleared work dir", "removed", removed)
	}

	// =========================================================================
	// Start Extraction Engines
	installEngineTools(ctx, cfg)

	inv := extractor.NewInvoker(cfg.WorkDir(), cfg.ExtractTimeout, tel,
		extractor.NewDirectEngine(int64(cfg.MaxFileSize)),
		extractor.NewYtdlpEngine(cfg.Ytdlp.Proxy, int64(cfg.MaxFileSize)),
	)

	// =========================================================================
	// Start Downloader
	d := downloader.NewDownloader(inv, reg)
	defer d.Close()

	// =========================================================================
	// Start Notification
	setupNotificationForDownloader(ctx, d, cfg)

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, d, tel, cfg)

	logger.Info("waiting for downloads...",
		"download_dir", cfg.DownloadDir,
		"max_file_size", cfg.MaxFileSize.String(),
		"file_ttl", cfg.FileTTL.String(),
		"cleanup_interval", cfg.CleanupInterval.String(),
		"restored_files", restored,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		return reg.Run(gctx, cfg.CleanupInterval)
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	return g.Wait()
}

func installEngineTools(ctx context.Context, cfg *config.Config) {
	if !cfg.Ytdlp.Install {
		return
	}

	logctx.LoggerFromContext(ctx).Info("installing yt-dlp and ffmpeg")
	installTools(ctx)
}

func setupNotificationForDownloader(ctx context.Context, d *downloader.Downloader, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	var notif notifier.Notifier
	if cfg.DiscordWebhookURL != "" {
		notif = &notifier.DiscordNotifier{
			WebhookURL: cfg.DiscordWebhookURL,
			Client: &http.Client{
				Transport: otelhttp.NewTransport(http.DefaultTransport),
				Timeout:   notifyTimeout,
			},
		}
	}

	go func() {
		for job := range d.OnJobFailed {
			logger.Warn("download failed", "job_id", job.ID, "url", job.URL, "err", job.Err())

			if notif == nil {
				continue
			}

			if notifyErr := notif.Notify(context.WithoutCancel(ctx), failureMessage(job)); notifyErr != nil {
				logger.Error("failed to send notification", "job_id", job.ID, "err", notifyErr)
			}
		}
	}()

	go func() {
		for job := range d.OnJobDelivered {
			logger.Debug("download delivered", "job_id", job.ID, "took", time.Since(job.CreatedAt).String())
		}
	}()
}

func failureMessage(job *downloader.Job) string {
	reason := "unexpected error"

	var (
		extErr   *media.ExtractionError
		oversize *media.OversizeError
	)

	switch err := job.Err(); {
	case errors.As(err, &extErr):
		reason = string(extErr.Kind)
	case errors.As(err, &oversize):
		reason = oversize.Error()
	case err != nil:
		reason = err.Error()
	}

	return "❌ Download failed for " + job.URL + " (" + reason + ")"
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, d *downloader.Downloader, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	mHandler := rest.NewMediaHandler(d, tel)

	r := chi.NewRouter()
	r.Mount("/", mHandler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      tel.HTTPHandler(r, "media-downloader"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
