package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dualstore/internal/auth"
	"dualstore/internal/config"
	"dualstore/internal/ledger"
	"dualstore/internal/server"
	"dualstore/internal/storage"
	"dualstore/internal/upload"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func setupLogging(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}

	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           lvl,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})

	slog.SetDefault(slog.New(handler))
	return nil
}

func newAuthenticator(cfg config.AuthConfig) auth.AuthEngine {
	var engines []auth.AuthEngine
	if cfg.BasicEnabled() {
		engines = append(engines, auth.NewBasicAuthEngine(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		engines = append(engines, auth.NewTokenAuthEngine(cfg.Token))
	}

	if len(engines) == 0 {
		return nil
	}
	return auth.NewCompoundAuthEngine(engines...)
}

func Run(ctx context.Context) error {

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := setupLogging(cfg.LogLevel); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	objects, err := storage.NewObjectStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}

	contents, err := storage.NewContentStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to create content store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	observer, err := upload.NewPrometheusObserver(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	serviceOpts := []upload.ServiceOption{upload.WithObserver(observer)}
	serverCfg := server.Config{
		Authenticator: newAuthenticator(cfg.Auth),
		Gatherer:      registry,
	}

	if cfg.LedgerPath != "" {
		l, err := ledger.Open(ctx, cfg.LedgerPath)
		if err != nil {
			return fmt.Errorf("failed to open upload ledger: %w", err)
		}
		defer l.Close()

		serviceOpts = append(serviceOpts, upload.WithRecorder(l))
		serverCfg.History = l
	}

	serverCfg.Service = upload.NewService(upload.Options{
		MaxFileSize: cfg.Upload.MaxFileSize,
		TempDir:     cfg.Upload.TempDir,
		Bucket:      cfg.S3.Bucket,
		KeyPrefix:   cfg.S3.KeyPrefix,
	}, upload.NewReplicator(objects, contents, observer), serviceOpts...)

	srv, err := server.NewServer(serverCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		slog.Info("Starting HTTP server",
			"addr", httpServer.Addr,
			"object_store", cfg.Objects.Backend,
			"content_store", cfg.Content.Backend,
			"bucket", cfg.S3.Bucket,
			"max_file_size", cfg.Upload.MaxFileSize,
		)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return eg.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}
