package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/kirillkom/pdfqa-gateway/internal/config"
	"github.com/kirillkom/pdfqa-gateway/internal/core/ports"
	"github.com/kirillkom/pdfqa-gateway/internal/core/usecase"
	"github.com/kirillkom/pdfqa-gateway/internal/infrastructure/backend/pdfqa"
	"github.com/kirillkom/pdfqa-gateway/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/pdfqa-gateway/internal/infrastructure/pdfinspect"
	"github.com/kirillkom/pdfqa-gateway/internal/infrastructure/queue/nats"
	"github.com/kirillkom/pdfqa-gateway/internal/infrastructure/repository/memory"
	"github.com/kirillkom/pdfqa-gateway/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/pdfqa-gateway/internal/infrastructure/resilience"
	"github.com/kirillkom/pdfqa-gateway/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/pdfqa-gateway/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Lifecycle *usecase.LifecycleUseCase
	Metrics   *metrics.GatewayMetrics
	// UploadRoot is this process's own subdirectory of UPLOAD_DIR.
	UploadRoot string

	closeFn func()
}

// New wires one gateway process. service names the process in metrics, roots
// its uploads at UPLOAD_DIR/<service> so sessions never see each other's files
// and, unless HISTORY_SESSION overrides it, keys its rows in a shared history table.
func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	gatewayMetrics := metrics.NewGatewayMetrics(service)
	closers := make([]func(), 0, 2)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	uploads, err := localfs.New(filepath.Join(cfg.UploadDir, service))
	if err != nil {
		return nil, fmt.Errorf("init upload storage: %w", err)
	}
	exports, err := localfs.New(cfg.ExportDir)
	if err != nil {
		return nil, fmt.Errorf("init export storage: %w", err)
	}

	history, db, err := openHistory(ctx, cfg, service)
	if err != nil {
		return nil, err
	}
	if db != nil {
		closers = append(closers, func() { _ = db.Close() })
	}

	var events ports.EventPublisher
	if cfg.NATSURL != "" {
		publisher, err := nats.NewPublisher(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()).WithObserver(gatewayMetrics),
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init event publisher: %w", err)
		}
		events = publisher
		closers = append(closers, publisher.Close)
	}

	executor := resilience.NewExecutor(resilience.BackendConfig(cfg.RetryMaxAttempts, cfg.BreakerEnabled)).
		WithObserver(gatewayMetrics)
	backend := pdfqa.New(
		cfg.BackendURL,
		time.Duration(cfg.BackendTimeoutSeconds)*time.Second,
		executor,
		pdfqa.WithExportStore(exports),
		pdfqa.WithCallObserver(gatewayMetrics),
	)

	lifecycle := usecase.NewLifecycleUseCase(uploads, backend, history, usecase.LifecycleOptions{
		Inspector:         pdfinspect.New(),
		Events:            events,
		Observer:          gatewayMetrics,
		Spreadsheet:       xlsx.NewWriter(),
		Logger:            slog.Default(),
		StrictPDF:         cfg.PDFStrictValidation,
		DeleteConcurrency: cfg.DeleteConcurrency,
	})

	slog.Info("gateway_ready",
		"backend_url", cfg.BackendURL,
		"upload_dir", uploads.Root(),
		"export_dir", exports.Root(),
		"history", historyKind(db),
		"events", events != nil,
	)

	return &App{
		Config:     cfg,
		Lifecycle:  lifecycle,
		Metrics:    gatewayMetrics,
		UploadRoot: uploads.Root(),
		closeFn:    closeAll,
	}, nil
}

func openHistory(ctx context.Context, cfg config.Config, service string) (ports.HistoryStore, *sql.DB, error) {
	if cfg.PostgresDSN == "" {
		return memory.NewHistoryStore(), nil, nil
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	session := cfg.HistorySession
	if session == "" {
		session = service
	}
	repo := postgres.NewHistoryRepository(db, session)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, db, nil
}

func historyKind(db *sql.DB) string {
	if db == nil {
		return "memory"
	}
	return "postgres"
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
