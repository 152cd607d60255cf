// Package app wires the archive pipeline from configuration. Every binary builds on it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"arsip/internal/archive"
	"arsip/internal/classifier"
	"arsip/internal/config"
	"arsip/internal/database"
	"arsip/internal/database/migration"
	"arsip/internal/extract"
	"arsip/internal/metadata"
	"arsip/internal/metrics"
	"arsip/internal/ocr"
	"arsip/internal/reconcile"
	"arsip/internal/repository"
	"arsip/internal/repository/postgres"
	"arsip/internal/repository/sqlite"
	"arsip/internal/service"
	"arsip/internal/storage"
)

// App holds the wired components. Close releases the database.
type App struct {
	Config     *config.AppConfig
	Logger     *slog.Logger
	DB         *sql.DB
	Registry   *prometheus.Registry
	Metrics    *metrics.Pipeline
	OCR        *ocr.Engine
	Reconciler *reconcile.Reconciler
	Documents  service.DocumentService
}

// NewLogger returns a JSON slog logger at the named level (debug, info, warn, error).
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// New opens the index, migrates it and builds the document service.
func New(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a, err := build(ctx, cfg, logger, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, db *sql.DB) (*App, error) {
	driver := cfg.Database.Driver
	if driver == "" {
		driver = database.DriverPostgres
	}
	dbHost := cfg.Database.Host
	if driver == database.DriverSQLite {
		dbHost = cfg.Database.SQLitePath
	}
	if err := migration.EnsureMigrated(ctx, db, driver, logger, dbHost); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	repo, err := newRepository(driver, db)
	if err != nil {
		return nil, err
	}
	store, err := newStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("init archive storage: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	runner := ocr.NewExecRunner()
	engine := ocr.NewEngine(ocr.Config{
		Pdftoppm:  cfg.OCR.Pdftoppm,
		Tesseract: cfg.OCR.Tesseract,
		Lang:      cfg.OCR.Lang,
		DPI:       cfg.OCR.DPI,
		MaxPages:  cfg.OCR.MaxPages,
	}, runner, logger.With("component", "ocr"))
	extractor := extract.New(extract.Config{
		Pdftotext:      cfg.OCR.Pdftotext,
		MinUsableChars: cfg.OCR.MinUsableChars,
		OCRTimeout:     cfg.OCR.Timeout,
	}, runner, engine, logger.With("component", "extract"))

	placer := archive.NewPlacer(store, logger.With("component", "archive"))
	rec := reconcile.New(repo, placer, m, logger.With("component", "reconcile"))

	docs := service.NewDocumentService(service.Deps{
		Repo:       repo,
		Placer:     placer,
		Extractor:  extractor,
		Parser:     metadata.NewParser(logger),
		Classifier: classifier.NewRules(cfg.OfficeName),
		Reconciler: rec,
		Metrics:    m,
		Logger:     logger.With("component", "service"),
	}, service.Options{
		MaxUploadBytes:   cfg.Ingest.MaxUploadBytes,
		RejectDuplicates: cfg.Ingest.RejectDuplicates,
	})

	return &App{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Registry:   reg,
		Metrics:    m,
		OCR:        engine,
		Reconciler: rec,
		Documents:  docs,
	}, nil
}

func newRepository(driver string, db *sql.DB) (repository.DocumentRepository, error) {
	switch driver {
	case database.DriverPostgres:
		return postgres.NewDocumentPostgres(db), nil
	case database.DriverSQLite:
		return sqlite.NewDocumentSQLite(db), nil
	}
	return nil, fmt.Errorf("unknown database driver %q", driver)
}

func newStorage(cfg *config.AppConfig) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case "", "fs":
		return storage.NewFS(cfg.Storage.ArchiveRoot)
	case "minio":
		return storage.NewMinIO(cfg.MinIO)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func (a *App) Close() error {
	return a.DB.Close()
}
