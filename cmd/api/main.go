package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"

	"arsip/internal/app"
	"arsip/internal/config"
	handlers "arsip/internal/http/handler"
	"arsip/internal/http/middleware"
	"arsip/internal/otel"
)

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	logger := app.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, "arsip-api", logger)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	promMiddleware, err := middleware.NewPrometheusMiddleware(a.Registry)
	if err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}

	bodyLimit := fiber.DefaultBodyLimit
	if cfg.Ingest.MaxUploadBytes > 0 {
		// multipart overhead on top of the largest accepted document
		bodyLimit = int(cfg.Ingest.MaxUploadBytes) + 1<<20
	}
	server := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    bodyLimit,
	})

	// Tracing first so RequestID can tag the server span
	server.Use(otelfiber.Middleware())
	server.Use(middleware.RequestID())
	server.Use(middleware.Logger())
	server.Use(promMiddleware.Handler())

	handlers.RegisterRoutes(server, a.DB, a.Documents, a.OCR, a.Registry)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := server.ShutdownWithTimeout(30 * time.Second); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	addr := ":" + cfg.Port
	logger.Info("listening", "addr", addr, "db_driver", cfg.Database.Driver, "storage_driver", cfg.Storage.Driver)
	if err := server.Listen(addr); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}
