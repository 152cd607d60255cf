// Command reconcile compares the index with the sidecars in the archive.
//
// In report mode it only reports. In repair mode it re-indexes documents whose sidecar has
// no row; rows without files are reported and never deleted. The exit code is 1 when
// divergence remains, 2 on a runtime error.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"arsip/internal/app"
	"arsip/internal/config"
	"arsip/internal/otel"
	"arsip/internal/reconcile"
)

func main() {
	mode := flag.String("mode", string(reconcile.ModeReport), "report or repair")
	flag.Parse()

	cfg := config.Load()
	// The report goes to stdout; logs go to stderr.
	logger := app.NewLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	os.Exit(run(cfg, logger, reconcile.Mode(*mode)))
}

func run(cfg *config.AppConfig, logger *slog.Logger, mode reconcile.Mode) int {
	if !mode.Valid() {
		fmt.Fprintf(os.Stderr, "invalid -mode %q: use report or repair\n", mode)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, "arsip-reconcile", logger)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		return 2
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return 2
	}
	defer a.Close()

	rep, err := a.Documents.Reconcile(ctx, mode)
	if err != nil {
		logger.Error("reconcile failed", "error", err)
		return 2
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		logger.Error("failed to write report", "error", err)
		return 2
	}

	if err := rep.Err(); err != nil {
		if errors.Is(err, reconcile.ErrInconsistentState) {
			logger.Warn("archive is not consistent", "error", err)
		}
		return 1
	}
	return 0
}
