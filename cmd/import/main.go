// Command import ingests every PDF and DOCX file under a directory.
//
//	import [-reject-duplicates] [-workers n] <dir>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"arsip/internal/app"
	"arsip/internal/config"
	"arsip/internal/ingest"
	"arsip/internal/otel"
	"arsip/internal/service"
)

type summary struct {
	mu         sync.Mutex
	ingested   int
	duplicates int
	failed     []string
}

func (s *summary) record(r ingest.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var dup *service.DuplicateError
	switch {
	case errors.As(r.Err, &dup), r.Err == nil && r.Ingest.Duplicate:
		s.duplicates++
	case r.Err != nil:
		s.failed = append(s.failed, fmt.Sprintf("%s: %v", r.Job.Filename, r.Err))
	default:
		s.ingested++
	}
}

func main() {
	rejectDup := flag.Bool("reject-duplicates", false, "skip files whose content is already archived")
	workers := flag.Int("workers", 0, "parallel ingests (default INGEST_WORKERS)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <dir>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	if *workers > 0 {
		cfg.Ingest.Workers = *workers
	}
	logger := app.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	os.Exit(run(cfg, logger, flag.Arg(0), service.IngestOptions{RejectDuplicate: *rejectDup}))
}

func run(cfg *config.AppConfig, logger *slog.Logger, dir string, opts service.IngestOptions) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, "arsip-import", logger)
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

	sum := &summary{}
	q := ingest.NewQueue(a.Documents, logger,
		ingest.WithWorkers(cfg.Ingest.Workers),
		ingest.WithQueueSize(cfg.Ingest.QueueSize),
		ingest.WithJobTimeout(cfg.Ingest.JobTimeout),
		ingest.WithResultHandler(sum.record),
	)

	start := time.Now()
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !importable(path) {
			return nil
		}
		return q.Enqueue(ctx, ingest.FileJob(path, opts))
	})
	if walkErr != nil {
		logger.Error("directory walk stopped", "dir", dir, "error", walkErr)
	}

	// Queued files still finish after an interrupt; the database stays open until they do.
	drainCtx, cancel := context.WithTimeout(context.Background(),
		drainTimeout(q.Pending(), cfg.Ingest.Workers, cfg.Ingest.JobTimeout))
	defer cancel()
	if err := q.Shutdown(drainCtx); err != nil {
		logger.Error("queue did not drain", "error", err)
	}

	sum.mu.Lock()
	defer sum.mu.Unlock()
	logger.Info("import finished",
		"dir", dir,
		"ingested", sum.ingested,
		"duplicates", sum.duplicates,
		"failed", len(sum.failed),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	for _, f := range sum.failed {
		fmt.Fprintln(os.Stderr, f)
	}
	if walkErr != nil || len(sum.failed) > 0 {
		return 1
	}
	return 0
}

// drainTimeout bounds the wait for pending jobs plus the ones already running, with each
// job bounded by perJob.
func drainTimeout(pending, workers int, perJob time.Duration) time.Duration {
	if workers < 1 {
		workers = 1
	}
	rounds := (pending+workers-1)/workers + 1
	return time.Duration(rounds)*perJob + time.Minute
}

func importable(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".docx":
		return true
	}
	return false
}
