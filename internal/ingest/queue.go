// Package ingest runs document ingests on a pool of workers, off the request path.
package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"arsip/internal/service"
)

var ErrQueueClosed = errors.New("ingest queue is shutting down")

// Job is one file to ingest. Open is called by the worker that picks the job up.
type Job struct {
	Filename    string
	ContentType string
	Options     service.IngestOptions
	Open        func() (io.ReadCloser, error)
	SubmittedAt time.Time
}

// FileJob ingests the file at path under its base name.
func FileJob(path string, opts service.IngestOptions) Job {
	return Job{
		Filename: filepath.Base(path),
		Options:  opts,
		Open:     func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// Result is reported once per job.
type Result struct {
	Job    Job
	Ingest *service.IngestResult
	Err    error
}

type Queue struct {
	svc      service.DocumentService
	logger   *slog.Logger
	workers  int
	timeout  time.Duration
	onResult func(Result)

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// senders hold the read lock while they block on a full channel
	mu     sync.RWMutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithResultHandler is called from the worker goroutines after every job.
func WithResultHandler(fn func(Result)) Option {
	return func(q *Queue) {
		q.onResult = fn
	}
}

func NewQueue(svc service.DocumentService, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		svc:     svc,
		logger:  logger,
		workers: 4,
		timeout: 5 * time.Minute,
		ch:      make(chan Job, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("worker started", "worker_id", workerID)
				for job := range q.ch {
					q.run(workerID, job)
				}
				q.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *Queue) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	res := Result{Job: job}
	rc, err := job.Open()
	if err == nil {
		res.Ingest, err = q.svc.Ingest(ctx, rc, job.Filename, job.ContentType, job.Options)
		_ = rc.Close()
	}
	res.Err = err

	if err != nil {
		q.logger.Error("ingest failed", "worker_id", workerID, "filename", job.Filename, "error", err)
	} else {
		q.logger.Info("ingested file",
			"worker_id", workerID,
			"filename", job.Filename,
			"id", res.Ingest.Document.ID,
			"stored_path", res.Ingest.Document.StoredPath,
			"queued_ms", time.Since(job.SubmittedAt).Milliseconds(),
		)
	}
	if q.onResult != nil {
		q.onResult(res)
	}
}

// Pending is the number of jobs waiting for a worker.
func (q *Queue) Pending() int {
	return len(q.ch)
}

// Enqueue blocks while the queue is full, until ctx is done.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "filename", job.Filename)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for the queued ones to finish or ctx to end.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
		return ctx.Err()
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
		return nil
	}
}
