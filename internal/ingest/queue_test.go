package ingest

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"arsip/internal/model"
	"arsip/internal/service"
	"arsip/internal/service/mocks"
)

func readerJob(name, body string) Job {
	return Job{
		Filename: name,
		Open:     func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(body)), nil },
	}
}

func collect() (func(Result), func() []Result) {
	var mu sync.Mutex
	var out []Result
	return func(r Result) {
			mu.Lock()
			out = append(out, r)
			mu.Unlock()
		}, func() []Result {
			mu.Lock()
			defer mu.Unlock()
			return append([]Result(nil), out...)
		}
}

func TestQueue_ProcessesAllJobs(t *testing.T) {
	svc := new(mocks.MockDocumentService)
	svc.On("Ingest", mock.Anything, mock.Anything, mock.AnythingOfType("string"), "", service.IngestOptions{}).
		Return(&service.IngestResult{Document: &model.Document{ID: "x"}}, nil)

	handle, results := collect()
	q := NewQueue(svc, nil, WithWorkers(3), WithQueueSize(2), WithResultHandler(handle))

	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf"} {
		require.NoError(t, q.Enqueue(context.Background(), readerJob(name, "x")))
	}
	require.NoError(t, q.Shutdown(context.Background()))

	got := results()
	require.Len(t, got, 5)
	names := map[string]bool{}
	for _, r := range got {
		require.NoError(t, r.Err)
		assert.Equal(t, "x", r.Ingest.Document.ID)
		assert.False(t, r.Job.SubmittedAt.IsZero())
		names[r.Job.Filename] = true
	}
	assert.Len(t, names, 5)
	svc.AssertNumberOfCalls(t, "Ingest", 5)
}

func TestQueue_ReportsFailures(t *testing.T) {
	svc := new(mocks.MockDocumentService)
	svc.On("Ingest", mock.Anything, mock.Anything, "bad.exe", "", service.IngestOptions{}).
		Return(nil, service.ErrUnsupportedFormat)

	handle, results := collect()
	q := NewQueue(svc, nil, WithWorkers(1), WithResultHandler(handle))

	require.NoError(t, q.Enqueue(context.Background(), readerJob("bad.exe", "MZ")))
	openErr := errors.New("permission denied")
	require.NoError(t, q.Enqueue(context.Background(), Job{
		Filename: "locked.pdf",
		Open:     func() (io.ReadCloser, error) { return nil, openErr },
	}))
	require.NoError(t, q.Shutdown(context.Background()))

	got := results()
	require.Len(t, got, 2)
	assert.ErrorIs(t, got[0].Err, service.ErrUnsupportedFormat)
	assert.ErrorIs(t, got[1].Err, openErr)
	svc.AssertNumberOfCalls(t, "Ingest", 1)
}

func TestQueue_FileJob(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "surat masuk.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	opts := service.IngestOptions{RejectDuplicate: true}
	svc := new(mocks.MockDocumentService)
	svc.On("Ingest", mock.Anything, mock.Anything, "surat masuk.pdf", "", opts).
		Return(&service.IngestResult{Document: &model.Document{ID: "x"}}, nil)

	q := NewQueue(svc, nil, WithWorkers(1))
	require.NoError(t, q.Enqueue(context.Background(), FileJob(path, opts)))
	require.NoError(t, q.Shutdown(context.Background()))
	svc.AssertExpectations(t)
}

func TestQueue_EnqueueAfterShutdown(t *testing.T) {
	q := NewQueue(new(mocks.MockDocumentService), nil)
	require.NoError(t, q.Shutdown(context.Background()))
	require.NoError(t, q.Shutdown(context.Background()))

	err := q.Enqueue(context.Background(), readerJob("a.pdf", "x"))
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_EnqueueBackpressureHonoursContext(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	svc := new(mocks.MockDocumentService)
	svc.On("Ingest", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			started <- struct{}{}
			<-release
		}).
		Return(&service.IngestResult{Document: &model.Document{ID: "x"}}, nil)

	q := NewQueue(svc, nil, WithWorkers(1), WithQueueSize(1))
	require.NoError(t, q.Enqueue(context.Background(), readerJob("busy.pdf", "x")))
	<-started
	require.NoError(t, q.Enqueue(context.Background(), readerJob("queued.pdf", "x")))
	assert.Equal(t, 1, q.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, readerJob("blocked.pdf", "x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, q.Shutdown(context.Background()))
	svc.AssertNumberOfCalls(t, "Ingest", 2)
}
