package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"arsip/internal/ingest"
	"arsip/internal/model"
	"arsip/internal/service"
)

func TestImportable(t *testing.T) {
	tests := map[string]bool{
		"surat/SM-001-2024.pdf":  true,
		"surat/SK-002-2024.DOCX": true,
		"surat/.~lock.docx":      false,
		"surat/foto.jpg":         false,
		"surat/catatan.doc":      false,
	}
	for path, want := range tests {
		assert.Equal(t, want, importable(path), path)
	}
}

func TestDrainTimeout(t *testing.T) {
	tests := []struct {
		name    string
		pending int
		workers int
		want    time.Duration
	}{
		{"empty queue waits for running jobs", 0, 4, 5*time.Minute + time.Minute},
		{"one round", 4, 4, 10*time.Minute + time.Minute},
		{"partial round", 5, 4, 15*time.Minute + time.Minute},
		{"deep backlog", 1000, 4, 251*5*time.Minute + time.Minute},
		{"zero workers", 2, 0, 15*time.Minute + time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, drainTimeout(tt.pending, tt.workers, 5*time.Minute))
		})
	}
}

func TestSummaryRecord(t *testing.T) {
	s := &summary{}
	s.record(ingest.Result{Ingest: &service.IngestResult{Document: &model.Document{ID: "a"}}})
	s.record(ingest.Result{Ingest: &service.IngestResult{Document: &model.Document{ID: "b"}, Duplicate: true}})
	s.record(ingest.Result{Job: ingest.Job{Filename: "c.pdf"}, Err: &service.DuplicateError{ExistingID: "a"}})
	s.record(ingest.Result{Job: ingest.Job{Filename: "d.exe"}, Err: errors.New("unsupported")})

	assert.Equal(t, 1, s.ingested)
	assert.Equal(t, 2, s.duplicates)
	assert.Equal(t, []string{"d.exe: unsupported"}, s.failed)
}
