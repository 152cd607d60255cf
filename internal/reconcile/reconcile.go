// Package reconcile compares the document index with the sidecars in the archive and,
// on request, rebuilds missing index rows from their sidecars.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"arsip/internal/archive"
	"arsip/internal/metrics"
	"arsip/internal/model"
	"arsip/internal/repository"
)

type Mode string

const (
	ModeReport Mode = "report"
	ModeRepair Mode = "repair"
)

func (m Mode) Valid() bool {
	return m == ModeReport || m == ModeRepair
}

var ErrInconsistentState = errors.New("index and archive diverge")

// Entry identifies one document on either side.
type Entry struct {
	ID         string `json:"id"`
	StoredPath string `json:"stored_path"`
}

type Mismatch struct {
	Entry
	Fields []string `json:"fields"`
}

type InvalidSidecar struct {
	SidecarPath string `json:"sidecar_path"`
	Error       string `json:"error"`
}

type Report struct {
	Mode       Mode             `json:"mode"`
	OnlyInDB   []Entry          `json:"only_in_db"`
	OnlyOnDisk []Entry          `json:"only_on_disk"`
	Matched    int              `json:"matched"`
	Mismatched []Mismatch       `json:"mismatched"`
	Invalid    []InvalidSidecar `json:"invalid"`
	// Repaired lists the OnlyOnDisk entries inserted into the index in repair mode.
	Repaired     []Entry   `json:"repaired"`
	RepairErrors []string  `json:"repair_errors,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	DurationMS   int64     `json:"duration_ms"`
}

// Unrepaired returns the OnlyOnDisk entries that are still missing from the index.
func (r *Report) Unrepaired() []Entry {
	done := make(map[string]bool, len(r.Repaired))
	for _, e := range r.Repaired {
		done[e.StoredPath] = true
	}
	var out []Entry
	for _, e := range r.OnlyOnDisk {
		if !done[e.StoredPath] {
			out = append(out, e)
		}
	}
	return out
}

// Divergent reports whether anything is left out of sync after the run.
func (r *Report) Divergent() bool {
	return len(r.OnlyInDB) > 0 || len(r.Unrepaired()) > 0 || len(r.Mismatched) > 0 || len(r.Invalid) > 0
}

// Err returns ErrInconsistentState with the counts when the report is divergent.
func (r *Report) Err() error {
	if !r.Divergent() {
		return nil
	}
	return fmt.Errorf("%w: only_in_db=%d only_on_disk=%d mismatched=%d invalid=%d",
		ErrInconsistentState, len(r.OnlyInDB), len(r.Unrepaired()), len(r.Mismatched), len(r.Invalid))
}

// Reconciler takes no locks. Ingests running alongside it can show up as transient
// divergence that the next run no longer reports.
type Reconciler struct {
	repo    repository.DocumentRepository
	placer  *archive.Placer
	metrics *metrics.Pipeline
	logger  *slog.Logger
}

func New(repo repository.DocumentRepository, placer *archive.Placer, m *metrics.Pipeline, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{repo: repo, placer: placer, metrics: m, logger: logger}
}

type found struct {
	doc *model.Document
	sc  *archive.Sidecar
}

// Reconcile builds a report of the divergence between the sidecars and the index. In
// ModeRepair, sidecars without a row are inserted as rows, keeping their ids. Rows without
// a sidecar are only reported, never deleted.
func (r *Reconciler) Reconcile(ctx context.Context, mode Mode) (*Report, error) {
	if mode == "" {
		mode = ModeReport
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown reconcile mode %q", mode)
	}
	start := time.Now()
	rep := &Report{
		Mode:       mode,
		OnlyInDB:   []Entry{},
		OnlyOnDisk: []Entry{},
		Mismatched: []Mismatch{},
		Invalid:    []InvalidSidecar{},
		Repaired:   []Entry{},
		StartedAt:  start.UTC(),
	}

	entries, err := r.placer.WalkSidecars(ctx)
	if err != nil {
		r.metrics.ReconcileRun(string(mode), "error")
		return nil, fmt.Errorf("walk sidecars: %w", err)
	}
	rows, err := r.repo.All(ctx)
	if err != nil {
		r.metrics.ReconcileRun(string(mode), "error")
		return nil, fmt.Errorf("load index: %w", err)
	}

	disk := make(map[string]found, len(entries))
	// stored paths whose sidecar exists but cannot be used
	broken := make(map[string]bool)
	for _, e := range entries {
		if e.Err != nil {
			rep.Invalid = append(rep.Invalid, InvalidSidecar{SidecarPath: e.Key, Error: e.Err.Error()})
			if p, ok := archive.StoredPathOf(e.Key); ok {
				broken[p] = true
			}
			continue
		}
		doc, err := e.Sidecar.Document(e.Key)
		if err != nil {
			rep.Invalid = append(rep.Invalid, InvalidSidecar{SidecarPath: e.Key, Error: err.Error()})
			continue
		}
		if _, dup := disk[doc.StoredPath]; dup {
			rep.Invalid = append(rep.Invalid, InvalidSidecar{
				SidecarPath: e.Key,
				Error:       "stored_name " + doc.StoredPath + " is claimed by another sidecar",
			})
			continue
		}
		disk[doc.StoredPath] = found{doc: doc, sc: e.Sidecar}
	}

	indexed := make(map[string]bool, len(rows))
	for i := range rows {
		row := &rows[i]
		indexed[row.StoredPath] = true
		f, ok := disk[row.StoredPath]
		switch {
		case ok:
			if fields := Diff(row, f.doc); len(fields) > 0 {
				rep.Mismatched = append(rep.Mismatched, Mismatch{Entry: entryOf(row), Fields: fields})
			} else {
				rep.Matched++
			}
		case broken[row.StoredPath]:
			// already reported as invalid
		default:
			rep.OnlyInDB = append(rep.OnlyInDB, entryOf(row))
		}
	}

	var missing []found
	for p, f := range disk {
		if !indexed[p] {
			missing = append(missing, f)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].doc.StoredPath < missing[j].doc.StoredPath })
	for _, f := range missing {
		rep.OnlyOnDisk = append(rep.OnlyOnDisk, entryOf(f.doc))
	}

	if mode == ModeRepair {
		for _, f := range missing {
			if err := r.repair(ctx, f); err != nil {
				rep.RepairErrors = append(rep.RepairErrors, fmt.Sprintf("%s: %v", f.doc.StoredPath, err))
				continue
			}
			rep.Repaired = append(rep.Repaired, entryOf(f.doc))
		}
	}

	rep.DurationMS = time.Since(start).Milliseconds()
	r.metrics.Divergence(len(rep.OnlyInDB), len(rep.Unrepaired()), len(rep.Mismatched), len(rep.Invalid))
	outcome := "clean"
	if rep.Divergent() {
		outcome = "divergent"
	}
	r.metrics.ReconcileRun(string(mode), outcome)

	r.logger.Info("reconciliation finished",
		"mode", mode,
		"matched", rep.Matched,
		"only_in_db", len(rep.OnlyInDB),
		"only_on_disk", len(rep.OnlyOnDisk),
		"mismatched", len(rep.Mismatched),
		"invalid", len(rep.Invalid),
		"repaired", len(rep.Repaired),
		"duration_ms", rep.DurationMS,
	)
	return rep, nil
}

// repair inserts the row a sidecar describes. When the index assigns a different primary
// the sidecar is rewritten to match.
func (r *Reconciler) repair(ctx context.Context, f found) error {
	stored, err := r.repo.Create(ctx, f.doc)
	if errors.Is(err, repository.ErrConflict) {
		// inserted by someone else since the index was read
		if cur, ferr := r.repo.FindByID(ctx, f.doc.ID); ferr == nil && cur.StoredPath == f.doc.StoredPath {
			return nil
		}
		return err
	}
	if err != nil {
		return err
	}
	if !sameRef(stored.DuplicateOf, f.doc.DuplicateOf) {
		if err := r.placer.WriteSidecar(ctx, stored, f.sc.Extras); err != nil {
			return fmt.Errorf("rewrite sidecar: %w", err)
		}
	}
	r.logger.Info("index row restored from sidecar", "id", stored.ID, "stored_path", stored.StoredPath)
	return nil
}

// Diff lists the fields on which the index row and the sidecar disagree. Timestamps are
// not compared.
func Diff(row, disk *model.Document) []string {
	var out []string
	add := func(name string, differ bool) {
		if differ {
			out = append(out, name)
		}
	}
	add("id", row.ID != disk.ID)
	add("number", !sameRef(row.Number, disk.Number))
	add("subject", !sameRef(row.Subject, disk.Subject))
	add("letter_date", !sameRef(row.DateString(), disk.DateString()))
	add("kind", row.Kind != disk.Kind)
	add("kind_confidence", row.KindConfidence != disk.KindConfidence)
	add("kind_method", row.KindMethod != disk.KindMethod)
	add("sender", !sameRef(row.Sender, disk.Sender))
	add("recipient", !sameRef(row.Recipient, disk.Recipient))
	add("original_filename", row.OriginalFilename != disk.OriginalFilename)
	add("sidecar_path", row.SidecarPath != disk.SidecarPath)
	add("mime_type", row.MimeType != disk.MimeType)
	add("size", row.Size != disk.Size)
	add("fingerprint", row.Fingerprint != disk.Fingerprint)
	add("duplicate_of", !sameRef(row.DuplicateOf, disk.DuplicateOf))
	add("ocr_used", row.OCRUsed != disk.OCRUsed)
	return out
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func entryOf(d *model.Document) Entry {
	return Entry{ID: d.ID, StoredPath: d.StoredPath}
}
