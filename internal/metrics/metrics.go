// Package metrics holds the Prometheus collectors of the ingest pipeline and the reconciler.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Divergence classes reported by the reconciler.
const (
	ClassOnlyInDB   = "only_in_db"
	ClassOnlyOnDisk = "only_on_disk"
	ClassMismatched = "mismatched"
	ClassInvalid    = "invalid"
)

// Pipeline groups the counters and gauges. A nil *Pipeline is valid and records nothing,
// so packages can take one optionally.
type Pipeline struct {
	ingested           *prometheus.CounterVec
	duplicates         prometheus.Counter
	ocrFallback        prometheus.Counter
	extractionDegraded prometheus.Counter
	ingestFailures     *prometheus.CounterVec
	divergence         *prometheus.GaugeVec
	reconcileRuns      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Pipeline, error) {
	p := &Pipeline{
		ingested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documents_ingested_total",
				Help: "Documents archived, by kind.",
			},
			[]string{"kind"},
		),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "documents_duplicate_total",
			Help: "Ingested documents whose content matched an existing primary.",
		}),
		ocrFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ocr_fallback_total",
			Help: "PDFs whose text came from OCR instead of the text layer.",
		}),
		extractionDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extraction_degraded_total",
			Help: "Documents archived with empty or partial extracted text.",
		}),
		ingestFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_failures_total",
				Help: "Ingests rejected or failed, by reason.",
			},
			[]string{"reason"},
		),
		divergence: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "archive_divergence",
				Help: "Entries per divergence class found by the last reconciliation.",
			},
			[]string{"class"},
		),
		reconcileRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconcile_runs_total",
				Help: "Reconciliation runs, by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
	}

	var errs []error
	for _, c := range []prometheus.Collector{
		p.ingested, p.duplicates, p.ocrFallback, p.extractionDegraded,
		p.ingestFailures, p.divergence, p.reconcileRuns,
	} {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return p, nil
}

// Ingested records one archived document.
func (p *Pipeline) Ingested(kind string, duplicate, usedOCR, degraded bool) {
	if p == nil {
		return
	}
	p.ingested.WithLabelValues(kind).Inc()
	if duplicate {
		p.duplicates.Inc()
	}
	if usedOCR {
		p.ocrFallback.Inc()
	}
	if degraded {
		p.extractionDegraded.Inc()
	}
}

// IngestFailed records an ingest that did not produce a document.
func (p *Pipeline) IngestFailed(reason string) {
	if p == nil {
		return
	}
	p.ingestFailures.WithLabelValues(reason).Inc()
}

// Divergence sets the per-class gauges from the counts of one reconciliation.
func (p *Pipeline) Divergence(onlyInDB, onlyOnDisk, mismatched, invalid int) {
	if p == nil {
		return
	}
	p.divergence.WithLabelValues(ClassOnlyInDB).Set(float64(onlyInDB))
	p.divergence.WithLabelValues(ClassOnlyOnDisk).Set(float64(onlyOnDisk))
	p.divergence.WithLabelValues(ClassMismatched).Set(float64(mismatched))
	p.divergence.WithLabelValues(ClassInvalid).Set(float64(invalid))
}

// ReconcileRun records a finished reconciliation.
func (p *Pipeline) ReconcileRun(mode, outcome string) {
	if p == nil {
		return
	}
	p.reconcileRuns.WithLabelValues(mode, outcome).Inc()
}
