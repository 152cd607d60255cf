package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"arsip/internal/archive"
	"arsip/internal/classifier"
	"arsip/internal/extract"
	"arsip/internal/hasher"
	"arsip/internal/metadata"
	"arsip/internal/metrics"
	"arsip/internal/model"
	"arsip/internal/ocr"
	"arsip/internal/reconcile"
	"arsip/internal/repository"
	"arsip/internal/storage"
)

var (
	ErrIDRequired               = errors.New("id is required")
	ErrNotFound                 = errors.New("document not found")
	ErrReaderNil                = errors.New("reader is nil")
	ErrEmptyFile                = errors.New("file is empty")
	ErrFileTooLarge             = errors.New("file exceeds the upload limit")
	ErrDuplicateContent         = errors.New("document with identical content already archived")
	ErrSensitiveEditUnconfirmed = errors.New("changing date or kind needs confirmation")
	ErrReconcileUnavailable     = errors.New("reconciler not configured")

	ErrUnsupportedFormat   = extract.ErrUnsupportedFormat
	ErrUnreadableContainer = extract.ErrUnreadableContainer
)

// DuplicateError is returned when duplicates are rejected. It matches ErrDuplicateContent.
type DuplicateError struct {
	ExistingID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDuplicateContent, e.ExistingID)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateContent
}

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items []model.Document `json:"data"`
	Total int              `json:"total"`
}

type IngestOptions struct {
	// RejectDuplicate fails the ingest with a *DuplicateError instead of recording a back-reference.
	RejectDuplicate bool
}

// Extraction summarizes how the text of a document was obtained.
type Extraction struct {
	Method   string     `json:"method"`
	UsedOCR  bool       `json:"used_ocr"`
	Pages    int        `json:"pages"`
	Chars    int        `json:"chars"`
	Degraded bool       `json:"degraded"`
	OCRStats *ocr.Stats `json:"ocr_stats,omitempty"`
}

type IngestResult struct {
	Document       *model.Document   `json:"document"`
	Duplicate      bool              `json:"duplicate"`
	Classification classifier.Result `json:"classification"`
	Quality        Quality           `json:"quality"`
	Extraction     Extraction        `json:"extraction"`
	Warnings       []string          `json:"warnings"`
}

// Metadata is the parsed field set in response form.
type Metadata struct {
	Number    *string `json:"number"`
	Subject   *string `json:"subject"`
	Date      *string `json:"letter_date"`
	Sender    *string `json:"sender"`
	Recipient *string `json:"recipient"`
}

// Analysis is the outcome of a dry run: everything Ingest would decide, nothing stored.
type Analysis struct {
	Filename       string            `json:"filename"`
	MimeType       string            `json:"mime_type"`
	Size           int64             `json:"size"`
	Fingerprint    string            `json:"fingerprint"`
	DuplicateOf    *string           `json:"duplicate_of"`
	Metadata       Metadata          `json:"metadata"`
	Classification classifier.Result `json:"classification"`
	Directory      string            `json:"directory"`
	Quality        Quality           `json:"quality"`
	Extraction     Extraction        `json:"extraction"`
	Warnings       []string          `json:"warnings"`
	TextPreview    string            `json:"text_preview"`
}

// ListParams filters List. Zero values do not filter.
type ListParams struct {
	Limit  int
	Offset int
	Kind   model.Kind
	Year   int
	Search string
}

func (p ListParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Kind, validation.In(model.KindIncoming, model.KindOutgoing, model.KindOther)),
		validation.Field(&p.Year, validation.When(p.Year != 0, validation.Min(1900), validation.Max(2100))),
		validation.Field(&p.Search, validation.Length(0, 200)),
	)
}

// UpdateFields carries a partial edit. A nil field is left unchanged; an empty string
// clears a nullable field. Date and Kind are sensitive.
type UpdateFields struct {
	Number    *string     `json:"number"`
	Subject   *string     `json:"subject"`
	Date      *string     `json:"letter_date"`
	Kind      *model.Kind `json:"kind"`
	Sender    *string     `json:"sender"`
	Recipient *string     `json:"recipient"`
}

func (u UpdateFields) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Number, validation.Length(0, 100)),
		validation.Field(&u.Subject, validation.Length(0, 500)),
		validation.Field(&u.Date, validation.Date(model.DateLayout)),
		validation.Field(&u.Kind,
			validation.NilOrNotEmpty,
			validation.In(model.KindIncoming, model.KindOutgoing, model.KindOther),
		),
		validation.Field(&u.Sender, validation.Length(0, 200)),
		validation.Field(&u.Recipient, validation.Length(0, 200)),
	)
}

// DocumentService defines the use cases for handling documents.
type DocumentService interface {
	// Ingest runs the whole pipeline on r: hash, extract, parse, classify, place and index.
	// Content identical to an archived document is stored with DuplicateOf set, unless
	// duplicates are rejected.
	Ingest(ctx context.Context, r io.Reader, filename, contentType string, opts IngestOptions) (*IngestResult, error)

	// Analyze runs the pipeline up to classification without storing anything.
	Analyze(ctx context.Context, r io.Reader, filename, contentType string) (*Analysis, error)

	Get(ctx context.Context, id string) (*model.Document, error)

	// List returns documents using limit/offset and a total count.
	List(ctx context.Context, p ListParams) (*DocumentListResult, error)

	// Update applies a partial edit. Changing the date or kind needs confirmSensitive and
	// moves the files when the archive directory changes.
	Update(ctx context.Context, id string, fields UpdateFields, confirmSensitive bool) (*model.Document, error)

	// Delete removes the files and the index row of a document.
	Delete(ctx context.Context, id string) error

	// Open streams the original bytes. The caller closes the reader.
	Open(ctx context.Context, id string) (io.ReadCloser, *model.Document, error)

	// Text returns the extracted text kept beside the document.
	Text(ctx context.Context, id string) (string, error)

	Reconcile(ctx context.Context, mode reconcile.Mode) (*reconcile.Report, error)
}

// Extractor turns document bytes into text.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (extract.Result, error)
}

// Deps are the collaborators of the document service. Reconciler and Metrics are optional.
type Deps struct {
	Repo       repository.DocumentRepository
	Placer     *archive.Placer
	Extractor  Extractor
	Parser     *metadata.Parser
	Classifier classifier.Classifier
	Reconciler *reconcile.Reconciler
	Metrics    *metrics.Pipeline
	Logger     *slog.Logger
}

type Options struct {
	MaxUploadBytes   int64 // 0 = unlimited
	RejectDuplicates bool  // applies to every ingest
}

const textPreviewChars = 500

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	Deps
	opts   Options
	tracer trace.Tracer
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(d Deps, opts Options) DocumentService {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Parser == nil {
		d.Parser = metadata.NewParser(d.Logger)
	}
	return &documentService{Deps: d, opts: opts, tracer: otel.Tracer("arsip/internal/service")}
}

func (s *documentService) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "DocumentService."+name, trace.WithAttributes(attrs...))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// readAll reads r up to the upload limit.
func (s *documentService) readAll(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, ErrReaderNil
	}
	if s.opts.MaxUploadBytes > 0 {
		r = io.LimitReader(r, s.opts.MaxUploadBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if s.opts.MaxUploadBytes > 0 && int64(len(data)) > s.opts.MaxUploadBytes {
		return nil, ErrFileTooLarge
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	return data, nil
}

// analyzed is the pipeline state shared by Ingest and Analyze.
type analyzed struct {
	data        []byte
	mime        string
	fingerprint string
	res         extract.Result
	fields      metadata.Fields
	cls         classifier.Result
	quality     Quality
}

func (s *documentService) analyze(ctx context.Context, r io.Reader, filename, contentType string) (*analyzed, error) {
	data, err := s.readAll(r)
	if err != nil {
		return nil, err
	}
	a := &analyzed{
		data:        data,
		mime:        extract.DetectMIME(contentType, filename),
		fingerprint: hasher.Fingerprint(data),
	}
	if a.res, err = s.Extractor.Extract(ctx, data, a.mime); err != nil {
		return nil, err
	}
	a.fields = s.Parser.Parse(a.res.Text, filename)
	a.cls = s.Classifier.Classify(a.res.Text, filename, a.fields)
	a.quality = assessQuality(a.fields, a.cls, a.res)
	return a, nil
}

func (a *analyzed) warnings() []string {
	out := append([]string{}, a.res.Warnings...)
	if a.res.Degraded() {
		out = append(out, "extraction degraded: text is empty or partial")
	}
	return out
}

func (a *analyzed) extraction() Extraction {
	return Extraction{
		Method:   a.res.Method,
		UsedOCR:  a.res.UsedOCR,
		Pages:    a.res.Pages,
		Chars:    len([]rune(a.res.Text)),
		Degraded: a.res.Degraded(),
		OCRStats: a.res.OCRStats,
	}
}

func (s *documentService) Ingest(ctx context.Context, r io.Reader, filename, contentType string, opts IngestOptions) (*IngestResult, error) {
	ctx, span := s.start(ctx, "Ingest", attribute.String("document.filename", filename))
	defer span.End()

	reject := opts.RejectDuplicate || s.opts.RejectDuplicates
	a, err := s.analyze(ctx, r, filename, contentType)
	if err != nil {
		s.Metrics.IngestFailed(failureReason(err))
		return nil, fail(span, err)
	}
	if reject {
		if err := s.ensureUnique(ctx, a.fingerprint); err != nil {
			s.Metrics.IngestFailed(failureReason(err))
			return nil, fail(span, err)
		}
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	doc := &model.Document{
		ID:               uuid.New().String(),
		Number:           a.fields.Number,
		Subject:          a.fields.Subject,
		LetterDate:       a.fields.Date,
		Kind:             a.cls.Kind,
		KindConfidence:   a.cls.Confidence,
		KindMethod:       a.cls.Method,
		Sender:           a.fields.Sender,
		Recipient:        a.fields.Recipient,
		OriginalFilename: filename,
		MimeType:         a.mime,
		Size:             int64(len(a.data)),
		Fingerprint:      a.fingerprint,
		OCRUsed:          a.res.UsedOCR,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	span.SetAttributes(attribute.String("document.id", doc.ID), attribute.String("document.kind", string(doc.Kind)))

	warnings := a.warnings()
	ex := archive.Extras{
		OCRStats:         a.res.OCRStats,
		ExtractionMethod: a.res.Method,
		QualityScore:     &a.quality.Score,
		Warnings:         append(append([]string{}, warnings...), a.quality.Warnings...),
	}

	if err := s.Placer.Place(ctx, doc, a.data, a.res.Text, ex); err != nil {
		s.Metrics.IngestFailed("storage")
		return nil, fail(span, fmt.Errorf("place document: %w", err))
	}

	stored, err := s.Repo.Create(ctx, doc)
	if err != nil {
		s.rollback(ctx, doc)
		s.Metrics.IngestFailed("index")
		return nil, fail(span, fmt.Errorf("db save failed: %w", err))
	}

	if stored.DuplicateOf != nil {
		if reject {
			// lost the race to a concurrent ingest of the same content
			if _, derr := s.Repo.Delete(context.WithoutCancel(ctx), stored.ID); derr != nil {
				s.Logger.Error("failed to drop rejected duplicate row", "id", stored.ID, "error", derr)
			}
			s.rollback(ctx, stored)
			s.Metrics.IngestFailed("duplicate")
			return nil, fail(span, &DuplicateError{ExistingID: *stored.DuplicateOf})
		}
		if err := s.Placer.WriteSidecar(ctx, stored, ex); err != nil {
			// the reconciler reports the stale duplicate_of
			s.Logger.Error("failed to record duplicate in sidecar", "id", stored.ID, "error", err)
		}
	}

	s.Metrics.Ingested(string(stored.Kind), stored.DuplicateOf != nil, a.res.UsedOCR, a.res.Degraded())
	s.logQuality(stored, a.quality)

	return &IngestResult{
		Document:       stored,
		Duplicate:      stored.DuplicateOf != nil,
		Classification: a.cls,
		Quality:        a.quality,
		Extraction:     a.extraction(),
		Warnings:       warnings,
	}, nil
}

func (s *documentService) ensureUnique(ctx context.Context, fp string) error {
	primary, err := s.Repo.FindPrimaryByFingerprint(ctx, fp)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("duplicate lookup: %w", err)
	}
	return &DuplicateError{ExistingID: primary.ID}
}

func (s *documentService) rollback(ctx context.Context, doc *model.Document) {
	if err := s.Placer.Remove(context.WithoutCancel(ctx), archive.LocationOf(doc.StoredPath)); err != nil {
		s.Logger.Error("rollback of placed files failed", "id", doc.ID, "stored_path", doc.StoredPath, "error", err)
	}
}

func (s *documentService) logQuality(doc *model.Document, q Quality) {
	attrs := []any{"id", doc.ID, "filename", doc.OriginalFilename, "score", q.Score}
	switch {
	case q.Score < 50:
		s.Logger.Warn("low metadata quality", append(attrs, "warnings", q.Warnings)...)
	default:
		s.Logger.Info("document ingested", append(attrs, "kind", doc.Kind, "stored_path", doc.StoredPath)...)
	}
}

func failureReason(err error) string {
	var dup *DuplicateError
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrUnreadableContainer):
		return "unreadable_container"
	case errors.Is(err, ErrFileTooLarge):
		return "too_large"
	case errors.Is(err, ErrEmptyFile):
		return "empty"
	case errors.As(err, &dup):
		return "duplicate"
	}
	return "other"
}

func (s *documentService) Analyze(ctx context.Context, r io.Reader, filename, contentType string) (*Analysis, error) {
	ctx, span := s.start(ctx, "Analyze", attribute.String("document.filename", filename))
	defer span.End()

	a, err := s.analyze(ctx, r, filename, contentType)
	if err != nil {
		return nil, fail(span, err)
	}

	out := &Analysis{
		Filename:    filename,
		MimeType:    a.mime,
		Size:        int64(len(a.data)),
		Fingerprint: a.fingerprint,
		Metadata: Metadata{
			Number:    a.fields.Number,
			Subject:   a.fields.Subject,
			Date:      (&model.Document{LetterDate: a.fields.Date}).DateString(),
			Sender:    a.fields.Sender,
			Recipient: a.fields.Recipient,
		},
		Classification: a.cls,
		Directory:      archive.Dir(a.cls.Kind, a.fields.Date),
		Quality:        a.quality,
		Extraction:     a.extraction(),
		Warnings:       a.warnings(),
		TextPreview:    preview(a.res.Text, textPreviewChars),
	}

	primary, err := s.Repo.FindPrimaryByFingerprint(ctx, a.fingerprint)
	switch {
	case err == nil:
		out.DuplicateOf = &primary.ID
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fail(span, fmt.Errorf("duplicate lookup: %w", err))
	}
	return out, nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Get returns a document by ID.
func (s *documentService) Get(ctx context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	doc, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

// List returns paginated documents without exposing repository types.
func (s *documentService) List(ctx context.Context, p ListParams) (*DocumentListResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	res, err := s.Repo.List(ctx, repository.ListQuery{
		PageQuery: repository.PageQuery{Limit: p.Limit, Offset: p.Offset},
		Kind:      p.Kind,
		Year:      p.Year,
		Search:    p.Search,
	})
	if err != nil {
		return nil, err
	}
	return &DocumentListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *documentService) Update(ctx context.Context, id string, fields UpdateFields, confirmSensitive bool) (*model.Document, error) {
	ctx, span := s.start(ctx, "Update", attribute.String("document.id", id))
	defer span.End()

	if err := fields.Validate(); err != nil {
		return nil, err
	}
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, fail(span, err)
	}

	next := *doc
	applyText(&next.Number, fields.Number)
	applyText(&next.Subject, fields.Subject)
	applyText(&next.Sender, fields.Sender)
	applyText(&next.Recipient, fields.Recipient)

	sensitive := false
	if fields.Date != nil {
		date, _ := model.ParseDate(*fields.Date)
		if !sameDate(date, doc.LetterDate) {
			next.LetterDate = date
			sensitive = true
		}
	}
	if fields.Kind != nil && *fields.Kind != doc.Kind {
		next.Kind = *fields.Kind
		next.KindConfidence = 1
		next.KindMethod = classifier.MethodManual
		sensitive = true
	}
	if sensitive && !confirmSensitive {
		return nil, ErrSensitiveEditUnconfirmed
	}
	if !changed(doc, &next) {
		return doc, nil
	}
	next.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)

	ex := s.extras(ctx, doc)
	old, moved, err := s.Placer.Relocate(ctx, &next)
	if err != nil {
		return nil, fail(span, fmt.Errorf("relocate document: %w", err))
	}
	if err := s.Placer.WriteSidecar(ctx, &next, ex); err != nil {
		if moved {
			s.rollback(ctx, &next)
		}
		return nil, fail(span, err)
	}

	stored, err := s.Repo.Update(ctx, &next)
	if err != nil {
		if moved {
			s.rollback(ctx, &next)
		} else if rerr := s.Placer.WriteSidecar(context.WithoutCancel(ctx), doc, ex); rerr != nil {
			s.Logger.Error("failed to restore sidecar", "id", doc.ID, "error", rerr)
		}
		if errors.Is(err, repository.ErrNotFound) {
			err = ErrNotFound
		}
		return nil, fail(span, fmt.Errorf("db update failed: %w", err))
	}

	if moved {
		if err := s.Placer.Remove(ctx, old); err != nil {
			// the reconciler reports leftovers as only_on_disk
			s.Logger.Error("failed to remove previous location", "id", doc.ID, "stored_path", old.StoredPath, "error", err)
		}
	}
	s.Logger.Info("document updated", "id", stored.ID, "sensitive", sensitive, "moved", moved, "stored_path", stored.StoredPath)
	return stored, nil
}

// extras returns the ingest detail already kept in doc's sidecar so rewrites keep it.
func (s *documentService) extras(ctx context.Context, doc *model.Document) archive.Extras {
	sc, err := s.Placer.ReadSidecar(ctx, doc.SidecarPath)
	if err != nil {
		s.Logger.Warn("existing sidecar unreadable, rewriting without ingest detail", "id", doc.ID, "error", err)
		return archive.Extras{}
	}
	return sc.Extras
}

func applyText(dst **string, v *string) {
	if v == nil {
		return
	}
	if *v == "" {
		*dst = nil
		return
	}
	s := *v
	*dst = &s
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func changed(a, b *model.Document) bool {
	return len(reconcile.Diff(a, b)) > 0
}

// Delete removes the files first so a failure leaves the row in place, then the row.
// Duplicates promoted by the removal get their sidecars rewritten.
func (s *documentService) Delete(ctx context.Context, id string) error {
	ctx, span := s.start(ctx, "Delete", attribute.String("document.id", id))
	defer span.End()

	doc, err := s.Get(ctx, id)
	if err != nil {
		return fail(span, err)
	}
	if err := s.Placer.Remove(ctx, archive.LocationOf(doc.StoredPath)); err != nil {
		return fail(span, fmt.Errorf("delete storage: %w", err))
	}
	changedIDs, err := s.Repo.Delete(ctx, id)
	if err != nil {
		return fail(span, fmt.Errorf("delete index row: %w", err))
	}

	for _, cid := range changedIDs {
		row, err := s.Repo.FindByID(ctx, cid)
		if err != nil {
			s.Logger.Error("failed to load promoted duplicate", "id", cid, "error", err)
			continue
		}
		if err := s.Placer.WriteSidecar(ctx, row, s.extras(ctx, row)); err != nil {
			s.Logger.Error("failed to rewrite sidecar of promoted duplicate", "id", cid, "error", err)
		}
	}
	s.Logger.Info("document deleted", "id", id, "stored_path", doc.StoredPath, "promoted", len(changedIDs))
	return nil
}

func (s *documentService) Open(ctx context.Context, id string) (io.ReadCloser, *model.Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, _, err := s.Placer.Open(ctx, doc.StoredPath)
	if errors.Is(err, storage.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: file missing at %s", ErrNotFound, doc.StoredPath)
	}
	if err != nil {
		return nil, nil, err
	}
	return rc, doc, nil
}

func (s *documentService) Text(ctx context.Context, id string) (string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.Placer.Text(ctx, doc.StoredPath)
}

func (s *documentService) Reconcile(ctx context.Context, mode reconcile.Mode) (*reconcile.Report, error) {
	if s.Reconciler == nil {
		return nil, ErrReconcileUnavailable
	}
	ctx, span := s.start(ctx, "Reconcile", attribute.String("reconcile.mode", string(mode)))
	defer span.End()

	rep, err := s.Reconciler.Reconcile(ctx, mode)
	if err != nil {
		return nil, fail(span, err)
	}
	return rep, nil
}
