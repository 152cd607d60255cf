// Package extract turns PDF and DOCX bytes into plain text, falling back to OCR
// when a PDF has no usable text layer.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"arsip/internal/ocr"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var (
	ErrUnsupportedFormat   = errors.New("unsupported format: only PDF and DOCX are accepted")
	ErrUnreadableContainer = errors.New("unreadable document container")
)

// Method names how the text was obtained.
const (
	MethodDOCX    = "docx"
	MethodPDFText = "pdf-text"
	MethodPDFOCR  = "pdf-ocr"
	MethodNone    = "none"
)

// OCR is the fallback used for PDFs without a usable text layer.
type OCR interface {
	Text(ctx context.Context, pdf []byte) ocr.Result
}

type Config struct {
	Pdftotext      string        // default "pdftotext"
	MinUsableChars int           // below this many letters/digits a PDF goes to OCR, default 50
	OCRTimeout     time.Duration // 0 = bounded only by the caller's context
}

type Result struct {
	Text     string
	UsedOCR  bool
	Method   string
	Pages    int
	Partial  bool
	Warnings []string
	OCRStats *ocr.Stats
}

// Degraded reports an empty or partial extraction. It is an outcome, not an error.
func (r Result) Degraded() bool {
	return strings.TrimSpace(r.Text) == "" || r.Partial
}

type Extractor struct {
	cfg    Config
	runner ocr.Runner
	ocr    OCR
	logger *slog.Logger
}

// New builds an Extractor. A nil engine disables the OCR fallback.
func New(cfg Config, runner ocr.Runner, engine OCR, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ocr.NewExecRunner()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.MinUsableChars <= 0 {
		cfg.MinUsableChars = 50
	}
	return &Extractor{cfg: cfg, runner: runner, ocr: engine, logger: logger}
}

// Extract returns the text of data according to its declared MIME type.
// Only ErrUnsupportedFormat and ErrUnreadableContainer are returned as errors.
func (e *Extractor) Extract(ctx context.Context, data []byte, declaredMime string) (Result, error) {
	start := time.Now()
	var (
		res Result
		err error
	)
	switch BaseMIME(declaredMime) {
	case MimeDOCX:
		res, err = e.docx(data)
	case MimePDF:
		res = e.pdf(ctx, data)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, declaredMime)
	}
	if err != nil {
		return Result{}, err
	}

	e.logger.Info("text extracted",
		"method", res.Method,
		"used_ocr", res.UsedOCR,
		"chars", len(res.Text),
		"pages", res.Pages,
		"degraded", res.Degraded(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (e *Extractor) docx(data []byte) (Result, error) {
	txt, err := docxText(data)
	if err != nil {
		return Result{}, err
	}
	res := Result{Text: Normalize(txt), Method: MethodDOCX, Pages: 1}
	if res.Text == "" {
		res.Method = MethodNone
	}
	return res, nil
}

func (e *Extractor) pdf(ctx context.Context, data []byte) Result {
	res := Result{Method: MethodNone}

	text, warn := e.textLayer(ctx, data)
	if warn != "" {
		res.Warnings = append(res.Warnings, warn)
	}
	if res.Text = Normalize(text); res.Text != "" {
		res.Pages = 1 + strings.Count(text, "\f")
		res.Method = MethodPDFText
	}

	if usableChars(res.Text) >= e.cfg.MinUsableChars || e.ocr == nil {
		return res
	}

	e.logger.Info("text layer below threshold, running ocr",
		"usable_chars", usableChars(res.Text),
		"min_usable_chars", e.cfg.MinUsableChars,
	)
	ocrCtx := ctx
	if e.cfg.OCRTimeout > 0 {
		var cancel context.CancelFunc
		ocrCtx, cancel = context.WithTimeout(ctx, e.cfg.OCRTimeout)
		defer cancel()
	}
	o := e.ocr.Text(ocrCtx, data)
	res.Warnings = append(res.Warnings, o.Warnings...)
	stats := o.Stats
	res.OCRStats = &stats

	ocrText := Normalize(o.Text)
	if usableChars(ocrText) > usableChars(res.Text) {
		res.Text = ocrText
		res.UsedOCR = true
		res.Method = MethodPDFOCR
		res.Partial = o.Partial
		if o.Stats.TotalPages > 0 {
			res.Pages = o.Stats.TotalPages
		}
	}
	return res
}

// textLayer runs pdftotext on a temp copy of data. Failures become a warning.
func (e *Extractor) textLayer(ctx context.Context, data []byte) (string, string) {
	f, err := os.CreateTemp("", "arsip-*.pdf")
	if err != nil {
		return "", fmt.Sprintf("create temp pdf: %v", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Sprintf("write temp pdf: %v", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Sprintf("close temp pdf: %v", err)
	}

	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, e.logger, "-layout", "-enc", "UTF-8", "-eol", "unix", f.Name(), "-")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", "text layer extractor unavailable: " + e.cfg.Pdftotext
		}
		return "", fmt.Sprintf("pdftotext failed: %v %s", err, strings.TrimSpace(string(errb)))
	}
	return string(out), ""
}

// BaseMIME strips parameters and lowercases a MIME type.
func BaseMIME(s string) string {
	if mt, _, err := mime.ParseMediaType(s); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// DetectMIME returns the declared type, or one guessed from the filename when the
// declared type is empty or generic.
func DetectMIME(declared, filename string) string {
	mt := BaseMIME(declared)
	if mt != "" && mt != "application/octet-stream" {
		return mt
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return MimePDF
	case ".docx":
		return MimeDOCX
	}
	return mt
}

// Ext returns the canonical file extension for a supported MIME type.
func Ext(mimeType string) string {
	switch BaseMIME(mimeType) {
	case MimePDF:
		return ".pdf"
	case MimeDOCX:
		return ".docx"
	}
	return ""
}
