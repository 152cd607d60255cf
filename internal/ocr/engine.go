// Package ocr rasterizes PDF pages and recognizes their text with tesseract.
// A missing or broken engine never fails the caller: it yields empty text.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// PageBreak separates the text of consecutive pages.
const PageBreak = "\n\f\n"

type Config struct {
	Pdftoppm  string // rasterizer binary, default "pdftoppm"
	Tesseract string // engine binary, default "tesseract"
	Lang      string // tesseract language model, default "ind"
	DPI       int    // rasterization DPI, default 300
	MaxPages  int    // 0 = no limit
}

// Stats summarizes one OCR run.
type Stats struct {
	TotalPages   int     `json:"total_pages"`
	SuccessPages int     `json:"success_pages"`
	FailedPages  int     `json:"failed_pages"`
	TotalChars   int     `json:"total_chars"`
	DPI          int     `json:"dpi"`
	Language     string  `json:"language"`
	SuccessRate  float64 `json:"success_rate"`
}

type Result struct {
	Text     string
	Stats    Stats
	Warnings []string
	// Partial is set when the context expired before every page was recognized.
	Partial bool
}

// Engine runs pdftoppm and tesseract through a Runner.
type Engine struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewEngine(cfg Config, runner Runner, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "ind"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Engine{cfg: cfg, runner: runner, logger: logger}
}

// Text recognizes every page of pdf. On a missing engine or a failed render it returns an
// empty result with warnings. When ctx expires mid-document it returns the pages done so far.
func (e *Engine) Text(ctx context.Context, pdf []byte) Result {
	res := Result{Stats: Stats{DPI: e.cfg.DPI, Language: e.cfg.Lang}}

	tmpDir, err := os.MkdirTemp("", "arsip-ocr-*")
	if err != nil {
		return res.warn("create temp dir: %v", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("failed to remove ocr temp dir", "dir", tmpDir, "error", err)
		}
	}()

	in := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return res.warn("write temp pdf: %v", err)
	}

	prefix := filepath.Join(tmpDir, "page")
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, e.logger, "-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", in, prefix)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			e.logger.Warn("rasterizer unavailable, skipping ocr", "cmd", e.cfg.Pdftoppm)
			return res.warn("rasterizer unavailable: %s", e.cfg.Pdftoppm)
		}
		return res.warn("pdftoppm failed: %v %s", err, strings.TrimSpace(string(errb)))
	}

	pages, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(pages)
	if e.cfg.MaxPages > 0 && len(pages) > e.cfg.MaxPages {
		res.Warnings = append(res.Warnings, fmt.Sprintf("document has %d pages, recognizing first %d", len(pages), e.cfg.MaxPages))
		pages = pages[:e.cfg.MaxPages]
	}
	if len(pages) == 0 {
		return res.warn("pdftoppm produced no images")
	}
	res.Stats.TotalPages = len(pages)

	var b strings.Builder
	for i, img := range pages {
		if ctx.Err() != nil {
			res.Partial = true
			res.Stats.FailedPages += len(pages) - i
			res.Warnings = append(res.Warnings, fmt.Sprintf("ocr stopped after %d of %d pages: %v", i, len(pages), ctx.Err()))
			break
		}
		txt, err := e.page(ctx, img)
		if err != nil {
			res.Stats.FailedPages++
			res.Warnings = append(res.Warnings, fmt.Sprintf("page %d: %v", i+1, err))
			if errors.Is(err, exec.ErrNotFound) {
				res.Stats.FailedPages += len(pages) - i - 1
				e.logger.Warn("ocr engine unavailable", "cmd", e.cfg.Tesseract)
				break
			}
			continue
		}
		res.Stats.SuccessPages++
		if b.Len() > 0 {
			b.WriteString(PageBreak)
		}
		b.WriteString(txt)
	}

	res.Text = b.String()
	res.Stats.TotalChars = utf8.RuneCountInString(res.Text)
	res.Stats.SuccessRate = math.Round(float64(res.Stats.SuccessPages)/float64(res.Stats.TotalPages)*1000) / 10

	e.logger.Info("ocr finished",
		"pages", res.Stats.TotalPages,
		"success_pages", res.Stats.SuccessPages,
		"chars", res.Stats.TotalChars,
		"partial", res.Partial,
	)
	return res
}

// page recognizes one image, retrying once without a language model.
func (e *Engine) page(ctx context.Context, img string) (string, error) {
	out, _, err := e.runner.Run(ctx, e.cfg.Tesseract, e.logger, img, "stdout", "-l", e.cfg.Lang)
	if err == nil {
		return strings.TrimSpace(string(out)), nil
	}
	if errors.Is(err, exec.ErrNotFound) || ctx.Err() != nil {
		return "", err
	}
	e.logger.Debug("retrying page without language model", "image", filepath.Base(img), "lang", e.cfg.Lang)
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, e.logger, img, "stdout")
	if err != nil {
		return "", fmt.Errorf("tesseract: %w %s", err, strings.TrimSpace(string(errb)))
	}
	return strings.TrimSpace(string(out)), nil
}

func (r Result) warn(format string, args ...any) Result {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
	return r
}
