package ocr

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

var lookPath = exec.LookPath

// Health describes whether OCR can run on this host.
type Health struct {
	Available           bool     `json:"available"`
	RasterizerAvailable bool     `json:"rasterizer_available"`
	EnginePath          string   `json:"engine_path"`
	Version             string   `json:"version,omitempty"`
	Language            string   `json:"language"`
	LanguageInstalled   bool     `json:"language_installed"`
	Languages           []string `json:"languages,omitempty"`
	Error               string   `json:"error,omitempty"`
}

// Probe checks the engine and rasterizer binaries without touching any document.
func (e *Engine) Probe(ctx context.Context) Health {
	h := Health{EnginePath: e.cfg.Tesseract, Language: e.cfg.Lang}
	if p, err := lookPath(e.cfg.Tesseract); err == nil {
		h.EnginePath = p
	}

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, e.logger, "--version")
	if err != nil {
		h.Error = err.Error()
		return h
	}
	// older releases print the banner on stderr
	h.Version = parseVersion(string(out) + string(errb))
	h.Available = true

	if out, _, err := e.runner.Run(ctx, e.cfg.Tesseract, e.logger, "--list-langs"); err == nil {
		h.Languages = parseLanguages(string(out))
		for _, l := range h.Languages {
			if l == e.cfg.Lang {
				h.LanguageInstalled = true
			}
		}
	}

	// pdftoppm -v exits non-zero on some poppler builds; running at all is enough.
	_, _, err = e.runner.Run(ctx, e.cfg.Pdftoppm, e.logger, "-v")
	var exitErr *exec.ExitError
	h.RasterizerAvailable = err == nil || errors.As(err, &exitErr)
	return h
}

func parseVersion(banner string) string {
	for _, line := range strings.Split(banner, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(line), "tesseract") {
			return strings.TrimSpace(line[len("tesseract"):])
		}
	}
	return ""
}

func parseLanguages(out string) []string {
	var langs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of available languages") {
			continue
		}
		langs = append(langs, line)
	}
	return langs
}
