// Package archive decides where a letter is filed and keeps the sidecar snapshot that
// travels with it.
package archive

import (
	"fmt"
	"path"
	"strings"
	"time"

	"arsip/internal/extract"
	"arsip/internal/model"
)

const (
	UndatedDir    = "undated"
	SidecarSuffix = ".meta.json"
	TextSuffix    = ".txt"

	defaultBase = "dokumen"
	maxSlugLen  = 80
)

// Dir derives the archive directory for a kind and letter date. It is pure:
// "incoming/2024/01", "outgoing/undated", "other".
func Dir(kind model.Kind, date *time.Time) string {
	if !kind.Dated() {
		return string(model.KindOther)
	}
	if date == nil {
		return path.Join(string(kind), UndatedDir)
	}
	return path.Join(string(kind), fmt.Sprintf("%04d", date.Year()), fmt.Sprintf("%02d", int(date.Month())))
}

// InPlace reports whether doc sits in the directory its kind and date derive.
func InPlace(doc *model.Document) bool {
	return path.Dir(doc.StoredPath) == Dir(doc.Kind, doc.LetterDate)
}

// Location is the set of keys one archived document occupies.
type Location struct {
	StoredPath  string
	SidecarPath string
	TextPath    string
}

func LocationOf(storedPath string) Location {
	return Location{
		StoredPath:  storedPath,
		SidecarPath: storedPath + SidecarSuffix,
		TextPath:    storedPath + TextSuffix,
	}
}

// StoredPathOf maps a sidecar key back to the key of the bytes it describes.
func StoredPathOf(sidecarKey string) (string, bool) {
	if !strings.HasSuffix(sidecarKey, SidecarSuffix) {
		return "", false
	}
	return strings.TrimSuffix(sidecarKey, SidecarSuffix), true
}

// Slug lowercases s and joins its alphanumeric runs with dashes.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > maxSlugLen {
		out = strings.TrimRight(out[:maxSlugLen], "-")
	}
	return out
}

// baseName is the stored name without extension: the slug of the letter number, else of
// the original file stem.
func baseName(doc *model.Document) string {
	if doc.Number != nil {
		if s := Slug(*doc.Number); s != "" {
			return s
		}
	}
	stem := strings.TrimSuffix(path.Base(strings.ReplaceAll(doc.OriginalFilename, `\`, "/")), path.Ext(doc.OriginalFilename))
	if s := Slug(stem); s != "" {
		return s
	}
	return defaultBase
}

func extension(doc *model.Document) string {
	if ext := extract.Ext(doc.MimeType); ext != "" {
		return ext
	}
	return strings.ToLower(path.Ext(doc.OriginalFilename))
}

// candidate returns the n-th stored name to try: "base.ext", "base-2.ext", ...
func candidate(base, ext string, n int) string {
	if n <= 1 {
		return base + ext
	}
	return fmt.Sprintf("%s-%d%s", base, n, ext)
}
