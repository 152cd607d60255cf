package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"arsip/internal/model"
	"arsip/internal/storage"
)

const (
	maxNameAttempts = 1000
	maxSidecarBytes = 1 << 20
)

// Placer files documents into a storage backend.
type Placer struct {
	store  storage.Storage
	logger *slog.Logger
}

func NewPlacer(store storage.Storage, logger *slog.Logger) *Placer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Placer{store: store, logger: logger}
}

// Place writes data under the directory derived from doc's kind and date, using the first
// free stored name, then the extracted text, then the sidecar. It sets doc.StoredPath and
// doc.SidecarPath. A failed step removes what was already written.
func (p *Placer) Place(ctx context.Context, doc *model.Document, data []byte, text string, ex Extras) error {
	loc, err := p.claim(ctx, Dir(doc.Kind, doc.LetterDate), baseName(doc), extension(doc), data, doc.MimeType)
	if err != nil {
		return err
	}
	doc.StoredPath, doc.SidecarPath = loc.StoredPath, loc.SidecarPath

	if err := p.writeText(ctx, loc, text); err != nil {
		p.rollback(ctx, loc)
		return err
	}
	if err := p.WriteSidecar(ctx, doc, ex); err != nil {
		p.rollback(ctx, loc)
		return err
	}
	p.logger.Info("document placed", "id", doc.ID, "stored_path", loc.StoredPath)
	return nil
}

// claim stores data under dir with the first name that neither the bytes nor a leftover
// sidecar already use.
func (p *Placer) claim(ctx context.Context, dir, base, ext string, data []byte, contentType string) (Location, error) {
	for n := 1; n <= maxNameAttempts; n++ {
		loc := LocationOf(path.Join(dir, candidate(base, ext, n)))
		_, err := p.store.Put(ctx, loc.StoredPath, bytes.NewReader(data), storage.PutObjectOptions{
			Size:        int64(len(data)),
			ContentType: contentType,
			NoOverwrite: true,
		})
		if errors.Is(err, storage.ErrExists) {
			continue
		}
		if err != nil {
			return Location{}, fmt.Errorf("store document: %w", err)
		}
		taken, err := p.store.Exists(ctx, loc.SidecarPath)
		if err != nil || taken {
			_ = p.store.Delete(ctx, loc.StoredPath)
			if err != nil {
				return Location{}, fmt.Errorf("check sidecar: %w", err)
			}
			continue
		}
		return loc, nil
	}
	return Location{}, fmt.Errorf("no free name for %s%s in %s", base, ext, dir)
}

func (p *Placer) writeText(ctx context.Context, loc Location, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	_, err := p.store.Put(ctx, loc.TextPath, strings.NewReader(text), storage.PutObjectOptions{
		Size:        int64(len(text)),
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return fmt.Errorf("store text: %w", err)
	}
	return nil
}

// WriteSidecar (re)writes the sidecar of doc at doc.SidecarPath.
func (p *Placer) WriteSidecar(ctx context.Context, doc *model.Document, ex Extras) error {
	b, err := EncodeSidecar(NewSidecar(doc, ex))
	if err != nil {
		return err
	}
	_, err = p.store.Put(ctx, doc.SidecarPath, bytes.NewReader(b), storage.PutObjectOptions{
		Size:        int64(len(b)),
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("store sidecar: %w", err)
	}
	return nil
}

// ReadSidecar loads and validates the sidecar at key.
func (p *Placer) ReadSidecar(ctx context.Context, key string) (*Sidecar, error) {
	rc, _, err := p.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, maxSidecarBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read sidecar: %w", err)
	}
	if len(b) > maxSidecarBytes {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrInvalidSidecar, maxSidecarBytes)
	}
	return DecodeSidecar(b)
}

// Relocate copies the bytes and text of doc into the directory its current kind and date
// derive, updating doc's paths. It returns the previous location, which the caller removes
// once the index agrees. moved is false when doc is already in place.
func (p *Placer) Relocate(ctx context.Context, doc *model.Document) (old Location, moved bool, err error) {
	if InPlace(doc) {
		return Location{}, false, nil
	}
	old = LocationOf(doc.StoredPath)

	data, err := p.read(ctx, old.StoredPath)
	if err != nil {
		return Location{}, false, fmt.Errorf("read document: %w", err)
	}
	loc, err := p.claim(ctx, Dir(doc.Kind, doc.LetterDate), baseName(doc), extension(doc), data, doc.MimeType)
	if err != nil {
		return Location{}, false, err
	}

	text, err := p.read(ctx, old.TextPath)
	switch {
	case errors.Is(err, storage.ErrNotExist):
	case err != nil:
		p.rollback(ctx, loc)
		return Location{}, false, fmt.Errorf("read text: %w", err)
	default:
		if err := p.writeText(ctx, loc, string(text)); err != nil {
			p.rollback(ctx, loc)
			return Location{}, false, err
		}
	}

	doc.StoredPath, doc.SidecarPath = loc.StoredPath, loc.SidecarPath
	p.logger.Info("document relocated", "id", doc.ID, "from", old.StoredPath, "to", loc.StoredPath)
	return old, true, nil
}

// Remove deletes the bytes, text and sidecar at loc. Missing keys are ignored.
func (p *Placer) Remove(ctx context.Context, loc Location) error {
	var errs []error
	for _, key := range []string{loc.SidecarPath, loc.TextPath, loc.StoredPath} {
		if key == "" {
			continue
		}
		if err := p.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Open streams the bytes stored at storedPath.
func (p *Placer) Open(ctx context.Context, storedPath string) (io.ReadCloser, storage.ObjectInfo, error) {
	return p.store.Get(ctx, storedPath)
}

// Text returns the extracted text kept beside the document, or "" when none was saved.
func (p *Placer) Text(ctx context.Context, storedPath string) (string, error) {
	b, err := p.read(ctx, LocationOf(storedPath).TextPath)
	if errors.Is(err, storage.ErrNotExist) {
		return "", nil
	}
	return string(b), err
}

// SidecarEntry is one sidecar found by WalkSidecars. Err is set when it could not be
// read or failed validation.
type SidecarEntry struct {
	Key     string
	Sidecar *Sidecar
	Err     error
}

// WalkSidecars reads every sidecar under the archive root. Unreadable ones are returned
// with Err set rather than aborting the walk.
func (p *Placer) WalkSidecars(ctx context.Context) ([]SidecarEntry, error) {
	objs, err := p.store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []SidecarEntry
	for _, o := range objs {
		if !strings.HasSuffix(o.Key, SidecarSuffix) {
			continue
		}
		sc, err := p.ReadSidecar(ctx, o.Key)
		if errors.Is(err, storage.ErrNotExist) {
			// removed since List
			continue
		}
		out = append(out, SidecarEntry{Key: o.Key, Sidecar: sc, Err: err})
	}
	return out, nil
}

func (p *Placer) read(ctx context.Context, key string) ([]byte, error) {
	rc, _, err := p.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (p *Placer) rollback(ctx context.Context, loc Location) {
	// the caller's ctx may already be done; cleanup still has to run
	ctx = context.WithoutCancel(ctx)
	if err := p.Remove(ctx, loc); err != nil {
		p.logger.Error("rollback of placed files failed", "stored_path", loc.StoredPath, "error", err)
	}
}
