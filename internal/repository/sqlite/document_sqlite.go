// Package sqlite stores the document index in an embedded SQLite file.
// Dates and timestamps are kept as fixed-width UTC text so they sort lexically.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"arsip/internal/database"
	"arsip/internal/model"
	"arsip/internal/repository"
)

const columns = `id, number, subject, letter_date, kind, kind_confidence, kind_method, sender, recipient,
	original_filename, stored_path, sidecar_path, mime_type, size, fingerprint, duplicate_of, ocr_used,
	created_at, updated_at`

const placeholders = `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`

const (
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02T15:04:05.000000Z"
)

const maxPrimaryRetries = 3

// DocumentSQLite is a SQLite implementation of repository.DocumentRepository.
type DocumentSQLite struct {
	db *sql.DB
}

func NewDocumentSQLite(db *sql.DB) *DocumentSQLite {
	return &DocumentSQLite{db: db}
}

var _ repository.DocumentRepository = (*DocumentSQLite)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*model.Document, error) {
	var (
		d                                                         model.Document
		kind, created, updated                                    string
		number, subject, sender, recipient, duplicate, letterDate sql.NullString
	)
	if err := s.Scan(
		&d.ID, &number, &subject, &letterDate, &kind, &d.KindConfidence, &d.KindMethod, &sender, &recipient,
		&d.OriginalFilename, &d.StoredPath, &d.SidecarPath, &d.MimeType, &d.Size, &d.Fingerprint, &duplicate, &d.OCRUsed,
		&created, &updated,
	); err != nil {
		return nil, err
	}
	d.Kind = model.Kind(kind)
	d.Number = fromNull(number)
	d.Subject = fromNull(subject)
	d.Sender = fromNull(sender)
	d.Recipient = fromNull(recipient)
	d.DuplicateOf = fromNull(duplicate)

	var err error
	if letterDate.Valid {
		t, perr := time.Parse(dateLayout, letterDate.String)
		if perr != nil {
			return nil, fmt.Errorf("parse letter_date of %s: %w", d.ID, perr)
		}
		d.LetterDate = &t
	}
	if d.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", d.ID, err)
	}
	if d.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at of %s: %w", d.ID, err)
	}
	return &d, nil
}

func args(d *model.Document) []any {
	return []any{
		d.ID, toNull(d.Number), toNull(d.Subject), dateText(d.LetterDate), string(d.Kind), d.KindConfidence, d.KindMethod,
		toNull(d.Sender), toNull(d.Recipient), d.OriginalFilename, d.StoredPath, d.SidecarPath, d.MimeType, d.Size,
		d.Fingerprint, toNull(d.DuplicateOf), d.OCRUsed, timeText(d.CreatedAt), timeText(d.UpdatedAt),
	}
}

// Create follows the same first-writer-wins rule as the PostgreSQL repository.
func (r *DocumentSQLite) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	if doc.DuplicateOf != nil {
		return r.insert(ctx, doc)
	}

	const q = `
		INSERT INTO documents (` + columns + `)
		VALUES (` + placeholders + `)
		ON CONFLICT (fingerprint) WHERE duplicate_of IS NULL DO NOTHING
		RETURNING ` + columns

	for attempt := 0; attempt < maxPrimaryRetries; attempt++ {
		out, err := scanDocument(r.db.QueryRowContext(ctx, q, args(doc)...))
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, conflict(err)
		}

		primary, err := r.FindPrimaryByFingerprint(ctx, doc.Fingerprint)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("find primary: %w", err)
		}
		dup := *doc
		dup.DuplicateOf = &primary.ID
		return r.insert(ctx, &dup)
	}
	return nil, fmt.Errorf("insert document %s: primary for fingerprint kept changing", doc.ID)
}

func (r *DocumentSQLite) insert(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `INSERT INTO documents (` + columns + `) VALUES (` + placeholders + `) RETURNING ` + columns
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, args(doc)...))
	return d, conflict(err)
}

func (r *DocumentSQLite) FindByID(ctx context.Context, id string) (*model.Document, error) {
	d, err := scanDocument(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return d, err
}

func (r *DocumentSQLite) FindPrimaryByFingerprint(ctx context.Context, fp string) (*model.Document, error) {
	d, err := scanDocument(r.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM documents WHERE fingerprint = ? AND duplicate_of IS NULL`, fp))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return d, err
}

func (r *DocumentSQLite) List(ctx context.Context, lq repository.ListQuery) (*repository.PageResult[model.Document], error) {
	var (
		conds []string
		qargs []any
	)
	if lq.Kind != "" {
		conds = append(conds, "kind = ?")
		qargs = append(qargs, string(lq.Kind))
	}
	if lq.Year > 0 {
		conds = append(conds, "substr(letter_date, 1, 4) = ?")
		qargs = append(qargs, fmt.Sprintf("%04d", lq.Year))
	}
	if s := strings.TrimSpace(lq.Search); s != "" {
		// LIKE is case-insensitive for ASCII in SQLite
		like := "%" + s + "%"
		conds = append(conds, "(number LIKE ? OR subject LIKE ?)")
		qargs = append(qargs, like, like)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`+where, qargs...).Scan(&total); err != nil {
		return nil, err
	}

	limit := lq.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+columns+` FROM documents`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(qargs, limit, lq.Offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &repository.PageResult[model.Document]{Items: items, Total: total}, nil
}

func (r *DocumentSQLite) All(ctx context.Context) ([]model.Document, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM documents ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *DocumentSQLite) Update(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		UPDATE documents SET
			number = ?, subject = ?, letter_date = ?, kind = ?, kind_confidence = ?, kind_method = ?,
			sender = ?, recipient = ?, stored_path = ?, sidecar_path = ?, duplicate_of = ?, updated_at = ?
		WHERE id = ?
		RETURNING ` + columns
	d, err := scanDocument(r.db.QueryRowContext(ctx, q,
		toNull(doc.Number), toNull(doc.Subject), dateText(doc.LetterDate), string(doc.Kind),
		doc.KindConfidence, doc.KindMethod, toNull(doc.Sender), toNull(doc.Recipient),
		doc.StoredPath, doc.SidecarPath, toNull(doc.DuplicateOf), timeText(doc.UpdatedAt), doc.ID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return d, conflict(err)
}

// Delete removes a row in a transaction, promoting the oldest duplicate of a deleted primary.
func (r *DocumentSQLite) Delete(ctx context.Context, id string) ([]string, error) {
	var changed []string
	err := r.execTx(ctx, func(tx *sql.Tx) error {
		var dup sql.NullString
		err := tx.QueryRowContext(ctx, `DELETE FROM documents WHERE id = ? RETURNING duplicate_of`, id).Scan(&dup)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && dup.Valid) {
			return nil
		}
		if err != nil {
			return err
		}

		var heir string
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM documents WHERE duplicate_of = ? ORDER BY created_at, id LIMIT 1`, id).Scan(&heir)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		now := timeText(time.Now())
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET duplicate_of = NULL, updated_at = ? WHERE id = ?`, now, heir); err != nil {
			return fmt.Errorf("promote duplicate: %w", err)
		}
		changed = append(changed, heir)

		rows, err := tx.QueryContext(ctx,
			`UPDATE documents SET duplicate_of = ?, updated_at = ? WHERE duplicate_of = ? RETURNING id`, heir, now, id)
		if err != nil {
			return fmt.Errorf("re-point duplicates: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var rid string
			if err := rows.Scan(&rid); err != nil {
				return err
			}
			changed = append(changed, rid)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

func (r *DocumentSQLite) execTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func conflict(err error) error {
	if err != nil && database.IsDuplicateError(err) {
		return fmt.Errorf("%w: %v", repository.ErrConflict, err)
	}
	return err
}

func toNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNull(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func dateText(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func timeText(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
