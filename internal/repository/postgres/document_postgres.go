package postgres

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

const placeholders = `$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19`

// maxPrimaryRetries bounds the insert loop when the primary of a fingerprint is deleted
// between the conflicting insert and its lookup.
const maxPrimaryRetries = 3

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*model.Document, error) {
	var (
		d                                             model.Document
		kind                                          string
		number, subject, sender, recipient, duplicate sql.NullString
		letterDate                                    sql.NullTime
	)
	if err := s.Scan(
		&d.ID, &number, &subject, &letterDate, &kind, &d.KindConfidence, &d.KindMethod, &sender, &recipient,
		&d.OriginalFilename, &d.StoredPath, &d.SidecarPath, &d.MimeType, &d.Size, &d.Fingerprint, &duplicate, &d.OCRUsed,
		&d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.Kind = model.Kind(kind)
	d.Number = fromNull(number)
	d.Subject = fromNull(subject)
	d.Sender = fromNull(sender)
	d.Recipient = fromNull(recipient)
	d.DuplicateOf = fromNull(duplicate)
	if letterDate.Valid {
		t := time.Date(letterDate.Time.Year(), letterDate.Time.Month(), letterDate.Time.Day(), 0, 0, 0, 0, time.UTC)
		d.LetterDate = &t
	}
	return &d, nil
}

func args(d *model.Document) []any {
	return []any{
		d.ID, toNull(d.Number), toNull(d.Subject), toNullTime(d.LetterDate), string(d.Kind), d.KindConfidence, d.KindMethod,
		toNull(d.Sender), toNull(d.Recipient), d.OriginalFilename, d.StoredPath, d.SidecarPath, d.MimeType, d.Size,
		d.Fingerprint, toNull(d.DuplicateOf), d.OCRUsed, d.CreatedAt, d.UpdatedAt,
	}
}

// Create inserts doc. Without DuplicateOf the insert yields to an existing primary through
// the partial unique index on fingerprint, and the row is then stored as its duplicate.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
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

func (r *DocumentPostgres) insert(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `INSERT INTO documents (` + columns + `) VALUES (` + placeholders + `) RETURNING ` + columns
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, args(doc)...))
	return d, conflict(err)
}

func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	const q = `SELECT ` + columns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return d, err
}

func (r *DocumentPostgres) FindPrimaryByFingerprint(ctx context.Context, fp string) (*model.Document, error) {
	const q = `SELECT ` + columns + ` FROM documents WHERE fingerprint = $1 AND duplicate_of IS NULL`
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, fp))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return d, err
}

// List returns documents using LIMIT/OFFSET pagination and a total count.
func (r *DocumentPostgres) List(ctx context.Context, lq repository.ListQuery) (*repository.PageResult[model.Document], error) {
	var (
		conds []string
		qargs []any
	)
	add := func(cond string, v any) {
		qargs = append(qargs, v)
		conds = append(conds, fmt.Sprintf(cond, len(qargs)))
	}
	if lq.Kind != "" {
		add("kind = $%d", string(lq.Kind))
	}
	if lq.Year > 0 {
		add("EXTRACT(YEAR FROM letter_date) = $%d", lq.Year)
	}
	if s := strings.TrimSpace(lq.Search); s != "" {
		qargs = append(qargs, "%"+s+"%")
		n := len(qargs)
		conds = append(conds, fmt.Sprintf("(number ILIKE $%d OR subject ILIKE $%d)", n, n))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`+where, qargs...).Scan(&total); err != nil {
		return nil, err
	}

	qList := fmt.Sprintf(`SELECT %s FROM documents%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		columns, where, len(qargs)+1, len(qargs)+2)
	rows, err := r.db.QueryContext(ctx, qList, append(qargs, lq.Limit, lq.Offset)...)
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

func (r *DocumentPostgres) All(ctx context.Context) ([]model.Document, error) {
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

func (r *DocumentPostgres) Update(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		UPDATE documents SET
			number = $2, subject = $3, letter_date = $4, kind = $5, kind_confidence = $6, kind_method = $7,
			sender = $8, recipient = $9, stored_path = $10, sidecar_path = $11, duplicate_of = $12, updated_at = $13
		WHERE id = $1
		RETURNING ` + columns
	d, err := scanDocument(r.db.QueryRowContext(ctx, q,
		doc.ID, toNull(doc.Number), toNull(doc.Subject), toNullTime(doc.LetterDate), string(doc.Kind),
		doc.KindConfidence, doc.KindMethod, toNull(doc.Sender), toNull(doc.Recipient),
		doc.StoredPath, doc.SidecarPath, toNull(doc.DuplicateOf), doc.UpdatedAt,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return d, conflict(err)
}

// Delete removes a row in a transaction, promoting the oldest duplicate of a deleted primary.
func (r *DocumentPostgres) Delete(ctx context.Context, id string) ([]string, error) {
	var changed []string
	err := r.execTx(ctx, func(tx *sql.Tx) error {
		var dup sql.NullString
		err := tx.QueryRowContext(ctx, `DELETE FROM documents WHERE id = $1 RETURNING duplicate_of`, id).Scan(&dup)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && dup.Valid) {
			return nil
		}
		if err != nil {
			return err
		}

		var heir string
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM documents WHERE duplicate_of = $1 ORDER BY created_at, id LIMIT 1`, id).Scan(&heir)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET duplicate_of = NULL, updated_at = $2 WHERE id = $1`, heir, now); err != nil {
			return fmt.Errorf("promote duplicate: %w", err)
		}
		changed = append(changed, heir)

		rows, err := tx.QueryContext(ctx,
			`UPDATE documents SET duplicate_of = $1, updated_at = $2 WHERE duplicate_of = $3 RETURNING id`, heir, now, id)
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

func (r *DocumentPostgres) execTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// no-op once committed
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

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
