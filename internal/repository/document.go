package repository

import (
	"context"
	"errors"

	"arsip/internal/model"
)

var (
	ErrNotFound = errors.New("document not found")
	// ErrConflict reports a write that collides with an existing id or stored path.
	ErrConflict = errors.New("document conflicts with an existing row")
)

// DocumentRepository defines data access for the document index using SQL queries only.
// No business logic here: strictly persistence operations.
type DocumentRepository interface {
	// Create inserts doc. A row without DuplicateOf races for primary status on its
	// fingerprint: the first writer wins and later writers are stored with DuplicateOf
	// pointing at the primary. The stored row is returned.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns ErrNotFound when no row has id.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// FindPrimaryByFingerprint returns the primary row for fp, or ErrNotFound.
	FindPrimaryByFingerprint(ctx context.Context, fp string) (*model.Document, error)

	// List returns a filtered page of documents, newest first, and the total match count.
	List(ctx context.Context, q ListQuery) (*PageResult[model.Document], error)

	// All returns every row. Used by the reconciler.
	All(ctx context.Context) ([]model.Document, error)

	// Update overwrites the mutable columns of doc and returns the stored row.
	Update(ctx context.Context, doc *model.Document) (*model.Document, error)

	// Delete removes the row. When it was a primary with duplicates, the oldest duplicate
	// is promoted and the others re-pointed; the ids whose duplicate_of changed are returned.
	// Deleting a missing row is not an error.
	Delete(ctx context.Context, id string) ([]string, error)
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// ListQuery narrows List. Zero values do not filter.
type ListQuery struct {
	PageQuery
	Kind   model.Kind
	Year   int
	Search string // case-insensitive match on number or subject
}

// PageResult is a generic pagination result wrapper.
type PageResult[T any] struct {
	Items []T
	Total int
}
