package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arsip/internal/config"
	"arsip/internal/database"
	"arsip/internal/database/migration"
	"arsip/internal/model"
	"arsip/internal/repository"
)

const fp = "2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae"

func str(s string) *string { return &s }

func newRepo(t *testing.T) (*DocumentSQLite, *sql.DB) {
	t.Helper()
	db, err := database.NewSQLite(config.DatabaseConfig{SQLitePath: filepath.Join(t.TempDir(), "arsip.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migration.EnsureMigrated(context.Background(), db, database.DriverSQLite, nil, "test"))
	return NewDocumentSQLite(db), db
}

// testDoc builds a primary created n minutes after a fixed base time.
func testDoc(id, fingerprint string, n int) *model.Document {
	created := time.Date(2024, 3, 1, 8, n, 0, 123456000, time.UTC)
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &model.Document{
		ID:               id,
		Number:           str(fmt.Sprintf("%03d/SM/2024", n+1)),
		Subject:          str("Undangan Rapat"),
		LetterDate:       &date,
		Kind:             model.KindIncoming,
		KindConfidence:   0.9,
		KindMethod:       "filename",
		OriginalFilename: "SM-001-2024.docx",
		StoredPath:       "incoming/2024/01/" + id + ".docx",
		SidecarPath:      "incoming/2024/01/" + id + ".docx.meta.json",
		MimeType:         "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Size:             10,
		Fingerprint:      fingerprint,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
}

func TestDocumentSQLite_CreateAndFind(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	doc := testDoc("a", fp, 0)
	doc.OCRUsed = true
	doc.Sender = str("Camat Mampang Prapatan")

	got, err := repo.Create(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	found, err := repo.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, doc, found)

	primary, err := repo.FindPrimaryByFingerprint(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, "a", primary.ID)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.FindPrimaryByFingerprint(ctx, "ff")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDocumentSQLite_CreateDuplicate(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, testDoc("a", fp, 0))
	require.NoError(t, err)

	dup, err := repo.Create(ctx, testDoc("b", fp, 1))
	require.NoError(t, err)
	require.NotNil(t, dup.DuplicateOf)
	assert.Equal(t, "a", *dup.DuplicateOf)

	primary, err := repo.FindPrimaryByFingerprint(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, "a", primary.ID)
}

func TestDocumentSQLite_CreateConflict(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, testDoc("a", fp, 0))
	require.NoError(t, err)

	other := testDoc("a", "ff", 1)
	_, err = repo.Create(ctx, other)
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestDocumentSQLite_List(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	a := testDoc("a", "f1", 0)
	b := testDoc("b", "f2", 1)
	b.Kind = model.KindOutgoing
	b.Subject = str("Surat Keterangan Domisili")
	c := testDoc("c", "f3", 2)
	c.Kind = model.KindOther
	c.LetterDate = nil
	c.Number = nil
	for _, d := range []*model.Document{a, b, c} {
		_, err := repo.Create(ctx, d)
		require.NoError(t, err)
	}

	all, err := repo.List(ctx, repository.ListQuery{PageQuery: repository.PageQuery{Limit: 10}})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	require.Len(t, all.Items, 3)
	assert.Equal(t, "c", all.Items[0].ID)
	assert.Equal(t, "a", all.Items[2].ID)

	page, err := repo.List(ctx, repository.ListQuery{PageQuery: repository.PageQuery{Limit: 1, Offset: 1}})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "b", page.Items[0].ID)

	byKind, err := repo.List(ctx, repository.ListQuery{Kind: model.KindOutgoing})
	require.NoError(t, err)
	require.Len(t, byKind.Items, 1)
	assert.Equal(t, "b", byKind.Items[0].ID)

	byYear, err := repo.List(ctx, repository.ListQuery{Year: 2024})
	require.NoError(t, err)
	assert.Equal(t, 2, byYear.Total)

	search, err := repo.List(ctx, repository.ListQuery{Search: "domisili"})
	require.NoError(t, err)
	require.Len(t, search.Items, 1)
	assert.Equal(t, "b", search.Items[0].ID)

	none, err := repo.List(ctx, repository.ListQuery{Year: 1999})
	require.NoError(t, err)
	assert.Zero(t, none.Total)
	assert.Empty(t, none.Items)
}

func TestDocumentSQLite_Update(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	doc := testDoc("a", fp, 0)
	_, err := repo.Create(ctx, doc)
	require.NoError(t, err)

	date := time.Date(2023, 12, 5, 0, 0, 0, 0, time.UTC)
	doc.LetterDate = &date
	doc.Kind = model.KindOutgoing
	doc.KindMethod = "manual"
	doc.KindConfidence = 1
	doc.StoredPath = "outgoing/2023/12/a.docx"
	doc.SidecarPath = "outgoing/2023/12/a.docx.meta.json"
	doc.UpdatedAt = doc.UpdatedAt.Add(time.Hour)

	got, err := repo.Update(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	missing := testDoc("zz", "ff", 0)
	_, err = repo.Update(ctx, missing)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDocumentSQLite_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("promotes oldest duplicate", func(t *testing.T) {
		repo, _ := newRepo(t)
		_, err := repo.Create(ctx, testDoc("a", fp, 0))
		require.NoError(t, err)
		_, err = repo.Create(ctx, testDoc("c", fp, 2))
		require.NoError(t, err)
		_, err = repo.Create(ctx, testDoc("b", fp, 1))
		require.NoError(t, err)

		changed, err := repo.Delete(ctx, "a")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"b", "c"}, changed)

		b, err := repo.FindByID(ctx, "b")
		require.NoError(t, err)
		assert.Nil(t, b.DuplicateOf)

		c, err := repo.FindByID(ctx, "c")
		require.NoError(t, err)
		require.NotNil(t, c.DuplicateOf)
		assert.Equal(t, "b", *c.DuplicateOf)

		_, err = repo.FindByID(ctx, "a")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("duplicate leaves primary alone", func(t *testing.T) {
		repo, _ := newRepo(t)
		_, err := repo.Create(ctx, testDoc("a", fp, 0))
		require.NoError(t, err)
		_, err = repo.Create(ctx, testDoc("b", fp, 1))
		require.NoError(t, err)

		changed, err := repo.Delete(ctx, "b")
		require.NoError(t, err)
		assert.Empty(t, changed)

		all, err := repo.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "a", all[0].ID)
	})

	t.Run("missing row", func(t *testing.T) {
		repo, _ := newRepo(t)
		changed, err := repo.Delete(ctx, "nope")
		assert.NoError(t, err)
		assert.Empty(t, changed)
	})
}
