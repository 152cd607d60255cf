package archive

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"arsip/internal/extract/extracttest"
	"arsip/internal/storage"
	storageMocks "arsip/internal/storage/mocks"
)

func TestPlacer_Place_SidecarFailureRollsBack(t *testing.T) {
	data := extracttest.DOCX("Nomor: 001/SM/2024")
	doc := newDoc(data)
	const key = "incoming/2024/01/001-sm-2024.docx"

	store := new(storageMocks.MockStorage)
	store.On("Put", mock.Anything, key, mock.Anything, mock.MatchedBy(func(o storage.PutObjectOptions) bool { return o.NoOverwrite })).
		Return(storage.ObjectInfo{Key: key}, nil).Once()
	store.On("Exists", mock.Anything, key+SidecarSuffix).Return(false, nil).Once()
	store.On("Put", mock.Anything, key+TextSuffix, mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{}, nil).Once()
	store.On("Put", mock.Anything, key+SidecarSuffix, mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{}, errors.New("disk full")).Once()
	for _, k := range []string{key + SidecarSuffix, key + TextSuffix, key} {
		store.On("Delete", mock.Anything, k).Return(nil).Once()
	}

	err := NewPlacer(store, nil).Place(context.Background(), doc, data, "Nomor: 001/SM/2024", Extras{})

	assert.ErrorContains(t, err, "store sidecar: disk full")
	store.AssertExpectations(t)
}

func TestPlacer_Place_SidecarCheckFailure(t *testing.T) {
	data := extracttest.DOCX("Nomor: 001/SM/2024")
	doc := newDoc(data)
	const key = "incoming/2024/01/001-sm-2024.docx"

	store := new(storageMocks.MockStorage)
	store.On("Put", mock.Anything, key, mock.Anything, mock.Anything).Return(storage.ObjectInfo{Key: key}, nil).Once()
	store.On("Exists", mock.Anything, key+SidecarSuffix).Return(false, errors.New("timeout")).Once()
	store.On("Delete", mock.Anything, key).Return(nil).Once()

	err := NewPlacer(store, nil).Place(context.Background(), doc, data, "", Extras{})

	assert.ErrorContains(t, err, "check sidecar: timeout")
	assert.Empty(t, doc.StoredPath)
	store.AssertExpectations(t)
}

func TestPlacer_Remove_JoinsErrors(t *testing.T) {
	store := new(storageMocks.MockStorage)
	loc := LocationOf("other/scan.pdf")
	store.On("Delete", mock.Anything, loc.SidecarPath).Return(errors.New("denied")).Once()
	store.On("Delete", mock.Anything, loc.TextPath).Return(nil).Once()
	store.On("Delete", mock.Anything, loc.StoredPath).Return(errors.New("denied")).Once()

	err := NewPlacer(store, nil).Remove(context.Background(), loc)

	assert.ErrorContains(t, err, "delete other/scan.pdf.meta.json: denied")
	assert.ErrorContains(t, err, "delete other/scan.pdf: denied")
	store.AssertExpectations(t)
}
