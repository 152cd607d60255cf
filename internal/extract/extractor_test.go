package extract

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"arsip/internal/extract/extracttest"
	"arsip/internal/ocr"
	"arsip/internal/ocr/mocks"
)

type ocrFunc func(ctx context.Context, pdf []byte) ocr.Result

func (f ocrFunc) Text(ctx context.Context, pdf []byte) ocr.Result { return f(ctx, pdf) }

var richTextLayer = "PEMERINTAH PROVINSI DAERAH KHUSUS IBUKOTA JAKARTA\nNomor : 12/SK/KEL/2024\nPerihal : Undangan Rapat Koordinasi\n"

func TestExtract_DOCX(t *testing.T) {
	data := extracttest.DOCXWithHeader(
		[]string{"KELURAHAN PELA MAMPANG"},
		"Nomor: 001/SM/2024",
		"Perihal: Undangan Rapat",
	)

	res, err := New(Config{}, new(mocks.MockRunner), nil, nil).Extract(context.Background(), data, MimeDOCX)

	require.NoError(t, err)
	assert.Equal(t, "KELURAHAN PELA MAMPANG\nNomor: 001/SM/2024\nPerihal: Undangan Rapat", res.Text)
	assert.Equal(t, MethodDOCX, res.Method)
	assert.False(t, res.UsedOCR)
	assert.False(t, res.Degraded())
}

func TestExtract_DOCXEmptyIsNotAnError(t *testing.T) {
	res, err := New(Config{}, nil, nil, nil).Extract(context.Background(), extracttest.DOCX(), MimeDOCX)

	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Equal(t, MethodNone, res.Method)
	assert.True(t, res.Degraded())
}

func TestExtract_Errors(t *testing.T) {
	ex := New(Config{}, nil, nil, nil)

	tests := []struct {
		name    string
		data    []byte
		mime    string
		wantErr error
	}{
		{name: "plain text", data: []byte("hello"), mime: "text/plain", wantErr: ErrUnsupportedFormat},
		{name: "empty mime", data: []byte("hello"), mime: "", wantErr: ErrUnsupportedFormat},
		{name: "corrupt docx", data: []byte("not a zip"), mime: MimeDOCX, wantErr: ErrUnreadableContainer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ex.Extract(context.Background(), tt.data, tt.mime)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestExtract_PDFTextLayer(t *testing.T) {
	ctx := context.Background()
	runner := new(mocks.MockRunner)
	runner.On("Run", ctx, "pdftotext", mock.Anything).Return([]byte(richTextLayer+"\f"+"Hormat kami,\n"), nil, nil)

	called := false
	engine := ocrFunc(func(context.Context, []byte) ocr.Result {
		called = true
		return ocr.Result{}
	})

	res, err := New(Config{}, runner, engine, nil).Extract(ctx, []byte("%PDF-1.7"), "application/pdf; charset=binary")

	require.NoError(t, err)
	assert.False(t, called)
	assert.False(t, res.UsedOCR)
	assert.Equal(t, MethodPDFText, res.Method)
	assert.Equal(t, 2, res.Pages)
	assert.Contains(t, res.Text, "Nomor : 12/SK/KEL/2024")
	runner.AssertExpectations(t)
}

func TestExtract_PDFFallsBackToOCR(t *testing.T) {
	ctx := context.Background()
	runner := new(mocks.MockRunner)
	runner.On("Run", ctx, "pdftotext", mock.Anything).Return([]byte("  \f  "), nil, nil)

	engine := ocrFunc(func(context.Context, []byte) ocr.Result {
		return ocr.Result{
			Text:  richTextLayer,
			Stats: ocr.Stats{TotalPages: 1, SuccessPages: 1, SuccessRate: 100},
		}
	})

	res, err := New(Config{}, runner, engine, nil).Extract(ctx, []byte("%PDF"), MimePDF)

	require.NoError(t, err)
	assert.True(t, res.UsedOCR)
	assert.Equal(t, MethodPDFOCR, res.Method)
	require.NotNil(t, res.OCRStats)
	assert.Equal(t, 1, res.OCRStats.SuccessPages)
	assert.Contains(t, res.Text, "Undangan Rapat Koordinasi")
}

func TestExtract_PDFNoTextNoOCR(t *testing.T) {
	ctx := context.Background()
	runner := new(mocks.MockRunner)
	runner.On("Run", ctx, "pdftotext", mock.Anything).
		Return(nil, nil, &exec.Error{Name: "pdftotext", Err: exec.ErrNotFound})

	engine := ocrFunc(func(context.Context, []byte) ocr.Result {
		return ocr.Result{Warnings: []string{"rasterizer unavailable: pdftoppm"}}
	})

	res, err := New(Config{}, runner, engine, nil).Extract(ctx, []byte("%PDF"), MimePDF)

	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.False(t, res.UsedOCR)
	assert.True(t, res.Degraded())
	assert.Len(t, res.Warnings, 2)
}

func TestExtract_PDFOCRTimeoutKeepsPartialText(t *testing.T) {
	ctx := context.Background()
	runner := new(mocks.MockRunner)
	runner.On("Run", ctx, "pdftotext", mock.Anything).Return(nil, []byte("Syntax Error"), errors.New("exit status 1"))

	engine := ocrFunc(func(ctx context.Context, _ []byte) ocr.Result {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return ocr.Result{Text: "Perihal : Pemberitahuan", Partial: true, Stats: ocr.Stats{TotalPages: 3, SuccessPages: 1}}
	})

	res, err := New(Config{OCRTimeout: 1e9}, runner, engine, nil).Extract(ctx, []byte("%PDF"), MimePDF)

	require.NoError(t, err)
	assert.True(t, res.UsedOCR)
	assert.True(t, res.Partial)
	assert.True(t, res.Degraded())
	assert.Equal(t, 3, res.Pages)
}

func TestNormalize(t *testing.T) {
	in := "Nomor\t:  001/SM/2024 \r\n\r\n\r\n\r\n-----\nPerihal :   Undangan  "
	assert.Equal(t, "Nomor : 001/SM/2024\n\nPerihal : Undangan", Normalize(in))
	assert.Equal(t, "", Normalize(""))
}

func TestNormalize_KeepsPageBreaks(t *testing.T) {
	got := Normalize("halaman satu" + ocr.PageBreak + "halaman dua")
	assert.Equal(t, "halaman satu"+ocr.PageBreak+"halaman dua", got)

	// pdftotext ends every page with a bare form feed
	got = Normalize("Nomor: 001/SM/2024 \n\n\fPerihal: Undangan\n\f")
	assert.Equal(t, "Nomor: 001/SM/2024"+ocr.PageBreak+"Perihal: Undangan", got)
	assert.Equal(t, 1, strings.Count(got, "\f"))
}

func TestDetectMIME(t *testing.T) {
	assert.Equal(t, MimePDF, DetectMIME("application/octet-stream", "scan.PDF"))
	assert.Equal(t, MimeDOCX, DetectMIME("", "SM-001-2024.docx"))
	assert.Equal(t, "text/plain", DetectMIME("text/plain; charset=utf-8", "a.pdf"))
	assert.Equal(t, ".docx", Ext(MimeDOCX))
	assert.True(t, strings.HasPrefix(Ext(MimePDF), "."))
}
