package metadata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arsip/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParse_LabelsWithYearFallback(t *testing.T) {
	f := NewParser(nil).Parse("Nomor: 001/SM/2024\nPerihal: Undangan Rapat", "SM-001-2024.docx")

	require.NotNil(t, f.Number)
	assert.Equal(t, "001/SM/2024", *f.Number)
	require.NotNil(t, f.Subject)
	assert.Equal(t, "Undangan Rapat", *f.Subject)
	require.NotNil(t, f.Date)
	assert.Equal(t, day(2024, time.January, 1), *f.Date)
	assert.Nil(t, f.Sender)
	assert.Nil(t, f.Recipient)
}

func TestParse_FullLetter(t *testing.T) {
	text := "KELURAHAN PELA MAMPANG\n" +
		"Nomor : 045/SK/XII/2025\n" +
		"Sifat : Biasa\n" +
		"Hal : Permohonan Data\n" +
		"Kependudukan Warga\n" +
		"Kepada Yth.\n" +
		"Kepala Dinas Dukcapil\n" +
		"di\n" +
		"Jakarta\n" +
		"Jakarta, 12 Desember 2025"

	f := NewParser(nil).Parse(text, "scan.pdf")

	require.NotNil(t, f.Number)
	assert.Equal(t, "045/SK/XII/2025", *f.Number)
	require.NotNil(t, f.Subject)
	assert.Equal(t, "Permohonan Data Kependudukan Warga", *f.Subject)
	require.NotNil(t, f.Date)
	assert.Equal(t, day(2025, time.December, 12), *f.Date)
	require.NotNil(t, f.Recipient)
	assert.Equal(t, "Kepala Dinas Dukcapil", *f.Recipient)
	assert.Equal(t, []string{"number", "subject", "date", "recipient"}, f.Found())
}

func TestParse_FilenameFallback(t *testing.T) {
	f := NewParser(nil).Parse("", "045-SK-2024 Undangan Rapat.pdf")

	require.NotNil(t, f.Number)
	assert.Equal(t, "045-SK-2024", *f.Number)
	require.NotNil(t, f.Subject)
	assert.Equal(t, "Undangan Rapat", *f.Subject)
	require.NotNil(t, f.Date)
	assert.Equal(t, 2024, f.Date.Year())
}

func TestParse_NothingFound(t *testing.T) {
	f := NewParser(nil).Parse("", "")
	assert.Empty(t, f.Found())
}

func TestParse_NumberTokenScan(t *testing.T) {
	f := NewParser(nil).Parse("SURAT UNDANGAN\n045/UND/2024\nDengan hormat", "")
	require.NotNil(t, f.Number)
	assert.Equal(t, "045/UND/2024", *f.Number)
}

func TestParse_NumberLabelRejectsWords(t *testing.T) {
	for _, text := range []string{
		"Nomor : Penting",
		"Nomor :\nLampiran : -\nPerihal : Undangan",
	} {
		f := NewParser(nil).Parse(text, "")
		assert.Nil(t, f.Number, text)
	}
}

func TestParse_SubjectKeywordScan(t *testing.T) {
	text := "BARIS SATU\nBARIS DUA\nBARIS TIGA\nBARIS EMPAT\nBARIS LIMA\nUndangan rapat koordinasi RW"
	f := NewParser(nil).Parse(text, "")
	require.NotNil(t, f.Subject)
	assert.Equal(t, "Undangan rapat koordinasi RW", *f.Subject)
}

func TestParse_Parties(t *testing.T) {
	f := NewParser(nil).Parse("Dari : Camat Mampang Prapatan\nKepada : Ketua RT 05", "")

	require.NotNil(t, f.Sender)
	assert.Equal(t, "Camat Mampang Prapatan", *f.Sender)
	require.NotNil(t, f.Recipient)
	assert.Equal(t, "Ketua RT 05", *f.Recipient)
}

func TestDate(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		filename string
		want     *time.Time
		yearOnly bool
	}{
		{"indonesian month", "Jakarta, 5 Januari 2024", "", ptrTime(day(2024, time.January, 5)), false},
		{"english month", "dated 17 August 2023", "", ptrTime(day(2023, time.August, 17)), false},
		{"numeric", "31/12/2023", "", ptrTime(day(2023, time.December, 31)), false},
		{"iso", "dibuat 2021-06-30", "", ptrTime(day(2021, time.June, 30)), false},
		{"real first of january", "Jakarta, 1 Januari 2024", "", ptrTime(day(2024, time.January, 1)), false},
		{"impossible day falls back to year", "31/02/2024", "", ptrTime(day(2024, time.January, 1)), true},
		{"year from filename", "", "arsip_2019.pdf", ptrTime(day(2019, time.January, 1)), true},
		{"out of range", "Jakarta, 30 Maret 1850", "", nil, false},
		{"none", "tanpa tanggal", "surat.pdf", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, bare := date(tt.text, tt.filename)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.yearOnly, bare)
		})
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestSanitizeSubject(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Undangan Rapat", "Undangan Rapat"},
		{"Undangan Rapat Kepada Yth. Lurah", "Undangan Rapat"},
		{"001/SM/2024", ""},
		{"KELURAHAN", ""},
		{"PEMERINTAH PROVINSI DAERAH", ""},
		{"12 Desember 2025", ""},
		{"Hal", ""},
		{"2024", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeSubject(tt.in), tt.in)
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Nomor : 0O5/SK/2024", "Nomor : 005/SK/2024"},
		{"Jl.Raya Pela", "Jl.Raya Pela"},
		{"045/-1.851.3", "045-1.851.3"},
		{"12I/SK/2024", "12/SK/2024"},
		{"a   b\n\n\n\nc", "a b\n\nc"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanText(tt.in), tt.in)
	}
}

func TestHints(t *testing.T) {
	tests := []struct {
		filename string
		kind     model.Kind
		year     int
	}{
		{"SM-001-2024.docx", model.KindIncoming, 2024},
		{"surat_keluar_2023.pdf", model.KindOutgoing, 2023},
		{"Undangan.pdf", "", 0},
		{"SM SK campur.pdf", "", 0},
		{"smart-2024.pdf", "", 2024},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			h := Hints(tt.filename)
			assert.Equal(t, tt.kind, h.Kind)
			assert.Equal(t, tt.year, h.Year)
		})
	}
}
