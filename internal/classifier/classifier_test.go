package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"arsip/internal/metadata"
	"arsip/internal/model"
)

func str(s string) *string { return &s }

func TestRules_Classify(t *testing.T) {
	rules := NewRules("Kelurahan Pela Mampang")

	tests := []struct {
		name       string
		text       string
		filename   string
		fields     metadata.Fields
		wantKind   model.Kind
		wantMethod string
		wantConf   float64
	}{
		{
			name:       "filename token wins",
			text:       "Nomor: 001/SM/2024\nPerihal: Undangan Rapat",
			filename:   "SM-001-2024.docx",
			wantKind:   model.KindIncoming,
			wantMethod: MethodFilename,
			wantConf:   0.9,
		},
		{
			name:       "filename keluar",
			filename:   "surat_keluar.pdf",
			wantKind:   model.KindOutgoing,
			wantMethod: MethodFilename,
			wantConf:   0.9,
		},
		{
			name:       "number marker",
			filename:   "scan.pdf",
			fields:     metadata.Fields{Number: str("001/SK/2024")},
			wantKind:   model.KindOutgoing,
			wantMethod: MethodNumberPattern,
			wantConf:   0.9,
		},
		{
			name:       "own letterhead",
			text:       "KELURAHAN PELA MAMPANG\nJL. RAYA NO 1\nKepada Yth. Warga RW 01",
			filename:   "scan.pdf",
			wantKind:   model.KindOutgoing,
			wantMethod: MethodOfficeLetterhead,
			wantConf:   0.95,
		},
		{
			name:       "addressed to head of office",
			text:       "PEMERINTAH KOTA ADMINISTRASI\nKepada Yth.\nLurah Pela Mampang\ndi Jakarta",
			filename:   "scan.pdf",
			wantKind:   model.KindIncoming,
			wantMethod: MethodAddressedToOffice,
			wantConf:   0.95,
		},
		{
			name:       "addressed via parsed recipient",
			filename:   "scan.pdf",
			fields:     metadata.Fields{Recipient: str("Lurah Pela Mampang")},
			wantKind:   model.KindIncoming,
			wantMethod: MethodAddressedToOffice,
			wantConf:   0.95,
		},
		{
			name:       "outgoing indicators",
			text:       "Demikian kami sampaikan.\nHormat kami,\nSurat Keputusan ini berlaku",
			filename:   "scan.pdf",
			wantKind:   model.KindOutgoing,
			wantMethod: MethodOutgoingIndicators,
			wantConf:   0.9,
		},
		{
			name:       "salutation means incoming",
			text:       "Dengan hormat,\nPerihal : Undangan",
			filename:   "scan.pdf",
			wantKind:   model.KindIncoming,
			wantMethod: MethodLetterIndicators,
			wantConf:   0.75,
		},
		{
			name:       "presentation is not a letter",
			text:       "PAPARAN PROGRAM KERJA 2024",
			filename:   "scan.pdf",
			wantKind:   model.KindOther,
			wantMethod: MethodNonLetter,
			wantConf:   0.9,
		},
		{
			name:       "nothing matches",
			text:       "catatan pribadi",
			filename:   "scan.pdf",
			wantKind:   model.KindOther,
			wantMethod: MethodDefault,
			wantConf:   0.6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rules.Classify(tt.text, tt.filename, tt.fields)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantMethod, got.Method)
			assert.InDelta(t, tt.wantConf, got.Confidence, 1e-9)
		})
	}
}

func TestRules_NoOffice(t *testing.T) {
	got := NewRules("").Classify("KELURAHAN PELA MAMPANG", "scan.pdf", metadata.Fields{})
	assert.Equal(t, model.KindOther, got.Kind)
	assert.Equal(t, MethodDefault, got.Method)
}

func TestChain(t *testing.T) {
	low := Func(func(string, string, metadata.Fields) Result {
		return Result{Kind: model.KindOther, Confidence: 0.5, Method: "model"}
	})
	high := Func(func(string, string, metadata.Fields) Result {
		return Result{Kind: model.KindIncoming, Confidence: 0.85, Method: "rules"}
	})
	invalid := Func(func(string, string, metadata.Fields) Result {
		return Result{Kind: "memo", Confidence: 1}
	})

	t.Run("first above threshold", func(t *testing.T) {
		got := NewChain(0.8, invalid, low, high).Classify("", "", metadata.Fields{})
		assert.Equal(t, "rules", got.Method)
	})

	t.Run("falls back to most confident", func(t *testing.T) {
		got := NewChain(0.9, low, high).Classify("", "", metadata.Fields{})
		assert.Equal(t, model.KindIncoming, got.Kind)
	})

	t.Run("empty chain", func(t *testing.T) {
		got := NewChain(0.5).Classify("", "", metadata.Fields{})
		assert.Equal(t, model.KindOther, got.Kind)
		assert.Equal(t, MethodDefault, got.Method)
	})
}
