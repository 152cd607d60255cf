package hasher

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	data := []byte("Nomor: 001/SM/2024")

	first := Fingerprint(data)
	second := Fingerprint(bytes.Clone(data))

	assert.Equal(t, first, second)
	assert.Len(t, first, Size)
	assert.True(t, Valid(first))

	// empty input still has a well-known digest
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Fingerprint(nil))
}

func TestFingerprint_SingleBitFlip(t *testing.T) {
	data := []byte("Perihal: Undangan Rapat")
	flipped := bytes.Clone(data)
	flipped[0] ^= 0x01

	assert.NotEqual(t, Fingerprint(data), Fingerprint(flipped))
}

func TestFingerprintReader(t *testing.T) {
	content := strings.Repeat("surat masuk ", 1024)

	fp, n, err := FingerprintReader(strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)
	assert.Equal(t, Fingerprint([]byte(content)), fp)
}

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{name: "valid", in: Fingerprint([]byte("x")), want: true},
		{name: "too short", in: "abc", want: false},
		{name: "not hex", in: strings.Repeat("z", Size), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(tt.in))
		})
	}
}
