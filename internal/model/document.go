package model

import (
	"encoding/json"
	"time"
)

// DateLayout is the canonical ISO-8601 form used for letter dates.
const DateLayout = "2006-01-02"

// Document is one archived letter as recorded in the index.
// StoredPath and SidecarPath are relative to the archive root and always use forward slashes.
type Document struct {
	ID               string     `json:"id"`
	Number           *string    `json:"number"`
	Subject          *string    `json:"subject"`
	LetterDate       *time.Time `json:"-"`
	Kind             Kind       `json:"kind"`
	KindConfidence   float64    `json:"kind_confidence"`
	KindMethod       string     `json:"kind_method"`
	Sender           *string    `json:"sender"`
	Recipient        *string    `json:"recipient"`
	OriginalFilename string     `json:"original_filename"`
	StoredPath       string     `json:"stored_path"`
	SidecarPath      string     `json:"sidecar_path"`
	MimeType         string     `json:"mime_type"`
	Size             int64      `json:"size"`
	Fingerprint      string     `json:"fingerprint"`
	DuplicateOf      *string    `json:"duplicate_of"`
	OCRUsed          bool       `json:"ocr_used"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// DateString returns the letter date in ISO form, or nil when unknown.
func (d *Document) DateString() *string {
	if d.LetterDate == nil {
		return nil
	}
	s := d.LetterDate.Format(DateLayout)
	return &s
}

// MarshalJSON adds the ISO date and the legacy "nomor" alias of the number.
func (d Document) MarshalJSON() ([]byte, error) {
	type plain Document
	return json.Marshal(struct {
		plain
		LetterDate *string `json:"letter_date"`
		Nomor      *string `json:"nomor"`
	}{
		plain:      plain(d),
		LetterDate: d.DateString(),
		Nomor:      d.Number,
	})
}

// ParseDate parses an ISO letter date. Empty input yields nil.
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
