package archive

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"arsip/internal/model"
	"arsip/internal/ocr"
)

// SchemaVersion is written into every sidecar.
const SchemaVersion = 1

var ErrInvalidSidecar = errors.New("invalid sidecar")

//go:embed sidecar.schema.json
var sidecarSchemaJSON []byte

var sidecarSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("sidecar.schema.json", bytes.NewReader(sidecarSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("sidecar.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

// Extras is ingest detail kept in the sidecar but not in the index.
type Extras struct {
	OCRStats         *ocr.Stats `json:"ocr_stats,omitempty"`
	ExtractionMethod string     `json:"extraction_method,omitempty"`
	QualityScore     *int       `json:"quality_score,omitempty"`
	Warnings         []string   `json:"warnings,omitempty"`
}

// Sidecar is the JSON snapshot stored beside each document as <storedName>.meta.json.
// It is enough to rebuild the index row.
type Sidecar struct {
	SchemaVersion    int        `json:"schema_version"`
	ID               string     `json:"id"`
	Number           *string    `json:"number"`
	Subject          *string    `json:"subject"`
	Date             *string    `json:"date"`
	Kind             model.Kind `json:"kind"`
	KindConfidence   float64    `json:"kind_confidence"`
	KindMethod       string     `json:"kind_method"`
	Sender           *string    `json:"sender"`
	Recipient        *string    `json:"recipient"`
	OriginalFilename string     `json:"original_filename"`
	StoredName       string     `json:"stored_name"`
	MimeType         string     `json:"mime_type"`
	Size             int64      `json:"size"`
	Fingerprint      string     `json:"fingerprint"`
	DuplicateOf      *string    `json:"duplicate_of"`
	OCRUsed          bool       `json:"ocr_used"`
	Extras
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewSidecar(doc *model.Document, ex Extras) *Sidecar {
	return &Sidecar{
		SchemaVersion:    SchemaVersion,
		ID:               doc.ID,
		Number:           doc.Number,
		Subject:          doc.Subject,
		Date:             doc.DateString(),
		Kind:             doc.Kind,
		KindConfidence:   doc.KindConfidence,
		KindMethod:       doc.KindMethod,
		Sender:           doc.Sender,
		Recipient:        doc.Recipient,
		OriginalFilename: doc.OriginalFilename,
		StoredName:       path.Base(doc.StoredPath),
		MimeType:         doc.MimeType,
		Size:             doc.Size,
		Fingerprint:      doc.Fingerprint,
		DuplicateOf:      doc.DuplicateOf,
		OCRUsed:          doc.OCRUsed,
		Extras:           ex,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
}

// Document rebuilds the index row described by a sidecar found at sidecarKey.
func (s *Sidecar) Document(sidecarKey string) (*model.Document, error) {
	date, err := model.ParseDate(deref(s.Date))
	if err != nil {
		return nil, fmt.Errorf("%w: date: %v", ErrInvalidSidecar, err)
	}
	stored := path.Join(path.Dir(sidecarKey), s.StoredName)
	return &model.Document{
		ID:               s.ID,
		Number:           s.Number,
		Subject:          s.Subject,
		LetterDate:       date,
		Kind:             s.Kind,
		KindConfidence:   s.KindConfidence,
		KindMethod:       s.KindMethod,
		Sender:           s.Sender,
		Recipient:        s.Recipient,
		OriginalFilename: s.OriginalFilename,
		StoredPath:       stored,
		SidecarPath:      sidecarKey,
		MimeType:         s.MimeType,
		Size:             s.Size,
		Fingerprint:      s.Fingerprint,
		DuplicateOf:      s.DuplicateOf,
		OCRUsed:          s.OCRUsed,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}, nil
}

// EncodeSidecar marshals s and checks the result against the sidecar schema.
func EncodeSidecar(s *Sidecar) ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal sidecar: %w", err)
	}
	if err := validateSidecar(b); err != nil {
		return nil, err
	}
	return b, nil
}

// DecodeSidecar validates data against the sidecar schema and unmarshals it.
func DecodeSidecar(data []byte) (*Sidecar, error) {
	if err := validateSidecar(data); err != nil {
		return nil, err
	}
	var s Sidecar
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSidecar, err)
	}
	return &s, nil
}

func validateSidecar(data []byte) error {
	schema, err := sidecarSchema()
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSidecar, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSidecar, err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
