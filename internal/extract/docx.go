package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

const docxBody = "word/document.xml"

// docxText returns the paragraphs of a DOCX package, header parts first so the
// letterhead precedes the body.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open docx: %v", ErrUnreadableContainer, err)
	}

	var headers []*zip.File
	var body *zip.File
	for _, f := range zr.File {
		switch {
		case f.Name == docxBody:
			body = f
		case strings.HasPrefix(f.Name, "word/header") && strings.HasSuffix(f.Name, ".xml"):
			headers = append(headers, f)
		}
	}
	if body == nil {
		return "", fmt.Errorf("%w: %s missing", ErrUnreadableContainer, docxBody)
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].Name < headers[j].Name })

	var b strings.Builder
	for _, f := range append(headers, body) {
		if err := paragraphs(f, &b); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrUnreadableContainer, f.Name, err)
		}
	}
	return b.String(), nil
}

func paragraphs(f *zip.File, b *strings.Builder) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
}
