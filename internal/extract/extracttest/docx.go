// Package extracttest builds minimal office documents for tests.
package extracttest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"strings"
)

// DOCX returns a minimal DOCX package whose body holds one paragraph per line.
func DOCX(lines ...string) []byte {
	return DOCXWithHeader(nil, lines...)
}

// DOCXWithHeader is DOCX with an extra header part, as letterheads are usually stored.
func DOCXWithHeader(header []string, lines ...string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name, content string) {
		w, err := zw.Create(name)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			panic(err)
		}
	}
	write("[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`)
	write("word/document.xml", part("document", "body", lines))
	if len(header) > 0 {
		write("word/header1.xml", part("hdr", "", header))
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func part(root, inner string, lines []string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<w:` + root + ` xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">`)
	if inner != "" {
		b.WriteString(`<w:` + inner + `>`)
	}
	for _, l := range lines {
		b.WriteString(`<w:p><w:r><w:t xml:space="preserve">`)
		_ = xml.EscapeText(&b, []byte(l))
		b.WriteString(`</w:t></w:r></w:p>`)
	}
	if inner != "" {
		b.WriteString(`</w:` + inner + `>`)
	}
	b.WriteString(`</w:` + root + `>`)
	return b.String()
}
