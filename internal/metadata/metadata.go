// Package metadata pulls letter fields (number, subject, date, sender, recipient) out of
// extracted text. Rules are ordered and the first acceptable value wins. Parsing never fails;
// a field that cannot be found is nil.
package metadata

import (
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"arsip/internal/model"
)

type Fields struct {
	Number    *string
	Subject   *string
	Date      *time.Time
	Sender    *string
	Recipient *string

	// YearOnly marks a Date built from a bare year (January 1st).
	YearOnly bool
}

// Found returns the names of the fields that were extracted.
func (f Fields) Found() []string {
	var out []string
	if f.Number != nil {
		out = append(out, "number")
	}
	if f.Subject != nil {
		out = append(out, "subject")
	}
	if f.Date != nil {
		out = append(out, "date")
	}
	if f.Sender != nil {
		out = append(out, "sender")
	}
	if f.Recipient != nil {
		out = append(out, "recipient")
	}
	return out
}

type Parser struct {
	logger *slog.Logger
}

func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Parse extracts Fields from text. The filename is a fallback source for number, subject
// and year.
func (p *Parser) Parse(text, filename string) Fields {
	t := cleanText(text)
	labels := labelBlock(t)

	d, bare := date(t, filename)
	f := Fields{
		Number:    ptr(p.number(t, labels, filename)),
		Subject:   ptr(p.subject(t, labels, filename)),
		Date:      d,
		YearOnly:  bare,
		Sender:    ptr(sender(t)),
		Recipient: ptr(recipient(t)),
	}
	p.logger.Debug("metadata parsed", "filename", filename, "found", f.Found())
	return f
}

var (
	reIncomingToken = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(?:sm|masuk)(?:[^a-z0-9]|$)`)
	reOutgoingToken = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(?:sk|keluar)(?:[^a-z0-9]|$)`)
)

// FileHints is what a filename alone says about a letter.
type FileHints struct {
	Kind model.Kind // empty when the name carries no kind token
	Year int        // 0 when absent
}

// Hints reads kind tokens (SM/masuk, SK/keluar) and a 4-digit year from a filename.
// A name carrying both kind tokens gives no kind.
func Hints(filename string) FileHints {
	s := stem(filename)
	var h FileHints
	in, out := reIncomingToken.MatchString(s), reOutgoingToken.MatchString(s)
	switch {
	case in && !out:
		h.Kind = model.KindIncoming
	case out && !in:
		h.Kind = model.KindOutgoing
	}
	for _, m := range reYear.FindAllStringSubmatch(s, -1) {
		if y, err := strconv.Atoi(m[1]); err == nil && y >= minYear && y <= maxYear {
			h.Year = y
			break
		}
	}
	return h
}
