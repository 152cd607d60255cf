package metadata

import (
	"regexp"
	"strings"
	"unicode"
)

var headerWords = []string{
	"PEMERINTAH", "PROVINSI", "DAERAH", "KHUSUS", "IBUKOTA", "KOTA",
	"ADMINISTRASI", "KECAMATAN", "KELURAHAN", "DINAS", "KEMENTERIAN", "REPUBLIK",
}

var (
	reSubjectNumberish = regexp.MustCompile(`(?i)^(?:no(?:mor)?\.?\s*[:.]?\s*)?\d+\s*[/\-]\s*[A-Za-z0-9.]+`)
	reSubjectDate      = regexp.MustCompile(`^\d{1,2}[-/\s]\w+[-/\s]\d{2,4}$`)
	reSubjectCut       = regexp.MustCompile(`(?i)\b(?:yth\.?|kepada)\b`)
	reSubjectTail      = regexp.MustCompile(`(?i)(?:\s+(?:kebakaran|di|jakarta|tanggal|nomor))+\s*$`)
	reSubjectLabel     = regexp.MustCompile(`(?i)^\s*(?:hal|perihal)\b\s*[:.]?\s*(.*)$`)
	reSubjectKeyword   = regexp.MustCompile(`(?i)\b(?:Permohonan|Balasan|Undangan|Disposisi|Pemberitahuan|Pengajuan|Laporan|Penyampaian|Permintaan)\b`)
	reFileSubject      = regexp.MustCompile(`^\s*[A-Za-z0-9.\-/]+\s+(.+)$`)
	reDigitsOnly       = regexp.MustCompile(`^[\d\s./\-]+$`)
)

const (
	subjectScanFrom = 5
	subjectScanTo   = 40
)

func (p *Parser) subject(text string, labels map[string]string, filename string) string {
	if v := sanitizeSubject(labels[labelSubject]); v != "" {
		return v
	}

	lines := nonEmptyLines(text)
	for i, line := range lines {
		m := reSubjectLabel.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		collected := []string{}
		if first := strings.TrimLeft(m[1], ": "); first != "" {
			collected = append(collected, first)
		}
		for j := i + 1; j < len(lines) && j <= i+subjectMaxLines; j++ {
			if labelOf(lines[j]) != "" || reSectionStart.MatchString(lines[j]) {
				break
			}
			collected = append(collected, strings.TrimLeft(lines[j], ": "))
		}
		if v := sanitizeSubject(normalizeLine(strings.Join(collected, " "))); v != "" {
			return v
		}
	}

	for i := subjectScanFrom; i < len(lines) && i < subjectScanTo; i++ {
		if reSubjectKeyword.MatchString(lines[i]) && len(lines[i]) > 10 {
			if v := sanitizeSubject(normalizeLine(lines[i])); v != "" {
				return v
			}
		}
	}

	if m := reFileSubject.FindStringSubmatch(stem(filename)); m != nil {
		if v := strings.TrimSpace(strings.NewReplacer("_", " ").Replace(m[1])); len(v) > 3 {
			return sanitizeSubject(v)
		}
	}
	return ""
}

// sanitizeSubject rejects values that are really numbers, dates or letterhead lines and
// trims the salutation that OCR often glues onto the end.
func sanitizeSubject(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if loc := reSubjectCut.FindStringIndex(v); loc != nil && loc[0] > 0 {
		v = strings.TrimSpace(v[:loc[0]])
	}
	v = strings.TrimSpace(reSubjectTail.ReplaceAllString(v, ""))
	v = strings.Trim(v, " ,;:-")

	switch {
	case len(v) < 5, reDigitsOnly.MatchString(v):
		return ""
	case reSubjectNumberish.MatchString(v):
		return ""
	case reSubjectDate.MatchString(v):
		return ""
	case headerHits(v) >= 3:
		return ""
	case isUpper(v) && len(v) > 40:
		return ""
	case isSingleHeaderWord(v):
		return ""
	}
	return v
}

func headerHits(v string) int {
	up := strings.ToUpper(v)
	n := 0
	for _, w := range headerWords {
		if strings.Contains(up, w) {
			n++
		}
	}
	return n
}

func isSingleHeaderWord(v string) bool {
	w := strings.ToUpper(strings.TrimFunc(v, func(r rune) bool { return !unicode.IsLetter(r) }))
	for _, h := range headerWords {
		if w == h {
			return true
		}
	}
	return false
}
