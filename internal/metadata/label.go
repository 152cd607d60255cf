package metadata

import (
	"regexp"
	"strings"
)

const (
	labelNumber     = "number"
	labelSubject    = "subject"
	labelAttachment = "attachment"
	labelNature     = "nature"
)

var labelAliases = map[string][]string{
	labelNumber:     {"nomor", "no", "nomer", "nemor"},
	labelSubject:    {"perihal", "hal"},
	labelAttachment: {"lampiran"},
	labelNature:     {"sifat"},
}

// Words that sit next to a number label but are never a letter number.
var numberBlacklist = map[string]bool{
	"sifat": true, "biasa": true, "penting": true, "segera": true, "rahasia": true,
	"lampiran": true, "hal": true, "perihal": true, "kepada": true, "yth": true,
	"tanggal": true, "tembusan": true, "dari": true,
}

var (
	reSectionStart  = regexp.MustCompile(`(?i)^(kepada|yth|dengan|sehubungan)`)
	reNumberShape   = regexp.MustCompile(`\d+[/\-][A-Za-z0-9]`)
	reStartsDigit   = regexp.MustCompile(`^\d`)
	subjectMaxLines = 4
)

// labelOf returns the label key a line starts with, or "".
func labelOf(line string) string {
	head := line
	if i := strings.Index(line, ":"); i >= 0 {
		head = line[:i]
	}
	head = strings.ToLower(strings.Trim(head, " :.-\t"))
	for key, aliases := range labelAliases {
		for _, a := range aliases {
			if head == a {
				return key
			}
		}
	}
	return ""
}

// labelBlock maps each label found in text to its first accepted value.
func labelBlock(text string) map[string]string {
	lines := nonEmptyLines(text)
	values := make(map[string]string)
	for i, line := range lines {
		key := labelOf(line)
		if key == "" {
			continue
		}
		if _, seen := values[key]; seen {
			continue
		}
		if v := labelValue(lines, i, key); v != "" {
			values[key] = v
		}
	}
	return values
}

// labelValue reads the value of the label on lines[idx]: after the colon on the same line,
// or on one of the next two lines.
func labelValue(lines []string, idx int, key string) string {
	if i := strings.Index(lines[idx], ":"); i >= 0 {
		if v := strings.TrimSpace(lines[idx][i+1:]); v != "" {
			return labelText(lines, idx, v, key)
		}
	}
	for j := idx + 1; j < len(lines) && j <= idx+2; j++ {
		cand := lines[j]
		if labelOf(cand) != "" {
			break
		}
		if strings.HasPrefix(cand, ":") {
			if v := strings.TrimSpace(cand[1:]); v != "" {
				return labelText(lines, j, v, key)
			}
			continue
		}
		return acceptLabel(normalizeLine(cand), key)
	}
	return ""
}

func labelText(lines []string, at int, v, key string) string {
	switch key {
	case labelSubject:
		collected := []string{v}
		for j := at + 1; j < len(lines) && j <= at+subjectMaxLines; j++ {
			next := lines[j]
			if labelOf(next) != "" || reSectionStart.MatchString(next) {
				break
			}
			collected = append(collected, next)
		}
		return acceptLabel(normalizeLine(strings.Join(collected, " ")), key)
	case labelNumber:
		return acceptLabel(strings.Fields(v)[0], key)
	}
	return acceptLabel(normalizeLine(v), key)
}

// acceptLabel validates a candidate for its label. Numbers must start with a digit and
// carry a separator.
func acceptLabel(v, key string) string {
	if v == "" || key != labelNumber {
		return v
	}
	if numberBlacklist[strings.ToLower(v)] {
		return ""
	}
	if !reNumberShape.MatchString(v) || !reStartsDigit.MatchString(v) {
		return ""
	}
	return v
}
