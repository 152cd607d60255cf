package metadata

import (
	"regexp"
	"strings"
)

var (
	reSender         = regexp.MustCompile(`(?im)^\s*(?:Dari|Pengirim)\b\s*:\s*(.+)$`)
	reRecipientYth   = regexp.MustCompile(`(?i)\bKepada\s+Yth\.?\s*:?\s*(.*)$`)
	reRecipientLabel = regexp.MustCompile(`(?i)^\s*Kepada\s*:\s*(.*)$`)
	reKepadaOnly     = regexp.MustCompile(`(?i)^\s*Kepada\s*[:.]?\s*$`)
	reYthLine        = regexp.MustCompile(`(?i)^\s*Yth\.?\s*:?\s*(.+)$`)
	reYthPrefix      = regexp.MustCompile(`(?i)^\s*Yth\.?\s*`)
	reTrailingDi     = regexp.MustCompile(`(?i)\s+di\s*$`)
)

func sender(text string) string {
	if m := reSender.FindStringSubmatch(text); m != nil {
		return normalizeLine(m[1])
	}
	return ""
}

// recipient reads the addressee from a "Kepada Yth." block. The value may sit on the same
// line or on the line that follows.
func recipient(text string) string {
	lines := nonEmptyLines(text)
	for i, line := range lines {
		var v string
		switch {
		case reRecipientYth.MatchString(line):
			v = reRecipientYth.FindStringSubmatch(line)[1]
		case reRecipientLabel.MatchString(line):
			v = reRecipientLabel.FindStringSubmatch(line)[1]
		case reKepadaOnly.MatchString(line):
		default:
			continue
		}
		v = cleanRecipient(v)
		if v == "" && i+1 < len(lines) {
			v = cleanRecipient(lines[i+1])
		}
		if v != "" {
			return v
		}
	}
	for _, line := range lines {
		if m := reYthLine.FindStringSubmatch(line); m != nil {
			if v := cleanRecipient(m[1]); v != "" {
				return v
			}
		}
	}
	return ""
}

func cleanRecipient(v string) string {
	v = reYthPrefix.ReplaceAllString(v, "")
	v = reTrailingDi.ReplaceAllString(strings.TrimSpace(v), "")
	v = normalizeLine(v)
	if strings.EqualFold(v, "di") || len(v) < 3 {
		return ""
	}
	return v
}
