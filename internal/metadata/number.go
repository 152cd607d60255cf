package metadata

import (
	"path/filepath"
	"regexp"
	"strings"
)

var numberLabelRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:Nomor|No|Nomer|Nemor)\s*[:.]?\s*(\d+[/\-][A-Za-z0-9./\-]+)`),
	regexp.MustCompile(`(?i)\b(?:Nomor|No)\s*[:.]?\s*(e-\d+[/\-][A-Za-z0-9./\-]+)`),
	regexp.MustCompile(`(?i)\b(?:Nomor|No)\s*[:.]?\s*(\d+\s*/\s*[A-Za-z0-9.\-]+(?:\s*/\s*[A-Za-z0-9.\-]+)+)`),
	regexp.MustCompile(`(?i)\b(?:Nomor|No)\s*[:.]?\s*\n\s*(\d+[/\-][A-Za-z0-9./\-]+)`),
}

var (
	reShortCode    = regexp.MustCompile(`\b(\d{2,3})\s*[/\-]\s*([A-Z]{2}\.[0-9.]+)\b`)
	reNumberToken1 = regexp.MustCompile(`^\d+[/\-][A-Za-z0-9./\-]{2,}$`)
	reDateToken    = regexp.MustCompile(`^\d{1,2}[-/]\d{1,2}[-/]\d{2,4}$`)
	reFileNumber   = regexp.MustCompile(`^\d+[/\-][A-Za-z0-9./\-]+$`)
	reInnerSpace   = regexp.MustCompile(`\s*/\s*`)
	numberScanSpan = 15
)

func (p *Parser) number(text string, labels map[string]string, filename string) string {
	if v := labels[labelNumber]; v != "" {
		return v
	}
	for _, re := range numberLabelRegexes {
		if m := re.FindStringSubmatch(text); m != nil {
			if v := acceptLabel(tidyNumber(m[1]), labelNumber); v != "" {
				return v
			}
		}
	}
	if m := reShortCode.FindStringSubmatch(text); m != nil {
		return m[1] + "/" + m[2]
	}

	lines := nonEmptyLines(text)
	if len(lines) > numberScanSpan {
		lines = lines[:numberScanSpan]
	}
	for _, line := range lines {
		for _, tok := range strings.Fields(line) {
			tok = strings.Trim(tok, ",;:()")
			if reNumberToken1.MatchString(tok) && !reDateToken.MatchString(tok) {
				return tok
			}
		}
	}
	return numberFromFilename(filename)
}

// numberFromFilename takes the leading code-like token of the file stem, e.g.
// "045-SK-2024 Undangan.pdf" gives "045-SK-2024".
func numberFromFilename(filename string) string {
	fields := strings.Fields(stem(filename))
	if len(fields) == 0 {
		return ""
	}
	if tok := fields[0]; reFileNumber.MatchString(tok) && !reDateToken.MatchString(tok) {
		return tok
	}
	return ""
}

func tidyNumber(v string) string {
	v = reInnerSpace.ReplaceAllString(strings.TrimSpace(v), "/")
	return strings.TrimRight(v, ".-/")
}

func stem(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
