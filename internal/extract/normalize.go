package extract

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`[\t\v]+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	reBoxNoise   = regexp.MustCompile(`(?m)^[ \t]*[_\-=]{3,}[ \t]*$`)
	reFormFeed   = regexp.MustCompile(`[ \t]*\f[ \t]*`)
	reBreakBlank = regexp.MustCompile(`\n+\f\n+`)
)

// Normalize collapses noisy whitespace while keeping line structure and page breaks.
// Every form feed ends up on a line of its own, as ocr.PageBreak.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reFormFeed.ReplaceAllString(s, "\n\f\n")
	s = reTabs.ReplaceAllString(s, " ")
	s = reBoxNoise.ReplaceAllString(s, "")
	s = reMultiSpace.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimFunc(lines[i], isBlank)
	}
	s = strings.Join(lines, "\n")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	s = reBreakBlank.ReplaceAllString(s, "\n\f\n")
	return strings.TrimSpace(s)
}

func isBlank(r rune) bool {
	return r != '\f' && unicode.IsSpace(r)
}

// usableChars counts letters and digits, the signal for whether a text layer is real.
func usableChars(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
