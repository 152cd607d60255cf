package metadata

import (
	"regexp"
	"strings"
	"unicode"
)

var quoteReplacer = strings.NewReplacer(
	"‘", " ", "’", " ", "“", " ", "”", " ",
	"`", " ", "´", " ", "′", " ",
)

// OCR frequently reads a leading "05" or "08" as letters.
var ocrPrefixReplacer = strings.NewReplacer(
	"OS  /", "05 /", "OB  /", "08 /", "OI  /", "01 /",
	"OS /", "05 /", "OB /", "08 /", "OI /", "01 /",
	"/-", "-", "|/", "/", `\ /`, "",
)

var (
	reDigitPipeSlash  = regexp.MustCompile(`(\d)[I|]/`)
	reDigitBackslash  = regexp.MustCompile(`(\d)\\\s*/`)
	reApostropheSlash = regexp.MustCompile(`(\d{2,3})\s*'\s*/`)
	reNumberToken     = regexp.MustCompile(`(?i)\b[A-Z0-9]{1,8}[\-/.][A-Z0-9.\-/]{2,}\b`)
	reHorizontalSpace = regexp.MustCompile(`[ \t]+`)
	reBlankRun        = regexp.MustCompile(`\n\s*\n\s*\n+`)
	reAnySpace        = regexp.MustCompile(`\s+`)
	reHasDigit        = regexp.MustCompile(`\d`)
)

// cleanText repairs common OCR noise and normalizes spacing.
func cleanText(text string) string {
	if text == "" {
		return ""
	}
	t := quoteReplacer.Replace(text)
	t = ocrPrefixReplacer.Replace(t)
	t = reDigitPipeSlash.ReplaceAllString(t, "$1/")
	t = reDigitBackslash.ReplaceAllString(t, "$1/")
	t = reApostropheSlash.ReplaceAllString(t, "$1 /")
	t = reNumberToken.ReplaceAllStringFunc(t, func(tok string) string {
		if !reHasDigit.MatchString(tok) {
			return tok
		}
		return strings.NewReplacer("O", "0", "l", "1").Replace(tok)
	})
	t = reHorizontalSpace.ReplaceAllString(t, " ")
	t = reBlankRun.ReplaceAllString(t, "\n\n")
	return strings.TrimSpace(t)
}

// nonEmptyLines returns trimmed, non-blank lines.
func nonEmptyLines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// normalizeLine collapses whitespace, trims label punctuation and title-cases shouted text.
func normalizeLine(v string) string {
	v = strings.Trim(reAnySpace.ReplaceAllString(v, " "), " :-")
	if isUpper(v) {
		return titleCase(v)
	}
	return v
}

// isUpper reports whether s has at least one cased letter and no lowercase ones.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		prevLetter = false
		b.WriteRune(r)
	}
	return b.String()
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
