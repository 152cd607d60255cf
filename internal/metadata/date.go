package metadata

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	minYear = 1900
	maxYear = 2100
)

var months = map[string]time.Month{
	"januari": time.January, "january": time.January, "jan": time.January,
	"februari": time.February, "february": time.February, "pebruari": time.February, "feb": time.February,
	"maret": time.March, "march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"mei": time.May, "may": time.May,
	"juni": time.June, "june": time.June, "jun": time.June,
	"juli": time.July, "july": time.July, "jul": time.July,
	"agustus": time.August, "august": time.August, "agu": time.August, "aug": time.August, "agt": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"oktober": time.October, "october": time.October, "okt": time.October, "oct": time.October,
	"november": time.November, "nopember": time.November, "nov": time.November,
	"desember": time.December, "december": time.December, "des": time.December, "dec": time.December,
}

var (
	reDateWords   = regexp.MustCompile(`(\d{1,2})\s+([A-Za-z]+)\.?\s+(\d{4})`)
	reDateNumeric = regexp.MustCompile(`\b(\d{1,2})[-/](\d{1,2})[-/](\d{4})\b`)
	reDateLabel   = regexp.MustCompile(`(?i)\b(?:Tanggal|Tgl)\.?\s*[:.]?\s*(\d{1,2})[\s\-/.]+([A-Za-z]+|\d{1,2})[\s\-/.]+(\d{4})`)
	reDateISO     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	reYear        = regexp.MustCompile(`(?:^|\D)((?:19|20|21)\d{2})(?:\D|$)`)
)

// date returns the first valid date in text, falling back to January 1st of a year found
// in the text or the filename. The bool reports that fallback.
func date(text, filename string) (*time.Time, bool) {
	for _, m := range reDateWords.FindAllStringSubmatch(text, -1) {
		if t := fromParts(m[1], monthNumber(m[2]), m[3]); t != nil {
			return t, false
		}
	}
	for _, m := range reDateNumeric.FindAllStringSubmatch(text, -1) {
		if t := fromParts(m[1], m[2], m[3]); t != nil {
			return t, false
		}
	}
	if m := reDateLabel.FindStringSubmatch(text); m != nil {
		mon := m[2]
		if _, err := strconv.Atoi(mon); err != nil {
			mon = monthNumber(mon)
		}
		if t := fromParts(m[1], mon, m[3]); t != nil {
			return t, false
		}
	}
	for _, m := range reDateISO.FindAllStringSubmatch(text, -1) {
		if t := fromParts(m[3], m[2], m[1]); t != nil {
			return t, false
		}
	}
	if t := yearOnly(text); t != nil {
		return t, true
	}
	if t := yearOnly(stem(filename)); t != nil {
		return t, true
	}
	return nil, false
}

func yearOnly(s string) *time.Time {
	for _, m := range reYear.FindAllStringSubmatch(s, -1) {
		if t := fromParts("1", "1", m[1]); t != nil {
			return t
		}
	}
	return nil
}

func monthNumber(name string) string {
	if m, ok := months[strings.ToLower(strings.TrimSuffix(name, "."))]; ok {
		return strconv.Itoa(int(m))
	}
	return ""
}

// fromParts builds a UTC date, rejecting out-of-range years and impossible days.
func fromParts(day, month, year string) *time.Time {
	d, err1 := strconv.Atoi(day)
	m, err2 := strconv.Atoi(month)
	y, err3 := strconv.Atoi(year)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil
	}
	if y < minYear || y > maxYear || m < 1 || m > 12 || d < 1 || d > 31 {
		return nil
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return nil
	}
	return &t
}
