package classifier

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"arsip/internal/metadata"
	"arsip/internal/model"
)

var (
	reNumberIncoming = regexp.MustCompile(`(?i)(?:^|[/\-.])SM(?:[/\-.]|$)`)
	reNumberOutgoing = regexp.MustCompile(`(?i)(?:^|[/\-.])SK(?:[/\-.]|$)`)
)

// Documents that are filed but are not letters.
var nonLetterKeywords = []string{
	"PAPARAN", "PANDUAN", "PEDOMAN", "NOTULEN", "NOTULA", "DAFTAR HADIR",
	"BROSUR", "PRESENTASI", "MATERI SOSIALISASI",
}

var outgoingIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bkepada\s+yth`),
	regexp.MustCompile(`(?i)\bdi\s*tempat\b`),
	regexp.MustCompile(`(?i)\bdemikian\s+kami\s+sampaikan`),
	regexp.MustCompile(`(?i)\bhormat\s+kami\b`),
	regexp.MustCompile(`(?i)\bsurat\s+(?:keputusan|perintah|tugas|keterangan|edaran)\b`),
}

var letterIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bno(?:mor)?\s*[:.]?\s*\d`),
	regexp.MustCompile(`\d+/\w+/\w+/\d+`),
	regexp.MustCompile(`(?i)\bperihal\s*:`),
	regexp.MustCompile(`(?i)\bhal\s*:`),
	regexp.MustCompile(`(?i)\blampiran\s*:`),
	regexp.MustCompile(`(?i)\bsurat\s+masuk\b`),
	regexp.MustCompile(`(?i)\b(?:kepada|dari)\s+yth`),
	regexp.MustCompile(`(?i)\bdengan\s+hormat\b`),
}

const (
	letterheadLines  = 10
	nonLetterSpan    = 600
	outgoingMinHits  = 3
	addressedToRange = 60
)

// Rules is the ordered rule cascade. Filename tokens come first, then the parsed number,
// then keyword evidence in the text, and finally the default kind.
type Rules struct {
	office    *regexp.Regexp // own letterhead
	addressed *regexp.Regexp // salutation followed by the office or its head
}

// NewRules builds the cascade for the office whose letters are being archived. For
// "Kelurahan X" the head of office "Lurah X" is recognized as well.
func NewRules(officeName string) *Rules {
	r := &Rules{}
	words := strings.Fields(officeName)
	if len(words) == 0 {
		return r
	}
	names := []string{wordsPattern(words)}
	if len(words) > 1 {
		switch strings.ToLower(words[0]) {
		case "kelurahan":
			names = append(names, `lurah\s+`+wordsPattern(words[1:]))
		case "kecamatan":
			names = append(names, `camat\s+`+wordsPattern(words[1:]))
		}
	}
	r.office = regexp.MustCompile(`(?i)` + names[0])
	r.addressed = regexp.MustCompile(`(?is)\b(?:kepada|yth)\b.{0,` + strconv.Itoa(addressedToRange) + `}?(?:` + strings.Join(names, "|") + `)`)
	return r
}

func (r *Rules) Classify(text, filename string, f metadata.Fields) Result {
	if k := metadata.Hints(filename).Kind; k != "" {
		return Result{Kind: k, Confidence: 0.9, Method: MethodFilename}
	}
	if f.Number != nil {
		switch {
		case reNumberIncoming.MatchString(*f.Number):
			return Result{Kind: model.KindIncoming, Confidence: 0.9, Method: MethodNumberPattern}
		case reNumberOutgoing.MatchString(*f.Number):
			return Result{Kind: model.KindOutgoing, Confidence: 0.9, Method: MethodNumberPattern}
		}
	} else if nonLetter(text) {
		return Result{Kind: model.KindOther, Confidence: 0.9, Method: MethodNonLetter}
	}

	if r.addressedToOffice(text, f) {
		return Result{Kind: model.KindIncoming, Confidence: 0.95, Method: MethodAddressedToOffice}
	}
	if r.ownLetterhead(text) {
		return Result{Kind: model.KindOutgoing, Confidence: 0.95, Method: MethodOfficeLetterhead}
	}
	if n := hits(outgoingIndicators, text); n >= outgoingMinHits {
		return Result{Kind: model.KindOutgoing, Confidence: score(0.6, n, 0.95), Method: MethodOutgoingIndicators}
	}
	if n := hits(letterIndicators, text); n > 0 {
		return Result{Kind: model.KindIncoming, Confidence: score(0.55, n, 0.9), Method: MethodLetterIndicators}
	}
	return Result{Kind: model.KindOther, Confidence: 0.6, Method: MethodDefault}
}

func (r *Rules) addressedToOffice(text string, f metadata.Fields) bool {
	if r.addressed == nil {
		return false
	}
	if f.Recipient != nil && r.addressed.MatchString("kepada "+*f.Recipient) {
		return true
	}
	return r.addressed.MatchString(text)
}

// ownLetterhead looks for the office name in capitals near the top of the page.
func (r *Rules) ownLetterhead(text string) bool {
	if r.office == nil {
		return false
	}
	lines := strings.SplitN(text, "\n", letterheadLines+1)
	if len(lines) > letterheadLines {
		lines = lines[:letterheadLines]
	}
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" && l == strings.ToUpper(l) && r.office.MatchString(l) {
			return true
		}
	}
	return false
}

func nonLetter(text string) bool {
	head := text
	if len(head) > nonLetterSpan {
		head = head[:nonLetterSpan]
	}
	head = strings.ToUpper(head)
	for _, kw := range nonLetterKeywords {
		if strings.Contains(head, kw) {
			return true
		}
	}
	return false
}

func hits(res []*regexp.Regexp, text string) int {
	n := 0
	for _, re := range res {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}

// score grows by 0.1 per hit from base, capped, rounded to two decimals.
func score(base float64, n int, limit float64) float64 {
	return math.Round(math.Min(limit, base+0.1*float64(n))*100) / 100
}

func wordsPattern(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, `\s+`)
}
