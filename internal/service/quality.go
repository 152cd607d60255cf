package service

import (
	"fmt"

	"arsip/internal/classifier"
	"arsip/internal/extract"
	"arsip/internal/metadata"
	"arsip/internal/model"
)

// Quality rates how complete the extracted metadata is, from 0 to 100.
type Quality struct {
	Score    int      `json:"score"`
	Warnings []string `json:"warnings"`
}

const (
	shortTextChars    = 100
	thinOCRTextChars  = 300
	lowOCRSuccessRate = 50
)

// assessQuality weighs the fields found. A subject is required of outgoing letters and only
// a bonus on the others.
func assessQuality(f metadata.Fields, cls classifier.Result, res extract.Result) Quality {
	q := Quality{Warnings: []string{}}
	check := func(ok bool, weight int, warning string) {
		if ok {
			q.Score += weight
			return
		}
		q.Warnings = append(q.Warnings, warning)
	}
	check(f.Number != nil, 30, "letter number not found")
	check(f.Date != nil && !f.YearOnly, 20, "letter date not found")
	check(f.Date != nil, 10, "year not found")
	check(cls.Method != classifier.MethodDefault, 10, "kind could not be determined")

	switch {
	case cls.Kind == model.KindOutgoing:
		check(f.Subject != nil, 25, "subject not found (required for outgoing letters)")
	case f.Subject != nil:
		q.Score += 15
	}

	penalize := func(n int, warning string) {
		q.Warnings = append(q.Warnings, warning)
		q.Score = max(0, q.Score-n)
	}
	chars := len([]rune(res.Text))
	switch {
	case chars < shortTextChars:
		penalize(15, "extracted text is very short")
	case res.UsedOCR && chars < thinOCRTextChars:
		penalize(5, "ocr text looks incomplete")
	}
	if res.UsedOCR && res.OCRStats != nil && res.OCRStats.SuccessRate < lowOCRSuccessRate {
		penalize(10, fmt.Sprintf("low ocr success rate (%.1f%%)", res.OCRStats.SuccessRate))
	}
	q.Score = min(q.Score, 100)
	return q
}
