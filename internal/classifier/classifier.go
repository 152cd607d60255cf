// Package classifier assigns a document kind. Strategies share one contract so the rule
// cascade can be replaced or chained with a learned model.
package classifier

import (
	"arsip/internal/metadata"
	"arsip/internal/model"
)

const (
	MethodFilename           = "filename"
	MethodNumberPattern      = "number-pattern"
	MethodNonLetter          = "non-letter"
	MethodAddressedToOffice  = "addressed-to-office"
	MethodOfficeLetterhead   = "office-letterhead"
	MethodOutgoingIndicators = "outgoing-indicators"
	MethodLetterIndicators   = "letter-indicators"
	MethodDefault            = "default"
	// MethodManual marks a kind set by hand through an edit.
	MethodManual             = "manual"
)

type Result struct {
	Kind       model.Kind `json:"kind"`
	Confidence float64    `json:"confidence"`
	Method     string     `json:"method"`
}

type Classifier interface {
	Classify(text, filename string, f metadata.Fields) Result
}

// Func adapts a plain function to Classifier.
type Func func(text, filename string, f metadata.Fields) Result

func (fn Func) Classify(text, filename string, f metadata.Fields) Result {
	return fn(text, filename, f)
}

// Chain asks each strategy in turn and returns the first result whose confidence reaches
// the threshold. When none does, the most confident result wins.
type Chain struct {
	threshold  float64
	strategies []Classifier
}

func NewChain(threshold float64, strategies ...Classifier) *Chain {
	return &Chain{threshold: threshold, strategies: strategies}
}

func (c *Chain) Classify(text, filename string, f metadata.Fields) Result {
	best := Result{Kind: model.KindOther, Method: MethodDefault}
	for _, s := range c.strategies {
		r := s.Classify(text, filename, f)
		if !r.Kind.Valid() {
			continue
		}
		if r.Confidence >= c.threshold {
			return r
		}
		if r.Confidence > best.Confidence {
			best = r
		}
	}
	return best
}
