// Package detect wraps whatlanggo into the worker's LanguageDetector
// interface, mapping its language enum down to the two-letter codes the
// data model stores (§4.3.1).
package detect

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Detector detects the natural language of a piece of text.
type Detector interface {
	Detect(text string) (languageCode string, confidence float64)
}

// WhatlangDetector is the worker's production LanguageDetector.
type WhatlangDetector struct{}

// NewWhatlangDetector builds a Detector backed by whatlanggo.
func NewWhatlangDetector() *WhatlangDetector { return &WhatlangDetector{} }

// Detect returns a lowercase two-letter ISO 639-1 code and the detector's
// confidence in [0,1]. Empty or whitespace-only text detects as "und"
// (undetermined) with zero confidence rather than invoking whatlanggo on
// nothing meaningful to classify.
func (d *WhatlangDetector) Detect(text string) (string, float64) {
	if strings.TrimSpace(text) == "" {
		return "und", 0
	}
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" {
		return "und", info.Confidence
	}
	return strings.ToLower(code), info.Confidence
}
