// Package translate implements the worker's TranslationModel as a small
// built-in phrase table keyed by (source_language, target_language),
// falling back to verbatim passthrough for unknown pairs or tokens
// (§4.3.1).
package translate

import (
	"strings"
)

// Model translates text from a source language into a fixed target
// language.
type Model interface {
	Translate(text, sourceLanguage, targetLanguage string) string
}

// PhraseTableModel translates token-by-token via a built-in lexicon, with
// unknown tokens passed through unchanged.
type PhraseTableModel struct {
	// table[sourceLanguage][targetLanguage][token] -> translated token
	table map[string]map[string]map[string]string
}

// NewPhraseTableModel builds a PhraseTableModel seeded with a small set of
// common travel-review phrases across a handful of languages. It is a
// stand-in for a real MT engine: enough coverage to exercise the
// multi-language-merge scenario deterministically, not a translation
// service.
func NewPhraseTableModel() *PhraseTableModel {
	return &PhraseTableModel{table: defaultPhraseTable()}
}

// Translate returns text translated word-by-word from sourceLanguage into
// targetLanguage. If sourceLanguage equals targetLanguage, or either is
// empty, or no phrase table exists for the pair, text is returned verbatim
// (§4.3: "returns the input verbatim").
func (m *PhraseTableModel) Translate(text, sourceLanguage, targetLanguage string) string {
	sourceLanguage = strings.ToLower(sourceLanguage)
	targetLanguage = strings.ToLower(targetLanguage)
	if sourceLanguage == "" || sourceLanguage == targetLanguage {
		return text
	}
	byTarget, ok := m.table[sourceLanguage]
	if !ok {
		return text
	}
	lexicon, ok := byTarget[targetLanguage]
	if !ok {
		return text
	}

	words := strings.Fields(text)
	for i, w := range words {
		lower := strings.ToLower(w)
		if translated, ok := lexicon[lower]; ok {
			words[i] = translated
		}
	}
	return strings.Join(words, " ")
}

func defaultPhraseTable() map[string]map[string]map[string]string {
	return map[string]map[string]map[string]string{
		"es": {
			"en": {
				"hola":      "hello",
				"playa":     "beach",
				"hermosa":   "beautiful",
				"vista":     "view",
				"increible": "incredible",
				"gracias":   "thanks",
				"comida":    "food",
				"excelente": "excellent",
			},
		},
		"fr": {
			"en": {
				"bonjour":    "hello",
				"plage":      "beach",
				"belle":      "beautiful",
				"vue":        "view",
				"incroyable": "incredible",
				"merci":      "thanks",
				"nourriture": "food",
				"excellent":  "excellent",
			},
		},
		"de": {
			"en": {
				"hallo":      "hello",
				"strand":     "beach",
				"schon":      "beautiful",
				"aussicht":   "view",
				"unglaublich": "incredible",
				"danke":      "thanks",
				"essen":      "food",
			},
		},
	}
}
