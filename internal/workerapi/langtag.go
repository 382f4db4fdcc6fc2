package workerapi

import (
	"strings"

	"golang.org/x/text/language"
)

// canonicalTwoLetter reduces a BCP-47-ish tag (the spec's "eng_Latn"
// style canonical target language, §4.3) to the two-letter ISO 639-1 code
// the detect/translate models key on. Tags already in two-letter form pass
// through unchanged.
func canonicalTwoLetter(tag string) string {
	normalized := strings.ReplaceAll(tag, "_", "-")
	t, err := language.Parse(normalized)
	if err != nil {
		return strings.ToLower(tag)
	}
	base, _ := t.Base()
	return strings.ToLower(base.String())
}
