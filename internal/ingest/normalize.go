package ingest

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Punctuation and formatting constants.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

// Normalizer cleans record text for synthesis. The stored record content is
// never mutated: normalization is applied to the copy sent to the service.
type Normalizer struct {
	whitespacePattern *regexp.Regexp
	punctuationFixer  *strings.Replacer
}

// NewNormalizer creates a normalizer with its patterns compiled upfront.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		whitespacePattern: regexp.MustCompile(`\s+`),
		punctuationFixer: strings.NewReplacer(
			emDash, "-",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// NormalizeForSpeech collapses whitespace, normalizes quotes and dashes, and
// ensures the text ends with sentence punctuation so the synthesis model
// does not trail off mid-phrase.
func (n *Normalizer) NormalizeForSpeech(text string) string {
	collapsed := n.whitespacePattern.ReplaceAllString(text, " ")
	cleaned := n.punctuationFixer.Replace(strings.TrimSpace(collapsed))

	return ensureSentenceEnding(cleaned)
}

// ensureSentenceEnding appends a period when the text does not already end
// with sentence-ending punctuation.
func ensureSentenceEnding(text string) string {
	if text == "" {
		return ""
	}

	lastChar, _ := utf8.DecodeLastRuneInString(text)
	if !unicode.IsPunct(lastChar) {
		return text + "."
	}

	switch lastChar {
	case '.', '!', '?':
		return text
	default:
		return text + "."
	}
}
