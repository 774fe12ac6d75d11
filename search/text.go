package search

import (
	"strings"
	"unicode"
)

// stopWords are dropped by ContentTokens.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "or": true, "my": true, "i": true, "what": true,
	"does": true, "if": true, "your": true,
}

// Tokenize lowercases text and splits it into runs of letters and digits.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ContentTokens is Tokenize with stop words removed. "not" is kept because
// it flips the meaning of coverage language.
func ContentTokens(text string) []string {
	tokens := Tokenize(text)
	filtered := tokens[:0]
	for _, t := range tokens {
		if !stopWords[t] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}
