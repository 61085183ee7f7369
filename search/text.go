package search

import "strings"

// Stop words ignored when counting keyword matches
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "or": true, "we": true, "i": true, "so": true,
}

// phraseBonus is added when the whole query appears verbatim in a chunk.
const phraseBonus = 2

// tokenizeAndFilter splits text into words, lowercases, trims punctuation, and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// normalizePhrase lowercases text and collapses its whitespace.
func normalizePhrase(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// lexicalQuery is a query prepared for repeated scoring.
type lexicalQuery struct {
	terms  map[string]bool
	phrase string
}

func newLexicalQuery(text string) lexicalQuery {
	terms := make(map[string]bool)
	for _, t := range tokenizeAndFilter(text) {
		terms[t] = true
	}
	return lexicalQuery{terms: terms, phrase: normalizePhrase(text)}
}

// score counts occurrences of query terms in document and adds
// phraseBonus when the full phrase appears. Zero means no match.
func (q lexicalQuery) score(document string) int {
	n := 0
	if len(q.terms) > 0 {
		for _, word := range tokenizeAndFilter(document) {
			if q.terms[word] {
				n++
			}
		}
	}
	if q.phrase != "" && strings.Contains(normalizePhrase(document), q.phrase) {
		n += phraseBonus
	}
	return n
}
