package chunkstore

import (
	"math"
	"strings"
)

// Stop words to filter out of fallback search terms
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "how": true, "what": true, "can": true, "about": true,
}

const minTermLength = 3

// Relevance weights for the text fallback.
const (
	titleMatchWeight   = 0.4
	contentMatchWeight = 0.2
	titleWordBonus     = 0.2
	contentWordBonus   = 0.1
	maxTermScore       = titleMatchWeight + contentMatchWeight + titleWordBonus + contentWordBonus
	minMatchScore      = 0.5
)

// tokenize splits text into words, lowercases them and trims punctuation.
func tokenize(text string) []string {
	words := strings.Fields(text)
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
		if cleaned != "" {
			tokens = append(tokens, cleaned)
		}
	}
	return tokens
}

// searchTerms returns the distinct query words worth matching on.
func searchTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, token := range tokenize(query) {
		if len([]rune(token)) < minTermLength || stopWords[token] || seen[token] {
			continue
		}
		seen[token] = true
		terms = append(terms, token)
	}
	return terms
}

// textRelevance scores how well title and content match terms. Substring
// matches count toward the score and exact word matches add a bonus. The
// result is normalized to [0, 1] and raised to minMatchScore when any term
// matched at all.
func textRelevance(title, content string, terms []string) float32 {
	if len(terms) == 0 {
		return 0
	}
	titleLower := strings.ToLower(title)
	contentLower := strings.ToLower(content)
	titleWords := wordSet(title)
	contentWords := wordSet(content)

	var score float64
	matched := false
	for _, term := range terms {
		if strings.Contains(titleLower, term) {
			score += titleMatchWeight
			matched = true
		}
		if strings.Contains(contentLower, term) {
			score += contentMatchWeight
			matched = true
		}
		if titleWords[term] {
			score += titleWordBonus
		}
		if contentWords[term] {
			score += contentWordBonus
		}
	}
	if !matched {
		return 0
	}

	normalized := math.Min(score/(float64(len(terms))*maxTermScore), 1)
	return float32(math.Max(normalized, minMatchScore))
}

func wordSet(text string) map[string]bool {
	tokens := tokenize(text)
	set := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		set[token] = true
	}
	return set
}
