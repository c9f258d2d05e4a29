package rerank

import (
	"context"
	"regexp"
	"strings"
	"unicode"
)

// Lexical scores, in [0, 1].
const (
	phraseMatchScore   = 1.0
	allWordsInOrder    = 0.8
	scatteredWordScore = 0.6
)

var phraseRegex = regexp.MustCompile(`["']([^"']+)["']`)

// LexicalScorer is a TextScorer that needs no model: it matches query terms and quoted
// phrases against the description. It is the offline fallback for the cross-encoder.
type LexicalScorer struct{}

// NewLexicalScorer returns a LexicalScorer.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

// ScorePair implements TextScorer. A description containing a negated term ("-dog")
// scores zero.
func (s *LexicalScorer) ScorePair(_ context.Context, query, text string) (float64, error) {
	q := analyzeQuery(query)
	text = strings.ToLower(text)
	for _, neg := range q.negated {
		if strings.Contains(text, neg) {
			return 0, nil
		}
	}

	score := 0.0
	for _, phrase := range q.phrases {
		if strings.Contains(text, phrase) {
			score = phraseMatchScore
		}
	}
	score = max(score, termScore(q.terms, text))
	return score, nil
}

func termScore(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	matched := 0
	for _, term := range terms {
		if strings.Contains(text, term) {
			matched++
		}
	}
	switch {
	case matched == 0:
		return 0
	case matched == len(terms) && termsInOrder(terms, text):
		return allWordsInOrder
	default:
		return scatteredWordScore * float64(matched) / float64(len(terms))
	}
}

func termsInOrder(terms []string, text string) bool {
	last := -1
	for _, term := range terms {
		pos := strings.Index(text[last+1:], term)
		if pos == -1 {
			return false
		}
		last = last + 1 + pos
	}
	return true
}

type analyzedQuery struct {
	terms   []string
	phrases []string
	negated []string
}

// analyzeQuery splits a query into quoted phrases, negated terms ("-term") and plain terms.
// Boolean operators and common stop words are ignored; terms from phrases are also matched
// on their own.
func analyzeQuery(query string) analyzedQuery {
	var q analyzedQuery
	for _, m := range phraseRegex.FindAllStringSubmatch(query, -1) {
		if phrase := strings.ToLower(strings.TrimSpace(m[1])); phrase != "" {
			q.phrases = append(q.phrases, phrase)
		}
	}
	seen := make(map[string]bool)
	add := func(word string) {
		if t := normalizeToken(word); t != "" && !stopWords[t] && !seen[t] {
			seen[t] = true
			q.terms = append(q.terms, t)
		}
	}
	for _, word := range strings.Fields(phraseRegex.ReplaceAllString(query, " ")) {
		switch {
		case strings.HasPrefix(word, "-"):
			if neg := normalizeToken(strings.TrimPrefix(word, "-")); neg != "" {
				q.negated = append(q.negated, neg)
			}
		case strings.EqualFold(word, "AND"), strings.EqualFold(word, "OR"), strings.EqualFold(word, "NOT"):
		default:
			add(word)
		}
	}
	for _, phrase := range q.phrases {
		for _, word := range strings.Fields(phrase) {
			add(word)
		}
	}
	return q
}

// normalizeToken lowercases a token and trims edge punctuation, keeping inner hyphens.
func normalizeToken(token string) string {
	return strings.TrimFunc(strings.ToLower(token), func(r rune) bool {
		return unicode.IsPunct(r) && r != '-' && r != '_'
	})
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true,
	"at": true, "with": true, "and": true, "or": true, "to": true, "is": true,
}
