package oracle

import (
	"strings"

	"peerquiz/internal/domain"
)

// defaultBannedTerms drops programming-themed questions from loaded content.
// Matching is case-insensitive substring over the question text and every
// option, so short terms cast a wide net on purpose.
var defaultBannedTerms = []string{
	"programming", "coding", "algorithm", "data structure", "compile",
	"runtime", "debug", "function", "method", "variable", "const",
	"array", "hash", "stack", "queue", "graph", "sort",
	"javascript", "typescript", "python", "java", "html", "css",
	"react", "vue", "node",
}

// Filter rejects questions containing banned terms.
type Filter struct {
	terms []string
}

// NewFilter builds a filter over the given terms; an empty list falls back to
// the default banned-term set.
func NewFilter(terms []string) *Filter {
	if len(terms) == 0 {
		terms = defaultBannedTerms
	}
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			lowered = append(lowered, strings.ToLower(t))
		}
	}
	return &Filter{terms: lowered}
}

// Banned reports whether the question text or any option contains a banned term.
func (f *Filter) Banned(q domain.Question) bool {
	if f.contains(q.Text) {
		return true
	}
	for _, opt := range q.Options {
		if f.contains(opt) {
			return true
		}
	}
	return false
}

func (f *Filter) contains(text string) bool {
	if text == "" {
		return false
	}
	s := strings.ToLower(text)
	for _, term := range f.terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
