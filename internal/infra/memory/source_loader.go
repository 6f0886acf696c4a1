package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"peerquiz/internal/domain"
)

// StaticSourceLoader serves question collections from an in-memory map
// (useful for tests/demos).
type StaticSourceLoader struct {
	sources map[string][]domain.Question
}

func NewStaticSourceLoader(sources map[string][]domain.Question) *StaticSourceLoader {
	return &StaticSourceLoader{sources: sources}
}

func (l *StaticSourceLoader) LoadSource(_ context.Context, ref string) ([]json.RawMessage, error) {
	questions, ok := l.sources[ref]
	if !ok {
		return nil, fmt.Errorf("source %q not found", ref)
	}
	entries := make([]json.RawMessage, 0, len(questions))
	for _, q := range questions {
		raw, err := json.Marshal(q)
		if err != nil {
			return nil, err
		}
		entries = append(entries, raw)
	}
	return entries, nil
}
