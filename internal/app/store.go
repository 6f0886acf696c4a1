package app

import (
	"context"

	"peerquiz/internal/domain"
)

// StateStore abstracts the replicated session mapping a room is built on
// (in-memory, Redis, etc). Values are JSON; per-key semantics are
// last-write-wins and change notifications carry no ordering guarantee, so
// callers must never depend on instant visibility.
type StateStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetAll writes a batch of keys as one transaction, so observers never
	// see a partial update from a single local writer.
	SetAll(ctx context.Context, entries map[string][]byte) error
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	// Observe registers a callback invoked with the changed keys after each
	// write becomes visible. The returned cancel unregisters it.
	Observe(fn func(keys []string)) (cancel func())
}

// ContentOracle is the coordinator's view of the host-side content worker.
// The full question set, answers included, stays behind this boundary.
type ContentOracle interface {
	Load(ctx context.Context, source string) (domain.LoadStats, error)
	PublicQuestion(ctx context.Context, index int) (*domain.PublicQuestion, error)
	Score(ctx context.Context, index int, subs []domain.Submission) ([]domain.ScoreResult, error)
	Length(ctx context.Context) (int, error)
	Reveal(ctx context.Context, index int) (int, bool, error)
}
