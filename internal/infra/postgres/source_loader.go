package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

// SourceLoader loads question collections from Postgres, where the ref is a
// question-set ID and the payload is a JSONB array in the source format.
type SourceLoader struct {
	pool *pgxpool.Pool
}

func NewSourceLoader(pool *pgxpool.Pool) *SourceLoader {
	return &SourceLoader{pool: pool}
}

func (l *SourceLoader) LoadSource(ctx context.Context, ref string) ([]json.RawMessage, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM question_sets WHERE id=$1`, ref).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("load question set: %w", err)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal question set: %w", err)
	}
	return entries, nil
}
