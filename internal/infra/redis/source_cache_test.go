package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"peerquiz/internal/domain"
	"peerquiz/internal/infra/memory"
	"peerquiz/internal/oracle"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSourceCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	loader := &countingLoader{
		SourceLoader: memory.NewStaticSourceLoader(map[string][]domain.Question{
			"quiz-1": {{Text: "pick", Options: []string{"a", "b"}, Answer: 1}},
		}),
	}
	cache := NewSourceCache(client, loader, time.Minute)

	entries, err := cache.LoadSource(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 1 || loader.calls != 1 {
		t.Fatalf("expected 1 entry from 1 loader call, got %d/%d", len(entries), loader.calls)
	}
	if !mr.Exists("quizsrc:quiz-1") {
		t.Fatalf("expected redis cache key to be set")
	}

	// Second call should hit cache, loader not incremented.
	if _, err := cache.LoadSource(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("load 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
}

type countingLoader struct {
	oracle.SourceLoader
	calls int
}

func (l *countingLoader) LoadSource(ctx context.Context, ref string) ([]json.RawMessage, error) {
	l.calls++
	return l.SourceLoader.LoadSource(ctx, ref)
}
