package memory

import (
	"context"
	"sort"
	"testing"
	"time"
)

func TestStateStoreGetSetList(t *testing.T) {
	ctx := context.Background()
	store := NewStateStore()
	defer store.Close()

	if _, ok, _ := store.Get(ctx, "phase"); ok {
		t.Fatalf("expected missing key")
	}

	if err := store.Set(ctx, "phase", []byte(`"lobby"`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw, ok, err := store.Get(ctx, "phase")
	if err != nil || !ok || string(raw) != `"lobby"` {
		t.Fatalf("get: %s ok=%v err=%v", raw, ok, err)
	}

	_ = store.Set(ctx, "participant:u1", []byte(`{}`))
	_ = store.Set(ctx, "participant:u2", []byte(`{}`))
	records, err := store.List(ctx, "participant:")
	if err != nil || len(records) != 2 {
		t.Fatalf("expected 2 participant keys, got %d (%v)", len(records), err)
	}
}

func TestStateStoreObserveDeliversBatches(t *testing.T) {
	ctx := context.Background()
	store := NewStateStore()
	defer store.Close()

	got := make(chan []string, 8)
	cancel := store.Observe(func(keys []string) { got <- keys })
	defer cancel()

	err := store.SetAll(ctx, map[string][]byte{
		"currentQ":       []byte(`{}`),
		"qIndex":         []byte(`0`),
		"roundStartedAt": []byte(`123`),
	})
	if err != nil {
		t.Fatalf("set all: %v", err)
	}

	keys := waitKeys(t, got)
	sort.Strings(keys)
	want := []string{"currentQ", "qIndex", "roundStartedAt"}
	if len(keys) != 3 || keys[0] != want[0] || keys[1] != want[1] || keys[2] != want[2] {
		t.Fatalf("expected one notification with all three keys, got %v", keys)
	}
}

func TestStateStoreObserveCancel(t *testing.T) {
	ctx := context.Background()
	store := NewStateStore()
	defer store.Close()

	got := make(chan []string, 8)
	cancel := store.Observe(func(keys []string) { got <- keys })
	cancel()

	_ = store.Set(ctx, "phase", []byte(`"playing"`))
	select {
	case keys := <-got:
		t.Fatalf("cancelled observer received %v", keys)
	case <-time.After(100 * time.Millisecond):
	}
}

func waitKeys(t *testing.T, ch <-chan []string) []string {
	t.Helper()
	select {
	case keys := <-ch:
		return keys
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for change notification")
		return nil
	}
}
