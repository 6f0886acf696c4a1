package oracle

import (
	"context"
	"testing"
	"time"

	"peerquiz/internal/domain"
)

func newRunningWorker(t *testing.T, payload string) (*Worker, *Client) {
	t.Helper()
	w := NewWorker(&rawLoader{payload: payload}, NewFilter([]string{"unused"}))
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	c := NewClient(w)
	t.Cleanup(func() {
		c.Close()
		cancel()
	})
	return w, c
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, c := newRunningWorker(t, `[
		{"q":"pick","opts":["a","b"],"a":1},
		{"q":"pick again","opts":["a","b"],"a":0}
	]`)

	stats, err := c.Load(ctx, "any")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stats.Accepted != 2 {
		t.Fatalf("expected 2 accepted, got %+v", stats)
	}

	n, err := c.Length(ctx)
	if err != nil || n != 2 {
		t.Fatalf("expected length 2, got %d (%v)", n, err)
	}

	q, err := c.PublicQuestion(ctx, 1)
	if err != nil {
		t.Fatalf("question: %v", err)
	}
	if q == nil || q.Text != "pick again" {
		t.Fatalf("unexpected question: %+v", q)
	}

	missing, err := c.PublicQuestion(ctx, 5)
	if err != nil || missing != nil {
		t.Fatalf("out-of-range must be nil, got %+v (%v)", missing, err)
	}

	results, err := c.Score(ctx, 0, []domain.Submission{
		{ParticipantID: "u1", Option: 1},
		{ParticipantID: "u2", Option: 0},
	})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(results) != 2 || !results[0].Correct || results[1].Correct {
		t.Fatalf("unexpected results: %+v", results)
	}

	answer, ok, err := c.Reveal(ctx, 0)
	if err != nil || !ok || answer != 1 {
		t.Fatalf("expected reveal 1, got %d ok=%v (%v)", answer, ok, err)
	}
}

func TestClientIgnoresUnmatchedReplies(t *testing.T) {
	ctx := context.Background()
	w, c := newRunningWorker(t, `[{"q":"pick","opts":["a","b"],"a":0}]`)

	// A stray reply with an id nobody is waiting for must be dropped, and
	// subsequent calls must still correlate correctly.
	w.replies <- Reply{OK: true, RequestID: 99999}

	if _, err := c.Load(ctx, "any"); err != nil {
		t.Fatalf("load after stray reply: %v", err)
	}
	n, err := c.Length(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected length 1, got %d (%v)", n, err)
	}
}

func TestClientHonorsContextCancellation(t *testing.T) {
	w := NewWorker(&rawLoader{payload: `[]`}, nil)
	// Worker never runs, so no reply will ever arrive.
	c := NewClient(w)
	t.Cleanup(c.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Length(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}
