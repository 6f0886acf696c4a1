package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"peerquiz/internal/domain"
)

// Client is the caller side of the oracle channel. It assigns request IDs,
// correlates replies against outstanding calls, and drops replies whose ID
// matches nothing (for example after a caller gave up on a cancelled context).
type Client struct {
	requests chan<- Request
	replies  <-chan Reply

	seq  uint64
	mu   sync.Mutex
	wait map[uint64]chan Reply
	done chan struct{}
	once sync.Once
}

// NewClient wires a client to the worker's channels and starts the reply
// dispatcher. Close the client when the room is torn down.
func NewClient(w *Worker) *Client {
	c := &Client{
		requests: w.requests,
		replies:  w.replies,
		wait:     make(map[uint64]chan Reply),
		done:     make(chan struct{}),
	}
	go c.dispatch()
	return c
}

// Close stops the reply dispatcher.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) dispatch() {
	for {
		select {
		case <-c.done:
			return
		case rep := <-c.replies:
			c.mu.Lock()
			ch, ok := c.wait[rep.RequestID]
			if ok {
				delete(c.wait, rep.RequestID)
			}
			c.mu.Unlock()
			if ok {
				ch <- rep
			}
		}
	}
}

func (c *Client) call(ctx context.Context, typ MsgType, payload any) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}

	id := atomic.AddUint64(&c.seq, 1)
	ch := make(chan Reply, 1)

	c.mu.Lock()
	c.wait[id] = ch
	c.mu.Unlock()

	abandon := func() {
		c.mu.Lock()
		delete(c.wait, id)
		c.mu.Unlock()
	}

	select {
	case c.requests <- Request{Type: typ, Payload: raw, RequestID: id}:
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	case <-c.done:
		abandon()
		return nil, errors.New("oracle closed")
	}

	select {
	case rep := <-ch:
		if !rep.OK {
			return nil, errors.New(rep.Error)
		}
		return rep.Data, nil
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	case <-c.done:
		abandon()
		return nil, errors.New("oracle closed")
	}
}

// Load fetches, validates and filters a question collection, replacing the
// oracle's held set.
func (c *Client) Load(ctx context.Context, source string) (domain.LoadStats, error) {
	data, err := c.call(ctx, MsgLoad, loadPayload{Source: source})
	if err != nil {
		return domain.LoadStats{}, err
	}
	var stats domain.LoadStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return domain.LoadStats{}, fmt.Errorf("decode load stats: %w", err)
	}
	return stats, nil
}

// PublicQuestion returns the answer-free question at index, or nil when the
// index is out of bounds.
func (c *Client) PublicQuestion(ctx context.Context, index int) (*domain.PublicQuestion, error) {
	data, err := c.call(ctx, MsgQuestion, indexPayload{Index: index})
	if err != nil {
		return nil, err
	}
	if isJSONNull(data) {
		return nil, nil
	}
	var q domain.PublicQuestion
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("decode question: %w", err)
	}
	return &q, nil
}

// Score grades a batch of submissions against the question at index. An
// out-of-bounds index yields an empty result, not an error.
func (c *Client) Score(ctx context.Context, index int, subs []domain.Submission) ([]domain.ScoreResult, error) {
	payload := scorePayload{Index: index, Submissions: make([]scoreSubmission, 0, len(subs))}
	for _, s := range subs {
		payload.Submissions = append(payload.Submissions, scoreSubmission{ID: s.ParticipantID, Answer: s.Option})
	}
	data, err := c.call(ctx, MsgScore, payload)
	if err != nil {
		return nil, err
	}
	var out scoreData
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode score result: %w", err)
	}
	results := make([]domain.ScoreResult, 0, len(out.Scored))
	for _, v := range out.Scored {
		results = append(results, domain.ScoreResult{ParticipantID: v.ID, Correct: v.Correct})
	}
	return results, nil
}

// Length reports the count of currently accepted questions.
func (c *Client) Length(ctx context.Context) (int, error) {
	data, err := c.call(ctx, MsgLength, struct{}{})
	if err != nil {
		return 0, err
	}
	var out lengthData
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("decode length: %w", err)
	}
	return out.Length, nil
}

// Reveal returns the bare correct-answer index for a round. Host-only
// diagnostic; the transport layer must gate it behind a host check.
func (c *Client) Reveal(ctx context.Context, index int) (int, bool, error) {
	data, err := c.call(ctx, MsgReveal, indexPayload{Index: index})
	if err != nil {
		return 0, false, err
	}
	if isJSONNull(data) {
		return 0, false, nil
	}
	var out revealData
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, false, fmt.Errorf("decode reveal: %w", err)
	}
	return out.Answer, true, nil
}

func isJSONNull(data json.RawMessage) bool {
	return len(data) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}
