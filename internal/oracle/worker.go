package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"peerquiz/internal/domain"
)

// Worker is the oracle actor. It processes one request at a time from its
// inbox, so the question set needs no locking; the set is replaced wholesale
// by LOAD and read by everything else.
type Worker struct {
	loader   SourceLoader
	filter   *Filter
	requests chan Request
	replies  chan Reply

	questions []domain.Question
}

// NewWorker builds a worker over the given loader and filter.
func NewWorker(loader SourceLoader, filter *Filter) *Worker {
	if filter == nil {
		filter = NewFilter(nil)
	}
	return &Worker{
		loader:   loader,
		filter:   filter,
		requests: make(chan Request, 16),
		replies:  make(chan Reply, 16),
	}
}

// Run drains the inbox until ctx is cancelled. Call in its own goroutine.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.requests:
			select {
			case w.replies <- w.handle(ctx, req):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, req Request) Reply {
	data, err := w.dispatch(ctx, req)
	if err != nil {
		return Reply{OK: false, RequestID: req.RequestID, Error: err.Error()}
	}
	return Reply{OK: true, RequestID: req.RequestID, Data: data}
}

func (w *Worker) dispatch(ctx context.Context, req Request) (json.RawMessage, error) {
	switch req.Type {
	case MsgLoad:
		var p loadPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad LOAD payload: %w", err)
		}
		stats, err := w.load(ctx, p.Source)
		if err != nil {
			return nil, err
		}
		return json.Marshal(stats)

	case MsgQuestion:
		var p indexPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad GET_Q payload: %w", err)
		}
		if p.Index < 0 || p.Index >= len(w.questions) {
			return json.Marshal(nil)
		}
		return json.Marshal(w.questions[p.Index].Public())

	case MsgScore:
		var p scorePayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad SCORE payload: %w", err)
		}
		return json.Marshal(w.score(p))

	case MsgLength:
		return json.Marshal(lengthData{Length: len(w.questions)})

	case MsgReveal:
		var p indexPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return nil, fmt.Errorf("bad REVEAL payload: %w", err)
		}
		if p.Index < 0 || p.Index >= len(w.questions) {
			return json.Marshal(nil)
		}
		return json.Marshal(revealData{Answer: w.questions[p.Index].Answer})

	default:
		return nil, fmt.Errorf("unknown message type %q", req.Type)
	}
}

// load replaces the held question set with the accepted subset of the source.
func (w *Worker) load(ctx context.Context, ref string) (domain.LoadStats, error) {
	entries, err := w.loader.LoadSource(ctx, ref)
	if err != nil {
		return domain.LoadStats{}, err
	}

	accepted := make([]domain.Question, 0, len(entries))
	for _, raw := range entries {
		q, ok := parseQuestion(raw)
		if !ok || w.filter.Banned(q) {
			continue
		}
		accepted = append(accepted, q)
	}
	w.questions = accepted

	return domain.LoadStats{
		Total:    len(entries),
		Accepted: len(accepted),
		Filtered: len(entries) - len(accepted),
	}, nil
}

func (w *Worker) score(p scorePayload) scoreData {
	if p.Index < 0 || p.Index >= len(w.questions) {
		return scoreData{Scored: []scoreVerdict{}}
	}
	correct := w.questions[p.Index].Answer
	scored := make([]scoreVerdict, 0, len(p.Submissions))
	for _, s := range p.Submissions {
		scored = append(scored, scoreVerdict{ID: s.ID, Correct: s.Answer == correct})
	}
	return scoreData{Scored: scored}
}

// parseQuestion validates one source entry: a text string, an option list and
// a numeric correct index are required, the time limit is optional. Entries
// that fail to decode are dropped, not errors.
func parseQuestion(raw json.RawMessage) (domain.Question, bool) {
	var probe struct {
		Text    *string   `json:"q"`
		Options *[]string `json:"opts"`
		Answer  *float64  `json:"a"`
		Limit   *float64  `json:"t"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return domain.Question{}, false
	}
	if probe.Text == nil || probe.Options == nil || probe.Answer == nil {
		return domain.Question{}, false
	}
	q := domain.Question{
		Text:    *probe.Text,
		Options: append([]string(nil), (*probe.Options)...),
		Answer:  int(*probe.Answer),
	}
	if probe.Limit != nil {
		q.TimeLimitSeconds = int(*probe.Limit)
	}
	return q, true
}
