package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"peerquiz/internal/domain"
)

// Shared session state keys. These names are the wire contract between
// participants; reference clients read the same fields.
const (
	keyPhase          = "phase"
	keyQIndex         = "qIndex"
	keyCurrentQ       = "currentQ"
	keyRoundStartedAt = "roundStartedAt"
	participantPrefix = "participant:"
)

// Coordinator drives one session: it enforces host-only transitions, runs the
// round lifecycle, and reconciles pending submissions into scores through the
// content oracle. Operations serialize on an internal mutex, standing in for
// the single event loop each participant runs in the browser setting.
type Coordinator struct {
	store  StateStore
	oracle ContentOracle
	now    func() time.Time
	mu     sync.Mutex
}

func NewCoordinator(store StateStore, oracle ContentOracle) *Coordinator {
	return NewCoordinatorWithClock(store, oracle, time.Now)
}

// NewCoordinatorWithClock allows deterministic deadlines in tests.
func NewCoordinatorWithClock(store StateStore, oracle ContentOracle, now func() time.Time) *Coordinator {
	return &Coordinator{store: store, oracle: oracle, now: now}
}

// Observe subscribes to state change notifications.
func (c *Coordinator) Observe(fn func(keys []string)) (cancel func()) {
	return c.store.Observe(fn)
}

// Join creates the participant's record if absent and seeds the session keys
// on first contact. Idempotent: joining twice is a no-op.
func (c *Coordinator) Join(ctx context.Context, participantID, nickname string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok, err := c.store.Get(ctx, keyPhase); err != nil {
		return err
	} else if !ok {
		if err := c.setJSON(ctx, keyPhase, domain.PhaseLobby); err != nil {
			return err
		}
	}
	if _, ok, err := c.store.Get(ctx, keyQIndex); err != nil {
		return err
	} else if !ok {
		if err := c.setJSON(ctx, keyQIndex, -1); err != nil {
			return err
		}
	}

	if _, ok, err := c.participant(ctx, participantID); err != nil {
		return err
	} else if ok {
		return nil
	}
	return c.setParticipant(ctx, participantID, domain.Participant{Nickname: nickname})
}

// ClaimHost marks the participant as host. There is no mutual exclusion:
// several participants may hold the flag at once, matching the permissive
// self-claim model of the shared document.
func (c *Coordinator) ClaimHost(ctx context.Context, participantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok, err := c.participant(ctx, participantID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrParticipantNotFound
	}
	rec.Host = true
	return c.setParticipant(ctx, participantID, rec)
}

// IsHost reports whether the participant currently holds the host flag.
func (c *Coordinator) IsHost(ctx context.Context, participantID string) bool {
	rec, ok, err := c.participant(ctx, participantID)
	return err == nil && ok && rec.Host
}

// LoadContent asks the oracle to fetch and filter a question collection.
// Host-only; the returned stats are for the caller, not replicated.
func (c *Coordinator) LoadContent(ctx context.Context, callerID, source string) (domain.LoadStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireHost(ctx, callerID); err != nil {
		return domain.LoadStats{}, err
	}
	return c.oracle.Load(ctx, source)
}

// StartGame moves the session into play and publishes round zero. Rejected
// when the caller is not host or no content has been loaded.
func (c *Coordinator) StartGame(ctx context.Context, callerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireHost(ctx, callerID); err != nil {
		return err
	}
	n, err := c.oracle.Length(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNoQuestions
	}
	return c.publishRound(ctx, 0, map[string]json.RawMessage{keyPhase: mustJSON(domain.PhasePlaying)})
}

// PublishRound publishes the question at index as the current round.
func (c *Coordinator) PublishRound(ctx context.Context, callerID string, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireHost(ctx, callerID); err != nil {
		return err
	}
	return c.publishRound(ctx, index, nil)
}

// SubmitAnswer records the participant's choice for the current round.
// Submissions with no open round or past the round deadline are dropped
// silently; resubmitting before scoring overwrites the pending value.
func (c *Coordinator) SubmitAnswer(ctx context.Context, participantID string, option int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var q *domain.PublicQuestion
	ok, err := c.getJSON(ctx, keyCurrentQ, &q)
	if err != nil {
		return err
	}
	if !ok || q == nil {
		return nil
	}

	idx, err := c.qIndex(ctx)
	if err != nil {
		return err
	}

	if q.TimeLimitSeconds > 0 {
		var startedAt int64
		if ok, err := c.getJSON(ctx, keyRoundStartedAt, &startedAt); err != nil {
			return err
		} else if ok {
			deadline := startedAt + int64(q.TimeLimitSeconds)*1000
			if c.now().UnixMilli() > deadline {
				return nil
			}
		}
	}

	rec, joined, err := c.participant(ctx, participantID)
	if err != nil {
		return err
	}
	if !joined {
		return nil
	}
	opt := option
	round := idx
	rec.Pending = &opt
	rec.PendingRound = &round
	rec.LastAnswer = &opt
	return c.setParticipant(ctx, participantID, rec)
}

// ScoreRound grades every pending submission for the current round and folds
// the verdicts into participant scores. Pendings stamped with an older round
// are discarded without credit. Idempotent per round: once pendings are
// cleared, a second call does nothing and the oracle is not consulted.
func (c *Coordinator) ScoreRound(ctx context.Context, callerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireHost(ctx, callerID); err != nil {
		return err
	}
	return c.scoreRound(ctx)
}

// AdvanceRound scores the open round and either publishes the next question
// or, when none are left, ends the session.
func (c *Coordinator) AdvanceRound(ctx context.Context, callerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireHost(ctx, callerID); err != nil {
		return err
	}
	if err := c.scoreRound(ctx); err != nil {
		return err
	}

	idx, err := c.qIndex(ctx)
	if err != nil {
		return err
	}
	n, err := c.oracle.Length(ctx)
	if err != nil {
		return err
	}
	if idx+1 >= n {
		return c.finish(ctx)
	}
	return c.publishRound(ctx, idx+1, nil)
}

// EndGame scores the open round best-effort and moves to the result phase
// unconditionally.
func (c *Coordinator) EndGame(ctx context.Context, callerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireHost(ctx, callerID); err != nil {
		return err
	}
	// Scoring failure must not block ending the game.
	_ = c.scoreRound(ctx)
	return c.finish(ctx)
}

// RevealAnswer returns the bare correct index for a round. Host-only
// diagnostic; never reaches non-host callers.
func (c *Coordinator) RevealAnswer(ctx context.Context, callerID string, index int) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireHost(ctx, callerID); err != nil {
		return 0, false, err
	}
	return c.oracle.Reveal(ctx, index)
}

// Snapshot renders the whole replicated session for display.
func (c *Coordinator) Snapshot(ctx context.Context) (domain.SessionSnapshot, error) {
	snap := domain.SessionSnapshot{
		Phase:        domain.PhaseLobby,
		QIndex:       -1,
		Participants: make(map[string]domain.Participant),
	}

	if _, err := c.getJSON(ctx, keyPhase, &snap.Phase); err != nil {
		return snap, err
	}
	if _, err := c.getJSON(ctx, keyQIndex, &snap.QIndex); err != nil {
		return snap, err
	}
	var q *domain.PublicQuestion
	if ok, err := c.getJSON(ctx, keyCurrentQ, &q); err != nil {
		return snap, err
	} else if ok {
		snap.CurrentQ = q
	}
	if _, err := c.getJSON(ctx, keyRoundStartedAt, &snap.RoundStartedAt); err != nil {
		return snap, err
	}

	records, err := c.store.List(ctx, participantPrefix)
	if err != nil {
		return snap, err
	}
	for key, raw := range records {
		var rec domain.Participant
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		snap.Participants[strings.TrimPrefix(key, participantPrefix)] = rec
	}

	snap.Leaderboard = make([]domain.LeaderboardEntry, 0, len(snap.Participants))
	for id, rec := range snap.Participants {
		snap.Leaderboard = append(snap.Leaderboard, domain.LeaderboardEntry{
			ParticipantID: id,
			Nickname:      rec.Nickname,
			Score:         rec.Score,
		})
	}
	sort.Slice(snap.Leaderboard, func(i, j int) bool {
		a, b := snap.Leaderboard[i], snap.Leaderboard[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.ParticipantID < b.ParticipantID
	})
	return snap, nil
}

// publishRound fetches the answer-free question and writes currentQ, qIndex
// and roundStartedAt together, plus any extra keys, in one transaction. On a
// missing question nothing is written.
func (c *Coordinator) publishRound(ctx context.Context, index int, extra map[string]json.RawMessage) error {
	q, err := c.oracle.PublicQuestion(ctx, index)
	if err != nil {
		return err
	}
	if q == nil {
		return domain.ErrQuestionNotFound
	}

	entries := map[string][]byte{
		keyCurrentQ:       mustJSON(q),
		keyQIndex:         mustJSON(index),
		keyRoundStartedAt: mustJSON(c.now().UnixMilli()),
	}
	for k, v := range extra {
		entries[k] = v
	}
	return c.store.SetAll(ctx, entries)
}

func (c *Coordinator) scoreRound(ctx context.Context) error {
	idx, err := c.qIndex(ctx)
	if err != nil {
		return err
	}

	records, err := c.store.List(ctx, participantPrefix)
	if err != nil {
		return err
	}

	participants := make(map[string]domain.Participant, len(records))
	var subs []domain.Submission
	for key, raw := range records {
		var rec domain.Participant
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		id := strings.TrimPrefix(key, participantPrefix)
		participants[id] = rec
		if rec.Pending == nil {
			continue
		}
		if rec.PendingRound != nil && *rec.PendingRound != idx {
			// Stale pending from an earlier round: drop without credit.
			rec.Pending = nil
			rec.PendingRound = nil
			if err := c.setParticipant(ctx, id, rec); err != nil {
				return err
			}
			continue
		}
		subs = append(subs, domain.Submission{ParticipantID: id, Option: *rec.Pending})
	}
	if len(subs) == 0 {
		return nil
	}

	results, err := c.oracle.Score(ctx, idx, subs)
	if err != nil {
		return err
	}
	for _, res := range results {
		rec, ok := participants[res.ParticipantID]
		if !ok {
			continue
		}
		if res.Correct {
			rec.Score++
		}
		rec.Pending = nil
		rec.PendingRound = nil
		if err := c.setParticipant(ctx, res.ParticipantID, rec); err != nil {
			return err
		}
	}
	return nil
}

// finish closes the round and enters the result phase in one transaction.
func (c *Coordinator) finish(ctx context.Context) error {
	return c.store.SetAll(ctx, map[string][]byte{
		keyPhase:    mustJSON(domain.PhaseResult),
		keyCurrentQ: []byte("null"),
	})
}

func (c *Coordinator) requireHost(ctx context.Context, participantID string) error {
	rec, ok, err := c.participant(ctx, participantID)
	if err != nil {
		return err
	}
	if !ok || !rec.Host {
		return domain.ErrNotHost
	}
	return nil
}

func (c *Coordinator) qIndex(ctx context.Context) (int, error) {
	idx := -1
	if _, err := c.getJSON(ctx, keyQIndex, &idx); err != nil {
		return -1, err
	}
	return idx, nil
}

func (c *Coordinator) participant(ctx context.Context, id string) (domain.Participant, bool, error) {
	var rec domain.Participant
	ok, err := c.getJSON(ctx, participantPrefix+id, &rec)
	return rec, ok, err
}

func (c *Coordinator) setParticipant(ctx context.Context, id string, rec domain.Participant) error {
	return c.setJSON(ctx, participantPrefix+id, rec)
}

func (c *Coordinator) getJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *Coordinator) setJSON(ctx context.Context, key string, v any) error {
	return c.store.Set(ctx, key, mustJSON(v))
}

func mustJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
