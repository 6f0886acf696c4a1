package domain

// Phase is the lifecycle stage of a quiz session.
// Sessions move lobby -> playing -> result and never back.
type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhasePlaying Phase = "playing"
	PhaseResult  Phase = "result"
)

// Question is a full quiz entry including the correct-answer index.
// It lives only inside the content oracle and is never written into
// shared session state. JSON field names follow the source format.
type Question struct {
	Text             string   `json:"q"`
	Options          []string `json:"opts"`
	Answer           int      `json:"a"`
	TimeLimitSeconds int      `json:"t,omitempty"` // 0 means no limit
}

// Public returns the answer-free projection of the question.
func (q Question) Public() PublicQuestion {
	opts := make([]string, len(q.Options))
	copy(opts, q.Options)
	return PublicQuestion{
		Text:             q.Text,
		Options:          opts,
		TimeLimitSeconds: q.TimeLimitSeconds,
	}
}

// PublicQuestion is the shared, answer-free view of the current round.
type PublicQuestion struct {
	Text             string   `json:"q"`
	Options          []string `json:"opts"`
	TimeLimitSeconds int      `json:"t,omitempty"`
}

// Participant is one replicated per-participant record.
//
// LastAnswer is the last option the participant picked, kept across rounds
// for display. Pending is the answer awaiting grading for the round stamped
// in PendingRound; scoring clears it, and a pending stamped with an older
// round than the one being scored is discarded without credit.
type Participant struct {
	Nickname     string `json:"nickname"`
	Score        int    `json:"score"`
	LastAnswer   *int   `json:"lastAnswer"`
	Pending      *int   `json:"pending"`
	PendingRound *int   `json:"pendingRound,omitempty"`
	Host         bool   `json:"host"`
}

// LoadStats summarizes a content load: entries seen in the source, entries
// that passed validation and the banned-term filter, and entries dropped.
type LoadStats struct {
	Total    int `json:"total"`
	Accepted int `json:"accepted"`
	Filtered int `json:"filtered"`
}

// Submission is one pending answer handed to the oracle for grading.
type Submission struct {
	ParticipantID string `json:"id"`
	Option        int    `json:"ans"`
}

// ScoreResult is the oracle's verdict for a single submission.
type ScoreResult struct {
	ParticipantID string `json:"id"`
	Correct       bool   `json:"correct"`
}

// LeaderboardEntry is one row of the score-ordered ranking.
type LeaderboardEntry struct {
	ParticipantID string `json:"id"`
	Nickname      string `json:"nickname"`
	Score         int    `json:"score"`
}

// SessionSnapshot is a read-only view of the whole replicated session,
// used by the transport layer to render state to clients. Leaderboard is
// derived from Participants, ordered by score descending.
type SessionSnapshot struct {
	Phase          Phase                  `json:"phase"`
	QIndex         int                    `json:"qIndex"`
	CurrentQ       *PublicQuestion        `json:"currentQ,omitempty"`
	RoundStartedAt int64                  `json:"roundStartedAt,omitempty"` // unix milliseconds
	Participants   map[string]Participant `json:"participants"`
	Leaderboard    []LeaderboardEntry     `json:"leaderboard"`
}
