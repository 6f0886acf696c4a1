// Package oracle holds the quiz content oracle: an isolated actor that owns
// the full question set, including correct answers, and is reachable only via
// asynchronous request/response messages. Nothing outside this package can
// read the answer key; callers only ever see answer-free projections and
// per-submission verdicts.
package oracle

import "encoding/json"

// MsgType enumerates the oracle message protocol.
type MsgType string

const (
	MsgLoad     MsgType = "LOAD"
	MsgQuestion MsgType = "GET_Q"
	MsgScore    MsgType = "SCORE"
	MsgLength   MsgType = "LEN"
	MsgReveal   MsgType = "REVEAL"
)

// Request is the envelope sent to the oracle worker. RequestID is echoed in
// the matching Reply so callers can correlate concurrent outstanding calls.
type Request struct {
	Type      MsgType         `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID uint64          `json:"requestId"`
}

// Reply is the envelope returned by the worker. Replies whose RequestID
// matches no outstanding call are dropped by the client.
type Reply struct {
	OK        bool            `json:"ok"`
	RequestID uint64          `json:"requestId"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type loadPayload struct {
	Source string `json:"url"`
}

type indexPayload struct {
	Index int `json:"index"`
}

type scorePayload struct {
	Index       int               `json:"index"`
	Submissions []scoreSubmission `json:"submissions"`
}

type scoreSubmission struct {
	ID     string `json:"id"`
	Answer int    `json:"ans"`
}

type scoreData struct {
	Scored []scoreVerdict `json:"scored"`
}

type scoreVerdict struct {
	ID      string `json:"id"`
	Correct bool   `json:"correct"`
}

type lengthData struct {
	Length int `json:"length"`
}

type revealData struct {
	Answer int `json:"a"`
}
