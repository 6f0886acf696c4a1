package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"peerquiz/internal/app"
	"peerquiz/internal/domain"
	"peerquiz/internal/infra/memory"
	"peerquiz/internal/oracle"
	"github.com/gorilla/websocket"
)

func TestWebSocketGameFlow(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	host := dial(t, server, "room-1", "h1", "Alice")
	defer host.Close()

	// Expect joined event first.
	frame := readNext(t, host, "joined")
	var joined joinedPayload
	mustDecode(t, frame.Payload, &joined)
	if joined.ParticipantID != "h1" {
		t.Fatalf("expected participant h1, got %s", joined.ParticipantID)
	}
	if joined.State.Phase != domain.PhaseLobby {
		t.Fatalf("expected lobby, got %s", joined.State.Phase)
	}

	writeIntent(t, host, "claimHost", nil)
	waitState(t, host, func(s domain.SessionSnapshot) bool {
		return s.Participants["h1"].Host
	})

	// Empty source falls back to the handler default.
	writeIntent(t, host, "load", map[string]any{})
	stats := readNext(t, host, "loadResult")
	var loaded domain.LoadStats
	mustDecode(t, stats.Payload, &loaded)
	if loaded.Accepted != 2 {
		t.Fatalf("expected 2 accepted questions, got %+v", loaded)
	}

	writeIntent(t, host, "start", nil)
	snap := waitState(t, host, func(s domain.SessionSnapshot) bool {
		return s.Phase == domain.PhasePlaying && s.CurrentQ != nil
	})
	if snap.QIndex != 0 || len(snap.CurrentQ.Options) == 0 {
		t.Fatalf("unexpected first round: %+v", snap)
	}

	// Correct answer for round 0; the host connection grades eagerly, so
	// the score shows up without an explicit next.
	writeIntent(t, host, "answer", map[string]any{"option": 1})
	waitState(t, host, func(s domain.SessionSnapshot) bool {
		return s.Participants["h1"].Score == 1
	})

	writeIntent(t, host, "next", nil)
	waitState(t, host, func(s domain.SessionSnapshot) bool {
		return s.Phase == domain.PhasePlaying && s.QIndex == 1
	})

	writeIntent(t, host, "end", nil)
	final := waitState(t, host, func(s domain.SessionSnapshot) bool {
		return s.Phase == domain.PhaseResult
	})
	if final.CurrentQ != nil {
		t.Fatalf("result phase must not carry a question")
	}
	if final.Participants["h1"].Score != 1 {
		t.Fatalf("expected final score 1, got %d", final.Participants["h1"].Score)
	}
}

func TestWebSocketRejectsNonHostStart(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	conn := dial(t, server, "room-2", "u1", "Bob")
	defer conn.Close()
	readNext(t, conn, "joined")

	writeIntent(t, conn, "start", nil)
	frame := readNext(t, conn, "error")
	var payload errorPayload
	mustDecode(t, frame.Payload, &payload)
	if !strings.Contains(payload.Message, "host") {
		t.Fatalf("expected host authorization error, got %q", payload.Message)
	}
}

func TestWebSocketStateFansOutToPeers(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	host := dial(t, server, "room-3", "h1", "Alice")
	defer host.Close()
	readNext(t, host, "joined")

	peer := dial(t, server, "room-3", "u2", "Bob")
	defer peer.Close()
	readNext(t, peer, "joined")

	writeIntent(t, host, "claimHost", nil)

	// The peer sees the host flag through the shared change feed.
	waitState(t, peer, func(s domain.SessionSnapshot) bool {
		return s.Participants["h1"].Host
	})
}

// --- helpers ---

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	loader := memory.NewStaticSourceLoader(map[string][]domain.Question{
		"quiz-1": {
			{Text: "Capital of France?", Options: []string{"Berlin", "Paris"}, Answer: 1},
			{Text: "2 + 2?", Options: []string{"3", "4"}, Answer: 1},
		},
	})
	filter := oracle.NewFilter([]string{"zzz-banned"})

	factory := func(id string) (*app.Room, error) {
		store := memory.NewStateStore()
		worker := oracle.NewWorker(loader, filter)
		ctx, cancel := context.WithCancel(context.Background())
		go worker.Run(ctx)
		client := oracle.NewClient(worker)
		coordinator := app.NewCoordinator(store, client)
		return app.NewRoom(id, coordinator, func() {
			client.Close()
			cancel()
			store.Close()
		}), nil
	}
	rooms := memory.NewRoomStore(factory)
	wsHandler := NewWSHandler(rooms, "quiz-1")

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	return httptest.NewServer(mux)
}

func dial(t *testing.T, server *httptest.Server, room, userID, name string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?room=" + room + "&userId=" + userID + "&name=" + name
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func writeIntent(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readNext(t *testing.T, conn *websocket.Conn, expect string) frame {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var f frame
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read json: %v", err)
		}
		if expect == "" || f.Type == expect {
			return f
		}
		// Skip interleaved state frames while waiting for a specific type.
		if f.Type == "state" {
			continue
		}
		t.Fatalf("expected type %s, got %s", expect, f.Type)
	}
	t.Fatalf("timed out waiting for %s frame", expect)
	return frame{}
}

func waitState(t *testing.T, conn *websocket.Conn, ok func(domain.SessionSnapshot) bool) domain.SessionSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var f frame
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read json: %v", err)
		}
		if f.Type != "state" && f.Type != "joined" {
			continue
		}
		var snap domain.SessionSnapshot
		if f.Type == "joined" {
			var joined joinedPayload
			mustDecode(t, f.Payload, &joined)
			snap = joined.State
		} else {
			mustDecode(t, f.Payload, &snap)
		}
		if ok(snap) {
			return snap
		}
	}
	t.Fatalf("timed out waiting for expected state")
	return domain.SessionSnapshot{}
}

func mustDecode(t *testing.T, raw json.RawMessage, v any) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
}
