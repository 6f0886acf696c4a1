package http

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"peerquiz/internal/app"
	"peerquiz/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	rooms         app.RoomRepository
	defaultSource string
	upgrader      websocket.Upgrader
}

// NewWSHandler serves quiz rooms over websockets. defaultSource is the
// question collection used when a host loads content without naming one.
func NewWSHandler(rooms app.RoomRepository, defaultSource string) *WSHandler {
	return &WSHandler{
		rooms:         rooms,
		defaultSource: defaultSource,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type loadPayload struct {
	Source string `json:"source"`
}

type answerPayload struct {
	Option int `json:"option"`
}

type revealPayload struct {
	Index int `json:"index"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type joinedPayload struct {
	ParticipantID string                 `json:"participantId"`
	State         domain.SessionSnapshot `json:"state"`
}

type revealResult struct {
	Index  int `json:"index"`
	Answer int `json:"a"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into a room.
// Inbound intents: claimHost, load, start, answer, next, end, reveal.
// State changes reach every connection as snapshot frames via the room's
// change feed; errors go only to the connection that caused them.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	displayName := r.URL.Query().Get("name")
	if roomID == "" || displayName == "" {
		http.Error(w, "missing room or name", http.StatusBadRequest)
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = uuid.NewString()
	}

	room, err := h.rooms.GetOrCreate(roomID)
	if err != nil {
		http.Error(w, "room unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	room.Attach()
	defer func() {
		room.Detach()
		h.rooms.DeleteIfEmpty(roomID)
	}()

	coordinator := room.Coordinator
	ctx := r.Context()

	if err := coordinator.Join(ctx, userID, displayName); err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	changesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	changes := make(chan []string, 32)
	cancelObserve := coordinator.Observe(func(keys []string) {
		select {
		case changes <- keys:
		case <-closeSignals:
		}
	})
	defer cancelObserve()

	go func() {
		defer close(changesDone)
		for {
			select {
			case keys := <-changes:
				snap, err := coordinator.Snapshot(ctx)
				if err != nil {
					log.Printf("snapshot failed: %v", err)
					continue
				}
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: snap}:
				case <-closeSignals:
					return
				}
				// The original host grades as soon as the participants map
				// changes; replicate that for host connections, best-effort.
				if hasParticipantChange(keys) && coordinator.IsHost(ctx, userID) {
					if err := coordinator.ScoreRound(ctx, userID); err != nil {
						log.Printf("eager scoring failed: %v", err)
					}
				}
			case <-closeSignals:
				return
			}
		}
	}()

	snap, err := coordinator.Snapshot(ctx)
	if err != nil {
		log.Printf("snapshot failed: %v", err)
	}
	send <- outboundMessage[any]{Type: "joined", Payload: joinedPayload{ParticipantID: userID, State: snap}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "claimHost":
			h.reportErr(send, coordinator.ClaimHost(ctx, userID))
		case "load":
			var payload loadPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid load payload"}}
				continue
			}
			source := payload.Source
			if source == "" {
				source = h.defaultSource
			}
			stats, err := coordinator.LoadContent(ctx, userID, source)
			if err != nil {
				h.reportErr(send, err)
				continue
			}
			send <- outboundMessage[any]{Type: "loadResult", Payload: stats}
		case "start":
			h.reportErr(send, coordinator.StartGame(ctx, userID))
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			h.reportErr(send, coordinator.SubmitAnswer(ctx, userID, payload.Option))
		case "next":
			h.reportErr(send, coordinator.AdvanceRound(ctx, userID))
		case "end":
			h.reportErr(send, coordinator.EndGame(ctx, userID))
		case "reveal":
			var payload revealPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid reveal payload"}}
				continue
			}
			answer, ok, err := coordinator.RevealAnswer(ctx, userID, payload.Index)
			if err != nil {
				h.reportErr(send, err)
				continue
			}
			if !ok {
				h.reportErr(send, domain.ErrQuestionNotFound)
				continue
			}
			send <- outboundMessage[any]{Type: "reveal", Payload: revealResult{Index: payload.Index, Answer: answer}}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-changesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) reportErr(send chan<- outboundMessage[any], err error) {
	if err == nil {
		return
	}
	send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
}

func hasParticipantChange(keys []string) bool {
	for _, key := range keys {
		if strings.HasPrefix(key, "participant:") {
			return true
		}
	}
	return false
}
