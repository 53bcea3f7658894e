package http

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Ebaad-esr/QuizMaster/internal/app"
)

// WSHandler wires websocket connections into the session engine. Each
// connection gets a stable id for the registry, a writer goroutine that
// owns all writes, and a read loop dispatching inbound commands one at a
// time.
type WSHandler struct {
	engine   *app.Engine
	hub      *app.Hub
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(engine *app.Engine, hub *app.Hub, log *zap.Logger) *WSHandler {
	return &WSHandler{
		engine: engine,
		hub:    hub,
		log:    log,
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

type submitAnswerPayload struct {
	OptionIndex *int `json:"optionIndex"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and runs the connection's message loop.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	events, cancel := h.hub.Subscribe(connID)

	send := make(chan app.Event, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- ev:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// The new connection gets the current session state; everyone gets a
	// refreshed player count.
	h.engine.Connected(connID)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "join":
			var req app.JoinRequest
			if err := json.Unmarshal(inbound.Payload, &req); err != nil {
				send <- app.Event{Type: app.EventError, Payload: errorPayload{Message: "invalid join payload"}}
				continue
			}
			if err := h.engine.Join(r.Context(), connID, req); err != nil {
				send <- app.Event{Type: app.EventError, Payload: errorPayload{Message: err.Error()}}
			}
		case "requestNextQuestion":
			h.engine.NextQuestion(connID)
		case "submitAnswer":
			var payload submitAnswerPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					send <- app.Event{Type: app.EventError, Payload: errorPayload{Message: "invalid answer payload"}}
					continue
				}
			}
			if err := h.engine.SubmitAnswer(r.Context(), connID, payload.OptionIndex); err != nil {
				send <- app.Event{Type: app.EventError, Payload: errorPayload{Message: err.Error()}}
			}
		case "getLeaderboard":
			lb, err := h.engine.Leaderboard(r.Context())
			if err != nil {
				send <- app.Event{Type: app.EventError, Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- app.Event{Type: app.EventLeaderboard, Payload: lb}
		default:
			send <- app.Event{Type: app.EventError, Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	cancel()
	h.engine.Disconnect(connID)

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
