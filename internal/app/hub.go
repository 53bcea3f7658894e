package app

import "sync"

// Event is a typed outbound message destined for one or all connections.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Event types pushed over the real-time transport.
const (
	EventQuizState    = "quizState"
	EventPlayerCount  = "playerCount"
	EventQuizStarted  = "quizStarted"
	EventQuestion     = "question"
	EventAnswerResult = "answerResult"
	EventQuizFinished = "quizFinished"
	EventLeaderboard  = "leaderboardUpdate"
	EventError        = "error"
)

// Hub fans events out to connections. Each connection subscribes with its
// own id and receives both broadcasts and targeted sends on one channel.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]chan Event
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]chan Event)}
}

// Subscribe registers a connection and returns its event channel. The
// caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(connID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	h.subs[connID] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if existing, ok := h.subs[connID]; ok && existing == ch {
			delete(h.subs, connID)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast delivers an event to every connection.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		deliver(ch, ev)
	}
}

// SendTo delivers an event to a single connection, if still subscribed.
func (h *Hub) SendTo(connID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if ch, ok := h.subs[connID]; ok {
		deliver(ch, ev)
	}
}

// deliver drops the oldest queued event rather than block on a slow
// client; the leaderboard is a best-effort live view and last-write-wins.
func deliver(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}
