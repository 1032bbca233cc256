package server

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/eak1mov/go-seedtiles/scheduler"
)

const sessionQueue = 16

// Hub fans redraw notifications out to the connected clients. Its
// Broadcast method is meant to be the scheduler's redraw callback.
type Hub struct {
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]chan []byte
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{logger: logger, sessions: make(map[string]chan []byte)}
}

func (h *Hub) join() (string, chan []byte) {
	id := uuid.NewString()
	out := make(chan []byte, sessionQueue)
	h.mu.Lock()
	h.sessions[id] = out
	h.mu.Unlock()
	h.logger.Debug("seedtiles: client connected", "session", id)
	return id, out
}

func (h *Hub) leave(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
	h.logger.Debug("seedtiles: client disconnected", "session", id)
}

// Sessions returns the number of connected clients.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Broadcast never blocks. A client whose queue is full misses the message;
// the next redraw supersedes it anyway.
func (h *Hub) Broadcast(r scheduler.Redraw) {
	msg := encode(Outbound{Type: TypeRedraw, Epoch: r.Epoch, Version: r.Version})
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, out := range h.sessions {
		select {
		case out <- msg:
		default:
			h.logger.Warn("seedtiles: client too slow, redraw dropped", "session", id, "epoch", r.Epoch)
		}
	}
}

func (h *Hub) send(id string, msg Outbound) {
	h.mu.Lock()
	out, ok := h.sessions[id]
	h.mu.Unlock()
	if !ok {
		return
	}
	select {
	case out <- encode(msg):
	default:
	}
}
