// Package server exposes the dispatcher's internal state over HTTP: a
// health check, Prometheus metrics, a snapshot of the module registry and
// main configuration, and a WebSocket stream of dispatch cycle events for
// live observation. Grounded on the alert-history service's
// cmd/server/handlers/silence_ws.go WebSocket hub and internal/api/router.go
// mux wiring, adapted to this dispatcher's single event type.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// CycleEvent is one dispatch cycle's outcome, broadcast to every connected
// /events client. Fields mirror dispatch.Event plus the error, if any.
// Branch is left empty by Hub.Observer, which receives no branch
// information from the dispatcher.
type CycleEvent struct {
	Kind          string    `json:"kind"`
	Level         string    `json:"level"`
	ResourceID    string    `json:"resource_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Branch        string    `json:"branch,omitempty"`
	Err           string    `json:"error,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Hub fans CycleEvents out to every connected WebSocket client. One Hub is
// shared by the /events handler and by whatever drives the dispatch loop;
// Broadcast is safe to call from the actor goroutine without blocking it.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan CycleEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a Hub. Call Run in a goroutine before serving /events.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan CycleEvent, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger,
	}
}

// Run drives the hub's register/unregister/broadcast loop until ctx is
// canceled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("event hub starting")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("event hub stopping")
			h.closeAll()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.clients {
				go h.send(conn, ev)
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) send(conn *websocket.Conn, ev CycleEvent) {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(ev); err != nil {
		h.logger.Debug("dropping event client after write failure", "error", err)
		h.unregister <- conn
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// Broadcast queues ev for delivery to every connected client. Non-blocking:
// a full buffer drops the event rather than stalling the dispatch actor.
func (h *Hub) Broadcast(ev CycleEvent) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("event broadcast buffer full, dropping cycle event", "kind", ev.Kind, "resource", ev.ResourceID)
	}
}
