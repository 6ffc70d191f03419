package websocket

import (
	"context"
	"log/slog"
	"sync"
)

// Hub maintains the set of active socket connections
type Hub struct {
	// Registered connections
	connections map[*Connection]bool

	// Register requests from the connections
	register chan *Connection

	// Unregister requests from connections
	unregister chan *Connection

	// Closed when Run returns
	done chan struct{}

	logger *slog.Logger
	mutex  sync.RWMutex
}

// NewHub creates a new hub instance
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		connections: make(map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run starts the hub's main loop. When ctx is done every connection is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case conn := <-h.register:
			h.mutex.Lock()
			h.connections[conn] = true
			total := len(h.connections)
			h.mutex.Unlock()
			h.logger.Debug("socket registered", "connection_id", conn.ID, "session_id", conn.SessionID, "connections", total)

		case conn := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
			}
			total := len(h.connections)
			h.mutex.Unlock()
			h.logger.Debug("socket unregistered", "connection_id", conn.ID, "connections", total)

		case <-ctx.Done():
			h.mutex.Lock()
			for conn := range h.connections {
				conn.Close()
				delete(h.connections, conn)
			}
			h.mutex.Unlock()
			return
		}
	}
}

// Count returns the number of registered connections
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.connections)
}

// add registers conn and reports false once the hub has stopped
func (h *Hub) add(conn *Connection) bool {
	select {
	case h.register <- conn:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}
