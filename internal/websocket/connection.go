package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/LaxmiNarayana31/ChatWithDB/internal/chat"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/messages"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	maxMessageSize = 64 * 1024
)

// ErrClosed is returned by Send after the connection has gone away
var ErrClosed = errors.New("websocket connection closed")

// Connection is one browser socket bound to a connected session
type Connection struct {
	ws *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	// Closed once by Close
	done      chan struct{}
	closeOnce sync.Once

	ID        string
	SessionID string

	// peer is the database connection questions are asked against
	peer *chat.Connection

	hub     *Hub
	handler *Handler

	// cancel aborts the question in flight, nil when idle
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewConnection creates a new connection instance
func NewConnection(ws *websocket.Conn, sessionID string, peer *chat.Connection, hub *Hub, handler *Handler) *Connection {
	return &Connection{
		ws:        ws,
		send:      make(chan []byte, 256),
		done:      make(chan struct{}),
		ID:        uuid.NewString(),
		SessionID: sessionID,
		peer:      peer,
		hub:       hub,
		handler:   handler,
	}
}

// ReadPump reads client frames until the socket fails or closes
func (c *Connection) ReadPump() {
	defer func() {
		c.cancelAsk()
		c.hub.remove(c)
		c.Close()
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.handler.logger.Warn("websocket read failed", "connection_id", c.ID, "error", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		in, err := messages.Decode(raw)
		if err != nil {
			c.sendError("", messages.CodeBadRequest, err.Error(), "")
			continue
		}

		switch in.Type {
		case messages.TypeAsk:
			c.startAsk(in)
		case messages.TypeCancel:
			c.cancelAsk()
		case messages.TypePing:
			now := time.Now().UnixMilli()
			c.Send(messages.New(messages.TypePong, in.ID, messages.PongData{Timestamp: now}))
		default:
			c.sendError(in.ID, messages.CodeBadRequest, "unknown message type: "+in.Type, "")
		}
	}
}

// WritePump writes queued frames and keeps the socket alive with pings
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues an envelope, blocking while the buffer is full
func (c *Connection) Send(env messages.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Close stops the write loop, which sends a close frame
func (c *Connection) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Connection) sendError(id, code, message, sql string) {
	c.Send(messages.New(messages.TypeError, id, messages.ErrorData{Error: message, Code: code, SQL: sql}))
}

// startAsk runs one question in the background. Only one may be in flight.
func (c *Connection) startAsk(in messages.Inbound) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		c.sendError(in.ID, messages.CodeBusy, "A question is already running.", "")
		return
	}
	ctx, cancel := context.WithCancel(c.handler.baseContext())
	c.cancel = cancel
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.cancel = nil
			c.mu.Unlock()
			cancel()
		}()
		c.handler.ask(ctx, c, in)
	}()
}

func (c *Connection) cancelAsk() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}
