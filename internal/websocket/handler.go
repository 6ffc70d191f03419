// Package websocket serves the streaming ask socket. Each frame the pipeline
// produces is pushed to the browser as soon as it is known.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/LaxmiNarayana31/ChatWithDB/internal/chat"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/messages"
)

// Asker runs the question pipeline
type Asker interface {
	AskStream(ctx context.Context, conn *chat.Connection, question string, emit func(chat.Event) error) (*chat.Answer, error)
}

// Binding ties a socket to the browser session that opened it
type Binding interface {
	// Bind resolves the session of an upgrade request. It returns
	// chat.ErrNotConnected when no database is connected.
	Bind(c *gin.Context) (sessionID string, conn *chat.Connection, err error)
	// Record stores the outcome of a question asked against conn on the session.
	Record(ctx context.Context, sessionID string, conn *chat.Connection, question string, answer *chat.Answer, askErr error) error
}

// Handler manages socket upgrades
type Handler struct {
	hub      *Hub
	asker    Asker
	binding  Binding
	logger   *slog.Logger
	upgrader websocket.Upgrader

	// ctx outlives individual requests and is cancelled on shutdown
	ctx context.Context
}

// NewHandler creates a socket handler. Allowed origins follow the CORS list;
// "*" or an empty list accepts any origin.
func NewHandler(ctx context.Context, hub *Hub, asker Asker, binding Binding, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h := &Handler{
		hub:     hub,
		asker:   asker,
		binding: binding,
		logger:  logger,
		ctx:     ctx,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// HandleWebSocket upgrades the request once its session is connected
func (h *Handler) HandleWebSocket(c *gin.Context) {
	sessionID, peer, err := h.binding.Bind(c)
	if err != nil {
		failure := chat.Describe(err)
		status := http.StatusInternalServerError
		if errors.Is(err, chat.ErrNotConnected) || errors.Is(err, chat.ErrSessionExpired) {
			status = http.StatusConflict
		}
		c.JSON(status, failure)
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := NewConnection(ws, sessionID, peer, h.hub, h)
	if !h.hub.add(conn) {
		ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		ws.Close()
		return
	}

	go conn.WritePump()
	go conn.ReadPump()

	conn.Send(messages.New(messages.TypeConnected, "", messages.ConnectedData{
		ConnectionID: conn.ID,
		Database:     peer.Database,
		DBType:       string(peer.DBType),
		Tables:       peer.Tables,
	}))
	h.logger.Info("websocket connection established", "connection_id", conn.ID, "session_id", sessionID)
}

func (h *Handler) baseContext() context.Context {
	return h.ctx
}

// ask streams one question and reports the outcome back to the session
func (h *Handler) ask(ctx context.Context, c *Connection, in messages.Inbound) {
	data, err := in.DecodeAsk()
	if err != nil {
		c.sendError(in.ID, messages.CodeBadRequest, err.Error(), "")
		return
	}

	start := time.Now()
	answer, err := h.asker.AskStream(ctx, c.peer, data.Question, func(ev chat.Event) error {
		return c.Send(messages.New(string(ev.Stage), in.ID, ev))
	})
	if err != nil && !errors.Is(err, ErrClosed) {
		failure := chat.Describe(err)
		sql := ""
		if answer.HasSQL() {
			sql = answer.SQL
		}
		c.sendError(in.ID, failure.Code, failure.Message, sql)
		h.logger.Warn("socket question failed", "connection_id", c.ID, "code", failure.Code, "error", err)
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if rerr := h.binding.Record(recordCtx, c.SessionID, c.peer, data.Question, answer, err); rerr != nil {
		h.logger.Warn("session update failed", "session_id", c.SessionID, "error", rerr)
	}
	h.logger.Debug("socket question finished", "connection_id", c.ID, "duration_ms", time.Since(start).Milliseconds())
}

func originChecker(allowed []string) func(*http.Request) bool {
	all := len(allowed) == 0
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			all = true
		}
		set[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if all || origin == "" {
			return true
		}
		if set[strings.ToLower(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
