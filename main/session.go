package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LaxmiNarayana31/ChatWithDB/internal/chat"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/session"
)

const (
	sessionCookie = "chatdb_session"
	sessionKey    = "session"
)

// sessionMiddleware loads the browser session from its cookie, creating a
// fresh one when the cookie is missing or the session has expired.
func (app *App) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var s *session.Session
		if id, err := c.Cookie(sessionCookie); err == nil && id != "" {
			loaded, err := app.Sessions.Get(ctx, id)
			switch {
			case err == nil:
				s = loaded
			case errors.Is(err, session.ErrNotFound):
			default:
				app.Logger.Error("load session failed", "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
				return
			}
		}
		if s == nil {
			s = session.New()
		}

		maxAge := int(app.Config.Session.TTL.Seconds())
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(sessionCookie, s.ID, maxAge, "/", "", false, true)
		c.Set(sessionKey, s)
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(*session.Session); ok {
			return s
		}
	}
	return session.New()
}

func (app *App) saveSession(ctx context.Context, s *session.Session) {
	if err := app.Sessions.Save(ctx, s); err != nil {
		app.Logger.Error("save session failed", "session_id", s.ID, "error", err)
	}
}

// connectionOf rebuilds the pipeline connection from stored session state
func connectionOf(s *session.Session) *chat.Connection {
	if !s.Connected() {
		return nil
	}
	return &chat.Connection{
		Credentials: *s.Credentials,
		DBType:      s.Credentials.DBType,
		Database:    s.Credentials.Database,
		SchemaKey:   s.SchemaKey,
		Tables:      s.Tables,
		TableCount:  len(s.Tables),
	}
}

// bindConnection stores a successful connect on the session
func bindConnection(s *session.Session, conn *chat.Connection) {
	creds := conn.Credentials
	s.Page = session.PageChat
	s.Credentials = &creds
	s.SchemaKey = conn.SchemaKey
	s.Tables = conn.Tables
	s.FormSubmitted = true
	s.Question = ""
	s.GeneratedSQL = ""
	s.QueryResponse = ""
	s.ShowSQL = false
}

// recordAnswer applies the outcome of a question to the session. It reports
// whether the session was reset because its schema dump expired.
func (app *App) recordAnswer(ctx context.Context, s *session.Session, question string, answer *chat.Answer, err error) (expired bool) {
	if errors.Is(err, chat.ErrSessionExpired) {
		app.Logger.Info("schema expired, session reset", "session_id", s.ID)
		app.disconnect(ctx, s)
		return true
	}
	s.Question = question
	s.GeneratedSQL = ""
	s.QueryResponse = ""
	if answer != nil {
		s.GeneratedSQL = answer.SQL
	}
	if err != nil {
		s.SetFlash(session.FlashError, chat.Describe(err).Message)
		return false
	}
	s.QueryResponse = answer.Summary
	return false
}

// disconnect drops the database side of a session and resets it
func (app *App) disconnect(ctx context.Context, s *session.Session) {
	if conn := connectionOf(s); conn != nil {
		if err := app.Chat.Disconnect(ctx, conn); err != nil {
			app.Logger.Warn("disconnect cleanup failed", "session_id", s.ID, "error", err)
		}
	}
	s.Reset()
}

// Bind resolves the session behind a socket upgrade
func (app *App) Bind(c *gin.Context) (string, *chat.Connection, error) {
	s := currentSession(c)
	conn := connectionOf(s)
	if conn == nil {
		return s.ID, nil, chat.ErrNotConnected
	}
	return s.ID, conn, nil
}

// Record stores a streamed answer on the session. Answers from a socket bound
// to a connection the session has since replaced are dropped.
func (app *App) Record(ctx context.Context, sessionID string, conn *chat.Connection, question string, answer *chat.Answer, askErr error) error {
	s, err := app.Sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if conn == nil || s.SchemaKey != conn.SchemaKey {
		app.Logger.Debug("stale socket answer dropped", "session_id", sessionID)
		return nil
	}
	app.recordAnswer(ctx, s, question, answer, askErr)
	return app.Sessions.Save(ctx, s)
}
