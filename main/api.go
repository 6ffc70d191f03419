package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LaxmiNarayana31/ChatWithDB/internal/chat"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/db"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/session"
)

type askRequest struct {
	Question string `json:"question"`
}

func (app *App) apiConnectHandler(c *gin.Context) {
	ctx := c.Request.Context()
	s := currentSession(c)

	var creds db.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}

	conn, err := app.Chat.Connect(ctx, creds)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, db.ErrUnsupportedDatabase) || errors.Is(err, db.ErrFileNotAllowed) {
			status = http.StatusBadRequest
		}
		app.Logger.Warn("connect failed", "session_id", s.ID, "db_type", creds.DBType, "error", err)
		c.JSON(status, gin.H{"error": "Connection failed", "detail": err.Error()})
		return
	}

	if s.Connected() {
		app.disconnect(ctx, s)
	}
	bindConnection(s, conn)
	app.saveSession(ctx, s)
	c.JSON(http.StatusOK, gin.H{
		"message":    "Connected! Redirecting to chat...",
		"connection": conn,
	})
}

func (app *App) apiAskHandler(c *gin.Context) {
	ctx := c.Request.Context()
	s := currentSession(c)

	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}
	if !s.Connected() {
		c.JSON(http.StatusConflict, chat.Describe(chat.ErrNotConnected))
		return
	}

	answer, err := app.Chat.Ask(ctx, connectionOf(s), req.Question)
	expired := app.recordAnswer(ctx, s, req.Question, answer, err)
	s.TakeFlash()
	app.saveSession(ctx, s)

	if err != nil {
		failure := chat.Describe(err)
		body := gin.H{"code": failure.Code, "error": failure.Message}
		if answer.HasSQL() {
			body["sql"] = answer.SQL
		}
		c.JSON(askStatus(err, expired), body)
		return
	}
	c.JSON(http.StatusOK, answer)
}

func askStatus(err error, expired bool) int {
	var qe *chat.QueryError
	switch {
	case expired:
		return http.StatusGone
	case errors.Is(err, chat.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrUnsafeQuery), errors.As(err, &qe):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func (app *App) apiDisconnectHandler(c *gin.Context) {
	ctx := c.Request.Context()
	s := currentSession(c)
	app.disconnect(ctx, s)
	app.saveSession(ctx, s)
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

func (app *App) apiSessionHandler(c *gin.Context) {
	s := currentSession(c)
	body := gin.H{
		"id":             s.ID,
		"page":           s.Page,
		"connected":      s.Connected(),
		"question":       s.Question,
		"generated_sql":  s.GeneratedSQL,
		"query_response": s.QueryResponse,
		"show_sql":       s.ShowSQL,
	}
	if s.Connected() {
		body["database"] = s.Credentials.Database
		body["db_type"] = s.Credentials.DBType
		body["tables"] = s.Tables
	}
	if s.Page == "" {
		body["page"] = session.PageConnect
	}
	c.JSON(http.StatusOK, body)
}
