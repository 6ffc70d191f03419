package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LaxmiNarayana31/ChatWithDB/internal/db"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/session"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/web"
)

func (app *App) render(c *gin.Context, status int, page string, data interface{}) {
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := app.Pages.Render(c.Writer, page, data); err != nil {
		app.Logger.Error("template error", "page", page, "error", err)
	}
}

func statusOf(f *session.Flash) *web.Status {
	if f == nil {
		return nil
	}
	return &web.Status{Kind: f.Kind, Message: f.Message}
}

// dbOptions offers the engines the connect policy allows
func (app *App) dbOptions(selected db.DatabaseType) []web.DBOption {
	return web.DBOptions(connectPolicy(app.Config).AllowedTypes(), selected)
}

// indexHandler shows the screen the session is on
func (app *App) indexHandler(c *gin.Context) {
	s := currentSession(c)
	status := statusOf(s.TakeFlash())
	app.saveSession(c.Request.Context(), s)

	if s.Page != session.PageChat || !s.Connected() {
		app.render(c, http.StatusOK, web.PageConnect, web.ConnectView{
			Status:    status,
			DBOptions: app.dbOptions(db.DatabaseTypeMySQL),
		})
		return
	}

	view := web.ChatView{
		Status:   status,
		Database: s.Credentials.Database,
		DBType:   string(s.Credentials.DBType),
		Tables:   s.Tables,
		Question: s.Question,
		SQL:      s.GeneratedSQL,
		ShowSQL:  s.ShowSQL,
	}
	if s.QueryResponse != "" {
		summary, err := app.Pages.Markdown(s.QueryResponse)
		if err != nil {
			app.Logger.Warn("markdown render failed", "error", err)
		}
		view.Summary = summary
	}
	app.render(c, http.StatusOK, web.PageChat, view)
}

func (app *App) connectHandler(c *gin.Context) {
	ctx := c.Request.Context()
	s := currentSession(c)

	var creds db.Credentials
	if err := c.ShouldBind(&creds); err != nil {
		app.render(c, http.StatusBadRequest, web.PageConnect, web.ConnectView{
			Status:    &web.Status{Kind: session.FlashError, Message: "Connection failed"},
			DBOptions: app.dbOptions(db.DatabaseTypeMySQL),
		})
		return
	}

	conn, err := app.Chat.Connect(ctx, creds)
	if err != nil {
		app.Logger.Warn("connect failed", "session_id", s.ID, "db_type", creds.DBType, "error", err)
		app.render(c, http.StatusOK, web.PageConnect, web.ConnectView{
			Status:    &web.Status{Kind: session.FlashError, Message: "Connection failed"},
			DBOptions: app.dbOptions(creds.DBType),
			Host:      creds.Host,
			User:      creds.User,
			Port:      creds.Port,
			Database:  creds.Database,
		})
		return
	}

	if s.Connected() {
		app.disconnect(ctx, s)
	}
	bindConnection(s, conn)
	s.SetFlash(session.FlashSuccess, "Connected! Redirecting to chat...")
	app.saveSession(ctx, s)
	c.Redirect(http.StatusSeeOther, "/")
}

func (app *App) askHandler(c *gin.Context) {
	ctx := c.Request.Context()
	s := currentSession(c)

	if !s.Connected() {
		s.SetFlash(session.FlashError, "No database connected!")
		app.saveSession(ctx, s)
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	question := c.PostForm("question")
	answer, err := app.Chat.Ask(ctx, connectionOf(s), question)
	if app.recordAnswer(ctx, s, question, answer, err) {
		app.saveSession(ctx, s)
		app.render(c, http.StatusOK, web.PageExpired, web.ExpiredView{Seconds: web.ExpiryCountdown, Redirect: "/"})
		return
	}
	if err != nil {
		app.Logger.Warn("question failed", "session_id", s.ID, "error", err)
	}
	app.saveSession(ctx, s)
	c.Redirect(http.StatusSeeOther, "/")
}

func (app *App) toggleSQLHandler(c *gin.Context) {
	s := currentSession(c)
	s.ShowSQL = !s.ShowSQL
	app.saveSession(c.Request.Context(), s)
	c.Redirect(http.StatusSeeOther, "/")
}

func (app *App) disconnectHandler(c *gin.Context) {
	ctx := c.Request.Context()
	s := currentSession(c)
	app.disconnect(ctx, s)
	app.saveSession(ctx, s)
	c.Redirect(http.StatusSeeOther, "/")
}
