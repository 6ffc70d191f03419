// Package session keeps the per-browser state of the two screen UI: which
// page is showing, the connected credentials and the last answer.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/LaxmiNarayana31/ChatWithDB/internal/db"
)

// ErrNotFound is returned for unknown or expired sessions
var ErrNotFound = errors.New("session not found")

// Page is the screen a session is on
type Page string

const (
	PageConnect Page = "connect"
	PageChat    Page = "chat"
)

// Flash is a one-shot status line shown above the current page
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// Session is the UI state of one browser
type Session struct {
	ID   string `json:"id"`
	Page Page   `json:"page"`

	// Credentials are nil until a connect succeeds.
	Credentials *db.Credentials `json:"-"`
	SchemaKey   string          `json:"schema_key,omitempty"`
	Tables      []string        `json:"tables,omitempty"`

	FormSubmitted bool   `json:"form_submitted"`
	Question      string `json:"question,omitempty"`
	GeneratedSQL  string `json:"generated_sql,omitempty"`
	QueryResponse string `json:"query_response,omitempty"`
	ShowSQL       bool   `json:"show_sql"`
	Flash         *Flash `json:"flash,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a fresh session on the connect page
func New() *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Page:      PageConnect,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Reset puts the session back to its defaults. The id is kept so the
// browser cookie stays valid.
func (s *Session) Reset() {
	*s = Session{
		ID:        s.ID,
		Page:      PageConnect,
		CreatedAt: s.CreatedAt,
		UpdatedAt: time.Now(),
	}
}

// Connected reports whether credentials are stored
func (s *Session) Connected() bool {
	return s.Credentials != nil
}

// SetFlash replaces the status line
func (s *Session) SetFlash(kind, message string) {
	s.Flash = &Flash{Kind: kind, Message: message}
}

// TakeFlash returns the status line and clears it
func (s *Session) TakeFlash() *Flash {
	f := s.Flash
	s.Flash = nil
	return f
}

// Clone returns a deep copy
func (s *Session) Clone() *Session {
	c := *s
	if s.Credentials != nil {
		creds := *s.Credentials
		c.Credentials = &creds
	}
	if s.Tables != nil {
		c.Tables = append([]string(nil), s.Tables...)
	}
	if s.Flash != nil {
		f := *s.Flash
		c.Flash = &f
	}
	return &c
}

// Store persists sessions by id
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}
