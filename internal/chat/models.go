package chat

import (
	"time"

	"github.com/LaxmiNarayana31/ChatWithDB/internal/db"
)

// Connection is what a successful connect leaves behind for later questions
type Connection struct {
	Credentials db.Credentials  `json:"-"`
	DBType      db.DatabaseType `json:"db_type"`
	Database    string          `json:"database"`
	SchemaKey   string          `json:"schema_key"`
	Tables      []string        `json:"tables"`
	TableCount  int             `json:"table_count"`
	ConnectedAt time.Time       `json:"connected_at"`
}

// Answer is the outcome of one question
type Answer struct {
	Question string `json:"question"`
	SQL      string `json:"sql,omitempty"`

	// Conversational is set when the model replied in prose instead of SQL.
	// Summary then holds the reply and nothing was executed.
	Conversational bool                     `json:"conversational"`
	Columns        []string                 `json:"columns,omitempty"`
	Rows           []map[string]interface{} `json:"rows,omitempty"`
	Total          int                      `json:"total_results"`
	Truncated      bool                     `json:"truncated"`
	Summary        string                   `json:"summary"`

	Result *db.ResultSet `json:"-"`
}

// HasSQL reports whether the answer carries a generated statement
func (a *Answer) HasSQL() bool {
	return a != nil && a.SQL != ""
}

// Stage names a step of the question pipeline as reported to streaming callers
type Stage string

const (
	StageSchema     Stage = "schema_loaded"
	StageGenerating Stage = "generating_sql"
	StageSQL        Stage = "sql_generated"
	StageExecuting  Stage = "executing"
	StageResults    Stage = "results"
	StageSummary    Stage = "summary_chunk"
	StageDone       Stage = "done"
)

// Event is emitted by AskStream as the pipeline advances
type Event struct {
	Stage     Stage    `json:"stage"`
	SQL       string   `json:"sql,omitempty"`
	Columns   []string `json:"columns,omitempty"`
	Total     int      `json:"total_results,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
	Content   string   `json:"content,omitempty"`
	Answer    *Answer  `json:"answer,omitempty"`
}

// Recorder receives pipeline measurements
type Recorder interface {
	ObserveLLM(task string, status string, elapsed time.Duration)
	ObserveQuery(status string, elapsed time.Duration)
	UnsafeQuery()
}

type nopRecorder struct{}

func (nopRecorder) ObserveLLM(string, string, time.Duration) {}
func (nopRecorder) ObserveQuery(string, time.Duration)       {}
func (nopRecorder) UnsafeQuery()                             {}
