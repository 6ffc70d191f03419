// Package chat runs the question pipeline: load the captured schema, ask the
// model for SQL, screen and execute it, then have the model summarize the rows.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/LaxmiNarayana31/ChatWithDB/internal/db"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/llm"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/prompts"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/query"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/schema"
	"github.com/LaxmiNarayana31/ChatWithDB/internal/schemastore"
)

var (
	ErrEmptyQuestion  = errors.New("question is empty")
	ErrNotConnected   = errors.New("no database connected")
	ErrSessionExpired = errors.New("session expired")
	// ErrUnsafeQuery is the query package sentinel so either can be matched.
	ErrUnsafeQuery = query.ErrUnsafeQuery
)

// LLMClients hands out the client for a task
type LLMClients interface {
	Client(task llm.TaskType) (llm.LLMClient, error)
}

// Connections is the connection cache used for schema capture
type Connections interface {
	Get(ctx context.Context, config db.ConnectionConfig) (*db.Database, func(), error)
	Evict(config db.ConnectionConfig)
}

// QueryRunner executes a generated statement for a connection's credentials
type QueryRunner interface {
	Execute(ctx context.Context, creds db.Credentials, sql string) (*db.ResultSet, error)
}

// Config wires the service dependencies
type Config struct {
	Schemas     schemastore.Store
	LLM         LLMClients
	Connections Connections
	Runner      QueryRunner
	// Policy limits what the connect form may open.
	Policy db.ConnectPolicy
	// SampleRows is the number of example rows captured per table.
	SampleRows int
	Recorder   Recorder
	Logger     *slog.Logger
}

// Service implements connect, ask and disconnect
type Service struct {
	schemas     schemastore.Store
	llm         LLMClients
	connections Connections
	runner      QueryRunner
	policy      db.ConnectPolicy
	sampleRows  int
	recorder    Recorder
	logger      *slog.Logger
}

func NewService(cfg Config) *Service {
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		schemas:     cfg.Schemas,
		llm:         cfg.LLM,
		connections: cfg.Connections,
		runner:      cfg.Runner,
		policy:      cfg.Policy,
		sampleRows:  cfg.SampleRows,
		recorder:    recorder,
		logger:      logger,
	}
}

// Connect opens the database, captures its schema and stores the rendered
// dump. The returned connection is what Ask needs later.
func (s *Service) Connect(ctx context.Context, creds db.Credentials) (*Connection, error) {
	config, err := db.ConfigFromCredentials(creds, s.policy)
	if err != nil {
		return nil, err
	}
	database, release, err := s.connections.Get(ctx, config)
	if err != nil {
		return nil, err
	}

	catalog, err := schema.Capture(ctx, database, schema.Options{SampleRows: s.sampleRows, Logger: s.logger})
	release()
	if err != nil {
		s.connections.Evict(config)
		return nil, err
	}

	name := schemastore.DumpName(creds.Database, string(config.DatabaseType))
	key, err := s.schemas.Save(ctx, name, catalog.Render())
	if err != nil {
		return nil, fmt.Errorf("save schema: %w", err)
	}

	// Keep the canonical vendor name so aliases like PG are not stored.
	creds.DBType = config.DatabaseType
	tables := catalog.TableNames()
	s.logger.Info("database connected",
		"db_type", config.DatabaseType,
		"database", config.Database,
		"tables", len(tables),
		"schema_key", key)

	return &Connection{
		Credentials: creds,
		DBType:      config.DatabaseType,
		Database:    creds.Database,
		SchemaKey:   key,
		Tables:      tables,
		TableCount:  len(tables),
		ConnectedAt: time.Now(),
	}, nil
}

// Ask answers one question. When the generated statement is rejected or
// fails, the answer is still returned next to the error so the SQL can be shown.
func (s *Service) Ask(ctx context.Context, conn *Connection, question string) (*Answer, error) {
	return s.run(ctx, conn, question, nil)
}

// AskStream runs the same pipeline as Ask and reports each stage to emit. The
// summary arrives as StageSummary chunks. An error from emit stops the pipeline.
func (s *Service) AskStream(ctx context.Context, conn *Connection, question string, emit func(Event) error) (*Answer, error) {
	if emit == nil {
		emit = func(Event) error { return nil }
	}
	return s.run(ctx, conn, question, emit)
}

// Disconnect removes the schema dump and drops the cached connection.
func (s *Service) Disconnect(ctx context.Context, conn *Connection) error {
	if conn == nil {
		return nil
	}
	var errs []error
	if conn.SchemaKey != "" {
		if err := s.schemas.Delete(ctx, conn.SchemaKey); err != nil && !errors.Is(err, schemastore.ErrInvalidKey) {
			errs = append(errs, err)
		}
	}
	if config, err := db.ConfigFromCredentials(conn.Credentials, s.policy); err == nil {
		s.connections.Evict(config)
	}
	s.logger.Info("database disconnected", "db_type", conn.DBType, "database", conn.Database)
	return errors.Join(errs...)
}

func (s *Service) run(ctx context.Context, conn *Connection, question string, emit func(Event) error) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if conn == nil || conn.SchemaKey == "" {
		return nil, ErrNotConnected
	}
	notify := func(e Event) error {
		if emit == nil {
			return nil
		}
		return emit(e)
	}

	dump, err := s.schemas.Load(ctx, conn.SchemaKey)
	if err != nil {
		if errors.Is(err, schemastore.ErrExpired) || errors.Is(err, schemastore.ErrInvalidKey) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if err := notify(Event{Stage: StageSchema}); err != nil {
		return nil, err
	}

	prompt, err := prompts.SQLPromptWithSchema(prompts.SQLInput{
		Question:     question,
		DatabaseType: string(conn.DBType),
		DatabaseName: conn.Database,
	}, dump)
	if err != nil {
		return nil, err
	}
	if err := notify(Event{Stage: StageGenerating}); err != nil {
		return nil, err
	}
	reply, err := s.complete(ctx, llm.TaskQuery, prompt)
	if err != nil {
		return nil, err
	}

	answer := &Answer{Question: question}
	sql, fenced := query.ExtractSQL(reply)
	if !fenced && !query.LooksLikeSQL(sql) {
		answer.Conversational = true
		answer.Summary = reply
		s.logger.Info("model replied without sql", "question_chars", len(question))
		return answer, notify(Event{Stage: StageDone, Answer: answer})
	}
	answer.SQL = sql
	if err := notify(Event{Stage: StageSQL, SQL: sql}); err != nil {
		return answer, err
	}

	if kw, found := query.UnsafeKeyword(sql); found {
		s.recorder.UnsafeQuery()
		s.logger.Warn("unsafe query blocked", "keyword", kw)
		return answer, fmt.Errorf("%w: contains %s", ErrUnsafeQuery, kw)
	}

	if err := notify(Event{Stage: StageExecuting, SQL: sql}); err != nil {
		return answer, err
	}
	start := time.Now()
	rs, err := s.runner.Execute(ctx, conn.Credentials, sql)
	if err != nil {
		s.recorder.ObserveQuery("error", time.Since(start))
		return answer, &QueryError{Err: err}
	}
	s.recorder.ObserveQuery("ok", time.Since(start))

	answer.Result = rs
	answer.Columns = rs.ColumnNames()
	answer.Rows = rs.Records()
	answer.Total = rs.RowCount
	answer.Truncated = rs.Truncated
	if err := notify(Event{Stage: StageResults, Columns: answer.Columns, Total: answer.Total, Truncated: answer.Truncated}); err != nil {
		return answer, err
	}

	preview, err := rs.OrderedJSON(prompts.PreviewLimit)
	if err != nil {
		return answer, err
	}
	summaryPrompt, err := prompts.SummaryPrompt(prompts.SummaryInput{
		Question:     question,
		SQL:          sql,
		TotalResults: answer.Total,
		Truncated:    answer.Truncated,
		PreviewRows:  preview,
		PreviewLimit: prompts.PreviewLimit,
	})
	if err != nil {
		return answer, err
	}

	if emit == nil {
		answer.Summary, err = s.complete(ctx, llm.TaskMarkdown, summaryPrompt)
	} else {
		answer.Summary, err = s.stream(ctx, llm.TaskMarkdown, summaryPrompt, emit)
	}
	if err != nil {
		return answer, err
	}
	return answer, notify(Event{Stage: StageDone, Answer: answer})
}

// complete sends a single user prompt and returns the trimmed reply
func (s *Service) complete(ctx context.Context, task llm.TaskType, prompt string) (string, error) {
	client, err := s.llm.Client(task)
	if err != nil {
		return "", err
	}
	start := time.Now()
	resp, err := client.Chat(ctx, llm.UserPrompt(prompt))
	if err != nil {
		s.recorder.ObserveLLM(string(task), "error", time.Since(start))
		return "", fmt.Errorf("%s completion: %w", task, err)
	}
	s.recorder.ObserveLLM(string(task), "ok", time.Since(start))
	s.logger.Debug("llm completion", "task", task, "model", resp.Model, "tokens", resp.TokensUsed)
	return strings.TrimSpace(resp.Content), nil
}

// stream forwards the reply chunks to emit and returns the assembled text
func (s *Service) stream(ctx context.Context, task llm.TaskType, prompt string, emit func(Event) error) (string, error) {
	client, err := s.llm.Client(task)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	start := time.Now()
	err = client.StreamChat(ctx, llm.UserPrompt(prompt), func(chunk *llm.StreamingChunk) error {
		if chunk.Content == "" {
			return nil
		}
		b.WriteString(chunk.Content)
		return emit(Event{Stage: StageSummary, Content: chunk.Content})
	})
	if err != nil {
		s.recorder.ObserveLLM(string(task), "error", time.Since(start))
		return "", fmt.Errorf("%s stream: %w", task, err)
	}
	s.recorder.ObserveLLM(string(task), "ok", time.Since(start))
	return strings.TrimSpace(b.String()), nil
}
