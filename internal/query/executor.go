package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/LaxmiNarayana31/ChatWithDB/internal/db"
)

const (
	DefaultTimeout = 30 * time.Second
	DefaultMaxRows = 5000
)

// ErrEmptyQuery is returned for blank statements
var ErrEmptyQuery = errors.New("empty query")

// Connections hands out an open database for a configuration
type Connections interface {
	Get(ctx context.Context, config db.ConnectionConfig) (*db.Database, func(), error)
}

// Executor runs screened statements against the session's database
type Executor struct {
	connections Connections
	policy      db.ConnectPolicy
	timeout     time.Duration
	maxRows     int
	logger      *slog.Logger
}

// NewExecutor creates an executor. Zero timeout and maxRows take the defaults.
func NewExecutor(connections Connections, policy db.ConnectPolicy, timeout time.Duration, maxRows int, logger *slog.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		connections: connections,
		policy:      policy,
		timeout:     timeout,
		maxRows:     maxRows,
		logger:      logger,
	}
}

// Execute connects with the credentials and runs the statement. The safety
// check runs again here so no caller can skip it.
func (e *Executor) Execute(ctx context.Context, creds db.Credentials, sql string) (*db.ResultSet, error) {
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return nil, ErrEmptyQuery
	}
	if kw, found := UnsafeKeyword(sql); found {
		return nil, fmt.Errorf("%w: contains %s", ErrUnsafeQuery, kw)
	}

	config, err := db.ConfigFromCredentials(creds, e.policy)
	if err != nil {
		return nil, err
	}
	database, release, err := e.connections.Get(ctx, config)
	if err != nil {
		return nil, err
	}
	defer release()

	queryCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	rs, err := database.QueryLimit(queryCtx, e.maxRows, sql)
	if err != nil {
		return nil, err
	}
	e.logger.Info("query executed",
		"db_type", config.DatabaseType,
		"rows", rs.RowCount,
		"truncated", rs.Truncated,
		"duration_ms", time.Since(start).Milliseconds())
	return rs, nil
}
