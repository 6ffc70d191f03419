package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/LaxmiNarayana31/ChatWithDB/internal/db"
)

const registrySchema = `CREATE TABLE IF NOT EXISTS session_registry (
	session_id VARCHAR(64) PRIMARY KEY,
	db_credentials TEXT,
	db_schema TEXT,
	state TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

const registryIndex = `CREATE INDEX IF NOT EXISTS session_registry_updated_at ON session_registry (updated_at)`

// SQLRegistry stores sessions in the session_registry table of an
// application database. Credentials are sealed before they are written.
type SQLRegistry struct {
	db     *db.Database
	sealer *Sealer
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// OpenRegistryDB opens the application database named by a postgres:// or
// sqlite:// URL.
func OpenRegistryDB(ctx context.Context, rawURL string) (*db.Database, error) {
	var (
		driver, dsn string
		dbType      db.DatabaseType
	)
	switch {
	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		driver, dsn, dbType = "pgx", rawURL, db.DatabaseTypePostgreSQL
	case strings.HasPrefix(rawURL, "sqlite://"):
		driver, dsn, dbType = "sqlite3", strings.TrimPrefix(rawURL, "sqlite://"), db.DatabaseTypeSQLite
	default:
		return nil, fmt.Errorf("unsupported session database url %q", db.RedactDSN(rawURL))
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping session database: %w", err)
	}
	if dbType == db.DatabaseTypeSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	return db.NewDatabase(sqlDB, db.ConnectionConfig{DatabaseType: dbType, FilePath: dsn}), nil
}

// NewSQLRegistry creates the registry table when missing.
func NewSQLRegistry(ctx context.Context, database *db.Database, secret string, ttl time.Duration, logger *slog.Logger) (*SQLRegistry, error) {
	if secret == "" {
		return nil, errors.New("session secret is required for the sql registry")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := database.Execute(ctx, registrySchema); err != nil {
		return nil, fmt.Errorf("create session_registry: %w", err)
	}
	if _, err := database.Execute(ctx, registryIndex); err != nil {
		return nil, fmt.Errorf("create session_registry index: %w", err)
	}
	return &SQLRegistry{
		db:     database,
		sealer: NewSealer(secret),
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (r *SQLRegistry) Get(ctx context.Context, id string) (*Session, error) {
	row, err := r.db.QueryRow(ctx,
		"SELECT db_credentials, db_schema, state, updated_at FROM session_registry WHERE session_id = $1",
		id)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(row.Values) < 4 {
		return nil, fmt.Errorf("load session: unexpected column count %d", len(row.Values))
	}

	updatedAt, ok := row.Values[3].AsTimestamp()
	if ok && r.ttl > 0 && r.now().Sub(updatedAt) > r.ttl {
		if err := r.Delete(ctx, id); err != nil {
			r.logger.Warn("failed to delete expired session", "error", err)
		}
		return nil, ErrNotFound
	}

	state, _ := row.Values[2].AsString()
	s := &Session{}
	if err := json.Unmarshal([]byte(state), s); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	s.ID = id

	if sealed, ok := row.Values[0].AsString(); ok && sealed != "" {
		plaintext, err := r.sealer.Open(sealed)
		if err != nil {
			// A rotated secret leaves the session unusable; start over.
			r.logger.Warn("session credentials unreadable", "session_id", id)
			s.Reset()
			return s, nil
		}
		var creds db.Credentials
		if err := json.Unmarshal(plaintext, &creds); err != nil {
			return nil, fmt.Errorf("decode session credentials: %w", err)
		}
		s.Credentials = &creds
	}
	if key, ok := row.Values[1].AsString(); ok {
		s.SchemaKey = key
	}
	return s, nil
}

func (r *SQLRegistry) Save(ctx context.Context, s *Session) error {
	now := r.now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	state, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	var sealed interface{}
	if s.Credentials != nil {
		plaintext, err := json.Marshal(s.Credentials)
		if err != nil {
			return fmt.Errorf("encode session credentials: %w", err)
		}
		box, err := r.sealer.Seal(plaintext)
		if err != nil {
			return fmt.Errorf("seal session credentials: %w", err)
		}
		sealed = box
	}

	_, err = r.db.Execute(ctx,
		`INSERT INTO session_registry (session_id, db_credentials, db_schema, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO UPDATE SET
			db_credentials = excluded.db_credentials,
			db_schema = excluded.db_schema,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		s.ID, sealed, s.SchemaKey, string(state), s.CreatedAt.UTC(), now)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *SQLRegistry) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Execute(ctx, "DELETE FROM session_registry WHERE session_id = $1", id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Count returns the number of sessions updated within the TTL
func (r *SQLRegistry) Count(ctx context.Context) (int, error) {
	query, args := "SELECT COUNT(*) FROM session_registry", []interface{}{}
	if r.ttl > 0 {
		query += " WHERE updated_at >= $1"
		args = append(args, r.now().UTC().Add(-r.ttl))
	}
	row, err := r.db.QueryRow(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	n, _ := row.Values[0].AsInt64()
	return int(n), nil
}

// Sweep deletes sessions idle for longer than the TTL
func (r *SQLRegistry) Sweep(ctx context.Context) (int, error) {
	if r.ttl <= 0 {
		return 0, nil
	}
	res, err := r.db.Execute(ctx, "DELETE FROM session_registry WHERE updated_at < $1", r.now().UTC().Add(-r.ttl))
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	if res.RowsAffected > 0 {
		r.logger.Debug("expired sessions removed", "count", res.RowsAffected)
	}
	return int(res.RowsAffected), nil
}

// Close closes the application database
func (r *SQLRegistry) Close() error {
	return r.db.Close()
}
