package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"     // MySQL
	_ "github.com/jackc/pgx/v5/stdlib"     // PostgreSQL pgx/v5 driver
	_ "github.com/marcboeker/go-duckdb/v2" // DuckDB
	"github.com/mattn/go-sqlite3"          // SQLite
	_ "github.com/microsoft/go-mssqldb"    // SQL Server
	_ "github.com/sijms/go-ora/v2"         // Oracle
)

// sqliteReadOnlyDriver is go-sqlite3 with ATTACH disabled on every connection
const sqliteReadOnlyDriver = "sqlite3_readonly"

func init() {
	sql.Register(sqliteReadOnlyDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			conn.SetLimit(sqlite3.SQLITE_LIMIT_ATTACHED, 0)
			return nil
		},
	})
}

// Credentials is the connect form payload. Port stays a string the way it is
// typed; an empty value selects the vendor default.
type Credentials struct {
	User     string       `json:"user" form:"user"`
	Password string       `json:"password" form:"password"`
	Host     string       `json:"host" form:"host"`
	Port     string       `json:"port" form:"port"`
	Database string       `json:"database" form:"database"`
	DBType   DatabaseType `json:"db_type" form:"db_type"`
}

// ConnectionConfig represents database connection configuration
type ConnectionConfig struct {
	DatabaseType DatabaseType

	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	// File-based databases
	FilePath string

	// Pool configuration
	PoolSize       int
	MaxConnections int
	TimeoutMs      int
	IdleTimeoutMs  int
}

// Database represents a database connection
type Database struct {
	db     *sql.DB
	config ConnectionConfig
}

// sqlOpen is replaced in tests.
var sqlOpen = sql.Open

// ConfigFromCredentials validates the form values against the policy and
// turns them into a connection config with default pool settings.
func ConfigFromCredentials(creds Credentials, policy ConnectPolicy) (ConnectionConfig, error) {
	dbType, err := ParseDatabaseType(string(creds.DBType))
	if err != nil {
		return ConnectionConfig{}, err
	}

	b := NewConnectionBuilder(dbType)
	if dbType.IsFile() {
		path, err := policy.ResolveFile(creds.Database)
		if err != nil {
			return ConnectionConfig{}, err
		}
		return b.FilePath(path).Config(), nil
	}

	port := dbType.DefaultPort()
	if p := strings.TrimSpace(creds.Port); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return ConnectionConfig{}, fmt.Errorf("invalid port %q", creds.Port)
		}
	}
	if strings.TrimSpace(creds.Host) == "" {
		return ConnectionConfig{}, fmt.Errorf("host is required")
	}

	return b.Host(strings.TrimSpace(creds.Host)).
		Port(port).
		Database(strings.TrimSpace(creds.Database)).
		Username(creds.User).
		Password(creds.Password).
		SSLMode(policy.SSLMode).
		Config(), nil
}

// ConnectionBuilder provides a fluent interface for building connections
type ConnectionBuilder struct {
	config ConnectionConfig
}

// NewConnectionBuilder creates a new connection builder
func NewConnectionBuilder(dbType DatabaseType) *ConnectionBuilder {
	return &ConnectionBuilder{
		config: ConnectionConfig{
			DatabaseType:   dbType,
			PoolSize:       2,
			MaxConnections: 5,
			TimeoutMs:      10000,
			IdleTimeoutMs:  300000,
		},
	}
}

func (cb *ConnectionBuilder) Host(host string) *ConnectionBuilder {
	cb.config.Host = host
	return cb
}

func (cb *ConnectionBuilder) Port(port int) *ConnectionBuilder {
	cb.config.Port = port
	return cb
}

func (cb *ConnectionBuilder) Database(database string) *ConnectionBuilder {
	cb.config.Database = database
	return cb
}

func (cb *ConnectionBuilder) Username(username string) *ConnectionBuilder {
	cb.config.Username = username
	return cb
}

func (cb *ConnectionBuilder) Password(password string) *ConnectionBuilder {
	cb.config.Password = password
	return cb
}

// SSLMode sets the PostgreSQL sslmode parameter
func (cb *ConnectionBuilder) SSLMode(sslMode string) *ConnectionBuilder {
	cb.config.SSLMode = sslMode
	return cb
}

// FilePath sets the file path for file-based databases
func (cb *ConnectionBuilder) FilePath(filePath string) *ConnectionBuilder {
	cb.config.FilePath = filePath
	return cb
}

// Config returns the accumulated configuration without connecting
func (cb *ConnectionBuilder) Config() ConnectionConfig {
	return cb.config
}

// Build creates and returns a database connection
func (cb *ConnectionBuilder) Build(ctx context.Context) (*Database, error) {
	return Connect(ctx, cb.config)
}

// Connect opens a database handle for the configuration and verifies it with
// a ping. The handle is closed again when the ping fails.
func Connect(ctx context.Context, config ConnectionConfig) (*Database, error) {
	driverName, dsn, err := BuildDSN(config)
	if err != nil {
		return nil, err
	}

	db, err := sqlOpen(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	timeout := time.Duration(config.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	maxOpen, maxIdle := config.MaxConnections, config.PoolSize
	if config.DatabaseType.IsFile() {
		maxOpen, maxIdle = 1, 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxIdleTime(time.Duration(config.IdleTimeoutMs) * time.Millisecond)

	return &Database{
		db:     db,
		config: config,
	}, nil
}

// NewDatabase wraps an already opened handle.
func NewDatabase(sqlDB *sql.DB, config ConnectionConfig) *Database {
	return &Database{db: sqlDB, config: config}
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.db.Close()
}

// GetDB returns the underlying *sql.DB instance
func (db *Database) GetDB() *sql.DB {
	return db.db
}

// GetConfig returns the connection configuration
func (db *Database) GetConfig() ConnectionConfig {
	return db.config
}

// Type returns the vendor of the connection
func (db *Database) Type() DatabaseType {
	return db.config.DatabaseType
}
