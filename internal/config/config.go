package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type LookupFunc func(string) (string, bool)

const (
	SchemaStoreFile = "file"
	SchemaStoreS3   = "s3"
)

type Config struct {
	HTTP          HTTPConfig
	Schema        SchemaConfig
	ObjectStore   ObjectStoreConfig
	LLM           LLMConfig
	Query         QueryConfig
	Session       SessionConfig
	Observability ObservabilityConfig
}

type HTTPConfig struct {
	Address      string
	GinMode      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

type SchemaConfig struct {
	Store      string
	Dir        string
	TTL        time.Duration
	SampleRows int
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type LLMConfig struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	ProfilesFile string
}

type QueryConfig struct {
	Timeout     time.Duration
	MaxRows     int
	ConnIdleTTL time.Duration
	// FileDBDir is the directory SQLite and DuckDB files may be opened from.
	// Empty disables file databases.
	FileDBDir       string
	PostgresSSLMode string
}

type SessionConfig struct {
	TTL         time.Duration
	DatabaseURL string
	Secret      string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

// LoadFromEnv reads an optional .env file and then the process environment.
func LoadFromEnv(logger *slog.Logger) (Config, error) {
	if err := godotenv.Load(); err != nil && logger != nil {
		logger.Debug("no .env file found, using environment variables")
	}
	return Load(os.LookupEnv)
}

func Load(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}
	cfg := defaults()

	if port, ok := lookup("PORT"); ok && strings.TrimSpace(port) != "" {
		cfg.HTTP.Address = ":" + strings.TrimSpace(port)
	}
	if err := applyString(lookup, "CHATDB_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "GIN_MODE", &cfg.HTTP.GinMode); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "CHATDB_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "CHATDB_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "CHATDB_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyList(lookup, "CHATDB_CORS_ORIGINS", &cfg.HTTP.CORSOrigins); err != nil {
		return Config{}, err
	}

	if err := applyString(lookup, "CHATDB_SCHEMA_STORE", &cfg.Schema.Store); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "CHATDB_SCHEMA_DIR", &cfg.Schema.Dir); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "CHATDB_SCHEMA_TTL", &cfg.Schema.TTL); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "CHATDB_SCHEMA_SAMPLE_ROWS", &cfg.Schema.SampleRows); err != nil {
		return Config{}, err
	}

	if err := applyString(lookup, "CHATDB_S3_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "CHATDB_S3_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "CHATDB_S3_BUCKET", &cfg.ObjectStore.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "CHATDB_S3_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "CHATDB_S3_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "CHATDB_S3_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "CHATDB_S3_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "CHATDB_S3_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket); err != nil {
		return Config{}, err
	}

	if err := applyString(lookup, "CHATDB_LLM_BASE_URL", &cfg.LLM.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "CEREBRAS_API_KEY", &cfg.LLM.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "CHATDB_LLM_API_KEY", &cfg.LLM.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "CHATDB_LLM_TIMEOUT", &cfg.LLM.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "CHATDB_LLM_PROFILES_FILE", &cfg.LLM.ProfilesFile); err != nil {
		return Config{}, err
	}

	if err := applyDuration(lookup, "CHATDB_QUERY_TIMEOUT", &cfg.Query.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "CHATDB_QUERY_MAX_ROWS", &cfg.Query.MaxRows); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "CHATDB_CONN_IDLE_TTL", &cfg.Query.ConnIdleTTL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "CHATDB_FILE_DB_DIR", &cfg.Query.FileDBDir); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "CHATDB_POSTGRES_SSLMODE", &cfg.Query.PostgresSSLMode); err != nil {
		return Config{}, err
	}

	if err := applyDuration(lookup, "CHATDB_SESSION_TTL", &cfg.Session.TTL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "CHATDB_SESSION_DATABASE_URL", &cfg.Session.DatabaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "CHATDB_SESSION_SECRET", &cfg.Session.Secret); err != nil {
		return Config{}, err
	}

	if err := applyBool(lookup, "CHATDB_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "CHATDB_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch cfg.Schema.Store {
	case SchemaStoreFile:
		if cfg.Schema.Dir == "" {
			return fmt.Errorf("CHATDB_SCHEMA_DIR is required for the file schema store")
		}
	case SchemaStoreS3:
		if cfg.ObjectStore.Endpoint == "" || cfg.ObjectStore.Bucket == "" {
			return fmt.Errorf("CHATDB_S3_ENDPOINT and CHATDB_S3_BUCKET are required for the s3 schema store")
		}
	default:
		return fmt.Errorf("invalid CHATDB_SCHEMA_STORE: %q", cfg.Schema.Store)
	}
	if cfg.Schema.TTL < 0 {
		return fmt.Errorf("CHATDB_SCHEMA_TTL must not be negative")
	}
	if cfg.Schema.SampleRows < 0 {
		return fmt.Errorf("CHATDB_SCHEMA_SAMPLE_ROWS must not be negative")
	}
	if cfg.Query.MaxRows <= 0 {
		return fmt.Errorf("CHATDB_QUERY_MAX_ROWS must be positive")
	}
	if cfg.Query.Timeout <= 0 {
		return fmt.Errorf("CHATDB_QUERY_TIMEOUT must be positive")
	}
	switch cfg.Query.PostgresSSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("invalid CHATDB_POSTGRES_SSLMODE: %q", cfg.Query.PostgresSSLMode)
	}
	if cfg.Session.DatabaseURL != "" && cfg.Session.Secret == "" {
		return fmt.Errorf("CHATDB_SESSION_SECRET is required when CHATDB_SESSION_DATABASE_URL is set")
	}
	if path, ok := strings.CutPrefix(cfg.Session.DatabaseURL, "sqlite://"); ok && cfg.Query.FileDBDir != "" {
		if insideDir(cfg.Query.FileDBDir, path) {
			return fmt.Errorf("the sqlite session database must not live inside CHATDB_FILE_DB_DIR")
		}
	}
	return nil
}

func insideDir(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Address:      ":8080",
			GinMode:      "debug",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
			CORSOrigins:  []string{"*"},
		},
		Schema: SchemaConfig{
			Store:      SchemaStoreFile,
			Dir:        "schema",
			TTL:        30 * time.Minute,
			SampleRows: 0,
		},
		ObjectStore: ObjectStoreConfig{
			Region:           "us-east-1",
			Bucket:           "chatdb-schemas",
			Prefix:           "schemas",
			AutoCreateBucket: true,
		},
		LLM: LLMConfig{
			BaseURL: "https://api.cerebras.ai/v1/",
			Timeout: 60 * time.Second,
		},
		Query: QueryConfig{
			Timeout:         30 * time.Second,
			MaxRows:         5000,
			ConnIdleTTL:     10 * time.Minute,
			PostgresSSLMode: "prefer",
		},
		Session: SessionConfig{
			TTL: 24 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelInfo,
			LogJSON:  false,
		},
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	*dst = values
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
