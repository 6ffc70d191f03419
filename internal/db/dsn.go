package db

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"

	"github.com/go-sql-driver/mysql"
	go_ora "github.com/sijms/go-ora/v2"
)

// BuildDSN returns the database/sql driver name and data source name for the
// configuration.
func BuildDSN(config ConnectionConfig) (string, string, error) {
	switch config.DatabaseType {
	case DatabaseTypeMySQL:
		return "mysql", buildMySQLDSN(config), nil
	case DatabaseTypePostgreSQL:
		return "pgx", buildPostgreSQLDSN(config), nil
	case DatabaseTypeMSSQL:
		return "sqlserver", buildMSSQLDSN(config), nil
	case DatabaseTypeOracle:
		return "oracle", buildOracleDSN(config), nil
	case DatabaseTypeSQLite:
		if config.FilePath == "" {
			return "", "", fmt.Errorf("sqlite requires a file path")
		}
		return sqliteReadOnlyDriver, buildSQLiteDSN(config), nil
	case DatabaseTypeDuckDB:
		if config.FilePath == "" {
			return "", "", fmt.Errorf("duckdb requires a file path")
		}
		return "duckdb", buildDuckDBDSN(config), nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedDatabase, config.DatabaseType)
	}
}

func portOrDefault(config ConnectionConfig) int {
	if config.Port == 0 {
		return config.DatabaseType.DefaultPort()
	}
	return config.Port
}

// buildMySQLDSN builds a go-sql-driver DSN; FormatDSN takes care of escaping
func buildMySQLDSN(config ConnectionConfig) string {
	cfg := mysql.NewConfig()
	cfg.User = config.Username
	cfg.Passwd = config.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(config.Host, strconv.Itoa(portOrDefault(config)))
	cfg.DBName = config.Database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// buildPostgreSQLDSN builds a postgres:// URL with the password escaped
func buildPostgreSQLDSN(config ConnectionConfig) string {
	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(config.Username, config.Password),
		Host:     net.JoinHostPort(config.Host, strconv.Itoa(portOrDefault(config))),
		Path:     "/" + config.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

// buildMSSQLDSN builds a sqlserver:// URL. Encryption is on but the server
// certificate is trusted, matching what local SQL Server installs ship with.
func buildMSSQLDSN(config ConnectionConfig) string {
	q := url.Values{}
	if config.Database != "" {
		q.Set("database", config.Database)
	}
	q.Set("encrypt", "true")
	q.Set("TrustServerCertificate", "true")
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(config.Username, config.Password),
		Host:     net.JoinHostPort(config.Host, strconv.Itoa(portOrDefault(config))),
		RawQuery: q.Encode(),
	}
	return u.String()
}

// buildOracleDSN uses the database field as the service name
func buildOracleDSN(config ConnectionConfig) string {
	return go_ora.BuildUrl(config.Host, portOrDefault(config), config.Database, config.Username, config.Password, nil)
}

// buildSQLiteDSN opens the file read-only through a file: URI
func buildSQLiteDSN(config ConnectionConfig) string {
	u := url.URL{Path: config.FilePath}
	return "file:" + u.EscapedPath() + "?mode=ro&_query_only=true"
}

// buildDuckDBDSN opens the file read-only with file functions, ATTACH and
// extension loading switched off.
func buildDuckDBDSN(config ConnectionConfig) string {
	q := url.Values{}
	q.Set("access_mode", "READ_ONLY")
	q.Set("enable_external_access", "false")
	q.Set("autoinstall_known_extensions", "false")
	q.Set("autoload_known_extensions", "false")
	return config.FilePath + "?" + q.Encode()
}

var (
	urlPassword   = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.-]*://[^:/@]*):[^@]*@`)
	mysqlPassword = regexp.MustCompile(`^([^:@/]*):.*@(tcp|unix)\(`)
)

// RedactDSN masks the password of a DSN so it can be logged.
func RedactDSN(dsn string) string {
	if urlPassword.MatchString(dsn) {
		return urlPassword.ReplaceAllString(dsn, "$1:xxxxx@")
	}
	return mysqlPassword.ReplaceAllString(dsn, "$1:xxxxx@$2(")
}
