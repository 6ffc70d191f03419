package db

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// DatabaseType represents supported database vendors
type DatabaseType string

const (
	DatabaseTypeMySQL      DatabaseType = "MYSQL"
	DatabaseTypePostgreSQL DatabaseType = "POSTGRESQL"
	DatabaseTypeMSSQL      DatabaseType = "MSSQL"
	DatabaseTypeOracle     DatabaseType = "ORACLE"
	DatabaseTypeSQLite     DatabaseType = "SQLITE"
	DatabaseTypeDuckDB     DatabaseType = "DUCKDB"
)

// ErrUnsupportedDatabase is returned for database types without a driver mapping
var ErrUnsupportedDatabase = errors.New("unsupported database type")

// SupportedTypes lists the vendors offered on the connect form, in display order
var SupportedTypes = []DatabaseType{
	DatabaseTypeMySQL,
	DatabaseTypePostgreSQL,
	DatabaseTypeMSSQL,
	DatabaseTypeOracle,
	DatabaseTypeSQLite,
	DatabaseTypeDuckDB,
}

// ParseDatabaseType normalizes a user supplied vendor name
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MYSQL", "MARIADB":
		return DatabaseTypeMySQL, nil
	case "POSTGRESQL", "POSTGRES", "PG":
		return DatabaseTypePostgreSQL, nil
	case "MSSQL", "SQLSERVER":
		return DatabaseTypeMSSQL, nil
	case "ORACLE":
		return DatabaseTypeOracle, nil
	case "SQLITE", "SQLITE3":
		return DatabaseTypeSQLite, nil
	case "DUCKDB":
		return DatabaseTypeDuckDB, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedDatabase, s)
}

// DefaultPort returns the vendor's standard listening port, 0 for file databases
func (t DatabaseType) DefaultPort() int {
	switch t {
	case DatabaseTypeMySQL:
		return 3306
	case DatabaseTypePostgreSQL:
		return 5432
	case DatabaseTypeMSSQL:
		return 1433
	case DatabaseTypeOracle:
		return 1521
	}
	return 0
}

// IsFile reports whether the vendor opens a local file instead of a server
func (t DatabaseType) IsFile() bool {
	return t == DatabaseTypeSQLite || t == DatabaseTypeDuckDB
}

// ValueType represents the type of a database value
type ValueType string

const (
	ValueTypeNull      ValueType = "null"
	ValueTypeInteger   ValueType = "integer"
	ValueTypeFloat     ValueType = "float"
	ValueTypeText      ValueType = "text"
	ValueTypeBoolean   ValueType = "boolean"
	ValueTypeBinary    ValueType = "binary"
	ValueTypeTimestamp ValueType = "timestamp"
)

// Value represents a unified database value
type Value struct {
	Type  ValueType
	Data  interface{}
	Valid bool
}

func NewNullValue() Value {
	return Value{Type: ValueTypeNull}
}

func NewIntegerValue(v int64) Value {
	return Value{Type: ValueTypeInteger, Data: v, Valid: true}
}

func NewFloatValue(v float64) Value {
	return Value{Type: ValueTypeFloat, Data: v, Valid: true}
}

func NewTextValue(v string) Value {
	return Value{Type: ValueTypeText, Data: v, Valid: true}
}

func NewBooleanValue(v bool) Value {
	return Value{Type: ValueTypeBoolean, Data: v, Valid: true}
}

func NewBinaryValue(v []byte) Value {
	return Value{Type: ValueTypeBinary, Data: v, Valid: true}
}

func NewTimestampValue(t time.Time) Value {
	return Value{Type: ValueTypeTimestamp, Data: t, Valid: true}
}

// AsInt64 returns value as int64
func (v Value) AsInt64() (int64, bool) {
	if v.Type == ValueTypeInteger && v.Valid {
		return v.Data.(int64), true
	}
	return 0, false
}

// AsFloat64 returns value as float64
func (v Value) AsFloat64() (float64, bool) {
	if v.Type == ValueTypeFloat && v.Valid {
		return v.Data.(float64), true
	}
	return 0, false
}

// AsString returns value as string
func (v Value) AsString() (string, bool) {
	if v.Type == ValueTypeText && v.Valid {
		return v.Data.(string), true
	}
	return "", false
}

// AsBool returns value as bool
func (v Value) AsBool() (bool, bool) {
	if v.Type == ValueTypeBoolean && v.Valid {
		return v.Data.(bool), true
	}
	return false, false
}

// AsTimestamp returns value as time.Time
func (v Value) AsTimestamp() (time.Time, bool) {
	if v.Type == ValueTypeTimestamp && v.Valid {
		return v.Data.(time.Time), true
	}
	return time.Time{}, false
}

// IsNull returns true if value is null
func (v Value) IsNull() bool {
	return v.Type == ValueTypeNull || !v.Valid
}

// Interface returns the plain Go value, nil for NULL
func (v Value) Interface() interface{} {
	if v.IsNull() {
		return nil
	}
	return v.Data
}

// String formats the value for display in tables and prompts
func (v Value) String() string {
	if v.IsNull() {
		return "NULL"
	}
	switch d := v.Data.(type) {
	case time.Time:
		return d.Format(time.RFC3339)
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(d))
	case float64:
		return strconv.FormatFloat(d, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v.Data)
}

// ResultSet represents a query result set
type ResultSet struct {
	Rows     []Row
	Columns  []Column
	RowCount int
	// Truncated is set when the row cap stopped the scan early.
	Truncated bool
}

// Row represents a database row
type Row struct {
	Values []Value
}

// Column represents a result column
type Column struct {
	Name     string
	Type     ValueType
	Nullable bool
}

// ColumnNames returns the result column names in order
func (rs *ResultSet) ColumnNames() []string {
	names := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		names[i] = c.Name
	}
	return names
}

// Records converts the rows into column name to value maps
func (rs *ResultSet) Records() []map[string]interface{} {
	records := make([]map[string]interface{}, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		rec := make(map[string]interface{}, len(rs.Columns))
		for i, col := range rs.Columns {
			if i < len(row.Values) {
				rec[col.Name] = row.Values[i].Interface()
			}
		}
		records = append(records, rec)
	}
	return records
}

// Head returns a copy of the result limited to the first n rows
func (rs *ResultSet) Head(n int) *ResultSet {
	if n < 0 || n > len(rs.Rows) {
		n = len(rs.Rows)
	}
	return &ResultSet{
		Rows:     rs.Rows[:n],
		Columns:  rs.Columns,
		RowCount: n,
	}
}

// OrderedJSON renders the first n rows as a JSON array of objects, keeping
// the column order of the result. Negative n renders every row.
func (rs *ResultSet) OrderedJSON(n int) (string, error) {
	head := rs.Head(n)
	var buf bytes.Buffer
	buf.WriteString("[")
	for r, row := range head.Rows {
		if r > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  {")
		for i, col := range head.Columns {
			if i > 0 {
				buf.WriteString(", ")
			}
			key, err := json.Marshal(col.Name)
			if err != nil {
				return "", err
			}
			var val interface{}
			if i < len(row.Values) {
				val = row.Values[i].Interface()
			}
			if b, ok := val.([]byte); ok {
				val = fmt.Sprintf("<%d bytes>", len(b))
			}
			encoded, err := json.Marshal(val)
			if err != nil {
				return "", err
			}
			buf.Write(key)
			buf.WriteString(": ")
			buf.Write(encoded)
		}
		buf.WriteString("}")
	}
	if len(head.Rows) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("]")
	return buf.String(), nil
}

// ConvertSQLRowToResultSet converts sql.Rows to ResultSet. A positive maxRows
// stops scanning after that many rows and marks the result truncated.
func ConvertSQLRowToResultSet(rows *sql.Rows, maxRows int) (*ResultSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &ResultSet{
		Columns: make([]Column, len(columns)),
	}

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	for i, col := range columns {
		nullable, ok := columnTypes[i].Nullable()
		result.Columns[i] = Column{
			Name:     col,
			Type:     mapSQLTypeToValueType(columnTypes[i].DatabaseTypeName()),
			Nullable: nullable || !ok,
		}
	}

	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}

		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := Row{Values: make([]Value, len(columns))}
		for i, val := range values {
			row.Values[i] = convertSQLValueToValue(val, result.Columns[i].Type)
		}

		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// mapSQLTypeToValueType maps driver type names to ValueType
func mapSQLTypeToValueType(sqlType string) ValueType {
	t := strings.ToLower(sqlType)
	switch {
	case strings.Contains(t, "bool"), t == "bit":
		return ValueTypeBoolean
	case strings.Contains(t, "point"), strings.Contains(t, "interval"):
		return ValueTypeText
	case strings.Contains(t, "int"), strings.Contains(t, "serial"):
		return ValueTypeInteger
	case strings.Contains(t, "float"), strings.Contains(t, "double"), strings.Contains(t, "real"),
		strings.Contains(t, "decimal"), strings.Contains(t, "numeric"), t == "number", t == "money":
		return ValueTypeFloat
	case strings.Contains(t, "timestamp"), strings.Contains(t, "datetime"), t == "date":
		return ValueTypeTimestamp
	case strings.Contains(t, "blob"), strings.Contains(t, "binary"), t == "bytea", t == "raw", t == "image":
		return ValueTypeBinary
	default:
		return ValueTypeText
	}
}

// convertSQLValueToValue converts a scanned driver value to Value
func convertSQLValueToValue(val interface{}, expectedType ValueType) Value {
	if val == nil {
		return NewNullValue()
	}

	switch v := val.(type) {
	case int64:
		if expectedType == ValueTypeBoolean {
			return NewBooleanValue(v != 0)
		}
		return NewIntegerValue(v)
	case int32:
		return NewIntegerValue(int64(v))
	case int16:
		return NewIntegerValue(int64(v))
	case int8:
		return NewIntegerValue(int64(v))
	case int:
		return NewIntegerValue(int64(v))
	case uint64:
		// UBIGINT values past the int64 range keep their digits as text.
		if v > math.MaxInt64 {
			return NewTextValue(strconv.FormatUint(v, 10))
		}
		return NewIntegerValue(int64(v))
	case uint:
		if uint64(v) > math.MaxInt64 {
			return NewTextValue(strconv.FormatUint(uint64(v), 10))
		}
		return NewIntegerValue(int64(v))
	case uint32:
		return NewIntegerValue(int64(v))
	case float64:
		return NewFloatValue(v)
	case float32:
		return NewFloatValue(float64(v))
	case string:
		return convertText(v, expectedType)
	case bool:
		return NewBooleanValue(v)
	case []byte:
		// MySQL hands back most column types as raw bytes.
		if expectedType == ValueTypeBinary || !utf8.Valid(v) {
			return NewBinaryValue(append([]byte(nil), v...))
		}
		return convertText(string(v), expectedType)
	case time.Time:
		return NewTimestampValue(v)
	default:
		return NewTextValue(fmt.Sprintf("%v", v))
	}
}

// timestampLayouts are the textual forms drivers use for date columns
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func convertText(s string, expectedType ValueType) Value {
	switch expectedType {
	case ValueTypeInteger:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return NewIntegerValue(n)
		}
	case ValueTypeFloat:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return NewFloatValue(f)
		}
	case ValueTypeBoolean:
		if b, err := strconv.ParseBool(s); err == nil {
			return NewBooleanValue(b)
		}
	case ValueTypeTimestamp:
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return NewTimestampValue(t)
			}
		}
	}
	return NewTextValue(s)
}
