package db

import (
	"context"
	"errors"
)

// ErrNoRows is returned by QueryRow when the query produced nothing
var ErrNoRows = errors.New("no rows found")

// Result reports the effect of a statement
type Result struct {
	RowsAffected int64
}

// Execute executes a non-query SQL statement
func (db *Database) Execute(ctx context.Context, query string, args ...interface{}) (*Result, error) {
	result, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	rowsAffected, _ := result.RowsAffected()
	return &Result{RowsAffected: rowsAffected}, nil
}

// Query executes a query and returns the full result set
func (db *Database) Query(ctx context.Context, query string, args ...interface{}) (*ResultSet, error) {
	return db.QueryLimit(ctx, 0, query, args...)
}

// QueryLimit executes a query and keeps at most maxRows rows. Zero means no cap.
func (db *Database) QueryLimit(ctx context.Context, maxRows int, query string, args ...interface{}) (*ResultSet, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return ConvertSQLRowToResultSet(rows, maxRows)
}

// QueryRow executes a query that returns a single row
func (db *Database) QueryRow(ctx context.Context, query string, args ...interface{}) (*Row, error) {
	rs, err := db.QueryLimit(ctx, 1, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rs.Rows) == 0 {
		return nil, ErrNoRows
	}
	return &rs.Rows[0], nil
}
