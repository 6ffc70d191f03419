package chat

import (
	"context"
	"errors"
)

// QueryError is returned when the database rejects a generated statement
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string { return e.Err.Error() }

func (e *QueryError) Unwrap() error { return e.Err }

// Failure codes shared by the page, JSON and socket surfaces
const (
	CodeEmptyQuestion  = "empty_question"
	CodeNotConnected   = "not_connected"
	CodeSessionExpired = "session_expired"
	CodeUnsafeQuery    = "unsafe_query"
	CodeQueryFailed    = "query_failed"
	CodeCancelled      = "cancelled"
	CodeInternal       = "internal"
)

// Failure is the user facing form of a pipeline error
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

// Describe maps a pipeline error to the status line shown to the user
func Describe(err error) Failure {
	var qe *QueryError
	switch {
	case errors.Is(err, ErrEmptyQuestion):
		return Failure{Code: CodeEmptyQuestion, Message: "Please enter a question."}
	case errors.Is(err, ErrNotConnected):
		return Failure{Code: CodeNotConnected, Message: "No database connected!"}
	case errors.Is(err, ErrSessionExpired):
		return Failure{Code: CodeSessionExpired, Message: "Session expired! Please reconnect to your database."}
	case errors.Is(err, ErrUnsafeQuery):
		return Failure{Code: CodeUnsafeQuery, Message: "Unsafe query detected. Execution blocked."}
	case errors.As(err, &qe):
		return Failure{Code: CodeQueryFailed, Message: "Query failed: " + qe.Err.Error()}
	case errors.Is(err, context.Canceled):
		return Failure{Code: CodeCancelled, Message: "Request cancelled."}
	default:
		return Failure{Code: CodeInternal, Message: "Query failed: " + err.Error()}
	}
}
