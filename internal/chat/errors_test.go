package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		err     error
		code    string
		message string
	}{
		{ErrEmptyQuestion, CodeEmptyQuestion, "Please enter a question."},
		{ErrNotConnected, CodeNotConnected, "No database connected!"},
		{ErrSessionExpired, CodeSessionExpired, "Session expired! Please reconnect to your database."},
		{fmt.Errorf("%w: contains DROP", ErrUnsafeQuery), CodeUnsafeQuery, "Unsafe query detected. Execution blocked."},
		{&QueryError{Err: errors.New("no such table: orders")}, CodeQueryFailed, "Query failed: no such table: orders"},
		{fmt.Errorf("query stream: %w", context.Canceled), CodeCancelled, "Request cancelled."},
		{errors.New("markdown completion: boom"), CodeInternal, "Query failed: markdown completion: boom"},
		{fmt.Errorf("query completion: %w", errors.New("429 Too Many Requests")), CodeInternal, "Query failed: query completion: 429 Too Many Requests"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := Describe(tt.err)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.message, got.Message)
		})
	}
}
