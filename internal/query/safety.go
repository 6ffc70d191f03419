package query

import (
	"errors"
	"strings"
)

// ErrUnsafeQuery is returned when a statement contains a denied keyword
var ErrUnsafeQuery = errors.New("unsafe query detected")

// UnsafeKeywords are rejected anywhere in a statement
var UnsafeKeywords = []string{"DROP", "DELETE", "UPDATE", "INSERT", "ALTER", "TRUNCATE"}

// IsSafeQuery reports whether the statement is free of every unsafe keyword.
// Matching is a plain case-insensitive substring test, so identifiers such as
// updated_at are rejected too.
func IsSafeQuery(sql string) bool {
	_, found := UnsafeKeyword(sql)
	return !found
}

// UnsafeKeyword returns the first denied keyword found in the statement
func UnsafeKeyword(sql string) (string, bool) {
	upper := strings.ToUpper(sql)
	for _, kw := range UnsafeKeywords {
		if strings.Contains(upper, kw) {
			return kw, true
		}
	}
	return "", false
}
