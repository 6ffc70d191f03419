// Package query pulls SQL out of model replies, screens it against the
// write-keyword denylist and runs it against the user's database.
package query

import (
	"regexp"
	"strings"
)

var fencedSQL = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)\\s*```")

// ExtractSQL returns the body of the first fenced code block in the reply, or
// the trimmed reply when there is none. fenced reports which case applied.
func ExtractSQL(reply string) (sql string, fenced bool) {
	reply = strings.TrimSpace(reply)
	if m := fencedSQL.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return reply, false
}

var sqlLead = regexp.MustCompile(`(?is)^\(*\s*(SELECT|WITH|SHOW|DESCRIBE|DESC|EXPLAIN|VALUES|TABLE|PRAGMA)\b`)

// LooksLikeSQL reports whether text starts with a read statement keyword
func LooksLikeSQL(text string) bool {
	return sqlLead.MatchString(strings.TrimSpace(text))
}
