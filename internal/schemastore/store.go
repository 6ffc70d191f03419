// Package schemastore keeps the rendered schema of a connected database for
// the lifetime of a chat session. Dumps delete themselves after a TTL; a
// session whose dump is gone has to reconnect.
package schemastore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrExpired is returned by Load once a dump has been deleted
var ErrExpired = errors.New("schema dump expired")

// ErrInvalidKey is returned for keys that were not produced by Save
var ErrInvalidKey = errors.New("invalid schema key")

// Store persists schema dumps
type Store interface {
	Save(ctx context.Context, name, content string) (string, error)
	Load(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// DumpName is the base name of a dump: {database}_{db_type}
func DumpName(database, dbType string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(database), "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "database"
	}
	return base + "_" + strings.ToLower(strings.TrimSpace(dbType))
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// newKey turns a dump name into a unique object key ending in .sql
func newKey(name string) string {
	name = unsafeKeyChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "schema"
	}
	return fmt.Sprintf("%s_%s.sql", name, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

func validKey(key string) bool {
	return key != "" && !unsafeKeyChars.MatchString(key) && !strings.HasPrefix(key, ".") &&
		strings.HasSuffix(key, ".sql")
}

// expiry runs a delete callback for each key once its TTL has elapsed
type expiry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newExpiry() *expiry {
	return &expiry{timers: make(map[string]*time.Timer)}
}

func (e *expiry) schedule(key string, ttl time.Duration, fn func()) {
	if ttl <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.timers[key]; ok {
		t.Stop()
	}
	e.timers[key] = time.AfterFunc(ttl, func() {
		e.mu.Lock()
		delete(e.timers, key)
		e.mu.Unlock()
		fn()
	})
}

func (e *expiry) cancel(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.timers[key]; ok {
		t.Stop()
		delete(e.timers, key)
	}
}

func (e *expiry) pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}

func (e *expiry) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, t := range e.timers {
		t.Stop()
		delete(e.timers, key)
	}
}
