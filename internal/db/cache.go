package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"
)

// ConnectFunc opens a database for a configuration
type ConnectFunc func(ctx context.Context, config ConnectionConfig) (*Database, error)

type cachedConnection struct {
	db       *Database
	lastUsed time.Time
	inUse    int
	evicted  bool
}

// ConnectionCache keeps one open Database per credential set so a chat
// session does not reconnect for every question. Sessions with the same
// credentials share the handle. A handle is only closed once no caller holds
// it; idle entries older than the TTL are closed by the cleanup routine.
type ConnectionCache struct {
	connect ConnectFunc
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mutex sync.Mutex
	cache map[string]*cachedConnection
}

// NewConnectionCache creates a cache. A nil connect function uses Connect.
func NewConnectionCache(connect ConnectFunc, ttl time.Duration, logger *slog.Logger) *ConnectionCache {
	if connect == nil {
		connect = Connect
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionCache{
		connect: connect,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		cache:   make(map[string]*cachedConnection),
	}
}

// CacheKey identifies a configuration without exposing the password
func CacheKey(config ConnectionConfig) string {
	h := sha256.New()
	for _, part := range []string{
		string(config.DatabaseType), config.Host, config.Database, config.Username,
		config.Password, config.FilePath, config.SSLMode,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	var port [8]byte
	for i := 0; i < 8; i++ {
		port[i] = byte(config.Port >> (8 * i))
	}
	h.Write(port[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached connection for the configuration, connecting on a
// miss. The handle stays open until the returned release func is called.
func (c *ConnectionCache) Get(ctx context.Context, config ConnectionConfig) (*Database, func(), error) {
	key := CacheKey(config)

	c.mutex.Lock()
	if entry, ok := c.cache[key]; ok {
		release := c.acquire(entry)
		c.mutex.Unlock()
		return entry.db, release, nil
	}
	c.mutex.Unlock()

	database, err := c.connect(ctx, config)
	if err != nil {
		return nil, nil, err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	// Another request may have connected in the meantime.
	if entry, ok := c.cache[key]; ok {
		_ = database.Close()
		return entry.db, c.acquire(entry), nil
	}
	entry := &cachedConnection{db: database}
	c.cache[key] = entry
	c.logger.Debug("cached database connection", "db_type", config.DatabaseType, "host", config.Host, "database", config.Database)
	return database, c.acquire(entry), nil
}

// acquire must be called with the mutex held
func (c *ConnectionCache) acquire(entry *cachedConnection) func() {
	entry.inUse++
	entry.lastUsed = c.now()
	var once sync.Once
	return func() {
		once.Do(func() { c.release(entry) })
	}
}

func (c *ConnectionCache) release(entry *cachedConnection) {
	c.mutex.Lock()
	entry.inUse--
	entry.lastUsed = c.now()
	closeNow := entry.evicted && entry.inUse == 0
	c.mutex.Unlock()

	if closeNow {
		if err := entry.db.Close(); err != nil {
			c.logger.Warn("close evicted connection", "error", err)
		}
	}
}

// Evict forgets the connection for the configuration. It is closed right away
// when idle, otherwise when the last holder releases it. Later Gets open a
// fresh handle.
func (c *ConnectionCache) Evict(config ConnectionConfig) {
	key := CacheKey(config)
	c.mutex.Lock()
	entry, ok := c.cache[key]
	if !ok {
		c.mutex.Unlock()
		return
	}
	delete(c.cache, key)
	entry.evicted = true
	busy := entry.inUse > 0
	c.mutex.Unlock()

	if busy {
		c.logger.Debug("evicted connection still in use, closing on release")
		return
	}
	if err := entry.db.Close(); err != nil {
		c.logger.Warn("close evicted connection", "error", err)
	}
}

// Len returns the number of open cached connections
func (c *ConnectionCache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.cache)
}

// CleanupExpired closes unused connections idle for longer than the TTL
func (c *ConnectionCache) CleanupExpired() int {
	if c.ttl <= 0 {
		return 0
	}
	var expired []*Database

	c.mutex.Lock()
	for key, entry := range c.cache {
		if entry.inUse == 0 && c.now().Sub(entry.lastUsed) > c.ttl {
			expired = append(expired, entry.db)
			delete(c.cache, key)
		}
	}
	c.mutex.Unlock()

	for _, database := range expired {
		if err := database.Close(); err != nil {
			c.logger.Warn("close idle connection", "error", err)
		}
	}
	if len(expired) > 0 {
		c.logger.Info("closed idle database connections", "count", len(expired))
	}
	return len(expired)
}

// StartCleanupRoutine runs CleanupExpired on every tick until ctx is done
func (c *ConnectionCache) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.CleanupExpired()
			}
		}
	}()
}

// Close closes every cached connection
func (c *ConnectionCache) Close() error {
	c.mutex.Lock()
	entries := c.cache
	c.cache = make(map[string]*cachedConnection)
	c.mutex.Unlock()

	var firstErr error
	for _, entry := range entries {
		if err := entry.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
