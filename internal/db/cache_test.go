package db

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func mockConnect(t *testing.T, calls *int32) ConnectFunc {
	return func(ctx context.Context, config ConnectionConfig) (*Database, error) {
		atomic.AddInt32(calls, 1)
		sqlDB, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock.New() error = %v", err)
		}
		mock.ExpectClose()
		return NewDatabase(sqlDB, config), nil
	}
}

func TestConnectionCacheReusesConnection(t *testing.T) {
	var calls int32
	cache := NewConnectionCache(mockConnect(t, &calls), time.Minute, nil)
	cfg := ConnectionConfig{DatabaseType: DatabaseTypeMySQL, Host: "db", Username: "app", Password: "pw"}

	first, releaseFirst, err := cache.Get(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	releaseFirst()
	second, releaseSecond, err := cache.Get(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer releaseSecond()
	if first != second {
		t.Fatal("expected the cached connection to be reused")
	}
	if calls != 1 {
		t.Fatalf("connect calls = %d, want 1", calls)
	}

	other := cfg
	other.Password = "different"
	_, releaseOther, err := cache.Get(context.Background(), other)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer releaseOther()
	if cache.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", cache.Len())
	}
}

func TestConnectionCacheCleanupExpired(t *testing.T) {
	var calls int32
	cache := NewConnectionCache(mockConnect(t, &calls), time.Minute, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cfg := ConnectionConfig{DatabaseType: DatabaseTypePostgreSQL, Host: "pg"}
	_, release, err := cache.Get(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	now = now.Add(2 * time.Minute)
	if n := cache.CleanupExpired(); n != 0 {
		t.Fatalf("CleanupExpired() = %d while the handle is held", n)
	}

	release()
	now = now.Add(30 * time.Second)
	if n := cache.CleanupExpired(); n != 0 {
		t.Fatalf("CleanupExpired() = %d before ttl", n)
	}

	now = now.Add(2 * time.Minute)
	if n := cache.CleanupExpired(); n != 1 {
		t.Fatalf("CleanupExpired() = %d, want 1", n)
	}
	if cache.Len() != 0 {
		t.Fatalf("Len() = %d after cleanup", cache.Len())
	}
}

func TestConnectionCacheEvictKeepsHandleOpenWhileHeld(t *testing.T) {
	var calls int32
	cache := NewConnectionCache(mockConnect(t, &calls), time.Minute, nil)
	cfg := ConnectionConfig{DatabaseType: DatabaseTypeMySQL, Host: "db", Username: "app", Password: "pw"}
	ctx := context.Background()

	sessionA, releaseA, err := cache.Get(ctx, cfg)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	sessionB, releaseB, err := cache.Get(ctx, cfg)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if sessionA != sessionB {
		t.Fatal("same credentials should share one handle")
	}

	releaseA()
	cache.Evict(cfg)
	if cache.Len() != 0 {
		t.Fatalf("Len() = %d after evict", cache.Len())
	}
	if err := sessionB.GetDB().PingContext(ctx); err != nil {
		t.Fatalf("held handle was closed by evict: %v", err)
	}

	releaseB()
	releaseB()
	if err := sessionB.GetDB().PingContext(ctx); err == nil {
		t.Fatal("evicted handle should close after the last release")
	}

	fresh, releaseFresh, err := cache.Get(ctx, cfg)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer releaseFresh()
	if fresh == sessionB || calls != 2 {
		t.Fatalf("expected a new connection after evict, calls = %d", calls)
	}
}

func TestConnectionCacheEvictAndErrors(t *testing.T) {
	var calls int32
	cache := NewConnectionCache(mockConnect(t, &calls), time.Minute, nil)
	cfg := ConnectionConfig{DatabaseType: DatabaseTypeSQLite, FilePath: "a.db"}

	database, release, err := cache.Get(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	release()
	cache.Evict(cfg)
	if cache.Len() != 0 {
		t.Fatalf("Len() = %d after evict", cache.Len())
	}
	if err := database.GetDB().Ping(); err == nil {
		t.Fatal("idle handle should close on evict")
	}
	cache.Evict(cfg)

	failing := NewConnectionCache(func(ctx context.Context, config ConnectionConfig) (*Database, error) {
		return nil, errors.New("refused")
	}, time.Minute, nil)
	if _, _, err := failing.Get(context.Background(), cfg); err == nil {
		t.Fatal("expected connect error")
	}
	if failing.Len() != 0 {
		t.Fatal("failed connections must not be cached")
	}
}

func TestCacheKeyHidesPassword(t *testing.T) {
	key := CacheKey(ConnectionConfig{Password: "hunter2"})
	if len(key) != 64 {
		t.Fatalf("unexpected key length %d", len(key))
	}
	if CacheKey(ConnectionConfig{Port: 1}) == CacheKey(ConnectionConfig{Port: 2}) {
		t.Fatal("port must be part of the key")
	}
}
