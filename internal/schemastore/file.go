package schemastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore writes dumps as .sql files into a folder
type FileStore struct {
	dir    string
	ttl    time.Duration
	logger *slog.Logger
	expiry *expiry
	now    func() time.Time
}

// NewFileStore creates the folder if needed. A zero TTL keeps dumps until
// they are deleted explicitly.
func NewFileStore(dir string, ttl time.Duration, logger *slog.Logger) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("schema directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create schema directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		dir:    dir,
		ttl:    ttl,
		logger: logger,
		expiry: newExpiry(),
		now:    time.Now,
	}, nil
}

// Dir returns the folder dumps are written to
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Save(ctx context.Context, name, content string) (string, error) {
	key := newKey(name)
	p := filepath.Join(s.dir, key)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("write schema dump: %w", err)
	}

	s.expiry.schedule(key, s.ttl, func() {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("remove expired schema dump", "key", key, "error", err)
			return
		}
		s.logger.Info("schema dump expired", "key", key)
	})
	s.logger.Debug("schema dump saved", "key", key, "bytes", len(content))
	return key, nil
}

func (s *FileStore) Load(ctx context.Context, key string) (string, error) {
	if !validKey(key) {
		return "", ErrInvalidKey
	}
	p := filepath.Join(s.dir, key)
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrExpired
		}
		return "", fmt.Errorf("stat schema dump: %w", err)
	}
	// The timer does not survive restarts.
	if s.ttl > 0 && s.now().Sub(info.ModTime()) > s.ttl {
		_ = os.Remove(p)
		return "", ErrExpired
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrExpired
		}
		return "", fmt.Errorf("read schema dump: %w", err)
	}
	return string(data), nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return ErrInvalidKey
	}
	s.expiry.cancel(key)
	if err := os.Remove(filepath.Join(s.dir, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete schema dump: %w", err)
	}
	return nil
}

// Sweep removes dumps older than the TTL, typically left over from a previous run.
func (s *FileStore) Sweep() (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("list schema directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if s.now().Sub(info.ModTime()) <= s.ttl {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("sweep schema dump", "file", entry.Name(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("swept stale schema dumps", "count", removed)
	}
	return removed, nil
}

// Close stops pending expiry timers. Files stay on disk for the next Sweep.
func (s *FileStore) Close() error {
	s.expiry.stop()
	return nil
}
