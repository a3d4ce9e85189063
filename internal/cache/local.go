package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"zhenghe/internal/core"
)

// LocalCache implements Cache using local file storage.
// This is suitable for the CLI and single-instance deployments.
type LocalCache struct {
	mu       sync.RWMutex
	filePath string
	ttl      time.Duration
	now      func() time.Time
}

// NewLocalCache creates a new local file-based cache.
// The filePath specifies where the cache file will be stored; entries older
// than ttl are treated as missing (0 disables expiry).
func NewLocalCache(filePath string, ttl time.Duration) *LocalCache {
	return &LocalCache{
		filePath: filePath,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get retrieves the models from the local file.
func (c *LocalCache) Get(ctx context.Context) ([]core.Model, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.filePath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(c.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No cache file yet, not an error
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var list ModelList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}
	if list.expired(c.ttl, c.now()) {
		return nil, nil
	}

	return list.Models, nil
}

// Set stores the models to the local file.
func (c *LocalCache) Set(ctx context.Context, models []core.Model) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.filePath == "" {
		return nil
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	list := ModelList{Version: 1, UpdatedAt: c.now().UTC(), Models: models}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	// Write atomically using temp file + rename
	tmpFile := c.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmpFile, c.filePath); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}

	return nil
}

// Close is a no-op for local cache.
func (c *LocalCache) Close() error {
	return nil
}
