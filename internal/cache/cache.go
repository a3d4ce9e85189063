// Package cache provides a cache abstraction for the models listing.
// Supports both local (file) and Redis backends for multi-instance deployments.
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"zhenghe/internal/core"
)

// keyPrefix namespaces every cache key written by this module.
const keyPrefix = "zhenghe:models:"

// ModelList is the data that gets stored and retrieved from the cache.
type ModelList struct {
	Version   int          `json:"version"`
	UpdatedAt time.Time    `json:"updated_at"`
	Models    []core.Model `json:"models"`
}

// expired reports whether the entry is older than ttl. A zero ttl never expires.
func (m *ModelList) expired(ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(m.UpdatedAt) > ttl
}

// Cache defines the interface for model cache storage.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves the cached models.
	// Returns nil, nil if no (fresh) cache exists yet.
	Get(ctx context.Context) ([]core.Model, error)

	// Set stores the models.
	Set(ctx context.Context, models []core.Model) error

	// Close releases any resources held by the cache.
	Close() error
}

// Key derives a cache key for the models visible to apiKey at baseURL.
// The key is a hash so API keys never appear in file names or Redis.
func Key(baseURL, apiKey string) string {
	d := xxhash.New()
	_, _ = d.WriteString(baseURL)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(apiKey)
	return keyPrefix + strconv.FormatUint(d.Sum64(), 16)
}
