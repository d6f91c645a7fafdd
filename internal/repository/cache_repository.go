package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/course-optimizer/pkg/errors"
)

// DefaultCachePrefix namespaces every key the optimizer writes to Redis.
const DefaultCachePrefix = "course-optimizer:"

// CacheRepository stores JSON values in Redis under a key prefix. A nil client turns every
// read into a miss and every write into a no-op, so run progress degrades to database
// state when Redis is down.
type CacheRepository struct {
	client  redis.UniversalClient
	prefix  string
	logger  *zap.Logger
	onWrite func(time.Duration)
}

// CacheOption customises a CacheRepository.
type CacheOption func(*CacheRepository)

// WithCachePrefix replaces DefaultCachePrefix.
func WithCachePrefix(prefix string) CacheOption {
	return func(r *CacheRepository) { r.prefix = prefix }
}

// WithWriteObserver reports the latency of every successful write.
func WithWriteObserver(observe func(time.Duration)) CacheOption {
	return func(r *CacheRepository) { r.onWrite = observe }
}

// NewCacheRepository constructs a cache repository. client may be nil.
func NewCacheRepository(client redis.UniversalClient, logger *zap.Logger, opts ...CacheOption) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &CacheRepository{prefix: DefaultCachePrefix, logger: logger}
	// A typed nil *redis.Client must not count as a configured client.
	if c, ok := client.(*redis.Client); !ok || c != nil {
		r.client = client
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get loads key into dest. Missing keys yield appErrors.ErrCacheMiss.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return appErrors.ErrCacheMiss
	case err != nil:
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// Undecodable values are dropped and reported as a miss.
		r.logger.Warn("discarding undecodable cache value", zap.String("key", key), zap.Error(err))
		r.client.Del(ctx, r.prefix+key) //nolint:errcheck
		return appErrors.ErrCacheMiss
	}
	return nil
}

// Set stores value as JSON. A non-positive ttl keeps the key until it is overwritten.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	began := time.Now()
	if err := r.client.Set(ctx, r.prefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	if r.onWrite != nil {
		r.onWrite(time.Since(began))
	}
	return nil
}
