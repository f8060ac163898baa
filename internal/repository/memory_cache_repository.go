package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	appErrors "github.com/noah-isme/krs-admission-api/pkg/errors"
)

type cacheEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryCacheRepository keeps JSON-encoded entries in a process-local TTL cache.
// Expiry is judged against the repository clock: expired entries read as misses immediately
// and are evicted by DeleteExpired.
type MemoryCacheRepository struct {
	store      *ttlcache.Cache[string, cacheEntry]
	clock      clock.PassiveClock
	defaultTTL time.Duration
	logger     *zap.Logger
}

// MemoryCacheOption customises a MemoryCacheRepository.
type MemoryCacheOption func(*MemoryCacheRepository)

// WithCacheClock sets the clock entry expiry is measured against.
func WithCacheClock(c clock.PassiveClock) MemoryCacheOption {
	return func(r *MemoryCacheRepository) {
		if c != nil {
			r.clock = c
		}
	}
}

// NewMemoryCacheRepository constructs an in-memory cache with defaultTTL applied when Set gets no TTL.
func NewMemoryCacheRepository(defaultTTL time.Duration, logger *zap.Logger, opts ...MemoryCacheOption) *MemoryCacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	store := ttlcache.New[string, cacheEntry](
		ttlcache.WithTTL[string, cacheEntry](defaultTTL),
		ttlcache.WithDisableTouchOnHit[string, cacheEntry](),
	)
	store.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, cacheEntry]) {
		if reason == ttlcache.EvictionReasonExpired {
			logger.Debug("cache entry expired", zap.String("key", item.Key()))
		}
	})
	r := &MemoryCacheRepository{store: store, clock: clock.RealClock{}, defaultTTL: defaultTTL, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get retrieves and unmarshals the cached value into dest.
func (r *MemoryCacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	item := r.store.Get(key)
	if item == nil || r.expired(item.Value()) {
		return appErrors.ErrCacheMiss
	}
	if err := json.Unmarshal(item.Value().payload, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

// Set marshals value and stores it with the given TTL.
func (r *MemoryCacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	r.store.Set(key, cacheEntry{payload: payload, expiresAt: r.clock.Now().Add(ttl)}, ttl)
	return nil
}

// Delete removes a single key.
func (r *MemoryCacheRepository) Delete(ctx context.Context, key string) error {
	r.store.Delete(key)
	return nil
}

// DeleteMatching removes every key containing fragment.
func (r *MemoryCacheRepository) DeleteMatching(ctx context.Context, fragment string) (int, error) {
	deleted := 0
	for _, key := range r.store.Keys() {
		if strings.Contains(key, fragment) {
			r.store.Delete(key)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteExpired evicts entries whose TTL has elapsed.
func (r *MemoryCacheRepository) DeleteExpired(ctx context.Context) error {
	r.store.DeleteExpired()

	var stale []string
	r.store.Range(func(item *ttlcache.Item[string, cacheEntry]) bool {
		if r.expired(item.Value()) {
			stale = append(stale, item.Key())
		}
		return true
	})
	for _, key := range stale {
		r.store.Delete(key)
	}
	if len(stale) > 0 {
		r.logger.Debug("cache entries swept", zap.Int("count", len(stale)))
	}
	return nil
}

func (r *MemoryCacheRepository) expired(entry cacheEntry) bool {
	return !r.clock.Now().Before(entry.expiresAt)
}
