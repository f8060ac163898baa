package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/krs-admission-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteMatching(ctx context.Context, fragment string) (int, error)
	DeleteExpired(ctx context.Context) error
}

// CacheService orchestrates cache operations and related metrics.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger.Named("cache"), enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores the value in cache. A non-positive ttl falls back to the default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate removes a single key.
func (s *CacheService) Invalidate(ctx context.Context, key string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// ClearByPrefix drops every entry whose key contains fragment, typically a period identifier.
func (s *CacheService) ClearByPrefix(ctx context.Context, fragment string) error {
	if !s.Enabled() || fragment == "" {
		return nil
	}
	deleted, err := s.repo.DeleteMatching(ctx, fragment)
	if err != nil {
		s.logger.Warn("cache clear failed", zap.String("fragment", fragment), zap.Error(err))
		return err
	}
	s.logger.Debug("cache cleared", zap.String("fragment", fragment), zap.Int("deleted", deleted))
	return nil
}

// SweepExpired evicts entries past their TTL.
func (s *CacheService) SweepExpired(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.repo.DeleteExpired(ctx); err != nil {
		s.logger.Warn("cache sweep failed", zap.Error(err))
		return err
	}
	return nil
}
