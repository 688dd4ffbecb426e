// Package service orchestrates cache-aside reads, write-through
// updates and cache invalidation across the durable store and the
// cache. The durable store is the sole source of truth; every cache
// failure is recovered locally and never reaches the caller.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bhdrerdem/config-server/internal/apperr"
	"github.com/bhdrerdem/config-server/internal/metrics"
	"github.com/bhdrerdem/config-server/internal/model"
	"github.com/bhdrerdem/config-server/internal/store"
	"go.uber.org/zap"
)

const (
	configCollection = "configurations"
	cacheKeyPrefix   = "configuration:"
	cacheTTL         = 3600 * time.Second
)

// ConfigurationService implements the configuration operations.
type ConfigurationService struct {
	store   store.DocumentStore
	cache   store.Cache
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewConfigurationService creates a new configuration service. The
// metrics argument may be nil.
func NewConfigurationService(
	documents store.DocumentStore,
	cache store.Cache,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ConfigurationService {
	return &ConfigurationService{
		store:   documents,
		cache:   cache,
		metrics: m,
		logger:  logger,
	}
}

// Create validates and persists a new configuration. The cache is not
// populated here; the first read does that lazily.
func (s *ConfigurationService) Create(ctx context.Context, in model.Input) (*model.Configuration, error) {
	cfg, err := model.NewConfiguration(in)
	if err != nil {
		return nil, err
	}

	id, err := s.store.Create(ctx, configCollection, cfg.Fields())
	s.recordStoreOp("create", err)
	if err != nil {
		return nil, apperr.Internal("failed to create configuration", err)
	}

	cfg.ID = id
	return cfg, nil
}

// GetByID reads a configuration cache-aside: cache first, falling
// back to the durable store on a miss or any cache failure, then
// best-effort populating the cache.
func (s *ConfigurationService) GetByID(ctx context.Context, id string) (*model.Configuration, error) {
	key := cacheKeyPrefix + id

	if cfg := s.cacheLookup(ctx, key); cfg != nil {
		return cfg, nil
	}

	data, err := s.store.GetByID(ctx, configCollection, id)
	s.recordStoreOp("get", err)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(fmt.Sprintf("configuration %s not found", id))
		}
		return nil, apperr.Internal("failed to get configuration", err)
	}

	cfg, err := model.FromRecord(data, id)
	if err != nil {
		return nil, apperr.Internal("failed to convert configuration", err)
	}

	s.cachePopulate(ctx, key, cfg)
	return cfg, nil
}

// Update applies changes to an existing configuration with an
// optimistic-concurrency version check, persists them, then
// best-effort refreshes the cache entry.
func (s *ConfigurationService) Update(ctx context.Context, id string, in model.Update) (*model.Configuration, error) {
	cfg, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Version != nil && *in.Version != cfg.Version {
		return nil, apperr.Conflict(
			"the provided version shows that the entity has been updated in the meantime, please re-fetch the resource first")
	}

	if err := cfg.Apply(in); err != nil {
		return nil, err
	}

	cfg.UpdatedAt = time.Now().UTC()
	cfg.Version++

	err = s.store.Update(ctx, configCollection, id, map[string]any{
		"parameterKey": cfg.ParameterKey,
		"value":        cfg.Value,
		"description":  cfg.Description,
		"updatedAt":    cfg.UpdatedAt,
		"version":      cfg.Version,
	})
	s.recordStoreOp("update", err)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(fmt.Sprintf("configuration %s not found", id))
		}
		return nil, apperr.Internal("failed to update configuration", err)
	}

	s.cachePopulate(ctx, cacheKeyPrefix+id, cfg)
	return cfg, nil
}

// Delete removes a configuration from the durable store and then
// best-effort evicts the cache entry. Eviction is attempted even when
// the store delete failed, so a stale entry cannot outlive a
// partially-failed delete.
func (s *ConfigurationService) Delete(ctx context.Context, id string) error {
	storeErr := s.store.Delete(ctx, configCollection, id)
	s.recordStoreOp("delete", storeErr)

	s.bestEffort("delete", func() error {
		return s.cache.Delete(ctx, cacheKeyPrefix+id)
	})

	if storeErr != nil {
		if errors.Is(storeErr, store.ErrNotFound) {
			return apperr.NotFound(fmt.Sprintf("configuration %s not found", id))
		}
		return apperr.Internal("failed to delete configuration", storeErr)
	}

	return nil
}

// GetAll returns every configuration. A conversion failure anywhere
// aborts the whole call; a partial listing is worse than none.
func (s *ConfigurationService) GetAll(ctx context.Context) ([]*model.Configuration, error) {
	records, err := s.store.QueryAll(ctx, configCollection)
	s.recordStoreOp("query_all", err)
	if err != nil {
		return nil, apperr.Internal("failed to get configurations", err)
	}

	configs := make([]*model.Configuration, 0, len(records))
	for _, record := range records {
		cfg, err := model.FromRecord(record.Data, record.ID)
		if err != nil {
			return nil, apperr.Internal("failed to convert configurations", err)
		}
		configs = append(configs, cfg)
	}

	return configs, nil
}

// GetAllForMobile returns a parameterKey to value mapping built from a
// projected query, so full documents never leave the store.
func (s *ConfigurationService) GetAllForMobile(ctx context.Context) (map[string]string, error) {
	rows, err := s.store.QueryProjected(ctx, configCollection, []string{"parameterKey", "value"})
	s.recordStoreOp("query_projected", err)
	if err != nil {
		return nil, apperr.Internal("failed to get configurations", err)
	}

	result := make(map[string]string, len(rows))
	for _, row := range rows {
		key, ok := row["parameterKey"].(string)
		if !ok {
			continue
		}
		value, _ := row["value"].(string)
		result[key] = value
	}

	return result, nil
}

// cacheLookup attempts a cache read. Misses and failures both return
// nil; failures are logged and counted, never surfaced.
func (s *ConfigurationService) cacheLookup(ctx context.Context, key string) *model.Configuration {
	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to get configuration from cache",
				zap.String("key", key),
				zap.Error(err))
			if s.metrics != nil {
				s.metrics.RecordCacheError("get")
			}
		}
		if s.metrics != nil {
			s.metrics.RecordCacheMiss()
		}
		return nil
	}

	var cfg model.Configuration
	if err := json.Unmarshal([]byte(cached), &cfg); err != nil {
		s.logger.Warn("failed to decode cached configuration",
			zap.String("key", key),
			zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordCacheMiss()
		}
		return nil
	}

	if s.metrics != nil {
		s.metrics.RecordCacheHit()
	}
	return &cfg
}

// cachePopulate best-effort stores the serialized entity under key
// with the fixed TTL.
func (s *ConfigurationService) cachePopulate(ctx context.Context, key string, cfg *model.Configuration) {
	s.bestEffort("set", func() error {
		data, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		return s.cache.Set(ctx, key, string(data), cacheTTL)
	})
}

// bestEffort runs a cache operation and converts any failure into a
// logged no-op. The cache is advisory; its failures must never change
// the outcome of a request.
func (s *ConfigurationService) bestEffort(operation string, fn func() error) {
	if err := fn(); err != nil {
		s.logger.Warn("cache operation failed",
			zap.String("operation", operation),
			zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordCacheError(operation)
		}
	}
}

func (s *ConfigurationService) recordStoreOp(operation string, err error) {
	if s.metrics != nil {
		s.metrics.RecordStoreOp(operation, err)
	}
}
