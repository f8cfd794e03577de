/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based cache of catalog track records for the
// resolver.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_player/internal/models"
)

// DefaultTrackTTL bounds how long a cached record may lag the catalog when no
// change feed is running.
const DefaultTrackTTL = 10 * time.Minute

// Key prefixes for Redis cache
const (
	KeyTrack     = "grimnir:player:track:" // + track_id
	KeyTrackSlug = "grimnir:player:slug:"  // + slug, value is track_id
	keyPattern   = "grimnir:player:*"
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TrackTTL time.Duration

	// DisableOnError turns the cache off after the first Redis error.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		TrackTTL:       DefaultTrackTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a cache. An unreachable Redis yields a disabled cache, not an error.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	if cfg.TrackTTL <= 0 {
		cfg.TrackTTL = DefaultTrackTTL
	}
	logger = logger.With().Str("component", "cache").Logger()

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		_ = client.Close()
		return &Cache{logger: logger, config: cfg, disabled: true}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")
	return &Cache{client: client, logger: logger, config: cfg}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

func (c *Cache) get(ctx context.Context, key string, dest any) bool {
	if !c.IsAvailable() {
		return false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		c.handleError(err, "get")
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false
	}
	return true
}

// GetTrack returns the cached record for id.
func (c *Cache) GetTrack(ctx context.Context, id string) (*models.Track, bool) {
	var track models.Track
	if !c.get(ctx, KeyTrack+id, &track) {
		return nil, false
	}
	return &track, true
}

// GetTrackBySlug follows the slug index to the cached record.
func (c *Cache) GetTrackBySlug(ctx context.Context, slug string) (*models.Track, bool) {
	if !c.IsAvailable() {
		return nil, false
	}
	id, err := c.client.Get(ctx, KeyTrackSlug+slug).Result()
	if err != nil {
		c.handleError(err, "get_slug")
		return nil, false
	}
	track, ok := c.GetTrack(ctx, id)
	if !ok || track.Slug != slug {
		return nil, false
	}
	return track, true
}

// SetTrack caches a record under its id and, when present, its slug.
func (c *Cache) SetTrack(ctx context.Context, track *models.Track) error {
	if !c.IsAvailable() || track == nil || track.ID == "" {
		return nil
	}

	data, err := json.Marshal(track)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, KeyTrack+track.ID, data, c.config.TrackTTL)
	if track.Slug != "" {
		pipe.Set(ctx, KeyTrackSlug+track.Slug, track.ID, c.config.TrackTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.handleError(err, "set")
		return err
	}
	return nil
}

// InvalidateTrack drops the record for id. A stale slug index entry is
// harmless: it resolves to a missing record and is treated as a miss.
func (c *Cache) InvalidateTrack(ctx context.Context, id string) error {
	if !c.IsAvailable() {
		return nil
	}
	if err := c.client.Del(ctx, KeyTrack+id).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}
	return nil
}

// FlushAll removes all player cache keys.
func (c *Cache) FlushAll(ctx context.Context) error {
	if !c.IsAvailable() {
		return nil
	}

	c.logger.Warn().Msg("flushing all cache data")

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyPattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
