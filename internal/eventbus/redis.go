/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_player/internal/catalogsync"
)

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string

	// Connection pooling
	PoolSize     int
	MinIdleConns int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Channel:      "catalog.tracks",
		PoolSize:     4,
		MinIdleConns: 1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// RedisSource subscribes to a Redis pub/sub channel carrying catalog change
// notifications.
type RedisSource struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

// NewRedisSource creates a source. The connection is established by Run.
func NewRedisSource(cfg RedisConfig, logger zerolog.Logger) *RedisSource {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	return &RedisSource{
		client:  client,
		channel: cfg.Channel,
		logger:  logger.With().Str("source", "redis").Str("channel", cfg.Channel).Logger(),
	}
}

// Name implements catalogsync.Source.
func (s *RedisSource) Name() string { return "redis" }

// Run implements catalogsync.Source. go-redis reconnects the subscription on
// its own; Run returns when ctx ends or the channel is closed.
func (s *RedisSource) Run(ctx context.Context, sink catalogsync.Sink) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		setConnected(s.Name(), false)
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	setConnected(s.Name(), true)
	defer setConnected(s.Name(), false)
	s.logger.Info().Msg("subscribed to catalog changes")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			deliver(sink, s.Name(), []byte(msg.Payload))
		}
	}
}

// Publish sends a change notification on the source's channel.
func (s *RedisSource) Publish(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.client.Publish(ctx, s.channel, payload).Err()
}

// Close closes the Redis client.
func (s *RedisSource) Close() error {
	return s.client.Close()
}
