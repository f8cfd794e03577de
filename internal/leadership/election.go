/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership elects one player instance to run shared background
// work, using a Redis lease.
package leadership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_player/internal/telemetry"
)

const (
	defaultElectionKey     = "grimnir:player:leader"
	defaultLeaseDuration   = 15 * time.Second
	defaultRenewalInterval = 5 * time.Second
)

// renewScript extends the lease only while this instance still holds it.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the lease only while this instance still holds it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ElectionConfig configures leader election.
type ElectionConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Key is the Redis key holding the current leader's instance ID.
	Key string

	// LeaseDuration is how long a lease survives without renewal.
	LeaseDuration time.Duration

	// RenewalInterval is how often the leader renews and followers campaign.
	RenewalInterval time.Duration

	InstanceID string
}

// DefaultConfig returns default election configuration.
func DefaultConfig() ElectionConfig {
	return ElectionConfig{
		RedisAddr:       "localhost:6379",
		Key:             defaultElectionKey,
		LeaseDuration:   defaultLeaseDuration,
		RenewalInterval: defaultRenewalInterval,
		InstanceID:      uuid.NewString(),
	}
}

// Election campaigns for a Redis lease until stopped.
type Election struct {
	client *redis.Client
	cfg    ElectionConfig
	logger zerolog.Logger

	leader atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewElection connects to Redis and returns an election that has not started
// campaigning.
func NewElection(cfg ElectionConfig, logger zerolog.Logger) (*Election, error) {
	if cfg.Key == "" {
		cfg.Key = defaultElectionKey
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = defaultLeaseDuration
	}
	if cfg.RenewalInterval <= 0 {
		cfg.RenewalInterval = defaultRenewalInterval
	}
	if cfg.RenewalInterval >= cfg.LeaseDuration {
		return nil, fmt.Errorf("renewal interval %s must be shorter than lease %s", cfg.RenewalInterval, cfg.LeaseDuration)
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis for leader election: %w", err)
	}

	logger = logger.With().Str("component", "leader_election").Str("instance_id", cfg.InstanceID).Logger()
	logger.Info().Str("redis_addr", cfg.RedisAddr).Str("key", cfg.Key).Msg("leader election ready")

	return &Election{client: client, cfg: cfg, logger: logger}, nil
}

// InstanceID identifies this campaigner.
func (e *Election) InstanceID() string {
	return e.cfg.InstanceID
}

// IsLeader reports whether this instance currently holds the lease.
func (e *Election) IsLeader() bool {
	return e.leader.Load()
}

// Start begins campaigning in the background.
func (e *Election) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.campaign(ctx, e.done)
}

// Stop ends the campaign, releases a held lease and closes the client.
func (e *Election) Stop() error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	if e.leader.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := releaseScript.Run(ctx, e.client, []string{e.cfg.Key}, e.cfg.InstanceID).Err(); err != nil {
			e.logger.Warn().Err(err).Msg("failed to release leadership")
		}
		cancel()
		e.setLeader(false)
	}
	return e.client.Close()
}

func (e *Election) campaign(ctx context.Context, done chan struct{}) {
	defer close(done)

	e.attempt(ctx)
	ticker := time.NewTicker(e.cfg.RenewalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.attempt(ctx)
		}
	}
}

func (e *Election) attempt(ctx context.Context) {
	held, err := e.acquire(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			e.logger.Warn().Err(err).Msg("leadership attempt failed")
		}
		e.setLeader(false)
		return
	}
	e.setLeader(held)
}

// acquire takes a free lease or renews one this instance already holds.
func (e *Election) acquire(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, e.cfg.Key, e.cfg.InstanceID, e.cfg.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("set lease: %w", err)
	}
	if ok {
		return true, nil
	}

	renewed, err := renewScript.Run(ctx, e.client, []string{e.cfg.Key}, e.cfg.InstanceID, e.cfg.LeaseDuration.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return renewed == 1, nil
}

func (e *Election) setLeader(held bool) {
	if e.leader.Swap(held) == held {
		return
	}
	if held {
		telemetry.LeaderStatus.Set(1)
		e.logger.Info().Msg("acquired leadership")
	} else {
		telemetry.LeaderStatus.Set(0)
		e.logger.Warn().Msg("lost leadership")
	}
}
