/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// CatalogEventSource selects where catalog change notifications come from.
type CatalogEventSource string

const (
	EventSourceNone     CatalogEventSource = "none"
	EventSourceRedis    CatalogEventSource = "redis"
	EventSourceNATS     CatalogEventSource = "nats"
	EventSourcePostgres CatalogEventSource = "postgres"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	DBBackend   DatabaseBackend
	DBDSN       string
	MetricsBind string

	// Media URL resolution
	MediaRoot             string
	StorageBaseURL        string // Public base URL relative paths are joined onto
	PlaceholderArtworkURL string // Used when a track has no cover

	// S3 Object Storage configuration
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3PublicBaseURL   string // Optional CDN/CloudFront URL
	S3UsePathStyle    bool   // Required for MinIO
	S3PresignTTL      time.Duration

	// Viewer identity. Empty disables bearer token parsing (everyone is anonymous).
	JWTSigningKey string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Redis (resolved item cache, optional change feed)
	CacheEnabled    bool
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	ResolvedItemTTL time.Duration

	// Catalog change feed
	CatalogEventSource  CatalogEventSource
	CatalogEventChannel string // Redis channel, NATS subject, or Postgres LISTEN channel
	NATSURL             string
	SyncDebounce        time.Duration
	InstanceID          string

	// Playback policy
	DefaultVolume       float64
	SkipOnPlaybackError bool

	// Smart playlists
	PlaylistRefreshInterval time.Duration // 0 disables scheduled refresh of global playlists
	LeaderElectionEnabled   bool          // Gate scheduled refresh on a Redis lease

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"GRIMNIR_ENV", "PLAYER_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"GRIMNIR_HTTP_BIND", "PLAYER_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"GRIMNIR_HTTP_PORT", "PLAYER_HTTP_PORT"}, 8080),
		DBBackend:   DatabaseBackend(getEnvAny([]string{"GRIMNIR_DB_BACKEND", "PLAYER_DB_BACKEND"}, string(DatabasePostgres))),
		DBDSN:       getEnvAny([]string{"GRIMNIR_DB_DSN", "PLAYER_DB_DSN"}, ""),
		MetricsBind: getEnvAny([]string{"GRIMNIR_METRICS_BIND", "PLAYER_METRICS_BIND"}, "127.0.0.1:9000"),

		MediaRoot:             getEnvAny([]string{"GRIMNIR_MEDIA_ROOT", "PLAYER_MEDIA_ROOT"}, "./media"),
		StorageBaseURL:        getEnvAny([]string{"GRIMNIR_STORAGE_BASE_URL", "PLAYER_STORAGE_BASE_URL"}, ""),
		PlaceholderArtworkURL: getEnvAny([]string{"GRIMNIR_PLACEHOLDER_ARTWORK", "PLAYER_PLACEHOLDER_ARTWORK"}, "static/placeholder-artwork.png"),

		S3AccessKeyID:     getEnvAny([]string{"GRIMNIR_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"GRIMNIR_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"GRIMNIR_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"GRIMNIR_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"GRIMNIR_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3PublicBaseURL:   getEnvAny([]string{"GRIMNIR_S3_PUBLIC_BASE_URL", "S3_PUBLIC_BASE_URL"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"GRIMNIR_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),
		S3PresignTTL:      getEnvDurationAny([]string{"GRIMNIR_S3_PRESIGN_TTL", "S3_PRESIGN_TTL"}, 0),

		JWTSigningKey: getEnvAny([]string{"GRIMNIR_JWT_SIGNING_KEY", "PLAYER_JWT_SIGNING_KEY"}, ""),

		TracingEnabled:    getEnvBoolAny([]string{"GRIMNIR_TRACING_ENABLED", "PLAYER_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"GRIMNIR_OTLP_ENDPOINT", "PLAYER_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"GRIMNIR_TRACING_SAMPLE_RATE", "PLAYER_TRACING_SAMPLE_RATE"}, 1.0),

		CacheEnabled:    getEnvBoolAny([]string{"GRIMNIR_CACHE_ENABLED", "PLAYER_CACHE_ENABLED"}, false),
		RedisAddr:       getEnvAny([]string{"GRIMNIR_REDIS_ADDR", "PLAYER_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:   getEnvAny([]string{"GRIMNIR_REDIS_PASSWORD", "PLAYER_REDIS_PASSWORD"}, ""),
		RedisDB:         getEnvIntAny([]string{"GRIMNIR_REDIS_DB", "PLAYER_REDIS_DB"}, 0),
		ResolvedItemTTL: getEnvDurationAny([]string{"GRIMNIR_RESOLVED_ITEM_TTL", "PLAYER_RESOLVED_ITEM_TTL"}, 10*time.Minute),

		CatalogEventSource:  CatalogEventSource(getEnvAny([]string{"GRIMNIR_CATALOG_EVENT_SOURCE", "PLAYER_CATALOG_EVENT_SOURCE"}, string(EventSourceNone))),
		CatalogEventChannel: getEnvAny([]string{"GRIMNIR_CATALOG_EVENT_CHANNEL", "PLAYER_CATALOG_EVENT_CHANNEL"}, "catalog.tracks"),
		NATSURL:             getEnvAny([]string{"GRIMNIR_NATS_URL", "NATS_URL"}, "nats://localhost:4222"),
		SyncDebounce:        getEnvDurationAny([]string{"GRIMNIR_SYNC_DEBOUNCE", "PLAYER_SYNC_DEBOUNCE"}, 2*time.Second),
		InstanceID:          getEnvAny([]string{"GRIMNIR_INSTANCE_ID", "PLAYER_INSTANCE_ID"}, ""),

		DefaultVolume:       getEnvFloatAny([]string{"GRIMNIR_DEFAULT_VOLUME", "PLAYER_DEFAULT_VOLUME"}, 0.8),
		SkipOnPlaybackError: getEnvBoolAny([]string{"GRIMNIR_SKIP_ON_PLAYBACK_ERROR", "PLAYER_SKIP_ON_PLAYBACK_ERROR"}, true),

		PlaylistRefreshInterval: getEnvDurationAny([]string{"GRIMNIR_PLAYLIST_REFRESH_INTERVAL", "PLAYER_PLAYLIST_REFRESH_INTERVAL"}, time.Hour),
		LeaderElectionEnabled:   getEnvBoolAny([]string{"GRIMNIR_LEADER_ELECTION", "PLAYER_LEADER_ELECTION"}, false),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("GRIMNIR_DB_DSN or PLAYER_DB_DSN must be provided")
	}

	switch cfg.CatalogEventSource {
	case EventSourceNone, EventSourceRedis, EventSourceNATS:
	case EventSourcePostgres:
		if cfg.DBBackend != DatabasePostgres {
			return nil, fmt.Errorf("catalog event source %q requires the postgres database backend", cfg.CatalogEventSource)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog event source %q", cfg.CatalogEventSource)
	}

	if cfg.SyncDebounce <= 0 {
		return nil, fmt.Errorf("GRIMNIR_SYNC_DEBOUNCE must be positive")
	}

	if cfg.PlaylistRefreshInterval < 0 {
		return nil, fmt.Errorf("GRIMNIR_PLAYLIST_REFRESH_INTERVAL must not be negative")
	}

	if cfg.DefaultVolume < 0 || cfg.DefaultVolume > 1 {
		return nil, fmt.Errorf("GRIMNIR_DEFAULT_VOLUME must be within [0,1], got %v", cfg.DefaultVolume)
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("GRIMNIR_JWT_SIGNING_KEY or PLAYER_JWT_SIGNING_KEY must be set in production")
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":     "use GRIMNIR_ENV (or PLAYER_ENV)",
		"JWT_SIGNING_KEY": "use GRIMNIR_JWT_SIGNING_KEY (or PLAYER_JWT_SIGNING_KEY)",
		"REDIS_URL":       "use GRIMNIR_REDIS_ADDR (or PLAYER_REDIS_ADDR)",
		"DEBOUNCE_MS":     "use GRIMNIR_SYNC_DEBOUNCE with a Go duration, e.g. 2s",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// HTTPAddr returns the listen address for the API server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go durations ("2s") or bare integers read as milliseconds.
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			if parsed, err := time.ParseDuration(v); err == nil {
				return parsed
			}
			if ms, err := strconv.Atoi(v); err == nil {
				return time.Duration(ms) * time.Millisecond
			}
		}
	}
	return def
}
