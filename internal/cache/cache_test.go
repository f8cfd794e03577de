package cache

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_player/internal/models"
)

func TestUnavailableRedisDisablesCache(t *testing.T) {
	c, err := New(Config{RedisAddr: "127.0.0.1:1", DisableOnError: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New should degrade, got %v", err)
	}
	defer c.Close()

	if c.IsAvailable() {
		t.Fatal("expected disabled cache")
	}

	ctx := context.Background()
	if err := c.SetTrack(ctx, &models.Track{ID: "t1", Slug: "s"}); err != nil {
		t.Fatalf("SetTrack on disabled cache: %v", err)
	}
	if _, ok := c.GetTrack(ctx, "t1"); ok {
		t.Fatal("disabled cache must miss")
	}
	if _, ok := c.GetTrackBySlug(ctx, "s"); ok {
		t.Fatal("disabled cache must miss")
	}
	if err := c.InvalidateTrack(ctx, "t1"); err != nil {
		t.Fatalf("InvalidateTrack on disabled cache: %v", err)
	}
	if err := c.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll on disabled cache: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.TrackTTL != DefaultTrackTTL || !cfg.DisableOnError {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}
