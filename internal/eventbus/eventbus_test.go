package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_player/internal/catalogsync"
	"github.com/friendsincode/grimnir_player/internal/telemetry"
)

type recordingSink struct {
	mu       sync.Mutex
	events   []catalogsync.ChangeEvent
	rejected []error
}

func (s *recordingSink) Ingest(ev catalogsync.ChangeEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) Reject(_ string, err error) {
	s.mu.Lock()
	s.rejected = append(s.rejected, err)
	s.mu.Unlock()
}

func TestDeliver(t *testing.T) {
	sink := &recordingSink{}

	deliver(sink, "test", []byte(`{"eventType":"update","old":{"id":"t1","approved":true},"new":{"id":"t1","approved":false}}`))
	deliver(sink, "test", []byte(`{"eventType":"update"}`))
	deliver(sink, "test", []byte(`{`))

	if len(sink.events) != 1 || sink.events[0].TrackID() != "t1" {
		t.Fatalf("events = %+v", sink.events)
	}
	if len(sink.rejected) != 2 {
		t.Fatalf("rejected = %d, want 2", len(sink.rejected))
	}
	for _, err := range sink.rejected {
		if !errors.Is(err, catalogsync.ErrMalformedEvent) {
			t.Fatalf("reject error %v is not ErrMalformedEvent", err)
		}
	}
}

func TestSourcesReportUnreachableBroker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisCfg := DefaultRedisConfig()
	redisCfg.Addr = "127.0.0.1:1"
	redisCfg.DialTimeout = 200 * time.Millisecond
	redisSrc := NewRedisSource(redisCfg, zerolog.Nop())
	defer redisSrc.Close()

	natsCfg := DefaultNATSConfig()
	natsCfg.URL = "nats://127.0.0.1:1"
	natsCfg.Timeout = 200 * time.Millisecond
	natsSrc := NewNATSSource(natsCfg, "test", zerolog.Nop())

	for _, src := range []catalogsync.Source{redisSrc, natsSrc} {
		t.Run(src.Name(), func(t *testing.T) {
			if err := src.Run(ctx, &recordingSink{}); err == nil {
				t.Fatal("expected connection error")
			}
			if got := testutil.ToFloat64(telemetry.EventSourceConnected.WithLabelValues(src.Name())); got != 0 {
				t.Fatalf("connected gauge = %v, want 0", got)
			}
		})
	}
}

func TestSourceNames(t *testing.T) {
	sources := map[string]catalogsync.Source{
		"redis":    NewRedisSource(DefaultRedisConfig(), zerolog.Nop()),
		"nats":     NewNATSSource(DefaultNATSConfig(), "test", zerolog.Nop()),
		"postgres": NewPostgresSource("postgres://localhost/db", "catalog_tracks", zerolog.Nop()),
	}
	for want, src := range sources {
		if src.Name() != want {
			t.Fatalf("Name() = %q, want %q", src.Name(), want)
		}
	}
}
