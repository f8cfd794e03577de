package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_player/internal/config"
	"github.com/friendsincode/grimnir_player/internal/logbuffer"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Environment:         "test",
		HTTPBind:            "127.0.0.1",
		HTTPPort:            0,
		DBBackend:           config.DatabaseSQLite,
		DBDSN:               filepath.Join(dir, "player.db"),
		MediaRoot:           filepath.Join(dir, "media"),
		CatalogEventSource:  config.EventSourceNone,
		CatalogEventChannel: "catalog.tracks",
		SyncDebounce:        50 * time.Millisecond,
		DefaultVolume:       1,
	}
}

func TestNewServesHealthAndAPI(t *testing.T) {
	srv, err := New(testConfig(t), logbuffer.New(10), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := srv.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	if srv.MetricsServer() != nil {
		t.Fatal("metrics listener created without a bind address")
	}

	tests := []struct {
		path string
		want int
	}{
		{"/healthz", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/v1/health", http.StatusOK},
		{"/api/v1/player", http.StatusOK},
		{"/api/v1/tracks", http.StatusOK},
		{"/api/v1/playlists/smart", http.StatusOK},
		{"/api/v1/logs", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rr.Code != tt.want {
				t.Fatalf("GET %s = %d, want %d: %s", tt.path, rr.Code, tt.want, rr.Body.String())
			}
		})
	}

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var health map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if health["status"] != "ok" {
		t.Fatalf("healthz = %v", health)
	}
	if _, ok := health["leader"]; ok {
		t.Fatal("leader reported without election")
	}
}

func TestNewSeparateMetricsListener(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsBind = "127.0.0.1:0"

	srv, err := New(cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer srv.Close()

	if srv.MetricsServer() == nil {
		t.Fatal("expected metrics listener")
	}
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("/metrics on main router = %d, want 404", rr.Code)
	}
}

func TestNewRejectsUnknownEventSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.CatalogEventSource = "carrier-pigeon"

	if _, err := New(cfg, nil, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown event source")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	srv, err := New(testConfig(t), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
