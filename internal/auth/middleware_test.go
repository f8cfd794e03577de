package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/friendsincode/grimnir_player/internal/access"
	"github.com/friendsincode/grimnir_player/internal/models"
)

func viewerEcho(t *testing.T, got *models.Viewer) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = access.ViewerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_AcceptsBearerToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, Claims{
		UserID: "u1",
		Roles:  []string{RoleSubscriber},
	}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var viewer models.Viewer
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ClaimsFromContext(r.Context()); !ok {
			t.Fatalf("expected claims in context")
		}
		viewerEcho(t, &viewer).ServeHTTP(w, r)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tracks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	Middleware(secret)(next).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if viewer.ID != "u1" || !viewer.Subscriber {
		t.Fatalf("viewer = %+v", viewer)
	}
}

func TestMiddleware_AnonymousWithoutToken(t *testing.T) {
	for _, secret := range [][]byte{nil, []byte("test-secret")} {
		viewer := models.Viewer{ID: "sentinel"}
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tracks", nil)
		rr := httptest.NewRecorder()

		Middleware(secret)(viewerEcho(t, &viewer)).ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if !viewer.Anonymous() {
			t.Fatalf("viewer = %+v, want anonymous", viewer)
		}
	}
}

func TestMiddleware_RejectsInvalidToken(t *testing.T) {
	var viewer models.Viewer
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tracks", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr := httptest.NewRecorder()

	Middleware([]byte("test-secret"))(viewerEcho(t, &viewer)).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("missing WWW-Authenticate header")
	}
}

func TestMiddleware_QueryTokenOnlyForSessionStream(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, Claims{UserID: "u1"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		upgrade bool
		wantID  string
	}{
		{"plain request ignores query token", "/api/v1/tracks?token=" + token, false, ""},
		{"upgrade on other path ignores query token", "/api/v1/tracks?token=" + token, true, ""},
		{"session stream upgrade", SessionStreamPath + "?token=" + token, true, "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var viewer models.Viewer
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.upgrade {
				req.Header.Set("Upgrade", "websocket")
			}
			rr := httptest.NewRecorder()

			Middleware(secret)(viewerEcho(t, &viewer)).ServeHTTP(rr, req)
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rr.Code)
			}
			if viewer.ID != tt.wantID {
				t.Fatalf("viewer id = %q, want %q", viewer.ID, tt.wantID)
			}
		})
	}
}
