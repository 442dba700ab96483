package core

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"profilehub/internal/config"
	"profilehub/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(&config.Config{Environment: "local"}, discardLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

func TestNewServer(t *testing.T) {
	srv := newTestServer(t)
	if srv.Validator == nil {
		t.Error("expected validator to be initialized")
	}
	if srv.Router() == nil || srv.Handler() == nil {
		t.Error("expected router to be initialized")
	}
}

func TestNewServer_MissingDependencies(t *testing.T) {
	if _, err := NewServer(nil, discardLogger()); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewServer(&config.Config{}, nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestServer_Shutdown(t *testing.T) {
	srv := newTestServer(t)

	var closed []string
	err := srv.Shutdown(context.Background(),
		func() { closed = append(closed, "pool") },
		func() { closed = append(closed, "metrics") },
	)
	if err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(closed) != 2 || closed[0] != "pool" || closed[1] != "metrics" {
		t.Errorf("closers ran as %v", closed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	if err := srv.Shutdown(ctx, func() { ran = true }); err == nil {
		t.Error("expected error for cancelled context")
	}
	if ran {
		t.Error("closer must not run after context cancellation")
	}
}

func TestMountRoutes_EndToEnd(t *testing.T) {
	srv := newTestServer(t)
	metrics := &MockMetricsCollector{}
	srv.Metrics = metrics
	srv.Authenticator = &MockAuthenticator{Actor: &types.Actor{ID: "user_1", Type: types.ActorTypeUser, SubscriptionLevel: types.LevelPro}}
	srv.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	srv.V1RouteRegistrars = []func(chi.Router){
		func(r chi.Router) {
			r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
				actor, _ := types.GetActor(r.Context())
				Data(w, r, http.StatusOK, map[string]string{"id": actor.ID})
			})
		},
	}
	srv.MountRoutes()
	h := srv.Handler()

	t.Run("v1 route with actor", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
		req.Header.Set("Authorization", "Bearer tok")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		var body struct {
			Data map[string]string `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Data["id"] != "user_1" {
			t.Errorf("id = %q", body.Data["id"])
		}
		if rec.Header().Get("X-Request-Id") == "" {
			t.Error("expected X-Request-Id header")
		}
		if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Error("expected security headers")
		}
	})

	t.Run("health is public", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("metrics is public", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "# metrics" {
			t.Errorf("status = %d body = %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/whoami", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", rec.Code)
		}
	})

	found := false
	for _, c := range metrics.Snapshot() {
		if c.Endpoint == "/v1/whoami" && c.Status == "200" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected route pattern metric, got %+v", metrics.Snapshot())
	}
}

func TestMountRoutes_NoMetricsHandler(t *testing.T) {
	srv := newTestServer(t)
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRequestTimeout(t *testing.T) {
	srv := newTestServer(t)
	if got := srv.requestTimeout(); got != defaultRequestTimeout {
		t.Errorf("default timeout = %v", got)
	}
	srv.Config.Server.RequestTimeout = 3 * time.Second
	if got := srv.requestTimeout(); got != 3*time.Second {
		t.Errorf("configured timeout = %v", got)
	}
}

func TestContextTimeoutMiddleware(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := ContextTimeoutMiddleware(time.Minute)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !ok {
		t.Fatal("expected a deadline")
	}
	if until := time.Until(deadline); until <= 0 || until > time.Minute {
		t.Errorf("deadline in %v", until)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	t.Run("propagates", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", "req_abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if seen != "req_abc" || rec.Header().Get("X-Request-Id") != "req_abc" {
			t.Errorf("context %q header %q", seen, rec.Header().Get("X-Request-Id"))
		}
	})

	t.Run("generates", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if len(seen) != 36 {
			t.Errorf("generated id %q is not a uuid", seen)
		}
		if rec.Header().Get("X-Request-Id") != seen {
			t.Error("response header must echo the generated id")
		}
	})
}

func TestCompressionMiddleware(t *testing.T) {
	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = 'a'
	}
	h := CompressionMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Errorf("Content-Encoding = %q", rec.Header().Get("Content-Encoding"))
	}
	if rec.Body.Len() >= len(payload) {
		t.Errorf("body not compressed: %d bytes", rec.Body.Len())
	}
}
