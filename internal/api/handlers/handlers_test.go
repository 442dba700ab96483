package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"profilehub/internal/core"
	"profilehub/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type routeRegistrar interface {
	RegisterRoutes(r chi.Router)
}

func newRouter(h routeRegistrar) chi.Router {
	r := chi.NewRouter()
	r.Route("/v1", h.RegisterRoutes)
	return r
}

// serve sends a request through the router as user_1 on the given level.
// An empty level sends it unauthenticated.
func serve(t *testing.T, r http.Handler, method, path string, body any, level types.SubscriptionLevel) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rdr)
	if level != "" {
		req = req.WithContext(types.WithActor(req.Context(), types.Actor{
			ID:                "user_1",
			Type:              types.ActorTypeUser,
			SubscriptionLevel: level,
		}))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) core.ErrorDetail {
	t.Helper()
	var env core.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Error
}
