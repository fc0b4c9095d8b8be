package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/crossarb/internal/server/handler"
)

func TestRoutes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "crossarb_test_total", Help: "test"}))

	h := newHandler(Config{APIKey: "k"}, Handlers{
		Health: handler.NewHealthHandler(nil, logger),
	}, reg, logger)

	get := func(path, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/api/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get("/api/status", "").Code)
	// Overlay and cycle routes exist only when their stores are configured.
	assert.Equal(t, http.StatusNotFound, get("/api/overlays", "k").Code)
	assert.Equal(t, http.StatusNotFound, get("/api/cycles", "k").Code)

	metrics := get("/metrics", "")
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "crossarb_test_total")
}
