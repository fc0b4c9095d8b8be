package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type memOverlays struct {
	items map[string]domain.EngineOverlay
	err   error
}

func (m *memOverlays) Get(_ context.Context, name string) (domain.EngineOverlay, error) {
	if m.err != nil {
		return domain.EngineOverlay{}, m.err
	}
	o, ok := m.items[name]
	if !ok {
		return domain.EngineOverlay{}, domain.ErrNotFound
	}
	return o, nil
}

func (m *memOverlays) Upsert(_ context.Context, o domain.EngineOverlay) error {
	if m.err != nil {
		return m.err
	}
	if m.items == nil {
		m.items = map[string]domain.EngineOverlay{}
	}
	m.items[o.Name] = o
	return nil
}

func (m *memOverlays) List(context.Context) ([]domain.EngineOverlay, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.EngineOverlay
	for _, o := range m.items {
		out = append(out, o)
	}
	return out, nil
}

// overlayConfig accepts every overlay unless validate is set.
type overlayConfig struct {
	validate func(params map[string]any) error
	reload   func(ctx context.Context) error
}

func (c overlayConfig) ValidateOverlay(params map[string]any) error {
	if c.validate == nil {
		return nil
	}
	return c.validate(params)
}

func (c overlayConfig) Reload(ctx context.Context) error {
	if c.reload == nil {
		return nil
	}
	return c.reload(ctx)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestOverlayHandler_GetOverlays(t *testing.T) {
	store := &memOverlays{items: map[string]domain.EngineOverlay{
		"live": {Name: "live", Params: map[string]any{"demo_mode": false}, Enabled: true},
	}}
	h := NewOverlayHandler(store, overlayConfig{}, discardLogger())

	rec := httptest.NewRecorder()
	h.GetOverlays(rec, httptest.NewRequest(http.MethodGet, "/api/overlays?name=live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.EngineOverlay
	decode(t, rec, &got)
	assert.Equal(t, "live", got.Name)
	assert.Equal(t, false, got.Params["demo_mode"])

	rec = httptest.NewRecorder()
	h.GetOverlays(rec, httptest.NewRequest(http.MethodGet, "/api/overlays?name=missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.GetOverlays(rec, httptest.NewRequest(http.MethodGet, "/api/overlays", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list listOverlaysResponse
	decode(t, rec, &list)
	assert.Len(t, list.Overlays, 1)
}

func TestOverlayHandler_ListEmptyIsArray(t *testing.T) {
	h := NewOverlayHandler(&memOverlays{}, nil, discardLogger())
	rec := httptest.NewRecorder()
	h.GetOverlays(rec, httptest.NewRequest(http.MethodGet, "/api/overlays", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"overlays":[]}`, rec.Body.String())
}

func TestOverlayHandler_PutOverlay(t *testing.T) {
	store := &memOverlays{}
	reloads := 0
	reloadErr := error(nil)
	h := NewOverlayHandler(store, overlayConfig{reload: func(context.Context) error {
		reloads++
		return reloadErr
	}}, discardLogger())

	put := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.PutOverlay(rec, httptest.NewRequest(http.MethodPut, "/api/overlays", strings.NewReader(body)))
		return rec
	}

	rec := put(`{"name":"live","params":{"min_target_profit":250},"enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, reloads)
	assert.Equal(t, 250.0, store.items["live"].Params["min_target_profit"])

	reloadErr = errors.New("config: reload config.toml: permission denied")
	rec = put(`{"name":"live","params":{"min_target_profit":300},"enabled":true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "stored but not applied")
	assert.Equal(t, 300.0, store.items["live"].Params["min_target_profit"])

	rec = put(`{"params":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = put(`not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 2, reloads)
}

func TestOverlayHandler_StoreFailure(t *testing.T) {
	h := NewOverlayHandler(&memOverlays{err: errors.New("connection refused")}, overlayConfig{}, discardLogger())

	rec := httptest.NewRecorder()
	h.PutOverlay(rec, httptest.NewRequest(http.MethodPut, "/api/overlays", strings.NewReader(`{"name":"x"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	h.GetOverlays(rec, httptest.NewRequest(http.MethodGet, "/api/overlays?name=x", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestOverlayHandler_InvalidOverlayIsNotStored(t *testing.T) {
	cfg := config.Defaults()
	cfg.Brokers = []config.BrokerConfig{
		{Broker: "alpha", Enabled: true, Adapter: "paper", CashMarginType: "cash", LeverageLevel: 1},
		{Broker: "beta", Enabled: true, Adapter: "paper", CashMarginType: "margin_open", LeverageLevel: 2},
	}
	require.NoError(t, cfg.Validate())
	live := config.NewStore(filepath.Join(t.TempDir(), "missing.toml"), &cfg, discardLogger())

	store := &memOverlays{items: map[string]domain.EngineOverlay{
		"default": {Name: "default", Params: map[string]any{"min_target_profit": 150.0}, Enabled: true},
	}}
	h := NewOverlayHandler(store, live, discardLogger())

	rec := httptest.NewRecorder()
	h.PutOverlay(rec, httptest.NewRequest(http.MethodPut, "/api/overlays",
		strings.NewReader(`{"name":"default","params":{"max_retry_count":0},"enabled":true}`)))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "max_retry_count")
	// The stored overlay and the live configuration are both untouched.
	assert.Equal(t, map[string]any{"min_target_profit": 150.0}, store.items["default"].Params)
	assert.Equal(t, 10, live.Config().MaxRetryCount)

	rec = httptest.NewRecorder()
	h.PutOverlay(rec, httptest.NewRequest(http.MethodPut, "/api/overlays",
		strings.NewReader(`{"name":"default","params":{"min_target_proft":1},"enabled":true}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 150.0, store.items["default"].Params["min_target_profit"])
}

type fakeStream struct {
	msgs   []domain.StreamMessage
	err    error
	lastID string
	count  int
}

func (f *fakeStream) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	f.lastID, f.count = lastID, count
	return f.msgs, f.err
}

func TestCycleHandler_ListCycles(t *testing.T) {
	stream := &fakeStream{msgs: []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"id":"c1","outcome":"filled"}`)},
		{ID: "2-0", Payload: []byte(`garbage`)},
	}}
	h := NewCycleHandler(stream, "crossarb:cycles:log", discardLogger())

	rec := httptest.NewRecorder()
	h.ListCycles(rec, httptest.NewRequest(http.MethodGet, "/api/cycles?limit=9999", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", stream.lastID)
	assert.Equal(t, 500, stream.count)
	assert.JSONEq(t, `{"cycles":[{"id":"1-0","record":{"id":"c1","outcome":"filled"}}]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ListCycles(rec, httptest.NewRequest(http.MethodGet, "/api/cycles?after=1-0", nil))
	assert.Equal(t, "1-0", stream.lastID)
	assert.Equal(t, 50, stream.count)

	stream.err = errors.New("redis down")
	rec = httptest.NewRecorder()
	h.ListCycles(rec, httptest.NewRequest(http.MethodGet, "/api/cycles", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	ok := NewHealthHandler(map[string]Pinger{
		"redis": pingerFunc(func(context.Context) error { return nil }),
	}, discardLogger())
	rec := httptest.NewRecorder()
	ok.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	degraded := NewHealthHandler(map[string]Pinger{
		"postgres": pingerFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
	}, discardLogger())
	rec = httptest.NewRecorder()
	degraded.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, "degraded", body["status"])
	assert.Contains(t, body["failed"], "postgres")
}

type staticConfig struct{ cfg domain.EngineConfig }

func (s staticConfig) Config() domain.EngineConfig { return s.cfg }

type staticPositions struct {
	exposure  float64
	positions map[domain.BrokerID]domain.BrokerPosition
}

func (s staticPositions) NetExposure() float64 { return s.exposure }

func (s staticPositions) Positions() map[domain.BrokerID]domain.BrokerPosition {
	return s.positions
}

func (s staticPositions) Close() error { return nil }

type staticOrders []domain.Order

func (s staticOrders) ActiveOrders() []domain.Order { return s }

type staticSnapshot domain.QuoteSnapshot

func (s staticSnapshot) Snapshot() domain.QuoteSnapshot { return domain.QuoteSnapshot(s) }

func TestStatusHandler(t *testing.T) {
	cfg := domain.EngineConfig{
		DemoMode:       true,
		MaxNetExposure: 0.5,
		Brokers: []domain.BrokerConfig{
			{Broker: "alpha", Enabled: true},
			{Broker: "beta", Enabled: false},
		},
	}
	positions := staticPositions{
		exposure: 0.2,
		positions: map[domain.BrokerID]domain.BrokerPosition{
			"alpha": {Broker: "alpha", Net: 0.2, LongAllowed: true},
		},
	}
	h := NewStatusHandler(staticConfig{cfg}, positions, staticOrders(nil), staticSnapshot{
		Quotes:    []domain.Quote{{Broker: "alpha", Side: domain.QuoteSideAsk, Price: 100, Volume: 1}},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status statusResponse
	decode(t, rec, &status)
	assert.True(t, status.DemoMode)
	assert.Equal(t, 0.2, status.NetExposure)
	assert.Equal(t, []domain.BrokerID{"alpha"}, status.Brokers)
	require.Len(t, status.Positions, 1)
	assert.Equal(t, domain.BrokerID("alpha"), status.Positions[0].Broker)
	assert.NotNil(t, status.ActiveOrders)
	assert.Empty(t, status.ActiveOrders)

	rec = httptest.NewRecorder()
	h.GetQuotes(rec, httptest.NewRequest(http.MethodGet, "/api/quotes", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"timestamp":"2026-01-02T03:04:05Z"`)
	assert.Contains(t, rec.Body.String(), `"broker":"alpha"`)
}
