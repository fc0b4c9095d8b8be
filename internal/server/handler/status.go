package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// ActiveOrders exposes the legs of the cycle in flight.
type ActiveOrders interface {
	ActiveOrders() []domain.Order
}

// QuoteSnapshots exposes the latest merged book.
type QuoteSnapshots interface {
	Snapshot() domain.QuoteSnapshot
}

// StatusHandler serves the engine's live state.
type StatusHandler struct {
	configs   domain.ConfigStore
	positions domain.PositionService
	orders    ActiveOrders
	quotes    QuoteSnapshots
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(configs domain.ConfigStore, positions domain.PositionService, orders ActiveOrders, quotes QuoteSnapshots) *StatusHandler {
	return &StatusHandler{configs: configs, positions: positions, orders: orders, quotes: quotes}
}

type statusResponse struct {
	DemoMode       bool                    `json:"demo_mode"`
	NetExposure    float64                 `json:"net_exposure"`
	MaxNetExposure float64                 `json:"max_net_exposure"`
	Brokers        []domain.BrokerID       `json:"brokers"`
	Positions      []domain.BrokerPosition `json:"positions"`
	ActiveOrders   []domain.Order          `json:"active_orders"`
}

// GetStatus reports the demo flag, exposure, positions and the legs of the
// cycle in flight.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	cfg := h.configs.Config()
	resp := statusResponse{
		DemoMode:       cfg.DemoMode,
		NetExposure:    h.positions.NetExposure(),
		MaxNetExposure: cfg.MaxNetExposure,
		Brokers:        cfg.Enabled(),
		Positions:      []domain.BrokerPosition{},
		ActiveOrders:   h.orders.ActiveOrders(),
	}
	positions := h.positions.Positions()
	for _, id := range resp.Brokers {
		if p, ok := positions[id]; ok {
			resp.Positions = append(resp.Positions, p)
		}
	}
	if resp.ActiveOrders == nil {
		resp.ActiveOrders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetQuotes returns the latest merged quote snapshot.
// GET /api/quotes
func (h *StatusHandler) GetQuotes(w http.ResponseWriter, r *http.Request) {
	snap := h.quotes.Snapshot()
	quotes := snap.Quotes
	if quotes == nil {
		quotes = []domain.Quote{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"quotes":    quotes,
		"timestamp": snap.Timestamp.Format(time.RFC3339Nano),
	})
}
