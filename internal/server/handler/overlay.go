package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// OverlayConfig checks overlay params against the live configuration and
// re-reads it with the active overlay applied.
type OverlayConfig interface {
	ValidateOverlay(params map[string]any) error
	Reload(ctx context.Context) error
}

// OverlayHandler serves the engine overlay endpoints.
type OverlayHandler struct {
	overlays domain.EngineOverlayStore
	config   OverlayConfig
	logger   *slog.Logger
}

// NewOverlayHandler creates an OverlayHandler.
func NewOverlayHandler(overlays domain.EngineOverlayStore, config OverlayConfig, logger *slog.Logger) *OverlayHandler {
	return &OverlayHandler{overlays: overlays, config: config, logger: logger}
}

type listOverlaysResponse struct {
	Overlays []domain.EngineOverlay `json:"overlays"`
}

// GetOverlays returns one overlay when name is given, else all of them.
// GET /api/overlays?name=live
func (h *OverlayHandler) GetOverlays(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		o, err := h.overlays.Get(r.Context(), name)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "overlay not found")
				return
			}
			h.logger.ErrorContext(r.Context(), "handler: get overlay failed",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to get overlay")
			return
		}
		writeJSON(w, http.StatusOK, o)
		return
	}

	overlays, err := h.overlays.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list overlays failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list overlays")
		return
	}
	if overlays == nil {
		overlays = []domain.EngineOverlay{}
	}
	writeJSON(w, http.StatusOK, listOverlaysResponse{Overlays: overlays})
}

// PutOverlay validates an overlay against the live configuration, stores it
// and reloads. Params that would not validate are rejected with 422 and never
// stored. A reload failure keeps the previous configuration and is also 422.
// PUT /api/overlays
func (h *OverlayHandler) PutOverlay(w http.ResponseWriter, r *http.Request) {
	var o domain.EngineOverlay
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if o.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := h.config.ValidateOverlay(o.Params); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid overlay: "+err.Error())
		return
	}

	if err := h.overlays.Upsert(r.Context(), o); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: upsert overlay failed",
			slog.String("name", o.Name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to store overlay")
		return
	}

	if err := h.config.Reload(r.Context()); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "overlay stored but not applied: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "applied",
		"name":   o.Name,
	})
}
