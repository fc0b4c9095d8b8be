package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// StreamReader reads a capped event stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error)
}

// CycleHandler pages through the recent cycle log.
type CycleHandler struct {
	stream string
	reader StreamReader
	logger *slog.Logger
}

// NewCycleHandler creates a CycleHandler reading stream.
func NewCycleHandler(reader StreamReader, stream string, logger *slog.Logger) *CycleHandler {
	return &CycleHandler{stream: stream, reader: reader, logger: logger}
}

type cycleEntry struct {
	ID     string          `json:"id"`
	Record json.RawMessage `json:"record"`
}

// ListCycles returns up to limit records after the entry id in "after".
// GET /api/cycles?after=0&limit=50
func (h *CycleHandler) ListCycles(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	limit := queryInt(r, "limit", 50, 500)

	msgs, err := h.reader.StreamRead(r.Context(), h.stream, after, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read cycle log failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read cycles")
		return
	}

	entries := make([]cycleEntry, 0, len(msgs))
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		entries = append(entries, cycleEntry{ID: m.ID, Record: m.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycles": entries})
}
