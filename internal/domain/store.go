package domain

import (
	"context"
	"time"
)

// EngineOverlay is a named set of engine parameters stored outside the config
// file. Params holds the JSON object merged over the [engine] section.
type EngineOverlay struct {
	Name      string         `json:"name"`
	Params    map[string]any `json:"params"`
	Enabled   bool           `json:"enabled"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// EngineOverlayStore persists engine overlays.
type EngineOverlayStore interface {
	Get(ctx context.Context, name string) (EngineOverlay, error)
	Upsert(ctx context.Context, overlay EngineOverlay) error
	List(ctx context.Context) ([]EngineOverlay, error)
}
