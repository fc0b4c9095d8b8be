package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// OverlaySource returns a named engine overlay. It is satisfied by the
// Postgres overlay store.
type OverlaySource interface {
	Get(ctx context.Context, name string) (domain.EngineOverlay, error)
}

// Store holds the live configuration. Readers get an immutable snapshot;
// Reload swaps in a new one atomically so a cycle never observes a partially
// applied change.
type Store struct {
	path    string
	logger  *slog.Logger
	overlay OverlaySource

	mu   sync.Mutex // serializes Reload
	cur  atomic.Pointer[Config]
	snap atomic.Pointer[domain.EngineConfig]
}

// NewStore creates a Store seeded with an already validated cfg. path is the
// file re-read by Reload.
func NewStore(path string, cfg *Config, logger *slog.Logger) *Store {
	s := &Store{
		path:   path,
		logger: logger.With(slog.String("component", "config_store")),
	}
	s.swap(cfg)
	return s
}

// SetOverlay attaches a database overlay consulted on every Reload.
func (s *Store) SetOverlay(src OverlaySource) {
	s.mu.Lock()
	s.overlay = src
	s.mu.Unlock()
}

// Config returns the current engine snapshot.
func (s *Store) Config() domain.EngineConfig {
	return *s.snap.Load()
}

// Current returns the full configuration currently in effect. Callers must
// treat it as read-only.
func (s *Store) Current() *Config {
	return s.cur.Load()
}

// Reload re-reads the configuration file, merges the overlay when one is
// attached, validates the result and swaps it in. On any error the previous
// configuration stays in effect.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := Load(s.path)
	if err != nil {
		return fmt.Errorf("config: reload %s: %w", s.path, err)
	}
	if err := s.applyOverlay(ctx, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.swap(cfg)

	s.logger.InfoContext(ctx, "configuration reloaded",
		slog.String("path", s.path),
		slog.Bool("demo_mode", cfg.Engine.DemoMode),
		slog.Float64("min_target_profit", cfg.Engine.MinTargetProfit),
		slog.Float64("max_net_exposure", cfg.Engine.MaxNetExposure),
	)
	return nil
}

// ApplyOverlay merges the attached overlay into the live configuration
// without re-reading the file. It is used once at startup after the database
// becomes reachable.
func (s *Store) ApplyOverlay(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.cur.Load()
	next.Brokers = append([]BrokerConfig(nil), next.Brokers...)
	if err := s.applyOverlay(ctx, &next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	s.swap(&next)
	return nil
}

// ValidateOverlay reports whether params, merged into the configuration
// currently in effect, would yield a valid configuration. Nothing is swapped.
func (s *Store) ValidateOverlay(params map[string]any) error {
	next := *s.cur.Load()
	next.Brokers = append([]BrokerConfig(nil), next.Brokers...)
	if err := ApplyOverlay(&next, params); err != nil {
		return err
	}
	return next.Validate()
}

func (s *Store) applyOverlay(ctx context.Context, cfg *Config) error {
	if s.overlay == nil || cfg.Engine.OverlayName == "" {
		return nil
	}
	ov, err := s.overlay.Get(ctx, cfg.Engine.OverlayName)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: load overlay %s: %w", cfg.Engine.OverlayName, err)
	}
	if !ov.Enabled {
		return nil
	}
	if err := ApplyOverlay(cfg, ov.Params); err != nil {
		return fmt.Errorf("config: overlay %s: %w", ov.Name, err)
	}
	s.logger.InfoContext(ctx, "engine overlay applied",
		slog.String("overlay", ov.Name),
		slog.Int("keys", len(ov.Params)),
	)
	return nil
}

func (s *Store) swap(cfg *Config) {
	snap := cfg.Snapshot()
	s.cur.Store(cfg)
	s.snap.Store(&snap)
}

var _ domain.ConfigStore = (*Store)(nil)
