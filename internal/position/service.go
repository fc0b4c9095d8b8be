// Package position tracks the net position held at every broker and the size
// each one may still trade in either direction.
package position

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Source reports the net position held at one broker.
type Source interface {
	Broker() domain.BrokerID
	Position(ctx context.Context) (float64, error)
}

// Service polls its sources and serves point-in-time positions.
type Service struct {
	configs  domain.ConfigStore
	sources  []Source
	interval time.Duration
	logger   *slog.Logger
	inflight *semaphore.Weighted

	mu        sync.RWMutex
	positions map[domain.BrokerID]domain.BrokerPosition

	closed atomic.Bool
}

// NewService creates a position service over sources.
func NewService(configs domain.ConfigStore, sources []Source, interval time.Duration, logger *slog.Logger) *Service {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Service{
		configs:   configs,
		sources:   sources,
		interval:  interval,
		logger:    logger.With(slog.String("component", "position_service")),
		inflight:  semaphore.NewWeighted(1),
		positions: make(map[domain.BrokerID]domain.BrokerPosition),
	}
}

// Run refreshes immediately and then on every interval until ctx is
// cancelled or the service is closed.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.closed.Load() {
				return nil
			}
			s.Refresh(ctx)
		}
	}
}

// Refresh fetches the position of every enabled broker. A broker whose fetch
// fails keeps its previous position. It returns false when skipped.
func (s *Service) Refresh(ctx context.Context) bool {
	if s.closed.Load() || !s.inflight.TryAcquire(1) {
		return false
	}
	defer s.inflight.Release(1)

	cfg := s.configs.Config()
	type fetched struct {
		broker domain.BrokerConfig
		net    float64
		ok     bool
	}
	results := make([]fetched, len(s.sources))

	var g errgroup.Group
	for i, src := range s.sources {
		bc, ok := cfg.Broker(src.Broker())
		if !ok || !bc.Enabled {
			continue
		}
		g.Go(func() error {
			net, err := src.Position(ctx)
			if err != nil {
				s.logger.WarnContext(ctx, "position_service: fetch failed, keeping last known position",
					slog.String("broker", string(bc.Broker)),
					slog.String("error", err.Error()),
				)
				return nil
			}
			results[i] = fetched{broker: bc, net: net, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		if !r.ok {
			continue
		}
		s.positions[r.broker.Broker] = Allowance(r.broker, r.net, now)
	}
	// Drop brokers that were disabled since the last refresh.
	for id := range s.positions {
		if bc, ok := cfg.Broker(id); !ok || !bc.Enabled {
			delete(s.positions, id)
		}
	}
	return true
}

// Allowance derives the tradable sizes of a broker from its net position.
func Allowance(bc domain.BrokerConfig, net float64, at time.Time) domain.BrokerPosition {
	long := math.Max(0, bc.MaxLongPosition-net)
	short := math.Max(0, bc.MaxShortPosition+net)
	return domain.BrokerPosition{
		Broker:           bc.Broker,
		Net:              net,
		AllowedLongSize:  long,
		AllowedShortSize: short,
		LongAllowed:      long > 0,
		ShortAllowed:     short > 0,
		UpdatedAt:        at,
	}
}

// NetExposure returns the sum of net positions across brokers.
func (s *Service) NetExposure() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, p := range s.positions {
		total += p.Net
	}
	return total
}

// Positions returns a copy of the per-broker positions.
func (s *Service) Positions() map[domain.BrokerID]domain.BrokerPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.BrokerID]domain.BrokerPosition, len(s.positions))
	for k, v := range s.positions {
		out[k] = v
	}
	return out
}

// Close stops further refreshes.
func (s *Service) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.logger.Info("position_service: closed")
	}
	return nil
}

var _ domain.PositionService = (*Service)(nil)
