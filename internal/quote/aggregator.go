// Package quote merges the books of every enabled broker into one snapshot
// and signals subscribers when a new snapshot is ready.
package quote

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Source is a broker that can report its current book.
type Source interface {
	Broker() domain.BrokerID
	Quotes(ctx context.Context) ([]domain.Quote, error)
}

// Aggregator polls its sources and keeps the latest merged snapshot.
type Aggregator struct {
	configs  domain.ConfigStore
	sources  []Source
	interval time.Duration
	logger   *slog.Logger

	// inflight lets at most one refresh run at a time.
	inflight *semaphore.Weighted

	mu       sync.RWMutex
	snapshot domain.QuoteSnapshot

	subsMu sync.Mutex
	subs   map[uint64]chan<- struct{}
	nextID uint64

	closed atomic.Bool
}

// NewAggregator creates an aggregator over sources.
func NewAggregator(configs domain.ConfigStore, sources []Source, interval time.Duration, logger *slog.Logger) *Aggregator {
	if interval <= 0 {
		interval = time.Second
	}
	return &Aggregator{
		configs:  configs,
		sources:  sources,
		interval: interval,
		logger:   logger.With(slog.String("component", "quote_aggregator")),
		inflight: semaphore.NewWeighted(1),
		subs:     make(map[uint64]chan<- struct{}),
	}
}

// Run refreshes immediately and then on every interval until ctx is
// cancelled or the aggregator is closed.
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if a.closed.Load() {
				return nil
			}
			a.Refresh(ctx)
		}
	}
}

// Refresh fetches every enabled source concurrently, merges the result and
// notifies subscribers. It returns false when skipped because another refresh
// is still running or the aggregator is closed.
func (a *Aggregator) Refresh(ctx context.Context) bool {
	if a.closed.Load() || !a.inflight.TryAcquire(1) {
		a.logger.DebugContext(ctx, "quote_aggregator: refresh skipped")
		return false
	}
	defer a.inflight.Release(1)

	cfg := a.configs.Config()
	results := make([][]domain.Quote, len(a.sources))

	var g errgroup.Group
	for i, src := range a.sources {
		bc, ok := cfg.Broker(src.Broker())
		if !ok || !bc.Enabled {
			continue
		}
		g.Go(func() error {
			qs, err := src.Quotes(ctx)
			if err != nil {
				// The broker is left out of this snapshot.
				a.logger.WarnContext(ctx, "quote_aggregator: fetch failed",
					slog.String("broker", string(src.Broker())),
					slog.String("error", err.Error()),
				)
				return nil
			}
			results[i] = qs
			return nil
		})
	}
	_ = g.Wait()

	var all []domain.Quote
	for _, qs := range results {
		all = append(all, qs...)
	}
	merged := Fold(all, cfg.PriceMergeSize)

	a.mu.Lock()
	a.snapshot = domain.QuoteSnapshot{Quotes: merged, Timestamp: time.Now().UTC()}
	a.mu.Unlock()

	a.notify()
	return true
}

// Quotes returns a copy of the latest merged quotes.
func (a *Aggregator) Quotes() []domain.Quote {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]domain.Quote(nil), a.snapshot.Quotes...)
}

// Snapshot returns the latest snapshot.
func (a *Aggregator) Snapshot() domain.QuoteSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return domain.QuoteSnapshot{
		Quotes:    append([]domain.Quote(nil), a.snapshot.Quotes...),
		Timestamp: a.snapshot.Timestamp,
	}
}

// Subscribe registers ready for snapshot signals. Sends never block: a
// subscriber that is not receiving misses the signal.
func (a *Aggregator) Subscribe(ready chan<- struct{}) func() {
	a.subsMu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = ready
	a.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.subsMu.Lock()
			delete(a.subs, id)
			a.subsMu.Unlock()
		})
	}
}

func (a *Aggregator) notify() {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	for _, ch := range a.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close stops further refreshes and drops every subscriber.
func (a *Aggregator) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	a.subsMu.Lock()
	clear(a.subs)
	a.subsMu.Unlock()
	a.logger.Info("quote_aggregator: closed")
	return nil
}

// Fold merges quotes onto a price grid of step: ask prices are rounded up and
// bid prices down, and volumes at the same (broker, side, price) are summed.
// The result is sorted by price, then broker, asks before bids. A step <= 0
// only merges identical levels.
func Fold(quotes []domain.Quote, step float64) []domain.Quote {
	type key struct {
		broker domain.BrokerID
		side   domain.QuoteSide
		price  float64
	}
	volumes := make(map[key]decimal.Decimal, len(quotes))
	for _, q := range quotes {
		if q.Volume <= 0 || math.IsNaN(q.Price) {
			continue
		}
		k := key{broker: q.Broker, side: q.Side, price: snap(q.Price, q.Side, step)}
		volumes[k] = volumes[k].Add(decimal.NewFromFloat(q.Volume))
	}

	out := make([]domain.Quote, 0, len(volumes))
	for k, v := range volumes {
		out = append(out, domain.Quote{Broker: k.broker, Side: k.side, Price: k.price, Volume: v.InexactFloat64()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		if out[i].Broker != out[j].Broker {
			return out[i].Broker < out[j].Broker
		}
		return out[i].Side < out[j].Side
	})
	return out
}

func snap(price float64, side domain.QuoteSide, step float64) float64 {
	if step <= 0 {
		return price
	}
	p := decimal.NewFromFloat(price)
	s := decimal.NewFromFloat(step)
	units := p.Div(s)
	if side == domain.QuoteSideAsk {
		units = units.Ceil()
	} else {
		units = units.Floor()
	}
	return units.Mul(s).InexactFloat64()
}

var _ domain.QuoteAggregator = (*Aggregator)(nil)
