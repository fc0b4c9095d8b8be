// Package broker routes order operations to per-venue adapters.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Adapter is the contract every venue integration implements. Send must fill
// in BrokerOrderID; Refresh and Cancel update the order through Order.Apply.
type Adapter interface {
	Broker() domain.BrokerID
	Send(ctx context.Context, order *domain.Order) error
	Refresh(ctx context.Context, order *domain.Order) error
	Cancel(ctx context.Context, order *domain.Order) error
	Quotes(ctx context.Context) ([]domain.Quote, error)
	Position(ctx context.Context) (float64, error)
}

// Router holds registered adapters keyed by broker id.
type Router struct {
	adapters map[domain.BrokerID]Adapter
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewRouter returns an empty router. Call Register to add adapters.
func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		adapters: make(map[domain.BrokerID]Adapter),
		logger:   logger.With(slog.String("component", "broker_router")),
	}
}

// Register adds an adapter under its broker id, replacing any previous one.
func (r *Router) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Broker()] = a
}

// Get returns the adapter for a broker.
func (r *Router) Get(id domain.BrokerID) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("broker %q: %w", id, domain.ErrUnknownBroker)
	}
	return a, nil
}

// Adapters returns every registered adapter sorted by broker id.
func (r *Router) Adapters() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Broker() < out[j].Broker() })
	return out
}

// Send submits the order to its broker.
func (r *Router) Send(ctx context.Context, order *domain.Order) error {
	return r.do(ctx, domain.OpSend, order, Adapter.Send)
}

// Refresh pulls the latest status of the order from its broker.
func (r *Router) Refresh(ctx context.Context, order *domain.Order) error {
	return r.do(ctx, domain.OpRefresh, order, Adapter.Refresh)
}

// Cancel asks the broker to cancel the order.
func (r *Router) Cancel(ctx context.Context, order *domain.Order) error {
	return r.do(ctx, domain.OpCancel, order, Adapter.Cancel)
}

func (r *Router) do(ctx context.Context, op string, order *domain.Order, fn func(Adapter, context.Context, *domain.Order) error) error {
	a, err := r.Get(order.Broker)
	if err != nil {
		return &domain.AdapterError{Broker: order.Broker, Op: op, Err: err}
	}
	if err := fn(a, ctx, order); err != nil {
		r.logger.DebugContext(ctx, "adapter call failed",
			slog.String("broker", string(order.Broker)),
			slog.String("op", op),
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		return &domain.AdapterError{Broker: order.Broker, Op: op, Err: err}
	}
	return nil
}

var _ domain.BrokerRouter = (*Router)(nil)
