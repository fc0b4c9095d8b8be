// Package paper implements an in-memory venue used for demo runs and tests.
// Orders rest at their limit price and fill after a configured number of
// status refreshes.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/broker"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Config configures a paper venue.
type Config struct {
	Broker   domain.BrokerID
	Quotes   []domain.Quote
	Position float64
	// FillAfter is the number of refreshes before an order is completely
	// filled. Earlier refreshes report proportional partial fills. Values
	// below one fill on the first refresh.
	FillAfter int
}

type paperOrder struct {
	side      domain.OrderSide
	size      float64
	price     float64
	filled    float64
	refreshes int
	status    domain.OrderStatus
}

// Venue is a simulated broker.
type Venue struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	quotes   []domain.Quote
	orders   map[string]*paperOrder
	position float64
}

// New creates a paper venue.
func New(cfg Config, logger *slog.Logger) *Venue {
	v := &Venue{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "paper"), slog.String("broker", string(cfg.Broker))),
		orders:   make(map[string]*paperOrder),
		position: cfg.Position,
	}
	v.SetQuotes(cfg.Quotes)
	return v
}

// Broker returns the venue id.
func (v *Venue) Broker() domain.BrokerID { return v.cfg.Broker }

// SetQuotes replaces the book served by Quotes.
func (v *Venue) SetQuotes(quotes []domain.Quote) {
	out := make([]domain.Quote, len(quotes))
	for i, q := range quotes {
		q.Broker = v.cfg.Broker
		out[i] = q
	}
	v.mu.Lock()
	v.quotes = out
	v.mu.Unlock()
}

// Send accepts every order.
func (v *Venue) Send(_ context.Context, o *domain.Order) error {
	if o.Size <= 0 {
		return fmt.Errorf("paper: size %g: %w", o.Size, domain.ErrRejected)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	id := uuid.NewString()
	v.orders[id] = &paperOrder{
		side:   o.Side,
		size:   o.Size,
		price:  o.Price,
		status: domain.OrderStatusOpen,
	}
	now := time.Now().UTC()
	o.BrokerOrderID = id
	o.Status = domain.OrderStatusOpen
	o.SentAt = &now

	v.logger.Debug("paper order accepted",
		slog.String("broker_order_id", id),
		slog.String("side", string(o.Side)),
		slog.Float64("size", o.Size),
		slog.Float64("price", o.Price),
	)
	return nil
}

// Refresh advances the simulated fill of the order and reports it.
func (v *Venue) Refresh(_ context.Context, o *domain.Order) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	po, ok := v.orders[o.BrokerOrderID]
	if !ok {
		return fmt.Errorf("paper: order %s: %w", o.BrokerOrderID, domain.ErrNotFound)
	}
	if !po.status.Terminal() {
		po.refreshes++
		fillAfter := v.cfg.FillAfter
		if fillAfter < 1 {
			fillAfter = 1
		}
		target := po.size
		status := domain.OrderStatusFilled
		if po.refreshes < fillAfter {
			target = po.size * float64(po.refreshes) / float64(fillAfter)
			status = domain.OrderStatusPartiallyFilled
		}
		v.book(po, target-po.filled)
		po.filled = target
		po.status = status
	}
	o.Apply(po.status, po.filled, po.price, time.Now().UTC())
	return nil
}

// Cancel cancels the unfilled remainder.
func (v *Venue) Cancel(_ context.Context, o *domain.Order) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	po, ok := v.orders[o.BrokerOrderID]
	if !ok {
		return fmt.Errorf("paper: order %s: %w", o.BrokerOrderID, domain.ErrNotFound)
	}
	if po.status == domain.OrderStatusFilled {
		return fmt.Errorf("paper: order %s already filled", o.BrokerOrderID)
	}
	po.status = domain.OrderStatusCanceled
	o.Apply(po.status, po.filled, po.price, time.Now().UTC())
	return nil
}

// Quotes returns the current book.
func (v *Venue) Quotes(context.Context) ([]domain.Quote, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.Quote(nil), v.quotes...), nil
}

// Position returns the net position built up by simulated fills.
func (v *Venue) Position(context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position, nil
}

// book applies a fill delta to the net position. Caller must hold v.mu.
func (v *Venue) book(po *paperOrder, delta float64) {
	if po.side == domain.OrderSideBuy {
		v.position += delta
	} else {
		v.position -= delta
	}
}

var _ broker.Adapter = (*Venue)(nil)
