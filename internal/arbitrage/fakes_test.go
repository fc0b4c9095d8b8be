package arbitrage

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

type fakeConfig struct {
	cfg   domain.EngineConfig
	reads atomic.Int32
}

func (f *fakeConfig) Config() domain.EngineConfig {
	f.reads.Add(1)
	return f.cfg
}

type fakeQuotes struct {
	mu       sync.Mutex
	ready    chan<- struct{}
	quotes   []domain.Quote
	closed   int
	closeErr error
}

func (f *fakeQuotes) Quotes() []domain.Quote { return f.quotes }

func (f *fakeQuotes) Subscribe(ready chan<- struct{}) func() {
	f.mu.Lock()
	f.ready = ready
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.ready = nil
		f.mu.Unlock()
	}
}

func (f *fakeQuotes) subscriber() chan<- struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeQuotes) Close() error {
	f.closed++
	return f.closeErr
}

type fakePositions struct {
	exposure float64
	closed   int
	closeErr error
}

func (f *fakePositions) NetExposure() float64 { return f.exposure }

func (f *fakePositions) Positions() map[domain.BrokerID]domain.BrokerPosition { return nil }

func (f *fakePositions) Close() error {
	f.closed++
	return f.closeErr
}

type fakeAnalyzer struct {
	result domain.SpreadAnalysisResult
	err    error
	panic  bool
	calls  int
	cfg    domain.EngineConfig
}

func (f *fakeAnalyzer) Analyze(_ context.Context, cfg domain.EngineConfig, _ []domain.Quote) (domain.SpreadAnalysisResult, error) {
	f.calls++
	f.cfg = cfg
	if f.panic {
		panic("analyzer blew up")
	}
	return f.result, f.err
}

// fakeRouter records every call. fill decides how a refresh changes a leg.
type fakeRouter struct {
	mu        sync.Mutex
	sent      []domain.Order
	refreshes map[string]int
	cancels   map[string]int
	sendErr   map[domain.OrderSide]error
	// refreshErr fails every refresh of that side and leaves the leg as is.
	refreshErr map[domain.OrderSide]error
	cancelErr  map[domain.OrderSide]error
	fill       func(o *domain.Order, refresh int)
	onRefresh  func()
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		refreshes:  map[string]int{},
		cancels:    map[string]int{},
		sendErr:    map[domain.OrderSide]error{},
		refreshErr: map[domain.OrderSide]error{},
		cancelErr:  map[domain.OrderSide]error{},
		fill: func(o *domain.Order, _ int) {
			o.Apply(domain.OrderStatusFilled, o.Size, o.Price, time.Now())
		},
	}
}

func (r *fakeRouter) Send(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.sendErr[o.Side]; err != nil {
		return &domain.AdapterError{Broker: o.Broker, Op: domain.OpSend, Err: err}
	}
	now := time.Now()
	o.SentAt = &now
	o.BrokerOrderID = "srv-" + o.ID
	r.sent = append(r.sent, o.Clone())
	return nil
}

func (r *fakeRouter) Refresh(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	r.refreshes[o.ID]++
	n := r.refreshes[o.ID]
	hook := r.onRefresh
	err := r.refreshErr[o.Side]
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return &domain.AdapterError{Broker: o.Broker, Op: domain.OpRefresh, Err: err}
	}
	r.fill(o, n)
	return nil
}

func (r *fakeRouter) Cancel(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[o.ID]++
	if err := r.cancelErr[o.Side]; err != nil {
		return &domain.AdapterError{Broker: o.Broker, Op: domain.OpCancel, Err: err}
	}
	return nil
}

func (r *fakeRouter) sentOrders() []domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Order(nil), r.sent...)
}

type fakeLocks struct {
	err      error
	acquired int
	released int
}

func (l *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func() { l.released++ }, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = map[string][][]byte{}
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	return b.Publish(ctx, stream, payload)
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *fakeBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[channel])
}

// recordingSleeper returns immediately and remembers every requested wait.
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }
