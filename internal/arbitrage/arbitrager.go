// Package arbitrage runs the two-leg cross-broker trading cycle: on every new
// quote snapshot it guards exposure, analyzes the book, applies the entry
// gates, sends a buy and a sell leg and supervises them until both fill or
// the retry budget runs out.
package arbitrage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Channel and lock names shared with other engine processes.
const (
	CycleLockKey  = "crossarb:cycle"
	CyclesChannel = "crossarb:cycles"
	CyclesStream  = "crossarb:cycles:log"
	FatalChannel  = "crossarb:fatal"
)

// Sleeper blocks for d. The cycle's only suspension points go through it.
type Sleeper func(ctx context.Context, d time.Duration)

// Config wires the Arbitrager to its collaborators. Locks, Bus, Metrics,
// Sleep and OnCycle are optional.
type Config struct {
	Configs   domain.ConfigStore
	Quotes    domain.QuoteAggregator
	Positions domain.PositionService
	Router    domain.BrokerRouter
	Analyzer  domain.SpreadAnalyzer

	Locks   domain.LockManager
	Bus     domain.SignalBus
	Metrics *Metrics
	Sleep   Sleeper
	// OnCycle is called after every supervised cycle.
	OnCycle func(domain.CycleRecord)

	Logger *slog.Logger
}

// Arbitrager consumes snapshot signals on a single worker so cycles never
// overlap. Signals that arrive while a cycle runs are dropped.
type Arbitrager struct {
	configs   domain.ConfigStore
	quotes    domain.QuoteAggregator
	positions domain.PositionService
	router    domain.BrokerRouter
	analyzer  domain.SpreadAnalyzer
	locks     domain.LockManager
	bus       domain.SignalBus
	metrics   *Metrics
	sleep     Sleeper
	onCycle   func(domain.CycleRecord)
	logger    *slog.Logger

	signals chan struct{}

	mu          sync.Mutex
	unsubscribe func()
	stopped     chan struct{}
	stopOnce    sync.Once

	// cycleMu is held for the whole of a cycle; Stop takes it before releasing
	// the services the cycle uses.
	cycleMu sync.Mutex

	// legs is a read-only copy of the in-flight cycle's orders.
	legs atomic.Pointer[[]domain.Order]
}

// New creates an Arbitrager.
func New(cfg Config) *Arbitrager {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	return &Arbitrager{
		configs:   cfg.Configs,
		quotes:    cfg.Quotes,
		positions: cfg.Positions,
		router:    cfg.Router,
		analyzer:  cfg.Analyzer,
		locks:     cfg.Locks,
		bus:       cfg.Bus,
		metrics:   cfg.Metrics,
		sleep:     sleep,
		onCycle:   cfg.OnCycle,
		logger:    cfg.Logger.With(slog.String("component", "arbitrager")),
		signals:   make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Start subscribes to snapshot signals.
func (a *Arbitrager) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	select {
	case <-a.stopped:
		return domain.ErrStopped
	default:
	}
	if a.unsubscribe != nil {
		return errors.New("arbitrage: already started")
	}
	a.unsubscribe = a.quotes.Subscribe(a.signals)
	a.logger.Info("arbitrager started")
	return nil
}

// Stop unsubscribes, waits for a cycle in flight to finish and then releases
// the position service and the aggregator. No cycle starts after Stop. Both
// releases are attempted and their errors joined.
func (a *Arbitrager) Stop() error {
	var err error
	a.stopOnce.Do(func() {
		a.mu.Lock()
		if a.unsubscribe != nil {
			a.unsubscribe()
		}
		a.mu.Unlock()
		close(a.stopped)

		a.cycleMu.Lock()
		defer a.cycleMu.Unlock()
		err = errors.Join(
			wrapClose("position service", a.positions.Close()),
			wrapClose("quote aggregator", a.quotes.Close()),
		)
		a.logger.Info("arbitrager stopped")
	})
	return err
}

func wrapClose(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("arbitrage: close %s: %w", what, err)
}

// Run processes snapshot signals until ctx is cancelled or Stop is called.
// It returns the error that ended the engine: a risk breach, a failed send,
// a panic or any other unclassified failure of a cycle.
func (a *Arbitrager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.stopped:
			return nil
		case <-a.signals:
		}

		// The cycle runs to completion even if ctx is cancelled meanwhile.
		stopped, err := a.runLocked(context.WithoutCancel(ctx))
		if stopped {
			return nil
		}
		if err != nil {
			a.escalate(ctx, err)
			return fmt.Errorf("arbitrage: %w", err)
		}
	}
}

// runLocked runs one cycle under cycleMu unless Stop got there first.
func (a *Arbitrager) runLocked(ctx context.Context) (stopped bool, err error) {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()
	// Stop wins over a signal that raced with it.
	select {
	case <-a.stopped:
		return true, nil
	default:
	}
	return false, a.handle(ctx)
}

// ActiveOrders returns a copy of the legs of the cycle in flight, or nil
// between cycles.
func (a *Arbitrager) ActiveOrders() []domain.Order {
	p := a.legs.Load()
	if p == nil {
		return nil
	}
	return append([]domain.Order(nil), (*p)...)
}

// handle runs one cycle under the optional cross-process lock.
func (a *Arbitrager) handle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.legs.Store(nil)
			err = fmt.Errorf("cycle panicked: %v\n%s", r, debug.Stack())
		}
	}()

	cfg := a.configs.Config()
	if a.locks != nil {
		unlock, lerr := a.locks.Acquire(ctx, CycleLockKey, lockTTL(cfg))
		if errors.Is(lerr, domain.ErrLockHeld) {
			a.logger.DebugContext(ctx, "cycle lock held elsewhere, signal skipped")
			return nil
		}
		if lerr != nil {
			a.logger.WarnContext(ctx, "cycle lock unavailable, signal skipped",
				slog.String("error", lerr.Error()),
			)
			return nil
		}
		defer unlock()
	}
	return a.runCycle(ctx, cfg)
}

// lockTTL covers the longest a cycle can take: every poll plus the cooldown.
func lockTTL(cfg domain.EngineConfig) time.Duration {
	return time.Duration(cfg.MaxRetryCount+1)*cfg.OrderStatusCheckInterval + cfg.SleepAfterSend + 30*time.Second
}

func (a *Arbitrager) escalate(ctx context.Context, err error) {
	a.logger.ErrorContext(ctx, "fatal cycle failure, engine stops", slog.String("error", err.Error()))
	a.metrics.cycle("fatal")
	if a.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"event": "fatal",
		"error": err.Error(),
		"at":    time.Now().UTC(),
	})
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if perr := a.bus.Publish(pubCtx, FatalChannel, payload); perr != nil {
		a.logger.Warn("publish fatal event failed", slog.String("error", perr.Error()))
	}
}
