package arbitrage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// cycle is the state of one trade. It is created when an opportunity passes
// every gate and dropped when supervision ends.
type cycle struct {
	id      string
	started time.Time
	buy     *domain.Order
	sell    *domain.Order
}

func (c *cycle) legs() []*domain.Order { return []*domain.Order{c.buy, c.sell} }

func (a *Arbitrager) runCycle(ctx context.Context, cfg domain.EngineConfig) error {
	exposure := a.positions.NetExposure()
	a.metrics.exposure(exposure)
	if math.Abs(exposure) > cfg.MaxNetExposure {
		return &domain.RiskBreachError{NetExposure: exposure, MaxNetExposure: cfg.MaxNetExposure}
	}

	res, err := a.analyzer.Analyze(ctx, cfg, a.quotes.Quotes())
	if err != nil {
		var ae *domain.AnalysisError
		if !errors.As(err, &ae) {
			ae = &domain.AnalysisError{Reason: "analyzer", Err: err}
		}
		a.logger.WarnContext(ctx, "analysis failed, cycle skipped", slog.String("error", ae.Error()))
		a.metrics.cycle("analysis_failed")
		return nil
	}

	a.logger.InfoContext(ctx, "spread analyzed",
		slog.String("best_ask_broker", string(res.BestAsk.Broker)),
		slog.Float64("best_ask", res.BestAsk.Price),
		slog.String("best_bid_broker", string(res.BestBid.Broker)),
		slog.Float64("best_bid", res.BestBid.Price),
		slog.Float64("inverted_spread", res.InvertedSpread),
		slog.Float64("available_volume", res.AvailableVolume),
		slog.Float64("target_volume", res.TargetVolume),
		slog.Float64("target_profit", res.TargetProfit),
		slog.Float64("net_exposure", exposure),
	)

	if d := Evaluate(cfg, res); !d.Trade() {
		a.logger.InfoContext(ctx, d.Reason, slog.String("gate", string(d.Gate)))
		a.metrics.rejected(d.Gate)
		return nil
	}

	c := &cycle{id: uuid.NewString(), started: time.Now().UTC()}
	if c.buy, err = newOrder(cfg, res.BestAsk, res.TargetVolume, c.started); err != nil {
		return err
	}
	if c.sell, err = newOrder(cfg, res.BestBid, res.TargetVolume, c.started); err != nil {
		return err
	}

	defer a.legs.Store(nil)
	for _, leg := range c.legs() {
		if err := a.router.Send(ctx, leg); err != nil {
			// No compensation for a leg already sent; the engine stops.
			return err
		}
		a.metrics.sent(string(leg.Broker), string(leg.Side))
		a.logger.InfoContext(ctx, "order sent",
			slog.String("cycle_id", c.id),
			slog.String("order_id", leg.ID),
			slog.String("broker", string(leg.Broker)),
			slog.String("side", string(leg.Side)),
			slog.Float64("size", leg.Size),
			slog.Float64("price", leg.Price),
		)
	}
	a.publishLegs(c)

	rec := a.supervise(ctx, cfg, c)
	a.legs.Store(nil)
	a.record(ctx, rec)

	a.sleep(ctx, cfg.SleepAfterSend)
	return nil
}

// supervise polls both legs until they fill or MaxRetryCount polls are used.
// On the last poll every leg that is not filled gets exactly one cancel
// request; the result of that cancel is not re-checked.
func (a *Arbitrager) supervise(ctx context.Context, cfg domain.EngineConfig, c *cycle) domain.CycleRecord {
	rec := domain.CycleRecord{ID: c.id, Outcome: domain.CycleExhausted, StartedAt: c.started}
	var profit *float64

	for attempt := 1; attempt <= cfg.MaxRetryCount; attempt++ {
		rec.Attempts = attempt
		a.sleep(ctx, cfg.OrderStatusCheckInterval)

		for _, leg := range c.legs() {
			if err := a.router.Refresh(ctx, leg); err != nil {
				a.metrics.refreshFailed(string(leg.Broker))
				a.logger.WarnContext(ctx, "order refresh failed",
					slog.String("cycle_id", c.id),
					slog.String("order_id", leg.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		a.publishLegs(c)

		filled := true
		for _, leg := range c.legs() {
			if leg.Status == domain.OrderStatusFilled {
				continue
			}
			filled = false
			a.logger.WarnContext(ctx, "leg not filled",
				slog.String("cycle_id", c.id),
				slog.String("broker", string(leg.Broker)),
				slog.String("side", string(leg.Side)),
				slog.String("status", string(leg.Status)),
				slog.Float64("pending_size", leg.PendingSize()),
				slog.Int("attempt", attempt),
			)
		}

		if filled {
			p := RealizedProfit(c.buy, c.sell)
			profit = &p
			rec.Outcome = domain.CycleFilled
			rec.RealizedProfit = p
			a.logger.InfoContext(ctx, "both legs filled",
				slog.String("cycle_id", c.id),
				slog.Float64("profit", p),
				slog.Int("attempts", attempt),
			)
			break
		}

		if attempt == cfg.MaxRetryCount {
			for _, leg := range c.legs() {
				if leg.Status == domain.OrderStatusFilled {
					continue
				}
				a.metrics.canceled(string(leg.Broker))
				if err := a.router.Cancel(ctx, leg); err != nil {
					a.logger.WarnContext(ctx, "cancel failed",
						slog.String("cycle_id", c.id),
						slog.String("order_id", leg.ID),
						slog.String("error", err.Error()),
					)
					continue
				}
				a.logger.WarnContext(ctx, "cancel requested, final status not re-checked",
					slog.String("cycle_id", c.id),
					slog.String("order_id", leg.ID),
					slog.String("broker", string(leg.Broker)),
					slog.String("last_status", string(leg.Status)),
				)
			}
		}
	}

	rec.Buy = c.buy.Clone()
	rec.Sell = c.sell.Clone()
	rec.CompletedAt = time.Now().UTC()
	a.metrics.supervised(rec.Attempts, profit)
	a.metrics.cycle(string(rec.Outcome))
	return rec
}

func (a *Arbitrager) publishLegs(c *cycle) {
	legs := []domain.Order{c.buy.Clone(), c.sell.Clone()}
	a.legs.Store(&legs)
}

// record hands the finished cycle to the hook and the event bus.
func (a *Arbitrager) record(ctx context.Context, rec domain.CycleRecord) {
	if a.onCycle != nil {
		a.onCycle(rec)
	}
	if a.bus == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		a.logger.WarnContext(ctx, "marshal cycle record failed", slog.String("error", err.Error()))
		return
	}
	if err := a.bus.Publish(ctx, CyclesChannel, payload); err != nil {
		a.logger.WarnContext(ctx, "publish cycle record failed",
			slog.String("cycle_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := a.bus.StreamAppend(ctx, CyclesStream, payload); err != nil {
		a.logger.WarnContext(ctx, "append cycle record failed",
			slog.String("cycle_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}
