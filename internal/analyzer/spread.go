// Package analyzer finds the best cross-broker pairing in a quote snapshot.
package analyzer

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// volumePrecision is the number of decimals volumes are floored to.
const volumePrecision = 2

// PositionReader exposes per-broker position allowances.
type PositionReader interface {
	Positions() map[domain.BrokerID]domain.BrokerPosition
}

// Spread picks the highest bid and the lowest ask that the current positions
// allow trading against, and sizes the trade.
type Spread struct {
	positions PositionReader
	logger    *slog.Logger
}

// NewSpread creates a spread analyzer.
func NewSpread(positions PositionReader, logger *slog.Logger) *Spread {
	return &Spread{
		positions: positions,
		logger:    logger.With(slog.String("component", "spread_analyzer")),
	}
}

// Analyze returns the best pairing in quotes under the cycle's configuration
// snapshot cfg. It fails with an *domain.AnalysisError when positions are
// unknown or either side of the book is empty after filtering.
func (s *Spread) Analyze(ctx context.Context, cfg domain.EngineConfig, quotes []domain.Quote) (domain.SpreadAnalysisResult, error) {
	positions := s.positions.Positions()
	if len(positions) == 0 {
		return domain.SpreadAnalysisResult{}, &domain.AnalysisError{Reason: "position map is empty"}
	}

	minSize := decimal.NewFromFloat(cfg.MinSize)
	var bestBid, bestAsk *domain.Quote
	for i := range quotes {
		q := &quotes[i]
		bc, ok := cfg.Broker(q.Broker)
		if !ok || !bc.Enabled {
			continue
		}
		pos, ok := positions[q.Broker]
		if !ok {
			continue
		}
		if decimal.NewFromFloat(q.Volume).LessThan(minSize) {
			continue
		}
		switch q.Side {
		case domain.QuoteSideBid:
			// Hitting a bid sells on that broker.
			if pos.ShortAllowed && (bestBid == nil || q.Price > bestBid.Price) {
				bestBid = q
			}
		case domain.QuoteSideAsk:
			if pos.LongAllowed && (bestAsk == nil || q.Price < bestAsk.Price) {
				bestAsk = q
			}
		}
	}
	if bestBid == nil {
		return domain.SpreadAnalysisResult{}, &domain.AnalysisError{Reason: "no best bid was found", Err: domain.ErrNoQuotes}
	}
	if bestAsk == nil {
		return domain.SpreadAnalysisResult{}, &domain.AnalysisError{Reason: "no best ask was found", Err: domain.ErrNoQuotes}
	}

	bidPrice := decimal.NewFromFloat(bestBid.Price)
	askPrice := decimal.NewFromFloat(bestAsk.Price)
	spread := bidPrice.Sub(askPrice)

	available := decimal.Min(
		decimal.NewFromFloat(bestBid.Volume),
		decimal.NewFromFloat(bestAsk.Volume),
	).Truncate(volumePrecision)

	target := decimal.Min(
		available,
		decimal.NewFromFloat(cfg.MaxSize),
		decimal.NewFromFloat(positions[bestBid.Broker].AllowedShortSize),
		decimal.NewFromFloat(positions[bestAsk.Broker].AllowedLongSize),
	).Truncate(volumePrecision)

	bidCfg, _ := cfg.Broker(bestBid.Broker)
	askCfg, _ := cfg.Broker(bestAsk.Broker)
	commission := commissionOf(bidPrice, target, bidCfg.CommissionPercent).
		Add(commissionOf(askPrice, target, askCfg.CommissionPercent))
	profit := spread.Mul(target).Sub(commission).Round(0)

	res := domain.SpreadAnalysisResult{
		BestBid:         *bestBid,
		BestAsk:         *bestAsk,
		InvertedSpread:  spread.InexactFloat64(),
		AvailableVolume: available.InexactFloat64(),
		TargetVolume:    target.InexactFloat64(),
		TargetProfit:    profit.InexactFloat64(),
	}
	s.logger.DebugContext(ctx, "spread analyzed",
		slog.String("bid_broker", string(bestBid.Broker)),
		slog.Float64("bid", bestBid.Price),
		slog.String("ask_broker", string(bestAsk.Broker)),
		slog.Float64("ask", bestAsk.Price),
		slog.Float64("spread", res.InvertedSpread),
		slog.Float64("target_volume", res.TargetVolume),
		slog.Float64("target_profit", res.TargetProfit),
	)
	return res, nil
}

func commissionOf(price, volume decimal.Decimal, percent float64) decimal.Decimal {
	if percent == 0 {
		return decimal.Zero
	}
	return price.Mul(volume).Mul(decimal.NewFromFloat(percent)).Div(decimal.NewFromInt(100))
}

var _ domain.SpreadAnalyzer = (*Spread)(nil)
