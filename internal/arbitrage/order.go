package arbitrage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// newOrder builds the limit order that takes q for size. Taking an ask buys
// and taking a bid sells; margin settings come from the quote's broker.
func newOrder(cfg domain.EngineConfig, q domain.Quote, size float64, now time.Time) (*domain.Order, error) {
	bc, ok := cfg.Broker(q.Broker)
	if !ok {
		return nil, fmt.Errorf("arbitrage: broker %s: %w", q.Broker, domain.ErrUnknownBroker)
	}
	side := domain.OrderSideBuy
	if q.Side == domain.QuoteSideBid {
		side = domain.OrderSideSell
	}
	return &domain.Order{
		ID:             uuid.NewString(),
		Broker:         q.Broker,
		Side:           side,
		Size:           size,
		Price:          q.Price,
		CashMarginType: bc.CashMarginType,
		Type:           domain.OrderTypeLimit,
		LeverageLevel:  bc.LeverageLevel,
		Status:         domain.OrderStatusOpen,
		CreatedAt:      now,
	}, nil
}

// RealizedProfit is sell proceeds minus buy cost, rounded half away from
// zero to an integer.
func RealizedProfit(buy, sell *domain.Order) float64 {
	proceeds := decimal.NewFromFloat(sell.FilledSize).Mul(decimal.NewFromFloat(sell.AverageFilledPrice))
	cost := decimal.NewFromFloat(buy.FilledSize).Mul(decimal.NewFromFloat(buy.AverageFilledPrice))
	return proceeds.Sub(cost).Round(0).InexactFloat64()
}
