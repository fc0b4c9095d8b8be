package bridge

import (
	"strings"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Wire types exchanged with a venue sidecar.

type orderRequest struct {
	ClientOrderID  string  `json:"client_order_id"`
	Side           string  `json:"side"`
	Size           float64 `json:"size"`
	Price          float64 `json:"price"`
	Type           string  `json:"type"`
	CashMarginType string  `json:"cash_margin_type"`
	LeverageLevel  float64 `json:"leverage_level"`
}

type orderResponse struct {
	ID                 string  `json:"id"`
	Status             string  `json:"status"`
	FilledSize         float64 `json:"filled_size"`
	AverageFilledPrice float64 `json:"average_filled_price"`
}

type wireQuote struct {
	Side   string  `json:"side"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

type quotesResponse struct {
	Quotes    []wireQuote `json:"quotes"`
	Timestamp int64       `json:"ts,omitempty"`
}

type positionResponse struct {
	Net float64 `json:"net"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// streamMessage is one frame of the quote stream.
type streamMessage struct {
	Type      string      `json:"type"`
	Quotes    []wireQuote `json:"quotes"`
	Timestamp int64       `json:"ts"`
}

type subscribeCmd struct {
	Op      string `json:"op"`
	Channel string `json:"channel"`
}

func parseStatus(s string) (domain.OrderStatus, bool) {
	switch strings.ToLower(s) {
	case "open", "new", "accepted":
		return domain.OrderStatusOpen, true
	case "partially_filled", "partial":
		return domain.OrderStatusPartiallyFilled, true
	case "filled", "executed":
		return domain.OrderStatusFilled, true
	case "canceled", "cancelled", "expired":
		return domain.OrderStatusCanceled, true
	}
	return "", false
}

func toQuotes(broker domain.BrokerID, in []wireQuote) []domain.Quote {
	out := make([]domain.Quote, 0, len(in))
	for _, q := range in {
		side := domain.QuoteSide(strings.ToLower(q.Side))
		if side != domain.QuoteSideAsk && side != domain.QuoteSideBid {
			continue
		}
		out = append(out, domain.Quote{Broker: broker, Side: side, Price: q.Price, Volume: q.Volume})
	}
	return out
}
