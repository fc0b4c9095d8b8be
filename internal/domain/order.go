package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// CashMarginType selects the account an order is booked against.
type CashMarginType string

const (
	CashMarginCash        CashMarginType = "cash"
	CashMarginMarginOpen  CashMarginType = "margin_open"
	CashMarginMarginClose CashMarginType = "margin_close"
	CashMarginNetOut      CashMarginType = "net_out"
)

// ParseCashMarginType maps a configuration string onto a CashMarginType.
func ParseCashMarginType(s string) (CashMarginType, bool) {
	switch CashMarginType(s) {
	case CashMarginCash, CashMarginMarginOpen, CashMarginMarginClose, CashMarginNetOut:
		return CashMarginType(s), true
	}
	return "", false
}

// OrderStatus tracks the order lifecycle. Open -> PartiallyFilled* ->
// Filled | Canceled; a status never moves backwards.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
)

// rank orders statuses so regressions can be refused.
func (s OrderStatus) rank() int {
	switch s {
	case OrderStatusOpen:
		return 0
	case OrderStatusPartiallyFilled:
		return 1
	case OrderStatusFilled, OrderStatusCanceled:
		return 2
	}
	return -1
}

// Terminal reports whether no further status change is expected.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCanceled
}

// Order is one leg sent to a broker. Only the broker router mutates an order
// after creation.
type Order struct {
	ID                 string         `json:"id"`
	BrokerOrderID      string         `json:"broker_order_id"`
	Broker             BrokerID       `json:"broker"`
	Side               OrderSide      `json:"side"`
	Size               float64        `json:"size"`
	Price              float64        `json:"price"`
	CashMarginType     CashMarginType `json:"cash_margin_type"`
	Type               OrderType      `json:"type"`
	LeverageLevel      float64        `json:"leverage_level"`
	Status             OrderStatus    `json:"status"`
	FilledSize         float64        `json:"filled_size"`
	AverageFilledPrice float64        `json:"average_filled_price"`
	CreatedAt          time.Time      `json:"created_at"`
	SentAt             *time.Time     `json:"sent_at,omitempty"`
	LastUpdated        *time.Time     `json:"last_updated,omitempty"`
}

// PendingSize is the unfilled remainder of the order.
func (o *Order) PendingSize() float64 {
	return o.Size - o.FilledSize
}

// Apply records a status report from the venue. Reports that would move the
// status backwards are ignored and the filled size is clamped to the order
// size. It returns false when the report was ignored.
func (o *Order) Apply(status OrderStatus, filled, avgPrice float64, at time.Time) bool {
	if status.rank() < 0 {
		return false
	}
	if o.Status.Terminal() || status.rank() < o.Status.rank() {
		return false
	}
	if filled < o.FilledSize {
		filled = o.FilledSize
	}
	if filled > o.Size {
		filled = o.Size
	}
	o.Status = status
	o.FilledSize = filled
	if avgPrice > 0 {
		o.AverageFilledPrice = avgPrice
	}
	o.LastUpdated = &at
	return true
}

// Clone returns a copy that shares no pointers with o.
func (o *Order) Clone() Order {
	c := *o
	if o.SentAt != nil {
		t := *o.SentAt
		c.SentAt = &t
	}
	if o.LastUpdated != nil {
		t := *o.LastUpdated
		c.LastUpdated = &t
	}
	return c
}
