package domain

import "time"

// BrokerID identifies a trading venue.
type BrokerID string

// QuoteSide is the book side a quote rests on.
type QuoteSide string

const (
	QuoteSideAsk QuoteSide = "ask"
	QuoteSideBid QuoteSide = "bid"
)

// Quote is one price level offered by a broker. Quotes are immutable once
// published in a snapshot.
type Quote struct {
	Broker BrokerID  `json:"broker"`
	Side   QuoteSide `json:"side"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
}

// QuoteSnapshot is the aggregated view handed to subscribers.
type QuoteSnapshot struct {
	Quotes    []Quote   `json:"quotes"`
	Timestamp time.Time `json:"timestamp"`
}

// BrokerPosition is the net position held at one broker together with the
// size still allowed in each direction.
type BrokerPosition struct {
	Broker           BrokerID  `json:"broker"`
	Net              float64   `json:"net"`
	AllowedLongSize  float64   `json:"allowed_long_size"`
	AllowedShortSize float64   `json:"allowed_short_size"`
	LongAllowed      bool      `json:"long_allowed"`
	ShortAllowed     bool      `json:"short_allowed"`
	UpdatedAt        time.Time `json:"updated_at"`
}
