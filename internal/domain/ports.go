package domain

import "context"

// ConfigStore serves the current configuration snapshot.
type ConfigStore interface {
	Config() EngineConfig
}

// QuoteAggregator holds the latest cross-broker quote snapshot and signals
// subscribers whenever a new one is ready. Signals carry no payload; a
// subscriber that is not ready to receive misses the signal.
type QuoteAggregator interface {
	Quotes() []Quote
	Subscribe(ready chan<- struct{}) (unsubscribe func())
	Close() error
}

// PositionService reports point-in-time positions across brokers.
type PositionService interface {
	NetExposure() float64
	Positions() map[BrokerID]BrokerPosition
	Close() error
}

// BrokerRouter forwards order operations to the adapter of the order's
// broker. Refresh and Cancel mutate the order in place.
type BrokerRouter interface {
	Send(ctx context.Context, order *Order) error
	Refresh(ctx context.Context, order *Order) error
	Cancel(ctx context.Context, order *Order) error
}

// SpreadAnalyzer derives the best cross-broker pairing from a snapshot. cfg
// is the configuration snapshot of the cycle asking.
type SpreadAnalyzer interface {
	Analyze(ctx context.Context, cfg EngineConfig, quotes []Quote) (SpreadAnalysisResult, error)
}
