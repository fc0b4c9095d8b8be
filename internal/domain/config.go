package domain

import "time"

// EngineConfig is the read-only configuration snapshot used by one cycle.
type EngineConfig struct {
	MinSize                  float64
	MaxSize                  float64
	MinTargetProfit          float64
	MaxNetExposure           float64
	DemoMode                 bool
	SleepAfterSend           time.Duration
	MaxRetryCount            int
	OrderStatusCheckInterval time.Duration
	PriceMergeSize           float64
	Brokers                  []BrokerConfig
}

// BrokerConfig carries the per-broker order parameters and position limits.
type BrokerConfig struct {
	Broker            BrokerID
	Enabled           bool
	CashMarginType    CashMarginType
	LeverageLevel     float64
	MaxLongPosition   float64
	MaxShortPosition  float64
	CommissionPercent float64
}

// Broker looks up the configuration of a broker by id.
func (c EngineConfig) Broker(id BrokerID) (BrokerConfig, bool) {
	for _, b := range c.Brokers {
		if b.Broker == id {
			return b, true
		}
	}
	return BrokerConfig{}, false
}

// Enabled returns the ids of every enabled broker.
func (c EngineConfig) Enabled() []BrokerID {
	ids := make([]BrokerID, 0, len(c.Brokers))
	for _, b := range c.Brokers {
		if b.Enabled {
			ids = append(ids, b.Broker)
		}
	}
	return ids
}
