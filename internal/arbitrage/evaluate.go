package arbitrage

import (
	"fmt"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Gate names the check that rejected an opportunity.
type Gate string

const (
	GateSpread     Gate = "spread"
	GateVolume     Gate = "volume"
	GateProfit     Gate = "profit"
	GateSameBroker Gate = "same_broker"
	GateDemo       Gate = "demo"
)

// Decision is the outcome of Evaluate. A zero Gate means trade.
type Decision struct {
	Gate   Gate
	Reason string
}

// Trade reports whether every gate passed.
func (d Decision) Trade() bool { return d.Gate == "" }

// Evaluate applies the gates in order and stops at the first one that fails.
func Evaluate(cfg domain.EngineConfig, res domain.SpreadAnalysisResult) Decision {
	switch {
	case res.InvertedSpread <= 0:
		return Decision{GateSpread, fmt.Sprintf("no arbitrage opportunity, inverted spread %g", res.InvertedSpread)}
	case res.AvailableVolume < cfg.MinSize:
		return Decision{GateVolume, fmt.Sprintf("available volume %g is below min size %g", res.AvailableVolume, cfg.MinSize)}
	case res.TargetProfit < cfg.MinTargetProfit:
		return Decision{GateProfit, fmt.Sprintf("target profit %g is below min target profit %g", res.TargetProfit, cfg.MinTargetProfit)}
	case res.BestBid.Broker == res.BestAsk.Broker:
		return Decision{GateSameBroker, fmt.Sprintf("best bid and best ask are both on %s", res.BestBid.Broker)}
	case cfg.DemoMode:
		return Decision{GateDemo, "demo mode, orders are not sent"}
	}
	return Decision{}
}
