package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderApply(t *testing.T) {
	now := time.Now()

	t.Run("partial then filled", func(t *testing.T) {
		o := &Order{Size: 1, Status: OrderStatusOpen}
		assert.True(t, o.Apply(OrderStatusPartiallyFilled, 0.4, 100, now))
		assert.InDelta(t, 0.6, o.PendingSize(), 1e-9)
		assert.True(t, o.Apply(OrderStatusFilled, 1, 101, now))
		assert.Equal(t, OrderStatusFilled, o.Status)
		assert.Zero(t, o.PendingSize())
		assert.Equal(t, 101.0, o.AverageFilledPrice)
	})

	t.Run("regression ignored", func(t *testing.T) {
		o := &Order{Size: 1, Status: OrderStatusPartiallyFilled, FilledSize: 0.5}
		assert.False(t, o.Apply(OrderStatusOpen, 0, 0, now))
		assert.Equal(t, OrderStatusPartiallyFilled, o.Status)
		assert.Equal(t, 0.5, o.FilledSize)
	})

	t.Run("terminal is final", func(t *testing.T) {
		o := &Order{Size: 1, Status: OrderStatusCanceled}
		assert.False(t, o.Apply(OrderStatusFilled, 1, 100, now))
		assert.Equal(t, OrderStatusCanceled, o.Status)
	})

	t.Run("filled size clamped", func(t *testing.T) {
		o := &Order{Size: 1, Status: OrderStatusOpen}
		o.Apply(OrderStatusFilled, 3, 100, now)
		assert.Equal(t, 1.0, o.FilledSize)
	})

	t.Run("unknown status", func(t *testing.T) {
		o := &Order{Size: 1, Status: OrderStatusOpen}
		assert.False(t, o.Apply(OrderStatus("expired"), 0, 0, now))
	})
}

func TestIsFatal(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"analysis", &AnalysisError{Reason: "no best bid"}, false},
		{"wrapped analysis", fmt.Errorf("cycle: %w", &AnalysisError{Reason: "x"}), false},
		{"refresh", &AdapterError{Broker: "a", Op: OpRefresh, Err: errors.New("timeout")}, false},
		{"cancel", &AdapterError{Broker: "a", Op: OpCancel, Err: errors.New("timeout")}, false},
		{"send", &AdapterError{Broker: "a", Op: OpSend, Err: ErrRejected}, true},
		{"risk", &RiskBreachError{NetExposure: 5, MaxNetExposure: 1}, true},
		{"unclassified", errors.New("boom"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsFatal(tc.err))
		})
	}
}

func TestEngineConfigBroker(t *testing.T) {
	cfg := EngineConfig{Brokers: []BrokerConfig{
		{Broker: "a", Enabled: true, CashMarginType: CashMarginCash, LeverageLevel: 1},
		{Broker: "b", Enabled: false},
	}}
	b, ok := cfg.Broker("a")
	assert.True(t, ok)
	assert.Equal(t, CashMarginCash, b.CashMarginType)
	_, ok = cfg.Broker("z")
	assert.False(t, ok)
	assert.Equal(t, []BrokerID{"a"}, cfg.Enabled())
}
