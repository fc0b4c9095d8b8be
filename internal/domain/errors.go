package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrLockHeld      = errors.New("lock already held")
	ErrUnknownBroker = errors.New("unknown broker")
	ErrNoQuotes      = errors.New("no quotes")
	ErrRejected      = errors.New("order rejected")
	ErrStopped       = errors.New("arbitrager stopped")
)

// Adapter operations reported in AdapterError.Op.
const (
	OpSend     = "send"
	OpRefresh  = "refresh"
	OpCancel   = "cancel"
	OpQuotes   = "quotes"
	OpPosition = "position"
)

// RiskBreachError is raised when the net exposure across brokers exceeds the
// configured limit. It always terminates the engine.
type RiskBreachError struct {
	NetExposure    float64
	MaxNetExposure float64
}

func (e *RiskBreachError) Error() string {
	return fmt.Sprintf("risk breach: net exposure %g exceeds limit %g", e.NetExposure, e.MaxNetExposure)
}

// AnalysisError reports that no tradable pairing could be derived from a
// snapshot. The cycle is skipped.
type AnalysisError struct {
	Reason string
	Err    error
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis failed: %s: %v", e.Reason, e.Err)
	}
	return "analysis failed: " + e.Reason
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// AdapterError wraps a failure returned by a broker adapter.
type AdapterError struct {
	Broker BrokerID
	Op     string
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("broker %s: %s: %v", e.Broker, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// IsFatal reports whether err must terminate the engine. Analysis failures
// and refresh or cancel failures are recoverable; everything else, including
// a rejected send, is fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return false
	}
	var ad *AdapterError
	if errors.As(err, &ad) {
		return ad.Op == OpSend
	}
	return true
}
