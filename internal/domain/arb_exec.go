package domain

import "time"

// CycleOutcome is how a trading cycle ended once both legs were sent.
type CycleOutcome string

const (
	CycleFilled    CycleOutcome = "filled"
	CycleExhausted CycleOutcome = "exhausted"
)

// CycleRecord summarizes one two-leg execution and its realized profit.
type CycleRecord struct {
	ID             string       `json:"id"`
	Buy            Order        `json:"buy"`
	Sell           Order        `json:"sell"`
	Outcome        CycleOutcome `json:"outcome"`
	Attempts       int          `json:"attempts"`
	RealizedProfit float64      `json:"realized_profit"`
	StartedAt      time.Time    `json:"started_at"`
	CompletedAt    time.Time    `json:"completed_at"`
}
