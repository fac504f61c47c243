package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// StrategyStatus lifecycle state of a yield strategy.
type StrategyStatus string

const (
	// StrategyActive the strategy holds funds and accrues yield.
	StrategyActive StrategyStatus = "active"
	// StrategyStopped terminal state; funds returned, record archived.
	StrategyStopped StrategyStatus = "stopped"
)

// Strategy is a named, funded yield position with its own lifecycle,
// independent of plain asset holdings.
type Strategy struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	APY           decimal.Decimal `json:"apy"`
	Status        StrategyStatus  `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	StoppedAt     *time.Time      `json:"stopped_at,omitempty"`
}

// NewStrategy constructs an active strategy funded with the given amount.
func NewStrategy(id, name string, amount decimal.Decimal, now time.Time) (*Strategy, error) {
	if id == "" {
		return nil, errors.New("strategy id is required")
	}
	if amount.IsNegative() {
		return nil, errors.Errorf("strategy amount must not be negative, got %s", amount)
	}

	return &Strategy{
		ID:            id,
		Name:          name,
		CurrentAmount: amount,
		Status:        StrategyActive,
		CreatedAt:     now,
	}, nil
}

// Stop moves the strategy to its terminal state. Stopped strategies are
// immutable; stopping twice is an error.
func (s *Strategy) Stop(now time.Time) error {
	if s.Status == StrategyStopped {
		return errors.Errorf("strategy %s is already stopped", s.ID)
	}
	s.Status = StrategyStopped
	s.CurrentAmount = decimal.Zero
	s.StoppedAt = &now
	return nil
}
