// Package domain defines core data structures used throughout the ledger.
package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// AssetPosition tracks one held asset inside the invested bucket.
type AssetPosition struct {
	USDValue       decimal.Decimal `json:"usd_value"`
	InvestedAmount decimal.Decimal `json:"invested_amount"`
	Quantity       decimal.Decimal `json:"quantity"`
}

// AssetBreakdown is an informational per-asset snapshot of on-chain holdings,
// maintained by buy/sell transitions; it is not authoritative for any bucket.
type AssetBreakdown struct {
	Native   decimal.Decimal `json:"native"`
	USDValue decimal.Decimal `json:"usd_value"`
}

// Balance is the singleton per-user ledger state. TotalUSD is always derived
// from the three buckets, never stored independently.
type Balance struct {
	AvailableForSpending decimal.Decimal           `json:"available_for_spending"`
	InvestedAmount       decimal.Decimal           `json:"invested_amount"`
	StrategyBalance      decimal.Decimal           `json:"strategy_balance"`
	Breakdown            map[string]AssetBreakdown `json:"breakdown,omitempty"`
	Assets               map[string]AssetPosition  `json:"assets,omitempty"`
	Strategies           map[string]*Strategy      `json:"strategies,omitempty"`
	ArchivedStrategies   map[string]*Strategy      `json:"archived_strategies,omitempty"`
	LastUpdated          time.Time                 `json:"last_updated"`
}

// NewBalance returns an empty balance with initialized maps.
func NewBalance() *Balance {
	return &Balance{
		Breakdown:          make(map[string]AssetBreakdown),
		Assets:             make(map[string]AssetPosition),
		Strategies:         make(map[string]*Strategy),
		ArchivedStrategies: make(map[string]*Strategy),
	}
}

// TotalUSD recomputes the aggregate from the three buckets.
func (b *Balance) TotalUSD() decimal.Decimal {
	return b.AvailableForSpending.Add(b.InvestedAmount).Add(b.StrategyBalance)
}

// Clone returns a deep copy safe to hand to callers.
func (b *Balance) Clone() *Balance {
	if b == nil {
		return nil
	}

	clone := &Balance{
		AvailableForSpending: b.AvailableForSpending,
		InvestedAmount:       b.InvestedAmount,
		StrategyBalance:      b.StrategyBalance,
		Breakdown:            make(map[string]AssetBreakdown, len(b.Breakdown)),
		Assets:               make(map[string]AssetPosition, len(b.Assets)),
		Strategies:           make(map[string]*Strategy, len(b.Strategies)),
		ArchivedStrategies:   make(map[string]*Strategy, len(b.ArchivedStrategies)),
		LastUpdated:          b.LastUpdated,
	}
	for chain, bd := range b.Breakdown {
		clone.Breakdown[chain] = bd
	}
	for symbol, pos := range b.Assets {
		clone.Assets[symbol] = pos
	}
	for id, s := range b.Strategies {
		sc := *s
		clone.Strategies[id] = &sc
	}
	for id, s := range b.ArchivedStrategies {
		sc := *s
		clone.ArchivedStrategies[id] = &sc
	}

	return clone
}

// EnsureMaps initializes nil maps after deserialization of old snapshots.
func (b *Balance) EnsureMaps() {
	if b.Breakdown == nil {
		b.Breakdown = make(map[string]AssetBreakdown)
	}
	if b.Assets == nil {
		b.Assets = make(map[string]AssetPosition)
	}
	if b.Strategies == nil {
		b.Strategies = make(map[string]*Strategy)
	}
	if b.ArchivedStrategies == nil {
		b.ArchivedStrategies = make(map[string]*Strategy)
	}
}

// CheckInvariants verifies the accounting invariants that must hold after
// every successful mutation.
func (b *Balance) CheckInvariants() error {
	if b.AvailableForSpending.IsNegative() {
		return errors.Errorf("available bucket is negative: %s", b.AvailableForSpending)
	}
	if b.InvestedAmount.IsNegative() {
		return errors.Errorf("invested bucket is negative: %s", b.InvestedAmount)
	}
	if b.StrategyBalance.IsNegative() {
		return errors.Errorf("strategy bucket is negative: %s", b.StrategyBalance)
	}
	for symbol, pos := range b.Assets {
		if pos.Quantity.IsNegative() {
			return errors.Errorf("asset %s quantity is negative: %s", symbol, pos.Quantity)
		}
	}
	for id, s := range b.Strategies {
		if s.CurrentAmount.IsNegative() {
			return errors.Errorf("strategy %s amount is negative: %s", id, s.CurrentAmount)
		}
	}
	return nil
}
