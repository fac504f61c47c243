// Package ledger implements the pure balance-transition logic of the diboas
// ledger. Apply never performs I/O; callers persist and publish the result.
package ledger

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/bribeirobr25/diboas-sub002/internal/domain"
)

// ClampMode controls what happens when a subtraction would drive a bucket
// below zero.
type ClampMode int

const (
	// ClampLenient clamps the bucket at zero and proceeds (legacy behavior).
	ClampLenient ClampMode = iota
	// ClampStrict rejects the transaction with ErrInsufficientFunds.
	ClampStrict
)

var (
	// ErrInsufficientFunds is returned in strict mode when a bucket would go negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrUnknownTransactionType is returned for a type outside the ledger's set.
	ErrUnknownTransactionType = errors.New("unknown transaction type")
	// ErrStrategyNotFound is returned when stop_strategy names an unknown or stopped strategy.
	ErrStrategyNotFound = errors.New("strategy not found")
)

// Result is the outcome of Apply: the successor balance, plus whether a
// lenient clamp was hit so callers can log it.
type Result struct {
	Balance *domain.Balance
	Clamped bool
}

// Apply computes the successor balance for a completed transaction. The input
// balance is never mutated; the result is a deep copy with the type's
// transition applied and TotalUSD-relevant buckets updated.
func Apply(b *domain.Balance, tx *domain.Transaction, mode ClampMode) (Result, error) {
	next := b.Clone()
	next.EnsureMaps()

	var clamped bool
	sub := func(bucket decimal.Decimal, amount decimal.Decimal) (decimal.Decimal, error) {
		out := bucket.Sub(amount)
		if out.IsNegative() {
			if mode == ClampStrict {
				return bucket, errors.Wrapf(ErrInsufficientFunds,
					"bucket %s short of %s", bucket, amount)
			}
			clamped = true
			return decimal.Zero, nil
		}
		return out, nil
	}

	net := tx.Amount.Sub(tx.FeeTotal)

	var err error
	switch tx.Type {
	case domain.TransactionAdd:
		next.AvailableForSpending = next.AvailableForSpending.Add(net)

	case domain.TransactionWithdraw:
		// provider nets the fee out on its side
		next.AvailableForSpending, err = sub(next.AvailableForSpending, tx.Amount)

	case domain.TransactionSend:
		next.AvailableForSpending, err = sub(next.AvailableForSpending, tx.Amount)

	case domain.TransactionReceive:
		next.AvailableForSpending = next.AvailableForSpending.Add(tx.Amount)

	case domain.TransactionBuy:
		if tx.WalletFunded() {
			next.AvailableForSpending, err = sub(next.AvailableForSpending, tx.Amount)
			if err != nil {
				break
			}
		}
		next.InvestedAmount = next.InvestedAmount.Add(net)
		applyBuyPosition(next, tx, net)

	case domain.TransactionSell:
		next.AvailableForSpending = next.AvailableForSpending.Add(net)
		next.InvestedAmount, err = sub(next.InvestedAmount, tx.Amount)
		if err != nil {
			break
		}
		applySellPosition(next, tx, &clamped, mode == ClampStrict, &err)

	case domain.TransactionStartStrategy:
		if tx.WalletFunded() {
			next.AvailableForSpending, err = sub(next.AvailableForSpending, tx.Amount)
			if err != nil {
				break
			}
		}
		next.StrategyBalance = next.StrategyBalance.Add(net)
		err = applyStartStrategy(next, tx, net)

	case domain.TransactionStopStrategy:
		// tx.Amount carries the strategy's total value at stop time
		next.AvailableForSpending = next.AvailableForSpending.Add(net)
		next.StrategyBalance, err = sub(next.StrategyBalance, tx.Amount)
		if err != nil {
			break
		}
		err = applyStopStrategy(next, tx)

	default:
		return Result{}, errors.Wrapf(ErrUnknownTransactionType, "%q", tx.Type)
	}
	if err != nil {
		return Result{}, err
	}

	next.LastUpdated = tx.CreatedAt
	return Result{Balance: next, Clamped: clamped}, nil
}

func applyBuyPosition(b *domain.Balance, tx *domain.Transaction, net decimal.Decimal) {
	if tx.Asset == "" {
		return
	}
	pos := b.Assets[tx.Asset]
	pos.USDValue = pos.USDValue.Add(net)
	pos.InvestedAmount = pos.InvestedAmount.Add(net)
	if tx.Price.IsPositive() {
		pos.Quantity = pos.Quantity.Add(net.Div(tx.Price))
	}
	b.Assets[tx.Asset] = pos
	syncBreakdown(b, tx.Asset)
}

func applySellPosition(b *domain.Balance, tx *domain.Transaction, clamped *bool, strict bool, err *error) {
	if tx.Asset == "" {
		return
	}
	pos, ok := b.Assets[tx.Asset]
	if !ok {
		return
	}

	reduce := func(v, by decimal.Decimal) decimal.Decimal {
		out := v.Sub(by)
		if out.IsNegative() {
			if strict {
				*err = errors.Wrapf(ErrInsufficientFunds, "asset %s position short", tx.Asset)
				return v
			}
			*clamped = true
			return decimal.Zero
		}
		return out
	}

	pos.USDValue = reduce(pos.USDValue, tx.Amount)
	pos.InvestedAmount = reduce(pos.InvestedAmount, tx.Amount)
	if tx.Price.IsPositive() {
		pos.Quantity = reduce(pos.Quantity, tx.Amount.Div(tx.Price))
	}
	if *err != nil {
		return
	}

	// drop the entry once the position is fully unwound
	if pos.InvestedAmount.IsZero() {
		delete(b.Assets, tx.Asset)
		delete(b.Breakdown, tx.Asset)
		return
	}
	b.Assets[tx.Asset] = pos
	syncBreakdown(b, tx.Asset)
}

// syncBreakdown mirrors the asset position into the informational per-asset
// snapshot.
func syncBreakdown(b *domain.Balance, asset string) {
	pos := b.Assets[asset]
	b.Breakdown[asset] = domain.AssetBreakdown{
		Native:   pos.Quantity,
		USDValue: pos.USDValue,
	}
}

func applyStartStrategy(b *domain.Balance, tx *domain.Transaction, net decimal.Decimal) error {
	id := tx.StrategyID
	if id == "" {
		id = tx.ID
	}

	if existing, ok := b.Strategies[id]; ok {
		existing.CurrentAmount = existing.CurrentAmount.Add(net)
		if tx.StrategyName != "" {
			existing.Name = tx.StrategyName
		}
		return nil
	}

	s, err := domain.NewStrategy(id, tx.StrategyName, net, tx.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "create strategy")
	}
	b.Strategies[id] = s
	return nil
}

func applyStopStrategy(b *domain.Balance, tx *domain.Transaction) error {
	s, ok := b.Strategies[tx.StrategyID]
	if !ok {
		return errors.Wrapf(ErrStrategyNotFound, "%q", tx.StrategyID)
	}
	if err := s.Stop(tx.CreatedAt); err != nil {
		return err
	}
	delete(b.Strategies, tx.StrategyID)
	b.ArchivedStrategies[s.ID] = s
	return nil
}
