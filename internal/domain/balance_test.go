package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestBalance_TotalUSDIsDerived(t *testing.T) {
	b := NewBalance()
	b.AvailableForSpending = decimal.NewFromInt(100)
	b.InvestedAmount = decimal.NewFromInt(250)
	b.StrategyBalance = decimal.RequireFromString("49.5")

	require.Equal(t, "399.5", b.TotalUSD().String())
}

func TestBalance_CloneIsIndependent(t *testing.T) {
	b := NewBalance()
	b.AvailableForSpending = decimal.NewFromInt(100)
	b.Assets["BTC"] = AssetPosition{Quantity: decimal.NewFromInt(1)}
	s, err := NewStrategy("strat-1", "Emergency Fund", decimal.NewFromInt(50), time.Now())
	require.NoError(t, err)
	b.Strategies[s.ID] = s

	clone := b.Clone()
	clone.AvailableForSpending = decimal.Zero
	clone.Assets["BTC"] = AssetPosition{Quantity: decimal.NewFromInt(9)}
	clone.Strategies["strat-1"].CurrentAmount = decimal.Zero

	require.Equal(t, "100", b.AvailableForSpending.String())
	require.Equal(t, "1", b.Assets["BTC"].Quantity.String())
	require.Equal(t, "50", b.Strategies["strat-1"].CurrentAmount.String())
}

func TestBalance_CheckInvariants(t *testing.T) {
	b := NewBalance()
	require.NoError(t, b.CheckInvariants())

	b.InvestedAmount = decimal.NewFromInt(-1)
	require.Error(t, b.CheckInvariants())

	b.InvestedAmount = decimal.Zero
	b.Assets["BTC"] = AssetPosition{Quantity: decimal.NewFromInt(-1)}
	require.Error(t, b.CheckInvariants())
}

func TestStrategy_StopIsTerminal(t *testing.T) {
	now := time.Now()
	s, err := NewStrategy("strat-1", "Emergency Fund", decimal.NewFromInt(100), now)
	require.NoError(t, err)
	require.Equal(t, StrategyActive, s.Status)

	require.NoError(t, s.Stop(now))
	require.Equal(t, StrategyStopped, s.Status)
	require.True(t, s.CurrentAmount.IsZero())
	require.NotNil(t, s.StoppedAt)

	require.Error(t, s.Stop(now))
}

func TestNewStrategy_Validation(t *testing.T) {
	_, err := NewStrategy("", "x", decimal.NewFromInt(1), time.Now())
	require.Error(t, err)

	_, err = NewStrategy("strat-1", "x", decimal.NewFromInt(-1), time.Now())
	require.Error(t, err)
}
