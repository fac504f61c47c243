package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bribeirobr25/diboas-sub002/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func baseBalance() *domain.Balance {
	b := domain.NewBalance()
	b.AvailableForSpending = dec("1000")
	return b
}

func tx(t domain.TransactionType, amount, fee string) *domain.Transaction {
	return &domain.Transaction{
		ID:        "tx-1",
		Type:      t,
		Amount:    dec(amount),
		FeeTotal:  dec(fee),
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func requireTotalInvariant(t *testing.T, b *domain.Balance) {
	t.Helper()
	require.True(t, b.TotalUSD().Equal(
		b.AvailableForSpending.Add(b.InvestedAmount).Add(b.StrategyBalance)))
	require.NoError(t, b.CheckInvariants())
}

func TestApply_AddCreditsNetAmount(t *testing.T) {
	res, err := Apply(baseBalance(), tx(domain.TransactionAdd, "100", "2"), ClampLenient)
	require.NoError(t, err)

	require.Equal(t, "1098", res.Balance.AvailableForSpending.String())
	require.Equal(t, "1098", res.Balance.TotalUSD().String())
	requireTotalInvariant(t, res.Balance)
}

func TestApply_WithdrawAndSendDebitFullAmount(t *testing.T) {
	for _, typ := range []domain.TransactionType{domain.TransactionWithdraw, domain.TransactionSend} {
		res, err := Apply(baseBalance(), tx(typ, "250", "1.5"), ClampLenient)
		require.NoError(t, err)
		require.Equal(t, "750", res.Balance.AvailableForSpending.String(), "type %s", typ)
		requireTotalInvariant(t, res.Balance)
	}
}

func TestApply_ReceiveCreditsFullAmount(t *testing.T) {
	res, err := Apply(baseBalance(), tx(domain.TransactionReceive, "55.25", "0"), ClampLenient)
	require.NoError(t, err)
	require.Equal(t, "1055.25", res.Balance.AvailableForSpending.String())
}

func TestApply_BuyWalletFunded(t *testing.T) {
	buy := tx(domain.TransactionBuy, "50", "0.045")
	buy.Asset = "BTC"
	buy.PaymentMethod = domain.PaymentMethodWallet
	buy.Price = dec("50000")

	res, err := Apply(baseBalance(), buy, ClampLenient)
	require.NoError(t, err)

	require.Equal(t, "950", res.Balance.AvailableForSpending.String())
	require.Equal(t, "49.955", res.Balance.InvestedAmount.String())
	require.Equal(t, "49.955", res.Balance.Assets["BTC"].USDValue.String())
	require.True(t, res.Balance.Assets["BTC"].Quantity.Equal(dec("49.955").Div(dec("50000"))))

	bd, ok := res.Balance.Breakdown["BTC"]
	require.True(t, ok, "buy must populate the per-asset breakdown")
	require.Equal(t, "49.955", bd.USDValue.String())
	require.True(t, bd.Native.Equal(res.Balance.Assets["BTC"].Quantity))
	requireTotalInvariant(t, res.Balance)
}

func TestApply_BuyExternalFundedKeepsAvailable(t *testing.T) {
	buy := tx(domain.TransactionBuy, "50", "0.5")
	buy.Asset = "ETH"
	buy.PaymentMethod = "credit_card"

	res, err := Apply(baseBalance(), buy, ClampLenient)
	require.NoError(t, err)

	require.Equal(t, "1000", res.Balance.AvailableForSpending.String())
	require.Equal(t, "49.5", res.Balance.InvestedAmount.String())
	requireTotalInvariant(t, res.Balance)
}

func TestApply_SellReturnsNetAndRemovesEmptyPosition(t *testing.T) {
	b := baseBalance()
	b.InvestedAmount = dec("200")
	b.Assets["BTC"] = domain.AssetPosition{
		USDValue:       dec("200"),
		InvestedAmount: dec("200"),
		Quantity:       dec("0.004"),
	}

	sell := tx(domain.TransactionSell, "200", "1")
	sell.Asset = "BTC"
	sell.Price = dec("50000")

	res, err := Apply(b, sell, ClampLenient)
	require.NoError(t, err)

	require.Equal(t, "1199", res.Balance.AvailableForSpending.String())
	require.True(t, res.Balance.InvestedAmount.IsZero())
	_, stillHeld := res.Balance.Assets["BTC"]
	require.False(t, stillHeld, "fully unwound position must be removed")
	_, bdHeld := res.Balance.Breakdown["BTC"]
	require.False(t, bdHeld, "breakdown entry must leave with the position")
	requireTotalInvariant(t, res.Balance)
}

func TestApply_PartialSellKeepsBreakdownInSync(t *testing.T) {
	b := baseBalance()
	b.InvestedAmount = dec("200")
	b.Assets["BTC"] = domain.AssetPosition{
		USDValue:       dec("200"),
		InvestedAmount: dec("200"),
		Quantity:       dec("0.004"),
	}

	sell := tx(domain.TransactionSell, "100", "0.5")
	sell.Asset = "BTC"
	sell.Price = dec("50000")

	res, err := Apply(b, sell, ClampLenient)
	require.NoError(t, err)

	bd, ok := res.Balance.Breakdown["BTC"]
	require.True(t, ok)
	require.Equal(t, "100", bd.USDValue.String())
	require.True(t, bd.Native.Equal(res.Balance.Assets["BTC"].Quantity))
}

func TestApply_StartStrategyExternal(t *testing.T) {
	start := tx(domain.TransactionStartStrategy, "200", "2")
	start.StrategyID = "strat-1"
	start.StrategyName = "Emergency Fund"
	start.PaymentMethod = "bank_account"

	res, err := Apply(baseBalance(), start, ClampLenient)
	require.NoError(t, err)

	require.Equal(t, "1000", res.Balance.AvailableForSpending.String())
	require.Equal(t, "198", res.Balance.StrategyBalance.String())
	s := res.Balance.Strategies["strat-1"]
	require.NotNil(t, s)
	require.Equal(t, domain.StrategyActive, s.Status)
	require.Equal(t, "198", s.CurrentAmount.String())
	requireTotalInvariant(t, res.Balance)
}

func TestApply_StartStrategyWalletFunded(t *testing.T) {
	start := tx(domain.TransactionStartStrategy, "200", "2")
	start.StrategyID = "strat-1"
	start.PaymentMethod = domain.PaymentMethodWallet

	res, err := Apply(baseBalance(), start, ClampLenient)
	require.NoError(t, err)

	require.Equal(t, "800", res.Balance.AvailableForSpending.String())
	require.Equal(t, "198", res.Balance.StrategyBalance.String())
	requireTotalInvariant(t, res.Balance)
}

func TestApply_StopStrategyArchivesAndReturnsFunds(t *testing.T) {
	b := baseBalance()
	b.StrategyBalance = dec("250")
	s, err := domain.NewStrategy("strat-1", "Emergency Fund", dec("250"), time.Now())
	require.NoError(t, err)
	b.Strategies["strat-1"] = s

	stop := tx(domain.TransactionStopStrategy, "250", "2.5")
	stop.StrategyID = "strat-1"

	res, err := Apply(b, stop, ClampLenient)
	require.NoError(t, err)

	require.Equal(t, "1247.5", res.Balance.AvailableForSpending.String())
	require.True(t, res.Balance.StrategyBalance.IsZero())
	_, active := res.Balance.Strategies["strat-1"]
	require.False(t, active, "stopped strategy must leave the active set")
	archived := res.Balance.ArchivedStrategies["strat-1"]
	require.NotNil(t, archived)
	require.Equal(t, domain.StrategyStopped, archived.Status)
	require.NotNil(t, archived.StoppedAt)
	requireTotalInvariant(t, res.Balance)
}

func TestApply_StopUnknownStrategyFails(t *testing.T) {
	stop := tx(domain.TransactionStopStrategy, "250", "2.5")
	stop.StrategyID = "missing"

	_, err := Apply(baseBalance(), stop, ClampLenient)
	require.ErrorIs(t, err, ErrStrategyNotFound)
}

func TestApply_LenientClampKeepsBucketsAtZero(t *testing.T) {
	b := domain.NewBalance()
	b.AvailableForSpending = dec("10")

	res, err := Apply(b, tx(domain.TransactionWithdraw, "50", "0"), ClampLenient)
	require.NoError(t, err)
	require.True(t, res.Clamped)
	require.True(t, res.Balance.AvailableForSpending.IsZero())
	require.NoError(t, res.Balance.CheckInvariants())
}

func TestApply_StrictModeRejectsUnderflow(t *testing.T) {
	b := domain.NewBalance()
	b.AvailableForSpending = dec("10")

	_, err := Apply(b, tx(domain.TransactionWithdraw, "50", "0"), ClampStrict)
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestApply_UnknownTypeFails(t *testing.T) {
	_, err := Apply(baseBalance(), tx("refund", "10", "0"), ClampLenient)
	require.ErrorIs(t, err, ErrUnknownTransactionType)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	b := baseBalance()
	_, err := Apply(b, tx(domain.TransactionAdd, "100", "2"), ClampLenient)
	require.NoError(t, err)
	require.Equal(t, "1000", b.AvailableForSpending.String())
}
