package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType type of ledger transaction.
type TransactionType string

const (
	// TransactionAdd on-ramp deposit into the spending bucket.
	TransactionAdd TransactionType = "add"
	// TransactionWithdraw off-ramp withdrawal from the spending bucket.
	TransactionWithdraw TransactionType = "withdraw"
	// TransactionSend transfer to another wallet, fee included in amount.
	TransactionSend TransactionType = "send"
	// TransactionReceive incoming transfer into the spending bucket.
	TransactionReceive TransactionType = "receive"
	// TransactionBuy asset purchase moving funds into the invested bucket.
	TransactionBuy TransactionType = "buy"
	// TransactionSell asset sale moving funds back to the spending bucket.
	TransactionSell TransactionType = "sell"
	// TransactionStartStrategy funds a yield strategy.
	TransactionStartStrategy TransactionType = "start_strategy"
	// TransactionStopStrategy stops a strategy and returns its funds.
	TransactionStopStrategy TransactionType = "stop_strategy"
)

// String returns the string representation.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid checks if the TransactionType value is valid.
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionAdd, TransactionWithdraw, TransactionSend, TransactionReceive,
		TransactionBuy, TransactionSell, TransactionStartStrategy, TransactionStopStrategy:
		return true
	}
	return false
}

// TransactionStatus terminal status of a recorded transaction.
type TransactionStatus string

const (
	// StatusCompleted the transaction mutated the balance.
	StatusCompleted TransactionStatus = "completed"
	// StatusFailed the transaction was rejected; recorded for audit only.
	StatusFailed TransactionStatus = "failed"
)

// PaymentMethodWallet marks a transaction funded from the spending bucket.
// Any other payment method is treated as externally funded.
const PaymentMethodWallet = "diboas_wallet"

// Transaction is an immutable ledger record. Only supplementary metadata
// (on-chain confirmations) may change after it is appended to history.
type Transaction struct {
	ID            string            `json:"id"`
	Type          TransactionType   `json:"type"`
	Amount        decimal.Decimal   `json:"amount"`
	FeeTotal      decimal.Decimal   `json:"fee_total"`
	NetAmount     decimal.Decimal   `json:"net_amount"`
	Asset         string            `json:"asset,omitempty"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	Status        TransactionStatus `json:"status"`
	Error         string            `json:"error,omitempty"`
	Nonce         string            `json:"nonce,omitempty"`
	StrategyID    string            `json:"strategy_id,omitempty"`
	StrategyName  string            `json:"strategy_name,omitempty"`
	Price         decimal.Decimal   `json:"price,omitempty"`
	Recipient     string            `json:"recipient,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Confirmations int               `json:"confirmations,omitempty"`
}

// WalletFunded reports whether the transaction draws from the spending bucket.
func (t *Transaction) WalletFunded() bool {
	return t.PaymentMethod == PaymentMethodWallet
}

// TransactionRequest is what callers submit to the ledger. The validation
// pipeline turns it into a Transaction.
type TransactionRequest struct {
	ID            string          `json:"id,omitempty"`
	Type          TransactionType `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	FeeTotal      decimal.Decimal `json:"fee_total"`
	Asset         string          `json:"asset,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Nonce         string          `json:"nonce,omitempty"`
	StrategyID    string          `json:"strategy_id,omitempty"`
	StrategyName  string          `json:"strategy_name,omitempty"`
	Price         decimal.Decimal `json:"price,omitempty"`
	Recipient     string          `json:"recipient,omitempty"`
	Identity      string          `json:"identity,omitempty"`
}
