package manager

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bribeirobr25/diboas-sub002/internal/domain"
	"github.com/bribeirobr25/diboas-sub002/internal/events"
	"github.com/bribeirobr25/diboas-sub002/internal/ledger"
	"github.com/bribeirobr25/diboas-sub002/internal/locker"
	"github.com/bribeirobr25/diboas-sub002/internal/storage/audit"
	"github.com/bribeirobr25/diboas-sub002/internal/validation"
)

// ErrDuplicateID is the integrity error raised when a duplicate id reaches
// the atomic add path despite the pipeline check.
var ErrDuplicateID = errors.New("transaction id already recorded")

// Result is the structured outcome of ProcessTransaction. Business failures
// set Success=false and Err; the failed transaction is still recorded.
type Result struct {
	Success     bool
	Transaction *domain.Transaction
	Balance     *domain.Balance
	Err         error
}

// CompletedPayload is emitted with transaction:completed.
type CompletedPayload struct {
	Transaction *domain.Transaction `json:"transaction"`
	Balance     *domain.Balance     `json:"balance"`
}

// FailedPayload is emitted with transaction:failed.
type FailedPayload struct {
	Transaction *domain.Transaction `json:"transaction"`
	Error       string              `json:"error"`
}

// ProcessTransaction runs the full pipeline: validation, lock acquisition,
// ledger transition, persistence, events. An error is returned only when the
// request could not be processed at all (disposed manager, cancelled context,
// trimmed queue); every business rejection yields a Result with Success=false
// and a failed history record.
func (m *Manager) ProcessTransaction(ctx context.Context, req *domain.TransactionRequest) (*Result, error) {
	if m.isDisposed() {
		return nil, ErrDisposed
	}
	if req == nil {
		return nil, errors.New("nil transaction request")
	}

	r := *req
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now()

	m.registry.Emit(events.BalanceLoading, true)
	defer m.registry.Emit(events.BalanceLoading, false)

	if verr := m.pipeline.Validate(&r); verr != nil {
		if verr.Security {
			m.auditReject(&r, verr, now)
		}
		tx := m.recordFailure(ctx, &r, verr.Error(), now)
		return &Result{Success: false, Transaction: tx, Err: verr}, nil
	}

	var (
		tx       *domain.Transaction
		snapshot *domain.Balance
	)
	err := m.locks.WithLock(ctx, opBalanceUpdate, func() error {
		// the rate-limit slot is claimed at the serialization point so
		// concurrent submissions cannot all pass the cap before the first
		// one records
		if verr := m.pipeline.ReserveRate(&r); verr != nil {
			return verr
		}

		var ferr error
		tx, snapshot, ferr = m.commit(&r, now)
		if ferr != nil {
			m.pipeline.ReleaseRate(&r)
			return ferr
		}

		m.persistState(ctx)
		m.appendJournal(tx)
		m.emitCompleted(tx, snapshot)
		return nil
	})
	if err != nil {
		if isInfrastructure(err) {
			return nil, err
		}
		var verr *validation.Error
		if errors.As(err, &verr) && verr.Security {
			m.auditReject(&r, verr, now)
		}
		failed := m.recordFailure(ctx, &r, err.Error(), now)
		return &Result{Success: false, Transaction: failed, Err: err}, nil
	}

	return &Result{Success: true, Transaction: tx, Balance: snapshot}, nil
}

// SetConfirmations updates the only mutable metadata of a recorded
// transaction and emits transaction:updated.
func (m *Manager) SetConfirmations(id string, confirmations int) error {
	if m.isDisposed() {
		return ErrDisposed
	}

	m.mu.Lock()
	var updated *domain.Transaction
	for _, tx := range m.history {
		if tx.ID == id {
			tx.Confirmations = confirmations
			cp := *tx
			updated = &cp
			break
		}
	}
	m.mu.Unlock()

	if updated == nil {
		return errors.Errorf("transaction %q not found", id)
	}
	m.registry.Emit(events.TransactionUpdated, updated)
	return nil
}

// commit applies the ledger transition under m.mu and returns the recorded
// transaction plus a balance snapshot.
func (m *Manager) commit(r *domain.TransactionRequest, now time.Time) (*domain.Transaction, *domain.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return nil, nil, ErrDisposed
	}
	if err := m.verifyUntampered(); err != nil {
		return nil, nil, err
	}
	if _, dup := m.ids[r.ID]; dup {
		return nil, nil, errors.Wrapf(ErrDuplicateID, "%q", r.ID)
	}

	tx := buildTransaction(r, now)
	res, err := ledger.Apply(m.balance, tx, m.mode)
	if err != nil {
		return nil, nil, err
	}
	if res.Clamped {
		m.logger.Warn("balance bucket clamped at zero",
			zap.String("tx", tx.ID),
			zap.String("type", tx.Type.String()))
	}
	if err := res.Balance.CheckInvariants(); err != nil {
		return nil, nil, errors.Wrap(err, "post-transition invariant check")
	}

	m.balance = res.Balance
	m.prependLocked(tx)
	m.retag()

	return tx, m.balance.Clone(), nil
}

// recordFailure appends a failed transaction to history so rejections stay
// observable, then emits the failure. Best-effort: a disposed manager or a
// full queue drops the record silently into the logs.
func (m *Manager) recordFailure(ctx context.Context, r *domain.TransactionRequest, reason string, now time.Time) *domain.Transaction {
	tx := buildTransaction(r, now)
	tx.Status = domain.StatusFailed
	tx.NetAmount = decimal.Zero
	tx.Error = reason

	err := m.locks.WithLock(ctx, opTransactionAdd, func() error {
		m.mu.Lock()
		if m.disposed {
			m.mu.Unlock()
			return ErrDisposed
		}
		if _, dup := m.ids[tx.ID]; dup {
			// the submitted id is taken by the original transaction;
			// record the rejection under its own id
			tx.ID = uuid.NewString()
		}
		m.prependLocked(tx)
		m.mu.Unlock()

		m.persistHistory(ctx)
		m.appendJournal(tx)
		return nil
	})
	if err != nil {
		m.logger.Warn("failed to record rejected transaction",
			zap.String("tx", tx.ID), zap.Error(err))
	}

	m.registry.Emit(events.TransactionFailed, FailedPayload{Transaction: tx, Error: reason})
	m.registry.Emit(events.TransactionsUpdated, m.GetTransactions())
	return tx
}

// prependLocked inserts the transaction at the head of history and indexes
// its id and nonce. Caller holds m.mu.
func (m *Manager) prependLocked(tx *domain.Transaction) {
	m.history = append([]*domain.Transaction{tx}, m.history...)
	m.ids[tx.ID] = struct{}{}
	if tx.Nonce != "" {
		m.nonces[tx.Nonce] = struct{}{}
	}
}

// persistState writes both snapshots; failures are logged and surfaced as
// balance:error, the in-memory state stays authoritative.
func (m *Manager) persistState(ctx context.Context) {
	m.mu.RLock()
	balance := m.balance.Clone()
	m.mu.RUnlock()

	if err := m.store.SaveBalance(ctx, balance); err != nil {
		m.logger.Error("persisting balance snapshot", zap.Error(err))
		m.registry.Emit(events.BalanceError, err)
	}
	m.persistHistory(ctx)
}

func (m *Manager) persistHistory(ctx context.Context) {
	history := m.GetTransactions()
	if err := m.store.SaveHistory(ctx, history); err != nil {
		m.logger.Error("persisting transaction history", zap.Error(err))
		m.registry.Emit(events.BalanceError, err)
	}
}

func (m *Manager) emitCompleted(tx *domain.Transaction, balance *domain.Balance) {
	m.registry.Emit(events.TransactionAdded, tx)
	m.registry.Emit(events.TransactionCompleted, CompletedPayload{Transaction: tx, Balance: balance})
	m.registry.Emit(events.BalanceUpdated, balance)
	m.registry.Emit(events.TransactionsUpdated, m.GetTransactions())

	switch tx.Type {
	case domain.TransactionStartStrategy:
		id := tx.StrategyID
		if id == "" {
			id = tx.ID
		}
		if s, ok := balance.Strategies[id]; ok {
			m.registry.Emit(events.StrategyUpdated, s)
		}
	case domain.TransactionStopStrategy:
		if s, ok := balance.ArchivedStrategies[tx.StrategyID]; ok {
			m.registry.Emit(events.StrategyStopped, s)
		}
	}
}

// appendJournal writes the stored record, completed or failed, to the
// append-only WAL. Best-effort: the snapshots stay authoritative.
func (m *Manager) appendJournal(tx *domain.Transaction) {
	if m.journal == nil {
		return
	}
	if err := m.journal.Append(tx); err != nil {
		m.logger.Warn("journaling transaction", zap.String("tx", tx.ID), zap.Error(err))
	}
}

func (m *Manager) auditReject(r *domain.TransactionRequest, verr *validation.Error, now time.Time) {
	if m.audit == nil {
		return
	}

	identity := r.Identity
	if identity == "" {
		identity = m.cfg.UserID
	}
	entry := audit.Entry{
		Timestamp: now,
		Identity:  identity,
		Code:      string(verr.Code),
		Reason:    verr.Reason,
		TxID:      r.ID,
		TxType:    r.Type.String(),
	}
	if err := m.audit.Append(entry); err != nil {
		m.logger.Warn("writing audit entry", zap.Error(err))
	}
}

func buildTransaction(r *domain.TransactionRequest, now time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:            r.ID,
		Type:          r.Type,
		Amount:        r.Amount,
		FeeTotal:      r.FeeTotal,
		NetAmount:     r.Amount.Sub(r.FeeTotal),
		Asset:         r.Asset,
		PaymentMethod: r.PaymentMethod,
		Status:        domain.StatusCompleted,
		Nonce:         r.Nonce,
		StrategyID:    r.StrategyID,
		StrategyName:  r.StrategyName,
		Price:         r.Price,
		Recipient:     r.Recipient,
		CreatedAt:     now,
	}
}

func isInfrastructure(err error) bool {
	return errors.Is(err, ErrDisposed) ||
		errors.Is(err, locker.ErrQueueTrimmed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
