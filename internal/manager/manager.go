// Package manager hosts the central state manager of the diboas ledger: the
// lock-guarded mutation path, snapshot persistence, event emission, and the
// periodic resource maintenance that keeps history and queues bounded.
package manager

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bribeirobr25/diboas-sub002/config"
	"github.com/bribeirobr25/diboas-sub002/internal/domain"
	"github.com/bribeirobr25/diboas-sub002/internal/events"
	"github.com/bribeirobr25/diboas-sub002/internal/ledger"
	"github.com/bribeirobr25/diboas-sub002/internal/locker"
	"github.com/bribeirobr25/diboas-sub002/internal/storage"
	"github.com/bribeirobr25/diboas-sub002/internal/storage/audit"
	"github.com/bribeirobr25/diboas-sub002/internal/storage/history"
	"github.com/bribeirobr25/diboas-sub002/internal/validation"
)

// Operation keys scoping mutual exclusion.
const (
	opBalanceUpdate  = "balance-update"
	opTransactionAdd = "transaction-add"
)

// ErrDisposed is returned for any call after Dispose.
var ErrDisposed = errors.New("ledger manager is disposed")

// errStateTampered signals that the in-memory balance changed outside the
// transaction pipeline.
var errStateTampered = errors.New("balance state was mutated outside the ledger")

// auditLog is the sink for security rejections. May be nil.
type auditLog interface {
	Append(entry audit.Entry) error
	Close() error
}

// txnJournal is the append-only record of every transaction the ledger
// stores, completed or failed. May be nil.
type txnJournal interface {
	Append(tx *domain.Transaction) error
	Close() error
}

// Manager owns all ledger state for one user. Construct with New, load
// persisted state with Init, tear down with Dispose.
type Manager struct {
	cfg    config.Config
	logger *zap.Logger
	mode   ledger.ClampMode

	mu       sync.RWMutex
	balance  *domain.Balance
	history  []*domain.Transaction // most-recent-first
	ids      map[string]struct{}
	nonces   map[string]struct{}
	stateTag uint64

	pipeline *validation.Pipeline
	limiter  *validation.RateLimiter
	locks    *locker.KeyedLocker
	registry *events.Registry
	store    *storage.SnapshotStore
	audit    auditLog
	journal  txnJournal

	done        chan struct{}
	maintenance sync.WaitGroup
	disposeOnce sync.Once
	disposed    bool
}

// New wires a manager over the given KV backend. auditStore and journal may
// be nil to disable the security audit trail and the transaction journal.
func New(cfg config.Config, logger *zap.Logger, kv storage.KV, auditStore *audit.WALStore, journal *history.WALStore) (*Manager, error) {
	cipher, err := storage.NewCipher(cfg.EncryptionSecret, cfg.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "init snapshot cipher")
	}

	mode := ledger.ClampLenient
	if cfg.StrictBalance {
		mode = ledger.ClampStrict
	}

	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		mode:     mode,
		balance:  domain.NewBalance(),
		ids:      make(map[string]struct{}),
		nonces:   make(map[string]struct{}),
		limiter:  validation.NewRateLimiter(cfg.RateLimitCount, cfg.RateLimitWindow),
		locks:    locker.New(logger),
		registry: events.NewRegistry(logger),
		store:    storage.NewSnapshotStore(kv, cipher, cfg.UserID, logger),
		done:     make(chan struct{}),
	}
	if auditStore != nil {
		m.audit = auditStore
	}
	if journal != nil {
		m.journal = journal
	}
	m.pipeline = validation.NewPipeline(validation.Limits{
		MaxAmount:      cfg.MaxAmount,
		MaxTransaction: cfg.MaxTransaction,
	}, m, m.limiter)
	m.retag()

	return m, nil
}

// Init loads persisted snapshots (migrating legacy entries) and starts the
// maintenance loop. Safe to call once.
func (m *Manager) Init(ctx context.Context) error {
	m.registry.Emit(events.BalanceLoading, true)
	defer m.registry.Emit(events.BalanceLoading, false)

	balance, err := m.store.LoadBalance(ctx)
	if err != nil {
		return errors.Wrap(err, "load balance snapshot")
	}
	history, err := m.store.LoadHistory(ctx)
	if err != nil {
		return errors.Wrap(err, "load history snapshot")
	}

	m.mu.Lock()
	if balance != nil {
		m.balance = balance
	}
	m.history = history
	for _, tx := range history {
		m.ids[tx.ID] = struct{}{}
		if tx.Nonce != "" {
			m.nonces[tx.Nonce] = struct{}{}
		}
	}
	m.retag()
	snapshot := m.balance.Clone()
	m.mu.Unlock()

	m.registry.Emit(events.BalanceUpdated, snapshot)

	m.maintenance.Add(1)
	go m.maintenanceLoop()

	m.logger.Info("ledger initialized",
		zap.String("user", m.cfg.UserID),
		zap.Int("history", len(history)),
		zap.Bool("strict", m.cfg.StrictBalance))
	return nil
}

// GetBalance returns a deep-copy snapshot of the current balance.
func (m *Manager) GetBalance() *domain.Balance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balance.Clone()
}

// GetTransactions returns a copy of the history, most recent first.
func (m *Manager) GetTransactions() []*domain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Transaction, len(m.history))
	for i, tx := range m.history {
		cp := *tx
		out[i] = &cp
	}
	return out
}

// Subscribe registers a callback for the event type and returns its
// unsubscribe function.
func (m *Manager) Subscribe(eventType string, cb events.Callback) func() {
	return m.registry.Subscribe(eventType, cb)
}

// Registry exposes the event registry for channel-based consumers (SSE).
func (m *Manager) Registry() *events.Registry {
	return m.registry
}

// HasID reports whether the transaction id is already in history.
func (m *Manager) HasID(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.ids[id]
	return ok
}

// HasNonce reports whether the nonce was already processed.
func (m *Manager) HasNonce(nonce string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.nonces[nonce]
	return ok
}

// Dispose halts maintenance, clears subscribers, locks, queues, and resets
// in-memory state. Idempotent.
func (m *Manager) Dispose() {
	m.disposeOnce.Do(func() {
		close(m.done)
		m.maintenance.Wait()

		m.locks.Reset()
		m.registry.Reset()
		m.limiter.Reset()

		m.mu.Lock()
		m.disposed = true
		m.balance = domain.NewBalance()
		m.history = nil
		m.ids = make(map[string]struct{})
		m.nonces = make(map[string]struct{})
		m.retag()
		m.mu.Unlock()

		if m.audit != nil {
			if err := m.audit.Close(); err != nil {
				m.logger.Warn("closing audit log", zap.Error(err))
			}
		}
		if m.journal != nil {
			if err := m.journal.Close(); err != nil {
				m.logger.Warn("closing transaction journal", zap.Error(err))
			}
		}
		m.logger.Info("ledger disposed", zap.String("user", m.cfg.UserID))
	})
}

func (m *Manager) isDisposed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.disposed
}

// retag recomputes the tamper-detection tag over the balance. Caller holds
// m.mu for writing (or has exclusive access during construction).
func (m *Manager) retag() {
	m.stateTag = tagOf(m.balance)
}

// verifyUntampered rejects mutations when the in-memory balance no longer
// matches the tag recorded by the last pipeline commit.
func (m *Manager) verifyUntampered() error {
	if tagOf(m.balance) != m.stateTag {
		return errStateTampered
	}
	return nil
}

func tagOf(b *domain.Balance) uint64 {
	payload, err := json.Marshal(b)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(payload)
	return h.Sum64()
}
