package storage

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bribeirobr25/diboas-sub002/internal/domain"
	"github.com/bribeirobr25/diboas-sub002/pkg/retrier"
)

// Key schemes. The legacy keys held unencrypted JSON and are read once for
// migration, then deleted.
const (
	balanceKeyPrefix       = "balance_state:"
	historyKeyPrefix       = "transaction_history:"
	legacyBalanceKeyPrefix = "balances:"
)

// SnapshotStore reads and writes encrypted ledger snapshots. Write failures
// are retried with backoff; the in-memory ledger stays authoritative for the
// session when persistence is unavailable.
type SnapshotStore struct {
	kv     KV
	cipher *Cipher
	userID string
	retry  *retrier.Retrier
	logger *zap.Logger
}

// NewSnapshotStore wires the store for one user.
func NewSnapshotStore(kv KV, cipher *Cipher, userID string, logger *zap.Logger) *SnapshotStore {
	return &SnapshotStore{
		kv:     kv,
		cipher: cipher,
		userID: userID,
		retry:  retrier.New(retrier.WithMaxRetries(2)),
		logger: logger,
	}
}

// SaveBalance seals and writes the balance snapshot.
func (s *SnapshotStore) SaveBalance(ctx context.Context, balance *domain.Balance) error {
	return s.save(ctx, balanceKeyPrefix+s.userID, balance)
}

// SaveHistory seals and writes the transaction history snapshot.
func (s *SnapshotStore) SaveHistory(ctx context.Context, history []*domain.Transaction) error {
	return s.save(ctx, historyKeyPrefix+s.userID, history)
}

// LoadBalance reads the encrypted balance blob. On a missing or corrupt blob
// it falls back to the legacy unencrypted entry, migrates it, and deletes the
// legacy key. A nil balance with nil error means nothing is stored yet.
func (s *SnapshotStore) LoadBalance(ctx context.Context) (*domain.Balance, error) {
	var balance domain.Balance
	found, err := s.load(balanceKeyPrefix+s.userID, &balance)
	if err == nil && found {
		balance.EnsureMaps()
		return &balance, nil
	}
	if err != nil {
		s.logger.Warn("balance snapshot unreadable, trying legacy entry", zap.Error(err))
	}

	migrated, merr := s.migrateLegacyBalance(ctx)
	if merr != nil {
		return nil, merr
	}
	if migrated != nil {
		return migrated, nil
	}
	// unreadable encrypted blob and no legacy entry: start fresh
	return nil, nil
}

// LoadHistory reads the encrypted history blob, falling back to a legacy
// unencrypted payload under the same key (pre-encryption format).
func (s *SnapshotStore) LoadHistory(ctx context.Context) ([]*domain.Transaction, error) {
	key := historyKeyPrefix + s.userID

	payload, ok, err := s.kv.Get(key)
	if err != nil {
		return nil, errors.Wrap(err, "read history blob")
	}
	if !ok {
		return nil, nil
	}

	var history []*domain.Transaction
	plaintext, err := s.cipher.Open(payload)
	if err == nil {
		if uerr := json.Unmarshal(plaintext, &history); uerr != nil {
			return nil, errors.Wrap(uerr, "decode history snapshot")
		}
		return history, nil
	}

	// legacy unencrypted payload: plain JSON under the same key
	if uerr := json.Unmarshal(payload, &history); uerr != nil {
		s.logger.Warn("history blob is neither encrypted nor legacy JSON, dropping it",
			zap.Error(err))
		return nil, nil
	}
	s.logger.Info("migrating legacy unencrypted history", zap.Int("entries", len(history)))
	if serr := s.SaveHistory(ctx, history); serr != nil {
		return nil, errors.Wrap(serr, "rewrite migrated history")
	}
	return history, nil
}

func (s *SnapshotStore) migrateLegacyBalance(ctx context.Context) (*domain.Balance, error) {
	legacyKey := legacyBalanceKeyPrefix + s.userID

	payload, ok, err := s.kv.Get(legacyKey)
	if err != nil {
		return nil, errors.Wrap(err, "read legacy balance")
	}
	if !ok {
		return nil, nil
	}

	var balance domain.Balance
	if err := json.Unmarshal(payload, &balance); err != nil {
		return nil, errors.Wrap(err, "decode legacy balance")
	}
	balance.EnsureMaps()

	s.logger.Info("migrating legacy unencrypted balance", zap.String("user", s.userID))
	if err := s.SaveBalance(ctx, &balance); err != nil {
		return nil, errors.Wrap(err, "rewrite migrated balance")
	}
	if err := s.kv.Delete(legacyKey); err != nil {
		return nil, errors.Wrap(err, "delete legacy balance")
	}

	return &balance, nil
}

func (s *SnapshotStore) save(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode snapshot %s", key)
	}
	sealed, err := s.cipher.Seal(payload)
	if err != nil {
		return errors.Wrapf(err, "seal snapshot %s", key)
	}

	return s.retry.Do(ctx, func(context.Context) error {
		return s.kv.Set(key, sealed)
	})
}

func (s *SnapshotStore) load(key string, out any) (bool, error) {
	payload, ok, err := s.kv.Get(key)
	if err != nil {
		return false, errors.Wrapf(err, "read snapshot %s", key)
	}
	if !ok {
		return false, nil
	}
	plaintext, err := s.cipher.Open(payload)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return false, errors.Wrapf(err, "decode snapshot %s", key)
	}
	return true, nil
}
