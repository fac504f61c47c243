// Package history journals every recorded transaction in a WAL, giving the
// encrypted snapshots an append-only companion that can be replayed or
// streamed from any index.
package history

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/bribeirobr25/diboas-sub002/internal/domain"
)

const (
	defaultHistoryDir   = "./wal/history"
	historySegmentLimit = 1000
	historyMaxSegments  = 100
	historyKeyPrefix    = "txn_"
)

// Record pairs a journaled transaction with its WAL index so consumers can
// resume from where they left off.
type Record struct {
	Index       uint64
	Transaction *domain.Transaction
}

// WALStore appends transactions to a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes the transaction journal under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultHistoryDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           historyKeyPrefix,
		SegmentThreshold: historySegmentLimit,
		MaxSegments:      historyMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init transaction history WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Append journals the transaction. The id is required so every record stays
// addressable.
func (s *WALStore) Append(tx *domain.Transaction) error {
	if s == nil || s.wal == nil {
		return errors.New("history store is not initialized")
	}
	if tx == nil || tx.ID == "" {
		return errors.New("transaction id is required")
	}

	payload, err := json.Marshal(tx)
	if err != nil {
		return errors.Wrap(err, "marshal transaction")
	}

	key := fmt.Sprintf("%s%s", historyKeyPrefix, tx.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// EntriesAfter returns all transactions journaled after the provided WAL
// index, oldest first.
func (s *WALStore) EntriesAfter(index uint64) ([]Record, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("history store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]Record, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, ok := s.wal.Get(idx)
		if !ok || !strings.HasPrefix(key, historyKeyPrefix) {
			continue
		}
		var tx domain.Transaction
		if err := json.Unmarshal(payload, &tx); err != nil {
			return nil, errors.Wrap(err, "decode journaled transaction")
		}
		records = append(records, Record{Index: idx, Transaction: &tx})
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
