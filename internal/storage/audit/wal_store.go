// Package audit persists security-rejection records in a WAL so rejected
// requests stay reviewable after restarts.
package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const (
	defaultAuditDir      = "./wal/audit"
	auditSegmentLimit    = 1000
	auditMaxSegments     = 100
	auditEntryKeyPrefix  = "audit_"
	auditSegmentFileName = "audit_"
)

// Entry is one security event: who tripped which check, with context.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Identity  string    `json:"identity"`
	Code      string    `json:"code"`
	Reason    string    `json:"reason"`
	TxID      string    `json:"tx_id,omitempty"`
	TxType    string    `json:"tx_type,omitempty"`
}

// WALStore appends audit entries to a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.Mutex
}

// NewWALStore initializes the audit WAL under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultAuditDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           auditSegmentFileName,
		SegmentThreshold: auditSegmentLimit,
		MaxSegments:      auditMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init audit WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Append writes the entry. Identity is required so every record can be traced
// back to a caller.
func (s *WALStore) Append(entry Entry) error {
	if s == nil || s.wal == nil {
		return errors.New("audit store is not initialized")
	}
	if entry.Identity == "" {
		return errors.New("audit entry identity is required")
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal audit entry")
	}

	key := fmt.Sprintf("%s%s_%d", auditEntryKeyPrefix, entry.Identity, entry.Timestamp.UnixNano())

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// Entries returns every audit record currently in the WAL, oldest first.
func (s *WALStore) Entries() ([]Entry, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("audit store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []Entry
	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, auditEntryKeyPrefix) {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(msg.Value, &entry); err != nil {
			return nil, errors.Wrap(err, "decode audit entry")
		}
		entries = append(entries, entry)
	}
	return entries, nil
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
