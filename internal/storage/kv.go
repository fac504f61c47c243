// Package storage implements the persistence adapter of the ledger: an
// abstract key-value store with swappable backends, payload encryption, and
// one-time migration of legacy unencrypted entries.
package storage

// KV is the minimal key-value contract the ledger persists through.
type KV interface {
	// Get returns the stored value and whether the key exists.
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
}
