package storage

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bribeirobr25/diboas-sub002/internal/domain"
)

func testStore(t *testing.T, kv KV) *SnapshotStore {
	t.Helper()
	cipher, err := NewCipher("test-secret", "user-1")
	require.NoError(t, err)
	return NewSnapshotStore(kv, cipher, "user-1", zap.NewNop())
}

func sampleBalance() *domain.Balance {
	b := domain.NewBalance()
	b.AvailableForSpending = decimal.NewFromInt(100)
	b.InvestedAmount = decimal.NewFromInt(50)
	b.LastUpdated = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return b
}

func TestSnapshotStore_BalanceRoundTrip(t *testing.T) {
	kv := NewMemory()
	s := testStore(t, kv)
	ctx := context.Background()

	require.NoError(t, s.SaveBalance(ctx, sampleBalance()))

	loaded, err := s.LoadBalance(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "100", loaded.AvailableForSpending.String())
	require.Equal(t, "50", loaded.InvestedAmount.String())

	// the stored blob must not contain plaintext JSON
	raw, ok, err := kv.Get("balance_state:user-1")
	require.NoError(t, err)
	require.True(t, ok)
	var probe domain.Balance
	require.Error(t, json.Unmarshal(raw, &probe), "blob must be encrypted")
}

func TestSnapshotStore_EmptyStoreLoadsNothing(t *testing.T) {
	s := testStore(t, NewMemory())

	balance, err := s.LoadBalance(context.Background())
	require.NoError(t, err)
	require.Nil(t, balance)

	history, err := s.LoadHistory(context.Background())
	require.NoError(t, err)
	require.Nil(t, history)
}

func TestSnapshotStore_MigratesLegacyBalance(t *testing.T) {
	kv := NewMemory()
	legacy, err := json.Marshal(sampleBalance())
	require.NoError(t, err)
	require.NoError(t, kv.Set("balances:user-1", legacy))

	s := testStore(t, kv)
	loaded, err := s.LoadBalance(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "100", loaded.AvailableForSpending.String())

	// legacy entry deleted, encrypted entry written
	_, ok, err := kv.Get("balances:user-1")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = kv.Get("balance_state:user-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSnapshotStore_MigratesLegacyHistory(t *testing.T) {
	kv := NewMemory()
	history := []*domain.Transaction{{
		ID:     "tx-1",
		Type:   domain.TransactionAdd,
		Amount: decimal.NewFromInt(100),
		Status: domain.StatusCompleted,
	}}
	legacy, err := json.Marshal(history)
	require.NoError(t, err)
	// pre-encryption format: plain JSON under the same key
	require.NoError(t, kv.Set("transaction_history:user-1", legacy))

	s := testStore(t, kv)
	loaded, err := s.LoadHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "tx-1", loaded[0].ID)

	// the key now holds an encrypted payload
	raw, ok, err := kv.Get("transaction_history:user-1")
	require.NoError(t, err)
	require.True(t, ok)
	var probe []*domain.Transaction
	require.Error(t, json.Unmarshal(raw, &probe))
}

func TestSnapshotStore_CorruptBlobFallsBackToLegacy(t *testing.T) {
	kv := NewMemory()
	require.NoError(t, kv.Set("balance_state:user-1", []byte("garbage")))

	legacy, err := json.Marshal(sampleBalance())
	require.NoError(t, err)
	require.NoError(t, kv.Set("balances:user-1", legacy))

	s := testStore(t, kv)
	loaded, err := s.LoadBalance(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "100", loaded.AvailableForSpending.String())
}

func TestSnapshotStore_CorruptBlobWithoutLegacyStartsFresh(t *testing.T) {
	kv := NewMemory()
	require.NoError(t, kv.Set("balance_state:user-1", []byte("garbage")))

	s := testStore(t, kv)
	loaded, err := s.LoadBalance(context.Background())
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestCipher_SealOpenRoundTrip(t *testing.T) {
	c, err := NewCipher("secret", "user-1")
	require.NoError(t, err)

	sealed, err := c.Seal([]byte("payload"))
	require.NoError(t, err)
	opened, err := c.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), opened)
}

func TestCipher_KeysAreUserScoped(t *testing.T) {
	c1, err := NewCipher("secret", "user-1")
	require.NoError(t, err)
	c2, err := NewCipher("secret", "user-2")
	require.NoError(t, err)

	sealed, err := c1.Seal([]byte("payload"))
	require.NoError(t, err)
	_, err = c2.Open(sealed)
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestFileStore_RoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "ledger_store_*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, fs.Set("balance_state:user-1", []byte("v1")))
	value, ok, err := fs.Get("balance_state:user-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), value)

	require.NoError(t, fs.Delete("balance_state:user-1"))
	_, ok, err = fs.Get("balance_state:user-1")
	require.NoError(t, err)
	require.False(t, ok)

	// deleting a missing key is not an error
	require.NoError(t, fs.Delete("balance_state:user-1"))
}
