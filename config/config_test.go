package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestGetYaml(t *testing.T) {
	path := writeConfig(t, `
user_id: user-1
encryption_secret: s3cret
max_amount: "500000"
max_transaction: "10000.50"
rate_limit_count: 5
rate_limit_window: 30s
strict_balance: true
`)

	cfg, err := getYaml(path)
	require.NoError(t, err)
	require.Equal(t, "user-1", cfg.UserID)
	require.Equal(t, "500000", cfg.MaxAmount.String())
	require.Equal(t, "10000.5", cfg.MaxTransaction.String())
	require.Equal(t, 5, cfg.RateLimitCount)
	require.Equal(t, 30*time.Second, cfg.RateLimitWindow)
	require.True(t, cfg.StrictBalance)

	// unspecified fields get defaults
	require.Equal(t, defaultHistoryCap, cfg.HistoryCap)
	require.Equal(t, defaultQueueCap, cfg.QueueCap)
	require.Equal(t, defaultLockTimeout, cfg.LockTimeout)
	require.Equal(t, defaultListenAddr, cfg.ListenAddr)
}

func TestGetYaml_RequiredFields(t *testing.T) {
	_, err := getYaml(writeConfig(t, "encryption_secret: s3cret\n"))
	require.ErrorContains(t, err, "user_id")

	_, err = getYaml(writeConfig(t, "user_id: user-1\n"))
	require.ErrorContains(t, err, "encryption_secret")
}

func TestGetYaml_BadDecimal(t *testing.T) {
	_, err := getYaml(writeConfig(t, `
user_id: user-1
encryption_secret: s3cret
max_amount: "not-a-number"
`))
	require.ErrorContains(t, err, "max_amount")
}

func TestGetYaml_LimitOrdering(t *testing.T) {
	_, err := getYaml(writeConfig(t, `
user_id: user-1
encryption_secret: s3cret
max_amount: "100"
max_transaction: "200"
`))
	require.ErrorContains(t, err, "max_transaction")
}
