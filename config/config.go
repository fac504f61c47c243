// Package config loads ledger configuration from a YAML file or flags.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is omitted.
var (
	defaultMaxAmount      = decimal.New(1_000_000_000, 0)
	defaultMaxTransaction = decimal.New(1_000_000, 0)
)

const (
	defaultRateLimitCount      = 10
	defaultRateLimitWindow     = time.Minute
	defaultHistoryCap          = 1000
	defaultQueueCap            = 100
	defaultLockTimeout         = 30 * time.Second
	defaultMaintenanceInterval = 30 * time.Second
	defaultListenAddr          = ":8087"
	defaultDataDir             = "./data"
)

// Config is the resolved ledger configuration.
type Config struct {
	UserID              string
	DataDir             string
	EncryptionSecret    string
	MaxAmount           decimal.Decimal
	MaxTransaction      decimal.Decimal
	RateLimitCount      int
	RateLimitWindow     time.Duration
	HistoryCap          int
	QueueCap            int
	LockTimeout         time.Duration
	MaintenanceInterval time.Duration
	StrictBalance       bool
	ListenAddr          string
}

// configTmp mirrors the YAML layout; decimal and duration fields arrive as
// strings.
type configTmp struct {
	UserID                 string `yaml:"user_id"`
	DataDir                string `yaml:"data_dir,omitempty"`
	EncryptionSecret       string `yaml:"encryption_secret"`
	MaxAmountStr           string `yaml:"max_amount,omitempty"`
	MaxTransactionStr      string `yaml:"max_transaction,omitempty"`
	RateLimitCount         int    `yaml:"rate_limit_count,omitempty"`
	RateLimitWindowStr     string `yaml:"rate_limit_window,omitempty"`
	HistoryCap             int    `yaml:"history_cap,omitempty"`
	QueueCap               int    `yaml:"queue_cap,omitempty"`
	LockTimeoutStr         string `yaml:"lock_timeout,omitempty"`
	MaintenanceIntervalStr string `yaml:"maintenance_interval,omitempty"`
	StrictBalance          bool   `yaml:"strict_balance,omitempty"`
	ListenAddr             string `yaml:"listen_addr,omitempty"`
}

// Get resolves the configuration: a -config YAML path when provided,
// individual flags otherwise.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	userID := flag.String("user", "", "user id the ledger is scoped to")
	dataDir := flag.String("datadir", defaultDataDir, "directory for persisted state")
	secret := flag.String("secret", "", "encryption secret for persisted snapshots")
	strict := flag.Bool("strict", false, "reject instead of clamping underflowing transactions")
	listen := flag.String("listen", defaultListenAddr, "http listen address")
	flag.Parse()

	if *configPath != "" {
		return getYaml(*configPath)
	}

	cfg := withDefaults(Config{
		UserID:           *userID,
		DataDir:          *dataDir,
		EncryptionSecret: *secret,
		StrictBalance:    *strict,
		ListenAddr:       *listen,
	})
	return cfg, cfg.validate()
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp configTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}

	cfg := Config{
		UserID:           tmp.UserID,
		DataDir:          tmp.DataDir,
		EncryptionSecret: tmp.EncryptionSecret,
		RateLimitCount:   tmp.RateLimitCount,
		HistoryCap:       tmp.HistoryCap,
		QueueCap:         tmp.QueueCap,
		StrictBalance:    tmp.StrictBalance,
		ListenAddr:       tmp.ListenAddr,
	}

	if tmp.MaxAmountStr != "" {
		cfg.MaxAmount, err = decimal.NewFromString(tmp.MaxAmountStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'max_amount' param in yaml config (must be a decimal), error: %w", err)
		}
	}
	if tmp.MaxTransactionStr != "" {
		cfg.MaxTransaction, err = decimal.NewFromString(tmp.MaxTransactionStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'max_transaction' param in yaml config (must be a decimal), error: %w", err)
		}
	}
	if cfg.RateLimitWindow, err = parseDuration("rate_limit_window", tmp.RateLimitWindowStr); err != nil {
		return Config{}, err
	}
	if cfg.LockTimeout, err = parseDuration("lock_timeout", tmp.LockTimeoutStr); err != nil {
		return Config{}, err
	}
	if cfg.MaintenanceInterval, err = parseDuration("maintenance_interval", tmp.MaintenanceIntervalStr); err != nil {
		return Config{}, err
	}

	cfg = withDefaults(cfg)
	return cfg, cfg.validate()
}

func parseDuration(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("incorrect '%s' param in yaml config (must be a duration like 30s), error: %w", name, err)
	}
	return d, nil
}

func withDefaults(cfg Config) Config {
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	if cfg.MaxAmount.IsZero() {
		cfg.MaxAmount = defaultMaxAmount
	}
	if cfg.MaxTransaction.IsZero() {
		cfg.MaxTransaction = defaultMaxTransaction
	}
	if cfg.RateLimitCount == 0 {
		cfg.RateLimitCount = defaultRateLimitCount
	}
	if cfg.RateLimitWindow == 0 {
		cfg.RateLimitWindow = defaultRateLimitWindow
	}
	if cfg.HistoryCap == 0 {
		cfg.HistoryCap = defaultHistoryCap
	}
	if cfg.QueueCap == 0 {
		cfg.QueueCap = defaultQueueCap
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if cfg.MaintenanceInterval == 0 {
		cfg.MaintenanceInterval = defaultMaintenanceInterval
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	return cfg
}

func (c Config) validate() error {
	if c.UserID == "" {
		return fmt.Errorf("'user_id' is required")
	}
	if c.EncryptionSecret == "" {
		return fmt.Errorf("'encryption_secret' is required")
	}
	if c.MaxTransaction.GreaterThan(c.MaxAmount) {
		return fmt.Errorf("'max_transaction' %s must not exceed 'max_amount' %s",
			c.MaxTransaction, c.MaxAmount)
	}
	return nil
}
