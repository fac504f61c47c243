// Package setup implements the interactive configuration wizard behind
// `ledgerd init`.
package setup

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// yamlConfig mirrors the file layout consumed by the config package.
// Durations are written in time.ParseDuration notation.
type yamlConfig struct {
	UserID           string `yaml:"user_id"`
	DataDir          string `yaml:"data_dir"`
	EncryptionSecret string `yaml:"encryption_secret"`
	MaxTransaction   string `yaml:"max_transaction,omitempty"`
	RateLimitCount   int    `yaml:"rate_limit_count,omitempty"`
	RateLimitWindow  string `yaml:"rate_limit_window,omitempty"`
	StrictBalance    bool   `yaml:"strict_balance"`
	ListenAddr       string `yaml:"listen_addr,omitempty"`
}

// RunTUI launches the terminal configuration wizard and writes the YAML file.
func RunTUI(outPath string) error {
	var (
		userID         string
		dataDir        string
		secret         string
		maxTxStr       string
		rateCountStr   string
		strictBalance  bool
		listenAddr     string
		confirm        bool
	)

	// defaults
	dataDir = "./data"
	maxTxStr = "1000000"
	rateCountStr = "10"
	listenAddr = ":8087"

	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("DIBOAS LEDGER CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's get your ledger configured.\n"))

	fmt.Println(stepStyle.Render("STEP 1: IDENTITY"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("User ID").
				Description("The user this ledger instance is scoped to").
				Value(&userID).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("user id cannot be empty")
					}
					return nil
				}),
			huh.NewInput().
				Title("Encryption secret").
				Description("Protects persisted balance and history snapshots").
				EchoMode(huh.EchoModePassword).
				Value(&secret).
				Validate(func(s string) error {
					if len(s) < 8 {
						return fmt.Errorf("secret must be at least 8 characters")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("DIBOAS LEDGER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: LIMITS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Per-transaction limit (USD)").
				Value(&maxTxStr).
				Validate(func(s string) error {
					if _, err := decimal.NewFromString(s); err != nil {
						return fmt.Errorf("must be a decimal number")
					}
					return nil
				}),
			huh.NewInput().
				Title("Rate limit (transactions per minute)").
				Value(&rateCountStr).
				Validate(func(s string) error {
					if _, err := strconv.Atoi(s); err != nil {
						return fmt.Errorf("must be an integer")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Strict balance mode?").
				Description("Reject transactions that would underflow a bucket instead of clamping at zero").
				Value(&strictBalance),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("DIBOAS LEDGER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: SERVICE"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Data directory").
				Value(&dataDir),
			huh.NewInput().
				Title("HTTP listen address").
				Value(&listenAddr),
			huh.NewConfirm().
				Title(fmt.Sprintf("Write configuration to %s?", outPath)).
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Aborted, nothing written."))
		return nil
	}

	rateCount, err := strconv.Atoi(rateCountStr)
	if err != nil {
		return fmt.Errorf("invalid rate limit count: %w", err)
	}

	out := yamlConfig{
		UserID:           userID,
		DataDir:          dataDir,
		EncryptionSecret: secret,
		MaxTransaction:   maxTxStr,
		RateLimitCount:   rateCount,
		RateLimitWindow:  time.Minute.String(),
		StrictBalance:    strictBalance,
		ListenAddr:       listenAddr,
	}
	payload, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(outPath, payload, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Println(stepStyle.Render(fmt.Sprintf("Configuration written to %s", outPath)))
	return nil
}
