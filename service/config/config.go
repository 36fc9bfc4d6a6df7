package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// NATS configuration
	NATSURL string

	// Chain configuration
	ContractAddress common.Address
	TargetNetwork   Network

	// Wallet configuration
	KeystoreDir string
	// KeystorePassphrase, when set, unlocks the previously selected
	// account at startup without an explicit connect request.
	KeystorePassphrase string
	// WalletAccount optionally pins the signing account. When empty the
	// first keystore account is used.
	WalletAccount string

	// Event watcher configuration
	WatchInterval time.Duration
	// ConfirmPollInterval is how often a pending transaction receipt is
	// polled for while awaiting confirmation.
	ConfirmPollInterval time.Duration
}

// Load reads configuration from environment variables and validates all
// required fields. Returns an error if any required configuration is
// missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Contract configuration
	contractAddr := os.Getenv("CONTRACT_ADDRESS")
	if contractAddr == "" {
		errs = append(errs, fmt.Errorf("CONTRACT_ADDRESS is required"))
	} else if !common.IsHexAddress(contractAddr) {
		errs = append(errs, fmt.Errorf("CONTRACT_ADDRESS is not a valid hex address: %q", contractAddr))
	} else {
		cfg.ContractAddress = common.HexToAddress(contractAddr)
	}

	// Target network. Defaults describe Shardeum Sphinx; every field can
	// be overridden so the client can point at a local devnet.
	chainID, err := parseUint("CHAIN_ID", ShardeumSphinx.ChainID)
	if err != nil {
		errs = append(errs, err)
	}
	decimals, err := parseUint("NATIVE_CURRENCY_DECIMALS", uint64(ShardeumSphinx.Currency.Decimals))
	if err != nil {
		errs = append(errs, err)
	}
	cfg.TargetNetwork = Network{
		ChainID: chainID,
		Name:    getEnvOrDefault("CHAIN_NAME", ShardeumSphinx.Name),
		Currency: Currency{
			Name:     getEnvOrDefault("NATIVE_CURRENCY_NAME", ShardeumSphinx.Currency.Name),
			Symbol:   getEnvOrDefault("NATIVE_CURRENCY_SYMBOL", ShardeumSphinx.Currency.Symbol),
			Decimals: uint8(decimals),
		},
		RPCURLs:      []string{getEnvOrDefault("RPC_URL", ShardeumSphinx.RPCURLs[0])},
		ExplorerURLs: []string{getEnvOrDefault("EXPLORER_URL", ShardeumSphinx.ExplorerURLs[0])},
	}

	// Wallet configuration
	cfg.KeystoreDir = getEnvOrDefault("KEYSTORE_DIR", defaultKeystoreDir())
	cfg.KeystorePassphrase = os.Getenv("KEYSTORE_PASSPHRASE")
	cfg.WalletAccount = os.Getenv("WALLET_ACCOUNT")
	if cfg.WalletAccount != "" && !common.IsHexAddress(cfg.WalletAccount) {
		errs = append(errs, fmt.Errorf("WALLET_ACCOUNT is not a valid hex address: %q", cfg.WalletAccount))
	}

	// Watcher configuration
	watchInterval, err := parseDuration("WATCH_INTERVAL", "15s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.WatchInterval = watchInterval
	}

	confirmInterval, err := parseDuration("CONFIRM_POLL_INTERVAL", "2s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmPollInterval = confirmInterval
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid. This is useful for
// testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.ContractAddress == (common.Address{}) {
		errs = append(errs, fmt.Errorf("ContractAddress is required"))
	}

	if c.TargetNetwork.ChainID == 0 {
		errs = append(errs, fmt.Errorf("TargetNetwork.ChainID is required"))
	}

	if len(c.TargetNetwork.RPCURLs) == 0 || c.TargetNetwork.RPCURLs[0] == "" {
		errs = append(errs, fmt.Errorf("TargetNetwork requires at least one RPC URL"))
	}

	if c.TargetNetwork.Currency.Decimals == 0 {
		errs = append(errs, fmt.Errorf("TargetNetwork currency decimals must be positive"))
	}

	if c.KeystoreDir == "" {
		errs = append(errs, fmt.Errorf("KeystoreDir is required"))
	}

	if c.WatchInterval < time.Second {
		errs = append(errs, fmt.Errorf("WatchInterval must be at least 1 second"))
	}

	if c.ConfirmPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("ConfirmPollInterval must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

func defaultKeystoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "keystore"
	}
	return home + "/.fundlift/keystore"
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseUint parses an unsigned integer from an environment variable or
// uses a default.
func parseUint(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid unsigned integer %q: %w", key, value, err)
	}
	return result, nil
}
