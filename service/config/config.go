package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	solanasvc "github.com/brojonat/tokensmith/service/solana"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/joho/godotenv"
)

// Network names.
const (
	NetworkMainnet = "mainnet"
	NetworkDevnet  = "devnet"
)

// Profile holds the per-network defaults.
type Profile struct {
	RPCURL   string
	Metadata solanasvc.TokenMetadata
}

var kappaMetadata = solanasvc.TokenMetadata{
	Name:      "Kappa",
	Symbol:    "KAP",
	URI:       "https://raw.githubusercontent.com/ChisTrun/Peint/refs/heads/master/metadata.json",
	IsMutable: true,
}

// Profiles maps each supported network to its defaults.
var Profiles = map[string]Profile{
	NetworkMainnet: {RPCURL: rpc.MainNetBeta_RPC, Metadata: kappaMetadata},
	NetworkDevnet:  {RPCURL: rpc.DevNet_RPC, Metadata: kappaMetadata},
}

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr      string
	LogLevel        string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool

	// NATS configuration, empty disables submission events
	NATSURL string

	// Solana configuration
	Network      string
	SolanaRPCURL []string
	Commitment   rpc.CommitmentType

	// Wallet key, one of the two is required
	WalletKeypairPath string
	WalletPrivateKey  string

	// Token configuration
	Token         solanasvc.TokenMetadata
	TokenDecimals uint8
	Programs      solanasvc.ProgramIDs

	// Default transfer
	TransferReceiver  solana.PublicKey
	TransferAmountSOL uint64
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	shutdown, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ShutdownTimeout = shutdown
	}

	metricsEnabled, err := parseBool("METRICS_ENABLED", true)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MetricsEnabled = metricsEnabled
	}

	cfg.NATSURL = os.Getenv("NATS_URL")

	// Solana configuration
	cfg.Network = getEnvOrDefault("SOLANA_NETWORK", NetworkDevnet)
	profile, ok := Profiles[cfg.Network]
	if !ok {
		errs = append(errs, fmt.Errorf("SOLANA_NETWORK must be %q or %q, got %q", NetworkMainnet, NetworkDevnet, cfg.Network))
	}

	cfg.SolanaRPCURL = splitList(getEnvOrDefault("SOLANA_RPC_URL", profile.RPCURL))
	if len(cfg.SolanaRPCURL) == 0 {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	cfg.Commitment = rpc.CommitmentType(getEnvOrDefault("SOLANA_COMMITMENT", string(rpc.CommitmentFinalized)))
	switch cfg.Commitment {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		errs = append(errs, fmt.Errorf("SOLANA_COMMITMENT must be processed, confirmed or finalized, got %q", cfg.Commitment))
	}

	// Wallet configuration
	cfg.WalletKeypairPath = os.Getenv("WALLET_KEYPAIR_PATH")
	cfg.WalletPrivateKey = os.Getenv("WALLET_PRIVATE_KEY")
	if cfg.WalletKeypairPath == "" && cfg.WalletPrivateKey == "" {
		errs = append(errs, fmt.Errorf("WALLET_KEYPAIR_PATH or WALLET_PRIVATE_KEY is required"))
	}

	// Token configuration
	cfg.Token = profile.Metadata
	cfg.Token.Name = getEnvOrDefault("TOKEN_NAME", cfg.Token.Name)
	cfg.Token.Symbol = getEnvOrDefault("TOKEN_SYMBOL", cfg.Token.Symbol)
	cfg.Token.URI = getEnvOrDefault("TOKEN_URI", cfg.Token.URI)
	if err := cfg.Token.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("TOKEN_*: %w", err))
	}

	decimals, err := parseInt("TOKEN_DECIMALS", int(solanasvc.DefaultMintDecimals))
	switch {
	case err != nil:
		errs = append(errs, err)
	case decimals < 0 || decimals > 18:
		errs = append(errs, fmt.Errorf("TOKEN_DECIMALS must be between 0 and 18, got %d", decimals))
	default:
		cfg.TokenDecimals = uint8(decimals)
	}

	defaults := solanasvc.DefaultProgramIDs()
	cfg.Programs.Token = parsePublicKey("TOKEN_PROGRAM_ID", defaults.Token, &errs)
	cfg.Programs.AssociatedToken = parsePublicKey("ASSOCIATED_TOKEN_PROGRAM_ID", defaults.AssociatedToken, &errs)
	cfg.Programs.Metadata = parsePublicKey("METADATA_PROGRAM_ID", defaults.Metadata, &errs)

	// Default transfer
	cfg.TransferReceiver = parsePublicKey("TRANSFER_RECEIVER",
		solana.MustPublicKeyFromBase58("Fjq4jmr998ZiSbp7Ba8A9pvV82guKi9ejFaAWQ16PAzM"), &errs)
	amount, err := parseInt("TRANSFER_AMOUNT_SOL", 1)
	switch {
	case err != nil:
		errs = append(errs, err)
	case amount <= 0:
		errs = append(errs, fmt.Errorf("TRANSFER_AMOUNT_SOL must be positive, got %d", amount))
	default:
		cfg.TransferAmountSOL = uint64(amount)
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from an env file into the process environment.
// Variables already set win. An empty path reads ".env" in the working
// directory and is a no-op when that file does not exist.
func LoadDotEnv(path string) error {
	if path == "" {
		if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
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

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := Profiles[c.Network]; !ok {
		errs = append(errs, fmt.Errorf("Network %q is not supported", c.Network))
	}

	if len(c.SolanaRPCURL) == 0 {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.WalletKeypairPath == "" && c.WalletPrivateKey == "" {
		errs = append(errs, fmt.Errorf("WalletKeypairPath or WalletPrivateKey is required"))
	}

	if err := c.Token.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.TransferAmountSOL == 0 {
		errs = append(errs, fmt.Errorf("TransferAmountSOL must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// BuilderConfig returns the transaction builder settings.
func (c *Config) BuilderConfig() solanasvc.BuilderConfig {
	return solanasvc.BuilderConfig{
		Network:      c.Network,
		Commitment:   c.Commitment,
		Metadata:     c.Token,
		Programs:     c.Programs,
		MintDecimals: c.TokenDecimals,
	}
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

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseBool parses a boolean from an environment variable or uses a default.
func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}

// parsePublicKey parses a base58 public key from an environment variable or
// uses a default, appending any error to errs.
func parsePublicKey(key string, defaultValue solana.PublicKey, errs *[]error) solana.PublicKey {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	pk, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid public key %q: %w", key, value, err))
		return defaultValue
	}
	return pk
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
