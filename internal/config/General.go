package config

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"os"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// IndexerAPI is the base URL of the position indexer API.
	IndexerAPI string

	// ChainsConfigPath is the path to the per-chain contract/RPC YAML file.
	ChainsConfigPath string

	// KeeperPrivateKey is the hex-encoded private key used to sign
	// auto-exercise and settle transactions.
	KeeperPrivateKey string

	// DefaultRPCURL is the fallback RPC endpoint used when a chain has no
	// rpc_url entry in the chains file. May be empty.
	DefaultRPCURL string

	// PollInterval is the pause between orchestrator cycles.
	PollInterval time.Duration
	// ResultCacheTTL is how long a cached profitability result stays valid.
	ResultCacheTTL time.Duration
	// CacheCleanupInterval is how often expired results are swept.
	CacheCleanupInterval time.Duration
	// CalculateTimeout bounds a synchronous profitability request.
	CalculateTimeout time.Duration

	// ExecutorFeePips is the keeper's fee as parts per million of notional,
	// the same basis the pool fee tier uses.
	ExecutorFeePips uint64

	// DefaultGasLimit is the fallback gas limit if estimation fails.
	DefaultGasLimit uint64

	// TelegramBotToken and TelegramChatID enable log forwarding to Telegram
	// when both are set.
	TelegramBotToken string
	TelegramChatID   string

	// NotifyLevels lists additional log levels to forward (errors always are).
	NotifyLevels []string

	// WebPort is the HTTP listen port for the request adapter.
	WebPort string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	IndexerAPI, err = getEnv("INDEXER_API")
	if err != nil {
		return err
	}

	ChainsConfigPath, err = getEnv("CHAINS_CONFIG")
	if err != nil {
		return err
	}

	KeeperPrivateKey, err = getEnv("KEEPER_PRIVATE_KEY")
	if err != nil {
		return err
	}

	DefaultRPCURL = os.Getenv("DEFAULT_RPC_URL")

	PollInterval = time.Duration(getEnvAsUint64Or("POLL_INTERVAL_SECONDS", 30)) * time.Second
	ResultCacheTTL = time.Duration(getEnvAsUint64Or("RESULT_CACHE_TTL_SECONDS", 5)) * time.Second
	CacheCleanupInterval = time.Duration(getEnvAsUint64Or("CACHE_CLEANUP_INTERVAL_SECONDS", 60)) * time.Second
	CalculateTimeout = time.Duration(getEnvAsUint64Or("CALC_TIMEOUT_SECONDS", 10)) * time.Second

	ExecutorFeePips = getEnvAsUint64Or("EXECUTOR_FEE_PIPS", 10000)
	DefaultGasLimit = getEnvAsUint64Or("GAS_DEFAULT_LIMIT", 2_000_000)

	TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
	if raw := os.Getenv("NOTIFY_LEVELS"); raw != "" {
		NotifyLevels = strings.Split(raw, ",")
	}

	WebPort = getEnvOr("WEB_PORT", "8080")

	// Load per-chain contract addresses and RPC endpoints
	if err := loadChainConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("IndexerAPI", IndexerAPI).
		Dur("PollInterval", PollInterval).
		Dur("ResultCacheTTL", ResultCacheTTL).
		Uint64("ExecutorFeePips", ExecutorFeePips).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOr retrieves a string environment variable with a default.
func getEnvOr(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsUint64Or retrieves an environment variable as a uint64, falling back
// to a default when unset or invalid.
func getEnvAsUint64Or(key string, defaultValue uint64) uint64 {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid uint64 environment variable, using default")
		return defaultValue
	}
	return value
}
