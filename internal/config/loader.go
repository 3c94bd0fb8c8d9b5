package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultPath is the config file main uses when -config is not given. It may
// be absent; environment variables alone are then enough to run.
const DefaultPath = "config.toml"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies environment variable overrides, and returns the
// final Config. The returned Config has NOT been validated; the caller should
// invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !(path == DefaultPath && errors.Is(err, fs.ErrNotExist)) {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyLegacyEnv(&cfg)
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyLegacyEnv honours the variable names of earlier deployments. They are
// applied before PUMPBOT_* so the prefixed names win when both are set.
func applyLegacyEnv(cfg *Config) {
	setStr(&cfg.Wallet.PrivateKey, "WALLET_PRIVATE_KEY")
	setStr(&cfg.Solana.RPCURL, "SOLANA_RPC_URL")
	setStr(&cfg.Broker.APIKey, "PUMPPORTAL_API_KEY")
	setFloat64(&cfg.Trading.BuyAmountSOL, "BUY_AMOUNT_SOL")
	setFloat64(&cfg.Trading.SlippagePercent, "SLIPPAGE_PERCENT")
	setFloat64(&cfg.Trading.TrailingStopPercent, "TRAILING_STOP_LOSS")
	setMinutes(&cfg.Trading.MaxHold, "AUTO_SELL_AFTER_MINS")
	setInt(&cfg.Trading.MaxTracked, "MAX_TOKENS_TRACKED")
	setFloat64(&cfg.Trading.SimilarityThreshold, "SIMILARITY_THRESHOLD")
	setStr(&cfg.Storage.Path, "TOKEN_STORAGE_FILE")
	setSeconds(&cfg.Feed.ReconnectDelay, "POLL_INTERVAL")
}

// applyEnvOverrides reads well-known PUMPBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "PUMPBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "PUMPBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "PUMPBOT_WALLET_KEY_PASSWORD")

	// ── Solana ──
	setStr(&cfg.Solana.RPCURL, "PUMPBOT_SOLANA_RPC_URL")
	setStr(&cfg.Solana.Commitment, "PUMPBOT_SOLANA_COMMITMENT")

	// ── Feed ──
	setStr(&cfg.Feed.WsURL, "PUMPBOT_FEED_WS_URL")
	setDuration(&cfg.Feed.ReconnectDelay, "PUMPBOT_FEED_RECONNECT_DELAY")

	// ── Trading ──
	setFloat64(&cfg.Trading.BuyAmountSOL, "PUMPBOT_TRADING_BUY_AMOUNT_SOL")
	setFloat64(&cfg.Trading.SlippagePercent, "PUMPBOT_TRADING_SLIPPAGE_PERCENT")
	setFloat64(&cfg.Trading.TrailingStopPercent, "PUMPBOT_TRADING_TRAILING_STOP_PERCENT")
	setDuration(&cfg.Trading.MaxHold, "PUMPBOT_TRADING_MAX_HOLD")
	setInt(&cfg.Trading.MaxTracked, "PUMPBOT_TRADING_MAX_TRACKED")
	setFloat64(&cfg.Trading.SimilarityThreshold, "PUMPBOT_TRADING_SIMILARITY_THRESHOLD")
	setDuration(&cfg.Trading.ExpiryCheckInterval, "PUMPBOT_TRADING_EXPIRY_CHECK_INTERVAL")
	setDuration(&cfg.Trading.DedupTTL, "PUMPBOT_TRADING_DEDUP_TTL")

	// ── Execution ──
	setStr(&cfg.Execution.Backend, "PUMPBOT_EXECUTION_BACKEND")
	setInt(&cfg.Execution.AccountSetupAttempts, "PUMPBOT_EXECUTION_ACCOUNT_SETUP_ATTEMPTS")
	setDuration(&cfg.Execution.AccountSetupInitialDelay, "PUMPBOT_EXECUTION_ACCOUNT_SETUP_INITIAL_DELAY")
	setInt(&cfg.Execution.ConfirmAttempts, "PUMPBOT_EXECUTION_CONFIRM_ATTEMPTS")
	setDuration(&cfg.Execution.ConfirmInterval, "PUMPBOT_EXECUTION_CONFIRM_INTERVAL")
	setUint32(&cfg.Execution.ComputeUnitLimit, "PUMPBOT_EXECUTION_COMPUTE_UNIT_LIMIT")
	setUint64(&cfg.Execution.ComputeUnitPrice, "PUMPBOT_EXECUTION_COMPUTE_UNIT_PRICE")
	setDuration(&cfg.Execution.LockTTL, "PUMPBOT_EXECUTION_LOCK_TTL")

	// ── Broker ──
	setStr(&cfg.Broker.URL, "PUMPBOT_BROKER_URL")
	setStr(&cfg.Broker.APIKey, "PUMPBOT_BROKER_API_KEY")
	setFloat64(&cfg.Broker.PriorityFee, "PUMPBOT_BROKER_PRIORITY_FEE")
	setStr(&cfg.Broker.Pool, "PUMPBOT_BROKER_POOL")
	setBool(&cfg.Broker.ConfirmOnChain, "PUMPBOT_BROKER_CONFIRM_ON_CHAIN")
	setDuration(&cfg.Broker.Timeout, "PUMPBOT_BROKER_TIMEOUT")
	setInt(&cfg.Broker.RateLimit, "PUMPBOT_BROKER_RATE_LIMIT")

	// ── Storage ──
	setStr(&cfg.Storage.Backend, "PUMPBOT_STORAGE_BACKEND")
	setStr(&cfg.Storage.Path, "PUMPBOT_STORAGE_PATH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PUMPBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "PUMPBOT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "PUMPBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PUMPBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PUMPBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PUMPBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PUMPBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PUMPBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PUMPBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PUMPBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PUMPBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PUMPBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PUMPBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PUMPBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PUMPBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PUMPBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PUMPBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PUMPBOT_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "PUMPBOT_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PUMPBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PUMPBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PUMPBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "PUMPBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PUMPBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PUMPBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PUMPBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PUMPBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "PUMPBOT_S3_PREFIX")

	// ── Journal ──
	setDuration(&cfg.Journal.FlushInterval, "PUMPBOT_JOURNAL_FLUSH_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PUMPBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PUMPBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "PUMPBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "PUMPBOT_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "PUMPBOT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PUMPBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PUMPBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PUMPBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PUMPBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PUMPBOT_MODE")
	setStr(&cfg.LogLevel, "PUMPBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint32(dst *uint32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

// setMinutes parses an integer number of minutes.
func setMinutes(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			dst.Duration = time.Duration(n) * time.Minute
		}
	}
}

// setSeconds parses a possibly fractional number of seconds.
func setSeconds(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			dst.Duration = time.Duration(f * float64(time.Second))
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
