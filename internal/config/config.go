// Package config defines the top-level configuration for the pump.fun trading
// agent and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PUMPBOT_* environment variables.
type Config struct {
	Wallet    WalletConfig    `toml:"wallet"`
	Solana    SolanaConfig    `toml:"solana"`
	Feed      FeedConfig      `toml:"feed"`
	Trading   TradingConfig   `toml:"trading"`
	Execution ExecutionConfig `toml:"execution"`
	Broker    BrokerConfig    `toml:"broker"`
	Storage   StorageConfig   `toml:"storage"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Journal   JournalConfig   `toml:"journal"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// WalletConfig holds the Solana wallet credentials. PrivateKey is base58.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// SolanaConfig holds the RPC endpoint and the commitment used for reads.
type SolanaConfig struct {
	RPCURL     string `toml:"rpc_url"`
	Commitment string `toml:"commitment"`
}

// FeedConfig holds the PumpPortal data feed parameters.
type FeedConfig struct {
	WsURL          string   `toml:"ws_url"`
	ReconnectDelay duration `toml:"reconnect_delay"`
}

// TradingConfig holds the position strategy parameters. Percent fields are
// whole percents (15 means 15%).
type TradingConfig struct {
	BuyAmountSOL        float64  `toml:"buy_amount_sol"`
	SlippagePercent     float64  `toml:"slippage_percent"`
	TrailingStopPercent float64  `toml:"trailing_stop_percent"`
	MaxHold             duration `toml:"max_hold"`
	MaxTracked          int      `toml:"max_tracked"`
	SimilarityThreshold float64  `toml:"similarity_threshold"`
	ExpiryCheckInterval duration `toml:"expiry_check_interval"`
	DedupTTL            duration `toml:"dedup_ttl"`
}

// Slippage returns the slippage tolerance as a fraction.
func (t TradingConfig) Slippage() float64 {
	return t.SlippagePercent / 100
}

// TrailingStop returns the trailing stop distance as a fraction.
func (t TradingConfig) TrailingStop() float64 {
	return t.TrailingStopPercent / 100
}

// ExecutionConfig holds the execution backend parameters.
type ExecutionConfig struct {
	// Backend selects how trades reach the chain: "rpc" signs and submits
	// transactions directly, "broker" delegates to the PumpPortal trade API.
	Backend                  string   `toml:"backend"`
	AccountSetupAttempts     int      `toml:"account_setup_attempts"`
	AccountSetupInitialDelay duration `toml:"account_setup_initial_delay"`
	ConfirmAttempts          int      `toml:"confirm_attempts"`
	ConfirmInterval          duration `toml:"confirm_interval"`
	ComputeUnitLimit         uint32   `toml:"compute_unit_limit"`
	ComputeUnitPrice         uint64   `toml:"compute_unit_price"`
	LockTTL                  duration `toml:"lock_ttl"`
}

// BrokerConfig holds the delegated trade API parameters.
type BrokerConfig struct {
	URL            string   `toml:"url"`
	APIKey         string   `toml:"api_key"`
	PriorityFee    float64  `toml:"priority_fee"`
	Pool           string   `toml:"pool"`
	ConfirmOnChain bool     `toml:"confirm_on_chain"`
	Timeout        duration `toml:"timeout"`
	// RateLimit caps trade requests per second when Redis is enabled.
	// Zero disables throttling.
	RateLimit int `toml:"rate_limit"`
}

// StorageConfig selects the position store.
type StorageConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// JournalConfig controls how often buffered trade records are uploaded.
type JournalConfig struct {
	FlushInterval duration `toml:"flush_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit caps requests per client IP per second when Redis is
	// enabled. Zero disables it.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Solana: SolanaConfig{
			RPCURL:     "https://api.mainnet-beta.solana.com",
			Commitment: "confirmed",
		},
		Feed: FeedConfig{
			WsURL:          "wss://pumpportal.fun/api/data",
			ReconnectDelay: duration{5 * time.Second},
		},
		Trading: TradingConfig{
			BuyAmountSOL:        0.01,
			SlippagePercent:     15,
			TrailingStopPercent: 30,
			MaxTracked:          3,
			SimilarityThreshold: 0.6,
			ExpiryCheckInterval: duration{30 * time.Second},
			DedupTTL:            duration{10 * time.Minute},
		},
		Execution: ExecutionConfig{
			Backend:                  "rpc",
			AccountSetupAttempts:     5,
			AccountSetupInitialDelay: duration{time.Second},
			ConfirmAttempts:          30,
			ConfirmInterval:          duration{time.Second},
			ComputeUnitLimit:         100_000,
			ComputeUnitPrice:         1_000_000,
			LockTTL:                  duration{2 * time.Minute},
		},
		Broker: BrokerConfig{
			URL:         "https://pumpportal.fun/api/trade",
			PriorityFee: 0.0001,
			Pool:        "pump",
			Timeout:     duration{30 * time.Second},
		},
		Storage: StorageConfig{
			Backend: "file",
			Path:    "token_storage.json",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 10_000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "pumpbot-data",
			ForcePathStyle: true,
			Prefix:         "trades",
		},
		Journal: JournalConfig{
			FlushInterval: duration{time.Minute},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Notify: NotifyConfig{
			Events: []string{"buy_confirmed", "sell_confirmed", "trade_failed"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade": true,
	"paper": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{
	"rpc":    true,
	"broker": true,
}

var validStorage = map[string]bool{
	"file":     true,
	"postgres": true,
}

var validCommitments = map[string]bool{
	"processed": true,
	"confirmed": true,
	"finalized": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, paper)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet is only needed when trades are signed locally.
	if c.Mode == "trade" && c.Execution.Backend == "rpc" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for the rpc backend")
		}
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Solana
	if c.Solana.RPCURL == "" {
		errs = append(errs, "solana: rpc_url must not be empty")
	}
	if !validCommitments[c.Solana.Commitment] {
		errs = append(errs, fmt.Sprintf("solana: unknown commitment %q (valid: processed, confirmed, finalized)", c.Solana.Commitment))
	}

	// Feed
	if c.Feed.WsURL == "" {
		errs = append(errs, "feed: ws_url must not be empty")
	}
	if c.Feed.ReconnectDelay.Duration < 0 {
		errs = append(errs, "feed: reconnect_delay must be >= 0")
	}

	// Trading
	if c.Trading.BuyAmountSOL <= 0 {
		errs = append(errs, "trading: buy_amount_sol must be > 0")
	}
	if c.Trading.SlippagePercent < 0 || c.Trading.SlippagePercent >= 100 {
		errs = append(errs, "trading: slippage_percent must be in [0, 100)")
	}
	if c.Trading.TrailingStopPercent <= 0 || c.Trading.TrailingStopPercent >= 100 {
		errs = append(errs, "trading: trailing_stop_percent must be in (0, 100)")
	}
	if c.Trading.MaxHold.Duration < 0 {
		errs = append(errs, "trading: max_hold must be >= 0")
	}
	if c.Trading.MaxTracked < 1 {
		errs = append(errs, "trading: max_tracked must be >= 1")
	}
	if c.Trading.SimilarityThreshold <= 0 || c.Trading.SimilarityThreshold > 1 {
		errs = append(errs, "trading: similarity_threshold must be in (0, 1]")
	}
	if c.Trading.MaxHold.Duration > 0 && c.Trading.ExpiryCheckInterval.Duration <= 0 {
		errs = append(errs, "trading: expiry_check_interval must be > 0 when max_hold is set")
	}

	// Execution
	if c.Mode == "trade" && !validBackends[c.Execution.Backend] {
		errs = append(errs, fmt.Sprintf("execution: unknown backend %q (valid: rpc, broker)", c.Execution.Backend))
	}
	if c.Execution.AccountSetupAttempts < 1 {
		errs = append(errs, "execution: account_setup_attempts must be >= 1")
	}
	if c.Execution.ConfirmAttempts < 1 {
		errs = append(errs, "execution: confirm_attempts must be >= 1")
	}
	if c.Execution.ConfirmInterval.Duration <= 0 {
		errs = append(errs, "execution: confirm_interval must be > 0")
	}

	// Broker
	if c.Mode == "trade" && c.Execution.Backend == "broker" {
		if c.Broker.URL == "" {
			errs = append(errs, "broker: url must not be empty")
		}
		if c.Broker.APIKey == "" {
			errs = append(errs, "broker: api_key is required for the broker backend")
		}
	}
	if c.Broker.RateLimit < 0 {
		errs = append(errs, "broker: rate_limit must be >= 0")
	}

	// Storage
	if !validStorage[c.Storage.Backend] {
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: file, postgres)", c.Storage.Backend))
	}
	if c.Storage.Backend == "file" && c.Storage.Path == "" {
		errs = append(errs, "storage: path must not be empty for the file backend")
	}

	// Postgres
	if c.Storage.Backend == "postgres" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Journal.FlushInterval.Duration <= 0 {
			errs = append(errs, "journal: flush_interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
