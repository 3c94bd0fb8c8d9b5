package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	s3blob "github.com/alanyoungcy/pumpbot/internal/blob/s3"
	"github.com/alanyoungcy/pumpbot/internal/cache/redis"
	"github.com/alanyoungcy/pumpbot/internal/config"
	"github.com/alanyoungcy/pumpbot/internal/crypto"
	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/executor"
	"github.com/alanyoungcy/pumpbot/internal/ledger"
	"github.com/alanyoungcy/pumpbot/internal/metrics"
	"github.com/alanyoungcy/pumpbot/internal/notify"
	"github.com/alanyoungcy/pumpbot/internal/platform/pumpportal"
	"github.com/alanyoungcy/pumpbot/internal/server/handler"
	"github.com/alanyoungcy/pumpbot/internal/store/file"
	"github.com/alanyoungcy/pumpbot/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
// Optional infrastructure is nil when its config section is disabled.
type Dependencies struct {
	// Persistence
	PositionStore domain.PositionStore
	TradeStore    *postgres.TradeStore

	// Redis
	LockManager *redis.LockManager
	EventBus    *redis.EventBus
	RateLimiter *redis.RateLimiter

	// Blob storage
	Journal *s3blob.Journal

	// Execution
	Engine executor.Engine
	Paper  *executor.PaperEngine

	Metrics  *metrics.Metrics
	Notifier *notify.Notifier

	// Checks are the dependency probes served by /api/health.
	Checks map[string]handler.CheckFunc
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Checks:  make(map[string]handler.CheckFunc),
	}

	// --- Position store ---
	switch cfg.Storage.Backend {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ConfigFrom(cfg.Postgres))
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		pool := pgClient.Pool()
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.TradeStore = postgres.NewTradeStore(pool)
		deps.Checks["postgres"] = pgClient.Ping
	default:
		deps.PositionStore = file.NewPositionStore(cfg.Storage.Path, logger)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ConfigFrom(cfg.Redis))
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.LockManager = redis.NewLockManager(redisClient)
		deps.EventBus = redis.NewEventBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- S3 trade journal ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ConfigFrom(cfg.S3))
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Journal = s3blob.NewJournal(s3blob.NewWriter(s3Client), cfg.S3.Prefix, cfg.Journal.FlushInterval.Duration, logger)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Execution backend ---
	engine, paper, err := buildEngine(cfg, deps, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Engine = engine
	deps.Paper = paper

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// buildEngine selects the execution backend. Paper mode overrides the
// configured backend.
func buildEngine(cfg *config.Config, deps *Dependencies, logger *slog.Logger) (executor.Engine, *executor.PaperEngine, error) {
	opts := executor.OptionsFrom(cfg)
	if cfg.Mode == "paper" {
		paper := executor.NewPaperEngine(opts, logger)
		return paper, paper, nil
	}

	switch cfg.Execution.Backend {
	case executor.BackendBroker:
		api := pumpportal.NewTradeClient(
			cfg.Broker.URL,
			cfg.Broker.APIKey,
			cfg.Broker.PriorityFee,
			cfg.Broker.Pool,
			cfg.Broker.Timeout.Duration,
		)
		var chain executor.ChainClient
		if cfg.Broker.ConfirmOnChain {
			chain = rpc.New(cfg.Solana.RPCURL)
		}
		// The wallet is optional here; without it sells skip the balance
		// check.
		var wallet solana.PublicKey
		if key, err := crypto.LoadKey(keyConfig(cfg.Wallet)); err == nil {
			wallet = key.PublicKey()
		}
		broker := executor.NewBrokerEngine(api, chain, wallet, opts, logger)
		if deps.RateLimiter != nil {
			broker.SetThrottle(deps.RateLimiter, cfg.Broker.RateLimit)
		}
		return broker, nil, nil

	default:
		key, err := crypto.LoadKey(keyConfig(cfg.Wallet))
		if err != nil {
			return nil, nil, fmt.Errorf("load wallet key: %w", err)
		}
		signer := crypto.NewSigner(key)
		logger.Info("wallet loaded", slog.String("public_key", signer.PublicKey().String()))
		return executor.NewRPCEngine(rpc.New(cfg.Solana.RPCURL), signer, opts, logger), nil, nil
	}
}

func keyConfig(w config.WalletConfig) crypto.KeyConfig {
	return crypto.KeyConfig{
		RawPrivateKey:    w.PrivateKey,
		EncryptedKeyPath: w.EncryptedKeyPath,
		KeyPassword:      w.KeyPassword,
	}
}

// Ledger loads the position ledger from the configured store.
func (d *Dependencies) Ledger(ctx context.Context, logger *slog.Logger) (*ledger.Ledger, error) {
	l := ledger.New(d.PositionStore, logger)
	if err := l.Load(ctx); err != nil {
		return nil, fmt.Errorf("wire: load ledger: %w", err)
	}
	return l, nil
}
