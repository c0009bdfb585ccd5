package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/candlefi/candle-markets/internal/blob/s3"
	"github.com/candlefi/candle-markets/internal/cache/redis"
	"github.com/candlefi/candle-markets/internal/config"
	"github.com/candlefi/candle-markets/internal/domain"
	"github.com/candlefi/candle-markets/internal/ledger"
	"github.com/candlefi/candle-markets/internal/lifecycle"
	"github.com/candlefi/candle-markets/internal/notify"
	"github.com/candlefi/candle-markets/internal/oracle"
	"github.com/candlefi/candle-markets/internal/store/postgres"
)

// Dependencies bundles every dependency the application modes operate on. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Mirror stores
	Markets domain.MarketStore
	Bets    domain.BetStore
	Payouts domain.PayoutStore
	PnL     domain.PnLStore

	// Redis
	Candles domain.CandleCache
	Locks   domain.LockManager
	Bus     domain.SignalBus
	Limiter domain.RateLimiter

	// Ledger and price feeds
	Gateway domain.LedgerGateway
	Oracle  *oracle.Chain

	// Supporting infrastructure
	Notifier *notify.Notifier
	Archiver lifecycle.Archiver // nil when S3 is disabled

	// Health probes
	PingPostgres func(ctx context.Context) error
	PingRedis    func(ctx context.Context) error
}

// runsScheduler reports whether the mode submits lifecycle instructions and
// therefore needs the admin keypair and the oracle chain.
func runsScheduler(mode string) bool {
	return mode == "scheduler" || mode == "full"
}

// Wire constructs every concrete dependency from the configuration. The
// returned cleanup releases resources in reverse construction order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// PostgreSQL mirror.
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	marketStore := postgres.NewMarketStore(pool)
	betStore := postgres.NewBetStore(pool)
	deps.Markets = marketStore
	deps.Bets = betStore
	deps.Payouts = postgres.NewPayoutStore(pool)
	deps.PnL = postgres.NewPnLStore(pool)
	deps.PingPostgres = pool.Ping

	// Redis: candle cache, distributed locks, signal bus.
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Candles = redis.NewCandleCache(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.Bus = redis.NewSignalBus(redisClient)
	deps.Limiter = redis.NewRateLimiter(redisClient)
	deps.PingRedis = redisClient.Ping

	// Ledger gateway. Serve mode only reads confirmed account state, so the
	// admin keypair stays optional there.
	programID, err := ledger.ParsePubkey(cfg.Ledger.ProgramID)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: program id: %w", err)
	}
	var admin *ledger.Keypair
	if cfg.Ledger.KeypairPath != "" {
		admin, err = ledger.LoadKeypairFile(cfg.Ledger.KeypairPath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: admin keypair: %w", err)
		}
	}
	if runsScheduler(cfg.Mode) && admin == nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: mode %q requires ledger.keypair_path", cfg.Mode)
	}

	rpc := ledger.NewRPCClient(cfg.Ledger.RPCURL)
	rpc.SetCommitment(cfg.Ledger.Commitment)
	gateway, err := ledger.NewGateway(rpc, programID, admin, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ledger gateway: %w", err)
	}
	deps.Gateway = gateway

	// Oracle chain: Binance first, Coinbase as fallback.
	sources := []oracle.Source{
		oracle.NewBinance(cfg.Oracle.BinanceBaseURL, cfg.Oracle.BinanceSymbol, cfg.Oracle.RequestTimeout.Duration),
		oracle.NewCoinbase(cfg.Oracle.CoinbaseBaseURL, cfg.Oracle.CoinbaseProduct, cfg.Oracle.RequestTimeout.Duration),
	}
	deps.Oracle = oracle.NewChain(sources, deps.Candles, cfg.Market.Asset, cfg.Oracle.CacheTTL.Duration, logger)

	// S3 archiver for aged settled markets.
	if cfg.S3.Enabled && runsScheduler(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			marketStore, betStore, s3Client,
			cfg.Scheduler.ArchiveAfter.Duration, logger,
		)
	}

	// Operational alerts.
	var senders []notify.Sender
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL))
	}
	if cfg.Notify.TelegramBotToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
