package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CANDLED_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CANDLED_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.RPCURL, "CANDLED_LEDGER_RPC_URL")
	setStr(&cfg.Ledger.ProgramID, "CANDLED_LEDGER_PROGRAM_ID")
	setStr(&cfg.Ledger.KeypairPath, "CANDLED_LEDGER_KEYPAIR_PATH")
	setStr(&cfg.Ledger.Commitment, "CANDLED_LEDGER_COMMITMENT")

	// ── Oracle ──
	setStr(&cfg.Oracle.BinanceBaseURL, "CANDLED_ORACLE_BINANCE_BASE_URL")
	setStr(&cfg.Oracle.BinanceSymbol, "CANDLED_ORACLE_BINANCE_SYMBOL")
	setStr(&cfg.Oracle.CoinbaseBaseURL, "CANDLED_ORACLE_COINBASE_BASE_URL")
	setStr(&cfg.Oracle.CoinbaseProduct, "CANDLED_ORACLE_COINBASE_PRODUCT")
	setDuration(&cfg.Oracle.CacheTTL, "CANDLED_ORACLE_CACHE_TTL")
	setDuration(&cfg.Oracle.RequestTimeout, "CANDLED_ORACLE_REQUEST_TIMEOUT")

	// ── Database ──
	setStr(&cfg.Database.DSN, "CANDLED_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "CANDLED_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "CANDLED_DATABASE_HOST")
	setInt(&cfg.Database.Port, "CANDLED_DATABASE_PORT")
	setStr(&cfg.Database.Database, "CANDLED_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "CANDLED_DATABASE_USER")
	setStr(&cfg.Database.Password, "CANDLED_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "CANDLED_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "CANDLED_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "CANDLED_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "CANDLED_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CANDLED_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CANDLED_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CANDLED_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CANDLED_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CANDLED_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CANDLED_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CANDLED_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CANDLED_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CANDLED_S3_REGION")
	setStr(&cfg.S3.Bucket, "CANDLED_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CANDLED_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CANDLED_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CANDLED_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CANDLED_S3_FORCE_PATH_STYLE")

	// ── Market ──
	setStr(&cfg.Market.Asset, "CANDLED_MARKET_ASSET")
	setDuration(&cfg.Market.Window, "CANDLED_MARKET_WINDOW")
	setDuration(&cfg.Market.LockAhead, "CANDLED_MARKET_LOCK_AHEAD")
	setUint64(&cfg.Market.VirtualLiquidity, "CANDLED_MARKET_VIRTUAL_LIQUIDITY")
	setUint64(&cfg.Market.MaxBet, "CANDLED_MARKET_MAX_BET")

	// ── Scheduler ──
	setDuration(&cfg.Scheduler.SettlePoll, "CANDLED_SCHEDULER_SETTLE_POLL")
	setInt(&cfg.Scheduler.MaxConcurrentSettles, "CANDLED_SCHEDULER_MAX_CONCURRENT_SETTLES")
	setDuration(&cfg.Scheduler.LockTTL, "CANDLED_SCHEDULER_LOCK_TTL")
	setDuration(&cfg.Scheduler.ReconcileInterval, "CANDLED_SCHEDULER_RECONCILE_INTERVAL")
	setDuration(&cfg.Scheduler.ArchiveAfter, "CANDLED_SCHEDULER_ARCHIVE_AFTER")
	setDuration(&cfg.Scheduler.ArchiveInterval, "CANDLED_SCHEDULER_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CANDLED_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CANDLED_SERVER_PORT")
	setStr(&cfg.Server.AdminToken, "CANDLED_SERVER_ADMIN_TOKEN")
	setStringSlice(&cfg.Server.CORSOrigins, "CANDLED_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "CANDLED_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "CANDLED_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.WebhookURL, "CANDLED_NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.TelegramBotToken, "CANDLED_NOTIFY_TELEGRAM_BOT_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CANDLED_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "CANDLED_NOTIFY_EVENTS")
	setUint64(&cfg.Notify.LowTreasuryThreshold, "CANDLED_NOTIFY_LOW_TREASURY_THRESHOLD")

	// ── Top-level ──
	setStr(&cfg.Mode, "CANDLED_MODE")
	setStr(&cfg.LogLevel, "CANDLED_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
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
