// Package config defines the top-level configuration for the candle market
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CANDLED_* environment variables.
type Config struct {
	Ledger    LedgerConfig    `toml:"ledger"`
	Oracle    OracleConfig    `toml:"oracle"`
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Market    MarketConfig    `toml:"market"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// LedgerConfig holds the RPC endpoint, program id and admin keypair used to
// submit market instructions.
type LedgerConfig struct {
	RPCURL      string `toml:"rpc_url"`
	ProgramID   string `toml:"program_id"`
	KeypairPath string `toml:"keypair_path"`
	Commitment  string `toml:"commitment"`
}

// OracleConfig holds price feed endpoints and cache behavior.
type OracleConfig struct {
	BinanceBaseURL  string   `toml:"binance_base_url"`
	BinanceSymbol   string   `toml:"binance_symbol"`
	CoinbaseBaseURL string   `toml:"coinbase_base_url"`
	CoinbaseProduct string   `toml:"coinbase_product"`
	CacheTTL        duration `toml:"cache_ttl"`
	RequestTimeout  duration `toml:"request_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the mirror.
type DatabaseConfig struct {
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
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// MarketConfig holds the market product parameters.
type MarketConfig struct {
	Asset            string   `toml:"asset"`
	Window           duration `toml:"window"`
	LockAhead        duration `toml:"lock_ahead"`
	VirtualLiquidity uint64   `toml:"virtual_liquidity"`
	MaxBet           uint64   `toml:"max_bet"`
}

// SchedulerConfig holds lifecycle loop timing parameters.
type SchedulerConfig struct {
	SettlePoll           duration `toml:"settle_poll"`
	MaxConcurrentSettles int      `toml:"max_concurrent_settles"`
	LockTTL              duration `toml:"lock_ttl"`
	ReconcileInterval    duration `toml:"reconcile_interval"`
	ArchiveAfter         duration `toml:"archive_after"`
	ArchiveInterval      duration `toml:"archive_interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	AdminToken  string   `toml:"admin_token"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit is the per-client request budget per RateLimitWindow.
	// Zero disables throttling.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds operational alert channel settings.
type NotifyConfig struct {
	WebhookURL           string   `toml:"webhook_url"`
	TelegramBotToken     string   `toml:"telegram_bot_token"`
	TelegramChatID       string   `toml:"telegram_chat_id"`
	Events               []string `toml:"events"`
	LowTreasuryThreshold uint64   `toml:"low_treasury_threshold"`
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

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			RPCURL:     "https://api.devnet.solana.com",
			Commitment: "confirmed",
		},
		Oracle: OracleConfig{
			BinanceBaseURL:  "https://api.binance.com",
			BinanceSymbol:   "BTCUSDT",
			CoinbaseBaseURL: "https://api.exchange.coinbase.com",
			CoinbaseProduct: "BTC-USD",
			CacheTTL:        duration{30 * time.Second},
			RequestTimeout:  duration{10 * time.Second},
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "candled",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "candled-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Market: MarketConfig{
			Asset:            "BTC/USDT",
			Window:           duration{4 * time.Hour},
			LockAhead:        duration{10 * time.Minute},
			VirtualLiquidity: 100,
			MaxBet:           50_000_000,
		},
		Scheduler: SchedulerConfig{
			SettlePoll:           duration{10 * time.Minute},
			MaxConcurrentSettles: 4,
			LockTTL:              duration{2 * time.Minute},
			ReconcileInterval:    duration{30 * time.Minute},
			ArchiveAfter:         duration{30 * 24 * time.Hour},
			ArchiveInterval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events:               []string{"settle_failed", "low_treasury", "mirror_drift"},
			LowTreasuryThreshold: 1_000_000_000,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":     true,
	"scheduler": true,
	"full":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validCommitments enumerates accepted ledger commitment levels.
var validCommitments = map[string]bool{
	"processed": true,
	"confirmed": true,
	"finalized": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, scheduler, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ledger
	if c.Ledger.RPCURL == "" {
		errs = append(errs, "ledger: rpc_url must not be empty")
	}
	if c.Ledger.ProgramID == "" {
		errs = append(errs, "ledger: program_id must not be empty")
	}
	needsKeypair := c.Mode == "scheduler" || c.Mode == "full"
	if needsKeypair && c.Ledger.KeypairPath == "" {
		errs = append(errs, "ledger: keypair_path is required for mode "+c.Mode)
	}
	if !validCommitments[c.Ledger.Commitment] {
		errs = append(errs, fmt.Sprintf("ledger: unknown commitment %q (valid: processed, confirmed, finalized)", c.Ledger.Commitment))
	}

	// Oracle
	if c.Oracle.BinanceBaseURL == "" {
		errs = append(errs, "oracle: binance_base_url must not be empty")
	}
	if c.Oracle.BinanceSymbol == "" {
		errs = append(errs, "oracle: binance_symbol must not be empty")
	}
	if c.Oracle.RequestTimeout.Duration <= 0 {
		errs = append(errs, "oracle: request_timeout must be > 0")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Market
	if c.Market.Asset == "" {
		errs = append(errs, "market: asset must not be empty")
	}
	if c.Market.Window.Duration < time.Minute {
		errs = append(errs, "market: window must be at least 1m")
	}
	if c.Market.LockAhead.Duration < 0 || c.Market.LockAhead.Duration >= c.Market.Window.Duration {
		errs = append(errs, "market: lock_ahead must be >= 0 and shorter than the window")
	}
	if c.Market.MaxBet == 0 {
		errs = append(errs, "market: max_bet must be > 0")
	}

	// Scheduler
	if c.Scheduler.SettlePoll.Duration <= 0 {
		errs = append(errs, "scheduler: settle_poll must be > 0")
	}
	if c.Scheduler.MaxConcurrentSettles < 1 {
		errs = append(errs, "scheduler: max_concurrent_settles must be >= 1")
	}
	if c.Scheduler.LockTTL.Duration <= 0 {
		errs = append(errs, "scheduler: lock_ttl must be > 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
