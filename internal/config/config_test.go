package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Ledger.ProgramID = "9fAJRwzjj7dBMt7fimMo6jKwwsYFD4k9eoMPD8MwBnWb"
	cfg.Ledger.KeypairPath = "/etc/candled/admin.json"
	return cfg
}

func TestValidate_AcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "turbo" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"missing program id", func(c *Config) { c.Ledger.ProgramID = "" }},
		{"missing keypair in full mode", func(c *Config) { c.Ledger.KeypairPath = "" }},
		{"bad commitment", func(c *Config) { c.Ledger.Commitment = "instant" }},
		{"tiny window", func(c *Config) { c.Market.Window = duration{time.Second} }},
		{"lock ahead exceeds window", func(c *Config) { c.Market.LockAhead = duration{5 * time.Hour} }},
		{"zero max bet", func(c *Config) { c.Market.MaxBet = 0 }},
		{"zero settle poll", func(c *Config) { c.Scheduler.SettlePoll = duration{0} }},
		{"bad server port", func(c *Config) { c.Server.Port = 99999 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidate_KeypairOptionalInServeMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "serve"
	cfg.Ledger.KeypairPath = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("serve mode should not require a keypair: %v", err)
	}
}

func TestLoad_MergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "scheduler"

[ledger]
program_id = "9fAJRwzjj7dBMt7fimMo6jKwwsYFD4k9eoMPD8MwBnWb"
keypair_path = "/tmp/admin.json"

[market]
window = "1h"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CANDLED_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("CANDLED_MARKET_MAX_BET", "25000000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "scheduler" {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if cfg.Market.Window.Duration != time.Hour {
		t.Errorf("window = %v, want 1h", cfg.Market.Window.Duration)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("env override lost: addr = %q", cfg.Redis.Addr)
	}
	if cfg.Market.MaxBet != 25_000_000 {
		t.Errorf("env override lost: max_bet = %d", cfg.Market.MaxBet)
	}
	// Untouched fields keep their defaults.
	if cfg.Database.Port != 5432 {
		t.Errorf("default lost: database port = %d", cfg.Database.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config should validate: %v", err)
	}
}

func TestRedactedConfig_HidesSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"
	cfg.Server.AdminToken = "hunter2"

	red := RedactedConfig(&cfg)
	for name, got := range map[string]string{
		"database password": red.Database.Password,
		"redis password":    red.Redis.Password,
		"s3 secret key":     red.S3.SecretKey,
		"admin token":       red.Server.AdminToken,
	} {
		if got != "***" {
			t.Errorf("%s not redacted: %q", name, got)
		}
	}
	if cfg.Database.Password != "hunter2" {
		t.Error("redaction must not mutate the original")
	}
}
