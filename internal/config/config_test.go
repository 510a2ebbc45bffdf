package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8080" || cfg.Asaas.BaseURL != "https://api.asaas.com/v3" || cfg.Meta.APIVersion != "v19.0" {
		t.Fatalf("got %+v", cfg)
	}
	if cfg.RetryMaxAttempts != 3 || cfg.RetryBaseDelay != time.Second {
		t.Fatalf("retry %d %s", cfg.RetryMaxAttempts, cfg.RetryBaseDelay)
	}
	if cfg.Asaas.Valid() || cfg.Meta.Valid() {
		t.Fatal("no credentials must mean not configured")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
service:
  port: "9090"
  log_level: debug
asaas:
  wallet_id: wallet-from-file
meta:
  ad_account_id: "123"
upstream:
  retry_max_attempts: 5
  insights_concurrency: 4
cache:
  ttl_seconds: 30
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "7070")
	t.Setenv("ASAAS_API_KEY", "key")
	t.Setenv("META_ACCESS_TOKEN", "tok")
	t.Setenv("RETRY_BASE_DELAY_MS", "250")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("env must win over file, port=%s", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.RetryMaxAttempts != 5 || cfg.InsightsConcurrency != 4 || cfg.CacheTTL != 30*time.Second {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.RetryBaseDelay != 250*time.Millisecond {
		t.Fatalf("base delay %s", cfg.RetryBaseDelay)
	}
	if cfg.Meta.AdAccountID != "act_123" {
		t.Fatalf("account id %s", cfg.Meta.AdAccountID)
	}
	if !cfg.Asaas.Valid() || !cfg.Meta.Valid() {
		t.Fatalf("expected both providers configured: %+v %+v", cfg.Asaas.WalletID, cfg.Meta.AdAccountID)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("cors %v", cfg.CORSOrigins)
	}
}

func TestLoadRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("service: [unclosed"), 0o644)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err != nil {
		t.Fatalf("missing file must be ignored: %v", err)
	}
}

func TestLoadBadTimezone(t *testing.T) {
	t.Setenv("TIMEZONE", "Not/AZone")
	if _, err := Load(""); err == nil {
		t.Fatal("expected timezone error")
	}
}
