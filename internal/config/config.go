package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string
	HTTPTimeout time.Duration
	LogLevel    slog.Level
	Location    *time.Location
	CORSOrigins []string

	Asaas AsaasConfig
	Meta  MetaConfig

	RetryMaxAttempts    int
	RetryBaseDelay      time.Duration
	UpstreamRPS         float64
	InsightsConcurrency int
	PageSize            int
	MaxPages            int

	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	GoalsFile     string
}

type AsaasConfig struct {
	APIKey   string
	BaseURL  string
	WalletID string
	Timeout  time.Duration
}

// Valid: clave, URL base y wallet presentes.
func (c AsaasConfig) Valid() bool {
	return c.APIKey != "" && c.BaseURL != "" && c.WalletID != ""
}

type MetaConfig struct {
	AccessToken string
	AdAccountID string
	APIVersion  string
	BaseURL     string
	Timeout     time.Duration
}

func (c MetaConfig) Valid() bool {
	return c.AccessToken != "" && c.AdAccountID != "" && c.BaseURL != ""
}

type configFile struct {
	Service struct {
		Port        string   `yaml:"port"`
		LogLevel    string   `yaml:"log_level"`
		Timezone    string   `yaml:"timezone"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"service"`
	Asaas struct {
		BaseURL        string `yaml:"base_url"`
		WalletID       string `yaml:"wallet_id"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"asaas"`
	Meta struct {
		AdAccountID    string `yaml:"ad_account_id"`
		APIVersion     string `yaml:"api_version"`
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"meta"`
	Upstream struct {
		RetryMaxAttempts    int     `yaml:"retry_max_attempts"`
		RetryBaseDelayMS    int     `yaml:"retry_base_delay_ms"`
		RPS                 float64 `yaml:"rps"`
		InsightsConcurrency int     `yaml:"insights_concurrency"`
		PageSize            int     `yaml:"page_size"`
		MaxPages            int     `yaml:"max_pages"`
	} `yaml:"upstream"`
	Cache struct {
		TTLSeconds int    `yaml:"ttl_seconds"`
		RedisAddr  string `yaml:"redis_addr"`
	} `yaml:"cache"`
	GoalsFile string `yaml:"goals_file"`
}

func defaults() Config {
	return Config{
		Port:        "8080",
		HTTPTimeout: 15 * time.Second,
		LogLevel:    slog.LevelInfo,
		Location:    time.UTC,
		CORSOrigins: []string{"http://localhost:3000"},
		Asaas: AsaasConfig{
			BaseURL: "https://api.asaas.com/v3",
			Timeout: 30 * time.Second,
		},
		Meta: MetaConfig{
			APIVersion: "v19.0",
			BaseURL:    "https://graph.facebook.com",
			Timeout:    30 * time.Second,
		},
		RetryMaxAttempts:    3,
		RetryBaseDelay:      time.Second,
		InsightsConcurrency: 8,
		PageSize:            100,
		MaxPages:            50,
		CacheTTL:            60 * time.Second,
		GoalsFile:           "goals.json",
	}
}

// Load arma la config: defaults -> YAML opcional -> .env -> entorno.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			var f configFile
			if err := yaml.Unmarshal(raw, &f); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
			applyFile(&cfg, f)
		}
	}

	// .env es opcional
	_ = godotenv.Load()

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.HTTPTimeout = envSeconds("HTTP_TIMEOUT_SECONDS", cfg.HTTPTimeout)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = parseLevel(v)
	}
	if tz := os.Getenv("TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return Config{}, fmt.Errorf("load timezone %q: %w", tz, err)
		}
		cfg.Location = loc
	}
	cfg.CORSOrigins = envCSV("CORS_ORIGINS", cfg.CORSOrigins)

	cfg.Asaas.APIKey = envOr("ASAAS_API_KEY", cfg.Asaas.APIKey)
	cfg.Asaas.BaseURL = envOr("ASAAS_BASE_URL", cfg.Asaas.BaseURL)
	cfg.Asaas.WalletID = envOr("ASAAS_WALLET_ID", cfg.Asaas.WalletID)
	cfg.Asaas.Timeout = envSeconds("ASAAS_TIMEOUT_SECONDS", cfg.Asaas.Timeout)

	cfg.Meta.AccessToken = envOr("META_ACCESS_TOKEN", cfg.Meta.AccessToken)
	cfg.Meta.AdAccountID = normalizeAccountID(envOr("META_AD_ACCOUNT_ID", cfg.Meta.AdAccountID))
	cfg.Meta.APIVersion = envOr("META_API_VERSION", cfg.Meta.APIVersion)
	cfg.Meta.BaseURL = envOr("META_BASE_URL", cfg.Meta.BaseURL)
	cfg.Meta.Timeout = envSeconds("META_TIMEOUT_SECONDS", cfg.Meta.Timeout)

	cfg.RetryMaxAttempts = envInt("RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts)
	cfg.RetryBaseDelay = time.Duration(envInt("RETRY_BASE_DELAY_MS", int(cfg.RetryBaseDelay.Milliseconds()))) * time.Millisecond
	cfg.UpstreamRPS = envFloat("UPSTREAM_RPS", cfg.UpstreamRPS)
	cfg.InsightsConcurrency = envInt("INSIGHTS_CONCURRENCY", cfg.InsightsConcurrency)
	cfg.PageSize = envInt("PAGE_SIZE", cfg.PageSize)
	cfg.MaxPages = envInt("MAX_PAGES", cfg.MaxPages)

	cfg.CacheTTL = envSeconds("CACHE_TTL_SECONDS", cfg.CacheTTL)
	cfg.RedisAddr = envOr("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envOr("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.GoalsFile = envOr("GOALS_FILE", cfg.GoalsFile)

	if cfg.RetryMaxAttempts < 1 {
		cfg.RetryMaxAttempts = 1
	}
	if cfg.InsightsConcurrency < 1 {
		cfg.InsightsConcurrency = 1
	}
	return cfg, nil
}

func applyFile(cfg *Config, f configFile) {
	if f.Service.Port != "" {
		cfg.Port = f.Service.Port
	}
	if f.Service.LogLevel != "" {
		cfg.LogLevel = parseLevel(f.Service.LogLevel)
	}
	if f.Service.Timezone != "" {
		if loc, err := time.LoadLocation(f.Service.Timezone); err == nil {
			cfg.Location = loc
		}
	}
	if len(f.Service.CORSOrigins) > 0 {
		cfg.CORSOrigins = trimNonEmpty(f.Service.CORSOrigins)
	}
	if f.Asaas.BaseURL != "" {
		cfg.Asaas.BaseURL = f.Asaas.BaseURL
	}
	if f.Asaas.WalletID != "" {
		cfg.Asaas.WalletID = f.Asaas.WalletID
	}
	if f.Asaas.TimeoutSeconds > 0 {
		cfg.Asaas.Timeout = time.Duration(f.Asaas.TimeoutSeconds) * time.Second
	}
	if f.Meta.AdAccountID != "" {
		cfg.Meta.AdAccountID = normalizeAccountID(f.Meta.AdAccountID)
	}
	if f.Meta.APIVersion != "" {
		cfg.Meta.APIVersion = f.Meta.APIVersion
	}
	if f.Meta.BaseURL != "" {
		cfg.Meta.BaseURL = f.Meta.BaseURL
	}
	if f.Meta.TimeoutSeconds > 0 {
		cfg.Meta.Timeout = time.Duration(f.Meta.TimeoutSeconds) * time.Second
	}
	if f.Upstream.RetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = f.Upstream.RetryMaxAttempts
	}
	if f.Upstream.RetryBaseDelayMS > 0 {
		cfg.RetryBaseDelay = time.Duration(f.Upstream.RetryBaseDelayMS) * time.Millisecond
	}
	if f.Upstream.RPS > 0 {
		cfg.UpstreamRPS = f.Upstream.RPS
	}
	if f.Upstream.InsightsConcurrency > 0 {
		cfg.InsightsConcurrency = f.Upstream.InsightsConcurrency
	}
	if f.Upstream.PageSize > 0 {
		cfg.PageSize = f.Upstream.PageSize
	}
	if f.Upstream.MaxPages > 0 {
		cfg.MaxPages = f.Upstream.MaxPages
	}
	if f.Cache.TTLSeconds > 0 {
		cfg.CacheTTL = time.Duration(f.Cache.TTLSeconds) * time.Second
	}
	if f.Cache.RedisAddr != "" {
		cfg.RedisAddr = f.Cache.RedisAddr
	}
	if f.GoalsFile != "" {
		cfg.GoalsFile = f.GoalsFile
	}
}

// la Graph API exige el prefijo act_
func normalizeAccountID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, "act_") {
		return id
	}
	return "act_" + id
}

func parseLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envInt(k string, def int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}

func envFloat(k string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(k), 64)
	if err != nil {
		return def
	}
	return v
}

func envSeconds(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			return d
		}
	}
	return def
}

func envCSV(k string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(k))
	if raw == "" {
		return def
	}
	return trimNonEmpty(strings.Split(raw, ","))
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
