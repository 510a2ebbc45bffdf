package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AngelCh415/metta-metrics/internal/asaas"
	"github.com/AngelCh415/metta-metrics/internal/config"
	"github.com/AngelCh415/metta-metrics/internal/httpx"
	"github.com/AngelCh415/metta-metrics/internal/ingest"
	"github.com/AngelCh415/metta-metrics/internal/metaads"
	"github.com/AngelCh415/metta-metrics/internal/settings"
	"github.com/AngelCh415/metta-metrics/internal/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("config", slog.String("err", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.String("err", err.Error()))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// cache de respuestas y metas: Redis si está configurado, si no memoria + archivo
	var cache store.Cache
	var goalsStore settings.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		rs := store.NewRedisStore(rdb, "metta")
		if err := rs.Ping(ctx); err != nil {
			return fmt.Errorf("redis %s unreachable: %w", cfg.RedisAddr, err)
		}
		cache = rs
		goalsStore = settings.NewRedisStore(rdb, "metta:goals")
	} else {
		ms := store.NewMemoryStore()
		go purgeLoop(ctx, ms, cfg.CacheTTL, logger)
		cache = ms
		goalsStore = settings.NewFileStore(cfg.GoalsFile)
	}

	asaasClient := ingest.NewClient(asaas.NewProvider(cfg.Asaas, cfg.UpstreamRPS), nil, logger)
	billing := asaas.NewService(asaasClient, logger, asaas.Options{
		WalletID:    cfg.Asaas.WalletID,
		PageSize:    cfg.PageSize,
		MaxPages:    cfg.MaxPages,
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		Cache:       cache,
		CacheTTL:    cfg.CacheTTL,
		Location:    cfg.Location,
	})

	metaClient := ingest.NewClient(metaads.NewProvider(cfg.Meta, cfg.UpstreamRPS), nil, logger)
	ads := metaads.NewService(metaClient, logger, metaads.Options{
		AdAccountID: cfg.Meta.AdAccountID,
		Concurrency: cfg.InsightsConcurrency,
		MaxPages:    cfg.MaxPages,
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		Cache:       cache,
		CacheTTL:    cfg.CacheTTL,
		Location:    cfg.Location,
	})

	if !cfg.Asaas.Valid() {
		logger.Warn("asaas not configured; billing routes will answer config_missing")
	}
	if !cfg.Meta.Valid() {
		logger.Warn("meta ads not configured; ads routes will answer config_missing")
	}

	goals, err := settings.NewService(ctx, goalsStore, logger)
	if err != nil {
		return fmt.Errorf("goals: %w", err)
	}

	r := httpx.NewRouter(httpx.Deps{
		Log:         logger,
		Billing:     billing,
		Ads:         ads,
		Goals:       goals,
		CORSOrigins: cfg.CORSOrigins,
		Location:    cfg.Location,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTPTimeout,
	}
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	logger.Info("starting server", slog.String("port", cfg.Port))
	return serve(ctx, srv, ln, shutdownTimeout, logger)
}

const shutdownTimeout = 15 * time.Second

// serve atiende hasta que ctx se cancela y vuelve sólo cuando Shutdown
// terminó de drenar las requests en curso (o venció timeout).
func serve(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", slog.Duration("timeout", timeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// purgeLoop limpia entradas vencidas del cache en memoria.
func purgeLoop(ctx context.Context, ms *store.MemoryStore, ttl time.Duration, log *slog.Logger) {
	if ttl <= 0 {
		return
	}
	t := time.NewTicker(ttl)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := ms.Purge(); n > 0 {
				log.Debug("cache purge", slog.Int("removed", n), slog.Int("remaining", ms.Len()))
			}
		}
	}
}
