// Package asaas is the billing metrics facade over the Asaas payments API.
//
// The listing endpoints do not filter reliably by date, so every read pulls a
// broad window (all pages of the wallet) and the aggregator decides which
// records belong to the requested period.
package asaas

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AngelCh415/metta-metrics/internal/config"
	"github.com/AngelCh415/metta-metrics/internal/ingest"
	"github.com/AngelCh415/metta-metrics/internal/metrics"
	"github.com/AngelCh415/metta-metrics/internal/models"
	"github.com/AngelCh415/metta-metrics/internal/store"
	"github.com/AngelCh415/metta-metrics/internal/telemetry"
)

const provider = string(models.ProviderAsaas)

type Options struct {
	WalletID    string
	PageSize    int
	MaxPages    int
	MaxAttempts int
	BaseDelay   time.Duration
	Cache       store.Cache
	CacheTTL    time.Duration
	Location    *time.Location
	Now         func() time.Time
	// Sleep permite acelerar los reintentos en pruebas.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Service struct {
	c    *ingest.Client
	log  *slog.Logger
	opts Options
}

// NewProvider describe Asaas para el cliente HTTP: header access_token.
func NewProvider(cfg config.AsaasConfig, rps float64) ingest.Provider {
	return ingest.Provider{
		Name:       provider,
		BaseURL:    cfg.BaseURL,
		AuthHeader: "access_token",
		Token:      cfg.APIKey,
		Timeout:    cfg.Timeout,
		Required:   map[string]string{"walletId": cfg.WalletID},
		RPS:        rps,
	}
}

func NewService(c *ingest.Client, log *slog.Logger, opts Options) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	return &Service{c: c, log: log.With(slog.String("provider", provider)), opts: opts}
}

// ParseRange valida el período; facturación admite fechas futuras.
func (s *Service) ParseRange(start, end string) (ingest.Range, error) {
	return ingest.ParseRange(start, end, ingest.RangeOptions{Now: s.opts.Now(), Location: s.opts.Location})
}

func (s *Service) Configured() error { return s.c.Configured() }

// TestConnection pide un pago; nunca devuelve error.
func (s *Service) TestConnection(ctx context.Context) bool {
	if err := s.c.Configured(); err != nil {
		s.log.Warn("connection test skipped", slog.String("err", err.Error()))
		return false
	}
	q := url.Values{}
	q.Set("limit", "1")
	q.Set("walletId", s.opts.WalletID)
	if _, err := s.c.Get(ctx, "/payments", q); err != nil {
		s.log.Warn("connection test failed", slog.String("err", err.Error()))
		return false
	}
	return true
}

func (s *Service) policy() ingest.Policy {
	return ingest.Policy{
		Provider:    provider,
		MaxAttempts: s.opts.MaxAttempts,
		BaseDelay:   s.opts.BaseDelay,
		Check:       s.TestConnection,
		Sleep:       s.opts.Sleep,
		Log:         s.log,
	}
}

func (s *Service) listQuery(status string) url.Values {
	q := url.Values{}
	q.Set("walletId", s.opts.WalletID)
	if status != "" {
		q.Set("status", status)
	}
	return q
}

func (s *Service) fetchPayments(ctx context.Context, status string) ([]models.Payment, error) {
	return ingest.WithRetry(ctx, s.policy(), func(ctx context.Context) ([]models.Payment, error) {
		raw, err := ingest.ListOffset(ctx, s.c, "/payments", s.listQuery(status), s.opts.PageSize, s.opts.MaxPages)
		if err != nil {
			return nil, err
		}
		return ingest.NormalizePayments(raw)
	})
}

func (s *Service) fetchSubscriptions(ctx context.Context, status string) ([]models.Subscription, error) {
	return ingest.WithRetry(ctx, s.policy(), func(ctx context.Context) ([]models.Subscription, error) {
		raw, err := ingest.ListOffset(ctx, s.c, "/subscriptions", s.listQuery(status), s.opts.PageSize, s.opts.MaxPages)
		if err != nil {
			return nil, err
		}
		return ingest.NormalizeSubscriptions(raw)
	})
}

func (s *Service) GetPayments(ctx context.Context, r ingest.Range, status string) ([]models.Payment, error) {
	key := store.Key(provider, "payments", r.Key(), status)
	return store.Remember(ctx, s.opts.Cache, key, s.opts.CacheTTL, func(ctx context.Context) ([]models.Payment, error) {
		all, err := s.fetchPayments(ctx, status)
		if err != nil {
			return nil, err
		}
		out := metrics.FilterByDate(all, r.Start, r.End)
		s.log.Info("payments filtered", slog.String("period", r.Key()), slog.Int("kept", len(out)), slog.Int("fetched", len(all)))
		return out, nil
	})
}

func (s *Service) GetSubscriptions(ctx context.Context, r ingest.Range, status string) ([]models.Subscription, error) {
	key := store.Key(provider, "subscriptions", r.Key(), status)
	return store.Remember(ctx, s.opts.Cache, key, s.opts.CacheTTL, func(ctx context.Context) ([]models.Subscription, error) {
		all, err := s.fetchSubscriptions(ctx, status)
		if err != nil {
			return nil, err
		}
		return metrics.FilterByDate(all, r.Start, r.End), nil
	})
}

func (s *Service) GetCustomers(ctx context.Context, limit int) ([]models.Customer, error) {
	if limit <= 0 {
		limit = 100
	}
	key := store.Key(provider, "customers", strconv.Itoa(limit))
	return store.Remember(ctx, s.opts.Cache, key, s.opts.CacheTTL, func(ctx context.Context) ([]models.Customer, error) {
		return ingest.WithRetry(ctx, s.policy(), func(ctx context.Context) ([]models.Customer, error) {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			q.Set("walletId", s.opts.WalletID)
			raw, err := s.c.Get(ctx, "/customers", q)
			if err != nil {
				return nil, err
			}
			return ingest.NormalizeCustomers(raw)
		})
	})
}

// collect trae pagos y suscripciones en paralelo; el primer error cancela al otro.
// Con fresh se saltea el cache.
func (s *Service) collect(ctx context.Context, r ingest.Range, fresh bool) ([]models.Payment, []models.Subscription, error) {
	var payments []models.Payment
	var subs []models.Subscription
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if fresh {
			all, err := s.fetchPayments(gctx, "")
			payments = metrics.FilterByDate(all, r.Start, r.End)
			return err
		}
		var err error
		payments, err = s.GetPayments(gctx, r, "")
		return err
	})
	g.Go(func() error {
		if fresh {
			all, err := s.fetchSubscriptions(gctx, "")
			subs = metrics.FilterByDate(all, r.Start, r.End)
			return err
		}
		var err error
		subs, err = s.GetSubscriptions(gctx, r, "")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return payments, subs, nil
}

func (s *Service) snapshot(r ingest.Range, payments []models.Payment, subs []models.Subscription) models.MetricsSnapshot {
	snap := metrics.SummarizePayments(payments, subs)
	snap.Period = r.Period()
	for status, n := range metrics.UnmappedStatuses(payments) {
		telemetry.UnmappedPaymentStatus.WithLabelValues(status).Add(float64(n))
		s.log.Warn("payment status outside every bucket", slog.String("status", status), slog.Int("count", n))
	}
	s.log.Info("billing metrics",
		slog.String("period", r.Key()),
		slog.Int("total_payments", snap.TotalPayments),
		slog.Int("confirmed", snap.ConfirmedPayments),
		slog.Float64("total_sales", snap.TotalSales))
	return snap
}

func (s *Service) GetMetrics(ctx context.Context, r ingest.Range) (models.MetricsSnapshot, error) {
	payments, subs, err := s.collect(ctx, r, false)
	if err != nil {
		return models.MetricsSnapshot{}, fmt.Errorf("billing metrics: %w", err)
	}
	return s.snapshot(r, payments, subs), nil
}

func (s *Service) GetFinancialSummary(ctx context.Context, r ingest.Range) (models.FinancialSummary, error) {
	payments, subs, err := s.collect(ctx, r, false)
	if err != nil {
		return models.FinancialSummary{}, fmt.Errorf("financial summary: %w", err)
	}
	return metrics.SummarizeFinancial(payments, s.snapshot(r, payments, subs)), nil
}

// Sync devuelve métricas, resumen y el listado de pagos de una sola lectura.
func (s *Service) Sync(ctx context.Context, r ingest.Range) (models.BillingSync, error) {
	payments, subs, err := s.collect(ctx, r, true)
	if err != nil {
		return models.BillingSync{}, fmt.Errorf("billing sync: %w", err)
	}
	snap := s.snapshot(r, payments, subs)
	return models.BillingSync{
		Metrics:          snap,
		FinancialSummary: metrics.SummarizeFinancial(payments, snap),
		Payments:         payments,
		SyncedAt:         s.opts.Now().UTC(),
	}, nil
}
