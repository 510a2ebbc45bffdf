// Package metaads is the advertising metrics facade over the Meta Graph API.
package metaads

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AngelCh415/metta-metrics/internal/config"
	"github.com/AngelCh415/metta-metrics/internal/ingest"
	"github.com/AngelCh415/metta-metrics/internal/metrics"
	"github.com/AngelCh415/metta-metrics/internal/models"
	"github.com/AngelCh415/metta-metrics/internal/store"
)

const (
	provider       = string(models.ProviderMetaAds)
	insightFields  = "spend,impressions,clicks,actions,date_start,date_stop"
	campaignFields = "id,name,status,objective"
	pageLimit      = "100"
	// ventana de la vista en tiempo real: ayer y hoy
	realtimeDays = 2
	// ventana por defecto del sync
	syncDays = 31
)

type Options struct {
	AdAccountID string
	// Concurrency limita los fetch de insights por campaña.
	Concurrency int
	MaxPages    int
	MaxAttempts int
	BaseDelay   time.Duration
	Cache       store.Cache
	CacheTTL    time.Duration
	Location    *time.Location
	Now         func() time.Time
	Sleep       func(ctx context.Context, d time.Duration) error
}

type Service struct {
	c    *ingest.Client
	log  *slog.Logger
	opts Options
}

// NewProvider describe la Graph API: token Bearer y versión en la URL base.
func NewProvider(cfg config.MetaConfig, rps float64) ingest.Provider {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL != "" && cfg.APIVersion != "" {
		base += "/" + strings.Trim(cfg.APIVersion, "/")
	}
	return ingest.Provider{
		Name:       provider,
		BaseURL:    base,
		AuthHeader: "Authorization",
		AuthPrefix: "Bearer ",
		Token:      cfg.AccessToken,
		Timeout:    cfg.Timeout,
		Required:   map[string]string{"adAccountId": cfg.AdAccountID},
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
	if opts.Concurrency < 1 {
		opts.Concurrency = 8
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	return &Service{c: c, log: log.With(slog.String("provider", provider)), opts: opts}
}

// ParseRange rechaza rangos invertidos y fechas futuras: la Graph API
// responde 400 a un time_range en el futuro.
func (s *Service) ParseRange(start, end string) (ingest.Range, error) {
	return ingest.ParseRange(start, end, ingest.RangeOptions{RejectFuture: true, Now: s.opts.Now(), Location: s.opts.Location})
}

// LastDays devuelve los últimos n días hasta hoy.
func (s *Service) LastDays(n int) ingest.Range {
	return ingest.LastDays(n, s.opts.Now(), s.opts.Location)
}

func (s *Service) Configured() error { return s.c.Configured() }

// TestConnection consulta la cuenta; sólo account_status == 1 cuenta como conectada.
func (s *Service) TestConnection(ctx context.Context) bool {
	if err := s.c.Configured(); err != nil {
		s.log.Warn("connection test skipped", slog.String("err", err.Error()))
		return false
	}
	q := url.Values{}
	q.Set("fields", "id,name,account_status")
	raw, err := s.c.Get(ctx, "/"+s.opts.AdAccountID, q)
	if err != nil {
		s.log.Warn("connection test failed", slog.String("err", err.Error()))
		return false
	}
	var acct struct {
		ID            string `json:"id"`
		AccountStatus int    `json:"account_status"`
	}
	if err := json.Unmarshal(raw, &acct); err != nil || acct.AccountStatus != 1 {
		s.log.Warn("ad account not active", slog.Int("account_status", acct.AccountStatus))
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

func timeRange(r ingest.Range) string {
	b, _ := json.Marshal(struct {
		Since string `json:"since"`
		Until string `json:"until"`
	}{r.Start.Format(models.DateLayout), r.End.Format(models.DateLayout)})
	return string(b)
}

func insightsQuery(r ingest.Range, daily bool) url.Values {
	q := url.Values{}
	q.Set("fields", insightFields)
	q.Set("time_range", timeRange(r))
	q.Set("limit", pageLimit)
	if daily {
		q.Set("time_increment", "1")
	}
	return q
}

func (s *Service) insights(ctx context.Context, objectID string, r ingest.Range, daily bool) ([]models.MetricsPoint, error) {
	raw, err := ingest.ListCursor(ctx, s.c, "/"+objectID+"/insights", insightsQuery(r, daily), s.opts.MaxPages)
	if err != nil {
		return nil, err
	}
	return ingest.NormalizeInsights(raw)
}

// GetAccountMetrics devuelve la serie diaria de insights de toda la cuenta.
func (s *Service) GetAccountMetrics(ctx context.Context, r ingest.Range) ([]models.MetricsPoint, error) {
	key := store.Key(provider, "account-metrics", r.Key())
	return store.Remember(ctx, s.opts.Cache, key, s.opts.CacheTTL, func(ctx context.Context) ([]models.MetricsPoint, error) {
		points, err := ingest.WithRetry(ctx, s.policy(), func(ctx context.Context) ([]models.MetricsPoint, error) {
			return s.insights(ctx, s.opts.AdAccountID, r, true)
		})
		if err != nil {
			return nil, fmt.Errorf("account metrics: %w", err)
		}
		if len(points) == 0 {
			s.log.Info("no insights for period", slog.String("period", r.Key()))
		}
		return points, nil
	})
}

// GetCampaignMetrics devuelve insights de una campaña, o de la cuenta si id es vacío.
func (s *Service) GetCampaignMetrics(ctx context.Context, r ingest.Range, campaignID string) ([]models.MetricsPoint, error) {
	object := s.opts.AdAccountID
	if id := strings.TrimSpace(campaignID); id != "" {
		object = id
	}
	key := store.Key(provider, "metrics", r.Key(), object)
	return store.Remember(ctx, s.opts.Cache, key, s.opts.CacheTTL, func(ctx context.Context) ([]models.MetricsPoint, error) {
		points, err := ingest.WithRetry(ctx, s.policy(), func(ctx context.Context) ([]models.MetricsPoint, error) {
			return s.insights(ctx, object, r, false)
		})
		if err != nil {
			return nil, fmt.Errorf("campaign metrics: %w", err)
		}
		return points, nil
	})
}

// GetCampaigns lista campañas con insights del período embebidos y deja
// sólo las que gastaron.
func (s *Service) GetCampaigns(ctx context.Context, r ingest.Range) ([]models.Campaign, error) {
	key := store.Key(provider, "campaigns", r.Key())
	return store.Remember(ctx, s.opts.Cache, key, s.opts.CacheTTL, func(ctx context.Context) ([]models.Campaign, error) {
		return s.fetchCampaigns(ctx, r)
	})
}

func (s *Service) fetchCampaigns(ctx context.Context, r ingest.Range) ([]models.Campaign, error) {
	q := url.Values{}
	q.Set("fields", fmt.Sprintf("%s,insights.time_range(%s){spend,impressions,clicks,actions}", campaignFields, timeRange(r)))
	q.Set("limit", pageLimit)
	campaigns, err := ingest.WithRetry(ctx, s.policy(), func(ctx context.Context) ([]models.Campaign, error) {
		raw, err := ingest.ListCursor(ctx, s.c, "/"+s.opts.AdAccountID+"/campaigns", q, s.opts.MaxPages)
		if err != nil {
			return nil, err
		}
		return ingest.NormalizeCampaigns(raw)
	})
	if err != nil {
		return nil, fmt.Errorf("campaigns: %w", err)
	}
	active := metrics.ActiveCampaigns(campaigns)
	s.log.Info("campaigns listed", slog.Int("total", len(campaigns)), slog.Int("with_spend", len(active)))
	return active, nil
}

// GetCampaignsWithInsights trae la lista de campañas y luego los insights
// del período de cada una en paralelo. Un fallo en cualquier campaña hace
// fallar todo el resultado.
func (s *Service) GetCampaignsWithInsights(ctx context.Context, r ingest.Range) ([]models.Campaign, error) {
	q := url.Values{}
	q.Set("fields", campaignFields)
	q.Set("limit", pageLimit)
	raw, err := ingest.ListCursor(ctx, s.c, "/"+s.opts.AdAccountID+"/campaigns", q, s.opts.MaxPages)
	if err != nil {
		return nil, err
	}
	campaigns, err := ingest.NormalizeCampaigns(raw)
	if err != nil {
		return nil, err
	}

	out := make([]models.Campaign, len(campaigns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, c := range campaigns {
		i, c := i, c
		g.Go(func() error {
			points, err := s.insights(gctx, c.ID, r, false)
			if err != nil {
				return fmt.Errorf("campaign %s insights: %w", c.ID, err)
			}
			out[i] = metrics.CampaignWithPoints(c, points)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) GetAccountSummary(ctx context.Context, r ingest.Range) (models.AccountSummary, error) {
	key := store.Key(provider, "account-summary", r.Key())
	return store.Remember(ctx, s.opts.Cache, key, s.opts.CacheTTL, func(ctx context.Context) (models.AccountSummary, error) {
		campaigns, err := ingest.WithRetry(ctx, s.policy(), func(ctx context.Context) ([]models.Campaign, error) {
			return s.GetCampaignsWithInsights(ctx, r)
		})
		if err != nil {
			return models.AccountSummary{}, fmt.Errorf("account summary: %w", err)
		}
		sum := metrics.SummarizeCampaigns(campaigns)
		s.log.Info("account summary",
			slog.String("period", r.Key()),
			slog.Float64("total_spend", sum.TotalSpend),
			slog.Int("campaigns", sum.CampaignCount))
		return sum, nil
	})
}

// GetRealTimeMetrics agrega los insights de ayer y hoy.
func (s *Service) GetRealTimeMetrics(ctx context.Context) (models.MetricsPoint, error) {
	points, err := s.GetAccountMetrics(ctx, s.LastDays(realtimeDays))
	if err != nil {
		return models.MetricsPoint{}, err
	}
	return metrics.AggregatePoints(points), nil
}

// SyncRange es el período por defecto del sync: últimos 31 días.
func (s *Service) SyncRange() ingest.Range { return s.LastDays(syncDays) }

// Sync trae serie de cuenta y campañas en paralelo, sin cache.
func (s *Service) Sync(ctx context.Context, r ingest.Range) (models.AdsSync, error) {
	var out models.AdsSync
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		points, err := ingest.WithRetry(gctx, s.policy(), func(ctx context.Context) ([]models.MetricsPoint, error) {
			return s.insights(ctx, s.opts.AdAccountID, r, true)
		})
		out.AccountMetrics = points
		return err
	})
	g.Go(func() error {
		campaigns, err := s.fetchCampaigns(gctx, r)
		out.Campaigns = campaigns
		return err
	})
	if err := g.Wait(); err != nil {
		return models.AdsSync{}, fmt.Errorf("ads sync: %w", err)
	}
	out.SyncedAt = s.opts.Now().UTC()
	return out, nil
}
