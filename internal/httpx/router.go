package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AngelCh415/metta-metrics/internal/asaas"
	"github.com/AngelCh415/metta-metrics/internal/metaads"
	"github.com/AngelCh415/metta-metrics/internal/settings"
	"github.com/AngelCh415/metta-metrics/internal/utils"
)

type Deps struct {
	Log         *slog.Logger
	Billing     *asaas.Service
	Ads         *metaads.Service
	Goals       *settings.Service
	CORSOrigins []string
	Location    *time.Location
	Now         func() time.Time
}

type handlers struct {
	log     *slog.Logger
	billing *asaas.Service
	ads     *metaads.Service
	goals   *settings.Service
	loc     *time.Location
	now     func() time.Time
}

func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &handlers{log: d.Log, billing: d.Billing, ads: d.Ads, goals: d.Goals, loc: d.Location, now: d.Now}

	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(d.Log))
	mux.Use(utils.Metrics)
	if len(d.CORSOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", h.ready)
	mux.Handle("/metrics", promhttp.Handler())

	mux.Route("/api", func(api chi.Router) {
		api.Route("/asaas", func(ar chi.Router) {
			ar.Use(h.requireConfig(h.billing.Configured))
			ar.Get("/test", h.billingTest)
			ar.Get("/metrics", h.billingMetrics)
			ar.Get("/financial-summary", h.billingFinancialSummary)
			ar.Get("/payments", h.billingPayments)
			ar.Get("/subscriptions", h.billingSubscriptions)
			ar.Get("/customers", h.billingCustomers)
			ar.Post("/sync", h.billingSync)
		})
		api.Route("/meta-ads", func(mr chi.Router) {
			mr.Use(h.requireConfig(h.ads.Configured))
			mr.Get("/test", h.adsTest)
			mr.Get("/account-metrics", h.adsAccountMetrics)
			mr.Get("/metrics", h.adsMetrics)
			mr.Get("/campaigns", h.adsCampaigns)
			mr.Get("/realtime", h.adsRealtime)
			mr.Get("/account-summary", h.adsAccountSummary)
			mr.Post("/account-summary", h.adsAccountSummaryBody)
			mr.Post("/sync", h.adsSync)
		})
		api.Get("/report", h.report)
		api.Route("/goals", func(gr chi.Router) {
			gr.Get("/", h.getGoals)
			gr.Put("/", h.putGoals)
			gr.Get("/progress", h.goalsProgress)
			gr.Patch("/{kind}", h.patchGoal)
		})
	})

	return mux
}

// requireConfig corta con config_missing antes de tocar el proveedor.
func (h *handlers) requireConfig(check func() error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := check(); err != nil {
				writeError(w, r, h.log, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	status := map[string]bool{
		"asaas":    h.billing.Configured() == nil,
		"meta_ads": h.ads.Configured() == nil,
	}
	code := http.StatusOK
	for _, ok := range status {
		if !ok {
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, envelope{Success: code == http.StatusOK, Data: status})
}
