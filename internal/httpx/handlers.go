package httpx

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/AngelCh415/metta-metrics/internal/ingest"
	"github.com/AngelCh415/metta-metrics/internal/metrics"
	"github.com/AngelCh415/metta-metrics/internal/models"
	"github.com/AngelCh415/metta-metrics/internal/settings"
)

type connection struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
}

func connectionResult(ok bool) connection {
	if ok {
		return connection{Connected: true, Message: "connection established"}
	}
	return connection{Connected: false, Message: "connection failed"}
}

// dateBody acepta {startDate,endDate} o {data:{startDate,endDate}}.
type dateBody struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Data      *struct {
		StartDate string `json:"startDate"`
		EndDate   string `json:"endDate"`
	} `json:"data"`
}

func (b dateBody) dates() (string, string) {
	if b.StartDate == "" && b.EndDate == "" && b.Data != nil {
		return b.Data.StartDate, b.Data.EndDate
	}
	return b.StartDate, b.EndDate
}

// decodeBody lee un JSON opcional; cuerpo vacío deja dst sin tocar.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil && err != io.EOF {
		return fmt.Errorf("%w: body: %v", errInvalidRequest, err)
	}
	return nil
}

func queryDates(r *http.Request) (string, string) {
	q := r.URL.Query()
	return q.Get("startDate"), q.Get("endDate")
}

// ---- billing

func (h *handlers) billingRange(r *http.Request) (ingest.Range, error) {
	return h.billing.ParseRange(queryDates(r))
}

func (h *handlers) billingTest(w http.ResponseWriter, r *http.Request) {
	writeData(w, connectionResult(h.billing.TestConnection(r.Context())))
}

func (h *handlers) billingMetrics(w http.ResponseWriter, r *http.Request) {
	rg, err := h.billingRange(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	snap, err := h.billing.GetMetrics(r.Context(), rg)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, snap)
}

func (h *handlers) billingFinancialSummary(w http.ResponseWriter, r *http.Request) {
	rg, err := h.billingRange(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	sum, err := h.billing.GetFinancialSummary(r.Context(), rg)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, sum)
}

func (h *handlers) billingPayments(w http.ResponseWriter, r *http.Request) {
	rg, err := h.billingRange(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	rows, err := h.billing.GetPayments(r.Context(), rg, r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, nonNil(rows))
}

func (h *handlers) billingSubscriptions(w http.ResponseWriter, r *http.Request) {
	rg, err := h.billingRange(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	rows, err := h.billing.GetSubscriptions(r.Context(), rg, r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, nonNil(rows))
}

func (h *handlers) billingCustomers(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, h.log, fmt.Errorf("%w: limit %q", errInvalidRequest, raw))
			return
		}
		limit = n
	}
	rows, err := h.billing.GetCustomers(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, nonNil(rows))
}

func (h *handlers) billingSync(w http.ResponseWriter, r *http.Request) {
	var body dateBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	rg, err := h.billing.ParseRange(body.dates())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	out, err := h.billing.Sync(r.Context(), rg)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, out)
}

// ---- ads

func (h *handlers) adsRange(r *http.Request) (ingest.Range, error) {
	return h.ads.ParseRange(queryDates(r))
}

func (h *handlers) adsTest(w http.ResponseWriter, r *http.Request) {
	writeData(w, connectionResult(h.ads.TestConnection(r.Context())))
}

func (h *handlers) adsAccountMetrics(w http.ResponseWriter, r *http.Request) {
	rg, err := h.adsRange(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	points, err := h.ads.GetAccountMetrics(r.Context(), rg)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, nonNil(points))
}

func (h *handlers) adsMetrics(w http.ResponseWriter, r *http.Request) {
	rg, err := h.adsRange(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	points, err := h.ads.GetCampaignMetrics(r.Context(), rg, r.URL.Query().Get("campaignId"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, nonNil(points))
}

func (h *handlers) adsCampaigns(w http.ResponseWriter, r *http.Request) {
	rg, err := h.adsRange(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	rows, err := h.ads.GetCampaigns(r.Context(), rg)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, nonNil(rows))
}

func (h *handlers) adsRealtime(w http.ResponseWriter, r *http.Request) {
	point, err := h.ads.GetRealTimeMetrics(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, point)
}

func (h *handlers) adsAccountSummary(w http.ResponseWriter, r *http.Request) {
	rg, err := h.adsRange(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.writeAccountSummary(w, r, rg)
}

func (h *handlers) adsAccountSummaryBody(w http.ResponseWriter, r *http.Request) {
	var body dateBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	rg, err := h.ads.ParseRange(body.dates())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.writeAccountSummary(w, r, rg)
}

func (h *handlers) writeAccountSummary(w http.ResponseWriter, r *http.Request, rg ingest.Range) {
	sum, err := h.ads.GetAccountSummary(r.Context(), rg)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, sum)
}

// adsSync usa el período del cuerpo si viene; si no, los últimos 30 días.
func (h *handlers) adsSync(w http.ResponseWriter, r *http.Request) {
	var body dateBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	rg := h.ads.SyncRange()
	if start, end := body.dates(); start != "" || end != "" {
		var err error
		if rg, err = h.ads.ParseRange(start, end); err != nil {
			writeError(w, r, h.log, err)
			return
		}
	}
	out, err := h.ads.Sync(r.Context(), rg)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, out)
}

// ---- cross-provider

func (h *handlers) report(w http.ResponseWriter, r *http.Request) {
	if err := h.billing.Configured(); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.ads.Configured(); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	rg, err := h.adsRange(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	var snap models.MetricsSnapshot
	var ads models.AccountSummary
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		snap, err = h.billing.GetMetrics(ctx, rg)
		return err
	})
	g.Go(func() (err error) {
		ads, err = h.ads.GetAccountSummary(ctx, rg)
		return err
	})
	if err := g.Wait(); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, metrics.BuildReport(snap, ads, rg.Period()))
}

// ---- goals

func (h *handlers) getGoals(w http.ResponseWriter, r *http.Request) {
	writeData(w, h.goals.Get())
}

// putGoals sólo cambia las metas presentes en el cuerpo.
func (h *handlers) putGoals(w http.ResponseWriter, r *http.Request) {
	var p settings.Patch
	if err := decodeBody(r, &p); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	out, err := h.goals.Merge(r.Context(), p)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, out)
}

func (h *handlers) patchGoal(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value *float64 `json:"value"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if body.Value == nil {
		writeError(w, r, h.log, fmt.Errorf("%w: value is required", errInvalidRequest))
		return
	}
	out, err := h.goals.Update(r.Context(), chi.URLParam(r, "kind"), *body.Value)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, out)
}

// goalsProgress compara la facturación del período contra la meta.
func (h *handlers) goalsProgress(w http.ResponseWriter, r *http.Request) {
	period, err := settings.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	start, end := period.Window(h.now(), h.loc)
	snap, err := h.billing.GetMetrics(r.Context(), ingest.Range{Start: start, End: end})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeData(w, settings.ProgressFor(h.goals.Get(), period, snap.TotalSales))
}

// las listas vacías salen como [] y no como null
func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
