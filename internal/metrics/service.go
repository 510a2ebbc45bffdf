package metrics

import (
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/AngelCh415/metta-metrics/internal/ingest"
	"github.com/AngelCh415/metta-metrics/internal/models"
)

// Dated es cualquier registro con fecha de referencia.
type Dated interface {
	Day() time.Time
}

// FilterByDate conserva los registros con start <= día <= end (días calendario).
func FilterByDate[T Dated](records []T, start, end time.Time) []T {
	from, to := day(start), day(end)
	return lo.Filter(records, func(r T, _ int) bool {
		d := day(r.Day())
		if d.IsZero() {
			return false
		}
		return !d.Before(from) && !d.After(to)
	})
}

// SummarizePayments cuenta por bucket y mezcla ventas confirmadas con
// suscripciones activas.
func SummarizePayments(payments []models.Payment, subs []models.Subscription) models.MetricsSnapshot {
	s := models.MetricsSnapshot{TotalPayments: len(payments)}
	confirmed := decimal.Zero
	for _, p := range payments {
		switch p.Bucket {
		case models.BucketConfirmed:
			s.ConfirmedPayments++
			confirmed = confirmed.Add(money(p.Value))
		case models.BucketPending:
			s.PendingPayments++
		case models.BucketOverdue:
			s.OverduePayments++
		case models.BucketCancelled:
			s.CancelledPayments++
		default:
			s.UnmappedPayments++
		}
	}

	recurring := sumMoney(lo.Filter(subs, func(sub models.Subscription, _ int) bool {
		return sub.Status == models.SubscriptionActive
	}), func(sub models.Subscription) float64 { return sub.Value })

	total := confirmed.Add(recurring)
	s.TotalSales = total.InexactFloat64()
	if s.ConfirmedPayments > 0 {
		s.AverageTicket = total.Div(decimal.NewFromInt(int64(s.ConfirmedPayments))).Round(2).InexactFloat64()
	}
	if s.TotalPayments > 0 {
		s.ConversionRate = round(float64(s.ConfirmedPayments)/float64(s.TotalPayments)*100, 2)
	}
	return s
}

// UnmappedStatuses agrupa los estados que no cayeron en ningún bucket.
func UnmappedStatuses(payments []models.Payment) map[string]int {
	out := map[string]int{}
	for _, p := range payments {
		if p.Bucket == models.BucketUnmapped {
			out[p.Status]++
		}
	}
	return out
}

func SummarizeFinancial(payments []models.Payment, snap models.MetricsSnapshot) models.FinancialSummary {
	byBucket := func(b models.Bucket) float64 {
		return sumMoney(lo.Filter(payments, func(p models.Payment, _ int) bool { return p.Bucket == b }),
			func(p models.Payment) float64 { return p.Value }).InexactFloat64()
	}
	return models.FinancialSummary{
		TotalRevenue:     snap.TotalSales,
		TotalPayments:    snap.TotalPayments,
		ConfirmedRevenue: byBucket(models.BucketConfirmed),
		PendingRevenue:   byBucket(models.BucketPending),
		OverdueRevenue:   byBucket(models.BucketOverdue),
		AverageTicket:    snap.AverageTicket,
		ConversionRate:   snap.ConversionRate,
		Period:           snap.Period,
	}
}

// SummarizeCampaigns descarta campañas sin gasto antes de contar y sumar.
func SummarizeCampaigns(campaigns []models.Campaign) models.AccountSummary {
	active := ActiveCampaigns(campaigns)
	var out models.AccountSummary
	out.CampaignCount = len(active)
	out.TotalSpend = sumMoney(active, func(c models.Campaign) float64 { return c.Spend }).InexactFloat64()
	for _, c := range active {
		out.TotalImpressions += c.Impressions
		out.TotalClicks += c.Clicks
		out.TotalLeads += c.Leads
	}
	cpc, cpm, ctr := ingest.Ratios(out.TotalSpend, out.TotalImpressions, out.TotalClicks)
	out.AverageCPC, out.AverageCPM, out.AverageCTR = round(cpc, 4), round(cpm, 4), round(ctr, 4)
	return out
}

func ActiveCampaigns(campaigns []models.Campaign) []models.Campaign {
	return lo.Filter(campaigns, func(c models.Campaign, _ int) bool { return c.Spend > 0 })
}

// AggregatePoints suma una serie de insights y recalcula los ratios.
func AggregatePoints(points []models.MetricsPoint) models.MetricsPoint {
	var out models.MetricsPoint
	if len(points) == 0 {
		return out
	}
	sorted := append([]models.MetricsPoint(nil), points...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Day().Before(sorted[j].Day()) })

	out.Spend = sumMoney(sorted, func(p models.MetricsPoint) float64 { return p.Spend }).InexactFloat64()
	for _, p := range sorted {
		out.Impressions += p.Impressions
		out.Clicks += p.Clicks
		out.Leads += p.Leads
	}
	cpc, cpm, ctr := ingest.Ratios(out.Spend, out.Impressions, out.Clicks)
	out.CPC, out.CPM, out.CTR = round(cpc, 4), round(cpm, 4), round(ctr, 4)
	out.DateStart = sorted[0].DateStart
	out.DateStop = sorted[len(sorted)-1].DateStop
	out.Date = sorted[0].Day()
	return out
}

// CampaignWithPoints reemplaza las métricas de la campaña por las del período.
func CampaignWithPoints(c models.Campaign, points []models.MetricsPoint) models.Campaign {
	agg := AggregatePoints(points)
	c.Spend = agg.Spend
	c.Impressions = agg.Impressions
	c.Clicks = agg.Clicks
	c.Leads = agg.Leads
	return c
}

// BuildReport cruza ventas con inversión: ROAS, ROI, CAC, LTV/CAC.
func BuildReport(snap models.MetricsSnapshot, ads models.AccountSummary, period models.Period) models.Report {
	r := models.Report{
		TotalSales:    snap.TotalSales,
		TotalSpend:    ads.TotalSpend,
		TotalLeads:    ads.TotalLeads,
		AverageTicket: snap.AverageTicket,
		Period:        period,
	}
	if ads.TotalSpend > 0 {
		r.ROAS = round(snap.TotalSales/ads.TotalSpend, 2)
		r.ROI = round((snap.TotalSales-ads.TotalSpend)/ads.TotalSpend*100, 2)
	}
	if snap.TotalPayments > 0 {
		r.CAC = round(ads.TotalSpend/float64(snap.TotalPayments), 2)
	}
	if r.CAC > 0 {
		r.LTVToCAC = round(snap.AverageTicket/r.CAC, 2)
	}
	if ads.TotalLeads > 0 {
		r.CostPerLead = round(ads.TotalSpend/float64(ads.TotalLeads), 2)
	}
	return r
}

func money(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func sumMoney[T any](rows []T, value func(T) float64) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(money(value(r)))
	}
	return total
}

func round(f float64, places int32) float64 {
	return decimal.NewFromFloat(f).Round(places).InexactFloat64()
}

func day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
