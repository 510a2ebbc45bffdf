package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/AngelCh415/metta-metrics/internal/models"
)

// Number acepta números JSON, strings numéricos, "" y null (=0).
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*n = 0
			return nil
		}
		*n = Number(parseLeadingFloat(s))
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		f = 0
	}
	*n = Number(f)
	return nil
}

func (n Number) Float() float64 { return float64(n) }

// Int trunca como parseInt.
func (n Number) Int() int { return int(math.Trunc(float64(n))) }

// parseLeadingFloat imita parseFloat: toma el prefijo numérico válido.
func parseLeadingFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	end := 0
	seenDot, seenDigit := false, false
scan:
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
			end = i + 1
		case r == '.' && !seenDot:
			seenDot = true
		case (r == '-' || r == '+') && i == 0:
		default:
			break scan
		}
	}
	if !seenDigit {
		return 0
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return f
}

var paymentBuckets = map[string]models.Bucket{
	"CONFIRMED":             models.BucketConfirmed,
	"RECEIVED":              models.BucketConfirmed,
	"RECEIVED_IN_CASH":      models.BucketConfirmed,
	"PENDING":               models.BucketPending,
	"OVERDUE":               models.BucketOverdue,
	"RECEIVED_WITH_OVERDUE": models.BucketOverdue,
	"CANCELED":              models.BucketCancelled,
	"REFUNDED":              models.BucketCancelled,
	"REFUND_REQUESTED":      models.BucketCancelled,
}

// BucketFor consulta la tabla fija de estados.
func BucketFor(status string) models.Bucket {
	if b, ok := paymentBuckets[strings.ToUpper(strings.TrimSpace(status))]; ok {
		return b
	}
	return models.BucketUnmapped
}

// leadActionTypes es la lista de acciones que cuentan como lead.
var leadActionTypes = map[string]struct{}{
	"lead":                  {},
	"offsite_conversion":    {},
	"purchase":              {},
	"complete_registration": {},
}

type rawPayment struct {
	ID          string `json:"id"`
	Customer    string `json:"customer"`
	Value       Number `json:"value"`
	NetValue    Number `json:"netValue"`
	Status      string `json:"status"`
	BillingType string `json:"billingType"`
	Description string `json:"description"`
	DueDate     string `json:"dueDate"`
	DateCreated string `json:"dateCreated"`
	CreatedDate string `json:"createdDate"`
	PaymentDate string `json:"paymentDate"`
}

type rawSubscription struct {
	ID          string `json:"id"`
	Customer    string `json:"customer"`
	Value       Number `json:"value"`
	Cycle       string `json:"cycle"`
	Status      string `json:"status"`
	NextDueDate string `json:"nextDueDate"`
	DateCreated string `json:"dateCreated"`
	CreatedDate string `json:"createdDate"`
	StartDate   string `json:"startDate"`
}

type rawCustomer struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	MobilePhone string `json:"mobilePhone"`
	CpfCnpj     string `json:"cpfCnpj"`
	Deleted     bool   `json:"deleted"`
	DateCreated string `json:"dateCreated"`
}

type rawAction struct {
	ActionType string `json:"action_type"`
	Value      Number `json:"value"`
}

type rawInsight struct {
	Spend       Number      `json:"spend"`
	Impressions Number      `json:"impressions"`
	Clicks      Number      `json:"clicks"`
	Actions     []rawAction `json:"actions"`
	DateStart   string      `json:"date_start"`
	DateStop    string      `json:"date_stop"`
}

type rawCampaign struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Objective string `json:"objective"`
	Insights  *struct {
		Data []rawInsight `json:"data"`
	} `json:"insights"`
}

func NormalizePayments(raw json.RawMessage) ([]models.Payment, error) {
	var rows []rawPayment
	if err := decodeList(raw, &rows); err != nil {
		return nil, fmt.Errorf("normalize payments: %w", err)
	}
	out := make([]models.Payment, 0, len(rows))
	for _, r := range rows {
		status := strings.ToUpper(strings.TrimSpace(r.Status))
		out = append(out, models.Payment{
			ID:           r.ID,
			CustomerRef:  r.Customer,
			Value:        nonNeg(r.Value.Float()),
			NetValue:     nonNeg(r.NetValue.Float()),
			Status:       status,
			Bucket:       BucketFor(status),
			BillingType:  r.BillingType,
			Description:  r.Description,
			DueDate:      parseDay(r.DueDate),
			CreationDate: parseDay(firstNonEmpty(r.DateCreated, r.CreatedDate)),
			PaymentDate:  optionalDay(r.PaymentDate),
		})
	}
	return out, nil
}

func NormalizeSubscriptions(raw json.RawMessage) ([]models.Subscription, error) {
	var rows []rawSubscription
	if err := decodeList(raw, &rows); err != nil {
		return nil, fmt.Errorf("normalize subscriptions: %w", err)
	}
	out := make([]models.Subscription, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Subscription{
			ID:           r.ID,
			CustomerRef:  r.Customer,
			Value:        nonNeg(r.Value.Float()),
			Cycle:        models.Cycle(strings.ToUpper(strings.TrimSpace(r.Cycle))),
			Status:       models.SubscriptionStatus(strings.ToUpper(strings.TrimSpace(r.Status))),
			NextDueDate:  optionalDay(r.NextDueDate),
			CreationDate: parseDay(firstNonEmpty(r.DateCreated, r.CreatedDate, r.StartDate)),
		})
	}
	return out, nil
}

func NormalizeCustomers(raw json.RawMessage) ([]models.Customer, error) {
	var rows []rawCustomer
	if err := decodeList(raw, &rows); err != nil {
		return nil, fmt.Errorf("normalize customers: %w", err)
	}
	out := make([]models.Customer, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Customer{
			ID:           r.ID,
			Name:         r.Name,
			Email:        strings.ToLower(strings.TrimSpace(r.Email)),
			Phone:        firstNonEmpty(r.MobilePhone, r.Phone),
			CpfCnpj:      r.CpfCnpj,
			Deleted:      r.Deleted,
			CreationDate: parseDay(r.DateCreated),
		})
	}
	return out, nil
}

// NormalizeCampaigns usa la primera fila de insights embebida; sin insights
// la campaña queda en cero.
func NormalizeCampaigns(raw json.RawMessage) ([]models.Campaign, error) {
	var rows []rawCampaign
	if err := decodeList(raw, &rows); err != nil {
		return nil, fmt.Errorf("normalize campaigns: %w", err)
	}
	out := make([]models.Campaign, 0, len(rows))
	for _, r := range rows {
		c := models.Campaign{ID: r.ID, Name: r.Name, Status: r.Status, Objective: r.Objective}
		if r.Insights != nil && len(r.Insights.Data) > 0 {
			in := r.Insights.Data[0]
			c.Spend = nonNeg(in.Spend.Float())
			c.Impressions = nonNegInt(in.Impressions.Int())
			c.Clicks = nonNegInt(in.Clicks.Int())
			c.Leads = leadsFromActions(in.Actions)
		}
		out = append(out, c)
	}
	return out, nil
}

// NormalizeInsights convierte filas de /insights en puntos con sus ratios.
func NormalizeInsights(raw json.RawMessage) ([]models.MetricsPoint, error) {
	var rows []rawInsight
	if err := decodeList(raw, &rows); err != nil {
		return nil, fmt.Errorf("normalize insights: %w", err)
	}
	out := make([]models.MetricsPoint, 0, len(rows))
	for _, r := range rows {
		p := models.MetricsPoint{
			Spend:       nonNeg(r.Spend.Float()),
			Impressions: nonNegInt(r.Impressions.Int()),
			Clicks:      nonNegInt(r.Clicks.Int()),
			Leads:       leadsFromActions(r.Actions),
			DateStart:   r.DateStart,
			DateStop:    r.DateStop,
			Date:        parseDay(r.DateStart),
		}
		p.CPC, p.CPM, p.CTR = Ratios(p.Spend, p.Impressions, p.Clicks)
		out = append(out, p)
	}
	return out, nil
}

// leadsFromActions suma las acciones de la lista permitida.
func leadsFromActions(actions []rawAction) int {
	total := 0
	for _, a := range actions {
		if _, ok := leadActionTypes[a.ActionType]; ok {
			total += nonNegInt(a.Value.Int())
		}
	}
	return total
}

// Ratios devuelve CPC, CPM y CTR(%) con división segura.
func Ratios(spend float64, impressions, clicks int) (cpc, cpm, ctr float64) {
	if clicks > 0 {
		cpc = spend / float64(clicks)
	}
	if impressions > 0 {
		cpm = spend / float64(impressions) * 1000
		ctr = float64(clicks) / float64(impressions) * 100
	}
	return cpc, cpm, ctr
}

// decodeList acepta un arreglo o un sobre {"data":[...]}.
func decodeList(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("[]")
	}
	if raw[0] == '{' {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		raw = bytes.TrimSpace(env.Data)
		if len(raw) == 0 || string(raw) == "null" {
			raw = json.RawMessage("[]")
		}
	}
	return json.Unmarshal(raw, dst)
}

// parseDay acepta YYYY-MM-DD o RFC3339 / "YYYY-MM-DD HH:MM:SS"; vacío = cero.
func parseDay(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if len(s) >= 10 {
		if d, err := time.Parse(models.DateLayout, s[:10]); err == nil {
			return d
		}
	}
	if d, err := time.Parse(time.RFC3339, s); err == nil {
		return dayUTC(d)
	}
	return time.Time{}
}

// optionalDay es parseDay para campos que pueden faltar: nil en vez de fecha cero.
func optionalDay(s string) *time.Time {
	d := parseDay(s)
	if d.IsZero() {
		return nil
	}
	return &d
}

func dayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func nonNeg(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}

func nonNegInt(i int) int {
	if i < 0 {
		return 0
	}
	return i
}
