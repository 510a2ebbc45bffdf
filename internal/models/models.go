package models

import "time"

const DateLayout = "2006-01-02"

type Provider string

const (
	ProviderAsaas   Provider = "asaas"
	ProviderMetaAds Provider = "meta_ads"
)

// Bucket agrupa los estados de pago del proveedor.
type Bucket string

const (
	BucketConfirmed Bucket = "confirmed"
	BucketPending   Bucket = "pending"
	BucketOverdue   Bucket = "overdue"
	BucketCancelled Bucket = "cancelled"
	BucketUnmapped  Bucket = "unmapped"
)

type Payment struct {
	ID           string     `json:"id"`
	CustomerRef  string     `json:"customer"`
	Value        float64    `json:"value"`
	NetValue     float64    `json:"netValue"`
	Status       string     `json:"status"`
	Bucket       Bucket     `json:"bucket"`
	BillingType  string     `json:"billingType,omitempty"`
	Description  string     `json:"description,omitempty"`
	DueDate      time.Time  `json:"dueDate"`
	CreationDate time.Time  `json:"dateCreated"`
	PaymentDate  *time.Time `json:"paymentDate,omitempty"`
}

// Day es la fecha usada para filtrar: vencimiento, o creación si falta.
func (p Payment) Day() time.Time {
	if !p.DueDate.IsZero() {
		return p.DueDate
	}
	return p.CreationDate
}

type Cycle string

const (
	CycleWeekly     Cycle = "WEEKLY"
	CycleBiweekly   Cycle = "BIWEEKLY"
	CycleMonthly    Cycle = "MONTHLY"
	CycleQuarterly  Cycle = "QUARTERLY"
	CycleSemiannual Cycle = "SEMIANNUAL"
	CycleYearly     Cycle = "YEARLY"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionInactive  SubscriptionStatus = "INACTIVE"
	SubscriptionOverdue   SubscriptionStatus = "OVERDUE"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
)

type Subscription struct {
	ID           string             `json:"id"`
	CustomerRef  string             `json:"customer"`
	Value        float64            `json:"value"`
	Cycle        Cycle              `json:"cycle"`
	Status       SubscriptionStatus `json:"status"`
	NextDueDate  *time.Time         `json:"nextDueDate,omitempty"`
	CreationDate time.Time          `json:"dateCreated"`
}

func (s Subscription) Day() time.Time { return s.CreationDate }

type Customer struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	CpfCnpj      string    `json:"cpfCnpj,omitempty"`
	Deleted      bool      `json:"deleted"`
	CreationDate time.Time `json:"dateCreated"`
}

type Campaign struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Status      string  `json:"status"`
	Objective   string  `json:"objective"`
	Spend       float64 `json:"spend"`
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
	Leads       int     `json:"leads"`
}

// MetricsPoint es una fila de insights (cuenta o campaña) con sus ratios.
type MetricsPoint struct {
	Spend       float64   `json:"spend"`
	Impressions int       `json:"impressions"`
	Clicks      int       `json:"clicks"`
	Leads       int       `json:"leads"`
	CPC         float64   `json:"cpc"`
	CPM         float64   `json:"cpm"`
	CTR         float64   `json:"ctr"`
	DateStart   string    `json:"date_start"`
	DateStop    string    `json:"date_stop"`
	Date        time.Time `json:"-"`
}

// Day usa Date y, si viene de cache, vuelve a leer date_start.
func (m MetricsPoint) Day() time.Time {
	if !m.Date.IsZero() || m.DateStart == "" {
		return m.Date
	}
	d, err := time.Parse(DateLayout, m.DateStart)
	if err != nil {
		return time.Time{}
	}
	return d
}

type Period struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type MetricsSnapshot struct {
	TotalSales        float64 `json:"totalSales"`
	TotalPayments     int     `json:"totalPayments"`
	ConfirmedPayments int     `json:"confirmedPayments"`
	PendingPayments   int     `json:"pendingPayments"`
	OverduePayments   int     `json:"overduePayments"`
	CancelledPayments int     `json:"cancelledPayments"`
	UnmappedPayments  int     `json:"unmappedPayments"`
	AverageTicket     float64 `json:"averageTicket"`
	ConversionRate    float64 `json:"conversionRate"`
	Period            Period  `json:"period"`
}

type FinancialSummary struct {
	TotalRevenue     float64 `json:"totalRevenue"`
	TotalPayments    int     `json:"totalPayments"`
	ConfirmedRevenue float64 `json:"confirmedRevenue"`
	PendingRevenue   float64 `json:"pendingRevenue"`
	OverdueRevenue   float64 `json:"overdueRevenue"`
	AverageTicket    float64 `json:"averageTicket"`
	ConversionRate   float64 `json:"conversionRate"`
	Period           Period  `json:"period"`
}

type AccountSummary struct {
	TotalSpend       float64 `json:"totalSpend"`
	TotalImpressions int     `json:"totalImpressions"`
	TotalClicks      int     `json:"totalClicks"`
	TotalLeads       int     `json:"totalLeads"`
	AverageCPC       float64 `json:"averageCPC"`
	AverageCPM       float64 `json:"averageCPM"`
	AverageCTR       float64 `json:"averageCTR"`
	CampaignCount    int     `json:"campaignCount"`
}

// Report cruza facturación con inversión publicitaria.
type Report struct {
	TotalSales    float64 `json:"totalSales"`
	TotalSpend    float64 `json:"totalSpend"`
	TotalLeads    int     `json:"totalLeads"`
	ROAS          float64 `json:"roas"`
	ROI           float64 `json:"roi"`
	CAC           float64 `json:"cac"`
	LTVToCAC      float64 `json:"ltvToCac"`
	CostPerLead   float64 `json:"costPerLead"`
	AverageTicket float64 `json:"averageTicket"`
	Period        Period  `json:"period"`
}

type BillingSync struct {
	Metrics          MetricsSnapshot  `json:"metrics"`
	FinancialSummary FinancialSummary `json:"financialSummary"`
	Payments         []Payment        `json:"payments"`
	SyncedAt         time.Time        `json:"syncedAt"`
}

type AdsSync struct {
	AccountMetrics []MetricsPoint `json:"accountMetrics"`
	Campaigns      []Campaign     `json:"campaigns"`
	SyncedAt       time.Time      `json:"syncedAt"`
}
