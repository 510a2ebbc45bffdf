package metaads

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AngelCh415/metta-metrics/internal/config"
	"github.com/AngelCh415/metta-metrics/internal/ingest"
)

var testNow = time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

func newService(t *testing.T, url string, opts Options) *Service {
	t.Helper()
	cfg := config.MetaConfig{AccessToken: "tok", AdAccountID: "act_1", APIVersion: "v19.0", BaseURL: url}
	opts.AdAccountID = "act_1"
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	if opts.Sleep == nil {
		opts.Sleep = func(context.Context, time.Duration) error { return nil }
	}
	return NewService(ingest.NewClient(NewProvider(cfg, 0), nil, nil), nil, opts)
}

func graphServer(t *testing.T, routes map[string]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token on %s", r.URL.Path)
		}
		if r.URL.Query().Get("access_token") != "" {
			t.Errorf("token leaked into query string")
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
}

const campaignList = `{"data":[{"id":"c1","name":"One"},{"id":"c2","name":"Two"},{"id":"c3","name":"Three"}]}`

func TestGetAccountSummary(t *testing.T) {
	srv := graphServer(t, map[string]string{
		"/v19.0/act_1/campaigns": campaignList,
		"/v19.0/c1/insights":     `{"data":[{"spend":"100","impressions":"6000","clicks":"30","actions":[{"action_type":"lead","value":"2"}]}]}`,
		"/v19.0/c2/insights":     `{"data":[{"spend":"50","impressions":"4000","clicks":"20","actions":[{"action_type":"complete_registration","value":"1"}]}]}`,
		"/v19.0/c3/insights":     `{"data":[]}`,
	})
	defer srv.Close()

	s := newService(t, srv.URL, Options{})
	r, err := s.ParseRange("2024-03-01", "2024-03-10")
	if err != nil {
		t.Fatal(err)
	}
	sum, err := s.GetAccountSummary(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if sum.CampaignCount != 2 || sum.TotalSpend != 150 || sum.TotalImpressions != 10000 || sum.TotalClicks != 50 || sum.TotalLeads != 3 {
		t.Fatalf("got %+v", sum)
	}
	if sum.AverageCPC != 3 || sum.AverageCPM != 15 || sum.AverageCTR != 0.5 {
		t.Fatalf("cpc=%v cpm=%v ctr=%v", sum.AverageCPC, sum.AverageCPM, sum.AverageCTR)
	}
}

func TestCampaignsWithInsightsFailFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v19.0/act_1/campaigns":
			w.Write([]byte(campaignList))
		case "/v19.0/c2/insights":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"message":"unknown error","code":1}}`))
		default:
			w.Write([]byte(`{"data":[{"spend":"1","impressions":"10","clicks":"1"}]}`))
		}
	}))
	defer srv.Close()

	s := newService(t, srv.URL, Options{})
	r, _ := s.ParseRange("2024-03-01", "2024-03-10")
	got, err := s.GetCampaignsWithInsights(context.Background(), r)
	if err == nil || got != nil {
		t.Fatalf("expected whole result to fail, got %v %v", got, err)
	}
	if ingest.StatusCode(err) != http.StatusInternalServerError {
		t.Fatalf("got %v", err)
	}
}

func TestCampaignsWithInsightsBoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v19.0/act_1/campaigns" {
			var data []map[string]string
			for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
				data = append(data, map[string]string{"id": id})
			}
			json.NewEncoder(w).Encode(map[string]any{"data": data})
			return
		}
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(`{"data":[{"spend":"1"}]}`))
	}))
	defer srv.Close()

	s := newService(t, srv.URL, Options{Concurrency: 2})
	r, _ := s.ParseRange("2024-03-01", "2024-03-10")
	got, err := s.GetCampaignsWithInsights(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 6 || got[0].ID != "a" || got[5].ID != "f" {
		t.Fatalf("got %+v", got)
	}
	if peak.Load() > 2 {
		t.Fatalf("concurrency exceeded: %d", peak.Load())
	}
}

func TestGetCampaignsBoundedToPeriod(t *testing.T) {
	var fields string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fields = r.URL.Query().Get("fields")
		w.Write([]byte(`{"data":[
			{"id":"1","name":"A","insights":{"data":[{"spend":"12.5","impressions":"100","clicks":"4"}]}},
			{"id":"2","name":"B","insights":{"data":[{"spend":"0"}]}},
			{"id":"3","name":"C"}
		]}`))
	}))
	defer srv.Close()

	s := newService(t, srv.URL, Options{})
	r, _ := s.ParseRange("2024-03-01", "2024-03-10")
	got, err := s.GetCampaigns(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "1" || got[0].Spend != 12.5 {
		t.Fatalf("got %+v", got)
	}
	if !strings.Contains(fields, `insights.time_range({"since":"2024-03-01","until":"2024-03-10"})`) {
		t.Fatalf("campaign listing not bounded to period: %s", fields)
	}
}

func TestGetAccountMetricsQuery(t *testing.T) {
	var q map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v19.0/act_1/insights" {
			t.Errorf("path %s", r.URL.Path)
		}
		q = r.URL.Query()
		w.Write([]byte(`{"data":[
			{"spend":"10","impressions":"1000","clicks":"10","date_start":"2024-03-01","date_stop":"2024-03-01"},
			{"spend":"20","impressions":"1000","clicks":"30","date_start":"2024-03-02","date_stop":"2024-03-02"}
		]}`))
	}))
	defer srv.Close()

	s := newService(t, srv.URL, Options{})
	r, _ := s.ParseRange("2024-03-01", "2024-03-02")
	points, err := s.GetAccountMetrics(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 2 || points[1].CPC != 20.0/30.0 {
		t.Fatalf("points %+v", points)
	}
	if q["time_increment"][0] != "1" || q["time_range"][0] != `{"since":"2024-03-01","until":"2024-03-02"}` {
		t.Fatalf("query %v", q)
	}
	if !strings.Contains(q["fields"][0], "actions") {
		t.Fatalf("fields %v", q["fields"])
	}
}

func TestGetCampaignMetricsTargetsCampaign(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	s := newService(t, srv.URL, Options{})
	r, _ := s.ParseRange("2024-03-01", "2024-03-02")
	if _, err := s.GetCampaignMetrics(context.Background(), r, "777"); err != nil {
		t.Fatal(err)
	}
	if path != "/v19.0/777/insights" {
		t.Fatalf("path %s", path)
	}
	if _, err := s.GetCampaignMetrics(context.Background(), r, ""); err != nil {
		t.Fatal(err)
	}
	if path != "/v19.0/act_1/insights" {
		t.Fatalf("path %s", path)
	}
}

func TestRealTimeMetricsCoversYesterdayAndToday(t *testing.T) {
	var timeRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timeRange = r.URL.Query().Get("time_range")
		w.Write([]byte(`{"data":[
			{"spend":"5","impressions":"500","clicks":"5","date_start":"2024-03-10","date_stop":"2024-03-10"},
			{"spend":"15","impressions":"1500","clicks":"15","date_start":"2024-03-09","date_stop":"2024-03-09"}
		]}`))
	}))
	defer srv.Close()

	p, err := newService(t, srv.URL, Options{}).GetRealTimeMetrics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if timeRange != `{"since":"2024-03-09","until":"2024-03-10"}` {
		t.Fatalf("time_range %s", timeRange)
	}
	if p.Spend != 20 || p.Impressions != 2000 || p.CPC != 1 || p.CPM != 10 || p.CTR != 1 {
		t.Fatalf("got %+v", p)
	}
	if p.DateStart != "2024-03-09" || p.DateStop != "2024-03-10" {
		t.Fatalf("dates %s..%s", p.DateStart, p.DateStop)
	}
}

func TestParseRangeRejectsFuture(t *testing.T) {
	s := newService(t, "http://unused", Options{})
	if _, err := s.ParseRange("2024-03-01", "2024-03-11"); !errors.Is(err, ingest.ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
	if _, err := s.ParseRange("2024-03-10", "2024-03-10"); err != nil {
		t.Fatalf("today must be accepted: %v", err)
	}
}

func TestTestConnection(t *testing.T) {
	for status, want := range map[int]bool{1: true, 2: false, 101: false} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v19.0/act_1" {
				t.Errorf("path %s", r.URL.Path)
			}
			json.NewEncoder(w).Encode(map[string]any{"id": "act_1", "name": "Metta", "account_status": status})
		}))
		got := newService(t, srv.URL, Options{}).TestConnection(context.Background())
		srv.Close()
		if got != want {
			t.Fatalf("account_status=%d: got %v", status, got)
		}
	}
}

func TestExpiredTokenIsCredentialError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Error validating access token: Session has expired","type":"OAuthException","code":190}}`))
	}))
	defer srv.Close()

	s := newService(t, srv.URL, Options{MaxAttempts: 2})
	r, _ := s.ParseRange("2024-03-01", "2024-03-02")
	_, err := s.GetAccountMetrics(context.Background(), r)
	if !ingest.IsCredentialInvalid(err) {
		t.Fatalf("expected credential error, got %v", err)
	}
	// 2 intentos + 1 prueba de conexión entre ellos
	if calls.Load() != 3 {
		t.Fatalf("calls=%d", calls.Load())
	}
}

func TestSync(t *testing.T) {
	srv := graphServer(t, map[string]string{
		"/v19.0/act_1/insights":  `{"data":[{"spend":"3","date_start":"2024-03-01","date_stop":"2024-03-01"}]}`,
		"/v19.0/act_1/campaigns": `{"data":[{"id":"1","insights":{"data":[{"spend":"3"}]}}]}`,
	})
	defer srv.Close()

	s := newService(t, srv.URL, Options{})
	r := s.SyncRange()
	if r.Period().StartDate != "2024-02-09" || r.Period().EndDate != "2024-03-10" {
		t.Fatalf("sync range %+v", r.Period())
	}
	out, err := s.Sync(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.AccountMetrics) != 1 || len(out.Campaigns) != 1 || !out.SyncedAt.Equal(testNow) {
		t.Fatalf("got %+v", out)
	}
}

func TestMissingConfig(t *testing.T) {
	s := NewService(ingest.NewClient(NewProvider(config.MetaConfig{BaseURL: "http://x", APIVersion: "v19.0"}, 0), nil, nil), nil, Options{})
	if err := s.Configured(); !errors.Is(err, ingest.ErrConfigMissing) {
		t.Fatalf("expected ErrConfigMissing, got %v", err)
	}
	if s.TestConnection(context.Background()) {
		t.Fatal("expected false without credentials")
	}
}
