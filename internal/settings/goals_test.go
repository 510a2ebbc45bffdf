package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	s, err := NewService(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if g := s.Get(); g != (Goals{Commercial: 20000, Weekly: 5000, Daily: 666}) {
		t.Fatalf("got %+v", g)
	}
}

func TestUpdatePersistsToFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "goals.json")
	s, err := NewService(ctx, NewFileStore(path), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Update(ctx, "weekly", 7000); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewService(ctx, NewFileStore(path), nil)
	if err != nil {
		t.Fatal(err)
	}
	if g := reloaded.Get(); g.Weekly != 7000 || g.Commercial != 20000 || g.Daily != 666 {
		t.Fatalf("got %+v", g)
	}
}

func TestFileStorePartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goals.json")
	if err := os.WriteFile(path, []byte(`{"daily": 1000}`), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewService(context.Background(), NewFileStore(path), nil)
	if err != nil {
		t.Fatal(err)
	}
	if g := s.Get(); g.Daily != 1000 || g.Weekly != 5000 || g.Commercial != 20000 {
		t.Fatalf("got %+v", g)
	}
}

func TestUpdateRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s, _ := NewService(ctx, nil, nil)
	if _, err := s.Update(ctx, "yearly", 10); !errors.Is(err, ErrUnknownGoal) {
		t.Fatalf("expected ErrUnknownGoal, got %v", err)
	}
	if _, err := s.Update(ctx, "daily", -1); !errors.Is(err, ErrInvalidGoal) {
		t.Fatalf("expected ErrInvalidGoal, got %v", err)
	}
	if g := s.Get(); g != DefaultGoals() {
		t.Fatalf("rejected update changed goals: %+v", g)
	}
}

func TestProgressFor(t *testing.T) {
	g := Goals{Commercial: 20000, Weekly: 5000, Daily: 0}
	p := ProgressFor(g, PeriodWeekly, 2500)
	if p.Goal != 5000 || p.Progress != 50 || p.Label != "Meta Semanal" {
		t.Fatalf("got %+v", p)
	}
	if p := ProgressFor(g, PeriodMonthly, 5000); p.Progress != 25 || p.Goal != 20000 {
		t.Fatalf("got %+v", p)
	}
	// meta cero no divide
	if p := ProgressFor(g, PeriodDaily, 300); p.Progress != 0 || p.Current != 300 {
		t.Fatalf("got %+v", p)
	}
}

func TestParsePeriod(t *testing.T) {
	if p, err := ParsePeriod(""); err != nil || p != PeriodMonthly {
		t.Fatalf("p=%s err=%v", p, err)
	}
	if p, err := ParsePeriod("Weekly"); err != nil || p != PeriodWeekly {
		t.Fatalf("p=%s err=%v", p, err)
	}
	if _, err := ParsePeriod("hourly"); !errors.Is(err, ErrUnknownPeriod) {
		t.Fatalf("expected ErrUnknownPeriod, got %v", err)
	}
}

func TestPeriodWindow(t *testing.T) {
	// jueves 14/03/2024
	now := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
	cases := map[Period]string{
		PeriodDaily:   "2024-03-14",
		PeriodWeekly:  "2024-03-11",
		PeriodMonthly: "2024-03-01",
	}
	for p, want := range cases {
		start, end := p.Window(now, time.UTC)
		if start.Format("2006-01-02") != want || end.Format("2006-01-02") != "2024-03-14" {
			t.Fatalf("%s: %s..%s", p, start, end)
		}
	}
	// domingo: la semana empieza el lunes anterior
	sunday := time.Date(2024, 3, 17, 12, 0, 0, 0, time.UTC)
	if start, _ := PeriodWeekly.Window(sunday, time.UTC); start.Format("2006-01-02") != "2024-03-11" {
		t.Fatalf("sunday week start %s", start)
	}
}

// slowStore demora Save para que las actualizaciones concurrentes se solapen.
type slowStore struct {
	mu    sync.Mutex
	saved Goals
}

func (s *slowStore) Load(context.Context) (Goals, bool, error) { return Goals{}, false, nil }

func (s *slowStore) Save(_ context.Context, g Goals) error {
	time.Sleep(5 * time.Millisecond)
	s.mu.Lock()
	s.saved = g
	s.mu.Unlock()
	return nil
}

func TestConcurrentUpdatesKeepEveryKind(t *testing.T) {
	ctx := context.Background()
	st := &slowStore{}
	s, err := NewService(ctx, st, nil)
	if err != nil {
		t.Fatal(err)
	}

	updates := map[string]float64{"commercial": 1, "weekly": 2, "daily": 3}
	var wg sync.WaitGroup
	for kind, v := range updates {
		kind, v := kind, v
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Update(ctx, kind, v); err != nil {
				t.Errorf("%s: %v", kind, err)
			}
		}()
	}
	wg.Wait()

	want := Goals{Commercial: 1, Weekly: 2, Daily: 3}
	if g := s.Get(); g != want {
		t.Fatalf("lost update: %+v", g)
	}
	if st.saved != want {
		t.Fatalf("store holds %+v", st.saved)
	}
}

func TestMergeKeepsMissingFields(t *testing.T) {
	ctx := context.Background()
	s, _ := NewService(ctx, nil, nil)
	daily := 900.0
	g, err := s.Merge(ctx, Patch{Daily: &daily})
	if err != nil {
		t.Fatal(err)
	}
	if g != (Goals{Commercial: 20000, Weekly: 5000, Daily: 900}) {
		t.Fatalf("got %+v", g)
	}
	neg := -1.0
	if _, err := s.Merge(ctx, Patch{Weekly: &neg}); !errors.Is(err, ErrInvalidGoal) {
		t.Fatalf("expected ErrInvalidGoal, got %v", err)
	}
	if g := s.Get(); g.Weekly != 5000 {
		t.Fatalf("rejected merge changed goals: %+v", g)
	}
}
