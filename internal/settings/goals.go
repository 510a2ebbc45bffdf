// Package settings guarda las metas comerciales del dashboard.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Goals son las metas de facturación en moneda local.
type Goals struct {
	Commercial float64 `json:"commercial"`
	Weekly     float64 `json:"weekly"`
	Daily      float64 `json:"daily"`
}

func DefaultGoals() Goals {
	return Goals{Commercial: 20000, Weekly: 5000, Daily: 666}
}

type Kind string

const (
	KindCommercial Kind = "commercial"
	KindWeekly     Kind = "weekly"
	KindDaily      Kind = "daily"
)

var (
	ErrUnknownGoal   = errors.New("unknown goal kind")
	ErrInvalidGoal   = errors.New("goal must be a non-negative number")
	ErrUnknownPeriod = errors.New("period must be daily, weekly or monthly")
)

func (g Goals) validate() error {
	for _, v := range []float64{g.Commercial, g.Weekly, g.Daily} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidGoal
		}
	}
	return nil
}

// Store persiste las metas. Load devuelve ok=false si todavía no hay nada guardado.
type Store interface {
	Load(ctx context.Context) (Goals, bool, error)
	Save(ctx context.Context, g Goals) error
}

type Service struct {
	mu    sync.RWMutex
	goals Goals
	st    Store
	log   *slog.Logger
}

// NewService carga las metas guardadas; sin store o sin datos usa los valores por defecto.
func NewService(ctx context.Context, st Store, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{goals: DefaultGoals(), st: st, log: log}
	if st == nil {
		return s, nil
	}
	g, ok, err := st.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load goals: %w", err)
	}
	if ok {
		if err := g.validate(); err != nil {
			log.Warn("stored goals ignored", slog.String("err", err.Error()))
			return s, nil
		}
		s.goals = g
	}
	return s, nil
}

func (s *Service) Get() Goals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.goals
}

// Patch es una actualización parcial: los campos nil no cambian.
type Patch struct {
	Commercial *float64 `json:"commercial"`
	Weekly     *float64 `json:"weekly"`
	Daily      *float64 `json:"daily"`
}

// Merge aplica sólo los campos presentes en p.
func (s *Service) Merge(ctx context.Context, p Patch) (Goals, error) {
	return s.apply(ctx, func(g *Goals) error {
		if p.Commercial != nil {
			g.Commercial = *p.Commercial
		}
		if p.Weekly != nil {
			g.Weekly = *p.Weekly
		}
		if p.Daily != nil {
			g.Daily = *p.Daily
		}
		return nil
	})
}

// Update cambia una sola meta y conserva las otras.
func (s *Service) Update(ctx context.Context, kind string, value float64) (Goals, error) {
	return s.apply(ctx, func(g *Goals) error {
		switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
		case KindCommercial:
			g.Commercial = value
		case KindWeekly:
			g.Weekly = value
		case KindDaily:
			g.Daily = value
		default:
			return fmt.Errorf("%w: %q", ErrUnknownGoal, kind)
		}
		return nil
	})
}

// apply lee, modifica, valida y persiste bajo el mismo lock.
func (s *Service) apply(ctx context.Context, change func(g *Goals) error) (Goals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.goals
	if err := change(&g); err != nil {
		return Goals{}, err
	}
	if err := g.validate(); err != nil {
		return Goals{}, err
	}
	if s.st != nil {
		if err := s.st.Save(ctx, g); err != nil {
			return Goals{}, fmt.Errorf("save goals: %w", err)
		}
	}
	s.goals = g
	s.log.Info("goals updated",
		slog.Float64("commercial", g.Commercial),
		slog.Float64("weekly", g.Weekly),
		slog.Float64("daily", g.Daily))
	return g, nil
}

type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

func ParsePeriod(raw string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(raw))); p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return p, nil
	case "":
		return PeriodMonthly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, raw)
	}
}

// Window devuelve los días calendario del período hasta hoy (en loc),
// como medianoche UTC: diario = hoy, semanal = lunes..hoy, mensual = día 1..hoy.
func (p Period) Window(now time.Time, loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	end = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	switch p {
	case PeriodWeekly:
		// lunes como inicio de semana
		back := (int(end.Weekday()) + 6) % 7
		start = end.AddDate(0, 0, -back)
	case PeriodMonthly:
		start = time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	default:
		start = end
	}
	return start, end
}

type Progress struct {
	Period   Period  `json:"period"`
	Label    string  `json:"label"`
	Goal     float64 `json:"goal"`
	Current  float64 `json:"current"`
	Progress float64 `json:"progress"`
}

// ProgressFor compara el ingreso actual con la meta del período; meta 0 da progreso 0.
func ProgressFor(g Goals, p Period, current float64) Progress {
	out := Progress{Period: p, Current: current}
	switch p {
	case PeriodDaily:
		out.Label, out.Goal = "Meta Diária", g.Daily
	case PeriodWeekly:
		out.Label, out.Goal = "Meta Semanal", g.Weekly
	default:
		out.Period = PeriodMonthly
		out.Label, out.Goal = "Meta Comercial", g.Commercial
	}
	if out.Goal > 0 {
		out.Progress = decimal.NewFromFloat(current / out.Goal * 100).Round(1).InexactFloat64()
	}
	return out
}
