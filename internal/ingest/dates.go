package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/AngelCh415/metta-metrics/internal/models"
)

// Range es un intervalo de días calendario, inclusivo en ambos extremos.
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) Period() models.Period {
	return models.Period{StartDate: r.Start.Format(models.DateLayout), EndDate: r.End.Format(models.DateLayout)}
}

func (r Range) Key() string {
	return r.Start.Format(models.DateLayout) + ":" + r.End.Format(models.DateLayout)
}

type RangeOptions struct {
	RejectFuture bool
	Now          time.Time
	Location     *time.Location
}

// ParseRange valida startDate/endDate (YYYY-MM-DD) para ambos proveedores.
func ParseRange(startRaw, endRaw string, opts RangeOptions) (Range, error) {
	startRaw, endRaw = strings.TrimSpace(startRaw), strings.TrimSpace(endRaw)
	if startRaw == "" || endRaw == "" {
		return Range{}, ErrMissingDates
	}
	start, err := time.Parse(models.DateLayout, startRaw)
	if err != nil {
		return Range{}, fmt.Errorf("%w: startDate %q is not YYYY-MM-DD", ErrInvalidDateRange, startRaw)
	}
	end, err := time.Parse(models.DateLayout, endRaw)
	if err != nil {
		return Range{}, fmt.Errorf("%w: endDate %q is not YYYY-MM-DD", ErrInvalidDateRange, endRaw)
	}
	if start.After(end) {
		return Range{}, fmt.Errorf("%w: startDate %s is after endDate %s", ErrInvalidDateRange, startRaw, endRaw)
	}
	if opts.RejectFuture {
		today := Today(opts.Now, opts.Location)
		if start.After(today) || end.After(today) {
			return Range{}, fmt.Errorf("%w: dates after %s are not allowed", ErrInvalidDateRange, today.Format(models.DateLayout))
		}
	}
	return Range{Start: start, End: end}, nil
}

// Today es la fecha calendario de now en loc, como medianoche UTC.
func Today(now time.Time, loc *time.Location) time.Time {
	if now.IsZero() {
		now = time.Now()
	}
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LastDays devuelve [today-(n-1), today].
func LastDays(n int, now time.Time, loc *time.Location) Range {
	end := Today(now, loc)
	if n < 1 {
		n = 1
	}
	return Range{Start: end.AddDate(0, 0, -(n - 1)), End: end}
}
