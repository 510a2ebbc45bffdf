package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AngelCh415/metta-metrics/internal/telemetry"
	"github.com/AngelCh415/metta-metrics/internal/utils"
)

// Policy gobierna los reintentos de un round trip remoto.
type Policy struct {
	Provider    string
	MaxAttempts int
	BaseDelay   time.Duration
	// Check es la prueba de conectividad entre intentos; nil = siempre conectado.
	Check func(ctx context.Context) bool
	// Retryable decide qué errores se reintentan; por defecto sólo HTTP 400.
	Retryable func(error) bool
	Sleep     func(ctx context.Context, d time.Duration) error
	Log       *slog.Logger
}

func WithRetry[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Retryable == nil {
		p.Retryable = IsBadRequest
	}
	if p.Sleep == nil {
		p.Sleep = utils.Sleep
	}
	if p.Log == nil {
		p.Log = slog.Default()
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !p.Retryable(err) || attempt == p.MaxAttempts {
			return zero, lastErr
		}

		telemetry.RetryAttempts.WithLabelValues(p.Provider).Inc()
		delay := p.BaseDelay
		if p.Check != nil && !p.Check(ctx) {
			// reconexión fallida: espera lineal
			delay = utils.Linear(p.BaseDelay, attempt)
		}
		p.Log.Warn("retrying upstream call",
			slog.String("provider", p.Provider),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", p.MaxAttempts),
			slog.Duration("wait", delay),
			slog.String("err", err.Error()))
		if err := p.Sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}
	return zero, lastErr
}
