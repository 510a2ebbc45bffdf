package ingest

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"
	"time"
)

type sleepRecorder struct{ waits []time.Duration }

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func TestWithRetryStopsAtMaxAttempts(t *testing.T) {
	rec := &sleepRecorder{}
	badReq := &UpstreamError{Provider: "test", StatusCode: http.StatusBadRequest}
	calls := 0
	_, err := WithRetry(context.Background(), Policy{
		Provider:    "test",
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Check:       func(context.Context) bool { return true },
		Sleep:       rec.sleep,
	}, func(context.Context) (int, error) {
		calls++
		return 0, badReq
	})
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if err != badReq {
		t.Fatalf("expected last error unchanged, got %v", err)
	}
	// conectado: espera base fija
	if want := []time.Duration{time.Second, time.Second}; !reflect.DeepEqual(rec.waits, want) {
		t.Fatalf("waits=%v want %v", rec.waits, want)
	}
}

func TestWithRetryLinearWaitWhenReconnectFails(t *testing.T) {
	rec := &sleepRecorder{}
	checks := 0
	_, _ = WithRetry(context.Background(), Policy{
		Provider:    "test",
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Check:       func(context.Context) bool { checks++; return false },
		Sleep:       rec.sleep,
	}, func(context.Context) (string, error) {
		return "", &UpstreamError{StatusCode: http.StatusBadRequest}
	})
	if checks != 2 {
		t.Fatalf("expected 2 connectivity checks, got %d", checks)
	}
	if want := []time.Duration{time.Second, 2 * time.Second}; !reflect.DeepEqual(rec.waits, want) {
		t.Fatalf("waits=%v want %v", rec.waits, want)
	}
}

func TestWithRetrySucceedsAfterOneFailure(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0
	v, err := WithRetry(context.Background(), Policy{Provider: "test", MaxAttempts: 3, BaseDelay: time.Millisecond, Sleep: rec.sleep},
		func(context.Context) (string, error) {
			calls++
			if calls == 1 {
				return "", &UpstreamError{StatusCode: http.StatusBadRequest}
			}
			return "ok", nil
		})
	if err != nil || v != "ok" {
		t.Fatalf("v=%q err=%v", v, err)
	}
	if calls != 2 || len(rec.waits) != 1 {
		t.Fatalf("calls=%d waits=%d", calls, len(rec.waits))
	}
}

func TestWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	cases := map[string]error{
		"server error": &UpstreamError{StatusCode: http.StatusInternalServerError},
		"unauthorized": &UpstreamError{StatusCode: http.StatusUnauthorized},
		"unreachable":  ErrUpstreamUnreachable,
		"config":       ErrConfigMissing,
	}
	for name, want := range cases {
		t.Run(name, func(t *testing.T) {
			rec := &sleepRecorder{}
			calls := 0
			_, err := WithRetry(context.Background(), Policy{Provider: "test", MaxAttempts: 5, BaseDelay: time.Millisecond, Sleep: rec.sleep},
				func(context.Context) (int, error) {
					calls++
					return 0, want
				})
			if calls != 1 || len(rec.waits) != 0 {
				t.Fatalf("calls=%d waits=%d", calls, len(rec.waits))
			}
			if !errors.Is(err, want) {
				t.Fatalf("expected %v, got %v", want, err)
			}
		})
	}
}

func TestWithRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := WithRetry(ctx, Policy{Provider: "test", MaxAttempts: 3, BaseDelay: time.Hour},
		func(context.Context) (int, error) {
			calls++
			cancel()
			return 0, &UpstreamError{StatusCode: http.StatusBadRequest}
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}
