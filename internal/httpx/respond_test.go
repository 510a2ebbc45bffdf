package httpx

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/AngelCh415/metta-metrics/internal/ingest"
	"github.com/AngelCh415/metta-metrics/internal/settings"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("asaas: %w", ingest.ErrConfigMissing), 500, codeConfigMissing},
		{ingest.ErrMissingDates, 400, codeMissingDates},
		{fmt.Errorf("%w: bad", ingest.ErrInvalidDateRange), 400, codeInvalidDateRange},
		{fmt.Errorf("put: %w", settings.ErrInvalidGoal), 400, codeInvalidRequest},
		{fmt.Errorf("billing metrics: %w", &ingest.UpstreamError{Provider: "asaas", StatusCode: 401}), 401, codeCredentialInvalid},
		{&ingest.UpstreamError{Provider: "meta_ads", StatusCode: 400, Code: 190}, 401, codeCredentialInvalid},
		{&ingest.UpstreamError{Provider: "meta_ads", StatusCode: 500}, 502, codeUpstreamRejected},
		{fmt.Errorf("asaas /payments: %w after 50 pages", ingest.ErrListTruncated), http.StatusBadGateway, codeListingTruncated},
		{fmt.Errorf("x: %w", ingest.ErrUpstreamUnreachable), 504, codeUpstreamUnreachable},
		{context.DeadlineExceeded, 504, codeUpstreamUnreachable},
		{fmt.Errorf("boom"), 500, codeInternal},
	}
	for _, tc := range cases {
		status, code, msg := classify(tc.err)
		if status != tc.status || code != tc.code || msg == "" {
			t.Fatalf("%v: got %d %s %q", tc.err, status, code, msg)
		}
	}
}
