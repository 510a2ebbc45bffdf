package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/AngelCh415/metta-metrics/internal/ingest"
	"github.com/AngelCh415/metta-metrics/internal/settings"
	"github.com/AngelCh415/metta-metrics/internal/utils"
)

const (
	codeConfigMissing       = "config_missing"
	codeMissingDates        = "missing_dates"
	codeInvalidDateRange    = "invalid_date_range"
	codeInvalidRequest      = "invalid_request"
	codeCredentialInvalid   = "credential_invalid"
	codeUpstreamRejected    = "upstream_rejected"
	codeUpstreamUnreachable = "upstream_unreachable"
	codeListingTruncated    = "listing_truncated"
	codeInternal            = "internal"
)

var errInvalidRequest = errors.New("invalid request")

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// classify traduce un error a status HTTP, código y mensaje para el cliente.
func classify(err error) (int, string, string) {
	var ue *ingest.UpstreamError
	switch {
	case errors.Is(err, ingest.ErrConfigMissing):
		return http.StatusInternalServerError, codeConfigMissing, "provider configuration not found"
	case errors.Is(err, ingest.ErrMissingDates):
		return http.StatusBadRequest, codeMissingDates, "startDate and endDate are required"
	case errors.Is(err, ingest.ErrInvalidDateRange):
		return http.StatusBadRequest, codeInvalidDateRange, "invalid date range"
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, settings.ErrUnknownGoal),
		errors.Is(err, settings.ErrInvalidGoal),
		errors.Is(err, settings.ErrUnknownPeriod):
		return http.StatusBadRequest, codeInvalidRequest, "invalid request"
	case errors.Is(err, ingest.ErrListTruncated):
		return http.StatusBadGateway, codeListingTruncated, "provider listing exceeds the configured page limit"
	case ingest.IsCredentialInvalid(err):
		return http.StatusUnauthorized, codeCredentialInvalid, "provider credential invalid or expired"
	case errors.As(err, &ue):
		return http.StatusBadGateway, codeUpstreamRejected, "provider rejected the request"
	case errors.Is(err, ingest.ErrUpstreamUnreachable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, codeUpstreamUnreachable, "provider unreachable"
	default:
		return http.StatusInternalServerError, codeInternal, "internal server error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status, code, msg := classify(err)
	lvl := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		lvl = slog.LevelError
	}
	log.Log(r.Context(), lvl, "request failed",
		slog.String("path", r.URL.Path),
		slog.String("rid", utils.RID(r.Context())),
		slog.String("code", code),
		slog.String("err", err.Error()))
	writeJSON(w, status, envelope{Error: msg, Code: code, Details: err.Error()})
}
