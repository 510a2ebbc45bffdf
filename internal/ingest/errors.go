package ingest

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrConfigMissing       = errors.New("provider configuration missing")
	ErrMissingDates        = errors.New("startDate and endDate are required")
	ErrInvalidDateRange    = errors.New("invalid date range")
	ErrUpstreamUnreachable = errors.New("provider unreachable")
	// ErrListTruncated: el listado tiene más páginas que el límite configurado.
	ErrListTruncated = errors.New("listing exceeds page limit")
)

// graphTokenErrorCode es el código OAuthException de la Graph API.
const graphTokenErrorCode = 190

// UpstreamError es una respuesta no-2xx del proveedor.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Code       int
	Message    string
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: upstream status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: upstream status %d body=%s", e.Provider, e.StatusCode, e.Body)
}

// CredentialInvalid decide por status y código de error, no por el texto.
func (e *UpstreamError) CredentialInvalid() bool {
	return e.StatusCode == http.StatusUnauthorized || e.Code == graphTokenErrorCode
}

func StatusCode(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode
	}
	return 0
}

func IsBadRequest(err error) bool { return StatusCode(err) == http.StatusBadRequest }

func IsCredentialInvalid(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.CredentialInvalid()
}
