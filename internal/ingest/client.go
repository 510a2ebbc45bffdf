package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/AngelCh415/metta-metrics/internal/telemetry"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

func NewHTTPClient(timeout time.Duration) HTTPClient {
	return &http.Client{Timeout: timeout}
}

// Provider describe un upstream: URL base, esquema de credencial y timeout.
type Provider struct {
	Name       string
	BaseURL    string
	AuthHeader string
	AuthPrefix string
	Token      string
	Timeout    time.Duration
	// identificadores que deben estar presentes (wallet, ad account)
	Required map[string]string
	// 0 = sin límite
	RPS float64
}

func (p Provider) validate() error {
	if strings.TrimSpace(p.BaseURL) == "" || strings.TrimSpace(p.Token) == "" {
		return fmt.Errorf("%s: %w", p.Name, ErrConfigMissing)
	}
	for k, v := range p.Required {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s: %s: %w", p.Name, k, ErrConfigMissing)
		}
	}
	return nil
}

// Client es el wrapper HTTP autenticado de un proveedor.
type Client struct {
	p       Provider
	c       HTTPClient
	log     *slog.Logger
	limiter *rate.Limiter
}

func NewClient(p Provider, c HTTPClient, log *slog.Logger) *Client {
	if c == nil {
		to := p.Timeout
		if to <= 0 {
			to = 30 * time.Second
		}
		c = NewHTTPClient(to)
	}
	if log == nil {
		log = slog.Default()
	}
	cl := &Client{p: p, c: c, log: log.With(slog.String("provider", p.Name))}
	if p.RPS > 0 {
		cl.limiter = rate.NewLimiter(rate.Limit(p.RPS), 1)
	}
	return cl
}

func (c *Client) Provider() string { return c.p.Name }

// Configured indica si la credencial y los identificadores están presentes.
func (c *Client) Configured() error { return c.p.validate() }

func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodGet, path, query, nil)
}

func (c *Client) Request(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	if err := c.p.validate(); err != nil {
		return nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limit wait: %w", c.p.Name, err)
		}
	}

	u := strings.TrimRight(c.p.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil && method != http.MethodGet {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", c.p.Name, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.p.Name, err)
	}
	req.Header.Set("Accept", "application/json")
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(c.p.AuthHeader, c.p.AuthPrefix+c.p.Token)

	c.log.Debug("upstream request", slog.String("method", method), slog.String("path", path))
	start := time.Now()
	resp, err := c.c.Do(req)
	telemetry.UpstreamLatency.WithLabelValues(c.p.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.UpstreamRequests.WithLabelValues(c.p.Name, "error").Inc()
		c.log.Warn("upstream unreachable", slog.String("method", method), slog.String("path", path), slog.String("err", err.Error()))
		return nil, fmt.Errorf("%s %s %s: %w: %v", c.p.Name, method, path, ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	telemetry.UpstreamRequests.WithLabelValues(c.p.Name, strconv.Itoa(resp.StatusCode)).Inc()
	c.log.Info("upstream response",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, newUpstreamError(c.p.Name, resp.StatusCode, b)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s %s: %w: read body: %v", c.p.Name, method, path, ErrUpstreamUnreachable, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%s %s %s: invalid json payload", c.p.Name, method, path)
	}
	return json.RawMessage(raw), nil
}

// errorEnvelope cubre los dos formatos de error:
// Graph {"error":{"message","code"}} y Asaas {"errors":[{"code","description"}]}.
type errorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

func newUpstreamError(provider string, status int, body []byte) *UpstreamError {
	ue := &UpstreamError{Provider: provider, StatusCode: status, Body: string(body)}
	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil {
		switch {
		case env.Error != nil:
			ue.Code = env.Error.Code
			ue.Message = env.Error.Message
		case len(env.Errors) > 0:
			ue.Message = env.Errors[0].Description
			if n, err := strconv.Atoi(env.Errors[0].Code); err == nil {
				ue.Code = n
			}
		}
	}
	return ue
}
