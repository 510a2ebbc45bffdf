package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/AngelCh415/metta-metrics/internal/telemetry"
)

type asaasPage struct {
	Data       []json.RawMessage `json:"data"`
	HasMore    bool              `json:"hasMore"`
	TotalCount int               `json:"totalCount"`
}

type graphPage struct {
	Data   []json.RawMessage `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}

// ListOffset recorre las páginas offset/limit/hasMore de Asaas y devuelve
// todos los items como un único arreglo JSON. Si quedan páginas al llegar a
// maxPages devuelve ErrListTruncated: una lista parcial nunca llega al agregador.
func ListOffset(ctx context.Context, c *Client, path string, query url.Values, pageSize, maxPages int) (json.RawMessage, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	q := cloneQuery(query)
	var items []json.RawMessage
	offset := 0
	for page := 0; ; page++ {
		if maxPages > 0 && page == maxPages {
			return nil, truncated(c, path, page)
		}
		q.Set("limit", strconv.Itoa(pageSize))
		q.Set("offset", strconv.Itoa(offset))
		raw, err := c.Get(ctx, path, q)
		if err != nil {
			return nil, err
		}
		var p asaasPage
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%s %s: decode page: %w", c.Provider(), path, err)
		}
		items = append(items, p.Data...)
		if !p.HasMore || len(p.Data) == 0 {
			break
		}
		offset += len(p.Data)
	}
	return marshalItems(items)
}

// ListCursor sigue paging.cursors.after de la Graph API.
func ListCursor(ctx context.Context, c *Client, path string, query url.Values, maxPages int) (json.RawMessage, error) {
	q := cloneQuery(query)
	var items []json.RawMessage
	for page := 0; ; page++ {
		if maxPages > 0 && page == maxPages {
			return nil, truncated(c, path, page)
		}
		raw, err := c.Get(ctx, path, q)
		if err != nil {
			return nil, err
		}
		var p graphPage
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%s %s: decode page: %w", c.Provider(), path, err)
		}
		items = append(items, p.Data...)
		if p.Paging.Next == "" || p.Paging.Cursors.After == "" {
			break
		}
		q.Set("after", p.Paging.Cursors.After)
	}
	return marshalItems(items)
}

func truncated(c *Client, path string, pages int) error {
	telemetry.ListTruncated.WithLabelValues(c.Provider()).Inc()
	c.log.Warn("listing truncated at page limit", slog.String("path", path), slog.Int("pages", pages))
	return fmt.Errorf("%s %s: %w after %d pages", c.Provider(), path, ErrListTruncated, pages)
}

func marshalItems(items []json.RawMessage) (json.RawMessage, error) {
	if items == nil {
		items = []json.RawMessage{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func cloneQuery(q url.Values) url.Values {
	out := url.Values{}
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}
