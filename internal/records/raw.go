package records

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RawClient is the fallback transport: a bare HTTP GET with explicit headers
// and a short client timeout. It is a strictly simpler code path than the
// structured client and acts as a circuit breaker when that client stalls
// under bad network or proxy conditions. It is not routed through the pool.
type RawClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewRawClient(baseURL, apiKey string) *RawClient {
	return &RawClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 8 * time.Second},
	}
}

func (c *RawClient) QuoteByShareToken(ctx context.Context, token string) (*QuoteRow, error) {
	return rawOne[QuoteRow](ctx, c, "quotes", url.Values{"share_token": {token}})
}

func (c *RawClient) QuoteItemsByShareToken(ctx context.Context, token string) ([]LineItemRow, error) {
	row, err := rawOne[QuoteRow](ctx, c, "quotes", url.Values{
		"share_token": {token},
		"select":      {"id,items"},
	})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return row.Items, nil
}

func (c *RawClient) QuoteOwnerByShareToken(ctx context.Context, token string) (string, error) {
	row, err := rawOne[ownerRow](ctx, c, "quotes", url.Values{
		"share_token": {token},
		"select":      {"user_id"},
	})
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", nil
	}
	return row.UserID, nil
}

func (c *RawClient) CustomerByID(ctx context.Context, id string) (*CustomerRow, error) {
	return rawOne[CustomerRow](ctx, c, "customers", url.Values{"id": {id}})
}

func (c *RawClient) VisualsByQuoteID(ctx context.Context, quoteID string) (*VisualsRow, error) {
	return rawOne[VisualsRow](ctx, c, "proposal_visuals", url.Values{"quote_id": {quoteID}})
}

func (c *RawClient) CatalogItemsByUser(ctx context.Context, userID string) ([]CatalogItemRow, error) {
	var rows []CatalogItemRow
	if err := c.fetch(ctx, "catalog_items", url.Values{"user_id": {userID}}, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *RawClient) SettingsByUser(ctx context.Context, userID string) (*SettingsRow, error) {
	return rawOne[SettingsRow](ctx, c, "company_settings", url.Values{"user_id": {userID}})
}

// Ping issues a HEAD request against the store root. Used only by the
// connectivity probe; failures are informational.
func (c *RawClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("store ping: status %d", resp.StatusCode)
	}
	return nil
}

func rawOne[T any](ctx context.Context, c *RawClient, table string, params url.Values) (*T, error) {
	var rows []T
	if err := c.fetch(ctx, table, params, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (c *RawClient) fetch(ctx context.Context, table string, params url.Values, out any) error {
	endpoint := c.baseURL + "/" + table
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build raw request for %s: %w", table, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("raw fetch %s: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("raw fetch %s: status %d: %s", table, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode raw %s: %w", table, err)
	}
	return nil
}
