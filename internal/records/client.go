// Package records talks to the record-store data API that fronts the quote
// tables. Client is the structured transport, routed through the request
// pool; RawClient is the deliberately minimal fallback path.
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

	"quotely/api/internal/requestpool"
)

// Client reads typed rows from the data API. Every call is deduplicated by
// the pool under an operation label and bounded by the pool's hard timeout.
// A load for a new share token constructs a fresh Client so no in-flight
// state bleeds across loads.
type Client struct {
	baseURL     string
	apiKey      string
	http        *http.Client
	pool        *requestpool.Pool
	hardTimeout time.Duration
}

func NewClient(baseURL, apiKey string, pool *requestpool.Pool, hardTimeout time.Duration) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		http:        &http.Client{},
		pool:        pool,
		hardTimeout: hardTimeout,
	}
}

// Pool exposes the underlying registry, mainly so teardown can clear it.
func (c *Client) Pool() *requestpool.Pool {
	return c.pool
}

// QuoteByShareToken fetches the full quote row. Returns (nil, nil) when no
// row matches the token.
func (c *Client) QuoteByShareToken(ctx context.Context, token string) (*QuoteRow, error) {
	return fetchOne[QuoteRow](ctx, c, "quote-metadata:"+token, "quotes", url.Values{"share_token": {token}})
}

// QuoteItemsByShareToken refetches only the heavy items column.
func (c *Client) QuoteItemsByShareToken(ctx context.Context, token string) ([]LineItemRow, error) {
	row, err := fetchOne[QuoteRow](ctx, c, "quote-items:"+token, "quotes", url.Values{
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

// QuoteOwnerByShareToken is the minimal single-column ownership lookup used
// by the access resolver.
func (c *Client) QuoteOwnerByShareToken(ctx context.Context, token string) (string, error) {
	row, err := fetchOne[ownerRow](ctx, c, "quote-owner:"+token, "quotes", url.Values{
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

func (c *Client) CustomerByID(ctx context.Context, id string) (*CustomerRow, error) {
	return fetchOne[CustomerRow](ctx, c, "customer:"+id, "customers", url.Values{"id": {id}})
}

func (c *Client) VisualsByQuoteID(ctx context.Context, quoteID string) (*VisualsRow, error) {
	return fetchOne[VisualsRow](ctx, c, "visuals:"+quoteID, "proposal_visuals", url.Values{"quote_id": {quoteID}})
}

func (c *Client) CatalogItemsByUser(ctx context.Context, userID string) ([]CatalogItemRow, error) {
	return fetchList[CatalogItemRow](ctx, c, "catalog:"+userID, "catalog_items", url.Values{"user_id": {userID}})
}

func (c *Client) SettingsByUser(ctx context.Context, userID string) (*SettingsRow, error) {
	return fetchOne[SettingsRow](ctx, c, "settings:"+userID, "company_settings", url.Values{"user_id": {userID}})
}

// Ping is the structured-client half of the connectivity probe.
func (c *Client) Ping(ctx context.Context) error {
	var rows []json.RawMessage
	return c.getJSON(ctx, "quotes", url.Values{"select": {"id"}, "limit": {"1"}}, &rows)
}

func fetchOne[T any](ctx context.Context, c *Client, key, table string, params url.Values) (*T, error) {
	return requestpool.DoTyped(ctx, c.pool, key, c.hardTimeout, func(ctx context.Context) (*T, error) {
		var rows []T
		if err := c.getJSON(ctx, table, params, &rows); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return &rows[0], nil
	})
}

func fetchList[T any](ctx context.Context, c *Client, key, table string, params url.Values) ([]T, error) {
	return requestpool.DoTyped(ctx, c.pool, key, c.hardTimeout, func(ctx context.Context) ([]T, error) {
		var rows []T
		if err := c.getJSON(ctx, table, params, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	})
}

func (c *Client) getJSON(ctx context.Context, table string, params url.Values, out any) error {
	endpoint := c.baseURL + "/" + table
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", table, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("fetch %s: status %d: %s", table, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", table, err)
	}
	return nil
}
