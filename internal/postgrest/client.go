// Package postgrest reads and deletes listings on a hosted Supabase project
// through its PostgREST interface.
package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/pders01/bazaar/internal/debuglog"
	"github.com/pders01/bazaar/internal/product"
	"github.com/pders01/bazaar/internal/validation"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "bazaar/1.0 (https://github.com/pders01/bazaar)"
)

type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

type Option func(*Client)

// WithHTTPClient replaces the default client, for tests and custom transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client implements product.Service against /rest/v1.
type Client struct {
	base      string
	apiKey    string
	userAgent string
	http      *http.Client
}

func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("postgrest: api key is required")
	}
	base, err := validation.NewBackendURLValidator().ValidateBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgrest: %w", err)
	}
	cfg.Timeout = lo.Ternary(cfg.Timeout > 0, cfg.Timeout, defaultTimeout)

	c := &Client{
		base:      base + "/rest/v1",
		apiKey:    cfg.APIKey,
		userAgent: lo.Ternary(cfg.UserAgent != "", cfg.UserAgent, defaultUserAgent),
		http:      &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type imageRow struct {
	ImageURL string `json:"image_url"`
}

type productRow struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Price         float64    `json:"price"`
	Description   string     `json:"description"`
	Location      string     `json:"location"`
	UserID        string     `json:"user_id"`
	CreatedAt     time.Time  `json:"created_at"`
	Hilight       bool       `json:"hilight"`
	ProductImages []imageRow `json:"product_images"`
}

func (r productRow) toProduct() product.Product {
	return product.Product{
		ID:          r.ID,
		Title:       r.Title,
		Price:       r.Price,
		Description: r.Description,
		Location:    r.Location,
		UserID:      r.UserID,
		CreatedAt:   r.CreatedAt,
		Highlighted: r.Hilight,
		Images: lo.FilterMap(r.ProductImages, func(img imageRow, _ int) (string, bool) {
			return img.ImageURL, img.ImageURL != ""
		}),
	}
}

type request struct {
	method string
	table  string
	query  url.Values
	header http.Header
}

func (c *Client) do(ctx context.Context, r request) (*http.Response, error) {
	u := c.base + "/" + r.table
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", requestID)
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	log := debuglog.WithFields(map[string]interface{}{
		"request_id": requestID,
		"method":     r.method,
		"table":      r.table,
		"duration":   time.Since(start),
	})
	if err != nil {
		log.Warnf("request failed: %v", err)
		return nil, err
	}
	log.With("status", resp.StatusCode).Debugf("postgrest request")
	return resp, nil
}

func decodeRows(resp *http.Response) ([]productRow, error) {
	var rows []productRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding products: %w", err)
	}
	return rows, nil
}

// page runs a ranged product query with an exact count.
func (c *Client) page(ctx context.Context, q url.Values, offset, limit int) (product.Page, error) {
	if err := product.CheckRange(offset, limit); err != nil {
		return product.Page{}, err
	}

	resp, err := c.do(ctx, request{
		method: http.MethodGet,
		table:  "products",
		query:  q,
		header: http.Header{
			"Range-Unit": {"items"},
			"Range":      {rangeHeader(offset, limit)},
			"Prefer":     {"count=exact"},
		},
	})
	if err != nil {
		return product.Page{}, err
	}
	defer resp.Body.Close()

	total, rangeErr := parseContentRange(resp.Header.Get("Content-Range"))

	switch {
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		// Offset past the end: nothing to return but the count.
		if rangeErr != nil || total < 0 {
			return product.Page{}, decodeAPIError(resp)
		}
		return product.Page{Items: []product.Product{}, Total: total}, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return product.Page{}, decodeAPIError(resp)
	case rangeErr != nil:
		return product.Page{}, rangeErr
	}

	rows, err := decodeRows(resp)
	if err != nil {
		return product.Page{}, err
	}
	items := lo.Map(rows, func(r productRow, _ int) product.Product { return r.toProduct() })
	if total < 0 {
		// No exact count: assume more exist only if the page was full.
		total = offset + len(items) + lo.Ternary(len(items) == limit, 1, 0)
	}
	return product.Page{Items: items, Total: total}, nil
}

func (c *Client) FetchDefaultPage(ctx context.Context, offset, limit int) (product.Page, error) {
	return c.page(ctx, productQuery(), offset, limit)
}

func (c *Client) SearchByTitle(ctx context.Context, substring string, offset, limit int) (product.Page, error) {
	q := productQuery()
	q.Set("title", ilikeContains(substring))
	return c.page(ctx, q, offset, limit)
}

func (c *Client) FetchHighlighted(ctx context.Context) ([]product.Product, error) {
	q := productQuery()
	q.Set("hilight", "eq.true")
	return c.all(ctx, q)
}

// ProductsByUser lists one owner's products, newest first.
func (c *Client) ProductsByUser(ctx context.Context, userID string) ([]product.Product, error) {
	q := productQuery()
	q.Set("user_id", "eq."+userID)
	return c.all(ctx, q)
}

// all fetches every product row matching q without a Range header.
func (c *Client) all(ctx context.Context, q url.Values) ([]product.Product, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, table: "products", query: q})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp)
	}
	rows, err := decodeRows(resp)
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r productRow, _ int) product.Product { return r.toProduct() }), nil
}

// DeleteProduct removes the image rows first so the product delete does not
// trip the foreign key.
func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	idFilter := "eq." + strconv.FormatInt(id, 10)

	resp, err := c.do(ctx, request{
		method: http.MethodDelete,
		table:  "product_images",
		query:  url.Values{"product_id": {idFilter}},
		header: http.Header{"Prefer": {"return=minimal"}},
	})
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return decodeAPIError(resp)
	}
	resp.Body.Close()

	resp, err = c.do(ctx, request{
		method: http.MethodDelete,
		table:  "products",
		query:  url.Values{"id": {idFilter}},
		header: http.Header{"Prefer": {"return=representation"}},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	rows, err := decodeRows(resp)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return product.ErrNotFound
	}
	return nil
}
