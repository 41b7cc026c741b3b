package postgrest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/bazaar/internal/product"
)

const twoRows = `[
	{"id": 7, "title": "Road bike", "price": 12500, "description": "54cm", "location": "Nimman",
	 "user_id": "4f7c", "created_at": "2025-01-02T12:00:00+00:00", "hilight": true,
	 "product_images": [{"image_url": "https://img/7a.jpg"}, {"image_url": ""}, {"image_url": "https://img/7b.jpg"}]},
	{"id": 6, "title": "Rice cooker", "price": 950, "created_at": "2025-01-01T12:00:00+00:00", "product_images": []}
]`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", APIKey: "anon-key", Timeout: 2 * time.Second, UserAgent: "bazaar-test/1.0"})
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{BaseURL: "https://abc.supabase.co"})
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "http://abc.supabase.co", APIKey: "k"})
	assert.Error(t, err, "plain http to a remote host must be refused")

	c, err := New(Config{BaseURL: "abc.supabase.co/", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "https://abc.supabase.co/rest/v1", c.base)
}

func TestFetchDefaultPage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/products", r.URL.Path)
		assert.Equal(t, productSelect, r.URL.Query().Get("select"))
		assert.Equal(t, "created_at.desc,id.desc", r.URL.Query().Get("order"))
		assert.Equal(t, "3-5", r.Header.Get("Range"))
		assert.Equal(t, "items", r.Header.Get("Range-Unit"))
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))
		assert.Equal(t, "bazaar-test/1.0", r.Header.Get("User-Agent"))
		_, err := uuid.Parse(r.Header.Get("X-Request-Id"))
		assert.NoError(t, err)

		w.Header().Set("Content-Range", "3-4/5")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte(twoRows))
	})

	page, err := c.FetchDefaultPage(context.Background(), 3, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Items, 2)

	bike := page.Items[0]
	assert.Equal(t, int64(7), bike.ID)
	assert.Equal(t, 12500.0, bike.Price)
	assert.Equal(t, "Nimman", bike.Location)
	assert.True(t, bike.Highlighted)
	assert.Equal(t, []string{"https://img/7a.jpg", "https://img/7b.jpg"}, bike.Images)
	assert.Equal(t, time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC), bike.CreatedAt.UTC())
	assert.Empty(t, page.Items[1].Images)
}

func TestFetchDefaultPage_RangePastEnd(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "*/5")
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		_, _ = w.Write([]byte(`{"code":"PGRST103","message":"Requested range not satisfiable"}`))
	})

	page, err := c.FetchDefaultPage(context.Background(), 6, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Empty(t, page.Items)
}

func TestFetchDefaultPage_UnknownTotal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "0-1/*")
		_, _ = w.Write([]byte(twoRows))
	})

	page, err := c.FetchDefaultPage(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total, "a full page with unknown count implies more")
}

func TestFetchDefaultPage_InvalidRange(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.FetchDefaultPage(context.Background(), -1, 3)
	assert.ErrorIs(t, err, product.ErrInvalidRange)
}

func TestAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"42703","message":"column products.hilight does not exist","details":null,"hint":"Perhaps you meant to reference the column \"products.highlight\"."}`))
	})

	_, err := c.FetchHighlighted(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "42703", apiErr.Code)
	assert.Contains(t, apiErr.Hint, "products.highlight")
	assert.False(t, apiErr.Temporary())
	assert.Equal(t, "postgrest: 400 42703: column products.hilight does not exist", apiErr.Error())
}

func TestAPIError_PlainBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	})

	_, err := c.FetchDefaultPage(context.Background(), 0, 3)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "upstream down", apiErr.Message)
	assert.True(t, apiErr.Temporary())
}

func TestSearchByTitle(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ilike.*bike*", r.URL.Query().Get("title"))
		assert.Equal(t, "0-2", r.Header.Get("Range"))
		w.Header().Set("Content-Range", "0-1/2")
		_, _ = w.Write([]byte(twoRows))
	})

	page, err := c.SearchByTitle(context.Background(), "bike", 0, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}

func TestFetchHighlighted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.true", r.URL.Query().Get("hilight"))
		assert.Empty(t, r.Header.Get("Range"))
		_, _ = w.Write([]byte(twoRows))
	})

	items, err := c.FetchHighlighted(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestProductsByUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/products", r.URL.Path)
		assert.Equal(t, "eq.4f7c", r.URL.Query().Get("user_id"))
		assert.Equal(t, "created_at.desc,id.desc", r.URL.Query().Get("order"))
		assert.Empty(t, r.URL.Query().Get("hilight"))
		_, _ = w.Write([]byte(twoRows))
	})

	items, err := c.ProductsByUser(context.Background(), "4f7c")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "4f7c", items[0].UserID)
}

func TestDeleteProduct(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		mu.Unlock()

		assert.Equal(t, http.MethodDelete, r.Method)
		switch r.URL.Path {
		case "/rest/v1/product_images":
			w.WriteHeader(http.StatusNoContent)
		case "/rest/v1/products":
			assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
			_, _ = w.Write([]byte(`[{"id": 7, "title": "Road bike"}]`))
		}
	})

	require.NoError(t, c.DeleteProduct(context.Background(), 7))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"DELETE /rest/v1/product_images?product_id=eq.7",
		"DELETE /rest/v1/products?id=eq.7",
	}, calls)
}

func TestDeleteProduct_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rest/v1/products" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	assert.ErrorIs(t, c.DeleteProduct(context.Background(), 99), product.ErrNotFound)
}

func TestDeleteProduct_ImageDeleteFails(t *testing.T) {
	var productDeletes int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rest/v1/products" {
			atomic.AddInt32(&productDeletes, 1)
		}
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"code":"42501","message":"permission denied for table product_images"}`))
	})

	err := c.DeleteProduct(context.Background(), 7)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "42501", apiErr.Code)
	assert.Equal(t, int32(0), atomic.LoadInt32(&productDeletes))
}

func TestContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.FetchDefaultPage(ctx, 0, 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

var _ product.Service = (*Client)(nil)
