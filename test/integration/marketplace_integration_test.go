package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/bazaar/internal/catalog"
	"github.com/pders01/bazaar/internal/config"
	"github.com/pders01/bazaar/internal/feed"
	"github.com/pders01/bazaar/internal/postgrest"
	"github.com/pders01/bazaar/internal/product"
	"github.com/pders01/bazaar/internal/search"
	"github.com/pders01/bazaar/internal/storage"
)

var listingTitles = []string{
	"Desk lamp", "Road bike", "Floor lamp", "Sofa", "Lamp shade", "Kettle", "Guitar",
}

func listingsFeed() string {
	base := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	var items strings.Builder
	for i, title := range listingTitles {
		category := "Home"
		if title == "Road bike" {
			category = "Featured"
		}
		fmt.Fprintf(&items, `
		<item>
			<title>%s</title>
			<link>https://ads.example.co.th/a/%d</link>
			<guid>ad-%d</guid>
			<description>Listing %d</description>
			<pubDate>%s</pubDate>
			<g:price>%d THB</g:price>
			<category>%s</category>
		</item>`, title, i, i, i, base.Add(-time.Duration(i)*time.Hour).Format(time.RFC1123), 1000*(i+1), category)
	}
	return `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:g="http://base.google.com/ns/1.0">
	<channel>
		<title>Bangkok Classifieds</title>
		<link>https://ads.example.co.th</link>
		<description>Second-hand listings</description>` + items.String() + `
	</channel>
</rss>`
}

func titles(ps []product.Product) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Title
	}
	return out
}

func newController(t *testing.T, svc product.Service) *feed.Controller {
	t.Helper()
	cfg := config.TestConfig()
	ctrl := feed.NewController(svc, feed.Options{
		PageSize:       cfg.Feed.PageSize,
		DebounceWindow: cfg.Feed.Debounce,
		FetchTimeout:   cfg.Feed.FetchTimeout,
	})
	t.Cleanup(ctrl.Close)
	return ctrl
}

// A feed imported into the local catalog is browsed, searched and pruned
// through the controller.
func TestImportedCatalogThroughController(t *testing.T) {
	ctx := context.Background()
	cfg := config.TestConfig()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, listingsFeed())
	}))
	defer srv.Close()

	dir := t.TempDir()
	store, err := storage.NewStore(filepath.Join(dir, "bazaar.db"))
	require.NoError(t, err)
	defer store.Close()

	idx, err := search.NewBleveIndex(store, filepath.Join(dir, "index.bleve"))
	require.NoError(t, err)
	defer idx.Close()

	svc := catalog.NewService(store, idx)
	importer := catalog.NewImporter(svc, catalog.ImporterOptions{
		UserAgent:         cfg.Import.UserAgent,
		Timeout:           cfg.Import.HTTPTimeout,
		AllowPrivateHosts: true,
	})
	res, err := importer.Import(ctx, srv.URL+"/rss")
	require.NoError(t, err)
	require.Equal(t, len(listingTitles), res.Created)

	ctrl := newController(t, svc)
	ctrl.Initialize(ctx)

	st := ctrl.State()
	assert.Equal(t, []string{"Desk lamp", "Road bike", "Floor lamp"}, titles(st.DisplayedItems))
	assert.Equal(t, []string{"Road bike"}, titles(st.HighlightedItems))
	assert.True(t, st.HasMore)

	ctrl.LoadMore(ctx)
	ctrl.LoadMore(ctx)
	st = ctrl.State()
	assert.Equal(t, listingTitles, titles(st.DisplayedItems))
	assert.False(t, st.HasMore)
	assert.Equal(t, 3, st.PageIndex)

	require.NoError(t, ctrl.SubmitSearch(ctx, "LAMP"))
	st = ctrl.State()
	assert.Equal(t, []string{"Desk lamp", "Floor lamp", "Lamp shade"}, titles(st.DisplayedItems))
	assert.False(t, st.HasMore)

	lampShade := st.DisplayedItems[2]
	require.NoError(t, ctrl.RemoveItem(ctx, lampShade.ID))
	assert.Equal(t, []string{"Desk lamp", "Floor lamp"}, titles(ctrl.State().DisplayedItems))

	// The index no longer returns the deleted listing.
	ctrl.Search("lamp")
	assert.Eventually(t, func() bool {
		s := ctrl.State()
		return !s.IsSearching && len(s.DisplayedItems) == 2
	}, time.Second, 5*time.Millisecond)

	ctrl.Search("")
	st = ctrl.State()
	assert.Empty(t, st.SearchQuery)
	assert.Len(t, st.DisplayedItems, len(listingTitles)-1)

	_, err = store.GetProduct(lampShade.ID)
	assert.ErrorIs(t, err, product.ErrNotFound)

	// Re-importing restores it as a new listing.
	res, err = importer.Import(ctx, srv.URL+"/rss")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, len(listingTitles)-1, res.Updated)

	ctrl.Refresh(ctx)
	st = ctrl.State()
	assert.Len(t, st.DisplayedItems, 3)
	assert.True(t, st.HasMore)
}

// fakePostgREST serves the products table with Range paging and an ilike
// title filter.
type fakePostgREST struct {
	mu    sync.Mutex
	rows  []map[string]any
	calls int
}

func newFakePostgREST() *fakePostgREST {
	base := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	f := &fakePostgREST{}
	for i, title := range listingTitles {
		f.rows = append(f.rows, map[string]any{
			"id":             len(listingTitles) - i,
			"title":          title,
			"price":          1000 * (i + 1),
			"location":       "Bangkok",
			"user_id":        "seller-1",
			"created_at":     base.Add(-time.Duration(i) * time.Hour).Format(time.RFC3339),
			"hilight":        title == "Road bike",
			"product_images": []map[string]string{{"image_url": fmt.Sprintf("https://img.example.co.th/%d.jpg", i)}},
		})
	}
	return f
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if r.Header.Get("apikey") != "anon-key" {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"code":"PGRST301","message":"JWT invalid"}`)
		return
	}

	q := r.URL.Query()
	switch {
	case r.Method == http.MethodDelete && r.URL.Path == "/rest/v1/product_images":
		w.WriteHeader(http.StatusNoContent)
		return
	case r.Method == http.MethodDelete && r.URL.Path == "/rest/v1/products":
		id, _ := strconv.Atoi(strings.TrimPrefix(q.Get("id"), "eq."))
		var deleted []map[string]any
		kept := f.rows[:0]
		for _, row := range f.rows {
			if row["id"] == id {
				deleted = append(deleted, row)
				continue
			}
			kept = append(kept, row)
		}
		f.rows = kept
		_ = json.NewEncoder(w).Encode(deleted)
		return
	}

	rows := f.rows
	if q.Get("hilight") == "eq.true" {
		rows = filterRows(rows, func(row map[string]any) bool { return row["hilight"] == true })
	}
	if like := q.Get("title"); like != "" {
		needle := strings.ToLower(strings.Trim(strings.TrimPrefix(like, "ilike."), "*\""))
		rows = filterRows(rows, func(row map[string]any) bool {
			return strings.Contains(strings.ToLower(row["title"].(string)), needle)
		})
	}

	from, to := 0, len(rows)-1
	if rng := r.Header.Get("Range"); rng != "" {
		fmt.Sscanf(rng, "%d-%d", &from, &to)
	}
	if from >= len(rows) && len(rows) > 0 {
		w.Header().Set("Content-Range", fmt.Sprintf("*/%d", len(rows)))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	to = min(to, len(rows)-1)
	page := rows[from : to+1]
	w.Header().Set("Content-Range", fmt.Sprintf("%d-%d/%d", from, to, len(rows)))
	_ = json.NewEncoder(w).Encode(page)
}

func filterRows(rows []map[string]any, keep func(map[string]any) bool) []map[string]any {
	var out []map[string]any
	for _, row := range rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	return out
}

// The hosted backend yields the same browsing behavior as the local catalog.
func TestPostgRESTThroughController(t *testing.T) {
	ctx := context.Background()
	fake := newFakePostgREST()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := postgrest.New(postgrest.Config{BaseURL: srv.URL, APIKey: "anon-key", Timeout: 2 * time.Second})
	require.NoError(t, err)

	ctrl := newController(t, client)
	ctrl.Initialize(ctx)

	st := ctrl.State()
	require.NoError(t, st.FeedErr)
	assert.Equal(t, []string{"Desk lamp", "Road bike", "Floor lamp"}, titles(st.DisplayedItems))
	assert.Equal(t, []string{"Road bike"}, titles(st.HighlightedItems))
	assert.Equal(t, "https://img.example.co.th/0.jpg", st.DisplayedItems[0].Thumbnail())

	ctrl.LoadMore(ctx)
	ctrl.LoadMore(ctx)
	st = ctrl.State()
	assert.Len(t, st.DisplayedItems, len(listingTitles))
	assert.False(t, st.HasMore)

	require.NoError(t, ctrl.SubmitSearch(ctx, "lamp"))
	assert.Equal(t, []string{"Desk lamp", "Floor lamp", "Lamp shade"}, titles(ctrl.State().DisplayedItems))

	require.NoError(t, ctrl.RemoveItem(ctx, ctrl.State().DisplayedItems[0].ID))
	assert.Equal(t, []string{"Floor lamp", "Lamp shade"}, titles(ctrl.State().DisplayedItems))

	err = ctrl.RemoveItem(ctx, 999)
	var delErr *product.DeleteError
	require.ErrorAs(t, err, &delErr)
	assert.ErrorIs(t, err, product.ErrNotFound)
}

func TestPostgRESTBadKeySurfacesAsFeedError(t *testing.T) {
	srv := httptest.NewServer(newFakePostgREST())
	defer srv.Close()

	client, err := postgrest.New(postgrest.Config{BaseURL: srv.URL, APIKey: "wrong"})
	require.NoError(t, err)

	ctrl := newController(t, client)
	ctrl.Initialize(context.Background())

	st := ctrl.State()
	assert.Empty(t, st.DisplayedItems)
	assert.False(t, st.HasMore)

	var apiErr *postgrest.APIError
	assert.ErrorAs(t, st.FeedErr, &apiErr)
	assert.ErrorAs(t, st.HighlightedErr, &apiErr)
}
