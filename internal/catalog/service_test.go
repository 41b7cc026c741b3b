package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/bazaar/internal/product"
	"github.com/pders01/bazaar/internal/search"
	"github.com/pders01/bazaar/internal/storage"
)

var base = time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, withIndex bool) *Service {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var searcher search.Searcher
	if withIndex {
		idx, err := search.NewBleveIndex(store, "")
		require.NoError(t, err)
		t.Cleanup(func() { _ = idx.Close() })
		searcher = idx
	}
	return NewService(store, searcher)
}

func seed(t *testing.T, svc *Service, n int) []*product.Product {
	t.Helper()
	products := make([]*product.Product, 0, n)
	for i := 0; i < n; i++ {
		products = append(products, &product.Product{
			Title:       fmt.Sprintf("Item %02d", i),
			Price:       float64(100 * i),
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			Highlighted: i%3 == 0,
			UserID:      fmt.Sprintf("user-%d", i%2),
		})
	}
	require.NoError(t, svc.Save(products))
	return products
}

func titles(items []product.Product) []string {
	out := make([]string, len(items))
	for i, p := range items {
		out[i] = p.Title
	}
	return out
}

func TestService_FetchDefaultPage(t *testing.T) {
	svc := newTestService(t, false)
	seed(t, svc, 7)
	ctx := context.Background()

	page, err := svc.FetchDefaultPage(ctx, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, page.Total)
	assert.Equal(t, []string{"Item 06", "Item 05", "Item 04"}, titles(page.Items))

	page, err = svc.FetchDefaultPage(ctx, 6, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"Item 00"}, titles(page.Items))

	page, err = svc.FetchDefaultPage(ctx, 9, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, page.Total)
	assert.Empty(t, page.Items)
}

func TestService_FetchDefaultPage_InvalidRange(t *testing.T) {
	svc := newTestService(t, false)

	_, err := svc.FetchDefaultPage(context.Background(), -1, 3)
	assert.ErrorIs(t, err, product.ErrInvalidRange)
	_, err = svc.FetchDefaultPage(context.Background(), 0, 0)
	assert.ErrorIs(t, err, product.ErrInvalidRange)
}

func TestService_CancelledContext(t *testing.T) {
	svc := newTestService(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.FetchDefaultPage(ctx, 0, 3)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = svc.FetchHighlighted(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = svc.SearchByTitle(ctx, "x", 0, 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, svc.DeleteProduct(ctx, 1), context.Canceled)
}

func TestService_FetchHighlighted(t *testing.T) {
	svc := newTestService(t, false)
	seed(t, svc, 7)

	highlighted, err := svc.FetchHighlighted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Item 06", "Item 03", "Item 00"}, titles(highlighted))
}

func TestService_SearchByTitle(t *testing.T) {
	for _, withIndex := range []bool{false, true} {
		t.Run(fmt.Sprintf("index=%v", withIndex), func(t *testing.T) {
			svc := newTestService(t, withIndex)
			seed(t, svc, 12)
			ctx := context.Background()

			page, err := svc.SearchByTitle(ctx, "item 1", 0, 3)
			require.NoError(t, err)
			assert.Equal(t, 2, page.Total)
			assert.Equal(t, []string{"Item 11", "Item 10"}, titles(page.Items))

			page, err = svc.SearchByTitle(ctx, "ITEM", 3, 3)
			require.NoError(t, err)
			assert.Equal(t, 12, page.Total)
			assert.Equal(t, []string{"Item 08", "Item 07", "Item 06"}, titles(page.Items))
		})
	}
}

func TestService_DeleteProduct_UpdatesIndex(t *testing.T) {
	svc := newTestService(t, true)
	products := seed(t, svc, 4)
	ctx := context.Background()

	require.NoError(t, svc.DeleteProduct(ctx, products[3].ID))

	page, err := svc.SearchByTitle(ctx, "item", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.NotContains(t, titles(page.Items), "Item 03")

	assert.ErrorIs(t, svc.DeleteProduct(ctx, products[3].ID), product.ErrNotFound)
}

func TestService_SearchSkipsProductsMissingFromStore(t *testing.T) {
	svc := newTestService(t, true)
	products := seed(t, svc, 3)

	// Delete behind the index's back.
	require.NoError(t, svc.Store().DeleteProduct(products[1].ID))

	page, err := svc.SearchByTitle(context.Background(), "item", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, []string{"Item 02", "Item 00"}, titles(page.Items))
}

func TestService_ProductsByUser(t *testing.T) {
	svc := newTestService(t, false)
	seed(t, svc, 5)

	owned, err := svc.ProductsByUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Item 03", "Item 01"}, titles(owned))
}

var _ product.Service = (*Service)(nil)
