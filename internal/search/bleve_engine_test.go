package search

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/bazaar/internal/product"
	"github.com/pders01/bazaar/internal/storage"
)

func seedStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	products := []*product.Product{
		{Title: "Vintage Red Bicycle", CreatedAt: base},
		{Title: "Blue bicycle helmet", CreatedAt: base.Add(time.Hour)},
		{Title: "Rice cooker", CreatedAt: base.Add(2 * time.Hour)},
		{Title: "BICYCLE pump", CreatedAt: base.Add(3 * time.Hour)},
		{Title: "50% off (almost new) sofa*", CreatedAt: base.Add(4 * time.Hour)},
	}
	require.NoError(t, store.SaveProducts(products))
	return store
}

func titlesFor(t *testing.T, store *storage.Store, ids []int64) []string {
	t.Helper()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		p, err := store.GetProduct(id)
		require.NoError(t, err)
		out = append(out, p.Title)
	}
	return out
}

func searchers(t *testing.T, store *storage.Store) map[string]Searcher {
	idx, err := NewBleveIndex(store, filepath.Join(t.TempDir(), "index.bleve"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	return map[string]Searcher{
		"bleve": idx,
		"scan":  NewScanSearcher(store),
	}
}

func TestSearchTitle_CaseInsensitiveSubstring(t *testing.T) {
	store := seedStore(t)

	for name, s := range searchers(t, store) {
		t.Run(name, func(t *testing.T) {
			ids, total, err := s.SearchTitle("bicy", 0, 10)
			require.NoError(t, err)
			assert.Equal(t, 3, total)
			assert.Equal(t, []string{"BICYCLE pump", "Blue bicycle helmet", "Vintage Red Bicycle"}, titlesFor(t, store, ids))
		})
	}
}

func TestSearchTitle_Pagination(t *testing.T) {
	store := seedStore(t)

	for name, s := range searchers(t, store) {
		t.Run(name, func(t *testing.T) {
			ids, total, err := s.SearchTitle("BICYCLE", 1, 1)
			require.NoError(t, err)
			assert.Equal(t, 3, total)
			assert.Equal(t, []string{"Blue bicycle helmet"}, titlesFor(t, store, ids))

			ids, total, err = s.SearchTitle("bicycle", 5, 3)
			require.NoError(t, err)
			assert.Equal(t, 3, total)
			assert.Empty(t, ids)
		})
	}
}

func TestSearchTitle_MetacharactersAreLiteral(t *testing.T) {
	store := seedStore(t)

	for name, s := range searchers(t, store) {
		t.Run(name, func(t *testing.T) {
			ids, total, err := s.SearchTitle("(almost", 0, 10)
			require.NoError(t, err)
			assert.Equal(t, 1, total)
			assert.Equal(t, []string{"50% off (almost new) sofa*"}, titlesFor(t, store, ids))

			_, total, err = s.SearchTitle("sofa*", 0, 10)
			require.NoError(t, err)
			assert.Equal(t, 1, total)

			_, total, err = s.SearchTitle("r.ce", 0, 10)
			require.NoError(t, err)
			assert.Equal(t, 0, total, "dot must not act as a wildcard")
		})
	}
}

func TestSearchTitle_NoMatch(t *testing.T) {
	store := seedStore(t)

	for name, s := range searchers(t, store) {
		t.Run(name, func(t *testing.T) {
			ids, total, err := s.SearchTitle("zzz", 0, 3)
			require.NoError(t, err)
			assert.Equal(t, 0, total)
			assert.Empty(t, ids)
		})
	}
}

func TestSearchTitle_InvalidRange(t *testing.T) {
	store := seedStore(t)

	for name, s := range searchers(t, store) {
		t.Run(name, func(t *testing.T) {
			_, _, err := s.SearchTitle("bike", -1, 3)
			assert.ErrorIs(t, err, product.ErrInvalidRange)
			_, _, err = s.SearchTitle("bike", 0, 0)
			assert.ErrorIs(t, err, product.ErrInvalidRange)
		})
	}
}

func TestBleveIndex_Listeners(t *testing.T) {
	store := seedStore(t)
	idx, err := NewBleveIndex(store, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	added := &product.Product{Title: "Folding bicycle", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, store.SaveProduct(added))
	idx.OnProductsSaved([]*product.Product{added})

	ids, total, err := idx.SearchTitle("bicycle", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, []int64{added.ID}, ids)

	idx.OnProductDeleted(added.ID)
	_, total, err = idx.SearchTitle("bicycle", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestBleveIndex_ReindexDropsStale(t *testing.T) {
	store := seedStore(t)
	idxPath := filepath.Join(t.TempDir(), "index.bleve")

	idx, err := NewBleveIndex(store, idxPath)
	require.NoError(t, err)

	all, err := store.AllProducts()
	require.NoError(t, err)
	require.NoError(t, store.DeleteProduct(all[0].ID))
	require.NoError(t, idx.Close())

	// Reopening an existing index reconciles it with the store.
	idx, err = NewBleveIndex(store, idxPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	fi, err := os.Stat(idxPath)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

var (
	_ Searcher       = (*BleveIndex)(nil)
	_ UpdateListener = (*BleveIndex)(nil)
	_ DeleteListener = (*BleveIndex)(nil)
	_ DebugStatser   = (*BleveIndex)(nil)
	_ Searcher       = (*ScanSearcher)(nil)
)
