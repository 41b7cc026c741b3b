package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"

	"github.com/pders01/bazaar/internal/debuglog"
	"github.com/pders01/bazaar/internal/product"
	"github.com/pders01/bazaar/internal/search"
	"github.com/pders01/bazaar/internal/storage"
)

// Service serves listings from the local bbolt store. It implements
// product.Service so the feed controller cannot tell it from the hosted
// backend.
type Service struct {
	store    *storage.Store
	searcher search.Searcher
}

// NewService wires a store and a title searcher. A nil searcher falls back
// to scanning the store.
func NewService(store *storage.Store, searcher search.Searcher) *Service {
	if searcher == nil {
		searcher = search.NewScanSearcher(store)
	}
	return &Service{store: store, searcher: searcher}
}

func (s *Service) Store() *storage.Store { return s.store }

func (s *Service) FetchDefaultPage(ctx context.Context, offset, limit int) (product.Page, error) {
	if err := product.CheckRange(offset, limit); err != nil {
		return product.Page{}, err
	}
	if err := ctx.Err(); err != nil {
		return product.Page{}, err
	}

	all, err := s.store.AllProducts()
	if err != nil {
		return product.Page{}, err
	}

	page := product.Page{Total: len(all), Items: []product.Product{}}
	if offset >= len(all) {
		return page, nil
	}
	end := min(offset+limit, len(all))
	page.Items = values(all[offset:end])
	return page, nil
}

func (s *Service) FetchHighlighted(ctx context.Context) ([]product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all, err := s.store.AllProducts()
	if err != nil {
		return nil, err
	}
	return values(lo.Filter(all, func(p *product.Product, _ int) bool {
		return p.Highlighted
	})), nil
}

func (s *Service) SearchByTitle(ctx context.Context, substring string, offset, limit int) (product.Page, error) {
	if err := product.CheckRange(offset, limit); err != nil {
		return product.Page{}, err
	}
	if err := ctx.Err(); err != nil {
		return product.Page{}, err
	}

	start := time.Now()
	ids, total, err := s.searcher.SearchTitle(substring, offset, limit)
	if err != nil {
		return product.Page{}, err
	}

	items := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		p, err := s.store.GetProduct(id)
		if errors.Is(err, product.ErrNotFound) {
			// Index lagging behind a delete.
			total--
			continue
		}
		if err != nil {
			return product.Page{}, err
		}
		items = append(items, *p)
	}

	debuglog.WithFields(map[string]interface{}{
		"query":    substring,
		"offset":   offset,
		"hits":     len(items),
		"total":    total,
		"duration": time.Since(start),
	}).Debugf("local title search")

	return product.Page{Items: items, Total: max(total, 0)}, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.store.DeleteProduct(id); err != nil {
		return err
	}
	if l, ok := s.searcher.(search.DeleteListener); ok {
		l.OnProductDeleted(id)
	}
	return nil
}

// Save stores products and keeps the search index in step.
func (s *Service) Save(products []*product.Product) error {
	if len(products) == 0 {
		return nil
	}
	if err := s.store.SaveProducts(products); err != nil {
		return err
	}
	if l, ok := s.searcher.(search.UpdateListener); ok {
		l.OnProductsSaved(products)
	}
	return nil
}

// ProductsByUser lists one owner's products, newest first.
func (s *Service) ProductsByUser(ctx context.Context, userID string) ([]product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	owned, err := s.store.ProductsByUser(userID)
	if err != nil {
		return nil, err
	}
	return values(owned), nil
}

func values(ps []*product.Product) []product.Product {
	return lo.Map(ps, func(p *product.Product, _ int) product.Product {
		return *p
	})
}
