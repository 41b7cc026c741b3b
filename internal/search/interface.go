package search

import "github.com/pders01/bazaar/internal/product"

// Searcher resolves a title substring to product ids, newest first.
type Searcher interface {
	SearchTitle(substring string, offset, limit int) (ids []int64, total int, err error)
}

// UpdateListener can be implemented by search engines that maintain
// an external index and want to be notified about data changes.
type UpdateListener interface {
	OnProductsSaved(products []*product.Product)
}

// DeleteListener can be implemented to get notified when a product is deleted.
type DeleteListener interface {
	OnProductDeleted(id int64)
}

// DebugStatser provides lightweight stats for visibility/debugging.
type DebugStatser interface {
	DocCount() (int, error)
}

// ProductSource is the part of the store the searchers read from.
type ProductSource interface {
	AllProducts() ([]*product.Product, error)
}
