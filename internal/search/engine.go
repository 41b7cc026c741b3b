package search

import (
	"strings"

	"github.com/pders01/bazaar/internal/product"
)

// ScanSearcher matches titles by scanning every stored product. It needs no
// index and is used when no index path is configured.
type ScanSearcher struct {
	source ProductSource
}

func NewScanSearcher(source ProductSource) *ScanSearcher {
	return &ScanSearcher{source: source}
}

func (s *ScanSearcher) SearchTitle(substring string, offset, limit int) ([]int64, int, error) {
	if err := product.CheckRange(offset, limit); err != nil {
		return nil, 0, err
	}

	all, err := s.source.AllProducts()
	if err != nil {
		return nil, 0, err
	}

	needle := strings.ToLower(substring)
	var ids []int64
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Title), needle) {
			ids = append(ids, p.ID)
		}
	}

	total := len(ids)
	return window(ids, offset, limit), total, nil
}

func window(ids []int64, offset, limit int) []int64 {
	if offset >= len(ids) {
		return []int64{}
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	return ids[offset:end]
}
