package feed

import (
	"slices"
	"strings"

	"github.com/pders01/bazaar/internal/product"
)

// State is a read-only snapshot of the feed. Slices are copies.
type State struct {
	SearchQuery      string
	AllItems         []product.Product
	DisplayedItems   []product.Product
	HighlightedItems []product.Product
	// PageIndex is the zero-based index of the next page to fetch for the
	// active mode.
	PageIndex     int
	HasMore       bool
	IsLoadingMore bool
	IsSearching   bool
	IsRefreshing  bool
	// FeedErr is the last failure of the active feed, nil once it loads again.
	FeedErr        error
	HighlightedErr error
	// Version increases with every committed change, so a consumer receiving
	// snapshots from several goroutines can drop older ones.
	Version uint64
}

// Searching reports whether a search is active.
func (s State) Searching() bool {
	return strings.TrimSpace(s.SearchQuery) != ""
}

// feedState is the mutable state behind Controller.mu.
type feedState struct {
	searchQuery      string
	allItems         []product.Product
	displayedItems   []product.Product
	highlightedItems []product.Product
	pageIndex        int
	hasMore          bool
	isLoadingMore    bool
	isSearching      bool
	isRefreshing     bool
	highlightedErr   error

	// Errors and totals are kept per mode; the snapshot shows the active one.
	defaultErr  error
	searchErr   error
	total       int
	searchTotal int

	version uint64
}

func newFeedState() feedState {
	return feedState{hasMore: true, total: -1, searchTotal: -1}
}

func (s *feedState) searching() bool {
	return strings.TrimSpace(s.searchQuery) != ""
}

func (s *feedState) snapshot() State {
	st := State{
		SearchQuery:      s.searchQuery,
		AllItems:         slices.Clone(s.allItems),
		DisplayedItems:   slices.Clone(s.displayedItems),
		HighlightedItems: slices.Clone(s.highlightedItems),
		PageIndex:        s.pageIndex,
		HasMore:          s.hasMore,
		IsLoadingMore:    s.isLoadingMore,
		IsSearching:      s.isSearching,
		IsRefreshing:     s.isRefreshing,
		FeedErr:          s.defaultErr,
		HighlightedErr:   s.highlightedErr,
		Version:          s.version,
	}
	if s.searching() {
		st.FeedErr = s.searchErr
	}
	return st
}
