// Package feed keeps the paginated, searchable product feed shown on the
// browse screen in step with the product service.
package feed

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/pders01/bazaar/internal/debounce"
	"github.com/pders01/bazaar/internal/debuglog"
	"github.com/pders01/bazaar/internal/product"
)

const (
	DefaultPageSize       = 3
	DefaultDebounceWindow = 500 * time.Millisecond
	DefaultFetchTimeout   = 15 * time.Second
)

type Options struct {
	PageSize       int
	DebounceWindow time.Duration
	FetchTimeout   time.Duration
	// OnChange receives a snapshot after every committed change. It is called
	// without the controller lock held, possibly from several goroutines.
	OnChange func(State)
	// OnError receives fetch failures: always a *product.FetchError.
	OnError func(error)
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = DefaultDebounceWindow
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	return o
}

// Controller owns the feed state for one mounted view.
type Controller struct {
	svc       product.Service
	opts      Options
	debouncer *debounce.Debouncer

	// base outlives individual calls and is cancelled by Close; debounced
	// searches run under it.
	base   context.Context
	cancel context.CancelFunc

	mu sync.Mutex
	st feedState
	// generation is bumped by Refresh; page-0 and highlighted results from
	// an older generation are dropped.
	generation uint64
	// pageEpoch is bumped whenever pagination is reset; LoadMore results
	// from an older epoch are dropped.
	pageEpoch uint64
	// searchToken is bumped by every Search call; only the latest commits.
	searchToken uint64
	closed      bool
}

func NewController(svc product.Service, opts Options) *Controller {
	opts = opts.withDefaults()
	base, cancel := context.WithCancel(context.Background())
	return &Controller{
		svc:       svc,
		opts:      opts,
		debouncer: debounce.New(opts.DebounceWindow),
		base:      base,
		cancel:    cancel,
		st:        newFeedState(),
	}
}

func (c *Controller) PageSize() int { return c.opts.PageSize }

// State returns a snapshot of the current feed state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.snapshot()
}

// commit applies fn under the lock and publishes the result. fn returns
// false to abandon the change without notifying.
func (c *Controller) commit(fn func(st *feedState) bool) {
	c.mu.Lock()
	if c.closed || !fn(&c.st) {
		c.mu.Unlock()
		return
	}
	c.st.version++
	snap := c.st.snapshot()
	c.mu.Unlock()

	if c.opts.OnChange != nil {
		c.opts.OnChange(snap)
	}
}

func (c *Controller) report(op string, err error, fields map[string]interface{}) error {
	fetchErr := &product.FetchError{Op: op, Err: err}
	debuglog.WithFields(fields).Warnf("%v", fetchErr)
	if c.opts.OnError != nil {
		c.opts.OnError(fetchErr)
	}
	return fetchErr
}

func (c *Controller) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opts.FetchTimeout)
}

// Initialize loads page 0 and the highlighted list concurrently. Failures are
// recorded in FeedErr and HighlightedErr, never returned.
func (c *Controller) Initialize(ctx context.Context) {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	c.loadFirstPages(ctx, gen)
}

// Refresh reloads page 0 and the highlighted list, replacing what was
// accumulated. A LoadMore still in flight is discarded when it lands. With a
// search active the search is re-run as well.
func (c *Controller) Refresh(ctx context.Context) {
	var (
		gen       uint64
		query     string
		searching bool
	)
	c.commit(func(st *feedState) bool {
		c.generation++
		gen = c.generation
		st.total = -1
		st.isRefreshing = true
		searching = st.searching()
		query = strings.TrimSpace(st.searchQuery)
		if !searching {
			c.pageEpoch++
			st.pageIndex = 0
			st.hasMore = true
		}
		return true
	})

	c.loadFirstPages(ctx, gen)
	if searching {
		c.mu.Lock()
		c.searchToken++
		token := c.searchToken
		c.mu.Unlock()
		c.debouncer.Cancel()
		c.runSearch(ctx, query, token)
	}

	c.commit(func(st *feedState) bool {
		if gen != c.generation {
			return false
		}
		st.isRefreshing = false
		return true
	})
}

func (c *Controller) loadFirstPages(ctx context.Context, gen uint64) {
	var g errgroup.Group
	g.Go(func() error {
		c.loadFirstPage(ctx, gen)
		return nil
	})
	g.Go(func() error {
		c.loadHighlighted(ctx, gen)
		return nil
	})
	_ = g.Wait()
}

func (c *Controller) loadFirstPage(ctx context.Context, gen uint64) {
	limit := c.opts.PageSize
	fields := map[string]interface{}{"op": product.OpFetchPage, "offset": 0, "limit": limit, "generation": gen}

	callCtx, cancel := c.callCtx(ctx)
	start := time.Now()
	page, err := c.svc.FetchDefaultPage(callCtx, 0, limit)
	cancel()
	fields["duration"] = time.Since(start)

	applied := false
	c.commit(func(st *feedState) bool {
		if gen != c.generation {
			return false
		}
		applied = true
		searching := st.searching()
		if err != nil {
			st.defaultErr = &product.FetchError{Op: product.OpFetchPage, Err: err}
			if !searching {
				st.hasMore = false
			}
			return true
		}
		st.allItems = page.Items
		st.total = page.Total
		st.defaultErr = nil
		if !searching {
			c.pageEpoch++
			st.displayedItems = slices.Clone(page.Items)
			st.pageIndex = 1
			st.hasMore = limit < page.Total
		}
		return true
	})

	switch {
	case !applied:
		debuglog.WithFields(fields).Debugf("discarding stale first page")
	case err != nil:
		c.report(product.OpFetchPage, err, fields)
	default:
		debuglog.WithFields(fields).With("total", page.Total).Debugf("fetched first page")
	}
}

func (c *Controller) loadHighlighted(ctx context.Context, gen uint64) {
	fields := map[string]interface{}{"op": product.OpFetchHighlighted, "generation": gen}

	callCtx, cancel := c.callCtx(ctx)
	start := time.Now()
	items, err := c.svc.FetchHighlighted(callCtx)
	cancel()
	fields["duration"] = time.Since(start)

	applied := false
	c.commit(func(st *feedState) bool {
		if gen != c.generation {
			return false
		}
		applied = true
		if err != nil {
			st.highlightedErr = &product.FetchError{Op: product.OpFetchHighlighted, Err: err}
			return true
		}
		st.highlightedItems = items
		st.highlightedErr = nil
		return true
	})

	switch {
	case !applied:
		debuglog.WithFields(fields).Debugf("discarding stale highlighted list")
	case err != nil:
		c.report(product.OpFetchHighlighted, err, fields)
	default:
		debuglog.WithFields(fields).With("count", len(items)).Debugf("fetched highlighted")
	}
}

// LoadMore fetches the next page of the active mode. It is a no-op while a
// page is loading or once the end is reached. In search mode it only pages
// after the first search page has been committed.
func (c *Controller) LoadMore(ctx context.Context) {
	var (
		searching bool
		query     string
		token     uint64
		epoch     uint64
		pageIdx   int
		start     bool
	)
	c.commit(func(st *feedState) bool {
		if st.isLoadingMore || !st.hasMore {
			return false
		}
		searching = st.searching()
		known := st.total
		if searching {
			if st.isSearching || st.pageIndex == 0 {
				return false
			}
			known = st.searchTotal
		}
		pageIdx = st.pageIndex
		if !searching {
			// After a cleared search pageIndex is 0 while the cached pages are
			// still held. Continue after them.
			pageIdx = max(pageIdx, len(st.allItems)/c.opts.PageSize)
		}
		offset := pageIdx * c.opts.PageSize
		if known >= 0 && offset >= known {
			st.hasMore = false
			return true
		}
		st.isLoadingMore = true
		query = strings.TrimSpace(st.searchQuery)
		token = c.searchToken
		epoch = c.pageEpoch
		start = true
		return true
	})
	if !start {
		return
	}

	limit := c.opts.PageSize
	offset := pageIdx * limit
	op := lo.Ternary(searching, product.OpSearch, product.OpFetchPage)
	fields := map[string]interface{}{"op": op, "offset": offset, "limit": limit, "epoch": epoch}
	if searching {
		fields["token"] = token
	}

	callCtx, cancel := c.callCtx(ctx)
	began := time.Now()
	var (
		page product.Page
		err  error
	)
	if searching {
		page, err = c.svc.SearchByTitle(callCtx, query, offset, limit)
	} else {
		page, err = c.svc.FetchDefaultPage(callCtx, offset, limit)
	}
	cancel()
	fields["duration"] = time.Since(began)

	stale := false
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	c.commit(func(st *feedState) bool {
		st.isLoadingMore = false
		if epoch != c.pageEpoch || (searching && token != c.searchToken) || searching != st.searching() {
			stale = true
			return true
		}
		if err != nil {
			st.hasMore = false
			fetchErr := &product.FetchError{Op: op, Err: err}
			if searching {
				st.searchErr = fetchErr
			} else {
				st.defaultErr = fetchErr
			}
			return true
		}

		if searching {
			st.displayedItems = appendPage(st.displayedItems, page.Items)
			st.searchTotal = page.Total
			st.searchErr = nil
		} else {
			st.allItems = appendPage(st.allItems, page.Items)
			st.displayedItems = slices.Clone(st.allItems)
			st.total = page.Total
			st.defaultErr = nil
		}
		st.hasMore = (pageIdx+1)*limit < page.Total
		st.pageIndex = pageIdx + 1
		return true
	})

	switch {
	case closed:
	case stale:
		debuglog.WithFields(fields).Debugf("discarding stale page")
	case err != nil:
		c.report(op, err, fields)
	default:
		debuglog.WithFields(fields).With("total", page.Total).Debugf("fetched page")
	}
}

// appendPage appends a page to the accumulated list. Items already present
// are skipped so a shifted offset cannot duplicate. Only first-page loads
// replace a list, and they do not come through here.
func appendPage(list, items []product.Product) []product.Product {
	seen := lo.SliceToMap(list, func(p product.Product) (int64, struct{}) {
		return p.ID, struct{}{}
	})
	out := slices.Clone(list)
	for _, p := range items {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Search updates the query. Blank text restores the default feed at once.
// Otherwise the query runs once the debounce window passes without another
// call.
func (c *Controller) Search(text string) {
	trimmed := strings.TrimSpace(text)

	var token uint64
	cleared := false
	c.commit(func(st *feedState) bool {
		c.searchToken++
		token = c.searchToken
		if trimmed == "" {
			cleared = true
			if st.searching() {
				c.pageEpoch++
			}
			st.searchQuery = ""
			st.displayedItems = slices.Clone(st.allItems)
			st.hasMore = true
			st.pageIndex = 0
			st.isSearching = false
			st.searchTotal = -1
			st.searchErr = nil
			return true
		}
		c.enterSearch(st, text)
		return true
	})

	if cleared {
		c.debouncer.Cancel()
		return
	}
	c.debouncer.Trigger(func() {
		c.runSearch(c.base, trimmed, token)
	})
}

// SubmitSearch runs the query immediately, dropping any pending debounced
// call. Blank text returns product.ErrEmptyQuery and leaves the state alone.
func (c *Controller) SubmitSearch(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return product.ErrEmptyQuery
	}

	var token uint64
	c.commit(func(st *feedState) bool {
		c.searchToken++
		token = c.searchToken
		c.enterSearch(st, text)
		return true
	})
	c.debouncer.Cancel()
	c.runSearch(ctx, trimmed, token)
	return nil
}

// enterSearch records the query. A new query restarts search pagination, so
// LoadMore waits for its first page instead of extending the old results.
func (c *Controller) enterSearch(st *feedState, text string) {
	if !st.searching() || strings.TrimSpace(st.searchQuery) != strings.TrimSpace(text) {
		c.pageEpoch++
		st.pageIndex = 0
		st.hasMore = true
		st.searchTotal = -1
		st.searchErr = nil
	}
	st.searchQuery = text
}

func (c *Controller) runSearch(ctx context.Context, query string, token uint64) {
	limit := c.opts.PageSize
	fields := map[string]interface{}{"op": product.OpSearch, "query": query, "offset": 0, "limit": limit, "token": token}

	current := false
	c.commit(func(st *feedState) bool {
		if token != c.searchToken {
			return false
		}
		current = true
		st.isSearching = true
		return true
	})
	if !current {
		debuglog.WithFields(fields).Debugf("skipping superseded search")
		return
	}

	callCtx, cancel := c.callCtx(ctx)
	start := time.Now()
	page, err := c.svc.SearchByTitle(callCtx, query, 0, limit)
	cancel()
	fields["duration"] = time.Since(start)

	applied := false
	c.commit(func(st *feedState) bool {
		if token != c.searchToken {
			return false
		}
		applied = true
		st.isSearching = false
		if err != nil {
			st.hasMore = false
			st.searchErr = &product.FetchError{Op: product.OpSearch, Err: err}
			return true
		}
		c.pageEpoch++
		st.displayedItems = page.Items
		st.searchTotal = page.Total
		st.hasMore = page.Total > limit
		st.pageIndex = 1
		st.searchErr = nil
		return true
	})

	switch {
	case !applied:
		debuglog.WithFields(fields).Debugf("discarding stale search result")
	case err != nil:
		if errors.Is(err, context.Canceled) && c.base.Err() != nil {
			return
		}
		c.report(product.OpSearch, err, fields)
	default:
		debuglog.WithFields(fields).With("total", page.Total).Debugf("search committed")
	}
}

// RemoveItem deletes the product and, once the service confirms, drops it
// from every list. On failure the state is untouched and a
// *product.DeleteError is returned.
func (c *Controller) RemoveItem(ctx context.Context, id int64) error {
	callCtx, cancel := c.callCtx(ctx)
	err := c.svc.DeleteProduct(callCtx, id)
	cancel()
	if err != nil {
		delErr := &product.DeleteError{ID: id, Err: err}
		debuglog.Warnf("%v", delErr)
		return delErr
	}

	isID := func(p product.Product, _ int) bool { return p.ID == id }
	c.commit(func(st *feedState) bool {
		before := len(st.allItems)
		st.allItems = lo.Reject(st.allItems, isID)
		if len(st.allItems) < before && st.total > 0 {
			st.total--
		}
		before = len(st.displayedItems)
		st.displayedItems = lo.Reject(st.displayedItems, isID)
		if st.searching() && len(st.displayedItems) < before && st.searchTotal > 0 {
			st.searchTotal--
		}
		st.highlightedItems = lo.Reject(st.highlightedItems, isID)
		return true
	})
	debuglog.Infof("removed product %d", id)
	return nil
}

// Close drops the pending debounced search and stops publishing changes.
// Results that arrive afterwards are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.debouncer.Cancel()
	c.cancel()
}
