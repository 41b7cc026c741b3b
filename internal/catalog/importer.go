package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mmcdole/gofeed"
	"github.com/samber/lo"

	"github.com/pders01/bazaar/internal/debuglog"
	"github.com/pders01/bazaar/internal/product"
	"github.com/pders01/bazaar/internal/storage"
	"github.com/pders01/bazaar/internal/validation"
)

type ImporterOptions struct {
	UserAgent  string
	Timeout    time.Duration
	HTTPClient *http.Client
	// AllowPrivateHosts accepts localhost and private network feeds.
	AllowPrivateHosts bool
	// Force ignores the ETag/Last-Modified remembered from the last import.
	Force      bool
	MaxRetries uint64
	Now        func() time.Time
}

// Importer turns an RSS/Atom feed of classified ads into stored listings.
type Importer struct {
	svc       *Service
	fetcher   *fetcher
	parser    *gofeed.Parser
	validator *validation.URLValidator
	force     bool
	retries   uint64
	now       func() time.Time
	mu        sync.Mutex
}

type ImportResult struct {
	URL         string
	Created     int
	Updated     int
	NotModified bool
	Products    []*product.Product
}

func NewImporter(svc *Service, opts ImporterOptions) *Importer {
	validator := validation.NewURLValidator()
	if opts.AllowPrivateHosts {
		validator = validation.NewPermissiveURLValidator()
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Importer{
		svc:       svc,
		fetcher:   newFetcher(opts.HTTPClient, opts.UserAgent, opts.Timeout),
		parser:    gofeed.NewParser(),
		validator: validator,
		force:     opts.Force,
		retries:   opts.MaxRetries,
		now:       opts.Now,
	}
}

func validatorsKey(url string) string { return "validators:" + url }

func newRetryBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.Multiplier = 2
	return bo
}

// Import fetches rawURL and upserts its items. Items already imported, by
// GUID or link, are updated in place.
func (im *Importer) Import(ctx context.Context, rawURL string) (*ImportResult, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	url, err := im.validator.ValidateAndNormalize(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed URL: %w", err)
	}
	log := debuglog.WithFields(map[string]interface{}{"url": url})
	store := im.svc.Store()

	var prev validators
	if !im.force {
		if raw, metaErr := store.GetMeta(validatorsKey(url)); metaErr == nil && raw != "" {
			_ = json.Unmarshal([]byte(raw), &prev)
		}
	}

	resp, updated, err := im.fetcher.fetch(ctx, url, prev)
	if err != nil {
		return nil, err
	}
	if !updated {
		log.Infof("feed not modified")
		return &ImportResult{URL: url, NotModified: true}, nil
	}
	defer resp.Body.Close()

	feed, err := im.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	now := im.now()
	products := lo.FilterMap(feed.Items, func(item *gofeed.Item, _ int) (*product.Product, bool) {
		p := itemToProduct(item, now)
		return p, p.Title != ""
	})
	keyed, keyless := lo.FilterReject(products, func(p *product.Product, _ int) bool {
		return p.SourceKey != ""
	})
	products = append(lo.UniqBy(keyed, func(p *product.Product) string { return p.SourceKey }), keyless...)

	result := &ImportResult{URL: url, Products: products}
	for _, p := range products {
		existing, findErr := store.FindBySourceKey(p.SourceKey)
		switch {
		case findErr == nil:
			p.ID = existing.ID
			p.UserID = lo.Ternary(p.UserID != "", p.UserID, existing.UserID)
			p.Location = lo.Ternary(p.Location != "", p.Location, existing.Location)
			result.Updated++
		case errors.Is(findErr, product.ErrNotFound):
			result.Created++
		default:
			return nil, fmt.Errorf("looking up %s: %w", p.SourceKey, findErr)
		}
	}

	attempt := 0
	save := func() error {
		attempt++
		if err := im.svc.Save(products); err != nil {
			log.With("attempt", attempt).Warnf("saving listings: %v", err)
			return err
		}
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(newRetryBackoff(), im.retries), ctx)
	if err := backoff.Retry(save, policy); err != nil {
		return nil, fmt.Errorf("saving listings: %w", err)
	}

	if data, err := json.Marshal(validatorsFrom(resp)); err == nil {
		if err := store.SetMeta(validatorsKey(url), string(data)); err != nil {
			log.Warnf("remembering cache validators: %v", err)
		}
	}
	if err := store.SaveImportRecord(storage.ImportRecord{
		URL:      url,
		Created:  result.Created,
		Updated:  result.Updated,
		Finished: im.now().UTC(),
	}); err != nil {
		log.Warnf("saving import record: %v", err)
	}

	log.With("created", result.Created).With("updated", result.Updated).Infof("imported %q", strings.TrimSpace(feed.Title))
	return result, nil
}
