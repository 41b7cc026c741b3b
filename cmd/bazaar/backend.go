package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/pders01/bazaar/internal/catalog"
	"github.com/pders01/bazaar/internal/config"
	"github.com/pders01/bazaar/internal/debuglog"
	"github.com/pders01/bazaar/internal/postgrest"
	"github.com/pders01/bazaar/internal/product"
	"github.com/pders01/bazaar/internal/search"
	"github.com/pders01/bazaar/internal/storage"
	"github.com/pders01/bazaar/internal/validation"
)

var errNotLocal = errors.New("this command needs the local backend (backend.kind = \"local\")")

// ownerLister lists the products of one seller. Both backends implement it.
type ownerLister interface {
	ProductsByUser(ctx context.Context, userID string) ([]product.Product, error)
}

// backend is the listing source a command works against. catalog is nil
// when listings come from the hosted backend.
type backend struct {
	svc     product.Service
	owners  ownerLister
	catalog *catalog.Service
	closers []func() error
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			debuglog.Warnf("closing backend: %v", err)
		}
	}
	b.closers = nil
}

func openBackend(cfg *config.Config) (*backend, error) {
	switch cfg.Backend.Kind {
	case config.BackendPostgREST:
		client, err := postgrest.New(postgrest.Config{
			BaseURL:   cfg.Backend.URL,
			APIKey:    cfg.Backend.APIKey,
			Timeout:   cfg.Backend.Timeout,
			UserAgent: cfg.Backend.UserAgent,
		})
		if err != nil {
			return nil, err
		}
		return &backend{svc: client, owners: client}, nil
	default:
		return openLocal(cfg)
	}
}

func openLocal(cfg *config.Config) (*backend, error) {
	paths := validation.NewPathHandler()
	dbFile, err := paths.DBPath(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("database path: %w", err)
	}

	store, err := storage.NewStoreWithTimeout(dbFile, cfg.Database.Timeout)
	if err != nil {
		return nil, err
	}
	b := &backend{closers: []func() error{store.Close}}

	var searcher search.Searcher
	indexPath, err := paths.IndexPath(cfg.Database.SearchIndex)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("search index path: %w", err)
	}
	if indexPath != "" {
		idx, err := search.NewBleveIndex(store, indexPath)
		if err != nil {
			// The scan searcher gives the same results, only slower.
			debuglog.Warnf("opening search index %s: %v", indexPath, err)
		} else {
			searcher = idx
			b.closers = append(b.closers, idx.Close)
		}
	}

	b.catalog = catalog.NewService(store, searcher)
	b.svc = b.catalog
	b.owners = b.catalog
	return b, nil
}
