package search

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/pders01/bazaar/internal/debuglog"
	"github.com/pders01/bazaar/internal/product"
)

const titleSubstringAnalyzer = "title_substring"

type productDoc struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	TitleLC   string    `json:"title_lc"`
	CreatedAt time.Time `json:"created_at"`
}

// BleveIndex keeps a title index next to the bbolt store.
type BleveIndex struct {
	idx bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at indexPath and indexes the
// current products. An empty indexPath builds an in-memory index.
func NewBleveIndex(source ProductSource, indexPath string) (*BleveIndex, error) {
	var idx bleve.Index
	var err error

	if indexPath == "" {
		idx, err = bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, err
		}
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(indexPath), 0o755); mkErr != nil {
			return nil, fmt.Errorf("creating index directory: %w", mkErr)
		}

		idx, err = bleve.Open(indexPath)
		if err != nil {
			idx, err = bleve.New(indexPath, buildIndexMapping())
			if err != nil {
				return nil, err
			}
		}
	}

	b := &BleveIndex{idx: idx}
	if source != nil {
		all, err := source.AllProducts()
		if err != nil {
			idx.Close()
			return nil, err
		}
		if err := b.Reindex(all); err != nil {
			idx.Close()
			return nil, err
		}
	}
	return b, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	// The whole title as one lowercased term, so a regexp over the term is a
	// substring match.
	if err := im.AddCustomAnalyzer(titleSubstringAnalyzer, map[string]any{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		panic(err)
	}

	dm := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = standard.Name
	title.Store = true

	titleLC := bleve.NewTextFieldMapping()
	titleLC.Analyzer = titleSubstringAnalyzer
	titleLC.Store = false
	titleLC.IncludeTermVectors = false

	created := bleve.NewDateTimeFieldMapping()
	created.Store = false
	created.DocValues = true

	id := bleve.NewNumericFieldMapping()
	id.Store = true
	id.DocValues = true

	dm.AddFieldMappingsAt("title", title)
	dm.AddFieldMappingsAt("title_lc", titleLC)
	dm.AddFieldMappingsAt("created_at", created)
	dm.AddFieldMappingsAt("id", id)

	im.DefaultMapping = dm
	return im
}

func docID(id int64) string { return strconv.FormatInt(id, 10) }

func toDoc(p *product.Product) productDoc {
	return productDoc{
		ID:        p.ID,
		Title:     p.Title,
		TitleLC:   strings.ToLower(strings.Join(strings.Fields(p.Title), " ")),
		CreatedAt: p.CreatedAt,
	}
}

// substringPattern matches any term containing substring. The pattern is
// lowercased and whitespace-collapsed the same way title_lc is.
func substringPattern(substring string) string {
	needle := strings.ToLower(strings.Join(strings.Fields(substring), " "))
	return ".*" + regexp.QuoteMeta(needle) + ".*"
}

func (b *BleveIndex) SearchTitle(substring string, offset, limit int) ([]int64, int, error) {
	if err := product.CheckRange(offset, limit); err != nil {
		return nil, 0, err
	}

	q := bleve.NewRegexpQuery(substringPattern(substring))
	q.SetField("title_lc")

	req := bleve.NewSearchRequestOptions(q, limit, offset, false)
	req.SortBy([]string{"-created_at", "-id"})
	res, err := b.idx.Search(req)
	if err != nil {
		return nil, 0, err
	}

	ids := make([]int64, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, int(res.Total), nil
}

// Reindex indexes all and drops documents for products no longer present.
func (b *BleveIndex) Reindex(all []*product.Product) error {
	keep := make(map[string]struct{}, len(all))
	batch := b.idx.NewBatch()
	for _, p := range all {
		keep[docID(p.ID)] = struct{}{}
		if err := batch.Index(docID(p.ID), toDoc(p)); err != nil {
			return err
		}
	}

	stale, err := b.docIDs()
	if err != nil {
		return err
	}
	for _, id := range stale {
		if _, ok := keep[id]; !ok {
			batch.Delete(id)
		}
	}
	return b.idx.Batch(batch)
}

func (b *BleveIndex) docIDs() ([]string, error) {
	var ids []string
	from := 0
	size := 1000
	for {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), size, from, false)
		req.Fields = []string{}
		res, err := b.idx.Search(req)
		if err != nil {
			return nil, err
		}
		for _, h := range res.Hits {
			ids = append(ids, h.ID)
		}
		if len(res.Hits) < size {
			return ids, nil
		}
		from += size
	}
}

// OnProductsSaved indexes the saved products.
func (b *BleveIndex) OnProductsSaved(products []*product.Product) {
	batch := b.idx.NewBatch()
	for _, p := range products {
		_ = batch.Index(docID(p.ID), toDoc(p))
	}
	if err := b.idx.Batch(batch); err != nil {
		debuglog.Warnf("indexing %d products: %v", len(products), err)
	}
}

func (b *BleveIndex) OnProductDeleted(id int64) {
	if err := b.idx.Delete(docID(id)); err != nil {
		debuglog.Warnf("removing product %d from index: %v", id, err)
	}
}

// DocCount reports total documents in the index.
func (b *BleveIndex) DocCount() (int, error) {
	n, err := b.idx.DocCount()
	return int(n), err
}

func (b *BleveIndex) Close() error {
	return b.idx.Close()
}
