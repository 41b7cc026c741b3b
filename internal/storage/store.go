package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/pders01/bazaar/internal/product"
	bolt "go.etcd.io/bbolt"
)

var (
	productsBucket = []byte("products")
	metaBucket     = []byte("metadata")
)

type Store struct {
	db *bolt.DB
}

func NewStore(dbPath string) (*Store, error) {
	return NewStoreWithTimeout(dbPath, 1*time.Second)
}

// NewStoreWithTimeout opens the database, waiting at most timeout for the
// file lock held by another process.
func NewStoreWithTimeout(dbPath string, timeout time.Duration) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{productsBucket, metaBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		meta := tx.Bucket(metaBucket)
		if meta.Get([]byte(MetaSchemaVersion)) == nil {
			return meta.Put([]byte(MetaSchemaVersion), []byte(schemaVersion))
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func idKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

func putProduct(b *bolt.Bucket, p *product.Product) error {
	if p.ID == 0 {
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		p.ID = int64(seq)
	} else if uint64(p.ID) > b.Sequence() {
		if err := b.SetSequence(uint64(p.ID)); err != nil {
			return err
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return b.Put(idKey(p.ID), data)
}

// SaveProduct inserts or replaces p. A zero ID is assigned from the bucket
// sequence and a zero CreatedAt is set to now; both are written back into p.
func (s *Store) SaveProduct(p *product.Product) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putProduct(tx.Bucket(productsBucket), p)
	})
}

func (s *Store) SaveProducts(products []*product.Product) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(productsBucket)
		for _, p := range products {
			if err := putProduct(b, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetProduct(id int64) (*product.Product, error) {
	var p product.Product
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(productsBucket).Get(idKey(id))
		if data == nil {
			return product.ErrNotFound
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) DeleteProduct(id int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(productsBucket)
		key := idKey(id)
		if b.Get(key) == nil {
			return product.ErrNotFound
		}
		return b.Delete(key)
	})
}

func (s *Store) scan(keep func(*product.Product) bool) ([]*product.Product, error) {
	var products []*product.Product
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(productsBucket).ForEach(func(_ []byte, v []byte) error {
			var p product.Product
			if err := json.Unmarshal(v, &p); err != nil {
				return nil
			}
			if keep == nil || keep(&p) {
				products = append(products, &p)
			}
			return nil
		})
	})
	SortNewestFirst(products)
	return products, err
}

// SortNewestFirst orders by CreatedAt descending, higher id first on ties.
func SortNewestFirst(products []*product.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		if products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].ID > products[j].ID
		}
		return products[i].CreatedAt.After(products[j].CreatedAt)
	})
}

// AllProducts returns every stored product, newest first.
func (s *Store) AllProducts() ([]*product.Product, error) {
	return s.scan(nil)
}

func (s *Store) ProductsByUser(userID string) ([]*product.Product, error) {
	return s.scan(func(p *product.Product) bool {
		return p.UserID == userID
	})
}

// FindBySourceKey returns the product imported from the given feed item.
func (s *Store) FindBySourceKey(key string) (*product.Product, error) {
	if key == "" {
		return nil, product.ErrNotFound
	}
	matches, err := s.scan(func(p *product.Product) bool {
		return p.SourceKey == key
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, product.ErrNotFound
	}
	return matches[0], nil
}

func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(productsBucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Store) SetMeta(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put([]byte(key), []byte(value))
	})
}

// GetMeta returns "" for an unset key.
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		value = string(tx.Bucket(metaBucket).Get([]byte(key)))
		return nil
	})
	return value, err
}

func (s *Store) SaveImportRecord(rec ImportRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.SetMeta(MetaLastImport, string(data))
}

// LastImport returns nil when nothing was imported yet.
func (s *Store) LastImport() (*ImportRecord, error) {
	raw, err := s.GetMeta(MetaLastImport)
	if err != nil || raw == "" {
		return nil, err
	}
	var rec ImportRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decoding import record: %w", err)
	}
	return &rec, nil
}
