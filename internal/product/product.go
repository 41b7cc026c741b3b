package product

import (
	"context"
	"time"
)

// Product is a marketplace listing as the backend returns it.
type Product struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Price       float64   `json:"price"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
	Highlighted bool      `json:"hilight"`
	Images      []string  `json:"images"`
	// SourceKey identifies the feed item a listing was imported from.
	SourceKey string `json:"source_key,omitempty"`
}

// Thumbnail returns the representative image URL, or "" if the listing has none.
func (p Product) Thumbnail() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Page is one slice of an ordered result set plus the size of the whole set.
type Page struct {
	Items []Product
	Total int
}

// Service is the remote product query port consumed by the feed controller.
// Implementations must be safe for concurrent use.
type Service interface {
	// FetchDefaultPage returns products ordered by CreatedAt, newest first.
	FetchDefaultPage(ctx context.Context, offset, limit int) (Page, error)
	// FetchHighlighted returns every highlighted product, newest first.
	FetchHighlighted(ctx context.Context) ([]Product, error)
	// SearchByTitle matches substring against the title, ignoring case.
	SearchByTitle(ctx context.Context, substring string, offset, limit int) (Page, error)
	DeleteProduct(ctx context.Context, id int64) error
}

// CheckRange validates pagination arguments shared by every backend.
func CheckRange(offset, limit int) error {
	if offset < 0 {
		return ErrInvalidRange
	}
	if limit <= 0 {
		return ErrInvalidRange
	}
	return nil
}
