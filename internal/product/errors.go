package product

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("product not found")
	ErrEmptyQuery   = errors.New("search text cannot be empty")
	ErrInvalidRange = errors.New("invalid pagination range")
)

// Fetch operation names carried by FetchError.
const (
	OpFetchPage        = "fetch_page"
	OpFetchHighlighted = "fetch_highlighted"
	OpSearch           = "search"
)

// FetchError is a failed read against the product service. Reads are never
// retried automatically.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DeleteError is a failed deletion. The listing stays where it was.
type DeleteError struct {
	ID  int64
	Err error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("deleting product %d: %v", e.ID, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }
