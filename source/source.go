// Package source provides the row-fetch collaborators a store loads datasets
// through. Implementations are stateless: they perform I/O on every call and
// leave caching and deduplication to the store.
package source

import (
	"context"

	"github.com/tailored-agentic-units/tabula/transform"
)

// Source fetches the raw rows of one dataset.
type Source interface {
	// Fetch returns the ordered rows stored under key.
	Fetch(ctx context.Context, key string) ([]transform.Row, error)
}

// Lister is implemented by sources that can enumerate their dataset keys.
type Lister interface {
	// List returns all available keys in sorted order.
	List(ctx context.Context) ([]string, error)
}

// FetchFunc adapts a plain function to the Source interface.
type FetchFunc func(ctx context.Context, key string) ([]transform.Row, error)

func (f FetchFunc) Fetch(ctx context.Context, key string) ([]transform.Row, error) {
	return f(ctx, key)
}
