package source

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/tailored-agentic-units/tabula/transform"
)

// Static serves rows held in memory. It records how many times each key was
// fetched, which makes it the usual test double for a store.
type Static struct {
	rows    map[string][]transform.Row
	errs    map[string]error
	fetches map[string]int
	mu      sync.Mutex
}

// NewStatic creates a Static source seeded with data.
func NewStatic(data map[string][]transform.Row) *Static {
	s := &Static{
		rows:    make(map[string][]transform.Row, len(data)),
		errs:    make(map[string]error),
		fetches: make(map[string]int),
	}
	for key, rows := range data {
		s.rows[key] = transform.CloneRows(rows)
	}
	return s
}

// Set stores rows under key and clears any failure registered for it.
func (s *Static) Set(key string, rows []transform.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[key] = transform.CloneRows(rows)
	delete(s.errs, key)
}

// Fail makes every later fetch of key return err.
func (s *Static) Fail(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errs[key] = err
}

// Fetches returns the number of Fetch calls made for key.
func (s *Static) Fetches(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fetches[key]
}

func (s *Static) Fetch(_ context.Context, key string) ([]transform.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetches[key]++

	if err, ok := s.errs[key]; ok {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, key, err)
	}

	rows, ok := s.rows[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return transform.CloneRows(rows), nil
}

func (s *Static) List(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Sorted(maps.Keys(s.rows)), nil
}
