package store

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrFetch wraps a source failure for one of the requested keys.
	ErrFetch = errors.New("fetch failed")
	// ErrNoSource is returned when a load is attempted on a store without
	// a row source.
	ErrNoSource = errors.New("store has no source")
)

// LoadError records one failed Load call in the store's error log.
type LoadError struct {
	ID      string
	Keys    []string
	Options *LoadOptions
	Err     error
	At      time.Time
}

func (e LoadError) Error() string {
	return fmt.Sprintf("load [%s]: %v", strings.Join(e.Keys, ", "), e.Err)
}

func (e LoadError) Unwrap() error {
	return e.Err
}
