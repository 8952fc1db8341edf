package store

import (
	"maps"
	"slices"
	"time"

	"github.com/tailored-agentic-units/tabula/transform"
)

// Meta is the bookkeeping attached to a cached dataset.
type Meta struct {
	// Loaded is the completion time of the first successful fetch. Zero
	// until then; never reset.
	Loaded time.Time
	// Loading is the in-flight fetch, non-nil only while one is outstanding.
	Loading *Flight
	// Options accumulates the options of every successful load of this key.
	Options map[string]any
}

// IsLoaded reports whether the dataset has been fetched successfully.
func (m Meta) IsLoaded() bool {
	return !m.Loaded.IsZero()
}

// Entry is a read-only snapshot of one cached dataset. Rows are shared with
// the store and must not be modified.
type Entry struct {
	Key    string
	Meta   Meta
	Raw    []transform.Row
	Values []transform.Row
}

// entry is the store-owned mutable state behind an Entry.
type entry struct {
	key    string
	meta   Meta
	raw    []transform.Row
	values []transform.Row

	// Entry-specific stages compiled from load options. Nil falls back to
	// the store-wide stage.
	cast  transform.Func
	mapFn transform.Func
}

func newEntry(key string) *entry {
	return &entry{
		key:    key,
		meta:   Meta{Options: map[string]any{}},
		raw:    []transform.Row{},
		values: []transform.Row{},
	}
}

func (e *entry) snapshot() Entry {
	meta := e.meta
	meta.Options = maps.Clone(e.meta.Options)
	return Entry{
		Key:    e.key,
		Meta:   meta,
		Raw:    slices.Clone(e.raw),
		Values: slices.Clone(e.values),
	}
}

// transformer resolves the stages used for this entry.
func (e *entry) transformer(base *transform.Transformer) *transform.Transformer {
	t := base
	if e.cast != nil {
		t = t.WithCast(e.cast)
	}
	if e.mapFn != nil {
		t = t.WithMap(e.mapFn)
	}
	return t
}
