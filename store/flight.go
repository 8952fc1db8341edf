package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/tabula/transform"
)

// Flight is a single fetch of one key. Every Load that needs the key while
// the fetch is outstanding waits on the same Flight.
type Flight struct {
	key  string
	done chan struct{}
	rows []transform.Row
	err  error
}

func newFlight(key string) *Flight {
	return &Flight{key: key, done: make(chan struct{})}
}

// settledFlight wraps rows that are already cached.
func settledFlight(key string, rows []transform.Row) *Flight {
	f := newFlight(key)
	f.settle(rows, nil)
	return f
}

func (f *Flight) settle(rows []transform.Row, err error) {
	f.rows = rows
	f.err = err
	close(f.done)
}

// Key returns the dataset key being fetched.
func (f *Flight) Key() string {
	return f.key
}

// Wait blocks until the fetch settles or ctx is done. Cancelling ctx stops
// the wait, not the fetch.
func (f *Flight) Wait(ctx context.Context) ([]transform.Row, error) {
	select {
	case <-f.done:
		return f.rows, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LoadOptions configures a single Load call. Cast and Map accept the same
// values as Store.Cast and Store.Map and, when set, override the store-wide
// stages for the loaded keys from then on.
type LoadOptions struct {
	Cast any            `json:"cast,omitempty" yaml:"cast,omitempty"`
	Map  any            `json:"map,omitempty" yaml:"map,omitempty"`
	Meta map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// fields flattens the options into the form merged into Entry.Meta.Options.
func (o *LoadOptions) fields() map[string]any {
	if o == nil {
		return nil
	}
	out := make(map[string]any, len(o.Meta)+2)
	for k, v := range o.Meta {
		out[k] = v
	}
	if o.Cast != nil {
		out["cast"] = o.Cast
	}
	if o.Map != nil {
		out["map"] = o.Map
	}
	return out
}

// Loading is the handle returned by Load. It settles once every requested
// key has been fetched (or served from cache) and applied.
type Loading struct {
	id      string
	keys    []string
	options *LoadOptions
	started time.Time
	done    chan struct{}
	err     error
	once    sync.Once
}

func newLoading(keys []string, options *LoadOptions, now time.Time) *Loading {
	return &Loading{
		id:      uuid.Must(uuid.NewV7()).String(),
		keys:    slices.Clone(keys),
		options: options,
		started: now,
		done:    make(chan struct{}),
	}
}

func (l *Loading) settle(err error) {
	l.once.Do(func() {
		l.err = err
		close(l.done)
	})
}

// ID returns the unique load identifier.
func (l *Loading) ID() string {
	return l.id
}

// Keys returns the requested keys in request order.
func (l *Loading) Keys() []string {
	return slices.Clone(l.keys)
}

// Done is closed when the load settles.
func (l *Loading) Done() <-chan struct{} {
	return l.done
}

// Err returns the load error once settled, nil before.
func (l *Loading) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

// Wait blocks until the load settles or ctx is done and returns the load
// error, if any. Cancelling ctx stops the wait, not the load.
func (l *Loading) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return l.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
