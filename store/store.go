// Package store implements the keyed dataset cache. A Store fetches
// datasets through a source.Source, deduplicates concurrent fetches of the
// same key, keeps raw and transformed rows side by side, and notifies
// subscribers when loads complete.
//
//	s := store.New(source.NewFileSource("data", 0))
//	if err := s.Load(ctx, []string{"sales.csv"}, nil).Wait(ctx); err != nil {
//		return err
//	}
//	rows := s.Data("sales.csv").Values
package store

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/tabula/observability"
	"github.com/tailored-agentic-units/tabula/source"
	"github.com/tailored-agentic-units/tabula/subscription"
	"github.com/tailored-agentic-units/tabula/transform"
)

// EventLoad is the notification name delivered after a successful Load.
const EventLoad = "load"

// Event is delivered to store subscribers.
type Event struct {
	Name  string
	Data  map[string]Entry
	Store *Store
}

// Option configures a Store.
type Option func(*Store)

// WithObserver overrides the default SlogObserver.
func WithObserver(o observability.Observer) Option {
	return func(s *Store) { s.observer = o }
}

// WithTypes replaces the store's type registry. The registry is used as is,
// not cloned.
func WithTypes(t *transform.Types) Option {
	return func(s *Store) { s.types = t }
}

// WithClock overrides the time source used for Loaded timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is a keyed dataset cache. All methods are safe for concurrent use.
type Store struct {
	source      source.Source
	observer    observability.Observer
	types       *transform.Types
	transformer *transform.Transformer
	entries     map[string]*entry
	loading     []*Loading
	errors      []LoadError
	subs        subscription.Registry[Event]
	now         func() time.Time
	mu          sync.Mutex
}

// New creates a Store reading through src. The store starts with the
// identity transformer and a private clone of the global type registry.
func New(src source.Source, opts ...Option) *Store {
	s := &Store{
		source:      src,
		observer:    observability.NewSlogObserver(slog.Default()),
		types:       transform.NewTypes(),
		transformer: transform.NewTransformer(nil, nil),
		entries:     make(map[string]*entry),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// NewFromConfig creates a Store and applies the store-wide stages from cfg.
func NewFromConfig(src source.Source, cfg *Config, opts ...Option) (*Store, error) {
	s := New(src, opts...)

	if len(cfg.Cast) > 0 {
		if _, err := s.Cast(cfg.Cast); err != nil {
			return nil, err
		}
	}
	if cfg.Map != nil {
		if _, err := s.Map(cfg.Map); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Types returns the store's type registry. Types registered here are
// visible to later Cast and Load calls on this store only.
func (s *Store) Types() *transform.Types {
	return s.types
}

// Data returns a snapshot of the entry for key, creating an empty entry if
// none exists.
func (s *Store) Data(key string) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entryLocked(key).snapshot()
}

// All returns a snapshot of every entry.
func (s *Store) All() map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allLocked()
}

// Keys returns the cached keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.entries))
}

// Errors returns a snapshot of the load error log.
func (s *Store) Errors() []LoadError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.errors)
}

// Outstanding returns the number of loads that have not yet settled.
func (s *Store) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loading)
}

// Subscribe registers handler for store notifications.
func (s *Store) Subscribe(handler subscription.Handler[Event], value any) *subscription.Subscription[Event] {
	return s.subs.Subscribe(handler, value)
}

// Ready waits for every load outstanding at the time of the call. Loads
// started afterwards are not waited for. Load failures do not fail Ready;
// they are recorded in Errors.
func (s *Store) Ready(ctx context.Context) (*Store, error) {
	s.mu.Lock()
	pending := slices.Clone(s.loading)
	s.mu.Unlock()

	for _, l := range pending {
		select {
		case <-l.Done():
		case <-ctx.Done():
			return s, ctx.Err()
		}
	}
	return s, nil
}

// Values waits like Ready and then returns a snapshot of every entry. It
// never triggers a load.
func (s *Store) Values(ctx context.Context) (map[string]Entry, error) {
	if _, err := s.Ready(ctx); err != nil {
		return nil, err
	}
	return s.All(), nil
}

// Load ensures each key is fetched and transformed. Keys already loaded are
// served from cache, keys with a fetch in flight join it, and all others
// start a new fetch. The returned handle settles once every key has been
// applied; subscribers are notified with EventLoad only if all succeed.
//
// Fetches outlive ctx: cancelling it does not abort a fetch other loads
// may be waiting on.
func (s *Store) Load(ctx context.Context, keys []string, opts *LoadOptions) *Loading {
	l := newLoading(keys, opts, s.now())

	castFn, mapFn, err := s.compileOptions(opts)
	if err != nil {
		s.fail(ctx, l, err)
		return l
	}
	if s.source == nil {
		s.fail(ctx, l, ErrNoSource)
		return l
	}

	s.observer.OnEvent(ctx, observability.Event{
		Type:      EventLoadStart,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "store.Load",
		Data: map[string]any{
			"load_id": l.id,
			"keys":    l.keys,
		},
	})

	s.mu.Lock()
	flights := make([]*Flight, len(keys))
	var start []*Flight
	for i, key := range keys {
		e := s.entryLocked(key)
		switch {
		case e.meta.IsLoaded():
			flights[i] = settledFlight(key, e.raw)
		case e.meta.Loading != nil:
			flights[i] = e.meta.Loading
		default:
			f := newFlight(key)
			e.meta.Loading = f
			flights[i] = f
			start = append(start, f)
		}
	}
	s.loading = append(s.loading, l)
	s.mu.Unlock()

	fetchCtx := context.WithoutCancel(ctx)
	for _, f := range start {
		go s.fetch(fetchCtx, f)
	}
	go s.complete(fetchCtx, l, flights, castFn, mapFn)

	return l
}

// Cast replaces the store-wide cast stage and reprocesses every entry. The
// spec is a transform.CastSpec, a field-to-type map, or a transform.Func.
// On error the previous stage stays in effect.
func (s *Store) Cast(spec any) (*Store, error) {
	fn, err := transform.CompileCast(spec, s.types)
	if err != nil {
		return s, err
	}
	return s, s.swap(func(t *transform.Transformer) *transform.Transformer {
		return t.WithCast(fn)
	})
}

// Map replaces the store-wide map stage and reprocesses every entry. The
// spec is a transform.MapSpec, an equivalent map, or a transform.Func.
// On error the previous stage stays in effect.
func (s *Store) Map(spec any) (*Store, error) {
	fn, err := transform.CompileMap(spec)
	if err != nil {
		return s, err
	}
	return s, s.swap(func(t *transform.Transformer) *transform.Transformer {
		return t.WithMap(fn)
	})
}

// Reprocess recomputes Values for every entry from Raw with the current
// stages.
func (s *Store) Reprocess() error {
	return s.swap(func(t *transform.Transformer) *transform.Transformer { return t })
}

func (s *Store) swap(next func(*transform.Transformer) *transform.Transformer) error {
	s.mu.Lock()
	t := next(s.transformer)
	err := s.reprocessAllLocked(t)
	if err == nil {
		s.transformer = t
	}
	count := len(s.entries)
	s.mu.Unlock()

	level := observability.LevelVerbose
	data := map[string]any{"entries": count}
	if err != nil {
		level = observability.LevelError
		data["error"] = err.Error()
	}
	s.observer.OnEvent(context.Background(), observability.Event{
		Type:      EventReprocess,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "store.Reprocess",
		Data:      data,
	})

	return err
}

// reprocessAllLocked computes every entry's values with t and commits them
// only if all succeed.
func (s *Store) reprocessAllLocked(t *transform.Transformer) error {
	next := make(map[string][]transform.Row, len(s.entries))
	for _, key := range slices.Sorted(maps.Keys(s.entries)) {
		e := s.entries[key]
		values, err := e.transformer(t).Process(e.raw)
		if err != nil {
			return fmt.Errorf("reprocess %s: %w", key, err)
		}
		next[key] = values
	}
	for key, values := range next {
		s.entries[key].values = values
	}
	return nil
}

func (s *Store) compileOptions(opts *LoadOptions) (transform.Func, transform.Func, error) {
	if opts == nil {
		return nil, nil, nil
	}

	var castFn, mapFn transform.Func
	var err error
	if opts.Cast != nil {
		if castFn, err = transform.CompileCast(opts.Cast, s.types); err != nil {
			return nil, nil, err
		}
	}
	if opts.Map != nil {
		if mapFn, err = transform.CompileMap(opts.Map); err != nil {
			return nil, nil, err
		}
	}
	return castFn, mapFn, nil
}

// fetch runs one flight against the source and records the outcome on the
// entry before releasing waiters.
func (s *Store) fetch(ctx context.Context, f *Flight) {
	s.observer.OnEvent(ctx, observability.Event{
		Type:      EventFetchStart,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "store.fetch",
		Data:      map[string]any{"key": f.key},
	})

	start := time.Now()
	rows, err := s.source.Fetch(ctx, f.key)
	if rows == nil {
		rows = []transform.Row{}
	}

	s.mu.Lock()
	e := s.entryLocked(f.key)
	e.meta.Loading = nil
	if err == nil {
		e.meta.Loaded = s.now()
		e.raw = rows
	}
	s.mu.Unlock()

	data := map[string]any{
		"key":      f.key,
		"rows":     len(rows),
		"duration": time.Since(start).String(),
	}
	if err != nil {
		data["error"] = err.Error()
	}
	s.observer.OnEvent(ctx, observability.Event{
		Type:      EventFetchComplete,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "store.fetch",
		Data:      data,
	})

	f.settle(rows, err)
}

// complete joins every flight of l, applies successful keys, and settles l.
func (s *Store) complete(ctx context.Context, l *Loading, flights []*Flight, castFn, mapFn transform.Func) {
	var g errgroup.Group
	for _, f := range flights {
		g.Go(func() error {
			if _, err := f.Wait(ctx); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrFetch, f.Key(), err)
			}
			return s.apply(f.Key(), l.options, castFn, mapFn)
		})
	}

	if err := g.Wait(); err != nil {
		s.fail(ctx, l, err)
		return
	}

	// The handle leaves the outstanding list before subscribers run so a
	// handler calling Ready does not wait on the load that notified it.
	s.mu.Lock()
	s.removeLocked(l)
	data := s.allLocked()
	s.mu.Unlock()

	s.observer.OnEvent(ctx, observability.Event{
		Type:      EventLoadComplete,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "store.Load",
		Data: map[string]any{
			"load_id":  l.id,
			"keys":     l.keys,
			"duration": time.Since(l.started).String(),
		},
	})

	s.subs.Notify(Event{Name: EventLoad, Data: data, Store: s})
	l.settle(nil)
}

// apply merges the caller's options into key's entry and recomputes its
// values. If the caller's stages fail, the options are dropped and values
// are recomputed through the stages the entry already had.
func (s *Store) apply(key string, opts *LoadOptions, castFn, mapFn transform.Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key)
	candidate := *e
	if castFn != nil {
		candidate.cast = castFn
	}
	if mapFn != nil {
		candidate.mapFn = mapFn
	}

	values, err := candidate.transformer(s.transformer).Process(e.raw)
	if err != nil {
		// The fetched rows stay visible through the stages already in place.
		if prior, perr := e.transformer(s.transformer).Process(e.raw); perr == nil {
			e.values = prior
		}
		return fmt.Errorf("apply %s: %w", key, err)
	}

	e.cast = candidate.cast
	e.mapFn = candidate.mapFn
	maps.Copy(e.meta.Options, opts.fields())
	e.values = values
	return nil
}

// fail records err in the error log and settles l without notifying.
func (s *Store) fail(ctx context.Context, l *Loading, err error) {
	s.mu.Lock()
	s.errors = append(s.errors, LoadError{
		ID:      l.id,
		Keys:    slices.Clone(l.keys),
		Options: l.options,
		Err:     err,
		At:      s.now(),
	})
	s.removeLocked(l)
	s.mu.Unlock()

	s.observer.OnEvent(ctx, observability.Event{
		Type:      EventLoadError,
		Level:     observability.LevelError,
		Timestamp: time.Now(),
		Source:    "store.Load",
		Data: map[string]any{
			"load_id": l.id,
			"keys":    l.keys,
			"error":   err.Error(),
		},
	})

	l.settle(err)
}

func (s *Store) removeLocked(l *Loading) {
	s.loading = slices.DeleteFunc(s.loading, func(o *Loading) bool { return o == l })
}

func (s *Store) entryLocked(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = newEntry(key)
		s.entries[key] = e
	}
	return e
}

func (s *Store) allLocked() map[string]Entry {
	out := make(map[string]Entry, len(s.entries))
	for key, e := range s.entries {
		out[key] = e.snapshot()
	}
	return out
}
