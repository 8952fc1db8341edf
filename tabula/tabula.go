// Package tabula wires a row source, a dataset store, and an observer into
// a single runtime from configuration.
//
// The runtime initializes from configuration via New, creating the source
// and store internally. Functional options allow test overrides of either.
//
//	t, err := tabula.New(ctx, &cfg)
//	defer t.Close()
//	q, err := t.Query(query.Spec{From: query.Keys{"sales.csv"}})
package tabula

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/tailored-agentic-units/tabula/observability"
	"github.com/tailored-agentic-units/tabula/query"
	"github.com/tailored-agentic-units/tabula/source"
	"github.com/tailored-agentic-units/tabula/store"
)

// Option configures a Tabula after config-driven initialization.
type Option func(*Tabula)

// WithSource overrides the config-created source.
func WithSource(src source.Source) Option {
	return func(t *Tabula) { t.source = src }
}

// WithObserver overrides the config-selected observer.
func WithObserver(o observability.Observer) Option {
	return func(t *Tabula) { t.observer = o }
}

// Tabula is a configured source and store.
type Tabula struct {
	source   source.Source
	store    *store.Store
	observer observability.Observer
	datasets []string
}

// New creates a Tabula from configuration. The source is created from
// cfg.Source unless WithSource is given; the observer is looked up by name
// in the observability registry unless WithObserver is given.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Tabula, error) {
	t := &Tabula{datasets: slices.Clone(cfg.Datasets)}

	for _, opt := range opts {
		opt(t)
	}

	if t.observer == nil {
		name := cfg.Observer
		if name == "" {
			name = defaultObserver
		}
		obs, err := observability.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve observer: %w", err)
		}
		t.observer = obs
	}

	if t.source == nil {
		src, err := source.New(ctx, &cfg.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to create source: %w", err)
		}
		t.source = src
	}

	s, err := store.NewFromConfig(t.source, &cfg.Store, store.WithObserver(t.observer))
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	t.store = s

	return t, nil
}

// Store returns the dataset store.
func (t *Tabula) Store() *store.Store {
	return t.store
}

// Source returns the row source.
func (t *Tabula) Source() source.Source {
	return t.source
}

// Observer returns the active observer.
func (t *Tabula) Observer() observability.Observer {
	return t.observer
}

// Preload loads the configured datasets and waits for them.
func (t *Tabula) Preload(ctx context.Context) error {
	if len(t.datasets) == 0 {
		return ErrNoDatasets
	}

	start := time.Now()
	err := t.store.Load(ctx, t.datasets, nil).Wait(ctx)

	data := map[string]any{
		"datasets": t.datasets,
		"duration": time.Since(start).String(),
	}
	level := observability.LevelInfo
	if err != nil {
		data["error"] = err.Error()
		level = observability.LevelError
	}
	t.observer.OnEvent(ctx, observability.Event{
		Type:      EventPreload,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "tabula.Preload",
		Data:      data,
	})

	return err
}

// Query creates a query bound to the store.
func (t *Tabula) Query(spec query.Spec, opts ...query.Option) (*query.Query, error) {
	opts = append([]query.Option{query.WithObserver(t.observer)}, opts...)
	return query.New(t.store, spec, opts...)
}

// Datasets lists the keys available from the source, merged with the keys
// already cached by the store, in sorted order.
func (t *Tabula) Datasets(ctx context.Context) ([]string, error) {
	keys := make(map[string]bool)
	for _, key := range t.store.Keys() {
		keys[key] = true
	}

	if lister, ok := t.source.(source.Lister); ok {
		listed, err := lister.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list datasets: %w", err)
		}
		for _, key := range listed {
			keys[key] = true
		}
	}

	return slices.Sorted(maps.Keys(keys)), nil
}

// Close releases source resources such as database pools.
func (t *Tabula) Close() {
	if closer, ok := t.source.(interface{ Close() }); ok {
		closer.Close()
		t.observer.OnEvent(context.Background(), observability.Event{
			Type:      EventClose,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    "tabula.Close",
		})
	}
}
