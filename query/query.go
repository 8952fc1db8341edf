// Package query filters the rows of a store and groups them into series.
// A Query is bound to one store and recomputes its results on every call,
// so results always reflect the store's current values.
//
//	q, err := query.New(s, query.Spec{
//		From:   query.Keys{"sales.csv"},
//		Filter: map[string]any{"year": map[string]any{"$gte": 2020}},
//	})
//	series, err := q.Series(query.Mapping{Key: "region"}).Results(ctx)
package query

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/spf13/cast"

	"github.com/tailored-agentic-units/tabula/match"
	"github.com/tailored-agentic-units/tabula/observability"
	"github.com/tailored-agentic-units/tabula/store"
	"github.com/tailored-agentic-units/tabula/subscription"
	"github.com/tailored-agentic-units/tabula/transform"
)

// Notification names delivered to query subscribers.
const (
	EventLoad   = store.EventLoad
	EventSeries = "series"
)

// EventEvaluate is emitted each time a query is evaluated.
const EventEvaluate observability.EventType = "query.evaluate"

// Event is delivered to query subscribers with freshly computed results.
type Event struct {
	Name   string
	Values []transform.Row
	Series []Series
	Query  *Query
	Store  *store.Store
}

// Option configures a Query.
type Option func(*Query)

// WithObserver overrides the default SlogObserver.
func WithObserver(o observability.Observer) Option {
	return func(q *Query) { q.observer = o }
}

// WithMapping sets the initial series mapping without notifying.
func WithMapping(m Mapping) Option {
	return func(q *Query) { q.mapping = m }
}

// Query is a filtered view over a store.
type Query struct {
	store     *store.Store
	spec      Spec
	predicate *match.Predicate
	observer  observability.Observer
	subs      subscription.Registry[Event]
	storeSub  *subscription.Subscription[store.Event]
	mapping   Mapping
	mu        sync.RWMutex
}

// New binds spec to s. The filter is compiled once; an invalid filter is
// reported here rather than at evaluation.
func New(s *store.Store, spec Spec, opts ...Option) (*Query, error) {
	predicate, err := match.Compile(spec.Filter)
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}

	q := &Query{
		store: s,
		spec: Spec{
			From:   slices.Clone(spec.From),
			Filter: maps.Clone(spec.Filter),
		},
		predicate: predicate,
		observer:  observability.NewSlogObserver(slog.Default()),
	}

	for _, opt := range opts {
		opt(q)
	}

	q.storeSub = s.Subscribe(func(e store.Event) {
		if e.Name == store.EventLoad {
			q.notify(EventLoad)
		}
	}, q)

	return q, nil
}

// Spec returns the query specification.
func (q *Query) Spec() Spec {
	return Spec{From: slices.Clone(q.spec.From), Filter: maps.Clone(q.spec.Filter)}
}

// Store returns the bound store.
func (q *Query) Store() *store.Store {
	return q.store
}

// Load starts loading every key in From with opts.
func (q *Query) Load(ctx context.Context, opts *store.LoadOptions) *store.Loading {
	return q.store.Load(ctx, q.spec.From, opts)
}

// Values waits for the store's outstanding loads and returns the rows of
// every key in From, in key order, that match the filter.
func (q *Query) Values(ctx context.Context) ([]transform.Row, error) {
	if _, err := q.store.Ready(ctx); err != nil {
		return nil, err
	}
	return q.evaluate(ctx), nil
}

// Series replaces the series mapping and notifies subscribers.
func (q *Query) Series(m Mapping) *Query {
	q.mu.Lock()
	q.mapping = m
	q.mu.Unlock()

	q.notify(EventSeries)
	return q
}

// Mapping returns the current series mapping.
func (q *Query) Mapping() Mapping {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.mapping
}

// Results waits like Values and groups the matching rows into series in
// first-seen key order.
func (q *Query) Results(ctx context.Context) ([]Series, error) {
	values, err := q.Values(ctx)
	if err != nil {
		return nil, err
	}
	return Group(values, q.Mapping()), nil
}

// Subscribe registers handler for recomputed results. Handlers run after
// every store load and every Series call.
func (q *Query) Subscribe(handler subscription.Handler[Event], value any) *subscription.Subscription[Event] {
	return q.subs.Subscribe(handler, value)
}

// Dispose detaches the query from its store and drops all subscribers.
func (q *Query) Dispose() {
	q.storeSub.Dispose()
	q.subs.DisposeAll()
}

// Group splits rows into series keyed by m. Series appear in the order
// their key is first seen; rows keep their relative order.
func Group(rows []transform.Row, m Mapping) []Series {
	var out []Series
	index := make(map[any]int)

	for _, row := range rows {
		raw := m.keyOf(row)
		id := groupID(raw)
		i, ok := index[id]
		if !ok {
			key := cast.ToString(raw)
			i = len(out)
			index[id] = i
			out = append(out, Series{
				Key:    key,
				Meta:   maps.Clone(m.Meta[key]),
				Values: []transform.Row{},
			})
		}
		out[i].Values = append(out[i].Values, row)
	}

	if out == nil {
		return []Series{}
	}
	return out
}

// groupID identifies a grouping value. Values of different types stay
// apart even when they print the same, so 1 and "1" form two series.
func groupID(v any) any {
	if v == nil {
		return nil
	}
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return "float64:NaN"
	}
	if reflect.ValueOf(v).Comparable() {
		return v
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// evaluate filters the current store values without waiting.
func (q *Query) evaluate(ctx context.Context) []transform.Row {
	start := time.Now()

	entries := q.store.All()

	var scanned int
	out := []transform.Row{}
	for _, key := range q.spec.From {
		rows := entries[key].Values
		scanned += len(rows)
		out = append(out, q.predicate.Filter(rows)...)
	}

	q.observer.OnEvent(ctx, observability.Event{
		Type:      EventEvaluate,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "query.Values",
		Data: map[string]any{
			"from":     []string(q.spec.From),
			"scanned":  scanned,
			"matched":  len(out),
			"duration": time.Since(start).String(),
		},
	})

	return out
}

func (q *Query) notify(name string) {
	if q.subs.Len() == 0 {
		return
	}

	values := q.evaluate(context.Background())
	q.subs.Notify(Event{
		Name:   name,
		Values: values,
		Series: Group(values, q.Mapping()),
		Query:  q,
		Store:  q.store,
	})
}
