package query_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/tabula/match"
	"github.com/tailored-agentic-units/tabula/observability"
	"github.com/tailored-agentic-units/tabula/query"
	"github.com/tailored-agentic-units/tabula/source"
	"github.com/tailored-agentic-units/tabula/store"
	"github.com/tailored-agentic-units/tabula/transform"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newLoadedStore(t *testing.T) *store.Store {
	t.Helper()
	src := source.NewStatic(map[string][]transform.Row{
		"a": {
			{"year": 2020, "sales": 10, "region": "north"},
			{"year": 2021, "sales": 40, "region": "south"},
		},
		"b": {
			{"year": 2020, "sales": 70, "region": "north"},
			{"year": 2022, "sales": 5, "region": "east"},
		},
	})
	s := store.New(src, store.WithObserver(observability.NoOpObserver{}))

	ctx := testContext(t)
	if err := s.Load(ctx, []string{"a", "b"}, nil).Wait(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return s
}

func newQuery(t *testing.T, s *store.Store, spec query.Spec, opts ...query.Option) *query.Query {
	t.Helper()
	opts = append([]query.Option{query.WithObserver(observability.NoOpObserver{})}, opts...)
	q, err := query.New(s, spec, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(q.Dispose)
	return q
}

func TestQuery_Values(t *testing.T) {
	s := newLoadedStore(t)

	tests := []struct {
		name string
		spec query.Spec
		want []transform.Row
	}{
		{
			name: "no filter keeps key order",
			spec: query.Spec{From: query.Keys{"b", "a"}},
			want: []transform.Row{
				{"year": 2020, "sales": 70, "region": "north"},
				{"year": 2022, "sales": 5, "region": "east"},
				{"year": 2020, "sales": 10, "region": "north"},
				{"year": 2021, "sales": 40, "region": "south"},
			},
		},
		{
			name: "field equality",
			spec: query.Spec{From: query.Keys{"a", "b"}, Filter: map[string]any{"region": "north"}},
			want: []transform.Row{
				{"year": 2020, "sales": 10, "region": "north"},
				{"year": 2020, "sales": 70, "region": "north"},
			},
		},
		{
			name: "range",
			spec: query.Spec{
				From:   query.Keys{"a", "b"},
				Filter: map[string]any{"sales": map[string]any{"gt": 5, "lt": 70}},
			},
			want: []transform.Row{
				{"year": 2020, "sales": 10, "region": "north"},
				{"year": 2021, "sales": 40, "region": "south"},
			},
		},
		{
			name: "or across fields",
			spec: query.Spec{
				From: query.Keys{"a", "b"},
				Filter: map[string]any{"$or": map[string]any{
					"region": "east",
					"year":   map[string]any{"$gte": 2021},
				}},
			},
			want: []transform.Row{
				{"year": 2021, "sales": 40, "region": "south"},
				{"year": 2022, "sales": 5, "region": "east"},
			},
		},
		{
			name: "unknown key yields nothing",
			spec: query.Spec{From: query.Keys{"missing"}},
			want: []transform.Row{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newQuery(t, s, tt.spec)

			got, err := q.Values(testContext(t))
			if err != nil {
				t.Fatalf("Values() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Values() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, ok := s.All()["missing"]; ok {
		t.Error("query created a store entry for an unknown key")
	}
}

func TestQuery_InvalidFilter(t *testing.T) {
	s := newLoadedStore(t)

	_, err := query.New(s, query.Spec{From: query.Keys{"a"}, Filter: map[string]any{"gt": 5}})
	if !errors.Is(err, match.ErrUnscopedComparison) {
		t.Errorf("New() error = %v, want %v", err, match.ErrUnscopedComparison)
	}
}

func TestQuery_ValuesWaitsForLoads(t *testing.T) {
	ctx := testContext(t)
	release := make(chan struct{})
	src := source.FetchFunc(func(context.Context, string) ([]transform.Row, error) {
		<-release
		return []transform.Row{{"v": 1}}, nil
	})
	s := store.New(src, store.WithObserver(observability.NoOpObserver{}))
	q := newQuery(t, s, query.Spec{From: query.Keys{"k"}})

	q.Load(ctx, nil)
	time.AfterFunc(10*time.Millisecond, func() { close(release) })

	got, err := q.Values(ctx)
	if err != nil {
		t.Fatalf("Values() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Values() len = %d, want 1", len(got))
	}
}

func TestQuery_Results(t *testing.T) {
	s := newLoadedStore(t)
	q := newQuery(t, s, query.Spec{From: query.Keys{"a", "b"}})

	meta := map[string]map[string]any{"north": {"color": "blue"}}
	got, err := q.Series(query.Mapping{Key: "region", Meta: meta}).Results(testContext(t))
	if err != nil {
		t.Fatalf("Results() error = %v", err)
	}

	want := []query.Series{
		{
			Key:  "north",
			Meta: map[string]any{"color": "blue"},
			Values: []transform.Row{
				{"year": 2020, "sales": 10, "region": "north"},
				{"year": 2020, "sales": 70, "region": "north"},
			},
		},
		{Key: "south", Values: []transform.Row{{"year": 2021, "sales": 40, "region": "south"}}},
		{Key: "east", Values: []transform.Row{{"year": 2022, "sales": 5, "region": "east"}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Results() mismatch (-want +got):\n%s", diff)
	}
}

func TestGroup(t *testing.T) {
	rows := []transform.Row{
		{"y": 1, transform.DefaultCategory: "sales"},
		{"y": 2, transform.DefaultCategory: "profit"},
		{"y": 3, transform.DefaultCategory: "sales"},
		{"y": 4},
	}

	t.Run("default key", func(t *testing.T) {
		got := query.Group(rows, query.Mapping{})
		keys := make([]string, len(got))
		for i, s := range got {
			keys[i] = s.Key
		}
		if !slices.Equal(keys, []string{"sales", "profit", ""}) {
			t.Errorf("Group() keys = %v, want [sales profit ]", keys)
		}
		if len(got[0].Values) != 2 {
			t.Errorf("sales series len = %d, want 2", len(got[0].Values))
		}
	})

	t.Run("key func", func(t *testing.T) {
		parity := func(row transform.Row) any {
			if row["y"].(int)%2 == 0 {
				return "even"
			}
			return "odd"
		}
		got := query.Group(rows, query.Mapping{Key: "ignored", KeyFunc: parity})
		if len(got) != 2 || got[0].Key != "odd" || got[1].Key != "even" {
			t.Errorf("Group() = %+v, want odd then even", got)
		}
	})

	t.Run("distinct types stay apart", func(t *testing.T) {
		got := query.Group([]transform.Row{
			{"k": 1}, {"k": "1"}, {"k": nil}, {"k": ""}, {"k": 1}, {"k": []any{1}}, {"k": []any{1}},
		}, query.Mapping{Key: "k"})

		keys := make([]string, len(got))
		sizes := make([]int, len(got))
		for i, s := range got {
			keys[i] = s.Key
			sizes[i] = len(s.Values)
		}
		if !slices.Equal(keys, []string{"1", "1", "", "", ""}) {
			t.Errorf("Group() keys = %q, want [1 1   ]", keys)
		}
		if !slices.Equal(sizes, []int{2, 1, 1, 1, 2}) {
			t.Errorf("Group() sizes = %v, want [2 1 1 1 2]", sizes)
		}
	})

	t.Run("numeric keys stringified", func(t *testing.T) {
		got := query.Group([]transform.Row{{"k": 2020}, {"k": 2021}}, query.Mapping{Key: "k"})
		if len(got) != 2 || got[0].Key != "2020" {
			t.Errorf("Group() = %+v, want keys 2020, 2021", got)
		}
	})

	t.Run("empty", func(t *testing.T) {
		got := query.Group(nil, query.Mapping{})
		if got == nil || len(got) != 0 {
			t.Errorf("Group(nil) = %#v, want empty non-nil", got)
		}
	})
}

func TestQuery_SubscribeOnLoadAndSeries(t *testing.T) {
	ctx := testContext(t)
	src := source.NewStatic(map[string][]transform.Row{
		"a": {{"k": "x", "v": 1}, {"k": "y", "v": 2}},
	})
	s := store.New(src, store.WithObserver(observability.NoOpObserver{}))
	q := newQuery(t, s, query.Spec{From: query.Keys{"a"}, Filter: map[string]any{"v": map[string]any{"gte": 2}}})

	var mu sync.Mutex
	var events []query.Event
	sub := q.Subscribe(func(e query.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}, "ctx")

	if sub.Context() != "ctx" {
		t.Errorf("Context() = %v, want ctx", sub.Context())
	}

	if err := q.Load(ctx, nil).Wait(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	q.Series(query.Mapping{Key: "k"})

	mu.Lock()
	defer mu.Unlock()

	if len(events) != 2 {
		t.Fatalf("received %d events, want 2", len(events))
	}
	if events[0].Name != query.EventLoad || events[1].Name != query.EventSeries {
		t.Errorf("event names = %q, %q, want load, series", events[0].Name, events[1].Name)
	}
	if diff := cmp.Diff([]transform.Row{{"k": "y", "v": 2}}, events[0].Values); diff != "" {
		t.Errorf("load event values mismatch (-want +got):\n%s", diff)
	}
	if events[1].Query != q || events[1].Store != s {
		t.Error("event does not reference query and store")
	}
	if len(events[1].Series) != 1 || events[1].Series[0].Key != "y" {
		t.Errorf("series event = %+v, want one series y", events[1].Series)
	}
}

func TestQuery_Dispose(t *testing.T) {
	ctx := testContext(t)
	src := source.NewStatic(map[string][]transform.Row{"a": {{"v": 1}}})
	s := store.New(src, store.WithObserver(observability.NoOpObserver{}))
	q, err := query.New(s, query.Spec{From: query.Keys{"a"}}, query.WithObserver(observability.NoOpObserver{}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	calls := 0
	q.Subscribe(func(query.Event) { calls++ }, nil)
	q.Dispose()

	if err := s.Load(ctx, []string{"a"}, nil).Wait(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	q.Series(query.Mapping{})

	if calls != 0 {
		t.Errorf("handler called %d times after Dispose, want 0", calls)
	}
}

func TestQuery_SpecIsCopied(t *testing.T) {
	s := newLoadedStore(t)
	filter := map[string]any{"region": "north"}
	from := query.Keys{"a"}
	q := newQuery(t, s, query.Spec{From: from, Filter: filter})

	filter["region"] = "south"
	from[0] = "b"

	spec := q.Spec()
	if spec.From[0] != "a" || spec.Filter["region"] != "north" {
		t.Errorf("Spec() = %+v, caller mutation leaked in", spec)
	}
}

func TestQuery_EvaluateEvent(t *testing.T) {
	s := newLoadedStore(t)
	rec := observability.NewRecorder()
	q := newQuery(t, s, query.Spec{From: query.Keys{"a"}, Filter: map[string]any{"region": "north"}}, query.WithObserver(rec))

	if _, err := q.Values(testContext(t)); err != nil {
		t.Fatalf("Values() error = %v", err)
	}

	events := rec.OfType(query.EventEvaluate)
	if len(events) != 1 {
		t.Fatalf("evaluate events = %d, want 1", len(events))
	}
	if events[0].Data["scanned"] != 2 || events[0].Data["matched"] != 1 {
		t.Errorf("evaluate data = %v, want scanned 2 matched 1", events[0].Data)
	}
}

func TestKeys_Decode(t *testing.T) {
	tests := []struct {
		name   string
		json   string
		yaml   string
		want   query.Keys
		hasErr bool
	}{
		{name: "single", json: `{"from": "a.csv"}`, yaml: "from: a.csv", want: query.Keys{"a.csv"}},
		{name: "list", json: `{"from": ["a", "b"]}`, yaml: "from: [a, b]", want: query.Keys{"a", "b"}},
		{name: "invalid", json: `{"from": {"a": 1}}`, yaml: "from: {a: 1}", hasErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fromJSON query.Spec
			err := json.Unmarshal([]byte(tt.json), &fromJSON)
			if (err != nil) != tt.hasErr {
				t.Fatalf("json.Unmarshal() error = %v, wantErr %v", err, tt.hasErr)
			}

			var fromYAML query.Spec
			err = yaml.Unmarshal([]byte(tt.yaml), &fromYAML)
			if (err != nil) != tt.hasErr {
				t.Fatalf("yaml.Unmarshal() error = %v, wantErr %v", err, tt.hasErr)
			}
			if tt.hasErr {
				return
			}

			if !slices.Equal(fromJSON.From, tt.want) || !slices.Equal(fromYAML.From, tt.want) {
				t.Errorf("From = %v (json), %v (yaml), want %v", fromJSON.From, fromYAML.From, tt.want)
			}
		})
	}
}

func TestSpec_YAMLFilter(t *testing.T) {
	var spec query.Spec
	doc := strings.Join([]string{
		"from: a",
		"filter:",
		"  sales:",
		"    $gt: 20",
	}, "\n")
	if err := yaml.Unmarshal([]byte(doc), &spec); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}

	s := newLoadedStore(t)
	q := newQuery(t, s, spec)
	got, err := q.Values(testContext(t))
	if err != nil {
		t.Fatalf("Values() error = %v", err)
	}
	if len(got) != 1 || got[0]["sales"] != 40 {
		t.Errorf("Values() = %v, want the single row with sales 40", got)
	}
}
