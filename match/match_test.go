package match_test

import (
	"errors"
	"testing"
	"time"

	"github.com/tailored-agentic-units/tabula/match"
	"github.com/tailored-agentic-units/tabula/transform"
)

func TestMatches(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		query map[string]any
		row   transform.Row
		want  bool
	}{
		{name: "implicit and holds", query: map[string]any{"a": 1, "b": 2}, row: transform.Row{"a": 1, "b": 2, "c": 3}, want: true},
		{name: "implicit and fails", query: map[string]any{"a": 1, "b": 2}, row: transform.Row{"a": 1, "b": 3}, want: false},
		{name: "empty query", query: map[string]any{}, row: transform.Row{"a": 1}, want: true},
		{name: "numeric kinds compare by value", query: map[string]any{"a": 1}, row: transform.Row{"a": float64(1)}, want: true},
		{name: "missing field equality", query: map[string]any{"a": 1}, row: transform.Row{}, want: false},
		{name: "slice equality", query: map[string]any{"tags": []any{"a", "b"}}, row: transform.Row{"tags": []any{"a", "b"}}, want: true},
		{name: "time equality", query: map[string]any{"at": jan}, row: transform.Row{"at": jan.In(time.FixedZone("x", 3600))}, want: true},

		{name: "nested range inside", query: map[string]any{"price": map[string]any{"gt": 10, "lt": 100}}, row: transform.Row{"price": 50}, want: true},
		{name: "nested range below", query: map[string]any{"price": map[string]any{"gt": 10, "lt": 100}}, row: transform.Row{"price": 5}, want: false},
		{name: "nested range lt strict", query: map[string]any{"price": map[string]any{"gt": 10, "lt": 100}}, row: transform.Row{"price": 100}, want: false},
		{name: "lte inclusive", query: map[string]any{"price": map[string]any{"lte": 100}}, row: transform.Row{"price": 100}, want: true},
		{name: "gte inclusive", query: map[string]any{"price": map[string]any{"$gte": 10}}, row: transform.Row{"price": 10.0}, want: true},
		{name: "compare missing field", query: map[string]any{"price": map[string]any{"lt": 100}}, row: transform.Row{}, want: false},
		{name: "compare mixed kinds", query: map[string]any{"price": map[string]any{"lt": 100}}, row: transform.Row{"price": "5"}, want: false},
		{name: "compare strings", query: map[string]any{"name": map[string]any{"gt": "b"}}, row: transform.Row{"name": "c"}, want: true},
		{name: "compare times", query: map[string]any{"at": map[string]any{"gt": jan}}, row: transform.Row{"at": feb}, want: true},

		{name: "or first branch", query: map[string]any{"or": map[string]any{"a": map[string]any{"gt": 10}, "b": map[string]any{"lt": 5}}}, row: transform.Row{"a": 20, "b": 20}, want: true},
		{name: "or no branch", query: map[string]any{"or": map[string]any{"a": map[string]any{"gt": 10}, "b": map[string]any{"lt": 5}}}, row: transform.Row{"a": 1, "b": 20}, want: false},
		{name: "or empty", query: map[string]any{"or": map[string]any{}}, row: transform.Row{}, want: false},
		{name: "and explicit", query: map[string]any{"$and": map[string]any{"a": 1, "b": 2}}, row: transform.Row{"a": 1, "b": 2}, want: true},
		{name: "not matching", query: map[string]any{"not": map[string]any{"a": 1}}, row: transform.Row{"a": 1}, want: false},
		{name: "not other", query: map[string]any{"not": map[string]any{"a": 1}}, row: transform.Row{"a": 2}, want: true},
		{name: "not partial", query: map[string]any{"not": map[string]any{"a": 1, "b": 1}}, row: transform.Row{"a": 1, "b": 2}, want: true},
		{name: "nor none hold", query: map[string]any{"nor": map[string]any{"a": 1, "b": 1}}, row: transform.Row{"a": 2, "b": 2}, want: true},
		{name: "nor one holds", query: map[string]any{"nor": map[string]any{"a": 1, "b": 1}}, row: transform.Row{"a": 1, "b": 2}, want: false},

		{name: "or list first item", query: map[string]any{"or": []any{map[string]any{"a": 1}, map[string]any{"b": 2}}}, row: transform.Row{"a": 1}, want: true},
		{name: "or list second item", query: map[string]any{"$or": []any{map[string]any{"a": 1}, map[string]any{"b": 2}}}, row: transform.Row{"b": 2}, want: true},
		{name: "or list no item", query: map[string]any{"or": []any{map[string]any{"a": 1}, map[string]any{"b": 2}}}, row: transform.Row{"a": 2, "b": 1}, want: false},
		{name: "or list item is an and", query: map[string]any{"or": []map[string]any{{"a": 1, "b": 1}, {"c": 1}}}, row: transform.Row{"a": 1, "b": 2}, want: false},
		{name: "and list", query: map[string]any{"and": []any{map[string]any{"a": 1}, map[string]any{"b": 2}}}, row: transform.Row{"a": 1, "b": 2}, want: true},
		{name: "nor list", query: map[string]any{"nor": []any{map[string]any{"a": 1}, map[string]any{"b": 2}}}, row: transform.Row{"a": 2, "b": 1}, want: true},
		{name: "scoped or list", query: map[string]any{"c": map[string]any{"or": []any{map[string]any{"lt": 0}, map[string]any{"gt": 10}}}}, row: transform.Row{"c": -1}, want: true},
		{name: "or empty list", query: map[string]any{"or": []any{}}, row: transform.Row{}, want: false},

		{name: "scoped or", query: map[string]any{"c": map[string]any{"or": map[string]any{"lt": 0, "gt": 10}}}, row: transform.Row{"c": 11}, want: true},
		{name: "scoped or fails", query: map[string]any{"c": map[string]any{"or": map[string]any{"lt": 0, "gt": 10}}}, row: transform.Row{"c": 5}, want: false},
		{name: "scoped not", query: map[string]any{"c": map[string]any{"not": map[string]any{"gt": 10, "lt": 100}}}, row: transform.Row{"c": 50}, want: false},

		{name: "in", query: map[string]any{"k": map[string]any{"in": []string{"a", "b"}}}, row: transform.Row{"k": "b"}, want: true},
		{name: "in miss", query: map[string]any{"k": map[string]any{"in": []any{1, 2}}}, row: transform.Row{"k": 3}, want: false},
		{name: "in scalar operand", query: map[string]any{"k": map[string]any{"in": 3}}, row: transform.Row{"k": 3}, want: true},
		{name: "nin", query: map[string]any{"k": map[string]any{"nin": []any{1, 2}}}, row: transform.Row{"k": 3}, want: true},
		{name: "nin hit", query: map[string]any{"k": map[string]any{"$nin": []any{1, 2}}}, row: transform.Row{"k": 2.0}, want: false},
		{name: "ne", query: map[string]any{"k": map[string]any{"ne": -1}}, row: transform.Row{"k": 1}, want: true},
		{name: "ne equal", query: map[string]any{"k": map[string]any{"ne": 1}}, row: transform.Row{"k": 1}, want: false},

		{name: "field scope rebinding", query: map[string]any{"outer": map[string]any{"inner": 1}}, row: transform.Row{"inner": 1}, want: true},
		{name: "typed map is a query", query: map[string]any{"n": map[string]int{"gt": 1}}, row: transform.Row{"n": 2}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := match.Matches(tt.query, tt.row)
			if err != nil {
				t.Fatalf("Matches() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Matches(%v, %v) = %v, want %v", tt.query, tt.row, got, tt.want)
			}
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		query   map[string]any
		wantErr error
	}{
		{name: "top level comparison", query: map[string]any{"gt": 10}, wantErr: match.ErrUnscopedComparison},
		{name: "comparison under top level or", query: map[string]any{"or": map[string]any{"lt": 10}}, wantErr: match.ErrUnscopedComparison},
		{name: "logical with scalar operand", query: map[string]any{"and": 1}, wantErr: match.ErrInvalidQuery},
		{name: "scoped logical with scalar list item", query: map[string]any{"a": map[string]any{"or": []any{1}}}, wantErr: match.ErrInvalidQuery},
		{name: "comparison inside top level or list", query: map[string]any{"or": []any{map[string]any{"lt": 10}}}, wantErr: match.ErrUnscopedComparison},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := match.Compile(tt.query)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Compile() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPredicate_Filter(t *testing.T) {
	p := match.MustCompile(map[string]any{"v": map[string]any{"gte": 2}})
	rows := []transform.Row{{"v": 3}, {"v": 1}, {"v": 2}, {"v": 5}}

	got := p.Filter(rows)
	want := []int{3, 2, 5}
	if len(got) != len(want) {
		t.Fatalf("Filter() returned %d rows, want %d", len(got), len(want))
	}
	for i, row := range got {
		if row["v"] != want[i] {
			t.Errorf("Filter()[%d] = %v, want %v", i, row["v"], want[i])
		}
	}
}

func TestCompile_Tree(t *testing.T) {
	p := match.MustCompile(map[string]any{
		"price": map[string]any{"gt": 10},
		"kind":  "a",
	})

	root := p.Root()
	if root.Op != match.OpAnd {
		t.Fatalf("root.Op = %v, want %v", root.Op, match.OpAnd)
	}
	if len(root.Children) != 2 {
		t.Fatalf("root has %d children, want 2", len(root.Children))
	}

	kind, price := root.Children[0], root.Children[1]
	if kind.Op != match.OpFieldEq || kind.Field != "kind" {
		t.Errorf("first child = %v(%s), want eq(kind)", kind.Op, kind.Field)
	}
	if price.Op != match.OpField || price.Field != "price" {
		t.Errorf("second child = %v(%s), want field(price)", price.Op, price.Field)
	}
	gt := price.Children[0].Children[0]
	if gt.Op != match.OpGt || gt.Field != "price" || gt.Operand != 10 {
		t.Errorf("scoped node = %v(%s, %v), want gt(price, 10)", gt.Op, gt.Field, gt.Operand)
	}
}

func TestParseOp(t *testing.T) {
	tests := []struct {
		key    string
		want   match.Op
		wantOK bool
	}{
		{key: "and", want: match.OpAnd, wantOK: true},
		{key: "$or", want: match.OpOr, wantOK: true},
		{key: "nin", want: match.OpNin, wantOK: true},
		{key: "AND", wantOK: false},
		{key: "price", wantOK: false},
		{key: "$$gt", wantOK: false},
	}

	for _, tt := range tests {
		got, ok := match.ParseOp(tt.key)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("ParseOp(%q) = (%v, %v), want (%v, %v)", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCompare(t *testing.T) {
	if _, ok := match.Compare(1, "1"); ok {
		t.Error("Compare(1, \"1\") reported comparable")
	}
	if got, ok := match.Compare(false, true); !ok || got != -1 {
		t.Errorf("Compare(false, true) = (%d, %v), want (-1, true)", got, ok)
	}
	if got, ok := match.Compare(int64(3), 2.5); !ok || got != 1 {
		t.Errorf("Compare(3, 2.5) = (%d, %v), want (1, true)", got, ok)
	}
}
