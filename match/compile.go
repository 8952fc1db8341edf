package match

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/tailored-agentic-units/tabula/transform"
)

// Node is one element of a compiled predicate.
//
//   - logical ops hold Children
//   - comparison ops hold Field (the enclosing field scope) and Operand
//   - OpFieldEq holds Field and Operand
//   - OpField holds Field and a single child (an implicit AND)
type Node struct {
	Op       Op
	Field    string
	Operand  any
	Children []*Node
}

// Predicate is a compiled query.
type Predicate struct {
	root *Node
}

// Compile parses query into a Predicate. The top-level map is an implicit
// AND. A comparison operator that is not nested under a field key is
// rejected with ErrUnscopedComparison.
func Compile(query map[string]any) (*Predicate, error) {
	root, err := compileGroup(OpAnd, query, "", false)
	if err != nil {
		return nil, err
	}
	return &Predicate{root: root}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(query map[string]any) *Predicate {
	p, err := Compile(query)
	if err != nil {
		panic(err)
	}
	return p
}

// Root returns the top-level node.
func (p *Predicate) Root() *Node {
	return p.root
}

// Match reports whether row satisfies the predicate.
func (p *Predicate) Match(row transform.Row) bool {
	return p.root.eval(row)
}

// Filter returns the rows that satisfy the predicate, in their original
// order.
func (p *Predicate) Filter(rows []transform.Row) []transform.Row {
	out := make([]transform.Row, 0, len(rows))
	for _, row := range rows {
		if p.Match(row) {
			out = append(out, row)
		}
	}
	return out
}

// Matches compiles query and evaluates it against row.
func Matches(query map[string]any, row transform.Row) (bool, error) {
	p, err := Compile(query)
	if err != nil {
		return false, err
	}
	return p.Match(row), nil
}

// compileGroup builds a logical node from every key/value pair in query.
// lookup is the enclosing field scope; scoped reports whether one is set.
func compileGroup(op Op, query map[string]any, lookup string, scoped bool) (*Node, error) {
	node := &Node{Op: op, Field: lookup, Children: make([]*Node, 0, len(query))}

	for _, key := range slices.Sorted(maps.Keys(query)) {
		child, err := compileEntry(key, query[key], lookup, scoped)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}

	return node, nil
}

func compileEntry(key string, value any, lookup string, scoped bool) (*Node, error) {
	if op, ok := ParseOp(key); ok {
		switch {
		case op.IsLogical():
			if nested, ok := asQuery(value); ok {
				return compileGroup(op, nested, lookup, scoped)
			}
			if items, ok := asList(value); ok {
				return compileList(op, key, items, lookup, scoped)
			}
			return nil, fmt.Errorf("%w: %q expects a mapping or a list of mappings, got %T", ErrInvalidQuery, key, value)
		case op.IsComparison():
			if !scoped {
				return nil, fmt.Errorf("%w: %q", ErrUnscopedComparison, key)
			}
			return &Node{Op: op, Field: lookup, Operand: value}, nil
		}
		return nil, fmt.Errorf("%w: operator %q", ErrInvalidQuery, key)
	}

	if nested, ok := asQuery(value); ok {
		group, err := compileGroup(OpAnd, nested, key, true)
		if err != nil {
			return nil, err
		}
		return &Node{Op: OpField, Field: key, Children: []*Node{group}}, nil
	}

	return &Node{Op: OpFieldEq, Field: key, Operand: value}, nil
}

// compileList builds a logical node whose children are the list items, each
// an implicit AND of its own keys.
func compileList(op Op, key string, items []any, lookup string, scoped bool) (*Node, error) {
	node := &Node{Op: op, Field: lookup, Children: make([]*Node, 0, len(items))}
	for i, item := range items {
		nested, ok := asQuery(item)
		if !ok {
			return nil, fmt.Errorf("%w: %q item %d expects a mapping, got %T", ErrInvalidQuery, key, i, item)
		}
		child, err := compileGroup(OpAnd, nested, lookup, scoped)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

// asList returns the elements of a slice or array value.
func asList(value any) ([]any, bool) {
	if items, ok := value.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// asQuery reports whether value is a nested query: a string-keyed map that is
// neither a time nor a sequence.
func asQuery(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case transform.Row:
		return v, true
	case time.Time, nil:
		return nil, false
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}

	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}
