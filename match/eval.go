package match

import (
	"cmp"
	"math"
	"reflect"
	"time"

	"github.com/tailored-agentic-units/tabula/transform"
)

func (n *Node) eval(row transform.Row) bool {
	switch n.Op {
	case OpAnd:
		for _, child := range n.Children {
			if !child.eval(row) {
				return false
			}
		}
		return true
	case OpOr:
		for _, child := range n.Children {
			if child.eval(row) {
				return true
			}
		}
		return false
	case OpNot:
		for _, child := range n.Children {
			if !child.eval(row) {
				return true
			}
		}
		return false
	case OpNor:
		for _, child := range n.Children {
			if child.eval(row) {
				return false
			}
		}
		return true
	case OpField:
		return n.Children[0].eval(row)
	case OpFieldEq:
		return Equal(row[n.Field], n.Operand)
	case OpGt, OpGte, OpLt, OpLte:
		value, ok := row[n.Field]
		if !ok {
			return false
		}
		order, ok := Compare(value, n.Operand)
		if !ok {
			return false
		}
		switch n.Op {
		case OpGt:
			return order > 0
		case OpGte:
			return order >= 0
		case OpLt:
			return order < 0
		default:
			return order <= 0
		}
	case OpNe:
		return !Equal(row[n.Field], n.Operand)
	case OpIn:
		return contains(n.Operand, row[n.Field])
	case OpNin:
		return !contains(n.Operand, row[n.Field])
	}
	return false
}

// Equal is deep equality where every numeric kind compares by value as
// float64 and times compare with time.Time.Equal.
func Equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders a relative to b and reports whether the two are comparable.
// Numbers compare numerically, strings lexically, times chronologically, and
// false orders before true.
func Compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok || math.IsNaN(fa) || math.IsNaN(fb) {
			return 0, false
		}
		return cmp.Compare(fa, fb), true
	}

	switch va := a.(type) {
	case string:
		vb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return cmp.Compare(va, vb), true
	case time.Time:
		vb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return va.Compare(vb), true
	case bool:
		vb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case va == vb:
			return 0, true
		case vb:
			return -1, true
		}
		return 1, true
	}

	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// contains treats a slice or array operand as a set; any other operand is a
// one-element set.
func contains(set any, value any) bool {
	rv := reflect.ValueOf(set)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return Equal(value, set)
	}
	for i := range rv.Len() {
		if Equal(value, rv.Index(i).Interface()) {
			return true
		}
	}
	return false
}
