// Package match evaluates MongoDB-style predicates against rows.
//
// A query is a nested map. Plain keys name fields: a scalar value means
// equality, a nested map scopes a sub-query to that field. Operator keys
// (and, or, not, nor, gt, gte, lt, lte, in, ne, nin, optionally prefixed with
// "$") combine or compare. Queries are parsed once by Compile into a tree of
// Nodes over a closed operator set and then matched against any number of
// rows.
package match

import "strings"

// Op is the closed set of node kinds a compiled predicate is built from.
type Op int

const (
	OpAnd Op = iota
	OpOr
	OpNot
	OpNor
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpNe
	OpNin
	OpFieldEq // direct equality against a field
	OpField   // sub-query scoped to a field
)

var opNames = map[Op]string{
	OpAnd:     "and",
	OpOr:      "or",
	OpNot:     "not",
	OpNor:     "nor",
	OpGt:      "gt",
	OpGte:     "gte",
	OpLt:      "lt",
	OpLte:     "lte",
	OpIn:      "in",
	OpNe:      "ne",
	OpNin:     "nin",
	OpFieldEq: "eq",
	OpField:   "field",
}

var keywords = map[string]Op{
	"and": OpAnd,
	"or":  OpOr,
	"not": OpNot,
	"nor": OpNor,
	"gt":  OpGt,
	"gte": OpGte,
	"lt":  OpLt,
	"lte": OpLte,
	"in":  OpIn,
	"ne":  OpNe,
	"nin": OpNin,
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return "unknown"
}

// IsLogical reports whether o combines child nodes.
func (o Op) IsLogical() bool {
	switch o {
	case OpAnd, OpOr, OpNot, OpNor:
		return true
	}
	return false
}

// IsComparison reports whether o compares the scoped field to an operand.
func (o Op) IsComparison() bool {
	switch o {
	case OpGt, OpGte, OpLt, OpLte, OpIn, OpNe, OpNin:
		return true
	}
	return false
}

// ParseOp classifies a query key. Keys are case-sensitive; a single leading
// "$" is accepted. Any other key is a field name.
func ParseOp(key string) (Op, bool) {
	op, ok := keywords[strings.TrimPrefix(key, "$")]
	return op, ok
}
