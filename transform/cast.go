package transform

import (
	"fmt"
	"maps"
	"slices"
)

// Func is a single pipeline stage. It receives one row and returns the rows
// that replace it; returning an error aborts processing.
type Func func(row Row) ([]Row, error)

// Identity is the default stage for both cast and map.
func Identity(row Row) ([]Row, error) {
	return []Row{row}, nil
}

// CastSpec maps a field name to a type name registered in Types, a
// Converter, or a plain func(any) any.
type CastSpec map[string]any

// CompileCast builds a cast stage from spec. A Func (or bare function with the
// same signature) is used as-is and nil yields Identity. For a CastSpec, every
// named field is overwritten with its converted value; unknown type names are
// skipped and leave the field untouched.
func CompileCast(spec any, types *Types) (Func, error) {
	switch s := spec.(type) {
	case nil:
		return Identity, nil
	case Func:
		if s == nil {
			return Identity, nil
		}
		return s, nil
	case func(Row) ([]Row, error):
		return s, nil
	case CastSpec:
		return compileCastSpec(s, types)
	case map[string]any:
		return compileCastSpec(CastSpec(s), types)
	case map[string]string:
		converted := make(CastSpec, len(s))
		for field, name := range s {
			converted[field] = name
		}
		return compileCastSpec(converted, types)
	default:
		return nil, fmt.Errorf("%w: cast spec of type %T", ErrInvalidSpec, spec)
	}
}

type fieldCast struct {
	field string
	conv  Converter
}

func compileCastSpec(spec CastSpec, types *Types) (Func, error) {
	if types == nil {
		types = registry
	}

	var casts []fieldCast
	for _, field := range slices.Sorted(maps.Keys(spec)) {
		conv, err := resolveConverter(spec[field], types)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		if conv == nil {
			continue
		}
		casts = append(casts, fieldCast{field: field, conv: conv})
	}

	return func(row Row) ([]Row, error) {
		for _, c := range casts {
			value, err := c.conv(row[c.field])
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", c.field, err)
			}
			row[c.field] = value
		}
		return []Row{row}, nil
	}, nil
}

// resolveConverter returns nil without error for unknown type names.
func resolveConverter(entry any, types *Types) (Converter, error) {
	switch e := entry.(type) {
	case string:
		conv, ok := types.Lookup(e)
		if !ok {
			return nil, nil
		}
		return conv, nil
	case Converter:
		return e, nil
	case func(any) (any, error):
		return e, nil
	case func(any) any:
		return func(value any) (any, error) { return e(value), nil }, nil
	default:
		return nil, fmt.Errorf("%w: converter of type %T", ErrInvalidSpec, entry)
	}
}
