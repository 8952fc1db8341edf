package transform

import (
	"fmt"
	"slices"
)

// DefaultCategory is the field that records which y column produced a
// denormalized row when the y spec does not name one.
const DefaultCategory = "__yColumn"

// YSpec is the normalized form of the y option. When Categories is set, the
// row emitted for a column is extended with Categories[column]; otherwise
// Category (if non-empty) is set to the column name.
type YSpec struct {
	Category   string         `json:"category,omitempty" yaml:"category,omitempty"`
	Columns    []string       `json:"columns" yaml:"columns"`
	Categories map[string]Row `json:"categories,omitempty" yaml:"categories,omitempty"`
}

// MapSpec configures denormalization. X names the x field (default "x").
// Y is a field name, a list of field names, a YSpec, or a mapping with a
// "columns" list.
type MapSpec struct {
	X string `json:"x,omitempty" yaml:"x,omitempty"`
	Y any    `json:"y,omitempty" yaml:"y,omitempty"`
}

// CompileMap builds a map stage from spec. A Func is used as-is and nil
// yields Identity.
func CompileMap(spec any) (Func, error) {
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
	case MapSpec:
		return compileMapSpec(s)
	case *MapSpec:
		if s == nil {
			return Identity, nil
		}
		return compileMapSpec(*s)
	case map[string]any:
		ms := MapSpec{Y: s["y"]}
		if x, ok := s["x"]; ok {
			name, ok := x.(string)
			if !ok {
				return nil, fmt.Errorf("%w: x must be a field name, got %T", ErrInvalidSpec, x)
			}
			ms.X = name
		}
		return compileMapSpec(ms)
	default:
		return nil, fmt.Errorf("%w: map spec of type %T", ErrInvalidSpec, spec)
	}
}

func compileMapSpec(spec MapSpec) (Func, error) {
	x := spec.X
	if x == "" {
		x = "x"
	}

	y, err := NormalizeY(spec.Y)
	if err != nil {
		return nil, err
	}

	return func(row Row) ([]Row, error) {
		return denormalize(row, x, y), nil
	}, nil
}

// NormalizeY converts any accepted y option into a YSpec.
func NormalizeY(y any) (YSpec, error) {
	switch v := y.(type) {
	case nil:
		return YSpec{Category: DefaultCategory, Columns: []string{"y"}}, nil
	case string:
		if v == "" {
			v = "y"
		}
		return YSpec{Category: DefaultCategory, Columns: []string{v}}, nil
	case []string:
		return YSpec{Category: DefaultCategory, Columns: slices.Clone(v)}, nil
	case []any:
		columns, err := stringList(v)
		if err != nil {
			return YSpec{}, err
		}
		return YSpec{Category: DefaultCategory, Columns: columns}, nil
	case YSpec:
		return v, nil
	case *YSpec:
		if v == nil {
			return NormalizeY(nil)
		}
		return *v, nil
	case map[string]any:
		return ySpecFromMap(v)
	default:
		return YSpec{}, fmt.Errorf("%w: y of type %T", ErrInvalidSpec, y)
	}
}

func ySpecFromMap(m map[string]any) (YSpec, error) {
	var spec YSpec

	switch cols := m["columns"].(type) {
	case []string:
		spec.Columns = slices.Clone(cols)
	case []any:
		columns, err := stringList(cols)
		if err != nil {
			return YSpec{}, err
		}
		spec.Columns = columns
	case nil:
		return YSpec{}, fmt.Errorf("%w: y mapping requires a columns list", ErrInvalidSpec)
	default:
		return YSpec{}, fmt.Errorf("%w: y columns of type %T", ErrInvalidSpec, cols)
	}

	if category, ok := m["category"].(string); ok {
		spec.Category = category
	}

	if categories, ok := m["categories"].(map[string]any); ok {
		spec.Categories = make(map[string]Row, len(categories))
		for column, value := range categories {
			fields, ok := value.(map[string]any)
			if !ok {
				return YSpec{}, fmt.Errorf("%w: categories[%q] of type %T", ErrInvalidSpec, column, value)
			}
			spec.Categories[column] = Row(fields)
		}
	}

	return spec, nil
}

func stringList(values []any) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: column %d of type %T", ErrInvalidSpec, i, v)
		}
		out[i] = s
	}
	return out, nil
}

// denormalize emits one row per y column. Fields other than x and the y
// columns are copied verbatim.
func denormalize(row Row, x string, y YSpec) []Row {
	out := make([]Row, 0, len(y.Columns))
	for _, column := range y.Columns {
		normalized := make(Row, len(row))
		for field, value := range row {
			if field == x || slices.Contains(y.Columns, field) {
				continue
			}
			normalized[field] = value
		}

		normalized["x"] = row[x]
		normalized["y"] = row[column]

		if y.Categories != nil {
			for field, value := range y.Categories[column] {
				normalized[field] = value
			}
		} else if y.Category != "" {
			normalized[y.Category] = column
		}

		out = append(out, normalized)
	}
	return out
}
