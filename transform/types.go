package transform

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"
)

// Converter converts a single raw field value into a typed value.
type Converter func(value any) (any, error)

// Built-in type names recognized by cast specs.
const (
	TypeNumber  = "Number"
	TypeInteger = "Integer"
	TypeBoolean = "Boolean"
	TypeString  = "String"
	TypeDate    = "Date"
)

// Types is a named set of converters. The package-level set holds the
// built-ins; each store works on its own Clone so registrations made on one
// store never leak into another. Safe for concurrent use.
type Types struct {
	entries map[string]Converter
	mu      sync.RWMutex
}

var registry = &Types{
	entries: map[string]Converter{
		TypeNumber:  toNumber,
		TypeInteger: toInteger,
		TypeBoolean: toBoolean,
		TypeString:  toString,
		TypeDate:    toDate,
	},
}

// NewTypes creates a converter set seeded from the package-level registry.
func NewTypes() *Types {
	return registry.Clone()
}

// RegisterType adds a converter to the package-level registry.
// Returns ErrAlreadyExists if the name is taken; use ReplaceType to update it.
func RegisterType(name string, conv Converter) error {
	return registry.Register(name, conv)
}

// ReplaceType updates an existing converter in the package-level registry.
func ReplaceType(name string, conv Converter) error {
	return registry.Replace(name, conv)
}

// LookupType returns a converter from the package-level registry.
func LookupType(name string) (Converter, bool) {
	return registry.Lookup(name)
}

// Register adds a converter under name.
func (t *Types) Register(name string, conv Converter) error {
	if name == "" {
		return ErrEmptyName
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}

	t.entries[name] = conv
	return nil
}

// Replace updates the converter registered under name.
func (t *Types) Replace(name string, conv Converter) error {
	if name == "" {
		return ErrEmptyName
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[name]; !exists {
		return fmt.Errorf("%w: %s", ErrTypeNotFound, name)
	}

	t.entries[name] = conv
	return nil
}

// Lookup returns the converter registered under name.
func (t *Types) Lookup(name string) (Converter, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conv, ok := t.entries[name]
	return conv, ok
}

// Names returns the registered type names in sorted order.
func (t *Types) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return slices.Sorted(maps.Keys(t.entries))
}

// Clone returns an independent copy of the set.
func (t *Types) Clone() *Types {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return &Types{entries: maps.Clone(t.entries)}
}

// toNumber follows unary-plus semantics: missing values and unparseable
// input become NaN, the empty string becomes zero.
func toNumber(value any) (any, error) {
	if value == nil {
		return math.NaN(), nil
	}
	if s, ok := value.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return float64(0), nil
		}
		value = s
	}
	f, err := cast.ToFloat64E(value)
	if err != nil {
		return math.NaN(), nil
	}
	return f, nil
}

// toInteger truncates toward zero. Missing values become NaN; anything else
// that does not parse becomes zero.
func toInteger(value any) (any, error) {
	if value == nil {
		return math.NaN(), nil
	}
	n, _ := toNumber(value)
	f := n.(float64)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return int64(0), nil
	}
	return int64(math.Trunc(f)), nil
}

func toBoolean(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return strings.ToUpper(v) == "TRUE", nil
	case bool:
		return v, nil
	case nil:
		return false, nil
	}
	f, err := cast.ToFloat64E(value)
	if err != nil {
		return false, nil
	}
	return f == 1, nil
}

func toString(value any) (any, error) {
	if value == nil {
		return "", nil
	}
	s, err := cast.ToStringE(value)
	if err != nil {
		return fmt.Sprint(value), nil
	}
	return s, nil
}

// toDate yields the zero time for input that cannot be parsed.
func toDate(value any) (any, error) {
	if value == nil {
		return time.Time{}, nil
	}
	t, err := cast.ToTimeE(value)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}
