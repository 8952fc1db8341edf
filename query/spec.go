package query

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/tabula/transform"
)

// Keys is an ordered list of dataset keys. It decodes from either a single
// string or a list of strings.
type Keys []string

func (k *Keys) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*k = Keys{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("from: want a key or list of keys: %w", err)
	}
	*k = many
	return nil
}

func (k *Keys) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*k = Keys{node.Value}
		return nil
	}
	var many []string
	if err := node.Decode(&many); err != nil {
		return fmt.Errorf("from: want a key or list of keys: %w", err)
	}
	*k = many
	return nil
}

// Spec selects rows from one or more datasets and filters them with a
// match predicate.
type Spec struct {
	From   Keys           `json:"from" yaml:"from"`
	Filter map[string]any `json:"filter,omitempty" yaml:"filter,omitempty"`
}

// KeyFunc derives the series key of a row.
type KeyFunc func(row transform.Row) any

// Mapping describes how filtered rows are grouped into series.
type Mapping struct {
	// Key is the field holding the series key. Defaults to
	// transform.DefaultCategory.
	Key string `json:"key,omitempty" yaml:"key,omitempty"`
	// KeyFunc, when set, takes precedence over Key.
	KeyFunc KeyFunc `json:"-" yaml:"-"`
	// Meta holds per-series metadata keyed by series key.
	Meta map[string]map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`
}

func (m Mapping) keyOf(row transform.Row) any {
	if m.KeyFunc != nil {
		return m.KeyFunc(row)
	}
	field := m.Key
	if field == "" {
		field = transform.DefaultCategory
	}
	return row[field]
}

// Series is one group of filtered rows.
type Series struct {
	Key    string          `json:"key"`
	Meta   map[string]any  `json:"meta,omitempty"`
	Values []transform.Row `json:"values"`
}
