package store

import "github.com/tailored-agentic-units/tabula/transform"

// Config holds the store-wide transformation stages applied at startup.
type Config struct {
	Cast map[string]string `json:"cast,omitempty" yaml:"cast,omitempty"` // field name to type name.
	Map  *transform.MapSpec `json:"map,omitempty" yaml:"map,omitempty"`
}

// DefaultConfig returns the default store configuration: identity stages.
func DefaultConfig() Config {
	return Config{}
}

// Merge applies non-zero values from source into c. Cast entries are merged
// field by field.
func (c *Config) Merge(source *Config) {
	if len(source.Cast) > 0 {
		if c.Cast == nil {
			c.Cast = make(map[string]string, len(source.Cast))
		}
		for field, name := range source.Cast {
			c.Cast[field] = name
		}
	}
	if source.Map != nil {
		c.Map = source.Map
	}
}
