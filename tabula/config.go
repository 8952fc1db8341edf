package tabula

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/tabula/logging"
	"github.com/tailored-agentic-units/tabula/server"
	"github.com/tailored-agentic-units/tabula/source"
	"github.com/tailored-agentic-units/tabula/store"
)

const defaultObserver = "slog"

// Config holds initialization parameters for every tabula component.
// Each section delegates to that package's config and Merge.
type Config struct {
	Source   source.Config  `json:"source" yaml:"source"`
	Store    store.Config   `json:"store" yaml:"store"`
	Datasets []string       `json:"datasets,omitempty" yaml:"datasets,omitempty"` // keys loaded by Preload.
	Server   server.Config  `json:"server" yaml:"server"`
	Logging  logging.Config `json:"logging" yaml:"logging"`
	Observer string         `json:"observer,omitempty" yaml:"observer,omitempty"` // comma-separated observability registry names.
}

// DefaultConfig returns a Config with defaults for all sections.
func DefaultConfig() Config {
	return Config{
		Source:   source.DefaultConfig(),
		Store:    store.DefaultConfig(),
		Server:   server.DefaultConfig(),
		Logging:  logging.DefaultConfig(),
		Observer: defaultObserver,
	}
}

// Merge applies non-zero values from source into c, delegating to each
// section's Merge method.
func (c *Config) Merge(source *Config) {
	c.Source.Merge(&source.Source)
	c.Store.Merge(&source.Store)
	c.Server.Merge(&source.Server)
	c.Logging.Merge(&source.Logging)

	if len(source.Datasets) > 0 {
		c.Datasets = source.Datasets
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// LoadConfig reads a JSON or YAML config file (chosen by extension),
// merges it with defaults, and returns the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &loaded)
	default:
		err = json.Unmarshal(data, &loaded)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
