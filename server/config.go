package server

import (
	"fmt"
	"time"
)

// Duration is a time.Duration that decodes from strings such as "15s" in
// both JSON and YAML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds HTTP server settings.
type Config struct {
	Addr            string   `json:"addr,omitempty" yaml:"addr,omitempty"`
	ReadTimeout     Duration `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
	WriteTimeout    Duration `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty"`
	IdleTimeout     Duration `json:"idle_timeout,omitempty" yaml:"idle_timeout,omitempty"`
	RequestTimeout  Duration `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"` // per-request deadline for load and query.
	ShutdownTimeout Duration `json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout,omitempty"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     Duration(15 * time.Second),
		WriteTimeout:    Duration(60 * time.Second),
		IdleTimeout:     Duration(60 * time.Second),
		RequestTimeout:  Duration(30 * time.Second),
		ShutdownTimeout: Duration(10 * time.Second),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Addr != "" {
		c.Addr = source.Addr
	}
	if source.ReadTimeout > 0 {
		c.ReadTimeout = source.ReadTimeout
	}
	if source.WriteTimeout > 0 {
		c.WriteTimeout = source.WriteTimeout
	}
	if source.IdleTimeout > 0 {
		c.IdleTimeout = source.IdleTimeout
	}
	if source.RequestTimeout > 0 {
		c.RequestTimeout = source.RequestTimeout
	}
	if source.ShutdownTimeout > 0 {
		c.ShutdownTimeout = source.ShutdownTimeout
	}
}
