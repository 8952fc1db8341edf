package source

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// Source types accepted by Config.Type.
const (
	TypeFile     = "file"
	TypePostgres = "postgres"
	TypeStatic   = "static"
)

// Config holds row-source initialization parameters.
type Config struct {
	Type      string `json:"type,omitempty" yaml:"type,omitempty"`           // file, postgres, or static.
	Root      string `json:"root,omitempty" yaml:"root,omitempty"`           // FileSource root directory.
	Delimiter string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"` // FileSource delimiter override.
	DSN       string `json:"dsn,omitempty" yaml:"dsn,omitempty"`             // PostgreSQL connection string.
	AllowSQL  bool   `json:"allow_sql,omitempty" yaml:"allow_sql,omitempty"` // accept SELECT statements as postgres keys.
}

// DefaultConfig returns the default source configuration: CSV files under
// the working directory.
func DefaultConfig() Config {
	return Config{
		Type: TypeFile,
		Root: ".",
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Type != "" {
		c.Type = source.Type
	}
	if source.Root != "" {
		c.Root = source.Root
	}
	if source.Delimiter != "" {
		c.Delimiter = source.Delimiter
	}
	if source.DSN != "" {
		c.DSN = source.DSN
	}
	if source.AllowSQL {
		c.AllowSQL = true
	}
}

// New creates a Source from configuration.
func New(ctx context.Context, cfg *Config) (Source, error) {
	switch cfg.Type {
	case TypeFile, "":
		delim, err := parseDelimiter(cfg.Delimiter)
		if err != nil {
			return nil, err
		}
		return NewFileSource(cfg.Root, delim), nil
	case TypePostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres source requires a dsn")
		}
		var opts []PostgresOption
		if cfg.AllowSQL {
			opts = append(opts, WithRawSQL())
		}
		pg, err := ConnectPostgres(ctx, cfg.DSN, opts...)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case TypeStatic:
		return NewStatic(nil), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, cfg.Type)
	}
}

func parseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case `\t`, "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}
