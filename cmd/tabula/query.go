package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/tabula/query"
	"github.com/tailored-agentic-units/tabula/store"
	"github.com/tailored-agentic-units/tabula/tabula"
	"github.com/tailored-agentic-units/tabula/transform"
)

// queryFlags are the flags shared by query and export.
type queryFlags struct {
	from   []string
	filter string
	cast   map[string]string
	mapY   string
	mapX   string
	series string
}

func (f *queryFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringSliceVar(&f.from, "from", nil, "Dataset keys to query (repeatable)")
	flags.StringVar(&f.filter, "filter", "", "Filter document as JSON or YAML")
	flags.StringToStringVar(&f.cast, "cast", nil, "Column casts, e.g. year=Integer,sales=Number")
	flags.StringVar(&f.mapX, "map-x", "", "Column kept on every row when mapping wide columns to long")
	flags.StringVar(&f.mapY, "map-y", "", "Columns mapped to long rows, as a YAML list or object")
	_ = cmd.MarkFlagRequired("from")
}

// loadOptions builds the per-load options from --cast and --map-*.
func (f *queryFlags) loadOptions() (*store.LoadOptions, error) {
	var opts store.LoadOptions
	if len(f.cast) > 0 {
		spec := make(transform.CastSpec, len(f.cast))
		for field, typ := range f.cast {
			spec[field] = typ
		}
		opts.Cast = spec
	}
	if f.mapY != "" {
		var y any
		if err := yaml.Unmarshal([]byte(f.mapY), &y); err != nil {
			return nil, fmt.Errorf("parse --map-y: %w", err)
		}
		opts.Map = transform.MapSpec{X: f.mapX, Y: y}
	}
	if opts.Cast == nil && opts.Map == nil {
		return nil, nil
	}
	return &opts, nil
}

// parseFilter decodes a filter document. JSON is accepted as a subset of
// YAML.
func parseFilter(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var filter map[string]any
	if err := yaml.Unmarshal([]byte(s), &filter); err != nil {
		return nil, fmt.Errorf("parse --filter: %w", err)
	}
	return filter, nil
}

// run loads the requested keys and returns the bound query once they are
// ready. The caller disposes the query.
func (f *queryFlags) run(ctx context.Context, t *tabula.Tabula, opts ...query.Option) (*query.Query, error) {
	filter, err := parseFilter(f.filter)
	if err != nil {
		return nil, err
	}
	loadOpts, err := f.loadOptions()
	if err != nil {
		return nil, err
	}

	q, err := t.Query(query.Spec{From: f.from, Filter: filter}, opts...)
	if err != nil {
		return nil, err
	}
	if err := q.Load(ctx, loadOpts).Wait(ctx); err != nil {
		q.Dispose()
		return nil, err
	}
	return q, nil
}

func newQueryCmd(a *app) *cobra.Command {
	var f queryFlags

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Filter rows from one or more datasets",
		Long: `Load the datasets named by --from, apply the filter, and print the
matching rows. With --series the rows are grouped by that column.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			t, err := a.runtime(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			var opts []query.Option
			if f.series != "" {
				opts = append(opts, query.WithMapping(query.Mapping{Key: f.series}))
			}

			q, err := f.run(ctx, t, opts...)
			if err != nil {
				return err
			}
			defer q.Dispose()

			if f.series != "" {
				series, err := q.Results(ctx)
				if err != nil {
					return err
				}
				return writeSeries(cmd.OutOrStdout(), a.format, series)
			}

			values, err := q.Values(ctx)
			if err != nil {
				return err
			}
			return writeRows(cmd.OutOrStdout(), a.format, values)
		},
	}

	f.bind(cmd)
	cmd.Flags().StringVar(&f.series, "series", "", "Group matching rows by this column")

	return cmd
}
