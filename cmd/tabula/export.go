package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/tabula/source"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		f   queryFlags
		out string
		dir string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write query results to a delimited file",
		Long: `Run a query like the query command and write the matching rows to a
file under --dir. The delimiter follows the file extension (.tsv for tabs).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			t, err := a.runtime(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			q, err := f.run(ctx, t)
			if err != nil {
				return err
			}
			defer q.Dispose()

			values, err := q.Values(ctx)
			if err != nil {
				return err
			}

			if dir == "" {
				dir = a.cfg.Source.Root
			}
			if err := source.NewFileSource(dir, 0).Write(ctx, out, columns(values), values); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", len(values), out)
			return nil
		},
	}

	f.bind(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "Key of the file to write, relative to --dir")
	cmd.Flags().StringVar(&dir, "dir", "", "Directory to write into (defaults to the source root)")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
