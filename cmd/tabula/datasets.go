package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newDatasetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List the datasets available from the source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			t, err := a.runtime(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			keys, err := t.Datasets(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch a.format {
			case formatJSON:
				return writeJSON(out, keys)
			case formatYAML:
				return yaml.NewEncoder(out).Encode(keys)
			}
			for _, key := range keys {
				fmt.Fprintln(out, key)
			}
			return nil
		},
	}
}
