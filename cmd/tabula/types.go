package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newTypesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the type names accepted by --cast",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer t.Close()

			names := t.Store().Types().Names()

			out := cmd.OutOrStdout()
			switch a.format {
			case formatJSON:
				return writeJSON(out, names)
			case formatYAML:
				return yaml.NewEncoder(out).Encode(names)
			}
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}
