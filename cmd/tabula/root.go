package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/tabula/logging"
	"github.com/tailored-agentic-units/tabula/tabula"
)

// app carries the flags and configuration shared by every subcommand.
type app struct {
	configFile string
	root       string
	logLevel   string
	format     string

	cfg *tabula.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "tabula",
		Short: "Load, transform, and query tabular datasets",
		Long: `Tabula loads tabular datasets from delimited files or PostgreSQL,
casts and reshapes their columns, and answers filter queries over them.

Examples:
  # List the datasets under a directory
  tabula --root ./data datasets

  # Rows from two files where year >= 2020, grouped by region
  tabula --root ./data query --from sales.csv --from costs.csv \
    --cast year=Integer --filter '{"year": {"$gte": 2020}}' --series region

  # Serve the configured datasets over HTTP
  tabula --config tabula.yaml serve`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "Path to JSON or YAML config file")
	flags.StringVar(&a.root, "root", "", "Dataset root directory for the file source (overrides config)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	flags.StringVarP(&a.format, "format", "f", formatTable, "Output format: table|json|yaml|csv")

	cmd.AddCommand(
		newDatasetsCmd(a),
		newQueryCmd(a),
		newExportCmd(a),
		newServeCmd(a),
		newTypesCmd(a),
	)

	return cmd
}

// setup loads the config file, applies flag overrides, and sets up logging.
func (a *app) setup() error {
	if a.configFile != "" {
		cfg, err := tabula.LoadConfig(a.configFile)
		if err != nil {
			return err
		}
		a.cfg = cfg
	} else {
		cfg := tabula.DefaultConfig()
		a.cfg = &cfg
	}

	if a.root != "" {
		a.cfg.Source.Root = a.root
	}
	if a.logLevel != "" {
		a.cfg.Logging.Level = a.logLevel
	}

	if err := validateFormat(a.format); err != nil {
		return err
	}

	logging.Setup(a.cfg.Logging.Level, a.cfg.Logging.Format)
	return nil
}

// runtime creates a tabula runtime from the loaded configuration.
func (a *app) runtime(ctx context.Context) (*tabula.Tabula, error) {
	t, err := tabula.New(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime: %w", err)
	}
	return t, nil
}
