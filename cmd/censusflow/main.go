package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/censusflow/censusflow/internal/pipeline"
	"github.com/censusflow/censusflow/pkg/config"
	"github.com/censusflow/censusflow/pkg/logger"
)

var version = "0.1.0"

func main() {
	var configFile, logLevel string
	var cfg *config.Config

	root := &cobra.Command{
		Use:   "censusflow",
		Short: "Censusflow - US Census data pipelines",
		Long: `Censusflow collects and shapes US Census data for city-level analysis.
It cleans the subcounty population estimate files, pulls ACS 1-year place
data from the Census API, and aggregates the raw ACS columns into buckets.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(logger.Config{Level: logLevel}); err != nil {
				return err
			}
			var err error
			cfg, err = config.Load(configFile)
			if err != nil {
				return err
			}
			return cfg.Validate()
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to censusflow.yaml (optional)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		// Version needs no logger or config
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Censusflow v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "clean-population",
		Short: "Combine the subcounty population files into one city-level CSV",
		Long: `Combine the three Census subcounty population estimate files into a
single CSV with one row per city, a column per year (2000-2024), and
year-over-year fractional change columns.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer func() { _ = logger.Sync() }()
			ctx, cancel := signalContext()
			defer cancel()
			return pipeline.NewPopulationCleaner(cfg, logger.Get()).Run(ctx)
		},
	})

	var pullAll bool
	pullCmd := &cobra.Command{
		Use:   "pull-acs [year] | pull-acs --all [start end]",
		Short: "Pull ACS 1-year place data from the Census API",
		Long: `Pull ACS 1-year place-level data for the configured table groups across
all states, writing one parquet file (plus a CSV mirror) per year.

With a single year argument, pulls that year. With --all, pulls the
configured range (optionally overridden by start and end arguments).
2020 has no ACS 1-year release and yields no data.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer func() { _ = logger.Sync() }()
			ctx, cancel := signalContext()
			defer cancel()

			p, err := pipeline.NewPuller(cfg, logger.Get())
			if err != nil {
				return err
			}
			defer p.Close()

			if !pullAll {
				if len(args) != 1 {
					return fmt.Errorf("expected a single year argument (or --all)")
				}
				year, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid year %q", args[0])
				}
				return p.RunSingleYear(ctx, year)
			}

			start, end := cfg.StartYear, cfg.EndYear
			if len(args) == 2 {
				if start, err = strconv.Atoi(args[0]); err != nil {
					return fmt.Errorf("invalid start year %q", args[0])
				}
				if end, err = strconv.Atoi(args[1]); err != nil {
					return fmt.Errorf("invalid end year %q", args[1])
				}
			} else if len(args) != 0 {
				return fmt.Errorf("--all takes zero or two year arguments")
			}
			if start > end {
				return fmt.Errorf("start year %d after end year %d", start, end)
			}
			return p.RunAllYears(ctx, start, end)
		},
	}
	pullCmd.Flags().BoolVar(&pullAll, "all", false, "Pull the full year range")
	root.AddCommand(pullCmd)

	root.AddCommand(&cobra.Command{
		Use:   "aggregate-acs",
		Short: "Aggregate raw ACS files into bucketed columns",
		Long: `Aggregate each raw ACS parquet file into bucketed columns (age ranges,
cost increments, commute times, and so on), write one output file per
year, and validate row counts against the raw inputs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer func() { _ = logger.Sync() }()
			ctx, cancel := signalContext()
			defer cancel()

			a := pipeline.NewAggregator(cfg, logger.Get())
			if _, err := a.ProcessAllYears(ctx); err != nil {
				return err
			}
			if !a.ValidateOutput() {
				return fmt.Errorf("validation failed for one or more years")
			}
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
