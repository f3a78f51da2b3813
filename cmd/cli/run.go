package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"taxosurv/adapters/sink"
	"taxosurv/adapters/tabular"
	"taxosurv/app"
	"taxosurv/domain/core"
	"taxosurv/domain/survival"
	"taxosurv/internal/config"
	"taxosurv/internal/errors"
	"taxosurv/internal/logging"
	"taxosurv/ports"

	"github.com/spf13/cobra"
)

type runOptions struct {
	configFile string
	inputData  string
	cancerList string
	taxaList   string
	outputDir  string
	osOutput   string
	pfsOutput  string
	workers    int
	logLevel   string
	reportFile string
	noReport   bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the log-rank comparison for every cancer x taxon pair",
		Long: `Split each cancer cohort by whether a taxon was detected (abundance > 0),
then compare overall survival (OS) and progression-free interval (PFS) between
the two groups with a log-rank test.

Each pair appends one line to the OS and PFS result files:

  <cancer>,<taxon>,OS_p=<p>,Enriched=<Zero|Nonzero|Undetermined>

and <cancer>_group.tsv is written with one <taxon>_group column per taxon.

Settings are read from TAXOSURV_* environment variables (and .env), then the
--config YAML file, then flags.

Example: taxosurv run --input-data cohort.tsv --cancer-list cancers.txt --taxa-list taxa.txt --output-dir out`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runBatch(cmd.Context(), cfg, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.configFile, "config", "", "YAML run file")
	cmd.Flags().StringVar(&opts.inputData, "input-data", "", "Patient table (tab-delimited, .csv or .xlsx)")
	cmd.Flags().StringVar(&opts.cancerList, "cancer-list", "", "File with one cancer label per line")
	cmd.Flags().StringVar(&opts.taxaList, "taxa-list", "", "File with one taxon column name per line")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "Directory for result files (created if missing)")
	cmd.Flags().StringVar(&opts.osOutput, "os-output", config.DefaultOSOutput, "OS result file name inside the output directory")
	cmd.Flags().StringVar(&opts.pfsOutput, "pfs-output", config.DefaultPFSOutput, "PFS result file name inside the output directory")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Parallel taxon workers (default: number of CPUs)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	cmd.Flags().StringVar(&opts.reportFile, "report-file", config.DefaultReportFile, "Run report file name inside the output directory")
	cmd.Flags().BoolVar(&opts.noReport, "no-report", false, "Do not write the run report")

	return cmd
}

// resolveConfig layers environment, config file and explicitly set flags
func resolveConfig(cmd *cobra.Command, opts *runOptions) (*config.Config, error) {
	cfg := config.Load()
	if opts.configFile != "" {
		if err := cfg.ApplyFile(opts.configFile); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	setString := func(name string, dst *string, value string) {
		if flags.Changed(name) {
			*dst = value
		}
	}
	setString("input-data", &cfg.Paths.InputData, opts.inputData)
	setString("cancer-list", &cfg.Paths.CancerList, opts.cancerList)
	setString("taxa-list", &cfg.Paths.TaxaList, opts.taxaList)
	setString("output-dir", &cfg.Paths.OutputDir, opts.outputDir)
	setString("os-output", &cfg.Paths.OSOutput, opts.osOutput)
	setString("pfs-output", &cfg.Paths.PFSOutput, opts.pfsOutput)
	setString("log-level", &cfg.Log.Level, opts.logLevel)
	setString("report-file", &cfg.Report.File, opts.reportFile)
	if flags.Changed("workers") {
		cfg.Run.Workers = opts.workers
	}
	if opts.noReport {
		cfg.Report.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runBatch loads the inputs, validates them against each other and only then
// truncates the result files and runs the comparisons
func runBatch(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	start := time.Now()
	logger := logging.NewWithWriter(logOut, cfg.Log.Level)
	runID := core.NewRunID()

	if err := os.MkdirAll(cfg.Paths.OutputDir, 0o755); err != nil {
		return errors.IOError(cfg.Paths.OutputDir, err)
	}

	var source ports.CohortSource = tabular.NewDataReader(cfg.Paths.InputData, logger)
	table, err := source.ReadTable()
	if err != nil {
		return err
	}
	cancers, err := tabular.ReadList(cfg.Paths.CancerList)
	if err != nil {
		return err
	}
	taxa, err := tabular.ReadList(cfg.Paths.TaxaList)
	if err != nil {
		return err
	}

	req := app.ComparisonRequest{
		Cohort:  table,
		Cancers: cancers,
		Taxa:    taxa,
		Alpha:   cfg.Report.Alpha,
		RunID:   runID,
	}
	if err := app.ValidateRequest(req); err != nil {
		return err
	}

	results, err := sink.NewFileSink(cfg.Paths.OutputDir, cfg.Paths.OSOutput, cfg.Paths.PFSOutput)
	if err != nil {
		return err
	}
	defer results.Close()

	svc := app.NewComparisonService(results, tabular.NewTSVWriter(cfg.Paths.OutputDir), cfg.Run.Workers, logger)
	report, err := svc.Run(ctx, req)
	if err != nil {
		return err
	}
	if err := results.Close(); err != nil {
		return err
	}

	if cfg.Report.Enabled {
		reportPath := filepath.Join(cfg.Paths.OutputDir, cfg.Report.File)
		if err := report.WriteYAML(reportPath); err != nil {
			return err
		}
		logger.Debug("run report written", "path", reportPath)
	}

	paths := results.Paths()
	logger.Info("results written",
		"run_id", runID.String(),
		"os_output", paths[survival.EndpointOS],
		"pfs_output", paths[survival.EndpointPFS],
		"comparisons", report.Comparisons,
		"elapsed_ms", time.Since(start).Milliseconds())
	return nil
}
