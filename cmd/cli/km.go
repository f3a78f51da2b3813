package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"taxosurv/adapters/stats/survival"
	"taxosurv/adapters/tabular"
	domain "taxosurv/domain/survival"
	"taxosurv/internal/errors"
	"taxosurv/internal/logging"

	"github.com/spf13/cobra"
)

type kmOptions struct {
	inputData string
	cancer    string
	taxon     string
	group     string
	endpoint  string
	logLevel  string
}

func newKMCmd() *cobra.Command {
	opts := &kmOptions{}

	cmd := &cobra.Command{
		Use:   "km",
		Short: "Print the Kaplan-Meier event table for one cancer cohort",
		Long: `Fit a Kaplan-Meier curve to one cancer's patients on one endpoint and
print the event table, median and quartile survival times. With --taxon and
--group the fit is restricted to that side of the taxon partition.

Example: taxosurv km --input-data cohort.tsv --cancer BRCA --taxon g__Fusobacterium --group Nonzero --endpoint OS`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKM(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.inputData, "input-data", "", "Patient table (tab-delimited, .csv or .xlsx)")
	cmd.Flags().StringVar(&opts.cancer, "cancer", "", "Cancer label to select")
	cmd.Flags().StringVar(&opts.taxon, "taxon", "", "Taxon column used to split the cohort")
	cmd.Flags().StringVar(&opts.group, "group", "", "Partition to fit with --taxon: Zero|Nonzero")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "OS", "Endpoint: OS|PFS")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug|info|warn|error")
	_ = cmd.MarkFlagRequired("input-data")
	_ = cmd.MarkFlagRequired("cancer")

	return cmd
}

func runKM(opts *kmOptions, out, logOut io.Writer) error {
	endpoint, err := domain.ParseEndpoint(opts.endpoint)
	if err != nil {
		return err
	}
	if (opts.taxon == "") != (opts.group == "") {
		return errors.ConfigInvalid("--taxon and --group must be given together")
	}

	logger := logging.NewWithWriter(logOut, opts.logLevel)
	table, err := tabular.NewDataReader(opts.inputData, logger).ReadTable()
	if err != nil {
		return err
	}

	rows := table.Select(opts.cancer)
	if len(rows) == 0 {
		return errors.ConfigInvalid(fmt.Sprintf("cancer %q matches no rows in cohort table", opts.cancer))
	}
	obs, err := table.Observations(endpoint, rows)
	if err != nil {
		return err
	}

	label := opts.cancer
	if opts.taxon != "" {
		group := domain.Group(opts.group)
		if group != domain.GroupZero && group != domain.GroupNonzero {
			return errors.ConfigInvalid(fmt.Sprintf("unknown group %q (want Zero or Nonzero)", opts.group))
		}
		abundance, err := table.Floats(opts.taxon, rows)
		if err != nil {
			return err
		}
		var kept []domain.Observation
		for i, o := range obs {
			if domain.GroupFor(abundance[i]) == group {
				kept = append(kept, o)
			}
		}
		obs = kept
		label = fmt.Sprintf("%s %s=%s", opts.cancer, opts.taxon, group)
	}

	curve, err := survival.FitKaplanMeier(obs)
	if err != nil {
		return errors.WithCode(errors.CodeInvalidInput, errors.Wrapf(err, "%s %s", label, endpoint))
	}

	fmt.Fprintf(out, "%s %s: n=%d events=%d\n", label, endpoint, curve.Size(), curve.Events())
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "time\tat_risk\tevents\tcensored\tsurvival")
	for _, s := range curve.Steps() {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.4f\n", domain.FormatFloat(s.Time), s.AtRisk, s.Events, s.Censored, s.Survival)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "median: %s\n", curve.Median())
	fmt.Fprintf(out, "quartiles: 25%%=%s 75%%=%s\n", curve.Quantile(0.75), curve.Quantile(0.25))
	fmt.Fprintf(out, "final survival: %.4f\n", curve.Final())
	return nil
}
