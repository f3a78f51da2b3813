package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taxosurv/adapters/stats/survival"
	"taxosurv/domain/cohort"
	"taxosurv/domain/core"
	domain "taxosurv/domain/survival"
	"taxosurv/internal/errors"
	"taxosurv/ports"

	"golang.org/x/sync/errgroup"
)

// ComparisonService runs the cancer x taxon survival comparisons
type ComparisonService struct {
	sink    ports.ResultSink
	tables  ports.GroupTableWriter
	workers int
	logger  *slog.Logger
}

// ComparisonRequest defines the inputs of one batch run
type ComparisonRequest struct {
	Cohort  *cohort.Table
	Cancers []string
	Taxa    []string
	Alpha   float64 // significance level used only for report counts
	RunID   core.RunID
}

// NewComparisonService creates a comparison service. tables may be nil when
// group tables are not wanted.
func NewComparisonService(sink ports.ResultSink, tables ports.GroupTableWriter, workers int, logger *slog.Logger) *ComparisonService {
	if workers < 1 {
		workers = 1
	}
	return &ComparisonService{
		sink:    sink,
		tables:  tables,
		workers: workers,
		logger:  logger.With("component", "comparison_service"),
	}
}

// cancerCohort is the read-only per-cancer data shared by its taxon workers
type cancerCohort struct {
	name string
	rows []int
	obs  map[domain.Endpoint][]domain.Observation
}

// taxonOutcome is everything one (cancer, taxon) iteration produces
type taxonOutcome struct {
	comparisons []domain.Comparison
	column      cohort.Column
}

// Run validates the request, then compares every taxon within every cancer.
// Records are emitted in cancer-list then taxon-list order regardless of
// worker scheduling.
func (s *ComparisonService) Run(ctx context.Context, req ComparisonRequest) (*RunReport, error) {
	start := time.Now()
	if req.RunID == "" {
		req.RunID = core.NewRunID()
	}
	logger := s.logger.With("run_id", req.RunID.String())

	cohorts, err := prepareCohorts(req)
	if err != nil {
		return nil, err
	}
	logger.Info("starting comparison run",
		"cancers", len(req.Cancers),
		"taxa", len(req.Taxa),
		"workers", s.workers)

	report := NewRunReport(req.RunID, req.Alpha)
	for _, cc := range cohorts {
		outcomes, err := s.compareCancer(ctx, cc, req)
		if err != nil {
			return nil, err
		}

		columns := make([]cohort.Column, 0, len(outcomes))
		for _, outcome := range outcomes {
			for _, c := range outcome.comparisons {
				if err := s.sink.Emit(c); err != nil {
					return nil, errors.Wrapf(err, "emit %s/%s %s", c.Cancer, c.Taxon, c.Endpoint)
				}
				report.Record(c)
			}
			columns = append(columns, outcome.column)
		}

		if s.tables != nil && len(columns) > 0 {
			grouped, err := req.Cohort.Subset(cc.rows).WithColumns(columns...)
			if err != nil {
				return nil, errors.Wrapf(err, "build group table for %s", cc.name)
			}
			if err := s.tables.WriteGroupTable(cc.name, grouped); err != nil {
				return nil, errors.Wrapf(err, "write group table for %s", cc.name)
			}
		}

		summary := SummarizeCohort(cc.name, cc.obs)
		report.AddCohort(summary)
		logger.Info("cancer complete",
			"cancer", cc.name,
			"patients", len(cc.rows),
			"taxa", len(outcomes),
			"median_os_followup", summary.OS.MedianFollowUp,
			"median_pfs_followup", summary.PFS.MedianFollowUp)
	}

	report.Finish()
	logger.Info("comparison run complete",
		"comparisons", report.Comparisons,
		"elapsed_ms", time.Since(start).Milliseconds())
	return report, nil
}

// ValidateRequest runs the up-front checks of Run without computing anything,
// so callers can reject a bad configuration before creating output files.
func ValidateRequest(req ComparisonRequest) error {
	_, err := prepareCohorts(req)
	return err
}

// prepareCohorts checks the schema and lists up front so a bad configuration
// fails before any output is written
func prepareCohorts(req ComparisonRequest) ([]cancerCohort, error) {
	if req.Cohort == nil {
		return nil, errors.ConfigInvalid("no cohort table supplied")
	}
	if missing := req.Cohort.MissingColumns(cohort.RequiredColumns...); len(missing) > 0 {
		return nil, errors.ConfigInvalid(fmt.Sprintf("cohort table is missing required columns: %s", strings.Join(missing, ", ")))
	}
	if missing := req.Cohort.MissingColumns(req.Taxa...); len(missing) > 0 {
		return nil, errors.ConfigInvalid(fmt.Sprintf("taxa not found in cohort columns: %s", strings.Join(missing, ", ")))
	}

	cohorts := make([]cancerCohort, 0, len(req.Cancers))
	for _, cancer := range req.Cancers {
		rows := req.Cohort.Select(cancer)
		if len(rows) == 0 {
			return nil, errors.ConfigInvalid(fmt.Sprintf("cancer %q matches no rows in cohort table", cancer))
		}

		cc := cancerCohort{name: cancer, rows: rows, obs: make(map[domain.Endpoint][]domain.Observation, 2)}
		for _, endpoint := range domain.Endpoints {
			obs, err := req.Cohort.Observations(endpoint, rows)
			if err != nil {
				return nil, errors.Wrapf(err, "cancer %s %s", cancer, endpoint)
			}
			cc.obs[endpoint] = obs
		}
		for _, taxon := range req.Taxa {
			if _, err := req.Cohort.Floats(taxon, rows); err != nil {
				return nil, errors.Wrapf(err, "cancer %s taxon %s", cancer, taxon)
			}
		}
		cohorts = append(cohorts, cc)
	}
	return cohorts, nil
}

// compareCancer fans the taxa of one cancer out over the worker pool
func (s *ComparisonService) compareCancer(ctx context.Context, cc cancerCohort, req ComparisonRequest) ([]taxonOutcome, error) {
	outcomes := make([]taxonOutcome, len(req.Taxa))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, taxon := range req.Taxa {
		i, taxon := i, taxon
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			abundance, err := req.Cohort.Floats(taxon, cc.rows)
			if err != nil {
				return errors.Wrapf(err, "cancer %s taxon %s", cc.name, taxon)
			}
			outcomes[i] = s.compareTaxon(cc, taxon, abundance)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// compareTaxon partitions the cancer cohort by taxon presence and tests
// both endpoints
func (s *ComparisonService) compareTaxon(cc cancerCohort, taxon string, abundance []float64) taxonOutcome {
	labels := make([]string, len(abundance))
	groups := make([]domain.Group, len(abundance))
	for i, a := range abundance {
		groups[i] = domain.GroupFor(a)
		labels[i] = string(groups[i])
	}
	outcome := taxonOutcome{}
	outcome.column = cohort.Column{Name: cohort.GroupColumn(taxon), Values: labels}

	for _, endpoint := range domain.Endpoints {
		zero, nonzero := partition(cc.obs[endpoint], groups)

		enriched := domain.GroupUndetermined
		if len(zero) > 0 && len(nonzero) > 0 {
			enriched = domain.Enrich(medianOf(zero), medianOf(nonzero))
		}

		test := survival.LogRank(nonzero, zero)
		s.logger.Debug("taxon compared",
			"cancer", cc.name,
			"taxon", taxon,
			"endpoint", string(endpoint),
			"zero", len(zero),
			"nonzero", len(nonzero),
			"statistic", test.Statistic,
			"p_value", test.PValue,
			"enriched", string(enriched))

		outcome.comparisons = append(outcome.comparisons, domain.Comparison{
			Cancer:   cc.name,
			Taxon:    taxon,
			Endpoint: endpoint,
			PValue:   test.PValue,
			Enriched: enriched,
		})
	}
	return outcome
}

func partition(obs []domain.Observation, groups []domain.Group) (zero, nonzero []domain.Observation) {
	for i, o := range obs {
		if groups[i] == domain.GroupNonzero {
			nonzero = append(nonzero, o)
		} else {
			zero = append(zero, o)
		}
	}
	return zero, nonzero
}

// medianOf fits a curve to a non-empty group and returns its median
func medianOf(obs []domain.Observation) domain.Median {
	curve, err := survival.FitKaplanMeier(obs)
	if err != nil {
		return domain.NotReached
	}
	return curve.Median()
}
