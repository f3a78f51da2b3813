package app

import (
	"bytes"
	"math"
	"os"

	"taxosurv/domain/core"
	domain "taxosurv/domain/survival"
	"taxosurv/internal/errors"

	"github.com/montanaflynn/stats"
	"gopkg.in/yaml.v3"
)

// RunReport summarises a batch run. It carries no timestamps or run ids so
// that identical inputs produce an identical report.
type RunReport struct {
	RunID       core.RunID      `yaml:"-"`
	Alpha       float64         `yaml:"alpha"`
	Comparisons int             `yaml:"comparisons"`
	Endpoints   []EndpointTally `yaml:"endpoints"`
	Cohorts     []CohortSummary `yaml:"cohorts"`

	lines map[domain.Endpoint][]string
}

// EndpointTally counts the outcomes of one endpoint's comparisons
type EndpointTally struct {
	Endpoint     domain.Endpoint `yaml:"endpoint"`
	Comparisons  int             `yaml:"comparisons"`
	Significant  int             `yaml:"significant"`
	UndefinedP   int             `yaml:"undefined_p"`
	Zero         int             `yaml:"enriched_zero"`
	Nonzero      int             `yaml:"enriched_nonzero"`
	Undetermined int             `yaml:"undetermined"`
	Fingerprint  core.Hash       `yaml:"sha256"`
}

// CohortSummary describes one cancer's sub-cohort
type CohortSummary struct {
	Cancer   string          `yaml:"cancer"`
	Patients int             `yaml:"patients"`
	OS       EndpointSummary `yaml:"os"`
	PFS      EndpointSummary `yaml:"pfs"`
}

// EndpointSummary holds follow-up descriptives for one endpoint
type EndpointSummary struct {
	Events         int     `yaml:"events"`
	MedianFollowUp float64 `yaml:"median_follow_up"`
	MaxFollowUp    float64 `yaml:"max_follow_up"`
}

// NewRunReport creates an empty report
func NewRunReport(runID core.RunID, alpha float64) *RunReport {
	r := &RunReport{
		RunID: runID,
		Alpha: alpha,
		lines: make(map[domain.Endpoint][]string, len(domain.Endpoints)),
	}
	for _, endpoint := range domain.Endpoints {
		r.Endpoints = append(r.Endpoints, EndpointTally{Endpoint: endpoint})
	}
	return r
}

// Record counts an emitted comparison
func (r *RunReport) Record(c domain.Comparison) {
	r.Comparisons++
	r.lines[c.Endpoint] = append(r.lines[c.Endpoint], c.Line())

	tally := r.tally(c.Endpoint)
	if tally == nil {
		return
	}
	tally.Comparisons++
	switch {
	case math.IsNaN(c.PValue):
		tally.UndefinedP++
	case c.Significant(r.Alpha):
		tally.Significant++
	}
	switch c.Enriched {
	case domain.GroupZero:
		tally.Zero++
	case domain.GroupNonzero:
		tally.Nonzero++
	default:
		tally.Undetermined++
	}
}

// AddCohort appends a cancer's descriptive summary
func (r *RunReport) AddCohort(summary CohortSummary) {
	r.Cohorts = append(r.Cohorts, summary)
}

// Finish fingerprints each endpoint's result stream
func (r *RunReport) Finish() {
	for i := range r.Endpoints {
		r.Endpoints[i].Fingerprint = core.ComputeStreamHash(r.lines[r.Endpoints[i].Endpoint])
	}
}

// Lines returns the rendered result lines of an endpoint in emission order
func (r *RunReport) Lines(endpoint domain.Endpoint) []string {
	return append([]string(nil), r.lines[endpoint]...)
}

// Tally returns a copy of the endpoint's counters
func (r *RunReport) Tally(endpoint domain.Endpoint) EndpointTally {
	if t := r.tally(endpoint); t != nil {
		return *t
	}
	return EndpointTally{Endpoint: endpoint}
}

func (r *RunReport) tally(endpoint domain.Endpoint) *EndpointTally {
	for i := range r.Endpoints {
		if r.Endpoints[i].Endpoint == endpoint {
			return &r.Endpoints[i]
		}
	}
	return nil
}

// MarshalYAMLBytes renders the report as YAML
func (r *RunReport) MarshalYAMLBytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return nil, errors.Wrap(err, "encode run report")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "encode run report")
	}
	return buf.Bytes(), nil
}

// WriteYAML writes the report to path
func (r *RunReport) WriteYAML(path string) error {
	data, err := r.MarshalYAMLBytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.IOError(path, err)
	}
	return nil
}

// SummarizeCohort computes follow-up descriptives for a cancer's endpoints
func SummarizeCohort(cancer string, obs map[domain.Endpoint][]domain.Observation) CohortSummary {
	return CohortSummary{
		Cancer:   cancer,
		Patients: len(obs[domain.EndpointOS]),
		OS:       summarizeEndpoint(obs[domain.EndpointOS]),
		PFS:      summarizeEndpoint(obs[domain.EndpointPFS]),
	}
}

func summarizeEndpoint(obs []domain.Observation) EndpointSummary {
	summary := EndpointSummary{}
	times := make(stats.Float64Data, len(obs))
	for i, o := range obs {
		times[i] = o.Time
		if o.Event {
			summary.Events++
		}
	}
	if median, err := stats.Median(times); err == nil {
		summary.MedianFollowUp = median
	}
	if longest, err := stats.Max(times); err == nil {
		summary.MaxFollowUp = longest
	}
	return summary
}
