package survival

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"taxosurv/internal/errors"
)

// Observation is one patient's follow-up on an endpoint.
// Event is false when the patient was right-censored at Time.
type Observation struct {
	Time  float64
	Event bool
}

// Group labels one side of a taxon partition
type Group string

const (
	GroupZero         Group = "Zero"
	GroupNonzero      Group = "Nonzero"
	GroupUndetermined Group = "Undetermined"
)

// GroupFor assigns a patient to a partition by taxon abundance
func GroupFor(abundance float64) Group {
	if abundance > 0 {
		return GroupNonzero
	}
	return GroupZero
}

// Endpoint is a time-to-event outcome analysed per taxon
type Endpoint string

const (
	EndpointOS  Endpoint = "OS"
	EndpointPFS Endpoint = "PFS"
)

// Endpoints lists the endpoints in output order
var Endpoints = []Endpoint{EndpointOS, EndpointPFS}

// ParseEndpoint accepts OS or PFS in any case
func ParseEndpoint(value string) (Endpoint, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(EndpointOS):
		return EndpointOS, nil
	case string(EndpointPFS), "PFI":
		return EndpointPFS, nil
	}
	return "", errors.InvalidInput(fmt.Sprintf("unknown endpoint %q (want OS or PFS)", value))
}

// TimeColumn returns the cohort column holding follow-up durations
func (e Endpoint) TimeColumn() string {
	switch e {
	case EndpointPFS:
		return "PFI_time"
	default:
		return "OS_time"
	}
}

// EventColumn returns the cohort column holding the event indicator
func (e Endpoint) EventColumn() string {
	switch e {
	case EndpointPFS:
		return "PFI"
	default:
		return "OS"
	}
}

// PValueLabel is the key used for the p-value in result lines
func (e Endpoint) PValueLabel() string {
	return string(e) + "_p"
}

// Median is a median survival time that may not have been reached
type Median struct {
	Time    float64
	Reached bool
}

// NotReached is the median of a curve that never falls to 0.5
var NotReached = Median{Time: math.NaN()}

// ReachedAt builds a defined median
func ReachedAt(t float64) Median {
	return Median{Time: t, Reached: true}
}

func (m Median) String() string {
	if !m.Reached {
		return "not reached"
	}
	return FormatFloat(m.Time)
}

// rank orders medians for enrichment; a median that was never reached means
// more than half the group outlived follow-up, so it ranks above any reached one.
func (m Median) rank() float64 {
	if !m.Reached {
		return math.Inf(1)
	}
	return m.Time
}

// Enrich picks the group with the longer median survival.
// Both medians reached: strictly larger wins, ties go to Zero.
// One reached: the unreached group wins.
// Neither reached: Undetermined.
func Enrich(zero, nonzero Median) Group {
	if !zero.Reached && !nonzero.Reached {
		return GroupUndetermined
	}
	if nonzero.rank() > zero.rank() {
		return GroupNonzero
	}
	return GroupZero
}

// Comparison is the result of one (cancer, taxon, endpoint) test
type Comparison struct {
	Cancer   string
	Taxon    string
	Endpoint Endpoint
	PValue   float64
	Enriched Group
}

// Line renders the comparison as an output line without the newline,
// e.g. "BRCA,g__Fusobacterium,OS_p=0.0123,Enriched=Nonzero".
func (c Comparison) Line() string {
	return fmt.Sprintf("%s,%s,%s=%s,Enriched=%s",
		c.Cancer, c.Taxon, c.Endpoint.PValueLabel(), FormatFloat(c.PValue), c.Enriched)
}

// Significant reports whether the p-value is defined and below alpha
func (c Comparison) Significant(alpha float64) bool {
	return !math.IsNaN(c.PValue) && c.PValue < alpha
}

// FormatFloat renders v as the shortest round-trip decimal, always showing a
// fractional part for integral values ("1.0") and "nan"/"inf" for non-finite ones.
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
