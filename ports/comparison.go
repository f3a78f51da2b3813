package ports

import (
	"taxosurv/domain/cohort"
	"taxosurv/domain/survival"
)

// ResultSink receives comparison records as they are produced.
// Implementations must be safe for concurrent use and append-only.
type ResultSink interface {
	Emit(c survival.Comparison) error
	Close() error
}

// GroupTableWriter persists a cancer's sub-cohort with its derived group columns
type GroupTableWriter interface {
	WriteGroupTable(cancer string, table *cohort.Table) error
}

// CohortSource loads the patient table
type CohortSource interface {
	ReadTable() (*cohort.Table, error)
}
