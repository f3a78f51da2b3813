package sink

import (
	"sync"

	"taxosurv/domain/survival"
)

// MemorySink keeps emitted comparisons in memory
type MemorySink struct {
	mu      sync.Mutex
	records []survival.Comparison
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Emit records c
func (s *MemorySink) Emit(c survival.Comparison) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, c)
	return nil
}

// Close is a no-op; records stay readable
func (s *MemorySink) Close() error {
	return nil
}

// Records returns the comparisons emitted so far
func (s *MemorySink) Records() []survival.Comparison {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]survival.Comparison, len(s.records))
	copy(out, s.records)
	return out
}

// Lines returns the rendered lines for one endpoint
func (s *MemorySink) Lines(endpoint survival.Endpoint) []string {
	var lines []string
	for _, c := range s.Records() {
		if c.Endpoint == endpoint {
			lines = append(lines, c.Line())
		}
	}
	return lines
}
