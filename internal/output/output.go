// Package output provides result accumulation and export for the harvester.
package output

import (
	"sync"
	"time"
)

// PlaceholderContent marks records whose detail extraction failed. The
// row is still written so the failure is visible downstream; the
// ingestion side skips rows carrying this value.
const PlaceholderContent = "Error extracting text"

// Record is one harvested item, in the shape the downstream ingestion
// pipeline consumes.
type Record struct {
	GroupURL string `json:"group_url"`
	Title    string `json:"title"`
	Date     string `json:"date"`
	Author   string `json:"author"`
	URL      string `json:"url"`
	Content  string `json:"content"`
}

// RunSummary describes a completed harvest for export alongside records.
type RunSummary struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Records     int       `json:"records"`
	Collections int       `json:"collections"`
}

// Writer defines the interface for result exporters.
type Writer interface {
	// WriteRecord writes a single record.
	WriteRecord(record *Record) error

	// Flush flushes any buffered output.
	Flush() error

	// Close closes the writer.
	Close() error
}

// Sink accumulates records for the run in completion order and flushes
// them to a Writer when the run ends.
type Sink struct {
	mu      sync.Mutex
	records []*Record
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{records: make([]*Record, 0)}
}

// Add appends a record.
func (s *Sink) Add(record *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

// Len returns the number of accumulated records.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Records returns the accumulated records in completion order.
func (s *Sink) Records() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Record, len(s.records))
	copy(out, s.records)
	return out
}

// FlushTo writes all accumulated records to a writer and flushes it.
func (s *Sink) FlushTo(w Writer) error {
	for _, record := range s.Records() {
		if err := w.WriteRecord(record); err != nil {
			return err
		}
	}
	return w.Flush()
}
