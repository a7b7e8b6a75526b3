// Package harvest implements the crawl controller: resumable, polite,
// checkpointed traversal of discussion group collections.
package harvest

import "time"

// CollectionSummary reports the outcome of one collection within a run.
type CollectionSummary struct {
	Collection string `json:"collection"`
	Processed  int    `json:"processed"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	Completed  bool   `json:"completed"`
}

// Result aggregates a whole run.
type Result struct {
	Collections []CollectionSummary `json:"collections"`
	Processed   int                 `json:"processed"`
	Skipped     int                 `json:"skipped"`
	Failed      int                 `json:"failed"`
	Duration    time.Duration       `json:"duration"`
}

func (r *Result) add(s CollectionSummary) {
	r.Collections = append(r.Collections, s)
	r.Processed += s.Processed
	r.Skipped += s.Skipped
	r.Failed += s.Failed
}
