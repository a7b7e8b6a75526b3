// Package extract provides the extraction collaborator consumed by the
// crawl controller: listing candidate items on the current page state,
// advancing pagination, and fetching detail content per item.
package extract

import "context"

// Candidate is an item summary visible in a collection listing.
type Candidate struct {
	URL    string
	Title  string
	Date   string
	Author string
}

// Extractor is the contract between the crawl engine and whatever
// mechanism renders and reads the remote collection. Implementations may
// internally retry alternate lookup strategies; the engine only sees the
// three operations below.
type Extractor interface {
	// ListCandidates returns the item summaries visible on the current
	// page state of the collection, in listing order.
	ListCandidates(ctx context.Context, collection string) ([]Candidate, error)

	// AdvancePage attempts to move the collection to its next page.
	// Returns false when no further page exists.
	AdvancePage(ctx context.Context, collection string) (bool, error)

	// FetchDetail returns the extracted textual content for one item.
	// Failures are categorized as timeout or extraction errors.
	FetchDetail(ctx context.Context, itemURL string) (string, error)
}

// IncrementalLoader is implemented by extractors whose listings lazy-load
// additional rows within the current page (infinite scroll). LoadMore
// triggers one load attempt and reports the number of rows now visible.
type IncrementalLoader interface {
	LoadMore(ctx context.Context, collection string) (int, error)
}
