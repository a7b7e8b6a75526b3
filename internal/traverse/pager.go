// Package traverse turns the page-oriented extractor contract into a
// forward-only stream of listing candidates. The pager hides lazy-load
// growth and next-page clicks from the crawl controller, which only ever
// asks for the next batch of unseen rows.
package traverse

import (
	"context"

	"github.com/ForumScholar/GroupHarvest/internal/errors"
	"github.com/ForumScholar/GroupHarvest/internal/extract"
	"github.com/ForumScholar/GroupHarvest/internal/logger"
)

const (
	defaultMaxScrolls = 20
	defaultMaxStalls  = 2
)

// Pager yields listing candidates for one collection in traversal order.
// Listings that lazy-load re-render earlier rows on every growth, so the
// pager tracks how many rows of the current page it has already yielded
// and returns only the tail.
type Pager struct {
	extractor  extract.Extractor
	collection string
	yielded    int
	exhausted  bool
	maxScrolls int
	maxStalls  int
	log        *logger.Logger
}

// Option configures a Pager.
type Option func(*Pager)

// WithMaxScrolls bounds the number of lazy-load attempts per page.
func WithMaxScrolls(n int) Option {
	return func(p *Pager) {
		if n > 0 {
			p.maxScrolls = n
		}
	}
}

// WithMaxStalls sets how many consecutive no-growth loads end the
// lazy-load phase of a page.
func WithMaxStalls(n int) Option {
	return func(p *Pager) {
		if n > 0 {
			p.maxStalls = n
		}
	}
}

// WithLogger sets the pager logger.
func WithLogger(log *logger.Logger) Option {
	return func(p *Pager) {
		if log != nil {
			p.log = log.WithComponent("traverse")
		}
	}
}

// NewPager creates a pager over one collection.
func NewPager(extractor extract.Extractor, collection string, opts ...Option) *Pager {
	p := &Pager{
		extractor:  extractor,
		collection: collection,
		maxScrolls: defaultMaxScrolls,
		maxStalls:  defaultMaxStalls,
		log:        logger.NewDefault().WithComponent("traverse"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Next returns the next batch of candidates not yet yielded. It grows
// the current page through lazy loading first, then advances to the
// next page when the current one has been fully yielded. Returns
// errors.ErrExhausted once no further candidates exist.
func (p *Pager) Next(ctx context.Context) ([]extract.Candidate, error) {
	if p.exhausted {
		return nil, errors.ErrExhausted
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelledError(p.collection, "paginate")
		}

		candidates, err := p.extractor.ListCandidates(ctx, p.collection)
		if err != nil {
			return nil, err
		}

		if len(candidates) > p.yielded {
			batch := candidates[p.yielded:]
			p.yielded = len(candidates)
			return batch, nil
		}

		if grown, err := p.fill(ctx, len(candidates)); err != nil {
			return nil, err
		} else if grown {
			continue
		}

		advanced, err := p.extractor.AdvancePage(ctx, p.collection)
		if err != nil {
			return nil, err
		}
		if !advanced {
			p.exhausted = true
			p.log.Event(logger.DebugLevel).Str("collection", p.collection).Msg("Pagination exhausted")
			return nil, errors.ErrExhausted
		}
		p.yielded = 0
	}
}

// fill runs the lazy-load loop until the row count grows, stalls out,
// or the extractor does not support incremental loading.
func (p *Pager) fill(ctx context.Context, have int) (bool, error) {
	loader, ok := p.extractor.(extract.IncrementalLoader)
	if !ok {
		return false, nil
	}

	stalls := 0
	for i := 0; i < p.maxScrolls; i++ {
		if err := ctx.Err(); err != nil {
			return false, errors.NewCancelledError(p.collection, "lazy load")
		}

		count, err := loader.LoadMore(ctx, p.collection)
		if err != nil {
			return false, err
		}
		if count > have {
			return true, nil
		}
		stalls++
		if stalls >= p.maxStalls {
			return false, nil
		}
	}
	return false, nil
}
