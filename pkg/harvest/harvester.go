package harvest

import (
	"context"
	goerrors "errors"
	"fmt"
	"time"

	"github.com/ForumScholar/GroupHarvest/internal/checkpoint"
	"github.com/ForumScholar/GroupHarvest/internal/dedup"
	"github.com/ForumScholar/GroupHarvest/internal/errors"
	"github.com/ForumScholar/GroupHarvest/internal/extract"
	"github.com/ForumScholar/GroupHarvest/internal/logger"
	"github.com/ForumScholar/GroupHarvest/internal/output"
	"github.com/ForumScholar/GroupHarvest/internal/ratelimit"
	"github.com/ForumScholar/GroupHarvest/internal/traverse"
)

// Harvester walks configured collections sequentially, checkpointing
// every step so an interrupted run resumes where it stopped.
type Harvester struct {
	cfg        Config
	extractor  extract.Extractor
	checkpoint *checkpoint.Checkpoint
	limiter    *ratelimit.Politeness
	sink       *output.Sink
	writer     output.Writer
	log        *logger.Logger
	pagerOpts  []traverse.Option
}

// New creates a harvester. An extractor and a checkpoint are required.
func New(opts ...Option) (*Harvester, error) {
	h := &Harvester{
		cfg:  DefaultConfig(),
		sink: output.NewSink(),
		log:  logger.NewDefault().WithComponent("harvester"),
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.extractor == nil {
		return nil, goerrors.New("harvest: extractor is required")
	}
	if h.checkpoint == nil {
		return nil, goerrors.New("harvest: checkpoint is required")
	}
	if err := h.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("harvest: %w", err)
	}
	if h.limiter == nil {
		h.limiter = ratelimit.New(h.cfg.MinDelay, h.cfg.MaxDelay, h.cfg.Settle)
	}
	return h, nil
}

// Sink exposes the records collected so far.
func (h *Harvester) Sink() *output.Sink {
	return h.sink
}

// Run traverses every configured collection in order. Item-scoped
// failures are absorbed into the summary; any traversal, persistence,
// or cancellation error aborts the whole run. The synchronous
// checkpoint makes the abort safe: the next run resumes from the last
// persisted position. Collected records are flushed to the configured
// writer before returning, including on error.
func (h *Harvester) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	var runErr error
	for _, collection := range h.cfg.Collections {
		summary, err := h.runCollection(ctx, collection)
		result.add(summary)

		if err != nil {
			h.log.ErrorEvent(err, collection, "collection traversal")
			runErr = err
			break
		}
	}

	if h.writer != nil {
		if err := h.sink.FlushTo(h.writer); err != nil && runErr == nil {
			runErr = errors.NewPersistenceError(h.cfg.OutputPath, "flush records", err)
		}
	}

	result.Duration = time.Since(start)
	h.log.Event(logger.InfoLevel).
		Int("processed", result.Processed).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("Run finished")

	return result, runErr
}

// runCollection processes one collection up to the quota.
func (h *Harvester) runCollection(ctx context.Context, collection string) (CollectionSummary, error) {
	summary := CollectionSummary{Collection: collection}

	if h.checkpoint.IsCompleted(collection) {
		summary.Completed = true
		h.log.Event(logger.InfoLevel).Str("collection", collection).Msg("Collection already completed, skipping")
		return summary, nil
	}

	lastPos := h.checkpoint.LastPosition(collection)
	h.log.Event(logger.InfoLevel).
		Str("collection", collection).
		Int("resume_after", lastPos).
		Msg("Starting collection")

	pager := traverse.NewPager(h.extractor, collection, h.pagerOpts...)

	pos := checkpoint.NoPosition
	for {
		batch, err := pager.Next(ctx)
		if goerrors.Is(err, errors.ErrExhausted) {
			if err := h.checkpoint.MarkCompleted(collection); err != nil {
				return summary, err
			}
			summary.Completed = true
			h.log.Event(logger.InfoLevel).Str("collection", collection).Msg("Collection completed")
			return summary, nil
		}
		if err != nil {
			return summary, err
		}

		for _, candidate := range batch {
			pos++
			if pos <= lastPos {
				summary.Skipped++
				continue
			}

			done, err := h.processItem(ctx, collection, candidate, pos, &summary)
			if err != nil {
				return summary, err
			}
			if done {
				h.log.Event(logger.InfoLevel).
					Str("collection", collection).
					Int("processed", summary.Processed).
					Msg("Quota reached")
				return summary, nil
			}
		}
	}
}

// processItem visits one candidate. Returns done=true once the quota is
// met. The checkpoint ordering matters: the record is buffered, the
// identity marked, and the position advanced before the polite pause,
// so an interrupt during the pause loses nothing. Every visited item
// produces a row; payload-level dedup belongs to the ingestion side.
func (h *Harvester) processItem(ctx context.Context, collection string, candidate extract.Candidate, pos int, summary *CollectionSummary) (bool, error) {
	identity := dedup.CanonicalURL(candidate.URL)

	if h.checkpoint.IsSeen(identity) {
		summary.Skipped++
		if err := h.checkpoint.UpdatePosition(collection, pos); err != nil {
			return false, err
		}
		return false, nil
	}

	content, fetchErr := h.extractor.FetchDetail(ctx, candidate.URL)
	if fetchErr != nil {
		if errors.IsFatal(fetchErr) {
			return false, fetchErr
		}
		content = output.PlaceholderContent
		summary.Failed++
		h.log.ErrorEvent(fetchErr, candidate.URL, "detail fetch")
	}

	h.sink.Add(&output.Record{
		GroupURL: collection,
		Title:    candidate.Title,
		Date:     candidate.Date,
		Author:   candidate.Author,
		URL:      candidate.URL,
		Content:  content,
	})

	if err := h.checkpoint.MarkSeen(identity); err != nil {
		return false, err
	}
	if err := h.checkpoint.UpdatePosition(collection, pos); err != nil {
		return false, err
	}

	summary.Processed++
	h.log.ItemEvent(logger.DebugLevel, collection, candidate.URL, pos).Msg("Item processed")

	if summary.Processed >= h.cfg.Quota {
		return true, nil
	}

	if err := h.limiter.Pause(ctx); err != nil {
		return false, errors.NewCancelledError(candidate.URL, "polite pause")
	}
	return false, nil
}
