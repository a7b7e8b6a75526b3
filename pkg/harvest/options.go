package harvest

import (
	"github.com/ForumScholar/GroupHarvest/internal/checkpoint"
	"github.com/ForumScholar/GroupHarvest/internal/extract"
	"github.com/ForumScholar/GroupHarvest/internal/logger"
	"github.com/ForumScholar/GroupHarvest/internal/output"
	"github.com/ForumScholar/GroupHarvest/internal/ratelimit"
	"github.com/ForumScholar/GroupHarvest/internal/traverse"
)

// Option configures a Harvester.
type Option func(*Harvester)

// WithConfig replaces the whole config.
func WithConfig(cfg Config) Option {
	return func(h *Harvester) {
		h.cfg = cfg
	}
}

// WithCollections sets the collections to traverse.
func WithCollections(collections ...string) Option {
	return func(h *Harvester) {
		h.cfg.Collections = collections
	}
}

// WithQuota sets the per-collection item quota.
func WithQuota(quota int) Option {
	return func(h *Harvester) {
		if quota > 0 {
			h.cfg.Quota = quota
		}
	}
}

// WithExtractor sets the extraction backend.
func WithExtractor(e extract.Extractor) Option {
	return func(h *Harvester) {
		h.extractor = e
	}
}

// WithCheckpoint sets the traversal checkpoint.
func WithCheckpoint(cp *checkpoint.Checkpoint) Option {
	return func(h *Harvester) {
		h.checkpoint = cp
	}
}

// WithLimiter replaces the politeness limiter.
func WithLimiter(l *ratelimit.Politeness) Option {
	return func(h *Harvester) {
		h.limiter = l
	}
}

// WithWriter sets the destination records are flushed to after the run.
func WithWriter(w output.Writer) Option {
	return func(h *Harvester) {
		h.writer = w
	}
}

// WithLogger sets the harvester logger.
func WithLogger(log *logger.Logger) Option {
	return func(h *Harvester) {
		if log != nil {
			h.log = log.WithComponent("harvester")
		}
	}
}

// WithPagerOptions forwards options to each collection's pager.
func WithPagerOptions(opts ...traverse.Option) Option {
	return func(h *Harvester) {
		h.pagerOpts = opts
	}
}
