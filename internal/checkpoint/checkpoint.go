// Package checkpoint provides durable crawl progress tracking.
//
// The checkpoint records, per collection, the last visited listing
// position and a completion flag, plus the global set of item identities
// ever processed. Every mutating call persists the full state before
// returning, so after a crash at most the in-flight item is re-attempted.
package checkpoint

import (
	"sync"

	"github.com/ForumScholar/GroupHarvest/internal/dedup"
	herrors "github.com/ForumScholar/GroupHarvest/internal/errors"
	"github.com/ForumScholar/GroupHarvest/internal/logger"
)

// NoPosition is returned for collections with no recorded progress.
const NoPosition = -1

// Checkpoint owns the in-memory state and its persistence boundary.
type Checkpoint struct {
	mu    sync.Mutex
	store Store
	state *State
	seen  *dedup.Set
	log   *logger.Logger
}

// Option configures a Checkpoint.
type Option func(*Checkpoint)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Checkpoint) {
		c.log = l
	}
}

// WithEstimatedItems sizes the seen-set's bloom filter.
func WithEstimatedItems(n int) Option {
	return func(c *Checkpoint) {
		c.seen = dedup.NewSet(n)
	}
}

// Open loads persisted state from the store. An absent checkpoint starts
// empty. A corrupt one is logged and replaced with an empty default:
// corruption loses resumption precision but never blocks a run.
func Open(store Store, opts ...Option) (*Checkpoint, error) {
	c := &Checkpoint{
		store: store,
		log:   logger.Global().WithComponent("checkpoint"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.seen == nil {
		c.seen = dedup.NewSet(10000)
	}

	state, err := store.Load()
	if err != nil {
		malformed := herrors.NewMalformedStateError("checkpoint", err)
		c.log.WithError(malformed).Warn("Checkpoint unreadable, starting from empty state")
		state = nil
	}
	if state == nil {
		state = NewState()
	}
	state.normalize()
	c.state = state

	for _, id := range state.ScrapedURLs {
		c.seen.Add(id)
	}

	c.log.Event(logger.DebugLevel).
		Int("groups", len(state.Groups)).
		Int("seen", c.seen.Count()).
		Msg("Checkpoint loaded")

	return c, nil
}

// LastPosition returns the stored 0-based position for a collection,
// or NoPosition when nothing has been processed yet. Resumption skips
// every candidate whose position is at or below this value.
func (c *Checkpoint) LastPosition(collection string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if g, ok := c.state.Groups[collection]; ok {
		return g.LastThreadIndex
	}
	return NoPosition
}

// UpdatePosition raises the stored position and persists immediately.
// Positions are monotonic: a lower value than the stored one is ignored.
func (c *Checkpoint) UpdatePosition(collection string, position int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := c.group(collection)
	if position <= g.LastThreadIndex {
		return nil
	}
	g.LastThreadIndex = position
	return c.persist()
}

// IsCompleted reports whether a collection's pagination was exhausted in
// a previous run.
func (c *Checkpoint) IsCompleted(collection string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if g, ok := c.state.Groups[collection]; ok {
		return g.Completed
	}
	return false
}

// MarkCompleted sets the one-way completion flag and persists.
func (c *Checkpoint) MarkCompleted(collection string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	g := c.group(collection)
	if g.Completed {
		return nil
	}
	g.Completed = true
	return c.persist()
}

// IsSeen reports whether an item identity was already processed.
func (c *Checkpoint) IsSeen(identity string) bool {
	return c.seen.Has(identity)
}

// MarkSeen records an identity and persists. Marking the same identity
// twice is a no-op and skips the write.
func (c *Checkpoint) MarkSeen(identity string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.seen.Add(identity) {
		return nil
	}
	c.state.ScrapedURLs = append(c.state.ScrapedURLs, identity)
	return c.persist()
}

// SeenCount returns the number of distinct identities ever marked.
func (c *Checkpoint) SeenCount() int {
	return c.seen.Count()
}

// Groups returns a copy of the per-collection progress map.
func (c *Checkpoint) Groups() map[string]GroupProgress {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]GroupProgress, len(c.state.Groups))
	for k, v := range c.state.Groups {
		out[k] = *v
	}
	return out
}

// Save persists the full current state.
func (c *Checkpoint) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persist()
}

// Close releases the underlying store.
func (c *Checkpoint) Close() error {
	return c.store.Close()
}

// group returns the progress record for a collection, creating it on
// first touch. Caller holds the lock.
func (c *Checkpoint) group(collection string) *GroupProgress {
	g, ok := c.state.Groups[collection]
	if !ok {
		g = &GroupProgress{LastThreadIndex: NoPosition}
		c.state.Groups[collection] = g
	}
	return g
}

// persist writes the full state. A failed write is fatal for the run;
// the state the next run reloads comes from the last successful persist.
// Caller holds the lock.
func (c *Checkpoint) persist() error {
	if err := c.store.Save(c.state); err != nil {
		return herrors.NewPersistenceError("checkpoint", "save", err)
	}
	return nil
}
