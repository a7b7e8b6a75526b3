package harvest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ForumScholar/GroupHarvest/internal/checkpoint"
	"github.com/ForumScholar/GroupHarvest/internal/errors"
	"github.com/ForumScholar/GroupHarvest/internal/extract"
	"github.com/ForumScholar/GroupHarvest/internal/output"
	"github.com/ForumScholar/GroupHarvest/internal/ratelimit"
)

// stubExtractor serves a fixed single-page listing per collection.
// Detail content comes from the contents map; URLs listed in failures
// fail their detail fetch.
type stubExtractor struct {
	listings   map[string][]extract.Candidate
	contents   map[string]string
	failures   map[string]bool
	fetchCalls int
	listCalls  int
}

func (s *stubExtractor) ListCandidates(_ context.Context, collection string) ([]extract.Candidate, error) {
	s.listCalls++
	return s.listings[collection], nil
}

func (s *stubExtractor) AdvancePage(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (s *stubExtractor) FetchDetail(_ context.Context, itemURL string) (string, error) {
	s.fetchCalls++
	if s.failures[itemURL] {
		return "", errors.NewExtractionError(itemURL, "extract item text", nil)
	}
	if content, ok := s.contents[itemURL]; ok {
		return content, nil
	}
	return "content of " + itemURL, nil
}

func listing(collection string, n int) []extract.Candidate {
	out := make([]extract.Candidate, n)
	for i := range out {
		out[i] = extract.Candidate{
			URL:   fmt.Sprintf("%s/c/item%d", collection, i),
			Title: fmt.Sprintf("Thread %d", i),
		}
	}
	return out
}

func fastLimiter() *ratelimit.Politeness {
	return ratelimit.New(time.Millisecond, time.Millisecond, 0)
}

func newTestHarvester(t *testing.T, stub *stubExtractor, cp *checkpoint.Checkpoint, collections []string, quota int) *Harvester {
	t.Helper()
	h, err := New(
		WithExtractor(stub),
		WithCheckpoint(cp),
		WithCollections(collections...),
		WithQuota(quota),
		WithLimiter(fastLimiter()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return h
}

func openCheckpoint(t *testing.T, store checkpoint.Store) *checkpoint.Checkpoint {
	t.Helper()
	cp, err := checkpoint.Open(store)
	if err != nil {
		t.Fatalf("checkpoint.Open() error = %v", err)
	}
	return cp
}

// ============================================================================
// Traversal Tests
// ============================================================================

func TestRunFreshCollection(t *testing.T) {
	coll := "https://groups.example.com/g/golang-nuts"
	stub := &stubExtractor{listings: map[string][]extract.Candidate{coll: listing(coll, 3)}}
	cp := openCheckpoint(t, checkpoint.NewMemoryStore())

	h := newTestHarvester(t, stub, cp, []string{coll}, 10)
	result, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Processed != 3 {
		t.Errorf("Processed = %d, want 3", result.Processed)
	}
	if !result.Collections[0].Completed {
		t.Error("collection should be marked completed after natural exhaustion")
	}
	if !cp.IsCompleted(coll) {
		t.Error("checkpoint should record completion")
	}
	if cp.LastPosition(coll) != 2 {
		t.Errorf("LastPosition = %d, want 2", cp.LastPosition(coll))
	}
	if cp.SeenCount() != 3 {
		t.Errorf("SeenCount = %d, want 3", cp.SeenCount())
	}
	if h.Sink().Len() != 3 {
		t.Errorf("sink holds %d records, want 3", h.Sink().Len())
	}
}

func TestRunResumesAfterLastPosition(t *testing.T) {
	coll := "https://groups.example.com/g/golang-nuts"
	items := listing(coll, 10)
	stub := &stubExtractor{listings: map[string][]extract.Candidate{coll: items}}

	store := checkpoint.NewMemoryStore()
	cp := openCheckpoint(t, store)
	for i := 0; i <= 5; i++ {
		if err := cp.MarkSeen(items[i].URL); err != nil {
			t.Fatal(err)
		}
	}
	if err := cp.UpdatePosition(coll, 5); err != nil {
		t.Fatal(err)
	}

	h := newTestHarvester(t, stub, cp, []string{coll}, 100)
	result, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Processed != 4 {
		t.Errorf("Processed = %d, want 4 (items 6..9)", result.Processed)
	}
	if result.Skipped != 6 {
		t.Errorf("Skipped = %d, want 6 (items 0..5)", result.Skipped)
	}
	if stub.fetchCalls != 4 {
		t.Errorf("fetchCalls = %d, want 4; items before the resume point must not be refetched", stub.fetchCalls)
	}
	for _, rec := range h.Sink().Records() {
		if rec.URL == items[0].URL || rec.URL == items[5].URL {
			t.Errorf("already-harvested item refetched: %s", rec.URL)
		}
	}
}

func TestRunSkipsSeenIdentityOnReorderedListing(t *testing.T) {
	coll := "https://groups.example.com/g/golang-nuts"
	items := listing(coll, 4)
	// Listing order shifted between runs: previously harvested items
	// now appear later than the stored position.
	shifted := []extract.Candidate{items[2], items[3], items[0], items[1]}
	stub := &stubExtractor{listings: map[string][]extract.Candidate{coll: shifted}}

	cp := openCheckpoint(t, checkpoint.NewMemoryStore())
	if err := cp.MarkSeen(items[0].URL); err != nil {
		t.Fatal(err)
	}
	if err := cp.MarkSeen(items[1].URL); err != nil {
		t.Fatal(err)
	}

	h := newTestHarvester(t, stub, cp, []string{coll}, 100)
	result, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Processed != 2 {
		t.Errorf("Processed = %d, want 2", result.Processed)
	}
	if result.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", result.Skipped)
	}
	if stub.fetchCalls != 2 {
		t.Errorf("fetchCalls = %d, want 2; seen identities must not be refetched", stub.fetchCalls)
	}
}

func TestRunQuotaStopLeavesCompletionUnset(t *testing.T) {
	coll := "https://groups.example.com/g/golang-nuts"
	stub := &stubExtractor{listings: map[string][]extract.Candidate{coll: listing(coll, 5)}}
	store := checkpoint.NewMemoryStore()
	cp := openCheckpoint(t, store)

	h := newTestHarvester(t, stub, cp, []string{coll}, 2)
	result, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Processed != 2 {
		t.Errorf("Processed = %d, want 2", result.Processed)
	}
	if result.Collections[0].Completed {
		t.Error("quota stop must not mark the collection completed")
	}
	if cp.IsCompleted(coll) {
		t.Error("checkpoint must not record completion on quota stop")
	}

	// A second run picks up where the first stopped.
	stub2 := &stubExtractor{listings: stub.listings}
	cp2 := openCheckpoint(t, store)
	h2 := newTestHarvester(t, stub2, cp2, []string{coll}, 100)
	result2, err := h2.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if result2.Processed != 3 {
		t.Errorf("second run Processed = %d, want 3", result2.Processed)
	}
	if !cp2.IsCompleted(coll) {
		t.Error("second run should complete the collection")
	}
}

func TestRunSkipsCompletedCollection(t *testing.T) {
	coll := "https://groups.example.com/g/golang-nuts"
	stub := &stubExtractor{listings: map[string][]extract.Candidate{coll: listing(coll, 3)}}
	cp := openCheckpoint(t, checkpoint.NewMemoryStore())
	if err := cp.MarkCompleted(coll); err != nil {
		t.Fatal(err)
	}

	h := newTestHarvester(t, stub, cp, []string{coll}, 10)
	result, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if stub.listCalls != 0 || stub.fetchCalls != 0 {
		t.Errorf("completed collection touched the extractor: %d list, %d fetch calls", stub.listCalls, stub.fetchCalls)
	}
	if !result.Collections[0].Completed {
		t.Error("summary should report the collection as completed")
	}
}

// ============================================================================
// Failure Handling Tests
// ============================================================================

func TestRunFetchFailureWritesPlaceholder(t *testing.T) {
	coll := "https://groups.example.com/g/golang-nuts"
	items := listing(coll, 3)
	stub := &stubExtractor{
		listings: map[string][]extract.Candidate{coll: items},
		failures: map[string]bool{items[1].URL: true},
	}
	cp := openCheckpoint(t, checkpoint.NewMemoryStore())

	h := newTestHarvester(t, stub, cp, []string{coll}, 10)
	result, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Failed != 1 {
		t.Errorf("Failed = %d, want 1", result.Failed)
	}
	if result.Processed != 3 {
		t.Errorf("Processed = %d, want 3; a failed fetch still advances traversal", result.Processed)
	}

	var found bool
	for _, rec := range h.Sink().Records() {
		if rec.URL == items[1].URL {
			found = true
			if rec.Content != output.PlaceholderContent {
				t.Errorf("failed item content = %q, want placeholder", rec.Content)
			}
		}
	}
	if !found {
		t.Error("failed item should still be written with placeholder content")
	}
	if !cp.IsSeen(items[1].URL) {
		t.Error("failed item should still be marked seen")
	}
	if cp.LastPosition(coll) != 2 {
		t.Errorf("LastPosition = %d, want 2", cp.LastPosition(coll))
	}
}

func TestRunWritesRowPerItemEvenWithIdenticalContent(t *testing.T) {
	coll := "https://groups.example.com/g/golang-nuts"
	items := listing(coll, 2)
	stub := &stubExtractor{
		listings: map[string][]extract.Candidate{coll: items},
		contents: map[string]string{
			items[0].URL: "same body text",
			items[1].URL: "same body text",
		},
	}
	cp := openCheckpoint(t, checkpoint.NewMemoryStore())

	h := newTestHarvester(t, stub, cp, []string{coll}, 10)
	result, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Processed != 2 {
		t.Errorf("Processed = %d, want 2", result.Processed)
	}
	if result.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0; identical payloads are still distinct items", result.Skipped)
	}
	if h.Sink().Len() != 2 {
		t.Errorf("sink holds %d records, want one row per processed item (2)", h.Sink().Len())
	}
	if !cp.IsSeen(items[0].URL) || !cp.IsSeen(items[1].URL) {
		t.Error("both items should be marked seen")
	}
}

func TestRunAbortsOnListingFailure(t *testing.T) {
	bad := "https://groups.example.com/g/broken"
	good := "https://groups.example.com/g/golang-nuts"
	stub := &failingListExtractor{
		stubExtractor: stubExtractor{listings: map[string][]extract.Candidate{good: listing(good, 2)}},
		failFor:       bad,
	}
	cp := openCheckpoint(t, checkpoint.NewMemoryStore())

	h, err := New(
		WithExtractor(stub),
		WithCheckpoint(cp),
		WithCollections(bad, good),
		WithQuota(10),
		WithLimiter(fastLimiter()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, runErr := h.Run(context.Background())
	if runErr == nil {
		t.Fatal("Run() should surface a listing failure as the run error")
	}
	if result.Processed != 0 {
		t.Errorf("Processed = %d, want 0; the run must stop at the failed collection", result.Processed)
	}
	if stub.fetchCalls != 0 {
		t.Errorf("fetchCalls = %d, want 0; later collections must not be traversed", stub.fetchCalls)
	}
}

type failingListExtractor struct {
	stubExtractor
	failFor string
}

func (f *failingListExtractor) ListCandidates(ctx context.Context, collection string) ([]extract.Candidate, error) {
	if collection == f.failFor {
		return nil, errors.NewBrowserError(collection, "read listing html", nil)
	}
	return f.stubExtractor.ListCandidates(ctx, collection)
}

// failAfterStore wraps a store and fails every Save after the first n.
type failAfterStore struct {
	checkpoint.Store
	saves int
	limit int
}

func (f *failAfterStore) Save(state *checkpoint.State) error {
	f.saves++
	if f.saves > f.limit {
		return fmt.Errorf("disk full")
	}
	return f.Store.Save(state)
}

func TestRunAbortsOnPersistenceFailure(t *testing.T) {
	coll := "https://groups.example.com/g/golang-nuts"
	second := "https://groups.example.com/g/untouched"
	stub := &stubExtractor{listings: map[string][]extract.Candidate{
		coll:   listing(coll, 5),
		second: listing(second, 5),
	}}

	store := &failAfterStore{Store: checkpoint.NewMemoryStore(), limit: 2}
	cp := openCheckpoint(t, store)

	h := newTestHarvester(t, stub, cp, []string{coll, second}, 10)
	_, err := h.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should fail when checkpoint writes fail")
	}
	if !errors.IsFatal(err) {
		t.Errorf("persistence failure should be fatal, got %v", err)
	}
	if strings.Contains(err.Error(), second) {
		t.Error("run should have aborted before the second collection")
	}
}

func TestRunCancelledContext(t *testing.T) {
	coll := "https://groups.example.com/g/golang-nuts"
	stub := &stubExtractor{listings: map[string][]extract.Candidate{coll: listing(coll, 5)}}
	cp := openCheckpoint(t, checkpoint.NewMemoryStore())

	h := newTestHarvester(t, stub, cp, []string{coll}, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Run(ctx)
	if err == nil {
		t.Fatal("Run() with cancelled context should fail")
	}
	if !errors.IsFatal(err) {
		t.Errorf("cancellation should abort the run, got %v", err)
	}
}

// ============================================================================
// Constructor Tests
// ============================================================================

func TestNewRequiresExtractorAndCheckpoint(t *testing.T) {
	if _, err := New(); err == nil {
		t.Error("New() without extractor should fail")
	}

	cp := openCheckpoint(t, checkpoint.NewMemoryStore())
	if _, err := New(WithCheckpoint(cp)); err == nil {
		t.Error("New() without extractor should fail")
	}
	if _, err := New(WithExtractor(&stubExtractor{})); err == nil {
		t.Error("New() without checkpoint should fail")
	}
	if _, err := New(WithExtractor(&stubExtractor{}), WithCheckpoint(cp)); err != nil {
		t.Errorf("New() with extractor and checkpoint failed: %v", err)
	}
}
