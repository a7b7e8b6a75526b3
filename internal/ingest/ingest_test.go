package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ForumScholar/GroupHarvest/internal/output"
)

// ============================================================================
// Chunker Tests
// ============================================================================

func TestChunkerSplit(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		text    string
		want    []string
	}{
		{
			name:    "shorter than one chunk",
			size:    10,
			overlap: 2,
			text:    "hello",
			want:    []string{"hello"},
		},
		{
			name:    "exact multiple with overlap",
			size:    4,
			overlap: 1,
			text:    "abcdefg",
			want:    []string{"abcd", "defg", "g"},
		},
		{
			name:    "empty text",
			size:    10,
			overlap: 2,
			text:    "",
			want:    nil,
		},
		{
			name:    "no overlap",
			size:    3,
			overlap: 0,
			text:    "abcdef",
			want:    []string{"abc", "def"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewChunker(tt.size, tt.overlap).Split(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("Split() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("chunk[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestChunkerOverlapSharesTail(t *testing.T) {
	chunks := NewChunker(100, 20).Split(strings.Repeat("x", 150) + strings.Repeat("y", 150))
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	tail := chunks[0][len(chunks[0])-20:]
	if !strings.HasPrefix(chunks[1], tail) {
		t.Error("second chunk should start with the overlap of the first")
	}
}

func TestChunkerMultibyteSafe(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 20)
	for _, chunk := range NewChunker(50, 10).Split(text) {
		if !utf8.ValidString(chunk) {
			t.Fatalf("chunk split mid-rune: %q", chunk)
		}
	}
}

// ============================================================================
// Registry Tests
// ============================================================================

func TestRegistryAddAndSeen(t *testing.T) {
	r, err := OpenRegistry(filepath.Join(t.TempDir(), "registry.json"))
	if err != nil {
		t.Fatalf("OpenRegistry() error = %v", err)
	}

	if !r.Add("fp1") {
		t.Error("first Add should report new")
	}
	if r.Add("fp1") {
		t.Error("second Add should report duplicate")
	}
	if !r.Seen("fp1") {
		t.Error("Seen() should report added fingerprint")
	}
	if r.Seen("fp2") {
		t.Error("Seen() should not report unknown fingerprint")
	}
}

func TestRegistryPersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")

	r, err := OpenRegistry(path)
	if err != nil {
		t.Fatalf("OpenRegistry() error = %v", err)
	}
	r.Add("fp1")
	r.Add("fp2")
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := OpenRegistry(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if !reopened.Seen("fp1") || !reopened.Seen("fp2") {
		t.Error("fingerprints lost across reopen")
	}
	if reopened.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reopened.Len())
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}
}

func TestRegistryCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := OpenRegistry(path)
	if err != nil {
		t.Fatalf("OpenRegistry() on corrupt file error = %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("corrupt registry should start empty, got %d entries", r.Len())
	}
}

// ============================================================================
// Ingester Tests
// ============================================================================

func TestIngestRecordsSkipsPlaceholderAndDuplicates(t *testing.T) {
	r, err := OpenRegistry(filepath.Join(t.TempDir(), "registry.json"))
	if err != nil {
		t.Fatal(err)
	}
	ing := NewIngester(NewChunker(1000, 100), r)

	records := []*output.Record{
		{URL: "https://g/1", Content: "real content one"},
		{URL: "https://g/2", Content: "Error extracting text"},
		{URL: "https://g/3", Content: "REAL   content\none"},
		{URL: "https://g/4", Content: ""},
	}

	chunks := ing.IngestRecords(records)
	if len(chunks) != 1 {
		t.Fatalf("IngestRecords() produced %d chunks, want 1", len(chunks))
	}
	if chunks[0].Source != "https://g/1" {
		t.Errorf("chunk source = %q", chunks[0].Source)
	}

	// A rerun over the same records produces nothing new.
	if again := ing.IngestRecords(records); len(again) != 0 {
		t.Errorf("rerun produced %d chunks, want 0", len(again))
	}
}

func TestIngestRecordsChunksLongContent(t *testing.T) {
	ing := NewIngester(NewChunker(100, 10), nil)
	records := []*output.Record{{URL: "https://g/long", Content: strings.Repeat("word ", 100)}}

	chunks := ing.IngestRecords(records)
	if len(chunks) < 2 {
		t.Fatalf("long content should produce multiple chunks, got %d", len(chunks))
	}
}

// ============================================================================
// CSV Loading Tests
// ============================================================================

func TestReadCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harvest.csv")
	w, err := output.NewCSVFileWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	want := &output.Record{
		GroupURL: "https://groups.example.com/g/misc",
		Title:    "A thread, with commas",
		Date:     "2026-03-04",
		Author:   "alice",
		URL:      "https://groups.example.com/g/misc/c/1",
		Content:  "line one\nline two",
	}
	if err := w.WriteRecord(want); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	records, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ReadCSV() returned %d records, want 1", len(records))
	}
	got := records[0]
	if got.Title != want.Title || got.Content != want.Content || got.URL != want.URL {
		t.Errorf("round-tripped record mismatch: %+v", got)
	}
}

func TestReadCSVRejectsWrongHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("a,b,c,d,e,f\n1,2,3,4,5,6\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadCSV(path); err == nil {
		t.Error("ReadCSV() should reject an unexpected header")
	}
}

func TestReadCSVMissingFile(t *testing.T) {
	if _, err := ReadCSV(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Error("ReadCSV() on a missing file should fail")
	}
}
