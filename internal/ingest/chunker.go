// Package ingest prepares harvested records for downstream indexing:
// splitting content into overlapping chunks and tracking which content
// has already been ingested.
package ingest

// Chunker splits text into fixed-size overlapping windows. Sizes are in
// runes so multi-byte text never splits mid-character.
type Chunker struct {
	size    int
	overlap int
}

const (
	defaultChunkSize = 1000
	defaultOverlap   = 100
)

// NewChunker creates a chunker. Non-positive size falls back to the
// default; overlap is clamped below size.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 {
		overlap = defaultOverlap
	}
	if overlap >= size {
		overlap = size - 1
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split returns the chunks of text in order. Consecutive chunks share
// overlap runes. Empty text yields no chunks.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.size - c.overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
