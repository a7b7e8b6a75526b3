package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/ForumScholar/GroupHarvest/internal/dedup"
	herrors "github.com/ForumScholar/GroupHarvest/internal/errors"
	"github.com/ForumScholar/GroupHarvest/internal/output"
)

// Chunk is one indexable unit of harvested content.
type Chunk struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Ingester turns harvested records into chunks, consulting the registry
// so content seen in a previous run is not chunked again.
type Ingester struct {
	chunker  *Chunker
	registry *Registry
}

// NewIngester creates an ingester. A nil registry disables rerun
// deduplication.
func NewIngester(chunker *Chunker, registry *Registry) *Ingester {
	if chunker == nil {
		chunker = NewChunker(defaultChunkSize, defaultOverlap)
	}
	return &Ingester{chunker: chunker, registry: registry}
}

// IngestRecords chunks every unseen record. Records whose content
// fingerprint is already registered are skipped whole. Placeholder
// rows from failed extractions carry no usable content and are skipped
// as well.
func (i *Ingester) IngestRecords(records []*output.Record) []Chunk {
	var chunks []Chunk
	for _, rec := range records {
		content := strings.TrimSpace(rec.Content)
		if content == "" || content == output.PlaceholderContent {
			continue
		}

		if i.registry != nil && !i.registry.Add(dedup.Fingerprint(content)) {
			continue
		}

		for _, text := range i.chunker.Split(content) {
			chunks = append(chunks, Chunk{Text: text, Source: rec.URL})
		}
	}
	return chunks
}

// ReadCSV loads harvested records from a CSV file produced by the
// harvester. The header row is validated against the expected layout.
func ReadCSV(path string) ([]*output.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, herrors.NewPersistenceError(path, "open harvest csv", err)
	}
	defer f.Close()

	return parseCSV(f, path)
}

func parseCSV(r io.Reader, path string) ([]*output.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 6

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, herrors.NewMalformedStateError(path, err)
	}
	if len(header) != 6 || header[0] != "group_url" {
		return nil, herrors.NewMalformedStateError(path, nil)
	}

	var records []*output.Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, herrors.NewMalformedStateError(path, err)
		}
		records = append(records, &output.Record{
			GroupURL: row[0],
			Title:    row[1],
			Date:     row[2],
			Author:   row[3],
			URL:      row[4],
			Content:  row[5],
		})
	}
	return records, nil
}
