package output

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// csvHeader matches the column order the ingestion side expects.
var csvHeader = []string{"group_url", "title", "date", "author", "url", "content"}

// CSVWriter writes records as CSV rows, emitting the header before the
// first record.
type CSVWriter struct {
	mu          sync.Mutex
	w           *csv.Writer
	file        *os.File
	wroteHeader bool
}

// NewCSVWriter creates a CSV writer over an io.Writer.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// NewCSVFileWriter creates a CSV writer over a file, creating parent
// directories as needed.
func NewCSVFileWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &CSVWriter{w: csv.NewWriter(file), file: file}, nil
}

// WriteRecord writes a single record row.
func (c *CSVWriter) WriteRecord(record *Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.wroteHeader {
		if err := c.w.Write(csvHeader); err != nil {
			return err
		}
		c.wroteHeader = true
	}

	return c.w.Write([]string{
		record.GroupURL,
		record.Title,
		record.Date,
		record.Author,
		record.URL,
		record.Content,
	})
}

// Flush flushes buffered rows.
func (c *CSVWriter) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.w.Flush()
	return c.w.Error()
}

// Close flushes and closes the underlying file, if any.
func (c *CSVWriter) Close() error {
	if err := c.Flush(); err != nil {
		if c.file != nil {
			c.file.Close()
		}
		return err
	}
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}
