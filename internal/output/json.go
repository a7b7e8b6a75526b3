package output

import (
	"encoding/json"
	"io"
	"sync"
)

// JSONWriter writes records as a JSON array, or as newline-delimited
// objects in stream mode.
type JSONWriter struct {
	mu      sync.Mutex
	writer  io.Writer
	pretty  bool
	stream  bool
	records []*Record
	closed  bool
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(w io.Writer, pretty, stream bool) *JSONWriter {
	return &JSONWriter{
		writer:  w,
		pretty:  pretty,
		stream:  stream,
		records: make([]*Record, 0),
	}
}

// WriteRecord writes a record. In stream mode each record is emitted
// immediately as one JSON line; otherwise records are buffered until
// Flush writes the whole array.
func (j *JSONWriter) WriteRecord(record *Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	if j.stream {
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if _, err := j.writer.Write(data); err != nil {
			return err
		}
		_, err = j.writer.Write([]byte("\n"))
		return err
	}

	j.records = append(j.records, record)
	return nil
}

// Flush writes the buffered array in non-stream mode.
func (j *JSONWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.stream || j.closed {
		return nil
	}

	var data []byte
	var err error
	if j.pretty {
		data, err = json.MarshalIndent(j.records, "", "  ")
	} else {
		data, err = json.Marshal(j.records)
	}
	if err != nil {
		return err
	}

	if _, err := j.writer.Write(data); err != nil {
		return err
	}
	_, err = j.writer.Write([]byte("\n"))
	return err
}

// Close marks the writer closed.
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	return nil
}
