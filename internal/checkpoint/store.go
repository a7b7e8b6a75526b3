package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// GroupProgress records traversal position for one collection.
// Positions are 0-based indexes into the traversal order: after
// processing the first N items LastThreadIndex is N-1, and -1 means
// nothing has been processed yet. Completed is a one-way flag set when
// pagination was naturally exhausted.
type GroupProgress struct {
	LastThreadIndex int  `json:"last_thread_index"`
	Completed       bool `json:"completed"`
}

// State is the full persisted checkpoint. It is the sole source of truth
// for resumability: the progress map and the seen-identity list fully
// determine what remains to do after a restart.
type State struct {
	Groups      map[string]*GroupProgress `json:"groups"`
	ScrapedURLs []string                  `json:"scraped_urls"`
}

// NewState returns an empty-but-valid state.
func NewState() *State {
	return &State{
		Groups:      make(map[string]*GroupProgress),
		ScrapedURLs: make([]string, 0),
	}
}

// normalize fills in keys missing from older or hand-edited files.
func (s *State) normalize() {
	if s.Groups == nil {
		s.Groups = make(map[string]*GroupProgress)
	}
	if s.ScrapedURLs == nil {
		s.ScrapedURLs = make([]string, 0)
	}
}

// Store defines the interface for checkpoint persistence backends.
type Store interface {
	// Save writes the full state durably.
	Save(state *State) error

	// Load reads the persisted state. A missing checkpoint returns
	// (nil, nil); a present-but-unparsable one returns an error so the
	// caller can decide to start fresh.
	Load() (*State, error)

	Close() error
}

// FileStore persists the checkpoint as a JSON file. Writes go to a
// temporary file in the same directory and are renamed over the target,
// so a crash mid-write never leaves a truncated checkpoint behind.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed checkpoint store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the checkpoint file location.
func (s *FileStore) Path() string {
	return s.path
}

// Save writes the state atomically.
func (s *FileStore) Save(state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	return nil
}

// Load reads the state from disk.
func (s *FileStore) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}

	state.normalize()
	return &state, nil
}

// Close is a no-op for FileStore.
func (s *FileStore) Close() error {
	return nil
}

var (
	bucketCheckpoint = []byte("checkpoint")
	keyState         = []byte("state")
)

// BoltStore persists the checkpoint in a BoltDB file. Useful when the
// seen-set grows beyond what rewriting a JSON file per item tolerates.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a BoltDB-backed checkpoint store.
func NewBoltStore(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCheckpoint)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Save writes the state in a single transaction.
func (s *BoltStore) Save(state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckpoint)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Put(keyState, data)
	})
}

// Load reads the state.
func (s *BoltStore) Load() (*State, error) {
	var state *State

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckpoint)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		data := b.Get(keyState)
		if data == nil {
			return nil
		}

		state = &State{}
		return json.Unmarshal(data, state)
	})
	if err != nil {
		return nil, err
	}

	if state != nil {
		state.normalize()
	}
	return state, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// MemoryStore keeps the checkpoint in memory. Used in tests and when
// persistence is disabled.
type MemoryStore struct {
	state *State
}

// NewMemoryStore creates an in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save stores a deep copy so later mutations don't leak in.
func (s *MemoryStore) Save(state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	clone := &State{}
	if err := json.Unmarshal(data, clone); err != nil {
		return err
	}
	clone.normalize()
	s.state = clone
	return nil
}

// Load returns the stored state.
func (s *MemoryStore) Load() (*State, error) {
	return s.state, nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}
