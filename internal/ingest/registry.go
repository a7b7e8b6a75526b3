package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	herrors "github.com/ForumScholar/GroupHarvest/internal/errors"
)

// Registry records content fingerprints that have already been
// ingested, so reruns over overlapping harvests do not double-index.
// The backing file is a JSON array of fingerprints, written atomically.
type Registry struct {
	mu    sync.Mutex
	path  string
	seen  map[string]struct{}
	dirty bool
}

// OpenRegistry loads the registry at path, starting empty when the file
// does not exist. An unreadable file is treated as empty.
func OpenRegistry(path string) (*Registry, error) {
	r := &Registry{
		path: path,
		seen: make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, herrors.NewPersistenceError(path, "read registry", err)
	}

	var fingerprints []string
	if err := json.Unmarshal(data, &fingerprints); err != nil {
		return r, nil
	}
	for _, fp := range fingerprints {
		r.seen[fp] = struct{}{}
	}
	return r, nil
}

// Seen reports whether the fingerprint has been ingested before.
func (r *Registry) Seen(fingerprint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[fingerprint]
	return ok
}

// Add records a fingerprint. Returns true when it was new.
func (r *Registry) Add(fingerprint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[fingerprint]; ok {
		return false
	}
	r.seen[fingerprint] = struct{}{}
	r.dirty = true
	return true
}

// Len returns the number of recorded fingerprints.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

// Save writes the registry to disk when it has unsaved additions. The
// write goes through a temp file and rename so a crash never leaves a
// truncated registry.
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.dirty {
		return nil
	}

	fingerprints := make([]string, 0, len(r.seen))
	for fp := range r.seen {
		fingerprints = append(fingerprints, fp)
	}
	sort.Strings(fingerprints)

	data, err := json.MarshalIndent(fingerprints, "", "  ")
	if err != nil {
		return herrors.NewPersistenceError(r.path, "encode registry", err)
	}

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return herrors.NewPersistenceError(r.path, "create registry dir", err)
		}
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return herrors.NewPersistenceError(r.path, "write registry", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		_ = os.Remove(tmp)
		return herrors.NewPersistenceError(r.path, "replace registry", err)
	}

	r.dirty = false
	return nil
}

// Close saves any pending additions.
func (r *Registry) Close() error {
	if err := r.Save(); err != nil {
		return fmt.Errorf("failed to close registry: %w", err)
	}
	return nil
}
