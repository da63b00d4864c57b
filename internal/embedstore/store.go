// Package embedstore is the persistent embedding cache: one vector per entry
// UUID, held in memory and mirrored to a single JSON file.
package embedstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/mwiater/loremaster/internal/logging"
)

// Record is a cached vector and the model that produced it. Model is empty
// for records written by older versions of the cache file.
type Record struct {
	Vector []float64 `json:"vector"`
	Model  string    `json:"model,omitempty"`
}

// UnmarshalJSON accepts both the current object form and the legacy bare array.
func (r *Record) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var vector []float64
		if err := json.Unmarshal(trimmed, &vector); err != nil {
			return err
		}
		*r = Record{Vector: vector}
		return nil
	}
	type plain Record
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*r = Record(p)
	return nil
}

// Stats summarises the cache.
type Stats struct {
	Count      int    `json:"total_embeddings"`
	SizeBytes  int64  `json:"file_size"`
	Path       string `json:"storage_path"`
	FileExists bool   `json:"file_exists"`
}

// Store is safe for concurrent use; every method holds the same mutex.
type Store struct {
	mu      sync.Mutex
	path    string
	records map[string]Record
}

// Open loads the cache file at path. A missing file yields an empty store; a
// file that cannot be read or parsed is an error, so it is never overwritten.
func Open(path string) (*Store, error) {
	s := &Store{path: path, records: make(map[string]Record)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.LogEvent("embedstore: %s not found, starting empty", path)
			return s, nil
		}
		return nil, fmt.Errorf("read embedding cache %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("parse embedding cache %s: %w", path, err)
	}
	if s.records == nil {
		s.records = make(map[string]Record)
	}
	logging.LogEvent("embedstore: loaded %d vectors from %s", len(s.records), path)
	return s, nil
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the vector cached for id.
func (s *Store) Get(id string) ([]float64, bool) {
	rec, ok := s.Lookup(id)
	return rec.Vector, ok
}

// Lookup returns a copy of the full record for id.
func (s *Store) Lookup(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return Record{Vector: cloneVector(rec.Vector), Model: rec.Model}, true
}

func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	return ok
}

// Missing returns the ids, in input order, that have no usable vector for
// model. Records carrying a different model count as missing; records with
// no model recorded match any model.
func (s *Store) Missing(ids []string, model string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []string
	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok || (rec.Model != "" && model != "" && rec.Model != model) {
			missing = append(missing, id)
		}
	}
	return missing
}

// PutMany upserts vectors tagged with model and persists immediately. If
// persisting fails the in-memory state is left unchanged.
func (s *Store) PutMany(vectors map[string][]float64, model string) error {
	if len(vectors) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := make(map[string]Record, len(vectors))
	existed := make(map[string]bool, len(vectors))
	for id, vec := range vectors {
		if old, ok := s.records[id]; ok {
			previous[id] = old
			existed[id] = true
		}
		s.records[id] = Record{Vector: cloneVector(vec), Model: model}
	}

	if err := s.persistLocked(); err != nil {
		for id := range vectors {
			if existed[id] {
				s.records[id] = previous[id]
			} else {
				delete(s.records, id)
			}
		}
		return err
	}
	return nil
}

// Remove deletes the vector for id, reporting whether one was present.
func (s *Store) Remove(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.records[id]
	if !ok {
		return false, nil
	}
	delete(s.records, id)
	if err := s.persistLocked(); err != nil {
		s.records[id] = old
		return false, err
	}
	logging.LogEvent("embedstore: removed vector %s", id)
	return true, nil
}

// Clear drops every vector and persists the empty cache.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.records
	s.records = make(map[string]Record)
	if err := s.persistLocked(); err != nil {
		s.records = old
		return err
	}
	return nil
}

// Backup writes a snapshot of the cache to path using the same atomic write.
func (s *Store) Backup(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeAtomic(path, s.records); err != nil {
		return fmt.Errorf("backup embedding cache: %w", err)
	}
	logging.LogEvent("embedstore: backed up %d vectors to %s", len(s.records), path)
	return nil
}

func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := Stats{Count: len(s.records), Path: s.path}
	info, err := os.Stat(s.path)
	switch {
	case err == nil:
		stats.FileExists = true
		stats.SizeBytes = info.Size()
	case errors.Is(err, fs.ErrNotExist):
	default:
		return stats, fmt.Errorf("stat embedding cache: %w", err)
	}
	return stats, nil
}

func (s *Store) persistLocked() error {
	if err := writeAtomic(s.path, s.records); err != nil {
		return fmt.Errorf("persist embedding cache: %w", err)
	}
	return nil
}

// writeAtomic writes records to a temp file beside path and renames it into place.
func writeAtomic(path string, records map[string]Record) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

func cloneVector(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
