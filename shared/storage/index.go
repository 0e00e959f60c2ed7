package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const indexFile = "index.json"

// IndexEntry records one persisted artifact.
type IndexEntry struct {
	Query     string    `json:"query"`
	RequestID string    `json:"request_id"`
	Path      string    `json:"path"`
	Videos    int       `json:"videos"`
	CreatedAt time.Time `json:"created_at"`
}

// ArtifactIndex keeps the latest artifact per query in a JSON file shared by
// every process writing to the same results directory. Writes hold an
// exclusive file lock and merge with what is on disk.
type ArtifactIndex struct {
	filePath string
	lock     *flock.Flock
	entries  map[string]IndexEntry
	mu       sync.RWMutex
	maxAge   time.Duration
}

// NewArtifactIndex opens the index in dir. Entries older than maxAge are not
// considered fresh; a zero maxAge means nothing is ever fresh.
func NewArtifactIndex(dir string, maxAge time.Duration) (*ArtifactIndex, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	filePath := filepath.Join(dir, indexFile)
	idx := &ArtifactIndex{
		filePath: filePath,
		lock:     flock.New(filePath + ".lock"),
		entries:  make(map[string]IndexEntry),
		maxAge:   maxAge,
	}

	if err := idx.lock.RLock(); err != nil {
		return nil, fmt.Errorf("failed to lock artifact index: %w", err)
	}
	defer idx.lock.Unlock()

	entries, err := readIndex(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact index: %w", err)
	}
	idx.entries = entries
	return idx, nil
}

func indexKey(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// IsFresh reports whether query has an artifact younger than maxAge.
func (idx *ArtifactIndex) IsFresh(query string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e, ok := idx.entries[indexKey(query)]
	if !ok {
		return false
	}
	return time.Since(e.CreatedAt) < idx.maxAge
}

// Latest returns the newest entry for query.
func (idx *ArtifactIndex) Latest(query string) (IndexEntry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[indexKey(query)]
	return e, ok
}

// Record stores e as the latest artifact for its query.
func (idx *ArtifactIndex) Record(e IndexEntry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock artifact index: %w", err)
	}
	defer idx.lock.Unlock()

	onDisk, err := readIndex(idx.filePath)
	if err != nil {
		return fmt.Errorf("failed to reload artifact index: %w", err)
	}
	for k, v := range onDisk {
		if cur, ok := idx.entries[k]; !ok || v.CreatedAt.After(cur.CreatedAt) {
			idx.entries[k] = v
		}
	}
	idx.entries[indexKey(e.Query)] = e

	return idx.save()
}

func (idx *ArtifactIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Entries returns every entry, newest first.
func (idx *ArtifactIndex) Entries() []IndexEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]IndexEntry, 0, len(idx.entries))
	for _, e := range idx.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func readIndex(path string) (map[string]IndexEntry, error) {
	entries := make(map[string]IndexEntry)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entries, nil
		}
		return nil, err
	}

	var list []IndexEntry
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to decode index: %w", err)
	}
	for _, e := range list {
		k := indexKey(e.Query)
		if cur, ok := entries[k]; !ok || e.CreatedAt.After(cur.CreatedAt) {
			entries[k] = e
		}
	}
	return entries, nil
}

// save must be called with the file lock held.
func (idx *ArtifactIndex) save() error {
	list := make([]IndexEntry, 0, len(idx.entries))
	for _, e := range idx.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Query < list[j].Query })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	return writeFileAtomic(idx.filePath, data, 0644)
}
