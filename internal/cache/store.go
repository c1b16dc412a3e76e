package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store is the persistent tier behind the in-memory cache. Entries
// survive process restarts; implementations must serialize concurrent
// writers since multiple orchestrator runs can execute at once in CI.
type Store interface {
	// Get returns the entry for a test name, or nil if absent
	Get(ctx context.Context, testName string) (*Entry, error)
	// Put creates or overwrites an entry
	Put(ctx context.Context, entry *Entry) error
	// Delete removes an entry; deleting an absent entry is not an error
	Delete(ctx context.Context, testName string) error
	// List returns all entries
	List(ctx context.Context) ([]*Entry, error)
	// DeleteOlderThan removes entries created before the cutoff,
	// regardless of their own TTL, returning the number removed
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	// Compact reclaims space after deletions where the backend supports it
	Compact(ctx context.Context) error
	// SizeBytes reports the approximate on-disk footprint
	SizeBytes(ctx context.Context) (int64, error)
	// Close releases backend resources
	Close() error
}

// FileStore persists one JSON document per entry under a directory.
// This is the default disk-backed store for single-host runs.
type FileStore struct {
	dir string
}

// NewFileStore creates (if needed) the cache directory and returns a store
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// entryPath maps a test name to a filesystem-safe document path
func (s *FileStore) entryPath(testName string) string {
	return filepath.Join(s.dir, hex.EncodeToString([]byte(testName))+".json")
}

// Get returns the entry for a test name, or nil if absent
func (s *FileStore) Get(ctx context.Context, testName string) (*Entry, error) {
	data, err := os.ReadFile(s.entryPath(testName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("corrupted cache entry %s: %w", testName, err)
	}
	return &entry, nil
}

// Put creates or overwrites an entry. The write goes through a temp
// file and rename so concurrent readers never see a torn document.
func (s *FileStore) Put(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	path := s.entryPath(entry.TestName)
	tmp, err := os.CreateTemp(s.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("failed to create temp entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Delete removes an entry
func (s *FileStore) Delete(ctx context.Context, testName string) error {
	err := os.Remove(s.entryPath(testName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns all entries, skipping unreadable documents
func (s *FileStore) List(ctx context.Context) ([]*Entry, error) {
	docs, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var entries []*Entry
	for _, doc := range docs {
		if doc.IsDir() || !strings.HasSuffix(doc.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, doc.Name()))
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// DeleteOlderThan removes entries created before the cutoff
func (s *FileStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	var removed int
	for _, entry := range entries {
		if entry.Timestamp.Before(cutoff) {
			if err := s.Delete(ctx, entry.TestName); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Compact removes stray temp files left behind by interrupted writes
func (s *FileStore) Compact(ctx context.Context) error {
	docs, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if strings.HasPrefix(doc.Name(), ".entry-") {
			os.Remove(filepath.Join(s.dir, doc.Name()))
		}
	}
	return nil
}

// SizeBytes reports the summed size of all entry documents
func (s *FileStore) SizeBytes(ctx context.Context) (int64, error) {
	docs, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, doc := range docs {
		if info, err := doc.Info(); err == nil && !info.IsDir() {
			total += info.Size()
		}
	}
	return total, nil
}

// Close is a no-op for the file store
func (s *FileStore) Close() error {
	return nil
}
