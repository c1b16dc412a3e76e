// Package filehash computes cache-key content hashes for test files
// and their dependencies.
package filehash

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"sort"
	"sync"
)

const defaultMemoCap = 50000

// Hasher computes 16-byte content hashes, memoized by (path, mtime)
// so unchanged files are never re-read. Safe for concurrent use.
type Hasher struct {
	mu   sync.Mutex
	memo map[string]memoEntry
	capN int
}

type memoEntry struct {
	mtime int64
	size  int64
	hash  string
}

// NewHasher creates a hasher with a bounded memoization cache
func NewHasher() *Hasher {
	return &Hasher{
		memo: make(map[string]memoEntry),
		capN: defaultMemoCap,
	}
}

// FileHash returns the hex digest of a file's contents. A missing
// path returns "" — the hash of nothing — so any file that later
// appears will differ and force invalidation.
func (h *Hasher) FileHash(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}

	mtime := info.ModTime().UnixNano()
	size := info.Size()

	h.mu.Lock()
	if entry, ok := h.memo[path]; ok && entry.mtime == mtime && entry.size == size {
		h.mu.Unlock()
		return entry.hash
	}
	h.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	sum := md5.New()
	if _, err := io.Copy(sum, f); err != nil {
		return ""
	}
	digest := hex.EncodeToString(sum.Sum(nil))

	h.mu.Lock()
	if len(h.memo) >= h.capN {
		// Full reset beats unbounded growth; recomputation is cheap
		h.memo = make(map[string]memoEntry)
	}
	h.memo[path] = memoEntry{mtime: mtime, size: size, hash: digest}
	h.mu.Unlock()

	return digest
}

// DependencyHash combines the test file's hash with the hashes of all
// existing dependency files. Dependencies are processed in sorted
// order so the result is stable across callers regardless of list
// ordering. Missing dependency paths are skipped.
func (h *Hasher) DependencyHash(path string, dependencies []string) string {
	deps := make([]string, len(dependencies))
	copy(deps, dependencies)
	sort.Strings(deps)

	sum := md5.New()
	io.WriteString(sum, h.FileHash(path))
	for _, dep := range deps {
		if digest := h.FileHash(dep); digest != "" {
			io.WriteString(sum, digest)
		}
	}

	return hex.EncodeToString(sum.Sum(nil))
}
