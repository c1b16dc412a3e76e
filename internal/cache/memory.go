package cache

import (
	"container/list"
	"strings"
	"time"
)

const defaultMemoryCap = 1000

// memoryTier is a hard-capped LRU map of hot entries. The cap is an
// invariant: inserting past it evicts the least recently used entry
// rather than refusing the insert, so the hot set never goes stale.
// Callers hold the SmartCache lock; the tier itself is not locked.
type memoryTier struct {
	capN    int
	order   *list.List // front = most recently used
	entries map[string]*list.Element
}

type tierItem struct {
	key   string
	entry *Entry
}

func newMemoryTier(capN int) *memoryTier {
	if capN <= 0 {
		capN = defaultMemoryCap
	}
	return &memoryTier{
		capN:    capN,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// get returns the entry and marks it most recently used
func (t *memoryTier) get(key string) (*Entry, bool) {
	elem, ok := t.entries[key]
	if !ok {
		return nil, false
	}
	t.order.MoveToFront(elem)
	return elem.Value.(*tierItem).entry, true
}

// put inserts or refreshes an entry, evicting LRU past the cap
func (t *memoryTier) put(key string, entry *Entry) {
	if elem, ok := t.entries[key]; ok {
		elem.Value.(*tierItem).entry = entry
		t.order.MoveToFront(elem)
		return
	}

	if t.order.Len() >= t.capN {
		oldest := t.order.Back()
		if oldest != nil {
			t.order.Remove(oldest)
			delete(t.entries, oldest.Value.(*tierItem).key)
		}
	}

	t.entries[key] = t.order.PushFront(&tierItem{key: key, entry: entry})
}

func (t *memoryTier) delete(key string) {
	if elem, ok := t.entries[key]; ok {
		t.order.Remove(elem)
		delete(t.entries, key)
	}
}

// deleteMatching removes every entry whose key contains the substring
func (t *memoryTier) deleteMatching(substring string) int {
	var removed int
	for key := range t.entries {
		if strings.Contains(key, substring) {
			t.delete(key)
			removed++
		}
	}
	return removed
}

// deleteExpired removes entries whose own TTL has elapsed
func (t *memoryTier) deleteExpired(now time.Time) int {
	var removed int
	for key, elem := range t.entries {
		if elem.Value.(*tierItem).entry.Expired(now) {
			t.delete(key)
			removed++
		}
	}
	return removed
}

func (t *memoryTier) len() int {
	return t.order.Len()
}
