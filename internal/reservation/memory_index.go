package reservation

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/wolfman30/kalos-marketplace/internal/availability"
)

type indexItem struct {
	key availability.Key
	at  int64
}

type expiryHeap []indexItem

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].at < h[j].at }
func (h expiryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)        { *h = append(*h, x.(indexItem)) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MemoryLockIndex is a process-local LockIndex. Heap entries whose expiry no
// longer matches the current score are discarded lazily.
type MemoryLockIndex struct {
	mu     sync.Mutex
	scores map[availability.Key]int64
	heap   expiryHeap
}

var _ LockIndex = (*MemoryLockIndex)(nil)

func NewMemoryLockIndex() *MemoryLockIndex {
	return &MemoryLockIndex{scores: make(map[availability.Key]int64)}
}

func (m *MemoryLockIndex) Track(ctx context.Context, key availability.Key, expiresAt, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp := toMillis(expiresAt)
	cur, ok := m.scores[key]
	if ok && cur <= exp && cur > toMillis(now) {
		return nil
	}
	m.set(key, exp)
	return nil
}

func (m *MemoryLockIndex) Due(ctx context.Context, now time.Time, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := toMillis(now)
	var (
		entries []Entry
		keep    []indexItem
	)
	seen := make(map[availability.Key]bool)
	for m.heap.Len() > 0 && len(entries) < limit {
		top := m.heap[0]
		if top.at > cutoff {
			break
		}
		heap.Pop(&m.heap)
		if cur, ok := m.scores[top.key]; !ok || cur != top.at || seen[top.key] {
			continue
		}
		seen[top.key] = true
		entries = append(entries, Entry{Key: top.key, DueAt: fromMillis(top.at)})
		keep = append(keep, top)
	}
	for _, item := range keep {
		heap.Push(&m.heap, item)
	}
	return entries, nil
}

func (m *MemoryLockIndex) Settle(ctx context.Context, entry Entry, next *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.scores[entry.Key]
	if !ok || cur != toMillis(entry.DueAt) {
		return nil
	}
	if next == nil {
		delete(m.scores, entry.Key)
		return nil
	}
	m.set(entry.Key, toMillis(*next))
	return nil
}

// Len reports how many records are indexed.
func (m *MemoryLockIndex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scores)
}

func (m *MemoryLockIndex) set(key availability.Key, at int64) {
	m.scores[key] = at
	heap.Push(&m.heap, indexItem{key: key, at: at})
}
