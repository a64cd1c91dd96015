// Package ledger keeps the in-memory transfer history of one room view.
package ledger

import (
	"cmp"
	"slices"
	"sync"

	"github.com/cwrk-planet/room-sync/internal/domain"
)

const DefaultMaxSize = 100

// Cache holds at most maxSize transfer records, newest first, with no two
// records sharing an id. Cursor is the highest id retained.
type Cache struct {
	mu      sync.RWMutex
	maxSize int
	records []domain.TransferRecord
	cursor  int64
}

func New(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache{maxSize: maxSize}
}

// ReplaceAll drops the current state and rebuilds it from a full fetch.
func (c *Cache) ReplaceAll(records []domain.TransferRecord) {
	next := normalize(nil, records, c.maxSize)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = next
	c.cursor = 0
	if len(next) > 0 {
		c.cursor = next[0].ID
	}
}

// MergeIncremental folds newer records into the current state. Replaying the
// same batch is a no-op.
func (c *Cache) MergeIncremental(records []domain.TransferRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := normalize(c.records, records, c.maxSize)
	c.records = next
	if len(next) > 0 {
		c.cursor = next[0].ID
	}
}

// Snapshot returns a copy of the records, newest first.
func (c *Cache) Snapshot() []domain.TransferRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.records)
}

func (c *Cache) Cursor() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.cursor
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.records)
}

func (c *Cache) MaxSize() int { return c.maxSize }

// normalize concatenates existing and incoming, keeps the first record seen
// for every id, sorts descending and truncates the oldest entries.
func normalize(existing, incoming []domain.TransferRecord, maxSize int) []domain.TransferRecord {
	seen := make(map[int64]struct{}, len(existing)+len(incoming))
	out := make([]domain.TransferRecord, 0, len(existing)+len(incoming))

	for _, batch := range [][]domain.TransferRecord{existing, incoming} {
		for _, r := range batch {
			if r.ID <= 0 {
				continue
			}
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			out = append(out, r)
		}
	}

	slices.SortFunc(out, func(a, b domain.TransferRecord) int {
		return cmp.Compare(b.ID, a.ID)
	})
	if len(out) > maxSize {
		out = out[:maxSize:maxSize]
	}

	return out
}
