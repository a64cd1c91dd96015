package ledger

import (
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/cwrk-planet/room-sync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(ids ...int64) []domain.TransferRecord {
	out := make([]domain.TransferRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.TransferRecord{
			ID:         id,
			RoomID:     1,
			FromUserID: 10,
			ToUserID:   20,
			Amount:     id,
			CreatedAt:  time.Unix(1700000000+id, 0),
		})
	}
	return out
}

func ids(records []domain.TransferRecord) []int64 {
	out := make([]int64, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestCache_DefaultMaxSize(t *testing.T) {
	assert.Equal(t, DefaultMaxSize, New(0).MaxSize())
	assert.Equal(t, DefaultMaxSize, New(-1).MaxSize())
	assert.Equal(t, 7, New(7).MaxSize())
}

func TestCache_ReplaceAll(t *testing.T) {
	c := New(10)
	c.ReplaceAll(rec(3, 1, 2, 2))

	assert.Equal(t, []int64{3, 2, 1}, ids(c.Snapshot()))
	assert.Equal(t, int64(3), c.Cursor())

	c.ReplaceAll(rec(5))
	assert.Equal(t, []int64{5}, ids(c.Snapshot()))
	assert.Equal(t, int64(5), c.Cursor())

	c.ReplaceAll(nil)
	assert.Empty(t, c.Snapshot())
	assert.Equal(t, int64(0), c.Cursor())
}

func TestCache_MergeIncremental(t *testing.T) {
	c := New(10)
	c.ReplaceAll(rec(1, 2))
	c.MergeIncremental(rec(4, 3))

	assert.Equal(t, []int64{4, 3, 2, 1}, ids(c.Snapshot()))
	assert.Equal(t, int64(4), c.Cursor())
}

func TestCache_MergeKeepsFirstOccurrence(t *testing.T) {
	c := New(10)
	c.ReplaceAll(rec(1))
	dup := rec(1)
	dup[0].Amount = 999
	c.MergeIncremental(dup)

	snap := c.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(1), snap[0].Amount)
}

func TestCache_MergeEmptyKeepsCursor(t *testing.T) {
	c := New(10)
	c.MergeIncremental(nil)
	assert.Equal(t, int64(0), c.Cursor())

	c.ReplaceAll(rec(8))
	c.MergeIncremental(nil)
	assert.Equal(t, int64(8), c.Cursor())
}

func TestCache_RejectsNonPositiveIDs(t *testing.T) {
	c := New(10)
	c.ReplaceAll(rec(0, -1, 2))
	assert.Equal(t, []int64{2}, ids(c.Snapshot()))
}

func TestCache_TruncatesOldest(t *testing.T) {
	c := New(3)
	c.ReplaceAll(rec(1, 2, 3, 4, 5))
	assert.Equal(t, []int64{5, 4, 3}, ids(c.Snapshot()))

	c.MergeIncremental(rec(6))
	assert.Equal(t, []int64{6, 5, 4}, ids(c.Snapshot()))
	assert.Equal(t, int64(6), c.Cursor())

	// an old record that arrives late is dropped immediately
	c.MergeIncremental(rec(2))
	assert.Equal(t, []int64{6, 5, 4}, ids(c.Snapshot()))
}

func TestCache_SnapshotIsCopy(t *testing.T) {
	c := New(5)
	c.ReplaceAll(rec(1, 2))
	snap := c.Snapshot()
	snap[0].Amount = 12345

	assert.NotEqual(t, int64(12345), c.Snapshot()[0].Amount)
}

func TestCache_IdempotentMerge(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for round := 0; round < 50; round++ {
		once, twice := New(20), New(20)
		for step := 0; step < 10; step++ {
			batch := randomBatch(r, 8, 60)
			once.MergeIncremental(batch)
			twice.MergeIncremental(batch)
			twice.MergeIncremental(batch)
		}
		assert.Equal(t, once.Snapshot(), twice.Snapshot())
		assert.Equal(t, once.Cursor(), twice.Cursor())
	}
}

func TestCache_InvariantsUnderRandomOps(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	const maxSize = 16

	for round := 0; round < 100; round++ {
		c := New(maxSize)
		universe := map[int64]struct{}{}

		for step := 0; step < 20; step++ {
			batch := randomBatch(r, 12, 200)
			if r.Intn(4) == 0 {
				c.ReplaceAll(batch)
				universe = map[int64]struct{}{}
			} else {
				c.MergeIncremental(batch)
			}
			for _, b := range batch {
				universe[b.ID] = struct{}{}
			}

			snap := ids(c.Snapshot())
			require.LessOrEqual(t, len(snap), maxSize)
			require.True(t, slices.IsSortedFunc(snap, func(a, b int64) int {
				if a > b {
					return -1
				}
				return 1
			}), "not strictly descending: %v", snap)

			all := make([]int64, 0, len(universe))
			for id := range universe {
				all = append(all, id)
			}
			slices.Sort(all)
			slices.Reverse(all)
			if len(all) > maxSize {
				all = all[:maxSize]
			}
			require.Equal(t, all, snap)
			if len(snap) > 0 {
				require.Equal(t, snap[0], c.Cursor())
			}
		}
	}
}

func randomBatch(r *rand.Rand, maxLen int, maxID int64) []domain.TransferRecord {
	n := r.Intn(maxLen + 1)
	batch := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, r.Int63n(maxID)+1)
	}
	return rec(batch...)
}
