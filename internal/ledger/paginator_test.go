package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-ledger/internal/models"
)

func seedRecords(t *testing.T, store *Store, folder string, n int) []string {
	t.Helper()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		rec, err := store.Create(context.Background(), CreateInput{
			Amount:      amount("1.00"),
			FolderName:  folder,
			RecordedAt:  base.Add(time.Duration(i) * time.Hour),
			CapturedAt:  base,
			Description: fmt.Sprintf("rec-%d", i),
		})
		require.NoError(t, err)
		ids[i] = rec.ID
	}
	return ids
}

func TestPaginator_Completeness(t *testing.T) {
	store := newTestStore(t)
	p := NewPaginator(store, zap.NewNop())
	ctx := context.Background()

	seedRecords(t, store, "a", 7)
	seedRecords(t, store, "b", 4)

	const limit = 3
	seen := make(map[string]int)
	offset := 0
	for {
		items, hasNext, err := p.Page(ctx, AllFolders(), offset, limit)
		require.NoError(t, err)
		for _, rec := range items {
			seen[rec.ID]++
		}
		if !hasNext {
			break
		}
		offset += limit
	}

	assert.Len(t, seen, 11)
	for id, n := range seen {
		assert.Equal(t, 1, n, "record %s appeared %d times", id, n)
	}
}

func TestPaginator_SortIsRecordedAtDescending(t *testing.T) {
	store := newTestStore(t)
	p := NewPaginator(store, zap.NewNop())
	ctx := context.Background()

	seedRecords(t, store, "a", 5)

	items, _, err := p.Page(ctx, AllFolders(), 0, 5)
	require.NoError(t, err)
	require.Len(t, items, 5)
	for i := 1; i < len(items); i++ {
		prev, cur := items[i-1], items[i]
		less := cur.RecordedAt.Before(prev.RecordedAt) ||
			(cur.RecordedAt.Equal(prev.RecordedAt) && cur.ID > prev.ID)
		assert.True(t, less, "items out of order at %d", i)
	}
}

func TestPaginator_FolderFilter(t *testing.T) {
	store := newTestStore(t)
	p := NewPaginator(store, zap.NewNop())
	ctx := context.Background()

	seedRecords(t, store, "keep", 3)
	seedRecords(t, store, "skip", 3)

	items, hasNext, err := p.Page(ctx, FolderOnly("keep"), 0, 10)
	require.NoError(t, err)
	assert.False(t, hasNext)
	require.Len(t, items, 3)
	for _, rec := range items {
		assert.Equal(t, "keep", rec.FolderName)
	}
}

func TestPaginator_Edges(t *testing.T) {
	store := newTestStore(t)
	p := NewPaginator(store, zap.NewNop())
	ctx := context.Background()

	seedRecords(t, store, models.DefaultFolder, 2)

	t.Run("zero limit reports existence", func(t *testing.T) {
		items, hasNext, err := p.Page(ctx, AllFolders(), 0, 0)
		require.NoError(t, err)
		assert.Empty(t, items)
		assert.True(t, hasNext)
	})

	t.Run("zero limit past the end", func(t *testing.T) {
		items, hasNext, err := p.Page(ctx, AllFolders(), 99, 0)
		require.NoError(t, err)
		assert.Empty(t, items)
		assert.False(t, hasNext)
	})

	t.Run("offset beyond end", func(t *testing.T) {
		items, hasNext, err := p.Page(ctx, AllFolders(), 10, 5)
		require.NoError(t, err)
		assert.Empty(t, items)
		assert.False(t, hasNext)
	})

	t.Run("exact boundary has no next", func(t *testing.T) {
		items, hasNext, err := p.Page(ctx, AllFolders(), 0, 2)
		require.NoError(t, err)
		assert.Len(t, items, 2)
		assert.False(t, hasNext)
	})

	t.Run("negative arguments rejected", func(t *testing.T) {
		_, _, err := p.Page(ctx, AllFolders(), -1, 5)
		assert.ErrorIs(t, err, models.ErrInvalidArgument)
		_, _, err = p.Page(ctx, AllFolders(), 0, -5)
		assert.ErrorIs(t, err, models.ErrInvalidArgument)
	})

	t.Run("empty filter result", func(t *testing.T) {
		items, hasNext, err := p.Page(ctx, FolderOnly("nothing-here"), 0, 5)
		require.NoError(t, err)
		assert.Empty(t, items)
		assert.False(t, hasNext)
	})
}
