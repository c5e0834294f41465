package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-ledger/internal/models"
)

func sessionIDs(s *OrderSession) []string {
	records := s.Current()
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	return ids
}

func newOrderFixture(t *testing.T, n int) (*Store, *OrderSession, []string) {
	t.Helper()
	store := newTestStore(t)
	ctx := context.Background()

	created := make([]string, n)
	for i := 0; i < n; i++ {
		rec, err := store.Create(ctx, CreateInput{Amount: amount("1"), FolderName: "gallery"})
		require.NoError(t, err)
		created[i] = rec.ID
	}

	session, err := NewOrderSession(ctx, store, "gallery")
	require.NoError(t, err)
	require.Equal(t, created, sessionIDs(session), "session must open in display order")
	return store, session, created
}

func TestOrderSession_Moves(t *testing.T) {
	_, s, ids := newOrderFixture(t, 3)

	t.Run("move up swaps with predecessor", func(t *testing.T) {
		s.MoveUp(1)
		assert.Equal(t, []string{ids[1], ids[0], ids[2]}, sessionIDs(s))
	})

	t.Run("move down swaps with successor", func(t *testing.T) {
		s.MoveDown(1)
		assert.Equal(t, []string{ids[1], ids[2], ids[0]}, sessionIDs(s))
	})

	t.Run("boundary moves are no-ops without history", func(t *testing.T) {
		s.Reset()
		require.False(t, s.CanUndo())

		s.MoveUp(0)
		s.MoveDown(2)
		s.MoveUp(-1)
		s.MoveDown(99)
		assert.Equal(t, ids, sessionIDs(s))
		assert.False(t, s.CanUndo())
	})
}

func TestOrderSession_UndoRoundTrip(t *testing.T) {
	_, s, ids := newOrderFixture(t, 4)

	before := sessionIDs(s)
	s.MoveUp(2)
	require.NotEqual(t, before, sessionIDs(s))
	s.Undo()
	assert.Equal(t, before, sessionIDs(s))

	t.Run("undo at initial state is a no-op", func(t *testing.T) {
		s.Undo()
		assert.Equal(t, ids, sessionIDs(s))
	})

	t.Run("move after undo overwrites what was ahead", func(t *testing.T) {
		s.MoveUp(1)
		s.MoveUp(2)
		s.Undo()
		s.MoveDown(0)
		s.Undo()
		assert.Equal(t, []string{ids[1], ids[0], ids[2], ids[3]}, sessionIDs(s))
	})
}

func TestOrderSession_Remove(t *testing.T) {
	_, s, ids := newOrderFixture(t, 3)

	s.Remove(ids[1])
	assert.Equal(t, []string{ids[0], ids[2]}, sessionIDs(s))

	t.Run("unknown id is a no-op", func(t *testing.T) {
		was := s.CanUndo()
		s.Remove("not-in-order")
		assert.Equal(t, []string{ids[0], ids[2]}, sessionIDs(s))
		assert.Equal(t, was, s.CanUndo())
	})

	t.Run("remove is undoable", func(t *testing.T) {
		s.Undo()
		assert.Equal(t, ids, sessionIDs(s))
	})
}

func TestOrderSession_BoundedHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := store.Create(ctx, CreateInput{Amount: amount("1"), FolderName: "g"})
		require.NoError(t, err)
	}

	s, err := NewOrderSession(ctx, store, "g", WithHistoryLimit(2))
	require.NoError(t, err)
	start := sessionIDs(s)

	s.MoveUp(1)
	afterFirst := sessionIDs(s)
	s.MoveUp(2)
	s.MoveUp(3)

	// only the two most recent steps are undoable
	s.Undo()
	s.Undo()
	assert.Equal(t, afterFirst, sessionIDs(s))
	assert.False(t, s.CanUndo())
	s.Undo()
	assert.Equal(t, afterFirst, sessionIDs(s))

	// the initial order stays reachable through reset
	s.Reset()
	assert.Equal(t, start, sessionIDs(s))
}

func TestOrderSession_ResetNotifiesCollaborator(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := store.Create(ctx, CreateInput{Amount: amount("1"), FolderName: "g"})
		require.NoError(t, err)
	}

	var resetFolder string
	s, err := NewOrderSession(ctx, store, "g", WithResetCallback(func(folder string) {
		resetFolder = folder
	}))
	require.NoError(t, err)

	before := sessionIDs(s)
	s.MoveUp(1)
	s.Reset()

	assert.Equal(t, "g", resetFolder)
	assert.Equal(t, before, sessionIDs(s))
	assert.False(t, s.CanUndo())
}

func TestOrderSession_Commit(t *testing.T) {
	store, s, _ := newOrderFixture(t, 4)
	ctx := context.Background()

	s.MoveUp(3)
	s.MoveUp(2)
	want := sessionIDs(s)
	require.NoError(t, s.Commit(ctx))

	records, err := store.FolderRecords(ctx, "gallery")
	require.NoError(t, err)
	require.Len(t, records, 4)

	got := make([]string, len(records))
	orders := make(map[int64]bool)
	for i, rec := range records {
		got[i] = rec.ID
		orders[rec.DisplayOrder] = true
	}
	assert.Equal(t, want, got)
	// dense 0..n-1, no duplicates
	for i := int64(0); i < 4; i++ {
		assert.True(t, orders[i], "missing display order %d", i)
	}

	t.Run("session continues from the committed state", func(t *testing.T) {
		assert.False(t, s.CanUndo())
		s.Undo()
		assert.Equal(t, want, sessionIDs(s))
	})
}

func TestOrderSession_DeleteWithReorder(t *testing.T) {
	store, s, ids := newOrderFixture(t, 3)
	ctx := context.Background()

	// drop the middle record from the order, delete it, commit the rest
	s.Remove(ids[1])
	require.NoError(t, store.Delete(ctx, ids[1]))
	require.NoError(t, s.Commit(ctx))

	records, err := store.FolderRecords(ctx, "gallery")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, ids[0], records[0].ID)
	assert.Equal(t, ids[2], records[1].ID)
	assert.Equal(t, int64(0), records[0].DisplayOrder)
	assert.Equal(t, int64(1), records[1].DisplayOrder)
}

func TestOrderSession_BlankFolderRejected(t *testing.T) {
	store := newTestStore(t)
	_, err := NewOrderSession(context.Background(), store, "")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}
