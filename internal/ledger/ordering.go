package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-ledger/internal/models"
)

// DefaultHistoryLimit bounds the undo stack of an order session.
const DefaultHistoryLimit = 20

// OrderSession edits the manual display order of one folder's records.
// It works on a snapshot taken at construction: moves and removes push the
// previous order onto a bounded linear history, Undo pops it, and Commit
// writes the final order back through the store. There is no redo; a move
// after an undo simply overwrites what was ahead.
type OrderSession struct {
	store  *Store
	logger *zap.Logger
	folder string

	initial []*models.ExpenseRecord
	current []*models.ExpenseRecord
	history [][]*models.ExpenseRecord

	historyLimit int
	onReset      func(folder string)
}

// OrderOption configures an order session.
type OrderOption func(*OrderSession)

// WithHistoryLimit bounds the undo history depth. When the bound is reached
// the oldest undoable step is discarded; the initial order stays reachable
// through Reset.
func WithHistoryLimit(n int) OrderOption {
	return func(s *OrderSession) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithResetCallback sets the external collaborator notified when the session
// is reset. Reset is the one transition with a side effect beyond the
// session itself.
func WithResetCallback(fn func(folder string)) OrderOption {
	return func(s *OrderSession) {
		s.onReset = fn
	}
}

// NewOrderSession snapshots a folder's records in display order and opens an
// editing session over them.
func NewOrderSession(ctx context.Context, store *Store, folder string, opts ...OrderOption) (*OrderSession, error) {
	if folder == "" {
		return nil, fmt.Errorf("%w: folder name must not be blank", models.ErrInvalidArgument)
	}
	records, err := store.FolderRecords(ctx, folder)
	if err != nil {
		return nil, err
	}

	s := &OrderSession{
		store:        store,
		logger:       store.logger,
		folder:       folder,
		initial:      records,
		current:      append([]*models.ExpenseRecord(nil), records...),
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Current returns a copy of the order being edited.
func (s *OrderSession) Current() []*models.ExpenseRecord {
	return append([]*models.ExpenseRecord(nil), s.current...)
}

// Len returns the number of items in the current order.
func (s *OrderSession) Len() int {
	return len(s.current)
}

// CanUndo reports whether an undoable step exists.
func (s *OrderSession) CanUndo() bool {
	return len(s.history) > 0
}

// MoveUp swaps the item at index with its predecessor. Index 0 and
// out-of-range indexes are no-ops that push no history.
func (s *OrderSession) MoveUp(index int) {
	if index <= 0 || index >= len(s.current) {
		return
	}
	s.push()
	s.current[index-1], s.current[index] = s.current[index], s.current[index-1]
}

// MoveDown swaps the item at index with its successor. The last index and
// out-of-range indexes are no-ops that push no history.
func (s *OrderSession) MoveDown(index int) {
	if index < 0 || index >= len(s.current)-1 {
		return
	}
	s.push()
	s.current[index], s.current[index+1] = s.current[index+1], s.current[index]
}

// Remove drops the record with the given id from the order. An id not
// present is a no-op. The record itself stays in the store; the
// delete-with-reorder flow deletes it separately and commits the session.
func (s *OrderSession) Remove(id string) {
	at := -1
	for i, rec := range s.current {
		if rec.ID == id {
			at = i
			break
		}
	}
	if at < 0 {
		return
	}
	s.push()
	s.current = append(s.current[:at:at], s.current[at+1:]...)
}

// Undo restores the order before the last move or remove. A no-op when only
// the initial state remains.
func (s *OrderSession) Undo() {
	if len(s.history) == 0 {
		return
	}
	s.current = s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
}

// Reset returns to the initial order, clears the history and notifies the
// reset collaborator.
func (s *OrderSession) Reset() {
	s.current = append([]*models.ExpenseRecord(nil), s.initial...)
	s.history = nil
	if s.onReset != nil {
		s.onReset(s.folder)
	}
}

// Commit persists the current order as dense display orders 0..n-1, one
// update per changed record, and restarts the session from the committed
// state.
func (s *OrderSession) Commit(ctx context.Context) error {
	ids := make([]string, len(s.current))
	prior := make(map[string]int64, len(s.current))
	for i, rec := range s.current {
		ids[i] = rec.ID
		prior[rec.ID] = rec.DisplayOrder
	}

	if err := s.store.applyDisplayOrder(ctx, s.folder, ids, prior); err != nil {
		return err
	}

	for i, rec := range s.current {
		rec.DisplayOrder = int64(i)
	}
	s.initial = append([]*models.ExpenseRecord(nil), s.current...)
	s.history = nil
	s.logger.Debug("Committed display order",
		zap.String("folder", s.folder),
		zap.Int("items", len(ids)))
	return nil
}

// push records the current order on the history stack, dropping the oldest
// undoable step once the bound is hit.
func (s *OrderSession) push() {
	snapshot := append([]*models.ExpenseRecord(nil), s.current...)
	s.history = append(s.history, snapshot)
	if len(s.history) > s.historyLimit {
		s.history = s.history[1:]
	}
}
