package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-ledger/internal/models"
)

// FolderFilter scopes a page query to all folders or exactly one.
type FolderFilter struct {
	folder *string
}

// AllFolders matches every record.
func AllFolders() FolderFilter {
	return FolderFilter{}
}

// FolderOnly matches records in exactly the named folder.
func FolderOnly(name string) FolderFilter {
	return FolderFilter{folder: &name}
}

// Paginator produces windowed views over the store, sorted by recorded_at
// descending with ties broken by id. The sort is stable across calls against
// an unchanged set and independent of display order, which belongs to the
// manual gallery arrangement only.
//
// Pages are stateless: any change emission invalidates open cursors, and
// callers re-page from offset 0 or a remembered anchor key rather than a raw
// index.
type Paginator struct {
	store  *Store
	logger *zap.Logger
}

// NewPaginator creates a paginator over a store.
func NewPaginator(store *Store, logger *zap.Logger) *Paginator {
	return &Paginator{
		store:  store,
		logger: logger,
	}
}

// Page returns the window [offset, offset+limit) of the filtered view and
// whether more records follow it. A zero limit returns an empty page whose
// hasNext tells if anything matches past the offset; an offset past the end
// returns an empty page with hasNext false.
func (p *Paginator) Page(ctx context.Context, filter FolderFilter, offset, limit int) ([]*models.ExpenseRecord, bool, error) {
	if offset < 0 || limit < 0 {
		return nil, false, fmt.Errorf("%w: offset and limit must not be negative", models.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	if limit == 0 {
		total, err := p.store.repo.Count(filter.folder)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", models.ErrStorage, err)
		}
		return []*models.ExpenseRecord{}, total > int64(offset), nil
	}

	// Fetch one past the window to learn hasNext without a second count.
	items, err := p.store.repo.Page(filter.folder, offset, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	hasNext := len(items) > limit
	if hasNext {
		items = items[:limit]
	}
	if items == nil {
		items = []*models.ExpenseRecord{}
	}
	return items, hasNext, nil
}
