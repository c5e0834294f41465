package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/garyjia/expense-ledger/internal/models"
)

// FolderIndex derives the folder set and per-folder aggregates from the
// record set. Folders are not rows: one exists exactly while a record
// references it, except "default" which always exists, plus session-local
// placeholders created by CreateFolder before any record lands in them.
//
// Stats are computed lazily and cached; a change emission removes (not
// updates) the entries of every touched folder, so cached and
// recomputed-from-scratch values always agree.
type FolderIndex struct {
	store  *Store
	logger *zap.Logger

	mu           sync.Mutex
	stats        map[string]models.FolderStats
	gens         map[string]uint64
	placeholders map[string]struct{}
}

// NewFolderIndex builds an index bound to a store's change stream.
func NewFolderIndex(store *Store, logger *zap.Logger) *FolderIndex {
	idx := &FolderIndex{
		store:        store,
		logger:       logger,
		stats:        make(map[string]models.FolderStats),
		gens:         make(map[string]uint64),
		placeholders: make(map[string]struct{}),
	}
	store.bc.onChange("folder-index", idx.handleChange)
	return idx
}

// handleChange runs synchronously inside the store's write path, before the
// mutation returns to its caller. Touched folders lose their cache entry; a
// placeholder that gained its first record graduates to a derived folder.
func (idx *FolderIndex) handleChange(c Change) {
	present := make(map[string]struct{}, len(c.Records))
	for _, rec := range c.Records {
		present[rec.FolderName] = struct{}{}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, name := range c.Folders {
		delete(idx.stats, name)
		idx.gens[name]++
	}
	for name := range idx.placeholders {
		if _, ok := present[name]; ok {
			delete(idx.placeholders, name)
		}
	}
}

// ListFolders returns every folder with its record count: derived folders,
// session placeholders at zero, and always "default".
func (idx *FolderIndex) ListFolders(ctx context.Context) ([]models.FolderInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counts, err := idx.store.repo.FolderCounts()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}

	idx.mu.Lock()
	for name := range idx.placeholders {
		if _, ok := counts[name]; !ok {
			counts[name] = 0
		}
	}
	idx.mu.Unlock()

	if _, ok := counts[models.DefaultFolder]; !ok {
		counts[models.DefaultFolder] = 0
	}

	folders := make([]models.FolderInfo, 0, len(counts))
	for name, n := range counts {
		folders = append(folders, models.FolderInfo{Name: name, Count: n})
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	return folders, nil
}

// StatsFor returns count and exact amount total for a folder, from cache when
// warm. Unknown names report zero stats rather than failing, matching the
// derived-folder model where an empty folder and an absent one are the same
// thing.
func (idx *FolderIndex) StatsFor(ctx context.Context, name string) (models.FolderStats, error) {
	if name == "" {
		return models.FolderStats{}, fmt.Errorf("%w: folder name must not be blank", models.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return models.FolderStats{}, err
	}

	idx.mu.Lock()
	if cached, ok := idx.stats[name]; ok {
		idx.mu.Unlock()
		return cached, nil
	}
	gen := idx.gens[name]
	idx.mu.Unlock()

	count, total, err := idx.store.repo.FolderStats(name)
	if err != nil {
		return models.FolderStats{}, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	stats := models.FolderStats{Count: count, TotalAmount: total}

	idx.storeStats(name, gen, stats)
	return stats, nil
}

// storeStats commits a lazily computed aggregate to the cache, unless the
// folder was invalidated while the scan ran. A scan that started before a
// write can finish after that write's invalidation; caching its result would
// pin a pre-write aggregate forever, so a moved generation discards the fill.
func (idx *FolderIndex) storeStats(name string, gen uint64, stats models.FolderStats) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.gens[name] != gen {
		return
	}
	idx.stats[name] = stats
}

// CreateFolder declares a new, empty folder. Purely in-memory until a record
// is placed in it; it stays visible for the rest of the session.
func (idx *FolderIndex) CreateFolder(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: folder name must not be blank", models.ErrInvalidArgument)
	}
	exists, err := idx.folderExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: folder %q already exists", models.ErrInvalidArgument, name)
	}

	idx.mu.Lock()
	idx.placeholders[name] = struct{}{}
	idx.mu.Unlock()

	idx.logger.Debug("Created folder placeholder", zap.String("folder", name))
	return nil
}

// RenameFolder re-homes every record from one folder name to another.
// "default" cannot be renamed; the new name must be free (comparison is
// case-sensitive).
func (idx *FolderIndex) RenameFolder(ctx context.Context, oldName, newName string) error {
	if oldName == models.DefaultFolder {
		return fmt.Errorf("%w: cannot rename the %q folder", models.ErrInvalidArgument, models.DefaultFolder)
	}
	if newName == "" {
		return fmt.Errorf("%w: folder name must not be blank", models.ErrInvalidArgument)
	}
	newExists, err := idx.folderExists(ctx, newName)
	if err != nil {
		return err
	}
	if newExists {
		return fmt.Errorf("%w: folder %q already exists", models.ErrInvalidArgument, newName)
	}
	oldExists, err := idx.folderExists(ctx, oldName)
	if err != nil {
		return err
	}
	if !oldExists {
		return fmt.Errorf("%w: folder %q", models.ErrNotFound, oldName)
	}

	idx.mu.Lock()
	_, wasPlaceholder := idx.placeholders[oldName]
	if wasPlaceholder {
		delete(idx.placeholders, oldName)
		idx.placeholders[newName] = struct{}{}
	}
	delete(idx.stats, oldName)
	delete(idx.stats, newName)
	idx.mu.Unlock()

	if wasPlaceholder {
		return nil
	}
	// The move emits a change for both folders, which drops any entries the
	// cache regained in the meantime.
	return idx.store.moveFolderRecords(ctx, oldName, newName)
}

// DeleteFolder removes a folder. With moveTo set, member records are
// re-homed there (an unresolvable target falls back to "default"); without
// it, they are deleted outright. "default" cannot be deleted.
func (idx *FolderIndex) DeleteFolder(ctx context.Context, name string, moveTo *string) error {
	if name == models.DefaultFolder {
		return fmt.Errorf("%w: cannot delete the %q folder", models.ErrInvalidArgument, models.DefaultFolder)
	}
	exists, err := idx.folderExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: folder %q", models.ErrNotFound, name)
	}

	idx.mu.Lock()
	delete(idx.placeholders, name)
	delete(idx.stats, name)
	idx.mu.Unlock()

	if moveTo == nil {
		return idx.store.deleteFolderRecords(ctx, name)
	}

	target := *moveTo
	if target == name {
		return fmt.Errorf("%w: cannot move folder %q into itself", models.ErrInvalidArgument, name)
	}
	if target != models.DefaultFolder {
		resolvable, err := idx.folderExists(ctx, target)
		if err != nil {
			return err
		}
		if !resolvable {
			idx.logger.Warn("Unresolvable move target, falling back to default folder",
				zap.String("folder", name),
				zap.String("move_to", target))
			target = models.DefaultFolder
		}
	}

	idx.mu.Lock()
	delete(idx.stats, target)
	idx.mu.Unlock()

	return idx.store.moveFolderRecords(ctx, name, target)
}

// folderExists reports whether name is derived from records, a session
// placeholder, or "default".
func (idx *FolderIndex) folderExists(ctx context.Context, name string) (bool, error) {
	if name == models.DefaultFolder {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	idx.mu.Lock()
	_, placeholder := idx.placeholders[name]
	idx.mu.Unlock()
	if placeholder {
		return true, nil
	}

	count, err := idx.store.repo.Count(&name)
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return count > 0, nil
}
