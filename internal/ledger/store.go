package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/expense-ledger/internal/models"
	"github.com/garyjia/expense-ledger/internal/repository"
	"github.com/garyjia/expense-ledger/pkg/database"
)

// Store is the authoritative CRUD surface over expense records. Writes are
// serialized behind a single mutex so concurrent callers apply as a strict
// sequence; reads run against SQLite directly and never observe a partial
// write. Every successful mutation emits exactly one change, after the write
// is durable.
type Store struct {
	db     *database.DB
	repo   *repository.RecordRepository
	logger *zap.Logger
	bc     *broadcaster

	writeMu sync.Mutex
	seq     uint64
	closed  bool
}

// Open opens (or creates) the ledger database at cfg.Path and migrates the
// schema to targetVersion. A failed forward migration aborts the open with
// ErrMigration and leaves the prior state intact. A destructive downgrade
// fallback does not fail the open; it is reported through the returned
// MigrateReport and logged prominently.
func Open(cfg database.Config, targetVersion int, logger *zap.Logger) (*Store, database.MigrateReport, error) {
	db, err := database.New(cfg, logger)
	if err != nil {
		return nil, database.MigrateReport{}, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}

	report, err := database.NewMigrator(db, logger).Migrate(targetVersion)
	if err != nil {
		_ = db.Close()
		return nil, report, err
	}
	if report.DataLoss {
		logger.Error("Ledger schema was destructively recreated, prior records are gone",
			zap.String("path", db.Path()),
			zap.Int("from_version", report.From),
			zap.Int("to_version", report.To),
			zap.Error(models.ErrDataLoss))
	}

	return NewStore(db, logger), report, nil
}

// NewStore wraps an already-migrated database handle.
func NewStore(db *database.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		repo:   repository.NewRecordRepository(db, logger),
		logger: logger,
		bc:     newBroadcaster(),
	}
}

// CreateInput carries the caller-supplied fields of a new record. ID and
// display order are assigned by the store.
type CreateInput struct {
	ImageRef     string
	CapturedAt   time.Time
	RecordedAt   time.Time
	SerialNumber string
	Amount       decimal.Decimal
	Description  string
	FolderName   string
	ReceiptType  string
}

// Create persists a new record with a generated id, appended at the tail of
// its folder's display sequence.
func (s *Store) Create(ctx context.Context, in CreateInput) (*models.ExpenseRecord, error) {
	if in.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", models.ErrInvalidArgument)
	}

	rec := &models.ExpenseRecord{
		ID:           uuid.NewString(),
		ImageRef:     in.ImageRef,
		CapturedAt:   in.CapturedAt,
		RecordedAt:   in.RecordedAt,
		SerialNumber: in.SerialNumber,
		Amount:       in.Amount,
		Description:  in.Description,
		FolderName:   in.FolderName,
		ReceiptType:  in.ReceiptType,
	}
	if rec.FolderName == "" {
		rec.FolderName = models.DefaultFolder
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = time.Now()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = rec.CapturedAt
	}

	err := s.write(ctx, func() error {
		return s.db.WithTransaction(func(tx *sql.Tx) error {
			max, ok, err := s.repo.MaxDisplayOrder(tx, rec.FolderName)
			if err != nil {
				return err
			}
			if ok {
				rec.DisplayOrder = max + 1
			}
			return s.repo.Insert(tx, rec)
		})
	}, rec.FolderName)
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// GetByID retrieves one record, or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*models.ExpenseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := s.repo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: record %s", models.ErrNotFound, id)
	}
	return rec, nil
}

// Update replaces every field of an existing record by id. The display order
// is written as given; the store does not recompute it on folder moves.
func (s *Store) Update(ctx context.Context, rec *models.ExpenseRecord) error {
	if rec.FolderName == "" {
		return fmt.Errorf("%w: folder name must not be blank", models.ErrInvalidArgument)
	}
	if rec.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", models.ErrInvalidArgument)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store is closed", models.ErrStorage)
	}

	prior, err := s.repo.GetByID(rec.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	if prior == nil {
		return fmt.Errorf("%w: record %s", models.ErrNotFound, rec.ID)
	}
	if _, err := s.repo.Update(nil, rec); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	if prior.FolderName != rec.FolderName {
		s.emit(prior.FolderName, rec.FolderName)
	} else {
		s.emit(rec.FolderName)
	}
	return nil
}

// Delete removes a record. Deleting an id that is already gone is a silent
// no-op so that undo-after-double-delete stays safe; no change is emitted.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store is closed", models.ErrStorage)
	}

	prior, err := s.repo.GetByID(id)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	if prior == nil {
		return nil
	}
	if _, err := s.repo.Delete(nil, id); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	s.emit(prior.FolderName)
	return nil
}

// Restore re-inserts a full record including its original id and display
// order. An existing id is overwritten, last-writer-wins; externally
// originated ids (sync) are accepted uncritically.
func (s *Store) Restore(ctx context.Context, rec *models.ExpenseRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: record id must not be blank", models.ErrInvalidArgument)
	}
	if rec.FolderName == "" {
		return fmt.Errorf("%w: folder name must not be blank", models.ErrInvalidArgument)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store is closed", models.ErrStorage)
	}

	folders := []string{rec.FolderName}
	prior, err := s.repo.GetByID(rec.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	if prior != nil && prior.FolderName != rec.FolderName {
		folders = append(folders, prior.FolderName)
	}
	if err := s.repo.Upsert(nil, rec); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	s.emit(folders...)
	return nil
}

// BumpImageMutation advances last_image_mutation_at on the owning record;
// called by the image storage collaborator after a rotate or replace.
func (s *Store) BumpImageMutation(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store is closed", models.ErrStorage)
	}

	prior, err := s.repo.GetByID(id)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	if prior == nil {
		return fmt.Errorf("%w: record %s", models.ErrNotFound, id)
	}
	if _, err := s.repo.SetImageMutatedAt(nil, id, time.Now()); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	s.emit(prior.FolderName)
	return nil
}

// AllRecords returns a snapshot of the full record set. Ordering within the
// slice is unspecified; use the Paginator or an OrderSession for ordered
// views.
func (s *Store) AllRecords(ctx context.Context) ([]*models.ExpenseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := s.repo.ListAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return records, nil
}

// FolderRecords returns one folder's records in display order.
func (s *Store) FolderRecords(ctx context.Context, folder string) ([]*models.ExpenseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := s.repo.ListByFolder(folder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return records, nil
}

// Subscribe returns a channel receiving changes and a cancel function. A slow
// consumer is conflated to the latest change, never starved of the final
// state.
func (s *Store) Subscribe() (<-chan Change, func()) {
	return s.bc.subscribe()
}

// Close lets the in-flight write finish, closes the file handle and
// invalidates the store. A new Open against the same path reconstructs a
// fresh handle over whatever file now exists on disk.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.bc.close()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return nil
}

// moveFolderRecords re-homes every record of one folder to another, keeping
// their relative order and appending them after the target's current tail.
// Used by the folder index for rename and delete-with-move.
func (s *Store) moveFolderRecords(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store is closed", models.ErrStorage)
	}

	records, err := s.repo.ListByFolder(from)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	if len(records) == 0 {
		return nil
	}

	err = s.db.WithTransaction(func(tx *sql.Tx) error {
		max, ok, err := s.repo.MaxDisplayOrder(tx, to)
		if err != nil {
			return err
		}
		next := int64(0)
		if ok {
			next = max + 1
		}
		for _, rec := range records {
			if _, err := s.repo.Rehome(tx, rec.ID, to, next); err != nil {
				return err
			}
			next++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	s.emit(from, to)
	return nil
}

// applyDisplayOrder writes dense display orders 0..n-1 for the given id
// sequence, skipping records whose persisted order already matches. Emits
// only when something actually changed.
func (s *Store) applyDisplayOrder(ctx context.Context, folder string, ids []string, prior map[string]int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store is closed", models.ErrStorage)
	}

	changed := 0
	err := s.db.WithTransaction(func(tx *sql.Tx) error {
		for i, id := range ids {
			if order, ok := prior[id]; ok && order == int64(i) {
				continue
			}
			if _, err := s.repo.SetDisplayOrder(tx, id, int64(i)); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	if changed > 0 {
		s.emit(folder)
	}
	return nil
}

// deleteFolderRecords removes every record of a folder outright.
func (s *Store) deleteFolderRecords(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store is closed", models.ErrStorage)
	}

	err := s.db.WithTransaction(func(tx *sql.Tx) error {
		_, err := s.repo.DeleteByFolder(tx, name)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	s.emit(name)
	return nil
}

// write serializes a mutation and emits the change. touched lists the folder
// names invalidated by the mutation; blank entries are dropped. Failures of fn
// are storage failures: the transaction rolled back and the operation did not
// happen.
func (s *Store) write(ctx context.Context, fn func() error, touched ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store is closed", models.ErrStorage)
	}
	if err := fn(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	s.emit(touched...)
	return nil
}

// emit publishes the post-write snapshot. Callers hold writeMu, so the
// snapshot is consistent with the mutation just applied. Synchronous
// observers (the folder index) run before the mutation returns.
func (s *Store) emit(touched ...string) {
	folders := make([]string, 0, len(touched))
	for _, f := range touched {
		if f != "" {
			folders = append(folders, f)
		}
	}

	s.seq++
	c := Change{Seq: s.seq, Folders: folders}

	records, err := s.repo.ListAll()
	if err != nil {
		// The write itself is durable. A failed snapshot read degrades the
		// channel stream, but the touched folders still have to be
		// invalidated, so the synchronous handlers run regardless.
		s.logger.Error("Failed to snapshot records for change emission", zap.Error(err))
		s.bc.notifyHandlers(c)
		return
	}

	c.Records = records
	s.bc.publish(c)
}
