package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/expense-ledger/internal/models"
	"github.com/garyjia/expense-ledger/pkg/database"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const recordColumns = `id, image_ref, captured_at, recorded_at, serial_number,
		amount, description, folder_name, display_order, receipt_type,
		last_image_mutation_at`

// RecordRepository handles expense record database operations. Amounts are
// persisted as exact decimal strings, never as floats.
type RecordRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *database.DB, logger *zap.Logger) *RecordRepository {
	return &RecordRepository{
		db:     db,
		logger: logger,
	}
}

// executor covers both *sql.DB and *sql.Tx
type executor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

func (r *RecordRepository) exec(tx *sql.Tx) executor {
	if tx != nil {
		return tx
	}
	return r.db.DB
}

// Insert persists a new record. Fails on a duplicate id.
func (r *RecordRepository) Insert(tx *sql.Tx, rec *models.ExpenseRecord) error {
	query := `
		INSERT INTO expense_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.exec(tx).Exec(query,
		rec.ID,
		rec.ImageRef,
		rec.CapturedAt,
		rec.RecordedAt,
		rec.SerialNumber,
		rec.Amount.String(),
		rec.Description,
		rec.FolderName,
		rec.DisplayOrder,
		rec.ReceiptType,
		nullableTime(rec.LastImageMutationAt),
	)
	if err != nil {
		r.logger.Error("Failed to insert record", zap.String("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// Upsert writes the full record, replacing any existing row with the same id.
// Used by restore, where last-writer-wins is the contract.
func (r *RecordRepository) Upsert(tx *sql.Tx, rec *models.ExpenseRecord) error {
	query := `
		INSERT OR REPLACE INTO expense_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.exec(tx).Exec(query,
		rec.ID,
		rec.ImageRef,
		rec.CapturedAt,
		rec.RecordedAt,
		rec.SerialNumber,
		rec.Amount.String(),
		rec.Description,
		rec.FolderName,
		rec.DisplayOrder,
		rec.ReceiptType,
		nullableTime(rec.LastImageMutationAt),
	)
	if err != nil {
		r.logger.Error("Failed to upsert record", zap.String("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

// Update replaces every field of an existing record by id.
// Returns false when no row matched.
func (r *RecordRepository) Update(tx *sql.Tx, rec *models.ExpenseRecord) (bool, error) {
	query := `
		UPDATE expense_records SET
			image_ref = ?, captured_at = ?, recorded_at = ?, serial_number = ?,
			amount = ?, description = ?, folder_name = ?, display_order = ?,
			receipt_type = ?, last_image_mutation_at = ?
		WHERE id = ?
	`
	result, err := r.exec(tx).Exec(query,
		rec.ImageRef,
		rec.CapturedAt,
		rec.RecordedAt,
		rec.SerialNumber,
		rec.Amount.String(),
		rec.Description,
		rec.FolderName,
		rec.DisplayOrder,
		rec.ReceiptType,
		nullableTime(rec.LastImageMutationAt),
		rec.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update record", zap.String("id", rec.ID), zap.Error(err))
		return false, fmt.Errorf("failed to update record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete removes a record by id. Deleting an absent id is not an error.
func (r *RecordRepository) Delete(tx *sql.Tx, id string) (bool, error) {
	result, err := r.exec(tx).Exec(`DELETE FROM expense_records WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete record", zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to delete record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// GetByID retrieves a single record, nil when absent.
func (r *RecordRepository) GetByID(id string) (*models.ExpenseRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM expense_records WHERE id = ?`
	rec, err := scanRecord(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get record", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// ListAll retrieves every record. Emission order is unspecified for callers;
// recorded_at keeps scans deterministic.
func (r *RecordRepository) ListAll() ([]*models.ExpenseRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM expense_records
		ORDER BY recorded_at DESC, id ASC`
	return r.queryRecords(query)
}

// ListByFolder retrieves a folder's records in display order.
func (r *RecordRepository) ListByFolder(folder string) ([]*models.ExpenseRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM expense_records
		WHERE folder_name = ?
		ORDER BY display_order ASC, id ASC`
	return r.queryRecords(query, folder)
}

// Page retrieves a window sorted by recorded_at descending, id ascending.
// folder == nil means all folders.
func (r *RecordRepository) Page(folder *string, offset, limit int) ([]*models.ExpenseRecord, error) {
	if folder != nil {
		query := `SELECT ` + recordColumns + ` FROM expense_records
			WHERE folder_name = ?
			ORDER BY recorded_at DESC, id ASC
			LIMIT ? OFFSET ?`
		return r.queryRecords(query, *folder, limit, offset)
	}
	query := `SELECT ` + recordColumns + ` FROM expense_records
		ORDER BY recorded_at DESC, id ASC
		LIMIT ? OFFSET ?`
	return r.queryRecords(query, limit, offset)
}

// Count returns the number of records, optionally scoped to one folder.
func (r *RecordRepository) Count(folder *string) (int64, error) {
	var (
		n   int64
		err error
	)
	if folder != nil {
		err = r.db.QueryRow(
			`SELECT COUNT(*) FROM expense_records WHERE folder_name = ?`, *folder).Scan(&n)
	} else {
		err = r.db.QueryRow(`SELECT COUNT(*) FROM expense_records`).Scan(&n)
	}
	if err != nil {
		r.logger.Error("Failed to count records", zap.Error(err))
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// MaxDisplayOrder returns the highest display order in a folder and whether
// the folder holds any record at all.
func (r *RecordRepository) MaxDisplayOrder(tx *sql.Tx, folder string) (int64, bool, error) {
	var max sql.NullInt64
	err := r.exec(tx).QueryRow(
		`SELECT MAX(display_order) FROM expense_records WHERE folder_name = ?`, folder).Scan(&max)
	if err != nil {
		r.logger.Error("Failed to read max display order", zap.String("folder", folder), zap.Error(err))
		return 0, false, fmt.Errorf("failed to read max display order: %w", err)
	}
	return max.Int64, max.Valid, nil
}

// FolderCounts returns the record count per distinct folder name.
func (r *RecordRepository) FolderCounts() (map[string]int64, error) {
	rows, err := r.db.Query(
		`SELECT folder_name, COUNT(*) FROM expense_records GROUP BY folder_name`)
	if err != nil {
		r.logger.Error("Failed to list folders", zap.Error(err))
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			name string
			n    int64
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("failed to scan folder count: %w", err)
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// FolderStats computes count and exact amount sum for one folder. Amounts
// are summed as decimals in Go because they live in the database as text.
func (r *RecordRepository) FolderStats(folder string) (int64, decimal.Decimal, error) {
	rows, err := r.db.Query(
		`SELECT amount FROM expense_records WHERE folder_name = ?`, folder)
	if err != nil {
		r.logger.Error("Failed to read folder stats", zap.String("folder", folder), zap.Error(err))
		return 0, decimal.Zero, fmt.Errorf("failed to read folder stats: %w", err)
	}
	defer rows.Close()

	var count int64
	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return 0, decimal.Zero, fmt.Errorf("failed to scan amount: %w", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return 0, decimal.Zero, fmt.Errorf("corrupt amount %q: %w", raw, err)
		}
		count++
		total = total.Add(amount)
	}
	return count, total, rows.Err()
}

// DeleteByFolder removes every record in a folder.
func (r *RecordRepository) DeleteByFolder(tx *sql.Tx, folder string) (int64, error) {
	result, err := r.exec(tx).Exec(
		`DELETE FROM expense_records WHERE folder_name = ?`, folder)
	if err != nil {
		r.logger.Error("Failed to delete folder records", zap.String("folder", folder), zap.Error(err))
		return 0, fmt.Errorf("failed to delete folder records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Rehome moves one record to a folder at a given display order.
func (r *RecordRepository) Rehome(tx *sql.Tx, id, folder string, order int64) (bool, error) {
	result, err := r.exec(tx).Exec(
		`UPDATE expense_records SET folder_name = ?, display_order = ? WHERE id = ?`,
		folder, order, id)
	if err != nil {
		r.logger.Error("Failed to rehome record", zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to rehome record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// SetDisplayOrder updates the display order of a single record.
func (r *RecordRepository) SetDisplayOrder(tx *sql.Tx, id string, order int64) (bool, error) {
	result, err := r.exec(tx).Exec(
		`UPDATE expense_records SET display_order = ? WHERE id = ?`, order, id)
	if err != nil {
		r.logger.Error("Failed to set display order", zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to set display order: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// SetImageMutatedAt bumps the image cache-busting timestamp.
func (r *RecordRepository) SetImageMutatedAt(tx *sql.Tx, id string, at time.Time) (bool, error) {
	result, err := r.exec(tx).Exec(
		`UPDATE expense_records SET last_image_mutation_at = ? WHERE id = ?`, at, id)
	if err != nil {
		r.logger.Error("Failed to bump image mutation time", zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to bump image mutation time: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *RecordRepository) queryRecords(query string, args ...interface{}) ([]*models.ExpenseRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Error("Failed to query records", zap.Error(err))
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*models.ExpenseRecord
	for rows.Next() {
		rec, err := scanRecordRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInto(s rowScanner) (*models.ExpenseRecord, error) {
	var (
		rec       models.ExpenseRecord
		rawAmount string
		mutatedAt sql.NullTime
	)
	err := s.Scan(
		&rec.ID,
		&rec.ImageRef,
		&rec.CapturedAt,
		&rec.RecordedAt,
		&rec.SerialNumber,
		&rawAmount,
		&rec.Description,
		&rec.FolderName,
		&rec.DisplayOrder,
		&rec.ReceiptType,
		&mutatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Amount, err = decimal.NewFromString(rawAmount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount %q: %w", rawAmount, err)
	}
	if mutatedAt.Valid {
		rec.LastImageMutationAt = mutatedAt.Time
	}
	return &rec, nil
}

func scanRecord(row *sql.Row) (*models.ExpenseRecord, error) {
	return scanInto(row)
}

func scanRecordRows(rows *sql.Rows) (*models.ExpenseRecord, error) {
	rec, err := scanInto(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}
	return rec, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
