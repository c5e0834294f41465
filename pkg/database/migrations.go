package database

import (
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Schema version history. Every forward step is additive so that older code
// can keep reading a newer file.
const (
	versionBase         = 1 // expense_records table
	versionFolderName   = 2 // folder_name column
	versionDisplayOrder = 3 // display_order column
	versionReceiptMeta  = 4 // receipt_type + last_image_mutation_at columns
	versionRecordSearch = 5 // auxiliary record_search table
	LatestVersion       = versionRecordSearch
)

var (
	// ErrMigration means the forward chain could not complete. The open
	// aborts; the version marker and schema are left untouched.
	ErrMigration = errors.New("migration failed")

	// ErrDataLoss marks the destructive recreate fallback. Non-fatal: the
	// open proceeds on a fresh schema.
	ErrDataLoss = errors.New("schema recreated with data loss")
)

// Migration is one forward schema step.
type Migration struct {
	Version int
	Name    string
	Apply   func(tx *sql.Tx) error
}

func execAll(tx *sql.Tx, stmts ...string) error {
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

var forwardMigrations = []Migration{
	{
		Version: versionBase,
		Name:    "base_schema",
		Apply: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS expense_records (
					id            TEXT PRIMARY KEY,
					image_ref     TEXT NOT NULL DEFAULT '',
					captured_at   DATETIME NOT NULL,
					recorded_at   DATETIME NOT NULL,
					serial_number TEXT NOT NULL DEFAULT '',
					amount        TEXT NOT NULL DEFAULT '0',
					description   TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE INDEX IF NOT EXISTS idx_expense_records_recorded_at
					ON expense_records (recorded_at DESC, id ASC)`,
			)
		},
	},
	{
		Version: versionFolderName,
		Name:    "folder_name",
		Apply: func(tx *sql.Tx) error {
			return execAll(tx,
				`ALTER TABLE expense_records ADD COLUMN folder_name TEXT NOT NULL DEFAULT 'default'`,
				`CREATE INDEX IF NOT EXISTS idx_expense_records_folder
					ON expense_records (folder_name)`,
			)
		},
	},
	{
		Version: versionDisplayOrder,
		Name:    "display_order",
		Apply: func(tx *sql.Tx) error {
			return execAll(tx,
				`ALTER TABLE expense_records ADD COLUMN display_order INTEGER NOT NULL DEFAULT 0`,
			)
		},
	},
	{
		Version: versionReceiptMeta,
		Name:    "receipt_metadata",
		Apply: func(tx *sql.Tx) error {
			return execAll(tx,
				`ALTER TABLE expense_records ADD COLUMN receipt_type TEXT NOT NULL DEFAULT ''`,
				`ALTER TABLE expense_records ADD COLUMN last_image_mutation_at DATETIME`,
			)
		},
	},
	{
		Version: versionRecordSearch,
		Name:    "record_search",
		Apply: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS record_search (
					record_id TEXT PRIMARY KEY,
					content   TEXT NOT NULL DEFAULT ''
				)`,
			)
		},
	},
}

// MigrateReport describes what Migrate did to the on-disk schema.
type MigrateReport struct {
	From     int
	To       int
	DataLoss bool
}

// Migrator moves the on-disk schema version to a target version.
type Migrator struct {
	db     *DB
	logger *zap.Logger
}

// NewMigrator creates a new migrator
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	return &Migrator{
		db:     db,
		logger: logger,
	}
}

// Migrate brings the schema to target. Upgrades apply the ordered forward
// chain inside one transaction, so a partly-applied chain is never visible:
// the version marker advances together with the last step or not at all.
//
// Downgrades: the single supported step drops the record_search table and is
// idempotent; it never fails the open. Any other downgrade falls back to
// destructive recreation, reported (not returned) through the DataLoss flag.
func (m *Migrator) Migrate(target int) (MigrateReport, error) {
	if target < 1 || target > LatestVersion {
		return MigrateReport{}, fmt.Errorf("%w: unknown target version %d", ErrMigration, target)
	}

	current, err := m.currentVersion()
	if err != nil {
		return MigrateReport{}, fmt.Errorf("%w: reading schema version: %v", ErrMigration, err)
	}
	report := MigrateReport{From: current, To: target}

	switch {
	case current == target:
		return report, nil

	case current < target:
		m.logger.Info("Applying forward migrations",
			zap.Int("from", current),
			zap.Int("to", target))
		if err := m.upgrade(current, target); err != nil {
			return report, err
		}
		return report, nil

	case current == versionRecordSearch && target == versionRecordSearch-1:
		// The one supported backward transition. Errors are swallowed
		// because losing the auxiliary table is better than failing to
		// open the store at all.
		m.logger.Info("Applying downgrade", zap.Int("from", current), zap.Int("to", target))
		if err := m.dropRecordSearch(target); err != nil {
			m.logger.Error("Downgrade step failed, continuing", zap.Error(err))
		}
		return report, nil

	default:
		m.logger.Error("No migration path, recreating schema",
			zap.String("path", m.db.Path()),
			zap.Int("from", current),
			zap.Int("to", target),
			zap.Error(ErrDataLoss))
		if err := m.recreate(target); err != nil {
			return report, fmt.Errorf("%w: recreating schema: %v", ErrMigration, err)
		}
		report.DataLoss = true
		return report, nil
	}
}

func (m *Migrator) currentVersion() (int, error) {
	var v int
	if err := m.db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func (m *Migrator) upgrade(current, target int) error {
	return m.db.WithTransaction(func(tx *sql.Tx) error {
		for _, mig := range forwardMigrations {
			if mig.Version <= current || mig.Version > target {
				continue
			}
			m.logger.Info("Applying migration",
				zap.Int("version", mig.Version),
				zap.String("name", mig.Name))
			if err := mig.Apply(tx); err != nil {
				return fmt.Errorf("%w: step %d (%s): %v", ErrMigration, mig.Version, mig.Name, err)
			}
		}
		return setVersion(tx, target)
	})
}

// dropRecordSearch is the auxiliary-table downgrade. Idempotent: the DROP
// tolerates an absent table.
func (m *Migrator) dropRecordSearch(target int) error {
	return m.db.WithTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DROP TABLE IF EXISTS record_search`); err != nil {
			return err
		}
		return setVersion(tx, target)
	})
}

// recreate drops every user table and rebuilds the schema forward to target.
func (m *Migrator) recreate(target int) error {
	return m.db.WithTransaction(func(tx *sql.Tx) error {
		rows, err := tx.Query(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
		if err != nil {
			return err
		}
		var tables []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return err
			}
			tables = append(tables, name)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, name := range tables {
			if _, err := tx.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %q`, name)); err != nil {
				return err
			}
		}

		for _, mig := range forwardMigrations {
			if mig.Version > target {
				break
			}
			if err := mig.Apply(tx); err != nil {
				return err
			}
		}
		return setVersion(tx, target)
	})
}

// setVersion writes the on-disk version marker. The pragma lives in the
// database header and participates in the surrounding transaction.
func setVersion(tx *sql.Tx, v int) error {
	_, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v))
	return err
}
