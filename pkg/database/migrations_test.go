package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func schemaVersion(t *testing.T, db *DB) int {
	t.Helper()
	var v int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&v))
	return v
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n))
	return n > 0
}

func TestMigrator_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, zap.NewNop())

	report, err := m.Migrate(LatestVersion)
	require.NoError(t, err)
	assert.Equal(t, 0, report.From)
	assert.Equal(t, LatestVersion, report.To)
	assert.False(t, report.DataLoss)

	assert.Equal(t, LatestVersion, schemaVersion(t, db))
	assert.True(t, tableExists(t, db, "expense_records"))
	assert.True(t, tableExists(t, db, "record_search"))
}

func TestMigrator_ForwardChainFromV1(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, zap.NewNop())

	_, err := m.Migrate(1)
	require.NoError(t, err)
	require.Equal(t, 1, schemaVersion(t, db))

	// a record written under the v1 schema
	_, err = db.Exec(`INSERT INTO expense_records
		(id, captured_at, recorded_at, amount) VALUES ('r1', '2026-01-02', '2026-01-02', '10.00')`)
	require.NoError(t, err)

	report, err := m.Migrate(5)
	require.NoError(t, err)
	assert.Equal(t, 1, report.From)
	assert.Equal(t, 5, report.To)
	assert.Equal(t, 5, schemaVersion(t, db))

	// the old record survived and picked up column defaults
	var folder string
	var order int64
	require.NoError(t, db.QueryRow(
		`SELECT folder_name, display_order FROM expense_records WHERE id = 'r1'`).
		Scan(&folder, &order))
	assert.Equal(t, "default", folder)
	assert.Equal(t, int64(0), order)
}

func TestMigrator_NoopWhenCurrent(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, zap.NewNop())

	_, err := m.Migrate(LatestVersion)
	require.NoError(t, err)
	report, err := m.Migrate(LatestVersion)
	require.NoError(t, err)
	assert.Equal(t, LatestVersion, report.From)
	assert.False(t, report.DataLoss)
}

func TestMigrator_SupportedDowngrade(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, zap.NewNop())

	t.Run("drops the auxiliary table", func(t *testing.T) {
		_, err := m.Migrate(5)
		require.NoError(t, err)

		report, err := m.Migrate(4)
		require.NoError(t, err)
		assert.False(t, report.DataLoss)
		assert.Equal(t, 4, schemaVersion(t, db))
		assert.False(t, tableExists(t, db, "record_search"))
		assert.True(t, tableExists(t, db, "expense_records"))
	})

	t.Run("tolerates the table already being absent", func(t *testing.T) {
		_, err := db.Exec("PRAGMA user_version = 5")
		require.NoError(t, err)

		report, err := m.Migrate(4)
		require.NoError(t, err)
		assert.False(t, report.DataLoss)
		assert.Equal(t, 4, schemaVersion(t, db))
	})
}

func TestMigrator_UnsupportedDowngradeRecreates(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, zap.NewNop())

	_, err := m.Migrate(5)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO expense_records
		(id, captured_at, recorded_at, amount) VALUES ('doomed', '2026-01-02', '2026-01-02', '1')`)
	require.NoError(t, err)

	report, err := m.Migrate(3)
	require.NoError(t, err)
	assert.True(t, report.DataLoss)
	assert.Equal(t, 3, schemaVersion(t, db))

	// schema is fresh: the record is gone, v4+ columns do not exist
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM expense_records`).Scan(&n))
	assert.Equal(t, 0, n)
	_, err = db.Exec(`SELECT receipt_type FROM expense_records`)
	assert.Error(t, err)
	assert.False(t, tableExists(t, db, "record_search"))
}

func TestMigrator_RejectsUnknownTarget(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, zap.NewNop())

	_, err := m.Migrate(0)
	assert.ErrorIs(t, err, ErrMigration)
	_, err = m.Migrate(LatestVersion + 1)
	assert.ErrorIs(t, err, ErrMigration)
}
