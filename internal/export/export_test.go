package export

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/expense-ledger/internal/models"
)

func sampleRecords() []*models.ExpenseRecord {
	day := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	return []*models.ExpenseRecord{
		{
			ID:           "r1",
			CapturedAt:   day,
			RecordedAt:   day,
			SerialNumber: "A-1",
			Amount:       decimal.RequireFromString("19.99"),
			Description:  "cables",
			FolderName:   "office",
			ReceiptType:  "hardware",
		},
		{
			ID:         "r2",
			CapturedAt: day.Add(24 * time.Hour),
			RecordedAt: day.Add(24 * time.Hour),
			Amount:     decimal.RequireFromString("5.01"),
			FolderName: "office",
		},
	}
}

func TestAmountFormatter(t *testing.T) {
	t.Run("known currency", func(t *testing.T) {
		f := NewAmountFormatter("USD")
		assert.Equal(t, "$19.99", f.Format(decimal.RequireFromString("19.99")))
		assert.Equal(t, "$0.00", f.Format(decimal.Zero))
	})

	t.Run("unknown currency falls back to plain decimal", func(t *testing.T) {
		f := NewAmountFormatter("???")
		assert.Equal(t, "19.99", f.Format(decimal.RequireFromString("19.99")))
	})
}

func TestSumAmounts(t *testing.T) {
	total := SumAmounts(sampleRecords())
	assert.True(t, total.Equal(decimal.RequireFromString("25.00")), "got %s", total)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRecords()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "r1", rows[1][0])
	assert.Equal(t, "19.99", rows[1][4])
	assert.Equal(t, "office", rows[2][6])
}

func TestExcelWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expenses.xlsx")
	w := NewExcelWriter("USD", zap.NewNop())
	require.NoError(t, w.Write(path, "Office", sampleRecords()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	serial, err := f.GetCellValue("Office", "C2")
	require.NoError(t, err)
	assert.Equal(t, "A-1", serial)

	amount, err := f.GetCellValue("Office", "D2")
	require.NoError(t, err)
	assert.Equal(t, "$19.99", amount)

	totalLabel, err := f.GetCellValue("Office", "C4")
	require.NoError(t, err)
	assert.Equal(t, "Total", totalLabel)

	total, err := f.GetCellValue("Office", "D4")
	require.NoError(t, err)
	assert.Equal(t, "$25.00", total)
}
