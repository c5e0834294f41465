package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/garyjia/expense-ledger/internal/models"
)

var csvHeader = []string{
	"id", "recorded_at", "captured_at", "serial_number", "amount",
	"description", "folder_name", "receipt_type",
}

// WriteCSV streams a record snapshot as CSV. Amounts are written as plain
// decimal strings so spreadsheets and scripts can parse them losslessly.
func WriteCSV(w io.Writer, records []*models.ExpenseRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.ID,
			rec.RecordedAt.Format(time.RFC3339),
			rec.CapturedAt.Format(time.RFC3339),
			rec.SerialNumber,
			rec.Amount.String(),
			rec.Description,
			rec.FolderName,
			rec.ReceiptType,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
