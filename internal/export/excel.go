package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/expense-ledger/internal/models"
)

// ExcelWriter turns a record snapshot into an xlsx workbook. It is stateless
// with respect to the ledger: callers hand it a snapshot (all records or one
// folder's subset) and it never writes back.
type ExcelWriter struct {
	formatter *AmountFormatter
	logger    *zap.Logger
}

// NewExcelWriter creates an Excel writer formatting amounts in the given
// ISO 4217 currency.
func NewExcelWriter(currency string, logger *zap.Logger) *ExcelWriter {
	return &ExcelWriter{
		formatter: NewAmountFormatter(currency),
		logger:    logger,
	}
}

var excelHeader = []string{
	"Recorded", "Captured", "Serial", "Amount", "Description", "Folder", "Receipt Type",
}

// Write creates a workbook with one sheet holding the snapshot, a header row
// and a total row, and saves it to outputPath.
func (w *ExcelWriter) Write(outputPath, sheetName string, records []*models.ExpenseRecord) error {
	f, err := w.build(sheetName, records)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(outputPath); err != nil {
		w.logger.Error("Failed to save workbook", zap.String("path", outputPath), zap.Error(err))
		return fmt.Errorf("failed to save workbook: %w", err)
	}

	w.logger.Info("Exported workbook",
		zap.String("path", outputPath),
		zap.Int("records", len(records)))
	return nil
}

// WriteTo streams the workbook to wr instead of a file.
func (w *ExcelWriter) WriteTo(wr io.Writer, sheetName string, records []*models.ExpenseRecord) error {
	f, err := w.build(sheetName, records)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(wr); err != nil {
		return fmt.Errorf("failed to stream workbook: %w", err)
	}
	return nil
}

func (w *ExcelWriter) build(sheetName string, records []*models.ExpenseRecord) (*excelize.File, error) {
	if sheetName == "" {
		sheetName = "Expenses"
	}

	f := excelize.NewFile()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	for col, title := range excelHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to compute header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, title); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell: %w", err)
		}
	}

	total := SumAmounts(records)
	for i, rec := range records {
		row := i + 2
		values := []interface{}{
			rec.RecordedAt.Format(time.DateOnly),
			rec.CapturedAt.Format(time.DateOnly),
			rec.SerialNumber,
			w.formatter.Format(rec.Amount),
			rec.Description,
			rec.FolderName,
			rec.ReceiptType,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to compute cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell: %w", err)
			}
		}
	}

	totalRow := len(records) + 2
	totalLabel, _ := excelize.CoordinatesToCellName(3, totalRow)
	totalCell, _ := excelize.CoordinatesToCellName(4, totalRow)
	if err := f.SetCellValue(sheetName, totalLabel, "Total"); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set total label: %w", err)
	}
	if err := f.SetCellValue(sheetName, totalCell, w.formatter.Format(total)); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set total cell: %w", err)
	}

	return f, nil
}
