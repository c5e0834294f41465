package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultFolder is the reserved folder every record belongs to unless moved.
// It always exists, cannot be renamed and cannot be deleted.
const DefaultFolder = "default"

// ExpenseRecord is the sole persisted entity of the ledger.
type ExpenseRecord struct {
	ID                  string          `json:"id"`
	ImageRef            string          `json:"image_ref,omitempty"`
	CapturedAt          time.Time       `json:"captured_at"`
	RecordedAt          time.Time       `json:"recorded_at"`
	SerialNumber        string          `json:"serial_number,omitempty"`
	Amount              decimal.Decimal `json:"amount"`
	Description         string          `json:"description,omitempty"`
	FolderName          string          `json:"folder_name"`
	DisplayOrder        int64           `json:"display_order"`
	ReceiptType         string          `json:"receipt_type,omitempty"`
	LastImageMutationAt time.Time       `json:"last_image_mutation_at,omitempty"`
}

// Clone returns an independent copy of the record.
func (r *ExpenseRecord) Clone() *ExpenseRecord {
	c := *r
	return &c
}

// FolderStats holds the cached aggregate for one folder.
type FolderStats struct {
	Count       int64           `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// FolderInfo pairs a folder name with its record count.
type FolderInfo struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}
