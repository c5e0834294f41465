package models

import (
	"errors"

	"github.com/garyjia/expense-ledger/pkg/database"
)

// Failure kinds returned by the ledger. Callers match with errors.Is.
var (
	// ErrNotFound means the operation referenced a missing record or folder.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument means the input was rejected before any write
	// happened (blank folder name, duplicate folder, touching "default").
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStorage wraps unexpected storage-layer failures. The operation is
	// guaranteed not to have been applied.
	ErrStorage = errors.New("storage error")

	// ErrMigration and ErrDataLoss come from the schema layer and are
	// re-exported so callers only need one errors package.
	ErrMigration = database.ErrMigration
	ErrDataLoss  = database.ErrDataLoss
)
