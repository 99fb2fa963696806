// Package batch tracks lot-level quantity and expiry per product. Batches are
// the unit debited and credited by receipt, return and replacement postings
// when a product is batch tracked.
package batch

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status of a batch. Toggled automatically from the quantity: zero means
// Inactive, above zero means Active.
type Status string

const (
	// StatusActive marks a batch holding stock.
	StatusActive Status = "ACTIVE"
	// StatusInactive marks a depleted batch.
	StatusInactive Status = "INACTIVE"
)

// Batch is one tracked lot of a product.
type Batch struct {
	ID        int64
	ProductID int64
	BatchNo   string
	Quantity  decimal.Decimal
	Unit      string
	Expiry    *time.Time
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateInput describes a new batch.
type CreateInput struct {
	ProductID int64
	BatchNo   string
	Quantity  decimal.Decimal
	Unit      string
	Expiry    *time.Time
}

var (
	// ErrDuplicateBatch indicates the batch number already exists for the product.
	ErrDuplicateBatch = errors.New("batch: duplicate batch number")
	// ErrInsufficientBatchQuantity indicates the adjustment would drive the
	// batch quantity negative.
	ErrInsufficientBatchQuantity = errors.New("batch: insufficient quantity")
	// ErrNotFound indicates a missing batch.
	ErrNotFound = errors.New("batch: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("batch: invalid input")
)
