// Package masterdata exposes read-only lookups against product, location and
// supplier master data. The movement engine treats these records as external
// collaborators: it validates references against them and reads reorder
// policy, but never mutates them.
package masterdata

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Product carries the subset of product master data the engine reads.
type Product struct {
	ID               int64
	Code             string
	Name             string
	Unit             string
	ReorderThreshold decimal.Decimal
	BatchTracked     bool
	IsActive         bool
}

// Location identifies a store, warehouse or kitchen section.
type Location struct {
	ID       int64
	Code     string
	Name     string
	IsActive bool
}

// Supplier identifies a goods supplier.
type Supplier struct {
	ID       int64
	Code     string
	Name     string
	IsActive bool
}

// ErrUnknownReference indicates a referenced master record does not exist or
// is inactive.
var ErrUnknownReference = errors.New("masterdata: unknown reference")

// ProductCatalog is consumed by document workflows to validate product ids
// and read reorder policy.
type ProductCatalog interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
}

// LocationRegistry validates location ids.
type LocationRegistry interface {
	LocationExists(ctx context.Context, id int64) (bool, error)
}

// SupplierRegistry validates supplier ids.
type SupplierRegistry interface {
	SupplierExists(ctx context.Context, id int64) (bool, error)
}
