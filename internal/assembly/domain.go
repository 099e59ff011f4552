package assembly

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/procureflow/procureflow/internal/lifecycle"
	"github.com/procureflow/procureflow/internal/shared"
)

// AssemblyOrder describes a make-to-stock production run: one output product
// built from component lines. Order → Pick → Result, each with its own
// lifecycle.
type AssemblyOrder struct {
	ID           int64
	OrgID        int64
	Number       string
	ProductID    int64
	QtyToProduce decimal.Decimal
	WarehouseID  int64
	Status       lifecycle.Status
	Date         time.Time
	Lines        []ComponentLine
}

// ComponentLine is one input product with its per-unit usage and wastage.
// WastagePct and WastageQty are mutually exclusive; at most one is non-zero.
type ComponentLine struct {
	ID         int64
	OrderID    int64
	ProductID  int64
	QtyToUse   decimal.Decimal
	WastagePct decimal.Decimal
	WastageQty decimal.Decimal
}

// Pick withdraws component stock for an assembly order.
type Pick struct {
	ID      int64
	OrderID int64
	Number  string
	Status  lifecycle.Status
	Lines   []PickLine
}

// PickLine consumes the required quantity of one component.
type PickLine struct {
	ID              int64
	PickID          int64
	ComponentLineID int64
	ProductID       int64
	Qty             decimal.Decimal
	WarehouseID     int64
}

// ListFilters narrows assembly order listings.
type ListFilters struct {
	Status    string
	ProductID int64
	Search    string
	SortBy    string
	SortDir   string
}

// Result books produced output into stock.
type Result struct {
	ID          int64
	OrderID     int64
	Number      string
	Status      lifecycle.Status
	QtyProduced decimal.Decimal
	WarehouseID int64
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = fmt.Errorf("assembly: %w", shared.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("assembly: %w", shared.ErrValidation)
	// ErrInvalidState occurs when an action violates the status workflow.
	ErrInvalidState = fmt.Errorf("assembly: invalid state transition: %w", shared.ErrValidation)
	// ErrQuantityConflict occurs when component availability shrank between
	// the client snapshot and authorization.
	ErrQuantityConflict = fmt.Errorf("assembly: quantity no longer available: %w", shared.ErrConflict)
	// ErrForbidden occurs when the actor lacks the write permission.
	ErrForbidden = fmt.Errorf("assembly: %w", shared.ErrForbidden)
)
