package purchasing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/procureflow/procureflow/internal/lifecycle"
	"github.com/procureflow/procureflow/internal/shared"
)

// Workflow selects which side drives billing reconciliation.
type Workflow string

const (
	// WorkflowStockFirst bills consume received quantity.
	WorkflowStockFirst Workflow = "STOCK_FIRST"
	// WorkflowBillFirst bills consume ordered quantity directly.
	WorkflowBillFirst Workflow = "BILL_FIRST"
)

// PurchaseOrder is the parent document. Status is the aggregate computed by
// the repository after every transition; the service echoes it and never
// derives it.
type PurchaseOrder struct {
	ID           int64
	OrgID        int64
	Number       string
	SupplierID   int64
	Currency     string
	TaxInclusive bool
	Status       string
	IssuedAt     time.Time
}

// OrderLine is the source-of-truth ledger entry every downstream document
// consumes quantity from. Immutable once the order's line set is authorized.
type OrderLine struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	Ordered     decimal.Decimal
	UnitPrice   decimal.Decimal
	DiscountPct decimal.Decimal
	TaxRateID   int64
	Tracking    []string
}

// TaxRate mirrors the masterdata tax configuration.
type TaxRate struct {
	ID            int64
	Name          string
	EffectiveRate decimal.Decimal
}

// Receiving records physically received stock against order lines.
type Receiving struct {
	ID         int64
	OrderID    int64
	Number     string
	Date       time.Time
	Status     lifecycle.Status
	Lines      []ReceivingLine
	BillIDs    []int64
	ReceivedBy int64
}

// ReceivingLine consumes ordered quantity.
type ReceivingLine struct {
	ID            int64
	ReceivingID   int64
	OrderLineID   int64
	Qty           decimal.Decimal
	BatchOrSerial string
	ExpiryDate    time.Time
	WarehouseID   int64
}

// Bill is a supplier invoice. OrderLineID is zero on blind bill lines where
// the product was chosen directly; those skip reconciliation.
type Bill struct {
	ID            int64
	OrderID       int64
	Number        string
	Status        lifecycle.Status
	PaymentStatus string
	Lines         []BillLine
	ServiceLines  []ServiceLine
	ReceivingIDs  []int64
	DueAt         time.Time
}

// BillLine consumes received quantity (stock-first) or ordered quantity
// (bill-first).
type BillLine struct {
	ID          int64
	BillID      int64
	OrderLineID int64
	ProductID   int64
	Qty         decimal.Decimal
	UnitPrice   decimal.Decimal
	DiscountPct decimal.Decimal
	TaxRateID   int64
	AccountID   int64
}

// ServiceLine is an additional cost (freight, duty) on a bill. When
// LandedCost is set its amount must be fully allocated across bill lines
// before the bill can be saved.
type ServiceLine struct {
	ID          int64
	BillID      int64
	Description string
	Amount      decimal.Decimal
	AccountID   int64
	LandedCost  bool
	Allocations []Allocation
}

// Allocation distributes part of a service line's landed cost onto a bill line.
type Allocation struct {
	BillID     int64
	BillLineID int64
	Cost       decimal.Decimal
}

// CreditNote reverses billed quantity.
type CreditNote struct {
	ID      int64
	OrderID int64
	Number  string
	Status  lifecycle.Status
	Lines   []CreditNoteLine
	BillIDs []int64
}

// CreditNoteLine references the bill line it reverses.
type CreditNoteLine struct {
	ID           int64
	CreditNoteID int64
	BillLineID   int64
	OrderLineID  int64
	Qty          decimal.Decimal
}

// Unstock removes previously received stock that was later credited.
type Unstock struct {
	ID           int64
	OrderID      int64
	CreditNoteID int64
	Number       string
	Status       lifecycle.Status
	Lines        []UnstockLine
}

// UnstockLine consumes credited quantity.
type UnstockLine struct {
	ID               int64
	UnstockID        int64
	CreditNoteLineID int64
	OrderLineID      int64
	Qty              decimal.Decimal
	WarehouseID      int64
}

// ListFilters narrows document listings.
type ListFilters struct {
	Status     string
	SupplierID int64
	Search     string
	SortBy     string
	SortDir    string
}

// DocumentSummary is one row of a paginated document listing. All four
// purchasing document tables share these columns.
type DocumentSummary struct {
	ID      int64
	OrderID int64
	Number  string
	Status  lifecycle.Status
	Kind    lifecycle.DocKind
}

// TransitionResult reports a successful status change together with the
// authoritative aggregate order status recomputed by the repository.
type TransitionResult struct {
	DocID       int64
	Kind        lifecycle.DocKind
	Status      lifecycle.Status
	OrderID     int64
	OrderStatus string
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = fmt.Errorf("purchasing: %w", shared.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("purchasing: %w", shared.ErrValidation)
	// ErrInvalidState occurs when an action violates the status workflow.
	ErrInvalidState = fmt.Errorf("purchasing: invalid state transition: %w", shared.ErrValidation)
	// ErrQuantityConflict occurs when available quantity shrank between the
	// client snapshot and authorization.
	ErrQuantityConflict = fmt.Errorf("purchasing: quantity no longer available: %w", shared.ErrConflict)
	// ErrForbidden occurs when the actor lacks the write permission.
	ErrForbidden = fmt.Errorf("purchasing: %w", shared.ErrForbidden)
)
