package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a stock card entry.
type TransactionType string

const (
	TransactionTypeIn  TransactionType = "IN"
	TransactionTypeOut TransactionType = "OUT"
)

// MovementInput describes a stock movement to post. Receivings post inbound
// movements, unstocks post outbound ones; reversals swap the direction.
type MovementInput struct {
	Code          string
	WarehouseID   int64
	ProductID     int64
	Qty           decimal.Decimal
	UnitCost      decimal.Decimal
	BatchOrSerial string
	ExpiryDate    time.Time
	Note          string
	ActorID       int64
	RefModule     string
	RefID         string
}

// StockCardEntry is one posted movement on the perpetual stock card.
type StockCardEntry struct {
	ID            int64
	TxCode        string
	WarehouseID   int64
	ProductID     int64
	TxType        TransactionType
	QtyIn         decimal.Decimal
	QtyOut        decimal.Decimal
	Balance       decimal.Decimal
	UnitCost      decimal.Decimal
	BatchOrSerial string
	ExpiryDate    time.Time
	RefModule     string
	RefID         string
	PostedAt      time.Time
}

// StockCardFilter narrows stock card queries.
type StockCardFilter struct {
	WarehouseID int64
	ProductID   int64
	From        time.Time
	To          time.Time
}

var (
	// ErrInvalidQuantity indicates a non-positive movement quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInsufficientStock indicates an outbound movement exceeding balance.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)
