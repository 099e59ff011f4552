package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	InsertEntry(ctx context.Context, entry StockCardEntry) (StockCardEntry, error)
	GetBalance(ctx context.Context, warehouseID, productID int64) (decimal.Decimal, error)
	GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error)
}

// Service coordinates inventory operations.
type Service struct {
	repo     RepositoryPort
	allowNeg bool
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	return &Service{repo: repo, allowNeg: cfg.AllowNegativeStock}
}

// PostInbound posts an inbound movement (e.g. an authorized receiving line).
func (s *Service) PostInbound(ctx context.Context, input MovementInput) (StockCardEntry, error) {
	if input.WarehouseID == 0 || input.ProductID == 0 {
		return StockCardEntry{}, errors.New("inventory: warehouse and product required")
	}
	if !input.Qty.IsPositive() {
		return StockCardEntry{}, ErrInvalidQuantity
	}
	balance, err := s.repo.GetBalance(ctx, input.WarehouseID, input.ProductID)
	if err != nil {
		return StockCardEntry{}, err
	}
	entry := entryFromInput(input, TransactionTypeIn)
	entry.QtyIn = input.Qty
	entry.Balance = balance.Add(input.Qty)
	return s.repo.InsertEntry(ctx, entry)
}

// PostOutbound posts an outbound movement (e.g. an authorized unstock line).
func (s *Service) PostOutbound(ctx context.Context, input MovementInput) (StockCardEntry, error) {
	if input.WarehouseID == 0 || input.ProductID == 0 {
		return StockCardEntry{}, errors.New("inventory: warehouse and product required")
	}
	if !input.Qty.IsPositive() {
		return StockCardEntry{}, ErrInvalidQuantity
	}
	balance, err := s.repo.GetBalance(ctx, input.WarehouseID, input.ProductID)
	if err != nil {
		return StockCardEntry{}, err
	}
	next := balance.Sub(input.Qty)
	if next.IsNegative() && !s.allowNeg {
		return StockCardEntry{}, ErrInsufficientStock
	}
	entry := entryFromInput(input, TransactionTypeOut)
	entry.QtyOut = input.Qty
	entry.Balance = next
	return s.repo.InsertEntry(ctx, entry)
}

// OnHand returns the current balance for a product in a warehouse.
func (s *Service) OnHand(ctx context.Context, warehouseID, productID int64) (decimal.Decimal, error) {
	return s.repo.GetBalance(ctx, warehouseID, productID)
}

// StockCard lists entries for reporting.
func (s *Service) StockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	return s.repo.GetStockCard(ctx, filter)
}

func entryFromInput(input MovementInput, txType TransactionType) StockCardEntry {
	return StockCardEntry{
		TxCode:        input.Code,
		WarehouseID:   input.WarehouseID,
		ProductID:     input.ProductID,
		TxType:        txType,
		UnitCost:      input.UnitCost,
		BatchOrSerial: input.BatchOrSerial,
		ExpiryDate:    input.ExpiryDate,
		RefModule:     input.RefModule,
		RefID:         input.RefID,
		PostedAt:      time.Now(),
	}
}
