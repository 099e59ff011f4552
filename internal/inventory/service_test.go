package inventory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryStockRepo struct {
	entries []StockCardEntry
	nextID  int64
}

func (r *memoryStockRepo) InsertEntry(ctx context.Context, entry StockCardEntry) (StockCardEntry, error) {
	r.nextID++
	entry.ID = r.nextID
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *memoryStockRepo) GetBalance(ctx context.Context, warehouseID, productID int64) (decimal.Decimal, error) {
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.WarehouseID == warehouseID && e.ProductID == productID {
			return e.Balance, nil
		}
	}
	return decimal.Zero, nil
}

func (r *memoryStockRepo) GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	return r.entries, nil
}

func TestPostInboundThenOutbound(t *testing.T) {
	repo := &memoryStockRepo{}
	svc := NewService(repo, ServiceConfig{})
	ctx := context.Background()

	qty := decimal.NewFromInt(5)
	in, err := svc.PostInbound(ctx, MovementInput{Code: "RCV-1", WarehouseID: 1, ProductID: 9, Qty: qty})
	require.NoError(t, err)
	require.Equal(t, "5", in.Balance.String())
	require.Equal(t, TransactionTypeIn, in.TxType)

	out, err := svc.PostOutbound(ctx, MovementInput{Code: "UNS-1", WarehouseID: 1, ProductID: 9, Qty: decimal.NewFromInt(2)})
	require.NoError(t, err)
	require.Equal(t, "3", out.Balance.String())

	balance, err := svc.OnHand(ctx, 1, 9)
	require.NoError(t, err)
	require.Equal(t, "3", balance.String())
}

func TestPostOutboundInsufficientStock(t *testing.T) {
	repo := &memoryStockRepo{}
	svc := NewService(repo, ServiceConfig{})
	_, err := svc.PostOutbound(context.Background(), MovementInput{Code: "UNS-2", WarehouseID: 1, ProductID: 9, Qty: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestPostOutboundNegativeAllowed(t *testing.T) {
	repo := &memoryStockRepo{}
	svc := NewService(repo, ServiceConfig{AllowNegativeStock: true})
	out, err := svc.PostOutbound(context.Background(), MovementInput{Code: "UNS-3", WarehouseID: 1, ProductID: 9, Qty: decimal.NewFromInt(4)})
	require.NoError(t, err)
	require.Equal(t, "-4", out.Balance.String())
}

func TestPostInboundValidation(t *testing.T) {
	svc := NewService(&memoryStockRepo{}, ServiceConfig{})
	_, err := svc.PostInbound(context.Background(), MovementInput{WarehouseID: 1, ProductID: 2, Qty: decimal.Zero})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.PostInbound(context.Background(), MovementInput{ProductID: 2, Qty: decimal.NewFromInt(1)})
	require.Error(t, err)
}
