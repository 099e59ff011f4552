package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository provides PostgreSQL backed persistence for stock cards.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertEntry appends a stock card entry and returns it with its ID.
func (r *Repository) InsertEntry(ctx context.Context, entry StockCardEntry) (StockCardEntry, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO stock_card (tx_code, warehouse_id, product_id, tx_type, qty_in, qty_out, balance,
		                         unit_cost, batch_or_serial, expiry_date, ref_module, ref_id, posted_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,'0001-01-01'::date),$11,$12,$13)
		 RETURNING id`,
		entry.TxCode, entry.WarehouseID, entry.ProductID, entry.TxType,
		entry.QtyIn, entry.QtyOut, entry.Balance, entry.UnitCost,
		entry.BatchOrSerial, entry.ExpiryDate, entry.RefModule, entry.RefID, entry.PostedAt)
	if err := row.Scan(&entry.ID); err != nil {
		return StockCardEntry{}, fmt.Errorf("inventory: insert entry: %w", err)
	}
	return entry, nil
}

// GetBalance returns the latest balance for a product in a warehouse.
func (r *Repository) GetBalance(ctx context.Context, warehouseID, productID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.pool.QueryRow(ctx,
		`SELECT balance FROM stock_card
		 WHERE warehouse_id=$1 AND product_id=$2
		 ORDER BY id DESC LIMIT 1`, warehouseID, productID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("inventory: get balance: %w", err)
	}
	return balance, nil
}

// GetStockCard lists entries matching the filter, newest first.
func (r *Repository) GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tx_code, warehouse_id, product_id, tx_type, qty_in, qty_out, balance,
		        unit_cost, COALESCE(batch_or_serial, ''), COALESCE(expiry_date, '0001-01-01'::date),
		        ref_module, ref_id, posted_at
		 FROM stock_card
		 WHERE ($1 = 0 OR warehouse_id = $1)
		   AND ($2 = 0 OR product_id = $2)
		   AND ($3::timestamptz IS NULL OR posted_at >= $3)
		   AND ($4::timestamptz IS NULL OR posted_at <= $4)
		 ORDER BY id DESC`,
		filter.WarehouseID, filter.ProductID, nullTime(filter.From), nullTime(filter.To))
	if err != nil {
		return nil, fmt.Errorf("inventory: stock card: %w", err)
	}
	defer rows.Close()

	var entries []StockCardEntry
	for rows.Next() {
		var e StockCardEntry
		if err := rows.Scan(&e.ID, &e.TxCode, &e.WarehouseID, &e.ProductID, &e.TxType,
			&e.QtyIn, &e.QtyOut, &e.Balance, &e.UnitCost, &e.BatchOrSerial, &e.ExpiryDate,
			&e.RefModule, &e.RefID, &e.PostedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
