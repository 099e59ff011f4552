package assembly

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procureflow/procureflow/internal/lifecycle"
	"github.com/procureflow/procureflow/internal/platform/db"
)

type dbtx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository provides PostgreSQL backed persistence for assembly documents.
type Repository struct {
	queries
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{queries: queries{db: pool}, pool: pool}
}

// WithTx runs fn against a transactional repository at RepeatableRead.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{queries{db: tx}})
	})
}

type txRepository struct {
	queries
}

type queries struct {
	db dbtx
}

func (q queries) GetOrder(ctx context.Context, id int64) (AssemblyOrder, error) {
	var order AssemblyOrder
	var status string
	err := q.db.QueryRow(ctx,
		`SELECT id, org_id, number, product_id, qty_to_produce, warehouse_id, status, date
		 FROM assembly_orders WHERE id=$1`, id).
		Scan(&order.ID, &order.OrgID, &order.Number, &order.ProductID,
			&order.QtyToProduce, &order.WarehouseID, &status, &order.Date)
	if errors.Is(err, pgx.ErrNoRows) {
		return AssemblyOrder{}, ErrNotFound
	}
	if err != nil {
		return AssemblyOrder{}, fmt.Errorf("assembly: get order: %w", err)
	}
	order.Status = lifecycle.Status(status)

	rows, err := q.db.Query(ctx,
		`SELECT id, order_id, product_id, qty_to_use, wastage_pct, wastage_qty
		 FROM assembly_order_lines WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return AssemblyOrder{}, fmt.Errorf("assembly: order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line ComponentLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID,
			&line.QtyToUse, &line.WastagePct, &line.WastageQty); err != nil {
			return AssemblyOrder{}, err
		}
		order.Lines = append(order.Lines, line)
	}
	return order, rows.Err()
}

// ListOrders returns one page of assembly orders, headers only, plus the
// unpaged total.
func (q queries) ListOrders(ctx context.Context, limit, offset int, filters ListFilters) ([]AssemblyOrder, int, error) {
	where := ""
	args := []any{}
	if filters.Status != "" {
		where += ` AND o.status = $` + strconv.Itoa(len(args)+1)
		args = append(args, filters.Status)
	}
	if filters.ProductID > 0 {
		where += ` AND o.product_id = $` + strconv.Itoa(len(args)+1)
		args = append(args, filters.ProductID)
	}
	if filters.Search != "" {
		where += ` AND o.number ILIKE $` + strconv.Itoa(len(args)+1)
		args = append(args, "%"+filters.Search+"%")
	}

	var total int
	if err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM assembly_orders o WHERE 1=1`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("assembly: count orders: %w", err)
	}

	dataSQL := `SELECT o.id, o.org_id, o.number, o.product_id, o.qty_to_produce, o.warehouse_id, o.status, o.date
	 FROM assembly_orders o WHERE 1=1` + where + listSort(filters) +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := q.db.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("assembly: list orders: %w", err)
	}
	defer rows.Close()

	var out []AssemblyOrder
	for rows.Next() {
		var order AssemblyOrder
		var status string
		if err := rows.Scan(&order.ID, &order.OrgID, &order.Number, &order.ProductID,
			&order.QtyToProduce, &order.WarehouseID, &status, &order.Date); err != nil {
			return nil, 0, err
		}
		order.Status = lifecycle.Status(status)
		out = append(out, order)
	}
	return out, total, rows.Err()
}

var listSortColumns = map[string]string{
	"number": "number",
	"status": "status",
	"date":   "date",
}

// listSort whitelists the sort column; anything else falls back to newest
// first by id.
func listSort(filters ListFilters) string {
	col, ok := listSortColumns[filters.SortBy]
	if !ok {
		return ` ORDER BY o.id DESC`
	}
	dir := " ASC"
	if filters.SortDir == "desc" {
		dir = " DESC"
	}
	return ` ORDER BY o.` + col + dir + `, o.id`
}

func (q queries) GetPick(ctx context.Context, id int64) (Pick, error) {
	picks, err := q.listPicks(ctx, "p.id=$1", id)
	if err != nil {
		return Pick{}, err
	}
	if len(picks) == 0 {
		return Pick{}, ErrNotFound
	}
	return picks[0], nil
}

func (q queries) ListPicks(ctx context.Context, orderID int64) ([]Pick, error) {
	return q.listPicks(ctx, "p.order_id=$1", orderID)
}

func (q queries) listPicks(ctx context.Context, where string, arg any) ([]Pick, error) {
	rows, err := q.db.Query(ctx,
		`SELECT p.id, p.order_id, p.number, p.status
		 FROM assembly_picks p WHERE `+where+` ORDER BY p.id`, arg)
	if err != nil {
		return nil, fmt.Errorf("assembly: list picks: %w", err)
	}
	defer rows.Close()

	var out []Pick
	index := make(map[int64]int)
	for rows.Next() {
		var pick Pick
		var status string
		if err := rows.Scan(&pick.ID, &pick.OrderID, &pick.Number, &status); err != nil {
			return nil, err
		}
		pick.Status = lifecycle.Status(status)
		index[pick.ID] = len(out)
		out = append(out, pick)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}

	lineRows, err := q.db.Query(ctx,
		`SELECT l.id, l.pick_id, l.component_line_id, l.product_id, l.qty, l.warehouse_id
		 FROM assembly_pick_lines l JOIN assembly_picks p ON p.id = l.pick_id
		 WHERE `+where+` ORDER BY l.id`, arg)
	if err != nil {
		return nil, fmt.Errorf("assembly: pick lines: %w", err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var line PickLine
		if err := lineRows.Scan(&line.ID, &line.PickID, &line.ComponentLineID,
			&line.ProductID, &line.Qty, &line.WarehouseID); err != nil {
			return nil, err
		}
		if i, ok := index[line.PickID]; ok {
			out[i].Lines = append(out[i].Lines, line)
		}
	}
	return out, lineRows.Err()
}

func (q queries) GetResult(ctx context.Context, id int64) (Result, error) {
	var result Result
	var status string
	err := q.db.QueryRow(ctx,
		`SELECT id, order_id, number, status, qty_produced, warehouse_id
		 FROM assembly_results WHERE id=$1`, id).
		Scan(&result.ID, &result.OrderID, &result.Number, &status,
			&result.QtyProduced, &result.WarehouseID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Result{}, ErrNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("assembly: get result: %w", err)
	}
	result.Status = lifecycle.Status(status)
	return result, nil
}

func (q queries) ListResults(ctx context.Context, orderID int64) ([]Result, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, order_id, number, status, qty_produced, warehouse_id
		 FROM assembly_results WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("assembly: list results: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var result Result
		var status string
		if err := rows.Scan(&result.ID, &result.OrderID, &result.Number, &status,
			&result.QtyProduced, &result.WarehouseID); err != nil {
			return nil, err
		}
		result.Status = lifecycle.Status(status)
		out = append(out, result)
	}
	return out, rows.Err()
}

func (q queries) CreateOrder(ctx context.Context, order AssemblyOrder) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`INSERT INTO assembly_orders (org_id, number, product_id, qty_to_produce, warehouse_id, status, date)
		 VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		order.OrgID, order.Number, order.ProductID, order.QtyToProduce,
		order.WarehouseID, string(order.Status), order.Date).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("assembly: insert order: %w", err)
	}
	for _, line := range order.Lines {
		if _, err := q.db.Exec(ctx,
			`INSERT INTO assembly_order_lines (order_id, product_id, qty_to_use, wastage_pct, wastage_qty)
			 VALUES ($1,$2,$3,$4,$5)`,
			id, line.ProductID, line.QtyToUse, line.WastagePct, line.WastageQty); err != nil {
			return 0, fmt.Errorf("assembly: insert order line: %w", err)
		}
	}
	return id, nil
}

func (q queries) CreatePick(ctx context.Context, pick Pick) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`INSERT INTO assembly_picks (order_id, number, status) VALUES ($1,$2,$3) RETURNING id`,
		pick.OrderID, pick.Number, string(pick.Status)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("assembly: insert pick: %w", err)
	}
	for _, line := range pick.Lines {
		if _, err := q.db.Exec(ctx,
			`INSERT INTO assembly_pick_lines (pick_id, component_line_id, product_id, qty, warehouse_id)
			 VALUES ($1,$2,$3,$4,$5)`,
			id, line.ComponentLineID, line.ProductID, line.Qty, line.WarehouseID); err != nil {
			return 0, fmt.Errorf("assembly: insert pick line: %w", err)
		}
	}
	return id, nil
}

func (q queries) CreateResult(ctx context.Context, result Result) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`INSERT INTO assembly_results (order_id, number, status, qty_produced, warehouse_id)
		 VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		result.OrderID, result.Number, string(result.Status),
		result.QtyProduced, result.WarehouseID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("assembly: insert result: %w", err)
	}
	return id, nil
}

var statusTables = map[lifecycle.DocKind]string{
	lifecycle.KindAssembly: "assembly_orders",
	lifecycle.KindPick:     "assembly_picks",
	lifecycle.KindResult:   "assembly_results",
}

func (q queries) UpdateStatus(ctx context.Context, kind lifecycle.DocKind, id int64, status lifecycle.Status) error {
	table, ok := statusTables[kind]
	if !ok {
		return fmt.Errorf("assembly: no status table for kind %s", kind)
	}
	tag, err := q.db.Exec(ctx,
		`UPDATE `+table+` SET status=$2, updated_at=now() WHERE id=$1`, id, string(status))
	if err != nil {
		return fmt.Errorf("assembly: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RefreshOrderStatus recomputes the order's aggregate progress column from
// authorized picks and results. Unlike the lifecycle status, progress is
// server-derived and echoed to clients verbatim.
func (q queries) RefreshOrderStatus(ctx context.Context, orderID int64) (string, error) {
	var status string
	err := q.db.QueryRow(ctx,
		`WITH agg AS (
		   SELECT
		     o.qty_to_produce AS target,
		     COALESCE((SELECT SUM(r.qty_produced) FROM assembly_results r
		               WHERE r.order_id = o.id AND r.status IN ('AUTHORIZED','COMPLETED')), 0) AS produced,
		     EXISTS (SELECT 1 FROM assembly_picks p
		             WHERE p.order_id = o.id AND p.status IN ('AUTHORIZED','COMPLETED')) AS picking
		   FROM assembly_orders o WHERE o.id=$1
		 )
		 UPDATE assembly_orders o SET progress = CASE
		     WHEN agg.produced >= agg.target THEN 'PRODUCED'
		     WHEN agg.produced > 0 THEN 'PARTIAL'
		     WHEN agg.picking THEN 'PICKING'
		     ELSE 'PENDING'
		   END, updated_at = now()
		 FROM agg WHERE o.id=$1
		 RETURNING o.progress`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("assembly: refresh order status: %w", err)
	}
	return status, nil
}
