package purchasing

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

// Repository provides PostgreSQL backed persistence for purchasing documents.
type Repository struct {
	queries
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{queries: queries{db: pool}, pool: pool}
}

// WithTx runs fn against a transactional repository at RepeatableRead. The
// authorization path relies on this boundary for its quantity re-check.
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

func (q queries) GetOrder(ctx context.Context, id int64) (PurchaseOrder, []OrderLine, error) {
	var order PurchaseOrder
	err := q.db.QueryRow(ctx,
		`SELECT id, org_id, number, supplier_id, currency, tax_inclusive, status, issued_at
		 FROM purchase_orders WHERE id=$1`, id).
		Scan(&order.ID, &order.OrgID, &order.Number, &order.SupplierID,
			&order.Currency, &order.TaxInclusive, &order.Status, &order.IssuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, nil, ErrNotFound
	}
	if err != nil {
		return PurchaseOrder{}, nil, fmt.Errorf("purchasing: get order: %w", err)
	}

	rows, err := q.db.Query(ctx,
		`SELECT id, order_id, product_id, ordered_qty, unit_price, discount_pct, tax_rate_id
		 FROM purchase_order_lines WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, nil, fmt.Errorf("purchasing: order lines: %w", err)
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID,
			&line.Ordered, &line.UnitPrice, &line.DiscountPct, &line.TaxRateID); err != nil {
			return PurchaseOrder{}, nil, err
		}
		lines = append(lines, line)
	}
	return order, lines, rows.Err()
}

// ListOrders returns one page of purchase orders plus the unpaged total.
func (q queries) ListOrders(ctx context.Context, limit, offset int, filters ListFilters) ([]PurchaseOrder, int, error) {
	where, args := listWhere(filters, "o", "o")

	var total int
	if err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM purchase_orders o WHERE 1=1`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("purchasing: count orders: %w", err)
	}

	dataSQL := `SELECT o.id, o.org_id, o.number, o.supplier_id, o.currency, o.tax_inclusive, o.status, o.issued_at
	 FROM purchase_orders o WHERE 1=1` + where + listSort(filters, "o") +
		` LIMIT $` + itoa(len(args)+1) + ` OFFSET $` + itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := q.db.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("purchasing: list orders: %w", err)
	}
	defer rows.Close()

	var out []PurchaseOrder
	for rows.Next() {
		var order PurchaseOrder
		if err := rows.Scan(&order.ID, &order.OrgID, &order.Number, &order.SupplierID,
			&order.Currency, &order.TaxInclusive, &order.Status, &order.IssuedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, order)
	}
	return out, total, rows.Err()
}

// ListDocuments returns one page of document summaries of the given kind.
// The supplier filter reaches through the parent order.
func (q queries) ListDocuments(ctx context.Context, kind lifecycle.DocKind, limit, offset int, filters ListFilters) ([]DocumentSummary, int, error) {
	table, ok := statusTables[kind]
	if !ok {
		return nil, 0, fmt.Errorf("purchasing: no table for kind %s", kind)
	}
	where, args := listWhere(filters, "t", "o")
	from := ` FROM ` + table + ` t JOIN purchase_orders o ON o.id = t.order_id WHERE 1=1`

	var total int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("purchasing: count %s: %w", table, err)
	}

	dataSQL := `SELECT t.id, t.order_id, t.number, t.status` + from + where + listSort(filters, "t") +
		` LIMIT $` + itoa(len(args)+1) + ` OFFSET $` + itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := q.db.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("purchasing: list %s: %w", table, err)
	}
	defer rows.Close()

	var out []DocumentSummary
	for rows.Next() {
		var doc DocumentSummary
		var status string
		if err := rows.Scan(&doc.ID, &doc.OrderID, &doc.Number, &status); err != nil {
			return nil, 0, err
		}
		doc.Status = lifecycle.Status(status)
		doc.Kind = kind
		out = append(out, doc)
	}
	return out, total, rows.Err()
}

// listWhere builds the shared filter clause. docAlias carries status and
// number, orderAlias carries the supplier.
func listWhere(filters ListFilters, docAlias, orderAlias string) (string, []any) {
	where := ""
	args := []any{}
	if filters.Status != "" {
		where += ` AND ` + docAlias + `.status = $` + itoa(len(args)+1)
		args = append(args, filters.Status)
	}
	if filters.SupplierID > 0 {
		where += ` AND ` + orderAlias + `.supplier_id = $` + itoa(len(args)+1)
		args = append(args, filters.SupplierID)
	}
	if filters.Search != "" {
		where += ` AND ` + docAlias + `.number ILIKE $` + itoa(len(args)+1)
		args = append(args, "%"+filters.Search+"%")
	}
	return where, args
}

var listSortColumns = map[string]string{
	"number": "number",
	"status": "status",
}

// listSort whitelists the sort column; anything else falls back to newest
// first by id.
func listSort(filters ListFilters, alias string) string {
	col, ok := listSortColumns[filters.SortBy]
	if !ok {
		return ` ORDER BY ` + alias + `.id DESC`
	}
	dir := " ASC"
	if filters.SortDir == "desc" {
		dir = " DESC"
	}
	return ` ORDER BY ` + alias + `.` + col + dir + `, ` + alias + `.id`
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func (q queries) GetReceiving(ctx context.Context, id int64) (Receiving, error) {
	receivings, err := q.listReceivings(ctx, "r.id=$1", id)
	if err != nil {
		return Receiving{}, err
	}
	if len(receivings) == 0 {
		return Receiving{}, ErrNotFound
	}
	return receivings[0], nil
}

func (q queries) ListReceivings(ctx context.Context, orderID int64) ([]Receiving, error) {
	return q.listReceivings(ctx, "r.order_id=$1", orderID)
}

func (q queries) listReceivings(ctx context.Context, where string, arg any) ([]Receiving, error) {
	rows, err := q.db.Query(ctx,
		`SELECT r.id, r.order_id, r.number, r.date, r.status, r.received_by
		 FROM receivings r WHERE `+where+` ORDER BY r.id`, arg)
	if err != nil {
		return nil, fmt.Errorf("purchasing: list receivings: %w", err)
	}
	defer rows.Close()

	var out []Receiving
	index := make(map[int64]int)
	for rows.Next() {
		var rcv Receiving
		var status string
		if err := rows.Scan(&rcv.ID, &rcv.OrderID, &rcv.Number, &rcv.Date, &status, &rcv.ReceivedBy); err != nil {
			return nil, err
		}
		rcv.Status = lifecycle.Status(status)
		index[rcv.ID] = len(out)
		out = append(out, rcv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}

	lineRows, err := q.db.Query(ctx,
		`SELECT l.id, l.receiving_id, l.order_line_id, l.qty,
		        COALESCE(l.batch_or_serial, ''), COALESCE(l.expiry_date, '0001-01-01'::date), l.warehouse_id
		 FROM receiving_lines l JOIN receivings r ON r.id = l.receiving_id
		 WHERE `+where+` ORDER BY l.id`, arg)
	if err != nil {
		return nil, fmt.Errorf("purchasing: receiving lines: %w", err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var line ReceivingLine
		if err := lineRows.Scan(&line.ID, &line.ReceivingID, &line.OrderLineID, &line.Qty,
			&line.BatchOrSerial, &line.ExpiryDate, &line.WarehouseID); err != nil {
			return nil, err
		}
		if i, ok := index[line.ReceivingID]; ok {
			out[i].Lines = append(out[i].Lines, line)
		}
	}
	return out, lineRows.Err()
}

func (q queries) GetBill(ctx context.Context, id int64) (Bill, error) {
	bills, err := q.listBills(ctx, "b.id=$1", id)
	if err != nil {
		return Bill{}, err
	}
	if len(bills) == 0 {
		return Bill{}, ErrNotFound
	}
	return bills[0], nil
}

func (q queries) ListBills(ctx context.Context, orderID int64) ([]Bill, error) {
	return q.listBills(ctx, "b.order_id=$1", orderID)
}

func (q queries) listBills(ctx context.Context, where string, arg any) ([]Bill, error) {
	rows, err := q.db.Query(ctx,
		`SELECT b.id, b.order_id, b.number, b.status, b.payment_status, b.due_at,
		        COALESCE((SELECT array_agg(br.receiving_id) FROM bill_receivings br WHERE br.bill_id = b.id), '{}')
		 FROM bills b WHERE `+where+` ORDER BY b.id`, arg)
	if err != nil {
		return nil, fmt.Errorf("purchasing: list bills: %w", err)
	}
	defer rows.Close()

	var out []Bill
	index := make(map[int64]int)
	for rows.Next() {
		var bill Bill
		var status string
		if err := rows.Scan(&bill.ID, &bill.OrderID, &bill.Number, &status,
			&bill.PaymentStatus, &bill.DueAt, &bill.ReceivingIDs); err != nil {
			return nil, err
		}
		bill.Status = lifecycle.Status(status)
		index[bill.ID] = len(out)
		out = append(out, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}

	lineRows, err := q.db.Query(ctx,
		`SELECT l.id, l.bill_id, l.order_line_id, l.product_id, l.qty, l.unit_price,
		        l.discount_pct, l.tax_rate_id, l.account_id
		 FROM bill_lines l JOIN bills b ON b.id = l.bill_id
		 WHERE `+where+` ORDER BY l.id`, arg)
	if err != nil {
		return nil, fmt.Errorf("purchasing: bill lines: %w", err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var line BillLine
		if err := lineRows.Scan(&line.ID, &line.BillID, &line.OrderLineID, &line.ProductID,
			&line.Qty, &line.UnitPrice, &line.DiscountPct, &line.TaxRateID, &line.AccountID); err != nil {
			return nil, err
		}
		if i, ok := index[line.BillID]; ok {
			out[i].Lines = append(out[i].Lines, line)
		}
	}
	if err := lineRows.Err(); err != nil {
		return nil, err
	}

	svcRows, err := q.db.Query(ctx,
		`SELECT s.id, s.bill_id, s.description, s.amount, s.account_id, s.landed_cost
		 FROM bill_service_lines s JOIN bills b ON b.id = s.bill_id
		 WHERE `+where+` ORDER BY s.id`, arg)
	if err != nil {
		return nil, fmt.Errorf("purchasing: bill service lines: %w", err)
	}
	defer svcRows.Close()

	svcIndex := make(map[int64]*ServiceLine)
	for svcRows.Next() {
		var svc ServiceLine
		if err := svcRows.Scan(&svc.ID, &svc.BillID, &svc.Description,
			&svc.Amount, &svc.AccountID, &svc.LandedCost); err != nil {
			return nil, err
		}
		if i, ok := index[svc.BillID]; ok {
			out[i].ServiceLines = append(out[i].ServiceLines, svc)
			svcIndex[svc.ID] = &out[i].ServiceLines[len(out[i].ServiceLines)-1]
		}
	}
	if err := svcRows.Err(); err != nil {
		return nil, err
	}

	allocRows, err := q.db.Query(ctx,
		`SELECT a.service_line_id, a.bill_line_id, a.cost
		 FROM bill_allocations a
		 JOIN bill_service_lines s ON s.id = a.service_line_id
		 JOIN bills b ON b.id = s.bill_id
		 WHERE `+where+` ORDER BY a.id`, arg)
	if err != nil {
		return nil, fmt.Errorf("purchasing: bill allocations: %w", err)
	}
	defer allocRows.Close()

	for allocRows.Next() {
		var serviceLineID int64
		var alloc Allocation
		if err := allocRows.Scan(&serviceLineID, &alloc.BillLineID, &alloc.Cost); err != nil {
			return nil, err
		}
		if svc, ok := svcIndex[serviceLineID]; ok {
			alloc.BillID = svc.BillID
			svc.Allocations = append(svc.Allocations, alloc)
		}
	}
	return out, allocRows.Err()
}

func (q queries) GetCreditNote(ctx context.Context, id int64) (CreditNote, error) {
	notes, err := q.listCreditNotes(ctx, "n.id=$1", id)
	if err != nil {
		return CreditNote{}, err
	}
	if len(notes) == 0 {
		return CreditNote{}, ErrNotFound
	}
	return notes[0], nil
}

func (q queries) ListCreditNotes(ctx context.Context, orderID int64) ([]CreditNote, error) {
	return q.listCreditNotes(ctx, "n.order_id=$1", orderID)
}

func (q queries) listCreditNotes(ctx context.Context, where string, arg any) ([]CreditNote, error) {
	rows, err := q.db.Query(ctx,
		`SELECT n.id, n.order_id, n.number, n.status,
		        COALESCE((SELECT array_agg(nb.bill_id) FROM credit_note_bills nb WHERE nb.credit_note_id = n.id), '{}')
		 FROM credit_notes n WHERE `+where+` ORDER BY n.id`, arg)
	if err != nil {
		return nil, fmt.Errorf("purchasing: list credit notes: %w", err)
	}
	defer rows.Close()

	var out []CreditNote
	index := make(map[int64]int)
	for rows.Next() {
		var note CreditNote
		var status string
		if err := rows.Scan(&note.ID, &note.OrderID, &note.Number, &status, &note.BillIDs); err != nil {
			return nil, err
		}
		note.Status = lifecycle.Status(status)
		index[note.ID] = len(out)
		out = append(out, note)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}

	lineRows, err := q.db.Query(ctx,
		`SELECT l.id, l.credit_note_id, l.bill_line_id, l.order_line_id, l.qty
		 FROM credit_note_lines l JOIN credit_notes n ON n.id = l.credit_note_id
		 WHERE `+where+` ORDER BY l.id`, arg)
	if err != nil {
		return nil, fmt.Errorf("purchasing: credit note lines: %w", err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var line CreditNoteLine
		if err := lineRows.Scan(&line.ID, &line.CreditNoteID, &line.BillLineID, &line.OrderLineID, &line.Qty); err != nil {
			return nil, err
		}
		if i, ok := index[line.CreditNoteID]; ok {
			out[i].Lines = append(out[i].Lines, line)
		}
	}
	return out, lineRows.Err()
}

func (q queries) GetUnstock(ctx context.Context, id int64) (Unstock, error) {
	unstocks, err := q.listUnstocks(ctx, "u.id=$1", id)
	if err != nil {
		return Unstock{}, err
	}
	if len(unstocks) == 0 {
		return Unstock{}, ErrNotFound
	}
	return unstocks[0], nil
}

func (q queries) ListUnstocks(ctx context.Context, orderID int64) ([]Unstock, error) {
	return q.listUnstocks(ctx, "u.order_id=$1", orderID)
}

func (q queries) listUnstocks(ctx context.Context, where string, arg any) ([]Unstock, error) {
	rows, err := q.db.Query(ctx,
		`SELECT u.id, u.order_id, u.credit_note_id, u.number, u.status
		 FROM unstocks u WHERE `+where+` ORDER BY u.id`, arg)
	if err != nil {
		return nil, fmt.Errorf("purchasing: list unstocks: %w", err)
	}
	defer rows.Close()

	var out []Unstock
	index := make(map[int64]int)
	for rows.Next() {
		var unstock Unstock
		var status string
		if err := rows.Scan(&unstock.ID, &unstock.OrderID, &unstock.CreditNoteID, &unstock.Number, &status); err != nil {
			return nil, err
		}
		unstock.Status = lifecycle.Status(status)
		index[unstock.ID] = len(out)
		out = append(out, unstock)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}

	lineRows, err := q.db.Query(ctx,
		`SELECT l.id, l.unstock_id, l.credit_note_line_id, l.order_line_id, l.qty, l.warehouse_id
		 FROM unstock_lines l JOIN unstocks u ON u.id = l.unstock_id
		 WHERE `+where+` ORDER BY l.id`, arg)
	if err != nil {
		return nil, fmt.Errorf("purchasing: unstock lines: %w", err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var line UnstockLine
		if err := lineRows.Scan(&line.ID, &line.UnstockID, &line.CreditNoteLineID,
			&line.OrderLineID, &line.Qty, &line.WarehouseID); err != nil {
			return nil, err
		}
		if i, ok := index[line.UnstockID]; ok {
			out[i].Lines = append(out[i].Lines, line)
		}
	}
	return out, lineRows.Err()
}

func (q queries) ListTaxRates(ctx context.Context) (map[int64]TaxRate, error) {
	rows, err := q.db.Query(ctx, `SELECT id, name, effective_rate FROM tax_rates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("purchasing: list tax rates: %w", err)
	}
	defer rows.Close()

	taxes := make(map[int64]TaxRate)
	for rows.Next() {
		var tax TaxRate
		if err := rows.Scan(&tax.ID, &tax.Name, &tax.EffectiveRate); err != nil {
			return nil, err
		}
		taxes[tax.ID] = tax
	}
	return taxes, rows.Err()
}

func (q queries) CreateReceiving(ctx context.Context, rcv Receiving) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`INSERT INTO receivings (order_id, number, date, status, received_by)
		 VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		rcv.OrderID, rcv.Number, rcv.Date, string(rcv.Status), rcv.ReceivedBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("purchasing: insert receiving: %w", err)
	}
	for _, line := range rcv.Lines {
		_, err = q.db.Exec(ctx,
			`INSERT INTO receiving_lines (receiving_id, order_line_id, qty, batch_or_serial, expiry_date, warehouse_id)
			 VALUES ($1,$2,$3,NULLIF($4,''),NULLIF($5,'0001-01-01'::date),$6)`,
			id, line.OrderLineID, line.Qty, line.BatchOrSerial, line.ExpiryDate, line.WarehouseID)
		if err != nil {
			return 0, fmt.Errorf("purchasing: insert receiving line: %w", err)
		}
	}
	return id, nil
}

func (q queries) CreateBill(ctx context.Context, bill Bill) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`INSERT INTO bills (order_id, number, status, payment_status, due_at)
		 VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		bill.OrderID, bill.Number, string(bill.Status), bill.PaymentStatus, bill.DueAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("purchasing: insert bill: %w", err)
	}
	if err := q.insertBillLines(ctx, id, bill.Lines, bill.ServiceLines); err != nil {
		return 0, err
	}
	for _, rcvID := range bill.ReceivingIDs {
		if _, err := q.db.Exec(ctx,
			`INSERT INTO bill_receivings (bill_id, receiving_id) VALUES ($1,$2)`, id, rcvID); err != nil {
			return 0, fmt.Errorf("purchasing: link receiving: %w", err)
		}
	}
	return id, nil
}

// UpdateBill replaces the line set of a draft bill.
func (q queries) UpdateBill(ctx context.Context, update BillUpdate) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE bills SET number=$2 WHERE id=$1 AND status='DRAFT'`, update.BillID, update.Number)
	if err != nil {
		return fmt.Errorf("purchasing: update bill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := q.db.Exec(ctx,
		`DELETE FROM bill_allocations WHERE service_line_id IN
		   (SELECT id FROM bill_service_lines WHERE bill_id=$1)`, update.BillID); err != nil {
		return fmt.Errorf("purchasing: clear allocations: %w", err)
	}
	if _, err := q.db.Exec(ctx, `DELETE FROM bill_service_lines WHERE bill_id=$1`, update.BillID); err != nil {
		return fmt.Errorf("purchasing: clear service lines: %w", err)
	}
	if _, err := q.db.Exec(ctx, `DELETE FROM bill_lines WHERE bill_id=$1`, update.BillID); err != nil {
		return fmt.Errorf("purchasing: clear bill lines: %w", err)
	}
	return q.insertBillLines(ctx, update.BillID, update.Lines, update.ServiceLines)
}

func (q queries) insertBillLines(ctx context.Context, billID int64, lines []BillLine, serviceLines []ServiceLine) error {
	for _, line := range lines {
		_, err := q.db.Exec(ctx,
			`INSERT INTO bill_lines (bill_id, order_line_id, product_id, qty, unit_price, discount_pct, tax_rate_id, account_id)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			billID, line.OrderLineID, line.ProductID, line.Qty, line.UnitPrice,
			line.DiscountPct, line.TaxRateID, line.AccountID)
		if err != nil {
			return fmt.Errorf("purchasing: insert bill line: %w", err)
		}
	}
	for _, svc := range serviceLines {
		var svcID int64
		err := q.db.QueryRow(ctx,
			`INSERT INTO bill_service_lines (bill_id, description, amount, account_id, landed_cost)
			 VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			billID, svc.Description, svc.Amount, svc.AccountID, svc.LandedCost).Scan(&svcID)
		if err != nil {
			return fmt.Errorf("purchasing: insert service line: %w", err)
		}
		for _, alloc := range svc.Allocations {
			if _, err := q.db.Exec(ctx,
				`INSERT INTO bill_allocations (service_line_id, bill_line_id, cost) VALUES ($1,$2,$3)`,
				svcID, alloc.BillLineID, alloc.Cost); err != nil {
				return fmt.Errorf("purchasing: insert allocation: %w", err)
			}
		}
	}
	return nil
}

func (q queries) CreateCreditNote(ctx context.Context, note CreditNote) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`INSERT INTO credit_notes (order_id, number, status) VALUES ($1,$2,$3) RETURNING id`,
		note.OrderID, note.Number, string(note.Status)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("purchasing: insert credit note: %w", err)
	}
	for _, line := range note.Lines {
		if _, err := q.db.Exec(ctx,
			`INSERT INTO credit_note_lines (credit_note_id, bill_line_id, order_line_id, qty)
			 VALUES ($1,$2,$3,$4)`, id, line.BillLineID, line.OrderLineID, line.Qty); err != nil {
			return 0, fmt.Errorf("purchasing: insert credit note line: %w", err)
		}
	}
	for _, billID := range note.BillIDs {
		if _, err := q.db.Exec(ctx,
			`INSERT INTO credit_note_bills (credit_note_id, bill_id) VALUES ($1,$2)`, id, billID); err != nil {
			return 0, fmt.Errorf("purchasing: link bill: %w", err)
		}
	}
	return id, nil
}

func (q queries) CreateUnstock(ctx context.Context, unstock Unstock) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx,
		`INSERT INTO unstocks (order_id, credit_note_id, number, status)
		 VALUES ($1,$2,$3,$4) RETURNING id`,
		unstock.OrderID, unstock.CreditNoteID, unstock.Number, string(unstock.Status)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("purchasing: insert unstock: %w", err)
	}
	for _, line := range unstock.Lines {
		if _, err := q.db.Exec(ctx,
			`INSERT INTO unstock_lines (unstock_id, credit_note_line_id, order_line_id, qty, warehouse_id)
			 VALUES ($1,$2,$3,$4,$5)`,
			id, line.CreditNoteLineID, line.OrderLineID, line.Qty, line.WarehouseID); err != nil {
			return 0, fmt.Errorf("purchasing: insert unstock line: %w", err)
		}
	}
	return id, nil
}

var statusTables = map[lifecycle.DocKind]string{
	lifecycle.KindReceiving:  "receivings",
	lifecycle.KindBill:       "bills",
	lifecycle.KindCreditNote: "credit_notes",
	lifecycle.KindUnstock:    "unstocks",
}

func (q queries) UpdateStatus(ctx context.Context, kind lifecycle.DocKind, id int64, status lifecycle.Status) error {
	table, ok := statusTables[kind]
	if !ok {
		return fmt.Errorf("purchasing: no status table for kind %s", kind)
	}
	tag, err := q.db.Exec(ctx,
		`UPDATE `+table+` SET status=$2, updated_at=now() WHERE id=$1`, id, string(status))
	if err != nil {
		return fmt.Errorf("purchasing: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RefreshOrderStatus recomputes the order's aggregate status from its
// authorized child documents and persists it. The result is authoritative;
// callers echo it instead of deriving their own.
func (q queries) RefreshOrderStatus(ctx context.Context, orderID int64) (string, error) {
	var status string
	err := q.db.QueryRow(ctx,
		`WITH agg AS (
		   SELECT
		     COALESCE((SELECT SUM(ol.ordered_qty) FROM purchase_order_lines ol WHERE ol.order_id=$1), 0) AS ordered,
		     COALESCE((SELECT SUM(rl.qty) FROM receiving_lines rl
		               JOIN receivings r ON r.id = rl.receiving_id
		               WHERE r.order_id=$1 AND r.status IN ('AUTHORIZED','COMPLETED')), 0) AS received,
		     COALESCE((SELECT SUM(bl.qty) FROM bill_lines bl
		               JOIN bills b ON b.id = bl.bill_id
		               WHERE b.order_id=$1 AND b.status IN ('AUTHORIZED','COMPLETED')
		                 AND bl.order_line_id <> 0), 0) AS billed
		 )
		 UPDATE purchase_orders o SET status = CASE
		     WHEN agg.received >= agg.ordered AND agg.billed >= agg.ordered AND agg.ordered > 0 THEN 'CLOSED'
		     WHEN agg.received > 0 OR agg.billed > 0 THEN 'IN_PROGRESS'
		     ELSE 'OPEN'
		   END, updated_at = now()
		 FROM agg WHERE o.id=$1
		 RETURNING o.status`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("purchasing: refresh order status: %w", err)
	}
	return status, nil
}
