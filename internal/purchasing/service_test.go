package purchasing

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/procureflow/procureflow/internal/inventory"
	"github.com/procureflow/procureflow/internal/lifecycle"
	"github.com/procureflow/procureflow/internal/shared"
)

type memoryRepo struct {
	orders      map[int64]PurchaseOrder
	orderLines  map[int64][]OrderLine
	receivings  map[int64]Receiving
	bills       map[int64]Bill
	creditNotes map[int64]CreditNote
	unstocks    map[int64]Unstock
	taxes       map[int64]TaxRate
	nextID      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders:      make(map[int64]PurchaseOrder),
		orderLines:  make(map[int64][]OrderLine),
		receivings:  make(map[int64]Receiving),
		bills:       make(map[int64]Bill),
		creditNotes: make(map[int64]CreditNote),
		unstocks:    make(map[int64]Unstock),
		taxes:       make(map[int64]TaxRate),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetOrder(ctx context.Context, id int64) (PurchaseOrder, []OrderLine, error) {
	order, ok := r.orders[id]
	if !ok {
		return PurchaseOrder{}, nil, ErrNotFound
	}
	return order, append([]OrderLine(nil), r.orderLines[id]...), nil
}

func (r *memoryRepo) GetReceiving(ctx context.Context, id int64) (Receiving, error) {
	rcv, ok := r.receivings[id]
	if !ok {
		return Receiving{}, ErrNotFound
	}
	return rcv, nil
}

func (r *memoryRepo) GetBill(ctx context.Context, id int64) (Bill, error) {
	bill, ok := r.bills[id]
	if !ok {
		return Bill{}, ErrNotFound
	}
	return bill, nil
}

func (r *memoryRepo) GetCreditNote(ctx context.Context, id int64) (CreditNote, error) {
	note, ok := r.creditNotes[id]
	if !ok {
		return CreditNote{}, ErrNotFound
	}
	return note, nil
}

func (r *memoryRepo) GetUnstock(ctx context.Context, id int64) (Unstock, error) {
	unstock, ok := r.unstocks[id]
	if !ok {
		return Unstock{}, ErrNotFound
	}
	return unstock, nil
}

func (r *memoryRepo) ListReceivings(ctx context.Context, orderID int64) ([]Receiving, error) {
	var out []Receiving
	for _, rcv := range r.receivings {
		if rcv.OrderID == orderID {
			out = append(out, rcv)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListBills(ctx context.Context, orderID int64) ([]Bill, error) {
	var out []Bill
	for _, bill := range r.bills {
		if bill.OrderID == orderID {
			out = append(out, bill)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListCreditNotes(ctx context.Context, orderID int64) ([]CreditNote, error) {
	var out []CreditNote
	for _, note := range r.creditNotes {
		if note.OrderID == orderID {
			out = append(out, note)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListUnstocks(ctx context.Context, orderID int64) ([]Unstock, error) {
	var out []Unstock
	for _, unstock := range r.unstocks {
		if unstock.OrderID == orderID {
			out = append(out, unstock)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListTaxRates(ctx context.Context) (map[int64]TaxRate, error) {
	return r.taxes, nil
}

func (r *memoryRepo) ListOrders(ctx context.Context, limit, offset int, filters ListFilters) ([]PurchaseOrder, int, error) {
	var all []PurchaseOrder
	for _, order := range r.orders {
		if filters.Status != "" && order.Status != filters.Status {
			continue
		}
		if filters.SupplierID > 0 && order.SupplierID != filters.SupplierID {
			continue
		}
		if filters.Search != "" && !strings.Contains(order.Number, filters.Search) {
			continue
		}
		all = append(all, order)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return pageOf(all, limit, offset), len(all), nil
}

func (r *memoryRepo) ListDocuments(ctx context.Context, kind lifecycle.DocKind, limit, offset int, filters ListFilters) ([]DocumentSummary, int, error) {
	var all []DocumentSummary
	add := func(id, orderID int64, number string, status lifecycle.Status) {
		if filters.Status != "" && string(status) != filters.Status {
			return
		}
		if filters.Search != "" && !strings.Contains(number, filters.Search) {
			return
		}
		all = append(all, DocumentSummary{ID: id, OrderID: orderID, Number: number, Status: status, Kind: kind})
	}
	switch kind {
	case lifecycle.KindReceiving:
		for _, rcv := range r.receivings {
			add(rcv.ID, rcv.OrderID, rcv.Number, rcv.Status)
		}
	case lifecycle.KindBill:
		for _, bill := range r.bills {
			add(bill.ID, bill.OrderID, bill.Number, bill.Status)
		}
	case lifecycle.KindCreditNote:
		for _, note := range r.creditNotes {
			add(note.ID, note.OrderID, note.Number, note.Status)
		}
	case lifecycle.KindUnstock:
		for _, unstock := range r.unstocks {
			add(unstock.ID, unstock.OrderID, unstock.Number, unstock.Status)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return pageOf(all, limit, offset), len(all), nil
}

func pageOf[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) nextID() int64 {
	tx.repo.nextID++
	return tx.repo.nextID
}

func (tx *memoryTx) GetOrder(ctx context.Context, id int64) (PurchaseOrder, []OrderLine, error) {
	return tx.repo.GetOrder(ctx, id)
}
func (tx *memoryTx) GetReceiving(ctx context.Context, id int64) (Receiving, error) {
	return tx.repo.GetReceiving(ctx, id)
}
func (tx *memoryTx) GetBill(ctx context.Context, id int64) (Bill, error) {
	return tx.repo.GetBill(ctx, id)
}
func (tx *memoryTx) GetCreditNote(ctx context.Context, id int64) (CreditNote, error) {
	return tx.repo.GetCreditNote(ctx, id)
}
func (tx *memoryTx) GetUnstock(ctx context.Context, id int64) (Unstock, error) {
	return tx.repo.GetUnstock(ctx, id)
}
func (tx *memoryTx) ListReceivings(ctx context.Context, orderID int64) ([]Receiving, error) {
	return tx.repo.ListReceivings(ctx, orderID)
}
func (tx *memoryTx) ListBills(ctx context.Context, orderID int64) ([]Bill, error) {
	return tx.repo.ListBills(ctx, orderID)
}
func (tx *memoryTx) ListCreditNotes(ctx context.Context, orderID int64) ([]CreditNote, error) {
	return tx.repo.ListCreditNotes(ctx, orderID)
}
func (tx *memoryTx) ListUnstocks(ctx context.Context, orderID int64) ([]Unstock, error) {
	return tx.repo.ListUnstocks(ctx, orderID)
}
func (tx *memoryTx) ListTaxRates(ctx context.Context) (map[int64]TaxRate, error) {
	return tx.repo.ListTaxRates(ctx)
}
func (tx *memoryTx) ListOrders(ctx context.Context, limit, offset int, filters ListFilters) ([]PurchaseOrder, int, error) {
	return tx.repo.ListOrders(ctx, limit, offset, filters)
}
func (tx *memoryTx) ListDocuments(ctx context.Context, kind lifecycle.DocKind, limit, offset int, filters ListFilters) ([]DocumentSummary, int, error) {
	return tx.repo.ListDocuments(ctx, kind, limit, offset, filters)
}

func (tx *memoryTx) CreateReceiving(ctx context.Context, rcv Receiving) (int64, error) {
	id := tx.nextID()
	rcv.ID = id
	for i := range rcv.Lines {
		rcv.Lines[i].ID = tx.nextID()
		rcv.Lines[i].ReceivingID = id
	}
	tx.repo.receivings[id] = rcv
	return id, nil
}

func (tx *memoryTx) CreateBill(ctx context.Context, bill Bill) (int64, error) {
	id := tx.nextID()
	bill.ID = id
	for i := range bill.Lines {
		bill.Lines[i].ID = tx.nextID()
		bill.Lines[i].BillID = id
	}
	tx.repo.bills[id] = bill
	return id, nil
}

func (tx *memoryTx) UpdateBill(ctx context.Context, update BillUpdate) error {
	bill, ok := tx.repo.bills[update.BillID]
	if !ok {
		return ErrNotFound
	}
	bill.Lines = update.Lines
	bill.ServiceLines = update.ServiceLines
	tx.repo.bills[update.BillID] = bill
	return nil
}

func (tx *memoryTx) CreateCreditNote(ctx context.Context, note CreditNote) (int64, error) {
	id := tx.nextID()
	note.ID = id
	for i := range note.Lines {
		note.Lines[i].ID = tx.nextID()
		note.Lines[i].CreditNoteID = id
	}
	tx.repo.creditNotes[id] = note
	return id, nil
}

func (tx *memoryTx) CreateUnstock(ctx context.Context, unstock Unstock) (int64, error) {
	id := tx.nextID()
	unstock.ID = id
	for i := range unstock.Lines {
		unstock.Lines[i].ID = tx.nextID()
		unstock.Lines[i].UnstockID = id
	}
	tx.repo.unstocks[id] = unstock
	return id, nil
}

func (tx *memoryTx) UpdateStatus(ctx context.Context, kind lifecycle.DocKind, id int64, status lifecycle.Status) error {
	switch kind {
	case lifecycle.KindReceiving:
		rcv := tx.repo.receivings[id]
		rcv.Status = status
		tx.repo.receivings[id] = rcv
	case lifecycle.KindBill:
		bill := tx.repo.bills[id]
		bill.Status = status
		tx.repo.bills[id] = bill
	case lifecycle.KindCreditNote:
		note := tx.repo.creditNotes[id]
		note.Status = status
		tx.repo.creditNotes[id] = note
	case lifecycle.KindUnstock:
		unstock := tx.repo.unstocks[id]
		unstock.Status = status
		tx.repo.unstocks[id] = unstock
	}
	return nil
}

// RefreshOrderStatus recomputes the aggregate like the SQL repository does;
// the service must echo this value, never derive its own.
func (tx *memoryTx) RefreshOrderStatus(ctx context.Context, orderID int64) (string, error) {
	status := "OPEN"
	for _, rcv := range tx.repo.receivings {
		if rcv.OrderID == orderID && rcv.Status == lifecycle.StatusAuthorized {
			status = "IN_PROGRESS"
		}
	}
	for _, bill := range tx.repo.bills {
		if bill.OrderID == orderID && (bill.Status == lifecycle.StatusAuthorized || bill.Status == lifecycle.StatusCompleted) {
			status = "IN_PROGRESS"
		}
	}
	order := tx.repo.orders[orderID]
	order.Status = status
	tx.repo.orders[orderID] = order
	return status, nil
}

type stubInventory struct {
	inbound  []inventory.MovementInput
	outbound []inventory.MovementInput
}

func (s *stubInventory) PostInbound(ctx context.Context, input inventory.MovementInput) (inventory.StockCardEntry, error) {
	s.inbound = append(s.inbound, input)
	return inventory.StockCardEntry{TxCode: input.Code, QtyIn: input.Qty}, nil
}

func (s *stubInventory) PostOutbound(ctx context.Context, input inventory.MovementInput) (inventory.StockCardEntry, error) {
	s.outbound = append(s.outbound, input)
	return inventory.StockCardEntry{TxCode: input.Code, QtyOut: input.Qty}, nil
}

func seedOrder(repo *memoryRepo) (int64, int64) {
	repo.nextID += 2
	orderID, lineID := repo.nextID-1, repo.nextID
	repo.orders[orderID] = PurchaseOrder{ID: orderID, Number: "PO-0001", Currency: "USD", Status: "OPEN"}
	repo.orderLines[orderID] = []OrderLine{
		{ID: lineID, OrderID: orderID, ProductID: 77, Ordered: dec("10"), UnitPrice: dec("100"), DiscountPct: dec("10"), TaxRateID: 1},
	}
	repo.taxes[1] = TaxRate{ID: 1, Name: "GST", EffectiveRate: dec("15")}
	return orderID, lineID
}

func newTestService(repo *memoryRepo, inv *stubInventory) *Service {
	if inv == nil {
		inv = &stubInventory{}
	}
	return NewService(repo, inv, nil, nil, nil, WorkflowStockFirst)
}

var testOrg = shared.OrgContext{OrgID: 1, ActorID: 42, Permissions: []string{PermissionWrite}}

func TestProcureToPayFlow(t *testing.T) {
	repo := newMemoryRepo()
	inv := &stubInventory{}
	svc := newTestService(repo, inv)
	ctx := context.Background()
	orderID, lineID := seedOrder(repo)

	rcv, err := svc.CreateReceiving(ctx, testOrg, CreateReceivingInput{
		OrderID: orderID,
		Number:  "RCV-1",
		Lines:   []ReceivingLineInput{{OrderLineID: lineID, Qty: dec("6"), WarehouseID: 2, BatchOrSerial: "LOT-1"}},
	})
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusDraft, rcv.Status)

	res, err := svc.Transition(ctx, testOrg, lifecycle.KindReceiving, rcv.ID, lifecycle.ActionAuthorize)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusAuthorized, res.Status)
	require.Equal(t, "IN_PROGRESS", res.OrderStatus)
	require.Len(t, inv.inbound, 1)
	require.Equal(t, "6", inv.inbound[0].Qty.String())
	require.Equal(t, int64(77), inv.inbound[0].ProductID)

	// The echoed aggregate overwrites the cached order status.
	order, _, err := repo.GetOrder(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, "IN_PROGRESS", order.Status)

	// Stock-first: billing is capped by received quantity, not ordered.
	_, err = svc.CreateBill(ctx, testOrg, CreateBillInput{
		OrderID: orderID,
		Lines:   []BillLineInput{{OrderLineID: lineID, ProductID: 77, Qty: dec("7"), UnitPrice: dec("100")}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	bill, err := svc.CreateBill(ctx, testOrg, CreateBillInput{
		OrderID: orderID,
		Number:  "BILL-1",
		Lines:   []BillLineInput{{OrderLineID: lineID, ProductID: 77, Qty: dec("4"), UnitPrice: dec("100"), DiscountPct: dec("10"), TaxRateID: 1}},
	})
	require.NoError(t, err)

	_, err = svc.Transition(ctx, testOrg, lifecycle.KindBill, bill.ID, lifecycle.ActionAuthorize)
	require.NoError(t, err)

	remaining, err := svc.Remaining(ctx, orderID, lifecycle.KindBill, 0)
	require.NoError(t, err)
	require.Equal(t, "2", remaining[lineID].String())
}

func TestAuthorizeConflictWhenSiblingConsumedFirst(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()
	orderID, lineID := seedOrder(repo)

	rcv, err := svc.CreateReceiving(ctx, testOrg, CreateReceivingInput{
		OrderID: orderID,
		Lines:   []ReceivingLineInput{{OrderLineID: lineID, Qty: dec("10"), WarehouseID: 1}},
	})
	require.NoError(t, err)
	_, err = svc.Transition(ctx, testOrg, lifecycle.KindReceiving, rcv.ID, lifecycle.ActionAuthorize)
	require.NoError(t, err)

	// Two draft bills each fit the snapshot they were created against.
	first, err := svc.CreateBill(ctx, testOrg, CreateBillInput{
		OrderID: orderID,
		Lines:   []BillLineInput{{OrderLineID: lineID, ProductID: 77, Qty: dec("7"), UnitPrice: dec("1")}},
	})
	require.NoError(t, err)
	second, err := svc.CreateBill(ctx, testOrg, CreateBillInput{
		OrderID: orderID,
		Lines:   []BillLineInput{{OrderLineID: lineID, ProductID: 77, Qty: dec("7"), UnitPrice: dec("1")}},
	})
	require.NoError(t, err)

	_, err = svc.Transition(ctx, testOrg, lifecycle.KindBill, first.ID, lifecycle.ActionAuthorize)
	require.NoError(t, err)

	// The second authorization re-validates inside the transaction and
	// must reject: only 3 remain.
	_, err = svc.Transition(ctx, testOrg, lifecycle.KindBill, second.ID, lifecycle.ActionAuthorize)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestVoidReleasesQuantity(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()
	orderID, lineID := seedOrder(repo)

	rcv, _ := svc.CreateReceiving(ctx, testOrg, CreateReceivingInput{
		OrderID: orderID,
		Lines:   []ReceivingLineInput{{OrderLineID: lineID, Qty: dec("10"), WarehouseID: 1}},
	})
	_, err := svc.Transition(ctx, testOrg, lifecycle.KindReceiving, rcv.ID, lifecycle.ActionAuthorize)
	require.NoError(t, err)

	bill, err := svc.CreateBill(ctx, testOrg, CreateBillInput{
		OrderID: orderID,
		Lines:   []BillLineInput{{OrderLineID: lineID, ProductID: 77, Qty: dec("10"), UnitPrice: dec("1")}},
	})
	require.NoError(t, err)
	_, err = svc.Transition(ctx, testOrg, lifecycle.KindBill, bill.ID, lifecycle.ActionAuthorize)
	require.NoError(t, err)

	remaining, err := svc.Remaining(ctx, orderID, lifecycle.KindBill, 0)
	require.NoError(t, err)
	require.Equal(t, "0", remaining[lineID].String())

	_, err = svc.Transition(ctx, testOrg, lifecycle.KindBill, bill.ID, lifecycle.ActionVoid)
	require.NoError(t, err)

	remaining, err = svc.Remaining(ctx, orderID, lifecycle.KindBill, 0)
	require.NoError(t, err)
	require.Equal(t, "10", remaining[lineID].String())

	// Void is terminal.
	_, err = svc.Transition(ctx, testOrg, lifecycle.KindBill, bill.ID, lifecycle.ActionAuthorize)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUndoReceivingReversesStock(t *testing.T) {
	repo := newMemoryRepo()
	inv := &stubInventory{}
	svc := newTestService(repo, inv)
	ctx := context.Background()
	orderID, lineID := seedOrder(repo)

	rcv, _ := svc.CreateReceiving(ctx, testOrg, CreateReceivingInput{
		OrderID: orderID,
		Lines:   []ReceivingLineInput{{OrderLineID: lineID, Qty: dec("5"), WarehouseID: 1}},
	})
	_, err := svc.Transition(ctx, testOrg, lifecycle.KindReceiving, rcv.ID, lifecycle.ActionAuthorize)
	require.NoError(t, err)
	require.Len(t, inv.inbound, 1)

	res, err := svc.Transition(ctx, testOrg, lifecycle.KindReceiving, rcv.ID, lifecycle.ActionUndo)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusDraft, res.Status)
	require.Len(t, inv.outbound, 1)
	require.Equal(t, "5", inv.outbound[0].Qty.String())

	// Undone receiving no longer feeds billing availability.
	remaining, err := svc.Remaining(ctx, orderID, lifecycle.KindBill, 0)
	require.NoError(t, err)
	require.True(t, remaining[lineID].IsZero())
}

func TestCreditNoteAndUnstockFlow(t *testing.T) {
	repo := newMemoryRepo()
	inv := &stubInventory{}
	svc := newTestService(repo, inv)
	ctx := context.Background()
	orderID, lineID := seedOrder(repo)

	rcv, _ := svc.CreateReceiving(ctx, testOrg, CreateReceivingInput{
		OrderID: orderID,
		Lines:   []ReceivingLineInput{{OrderLineID: lineID, Qty: dec("10"), WarehouseID: 1}},
	})
	_, err := svc.Transition(ctx, testOrg, lifecycle.KindReceiving, rcv.ID, lifecycle.ActionAuthorize)
	require.NoError(t, err)

	bill, _ := svc.CreateBill(ctx, testOrg, CreateBillInput{
		OrderID: orderID,
		Lines:   []BillLineInput{{OrderLineID: lineID, ProductID: 77, Qty: dec("8"), UnitPrice: dec("100")}},
	})
	_, err = svc.Transition(ctx, testOrg, lifecycle.KindBill, bill.ID, lifecycle.ActionAuthorize)
	require.NoError(t, err)

	// Credited quantity is capped by billed quantity.
	_, err = svc.CreateCreditNote(ctx, testOrg, CreateCreditNoteInput{
		OrderID: orderID,
		Lines:   []CreditNoteLineInput{{BillLineID: bill.Lines[0].ID, OrderLineID: lineID, Qty: dec("9")}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	note, err := svc.CreateCreditNote(ctx, testOrg, CreateCreditNoteInput{
		OrderID: orderID,
		Lines:   []CreditNoteLineInput{{BillLineID: bill.Lines[0].ID, OrderLineID: lineID, Qty: dec("3")}},
		BillIDs: []int64{bill.ID},
	})
	require.NoError(t, err)

	// Unstock requires an authorized credit note.
	_, err = svc.CreateUnstock(ctx, testOrg, CreateUnstockInput{
		OrderID:      orderID,
		CreditNoteID: note.ID,
		Lines:        []UnstockLineInput{{OrderLineID: lineID, Qty: dec("3"), WarehouseID: 1}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Transition(ctx, testOrg, lifecycle.KindCreditNote, note.ID, lifecycle.ActionAuthorize)
	require.NoError(t, err)

	unstock, err := svc.CreateUnstock(ctx, testOrg, CreateUnstockInput{
		OrderID:      orderID,
		CreditNoteID: note.ID,
		Lines:        []UnstockLineInput{{OrderLineID: lineID, Qty: dec("3"), WarehouseID: 1}},
	})
	require.NoError(t, err)

	_, err = svc.Transition(ctx, testOrg, lifecycle.KindUnstock, unstock.ID, lifecycle.ActionAuthorize)
	require.NoError(t, err)
	require.Len(t, inv.outbound, 1)
	require.Equal(t, "3", inv.outbound[0].Qty.String())
}

func TestCreateReceivingRejectsDuplicateLines(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	orderID, lineID := seedOrder(repo)

	_, err := svc.CreateReceiving(context.Background(), testOrg, CreateReceivingInput{
		OrderID: orderID,
		Lines: []ReceivingLineInput{
			{OrderLineID: lineID, Qty: dec("2"), WarehouseID: 1},
			{OrderLineID: lineID, Qty: dec("3"), WarehouseID: 1},
		},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateBillAllocationMustSumExactly(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, WorkflowBillFirst)
	orderID, lineID := seedOrder(repo)

	input := CreateBillInput{
		OrderID: orderID,
		Lines:   []BillLineInput{{OrderLineID: lineID, ProductID: 77, Qty: dec("2"), UnitPrice: dec("50")}},
		ServiceLines: []ServiceLine{{Description: "Freight", Amount: dec("30"), LandedCost: true, Allocations: []Allocation{
			{BillLineID: 1, Cost: dec("29.99")},
		}}},
	}
	_, err := svc.CreateBill(context.Background(), testOrg, input)
	require.ErrorIs(t, err, shared.ErrValidation)

	input.ServiceLines[0].Allocations[0].Cost = dec("30.00")
	_, err = svc.CreateBill(context.Background(), testOrg, input)
	require.NoError(t, err)
}

func TestBlindBillLineSkipsReconciliation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil, WorkflowBillFirst)
	orderID, _ := seedOrder(repo)

	bill, err := svc.CreateBill(context.Background(), testOrg, CreateBillInput{
		OrderID: orderID,
		Lines:   []BillLineInput{{OrderLineID: 0, ProductID: 999, Qty: dec("500"), UnitPrice: dec("1")}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), bill.Lines[0].OrderLineID)
}

func TestAvailableReceivingsMatcher(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()
	orderID, lineID := seedOrder(repo)

	for i, qty := range []string{"6", "4"} {
		rcv, err := svc.CreateReceiving(ctx, testOrg, CreateReceivingInput{
			OrderID: orderID,
			Number:  []string{"RCV-1", "RCV-2"}[i],
			Lines:   []ReceivingLineInput{{OrderLineID: lineID, Qty: dec(qty), WarehouseID: 1}},
		})
		require.NoError(t, err)
		_, err = svc.Transition(ctx, testOrg, lifecycle.KindReceiving, rcv.ID, lifecycle.ActionAuthorize)
		require.NoError(t, err)
	}

	bill, err := svc.CreateBill(ctx, testOrg, CreateBillInput{
		OrderID: orderID,
		Lines:   []BillLineInput{{OrderLineID: lineID, ProductID: 77, Qty: dec("7"), UnitPrice: dec("1")}},
	})
	require.NoError(t, err)
	_, err = svc.Transition(ctx, testOrg, lifecycle.KindBill, bill.ID, lifecycle.ActionAuthorize)
	require.NoError(t, err)

	// RCV-1 is fully consumed by the walk, RCV-2 still offers 3 units.
	avail, err := svc.AvailableReceivings(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, avail, 1)
	require.Equal(t, "RCV-2", avail[0].Number)
	require.Equal(t, "3", avail[0].Qty[lineID].String())

	selected, err := svc.SelectedReceivingQuantities(ctx, orderID, []int64{avail[0].ID})
	require.NoError(t, err)
	require.Equal(t, "3", selected[lineID].String())
}

func TestReceivedNeverBelowBilledInvariant(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()
	orderID, lineID := seedOrder(repo)

	check := func() {
		receivings, err := repo.ListReceivings(ctx, orderID)
		require.NoError(t, err)
		bills, err := repo.ListBills(ctx, orderID)
		require.NoError(t, err)
		received := ReceivedQuantities(receivings, 0)
		billed := BilledQuantities(bills, 0)
		require.True(t, received[lineID].GreaterThanOrEqual(billed[lineID]),
			"received %s < billed %s", received[lineID], billed[lineID])
	}

	rcv, _ := svc.CreateReceiving(ctx, testOrg, CreateReceivingInput{
		OrderID: orderID,
		Lines:   []ReceivingLineInput{{OrderLineID: lineID, Qty: dec("10"), WarehouseID: 1}},
	})
	_, err := svc.Transition(ctx, testOrg, lifecycle.KindReceiving, rcv.ID, lifecycle.ActionAuthorize)
	require.NoError(t, err)
	check()

	bill, _ := svc.CreateBill(ctx, testOrg, CreateBillInput{
		OrderID: orderID,
		Lines:   []BillLineInput{{OrderLineID: lineID, ProductID: 77, Qty: dec("10"), UnitPrice: dec("1")}},
	})
	_, err = svc.Transition(ctx, testOrg, lifecycle.KindBill, bill.ID, lifecycle.ActionAuthorize)
	require.NoError(t, err)
	check()

	// Undoing the receiving while its quantity is billed must be refused
	// at the next bill authorization, and the ledger invariant holds after
	// every void/undo sequence.
	_, err = svc.Transition(ctx, testOrg, lifecycle.KindBill, bill.ID, lifecycle.ActionVoid)
	require.NoError(t, err)
	check()

	_, err = svc.Transition(ctx, testOrg, lifecycle.KindReceiving, rcv.ID, lifecycle.ActionUndo)
	require.NoError(t, err)
	check()

	_, err = svc.CreateBill(ctx, testOrg, CreateBillInput{
		OrderID: orderID,
		Lines:   []BillLineInput{{OrderLineID: lineID, ProductID: 77, Qty: dec("1"), UnitPrice: dec("1")}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	check()
}

func TestListDocumentsPaginatesAndFilters(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()
	orderID, lineID := seedOrder(repo)

	var receivingIDs []int64
	for _, number := range []string{"RCV-1", "RCV-2", "RCV-3"} {
		rcv, err := svc.CreateReceiving(ctx, testOrg, CreateReceivingInput{
			OrderID: orderID,
			Number:  number,
			Lines:   []ReceivingLineInput{{OrderLineID: lineID, Qty: dec("3"), WarehouseID: 1}},
		})
		require.NoError(t, err)
		receivingIDs = append(receivingIDs, rcv.ID)
	}
	_, err := svc.Transition(ctx, testOrg, lifecycle.KindReceiving, receivingIDs[1], lifecycle.ActionAuthorize)
	require.NoError(t, err)

	docs, pagination, err := svc.ListDocuments(ctx, lifecycle.KindReceiving, 1, 2, ListFilters{})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, 3, pagination.Total)
	require.Equal(t, 2, pagination.TotalPages)

	docs, _, err = svc.ListDocuments(ctx, lifecycle.KindReceiving, 2, 2, ListFilters{})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	docs, _, err = svc.ListDocuments(ctx, lifecycle.KindReceiving, 1, 20, ListFilters{Status: "AUTHORIZED"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "RCV-2", docs[0].Number)

	docs, _, err = svc.ListDocuments(ctx, lifecycle.KindReceiving, 1, 20, ListFilters{Search: "RCV-3"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "RCV-3", docs[0].Number)

	// Listing works only for purchasing kinds.
	_, _, err = svc.ListDocuments(ctx, lifecycle.KindPick, 1, 20, ListFilters{})
	require.ErrorIs(t, err, shared.ErrValidation)

	orders, pagination, err := svc.ListOrders(ctx, 0, 0, ListFilters{Search: "PO-"})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, "PO-0001", orders[0].Number)
	require.Equal(t, 1, pagination.TotalPages)
}

func TestMutationsRequireWritePermission(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()
	orderID, lineID := seedOrder(repo)

	readOnly := shared.OrgContext{OrgID: 1, ActorID: 7}

	_, err := svc.CreateReceiving(ctx, readOnly, CreateReceivingInput{
		OrderID: orderID,
		Lines:   []ReceivingLineInput{{OrderLineID: lineID, Qty: dec("1"), WarehouseID: 1}},
	})
	require.ErrorIs(t, err, shared.ErrForbidden)

	rcv, err := svc.CreateReceiving(ctx, testOrg, CreateReceivingInput{
		OrderID: orderID,
		Lines:   []ReceivingLineInput{{OrderLineID: lineID, Qty: dec("1"), WarehouseID: 1}},
	})
	require.NoError(t, err)

	_, err = svc.Transition(ctx, readOnly, lifecycle.KindReceiving, rcv.ID, lifecycle.ActionAuthorize)
	require.ErrorIs(t, err, shared.ErrForbidden)

	// Reads stay open to unprivileged actors.
	_, _, err = svc.ListDocuments(ctx, lifecycle.KindReceiving, 1, 20, ListFilters{})
	require.NoError(t, err)
}

func TestBillFooterSumsRoundedLines(t *testing.T) {
	taxes := map[int64]TaxRate{1: {ID: 1, EffectiveRate: dec("15")}}
	bill := Bill{Lines: []BillLine{
		{Qty: dec("2"), UnitPrice: dec("100"), DiscountPct: dec("10"), TaxRateID: 1},
		{Qty: dec("1"), UnitPrice: dec("33.333")},
	}}
	lines, total, tax := BillFooter(bill, false, taxes)
	require.Len(t, lines, 2)
	require.Equal(t, "207.00", lines[0].Total.StringFixed(2))
	require.Equal(t, "33.33", lines[1].Total.StringFixed(2))
	require.Equal(t, "240.33", total.StringFixed(2))
	require.Equal(t, "27.00", tax.StringFixed(2))
}
