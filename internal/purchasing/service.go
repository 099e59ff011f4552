package purchasing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/procureflow/procureflow/internal/inventory"
	"github.com/procureflow/procureflow/internal/lifecycle"
	"github.com/procureflow/procureflow/internal/shared"
)

// ReaderPort exposes the read operations needed both outside and inside a
// transaction. Authorization re-reads sibling documents through the
// transactional copy so the overconsumption check sees a consistent snapshot.
type ReaderPort interface {
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, []OrderLine, error)
	GetReceiving(ctx context.Context, id int64) (Receiving, error)
	GetBill(ctx context.Context, id int64) (Bill, error)
	GetCreditNote(ctx context.Context, id int64) (CreditNote, error)
	GetUnstock(ctx context.Context, id int64) (Unstock, error)
	ListReceivings(ctx context.Context, orderID int64) ([]Receiving, error)
	ListBills(ctx context.Context, orderID int64) ([]Bill, error)
	ListCreditNotes(ctx context.Context, orderID int64) ([]CreditNote, error)
	ListUnstocks(ctx context.Context, orderID int64) ([]Unstock, error)
	ListTaxRates(ctx context.Context) (map[int64]TaxRate, error)
	ListOrders(ctx context.Context, limit, offset int, filters ListFilters) ([]PurchaseOrder, int, error)
	ListDocuments(ctx context.Context, kind lifecycle.DocKind, limit, offset int, filters ListFilters) ([]DocumentSummary, int, error)
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	ReaderPort
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	ReaderPort
	CreateReceiving(ctx context.Context, rcv Receiving) (int64, error)
	CreateBill(ctx context.Context, bill Bill) (int64, error)
	UpdateBill(ctx context.Context, update BillUpdate) error
	CreateCreditNote(ctx context.Context, note CreditNote) (int64, error)
	CreateUnstock(ctx context.Context, unstock Unstock) (int64, error)
	UpdateStatus(ctx context.Context, kind lifecycle.DocKind, id int64, status lifecycle.Status) error
	RefreshOrderStatus(ctx context.Context, orderID int64) (string, error)
}

// InventoryPort exposes required inventory integration.
type InventoryPort interface {
	PostInbound(ctx context.Context, input inventory.MovementInput) (inventory.StockCardEntry, error)
	PostOutbound(ctx context.Context, input inventory.MovementInput) (inventory.StockCardEntry, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// SnapshotPort caches advisory remaining-quantity hints per order.
type SnapshotPort interface {
	SetRemaining(ctx context.Context, orderID int64, kind lifecycle.DocKind, remaining map[int64]decimal.Decimal) error
	Invalidate(ctx context.Context, orderID int64) error
}

// Service orchestrates the procure-to-pay document flow.
type Service struct {
	repo        RepositoryPort
	inventory   InventoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	snapshots   SnapshotPort
	workflow    Workflow
}

// NewService constructs the purchasing service.
func NewService(repo RepositoryPort, inv InventoryPort, audit AuditPort, idem *shared.IdempotencyStore, snapshots SnapshotPort, workflow Workflow) *Service {
	if workflow == "" {
		workflow = WorkflowStockFirst
	}
	return &Service{repo: repo, inventory: inv, audit: audit, idempotency: idem, snapshots: snapshots, workflow: workflow}
}

// PermissionWrite gates every mutating purchasing operation. The gateway
// injects the actor's permissions; reads stay open.
const PermissionWrite = "purchasing.write"

func requireWrite(octx shared.OrgContext) error {
	if !octx.Can(PermissionWrite) {
		return ErrForbidden
	}
	return nil
}

// ReceivingLineInput describes one received line.
type ReceivingLineInput struct {
	OrderLineID   int64
	Qty           decimal.Decimal
	BatchOrSerial string
	ExpiryDate    time.Time
	WarehouseID   int64
}

// CreateReceivingInput describes receiving creation.
type CreateReceivingInput struct {
	OrderID int64
	Number  string
	Date    time.Time
	Lines   []ReceivingLineInput
}

// BillLineInput describes one bill line. OrderLineID zero marks a blind line.
type BillLineInput struct {
	OrderLineID int64
	ProductID   int64
	Qty         decimal.Decimal
	UnitPrice   decimal.Decimal
	DiscountPct decimal.Decimal
	TaxRateID   int64
	AccountID   int64
}

// CreateBillInput describes bill creation.
type CreateBillInput struct {
	OrderID      int64
	Number       string
	DueAt        time.Time
	Lines        []BillLineInput
	ServiceLines []ServiceLine
	ReceivingIDs []int64
}

// CreditNoteLineInput references the bill line being reversed.
type CreditNoteLineInput struct {
	BillLineID  int64
	OrderLineID int64
	Qty         decimal.Decimal
}

// CreateCreditNoteInput describes credit note creation.
type CreateCreditNoteInput struct {
	OrderID int64
	Number  string
	Lines   []CreditNoteLineInput
	BillIDs []int64
}

// UnstockLineInput references the credit note line driving the removal.
type UnstockLineInput struct {
	CreditNoteLineID int64
	OrderLineID      int64
	Qty              decimal.Decimal
	WarehouseID      int64
}

// CreateUnstockInput describes unstock creation.
type CreateUnstockInput struct {
	OrderID      int64
	CreditNoteID int64
	Number       string
	Lines        []UnstockLineInput
}

// CreateReceiving validates quantities against the order line ledger and
// persists a draft receiving.
func (s *Service) CreateReceiving(ctx context.Context, octx shared.OrgContext, input CreateReceivingInput) (Receiving, error) {
	if err := requireWrite(octx); err != nil {
		return Receiving{}, err
	}
	if len(input.Lines) == 0 {
		return Receiving{}, fmt.Errorf("receiving requires at least one line: %w", ErrValidation)
	}
	if err := s.checkDuplicateLines(lineIDsFromReceivingInput(input.Lines)); err != nil {
		return Receiving{}, err
	}
	remaining, err := s.Remaining(ctx, input.OrderID, lifecycle.KindReceiving, 0)
	if err != nil {
		return Receiving{}, err
	}
	for _, line := range input.Lines {
		if !line.Qty.IsPositive() {
			return Receiving{}, fmt.Errorf("quantity must be positive: %w", ErrValidation)
		}
		if line.Qty.GreaterThan(remaining[line.OrderLineID]) {
			return Receiving{}, fmt.Errorf("order line %d: quantity %s exceeds remaining %s: %w",
				line.OrderLineID, line.Qty, remaining[line.OrderLineID], ErrValidation)
		}
	}
	rcv := Receiving{
		OrderID: input.OrderID,
		Number:  defaultString(input.Number, generateNumber("RCV")),
		Date:    defaultTime(input.Date),
		Status:  lifecycle.StatusDraft,
	}
	for _, line := range input.Lines {
		rcv.Lines = append(rcv.Lines, ReceivingLine{
			OrderLineID:   line.OrderLineID,
			Qty:           line.Qty,
			BatchOrSerial: line.BatchOrSerial,
			ExpiryDate:    line.ExpiryDate,
			WarehouseID:   line.WarehouseID,
		})
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateReceiving(ctx, rcv)
		if err != nil {
			return err
		}
		rcv.ID = id
		return nil
	})
	if err != nil {
		return Receiving{}, err
	}
	s.recordAudit(ctx, octx, "RECEIVING_CREATE", rcv.ID, map[string]any{"number": rcv.Number})
	return rcv, nil
}

// CreateBill validates quantities and landed-cost allocations and persists a
// draft bill. Blind lines skip the reconciliation check.
func (s *Service) CreateBill(ctx context.Context, octx shared.OrgContext, input CreateBillInput) (Bill, error) {
	if err := requireWrite(octx); err != nil {
		return Bill{}, err
	}
	if len(input.Lines) == 0 {
		return Bill{}, fmt.Errorf("bill requires at least one line: %w", ErrValidation)
	}
	if err := s.checkDuplicateLines(lineIDsFromBillInput(input.Lines)); err != nil {
		return Bill{}, err
	}
	order, _, err := s.repo.GetOrder(ctx, input.OrderID)
	if err != nil {
		return Bill{}, err
	}
	remaining, err := s.Remaining(ctx, input.OrderID, lifecycle.KindBill, 0)
	if err != nil {
		return Bill{}, err
	}
	bill := Bill{
		OrderID:      input.OrderID,
		Number:       defaultString(input.Number, generateNumber("BILL")),
		Status:       lifecycle.StatusDraft,
		DueAt:        input.DueAt,
		ServiceLines: input.ServiceLines,
		ReceivingIDs: input.ReceivingIDs,
	}
	for _, line := range input.Lines {
		if !line.Qty.IsPositive() {
			return Bill{}, fmt.Errorf("quantity must be positive: %w", ErrValidation)
		}
		if line.OrderLineID != 0 && line.Qty.GreaterThan(remaining[line.OrderLineID]) {
			return Bill{}, fmt.Errorf("order line %d: quantity %s exceeds remaining %s: %w",
				line.OrderLineID, line.Qty, remaining[line.OrderLineID], ErrValidation)
		}
		bill.Lines = append(bill.Lines, BillLine{
			OrderLineID: line.OrderLineID,
			ProductID:   line.ProductID,
			Qty:         line.Qty,
			UnitPrice:   line.UnitPrice,
			DiscountPct: line.DiscountPct,
			TaxRateID:   line.TaxRateID,
			AccountID:   line.AccountID,
		})
	}
	if check := ValidateAllocations(bill.ServiceLines, order.Currency); !check.OK {
		return Bill{}, fmt.Errorf("%s: %w", check.Message, ErrValidation)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateBill(ctx, bill)
		if err != nil {
			return err
		}
		bill.ID = id
		return nil
	})
	if err != nil {
		return Bill{}, err
	}
	s.recordAudit(ctx, octx, "BILL_CREATE", bill.ID, map[string]any{"number": bill.Number})
	return bill, nil
}

// UpdateBill replaces a draft bill's lines with edited form values.
func (s *Service) UpdateBill(ctx context.Context, octx shared.OrgContext, update BillUpdate) error {
	if err := requireWrite(octx); err != nil {
		return err
	}
	bill, err := s.repo.GetBill(ctx, update.BillID)
	if err != nil {
		return err
	}
	if bill.Status != lifecycle.StatusDraft {
		return ErrInvalidState
	}
	order, _, err := s.repo.GetOrder(ctx, bill.OrderID)
	if err != nil {
		return err
	}
	remaining, err := s.Remaining(ctx, bill.OrderID, lifecycle.KindBill, bill.ID)
	if err != nil {
		return err
	}
	for _, line := range update.Lines {
		if line.OrderLineID != 0 && line.Qty.GreaterThan(remaining[line.OrderLineID]) {
			return fmt.Errorf("order line %d: quantity %s exceeds remaining %s: %w",
				line.OrderLineID, line.Qty, remaining[line.OrderLineID], ErrValidation)
		}
	}
	if check := ValidateAllocations(update.ServiceLines, order.Currency); !check.OK {
		return fmt.Errorf("%s: %w", check.Message, ErrValidation)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateBill(ctx, update)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, octx, "BILL_UPDATE", update.BillID, map[string]any{"number": update.Number})
	return nil
}

// CreateCreditNote validates against billed quantity and persists a draft.
func (s *Service) CreateCreditNote(ctx context.Context, octx shared.OrgContext, input CreateCreditNoteInput) (CreditNote, error) {
	if err := requireWrite(octx); err != nil {
		return CreditNote{}, err
	}
	if len(input.Lines) == 0 {
		return CreditNote{}, fmt.Errorf("credit note requires at least one line: %w", ErrValidation)
	}
	remaining, err := s.Remaining(ctx, input.OrderID, lifecycle.KindCreditNote, 0)
	if err != nil {
		return CreditNote{}, err
	}
	note := CreditNote{
		OrderID: input.OrderID,
		Number:  defaultString(input.Number, generateNumber("CN")),
		Status:  lifecycle.StatusDraft,
		BillIDs: input.BillIDs,
	}
	for _, line := range input.Lines {
		if !line.Qty.IsPositive() {
			return CreditNote{}, fmt.Errorf("quantity must be positive: %w", ErrValidation)
		}
		if line.Qty.GreaterThan(remaining[line.OrderLineID]) {
			return CreditNote{}, fmt.Errorf("order line %d: quantity %s exceeds billed remaining %s: %w",
				line.OrderLineID, line.Qty, remaining[line.OrderLineID], ErrValidation)
		}
		note.Lines = append(note.Lines, CreditNoteLine{
			BillLineID:  line.BillLineID,
			OrderLineID: line.OrderLineID,
			Qty:         line.Qty,
		})
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateCreditNote(ctx, note)
		if err != nil {
			return err
		}
		note.ID = id
		return nil
	})
	if err != nil {
		return CreditNote{}, err
	}
	s.recordAudit(ctx, octx, "CREDIT_NOTE_CREATE", note.ID, map[string]any{"number": note.Number})
	return note, nil
}

// CreateUnstock validates against the parent credit note's credited quantity
// and persists a draft unstock.
func (s *Service) CreateUnstock(ctx context.Context, octx shared.OrgContext, input CreateUnstockInput) (Unstock, error) {
	if err := requireWrite(octx); err != nil {
		return Unstock{}, err
	}
	if len(input.Lines) == 0 {
		return Unstock{}, fmt.Errorf("unstock requires at least one line: %w", ErrValidation)
	}
	note, err := s.repo.GetCreditNote(ctx, input.CreditNoteID)
	if err != nil {
		return Unstock{}, err
	}
	if note.Status != lifecycle.StatusAuthorized {
		return Unstock{}, fmt.Errorf("credit note must be authorized before unstocking: %w", ErrValidation)
	}
	remaining, err := s.unstockRemaining(ctx, note, 0)
	if err != nil {
		return Unstock{}, err
	}
	unstock := Unstock{
		OrderID:      input.OrderID,
		CreditNoteID: input.CreditNoteID,
		Number:       defaultString(input.Number, generateNumber("UNS")),
		Status:       lifecycle.StatusDraft,
	}
	for _, line := range input.Lines {
		if !line.Qty.IsPositive() {
			return Unstock{}, fmt.Errorf("quantity must be positive: %w", ErrValidation)
		}
		if line.Qty.GreaterThan(remaining[line.OrderLineID]) {
			return Unstock{}, fmt.Errorf("order line %d: quantity %s exceeds credited remaining %s: %w",
				line.OrderLineID, line.Qty, remaining[line.OrderLineID], ErrValidation)
		}
		unstock.Lines = append(unstock.Lines, UnstockLine{
			CreditNoteLineID: line.CreditNoteLineID,
			OrderLineID:      line.OrderLineID,
			Qty:              line.Qty,
			WarehouseID:      line.WarehouseID,
		})
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateUnstock(ctx, unstock)
		if err != nil {
			return err
		}
		unstock.ID = id
		return nil
	})
	if err != nil {
		return Unstock{}, err
	}
	s.recordAudit(ctx, octx, "UNSTOCK_CREATE", unstock.ID, map[string]any{"number": unstock.Number})
	return unstock, nil
}

// ListOrders returns one page of purchase orders matching filters.
func (s *Service) ListOrders(ctx context.Context, page, perPage int, filters ListFilters) ([]PurchaseOrder, shared.Pagination, error) {
	page, perPage = normalizePage(page, perPage)
	orders, total, err := s.repo.ListOrders(ctx, perPage, (page-1)*perPage, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return orders, shared.NewPagination(page, perPage, total), nil
}

// ListDocuments returns one page of document summaries of the given kind.
func (s *Service) ListDocuments(ctx context.Context, kind lifecycle.DocKind, page, perPage int, filters ListFilters) ([]DocumentSummary, shared.Pagination, error) {
	if _, ok := statusTables[kind]; !ok {
		return nil, shared.Pagination{}, fmt.Errorf("unknown document kind %s: %w", kind, ErrValidation)
	}
	page, perPage = normalizePage(page, perPage)
	docs, total, err := s.repo.ListDocuments(ctx, kind, perPage, (page-1)*perPage, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return docs, shared.NewPagination(page, perPage, total), nil
}

func normalizePage(page, perPage int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 200 {
		perPage = 20
	}
	return page, perPage
}

// Remaining computes the advisory per-order-line quantity still open for a
// new consumer document of the given kind, excluding the document being
// edited from consumed totals. The availability side depends on the workflow
// mode for bills.
func (s *Service) Remaining(ctx context.Context, orderID int64, kind lifecycle.DocKind, excludeDocID int64) (map[int64]decimal.Decimal, error) {
	return s.remainingWith(ctx, s.repo, orderID, kind, excludeDocID)
}

func (s *Service) remainingWith(ctx context.Context, reader ReaderPort, orderID int64, kind lifecycle.DocKind, excludeDocID int64) (map[int64]decimal.Decimal, error) {
	_, orderLines, err := reader.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch kind {
	case lifecycle.KindReceiving:
		receivings, err := reader.ListReceivings(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return Remaining(OrderedQuantities(orderLines), ReceivedQuantities(receivings, excludeDocID)), nil
	case lifecycle.KindBill:
		bills, err := reader.ListBills(ctx, orderID)
		if err != nil {
			return nil, err
		}
		available := OrderedQuantities(orderLines)
		if s.workflow == WorkflowStockFirst {
			receivings, err := reader.ListReceivings(ctx, orderID)
			if err != nil {
				return nil, err
			}
			available = ReceivedQuantities(receivings, 0)
		}
		return Remaining(available, BilledQuantities(bills, excludeDocID)), nil
	case lifecycle.KindCreditNote:
		bills, err := reader.ListBills(ctx, orderID)
		if err != nil {
			return nil, err
		}
		notes, err := reader.ListCreditNotes(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return Remaining(BilledQuantities(bills, 0), CreditedQuantities(notes, excludeDocID)), nil
	case lifecycle.KindUnstock:
		notes, err := reader.ListCreditNotes(ctx, orderID)
		if err != nil {
			return nil, err
		}
		unstocks, err := reader.ListUnstocks(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return Remaining(CreditedQuantities(notes, 0), UnstockedQuantities(unstocks, excludeDocID)), nil
	default:
		return nil, fmt.Errorf("no reconciliation for kind %s: %w", kind, ErrValidation)
	}
}

// unstockRemaining scopes credited availability to one credit note.
func (s *Service) unstockRemaining(ctx context.Context, note CreditNote, excludeDocID int64) (map[int64]decimal.Decimal, error) {
	unstocks, err := s.repo.ListUnstocks(ctx, note.OrderID)
	if err != nil {
		return nil, err
	}
	var scoped []Unstock
	for _, u := range unstocks {
		if u.CreditNoteID == note.ID {
			scoped = append(scoped, u)
		}
	}
	return Remaining(CreditedQuantities([]CreditNote{note}, 0), UnstockedQuantities(scoped, excludeDocID)), nil
}

// AvailableReceivings runs the sequential consumption matcher over all
// authorized receivings of the order and returns only documents that still
// offer quantity, i.e. the contents of the "copy from receiving" picker.
func (s *Service) AvailableReceivings(ctx context.Context, orderID int64) ([]Leftover, error) {
	receivings, err := s.repo.ListReceivings(ctx, orderID)
	if err != nil {
		return nil, err
	}
	bills, err := s.repo.ListBills(ctx, orderID)
	if err != nil {
		return nil, err
	}
	leftovers := MatchRemaining(ReceivingSources(receivings), BilledQuantities(bills, 0))
	return AvailableSources(leftovers), nil
}

// SelectedReceivingQuantities re-aggregates the global leftover walk across
// the caller's chosen receivings, producing the per-order-line quantity the
// new bill may use.
func (s *Service) SelectedReceivingQuantities(ctx context.Context, orderID int64, selected []int64) (map[int64]decimal.Decimal, error) {
	receivings, err := s.repo.ListReceivings(ctx, orderID)
	if err != nil {
		return nil, err
	}
	bills, err := s.repo.ListBills(ctx, orderID)
	if err != nil {
		return nil, err
	}
	leftovers := MatchRemaining(ReceivingSources(receivings), BilledQuantities(bills, 0))
	return AggregateLeftover(leftovers, selected), nil
}

// AvailableBills is the matcher applied to the credit note picker.
func (s *Service) AvailableBills(ctx context.Context, orderID int64) ([]Leftover, error) {
	bills, err := s.repo.ListBills(ctx, orderID)
	if err != nil {
		return nil, err
	}
	notes, err := s.repo.ListCreditNotes(ctx, orderID)
	if err != nil {
		return nil, err
	}
	leftovers := MatchRemaining(BillSources(bills), CreditedQuantities(notes, 0))
	return AvailableSources(leftovers), nil
}

// Transition applies a lifecycle action to a document. Authorization
// re-validates quantity availability inside the transaction: the client's
// remaining hints are advisory only, and a stale snapshot surfaces as a
// retryable conflict. The returned order status is the repository's
// recomputed aggregate, echoed verbatim.
func (s *Service) Transition(ctx context.Context, octx shared.OrgContext, kind lifecycle.DocKind, docID int64, action lifecycle.Action) (TransitionResult, error) {
	if err := requireWrite(octx); err != nil {
		return TransitionResult{}, err
	}
	doc, err := s.loadDoc(ctx, s.repo, kind, docID)
	if err != nil {
		return TransitionResult{}, err
	}
	next, ok := lifecycle.CanTransition(kind, doc.status, action)
	if !ok {
		return TransitionResult{}, fmt.Errorf("%s %s from %s: %w", action, kind, doc.status, ErrInvalidState)
	}

	idemKey := ""
	if action == lifecycle.ActionAuthorize && s.idempotency != nil {
		idemKey = fmt.Sprintf("PURCH:%s:%s", kind, doc.number)
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "purchasing"); err != nil {
			return TransitionResult{}, err
		}
	}

	result := TransitionResult{DocID: docID, Kind: kind, Status: next, OrderID: doc.orderID}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if action == lifecycle.ActionAuthorize {
			if err := s.revalidate(ctx, tx, kind, docID, doc.orderID); err != nil {
				return err
			}
		}
		if err := s.postStockMovements(ctx, tx, kind, docID, doc.orderID, doc.status, action); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, kind, docID, next); err != nil {
			return err
		}
		orderStatus, err := tx.RefreshOrderStatus(ctx, doc.orderID)
		if err != nil {
			return err
		}
		result.OrderStatus = orderStatus
		return nil
	})
	if err != nil {
		if idemKey != "" {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return TransitionResult{}, err
	}
	if s.snapshots != nil {
		_ = s.snapshots.Invalidate(ctx, doc.orderID)
	}
	s.recordAudit(ctx, octx, fmt.Sprintf("%s_%s", kind, action), docID, map[string]any{
		"number": doc.number, "status": string(next), "order_status": result.OrderStatus,
	})
	return result, nil
}

type docHeader struct {
	orderID int64
	number  string
	status  lifecycle.Status
}

func (s *Service) loadDoc(ctx context.Context, reader ReaderPort, kind lifecycle.DocKind, docID int64) (docHeader, error) {
	switch kind {
	case lifecycle.KindReceiving:
		rcv, err := reader.GetReceiving(ctx, docID)
		if err != nil {
			return docHeader{}, err
		}
		return docHeader{orderID: rcv.OrderID, number: rcv.Number, status: rcv.Status}, nil
	case lifecycle.KindBill:
		bill, err := reader.GetBill(ctx, docID)
		if err != nil {
			return docHeader{}, err
		}
		return docHeader{orderID: bill.OrderID, number: bill.Number, status: bill.Status}, nil
	case lifecycle.KindCreditNote:
		note, err := reader.GetCreditNote(ctx, docID)
		if err != nil {
			return docHeader{}, err
		}
		return docHeader{orderID: note.OrderID, number: note.Number, status: note.Status}, nil
	case lifecycle.KindUnstock:
		unstock, err := reader.GetUnstock(ctx, docID)
		if err != nil {
			return docHeader{}, err
		}
		return docHeader{orderID: unstock.OrderID, number: unstock.Number, status: unstock.Status}, nil
	default:
		return docHeader{}, fmt.Errorf("unknown document kind %s: %w", kind, ErrValidation)
	}
}

// revalidate re-runs the overconsumption check against the transactional
// snapshot. Any line over remaining means a sibling was authorized since the
// client last looked.
func (s *Service) revalidate(ctx context.Context, tx TxRepository, kind lifecycle.DocKind, docID, orderID int64) error {
	var lines map[int64]decimal.Decimal
	switch kind {
	case lifecycle.KindReceiving:
		rcv, err := tx.GetReceiving(ctx, docID)
		if err != nil {
			return err
		}
		lines = ReceivedQuantities([]Receiving{{ID: rcv.ID, Status: lifecycle.StatusAuthorized, Lines: rcv.Lines}}, 0)
	case lifecycle.KindBill:
		bill, err := tx.GetBill(ctx, docID)
		if err != nil {
			return err
		}
		order, _, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if check := ValidateAllocations(bill.ServiceLines, order.Currency); !check.OK {
			return fmt.Errorf("%s: %w", check.Message, ErrValidation)
		}
		lines = BilledQuantities([]Bill{{ID: bill.ID, Status: lifecycle.StatusAuthorized, Lines: bill.Lines}}, 0)
	case lifecycle.KindCreditNote:
		note, err := tx.GetCreditNote(ctx, docID)
		if err != nil {
			return err
		}
		lines = CreditedQuantities([]CreditNote{{ID: note.ID, Status: lifecycle.StatusAuthorized, Lines: note.Lines}}, 0)
	case lifecycle.KindUnstock:
		unstock, err := tx.GetUnstock(ctx, docID)
		if err != nil {
			return err
		}
		lines = UnstockedQuantities([]Unstock{{ID: unstock.ID, Status: lifecycle.StatusAuthorized, Lines: unstock.Lines}}, 0)
	default:
		return nil
	}
	remaining, err := s.remainingWith(ctx, tx, orderID, kind, docID)
	if err != nil {
		return err
	}
	for lineID, qty := range lines {
		if lineID == 0 {
			continue
		}
		if qty.GreaterThan(remaining[lineID]) {
			return fmt.Errorf("order line %d: requested %s, remaining %s: %w",
				lineID, qty, remaining[lineID], ErrQuantityConflict)
		}
	}
	return nil
}

// postStockMovements drives inventory for stock-affecting transitions:
// authorizing a receiving books stock in, authorizing an unstock books it
// out, and leaving the authorized state posts the reverse movement.
func (s *Service) postStockMovements(ctx context.Context, tx TxRepository, kind lifecycle.DocKind, docID, orderID int64, prev lifecycle.Status, action lifecycle.Action) error {
	if s.inventory == nil {
		return nil
	}
	if kind != lifecycle.KindReceiving && kind != lifecycle.KindUnstock {
		return nil
	}
	inbound := kind == lifecycle.KindReceiving
	switch action {
	case lifecycle.ActionAuthorize:
	case lifecycle.ActionVoid, lifecycle.ActionUndo:
		// Reversals only apply when the document actually held stock.
		if prev != lifecycle.StatusAuthorized {
			return nil
		}
		inbound = !inbound
	default:
		return nil
	}
	_, orderLines, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	products := make(map[int64]int64, len(orderLines))
	for _, line := range orderLines {
		products[line.ID] = line.ProductID
	}

	type movement struct {
		warehouseID int64
		orderLineID int64
		qty         decimal.Decimal
		batch       string
		expiry      time.Time
	}
	var moves []movement
	var number string
	if kind == lifecycle.KindReceiving {
		rcv, err := tx.GetReceiving(ctx, docID)
		if err != nil {
			return err
		}
		number = rcv.Number
		for _, line := range rcv.Lines {
			moves = append(moves, movement{line.WarehouseID, line.OrderLineID, line.Qty, line.BatchOrSerial, line.ExpiryDate})
		}
	} else {
		unstock, err := tx.GetUnstock(ctx, docID)
		if err != nil {
			return err
		}
		number = unstock.Number
		for _, line := range unstock.Lines {
			moves = append(moves, movement{line.WarehouseID, line.OrderLineID, line.Qty, "", time.Time{}})
		}
	}

	for _, mv := range moves {
		input := inventory.MovementInput{
			Code:          fmt.Sprintf("%s-%s-%d", kind, number, mv.orderLineID),
			WarehouseID:   mv.warehouseID,
			ProductID:     products[mv.orderLineID],
			Qty:           mv.qty,
			BatchOrSerial: mv.batch,
			ExpiryDate:    mv.expiry,
			RefModule:     "PURCHASING",
			RefID:         fmt.Sprintf("%s:%d:%s", kind, docID, action),
		}
		if inbound {
			if _, err := s.inventory.PostInbound(ctx, input); err != nil {
				return err
			}
		} else {
			if _, err := s.inventory.PostOutbound(ctx, input); err != nil {
				return err
			}
		}
	}
	return nil
}

// BillFooter computes per-line totals and the document footer for a bill.
func BillFooter(bill Bill, taxInclusive bool, taxes map[int64]TaxRate) (lines []LineTotal, total, totalTax decimal.Decimal) {
	for _, line := range bill.Lines {
		var rate *TaxRate
		if tax, ok := taxes[line.TaxRateID]; ok {
			rate = &tax
		}
		lines = append(lines, CalculateLineTotal(
			decimal.NewNullDecimal(line.UnitPrice),
			decimal.NewNullDecimal(line.Qty),
			line.DiscountPct, taxInclusive, rate))
	}
	total, totalTax = SumLineTotals(lines)
	return lines, total, totalTax
}

func (s *Service) checkDuplicateLines(orderLineIDs []int64) error {
	seen := make(map[int64]bool, len(orderLineIDs))
	for _, id := range orderLineIDs {
		if id == 0 {
			continue
		}
		if seen[id] {
			return fmt.Errorf("order line %d appears more than once: %w", id, ErrValidation)
		}
		seen[id] = true
	}
	return nil
}

func lineIDsFromReceivingInput(lines []ReceivingLineInput) []int64 {
	out := make([]int64, 0, len(lines))
	for _, line := range lines {
		out = append(out, line.OrderLineID)
	}
	return out
}

func lineIDsFromBillInput(lines []BillLineInput) []int64 {
	out := make([]int64, 0, len(lines))
	for _, line := range lines {
		out = append(out, line.OrderLineID)
	}
	return out
}

func (s *Service) recordAudit(ctx context.Context, octx shared.OrgContext, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrgID:    octx.OrgID,
		ActorID:  octx.ActorID,
		Action:   action,
		Entity:   "purchasing",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func defaultTime(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now()
	}
	return value
}
