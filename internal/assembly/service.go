package assembly

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/procureflow/procureflow/internal/inventory"
	"github.com/procureflow/procureflow/internal/lifecycle"
	"github.com/procureflow/procureflow/internal/shared"
)

// ReaderPort exposes read operations both outside and inside a transaction.
type ReaderPort interface {
	GetOrder(ctx context.Context, id int64) (AssemblyOrder, error)
	GetPick(ctx context.Context, id int64) (Pick, error)
	GetResult(ctx context.Context, id int64) (Result, error)
	ListOrders(ctx context.Context, limit, offset int, filters ListFilters) ([]AssemblyOrder, int, error)
	ListPicks(ctx context.Context, orderID int64) ([]Pick, error)
	ListResults(ctx context.Context, orderID int64) ([]Result, error)
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	ReaderPort
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	ReaderPort
	CreateOrder(ctx context.Context, order AssemblyOrder) (int64, error)
	CreatePick(ctx context.Context, pick Pick) (int64, error)
	CreateResult(ctx context.Context, result Result) (int64, error)
	UpdateStatus(ctx context.Context, kind lifecycle.DocKind, id int64, status lifecycle.Status) error
	RefreshOrderStatus(ctx context.Context, orderID int64) (string, error)
}

// StockPort answers on-hand component availability.
type StockPort interface {
	OnHand(ctx context.Context, warehouseID, productID int64) (decimal.Decimal, error)
}

// InventoryPort posts stock movements for picks and results.
type InventoryPort interface {
	PostInbound(ctx context.Context, input inventory.MovementInput) (inventory.StockCardEntry, error)
	PostOutbound(ctx context.Context, input inventory.MovementInput) (inventory.StockCardEntry, error)
}

// AuditPort records document mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the assembly document flow.
type Service struct {
	repo        RepositoryPort
	stock       StockPort
	inventory   InventoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService constructs the assembly service.
func NewService(repo RepositoryPort, stock StockPort, inv InventoryPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, stock: stock, inventory: inv, audit: audit, idempotency: idem}
}

// PermissionWrite guards document mutations. Reads stay open.
const PermissionWrite = "assembly.write"

func requireWrite(octx shared.OrgContext) error {
	if !octx.Can(PermissionWrite) {
		return ErrForbidden
	}
	return nil
}

// ComponentLineInput describes one component on a new order.
type ComponentLineInput struct {
	ProductID  int64
	QtyToUse   decimal.Decimal
	WastagePct decimal.Decimal
	WastageQty decimal.Decimal
}

// CreateOrderInput describes assembly order creation.
type CreateOrderInput struct {
	Number       string
	ProductID    int64
	QtyToProduce decimal.Decimal
	WarehouseID  int64
	Date         time.Time
	Lines        []ComponentLineInput
}

// TransitionResult reports a status change with the echoed aggregate.
type TransitionResult struct {
	DocID       int64
	Kind        lifecycle.DocKind
	Status      lifecycle.Status
	OrderID     int64
	OrderStatus string
}

// CreateOrder validates component requirements against on-hand stock and
// persists a draft order. A component whose required total exceeds on-hand
// availability blocks creation; the same policy applies on the pick path.
func (s *Service) CreateOrder(ctx context.Context, octx shared.OrgContext, input CreateOrderInput) (AssemblyOrder, error) {
	if err := requireWrite(octx); err != nil {
		return AssemblyOrder{}, err
	}
	if input.ProductID == 0 {
		return AssemblyOrder{}, fmt.Errorf("output product required: %w", ErrValidation)
	}
	if !input.QtyToProduce.IsPositive() {
		return AssemblyOrder{}, fmt.Errorf("quantity to produce must be positive: %w", ErrValidation)
	}
	if len(input.Lines) == 0 {
		return AssemblyOrder{}, fmt.Errorf("order requires at least one component: %w", ErrValidation)
	}

	order := AssemblyOrder{
		OrgID:        octx.OrgID,
		Number:       defaultString(input.Number, generateNumber("ASM")),
		ProductID:    input.ProductID,
		QtyToProduce: input.QtyToProduce,
		WarehouseID:  input.WarehouseID,
		Status:       lifecycle.StatusDraft,
		Date:         defaultTime(input.Date),
	}
	seen := make(map[int64]bool, len(input.Lines))
	for i, line := range input.Lines {
		if seen[line.ProductID] {
			return AssemblyOrder{}, fmt.Errorf("component %d appears more than once: %w", line.ProductID, ErrValidation)
		}
		seen[line.ProductID] = true
		if line.WastagePct.IsPositive() && line.WastageQty.IsPositive() {
			return AssemblyOrder{}, fmt.Errorf("line %d: wastage percentage and quantity are mutually exclusive: %w", i, ErrValidation)
		}
		order.Lines = append(order.Lines, ComponentLine{
			ProductID:  line.ProductID,
			QtyToUse:   line.QtyToUse,
			WastagePct: line.WastagePct,
			WastageQty: line.WastageQty,
		})
	}
	if err := s.checkComponentAvailability(ctx, order); err != nil {
		return AssemblyOrder{}, err
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		return nil
	})
	if err != nil {
		return AssemblyOrder{}, err
	}
	s.recordAudit(ctx, octx, "ASSEMBLY_ORDER_CREATE", order.ID, map[string]any{"number": order.Number})
	return order, nil
}

// checkComponentAvailability recomputes every line's yield against on-hand
// stock. Any availability error refuses the document.
func (s *Service) checkComponentAvailability(ctx context.Context, order AssemblyOrder) error {
	if s.stock == nil {
		return nil
	}
	for _, line := range order.Lines {
		available, err := s.stock.OnHand(ctx, order.WarehouseID, line.ProductID)
		if err != nil {
			return err
		}
		if yield := LineYield(order, line, available); yield.Err != "" {
			return fmt.Errorf("component %d: %s: %w", line.ProductID, yield.Err, ErrValidation)
		}
	}
	return nil
}

// PickLineInput describes one picked component quantity.
type PickLineInput struct {
	ComponentLineID int64
	Qty             decimal.Decimal
	WarehouseID     int64
}

// CreatePickInput describes pick creation.
type CreatePickInput struct {
	OrderID int64
	Number  string
	Lines   []PickLineInput
}

// CreatePick validates picked quantities against the order's remaining
// component requirement and persists a draft pick.
func (s *Service) CreatePick(ctx context.Context, octx shared.OrgContext, input CreatePickInput) (Pick, error) {
	if err := requireWrite(octx); err != nil {
		return Pick{}, err
	}
	if len(input.Lines) == 0 {
		return Pick{}, fmt.Errorf("pick requires at least one line: %w", ErrValidation)
	}
	order, err := s.repo.GetOrder(ctx, input.OrderID)
	if err != nil {
		return Pick{}, err
	}
	if order.Status != lifecycle.StatusAuthorized {
		return Pick{}, fmt.Errorf("order must be authorized before picking: %w", ErrValidation)
	}
	if err := s.checkComponentAvailability(ctx, order); err != nil {
		return Pick{}, err
	}
	remaining, err := s.pickRemaining(ctx, s.repo, order, 0)
	if err != nil {
		return Pick{}, err
	}

	products := make(map[int64]int64, len(order.Lines))
	for _, line := range order.Lines {
		products[line.ID] = line.ProductID
	}

	pick := Pick{
		OrderID: input.OrderID,
		Number:  defaultString(input.Number, generateNumber("PICK")),
		Status:  lifecycle.StatusDraft,
	}
	seen := make(map[int64]bool, len(input.Lines))
	for _, line := range input.Lines {
		if seen[line.ComponentLineID] {
			return Pick{}, fmt.Errorf("component line %d appears more than once: %w", line.ComponentLineID, ErrValidation)
		}
		seen[line.ComponentLineID] = true
		if !line.Qty.IsPositive() {
			return Pick{}, fmt.Errorf("quantity must be positive: %w", ErrValidation)
		}
		if line.Qty.GreaterThan(remaining[line.ComponentLineID]) {
			return Pick{}, fmt.Errorf("component line %d: quantity %s exceeds remaining %s: %w",
				line.ComponentLineID, line.Qty, remaining[line.ComponentLineID], ErrValidation)
		}
		warehouseID := line.WarehouseID
		if warehouseID == 0 {
			warehouseID = order.WarehouseID
		}
		pick.Lines = append(pick.Lines, PickLine{
			ComponentLineID: line.ComponentLineID,
			ProductID:       products[line.ComponentLineID],
			Qty:             line.Qty,
			WarehouseID:     warehouseID,
		})
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreatePick(ctx, pick)
		if err != nil {
			return err
		}
		pick.ID = id
		return nil
	})
	if err != nil {
		return Pick{}, err
	}
	s.recordAudit(ctx, octx, "ASSEMBLY_PICK_CREATE", pick.ID, map[string]any{"number": pick.Number})
	return pick, nil
}

// CreateResultInput describes result creation.
type CreateResultInput struct {
	OrderID     int64
	Number      string
	QtyProduced decimal.Decimal
	WarehouseID int64
}

// CreateResult validates produced quantity against the order target and
// persists a draft result.
func (s *Service) CreateResult(ctx context.Context, octx shared.OrgContext, input CreateResultInput) (Result, error) {
	if err := requireWrite(octx); err != nil {
		return Result{}, err
	}
	if !input.QtyProduced.IsPositive() {
		return Result{}, fmt.Errorf("produced quantity must be positive: %w", ErrValidation)
	}
	order, err := s.repo.GetOrder(ctx, input.OrderID)
	if err != nil {
		return Result{}, err
	}
	if order.Status != lifecycle.StatusAuthorized {
		return Result{}, fmt.Errorf("order must be authorized before recording results: %w", ErrValidation)
	}
	remaining, err := s.resultRemaining(ctx, s.repo, order, 0)
	if err != nil {
		return Result{}, err
	}
	if input.QtyProduced.GreaterThan(remaining) {
		return Result{}, fmt.Errorf("produced quantity %s exceeds remaining %s: %w",
			input.QtyProduced, remaining, ErrValidation)
	}

	warehouseID := input.WarehouseID
	if warehouseID == 0 {
		warehouseID = order.WarehouseID
	}
	result := Result{
		OrderID:     input.OrderID,
		Number:      defaultString(input.Number, generateNumber("RES")),
		Status:      lifecycle.StatusDraft,
		QtyProduced: input.QtyProduced,
		WarehouseID: warehouseID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateResult(ctx, result)
		if err != nil {
			return err
		}
		result.ID = id
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.recordAudit(ctx, octx, "ASSEMBLY_RESULT_CREATE", result.ID, map[string]any{"number": result.Number})
	return result, nil
}

// ListOrders returns one page of assembly orders without their lines.
func (s *Service) ListOrders(ctx context.Context, page, perPage int, filters ListFilters) ([]AssemblyOrder, shared.Pagination, error) {
	page, perPage = normalizePage(page, perPage)
	orders, total, err := s.repo.ListOrders(ctx, perPage, (page-1)*perPage, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return orders, shared.NewPagination(page, perPage, total), nil
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

// PickRemaining exposes the advisory per-component remaining map.
func (s *Service) PickRemaining(ctx context.Context, orderID int64) (map[int64]decimal.Decimal, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.pickRemaining(ctx, s.repo, order, 0)
}

func (s *Service) pickRemaining(ctx context.Context, reader ReaderPort, order AssemblyOrder, excludePickID int64) (map[int64]decimal.Decimal, error) {
	picks, err := reader.ListPicks(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	required := RequiredQuantities(order)
	picked := make(map[int64]decimal.Decimal)
	for _, pick := range picks {
		if pick.ID == excludePickID {
			continue
		}
		if pick.Status != lifecycle.StatusAuthorized && pick.Status != lifecycle.StatusCompleted {
			continue
		}
		for _, line := range pick.Lines {
			picked[line.ComponentLineID] = picked[line.ComponentLineID].Add(line.Qty)
		}
	}
	remaining := make(map[int64]decimal.Decimal, len(required))
	for lineID, total := range required {
		left := total.Sub(picked[lineID])
		if left.IsNegative() {
			left = decimal.Zero
		}
		remaining[lineID] = left
	}
	return remaining, nil
}

func (s *Service) resultRemaining(ctx context.Context, reader ReaderPort, order AssemblyOrder, excludeResultID int64) (decimal.Decimal, error) {
	results, err := reader.ListResults(ctx, order.ID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	produced := decimal.Zero
	for _, result := range results {
		if result.ID == excludeResultID {
			continue
		}
		if result.Status != lifecycle.StatusAuthorized && result.Status != lifecycle.StatusCompleted {
			continue
		}
		produced = produced.Add(result.QtyProduced)
	}
	remaining := order.QtyToProduce.Sub(produced)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return remaining, nil
}

// Transition applies a lifecycle action. Authorization re-validates inside the
// transaction and stale client snapshots surface as retryable conflicts. The
// returned order status is the repository's recomputed aggregate.
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
		idemKey = fmt.Sprintf("ASM:%s:%s", kind, doc.number)
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "assembly"); err != nil {
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
		if err := s.postStockMovements(ctx, tx, kind, docID, doc.status, action); err != nil {
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
	case lifecycle.KindAssembly:
		order, err := reader.GetOrder(ctx, docID)
		if err != nil {
			return docHeader{}, err
		}
		return docHeader{orderID: order.ID, number: order.Number, status: order.Status}, nil
	case lifecycle.KindPick:
		pick, err := reader.GetPick(ctx, docID)
		if err != nil {
			return docHeader{}, err
		}
		return docHeader{orderID: pick.OrderID, number: pick.Number, status: pick.Status}, nil
	case lifecycle.KindResult:
		result, err := reader.GetResult(ctx, docID)
		if err != nil {
			return docHeader{}, err
		}
		return docHeader{orderID: result.OrderID, number: result.Number, status: result.Status}, nil
	default:
		return docHeader{}, fmt.Errorf("unknown document kind %s: %w", kind, ErrValidation)
	}
}

// revalidate re-runs the remaining check against the transactional snapshot.
func (s *Service) revalidate(ctx context.Context, tx TxRepository, kind lifecycle.DocKind, docID, orderID int64) error {
	switch kind {
	case lifecycle.KindPick:
		pick, err := tx.GetPick(ctx, docID)
		if err != nil {
			return err
		}
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		remaining, err := s.pickRemaining(ctx, tx, order, docID)
		if err != nil {
			return err
		}
		for _, line := range pick.Lines {
			if line.Qty.GreaterThan(remaining[line.ComponentLineID]) {
				return fmt.Errorf("component line %d: requested %s, remaining %s: %w",
					line.ComponentLineID, line.Qty, remaining[line.ComponentLineID], ErrQuantityConflict)
			}
		}
	case lifecycle.KindResult:
		result, err := tx.GetResult(ctx, docID)
		if err != nil {
			return err
		}
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		remaining, err := s.resultRemaining(ctx, tx, order, docID)
		if err != nil {
			return err
		}
		if result.QtyProduced.GreaterThan(remaining) {
			return fmt.Errorf("produced %s, remaining %s: %w", result.QtyProduced, remaining, ErrQuantityConflict)
		}
	}
	return nil
}

// postStockMovements drives inventory: authorizing a pick books components
// out, authorizing a result books the output in, and leaving the authorized
// state posts the reverse movement.
func (s *Service) postStockMovements(ctx context.Context, tx TxRepository, kind lifecycle.DocKind, docID int64, prev lifecycle.Status, action lifecycle.Action) error {
	if s.inventory == nil {
		return nil
	}
	if kind != lifecycle.KindPick && kind != lifecycle.KindResult {
		return nil
	}
	inbound := kind == lifecycle.KindResult
	switch action {
	case lifecycle.ActionAuthorize:
	case lifecycle.ActionVoid, lifecycle.ActionUndo:
		if prev != lifecycle.StatusAuthorized {
			return nil
		}
		inbound = !inbound
	default:
		return nil
	}

	type movement struct {
		warehouseID int64
		productID   int64
		qty         decimal.Decimal
		code        string
	}
	var moves []movement
	if kind == lifecycle.KindPick {
		pick, err := tx.GetPick(ctx, docID)
		if err != nil {
			return err
		}
		for _, line := range pick.Lines {
			moves = append(moves, movement{line.WarehouseID, line.ProductID, line.Qty,
				fmt.Sprintf("%s-%d", pick.Number, line.ComponentLineID)})
		}
	} else {
		result, err := tx.GetResult(ctx, docID)
		if err != nil {
			return err
		}
		order, err := tx.GetOrder(ctx, result.OrderID)
		if err != nil {
			return err
		}
		moves = append(moves, movement{result.WarehouseID, order.ProductID, result.QtyProduced, result.Number})
	}

	for _, mv := range moves {
		input := inventory.MovementInput{
			Code:        mv.code,
			WarehouseID: mv.warehouseID,
			ProductID:   mv.productID,
			Qty:         mv.qty,
			RefModule:   "ASSEMBLY",
			RefID:       fmt.Sprintf("%s:%d:%s", kind, docID, action),
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

func (s *Service) recordAudit(ctx context.Context, octx shared.OrgContext, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OrgID:    octx.OrgID,
		ActorID:  octx.ActorID,
		Action:   action,
		Entity:   "assembly",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func defaultString(value, fallback string) string {
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
