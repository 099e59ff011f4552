package purchasing

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/procureflow/procureflow/internal/lifecycle"
	"github.com/procureflow/procureflow/internal/observability"
	"github.com/procureflow/procureflow/internal/platform/httpx"
	"github.com/procureflow/procureflow/internal/shared"
)

// Handler exposes the purchasing JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	snapshots *SnapshotStore
	metrics   *observability.Metrics
	validate  *validator.Validate
}

// NewHandler builds Handler instance. snapshots and metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, snapshots *SnapshotStore, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		snapshots: snapshots,
		metrics:   metrics,
		validate:  validator.New(),
	}
}

// MountRoutes registers purchasing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders", h.listOrders)
	r.Route("/orders/{orderID}", func(r chi.Router) {
		r.Get("/remaining", h.remaining)
		r.Get("/receivings/available", h.availableReceivings)
		r.Post("/receivings/selected", h.selectedReceivingQuantities)
		r.Get("/bills/available", h.availableBills)
		r.Post("/receivings", h.createReceiving)
		r.Post("/bills", h.createBill)
		r.Post("/credit-notes", h.createCreditNote)
		r.Post("/unstocks", h.createUnstock)
	})

	r.Get("/bills/{id}/form", h.billForm)
	r.Put("/bills/{id}", h.updateBill)
	r.Get("/receivings/{id}/form", h.receivingForm)

	for segment, kind := range routeKinds {
		base := "/" + segment + "/{id}"
		r.Get("/"+segment, h.listDocuments(kind))
		r.Post(base+"/authorize", h.transition(kind, lifecycle.ActionAuthorize))
		r.Post(base+"/void", h.transition(kind, lifecycle.ActionVoid))
		r.Post(base+"/undo", h.transition(kind, lifecycle.ActionUndo))
		r.Post(base+"/complete", h.transition(kind, lifecycle.ActionComplete))
	}

	r.Post("/preview/line-total", h.previewLineTotal)
	r.Post("/preview/allocations", h.previewAllocations)
}

var routeKinds = map[string]lifecycle.DocKind{
	"receivings":   lifecycle.KindReceiving,
	"bills":        lifecycle.KindBill,
	"credit-notes": lifecycle.KindCreditNote,
	"unstocks":     lifecycle.KindUnstock,
}

func urlID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %w", name, shared.ErrValidation)
	}
	return id, nil
}

func parseAmount(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	qty, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid figure %q: %w", value, shared.ErrValidation)
	}
	return qty, nil
}

type receivingLineRequest struct {
	OrderLineID   int64  `json:"orderLineId" validate:"required"`
	Qty           string `json:"qty" validate:"required"`
	BatchOrSerial string `json:"batchOrSerial"`
	ExpiryDate    string `json:"expiryDate"`
	WarehouseID   int64  `json:"warehouseId" validate:"required"`
}

type createReceivingRequest struct {
	Number string                 `json:"number"`
	Date   string                 `json:"date"`
	Lines  []receivingLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) createReceiving(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlID(r, "orderID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createReceivingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	input := CreateReceivingInput{OrderID: orderID, Number: req.Number}
	if req.Date != "" {
		date, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("invalid date: %w", shared.ErrValidation))
			return
		}
		input.Date = date
	}
	for _, line := range req.Lines {
		qty, err := parseAmount(line.Qty)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		li := ReceivingLineInput{
			OrderLineID:   line.OrderLineID,
			Qty:           qty,
			BatchOrSerial: line.BatchOrSerial,
			WarehouseID:   line.WarehouseID,
		}
		if line.ExpiryDate != "" {
			expiry, err := time.Parse(time.DateOnly, line.ExpiryDate)
			if err != nil {
				httpx.RespondError(w, fmt.Errorf("invalid expiry date: %w", shared.ErrValidation))
				return
			}
			li.ExpiryDate = expiry
		}
		input.Lines = append(input.Lines, li)
	}

	rcv, err := h.service.CreateReceiving(r.Context(), shared.OrgFromContext(r.Context()), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("receiving created", "id", rcv.ID, "number", rcv.Number, "order_id", orderID)
	httpx.JSON(w, http.StatusCreated, ReceivingFormFromDocument(rcv))
}

type billLineRequest struct {
	OrderLineID int64  `json:"orderLineId"`
	ProductID   int64  `json:"productId" validate:"required"`
	Qty         string `json:"qty" validate:"required"`
	UnitPrice   string `json:"unitPrice" validate:"required"`
	DiscountPct string `json:"discountPct"`
	TaxRateID   int64  `json:"taxRateId"`
	AccountID   int64  `json:"accountId"`
}

type allocationRequest struct {
	BillLineID int64  `json:"billLineId" validate:"required"`
	Cost       string `json:"cost" validate:"required"`
}

type serviceLineRequest struct {
	Description string              `json:"description" validate:"required"`
	Amount      string              `json:"amount" validate:"required"`
	AccountID   int64               `json:"accountId"`
	LandedCost  bool                `json:"landedCost"`
	Allocations []allocationRequest `json:"allocations" validate:"dive"`
}

type createBillRequest struct {
	Number       string               `json:"number"`
	DueAt        string               `json:"dueAt"`
	Lines        []billLineRequest    `json:"lines" validate:"required,min=1,dive"`
	ServiceLines []serviceLineRequest `json:"serviceLines" validate:"dive"`
	ReceivingIDs []int64              `json:"receivingIds"`
}

func (h *Handler) createBill(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlID(r, "orderID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createBillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	input := CreateBillInput{OrderID: orderID, Number: req.Number, ReceivingIDs: req.ReceivingIDs}
	if req.DueAt != "" {
		due, err := time.Parse(time.DateOnly, req.DueAt)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("invalid due date: %w", shared.ErrValidation))
			return
		}
		input.DueAt = due
	}
	for _, line := range req.Lines {
		li := BillLineInput{
			OrderLineID: line.OrderLineID,
			ProductID:   line.ProductID,
			TaxRateID:   line.TaxRateID,
			AccountID:   line.AccountID,
		}
		if li.Qty, err = parseAmount(line.Qty); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if li.UnitPrice, err = parseAmount(line.UnitPrice); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if li.DiscountPct, err = parseAmount(line.DiscountPct); err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.Lines = append(input.Lines, li)
	}
	for _, svc := range req.ServiceLines {
		sl := ServiceLine{Description: svc.Description, AccountID: svc.AccountID, LandedCost: svc.LandedCost}
		if sl.Amount, err = parseAmount(svc.Amount); err != nil {
			httpx.RespondError(w, err)
			return
		}
		for _, alloc := range svc.Allocations {
			cost, err := parseAmount(alloc.Cost)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			sl.Allocations = append(sl.Allocations, Allocation{BillLineID: alloc.BillLineID, Cost: cost})
		}
		input.ServiceLines = append(input.ServiceLines, sl)
	}

	bill, err := h.service.CreateBill(r.Context(), shared.OrgFromContext(r.Context()), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("bill created", "id", bill.ID, "number", bill.Number, "order_id", orderID)
	httpx.JSON(w, http.StatusCreated, BillFormFromDocument(bill))
}

func (h *Handler) billForm(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bill, err := h.service.repo.GetBill(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, BillFormFromDocument(bill))
}

func (h *Handler) updateBill(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var form BillForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	form.BillID = id
	update, err := BillUpdateFromForm(form)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.UpdateBill(r.Context(), shared.OrgFromContext(r.Context()), update); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("bill updated", "id", id)
	httpx.JSON(w, http.StatusOK, map[string]any{"billId": id})
}

func (h *Handler) receivingForm(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rcv, err := h.service.repo.GetReceiving(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ReceivingFormFromDocument(rcv))
}

type creditNoteLineRequest struct {
	BillLineID  int64  `json:"billLineId" validate:"required"`
	OrderLineID int64  `json:"orderLineId" validate:"required"`
	Qty         string `json:"qty" validate:"required"`
}

type createCreditNoteRequest struct {
	Number  string                  `json:"number"`
	Lines   []creditNoteLineRequest `json:"lines" validate:"required,min=1,dive"`
	BillIDs []int64                 `json:"billIds"`
}

func (h *Handler) createCreditNote(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlID(r, "orderID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createCreditNoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	input := CreateCreditNoteInput{OrderID: orderID, Number: req.Number, BillIDs: req.BillIDs}
	for _, line := range req.Lines {
		qty, err := parseAmount(line.Qty)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.Lines = append(input.Lines, CreditNoteLineInput{
			BillLineID:  line.BillLineID,
			OrderLineID: line.OrderLineID,
			Qty:         qty,
		})
	}

	note, err := h.service.CreateCreditNote(r.Context(), shared.OrgFromContext(r.Context()), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("credit note created", "id", note.ID, "number", note.Number, "order_id", orderID)
	httpx.JSON(w, http.StatusCreated, map[string]any{"creditNoteId": note.ID, "number": note.Number})
}

type unstockLineRequest struct {
	CreditNoteLineID int64  `json:"creditNoteLineId"`
	OrderLineID      int64  `json:"orderLineId" validate:"required"`
	Qty              string `json:"qty" validate:"required"`
	WarehouseID      int64  `json:"warehouseId" validate:"required"`
}

type createUnstockRequest struct {
	CreditNoteID int64                `json:"creditNoteId" validate:"required"`
	Number       string               `json:"number"`
	Lines        []unstockLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) createUnstock(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlID(r, "orderID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createUnstockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	input := CreateUnstockInput{OrderID: orderID, CreditNoteID: req.CreditNoteID, Number: req.Number}
	for _, line := range req.Lines {
		qty, err := parseAmount(line.Qty)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.Lines = append(input.Lines, UnstockLineInput{
			CreditNoteLineID: line.CreditNoteLineID,
			OrderLineID:      line.OrderLineID,
			Qty:              qty,
			WarehouseID:      line.WarehouseID,
		})
	}

	unstock, err := h.service.CreateUnstock(r.Context(), shared.OrgFromContext(r.Context()), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("unstock created", "id", unstock.ID, "number", unstock.Number, "order_id", orderID)
	httpx.JSON(w, http.StatusCreated, map[string]any{"unstockId": unstock.ID, "number": unstock.Number})
}

// transition returns a handler applying one lifecycle action to the document
// kind the route was registered for.
func (h *Handler) transition(kind lifecycle.DocKind, action lifecycle.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		result, err := h.service.Transition(r.Context(), shared.OrgFromContext(r.Context()), kind, id, action)
		if err != nil {
			if h.metrics != nil && errors.Is(err, shared.ErrConflict) {
				h.metrics.ObserveQuantityConflict()
			}
			httpx.RespondError(w, err)
			return
		}
		if h.metrics != nil {
			h.metrics.ObserveTransition(string(kind), string(action))
		}
		h.logger.Info("document transitioned",
			"kind", string(kind), "id", id, "action", string(action),
			"status", string(result.Status), "order_status", result.OrderStatus)
		httpx.JSON(w, http.StatusOK, map[string]any{
			"docId":       result.DocID,
			"kind":        string(result.Kind),
			"status":      string(result.Status),
			"orderId":     result.OrderID,
			"orderStatus": result.OrderStatus,
		})
	}
}

func listQuery(r *http.Request) (int, int, ListFilters) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	perPage, _ := strconv.Atoi(query.Get("per_page"))
	supplierID, _ := strconv.ParseInt(query.Get("supplier_id"), 10, 64)
	return page, perPage, ListFilters{
		Status:     query.Get("status"),
		SupplierID: supplierID,
		Search:     query.Get("search"),
		SortBy:     query.Get("sort"),
		SortDir:    query.Get("dir"),
	}
}

func paginationResponse(p shared.Pagination) map[string]any {
	return map[string]any{
		"page":       p.Page,
		"perPage":    p.PerPage,
		"total":      p.Total,
		"totalPages": p.TotalPages,
	}
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	page, perPage, filters := listQuery(r)
	orders, pagination, err := h.service.ListOrders(r.Context(), page, perPage, filters)
	if err != nil {
		h.logger.Error("list orders", "error", err)
		httpx.RespondError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(orders))
	for _, order := range orders {
		items = append(items, map[string]any{
			"id":           order.ID,
			"number":       order.Number,
			"supplierId":   order.SupplierID,
			"currency":     order.Currency,
			"taxInclusive": order.TaxInclusive,
			"status":       order.Status,
			"issuedAt":     order.IssuedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": paginationResponse(pagination),
	})
}

// listDocuments returns a handler listing summaries of the document kind the
// route was registered for.
func (h *Handler) listDocuments(kind lifecycle.DocKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, perPage, filters := listQuery(r)
		docs, pagination, err := h.service.ListDocuments(r.Context(), kind, page, perPage, filters)
		if err != nil {
			h.logger.Error("list documents", "kind", string(kind), "error", err)
			httpx.RespondError(w, err)
			return
		}
		items := make([]map[string]any, 0, len(docs))
		for _, doc := range docs {
			items = append(items, map[string]any{
				"id":      doc.ID,
				"orderId": doc.OrderID,
				"number":  doc.Number,
				"status":  string(doc.Status),
			})
		}
		httpx.JSON(w, http.StatusOK, map[string]any{
			"items":      items,
			"pagination": paginationResponse(pagination),
		})
	}
}

// remaining serves the advisory remaining map for one consumer kind, cached
// in Redis when a snapshot store is configured.
func (h *Handler) remaining(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlID(r, "orderID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	kind, ok := routeKinds[r.URL.Query().Get("kind")]
	if !ok {
		httpx.RespondError(w, fmt.Errorf("unknown kind: %w", shared.ErrValidation))
		return
	}

	if h.snapshots != nil {
		if cached, err := h.snapshots.GetRemaining(r.Context(), orderID, kind); err == nil && cached != nil {
			httpx.JSON(w, http.StatusOK, remainingResponse(cached))
			return
		}
	}

	remaining, err := h.service.Remaining(r.Context(), orderID, kind, 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.snapshots != nil {
		if err := h.snapshots.SetRemaining(r.Context(), orderID, kind, remaining); err != nil {
			h.logger.Warn("snapshot cache write failed", "order_id", orderID, "error", err)
		}
	}
	httpx.JSON(w, http.StatusOK, remainingResponse(remaining))
}

func remainingResponse(remaining map[int64]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(remaining))
	for lineID, qty := range remaining {
		out[strconv.FormatInt(lineID, 10)] = qty.String()
	}
	return out
}

type leftoverResponse struct {
	ID     int64             `json:"id"`
	Number string            `json:"number"`
	Qty    map[string]string `json:"qty"`
}

func leftoverResponses(leftovers []Leftover) []leftoverResponse {
	out := make([]leftoverResponse, 0, len(leftovers))
	for _, left := range leftovers {
		item := leftoverResponse{ID: left.ID, Number: left.Number, Qty: make(map[string]string, len(left.Qty))}
		for lineID, qty := range left.Qty {
			item.Qty[strconv.FormatInt(lineID, 10)] = qty.String()
		}
		out = append(out, item)
	}
	return out
}

func (h *Handler) availableReceivings(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlID(r, "orderID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	leftovers, err := h.service.AvailableReceivings(r.Context(), orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, leftoverResponses(leftovers))
}

func (h *Handler) availableBills(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlID(r, "orderID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	leftovers, err := h.service.AvailableBills(r.Context(), orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, leftoverResponses(leftovers))
}

func (h *Handler) selectedReceivingQuantities(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlID(r, "orderID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req struct {
		ReceivingIDs []int64 `json:"receivingIds" validate:"required,min=1"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	quantities, err := h.service.SelectedReceivingQuantities(r.Context(), orderID, req.ReceivingIDs)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, remainingResponse(quantities))
}

type previewLineTotalRequest struct {
	UnitPrice    string `json:"unitPrice"`
	Qty          string `json:"qty"`
	DiscountPct  string `json:"discountPct"`
	TaxInclusive bool   `json:"taxInclusive"`
	TaxRateID    int64  `json:"taxRateId"`
}

// previewLineTotal computes a single line total for the editor without
// persisting anything.
func (h *Handler) previewLineTotal(w http.ResponseWriter, r *http.Request) {
	var req previewLineTotalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	price := parseNullFigure(req.UnitPrice)
	qty := parseNullFigure(req.Qty)
	discount, err := parseAmount(req.DiscountPct)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	var rate *TaxRate
	if req.TaxRateID != 0 {
		taxes, err := h.service.repo.ListTaxRates(r.Context())
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if tax, ok := taxes[req.TaxRateID]; ok {
			rate = &tax
		}
	}

	result := CalculateLineTotal(price, qty, ClampPercent(discount), req.TaxInclusive, rate)
	if result.Err != "" {
		httpx.JSON(w, http.StatusOK, map[string]any{"error": result.Err})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"total":    result.Total.StringFixed(2),
		"totalTax": result.TotalTax.StringFixed(2),
	})
}

func parseNullFigure(value string) decimal.NullDecimal {
	if value == "" {
		return decimal.NullDecimal{}
	}
	qty, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(qty)
}

type previewAllocationsRequest struct {
	Currency     string               `json:"currency"`
	ServiceLines []serviceLineRequest `json:"serviceLines" validate:"required,min=1,dive"`
}

// previewAllocations validates landed-cost allocation sums for the editor.
func (h *Handler) previewAllocations(w http.ResponseWriter, r *http.Request) {
	var req previewAllocationsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	var serviceLines []ServiceLine
	for _, svc := range req.ServiceLines {
		sl := ServiceLine{Description: svc.Description, LandedCost: svc.LandedCost}
		amount, err := parseAmount(svc.Amount)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		sl.Amount = amount
		for _, alloc := range svc.Allocations {
			cost, err := parseAmount(alloc.Cost)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			sl.Allocations = append(sl.Allocations, Allocation{BillLineID: alloc.BillLineID, Cost: cost})
		}
		serviceLines = append(serviceLines, sl)
	}

	check := ValidateAllocations(serviceLines, req.Currency)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"ok":            check.OK,
		"mismatchIndex": check.MismatchIndex,
		"message":       check.Message,
	})
}
