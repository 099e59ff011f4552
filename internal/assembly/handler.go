package assembly

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

// Handler exposes the assembly JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	metrics  *observability.Metrics
	validate *validator.Validate
}

// NewHandler builds Handler instance. metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, metrics: metrics, validate: validator.New()}
}

var routeKinds = map[string]lifecycle.DocKind{
	"orders":  lifecycle.KindAssembly,
	"picks":   lifecycle.KindPick,
	"results": lifecycle.KindResult,
}

// MountRoutes registers assembly routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders", h.listOrders)
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{orderID}/pick-remaining", h.pickRemaining)
	r.Post("/orders/{orderID}/picks", h.createPick)
	r.Post("/orders/{orderID}/results", h.createResult)

	for segment, kind := range routeKinds {
		base := "/" + segment + "/{id}"
		r.Post(base+"/authorize", h.transition(kind, lifecycle.ActionAuthorize))
		r.Post(base+"/void", h.transition(kind, lifecycle.ActionVoid))
		r.Post(base+"/undo", h.transition(kind, lifecycle.ActionUndo))
	}

	r.Post("/preview/total-quantity", h.previewTotalQuantity)
	r.Post("/preview/wastage", h.previewWastage)
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
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid figure %q: %w", value, shared.ErrValidation)
	}
	return amount, nil
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	perPage, _ := strconv.Atoi(query.Get("per_page"))
	productID, _ := strconv.ParseInt(query.Get("product_id"), 10, 64)
	filters := ListFilters{
		Status:    query.Get("status"),
		ProductID: productID,
		Search:    query.Get("search"),
		SortBy:    query.Get("sort"),
		SortDir:   query.Get("dir"),
	}

	orders, pagination, err := h.service.ListOrders(r.Context(), page, perPage, filters)
	if err != nil {
		h.logger.Error("list assembly orders", "error", err)
		httpx.RespondError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(orders))
	for _, order := range orders {
		items = append(items, map[string]any{
			"id":           order.ID,
			"number":       order.Number,
			"productId":    order.ProductID,
			"qtyToProduce": order.QtyToProduce.String(),
			"warehouseId":  order.WarehouseID,
			"status":       string(order.Status),
			"date":         order.Date,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items": items,
		"pagination": map[string]any{
			"page":       pagination.Page,
			"perPage":    pagination.PerPage,
			"total":      pagination.Total,
			"totalPages": pagination.TotalPages,
		},
	})
}

type componentLineRequest struct {
	ProductID  int64  `json:"productId" validate:"required"`
	QtyToUse   string `json:"qtyToUse" validate:"required"`
	WastagePct string `json:"wastagePct"`
	WastageQty string `json:"wastageQty"`
}

type createOrderRequest struct {
	Number       string                 `json:"number"`
	ProductID    int64                  `json:"productId" validate:"required"`
	QtyToProduce string                 `json:"qtyToProduce" validate:"required"`
	WarehouseID  int64                  `json:"warehouseId" validate:"required"`
	Date         string                 `json:"date"`
	Lines        []componentLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	input := CreateOrderInput{Number: req.Number, ProductID: req.ProductID, WarehouseID: req.WarehouseID}
	var err error
	if input.QtyToProduce, err = parseAmount(req.QtyToProduce); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.Date != "" {
		date, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("invalid date: %w", shared.ErrValidation))
			return
		}
		input.Date = date
	}
	for _, line := range req.Lines {
		li := ComponentLineInput{ProductID: line.ProductID}
		if li.QtyToUse, err = parseAmount(line.QtyToUse); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if li.WastagePct, err = parseAmount(line.WastagePct); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if li.WastageQty, err = parseAmount(line.WastageQty); err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.Lines = append(input.Lines, li)
	}

	order, err := h.service.CreateOrder(r.Context(), shared.OrgFromContext(r.Context()), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("assembly order created", "id", order.ID, "number", order.Number)
	httpx.JSON(w, http.StatusCreated, map[string]any{"orderId": order.ID, "number": order.Number})
}

type pickLineRequest struct {
	ComponentLineID int64  `json:"componentLineId" validate:"required"`
	Qty             string `json:"qty" validate:"required"`
	WarehouseID     int64  `json:"warehouseId"`
}

type createPickRequest struct {
	Number string            `json:"number"`
	Lines  []pickLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) createPick(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlID(r, "orderID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createPickRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	input := CreatePickInput{OrderID: orderID, Number: req.Number}
	for _, line := range req.Lines {
		qty, err := parseAmount(line.Qty)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.Lines = append(input.Lines, PickLineInput{
			ComponentLineID: line.ComponentLineID,
			Qty:             qty,
			WarehouseID:     line.WarehouseID,
		})
	}

	pick, err := h.service.CreatePick(r.Context(), shared.OrgFromContext(r.Context()), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("assembly pick created", "id", pick.ID, "number", pick.Number, "order_id", orderID)
	httpx.JSON(w, http.StatusCreated, map[string]any{"pickId": pick.ID, "number": pick.Number})
}

type createResultRequest struct {
	Number      string `json:"number"`
	QtyProduced string `json:"qtyProduced" validate:"required"`
	WarehouseID int64  `json:"warehouseId"`
}

func (h *Handler) createResult(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlID(r, "orderID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createResultRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	qty, err := parseAmount(req.QtyProduced)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.CreateResult(r.Context(), shared.OrgFromContext(r.Context()), CreateResultInput{
		OrderID:     orderID,
		Number:      req.Number,
		QtyProduced: qty,
		WarehouseID: req.WarehouseID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("assembly result created", "id", result.ID, "number", result.Number, "order_id", orderID)
	httpx.JSON(w, http.StatusCreated, map[string]any{"resultId": result.ID, "number": result.Number})
}

func (h *Handler) pickRemaining(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlID(r, "orderID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	remaining, err := h.service.PickRemaining(r.Context(), orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make(map[string]string, len(remaining))
	for lineID, qty := range remaining {
		out[strconv.FormatInt(lineID, 10)] = qty.String()
	}
	httpx.JSON(w, http.StatusOK, out)
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
		h.logger.Info("assembly document transitioned",
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

type previewTotalQuantityRequest struct {
	QtyToProduce string `json:"qtyToProduce"`
	QtyToUse     string `json:"qtyToUse"`
	WastagePct   string `json:"wastagePct"`
	WastageQty   string `json:"wastageQty"`
	Available    string `json:"available"`
}

// previewTotalQuantity computes a component requirement for the editor
// without persisting anything.
func (h *Handler) previewTotalQuantity(w http.ResponseWriter, r *http.Request) {
	var req previewTotalQuantityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	pct, err := parseAmount(req.WastagePct)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	qty, err := parseAmount(req.WastageQty)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	available, err := parseAmount(req.Available)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	yield := CalculateTotalQuantity(parseNullAmount(req.QtyToProduce), parseNullAmount(req.QtyToUse), pct, qty, available)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"totalQuantity": yield.TotalQuantity.StringFixed(2),
		"error":         yield.Err,
	})
}

func parseNullAmount(value string) decimal.NullDecimal {
	if value == "" {
		return decimal.NullDecimal{}
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(amount)
}

type previewWastageRequest struct {
	WastagePct string `json:"wastagePct"`
	WastageQty string `json:"wastageQty"`
	PctEdited  bool   `json:"pctEdited"`
}

// previewWastage normalizes the mutually exclusive wastage fields after an
// edit.
func (h *Handler) previewWastage(w http.ResponseWriter, r *http.Request) {
	var req previewWastageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	pct, err := parseAmount(req.WastagePct)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	qty, err := parseAmount(req.WastageQty)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pct, qty = NormalizeWastage(pct, qty, req.PctEdited)
	httpx.JSON(w, http.StatusOK, map[string]string{
		"wastagePct": pct.String(),
		"wastageQty": qty.String(),
	})
}
