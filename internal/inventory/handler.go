package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/procureflow/procureflow/internal/platform/httpx"
)

// Handler exposes stock card reporting endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock-card", h.stockCard)
	r.Get("/on-hand", h.onHand)
}

func (h *Handler) stockCard(w http.ResponseWriter, r *http.Request) {
	filter := StockCardFilter{}
	query := r.URL.Query()
	filter.WarehouseID, _ = strconv.ParseInt(query.Get("warehouse_id"), 10, 64)
	filter.ProductID, _ = strconv.ParseInt(query.Get("product_id"), 10, 64)
	if v := query.Get("from"); v != "" {
		if from, err := time.Parse(time.DateOnly, v); err == nil {
			filter.From = from
		}
	}
	if v := query.Get("to"); v != "" {
		if to, err := time.Parse(time.DateOnly, v); err == nil {
			filter.To = to
		}
	}

	entries, err := h.service.StockCard(r.Context(), filter)
	if err != nil {
		h.logger.Error("stock card query failed", "error", err)
		httpx.RespondError(w, err)
		return
	}

	type entryResponse struct {
		ID          int64  `json:"id"`
		TxCode      string `json:"txCode"`
		WarehouseID int64  `json:"warehouseId"`
		ProductID   int64  `json:"productId"`
		TxType      string `json:"txType"`
		QtyIn       string `json:"qtyIn"`
		QtyOut      string `json:"qtyOut"`
		Balance     string `json:"balance"`
		RefModule   string `json:"refModule"`
		RefID       string `json:"refId"`
		PostedAt    string `json:"postedAt"`
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:          e.ID,
			TxCode:      e.TxCode,
			WarehouseID: e.WarehouseID,
			ProductID:   e.ProductID,
			TxType:      string(e.TxType),
			QtyIn:       e.QtyIn.String(),
			QtyOut:      e.QtyOut.String(),
			Balance:     e.Balance.String(),
			RefModule:   e.RefModule,
			RefID:       e.RefID,
			PostedAt:    e.PostedAt.Format(time.RFC3339),
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) onHand(w http.ResponseWriter, r *http.Request) {
	warehouseID, _ := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	productID, _ := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if warehouseID == 0 || productID == 0 {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "warehouse_id and product_id are required")
		return
	}
	balance, err := h.service.OnHand(r.Context(), warehouseID, productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"balance": balance.String()})
}
