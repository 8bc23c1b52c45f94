package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/almacen-erp/almacen-erp/internal/platform/httpx"
	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// Handler wires read endpoints for the ledger: kardex, batches and live
// balances. Mutations enter through the entries, adjustments, loans and
// counts modules.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/movements", h.handleMovements)
	r.Get("/parts/{id}/stock", h.handlePartStock)
	r.Get("/parts/{id}/batches", h.handleBatches)
	r.Get("/consumables/{id}/balance", h.handleConsumableBalance)
}

type movementResponse struct {
	ID       int64   `json:"id"`
	BatchID  int64   `json:"batch_id,omitempty"`
	QtyIn    float64 `json:"qty_in"`
	QtyOut   float64 `json:"qty_out"`
	UnitCost float64 `json:"unit_cost"`
	Ref      string  `json:"ref_module,omitempty"`
	Note     string  `json:"note,omitempty"`
	PostedAt string  `json:"posted_at"`
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{Kind: shared.ItemKind(q.Get("item_kind"))}
	filter.ItemID, _ = strconv.ParseInt(q.Get("item_id"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	if from := q.Get("from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			filter.From = t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			filter.To = t.Add(24*time.Hour - time.Nanosecond)
		}
	}
	movements, err := h.service.Movements(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payload := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		payload = append(payload, movementResponse{
			ID:       m.ID,
			BatchID:  m.BatchID,
			QtyIn:    m.QtyIn,
			QtyOut:   m.QtyOut,
			UnitCost: m.UnitCost,
			Ref:      m.RefModule,
			Note:     m.Note,
			PostedAt: m.PostedAt.Format(time.RFC3339),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": payload})
}

func (h *Handler) handlePartStock(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid part id")
		return
	}
	stock, err := h.service.PartStock(r.Context(), id)
	if err != nil {
		h.logger.Error("part stock query failed", slog.Int64("part_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"part_id": id, "stock": stock})
}

func (h *Handler) handleBatches(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid part id")
		return
	}
	batches, err := h.service.ListBatches(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"part_id": id, "batches": batches})
}

func (h *Handler) handleConsumableBalance(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid consumable id")
		return
	}
	balance, err := h.service.ConsumableBalance(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}
