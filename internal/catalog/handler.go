package catalog

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/almacen-erp/almacen-erp/internal/platform/httpx"
	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// CatalogReader is the read surface the handler needs.
type CatalogReader interface {
	ListParts(ctx context.Context, filter Filter) ([]PartSummary, shared.Pagination, error)
	ListConsumables(ctx context.Context, filter Filter) ([]ConsumableSummary, shared.Pagination, error)
	GetPart(ctx context.Context, id int64) (PartSummary, error)
	GetConsumable(ctx context.Context, id int64) (ConsumableSummary, error)
}

// Handler serves catalog reads.
type Handler struct {
	reader CatalogReader
}

// NewHandler constructs the catalog handler.
func NewHandler(reader CatalogReader) *Handler {
	return &Handler{reader: reader}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/refacciones", h.handleListParts)
	r.Get("/refacciones/{id}", h.handleGetPart)
	r.Get("/insumos", h.handleListConsumables)
	r.Get("/insumos/{id}", h.handleGetConsumable)
}

func filterFromQuery(r *http.Request) Filter {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return Filter{
		Search:       r.URL.Query().Get("q"),
		LowStockOnly: r.URL.Query().Get("low_stock") == "true",
		Page:         page,
		PerPage:      perPage,
	}
}

func (h *Handler) handleListParts(w http.ResponseWriter, r *http.Request) {
	parts, pagination, err := h.reader.ListParts(r.Context(), filterFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"parts": parts, "pagination": pagination})
}

func (h *Handler) handleListConsumables(w http.ResponseWriter, r *http.Request) {
	consumables, pagination, err := h.reader.ListConsumables(r.Context(), filterFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"consumables": consumables, "pagination": pagination})
}

func (h *Handler) handleGetPart(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid part id")
		return
	}
	part, err := h.reader.GetPart(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, part)
}

func (h *Handler) handleGetConsumable(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid consumable id")
		return
	}
	consumable, err := h.reader.GetConsumable(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, consumable)
}
