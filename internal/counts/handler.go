package counts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/almacen-erp/almacen-erp/internal/platform/httpx"
	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// Handler wires HTTP endpoints for inventory counts.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the counts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers count routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/completar", h.handleComplete)
	r.Post("/{id}/aplicar", h.handleApply)
}

type lineRequest struct {
	ItemKind string  `json:"item_kind" validate:"required,oneof=insumo refaccion"`
	ItemID   int64   `json:"item_id" validate:"required,gt=0"`
	Qty      float64 `json:"qty" validate:"gte=0"`
	UnitCost float64 `json:"unit_cost" validate:"gte=0"`
}

type createRequest struct {
	Notes     string        `json:"observaciones"`
	Completed bool          `json:"completado"`
	Lines     []lineRequest `json:"detalles" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	lines := make([]LineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, LineInput{
			Item:     shared.ItemRef{Kind: shared.ItemKind(line.ItemKind), ID: line.ItemID},
			Qty:      line.Qty,
			UnitCost: line.UnitCost,
		})
	}
	count, created, err := h.service.Create(r.Context(), CreateInput{
		EmployeeID: actor.ID,
		Notes:      req.Notes,
		Completed:  req.Completed,
		Lines:      lines,
	})
	if err != nil {
		h.logger.Error("create count failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"count_id": count.ID, "status": string(count.Status), "lines": len(created)})
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid count id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.Complete(r.Context(), id, actor.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"count_id": id, "status": string(StatusCompleted)})
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid count id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	count, err := h.service.Apply(r.Context(), id, actor.ID)
	if err != nil {
		h.logger.Error("apply count failed", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"count_id": count.ID, "status": string(count.Status)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid count id")
		return
	}
	count, lines, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"count": count, "lines": lines})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	counts, err := h.service.List(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"counts": counts})
}
