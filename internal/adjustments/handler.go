package adjustments

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/almacen-erp/almacen-erp/internal/platform/httpx"
	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// Handler wires HTTP endpoints for adjustments.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the adjustments handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers adjustment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handlePost)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleRevise)
}

type lineRequest struct {
	ItemKind  string  `json:"item_kind" validate:"required,oneof=insumo refaccion"`
	ItemID    int64   `json:"item_id" validate:"required,gt=0"`
	Qty       float64 `json:"qty" validate:"gte=0"`
	UnitCost  float64 `json:"unit_cost" validate:"gte=0"`
	CostDelta float64 `json:"cost_delta"`
	BatchID   int64   `json:"batch_id"`
}

type postRequest struct {
	Type   string        `json:"tipo" validate:"required,oneof=ENTRADA SALIDA REVALORIZACION"`
	Reason string        `json:"motivo" validate:"required"`
	Lines  []lineRequest `json:"detalles" validate:"required,min=1,dive"`
}

type reviseRequest struct {
	Type   string        `json:"tipo" validate:"required,oneof=ENTRADA SALIDA REVALORIZACION"`
	Reason string        `json:"motivo" validate:"required"`
	Lines  []lineRequest `json:"detalles" validate:"dive"`
}

type lineResponse struct {
	ID       int64   `json:"id"`
	ItemKind string  `json:"item_kind"`
	ItemID   int64   `json:"item_id"`
	Qty      float64 `json:"qty"`
	BatchID  int64   `json:"batch_id,omitempty"`
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	adj, lines, err := h.service.Post(r.Context(), PostInput{
		Type:       Type(req.Type),
		EmployeeID: actor.ID,
		Reason:     req.Reason,
		Lines:      toLineInputs(req.Lines),
	})
	if err != nil {
		h.logger.Error("post adjustment failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"adjustment_id": adj.ID, "lines": toLineResponses(lines)})
}

func (h *Handler) handleRevise(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid adjustment id")
		return
	}
	var req reviseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	adj, lines, err := h.service.Revise(r.Context(), id, PostInput{
		Type:       Type(req.Type),
		EmployeeID: actor.ID,
		Reason:     req.Reason,
		Lines:      toLineInputs(req.Lines),
	})
	if err != nil {
		h.logger.Error("revise adjustment failed", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"adjustment_id": adj.ID, "lines": toLineResponses(lines)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid adjustment id")
		return
	}
	adj, lines, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"adjustment": adj, "lines": toLineResponses(lines)})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	result, err := h.service.List(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"adjustments": result})
}

func toLineInputs(lines []lineRequest) []LineInput {
	inputs := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		inputs = append(inputs, LineInput{
			Item:      shared.ItemRef{Kind: shared.ItemKind(line.ItemKind), ID: line.ItemID},
			Qty:       line.Qty,
			UnitCost:  line.UnitCost,
			CostDelta: line.CostDelta,
			BatchID:   line.BatchID,
		})
	}
	return inputs
}

func toLineResponses(lines []Line) []lineResponse {
	result := make([]lineResponse, 0, len(lines))
	for _, line := range lines {
		result = append(result, lineResponse{
			ID:       line.ID,
			ItemKind: string(line.ItemKind),
			ItemID:   line.ItemID,
			Qty:      line.Qty,
			BatchID:  line.BatchID,
		})
	}
	return result
}
