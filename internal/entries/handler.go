package entries

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/almacen-erp/almacen-erp/internal/inventory"
	"github.com/almacen-erp/almacen-erp/internal/platform/httpx"
	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// Handler wires HTTP endpoints for entries.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the entries handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers entry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Post("/recepciones", h.handleReceipt)
	r.Post("/salidas", h.handleDispatch)
	r.Post("/producciones", h.handleProduction)
}

type receiptLineRequest struct {
	ItemKind string  `json:"item_kind" validate:"required,oneof=insumo refaccion"`
	ItemID   int64   `json:"item_id" validate:"required,gt=0"`
	Qty      float64 `json:"qty" validate:"required,gt=0"`
	Cost     float64 `json:"cost" validate:"gte=0"`
}

type receiptRequest struct {
	Code       string               `json:"codigo" validate:"required"`
	SupplierID int64                `json:"proveedor_id"`
	CostMode   string               `json:"tipo_costo" validate:"required,oneof=unitario neto"`
	AppliesTax bool                 `json:"aplica_iva"`
	Notes      string               `json:"observaciones"`
	Lines      []receiptLineRequest `json:"detalles" validate:"required,min=1,dive"`
}

type dispatchLineRequest struct {
	ItemKind string  `json:"item_kind" validate:"required,oneof=insumo refaccion"`
	ItemID   int64   `json:"item_id" validate:"required,gt=0"`
	Qty      float64 `json:"qty" validate:"required,gt=0"`
}

type dispatchRequest struct {
	Code  string                `json:"codigo" validate:"required"`
	BusID int64                 `json:"autobus_id"`
	Notes string                `json:"observaciones"`
	Lines []dispatchLineRequest `json:"detalles" validate:"required,min=1,dive"`
}

type productionRequest struct {
	Code       string                `json:"codigo" validate:"required"`
	OutputPart int64                 `json:"refaccion_id" validate:"required,gt=0"`
	OutputQty  float64               `json:"cantidad" validate:"required,gt=0"`
	Notes      string                `json:"observaciones"`
	Inputs     []dispatchLineRequest `json:"insumos" validate:"required,min=1,dive"`
}

func (h *Handler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor := shared.ActorFromContext(r.Context())
	lines := make([]ReceiptLineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, ReceiptLineInput{
			Item: shared.ItemRef{Kind: shared.ItemKind(line.ItemKind), ID: line.ItemID},
			Qty:  line.Qty,
			Cost: line.Cost,
		})
	}
	entry, created, err := h.service.PostReceipt(r.Context(), ReceiptInput{
		Code:       req.Code,
		SupplierID: req.SupplierID,
		EmployeeID: actor.ID,
		CostMode:   inventory.CostMode(req.CostMode),
		AppliesTax: req.AppliesTax,
		Notes:      req.Notes,
		Lines:      lines,
	})
	if err != nil {
		h.logger.Error("post receipt failed", slog.String("code", req.Code), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"entry_id": entry.ID, "lines": created})
}

func (h *Handler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor := shared.ActorFromContext(r.Context())
	entry, created, err := h.service.PostDispatch(r.Context(), DispatchInput{
		Code:       req.Code,
		BusID:      req.BusID,
		EmployeeID: actor.ID,
		Notes:      req.Notes,
		Lines:      toDispatchLines(req.Lines),
	})
	if err != nil {
		h.logger.Error("post dispatch failed", slog.String("code", req.Code), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"entry_id": entry.ID, "lines": created})
}

func (h *Handler) handleProduction(w http.ResponseWriter, r *http.Request) {
	var req productionRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor := shared.ActorFromContext(r.Context())
	entry, batchID, err := h.service.PostProduction(r.Context(), ProductionInput{
		Code:       req.Code,
		EmployeeID: actor.ID,
		OutputPart: req.OutputPart,
		OutputQty:  req.OutputQty,
		Notes:      req.Notes,
		Inputs:     toDispatchLines(req.Inputs),
	})
	if err != nil {
		h.logger.Error("post production failed", slog.String("code", req.Code), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"entry_id": entry.ID, "batch_id": batchID})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	entry, lines, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entry": entry, "lines": lines})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	result, err := h.service.List(r.Context(), Kind(r.URL.Query().Get("kind")), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": result})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func toDispatchLines(lines []dispatchLineRequest) []DispatchLineInput {
	result := make([]DispatchLineInput, 0, len(lines))
	for _, line := range lines {
		result = append(result, DispatchLineInput{
			Item: shared.ItemRef{Kind: shared.ItemKind(line.ItemKind), ID: line.ItemID},
			Qty:  line.Qty,
		})
	}
	return result
}
