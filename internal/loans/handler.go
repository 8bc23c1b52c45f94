package loans

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/almacen-erp/almacen-erp/internal/platform/httpx"
	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// Handler wires HTTP endpoints for loans.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the loans handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers loan routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/lines/{lineID}/returns", h.handleReturn)
	r.Get("/lines/{lineID}/returns", h.handleListReturns)
}

type createLineRequest struct {
	ItemKind string  `json:"item_kind" validate:"required,oneof=insumo refaccion"`
	ItemID   int64   `json:"item_id" validate:"required,gt=0"`
	Qty      float64 `json:"qty" validate:"required,gt=0"`
}

type createRequest struct {
	Solicitant string              `json:"solicitante" validate:"required"`
	Notes      string              `json:"observaciones"`
	Lines      []createLineRequest `json:"detalles" validate:"required,min=1,dive"`
}

type returnRequest struct {
	Qty         float64 `json:"qty" validate:"required,gt=0"`
	Disposition string  `json:"estado" validate:"required"`
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
			Item: shared.ItemRef{Kind: shared.ItemKind(line.ItemKind), ID: line.ItemID},
			Qty:  line.Qty,
		})
	}
	loan, created, err := h.service.Create(r.Context(), CreateInput{
		Solicitant: req.Solicitant,
		EmployeeID: actor.ID,
		Notes:      req.Notes,
		Lines:      lines,
	})
	if err != nil {
		h.logger.Error("create loan failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"loan_id": loan.ID, "lines": created})
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	lineID, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid line id")
		return
	}
	var req returnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	line, status, err := h.service.RegisterReturn(r.Context(), ReturnInput{
		LineID:      lineID,
		Qty:         req.Qty,
		Disposition: req.Disposition,
		ActorID:     actor.ID,
	})
	if err != nil {
		h.logger.Error("register return failed", slog.Int64("line_id", lineID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"line_id":     line.ID,
		"returned":    line.Returned,
		"outstanding": line.Outstanding(),
		"loan_status": string(status),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid loan id")
		return
	}
	loan, lines, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"loan": loan, "lines": lines})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	loans, err := h.service.List(r.Context(), Status(r.URL.Query().Get("status")), shared.NewPagination(page, perPage, 0))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"loans": loans})
}

func (h *Handler) handleListReturns(w http.ResponseWriter, r *http.Request) {
	lineID, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid line id")
		return
	}
	returns, err := h.service.Returns(r.Context(), lineID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"returns": returns})
}
