package fuel

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/almacen-erp/almacen-erp/internal/platform/httpx"
	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// Handler wires HTTP endpoints for fuel tanks.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the fuel handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers fuel routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/tanques", h.handleListTanks)
	r.Get("/tanques/{id}", h.handleGetTank)
	r.Get("/tanques/{id}/cargas", h.handleListLoads)
	r.Post("/cargas", h.handleLoad)
	r.Post("/recargas", h.handleRefill)
}

type loadRequest struct {
	TankID   int64   `json:"tanque_id" validate:"required,gt=0"`
	BusID    int64   `json:"autobus_id" validate:"required,gt=0"`
	Liters   float64 `json:"litros" validate:"required,gt=0"`
	Odometer float64 `json:"odometro" validate:"gte=0"`
}

type refillRequest struct {
	TankID        int64   `json:"tanque_id" validate:"required,gt=0"`
	Liters        float64 `json:"litros" validate:"required,gt=0"`
	PricePerLiter float64 `json:"precio_litro" validate:"gte=0"`
}

func (h *Handler) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	load, err := h.service.LoadFuel(r.Context(), LoadInput{
		TankID:     req.TankID,
		BusID:      req.BusID,
		Liters:     req.Liters,
		Odometer:   req.Odometer,
		EmployeeID: actor.ID,
	})
	if err != nil {
		h.logger.Error("load fuel failed", slog.Int64("tank_id", req.TankID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"load_id": load.ID, "price_at": load.PriceAt})
}

func (h *Handler) handleRefill(w http.ResponseWriter, r *http.Request) {
	var req refillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	tank, err := h.service.RefillTank(r.Context(), RefillInput{
		TankID:        req.TankID,
		Liters:        req.Liters,
		PricePerLiter: req.PricePerLiter,
		EmployeeID:    actor.ID,
	})
	if err != nil {
		h.logger.Error("refill tank failed", slog.Int64("tank_id", req.TankID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tank_id": tank.ID, "level": tank.Level, "price_per_liter": tank.PricePerLiter})
}

func (h *Handler) handleGetTank(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid tank id")
		return
	}
	tank, err := h.service.Tank(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tank)
}

func (h *Handler) handleListTanks(w http.ResponseWriter, r *http.Request) {
	tanks, err := h.service.Tanks(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tanks": tanks})
}

func (h *Handler) handleListLoads(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid tank id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	loads, err := h.service.Loads(r.Context(), id, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"loads": loads})
}
