package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hisaab-erp/hisaab-erp/internal/platform/httpx"
	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// Handler serves the inventory HTTP surface.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound), errors.Is(err, ErrInvoiceNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrZeroAdjustment):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
	default:
		h.logger.Error("inventory request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func tenantOrRespond(w http.ResponseWriter, r *http.Request) (shared.TenantID, bool) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", err.Error())
		return 0, false
	}
	return tenant, true
}

// GetProduct serves one product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantOrRespond(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	product, err := h.service.GetProduct(r.Context(), tenant, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

// History serves the product's audit log.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantOrRespond(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.service.History(r.Context(), tenant, id, limit)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// LowStock lists products under their minimum stock level.
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantOrRespond(w, r)
	if !ok {
		return
	}
	products, err := h.service.ListBelowMinStock(r.Context(), tenant)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}

type adjustRequest struct {
	Delta  int64  `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required"`
	Notes  string `json:"notes"`
}

// Adjust applies a manual stock adjustment.
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantOrRespond(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	product, err := h.service.Adjust(r.Context(), tenant, AdjustInput{
		ProductID: id,
		Delta:     req.Delta,
		Reason:    req.Reason,
		Notes:     req.Notes,
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}
