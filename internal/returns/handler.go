package returns

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hisaab-erp/hisaab-erp/internal/ledger"
	"github.com/hisaab-erp/hisaab-erp/internal/platform/httpx"
	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// Handler serves the return posting HTTP surface.
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
	case errors.Is(err, ErrReturnNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, ErrAlreadyPosted):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err))
	case errors.Is(err, ErrNoItems), errors.Is(err, ErrBadMethod), errors.Is(err, ErrBadCashSplit),
		errors.Is(err, ledger.ErrUnbalanced):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
	default:
		h.logger.Error("return request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

type postRequest struct {
	Method      string  `json:"method" validate:"required,oneof=REDUCE_PAYABLE CASH_REFUND MIXED"`
	CashAccount string  `json:"cashAccount" validate:"omitempty,oneof=1000 1010"`
	CashAmount  float64 `json:"cashAmount" validate:"gte=0"`
}

// Post settles a pending return with the chosen method.
func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", err.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	ret, err := h.service.Post(r.Context(), tenant, PostInput{
		ReturnID:        id,
		Method:          PostingMethod(req.Method),
		CashAccountCode: req.CashAccount,
		CashAmount:      req.CashAmount,
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

// InvoiceDrift reports the payable drift for one purchase invoice.
func (h *Handler) InvoiceDrift(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", err.Error())
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	report, err := h.service.CheckInvoiceDrift(r.Context(), tenant, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
