package orders

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hisaab-erp/hisaab-erp/internal/ledger"
	"github.com/hisaab-erp/hisaab-erp/internal/platform/httpx"
	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// Handler serves the order HTTP surface.
type Handler struct {
	service  *Service
	idem     *shared.IdempotencyStore
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler builds the handler. A nil idempotency store disables
// duplicate-submission protection.
func NewHandler(logger *slog.Logger, service *Service, idem *shared.IdempotencyStore) *Handler {
	return &Handler{service: service, idem: idem, logger: logger, validate: validator.New()}
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrLogisticsNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, ErrNoItems), errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrExcessPayment), errors.Is(err, ledger.ErrUnbalanced):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
	default:
		h.logger.Error("orders request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

type orderItemRequest struct {
	ProductID int64   `json:"productId" validate:"required"`
	Quantity  int64   `json:"quantity" validate:"required,gt=0"`
	UnitPrice float64 `json:"unitPrice" validate:"gte=0"`
}

type confirmOrderRequest struct {
	CustomerID         int64              `json:"customerId" validate:"required"`
	City               string             `json:"city"`
	Items              []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	LogisticsCompanyID *int64             `json:"logisticsCompanyId"`
	CodFeePaidBy       string             `json:"codFeePaidBy" validate:"omitempty,oneof=CUSTOMER SELLER"`
	PaymentAmount      float64            `json:"paymentAmount" validate:"gte=0"`
	PaymentMethod      string             `json:"paymentMethod" validate:"omitempty,oneof=CASH BANK"`
	Date               string             `json:"date"`
}

func (h *Handler) buildInput(req confirmOrderRequest) (ConfirmInput, error) {
	input := ConfirmInput{
		CustomerID:         req.CustomerID,
		City:               req.City,
		LogisticsCompanyID: req.LogisticsCompanyID,
		CodFeePaidBy:       req.CodFeePaidBy,
		PaymentAmount:      req.PaymentAmount,
		PaymentMethod:      req.PaymentMethod,
	}
	if req.Date != "" {
		ts, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return ConfirmInput{}, err
		}
		input.Date = ts
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, ItemInput{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	return input, nil
}

// ConfirmOrder records an order with its computed shipping and COD
// charges and posts the sale.
func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", err.Error())
		return
	}
	var req confirmOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := h.buildInput(req)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
		return
	}
	idemKey := r.Header.Get("Idempotency-Key")
	if h.idem != nil && idemKey != "" {
		if err := h.idem.CheckAndInsert(r.Context(), tenant, idemKey, "orders"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrDuplicate, err))
				return
			}
			h.respondDomainError(w, err)
			return
		}
	}
	order, err := h.service.Confirm(r.Context(), tenant, input)
	if err != nil {
		if h.idem != nil && idemKey != "" {
			// Free the key so the caller can retry the failed confirmation.
			if delErr := h.idem.Delete(r.Context(), tenant, idemKey); delErr != nil {
				h.logger.Warn("idempotency key release failed", slog.Any("error", delErr))
			}
		}
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

// QuoteOrder computes charges without recording anything.
func (h *Handler) QuoteOrder(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", err.Error())
		return
	}
	var req confirmOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := h.buildInput(req)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
		return
	}
	shippingCharges, codFee, err := h.service.Quote(r.Context(), tenant, input)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"itemsTotal":      input.ItemsTotal(),
		"shippingCharges": shippingCharges,
		"codFee":          codFee,
	})
}

// GetOrder serves one order with its items.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
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
	order, err := h.service.GetOrder(r.Context(), tenant, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}
