package purchasing

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hisaab-erp/hisaab-erp/internal/inventory"
	"github.com/hisaab-erp/hisaab-erp/internal/ledger"
	"github.com/hisaab-erp/hisaab-erp/internal/platform/httpx"
	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// Handler serves the purchase-invoice HTTP surface.
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
	case errors.Is(err, ErrInvoiceNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, ErrDuplicateInvoice):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrDuplicate, err))
	case errors.Is(err, ErrNoItems), errors.Is(err, ErrExcessPayment),
		errors.Is(err, inventory.ErrInvalidQuantity), errors.Is(err, ledger.ErrUnbalanced):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
	default:
		h.logger.Error("purchasing request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

type invoiceItemRequest struct {
	ProductName   string  `json:"productName" validate:"required"`
	SKU           string  `json:"sku"`
	Color         string  `json:"color"`
	Size          string  `json:"size"`
	Quantity      int64   `json:"quantity" validate:"required,gt=0"`
	PurchasePrice float64 `json:"purchasePrice" validate:"gte=0"`
	RetailPrice   float64 `json:"retailPrice" validate:"gte=0"`
}

type postInvoiceRequest struct {
	SupplierID    int64                `json:"supplierId" validate:"required"`
	Number        string               `json:"number" validate:"required"`
	Date          string               `json:"date"`
	Items         []invoiceItemRequest `json:"items" validate:"required,min=1,dive"`
	PaymentAmount float64              `json:"paymentAmount" validate:"gte=0"`
	PaymentMethod string               `json:"paymentMethod" validate:"omitempty,oneof=CASH BANK"`
}

// PostInvoice records a purchase invoice with its stock and ledger
// effects.
func (h *Handler) PostInvoice(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", err.Error())
		return
	}
	var req postInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := InvoiceInput{
		SupplierID:    req.SupplierID,
		Number:        req.Number,
		PaymentAmount: req.PaymentAmount,
		PaymentMethod: req.PaymentMethod,
	}
	if req.Date != "" {
		ts, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
			return
		}
		input.Date = ts
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, inventory.PurchaseItemInput{
			ProductName:   item.ProductName,
			SKU:           item.SKU,
			Color:         item.Color,
			Size:          item.Size,
			Quantity:      item.Quantity,
			PurchasePrice: item.PurchasePrice,
			RetailPrice:   item.RetailPrice,
		})
	}
	idemKey := r.Header.Get("Idempotency-Key")
	if h.idem != nil && idemKey != "" {
		if err := h.idem.CheckAndInsert(r.Context(), tenant, idemKey, "purchasing"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrDuplicate, err))
				return
			}
			h.respondDomainError(w, err)
			return
		}
	}
	invoice, tx, err := h.service.PostInvoice(r.Context(), tenant, input)
	if err != nil {
		if h.idem != nil && idemKey != "" {
			// Free the key so the caller can retry the failed posting.
			if delErr := h.idem.Delete(r.Context(), tenant, idemKey); delErr != nil {
				h.logger.Warn("idempotency key release failed", slog.Any("error", delErr))
			}
		}
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"invoice": invoice, "transaction": tx})
}

// GetInvoice serves one invoice header.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
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
	invoice, err := h.service.GetInvoice(r.Context(), tenant, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

// DeleteInvoice reverses and removes an invoice.
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
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
	if err := h.service.DeleteInvoice(r.Context(), tenant, id); err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.NoContent(w)
}
