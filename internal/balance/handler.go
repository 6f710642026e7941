package balance

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hisaab-erp/hisaab-erp/internal/platform/httpx"
	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// Handler serves the balance and ledger HTTP surface.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCustomerNotFound), errors.Is(err, ErrSupplierNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	default:
		h.logger.Error("balance request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) params(w http.ResponseWriter, r *http.Request) (shared.TenantID, int64, bool) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", err.Error())
		return 0, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return 0, 0, false
	}
	return tenant, id, true
}

func parseRange(r *http.Request) (DateRange, error) {
	var rng DateRange
	if raw := r.URL.Query().Get("from"); raw != "" {
		ts, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return DateRange{}, fmt.Errorf("invalid from date: %w", err)
		}
		rng.From = ts
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		ts, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return DateRange{}, fmt.Errorf("invalid to date: %w", err)
		}
		rng.To = ts.Add(24*time.Hour - time.Nanosecond)
	}
	return rng, nil
}

// CustomerBalance serves the customer's opening figures.
func (h *Handler) CustomerBalance(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.params(w, r)
	if !ok {
		return
	}
	opening, err := h.service.CalculateCustomerBalance(r.Context(), tenant, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, opening)
}

// SupplierBalance serves the supplier's opening figures.
func (h *Handler) SupplierBalance(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.params(w, r)
	if !ok {
		return
	}
	opening, err := h.service.CalculateSupplierBalance(r.Context(), tenant, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, opening)
}

// CustomerLedger serves the customer statement with running balances.
func (h *Handler) CustomerLedger(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.params(w, r)
	if !ok {
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Range", err.Error())
		return
	}
	ledger, err := h.service.BuildCustomerLedger(r.Context(), tenant, id, rng)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledger)
}

// SupplierLedger serves the supplier statement with running balances.
func (h *Handler) SupplierLedger(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.params(w, r)
	if !ok {
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Range", err.Error())
		return
	}
	ledger, err := h.service.BuildSupplierLedger(r.Context(), tenant, id, rng)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledger)
}

// RecalculateCustomer rebuilds the customer's denormalized rollups.
func (h *Handler) RecalculateCustomer(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.params(w, r)
	if !ok {
		return
	}
	stats, err := h.service.RecalculateCustomerStats(r.Context(), tenant, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

// RecalculateSupplier rebuilds the supplier's denormalized rollups.
func (h *Handler) RecalculateSupplier(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.params(w, r)
	if !ok {
		return
	}
	stats, err := h.service.RecalculateSupplierStats(r.Context(), tenant, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}
