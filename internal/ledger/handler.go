package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hisaab-erp/hisaab-erp/internal/platform/httpx"
	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// Handler serves the ledger HTTP surface.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

type lineRequest struct {
	AccountID int64   `json:"accountId" validate:"required"`
	Debit     float64 `json:"debit" validate:"gte=0"`
	Credit    float64 `json:"credit" validate:"gte=0"`
}

type createTransactionRequest struct {
	Date        time.Time     `json:"date"`
	Description string        `json:"description" validate:"required"`
	Source      string        `json:"source" validate:"required"`
	Lines       []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnbalanced), errors.Is(err, ErrTooFewLines), errors.Is(err, ErrInvalidAccount):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrTransactionNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, ErrDuplicateAccount):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrDuplicate, err))
	default:
		h.logger.Error("ledger request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

// ListAccounts serves the chart of accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", err.Error())
		return
	}
	accounts, err := h.service.ListAccounts(r.Context(), tenant)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

// CreateTransaction posts a manual transaction.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", err.Error())
		return
	}
	var req createTransactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := TransactionInput{
		Date:        req.Date,
		Description: req.Description,
		Source:      req.Source,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit})
	}
	created, err := h.service.CreateTransaction(r.Context(), tenant, input)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

// GetTransaction serves one transaction with lines.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
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
	t, err := h.service.GetTransaction(r.Context(), tenant, id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

// ListTransactions serves filtered postings.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Missing Tenant", err.Error())
		return
	}
	filter := ListFilter{Source: r.URL.Query().Get("source")}
	if raw := r.URL.Query().Get("from"); raw != "" {
		if filter.From, err = time.Parse(time.RFC3339, raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid From", err.Error())
			return
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if filter.To, err = time.Parse(time.RFC3339, raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid To", err.Error())
			return
		}
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	total, err := h.service.CountTransactions(r.Context(), tenant, filter)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	filter.Limit = perPage
	filter.Offset = (page - 1) * perPage
	transactions, err := h.service.ListTransactions(r.Context(), tenant, filter)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transactions": transactions,
		"pagination":   shared.NewPagination(page, perPage, total),
	})
}

// Reverse posts a reversing copy of a transaction.
func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
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
	var req struct {
		Description string `json:"description"`
	}
	_ = httpx.DecodeJSON(r, &req)
	reversal, err := h.service.ReverseTransaction(r.Context(), tenant, ReverseInput{TransactionID: id, Description: req.Description})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}
