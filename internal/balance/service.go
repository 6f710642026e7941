package balance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/hisaab-erp/hisaab-erp/internal/ledger"
	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// Service derives customer and supplier balances by replaying order,
// payment, return and invoice history. It owns no state of its own
// beyond the denormalized stats rollups it recomputes.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds the balance service. A nil cache disables caching.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// CalculateCustomerBalance resolves the customer's opening figures. An
// explicit opening transaction wins; without one the denormalized
// advanceBalance stands in for the advance and the receivable is zero,
// so ordinary payment rows are not counted twice.
func (s *Service) CalculateCustomerBalance(ctx context.Context, tenant shared.TenantID, customerID int64) (OpeningBalance, error) {
	lines, err := s.repo.GetOpeningLines(ctx, tenant, SourceCustomerOpening, customerID)
	if err != nil {
		return OpeningBalance{}, err
	}
	if len(lines) > 0 {
		var opening OpeningBalance
		opening.Explicit = true
		for _, line := range lines {
			switch line.AccountCode {
			case ledger.CodeReceivable:
				opening.Receivable += line.Debit
			case ledger.CodeCustomerAdvance:
				opening.Advance += line.Debit
			}
		}
		return opening, nil
	}
	customer, err := s.repo.GetCustomer(ctx, tenant, customerID)
	if err != nil {
		return OpeningBalance{}, err
	}
	return OpeningBalance{Advance: customer.AdvanceBalance}, nil
}

// CalculateSupplierBalance mirrors the customer path on the payable
// side: credits on the AP line open what the tenant owes, debits open a
// prepayment held with the supplier.
func (s *Service) CalculateSupplierBalance(ctx context.Context, tenant shared.TenantID, supplierID int64) (OpeningBalance, error) {
	lines, err := s.repo.GetOpeningLines(ctx, tenant, SourceSupplierOpening, supplierID)
	if err != nil {
		return OpeningBalance{}, err
	}
	if len(lines) > 0 {
		var opening OpeningBalance
		opening.Explicit = true
		for _, line := range lines {
			if line.AccountCode == ledger.CodePayable {
				opening.Receivable += line.Credit
				opening.Advance += line.Debit
			}
		}
		return opening, nil
	}
	supplier, err := s.repo.GetSupplier(ctx, tenant, supplierID)
	if err != nil {
		return OpeningBalance{}, err
	}
	return OpeningBalance{Advance: supplier.AdvanceBalance}, nil
}

// BuildCustomerLedger returns the customer's chronological statement
// with running balances, served from cache when possible.
func (s *Service) BuildCustomerLedger(ctx context.Context, tenant shared.TenantID, customerID int64, rng DateRange) (Ledger, error) {
	loader := func(ctx context.Context) (interface{}, error) {
		return s.buildCustomerLedger(ctx, tenant, customerID, rng)
	}
	key, err := s.cache.BuildKey(ctx, tenant, "ledger", "customer", strconv.FormatInt(customerID, 10), rangeToken(rng))
	if err != nil {
		s.warnCache(err)
		return s.buildCustomerLedger(ctx, tenant, customerID, rng)
	}
	var out Ledger
	if err := s.cache.FetchJSON(ctx, key, &out, loader); err != nil {
		return Ledger{}, err
	}
	return out, nil
}

func (s *Service) buildCustomerLedger(ctx context.Context, tenant shared.TenantID, customerID int64, rng DateRange) (Ledger, error) {
	opening, err := s.CalculateCustomerBalance(ctx, tenant, customerID)
	if err != nil {
		return Ledger{}, err
	}
	var rows []LedgerRow
	if opening.Explicit {
		rows = append(rows, LedgerRow{
			Type:        RowOpening,
			Date:        openingDate(rng),
			Description: "Opening Balance",
		})
	}

	orders, err := s.repo.ListOrders(ctx, tenant, customerID, rng)
	if err != nil {
		return Ledger{}, err
	}
	for _, o := range orders {
		rows = append(rows, LedgerRow{
			Type:        RowOrder,
			Date:        o.OrderDate,
			Description: fmt.Sprintf("Order %s", o.Number),
			Reference:   o.Number,
			Debit:       o.Total(),
		})
	}

	payments, err := s.repo.ListPayments(ctx, tenant, PaymentTypeCustomer, customerID, rng)
	if err != nil {
		return Ledger{}, err
	}
	for _, p := range payments {
		desc := "Payment"
		if p.Direct() {
			desc = "Direct Payment"
		}
		rows = append(rows, LedgerRow{
			Type:        RowPayment,
			Date:        p.Date,
			Description: desc,
			Reference:   p.Method,
			Credit:      p.Amount,
			Direct:      p.Direct(),
		})
	}

	returns, err := s.repo.ListCustomerReturns(ctx, tenant, customerID, rng)
	if err != nil {
		return Ledger{}, err
	}
	for _, ret := range returns {
		rows = append(rows, LedgerRow{
			Type:        RowReturn,
			Date:        ret.Date,
			Description: fmt.Sprintf("Return %s", ret.Number),
			Reference:   ret.Number,
			Credit:      ret.TotalAmount,
		})
		if ret.Refunded && ret.RefundAmount > 0 {
			rows = append(rows, LedgerRow{
				Type:        RowRefund,
				Date:        ret.Date,
				Description: fmt.Sprintf("Refund for %s", ret.Number),
				Reference:   ret.Number,
				Debit:       ret.RefundAmount,
			})
		}
	}

	start := 0.0
	if opening.Explicit {
		start = opening.Net()
	}
	return finishLedger(rows, start), nil
}

// BuildSupplierLedger mirrors the customer ledger with purchase invoices
// on the debit side and supplier payments and returns as credits.
func (s *Service) BuildSupplierLedger(ctx context.Context, tenant shared.TenantID, supplierID int64, rng DateRange) (Ledger, error) {
	loader := func(ctx context.Context) (interface{}, error) {
		return s.buildSupplierLedger(ctx, tenant, supplierID, rng)
	}
	key, err := s.cache.BuildKey(ctx, tenant, "ledger", "supplier", strconv.FormatInt(supplierID, 10), rangeToken(rng))
	if err != nil {
		s.warnCache(err)
		return s.buildSupplierLedger(ctx, tenant, supplierID, rng)
	}
	var out Ledger
	if err := s.cache.FetchJSON(ctx, key, &out, loader); err != nil {
		return Ledger{}, err
	}
	return out, nil
}

func (s *Service) buildSupplierLedger(ctx context.Context, tenant shared.TenantID, supplierID int64, rng DateRange) (Ledger, error) {
	opening, err := s.CalculateSupplierBalance(ctx, tenant, supplierID)
	if err != nil {
		return Ledger{}, err
	}
	var rows []LedgerRow
	if opening.Explicit {
		rows = append(rows, LedgerRow{
			Type:        RowOpening,
			Date:        openingDate(rng),
			Description: "Opening Balance",
		})
	}

	invoices, err := s.repo.ListInvoices(ctx, tenant, supplierID, rng)
	if err != nil {
		return Ledger{}, err
	}
	for _, inv := range invoices {
		rows = append(rows, LedgerRow{
			Type:        RowInvoice,
			Date:        inv.Date,
			Description: fmt.Sprintf("Invoice %s", inv.Number),
			Reference:   inv.Number,
			Debit:       inv.TotalAmount,
		})
	}

	payments, err := s.repo.ListPayments(ctx, tenant, PaymentTypeSupplier, supplierID, rng)
	if err != nil {
		return Ledger{}, err
	}
	for _, p := range payments {
		desc := "Payment"
		if p.Direct() {
			desc = "Direct Payment"
		}
		rows = append(rows, LedgerRow{
			Type:        RowPayment,
			Date:        p.Date,
			Description: desc,
			Reference:   p.Method,
			Credit:      p.Amount,
			Direct:      p.Direct(),
		})
	}

	returns, err := s.repo.ListSupplierReturns(ctx, tenant, supplierID, rng)
	if err != nil {
		return Ledger{}, err
	}
	for _, ret := range returns {
		rows = append(rows, LedgerRow{
			Type:        RowReturn,
			Date:        ret.Date,
			Description: fmt.Sprintf("Return %s", ret.Number),
			Reference:   ret.Number,
			Credit:      ret.TotalAmount,
		})
	}

	start := 0.0
	if opening.Explicit {
		start = opening.Net()
	}
	return finishLedger(rows, start), nil
}

// RecalculateCustomerStats replays every linked order into fresh rollup
// figures and persists them. Converges to the same output on repeated
// calls over unchanged orders.
func (s *Service) RecalculateCustomerStats(ctx context.Context, tenant shared.TenantID, customerID int64) (CustomerStats, error) {
	orders, err := s.repo.ListAllOrders(ctx, tenant, customerID)
	if err != nil {
		return CustomerStats{}, err
	}
	var stats CustomerStats
	for _, o := range orders {
		stats.TotalOrders++
		stats.TotalSpent += o.PaymentAmount + o.ShippingCharges
		if stats.LastOrderDate == nil || o.OrderDate.After(*stats.LastOrderDate) {
			date := o.OrderDate
			stats.LastOrderDate = &date
		}
	}
	if err := s.repo.UpdateCustomerStats(ctx, tenant, customerID, stats); err != nil {
		return CustomerStats{}, err
	}
	if err := s.cache.Bump(ctx, tenant); err != nil {
		s.warnCache(err)
	}
	return stats, nil
}

// RecalculateSupplierStats replays every purchase invoice of the
// supplier into fresh rollup figures and persists them.
func (s *Service) RecalculateSupplierStats(ctx context.Context, tenant shared.TenantID, supplierID int64) (SupplierStats, error) {
	invoices, err := s.repo.ListAllInvoices(ctx, tenant, supplierID)
	if err != nil {
		return SupplierStats{}, err
	}
	var stats SupplierStats
	for _, inv := range invoices {
		stats.TotalInvoices++
		stats.TotalPurchased += inv.TotalAmount
		if stats.LastInvoiceDate == nil || inv.Date.After(*stats.LastInvoiceDate) {
			date := inv.Date
			stats.LastInvoiceDate = &date
		}
	}
	if err := s.repo.UpdateSupplierStats(ctx, tenant, supplierID, stats); err != nil {
		return SupplierStats{}, err
	}
	if err := s.cache.Bump(ctx, tenant); err != nil {
		s.warnCache(err)
	}
	return stats, nil
}

// InvalidateLedgers drops every cached ledger of the tenant. Posting
// flows call this after committing writes that change balances.
func (s *Service) InvalidateLedgers(ctx context.Context, tenant shared.TenantID) error {
	return s.cache.Bump(ctx, tenant)
}

func (s *Service) warnCache(err error) {
	if s.logger != nil {
		s.logger.Warn("ledger cache unavailable, computing directly", slog.Any("error", err))
	}
}

// finishLedger orders the rows chronologically, threads the running
// balance through them and derives the summary. Ties keep insertion
// order so same-day rows stay in their natural sequence.
func finishLedger(rows []LedgerRow, opening float64) Ledger {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	summary := Summary{OpeningBalance: opening, ClosingBalance: opening}
	balance := opening
	for i := range rows {
		balance += rows[i].Debit - rows[i].Credit
		rows[i].Balance = balance
		switch rows[i].Type {
		case RowOrder, RowInvoice:
			summary.TotalBilled += rows[i].Debit
		case RowReturn:
			summary.TotalReturns += rows[i].Credit
		case RowPayment:
			summary.TotalPayments += rows[i].Credit
		}
	}
	summary.ClosingBalance = balance
	return Ledger{Rows: rows, Summary: summary}
}

func openingDate(rng DateRange) time.Time {
	return rng.From
}

func rangeToken(rng DateRange) string {
	format := func(ts time.Time) string {
		if ts.IsZero() {
			return "all"
		}
		return ts.Format("2006-01-02")
	}
	return format(rng.From) + ":" + format(rng.To)
}
