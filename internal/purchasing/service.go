package purchasing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hisaab-erp/hisaab-erp/internal/balance"
	"github.com/hisaab-erp/hisaab-erp/internal/inventory"
	"github.com/hisaab-erp/hisaab-erp/internal/ledger"
	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// SourcePurchaseInvoice tags ledger transactions created by invoice
// posting.
const SourcePurchaseInvoice = "PURCHASE_INVOICE"

// LedgerPort is the posting surface purchasing needs from the
// transaction engine.
type LedgerPort interface {
	GetOrCreateAccount(ctx context.Context, tenant shared.TenantID, spec ledger.AccountSpec) (ledger.Account, error)
	CreateTransaction(ctx context.Context, tenant shared.TenantID, input ledger.TransactionInput) (ledger.Transaction, error)
	ListTransactions(ctx context.Context, tenant shared.TenantID, filter ledger.ListFilter) ([]ledger.Transaction, error)
	ReverseTransaction(ctx context.Context, tenant shared.TenantID, input ledger.ReverseInput) (ledger.Transaction, error)
}

// StockPort is the reconciliation surface purchasing drives.
type StockPort interface {
	UpdateFromPurchase(ctx context.Context, tenant shared.TenantID, items []inventory.PurchaseItemInput, invoiceID int64, invoiceNumber string) ([]inventory.AppliedItem, error)
	DeletePurchaseInvoice(ctx context.Context, tenant shared.TenantID, invoiceID int64, invoiceNumber string) error
}

// StatsPort refreshes the supplier rollups after posting flows.
type StatsPort interface {
	RecalculateSupplierStats(ctx context.Context, tenant shared.TenantID, supplierID int64) (balance.SupplierStats, error)
	InvalidateLedgers(ctx context.Context, tenant shared.TenantID) error
}

// Service orchestrates invoice posting: the stock update, the item
// rows and the financial posting are separately-atomic steps, each safe
// to retry on its own.
type Service struct {
	repo   Repository
	books  LedgerPort
	stock  StockPort
	stats  StatsPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds the purchasing service. Stats may be nil.
func NewService(repo Repository, books LedgerPort, stock StockPort, stats StatsPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, books: books, stock: stock, stats: stats, logger: logger, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetInvoice fetches one invoice header.
func (s *Service) GetInvoice(ctx context.Context, tenant shared.TenantID, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, tenant, id)
}

// ListInvoices lists a supplier's invoices, newest first.
func (s *Service) ListInvoices(ctx context.Context, tenant shared.TenantID, supplierID int64) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, tenant, supplierID)
}

// PostInvoice records the invoice, applies its items to stock and posts
// the balancing transaction: Inventory debited for the full amount, AP
// credited for the unpaid portion, Cash/Bank credited for the paid one.
func (s *Service) PostInvoice(ctx context.Context, tenant shared.TenantID, input InvoiceInput) (Invoice, ledger.Transaction, error) {
	if len(input.Items) == 0 {
		return Invoice{}, ledger.Transaction{}, ErrNoItems
	}
	total := input.Total()
	if input.PaymentAmount < 0 || input.PaymentAmount > total {
		return Invoice{}, ledger.Transaction{}, ErrExcessPayment
	}
	if input.Date.IsZero() {
		input.Date = s.now()
	}

	invoice, err := s.repo.InsertInvoice(ctx, tenant, input, total)
	if err != nil {
		return Invoice{}, ledger.Transaction{}, err
	}

	applied, err := s.stock.UpdateFromPurchase(ctx, tenant, input.Items, invoice.ID, invoice.Number)
	if err != nil {
		return Invoice{}, ledger.Transaction{}, err
	}
	if err := s.repo.InsertItems(ctx, tenant, invoice.ID, input.Items, applied); err != nil {
		return Invoice{}, ledger.Transaction{}, err
	}

	var paymentID *int64
	if input.PaymentAmount > 0 {
		id, err := s.repo.InsertSupplierPayment(ctx, tenant, input.SupplierID, invoice.ID, input.PaymentAmount, paymentMethod(input.PaymentMethod), input.Date)
		if err != nil {
			return Invoice{}, ledger.Transaction{}, err
		}
		paymentID = &id
	}

	tx, err := s.postInvoiceTransaction(ctx, tenant, invoice, input, total, paymentID)
	if err != nil {
		return Invoice{}, ledger.Transaction{}, err
	}

	s.refreshStats(ctx, tenant, input.SupplierID)
	return invoice, tx, nil
}

func (s *Service) postInvoiceTransaction(ctx context.Context, tenant shared.TenantID, invoice Invoice, input InvoiceInput, total float64, paymentID *int64) (ledger.Transaction, error) {
	inventoryAcc, err := s.account(ctx, tenant, ledger.CodeInventory)
	if err != nil {
		return ledger.Transaction{}, err
	}
	lines := []ledger.LineInput{{AccountID: inventoryAcc.ID, Debit: total}}

	unpaid := total - input.PaymentAmount
	if unpaid > 0 {
		payable, err := s.account(ctx, tenant, ledger.CodePayable)
		if err != nil {
			return ledger.Transaction{}, err
		}
		lines = append(lines, ledger.LineInput{AccountID: payable.ID, Credit: unpaid})
	}
	if input.PaymentAmount > 0 {
		code := ledger.CodeCash
		if paymentMethod(input.PaymentMethod) == "BANK" {
			code = ledger.CodeBank
		}
		cash, err := s.account(ctx, tenant, code)
		if err != nil {
			return ledger.Transaction{}, err
		}
		lines = append(lines, ledger.LineInput{AccountID: cash.ID, Credit: input.PaymentAmount})
	}

	invoiceID := invoice.ID
	supplierID := invoice.SupplierID
	return s.books.CreateTransaction(ctx, tenant, ledger.TransactionInput{
		Date:              input.Date,
		Description:       fmt.Sprintf("Purchase Invoice %s", invoice.Number),
		Source:            SourcePurchaseInvoice,
		PurchaseInvoiceID: &invoiceID,
		SupplierID:        &supplierID,
		PaymentID:         paymentID,
		Lines:             lines,
	})
}

// DeleteInvoice reverses the invoice's financial posting and unwinds its
// stock. Both steps are retry-safe: an existing reversal skips the
// posting step, and the stock unwind skips soft-deleted items.
func (s *Service) DeleteInvoice(ctx context.Context, tenant shared.TenantID, invoiceID int64) error {
	invoice, err := s.repo.GetInvoice(ctx, tenant, invoiceID)
	if err != nil {
		return err
	}

	postings, err := s.books.ListTransactions(ctx, tenant, ledger.ListFilter{
		PurchaseInvoiceID: invoiceID,
		Source:            SourcePurchaseInvoice,
	})
	if err != nil {
		return err
	}
	reversals, err := s.books.ListTransactions(ctx, tenant, ledger.ListFilter{
		PurchaseInvoiceID: invoiceID,
		Source:            SourcePurchaseInvoice + ":REVERSAL",
	})
	if err != nil {
		return err
	}
	if len(reversals) > 0 {
		// A prior delete already reversed the posting but failed before
		// finishing; only the stock unwind remains.
		postings = nil
	}
	for _, posting := range postings {
		if _, err := s.books.ReverseTransaction(ctx, tenant, ledger.ReverseInput{
			TransactionID: posting.ID,
			Description:   fmt.Sprintf("Deletion of invoice %s", invoice.Number),
		}); err != nil {
			return err
		}
	}

	if err := s.stock.DeletePurchaseInvoice(ctx, tenant, invoiceID, invoice.Number); err != nil {
		return err
	}

	s.refreshStats(ctx, tenant, invoice.SupplierID)
	return nil
}

func (s *Service) account(ctx context.Context, tenant shared.TenantID, code string) (ledger.Account, error) {
	spec, ok := ledger.WellKnownSpec(code)
	if !ok {
		return ledger.Account{}, fmt.Errorf("purchasing: unknown account code %q", code)
	}
	return s.books.GetOrCreateAccount(ctx, tenant, spec)
}

func (s *Service) refreshStats(ctx context.Context, tenant shared.TenantID, supplierID int64) {
	if s.stats == nil {
		return
	}
	if _, err := s.stats.RecalculateSupplierStats(ctx, tenant, supplierID); err != nil && s.logger != nil {
		s.logger.Warn("supplier stats refresh failed",
			slog.Int64("tenant_id", int64(tenant)),
			slog.Int64("supplier_id", supplierID),
			slog.Any("error", err))
	}
	if err := s.stats.InvalidateLedgers(ctx, tenant); err != nil && s.logger != nil {
		s.logger.Warn("ledger cache invalidation failed", slog.Any("error", err))
	}
}

func paymentMethod(method string) string {
	if method == "BANK" {
		return "BANK"
	}
	return "CASH"
}
