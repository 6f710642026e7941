package returns

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hisaab-erp/hisaab-erp/internal/inventory"
	"github.com/hisaab-erp/hisaab-erp/internal/ledger"
	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// LedgerPort is the posting surface the handler needs from the
// transaction engine.
type LedgerPort interface {
	GetOrCreateAccount(ctx context.Context, tenant shared.TenantID, spec ledger.AccountSpec) (ledger.Account, error)
	CreateTransaction(ctx context.Context, tenant shared.TenantID, input ledger.TransactionInput) (ledger.Transaction, error)
}

// StockPort applies the physical side of a return to product quantities.
type StockPort interface {
	Adjust(ctx context.Context, tenant shared.TenantID, input inventory.AdjustInput) (inventory.Product, error)
}

// driftTolerance absorbs float rounding in the invoice drift check.
const driftTolerance = 0.01

// Service posts balancing reversal transactions for supplier and
// customer returns. The financial posting and the stock adjustment are
// two separately-atomic steps; each is safe to retry on its own.
type Service struct {
	repo   Repository
	books  LedgerPort
	stock  StockPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// AuditPort records return activity into the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NewService builds the returns service. Stock and audit may be nil.
func NewService(repo Repository, books LedgerPort, stock StockPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, books: books, stock: stock, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post settles a pending return: computes the total from its items,
// posts exactly one balancing transaction, flips the status and applies
// the stock movement.
func (s *Service) Post(ctx context.Context, tenant shared.TenantID, input PostInput) (Return, error) {
	ret, err := s.repo.GetReturn(ctx, tenant, input.ReturnID)
	if err != nil {
		return Return{}, err
	}
	if ret.Status != StatusPending {
		return Return{}, ErrAlreadyPosted
	}
	if len(ret.Items) == 0 {
		return Return{}, ErrNoItems
	}
	switch ret.Kind {
	case KindSupplier:
		return s.postSupplier(ctx, tenant, ret, input)
	case KindCustomer:
		return s.postCustomer(ctx, tenant, ret, input)
	default:
		return Return{}, fmt.Errorf("returns: unknown kind %q", ret.Kind)
	}
}

// postSupplier credits Inventory by the return total and debits AP,
// Cash/Bank, or both depending on the chosen method.
func (s *Service) postSupplier(ctx context.Context, tenant shared.TenantID, ret Return, input PostInput) (Return, error) {
	total := ret.Total()
	inventoryAcc, err := s.account(ctx, tenant, ledger.CodeInventory)
	if err != nil {
		return Return{}, err
	}

	var lines []ledger.LineInput
	refund := 0.0
	switch input.Method {
	case MethodReducePayable:
		payable, err := s.account(ctx, tenant, ledger.CodePayable)
		if err != nil {
			return Return{}, err
		}
		lines = append(lines, ledger.LineInput{AccountID: payable.ID, Debit: total})
	case MethodCashRefund:
		cash, err := s.cashAccount(ctx, tenant, input.CashAccountCode)
		if err != nil {
			return Return{}, err
		}
		lines = append(lines, ledger.LineInput{AccountID: cash.ID, Debit: total})
		refund = total
	case MethodMixed:
		if input.CashAmount <= 0 || input.CashAmount >= total {
			return Return{}, ErrBadCashSplit
		}
		cash, err := s.cashAccount(ctx, tenant, input.CashAccountCode)
		if err != nil {
			return Return{}, err
		}
		payable, err := s.account(ctx, tenant, ledger.CodePayable)
		if err != nil {
			return Return{}, err
		}
		lines = append(lines,
			ledger.LineInput{AccountID: cash.ID, Debit: input.CashAmount},
			ledger.LineInput{AccountID: payable.ID, Debit: total - input.CashAmount})
		refund = input.CashAmount
	default:
		return Return{}, ErrBadMethod
	}
	lines = append(lines, ledger.LineInput{AccountID: inventoryAcc.ID, Credit: total})

	returnID := ret.ID
	tx, err := s.books.CreateTransaction(ctx, tenant, ledger.TransactionInput{
		Date:              s.now(),
		Description:       fmt.Sprintf("Supplier Return %s", ret.Number),
		Source:            string(KindSupplier),
		OrderReturnID:     &returnID,
		PurchaseInvoiceID: ret.PurchaseInvoiceID,
		SupplierID:        ret.SupplierID,
		Lines:             lines,
	})
	if err != nil {
		return Return{}, err
	}

	status := StatusApproved
	if refund > 0 {
		status = StatusRefunded
	}
	if err := s.repo.MarkPosted(ctx, tenant, ret.ID, status, input.Method, tx.ID, refund); err != nil {
		return Return{}, err
	}
	s.applyStock(ctx, tenant, ret, -1)
	s.recordAudit(ctx, tenant, ret, input.Method, tx.Number)

	ret.Status = status
	ret.PostingMethod = input.Method
	ret.TransactionID = &tx.ID
	ret.TotalAmount = total
	ret.RefundAmount = refund
	return ret, nil
}

// postCustomer debits Sales by the return total and credits the
// customer's receivable; a cash refund posts a second movement from the
// advance into Cash/Bank.
func (s *Service) postCustomer(ctx context.Context, tenant shared.TenantID, ret Return, input PostInput) (Return, error) {
	total := ret.Total()
	sales, err := s.account(ctx, tenant, ledger.CodeSales)
	if err != nil {
		return Return{}, err
	}
	receivable, err := s.account(ctx, tenant, ledger.CodeReceivable)
	if err != nil {
		return Return{}, err
	}

	lines := []ledger.LineInput{
		{AccountID: sales.ID, Debit: total},
		{AccountID: receivable.ID, Credit: total},
	}
	refund := 0.0
	if input.Method == MethodCashRefund || input.Method == MethodMixed {
		refund = total
		if input.Method == MethodMixed {
			if input.CashAmount <= 0 || input.CashAmount >= total {
				return Return{}, ErrBadCashSplit
			}
			refund = input.CashAmount
		}
		cash, err := s.cashAccount(ctx, tenant, input.CashAccountCode)
		if err != nil {
			return Return{}, err
		}
		// The credit just issued is paid out: receivable back up, money
		// out of cash.
		lines = append(lines,
			ledger.LineInput{AccountID: receivable.ID, Debit: refund},
			ledger.LineInput{AccountID: cash.ID, Credit: refund})
	} else if input.Method != MethodReducePayable {
		return Return{}, ErrBadMethod
	}

	returnID := ret.ID
	tx, err := s.books.CreateTransaction(ctx, tenant, ledger.TransactionInput{
		Date:          s.now(),
		Description:   fmt.Sprintf("Customer Return %s", ret.Number),
		Source:        string(KindCustomer),
		OrderReturnID: &returnID,
		CustomerID:    ret.CustomerID,
		Lines:         lines,
	})
	if err != nil {
		return Return{}, err
	}

	status := StatusApproved
	if refund > 0 {
		status = StatusRefunded
	}
	if err := s.repo.MarkPosted(ctx, tenant, ret.ID, status, input.Method, tx.ID, refund); err != nil {
		return Return{}, err
	}
	s.applyStock(ctx, tenant, ret, 1)
	s.recordAudit(ctx, tenant, ret, input.Method, tx.Number)

	ret.Status = status
	ret.PostingMethod = input.Method
	ret.TransactionID = &tx.ID
	ret.TotalAmount = total
	ret.RefundAmount = refund
	return ret, nil
}

// CheckInvoiceDrift recomputes the invoice's expected payable from its
// rows and compares it against the ledger movement. Drift is reported
// to the caller, never corrected here.
func (s *Service) CheckInvoiceDrift(ctx context.Context, tenant shared.TenantID, invoiceID int64) (DriftReport, error) {
	invoice, returnsTotal, paymentsTotal, err := s.repo.InvoiceTotals(ctx, tenant, invoiceID)
	if err != nil {
		return DriftReport{}, err
	}
	actual, err := s.repo.PayableMovement(ctx, tenant, invoiceID)
	if err != nil {
		return DriftReport{}, err
	}
	report := DriftReport{
		PurchaseInvoiceID: invoiceID,
		InvoiceTotal:      invoice,
		ReturnsTotal:      returnsTotal,
		PaymentsTotal:     paymentsTotal,
		Expected:          invoice - returnsTotal - paymentsTotal,
		Actual:            actual,
	}
	report.Drift = report.Actual - report.Expected
	if math.Abs(report.Drift) > driftTolerance && s.logger != nil {
		s.logger.Warn("payable drift detected",
			slog.Int64("tenant_id", int64(tenant)),
			slog.Int64("purchase_invoice_id", invoiceID),
			slog.Float64("expected", report.Expected),
			slog.Float64("actual", report.Actual))
	}
	return report, nil
}

func (s *Service) account(ctx context.Context, tenant shared.TenantID, code string) (ledger.Account, error) {
	spec, ok := ledger.WellKnownSpec(code)
	if !ok {
		return ledger.Account{}, fmt.Errorf("returns: unknown account code %q", code)
	}
	return s.books.GetOrCreateAccount(ctx, tenant, spec)
}

func (s *Service) cashAccount(ctx context.Context, tenant shared.TenantID, code string) (ledger.Account, error) {
	if code != ledger.CodeBank {
		code = ledger.CodeCash
	}
	return s.account(ctx, tenant, code)
}

// applyStock moves the returned quantities. Sign -1 for supplier
// returns (goods leave), +1 for customer returns (goods come back).
// A failure here is logged and left for reconciliation; the financial
// posting already committed.
func (s *Service) applyStock(ctx context.Context, tenant shared.TenantID, ret Return, sign int64) {
	if s.stock == nil {
		return
	}
	for _, item := range ret.Items {
		_, err := s.stock.Adjust(ctx, tenant, inventory.AdjustInput{
			ProductID: item.ProductID,
			Delta:     sign * item.Quantity,
			Reason:    fmt.Sprintf("Return %s", ret.Number),
		})
		if err != nil && s.logger != nil {
			s.logger.Error("return stock adjustment failed",
				slog.Int64("tenant_id", int64(tenant)),
				slog.Int64("product_id", item.ProductID),
				slog.Any("error", err))
		}
	}
}

func (s *Service) recordAudit(ctx context.Context, tenant shared.TenantID, ret Return, method PostingMethod, txNumber string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenant,
		Action:   "returns.post",
		Entity:   "return",
		EntityID: ret.Number,
		Meta: map[string]any{
			"kind":        string(ret.Kind),
			"method":      string(method),
			"transaction": txNumber,
		},
		At: s.now(),
	})
}
