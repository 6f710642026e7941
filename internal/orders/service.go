package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hisaab-erp/hisaab-erp/internal/balance"
	"github.com/hisaab-erp/hisaab-erp/internal/inventory"
	"github.com/hisaab-erp/hisaab-erp/internal/ledger"
	"github.com/hisaab-erp/hisaab-erp/internal/shared"
	"github.com/hisaab-erp/hisaab-erp/internal/shipping"
)

// Sources tagging ledger transactions created by order flows.
const (
	SourceOrderSale    = "ORDER_SALE"
	SourceOrderPayment = "ORDER_PAYMENT"
)

// LedgerPort is the posting surface order confirmation needs.
type LedgerPort interface {
	GetOrCreateAccount(ctx context.Context, tenant shared.TenantID, spec ledger.AccountSpec) (ledger.Account, error)
	CreateTransaction(ctx context.Context, tenant shared.TenantID, input ledger.TransactionInput) (ledger.Transaction, error)
}

// StockPort decrements sold quantities.
type StockPort interface {
	Adjust(ctx context.Context, tenant shared.TenantID, input inventory.AdjustInput) (inventory.Product, error)
}

// StatsPort refreshes customer rollups after confirmation.
type StatsPort interface {
	RecalculateCustomerStats(ctx context.Context, tenant shared.TenantID, customerID int64) (balance.CustomerStats, error)
	InvalidateLedgers(ctx context.Context, tenant shared.TenantID) error
}

// Service confirms orders: charges are computed, the order and its
// postings are recorded, stock and rollups follow as separately-atomic
// steps.
type Service struct {
	repo   Repository
	calc   *shipping.Calculator
	books  LedgerPort
	stock  StockPort
	stats  StatsPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds the orders service. Stock and stats may be nil.
func NewService(repo Repository, calc *shipping.Calculator, books LedgerPort, stock StockPort, stats StatsPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, calc: calc, books: books, stock: stock, stats: stats, logger: logger, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetOrder fetches one order with its items.
func (s *Service) GetOrder(ctx context.Context, tenant shared.TenantID, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, tenant, id)
}

// Quote computes shipping and COD charges for an order without
// recording anything.
func (s *Service) Quote(ctx context.Context, tenant shared.TenantID, input ConfirmInput) (shippingCharges, codFee float64, err error) {
	if len(input.Items) == 0 {
		return 0, 0, ErrNoItems
	}
	cfg, err := s.repo.GetShippingConfig(ctx, tenant)
	if err != nil {
		return 0, 0, err
	}
	items := make([]shipping.Item, 0, len(input.Items))
	for _, line := range input.Items {
		if line.Quantity <= 0 {
			return 0, 0, ErrInvalidQuantity
		}
		ps, err := s.repo.GetProductShipping(ctx, tenant, line.ProductID)
		if err != nil {
			return 0, 0, err
		}
		items = append(items, shipping.Item{
			ProductID:             line.ProductID,
			Quantity:              line.Quantity,
			UnitPrice:             line.UnitPrice,
			UseDefaultShipping:    ps.UseDefaultShipping,
			QuantityRules:         ps.QuantityRules,
			DefaultQuantityCharge: ps.DefaultQuantityCharge,
		})
	}
	shippingCharges = s.calc.ShippingCharges(cfg, input.City, items)

	if input.LogisticsCompanyID != nil {
		company, err := s.repo.GetLogisticsCompany(ctx, tenant, *input.LogisticsCompanyID)
		if err != nil {
			return 0, 0, err
		}
		codAmount := input.ItemsTotal() + shippingCharges
		codFee = s.calc.CodFee(company, codAmount)
	}
	return shippingCharges, codFee, nil
}

// Confirm records the order with computed charges, posts the sale and
// any upfront payment, then refreshes stock and customer rollups.
func (s *Service) Confirm(ctx context.Context, tenant shared.TenantID, input ConfirmInput) (Order, error) {
	shippingCharges, codFee, err := s.Quote(ctx, tenant, input)
	if err != nil {
		return Order{}, err
	}
	if input.Date.IsZero() {
		input.Date = s.now()
	}
	if input.CodFeePaidBy == "" {
		input.CodFeePaidBy = CodPaidByCustomer
	}

	order := Order{
		CustomerID:         input.CustomerID,
		Status:             StatusConfirmed,
		City:               input.City,
		LogisticsCompanyID: input.LogisticsCompanyID,
		ItemsTotal:         input.ItemsTotal(),
		ShippingCharges:    shippingCharges,
		CodFee:             codFee,
		CodFeePaidBy:       input.CodFeePaidBy,
		PaymentAmount:      input.PaymentAmount,
		OrderDate:          input.Date,
	}
	if input.PaymentAmount < 0 || input.PaymentAmount > order.Total() {
		return Order{}, ErrExcessPayment
	}
	for _, line := range input.Items {
		order.Items = append(order.Items, OrderItem{ProductID: line.ProductID, Quantity: line.Quantity, UnitPrice: line.UnitPrice})
	}

	order, err = s.repo.InsertOrder(ctx, tenant, order)
	if err != nil {
		return Order{}, err
	}

	if err := s.postSale(ctx, tenant, order); err != nil {
		return Order{}, err
	}
	if input.PaymentAmount > 0 {
		if err := s.postPayment(ctx, tenant, order, input); err != nil {
			return Order{}, err
		}
	}

	s.applyStock(ctx, tenant, order)
	s.refreshStats(ctx, tenant, order.CustomerID)
	return order, nil
}

// postSale debits the receivable for the full order value and credits
// the revenue accounts. A customer-borne COD fee is recovered against
// the COD expense account.
func (s *Service) postSale(ctx context.Context, tenant shared.TenantID, order Order) error {
	receivable, err := s.account(ctx, tenant, ledger.CodeReceivable)
	if err != nil {
		return err
	}
	sales, err := s.account(ctx, tenant, ledger.CodeSales)
	if err != nil {
		return err
	}

	lines := []ledger.LineInput{
		{AccountID: receivable.ID, Debit: order.Total()},
		{AccountID: sales.ID, Credit: order.ItemsTotal},
	}
	if order.ShippingCharges > 0 {
		shippingAcc, err := s.account(ctx, tenant, ledger.CodeShippingRevenue)
		if err != nil {
			return err
		}
		lines = append(lines, ledger.LineInput{AccountID: shippingAcc.ID, Credit: order.ShippingCharges})
	}
	if order.CodFee > 0 && order.CodFeePaidBy == CodPaidByCustomer {
		codAcc, err := s.account(ctx, tenant, ledger.CodeCodFees)
		if err != nil {
			return err
		}
		lines = append(lines, ledger.LineInput{AccountID: codAcc.ID, Credit: order.CodFee})
	}

	customerID := order.CustomerID
	_, err = s.books.CreateTransaction(ctx, tenant, ledger.TransactionInput{
		Date:        order.OrderDate,
		Description: fmt.Sprintf("Order %s", order.Number),
		Source:      SourceOrderSale,
		CustomerID:  &customerID,
		Lines:       lines,
	})
	return err
}

func (s *Service) postPayment(ctx context.Context, tenant shared.TenantID, order Order, input ConfirmInput) error {
	method := "CASH"
	code := ledger.CodeCash
	if input.PaymentMethod == "BANK" {
		method = "BANK"
		code = ledger.CodeBank
	}
	paymentID, err := s.repo.InsertCustomerPayment(ctx, tenant, order.CustomerID, order.ID, input.PaymentAmount, method, order.OrderDate)
	if err != nil {
		return err
	}

	cash, err := s.account(ctx, tenant, code)
	if err != nil {
		return err
	}
	receivable, err := s.account(ctx, tenant, ledger.CodeReceivable)
	if err != nil {
		return err
	}
	customerID := order.CustomerID
	_, err = s.books.CreateTransaction(ctx, tenant, ledger.TransactionInput{
		Date:        order.OrderDate,
		Description: fmt.Sprintf("Payment for order %s", order.Number),
		Source:      SourceOrderPayment,
		CustomerID:  &customerID,
		PaymentID:   &paymentID,
		Lines: []ledger.LineInput{
			{AccountID: cash.ID, Debit: input.PaymentAmount},
			{AccountID: receivable.ID, Credit: input.PaymentAmount},
		},
	})
	return err
}

func (s *Service) account(ctx context.Context, tenant shared.TenantID, code string) (ledger.Account, error) {
	spec, ok := ledger.WellKnownSpec(code)
	if !ok {
		return ledger.Account{}, fmt.Errorf("orders: unknown account code %q", code)
	}
	return s.books.GetOrCreateAccount(ctx, tenant, spec)
}

// applyStock decrements sold quantities. Failures are logged for
// reconciliation; the order and its postings already committed.
func (s *Service) applyStock(ctx context.Context, tenant shared.TenantID, order Order) {
	if s.stock == nil {
		return
	}
	for _, item := range order.Items {
		_, err := s.stock.Adjust(ctx, tenant, inventory.AdjustInput{
			ProductID: item.ProductID,
			Delta:     -item.Quantity,
			Reason:    fmt.Sprintf("Order %s", order.Number),
		})
		if err != nil && s.logger != nil {
			s.logger.Error("order stock adjustment failed",
				slog.Int64("tenant_id", int64(tenant)),
				slog.Int64("product_id", item.ProductID),
				slog.Any("error", err))
		}
	}
}

func (s *Service) refreshStats(ctx context.Context, tenant shared.TenantID, customerID int64) {
	if s.stats == nil {
		return
	}
	if _, err := s.stats.RecalculateCustomerStats(ctx, tenant, customerID); err != nil && s.logger != nil {
		s.logger.Warn("customer stats refresh failed",
			slog.Int64("tenant_id", int64(tenant)),
			slog.Int64("customer_id", customerID),
			slog.Any("error", err))
	}
	if err := s.stats.InvalidateLedgers(ctx, tenant); err != nil && s.logger != nil {
		s.logger.Warn("ledger cache invalidation failed", slog.Any("error", err))
	}
}
