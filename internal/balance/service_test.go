package balance

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hisaab-erp/hisaab-erp/internal/ledger"
	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

const testTenant = shared.TenantID(11)

type memoryBalanceRepo struct {
	customers map[int64]*Customer
	suppliers map[int64]*Supplier
	opening   map[string][]OpeningLine
	orders    []Order
	payments  []Payment
	returns   []Return
	invoices  []Invoice

	orderListCalls int
}

func newMemoryBalanceRepo() *memoryBalanceRepo {
	return &memoryBalanceRepo{
		customers: make(map[int64]*Customer),
		suppliers: make(map[int64]*Supplier),
		opening:   make(map[string][]OpeningLine),
	}
}

func openingKey(source string, entityID int64) string {
	return fmt.Sprintf("%s:%d", source, entityID)
}

func (r *memoryBalanceRepo) GetCustomer(ctx context.Context, tenant shared.TenantID, id int64) (Customer, error) {
	c, ok := r.customers[id]
	if !ok || c.TenantID != tenant {
		return Customer{}, ErrCustomerNotFound
	}
	return *c, nil
}

func (r *memoryBalanceRepo) GetSupplier(ctx context.Context, tenant shared.TenantID, id int64) (Supplier, error) {
	s, ok := r.suppliers[id]
	if !ok || s.TenantID != tenant {
		return Supplier{}, ErrSupplierNotFound
	}
	return *s, nil
}

func (r *memoryBalanceRepo) GetOpeningLines(ctx context.Context, tenant shared.TenantID, source string, entityID int64) ([]OpeningLine, error) {
	return r.opening[openingKey(source, entityID)], nil
}

func (r *memoryBalanceRepo) ListOrders(ctx context.Context, tenant shared.TenantID, customerID int64, rng DateRange) ([]Order, error) {
	r.orderListCalls++
	var out []Order
	for _, o := range r.orders {
		if o.TenantID == tenant && o.CustomerID == customerID && o.Status.Billable() && rng.Contains(o.OrderDate) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memoryBalanceRepo) ListAllOrders(ctx context.Context, tenant shared.TenantID, customerID int64) ([]Order, error) {
	var out []Order
	for _, o := range r.orders {
		if o.TenantID == tenant && o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memoryBalanceRepo) ListPayments(ctx context.Context, tenant shared.TenantID, ptype PaymentType, entityID int64, rng DateRange) ([]Payment, error) {
	var out []Payment
	for _, p := range r.payments {
		if p.TenantID != tenant || p.Type != ptype || !rng.Contains(p.Date) {
			continue
		}
		if ptype == PaymentTypeCustomer && (p.CustomerID == nil || *p.CustomerID != entityID) {
			continue
		}
		if ptype == PaymentTypeSupplier && (p.SupplierID == nil || *p.SupplierID != entityID) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *memoryBalanceRepo) ListCustomerReturns(ctx context.Context, tenant shared.TenantID, customerID int64, rng DateRange) ([]Return, error) {
	var out []Return
	for _, ret := range r.returns {
		if ret.TenantID == tenant && ret.CustomerID != nil && *ret.CustomerID == customerID && rng.Contains(ret.Date) {
			out = append(out, ret)
		}
	}
	return out, nil
}

func (r *memoryBalanceRepo) ListSupplierReturns(ctx context.Context, tenant shared.TenantID, supplierID int64, rng DateRange) ([]Return, error) {
	var out []Return
	for _, ret := range r.returns {
		if ret.TenantID == tenant && ret.SupplierID != nil && *ret.SupplierID == supplierID && rng.Contains(ret.Date) {
			out = append(out, ret)
		}
	}
	return out, nil
}

func (r *memoryBalanceRepo) ListInvoices(ctx context.Context, tenant shared.TenantID, supplierID int64, rng DateRange) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if inv.TenantID == tenant && inv.SupplierID == supplierID && rng.Contains(inv.Date) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *memoryBalanceRepo) ListAllInvoices(ctx context.Context, tenant shared.TenantID, supplierID int64) ([]Invoice, error) {
	return r.ListInvoices(ctx, tenant, supplierID, DateRange{})
}

func (r *memoryBalanceRepo) UpdateCustomerStats(ctx context.Context, tenant shared.TenantID, customerID int64, stats CustomerStats) error {
	c, ok := r.customers[customerID]
	if !ok {
		return ErrCustomerNotFound
	}
	c.TotalOrders = stats.TotalOrders
	c.TotalSpent = stats.TotalSpent
	c.LastOrderDate = stats.LastOrderDate
	return nil
}

func (r *memoryBalanceRepo) UpdateSupplierStats(ctx context.Context, tenant shared.TenantID, supplierID int64, stats SupplierStats) error {
	s, ok := r.suppliers[supplierID]
	if !ok {
		return ErrSupplierNotFound
	}
	s.TotalInvoices = stats.TotalInvoices
	s.TotalPurchased = stats.TotalPurchased
	s.LastInvoiceDate = stats.LastInvoiceDate
	return nil
}

func day(d int) time.Time {
	return time.Date(2026, time.March, d, 0, 0, 0, 0, time.UTC)
}

func int64Ptr(v int64) *int64 { return &v }

func TestCustomerLedgerAdvanceWithoutOpeningTransaction(t *testing.T) {
	repo := newMemoryBalanceRepo()
	repo.customers[1] = &Customer{ID: 1, TenantID: testTenant, Name: "Ayesha", AdvanceBalance: 500}
	repo.orders = []Order{
		{ID: 1, TenantID: testTenant, CustomerID: 1, Number: "ORD-1", Status: OrderStatusConfirmed, OrderDate: day(1), ItemsTotal: 800},
	}
	repo.payments = []Payment{
		{ID: 1, TenantID: testTenant, Type: PaymentTypeCustomer, CustomerID: int64Ptr(1), Amount: 300, Date: day(2)},
	}
	svc := NewService(repo, nil, nil)

	out, err := svc.BuildCustomerLedger(context.Background(), testTenant, 1, DateRange{})
	require.NoError(t, err)

	// No explicit opening transaction: the running balance starts at 0
	// and the stored advance is not pre-subtracted.
	require.Len(t, out.Rows, 2)
	require.InDelta(t, 800.0, out.Rows[0].Balance, 0.001)
	require.InDelta(t, 500.0, out.Rows[1].Balance, 0.001)
	require.InDelta(t, 0.0, out.Summary.OpeningBalance, 0.001)
	require.InDelta(t, 500.0, out.Summary.ClosingBalance, 0.001)
}

func TestCustomerLedgerExplicitOpening(t *testing.T) {
	repo := newMemoryBalanceRepo()
	repo.customers[1] = &Customer{ID: 1, TenantID: testTenant, Name: "Bilal", AdvanceBalance: 999}
	repo.opening[openingKey(SourceCustomerOpening, 1)] = []OpeningLine{
		{AccountCode: ledger.CodeReceivable, Debit: 1000},
		{AccountCode: ledger.CodeCustomerAdvance, Debit: 200},
	}
	repo.orders = []Order{
		{ID: 1, TenantID: testTenant, CustomerID: 1, Number: "ORD-2", Status: OrderStatusCompleted, OrderDate: day(3), ItemsTotal: 500},
	}
	svc := NewService(repo, nil, nil)

	opening, err := svc.CalculateCustomerBalance(context.Background(), testTenant, 1)
	require.NoError(t, err)
	require.True(t, opening.Explicit)
	require.InDelta(t, 1000.0, opening.Receivable, 0.001)
	require.InDelta(t, 200.0, opening.Advance, 0.001)

	out, err := svc.BuildCustomerLedger(context.Background(), testTenant, 1, DateRange{})
	require.NoError(t, err)
	require.Equal(t, RowOpening, out.Rows[0].Type)
	require.InDelta(t, 800.0, out.Rows[0].Balance, 0.001)
	require.InDelta(t, 800.0, out.Summary.OpeningBalance, 0.001)
	require.InDelta(t, 1300.0, out.Summary.ClosingBalance, 0.001)
}

func TestCustomerLedgerNoDoubleCounting(t *testing.T) {
	repo := newMemoryBalanceRepo()
	// The advance rollup came from this very direct payment; it must not
	// be counted again as a starting balance.
	repo.customers[1] = &Customer{ID: 1, TenantID: testTenant, Name: "Dania", AdvanceBalance: 500}
	repo.payments = []Payment{
		{ID: 1, TenantID: testTenant, Type: PaymentTypeCustomer, CustomerID: int64Ptr(1), Amount: 500, Date: day(1)},
	}
	svc := NewService(repo, nil, nil)

	out, err := svc.BuildCustomerLedger(context.Background(), testTenant, 1, DateRange{})
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	require.True(t, out.Rows[0].Direct)
	require.InDelta(t, -500.0, out.Summary.ClosingBalance, 0.001)
}

func TestCustomerLedgerCodFeeAndRefund(t *testing.T) {
	repo := newMemoryBalanceRepo()
	repo.customers[1] = &Customer{ID: 1, TenantID: testTenant, Name: "Emaan"}
	repo.orders = []Order{
		{ID: 1, TenantID: testTenant, CustomerID: 1, Number: "ORD-3", Status: OrderStatusDispatched, OrderDate: day(1), ItemsTotal: 1000, ShippingCharges: 350, CodFee: 50, CodFeePaidBy: "CUSTOMER"},
		{ID: 2, TenantID: testTenant, CustomerID: 1, Number: "ORD-4", Status: OrderStatusDispatched, OrderDate: day(2), ItemsTotal: 1000, ShippingCharges: 350, CodFee: 50, CodFeePaidBy: "SELLER"},
		{ID: 3, TenantID: testTenant, CustomerID: 1, Number: "ORD-5", Status: OrderStatusCancelled, OrderDate: day(3), ItemsTotal: 9999},
	}
	repo.returns = []Return{
		{ID: 1, TenantID: testTenant, CustomerID: int64Ptr(1), Number: "RET-1", TotalAmount: 400, RefundAmount: 300, Refunded: true, Date: day(4)},
	}
	svc := NewService(repo, nil, nil)

	out, err := svc.BuildCustomerLedger(context.Background(), testTenant, 1, DateRange{})
	require.NoError(t, err)

	// Cancelled order contributes nothing; COD fee only when the
	// customer bears it; refunded return adds a debit row.
	require.Len(t, out.Rows, 4)
	require.InDelta(t, 1400.0, out.Rows[0].Debit, 0.001)
	require.InDelta(t, 1350.0, out.Rows[1].Debit, 0.001)
	require.Equal(t, RowReturn, out.Rows[2].Type)
	require.Equal(t, RowRefund, out.Rows[3].Type)
	require.InDelta(t, 1400+1350-400+300, out.Summary.ClosingBalance, 0.001)
}

func TestSupplierLedgerPurchaseReturnPayment(t *testing.T) {
	repo := newMemoryBalanceRepo()
	repo.suppliers[4] = &Supplier{ID: 4, TenantID: testTenant, Name: "Textile House"}
	repo.invoices = []Invoice{
		{ID: 1, TenantID: testTenant, SupplierID: 4, Number: "PI-0001", TotalAmount: 10000, Date: day(1)},
	}
	repo.returns = []Return{
		{ID: 1, TenantID: testTenant, SupplierID: int64Ptr(4), Number: "SRET-1", TotalAmount: 2000, Date: day(2)},
	}
	repo.payments = []Payment{
		{ID: 1, TenantID: testTenant, Type: PaymentTypeSupplier, SupplierID: int64Ptr(4), Amount: 3000, Date: day(3)},
	}
	svc := NewService(repo, nil, nil)

	out, err := svc.BuildSupplierLedger(context.Background(), testTenant, 4, DateRange{})
	require.NoError(t, err)
	require.Len(t, out.Rows, 3)
	require.InDelta(t, 10000.0, out.Rows[0].Balance, 0.001)
	require.InDelta(t, 8000.0, out.Rows[1].Balance, 0.001)
	require.InDelta(t, 5000.0, out.Rows[2].Balance, 0.001)
	require.InDelta(t, 5000.0, out.Summary.ClosingBalance, 0.001)
}

func TestLedgerClosingIdentity(t *testing.T) {
	repo := newMemoryBalanceRepo()
	repo.customers[1] = &Customer{ID: 1, TenantID: testTenant, Name: "Farah"}
	repo.opening[openingKey(SourceCustomerOpening, 1)] = []OpeningLine{
		{AccountCode: ledger.CodeReceivable, Debit: 250},
	}
	repo.orders = []Order{
		{ID: 1, TenantID: testTenant, CustomerID: 1, Number: "ORD-6", Status: OrderStatusConfirmed, OrderDate: day(1), ItemsTotal: 700, ShippingCharges: 100},
		{ID: 2, TenantID: testTenant, CustomerID: 1, Number: "ORD-7", Status: OrderStatusCompleted, OrderDate: day(5), ItemsTotal: 1200},
	}
	repo.payments = []Payment{
		{ID: 1, TenantID: testTenant, Type: PaymentTypeCustomer, CustomerID: int64Ptr(1), OrderID: int64Ptr(1), Amount: 800, Date: day(2)},
		{ID: 2, TenantID: testTenant, Type: PaymentTypeCustomer, CustomerID: int64Ptr(1), Amount: 450, Date: day(6)},
	}
	repo.returns = []Return{
		{ID: 1, TenantID: testTenant, CustomerID: int64Ptr(1), Number: "RET-2", TotalAmount: 150, Date: day(7)},
	}
	svc := NewService(repo, nil, nil)

	out, err := svc.BuildCustomerLedger(context.Background(), testTenant, 1, DateRange{})
	require.NoError(t, err)

	var debits, credits float64
	for _, row := range out.Rows {
		debits += row.Debit
		credits += row.Credit
	}
	require.InDelta(t, out.Summary.OpeningBalance+debits-credits, out.Summary.ClosingBalance, 0.001)
	require.InDelta(t, out.Rows[len(out.Rows)-1].Balance, out.Summary.ClosingBalance, 0.001)
}

func TestRecalculateCustomerStatsIdempotent(t *testing.T) {
	repo := newMemoryBalanceRepo()
	repo.customers[1] = &Customer{ID: 1, TenantID: testTenant, Name: "Gul", TotalOrders: 99, TotalSpent: 12345}
	repo.orders = []Order{
		{ID: 1, TenantID: testTenant, CustomerID: 1, Status: OrderStatusCompleted, OrderDate: day(1), PaymentAmount: 900, ShippingCharges: 100},
		{ID: 2, TenantID: testTenant, CustomerID: 1, Status: OrderStatusConfirmed, OrderDate: day(4), PaymentAmount: 600, ShippingCharges: 200},
	}
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	first, err := svc.RecalculateCustomerStats(ctx, testTenant, 1)
	require.NoError(t, err)
	second, err := svc.RecalculateCustomerStats(ctx, testTenant, 1)
	require.NoError(t, err)

	require.Equal(t, first.TotalOrders, second.TotalOrders)
	require.InDelta(t, first.TotalSpent, second.TotalSpent, 0.001)
	require.EqualValues(t, 2, second.TotalOrders)
	require.InDelta(t, 1800.0, second.TotalSpent, 0.001)
	require.Equal(t, day(4), *second.LastOrderDate)
	require.EqualValues(t, 2, repo.customers[1].TotalOrders)
}

func TestRecalculateSupplierStats(t *testing.T) {
	repo := newMemoryBalanceRepo()
	repo.suppliers[4] = &Supplier{ID: 4, TenantID: testTenant, Name: "Mills"}
	repo.invoices = []Invoice{
		{ID: 1, TenantID: testTenant, SupplierID: 4, TotalAmount: 10000, Date: day(1)},
		{ID: 2, TenantID: testTenant, SupplierID: 4, TotalAmount: 4000, Date: day(8)},
	}
	svc := NewService(repo, nil, nil)

	stats, err := svc.RecalculateSupplierStats(context.Background(), testTenant, 4)
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.TotalInvoices)
	require.InDelta(t, 14000.0, stats.TotalPurchased, 0.001)
	require.Equal(t, day(8), *stats.LastInvoiceDate)
}

func TestCustomerLedgerDateRange(t *testing.T) {
	repo := newMemoryBalanceRepo()
	repo.customers[1] = &Customer{ID: 1, TenantID: testTenant, Name: "Hina"}
	repo.orders = []Order{
		{ID: 1, TenantID: testTenant, CustomerID: 1, Number: "ORD-8", Status: OrderStatusConfirmed, OrderDate: day(1), ItemsTotal: 100},
		{ID: 2, TenantID: testTenant, CustomerID: 1, Number: "ORD-9", Status: OrderStatusConfirmed, OrderDate: day(20), ItemsTotal: 200},
	}
	svc := NewService(repo, nil, nil)

	out, err := svc.BuildCustomerLedger(context.Background(), testTenant, 1, DateRange{From: day(10), To: day(25)})
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	require.Equal(t, "ORD-9", out.Rows[0].Reference)
}
