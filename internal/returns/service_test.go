package returns

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hisaab-erp/hisaab-erp/internal/inventory"
	"github.com/hisaab-erp/hisaab-erp/internal/ledger"
	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

const testTenant = shared.TenantID(5)

type fakeLedger struct {
	accounts map[string]ledger.Account
	nextID   int64
	posted   []ledger.TransactionInput
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{accounts: make(map[string]ledger.Account)}
}

func (f *fakeLedger) GetOrCreateAccount(ctx context.Context, tenant shared.TenantID, spec ledger.AccountSpec) (ledger.Account, error) {
	if acc, ok := f.accounts[spec.Code]; ok {
		return acc, nil
	}
	f.nextID++
	acc := ledger.Account{ID: f.nextID, TenantID: tenant, Code: spec.Code, Name: spec.Name, Type: spec.Type}
	f.accounts[spec.Code] = acc
	return acc, nil
}

func (f *fakeLedger) CreateTransaction(ctx context.Context, tenant shared.TenantID, input ledger.TransactionInput) (ledger.Transaction, error) {
	if err := input.Validate(); err != nil {
		return ledger.Transaction{}, err
	}
	f.posted = append(f.posted, input)
	return ledger.Transaction{ID: int64(len(f.posted)), TenantID: tenant, Number: "TXN-2026-000001", Source: input.Source}, nil
}

// lineFor returns debit and credit on the account with the given code
// summed over the last posted transaction.
func (f *fakeLedger) lineFor(code string) (float64, float64) {
	acc, ok := f.accounts[code]
	if !ok {
		return 0, 0
	}
	var debit, credit float64
	last := f.posted[len(f.posted)-1]
	for _, line := range last.Lines {
		if line.AccountID == acc.ID {
			debit += line.Debit
			credit += line.Credit
		}
	}
	return debit, credit
}

type fakeStock struct {
	adjustments []inventory.AdjustInput
}

func (f *fakeStock) Adjust(ctx context.Context, tenant shared.TenantID, input inventory.AdjustInput) (inventory.Product, error) {
	f.adjustments = append(f.adjustments, input)
	return inventory.Product{ID: input.ProductID}, nil
}

type memoryReturnsRepo struct {
	returns map[int64]*Return

	invoiceTotal  float64
	returnsTotal  float64
	paymentsTotal float64
	movement      float64
}

func (r *memoryReturnsRepo) GetReturn(ctx context.Context, tenant shared.TenantID, id int64) (Return, error) {
	ret, ok := r.returns[id]
	if !ok || ret.TenantID != tenant {
		return Return{}, ErrReturnNotFound
	}
	return *ret, nil
}

func (r *memoryReturnsRepo) MarkPosted(ctx context.Context, tenant shared.TenantID, id int64, status Status, method PostingMethod, txID int64, refundAmount float64) error {
	ret, ok := r.returns[id]
	if !ok {
		return ErrReturnNotFound
	}
	if ret.Status != StatusPending {
		return ErrAlreadyPosted
	}
	ret.Status = status
	ret.PostingMethod = method
	ret.TransactionID = &txID
	ret.RefundAmount = refundAmount
	return nil
}

func (r *memoryReturnsRepo) InvoiceTotals(ctx context.Context, tenant shared.TenantID, invoiceID int64) (float64, float64, float64, error) {
	// Only the payable-reducing remainder of each posted return counts,
	// matching the drift query.
	returnsTotal := r.returnsTotal
	for _, ret := range r.returns {
		if ret.Status == StatusPending || ret.PurchaseInvoiceID == nil || *ret.PurchaseInvoiceID != invoiceID {
			continue
		}
		returnsTotal += ret.Total() - ret.RefundAmount
	}
	return r.invoiceTotal, returnsTotal, r.paymentsTotal, nil
}

func (r *memoryReturnsRepo) PayableMovement(ctx context.Context, tenant shared.TenantID, invoiceID int64) (float64, error) {
	return r.movement, nil
}

func supplierReturn(id int64) *Return {
	supplierID := int64(9)
	invoiceID := int64(40)
	return &Return{
		ID:                id,
		TenantID:          testTenant,
		Kind:              KindSupplier,
		Number:            "SRET-0001",
		Status:            StatusPending,
		SupplierID:        &supplierID,
		PurchaseInvoiceID: &invoiceID,
		Date:              time.Date(2026, time.April, 2, 0, 0, 0, 0, time.UTC),
		Items: []ReturnItem{
			{ID: 1, ReturnID: id, ProductID: 1, ProductName: "Lawn Suit", Quantity: 2, Price: 700},
			{ID: 2, ReturnID: id, ProductID: 2, ProductName: "Dupatta", Quantity: 3, Price: 200},
		},
	}
}

func TestPostSupplierReturnReducesPayable(t *testing.T) {
	repo := &memoryReturnsRepo{returns: map[int64]*Return{1: supplierReturn(1)}}
	books := newFakeLedger()
	stock := &fakeStock{}
	svc := NewService(repo, books, stock, nil, nil)

	ret, err := svc.Post(context.Background(), testTenant, PostInput{ReturnID: 1, Method: MethodReducePayable})
	require.NoError(t, err)

	require.Equal(t, StatusApproved, ret.Status)
	require.Equal(t, MethodReducePayable, ret.PostingMethod)
	require.InDelta(t, 2000.0, ret.TotalAmount, 0.001)

	apDebit, apCredit := books.lineFor(ledger.CodePayable)
	require.InDelta(t, 2000.0, apDebit, 0.001)
	require.Zero(t, apCredit)
	invDebit, invCredit := books.lineFor(ledger.CodeInventory)
	require.Zero(t, invDebit)
	require.InDelta(t, 2000.0, invCredit, 0.001)

	require.Len(t, books.posted, 1)
	require.Equal(t, repo.returns[1].TransactionID, ret.TransactionID)
	require.EqualValues(t, 40, *books.posted[0].PurchaseInvoiceID)

	// Goods leave stock.
	require.Len(t, stock.adjustments, 2)
	require.EqualValues(t, -2, stock.adjustments[0].Delta)
	require.EqualValues(t, -3, stock.adjustments[1].Delta)
}

func TestPostSupplierReturnCashRefund(t *testing.T) {
	repo := &memoryReturnsRepo{returns: map[int64]*Return{1: supplierReturn(1)}}
	books := newFakeLedger()
	svc := NewService(repo, books, nil, nil, nil)

	ret, err := svc.Post(context.Background(), testTenant, PostInput{
		ReturnID:        1,
		Method:          MethodCashRefund,
		CashAccountCode: ledger.CodeBank,
	})
	require.NoError(t, err)

	require.Equal(t, StatusRefunded, ret.Status)
	require.InDelta(t, 2000.0, ret.RefundAmount, 0.001)
	bankDebit, _ := books.lineFor(ledger.CodeBank)
	require.InDelta(t, 2000.0, bankDebit, 0.001)
	apDebit, _ := books.lineFor(ledger.CodePayable)
	require.Zero(t, apDebit)
}

func TestPostSupplierReturnMixed(t *testing.T) {
	repo := &memoryReturnsRepo{returns: map[int64]*Return{1: supplierReturn(1)}}
	books := newFakeLedger()
	svc := NewService(repo, books, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, testTenant, PostInput{ReturnID: 1, Method: MethodMixed, CashAmount: 2000})
	require.ErrorIs(t, err, ErrBadCashSplit)

	ret, err := svc.Post(ctx, testTenant, PostInput{ReturnID: 1, Method: MethodMixed, CashAmount: 500})
	require.NoError(t, err)
	require.Equal(t, StatusRefunded, ret.Status)
	require.InDelta(t, 500.0, ret.RefundAmount, 0.001)

	cashDebit, _ := books.lineFor(ledger.CodeCash)
	require.InDelta(t, 500.0, cashDebit, 0.001)
	apDebit, _ := books.lineFor(ledger.CodePayable)
	require.InDelta(t, 1500.0, apDebit, 0.001)
}

func TestPostCustomerReturnWithRefund(t *testing.T) {
	customerID := int64(21)
	repo := &memoryReturnsRepo{returns: map[int64]*Return{2: {
		ID:         2,
		TenantID:   testTenant,
		Kind:       KindCustomer,
		Number:     "CRET-0001",
		Status:     StatusPending,
		CustomerID: &customerID,
		Items: []ReturnItem{
			{ID: 1, ReturnID: 2, ProductID: 3, ProductName: "Kurta", Quantity: 1, Price: 1500},
		},
	}}}
	books := newFakeLedger()
	stock := &fakeStock{}
	svc := NewService(repo, books, stock, nil, nil)

	ret, err := svc.Post(context.Background(), testTenant, PostInput{ReturnID: 2, Method: MethodCashRefund})
	require.NoError(t, err)

	require.Equal(t, StatusRefunded, ret.Status)
	salesDebit, _ := books.lineFor(ledger.CodeSales)
	require.InDelta(t, 1500.0, salesDebit, 0.001)
	arDebit, arCredit := books.lineFor(ledger.CodeReceivable)
	require.InDelta(t, 1500.0, arCredit, 0.001)
	require.InDelta(t, 1500.0, arDebit, 0.001)
	_, cashCredit := books.lineFor(ledger.CodeCash)
	require.InDelta(t, 1500.0, cashCredit, 0.001)

	// Goods come back into stock.
	require.Len(t, stock.adjustments, 1)
	require.EqualValues(t, 1, stock.adjustments[0].Delta)
}

func TestPostRejectsSecondPosting(t *testing.T) {
	ret := supplierReturn(1)
	ret.Status = StatusApproved
	repo := &memoryReturnsRepo{returns: map[int64]*Return{1: ret}}
	svc := NewService(repo, newFakeLedger(), nil, nil, nil)

	_, err := svc.Post(context.Background(), testTenant, PostInput{ReturnID: 1, Method: MethodReducePayable})
	require.ErrorIs(t, err, ErrAlreadyPosted)
}

func TestCashRefundedReturnDoesNotDrift(t *testing.T) {
	repo := &memoryReturnsRepo{
		returns:       map[int64]*Return{1: supplierReturn(1)},
		invoiceTotal:  5000,
		paymentsTotal: 1000,
		movement:      4000,
	}
	svc := NewService(repo, newFakeLedger(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, testTenant, PostInput{ReturnID: 1, Method: MethodCashRefund})
	require.NoError(t, err)

	// The refund left cash, not the payable, so the recomputed
	// expectation still agrees with the ledger movement.
	report, err := svc.CheckInvoiceDrift(ctx, testTenant, 40)
	require.NoError(t, err)
	require.InDelta(t, 0.0, report.ReturnsTotal, 0.001)
	require.InDelta(t, 0.0, report.Drift, 0.001)
}

func TestMixedReturnCountsOnlyPayablePortion(t *testing.T) {
	repo := &memoryReturnsRepo{
		returns:       map[int64]*Return{1: supplierReturn(1)},
		invoiceTotal:  5000,
		paymentsTotal: 1000,
		movement:      2500,
	}
	svc := NewService(repo, newFakeLedger(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, testTenant, PostInput{ReturnID: 1, Method: MethodMixed, CashAmount: 500})
	require.NoError(t, err)

	report, err := svc.CheckInvoiceDrift(ctx, testTenant, 40)
	require.NoError(t, err)
	require.InDelta(t, 1500.0, report.ReturnsTotal, 0.001)
	require.InDelta(t, 0.0, report.Drift, 0.001)
}

func TestCheckInvoiceDrift(t *testing.T) {
	repo := &memoryReturnsRepo{
		returns:       map[int64]*Return{},
		invoiceTotal:  10000,
		returnsTotal:  2000,
		paymentsTotal: 3000,
		movement:      5000,
	}
	svc := NewService(repo, newFakeLedger(), nil, nil, nil)
	ctx := context.Background()

	report, err := svc.CheckInvoiceDrift(ctx, testTenant, 40)
	require.NoError(t, err)
	require.InDelta(t, 5000.0, report.Expected, 0.001)
	require.InDelta(t, 0.0, report.Drift, 0.001)

	repo.movement = 5400
	report, err = svc.CheckInvoiceDrift(ctx, testTenant, 40)
	require.NoError(t, err)
	require.InDelta(t, 400.0, report.Drift, 0.001)
}
