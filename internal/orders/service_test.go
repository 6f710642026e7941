package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hisaab-erp/hisaab-erp/internal/balance"
	"github.com/hisaab-erp/hisaab-erp/internal/inventory"
	"github.com/hisaab-erp/hisaab-erp/internal/ledger"
	"github.com/hisaab-erp/hisaab-erp/internal/shared"
	"github.com/hisaab-erp/hisaab-erp/internal/shipping"
)

const testTenant = shared.TenantID(7)

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
	acc := ledger.Account{ID: f.nextID, TenantID: tenant, Code: spec.Code, Type: spec.Type}
	f.accounts[spec.Code] = acc
	return acc, nil
}

func (f *fakeLedger) CreateTransaction(ctx context.Context, tenant shared.TenantID, input ledger.TransactionInput) (ledger.Transaction, error) {
	if err := input.Validate(); err != nil {
		return ledger.Transaction{}, err
	}
	f.posted = append(f.posted, input)
	return ledger.Transaction{ID: int64(len(f.posted)), TenantID: tenant, Source: input.Source}, nil
}

func (f *fakeLedger) lineFor(posting int, code string) (float64, float64) {
	acc, ok := f.accounts[code]
	if !ok {
		return 0, 0
	}
	var debit, credit float64
	for _, line := range f.posted[posting].Lines {
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

type fakeStats struct {
	recalcs     []int64
	invalidated int
}

func (f *fakeStats) RecalculateCustomerStats(ctx context.Context, tenant shared.TenantID, customerID int64) (balance.CustomerStats, error) {
	f.recalcs = append(f.recalcs, customerID)
	return balance.CustomerStats{}, nil
}

func (f *fakeStats) InvalidateLedgers(ctx context.Context, tenant shared.TenantID) error {
	f.invalidated++
	return nil
}

type memoryOrdersRepo struct {
	config    shipping.TenantConfig
	products  map[int64]ProductShipping
	companies map[int64]shipping.LogisticsCompany
	orders    map[int64]Order
	payments  []float64
	nextID    int64
	nextSeq   int64
}

func newMemoryOrdersRepo() *memoryOrdersRepo {
	return &memoryOrdersRepo{
		products:  make(map[int64]ProductShipping),
		companies: make(map[int64]shipping.LogisticsCompany),
		orders:    make(map[int64]Order),
	}
}

func (r *memoryOrdersRepo) InsertOrder(ctx context.Context, tenant shared.TenantID, order Order) (Order, error) {
	r.nextID++
	r.nextSeq++
	order.ID = r.nextID
	order.TenantID = tenant
	order.Number = fmt.Sprintf("ORD-%d-%06d", order.OrderDate.Year(), r.nextSeq)
	for i := range order.Items {
		order.Items[i].ID = int64(i + 1)
		order.Items[i].OrderID = order.ID
	}
	r.orders[order.ID] = order
	return order, nil
}

func (r *memoryOrdersRepo) GetOrder(ctx context.Context, tenant shared.TenantID, id int64) (Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (r *memoryOrdersRepo) GetShippingConfig(ctx context.Context, tenant shared.TenantID) (shipping.TenantConfig, error) {
	return r.config, nil
}

func (r *memoryOrdersRepo) GetProductShipping(ctx context.Context, tenant shared.TenantID, productID int64) (ProductShipping, error) {
	if ps, ok := r.products[productID]; ok {
		return ps, nil
	}
	return ProductShipping{ProductID: productID, UseDefaultShipping: true}, nil
}

func (r *memoryOrdersRepo) GetLogisticsCompany(ctx context.Context, tenant shared.TenantID, id int64) (shipping.LogisticsCompany, error) {
	company, ok := r.companies[id]
	if !ok {
		return shipping.LogisticsCompany{}, ErrLogisticsNotFound
	}
	return company, nil
}

func (r *memoryOrdersRepo) InsertCustomerPayment(ctx context.Context, tenant shared.TenantID, customerID, orderID int64, amount float64, method string, date time.Time) (int64, error) {
	r.payments = append(r.payments, amount)
	return int64(len(r.payments)), nil
}

func newTestService(repo *memoryOrdersRepo, books *fakeLedger, stock *fakeStock, stats *fakeStats) *Service {
	var stockPort StockPort
	if stock != nil {
		stockPort = stock
	}
	var statsPort StatsPort
	if stats != nil {
		statsPort = stats
	}
	return NewService(repo, shipping.NewCalculator(nil), books, stockPort, statsPort, nil)
}

func lahoreRepo() *memoryOrdersRepo {
	repo := newMemoryOrdersRepo()
	repo.config = shipping.TenantConfig{
		CityCharges:       map[string]float64{"Lahore": 200},
		DefaultCityCharge: 300,
		QuantityRules: []shipping.Rule{
			{Min: 1, Max: 3, Type: shipping.ChargeFixed, Fee: 150},
		},
		DefaultQuantityCharge: 50,
	}
	repo.companies[4] = shipping.LogisticsCompany{ID: 4, Name: "Swift", FeeType: shipping.CodFixed, FlatFee: 50}
	return repo
}

func lahoreInput() ConfirmInput {
	logistics := int64(4)
	return ConfirmInput{
		CustomerID:         21,
		City:               "Lahore",
		Items:              []ItemInput{{ProductID: 1, Quantity: 2, UnitPrice: 1000}},
		LogisticsCompanyID: &logistics,
		Date:               time.Date(2026, time.June, 3, 0, 0, 0, 0, time.UTC),
	}
}

func TestConfirmPostsSaleWithCharges(t *testing.T) {
	repo := lahoreRepo()
	books := newFakeLedger()
	stock := &fakeStock{}
	stats := &fakeStats{}
	svc := newTestService(repo, books, stock, stats)

	input := lahoreInput()
	input.PaymentAmount = 400

	order, err := svc.Confirm(context.Background(), testTenant, input)
	require.NoError(t, err)

	require.Equal(t, StatusConfirmed, order.Status)
	require.InDelta(t, 2000.0, order.ItemsTotal, 0.001)
	require.InDelta(t, 350.0, order.ShippingCharges, 0.001)
	require.InDelta(t, 50.0, order.CodFee, 0.001)
	require.InDelta(t, 2400.0, order.Total(), 0.001)

	require.Len(t, books.posted, 2)
	arDebit, _ := books.lineFor(0, ledger.CodeReceivable)
	require.InDelta(t, 2400.0, arDebit, 0.001)
	_, salesCredit := books.lineFor(0, ledger.CodeSales)
	require.InDelta(t, 2000.0, salesCredit, 0.001)
	_, shippingCredit := books.lineFor(0, ledger.CodeShippingRevenue)
	require.InDelta(t, 350.0, shippingCredit, 0.001)
	_, codCredit := books.lineFor(0, ledger.CodeCodFees)
	require.InDelta(t, 50.0, codCredit, 0.001)

	cashDebit, _ := books.lineFor(1, ledger.CodeCash)
	require.InDelta(t, 400.0, cashDebit, 0.001)
	_, arCredit := books.lineFor(1, ledger.CodeReceivable)
	require.InDelta(t, 400.0, arCredit, 0.001)
	require.NotNil(t, books.posted[1].PaymentID)
	require.Equal(t, []float64{400}, repo.payments)

	require.Len(t, stock.adjustments, 1)
	require.Equal(t, int64(-2), stock.adjustments[0].Delta)
	require.Equal(t, []int64{21}, stats.recalcs)
	require.Equal(t, 1, stats.invalidated)
}

func TestConfirmSellerBorneCodFee(t *testing.T) {
	repo := lahoreRepo()
	books := newFakeLedger()
	svc := newTestService(repo, books, nil, nil)

	input := lahoreInput()
	input.CodFeePaidBy = CodPaidBySeller

	order, err := svc.Confirm(context.Background(), testTenant, input)
	require.NoError(t, err)

	require.InDelta(t, 50.0, order.CodFee, 0.001)
	require.InDelta(t, 2350.0, order.Total(), 0.001)

	arDebit, _ := books.lineFor(0, ledger.CodeReceivable)
	require.InDelta(t, 2350.0, arDebit, 0.001)
	_, ok := books.accounts[ledger.CodeCodFees]
	require.False(t, ok)
}

func TestConfirmWithoutLogistics(t *testing.T) {
	repo := lahoreRepo()
	books := newFakeLedger()
	svc := newTestService(repo, books, nil, nil)

	input := lahoreInput()
	input.LogisticsCompanyID = nil

	order, err := svc.Confirm(context.Background(), testTenant, input)
	require.NoError(t, err)
	require.Zero(t, order.CodFee)
	require.InDelta(t, 2350.0, order.Total(), 0.001)
}

func TestConfirmUnknownLogistics(t *testing.T) {
	svc := newTestService(lahoreRepo(), newFakeLedger(), nil, nil)

	input := lahoreInput()
	missing := int64(99)
	input.LogisticsCompanyID = &missing

	_, err := svc.Confirm(context.Background(), testTenant, input)
	require.ErrorIs(t, err, ErrLogisticsNotFound)
}

func TestConfirmValidation(t *testing.T) {
	svc := newTestService(lahoreRepo(), newFakeLedger(), nil, nil)
	ctx := context.Background()

	_, err := svc.Confirm(ctx, testTenant, ConfirmInput{CustomerID: 21})
	require.ErrorIs(t, err, ErrNoItems)

	input := lahoreInput()
	input.Items[0].Quantity = 0
	_, err = svc.Confirm(ctx, testTenant, input)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	input = lahoreInput()
	input.PaymentAmount = 99999
	_, err = svc.Confirm(ctx, testTenant, input)
	require.ErrorIs(t, err, ErrExcessPayment)
}

func TestQuoteUsesProductOverride(t *testing.T) {
	repo := lahoreRepo()
	repo.products[1] = ProductShipping{
		ProductID:             1,
		UseDefaultShipping:    false,
		QuantityRules:         []byte(`[{"min":1,"max":10,"type":"FIXED","fee":75}]`),
		DefaultQuantityCharge: 10,
	}
	svc := newTestService(repo, newFakeLedger(), nil, nil)

	shippingCharges, codFee, err := svc.Quote(context.Background(), testTenant, lahoreInput())
	require.NoError(t, err)
	// City 200 plus the product's own 75 band.
	require.InDelta(t, 275.0, shippingCharges, 0.001)
	require.InDelta(t, 50.0, codFee, 0.001)
}
