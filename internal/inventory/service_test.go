package inventory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

const testTenant = shared.TenantID(3)

type memoryInventoryRepo struct {
	products    map[int64]*Product
	byName      map[string]int64
	variants    map[int64]*ProductVariant
	logs        []ProductLog
	items       map[int64]*PurchaseItem
	invoices    map[int64]bool
	nextProduct int64
	nextVariant int64
	nextItem    int64
}

func newMemoryInventoryRepo() *memoryInventoryRepo {
	return &memoryInventoryRepo{
		products: make(map[int64]*Product),
		byName:   make(map[string]int64),
		variants: make(map[int64]*ProductVariant),
		items:    make(map[int64]*PurchaseItem),
		invoices: make(map[int64]bool),
	}
}

func (r *memoryInventoryRepo) addItem(invoiceID, productID int64, name, color, size string, qty int64, price float64) *PurchaseItem {
	r.nextItem++
	item := &PurchaseItem{
		ID:                r.nextItem,
		TenantID:          testTenant,
		PurchaseInvoiceID: invoiceID,
		ProductID:         productID,
		ProductName:       name,
		Color:             color,
		Size:              size,
		Quantity:          qty,
		PurchasePrice:     price,
	}
	r.items[item.ID] = item
	r.invoices[invoiceID] = true
	return item
}

func (r *memoryInventoryRepo) GetProduct(ctx context.Context, tenant shared.TenantID, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok || p.TenantID != tenant {
		return Product{}, ErrProductNotFound
	}
	return *p, nil
}

func (r *memoryInventoryRepo) ListLogs(ctx context.Context, tenant shared.TenantID, productID int64, limit int) ([]ProductLog, error) {
	var out []ProductLog
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].TenantID == tenant && r.logs[i].ProductID == productID {
			out = append(out, r.logs[i])
		}
	}
	return out, nil
}

func (r *memoryInventoryRepo) ListBelowMinStock(ctx context.Context, tenant shared.TenantID) ([]Product, error) {
	var out []Product
	for _, p := range r.products {
		if p.TenantID == tenant && p.MinStockLevel > 0 && p.CurrentQuantity < p.MinStockLevel {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryInventoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryInventoryTx{repo: r})
}

type memoryInventoryTx struct {
	repo *memoryInventoryRepo
}

func (tx *memoryInventoryTx) GetProductForUpdate(ctx context.Context, tenant shared.TenantID, id int64) (Product, error) {
	return tx.repo.GetProduct(ctx, tenant, id)
}

func (tx *memoryInventoryTx) GetProductByNameForUpdate(ctx context.Context, tenant shared.TenantID, name string) (Product, error) {
	id, ok := tx.repo.byName[fmt.Sprintf("%d:%s", tenant, name)]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return *tx.repo.products[id], nil
}

func (tx *memoryInventoryTx) InsertProduct(ctx context.Context, tenant shared.TenantID, item PurchaseItemInput) (Product, error) {
	tx.repo.nextProduct++
	p := &Product{
		ID:                 tx.repo.nextProduct,
		TenantID:           tenant,
		Name:               item.ProductName,
		SKU:                item.SKU,
		LastPurchasePrice:  item.PurchasePrice,
		CurrentRetailPrice: item.RetailPrice,
		UseDefaultShipping: true,
		CreatedAt:          time.Now(),
	}
	tx.repo.products[p.ID] = p
	tx.repo.byName[fmt.Sprintf("%d:%s", tenant, item.ProductName)] = p.ID
	return *p, nil
}

func (tx *memoryInventoryTx) SetProductQuantity(ctx context.Context, productID int64, quantity int64) error {
	p, ok := tx.repo.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	p.CurrentQuantity = quantity
	return nil
}

func (tx *memoryInventoryTx) SetProductPurchasePrice(ctx context.Context, productID int64, price float64) error {
	p, ok := tx.repo.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	p.LastPurchasePrice = price
	return nil
}

func (tx *memoryInventoryTx) GetVariantForUpdate(ctx context.Context, tenant shared.TenantID, productID int64, color, size string) (ProductVariant, error) {
	for _, v := range tx.repo.variants {
		if v.TenantID == tenant && v.ProductID == productID && v.Color == color && v.Size == size {
			return *v, nil
		}
	}
	return ProductVariant{}, ErrVariantNotFound
}

func (tx *memoryInventoryTx) InsertVariant(ctx context.Context, tenant shared.TenantID, productID int64, item PurchaseItemInput) (ProductVariant, error) {
	tx.repo.nextVariant++
	v := &ProductVariant{
		ID:        tx.repo.nextVariant,
		TenantID:  tenant,
		ProductID: productID,
		Color:     item.Color,
		Size:      item.Size,
		SKU:       item.SKU,
	}
	tx.repo.variants[v.ID] = v
	return *v, nil
}

func (tx *memoryInventoryTx) SetVariantQuantity(ctx context.Context, variantID int64, quantity int64) error {
	v, ok := tx.repo.variants[variantID]
	if !ok {
		return ErrVariantNotFound
	}
	v.CurrentQuantity = quantity
	return nil
}

func (tx *memoryInventoryTx) InsertLog(ctx context.Context, log ProductLog) error {
	log.ID = int64(len(tx.repo.logs) + 1)
	tx.repo.logs = append(tx.repo.logs, log)
	return nil
}

func (tx *memoryInventoryTx) ListActiveItems(ctx context.Context, tenant shared.TenantID, invoiceID int64) ([]PurchaseItem, error) {
	var out []PurchaseItem
	for _, item := range tx.repo.items {
		if item.TenantID == tenant && item.PurchaseInvoiceID == invoiceID && !item.IsDeleted {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (tx *memoryInventoryTx) SoftDeleteItems(ctx context.Context, tenant shared.TenantID, invoiceID int64, at time.Time) error {
	for _, item := range tx.repo.items {
		if item.TenantID == tenant && item.PurchaseInvoiceID == invoiceID && !item.IsDeleted {
			item.IsDeleted = true
			deletedAt := at
			item.DeletedAt = &deletedAt
		}
	}
	return nil
}

func (tx *memoryInventoryTx) DeleteInvoiceRow(ctx context.Context, tenant shared.TenantID, invoiceID int64) error {
	if !tx.repo.invoices[invoiceID] {
		return ErrInvoiceNotFound
	}
	delete(tx.repo.invoices, invoiceID)
	return nil
}

func TestUpdateFromPurchaseCreatesAndIncrements(t *testing.T) {
	repo := newMemoryInventoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.UpdateFromPurchase(ctx, testTenant, []PurchaseItemInput{
		{ProductName: "Lawn Suit", SKU: "LS-01", Quantity: 10, PurchasePrice: 1500, RetailPrice: 2200},
	}, 1, "PI-0001")
	require.NoError(t, err)

	product, err := svc.GetProduct(ctx, testTenant, 1)
	require.NoError(t, err)
	require.EqualValues(t, 10, product.CurrentQuantity)
	require.InDelta(t, 1500.0, product.LastPurchasePrice, 0.001)

	// Second purchase of the same product increments and refreshes price.
	_, err = svc.UpdateFromPurchase(ctx, testTenant, []PurchaseItemInput{
		{ProductName: "Lawn Suit", Quantity: 5, PurchasePrice: 1600},
	}, 2, "PI-0002")
	require.NoError(t, err)

	product, err = svc.GetProduct(ctx, testTenant, 1)
	require.NoError(t, err)
	require.EqualValues(t, 15, product.CurrentQuantity)
	require.InDelta(t, 1600.0, product.LastPurchasePrice, 0.001)

	logs, err := svc.History(ctx, testTenant, 1, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, LogActionIncrease, logs[0].Action)
	require.EqualValues(t, 10, logs[0].OldQuantity)
	require.EqualValues(t, 15, logs[0].NewQuantity)
	require.Equal(t, LogActionCreate, logs[1].Action)
	require.Equal(t, "Purchase Invoice: PI-0001", logs[1].Reference)
}

func TestUpdateFromPurchaseVariant(t *testing.T) {
	repo := newMemoryInventoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.UpdateFromPurchase(ctx, testTenant, []PurchaseItemInput{
		{ProductName: "Kurta", Color: "Blue", Size: "M", Quantity: 4, PurchasePrice: 900},
	}, 1, "PI-0003")
	require.NoError(t, err)

	v, err := (&memoryInventoryTx{repo: repo}).GetVariantForUpdate(ctx, testTenant, 1, "Blue", "M")
	require.NoError(t, err)
	require.EqualValues(t, 4, v.CurrentQuantity)
}

func TestUpdateFromPurchaseRejectsNonPositiveQuantity(t *testing.T) {
	repo := newMemoryInventoryRepo()
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.UpdateFromPurchase(context.Background(), testTenant, []PurchaseItemInput{
		{ProductName: "Kurta", Quantity: 0, PurchasePrice: 900},
	}, 1, "PI-0004")
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

type countingDrift struct{ clamps int }

func (c *countingDrift) RecordClampedDecrement() { c.clamps++ }

func TestDeletePurchaseInvoiceReversesAndSoftDeletes(t *testing.T) {
	repo := newMemoryInventoryRepo()
	drift := &countingDrift{}
	svc := NewService(repo, nil, drift, nil)
	ctx := context.Background()

	_, err := svc.UpdateFromPurchase(ctx, testTenant, []PurchaseItemInput{
		{ProductName: "Shawl", Quantity: 8, PurchasePrice: 700},
	}, 5, "PI-0005")
	require.NoError(t, err)
	item := repo.addItem(5, 1, "Shawl", "", "", 8, 700)

	err = svc.DeletePurchaseInvoice(ctx, testTenant, 5, "PI-0005")
	require.NoError(t, err)

	product, err := svc.GetProduct(ctx, testTenant, 1)
	require.NoError(t, err)
	require.EqualValues(t, 0, product.CurrentQuantity)
	require.True(t, repo.items[item.ID].IsDeleted)
	require.NotNil(t, repo.items[item.ID].DeletedAt)
	require.Zero(t, drift.clamps)

	logs, err := svc.History(ctx, testTenant, 1, 10)
	require.NoError(t, err)
	require.Equal(t, LogActionDecrease, logs[0].Action)
	require.Equal(t, "Invoice Deletion: PI-0005", logs[0].Reference)
	require.NotNil(t, logs[0].PurchaseItemID)

	// Re-running is a no-op for quantities: items are already soft-deleted.
	err = svc.DeletePurchaseInvoice(ctx, testTenant, 5, "PI-0005")
	require.ErrorIs(t, err, ErrInvoiceNotFound)
	product, err = svc.GetProduct(ctx, testTenant, 1)
	require.NoError(t, err)
	require.EqualValues(t, 0, product.CurrentQuantity)
}

func TestDeletePurchaseInvoiceClampsAtZero(t *testing.T) {
	repo := newMemoryInventoryRepo()
	drift := &countingDrift{}
	svc := NewService(repo, nil, drift, nil)
	ctx := context.Background()

	_, err := svc.UpdateFromPurchase(ctx, testTenant, []PurchaseItemInput{
		{ProductName: "Dupatta", Quantity: 8, PurchasePrice: 300},
	}, 6, "PI-0006")
	require.NoError(t, err)
	repo.addItem(6, 1, "Dupatta", "", "", 8, 300)

	// Stock was sold down below the invoiced quantity in the meantime.
	_, err = svc.Adjust(ctx, testTenant, AdjustInput{ProductID: 1, Delta: -5, Reason: "Sale"})
	require.NoError(t, err)

	err = svc.DeletePurchaseInvoice(ctx, testTenant, 6, "PI-0006")
	require.NoError(t, err)

	product, err := svc.GetProduct(ctx, testTenant, 1)
	require.NoError(t, err)
	require.EqualValues(t, 0, product.CurrentQuantity)
	require.Equal(t, 1, drift.clamps)
}

func TestAdjustClampsAndLogs(t *testing.T) {
	repo := newMemoryInventoryRepo()
	drift := &countingDrift{}
	svc := NewService(repo, nil, drift, nil)
	ctx := context.Background()

	_, err := svc.UpdateFromPurchase(ctx, testTenant, []PurchaseItemInput{
		{ProductName: "Khussa", Quantity: 3, PurchasePrice: 450},
	}, 7, "PI-0007")
	require.NoError(t, err)

	product, err := svc.Adjust(ctx, testTenant, AdjustInput{ProductID: 1, Delta: -10, Reason: "Damage", Notes: "water damage"})
	require.NoError(t, err)
	require.EqualValues(t, 0, product.CurrentQuantity)
	require.Equal(t, 1, drift.clamps)

	logs, err := svc.History(ctx, testTenant, 1, 10)
	require.NoError(t, err)
	require.Equal(t, LogActionDecrease, logs[0].Action)
	require.EqualValues(t, 3, logs[0].OldQuantity)
	require.EqualValues(t, 0, logs[0].NewQuantity)
	require.Equal(t, "Damage", logs[0].Reason)

	_, err = svc.Adjust(ctx, testTenant, AdjustInput{ProductID: 1, Delta: 0, Reason: "noop"})
	require.ErrorIs(t, err, ErrZeroAdjustment)

	_, err = svc.Adjust(ctx, testTenant, AdjustInput{ProductID: 99, Delta: 1, Reason: "missing"})
	require.ErrorIs(t, err, ErrProductNotFound)
}
