package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// Repository encapsulates DB operations for inventory.
type Repository interface {
	GetProduct(ctx context.Context, tenant shared.TenantID, id int64) (Product, error)
	ListLogs(ctx context.Context, tenant shared.TenantID, productID int64, limit int) ([]ProductLog, error)
	ListBelowMinStock(ctx context.Context, tenant shared.TenantID) ([]Product, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a reconciliation transaction.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, tenant shared.TenantID, id int64) (Product, error)
	GetProductByNameForUpdate(ctx context.Context, tenant shared.TenantID, name string) (Product, error)
	InsertProduct(ctx context.Context, tenant shared.TenantID, item PurchaseItemInput) (Product, error)
	SetProductQuantity(ctx context.Context, productID int64, quantity int64) error
	SetProductPurchasePrice(ctx context.Context, productID int64, price float64) error
	GetVariantForUpdate(ctx context.Context, tenant shared.TenantID, productID int64, color, size string) (ProductVariant, error)
	InsertVariant(ctx context.Context, tenant shared.TenantID, productID int64, item PurchaseItemInput) (ProductVariant, error)
	SetVariantQuantity(ctx context.Context, variantID int64, quantity int64) error
	InsertLog(ctx context.Context, log ProductLog) error
	ListActiveItems(ctx context.Context, tenant shared.TenantID, invoiceID int64) ([]PurchaseItem, error)
	SoftDeleteItems(ctx context.Context, tenant shared.TenantID, invoiceID int64, at time.Time) error
	DeleteInvoiceRow(ctx context.Context, tenant shared.TenantID, invoiceID int64) error
}

// ErrVariantNotFound is internal to the get-or-create variant path.
var ErrVariantNotFound = errors.New("inventory: variant not found")

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed inventory repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, tenant_id, name, sku, current_quantity, last_purchase_price, current_retail_price, min_stock_level, max_stock_level, use_default_shipping, shipping_rules, default_quantity_charge, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.SKU, &p.CurrentQuantity, &p.LastPurchasePrice, &p.CurrentRetailPrice, &p.MinStockLevel, &p.MaxStockLevel, &p.UseDefaultShipping, &p.ShippingRules, &p.DefaultQuantityCharge, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *repository) GetProduct(ctx context.Context, tenant shared.TenantID, id int64) (Product, error) {
	return scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id=$1 AND id=$2`, tenant, id))
}

func (r *repository) ListLogs(ctx context.Context, tenant shared.TenantID, productID int64, limit int) ([]ProductLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT id, tenant_id, product_id, variant_id, purchase_item_id, action, old_quantity, new_quantity, old_price, new_price, reason, reference, notes, created_at
FROM product_logs WHERE tenant_id=$1 AND product_id=$2 ORDER BY id DESC LIMIT $3`, tenant, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []ProductLog
	for rows.Next() {
		var l ProductLog
		if err := rows.Scan(&l.ID, &l.TenantID, &l.ProductID, &l.VariantID, &l.PurchaseItemID, &l.Action, &l.OldQuantity, &l.NewQuantity, &l.OldPrice, &l.NewPrice, &l.Reason, &l.Reference, &l.Notes, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (r *repository) ListBelowMinStock(ctx context.Context, tenant shared.TenantID) ([]Product, error) {
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id=$1 AND min_stock_level > 0 AND current_quantity < min_stock_level ORDER BY name`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, tenant shared.TenantID, id int64) (Product, error) {
	return scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenant, id))
}

func (r *txRepository) GetProductByNameForUpdate(ctx context.Context, tenant shared.TenantID, name string) (Product, error) {
	return scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id=$1 AND name=$2 FOR UPDATE`, tenant, name))
}

func (r *txRepository) InsertProduct(ctx context.Context, tenant shared.TenantID, item PurchaseItemInput) (Product, error) {
	return scanProduct(r.tx.QueryRow(ctx, `INSERT INTO products (tenant_id, name, sku, current_quantity, last_purchase_price, current_retail_price, use_default_shipping)
VALUES ($1,$2,$3,0,$4,$5,TRUE) RETURNING `+productColumns, tenant, item.ProductName, item.SKU, item.PurchasePrice, item.RetailPrice))
}

func (r *txRepository) SetProductQuantity(ctx context.Context, productID int64, quantity int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE products SET current_quantity=$2, updated_at=NOW() WHERE id=$1`, productID, quantity)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *txRepository) SetProductPurchasePrice(ctx context.Context, productID int64, price float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET last_purchase_price=$2, updated_at=NOW() WHERE id=$1`, productID, price)
	return err
}

const variantColumns = `id, tenant_id, product_id, color, size, sku, current_quantity, created_at, updated_at`

func scanVariant(row pgx.Row) (ProductVariant, error) {
	var v ProductVariant
	err := row.Scan(&v.ID, &v.TenantID, &v.ProductID, &v.Color, &v.Size, &v.SKU, &v.CurrentQuantity, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductVariant{}, ErrVariantNotFound
		}
		return ProductVariant{}, err
	}
	return v, nil
}

func (r *txRepository) GetVariantForUpdate(ctx context.Context, tenant shared.TenantID, productID int64, color, size string) (ProductVariant, error) {
	return scanVariant(r.tx.QueryRow(ctx, `SELECT `+variantColumns+` FROM product_variants WHERE tenant_id=$1 AND product_id=$2 AND color=$3 AND size=$4 FOR UPDATE`, tenant, productID, color, size))
}

func (r *txRepository) InsertVariant(ctx context.Context, tenant shared.TenantID, productID int64, item PurchaseItemInput) (ProductVariant, error) {
	return scanVariant(r.tx.QueryRow(ctx, `INSERT INTO product_variants (tenant_id, product_id, color, size, sku, current_quantity)
VALUES ($1,$2,$3,$4,$5,0) RETURNING `+variantColumns, tenant, productID, item.Color, item.Size, item.SKU))
}

func (r *txRepository) SetVariantQuantity(ctx context.Context, variantID int64, quantity int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE product_variants SET current_quantity=$2, updated_at=NOW() WHERE id=$1`, variantID, quantity)
	return err
}

func (r *txRepository) InsertLog(ctx context.Context, log ProductLog) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO product_logs (tenant_id, product_id, variant_id, purchase_item_id, action, old_quantity, new_quantity, old_price, new_price, reason, reference, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		log.TenantID, log.ProductID, log.VariantID, log.PurchaseItemID, log.Action, log.OldQuantity, log.NewQuantity, log.OldPrice, log.NewPrice, log.Reason, log.Reference, log.Notes)
	return err
}

func (r *txRepository) ListActiveItems(ctx context.Context, tenant shared.TenantID, invoiceID int64) ([]PurchaseItem, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, tenant_id, purchase_invoice_id, product_id, variant_id, product_name, color, size, quantity, purchase_price, is_deleted, deleted_at, created_at
FROM purchase_items WHERE tenant_id=$1 AND purchase_invoice_id=$2 AND is_deleted=FALSE ORDER BY id`, tenant, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PurchaseItem
	for rows.Next() {
		var item PurchaseItem
		if err := rows.Scan(&item.ID, &item.TenantID, &item.PurchaseInvoiceID, &item.ProductID, &item.VariantID, &item.ProductName, &item.Color, &item.Size, &item.Quantity, &item.PurchasePrice, &item.IsDeleted, &item.DeletedAt, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *txRepository) SoftDeleteItems(ctx context.Context, tenant shared.TenantID, invoiceID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_items SET is_deleted=TRUE, deleted_at=$3 WHERE tenant_id=$1 AND purchase_invoice_id=$2 AND is_deleted=FALSE`, tenant, invoiceID, at)
	return err
}

func (r *txRepository) DeleteInvoiceRow(ctx context.Context, tenant shared.TenantID, invoiceID int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM purchase_invoices WHERE tenant_id=$1 AND id=$2`, tenant, invoiceID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}
