package purchasing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hisaab-erp/hisaab-erp/internal/inventory"
	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// Repository persists invoice headers, their item rows and the payment
// rows created alongside a partially or fully paid invoice.
type Repository interface {
	InsertInvoice(ctx context.Context, tenant shared.TenantID, in InvoiceInput, total float64) (Invoice, error)
	InsertItems(ctx context.Context, tenant shared.TenantID, invoiceID int64, items []inventory.PurchaseItemInput, applied []inventory.AppliedItem) error
	GetInvoice(ctx context.Context, tenant shared.TenantID, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, tenant shared.TenantID, supplierID int64) ([]Invoice, error)
	InsertSupplierPayment(ctx context.Context, tenant shared.TenantID, supplierID, invoiceID int64, amount float64, method string, date time.Time) (int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed purchasing repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const invoiceColumns = `id, tenant_id, supplier_id, invoice_number, total_amount, paid_amount, date, created_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.SupplierID, &inv.Number, &inv.TotalAmount, &inv.PaidAmount, &inv.Date, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (r *repository) InsertInvoice(ctx context.Context, tenant shared.TenantID, in InvoiceInput, total float64) (Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, `INSERT INTO purchase_invoices (tenant_id, supplier_id, invoice_number, total_amount, paid_amount, date)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+invoiceColumns, tenant, in.SupplierID, in.Number, total, in.PaymentAmount, in.Date))
	if isUniqueViolation(err) {
		return Invoice{}, ErrDuplicateInvoice
	}
	return inv, err
}

func (r *repository) InsertItems(ctx context.Context, tenant shared.TenantID, invoiceID int64, items []inventory.PurchaseItemInput, applied []inventory.AppliedItem) error {
	for i, item := range items {
		if _, err := r.db.Exec(ctx, `INSERT INTO purchase_items (tenant_id, purchase_invoice_id, product_id, variant_id, product_name, color, size, quantity, purchase_price, is_deleted)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,FALSE)`,
			tenant, invoiceID, applied[i].ProductID, applied[i].VariantID, item.ProductName, item.Color, item.Size, item.Quantity, item.PurchasePrice); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) GetInvoice(ctx context.Context, tenant shared.TenantID, id int64) (Invoice, error) {
	return scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM purchase_invoices WHERE tenant_id=$1 AND id=$2`, tenant, id))
}

func (r *repository) ListInvoices(ctx context.Context, tenant shared.TenantID, supplierID int64) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, `SELECT `+invoiceColumns+` FROM purchase_invoices WHERE tenant_id=$1 AND supplier_id=$2 ORDER BY date DESC, id DESC`, tenant, supplierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (r *repository) InsertSupplierPayment(ctx context.Context, tenant shared.TenantID, supplierID, invoiceID int64, amount float64, method string, date time.Time) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO payments (tenant_id, type, supplier_id, purchase_invoice_id, amount, method, date)
VALUES ($1,'SUPPLIER_PAYMENT',$2,$3,$4,$5,$6) RETURNING id`, tenant, supplierID, invoiceID, amount, method, date).Scan(&id)
	return id, err
}
