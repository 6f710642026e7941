package balance

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// Repository is the read-side access layer for balance derivation. It
// only writes the denormalized stats rollups.
type Repository interface {
	GetCustomer(ctx context.Context, tenant shared.TenantID, id int64) (Customer, error)
	GetSupplier(ctx context.Context, tenant shared.TenantID, id int64) (Supplier, error)
	GetOpeningLines(ctx context.Context, tenant shared.TenantID, source string, entityID int64) ([]OpeningLine, error)
	ListOrders(ctx context.Context, tenant shared.TenantID, customerID int64, rng DateRange) ([]Order, error)
	ListAllOrders(ctx context.Context, tenant shared.TenantID, customerID int64) ([]Order, error)
	ListPayments(ctx context.Context, tenant shared.TenantID, ptype PaymentType, entityID int64, rng DateRange) ([]Payment, error)
	ListCustomerReturns(ctx context.Context, tenant shared.TenantID, customerID int64, rng DateRange) ([]Return, error)
	ListSupplierReturns(ctx context.Context, tenant shared.TenantID, supplierID int64, rng DateRange) ([]Return, error)
	ListInvoices(ctx context.Context, tenant shared.TenantID, supplierID int64, rng DateRange) ([]Invoice, error)
	ListAllInvoices(ctx context.Context, tenant shared.TenantID, supplierID int64) ([]Invoice, error)
	UpdateCustomerStats(ctx context.Context, tenant shared.TenantID, customerID int64, stats CustomerStats) error
	UpdateSupplierStats(ctx context.Context, tenant shared.TenantID, supplierID int64, stats SupplierStats) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed balance repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) GetCustomer(ctx context.Context, tenant shared.TenantID, id int64) (Customer, error) {
	var c Customer
	err := r.db.QueryRow(ctx, `SELECT id, tenant_id, name, phone_number, city, advance_balance, total_orders, total_spent, last_order_date, created_at
FROM customers WHERE tenant_id=$1 AND id=$2`, tenant, id).
		Scan(&c.ID, &c.TenantID, &c.Name, &c.PhoneNumber, &c.City, &c.AdvanceBalance, &c.TotalOrders, &c.TotalSpent, &c.LastOrderDate, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	if err != nil {
		return Customer{}, err
	}
	return c, nil
}

func (r *repository) GetSupplier(ctx context.Context, tenant shared.TenantID, id int64) (Supplier, error) {
	var s Supplier
	err := r.db.QueryRow(ctx, `SELECT id, tenant_id, name, phone_number, advance_balance, total_invoices, total_purchased, last_invoice_date, created_at
FROM suppliers WHERE tenant_id=$1 AND id=$2`, tenant, id).
		Scan(&s.ID, &s.TenantID, &s.Name, &s.PhoneNumber, &s.AdvanceBalance, &s.TotalInvoices, &s.TotalPurchased, &s.LastInvoiceDate, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrSupplierNotFound
	}
	if err != nil {
		return Supplier{}, err
	}
	return s, nil
}

// GetOpeningLines resolves the lines of the entity's explicit opening
// transaction, if one was ever posted. The entity column follows the
// source tag: customer_id for customer openings, supplier_id otherwise.
func (r *repository) GetOpeningLines(ctx context.Context, tenant shared.TenantID, source string, entityID int64) ([]OpeningLine, error) {
	entityColumn := "customer_id"
	if source == SourceSupplierOpening {
		entityColumn = "supplier_id"
	}
	query := fmt.Sprintf(`SELECT a.code, l.debit, l.credit
FROM transactions t
JOIN transaction_lines l ON l.transaction_id = t.id
JOIN accounts a ON a.id = l.account_id
WHERE t.tenant_id=$1 AND t.source=$2 AND t.%s=$3
ORDER BY l.id`, entityColumn)
	rows, err := r.db.Query(ctx, query, tenant, source, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []OpeningLine
	for rows.Next() {
		var line OpeningLine
		if err := rows.Scan(&line.AccountCode, &line.Debit, &line.Credit); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

const orderColumns = `id, tenant_id, customer_id, number, status, order_date, items_total, shipping_charges, cod_fee, cod_fee_paid_by, payment_amount`

func scanOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.TenantID, &o.CustomerID, &o.Number, &o.Status, &o.OrderDate, &o.ItemsTotal, &o.ShippingCharges, &o.CodFee, &o.CodFeePaidBy, &o.PaymentAmount); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *repository) ListOrders(ctx context.Context, tenant shared.TenantID, customerID int64, rng DateRange) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE tenant_id=$1 AND customer_id=$2 AND status = ANY($3)`
	args := []any{tenant, customerID, []string{string(OrderStatusConfirmed), string(OrderStatusDispatched), string(OrderStatusCompleted)}}
	query, args = appendRange(query, args, "order_date", rng)
	query += " ORDER BY order_date, id"
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

func (r *repository) ListAllOrders(ctx context.Context, tenant shared.TenantID, customerID int64) ([]Order, error) {
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE tenant_id=$1 AND customer_id=$2 ORDER BY order_date, id`, tenant, customerID)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

func (r *repository) ListPayments(ctx context.Context, tenant shared.TenantID, ptype PaymentType, entityID int64, rng DateRange) ([]Payment, error) {
	entityColumn := "customer_id"
	if ptype == PaymentTypeSupplier {
		entityColumn = "supplier_id"
	}
	query := fmt.Sprintf(`SELECT id, tenant_id, type, customer_id, supplier_id, order_id, purchase_invoice_id, amount, method, date
FROM payments WHERE tenant_id=$1 AND type=$2 AND %s=$3`, entityColumn)
	args := []any{tenant, ptype, entityID}
	query, args = appendRange(query, args, "date", rng)
	query += " ORDER BY date, id"
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Type, &p.CustomerID, &p.SupplierID, &p.OrderID, &p.PurchaseInvoiceID, &p.Amount, &p.Method, &p.Date); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *repository) listReturns(ctx context.Context, tenant shared.TenantID, entityColumn string, entityID int64, rng DateRange) ([]Return, error) {
	query := fmt.Sprintf(`SELECT id, tenant_id, customer_id, supplier_id, number, total_amount, refund_amount, refunded, date
FROM returns WHERE tenant_id=$1 AND %s=$2 AND status IN ('APPROVED','REFUNDED')`, entityColumn)
	args := []any{tenant, entityID}
	query, args = appendRange(query, args, "date", rng)
	query += " ORDER BY date, id"
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var returns []Return
	for rows.Next() {
		var ret Return
		if err := rows.Scan(&ret.ID, &ret.TenantID, &ret.CustomerID, &ret.SupplierID, &ret.Number, &ret.TotalAmount, &ret.RefundAmount, &ret.Refunded, &ret.Date); err != nil {
			return nil, err
		}
		returns = append(returns, ret)
	}
	return returns, rows.Err()
}

func (r *repository) ListCustomerReturns(ctx context.Context, tenant shared.TenantID, customerID int64, rng DateRange) ([]Return, error) {
	return r.listReturns(ctx, tenant, "customer_id", customerID, rng)
}

func (r *repository) ListSupplierReturns(ctx context.Context, tenant shared.TenantID, supplierID int64, rng DateRange) ([]Return, error) {
	return r.listReturns(ctx, tenant, "supplier_id", supplierID, rng)
}

const invoiceColumns = `id, tenant_id, supplier_id, invoice_number, total_amount, date`

func scanInvoices(rows pgx.Rows) ([]Invoice, error) {
	defer rows.Close()
	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.TenantID, &inv.SupplierID, &inv.Number, &inv.TotalAmount, &inv.Date); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (r *repository) ListInvoices(ctx context.Context, tenant shared.TenantID, supplierID int64, rng DateRange) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM purchase_invoices WHERE tenant_id=$1 AND supplier_id=$2`
	args := []any{tenant, supplierID}
	query, args = appendRange(query, args, "date", rng)
	query += " ORDER BY date, id"
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanInvoices(rows)
}

func (r *repository) ListAllInvoices(ctx context.Context, tenant shared.TenantID, supplierID int64) ([]Invoice, error) {
	rows, err := r.db.Query(ctx, `SELECT `+invoiceColumns+` FROM purchase_invoices WHERE tenant_id=$1 AND supplier_id=$2 ORDER BY date, id`, tenant, supplierID)
	if err != nil {
		return nil, err
	}
	return scanInvoices(rows)
}

func (r *repository) UpdateCustomerStats(ctx context.Context, tenant shared.TenantID, customerID int64, stats CustomerStats) error {
	cmd, err := r.db.Exec(ctx, `UPDATE customers SET total_orders=$3, total_spent=$4, last_order_date=$5, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`, tenant, customerID, stats.TotalOrders, stats.TotalSpent, stats.LastOrderDate)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

func (r *repository) UpdateSupplierStats(ctx context.Context, tenant shared.TenantID, supplierID int64, stats SupplierStats) error {
	cmd, err := r.db.Exec(ctx, `UPDATE suppliers SET total_invoices=$3, total_purchased=$4, last_invoice_date=$5, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`, tenant, supplierID, stats.TotalInvoices, stats.TotalPurchased, stats.LastInvoiceDate)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSupplierNotFound
	}
	return nil
}

func appendRange(query string, args []any, column string, rng DateRange) (string, []any) {
	if !rng.From.IsZero() {
		args = append(args, rng.From)
		query += fmt.Sprintf(" AND %s >= $%d", column, len(args))
	}
	if !rng.To.IsZero() {
		args = append(args, rng.To)
		query += fmt.Sprintf(" AND %s <= $%d", column, len(args))
	}
	return query, args
}
