package returns

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hisaab-erp/hisaab-erp/internal/ledger"
	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// Repository persists returns and answers the drift-check queries.
type Repository interface {
	GetReturn(ctx context.Context, tenant shared.TenantID, id int64) (Return, error)
	MarkPosted(ctx context.Context, tenant shared.TenantID, id int64, status Status, method PostingMethod, txID int64, refundAmount float64) error
	InvoiceTotals(ctx context.Context, tenant shared.TenantID, invoiceID int64) (invoice, returns, payments float64, err error)
	PayableMovement(ctx context.Context, tenant shared.TenantID, invoiceID int64) (float64, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed returns repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) GetReturn(ctx context.Context, tenant shared.TenantID, id int64) (Return, error) {
	var ret Return
	err := r.db.QueryRow(ctx, `SELECT id, tenant_id, kind, number, status, COALESCE(posting_method,''), supplier_id, customer_id, purchase_invoice_id, order_id, transaction_id, total_amount, refund_amount, date, created_at
FROM returns WHERE tenant_id=$1 AND id=$2`, tenant, id).
		Scan(&ret.ID, &ret.TenantID, &ret.Kind, &ret.Number, &ret.Status, &ret.PostingMethod, &ret.SupplierID, &ret.CustomerID, &ret.PurchaseInvoiceID, &ret.OrderID, &ret.TransactionID, &ret.TotalAmount, &ret.RefundAmount, &ret.Date, &ret.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Return{}, ErrReturnNotFound
	}
	if err != nil {
		return Return{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, return_id, product_id, product_name, quantity, price FROM return_items WHERE return_id=$1 ORDER BY id`, id)
	if err != nil {
		return Return{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item ReturnItem
		if err := rows.Scan(&item.ID, &item.ReturnID, &item.ProductID, &item.ProductName, &item.Quantity, &item.Price); err != nil {
			return Return{}, err
		}
		ret.Items = append(ret.Items, item)
	}
	return ret, rows.Err()
}

func (r *repository) MarkPosted(ctx context.Context, tenant shared.TenantID, id int64, status Status, method PostingMethod, txID int64, refundAmount float64) error {
	cmd, err := r.db.Exec(ctx, `UPDATE returns SET status=$3, posting_method=$4, transaction_id=$5, refund_amount=$6, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2 AND status=$7`, tenant, id, status, method, txID, refundAmount, StatusPending)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyPosted
	}
	return nil
}

func (r *repository) InvoiceTotals(ctx context.Context, tenant shared.TenantID, invoiceID int64) (float64, float64, float64, error) {
	var invoice float64
	err := r.db.QueryRow(ctx, `SELECT total_amount FROM purchase_invoices WHERE tenant_id=$1 AND id=$2`, tenant, invoiceID).Scan(&invoice)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, 0, ErrReturnNotFound
	}
	if err != nil {
		return 0, 0, 0, err
	}
	// A refunded portion was paid out of cash and never touched AP, so
	// only the payable-reducing remainder of each return counts here.
	var returnsTotal float64
	if err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(total_amount - COALESCE(refund_amount,0)),0) FROM returns
WHERE tenant_id=$1 AND purchase_invoice_id=$2 AND status IN ('APPROVED','REFUNDED')`, tenant, invoiceID).Scan(&returnsTotal); err != nil {
		return 0, 0, 0, err
	}
	var paymentsTotal float64
	if err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount),0) FROM payments
WHERE tenant_id=$1 AND purchase_invoice_id=$2`, tenant, invoiceID).Scan(&paymentsTotal); err != nil {
		return 0, 0, 0, err
	}
	return invoice, returnsTotal, paymentsTotal, nil
}

// PayableMovement sums credit minus debit over the AP lines of every
// transaction linked to the invoice, the ledger-side view of what the
// tenant still owes for it.
func (r *repository) PayableMovement(ctx context.Context, tenant shared.TenantID, invoiceID int64) (float64, error) {
	var net float64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(l.credit - l.debit),0)
FROM transactions t
JOIN transaction_lines l ON l.transaction_id = t.id
JOIN accounts a ON a.id = l.account_id
WHERE t.tenant_id=$1 AND t.purchase_invoice_id=$2 AND a.code=$3`, tenant, invoiceID, ledger.CodePayable).Scan(&net)
	return net, err
}
