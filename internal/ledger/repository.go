package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// Repository encapsulates DB operations for the ledger.
type Repository interface {
	GetAccountByCode(ctx context.Context, tenant shared.TenantID, code string) (Account, error)
	ListAccounts(ctx context.Context, tenant shared.TenantID) ([]Account, error)
	GetTransaction(ctx context.Context, tenant shared.TenantID, id int64) (Transaction, error)
	ListTransactions(ctx context.Context, tenant shared.TenantID, filter ListFilter) ([]Transaction, error)
	CountTransactions(ctx context.Context, tenant shared.TenantID, filter ListFilter) (int, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a posting transaction.
type TxRepository interface {
	InsertAccount(ctx context.Context, tenant shared.TenantID, spec AccountSpec) (Account, error)
	GetAccountForUpdate(ctx context.Context, tenant shared.TenantID, accountID int64) (Account, error)
	ApplyBalance(ctx context.Context, accountID int64, delta float64) error
	NextTransactionNumber(ctx context.Context, tenant shared.TenantID, year int) (int64, error)
	InsertTransaction(ctx context.Context, tenant shared.TenantID, number string, in TransactionInput) (Transaction, error)
	InsertTransactionLines(ctx context.Context, txID int64, lines []LineInput) error
	GetTransactionWithLines(ctx context.Context, tenant shared.TenantID, id int64) (Transaction, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed ledger repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, tenant_id, code, name, type, subtype, balance, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) GetAccountByCode(ctx context.Context, tenant shared.TenantID, code string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND code=$2`, tenant, code)
	return scanAccount(row)
}

func (r *repository) ListAccounts(ctx context.Context, tenant shared.TenantID) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 ORDER BY code`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

const transactionColumns = `id, tenant_id, number, date, description, source, purchase_invoice_id, order_return_id, payment_id, customer_id, supplier_id, created_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.TenantID, &t.Number, &t.Date, &t.Description, &t.Source, &t.PurchaseInvoiceID, &t.OrderReturnID, &t.PaymentID, &t.CustomerID, &t.SupplierID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	return t, nil
}

func (r *repository) GetTransaction(ctx context.Context, tenant shared.TenantID, id int64) (Transaction, error) {
	t, err := scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE tenant_id=$1 AND id=$2`, tenant, id))
	if err != nil {
		return Transaction{}, err
	}
	lines, err := queryLines(ctx, r.db, id)
	if err != nil {
		return Transaction{}, err
	}
	t.Lines = lines
	return t, nil
}

func transactionFilter(filter ListFilter) (string, []any) {
	query := ""
	var args []any
	idx := 2
	appendArg := func(clause string, value any) {
		query += fmt.Sprintf(" AND %s=$%d", clause, idx)
		args = append(args, value)
		idx++
	}
	if !filter.From.IsZero() {
		query += fmt.Sprintf(" AND date >= $%d", idx)
		args = append(args, filter.From)
		idx++
	}
	if !filter.To.IsZero() {
		query += fmt.Sprintf(" AND date <= $%d", idx)
		args = append(args, filter.To)
		idx++
	}
	if filter.Source != "" {
		appendArg("source", filter.Source)
	}
	if filter.PurchaseInvoiceID != 0 {
		appendArg("purchase_invoice_id", filter.PurchaseInvoiceID)
	}
	if filter.OrderReturnID != 0 {
		appendArg("order_return_id", filter.OrderReturnID)
	}
	if filter.PaymentID != 0 {
		appendArg("payment_id", filter.PaymentID)
	}
	return query, args
}

func (r *repository) CountTransactions(ctx context.Context, tenant shared.TenantID, filter ListFilter) (int, error) {
	clause, filterArgs := transactionFilter(filter)
	query := `SELECT COUNT(*) FROM transactions WHERE tenant_id=$1` + clause
	args := append([]any{tenant}, filterArgs...)
	var count int
	err := r.db.QueryRow(ctx, query, args...).Scan(&count)
	return count, err
}

func (r *repository) ListTransactions(ctx context.Context, tenant shared.TenantID, filter ListFilter) ([]Transaction, error) {
	clause, filterArgs := transactionFilter(filter)
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE tenant_id=$1` + clause
	args := append([]any{tenant}, filterArgs...)
	idx := 2 + len(filterArgs)
	query += " ORDER BY date ASC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, filter.Limit)
		idx++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", idx)
		args = append(args, filter.Offset)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		lines, err := queryLines(ctx, r.db, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Lines = lines
	}
	return out, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, txID int64) ([]TransactionLine, error) {
	rows, err := q.Query(ctx, `SELECT id, transaction_id, account_id, debit, credit, created_at FROM transaction_lines WHERE transaction_id=$1 ORDER BY id ASC`, txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []TransactionLine
	for rows.Next() {
		var line TransactionLine
		if err := rows.Scan(&line.ID, &line.TransactionID, &line.AccountID, &line.Debit, &line.Credit, &line.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *txRepository) InsertAccount(ctx context.Context, tenant shared.TenantID, spec AccountSpec) (Account, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounts (tenant_id, code, name, type, subtype, balance)
VALUES ($1,$2,$3,$4,$5,0) RETURNING `+accountColumns, tenant, spec.Code, spec.Name, spec.Type, spec.Subtype)
	a, err := scanAccount(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, ErrDuplicateAccount
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) GetAccountForUpdate(ctx context.Context, tenant shared.TenantID, accountID int64) (Account, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenant, accountID)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, ErrInvalidAccount
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) ApplyBalance(ctx context.Context, accountID int64, delta float64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE id=$1`, accountID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidAccount
	}
	return nil
}

// NextTransactionNumber bumps the per-tenant/year sequence under lock.
func (r *txRepository) NextTransactionNumber(ctx context.Context, tenant shared.TenantID, year int) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO transaction_sequences (tenant_id, year, last_seq)
VALUES ($1,$2,1)
ON CONFLICT (tenant_id, year) DO UPDATE SET last_seq = transaction_sequences.last_seq + 1
RETURNING last_seq`, tenant, year).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, tenant shared.TenantID, number string, in TransactionInput) (Transaction, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO transactions (tenant_id, number, date, description, source, purchase_invoice_id, order_return_id, payment_id, customer_id, supplier_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id, created_at`, tenant, number, in.Date, in.Description, in.Source, in.PurchaseInvoiceID, in.OrderReturnID, in.PaymentID, in.CustomerID, in.SupplierID)
	t := Transaction{
		TenantID:          tenant,
		Number:            number,
		Date:              in.Date,
		Description:       in.Description,
		Source:            in.Source,
		PurchaseInvoiceID: in.PurchaseInvoiceID,
		OrderReturnID:     in.OrderReturnID,
		PaymentID:         in.PaymentID,
		CustomerID:        in.CustomerID,
		SupplierID:        in.SupplierID,
	}
	if err := row.Scan(&t.ID, &t.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return Transaction{}, ErrNumberCollision
		}
		return Transaction{}, err
	}
	return t, nil
}

func (r *txRepository) InsertTransactionLines(ctx context.Context, txID int64, lines []LineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO transaction_lines (transaction_id, account_id, debit, credit)
VALUES ($1,$2,$3,$4)`, txID, line.AccountID, line.Debit, line.Credit); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetTransactionWithLines(ctx context.Context, tenant shared.TenantID, id int64) (Transaction, error) {
	t, err := scanTransaction(r.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE tenant_id=$1 AND id=$2`, tenant, id))
	if err != nil {
		return Transaction{}, err
	}
	lines, err := queryLines(ctx, r.tx, id)
	if err != nil {
		return Transaction{}, err
	}
	t.Lines = lines
	return t, nil
}
