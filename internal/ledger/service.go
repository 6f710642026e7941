package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// AuditPort records ledger activity into the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// PostingRecorder counts committed postings per source module.
type PostingRecorder interface {
	RecordPosting(source string)
}

// Service coordinates account creation and transaction posting.
type Service struct {
	repo    Repository
	audit   AuditPort
	metrics PostingRecorder
	now     func() time.Time
}

// NewService builds the ledger service.
func NewService(repo Repository, audit AuditPort, metrics PostingRecorder) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetAccountByCode fetches one account scoped to the tenant.
func (s *Service) GetAccountByCode(ctx context.Context, tenant shared.TenantID, code string) (Account, error) {
	return s.repo.GetAccountByCode(ctx, tenant, code)
}

// ListAccounts returns the tenant's chart of accounts.
func (s *Service) ListAccounts(ctx context.Context, tenant shared.TenantID) ([]Account, error) {
	return s.repo.ListAccounts(ctx, tenant)
}

// GetOrCreateAccount resolves an account by code, creating it with a zero
// balance when absent. Concurrent creators race on the unique constraint;
// the loser re-fetches the canonical row.
func (s *Service) GetOrCreateAccount(ctx context.Context, tenant shared.TenantID, spec AccountSpec) (Account, error) {
	if spec.Code == "" {
		return Account{}, fmt.Errorf("ledger: account code required")
	}
	if spec.Type == "" {
		return Account{}, fmt.Errorf("ledger: account type required")
	}
	account, err := s.repo.GetAccountByCode(ctx, tenant, spec.Code)
	if err == nil {
		return account, nil
	}
	if err != ErrAccountNotFound {
		return Account{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertAccount(ctx, tenant, spec)
		if err != nil {
			return err
		}
		account = created
		return nil
	})
	if err == ErrDuplicateAccount {
		return s.repo.GetAccountByCode(ctx, tenant, spec.Code)
	}
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// CreateTransaction persists a balanced transaction and applies every
// account balance delta as one atomic unit. Nothing commits if any line or
// balance update fails.
func (s *Service) CreateTransaction(ctx context.Context, tenant shared.TenantID, input TransactionInput) (Transaction, error) {
	if err := input.Validate(); err != nil {
		return Transaction{}, err
	}
	if input.Date.IsZero() {
		input.Date = s.now()
	}
	var created Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = s.post(ctx, tx, tenant, input)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.recordPosting(ctx, tenant, created, input.Source)
	return created, nil
}

// post runs the posting inside an already-open repository transaction so
// orchestrating services can combine it with their own writes.
func (s *Service) post(ctx context.Context, tx TxRepository, tenant shared.TenantID, input TransactionInput) (Transaction, error) {
	// Deltas are accumulated per account so each row is locked and
	// updated once. Locking in id order keeps concurrent postings that
	// share accounts from deadlocking.
	deltas := make(map[int64]float64, len(input.Lines))
	order := make([]int64, 0, len(input.Lines))
	for _, line := range input.Lines {
		if _, seen := deltas[line.AccountID]; !seen {
			deltas[line.AccountID] = 0
			order = append(order, line.AccountID)
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	types := make(map[int64]AccountType, len(order))
	for _, accountID := range order {
		account, err := tx.GetAccountForUpdate(ctx, tenant, accountID)
		if err != nil {
			return Transaction{}, err
		}
		types[accountID] = account.Type
	}
	for _, line := range input.Lines {
		deltas[line.AccountID] += types[line.AccountID].BalanceDelta(line.Debit, line.Credit)
	}

	year := input.Date.Year()
	seq, err := tx.NextTransactionNumber(ctx, tenant, year)
	if err != nil {
		return Transaction{}, err
	}
	number := fmt.Sprintf("TXN-%d-%06d", year, seq)

	created, err := tx.InsertTransaction(ctx, tenant, number, input)
	if err != nil {
		return Transaction{}, err
	}
	if err := tx.InsertTransactionLines(ctx, created.ID, input.Lines); err != nil {
		return Transaction{}, err
	}
	for _, accountID := range order {
		if err := tx.ApplyBalance(ctx, accountID, deltas[accountID]); err != nil {
			return Transaction{}, err
		}
	}
	created.Lines = toLines(created.ID, input.Lines, s.now())
	return created, nil
}

// GetTransaction fetches a transaction with its lines.
func (s *Service) GetTransaction(ctx context.Context, tenant shared.TenantID, id int64) (Transaction, error) {
	return s.repo.GetTransaction(ctx, tenant, id)
}

// ListTransactions lists postings for the tenant.
func (s *Service) ListTransactions(ctx context.Context, tenant shared.TenantID, filter ListFilter) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, tenant, filter)
}

// CountTransactions counts postings matching the filter, ignoring
// limit and offset.
func (s *Service) CountTransactions(ctx context.Context, tenant shared.TenantID, filter ListFilter) (int, error) {
	return s.repo.CountTransactions(ctx, tenant, filter)
}

// ReverseTransaction posts a debit/credit-swapped copy of an existing
// transaction. The original stays untouched; transactions are immutable.
func (s *Service) ReverseTransaction(ctx context.Context, tenant shared.TenantID, input ReverseInput) (Transaction, error) {
	if input.TransactionID == 0 {
		return Transaction{}, fmt.Errorf("ledger: transaction id required")
	}
	var reversal Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetTransactionWithLines(ctx, tenant, input.TransactionID)
		if err != nil {
			return err
		}
		posting := TransactionInput{
			Date:              s.now(),
			Description:       reversalDescription(input.Description, original.Number),
			Source:            original.Source + ":REVERSAL",
			PurchaseInvoiceID: original.PurchaseInvoiceID,
			OrderReturnID:     original.OrderReturnID,
			PaymentID:         original.PaymentID,
			CustomerID:        original.CustomerID,
			SupplierID:        original.SupplierID,
			Lines:             reverseLines(original.Lines),
		}
		reversal, err = s.post(ctx, tx, tenant, posting)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.recordPosting(ctx, tenant, reversal, reversal.Source)
	return reversal, nil
}

func (s *Service) recordPosting(ctx context.Context, tenant shared.TenantID, t Transaction, source string) {
	if s.metrics != nil {
		s.metrics.RecordPosting(source)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: tenant,
			Action:   "ledger.post",
			Entity:   "transaction",
			EntityID: t.Number,
			Meta: map[string]any{
				"source": source,
				"lines":  len(t.Lines),
			},
			At: s.now(),
		})
	}
}

func reverseLines(lines []TransactionLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
		})
	}
	return out
}

func toLines(txID int64, lines []LineInput, ts time.Time) []TransactionLine {
	out := make([]TransactionLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, TransactionLine{
			TransactionID: txID,
			AccountID:     line.AccountID,
			Debit:         line.Debit,
			Credit:        line.Credit,
			CreatedAt:     ts,
		})
	}
	return out
}

func reversalDescription(desc, number string) string {
	if desc != "" {
		return desc
	}
	return fmt.Sprintf("Reversal of %s", number)
}
