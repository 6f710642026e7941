package ledger

import (
	"fmt"
	"math"
	"time"
)

// balanceTolerance absorbs float rounding when comparing debit and credit
// totals. Amounts are currency units with 2-decimal display rounding.
const balanceTolerance = 0.01

// LineInput describes one transaction line for posting.
type LineInput struct {
	AccountID int64
	Debit     float64
	Credit    float64
}

// TransactionInput groups fields required to create a transaction.
type TransactionInput struct {
	Date              time.Time
	Description       string
	Source            string
	PurchaseInvoiceID *int64
	OrderReturnID     *int64
	PaymentID         *int64
	CustomerID        *int64
	SupplierID        *int64
	Lines             []LineInput
}

// Validate ensures the posting is balanced and every line is one-sided.
func (in TransactionInput) Validate() error {
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	var debit, credit float64
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("ledger: line %d missing account", idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("ledger: line %d negative amount", idx)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("ledger: line %d cannot be both debit and credit", idx)
		}
		if line.Debit == 0 && line.Credit == 0 {
			return fmt.Errorf("ledger: line %d has no amount", idx)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if math.Abs(debit-credit) > balanceTolerance {
		return ErrUnbalanced
	}
	if in.Source == "" {
		return fmt.Errorf("ledger: source required")
	}
	return nil
}

// ReverseInput wraps parameters for posting a reversing transaction.
type ReverseInput struct {
	TransactionID int64
	Description   string
	ActorID       int64
}

// ListFilter narrows transaction listings.
type ListFilter struct {
	From              time.Time
	To                time.Time
	Source            string
	PurchaseInvoiceID int64
	OrderReturnID     int64
	PaymentID         int64
	Limit             int
	Offset            int
}
