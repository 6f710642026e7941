package ledger

import (
	"time"

	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// AccountType enumerates chart-of-accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// BalanceDelta returns the signed change a debit/credit pair applies to the
// stored balance of an account of this type. Assets and expenses grow on
// debit; liabilities, equity and revenue grow on credit.
func (t AccountType) BalanceDelta(debit, credit float64) float64 {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return debit - credit
	default:
		return credit - debit
	}
}

// Canonical account codes used by the posting flows. Accounts are created
// lazily by code the first time a posting needs them.
const (
	CodeCash            = "1000"
	CodeBank            = "1010"
	CodeReceivable      = "1100"
	CodeInventory       = "1200"
	CodePayable         = "2100"
	CodeCustomerAdvance = "2300"
	CodeSales           = "4000"
	CodeShippingRevenue = "4100"
	CodeCodFees         = "5100"
)

// Account models a chart of accounts node with its running balance.
type Account struct {
	ID        int64
	TenantID  shared.TenantID
	Code      string
	Name      string
	Type      AccountType
	Subtype   string
	Balance   float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountSpec describes an account for lazy creation.
type AccountSpec struct {
	Code    string
	Name    string
	Type    AccountType
	Subtype string
}

var wellKnown = map[string]AccountSpec{
	CodeCash:            {Code: CodeCash, Name: "Cash", Type: AccountTypeAsset, Subtype: "CASH"},
	CodeBank:            {Code: CodeBank, Name: "Bank", Type: AccountTypeAsset, Subtype: "BANK"},
	CodeReceivable:      {Code: CodeReceivable, Name: "Accounts Receivable", Type: AccountTypeAsset, Subtype: "AR"},
	CodeInventory:       {Code: CodeInventory, Name: "Inventory", Type: AccountTypeAsset, Subtype: "INVENTORY"},
	CodePayable:         {Code: CodePayable, Name: "Accounts Payable", Type: AccountTypeLiability, Subtype: "AP"},
	CodeCustomerAdvance: {Code: CodeCustomerAdvance, Name: "Customer Advance", Type: AccountTypeLiability, Subtype: "ADVANCE"},
	CodeSales:           {Code: CodeSales, Name: "Sales", Type: AccountTypeRevenue, Subtype: "SALES"},
	CodeShippingRevenue: {Code: CodeShippingRevenue, Name: "Shipping Revenue", Type: AccountTypeRevenue, Subtype: "SHIPPING"},
	CodeCodFees:         {Code: CodeCodFees, Name: "COD Fees", Type: AccountTypeExpense, Subtype: "COD"},
}

// WellKnownSpec returns the canonical spec for a code, ok=false when the
// code is not one of the posting-flow accounts.
func WellKnownSpec(code string) (AccountSpec, bool) {
	spec, ok := wellKnown[code]
	return spec, ok
}

// Transaction captures an immutable balanced posting. There is no status:
// corrections are new transactions, never mutations.
type Transaction struct {
	ID                int64
	TenantID          shared.TenantID
	Number            string
	Date              time.Time
	Description       string
	Source            string
	PurchaseInvoiceID *int64
	OrderReturnID     *int64
	PaymentID         *int64
	CustomerID        *int64
	SupplierID        *int64
	CreatedAt         time.Time
	Lines             []TransactionLine
}

// TransactionLine stores a debit or credit amount for one account.
type TransactionLine struct {
	ID            int64
	TransactionID int64
	AccountID     int64
	Debit         float64
	Credit        float64
	CreatedAt     time.Time
}
