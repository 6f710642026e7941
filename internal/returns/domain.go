package returns

import (
	"time"

	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// Kind separates goods going back to a supplier from goods coming back
// from a customer.
type Kind string

const (
	KindSupplier Kind = "SUPPLIER_RETURN"
	KindCustomer Kind = "CUSTOMER_RETURN"
)

// Status is the return lifecycle. PENDING returns have no posting yet;
// APPROVED returns are posted; REFUNDED adds a cash movement on top.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRefunded Status = "REFUNDED"
)

// PostingMethod records how the return was settled at post time. It is
// stored explicitly rather than re-inferred from the touched accounts.
type PostingMethod string

const (
	MethodReducePayable PostingMethod = "REDUCE_PAYABLE"
	MethodCashRefund    PostingMethod = "CASH_REFUND"
	MethodMixed         PostingMethod = "MIXED"
)

// Return is one supplier or customer return with its items.
type Return struct {
	ID                int64
	TenantID          shared.TenantID
	Kind              Kind
	Number            string
	Status            Status
	PostingMethod     PostingMethod
	SupplierID        *int64
	CustomerID        *int64
	PurchaseInvoiceID *int64
	OrderID           *int64
	TransactionID     *int64
	TotalAmount       float64
	RefundAmount      float64
	Date              time.Time
	CreatedAt         time.Time
	Items             []ReturnItem
}

// ReturnItem is one returned product line. Price is the purchase price
// for supplier returns and the sale price for customer returns.
type ReturnItem struct {
	ID          int64
	ReturnID    int64
	ProductID   int64
	ProductName string
	Quantity    int64
	Price       float64
}

// Total sums price times quantity over the items.
func (r Return) Total() float64 {
	var total float64
	for _, item := range r.Items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// PostInput selects the settlement for a pending return.
type PostInput struct {
	ReturnID int64
	Method   PostingMethod
	// CashAccountCode picks cash vs bank for CASH_REFUND and MIXED.
	CashAccountCode string
	// CashAmount is the cash portion under MIXED; the remainder offsets
	// the payable.
	CashAmount float64
	ActorID    int64
}

// DriftReport compares an invoice's payable movement recomputed from
// transaction history against the expected invoice − returns − payments
// figure. ReturnsTotal carries only the payable-reducing portion of each
// return; cash-refunded amounts never moved AP. Drift is reported, never
// silently corrected.
type DriftReport struct {
	PurchaseInvoiceID int64   `json:"purchaseInvoiceId"`
	InvoiceTotal      float64 `json:"invoiceTotal"`
	ReturnsTotal      float64 `json:"returnsTotal"`
	PaymentsTotal     float64 `json:"paymentsTotal"`
	Expected          float64 `json:"expected"`
	Actual            float64 `json:"actual"`
	Drift             float64 `json:"drift"`
}
