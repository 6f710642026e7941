package balance

import (
	"time"

	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// PaymentType separates money received from customers and money sent to
// suppliers.
type PaymentType string

const (
	PaymentTypeCustomer PaymentType = "CUSTOMER_PAYMENT"
	PaymentTypeSupplier PaymentType = "SUPPLIER_PAYMENT"
)

// OrderStatus mirrors the order subsystem's lifecycle. Only billable
// statuses contribute ledger rows.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusDispatched OrderStatus = "DISPATCHED"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// Billable reports whether the order counts toward the customer's balance.
func (s OrderStatus) Billable() bool {
	switch s {
	case OrderStatusConfirmed, OrderStatusDispatched, OrderStatusCompleted:
		return true
	}
	return false
}

// Sources tagging explicit opening-balance postings in the transaction
// ledger.
const (
	SourceCustomerOpening = "CUSTOMER_OPENING_BALANCE"
	SourceSupplierOpening = "SUPPLIER_OPENING_BALANCE"
)

// Customer carries the denormalized rollups next to identity fields. The
// rollups are caches of order history, rebuilt by RecalculateCustomerStats.
type Customer struct {
	ID             int64
	TenantID       shared.TenantID
	Name           string
	PhoneNumber    string
	City           string
	AdvanceBalance float64
	TotalOrders    int64
	TotalSpent     float64
	LastOrderDate  *time.Time
	CreatedAt      time.Time
}

// Supplier mirrors Customer on the purchasing side.
type Supplier struct {
	ID              int64
	TenantID        shared.TenantID
	Name            string
	PhoneNumber     string
	AdvanceBalance  float64
	TotalInvoices   int64
	TotalPurchased  float64
	LastInvoiceDate *time.Time
	CreatedAt       time.Time
}

// Order is the read-side projection of one sales order.
type Order struct {
	ID              int64
	TenantID        shared.TenantID
	CustomerID      int64
	Number          string
	Status          OrderStatus
	OrderDate       time.Time
	ItemsTotal      float64
	ShippingCharges float64
	CodFee          float64
	CodFeePaidBy    string
	PaymentAmount   float64
}

// Total is the order's value from the customer's point of view: line
// items plus shipping, plus the COD fee only when the customer bears it.
func (o Order) Total() float64 {
	total := o.ItemsTotal + o.ShippingCharges
	if o.CodFeePaidBy == "CUSTOMER" {
		total += o.CodFee
	}
	return total
}

// Payment is one money movement, linked either to a customer or a
// supplier and optionally to an order or purchase invoice.
type Payment struct {
	ID                int64
	TenantID          shared.TenantID
	Type              PaymentType
	CustomerID        *int64
	SupplierID        *int64
	OrderID           *int64
	PurchaseInvoiceID *int64
	Amount            float64
	Method            string
	Date              time.Time
}

// Direct reports whether the payment arrived without an order link, i.e.
// money on account rather than settlement of a specific order.
func (p Payment) Direct() bool {
	return p.OrderID == nil && p.PurchaseInvoiceID == nil
}

// Return is the read-side projection of an approved return.
type Return struct {
	ID           int64
	TenantID     shared.TenantID
	CustomerID   *int64
	SupplierID   *int64
	Number       string
	TotalAmount  float64
	RefundAmount float64
	Refunded     bool
	Date         time.Time
}

// Invoice is the read-side projection of a purchase invoice header.
type Invoice struct {
	ID          int64
	TenantID    shared.TenantID
	SupplierID  int64
	Number      string
	TotalAmount float64
	Date        time.Time
}

// RowType tags the origin of a ledger row.
type RowType string

const (
	RowOpening RowType = "OPENING"
	RowOrder   RowType = "ORDER"
	RowInvoice RowType = "INVOICE"
	RowPayment RowType = "PAYMENT"
	RowReturn  RowType = "RETURN"
	RowRefund  RowType = "REFUND"
)

// LedgerRow is one chronological entry with its post-row running balance.
// Positive balance means the counterparty owes; negative means credit
// held on their behalf.
type LedgerRow struct {
	Type        RowType   `json:"type"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Reference   string    `json:"reference,omitempty"`
	Debit       float64   `json:"debit"`
	Credit      float64   `json:"credit"`
	Balance     float64   `json:"balance"`
	Direct      bool      `json:"direct,omitempty"`
}

// Summary aggregates a ledger into its headline figures.
type Summary struct {
	OpeningBalance float64 `json:"openingBalance"`
	TotalBilled    float64 `json:"totalBilled"`
	TotalReturns   float64 `json:"totalReturns"`
	TotalPayments  float64 `json:"totalPayments"`
	ClosingBalance float64 `json:"closingBalance"`
}

// Ledger is the full ordered statement plus its summary.
type Ledger struct {
	Rows    []LedgerRow `json:"rows"`
	Summary Summary     `json:"summary"`
}

// OpeningBalance carries the two opening figures. Explicit marks whether
// they came from a dedicated opening transaction; when false, Advance is
// the denormalized rollup and Receivable is zero.
type OpeningBalance struct {
	Receivable float64 `json:"openingARBalance"`
	Advance    float64 `json:"openingAdvanceBalance"`
	Explicit   bool    `json:"explicit"`
}

// Net is the signed starting balance: what the counterparty owes minus
// what is held for them.
func (o OpeningBalance) Net() float64 {
	return o.Receivable - o.Advance
}

// CustomerStats is the recomputed rollup persisted onto the customer row.
type CustomerStats struct {
	TotalOrders   int64      `json:"totalOrders"`
	TotalSpent    float64    `json:"totalSpent"`
	LastOrderDate *time.Time `json:"lastOrderDate,omitempty"`
}

// SupplierStats mirrors CustomerStats for purchase invoices.
type SupplierStats struct {
	TotalInvoices   int64      `json:"totalInvoices"`
	TotalPurchased  float64    `json:"totalPurchased"`
	LastInvoiceDate *time.Time `json:"lastInvoiceDate,omitempty"`
}

// DateRange bounds a ledger query; zero values mean unbounded.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether ts falls inside the range.
func (r DateRange) Contains(ts time.Time) bool {
	if !r.From.IsZero() && ts.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && ts.After(r.To) {
		return false
	}
	return true
}

// OpeningLine is one line of an explicit opening transaction with its
// account code resolved.
type OpeningLine struct {
	AccountCode string
	Debit       float64
	Credit      float64
}
