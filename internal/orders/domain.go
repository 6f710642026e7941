package orders

import (
	"time"

	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// Status is the order lifecycle.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusDispatched Status = "DISPATCHED"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// CodFeePayer marks who bears the courier's collection fee.
const (
	CodPaidByCustomer = "CUSTOMER"
	CodPaidBySeller   = "SELLER"
)

// Order is a confirmed sales order with its computed charges.
type Order struct {
	ID                 int64           `json:"id"`
	TenantID           shared.TenantID `json:"tenantId"`
	CustomerID         int64           `json:"customerId"`
	Number             string          `json:"number"`
	Status             Status          `json:"status"`
	City               string          `json:"city"`
	LogisticsCompanyID *int64          `json:"logisticsCompanyId,omitempty"`
	ItemsTotal         float64         `json:"itemsTotal"`
	ShippingCharges    float64         `json:"shippingCharges"`
	CodFee             float64         `json:"codFee"`
	CodFeePaidBy       string          `json:"codFeePaidBy"`
	PaymentAmount      float64         `json:"paymentAmount"`
	OrderDate          time.Time       `json:"orderDate"`
	CreatedAt          time.Time       `json:"createdAt"`
	Items              []OrderItem     `json:"items"`
}

// OrderItem is one structured order line.
type OrderItem struct {
	ID        int64   `json:"id"`
	OrderID   int64   `json:"orderId"`
	ProductID int64   `json:"productId"`
	Quantity  int64   `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// Total is the customer-facing order value: items plus shipping, plus
// the COD fee when the customer bears it.
func (o Order) Total() float64 {
	total := o.ItemsTotal + o.ShippingCharges
	if o.CodFeePaidBy == CodPaidByCustomer {
		total += o.CodFee
	}
	return total
}

// ItemInput is one incoming order line.
type ItemInput struct {
	ProductID int64
	Quantity  int64
	UnitPrice float64
}

// ConfirmInput describes an order to confirm.
type ConfirmInput struct {
	CustomerID         int64
	City               string
	Items              []ItemInput
	LogisticsCompanyID *int64
	CodFeePaidBy       string
	PaymentAmount      float64
	// PaymentMethod picks the account debited for an upfront payment,
	// CASH or BANK.
	PaymentMethod string
	Date          time.Time
}

// ItemsTotal sums unit price times quantity over the lines.
func (in ConfirmInput) ItemsTotal() float64 {
	var total float64
	for _, item := range in.Items {
		total += item.UnitPrice * float64(item.Quantity)
	}
	return total
}
