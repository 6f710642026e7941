package purchasing

import (
	"time"

	"github.com/hisaab-erp/hisaab-erp/internal/inventory"
	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// Invoice is a purchase-invoice header. Line items live in the
// inventory package's purchase_items projection.
type Invoice struct {
	ID          int64           `json:"id"`
	TenantID    shared.TenantID `json:"tenantId"`
	SupplierID  int64           `json:"supplierId"`
	Number      string          `json:"number"`
	TotalAmount float64         `json:"totalAmount"`
	PaidAmount  float64         `json:"paidAmount"`
	Date        time.Time       `json:"date"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// InvoiceInput describes one incoming purchase invoice.
type InvoiceInput struct {
	SupplierID    int64
	Number        string
	Date          time.Time
	Items         []inventory.PurchaseItemInput
	PaymentAmount float64
	// PaymentMethod picks the account credited for the paid portion,
	// CASH or BANK.
	PaymentMethod string
}

// Total sums quantity times purchase price over the items.
func (in InvoiceInput) Total() float64 {
	var total float64
	for _, item := range in.Items {
		total += float64(item.Quantity) * item.PurchasePrice
	}
	return total
}
