package inventory

import (
	"time"

	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// LogAction enumerates product audit actions.
type LogAction string

const (
	LogActionCreate             LogAction = "CREATE"
	LogActionIncrease           LogAction = "INCREASE"
	LogActionDecrease           LogAction = "DECREASE"
	LogActionPriceUpdate        LogAction = "PRICE_UPDATE"
	LogActionQuantityAdjustment LogAction = "QUANTITY_ADJUSTMENT"
	LogActionVariantCreate      LogAction = "VARIANT_CREATE"
	LogActionVariantIncrease    LogAction = "VARIANT_INCREASE"
	LogActionVariantDecrease    LogAction = "VARIANT_DECREASE"
)

// Product carries the denormalized quantity/price rollup. Quantities are
// whole units; both are mutated only through this package so the ProductLog
// trail stays complete.
type Product struct {
	ID                 int64
	TenantID           shared.TenantID
	Name               string
	SKU                string
	CurrentQuantity    int64
	LastPurchasePrice  float64
	CurrentRetailPrice float64
	MinStockLevel      int64
	MaxStockLevel      int64
	UseDefaultShipping bool
	// ShippingRules holds the product's own quantity-rule JSON when it
	// opts out of tenant defaults.
	ShippingRules         []byte
	DefaultQuantityCharge float64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ProductVariant tracks per-color/size stock under a product.
type ProductVariant struct {
	ID              int64
	TenantID        shared.TenantID
	ProductID       int64
	Color           string
	Size            string
	SKU             string
	CurrentQuantity int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProductLog is an append-only audit entry, one per state change.
type ProductLog struct {
	ID             int64
	TenantID       shared.TenantID
	ProductID      int64
	VariantID      *int64
	PurchaseItemID *int64
	Action         LogAction
	OldQuantity    int64
	NewQuantity    int64
	OldPrice       float64
	NewPrice       float64
	Reason         string
	Reference      string
	Notes          string
	CreatedAt      time.Time
}

// PurchaseItem is a purchase-invoice line. Soft-deleted on invoice
// deletion so the audit history keeps the reversed rows.
type PurchaseItem struct {
	ID                int64
	TenantID          shared.TenantID
	PurchaseInvoiceID int64
	ProductID         int64
	VariantID         *int64
	ProductName       string
	Color             string
	Size              string
	Quantity          int64
	PurchasePrice     float64
	IsDeleted         bool
	DeletedAt         *time.Time
	CreatedAt         time.Time
}

// PurchaseItemInput describes one incoming purchase line.
type PurchaseItemInput struct {
	ProductName   string
	SKU           string
	Color         string
	Size          string
	Quantity      int64
	PurchasePrice float64
	RetailPrice   float64
}

// AdjustInput describes a manual stock adjustment.
type AdjustInput struct {
	ProductID int64
	Delta     int64
	Reason    string
	Notes     string
}
