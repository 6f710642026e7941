package inventory

import "errors"

var (
	// ErrProductNotFound indicates the product is absent or not owned by
	// the tenant.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrInvoiceNotFound indicates a missing purchase invoice.
	ErrInvoiceNotFound = errors.New("inventory: purchase invoice not found")
	// ErrInvalidQuantity indicates a non-positive purchase quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrZeroAdjustment indicates an adjustment with no delta.
	ErrZeroAdjustment = errors.New("inventory: adjustment delta must be non zero")
)
