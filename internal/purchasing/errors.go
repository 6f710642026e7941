package purchasing

import "errors"

var (
	ErrInvoiceNotFound  = errors.New("purchasing: invoice not found")
	ErrDuplicateInvoice = errors.New("purchasing: invoice number already exists")
	ErrNoItems          = errors.New("purchasing: invoice has no items")
	ErrExcessPayment    = errors.New("purchasing: payment exceeds invoice total")
)
