package orders

import "errors"

var (
	ErrOrderNotFound     = errors.New("orders: order not found")
	ErrNoItems           = errors.New("orders: order has no items")
	ErrInvalidQuantity   = errors.New("orders: item quantity must be positive")
	ErrExcessPayment     = errors.New("orders: payment exceeds order total")
	ErrLogisticsNotFound = errors.New("orders: logistics company not found")
)
