package balance

import "errors"

var (
	ErrCustomerNotFound = errors.New("balance: customer not found")
	ErrSupplierNotFound = errors.New("balance: supplier not found")
)
