package shared

import "errors"

var (
	// ErrNotFound indicates resource not found or not owned by the tenant.
	ErrNotFound = errors.New("not found")
)
