package returns

import "errors"

var (
	ErrReturnNotFound = errors.New("returns: return not found")
	ErrAlreadyPosted  = errors.New("returns: return already posted")
	ErrNoItems        = errors.New("returns: return has no items")
	ErrBadMethod      = errors.New("returns: posting method invalid for this return")
	ErrBadCashSplit   = errors.New("returns: cash portion must be between zero and the return total")
)
