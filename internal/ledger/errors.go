package ledger

import "errors"

var (
	// ErrUnbalanced indicates sum of debits != sum of credits.
	ErrUnbalanced = errors.New("ledger: transaction lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("ledger: transaction requires at least two lines")
	// ErrInvalidAccount indicates a line references an unknown account.
	ErrInvalidAccount = errors.New("ledger: account reference does not resolve")
	// ErrAccountNotFound indicates no account with the given code.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrDuplicateAccount indicates a concurrent create collided on code.
	ErrDuplicateAccount = errors.New("ledger: account code already exists")
	// ErrTransactionNotFound indicates a missing transaction.
	ErrTransactionNotFound = errors.New("ledger: transaction not found")
	// ErrNumberCollision indicates a transaction number clash. This is a
	// configuration fault and is never retried silently.
	ErrNumberCollision = errors.New("ledger: transaction number collision")
)
