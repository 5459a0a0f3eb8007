package common

import "errors"

// Shared settlement failure taxonomy. The marketplace and auction engines
// surface these unchanged so callers can match on them regardless of which
// engine rejected the operation.
var (
	// ErrInvalidPrice rejects zero or negative prices.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrUnapprovedCurrency rejects sale or auction currencies missing from
	// the approved set.
	ErrUnapprovedCurrency = errors.New("currency not approved")
	// ErrUnauthorized rejects callers lacking the owner, admin or
	// record-owner capability required by the operation.
	ErrUnauthorized = errors.New("unauthorized caller")
	// ErrTransferDenied surfaces a rejected asset custody transfer.
	ErrTransferDenied = errors.New("asset transfer denied")
	// ErrOnlyDirectCallers rejects contract accounts from buy, bid and
	// create operations.
	ErrOnlyDirectCallers = errors.New("only direct callers")
	// ErrInsufficientPayment covers native payment mismatches and token
	// allowance or balance shortfalls.
	ErrInsufficientPayment = errors.New("insufficient payment")
)
