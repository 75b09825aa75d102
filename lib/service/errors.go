package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound : unknown invoice or profile.
	ErrNotFound = errors.New("not found")
	// ErrAuthorization : role or ownership mismatch. Always derived from the
	// profile row, never from a client-asserted role.
	ErrAuthorization = errors.New("not authorized")
	// ErrConflict : a precondition did not hold, either because of a
	// concurrent transition or because the transition was attempted from a
	// state it is not valid in.
	ErrConflict = errors.New("status precondition failed")
	// ErrValidation : malformed or missing payload fields.
	ErrValidation = errors.New("invalid arguments")
	// ErrDataIntegrity : an already-Sold row would be overwritten with a
	// different tx hash. Never resolved automatically.
	ErrDataIntegrity = errors.New("ledger and store disagree")
)

// SyncError : the ledger confirmed the purchase but the store commit failed.
// Recoverable, but must never be silently dropped; the tx hash is retained so
// the commit can be re-applied idempotently.
type SyncError struct {
	InvoiceID int64
	TxHash    string
	Err       error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("purchase of invoice %d confirmed on chain (tx %s) but store commit failed: %v", e.InvoiceID, e.TxHash, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
