package ledger

import "fmt"

type ErrorKind string

const (
	ErrorUserRejected       ErrorKind = "user_rejected"
	ErrorInsufficientFunds  ErrorKind = "insufficient_funds"
	ErrorAlreadySoldOnChain ErrorKind = "already_sold"
	ErrorUnknown            ErrorKind = "unknown"
)

// Error is a classified ledger failure. The purchase flow aborts on these
// without advancing past Settling.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ledger error: %s", e.Kind)
	}
	return fmt.Sprintf("ledger error (%s): %s", e.Kind, e.Message)
}

func newError(code, message string) *Error {
	kind := ErrorUnknown
	switch ErrorKind(code) {
	case ErrorUserRejected, ErrorInsufficientFunds, ErrorAlreadySoldOnChain:
		kind = ErrorKind(code)
	}
	return &Error{Kind: kind, Message: message}
}
