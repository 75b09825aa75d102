package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		code string
		kind ErrorKind
	}{
		{"user_rejected", ErrorUserRejected},
		{"insufficient_funds", ErrorInsufficientFunds},
		{"already_sold", ErrorAlreadySoldOnChain},
		{"revert", ErrorUnknown},
		{"", ErrorUnknown},
	}
	for _, tt := range tests {
		err := newError(tt.code, "boom")
		assert.Equal(t, tt.kind, err.Kind)
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "ledger error (insufficient_funds): balance too low",
		(&Error{Kind: ErrorInsufficientFunds, Message: "balance too low"}).Error())
	assert.Equal(t, "ledger error: unknown", (&Error{Kind: ErrorUnknown}).Error())
}
