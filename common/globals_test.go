package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusRankOrdersLifecycle(t *testing.T) {
	forward := []string{
		InvoiceStatusPending,
		InvoiceStatusAcknowledged,
		InvoiceStatusListed,
		InvoiceStatusSettling,
		InvoiceStatusSold,
	}
	for i := 1; i < len(forward); i++ {
		assert.Greater(t, StatusRank(forward[i]), StatusRank(forward[i-1]))
	}
	// SoldUnsynced ranks with Sold: the ledger side is final either way
	assert.Equal(t, StatusRank(InvoiceStatusSold), StatusRank(InvoiceStatusSoldUnsynced))
	assert.Equal(t, -1, StatusRank("Cancelled"))
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(RoleMSME))
	assert.True(t, ValidRole(RoleBuyer))
	assert.True(t, ValidRole(RoleInvestor))
	assert.False(t, ValidRole("admin"))
	assert.False(t, ValidRole(""))
}
