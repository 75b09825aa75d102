package common

const (
	// Invoice lifecycle states, in forward order. SoldUnsynced is reachable
	// only from Settling: the ledger confirmed the purchase but the store
	// commit has not been applied yet.
	InvoiceStatusPending      = "Pending"
	InvoiceStatusAcknowledged = "Acknowledged"
	InvoiceStatusListed       = "Listed"
	InvoiceStatusSettling     = "Settling"
	InvoiceStatusSold         = "Sold"
	InvoiceStatusSoldUnsynced = "SoldUnsynced"

	RoleMSME     = "msme"
	RoleBuyer    = "buyer"
	RoleInvestor = "investor"

	LedgerEventInvoiceListed    = "InvoiceListed"
	LedgerEventInvoicePurchased = "InvoicePurchased"
)

// StatusRank gives the position of a state in the forward order. SoldUnsynced
// ranks with Sold: both mean the ledger purchase is final.
func StatusRank(status string) int {
	switch status {
	case InvoiceStatusPending:
		return 0
	case InvoiceStatusAcknowledged:
		return 1
	case InvoiceStatusListed:
		return 2
	case InvoiceStatusSettling:
		return 3
	case InvoiceStatusSold, InvoiceStatusSoldUnsynced:
		return 4
	default:
		return -1
	}
}

func ValidRole(role string) bool {
	switch role {
	case RoleMSME, RoleBuyer, RoleInvestor:
		return true
	}
	return false
}
