package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MarketplaceClientWrapper is the contract surface the core depends on. The
// production implementation talks to a chain gateway that wraps the
// InvoiceMarketplace contract; tests plug in a mock.
type MarketplaceClientWrapper interface {
	ListInvoice(ctx context.Context, invoiceID string, price decimal.Decimal) (*Receipt, error)
	// PurchaseInvoice is value-bearing and may block for a human-timescale
	// wallet confirmation. It must be abandonable through ctx.
	PurchaseInvoice(ctx context.Context, invoiceID string) (*Receipt, error)
	GetInvoice(ctx context.Context, invoiceID string) (*OnChainInvoice, error)
	IsInvoiceAvailable(ctx context.Context, invoiceID string) (bool, error)
	SubscribeEvents(ctx context.Context, sinceID uint64) (EventSubscriptionWrapper, error)
	GetGatewayAddress() string
}

type EventSubscriptionWrapper interface {
	Recv() (*Event, error)
}

// Receipt of a transaction accepted on chain.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}

// OnChainInvoice mirrors the contract's getInvoice tuple.
type OnChainInvoice struct {
	InvoiceID    string          `json:"invoice_id"`
	MsmeOwner    string          `json:"msme_owner"`
	Price        decimal.Decimal `json:"price"`
	IsSold       bool            `json:"is_sold"`
	Buyer        string          `json:"buyer"`
	PurchaseTime time.Time       `json:"purchase_time"`
}

// Event is an InvoiceListed or InvoicePurchased contract event.
type Event struct {
	ID        uint64          `json:"id"`
	Type      string          `json:"type"`
	InvoiceID string          `json:"invoice_id"`
	MsmeOwner string          `json:"msme_owner"`
	Buyer     string          `json:"buyer,omitempty"`
	Price     decimal.Decimal `json:"price"`
	TxHash    string          `json:"tx_hash"`
	Timestamp time.Time       `json:"timestamp"`
}
