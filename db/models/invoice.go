package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Invoice : Invoice Model
//
// Status only ever advances along
// Pending -> Acknowledged -> Listed -> Settling -> Sold, with SoldUnsynced as
// the recoverable disagreement state next to Sold. Rows are never deleted.
type Invoice struct {
	ID int64 `json:"id" bun:",pk,autoincrement"`
	// ExternalID is the identifier the marketplace contract knows the
	// invoice by. Generated once at creation, never reused.
	ExternalID        string              `json:"external_id" bun:",unique,notnull"`
	InvoiceNumber     string              `json:"invoice_number" bun:",notnull" validate:"required"`
	Amount            decimal.Decimal     `json:"amount" bun:"type:decimal(18,2),notnull"`
	DueDate           time.Time           `json:"due_date" bun:",notnull"`
	BuyerEmail        string              `json:"buyer_email" bun:",notnull" validate:"required,email"`
	Status            string              `json:"status" bun:",notnull,default:'Pending'"`
	BuyerAcknowledged bool                `json:"buyer_acknowledged" bun:",nullzero"`
	ListedPrice       decimal.NullDecimal `json:"listed_price" bun:"type:decimal(18,2),nullzero"`
	CreatedBy         int64               `json:"created_by" bun:",notnull"`
	User              *User               `json:"-" bun:"rel:belongs-to,join:created_by=id"`
	// PdfReference is an opaque storage handle, not interpreted here.
	PdfReference     string `json:"pdf_reference,omitempty" bun:",nullzero"`
	BlockchainTxHash string `json:"blockchain_tx_hash,omitempty" bun:",nullzero"`
	// SettlingInvestorID records who won the Listed->Settling race so a
	// reconciliation retry can attribute the purchase without the original
	// request context.
	SettlingInvestorID int64        `json:"-" bun:",nullzero"`
	ErrorMessage       string       `json:"error_message,omitempty" bun:",nullzero"`
	CreatedAt          time.Time    `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt          bun.NullTime `json:"updated_at"`
	SoldAt             bun.NullTime `json:"sold_at"`
}

func (i *Invoice) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.UpdateQuery:
		i.UpdatedAt = bun.NullTime{Time: time.Now()}
	}
	return nil
}

var _ bun.BeforeAppendModelHook = (*Invoice)(nil)
