package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Purchase : append-only record of an investor buying an invoice. A partial
// unique index (see migrations) guarantees at most one non-superseded row per
// invoice.
type Purchase struct {
	bun.BaseModel `bun:"table:purchases"`

	ID         int64           `json:"id" bun:",pk,autoincrement"`
	InvoiceID  int64           `json:"invoice_id" bun:",notnull"`
	Invoice    *Invoice        `json:"-" bun:"rel:belongs-to,join:invoice_id=id"`
	InvestorID int64           `json:"investor_id" bun:",notnull"`
	TxHash     string          `json:"tx_hash" bun:",notnull"`
	Price      decimal.Decimal `json:"price" bun:"type:decimal(18,2),notnull"`
	Superseded bool            `json:"-" bun:",notnull,default:false"`
	CreatedAt  time.Time       `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
}
