package service

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/openmsme/invoicehub/common"
	"github.com/openmsme/invoicehub/db/models"
	"github.com/shopspring/decimal"
)

func (svc *InvoicehubService) StartRabbitMqPublisher(ctx context.Context) error {
	return svc.RabbitMQClient.StartPublishInvoices(ctx, svc.subscribeLifecycleTransitions, svc.EncodeInvoiceWithCreator)
}

func (svc *InvoicehubService) subscribeLifecycleTransitions() (chan models.Invoice, error) {
	transitions := make(chan models.Invoice)
	svc.InvoicePubSub.Subscribe(common.InvoiceStatusAcknowledged, transitions)
	svc.InvoicePubSub.Subscribe(common.InvoiceStatusListed, transitions)
	svc.InvoicePubSub.Subscribe(common.InvoiceStatusSold, transitions)
	return transitions, nil
}

type invoiceEventPayload struct {
	ExternalID       string              `json:"external_id"`
	InvoiceNumber    string              `json:"invoice_number"`
	Status           string              `json:"status"`
	Amount           decimal.Decimal     `json:"amount"`
	ListedPrice      decimal.NullDecimal `json:"listed_price"`
	BuyerEmail       string              `json:"buyer_email"`
	MsmeLogin        string              `json:"msme_login"`
	BlockchainTxHash string              `json:"blockchain_tx_hash,omitempty"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func (svc *InvoicehubService) EncodeInvoiceWithCreator(ctx context.Context, w io.Writer, invoice models.Invoice) error {
	user, err := svc.FindUser(ctx, invoice.CreatedBy)
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(invoiceEventPayload{
		ExternalID:       invoice.ExternalID,
		InvoiceNumber:    invoice.InvoiceNumber,
		Status:           invoice.Status,
		Amount:           invoice.Amount,
		ListedPrice:      invoice.ListedPrice,
		BuyerEmail:       invoice.BuyerEmail,
		MsmeLogin:        user.Login,
		BlockchainTxHash: invoice.BlockchainTxHash,
		UpdatedAt:        invoice.UpdatedAt.Time,
	})
}
