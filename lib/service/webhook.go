package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/openmsme/invoicehub/common"
	"github.com/openmsme/invoicehub/db/models"
)

func (svc *InvoicehubService) StartWebhookSubscription(ctx context.Context) {

	svc.Logger.Infof("Starting webhook subscription with webhook url %s", svc.Config.WebhookUrl)
	acknowledged := make(chan models.Invoice)
	listed := make(chan models.Invoice)
	sold := make(chan models.Invoice)
	svc.InvoicePubSub.Subscribe(common.InvoiceStatusAcknowledged, acknowledged)
	svc.InvoicePubSub.Subscribe(common.InvoiceStatusListed, listed)
	svc.InvoicePubSub.Subscribe(common.InvoiceStatusSold, sold)
	for {
		select {
		case <-ctx.Done():
			return
		case invoice := <-acknowledged:
			svc.postToWebhook(invoice)
		case invoice := <-listed:
			svc.postToWebhook(invoice)
		case invoice := <-sold:
			svc.postToWebhook(invoice)
		}
	}
}

func (svc *InvoicehubService) postToWebhook(invoice models.Invoice) {

	payload := new(bytes.Buffer)
	err := json.NewEncoder(payload).Encode(invoice)
	if err != nil {
		svc.Logger.Error(err)
		return
	}

	resp, err := http.Post(svc.Config.WebhookUrl, "application/json", payload)
	if err != nil {
		svc.Logger.Error(err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			svc.Logger.Error(err)
		}
		svc.Logger.Errorf("Webhook status code was %d, body: %s", resp.StatusCode, msg)
	}
}
