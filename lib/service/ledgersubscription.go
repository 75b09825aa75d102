package service

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/openmsme/invoicehub/common"
	"github.com/openmsme/invoicehub/ledger"
	"github.com/uptrace/bun"
)

func (svc *InvoicehubService) ConnectLedgerEventSubscription(ctx context.Context) (ledger.EventSubscriptionWrapper, error) {
	// Replaying from the first event is safe: CommitPurchase is keyed by
	// invoice id and tx hash, so already-applied events are no-ops.
	svc.Logger.Infof("Starting ledger event subscription from event id: %v", 0)
	return svc.LedgerClient.SubscribeEvents(ctx, 0)
}

func (svc *InvoicehubService) LedgerEventSubscription(ctx context.Context) error {
	eventStream, err := svc.ConnectLedgerEventSubscription(ctx)
	if err != nil {
		sentry.CaptureException(err)
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context was canceled")
		default:
			event, err := eventStream.Recv()
			if err != nil {
				svc.Logger.Errorf("Error processing ledger event subscription: %v", err)
				sentry.CaptureException(err)
				// Wait and reconnect, the replay picks up where we were
				time.Sleep(30 * time.Second)
				eventStream, _ = svc.ConnectLedgerEventSubscription(ctx)
				continue
			}

			processingError := svc.ProcessLedgerEvent(ctx, event)
			if processingError != nil {
				svc.Logger.Error(fmt.Errorf("error %s, event id %d invoice %s", processingError.Error(), event.ID, event.InvoiceID))
				sentry.CaptureException(fmt.Errorf("error %s, event id %d invoice %s", processingError.Error(), event.ID, event.InvoiceID))
			}
		}
	}
}

// ProcessLedgerEvent reconciles a contract event into the store. The chain is
// the source of truth for settlement: a purchase event always wins over
// whatever intermediate state the store holds.
func (svc *InvoicehubService) ProcessLedgerEvent(ctx context.Context, event *ledger.Event) error {
	svc.Logger.Infof("Ledger event: id:%d type:%s invoice:%s tx_hash:%s", event.ID, event.Type, event.InvoiceID, event.TxHash)

	switch event.Type {
	case common.LedgerEventInvoiceListed:
		// listings originate in our own ListInvoice call; nothing to apply
		return nil
	case common.LedgerEventInvoicePurchased:
		return svc.processPurchaseEvent(ctx, event)
	default:
		svc.Logger.Infof("Ignoring ledger event type %s", event.Type)
		return nil
	}
}

func (svc *InvoicehubService) processPurchaseEvent(ctx context.Context, event *ledger.Event) error {
	invoice, err := svc.FindInvoiceByExternalID(ctx, event.InvoiceID)
	if err != nil {
		// an invoice this instance never issued; not ours to reconcile
		svc.Logger.Infof("No invoice for purchase event. Ignoring. invoice:%s", event.InvoiceID)
		return nil
	}
	if invoice.Status == common.InvoiceStatusSold {
		if invoice.BlockchainTxHash == event.TxHash {
			return nil
		}
		return fmt.Errorf("invoice %d sold with tx %s but chain reports tx %s", invoice.ID, invoice.BlockchainTxHash, event.TxHash)
	}

	// Attribute the purchase: the Settling lock holder if there is one,
	// otherwise the buyer address from the event.
	investorID := invoice.SettlingInvestorID
	if investorID == 0 {
		investor, err := svc.FindUserByWalletAddress(ctx, event.Buyer)
		if err != nil {
			return fmt.Errorf("cannot attribute purchase of invoice %d to address %s: %v", invoice.ID, event.Buyer, err)
		}
		investorID = investor.ID
	}

	// A purchase submitted straight to the contract reaches us while the
	// store still says Listed. Claim the row for the buyer first, then the
	// usual commit applies.
	if invoice.Status == common.InvoiceStatusListed {
		_, _, err = svc.conditionalUpdateInvoice(ctx, invoice.ID,
			[]string{common.InvoiceStatusListed},
			func(q *bun.UpdateQuery) {
				q.Set("status = ?", common.InvoiceStatusSettling).
					Set("settling_investor_id = ?", investorID)
			})
		if err != nil {
			return err
		}
	}

	_, err = svc.CommitPurchase(ctx, invoice.ID, investorID, event.TxHash)
	return err
}
