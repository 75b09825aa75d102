package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/getsentry/sentry-go"
	"github.com/openmsme/invoicehub/common"
	"github.com/openmsme/invoicehub/db/models"
	"github.com/uptrace/bun"
)

type PurchaseResult struct {
	Invoice  *models.Invoice
	Purchase *models.Purchase
}

// BuyInvoice drives the two-phase purchase end to end.
//
// Phase 1 is a conditional Listed->Settling write: under concurrent buys it
// admits exactly one winner, the losers fail with a conflict. Phase 2 submits
// the value-bearing purchase to the ledger (which may block on an external
// wallet confirmation and is abandonable through ctx; abandoning leaves the
// invoice Settling) and then commits the result to the store. The two systems
// cannot commit atomically together, so a store failure after ledger success
// parks the invoice in SoldUnsynced with the tx hash retained.
func (svc *InvoicehubService) BuyInvoice(ctx context.Context, userID int64, invoiceID int64) (*PurchaseResult, error) {
	user, err := svc.AuthorizeAction(ctx, userID, ActionBuyInvoice)
	if err != nil {
		return nil, err
	}
	invoice, err := svc.FindInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	switch invoice.Status {
	case common.InvoiceStatusSold, common.InvoiceStatusSoldUnsynced:
		// buying an invoice you already bought is idempotent success
		return svc.resultIfPurchasedBy(ctx, invoice, user.ID)
	case common.InvoiceStatusListed:
		applied, currentStatus, err := svc.conditionalUpdateInvoice(ctx, invoiceID,
			[]string{common.InvoiceStatusListed},
			func(q *bun.UpdateQuery) {
				q.Set("status = ?", common.InvoiceStatusSettling).
					Set("settling_investor_id = ?", user.ID)
			})
		if err != nil {
			return nil, err
		}
		if !applied {
			if currentStatus == common.InvoiceStatusSold || currentStatus == common.InvoiceStatusSoldUnsynced {
				invoice, err = svc.FindInvoice(ctx, invoiceID)
				if err != nil {
					return nil, err
				}
				return svc.resultIfPurchasedBy(ctx, invoice, user.ID)
			}
			return nil, fmt.Errorf("%w: another purchase is already in flight", ErrConflict)
		}
	case common.InvoiceStatusSettling:
		// a retry may re-attempt the ledger step, but never the
		// Listed->Settling transition, and only by the investor holding it
		if invoice.SettlingInvestorID != user.ID {
			return nil, fmt.Errorf("%w: another purchase is already in flight", ErrConflict)
		}
	default:
		return nil, fmt.Errorf("%w: cannot buy invoice in status %s", ErrConflict, invoice.Status)
	}

	receipt, err := svc.LedgerClient.PurchaseInvoice(ctx, invoice.ExternalID)
	if err != nil {
		// the invoice stays Settling; a follow-up retries the ledger step
		// or rolls back to Listed once no broadcast is confirmed
		svc.recordInvoiceError(invoiceID, err)
		svc.Logger.Errorf("Ledger purchase failed: invoice_id:%v user_id:%v error: %v", invoiceID, user.ID, err)
		return nil, err
	}

	invoice, err = svc.CommitPurchase(ctx, invoiceID, user.ID, receipt.TxHash)
	if err != nil {
		return nil, err
	}
	purchase, err := svc.FindLivePurchase(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return &PurchaseResult{Invoice: invoice, Purchase: purchase}, nil
}

func (svc *InvoicehubService) resultIfPurchasedBy(ctx context.Context, invoice *models.Invoice, investorID int64) (*PurchaseResult, error) {
	purchase, err := svc.FindLivePurchase(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	if purchase != nil && purchase.InvestorID == investorID {
		return &PurchaseResult{Invoice: invoice, Purchase: purchase}, nil
	}
	return nil, fmt.Errorf("%w: invoice already sold", ErrConflict)
}

func (svc *InvoicehubService) FindLivePurchase(ctx context.Context, invoiceID int64) (*models.Purchase, error) {
	var purchase models.Purchase
	err := svc.DB.NewSelect().Model(&purchase).
		Where("invoice_id = ? AND NOT superseded", invoiceID).
		Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}

// CommitPurchase is the store side of settlement, keyed by invoice id and tx
// hash so it can be re-applied any number of times: it only moves
// Settling/SoldUnsynced rows, repeating it on a Sold row with the same hash is
// a no-op, and a Sold row with a different hash is a data-integrity error that
// is never overwritten.
func (svc *InvoicehubService) CommitPurchase(ctx context.Context, invoiceID int64, investorID int64, txHash string) (*models.Invoice, error) {
	if txHash == "" {
		return nil, fmt.Errorf("%w: commit requires a transaction hash", ErrValidation)
	}
	invoice, err := svc.FindInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status == common.InvoiceStatusSold {
		if invoice.BlockchainTxHash == txHash {
			return invoice, nil
		}
		return nil, fmt.Errorf("%w: invoice %d sold with tx %s, refusing commit of tx %s", ErrDataIntegrity, invoiceID, invoice.BlockchainTxHash, txHash)
	}
	if invoice.Status != common.InvoiceStatusSettling && invoice.Status != common.InvoiceStatusSoldUnsynced {
		return nil, fmt.Errorf("%w: cannot commit purchase of invoice in status %s", ErrConflict, invoice.Status)
	}
	if invoice.BlockchainTxHash != "" && invoice.BlockchainTxHash != txHash {
		return nil, fmt.Errorf("%w: invoice %d retained tx %s, refusing commit of tx %s", ErrDataIntegrity, invoiceID, invoice.BlockchainTxHash, txHash)
	}
	if investorID == 0 {
		investorID = invoice.SettlingInvestorID
	}
	if investorID == 0 {
		return nil, fmt.Errorf("cannot attribute purchase of invoice %d: no investor recorded", invoiceID)
	}

	err = svc.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*models.Invoice)(nil)).
			Set("status = ?", common.InvoiceStatusSold).
			Set("blockchain_tx_hash = ?", txHash).
			Set("sold_at = ?", time.Now()).
			Set("error_message = NULL").
			Set("updated_at = ?", time.Now()).
			Where("id = ?", invoiceID).
			Where("status IN (?)", bun.In([]string{common.InvoiceStatusSettling, common.InvoiceStatusSoldUnsynced})).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			// a concurrent reconciliation got here first; the outer
			// re-read decides whether that is benign
			return nil
		}
		purchase := models.Purchase{
			InvoiceID:  invoiceID,
			InvestorID: investorID,
			TxHash:     txHash,
			Price:      invoice.ListedPrice.Decimal,
		}
		// the partial unique index keeps this append-only with one live row
		if _, err := tx.NewInsert().Model(&purchase).Ignore().Exec(ctx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		// The on-chain event is authoritative. Park the row in SoldUnsynced
		// with the hash retained so a reconciliation retry can finish the
		// job; if even that write fails the hash still travels in the error.
		svc.markSoldUnsynced(invoiceID, txHash)
		sentry.CaptureException(err)
		return nil, &SyncError{InvoiceID: invoiceID, TxHash: txHash, Err: err}
	}

	invoice, err = svc.FindInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status == common.InvoiceStatusSold && invoice.BlockchainTxHash != txHash {
		return nil, fmt.Errorf("%w: invoice %d sold with tx %s, refusing commit of tx %s", ErrDataIntegrity, invoiceID, invoice.BlockchainTxHash, txHash)
	}
	svc.Logger.Infof("Settled invoice: invoice_id:%v investor_id:%v tx_hash:%s", invoiceID, investorID, txHash)
	svc.InvoicePubSub.Publish(common.InvoiceStatusSold, *invoice)
	return invoice, nil
}

// markSoldUnsynced is a best-effort fallback write on a fresh context; the
// request context may already be dead when the commit fails.
func (svc *InvoicehubService) markSoldUnsynced(invoiceID int64, txHash string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(svc.Config.DatabaseTimeout)*time.Second)
	defer cancel()
	applied, _, err := svc.conditionalUpdateInvoice(ctx, invoiceID,
		[]string{common.InvoiceStatusSettling},
		func(q *bun.UpdateQuery) {
			q.Set("status = ?", common.InvoiceStatusSoldUnsynced).
				Set("blockchain_tx_hash = ?", txHash)
		})
	if err != nil || !applied {
		svc.Logger.Errorf("Could not flag invoice as unsynced: invoice_id:%v tx_hash:%s error: %v", invoiceID, txHash, err)
		return
	}
	svc.Logger.Errorf("Invoice flagged unsynced, reconciliation required: invoice_id:%v tx_hash:%s", invoiceID, txHash)
}

func (svc *InvoicehubService) recordInvoiceError(invoiceID int64, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(svc.Config.DatabaseTimeout)*time.Second)
	defer cancel()
	_, _, err := svc.conditionalUpdateInvoice(ctx, invoiceID,
		[]string{common.InvoiceStatusSettling},
		func(q *bun.UpdateQuery) {
			q.Set("error_message = ?", cause.Error())
		})
	if err != nil {
		svc.Logger.Errorf("Could not record invoice error: invoice_id:%v error: %v", invoiceID, err)
	}
}

// RollbackPurchase returns a Settling invoice to Listed after a failed or
// abandoned ledger step. Only the investor holding the settling lock may call
// it, and only when the ledger confirms no purchase was broadcast.
func (svc *InvoicehubService) RollbackPurchase(ctx context.Context, userID int64, invoiceID int64) (*models.Invoice, error) {
	user, err := svc.AuthorizeAction(ctx, userID, ActionBuyInvoice)
	if err != nil {
		return nil, err
	}
	invoice, err := svc.FindInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status == common.InvoiceStatusSettling && invoice.SettlingInvestorID != user.ID {
		return nil, fmt.Errorf("%w: settlement belongs to another investor", ErrAuthorization)
	}
	return svc.RollbackListing(ctx, invoiceID)
}

// RollbackListing is the operator variant of the rollback, used by the admin
// endpoint and the reconciliation tooling.
func (svc *InvoicehubService) RollbackListing(ctx context.Context, invoiceID int64) (*models.Invoice, error) {
	invoice, err := svc.FindInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != common.InvoiceStatusSettling {
		return nil, fmt.Errorf("%w: cannot roll back invoice in status %s", ErrConflict, invoice.Status)
	}
	available, err := svc.LedgerClient.IsInvoiceAvailable(ctx, invoice.ExternalID)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, fmt.Errorf("%w: invoice is no longer available on chain, settlement must be committed instead", ErrConflict)
	}
	applied, currentStatus, err := svc.conditionalUpdateInvoice(ctx, invoiceID,
		[]string{common.InvoiceStatusSettling},
		func(q *bun.UpdateQuery) {
			q.Set("status = ?", common.InvoiceStatusListed).
				Set("settling_investor_id = NULL").
				Set("error_message = NULL")
		})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: invoice moved to status %s", ErrConflict, currentStatus)
	}
	svc.Logger.Infof("Rolled back settlement: invoice_id:%v", invoiceID)
	return svc.FindInvoice(ctx, invoiceID)
}

// GetUnsyncedSettlements lists invoices whose ledger side is final but whose
// store commit is still outstanding.
func (svc *InvoicehubService) GetUnsyncedSettlements(ctx context.Context) ([]models.Invoice, error) {
	invoices := []models.Invoice{}
	err := svc.DB.NewSelect().Model(&invoices).
		Where("status = ?", common.InvoiceStatusSoldUnsynced).
		Scan(ctx)
	return invoices, err
}

func (svc *InvoicehubService) GetStaleSettlements(ctx context.Context, olderThan time.Time) ([]models.Invoice, error) {
	invoices := []models.Invoice{}
	err := svc.DB.NewSelect().Model(&invoices).
		Where("status = ?", common.InvoiceStatusSettling).
		Where("updated_at < ?", olderThan).
		Scan(ctx)
	return invoices, err
}

// CheckPendingSettlements re-applies the store commit for every unsynced
// invoice and reports Settling rows that need operator attention. Safe to run
// concurrently with live traffic: the commit is idempotent.
func (svc *InvoicehubService) CheckPendingSettlements(ctx context.Context) error {
	unsynced, err := svc.GetUnsyncedSettlements(ctx)
	if err != nil {
		return err
	}
	svc.Logger.Infof("Found %d unsynced settlements", len(unsynced))
	for _, invoice := range unsynced {
		invoice := invoice
		err := backoff.Retry(func() error {
			_, commitErr := svc.CommitPurchase(ctx, invoice.ID, 0, invoice.BlockchainTxHash)
			if errors.Is(commitErr, ErrDataIntegrity) {
				return backoff.Permanent(commitErr)
			}
			return commitErr
		}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx))
		if err != nil {
			sentry.CaptureException(err)
			svc.Logger.Errorf("Could not re-apply settlement: invoice_id:%v tx_hash:%s error: %v", invoice.ID, invoice.BlockchainTxHash, err)
		}
	}

	stale, err := svc.GetStaleSettlements(ctx, time.Now().Add(-time.Duration(svc.Config.SettlementCheckInterval)*time.Second))
	if err != nil {
		return err
	}
	for _, invoice := range stale {
		onChain, err := svc.LedgerClient.GetInvoice(ctx, invoice.ExternalID)
		if err != nil {
			svc.Logger.Errorf("Could not check chain state: invoice_id:%v error: %v", invoice.ID, err)
			continue
		}
		if onChain.IsSold {
			// the purchase event carries the tx hash; the event routine
			// will commit it. Here we only make the disagreement visible.
			svc.Logger.Errorf("Invoice sold on chain but still Settling in store: invoice_id:%v buyer:%s", invoice.ID, onChain.Buyer)
			continue
		}
		svc.Logger.Infof("Invoice still Settling and available on chain, awaiting retry or rollback: invoice_id:%v", invoice.ID)
	}
	return nil
}
