package service

import (
	"context"
)

func (svc *InvoicehubService) StartLedgerEventRoutine(ctx context.Context) (err error) {
	err = svc.LedgerEventSubscription(ctx)
	if err != nil && err != context.Canceled {
		// in case of an error in this routine, we want to restart the service
		return err
	}
	return nil
}

func (svc *InvoicehubService) StartPendingSettlementRoutine(ctx context.Context) (err error) {
	return svc.CheckPendingSettlements(ctx)
}
