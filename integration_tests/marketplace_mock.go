package integration_tests

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openmsme/invoicehub/common"
	"github.com/openmsme/invoicehub/ledger"
	"github.com/shopspring/decimal"
)

type mockSale struct {
	TxHash string
	Buyer  string
	At     time.Time
}

// MockMarketplace is an in-memory stand-in for the chain gateway. Failure
// modes can be injected per call.
type MockMarketplace struct {
	mu        sync.Mutex
	listings  map[string]decimal.Decimal
	sales     map[string]mockSale
	owners    map[string]string
	txCounter int

	// NextTxHash overrides the generated hash of the next purchase
	NextTxHash string
	// PurchaseError is returned by the next PurchaseInvoice call, once
	PurchaseError error
	// PurchaseStarted is closed when a purchase enters the blocking phase
	PurchaseStarted chan struct{}
	// PurchaseRelease, when non-nil, blocks PurchaseInvoice until it is
	// closed or the caller abandons the request
	PurchaseRelease chan struct{}

	events    []ledger.Event
	eventCond *sync.Cond
}

func NewMockMarketplace() *MockMarketplace {
	m := &MockMarketplace{
		listings: map[string]decimal.Decimal{},
		sales:    map[string]mockSale{},
		owners:   map[string]string{},
	}
	m.eventCond = sync.NewCond(&m.mu)
	return m
}

func (m *MockMarketplace) GetGatewayAddress() string { return "mock.gateway.local" }

func (m *MockMarketplace) ListInvoice(ctx context.Context, invoiceID string, price decimal.Decimal) (*ledger.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, sold := m.sales[invoiceID]; sold {
		return nil, &ledger.Error{Kind: ledger.ErrorAlreadySoldOnChain, Message: "invoice already sold"}
	}
	m.listings[invoiceID] = price
	receipt := m.newReceiptLocked()
	m.appendEventLocked(ledger.Event{
		Type:      common.LedgerEventInvoiceListed,
		InvoiceID: invoiceID,
		Price:     price,
		TxHash:    receipt.TxHash,
	})
	return receipt, nil
}

func (m *MockMarketplace) PurchaseInvoice(ctx context.Context, invoiceID string) (*ledger.Receipt, error) {
	m.mu.Lock()
	if m.PurchaseStarted != nil {
		close(m.PurchaseStarted)
		m.PurchaseStarted = nil
	}
	release := m.PurchaseRelease
	m.mu.Unlock()

	if release != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PurchaseError != nil {
		err := m.PurchaseError
		m.PurchaseError = nil
		return nil, err
	}
	price, listed := m.listings[invoiceID]
	if !listed {
		if _, sold := m.sales[invoiceID]; sold {
			return nil, &ledger.Error{Kind: ledger.ErrorAlreadySoldOnChain, Message: "invoice already sold"}
		}
		return nil, &ledger.Error{Kind: ledger.ErrorUnknown, Message: "invoice not listed"}
	}
	receipt := m.newReceiptLocked()
	if m.NextTxHash != "" {
		receipt.TxHash = m.NextTxHash
		m.NextTxHash = ""
	}
	delete(m.listings, invoiceID)
	m.sales[invoiceID] = mockSale{TxHash: receipt.TxHash, At: time.Now()}
	m.appendEventLocked(ledger.Event{
		Type:      common.LedgerEventInvoicePurchased,
		InvoiceID: invoiceID,
		Price:     price,
		TxHash:    receipt.TxHash,
	})
	return receipt, nil
}

// InjectPurchase simulates a purchase submitted directly to the contract,
// bypassing this service. Reconciliation has to pick it up from the event.
func (m *MockMarketplace) InjectPurchase(invoiceID, txHash, buyer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	price := m.listings[invoiceID]
	delete(m.listings, invoiceID)
	m.sales[invoiceID] = mockSale{TxHash: txHash, Buyer: buyer, At: time.Now()}
	m.appendEventLocked(ledger.Event{
		Type:      common.LedgerEventInvoicePurchased,
		InvoiceID: invoiceID,
		Buyer:     buyer,
		Price:     price,
		TxHash:    txHash,
	})
}

func (m *MockMarketplace) GetInvoice(ctx context.Context, invoiceID string) (*ledger.OnChainInvoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sale, sold := m.sales[invoiceID]; sold {
		return &ledger.OnChainInvoice{
			InvoiceID:    invoiceID,
			MsmeOwner:    m.owners[invoiceID],
			IsSold:       true,
			Buyer:        sale.Buyer,
			PurchaseTime: sale.At,
		}, nil
	}
	if price, listed := m.listings[invoiceID]; listed {
		return &ledger.OnChainInvoice{
			InvoiceID: invoiceID,
			MsmeOwner: m.owners[invoiceID],
			Price:     price,
		}, nil
	}
	return nil, &ledger.Error{Kind: ledger.ErrorUnknown, Message: "unknown invoice"}
}

func (m *MockMarketplace) IsInvoiceAvailable(ctx context.Context, invoiceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, listed := m.listings[invoiceID]
	return listed, nil
}

func (m *MockMarketplace) SubscribeEvents(ctx context.Context, sinceID uint64) (ledger.EventSubscriptionWrapper, error) {
	go func() {
		// wake a blocked Recv when the subscription is abandoned
		<-ctx.Done()
		m.mu.Lock()
		m.eventCond.Broadcast()
		m.mu.Unlock()
	}()
	return &mockEventSubscriber{m: m, ctx: ctx, cursor: sinceID}, nil
}

func (m *MockMarketplace) newReceiptLocked() *ledger.Receipt {
	m.txCounter++
	return &ledger.Receipt{
		TxHash:      fmt.Sprintf("0x%064x", m.txCounter),
		BlockNumber: uint64(m.txCounter),
	}
}

func (m *MockMarketplace) appendEventLocked(ev ledger.Event) {
	ev.ID = uint64(len(m.events) + 1)
	ev.Timestamp = time.Now()
	m.events = append(m.events, ev)
	m.eventCond.Broadcast()
}

type mockEventSubscriber struct {
	m      *MockMarketplace
	ctx    context.Context
	cursor uint64
}

func (sub *mockEventSubscriber) Recv() (*ledger.Event, error) {
	sub.m.mu.Lock()
	defer sub.m.mu.Unlock()
	for {
		if err := sub.ctx.Err(); err != nil {
			return nil, err
		}
		if sub.cursor < uint64(len(sub.m.events)) {
			ev := sub.m.events[sub.cursor]
			sub.cursor = ev.ID
			return &ev, nil
		}
		sub.m.eventCond.Wait()
	}
}
