package integration_tests

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/openmsme/invoicehub/common"
	"github.com/openmsme/invoicehub/db/models"
	"github.com/openmsme/invoicehub/lib/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type SettlementSyncTestSuite struct {
	TestSuite
	service     *service.InvoicehubService
	marketplace *MockMarketplace
	users       map[string]testUser
}

func (suite *SettlementSyncTestSuite) SetupSuite() {
	suite.marketplace = NewMockMarketplace()
	svc, err := InvoicehubTestServiceInit(suite.marketplace, "settlement_sync_test")
	if err != nil {
		log.Fatalf("Error initializing test service: %v", err)
	}
	suite.service = svc
	users, err := createTestUsers(svc)
	if err != nil {
		log.Fatalf("Error creating test users: %v", err)
	}
	suite.users = users
	suite.echo = newTestEcho()
}

func (suite *SettlementSyncTestSuite) TearDownTest() {
	assert.NoError(suite.T(), clearTable(suite.service, "purchases"))
	assert.NoError(suite.T(), clearTable(suite.service, "invoices"))
}

func (suite *SettlementSyncTestSuite) listedInvoice(amount, price int64) *models.Invoice {
	ctx := context.Background()
	invoice, err := suite.service.CreateInvoice(ctx, suite.users[common.RoleMSME].User.ID, service.CreateInvoiceParams{
		InvoiceNumber: "INV-042",
		Amount:        decimal.NewFromInt(amount),
		DueDate:       time.Now().Add(30 * 24 * time.Hour),
		BuyerEmail:    suite.users[common.RoleBuyer].User.Email,
	})
	assert.NoError(suite.T(), err)
	_, err = suite.service.AcknowledgeInvoice(ctx, suite.users[common.RoleBuyer].User.ID, invoice.ID)
	assert.NoError(suite.T(), err)
	invoice, err = suite.service.ListInvoice(ctx, suite.users[common.RoleMSME].User.ID, invoice.ID, decimal.NewFromInt(price))
	assert.NoError(suite.T(), err)
	return invoice
}

// hidePurchasesTable makes the store commit fail after the ledger purchase
// succeeded, the outage the SoldUnsynced state exists for.
func (suite *SettlementSyncTestSuite) hidePurchasesTable() {
	_, err := suite.service.DB.Exec("ALTER TABLE purchases RENAME TO purchases_hidden")
	assert.NoError(suite.T(), err)
}

func (suite *SettlementSyncTestSuite) restorePurchasesTable() {
	_, err := suite.service.DB.Exec("ALTER TABLE purchases_hidden RENAME TO purchases")
	assert.NoError(suite.T(), err)
}

func (suite *SettlementSyncTestSuite) TestStoreOutageRetainsTxHash() {
	ctx := context.Background()
	invoice := suite.listedInvoice(10000, 9000)
	suite.marketplace.NextTxHash = "0xabc"

	suite.hidePurchasesTable()
	_, err := suite.service.BuyInvoice(ctx, suite.users[common.RoleInvestor].User.ID, invoice.ID)
	var syncErr *service.SyncError
	assert.True(suite.T(), errors.As(err, &syncErr))
	assert.Equal(suite.T(), "0xabc", syncErr.TxHash)
	suite.restorePurchasesTable()

	// the invoice is parked, not lost: SoldUnsynced with the hash retained
	parked, err := suite.service.FindInvoice(ctx, invoice.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), common.InvoiceStatusSoldUnsynced, parked.Status)
	assert.Equal(suite.T(), "0xabc", parked.BlockchainTxHash)

	// the background scan commits it exactly once
	assert.NoError(suite.T(), suite.service.CheckPendingSettlements(ctx))
	settled, err := suite.service.FindInvoice(ctx, invoice.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), common.InvoiceStatusSold, settled.Status)
	assert.Equal(suite.T(), "0xabc", settled.BlockchainTxHash)

	purchase, err := suite.service.FindLivePurchase(ctx, invoice.ID)
	assert.NoError(suite.T(), err)
	assert.NotNil(suite.T(), purchase)
	assert.Equal(suite.T(), suite.users[common.RoleInvestor].User.ID, purchase.InvestorID)
	assert.Equal(suite.T(), "0xabc", purchase.TxHash)

	// re-running the scan changes nothing
	assert.NoError(suite.T(), suite.service.CheckPendingSettlements(ctx))
	again, err := suite.service.FindInvoice(ctx, invoice.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), common.InvoiceStatusSold, again.Status)
}

func (suite *SettlementSyncTestSuite) TestCommitRefusesDifferentHash() {
	ctx := context.Background()
	invoice := suite.listedInvoice(10000, 9000)
	suite.marketplace.NextTxHash = "0xabc"

	_, err := suite.service.BuyInvoice(ctx, suite.users[common.RoleInvestor].User.ID, invoice.ID)
	assert.NoError(suite.T(), err)

	// same hash again is a no-op
	_, err = suite.service.CommitPurchase(ctx, invoice.ID, 0, "0xabc")
	assert.NoError(suite.T(), err)

	// a different hash for a Sold invoice is a data-integrity failure
	_, err = suite.service.CommitPurchase(ctx, invoice.ID, 0, "0xdef")
	assert.True(suite.T(), errors.Is(err, service.ErrDataIntegrity))
}

func (suite *SettlementSyncTestSuite) TestLedgerEventReconcilesDirectPurchase() {
	ctx := context.Background()
	invoice := suite.listedInvoice(10000, 9000)

	// the investor buys straight through the contract, bypassing us
	suite.marketplace.InjectPurchase(invoice.ExternalID, "0xfeed", suite.users[common.RoleInvestor].User.WalletAddress)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := suite.service.ConnectLedgerEventSubscription(subCtx)
	assert.NoError(suite.T(), err)
	for {
		event, err := stream.Recv()
		assert.NoError(suite.T(), err)
		assert.NoError(suite.T(), suite.service.ProcessLedgerEvent(ctx, event))
		if event.Type == common.LedgerEventInvoicePurchased && event.InvoiceID == invoice.ExternalID {
			break
		}
	}

	settled, err := suite.service.FindInvoice(ctx, invoice.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), common.InvoiceStatusSold, settled.Status)
	assert.Equal(suite.T(), "0xfeed", settled.BlockchainTxHash)

	purchase, err := suite.service.FindLivePurchase(ctx, invoice.ID)
	assert.NoError(suite.T(), err)
	assert.NotNil(suite.T(), purchase)
	assert.Equal(suite.T(), suite.users[common.RoleInvestor].User.ID, purchase.InvestorID)
}

func TestSettlementSyncSuite(t *testing.T) {
	suite.Run(t, new(SettlementSyncTestSuite))
}
