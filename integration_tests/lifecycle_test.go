package integration_tests

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/openmsme/invoicehub/common"
	"github.com/openmsme/invoicehub/controllers"
	"github.com/openmsme/invoicehub/lib/service"
	"github.com/openmsme/invoicehub/lib/tokens"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type LifecycleTestSuite struct {
	TestSuite
	service     *service.InvoicehubService
	marketplace *MockMarketplace
	users       map[string]testUser
}

func (suite *LifecycleTestSuite) SetupSuite() {
	suite.marketplace = NewMockMarketplace()
	svc, err := InvoicehubTestServiceInit(suite.marketplace, "lifecycle_test")
	if err != nil {
		log.Fatalf("Error initializing test service: %v", err)
	}
	suite.service = svc
	users, err := createTestUsers(svc)
	if err != nil {
		log.Fatalf("Error creating test users: %v", err)
	}
	suite.users = users

	e := newTestEcho()
	secured := e.Group("", tokens.Middleware(svc.Config.JWTSecret))
	invoiceCtrl := controllers.NewInvoiceController(svc)
	secured.POST("/invoices", invoiceCtrl.CreateInvoice)
	secured.GET("/invoices", invoiceCtrl.GetInvoices)
	secured.GET("/invoices/:id", invoiceCtrl.GetInvoice)
	secured.POST("/invoices/:id/acknowledge", controllers.NewAcknowledgeController(svc).Acknowledge)
	secured.POST("/invoices/:id/list", controllers.NewListInvoiceController(svc).ListInvoice)
	e.GET("/marketplace", controllers.NewMarketplaceController(svc).GetListedInvoices)
	suite.echo = e
}

func (suite *LifecycleTestSuite) TearDownTest() {
	assert.NoError(suite.T(), clearTable(suite.service, "purchases"))
	assert.NoError(suite.T(), clearTable(suite.service, "invoices"))
}

func (suite *LifecycleTestSuite) createInvoice(amount int64) controllers.Invoice {
	rec := suite.requestJSON(http.MethodPost, "/invoices", suite.users[common.RoleMSME].Token, &controllers.CreateInvoiceRequestBody{
		InvoiceNumber: "INV-001",
		Amount:        decimal.NewFromInt(amount),
		DueDate:       time.Now().Add(30 * 24 * time.Hour),
		BuyerEmail:    suite.users[common.RoleBuyer].User.Email,
	})
	assertStatus(&suite.TestSuite, rec, http.StatusOK)
	var invoice controllers.Invoice
	assert.NoError(suite.T(), json.NewDecoder(rec.Body).Decode(&invoice))
	return invoice
}

func (suite *LifecycleTestSuite) TestCreateInvoice() {
	invoice := suite.createInvoice(10000)
	assert.Equal(suite.T(), common.InvoiceStatusPending, invoice.Status)
	assert.NotEmpty(suite.T(), invoice.ExternalID)
	assert.False(suite.T(), invoice.BuyerAcknowledged)

	// creating again is not idempotent: a second row appears
	suite.createInvoice(10000)
	rec := suite.requestJSON(http.MethodGet, "/invoices", suite.users[common.RoleMSME].Token, nil)
	assertStatus(&suite.TestSuite, rec, http.StatusOK)
	var list controllers.GetInvoicesResponseBody
	assert.NoError(suite.T(), json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(suite.T(), 2, len(list.Invoices))
}

func (suite *LifecycleTestSuite) TestAcknowledgeIsIdempotent() {
	invoice := suite.createInvoice(10000)

	target := "/invoices/" + itoa(invoice.ID) + "/acknowledge"
	rec := suite.requestJSON(http.MethodPost, target, suite.users[common.RoleBuyer].Token, nil)
	assertStatus(&suite.TestSuite, rec, http.StatusOK)
	var acked controllers.Invoice
	assert.NoError(suite.T(), json.NewDecoder(rec.Body).Decode(&acked))
	assert.Equal(suite.T(), common.InvoiceStatusAcknowledged, acked.Status)
	assert.True(suite.T(), acked.BuyerAcknowledged)

	// repeating the call succeeds without another transition
	rec = suite.requestJSON(http.MethodPost, target, suite.users[common.RoleBuyer].Token, nil)
	assertStatus(&suite.TestSuite, rec, http.StatusOK)
	assert.NoError(suite.T(), json.NewDecoder(rec.Body).Decode(&acked))
	assert.Equal(suite.T(), common.InvoiceStatusAcknowledged, acked.Status)
}

func (suite *LifecycleTestSuite) TestListRequiresAcknowledgement() {
	invoice := suite.createInvoice(10000)

	rec := suite.requestJSON(http.MethodPost, "/invoices/"+itoa(invoice.ID)+"/list", suite.users[common.RoleMSME].Token, &controllers.ListInvoiceRequestBody{
		Price: decimal.NewFromInt(9000),
	})
	assertStatus(&suite.TestSuite, rec, http.StatusConflict)
}

func (suite *LifecycleTestSuite) TestListAndReprice() {
	invoice := suite.createInvoice(10000)
	_, err := suite.service.AcknowledgeInvoice(context.Background(), suite.users[common.RoleBuyer].User.ID, invoice.ID)
	assert.NoError(suite.T(), err)

	target := "/invoices/" + itoa(invoice.ID) + "/list"
	rec := suite.requestJSON(http.MethodPost, target, suite.users[common.RoleMSME].Token, &controllers.ListInvoiceRequestBody{
		Price: decimal.NewFromInt(9000),
	})
	assertStatus(&suite.TestSuite, rec, http.StatusOK)
	var listed controllers.Invoice
	assert.NoError(suite.T(), json.NewDecoder(rec.Body).Decode(&listed))
	assert.Equal(suite.T(), common.InvoiceStatusListed, listed.Status)
	assert.True(suite.T(), decimal.NewFromInt(9000).Equal(listed.ListedPrice))

	// the listing reached the contract
	available, err := suite.marketplace.IsInvoiceAvailable(context.Background(), invoice.ExternalID)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), available)

	// same price again is a no-op success
	rec = suite.requestJSON(http.MethodPost, target, suite.users[common.RoleMSME].Token, &controllers.ListInvoiceRequestBody{
		Price: decimal.NewFromInt(9000),
	})
	assertStatus(&suite.TestSuite, rec, http.StatusOK)

	// re-pricing while Listed is allowed
	rec = suite.requestJSON(http.MethodPost, target, suite.users[common.RoleMSME].Token, &controllers.ListInvoiceRequestBody{
		Price: decimal.NewFromInt(8500),
	})
	assertStatus(&suite.TestSuite, rec, http.StatusOK)
	assert.NoError(suite.T(), json.NewDecoder(rec.Body).Decode(&listed))
	assert.True(suite.T(), decimal.NewFromInt(8500).Equal(listed.ListedPrice))
}

func (suite *LifecycleTestSuite) TestMarketplaceFeed() {
	invoice := suite.createInvoice(10000)
	_, err := suite.service.AcknowledgeInvoice(context.Background(), suite.users[common.RoleBuyer].User.ID, invoice.ID)
	assert.NoError(suite.T(), err)
	_, err = suite.service.ListInvoice(context.Background(), suite.users[common.RoleMSME].User.ID, invoice.ID, decimal.NewFromInt(9000))
	assert.NoError(suite.T(), err)

	rec := suite.requestJSON(http.MethodGet, "/marketplace", "", nil)
	assertStatus(&suite.TestSuite, rec, http.StatusOK)
	var feed controllers.GetInvoicesResponseBody
	assert.NoError(suite.T(), json.NewDecoder(rec.Body).Decode(&feed))
	assert.Equal(suite.T(), 1, len(feed.Invoices))
	assert.Equal(suite.T(), common.InvoiceStatusListed, feed.Invoices[0].Status)
}

func (suite *LifecycleTestSuite) TestVisibility() {
	invoice := suite.createInvoice(10000)

	// the addressed buyer sees it
	rec := suite.requestJSON(http.MethodGet, "/invoices/"+itoa(invoice.ID), suite.users[common.RoleBuyer].Token, nil)
	assertStatus(&suite.TestSuite, rec, http.StatusOK)

	// a Pending invoice is hidden from investors
	rec = suite.requestJSON(http.MethodGet, "/invoices/"+itoa(invoice.ID), suite.users[common.RoleInvestor].Token, nil)
	assertStatus(&suite.TestSuite, rec, http.StatusNotFound)
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleTestSuite))
}
