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

type AuthTestSuite struct {
	TestSuite
	service *service.InvoicehubService
	users   map[string]testUser
}

func (suite *AuthTestSuite) SetupSuite() {
	svc, err := InvoicehubTestServiceInit(NewMockMarketplace(), "auth_test")
	if err != nil {
		log.Fatalf("Error initializing test service: %v", err)
	}
	svc.Config.AllowAccountCreation = true
	suite.service = svc
	users, err := createTestUsers(svc)
	if err != nil {
		log.Fatalf("Error creating test users: %v", err)
	}
	suite.users = users

	e := newTestEcho()
	e.POST("/auth", controllers.NewAuthController(svc).Auth)
	e.POST("/create", controllers.NewCreateUserController(svc).CreateUser)
	secured := e.Group("", tokens.Middleware(svc.Config.JWTSecret))
	invoiceCtrl := controllers.NewInvoiceController(svc)
	secured.POST("/invoices", invoiceCtrl.CreateInvoice)
	secured.POST("/invoices/:id/acknowledge", controllers.NewAcknowledgeController(svc).Acknowledge)
	secured.POST("/invoices/:id/list", controllers.NewListInvoiceController(svc).ListInvoice)
	secured.POST("/invoices/:id/buy", controllers.NewBuyController(svc).Buy)
	suite.echo = e
}

func (suite *AuthTestSuite) TearDownTest() {
	assert.NoError(suite.T(), clearTable(suite.service, "purchases"))
	assert.NoError(suite.T(), clearTable(suite.service, "invoices"))
}

func (suite *AuthTestSuite) TestRegisterAndLogin() {
	rec := suite.requestJSON(http.MethodPost, "/create", "", &controllers.CreateUserRequestBody{
		Email:    "frank@msme.example",
		Password: "nZ3@6tWp$kV8bL",
		Role:     "MSME",
	})
	assertStatus(&suite.TestSuite, rec, http.StatusOK)
	var created controllers.CreateUserResponseBody
	assert.NoError(suite.T(), json.NewDecoder(rec.Body).Decode(&created))
	// roles are stored normalized
	assert.Equal(suite.T(), common.RoleMSME, created.Role)
	assert.Equal(suite.T(), "frank@msme.example", created.Login)

	rec = suite.requestJSON(http.MethodPost, "/auth", "", &controllers.AuthRequestBody{
		Login:    "frank@msme.example",
		Password: "nZ3@6tWp$kV8bL",
	})
	assertStatus(&suite.TestSuite, rec, http.StatusOK)
	var authResp controllers.AuthResponseBody
	assert.NoError(suite.T(), json.NewDecoder(rec.Body).Decode(&authResp))
	assert.NotEmpty(suite.T(), authResp.AccessToken)
	assert.NotEmpty(suite.T(), authResp.RefreshToken)

	// refresh token exchange
	rec = suite.requestJSON(http.MethodPost, "/auth", "", &controllers.AuthRequestBody{
		RefreshToken: authResp.RefreshToken,
	})
	assertStatus(&suite.TestSuite, rec, http.StatusOK)
}

func (suite *AuthTestSuite) TestRejectsUnknownRole() {
	rec := suite.requestJSON(http.MethodPost, "/create", "", &controllers.CreateUserRequestBody{
		Email:    "grace@example.com",
		Password: "wC9&1dRf!mY4xH",
		Role:     "admin",
	})
	assertStatus(&suite.TestSuite, rec, http.StatusBadRequest)
}

func (suite *AuthTestSuite) TestRejectsDuplicateEmail() {
	rec := suite.requestJSON(http.MethodPost, "/create", "", &controllers.CreateUserRequestBody{
		Email:    suite.users[common.RoleMSME].User.Email,
		Password: "wC9&1dRf!mY4xH",
		Role:     common.RoleMSME,
	})
	assertStatus(&suite.TestSuite, rec, http.StatusBadRequest)
}

func (suite *AuthTestSuite) TestBadPassword() {
	rec := suite.requestJSON(http.MethodPost, "/auth", "", &controllers.AuthRequestBody{
		Login:    suite.users[common.RoleMSME].User.Login,
		Password: "wrong",
	})
	assertStatus(&suite.TestSuite, rec, http.StatusUnauthorized)
}

func (suite *AuthTestSuite) TestMissingToken() {
	rec := suite.requestJSON(http.MethodPost, "/invoices", "", &controllers.CreateInvoiceRequestBody{
		InvoiceNumber: "INV-100",
		Amount:        decimal.NewFromInt(1000),
		DueDate:       time.Now().Add(24 * time.Hour),
		BuyerEmail:    "bob@buyer.example",
	})
	assertStatus(&suite.TestSuite, rec, http.StatusUnauthorized)
}

// every transition is gated on the role stored in the profile row, so a
// valid token with the wrong role is still refused
func (suite *AuthTestSuite) TestRoleGates() {
	ctx := context.Background()
	invoice, err := suite.service.CreateInvoice(ctx, suite.users[common.RoleMSME].User.ID, service.CreateInvoiceParams{
		InvoiceNumber: "INV-101",
		Amount:        decimal.NewFromInt(10000),
		DueDate:       time.Now().Add(30 * 24 * time.Hour),
		BuyerEmail:    suite.users[common.RoleBuyer].User.Email,
	})
	assert.NoError(suite.T(), err)

	// investors cannot create
	rec := suite.requestJSON(http.MethodPost, "/invoices", suite.users[common.RoleInvestor].Token, &controllers.CreateInvoiceRequestBody{
		InvoiceNumber: "INV-102",
		Amount:        decimal.NewFromInt(1000),
		DueDate:       time.Now().Add(24 * time.Hour),
		BuyerEmail:    suite.users[common.RoleBuyer].User.Email,
	})
	assertStatus(&suite.TestSuite, rec, http.StatusForbidden)

	// msme cannot acknowledge
	rec = suite.requestJSON(http.MethodPost, "/invoices/"+itoa(invoice.ID)+"/acknowledge", suite.users[common.RoleMSME].Token, nil)
	assertStatus(&suite.TestSuite, rec, http.StatusForbidden)

	// buyers cannot list
	rec = suite.requestJSON(http.MethodPost, "/invoices/"+itoa(invoice.ID)+"/list", suite.users[common.RoleBuyer].Token, &controllers.ListInvoiceRequestBody{
		Price: decimal.NewFromInt(9000),
	})
	assertStatus(&suite.TestSuite, rec, http.StatusForbidden)

	// buyers cannot buy either, only investors hold that capability
	rec = suite.requestJSON(http.MethodPost, "/invoices/"+itoa(invoice.ID)+"/buy", suite.users[common.RoleBuyer].Token, nil)
	assertStatus(&suite.TestSuite, rec, http.StatusForbidden)
}

// ownership is checked on top of the role matrix
func (suite *AuthTestSuite) TestOwnershipGates() {
	ctx := context.Background()
	invoice, err := suite.service.CreateInvoice(ctx, suite.users[common.RoleMSME].User.ID, service.CreateInvoiceParams{
		InvoiceNumber: "INV-103",
		Amount:        decimal.NewFromInt(10000),
		DueDate:       time.Now().Add(30 * 24 * time.Hour),
		BuyerEmail:    suite.users[common.RoleBuyer].User.Email,
	})
	assert.NoError(suite.T(), err)

	// a different buyer than the invoice addresses may not acknowledge
	stranger, err := suite.service.RegisterUser(ctx, service.RegisterUserParams{
		Email:    "heidi@buyer.example",
		Password: "sD2*7gVm@pQ5uK",
		Role:     common.RoleBuyer,
	})
	assert.NoError(suite.T(), err)

	_, err = suite.service.AcknowledgeInvoice(ctx, stranger.ID, invoice.ID)
	assert.ErrorIs(suite.T(), err, service.ErrAuthorization)

	// another msme cannot list someone else's invoice
	otherMsme, err := suite.service.RegisterUser(ctx, service.RegisterUserParams{
		Email:    "ivan@msme.example",
		Password: "fG8!5cXn&wB3eT",
		Role:     common.RoleMSME,
	})
	assert.NoError(suite.T(), err)
	_, err = suite.service.AcknowledgeInvoice(ctx, suite.users[common.RoleBuyer].User.ID, invoice.ID)
	assert.NoError(suite.T(), err)
	_, err = suite.service.ListInvoice(ctx, otherMsme.ID, invoice.ID, decimal.NewFromInt(9000))
	assert.ErrorIs(suite.T(), err, service.ErrAuthorization)
}

func (suite *AuthTestSuite) TestDeactivatedAccount() {
	ctx := context.Background()
	user, err := suite.service.RegisterUser(ctx, service.RegisterUserParams{
		Email:    "judy@investor.example",
		Password: "kL6#9sZh$jN2rC",
		Role:     common.RoleInvestor,
	})
	assert.NoError(suite.T(), err)
	_, err = suite.service.DB.NewUpdate().Model(user).Set("deactivated = ?", true).WherePK().Exec(ctx)
	assert.NoError(suite.T(), err)

	_, _, err = suite.service.GenerateToken(ctx, user.Login, "kL6#9sZh$jN2rC", "")
	assert.Error(suite.T(), err)

	_, err = suite.service.AuthorizeAction(ctx, user.ID, service.ActionBuyInvoice)
	assert.ErrorIs(suite.T(), err, service.ErrAuthorization)
}

func TestAuthSuite(t *testing.T) {
	suite.Run(t, new(AuthTestSuite))
}
