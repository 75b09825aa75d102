package integration_tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/openmsme/invoicehub/common"
	"github.com/openmsme/invoicehub/db"
	"github.com/openmsme/invoicehub/db/migrations"
	"github.com/openmsme/invoicehub/db/models"
	"github.com/openmsme/invoicehub/ledger"
	"github.com/openmsme/invoicehub/lib"
	"github.com/openmsme/invoicehub/lib/responses"
	"github.com/openmsme/invoicehub/lib/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/uptrace/bun/migrate"
)

// InvoicehubTestServiceInit spins up a service on an in-memory sqlite
// database so the suite runs without Postgres. dbName keeps suites isolated
// from each other.
func InvoicehubTestServiceInit(ledgerClient ledger.MarketplaceClientWrapper, dbName string) (svc *service.InvoicehubService, err error) {
	c := &service.Config{
		DatabaseUri:             fmt.Sprintf("file:%s?mode=memory&cache=shared", dbName),
		DatabaseMaxConns:        1,
		DatabaseMaxIdleConns:    1,
		DatabaseConnMaxLifetime: 10,
		DatabaseTimeout:         10,
		JWTSecret:               []byte("SECRET"),
		JWTAccessTokenExpiry:    3600,
		JWTRefreshTokenExpiry:   3600,
		SettlementCheckInterval: 1,
	}

	dbConn, err := db.Open(c)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	ctx := context.Background()
	migrator := migrate.NewMigrator(dbConn, migrations.Migrations)
	err = migrator.Init(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init migrations: %w", err)
	}
	_, err = migrator.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	logger := lib.Logger(c.LogFilePath)
	svc = &service.InvoicehubService{
		Config:       c,
		DB:           dbConn,
		LedgerClient: ledgerClient,
		Logger:       logger,
	}

	svc.InvoicePubSub = service.NewPubsub()
	return svc, nil
}

func clearTable(svc *service.InvoicehubService, tableName string) error {
	_, err := svc.DB.Exec(fmt.Sprintf("DELETE FROM %s", tableName))
	return err
}

type testUser struct {
	User     *models.User
	Password string
	Token    string
}

// createTestUsers registers one profile per role and logs each of them in.
func createTestUsers(svc *service.InvoicehubService) (users map[string]testUser, err error) {
	users = map[string]testUser{}
	seed := []service.RegisterUserParams{
		{Email: "alice@msme.example", Password: "gK8#2mQz!vR5pW", Role: common.RoleMSME},
		{Email: "bob@buyer.example", Password: "tY4$9nLc@xD7sE", Role: common.RoleBuyer},
		{Email: "carol@investor.example", Password: "hU6%3jFb&zA1qN", Role: common.RoleInvestor, WalletAddress: "0xCAFE000000000000000000000000000000000001"},
	}
	for _, params := range seed {
		user, err := svc.RegisterUser(context.Background(), params)
		if err != nil {
			return nil, err
		}
		token, _, err := svc.GenerateToken(context.Background(), user.Login, params.Password, "")
		if err != nil {
			return nil, err
		}
		users[params.Role] = testUser{User: user, Password: params.Password, Token: token}
	}
	return users, nil
}

type TestSuite struct {
	suite.Suite
	echo *echo.Echo
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = responses.HTTPErrorHandler
	e.Validator = &lib.CustomValidator{Validator: validator.New()}
	return e
}

func (suite *TestSuite) requestJSON(method, target, token string, body interface{}) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var buf bytes.Buffer
	if body != nil {
		assert.NoError(suite.T(), json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}
	suite.echo.ServeHTTP(rec, req)
	return rec
}

func decodeErrResponse(suite *TestSuite, rec *httptest.ResponseRecorder) *responses.ErrorResponse {
	errorResponse := &responses.ErrorResponse{}
	assert.NoError(suite.T(), json.NewDecoder(rec.Body).Decode(errorResponse))
	return errorResponse
}

func assertStatus(suite *TestSuite, rec *httptest.ResponseRecorder, status int) {
	assert.Equal(suite.T(), status, rec.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
