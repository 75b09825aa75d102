package main

import (
	"context"
	"fmt"
	"log"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/openmsme/invoicehub/db"
	"github.com/openmsme/invoicehub/ledger"
	"github.com/openmsme/invoicehub/lib"
	"github.com/openmsme/invoicehub/lib/service"
)

// script to reconcile settlements between the marketplace contract and the database
func main() {

	c := &service.Config{}

	// Load configuration from environment variables
	err := godotenv.Load(".env")
	if err != nil {
		fmt.Println("Failed to load .env file")
	}
	err = envconfig.Process("", c)
	if err != nil {
		log.Fatalf("Error loading environment variables: %v", err)
	}

	// Setup logging to STDOUT or a configured log file
	logger := lib.Logger(c.LogFilePath)

	// Open a DB connection based on the configured DATABASE_URI
	dbConn, err := db.Open(c)
	if err != nil {
		logger.Fatalf("Error initializing db connection: %v", err)
	}

	startupCtx := context.Background()

	// Init the marketplace ledger client
	ledgerCfg, err := ledger.LoadConfig()
	if err != nil {
		logger.Fatalf("Error loading ledger config: %v", err)
	}
	ledgerClient, err := ledger.NewGatewayClient(ledgerCfg, logger, startupCtx)
	if err != nil {
		logger.Fatalf("Error initializing the ledger gateway connection: %v", err)
	}
	logger.Infof("Connected to ledger gateway: %s", ledgerClient.GetGatewayAddress())

	svc := &service.InvoicehubService{
		Config:        c,
		DB:            dbConn,
		LedgerClient:  ledgerClient,
		Logger:        logger,
		InvoicePubSub: service.NewPubsub(),
	}

	err = svc.CheckPendingSettlements(startupCtx)
	if err != nil {
		sentry.CaptureException(err)
		svc.Logger.Error(err)
	}
}
