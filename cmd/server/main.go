package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/openmsme/invoicehub/db"
	"github.com/openmsme/invoicehub/db/migrations"
	"github.com/openmsme/invoicehub/ledger"
	"github.com/openmsme/invoicehub/lib"
	"github.com/openmsme/invoicehub/lib/service"
	"github.com/openmsme/invoicehub/lib/tokens"
	"github.com/openmsme/invoicehub/lib/transport"
	"github.com/openmsme/invoicehub/rabbitmq"
	"github.com/uptrace/bun/migrate"
)

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

	// Migrate the DB
	startupCtx := context.Background()
	migrator := migrate.NewMigrator(dbConn, migrations.Migrations)
	err = migrator.Init(startupCtx)
	if err != nil {
		logger.Fatalf("Error initializing db migrator: %v", err)
	}
	_, err = migrator.Migrate(startupCtx)
	if err != nil {
		logger.Fatalf("Error migrating database: %v", err)
	}

	// Setup exception tracking with Sentry if configured
	// sentry init needs to happen before the echo middlewares are added
	if c.SentryDSN != "" {
		if err = sentry.Init(sentry.ClientOptions{
			Dsn:              c.SentryDSN,
			IgnoreErrors:     []string{"401"},
			EnableTracing:    c.SentryTracesSampleRate > 0,
			TracesSampleRate: c.SentryTracesSampleRate,
		}); err != nil {
			logger.Errorf("sentry init error: %v", err)
		}
	}

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

	// If no RABBITMQ_URI was provided we will not attempt to create a client
	// No rabbitmq features will be available in this case.
	var rabbitmqClient rabbitmq.Client
	if c.RabbitMQUri != "" {
		rabbitmqClient, err = rabbitmq.Dial(c.RabbitMQUri,
			rabbitmq.WithLogger(logger),
			rabbitmq.WithInvoiceExchange(c.RabbitMQInvoiceExchange),
			rabbitmq.WithInvoiceExchangeType(c.RabbitMQInvoiceExchangeType),
			rabbitmq.WithInvoiceRoutingKeyPrefix(c.RabbitMQInvoiceRoutingKeyPrefix),
		)
		if err != nil {
			logger.Fatal(err)
		}

		// close the connection gently at the end of the runtime
		defer rabbitmqClient.Close()
	}

	svc := &service.InvoicehubService{
		Config:         c,
		DB:             dbConn,
		LedgerClient:   ledgerClient,
		Logger:         logger,
		InvoicePubSub:  service.NewPubsub(),
		RabbitMQClient: rabbitmqClient,
	}

	//init echo server
	e := transport.InitEcho(c, logger)

	logMw := transport.CreateLoggingMiddleware(logger)
	// strict rate limit for requests that hit the ledger
	strictRateLimitMiddleware := transport.CreateRateLimitMiddleware(c.StrictRateLimit, c.BurstRateLimit)

	secured := e.Group("", tokens.Middleware(c.JWTSecret), logMw)
	securedWithStrictRateLimit := e.Group("", tokens.Middleware(c.JWTSecret), strictRateLimitMiddleware, logMw)

	transport.RegisterEndpoints(svc, e, secured, securedWithStrictRateLimit, strictRateLimitMiddleware, tokens.AdminTokenMiddleware(c.AdminToken), logMw)

	var backgroundWg sync.WaitGroup
	backGroundCtx, _ := signal.NotifyContext(context.Background(), os.Interrupt)

	// Follow marketplace contract events in the background
	backgroundWg.Add(1)
	go func() {
		err = svc.StartLedgerEventRoutine(backGroundCtx)
		if err != nil {
			sentry.CaptureException(err)
			//we want to restart in case of an error here
			svc.Logger.Fatal(err)
		}
		svc.Logger.Info("Ledger event routine done")
		backgroundWg.Done()
	}()

	// Periodically re-apply unsynced settlements
	if c.SettlementCheckInterval > 0 {
		backgroundWg.Add(1)
		go func() {
			defer backgroundWg.Done()
			ticker := time.NewTicker(time.Duration(c.SettlementCheckInterval) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-backGroundCtx.Done():
					svc.Logger.Info("Settlement check routine done")
					return
				case <-ticker.C:
					err = svc.StartPendingSettlementRoutine(backGroundCtx)
					if err != nil {
						sentry.CaptureException(err)
						//in case of an error here no restart is necessary
						svc.Logger.Error(err)
					}
				}
			}
		}()
	}

	//Start webhook subscription
	if svc.Config.WebhookUrl != "" {
		backgroundWg.Add(1)
		go func() {
			svc.StartWebhookSubscription(backGroundCtx)
			svc.Logger.Info("Webhook routine done")
			backgroundWg.Done()
		}()
	}

	//Start rabbit publisher
	if svc.RabbitMQClient != nil {
		backgroundWg.Add(1)
		go func() {
			err = svc.StartRabbitMqPublisher(backGroundCtx)
			if err != nil {
				svc.Logger.Error(err)
				sentry.CaptureException(err)
			}

			svc.Logger.Info("Rabbit invoice publisher done")
			backgroundWg.Done()
		}()
	}

	//Start Prometheus server if necessary
	if svc.Config.EnablePrometheus {
		go transport.StartPrometheusEcho(logger, svc, e)
	}

	// Start server
	go func() {
		if err := e.Start(fmt.Sprintf(":%v", c.Port)); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	<-backGroundCtx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
	//Wait for graceful shutdown of background routines
	backgroundWg.Wait()
	svc.Logger.Info("Invoicehub exiting gracefully. Goodbye.")
}
