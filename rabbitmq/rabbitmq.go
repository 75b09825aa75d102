package rabbitmq

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/gommon/log"
	"github.com/openmsme/invoicehub/db/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/ziflex/lecho/v3"
)

// bufPool is a classic buffer pool pattern that allows more clever reuse of
// heap memory. Instead of allocating new memory every time we encode an
// invoice we reuse buffers from this pool.
var bufPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

const (
	contentTypeJSON = "application/json"
)

type (
	SubscribeToInvoicesFunc = func() (transitions chan models.Invoice, err error)
	EncodeInvoiceFunc       = func(ctx context.Context, w io.Writer, invoice models.Invoice) error
)

type Client interface {
	StartPublishInvoices(context.Context, SubscribeToInvoicesFunc, EncodeInvoiceFunc) error
	// Close will close all connections to rabbitmq
	Close() error
}

type DefaultClient struct {
	conn *amqp.Connection

	// Publishers and consumers should use separate channels so consumers
	// stay isolated from flow control applied to publishing.
	publishChannel *amqp.Channel

	logger *lecho.Logger

	invoiceExchange         string
	invoiceExchangeType     string
	invoiceRoutingKeyPrefix string
}

type ClientOption = func(client *DefaultClient)

func WithInvoiceExchange(exchange string) ClientOption {
	return func(client *DefaultClient) {
		client.invoiceExchange = exchange
	}
}

func WithInvoiceExchangeType(exchangeType string) ClientOption {
	return func(client *DefaultClient) {
		client.invoiceExchangeType = exchangeType
	}
}

func WithInvoiceRoutingKeyPrefix(prefix string) ClientOption {
	return func(client *DefaultClient) {
		client.invoiceRoutingKeyPrefix = prefix
	}
}

func WithLogger(logger *lecho.Logger) ClientOption {
	return func(client *DefaultClient) {
		client.logger = logger
	}
}

// Dial sets up a connection to rabbitmq with a channel that is ready to publish
func Dial(uri string, options ...ClientOption) (Client, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, err
	}

	publishChannel, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	client := &DefaultClient{
		conn: conn,

		publishChannel: publishChannel,

		logger: lecho.New(
			os.Stdout,
			lecho.WithLevel(log.DEBUG),
			lecho.WithTimestamp(),
		),

		invoiceExchange:         "invoicehub_invoice",
		invoiceExchangeType:     "topic",
		invoiceRoutingKeyPrefix: "invoice",
	}

	for _, opt := range options {
		opt(client)
	}

	return client, nil
}

func (client *DefaultClient) Close() error { return client.conn.Close() }

func (client *DefaultClient) StartPublishInvoices(ctx context.Context, invoicesSubscribeFunc SubscribeToInvoicesFunc, payloadFunc EncodeInvoiceFunc) error {
	err := client.publishChannel.ExchangeDeclare(
		client.invoiceExchange,
		// topic exchanges route messages to queues based on a routing key
		client.invoiceExchangeType,
		// Durable and Non-Auto-Deleted exchanges will survive server restarts
		// and remain declared when there are no remaining bindings.
		true,
		false,
		// Non-Internal exchanges accept direct publishing
		false,
		// Nowait: we want a server response confirming the exchange exists
		false,
		nil,
	)
	if err != nil {
		return err
	}

	client.logger.Info("Starting rabbitmq publisher")

	transitions, err := invoicesSubscribeFunc()
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case invoice := <-transitions:
			err = client.publishToInvoiceExchange(ctx, invoice, payloadFunc)

			if err != nil {
				captureErr(client.logger, err)
			}
		}
	}
}

func (client *DefaultClient) publishToInvoiceExchange(ctx context.Context, invoice models.Invoice, payloadFunc EncodeInvoiceFunc) error {
	payload := bufPool.Get().(*bytes.Buffer)
	payload.Reset()
	defer bufPool.Put(payload)
	err := payloadFunc(ctx, payload, invoice)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("%s.%s", client.invoiceRoutingKeyPrefix, strings.ToLower(invoice.Status))

	err = client.publishChannel.PublishWithContext(ctx,
		client.invoiceExchange,
		key,
		false,
		false,
		amqp.Publishing{
			ContentType: contentTypeJSON,
			Body:        payload.Bytes(),
		},
	)
	if err != nil {
		captureErr(client.logger, err)
		return err
	}

	client.logger.Debugf("Successfully published invoice to rabbitmq with external id %s", invoice.ExternalID)

	return nil
}

func captureErr(logger *lecho.Logger, err error) {
	logger.Error(err)
	sentry.CaptureException(err)
}
