package service

import (
	"github.com/openmsme/invoicehub/ledger"
	"github.com/openmsme/invoicehub/rabbitmq"
	"github.com/uptrace/bun"
	"github.com/ziflex/lecho/v3"
)

type InvoicehubService struct {
	Config         *Config
	DB             *bun.DB
	LedgerClient   ledger.MarketplaceClientWrapper
	Logger         *lecho.Logger
	InvoicePubSub  *Pubsub
	RabbitMQClient rabbitmq.Client
}
