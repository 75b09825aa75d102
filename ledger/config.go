package ledger

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	GatewayURL   string `envconfig:"LEDGER_GATEWAY_URL" required:"true"`
	GatewayToken string `envconfig:"LEDGER_GATEWAY_TOKEN"`
	// PollInterval is the event long-poll wait in seconds.
	PollInterval int `envconfig:"LEDGER_POLL_INTERVAL" default:"5"`
}

func LoadConfig() (c *Config, err error) {
	c = &Config{}
	err = envconfig.Process("", c)
	if err != nil {
		return nil, err
	}
	return c, nil
}
