package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/ziflex/lecho/v3"
)

// GatewayClient talks JSON over HTTP to the chain gateway, which holds the
// signing keys and relays calls to the InvoiceMarketplace contract.
type GatewayClient struct {
	host   string
	token  string
	client *http.Client
	// pollWait is how long the gateway holds an empty /events long-poll
	pollWait time.Duration
	logger   *lecho.Logger
}

func NewGatewayClient(cfg *Config, logger *lecho.Logger, ctx context.Context) (*GatewayClient, error) {
	gw := &GatewayClient{
		host:  cfg.GatewayURL,
		token: cfg.GatewayToken,
		// purchases wait on external wallet confirmation, so no client
		// timeout; cancellation is the caller's ctx
		client:   &http.Client{},
		pollWait: time.Duration(cfg.PollInterval) * time.Second,
		logger:   logger,
	}
	// fail fast on a bad gateway url
	if _, err := url.Parse(cfg.GatewayURL); err != nil {
		return nil, err
	}
	return gw, nil
}

func (gw *GatewayClient) GetGatewayAddress() string {
	return gw.host
}

type gatewayErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type listRequestBody struct {
	Price string `json:"price"`
}

func (gw *GatewayClient) ListInvoice(ctx context.Context, invoiceID string, price decimal.Decimal) (*Receipt, error) {
	body, err := json.Marshal(&listRequestBody{Price: price.String()})
	if err != nil {
		return nil, err
	}
	receipt := Receipt{}
	err = gw.request(ctx, http.MethodPost, fmt.Sprintf("/invoices/%s/list", invoiceID), bytes.NewReader(body), &receipt)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (gw *GatewayClient) PurchaseInvoice(ctx context.Context, invoiceID string) (*Receipt, error) {
	receipt := Receipt{}
	err := gw.request(ctx, http.MethodPost, fmt.Sprintf("/invoices/%s/purchase", invoiceID), nil, &receipt)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (gw *GatewayClient) GetInvoice(ctx context.Context, invoiceID string) (*OnChainInvoice, error) {
	invoice := OnChainInvoice{}
	err := gw.request(ctx, http.MethodGet, fmt.Sprintf("/invoices/%s", invoiceID), nil, &invoice)
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (gw *GatewayClient) IsInvoiceAvailable(ctx context.Context, invoiceID string) (bool, error) {
	response := struct {
		Available bool `json:"available"`
	}{}
	err := gw.request(ctx, http.MethodGet, fmt.Sprintf("/invoices/%s/available", invoiceID), nil, &response)
	if err != nil {
		return false, err
	}
	return response.Available, nil
}

func (gw *GatewayClient) SubscribeEvents(ctx context.Context, sinceID uint64) (EventSubscriptionWrapper, error) {
	return &gatewayEventSubscriber{
		gw:     gw,
		ctx:    ctx,
		cursor: sinceID,
	}, nil
}

type gatewayEventSubscriber struct {
	gw      *GatewayClient
	ctx     context.Context
	cursor  uint64
	pending []Event
}

func (sub *gatewayEventSubscriber) Recv() (*Event, error) {
	for {
		if len(sub.pending) > 0 {
			ev := sub.pending[0]
			sub.pending = sub.pending[1:]
			sub.cursor = ev.ID
			return &ev, nil
		}
		if err := sub.ctx.Err(); err != nil {
			return nil, err
		}
		events := []Event{}
		err := sub.gw.request(sub.ctx, http.MethodGet, fmt.Sprintf("/events?after=%d", sub.cursor), nil, &events)
		if err != nil {
			return nil, err
		}
		if len(events) == 0 {
			select {
			case <-sub.ctx.Done():
				return nil, sub.ctx.Err()
			case <-time.After(sub.gw.pollWait):
			}
			continue
		}
		sub.pending = events
	}
}

func (gw *GatewayClient) request(ctx context.Context, method, endpoint string, body *bytes.Reader, response interface{}) error {
	var httpReq *http.Request
	var err error
	if body != nil {
		httpReq, err = http.NewRequestWithContext(ctx, method, fmt.Sprintf("%s%s", gw.host, endpoint), body)
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, method, fmt.Sprintf("%s%s", gw.host, endpoint), nil)
	}
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if gw.token != "" {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", gw.token))
	}
	resp, err := gw.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		errBody := gatewayErrorBody{}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr != nil || errBody.Code == "" {
			return &Error{Kind: ErrorUnknown, Message: fmt.Sprintf("gateway returned status %d for %s", resp.StatusCode, httpReq.URL)}
		}
		return newError(errBody.Code, errBody.Message)
	}
	return json.NewDecoder(resp.Body).Decode(response)
}
