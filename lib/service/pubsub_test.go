package service

import (
	"testing"

	"github.com/openmsme/invoicehub/common"
	"github.com/openmsme/invoicehub/db/models"
	"github.com/stretchr/testify/assert"
)

func TestPubsubFanout(t *testing.T) {
	ps := NewPubsub()
	first := make(chan models.Invoice, 1)
	second := make(chan models.Invoice, 1)
	other := make(chan models.Invoice, 1)

	ps.Subscribe(common.InvoiceStatusSold, first)
	subId := ps.Subscribe(common.InvoiceStatusSold, second)
	ps.Subscribe(common.InvoiceStatusListed, other)

	ps.Publish(common.InvoiceStatusSold, models.Invoice{ID: 7})
	assert.Equal(t, int64(7), (<-first).ID)
	assert.Equal(t, int64(7), (<-second).ID)
	assert.Empty(t, other)

	ps.Unsubscribe(subId, common.InvoiceStatusSold)
	ps.Publish(common.InvoiceStatusSold, models.Invoice{ID: 8})
	assert.Equal(t, int64(8), (<-first).ID)
	// the unsubscribed channel is closed
	_, open := <-second
	assert.False(t, open)
}

func TestPubsubPublishWithoutSubscribers(t *testing.T) {
	ps := NewPubsub()
	// must not block or panic
	ps.Publish(common.InvoiceStatusSold, models.Invoice{ID: 1})
}
