package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/openmsme/invoicehub/lib/service"
)

// MarketplaceController : Marketplace feed controller struct
type MarketplaceController struct {
	svc *service.InvoicehubService
}

func NewMarketplaceController(svc *service.InvoicehubService) *MarketplaceController {
	return &MarketplaceController{svc: svc}
}

// GetListedInvoices returns every invoice currently buyable. Served from the
// response cache, a briefly stale feed is fine because the buy path re-checks
// status with a conditional write.
func (controller *MarketplaceController) GetListedInvoices(c echo.Context) error {
	invoices, err := controller.svc.ListedInvoices(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}

	response := make([]Invoice, len(invoices))
	for i, invoice := range invoices {
		response[i] = newInvoiceResponse(invoice)
	}
	return c.JSON(http.StatusOK, &GetInvoicesResponseBody{Invoices: response})
}
