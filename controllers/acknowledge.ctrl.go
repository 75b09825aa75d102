package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/openmsme/invoicehub/lib/responses"
	"github.com/openmsme/invoicehub/lib/service"
)

// AcknowledgeController : Acknowledge invoice controller struct
type AcknowledgeController struct {
	svc *service.InvoicehubService
}

func NewAcknowledgeController(svc *service.InvoicehubService) *AcknowledgeController {
	return &AcknowledgeController{svc: svc}
}

// Acknowledge confirms the debt behind an invoice. Only the buyer the invoice
// is addressed to may call it, repeating it is a no-op.
func (controller *AcknowledgeController) Acknowledge(c echo.Context) error {
	userID := c.Get("UserID").(int64)

	invoiceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	invoice, err := controller.svc.AcknowledgeInvoice(c.Request().Context(), userID, invoiceID)
	if err != nil {
		c.Logger().Errorf("Failed to acknowledge invoice: user_id:%v invoice_id:%v error: %v", userID, invoiceID, err)
		return errorResponse(c, err)
	}

	response := newInvoiceResponse(*invoice)
	return c.JSON(http.StatusOK, &response)
}
