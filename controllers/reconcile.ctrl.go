package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/openmsme/invoicehub/lib/responses"
	"github.com/openmsme/invoicehub/lib/service"
)

// ReconcileController : Operator-facing settlement reconciliation endpoints
type ReconcileController struct {
	svc *service.InvoicehubService
}

func NewReconcileController(svc *service.InvoicehubService) *ReconcileController {
	return &ReconcileController{svc: svc}
}

type CommitRequestBody struct {
	TxHash string `json:"tx_hash" validate:"required"`
}

// GetUnsynced lists invoices whose on-chain purchase still awaits a store
// commit.
func (controller *ReconcileController) GetUnsynced(c echo.Context) error {
	invoices, err := controller.svc.GetUnsyncedSettlements(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}
	response := make([]Invoice, len(invoices))
	for i, invoice := range invoices {
		response[i] = newInvoiceResponse(invoice)
	}
	return c.JSON(http.StatusOK, &GetInvoicesResponseBody{Invoices: response})
}

// Commit re-applies the store side of a settlement with a known tx hash.
func (controller *ReconcileController) Commit(c echo.Context) error {
	invoiceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	var body CommitRequestBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&body); err != nil {
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	invoice, err := controller.svc.CommitPurchase(c.Request().Context(), invoiceID, 0, body.TxHash)
	if err != nil {
		c.Logger().Errorf("Failed to commit settlement: invoice_id:%v tx_hash:%s error: %v", invoiceID, body.TxHash, err)
		return errorResponse(c, err)
	}

	response := newInvoiceResponse(*invoice)
	return c.JSON(http.StatusOK, &response)
}

// Rollback returns a Settling invoice to Listed once the ledger confirms no
// purchase was broadcast.
func (controller *ReconcileController) Rollback(c echo.Context) error {
	invoiceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	invoice, err := controller.svc.RollbackListing(c.Request().Context(), invoiceID)
	if err != nil {
		c.Logger().Errorf("Failed to roll back settlement: invoice_id:%v error: %v", invoiceID, err)
		return errorResponse(c, err)
	}

	response := newInvoiceResponse(*invoice)
	return c.JSON(http.StatusOK, &response)
}
