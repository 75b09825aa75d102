package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/openmsme/invoicehub/lib/responses"
	"github.com/openmsme/invoicehub/lib/service"
	"github.com/shopspring/decimal"
)

// ListInvoiceController : List invoice controller struct
type ListInvoiceController struct {
	svc *service.InvoicehubService
}

func NewListInvoiceController(svc *service.InvoicehubService) *ListInvoiceController {
	return &ListInvoiceController{svc: svc}
}

type ListInvoiceRequestBody struct {
	Price decimal.Decimal `json:"price" validate:"required"`
}

// ListInvoice puts an acknowledged invoice on the marketplace at a discounted
// price. The on-chain listing is submitted before the store transition.
func (controller *ListInvoiceController) ListInvoice(c echo.Context) error {
	userID := c.Get("UserID").(int64)

	invoiceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	var body ListInvoiceRequestBody
	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load list invoice request body: user_id:%v error: %v", userID, err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&body); err != nil {
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	invoice, err := controller.svc.ListInvoice(c.Request().Context(), userID, invoiceID, body.Price)
	if err != nil {
		c.Logger().Errorf("Failed to list invoice: user_id:%v invoice_id:%v error: %v", userID, invoiceID, err)
		return errorResponse(c, err)
	}

	response := newInvoiceResponse(*invoice)
	return c.JSON(http.StatusOK, &response)
}
