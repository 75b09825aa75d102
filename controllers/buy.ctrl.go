package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/openmsme/invoicehub/lib/responses"
	"github.com/openmsme/invoicehub/lib/service"
	"github.com/shopspring/decimal"
)

// BuyController : Buy invoice controller struct
type BuyController struct {
	svc *service.InvoicehubService
}

func NewBuyController(svc *service.InvoicehubService) *BuyController {
	return &BuyController{svc: svc}
}

type BuyResponseBody struct {
	Invoice  Invoice         `json:"invoice"`
	TxHash   string          `json:"tx_hash"`
	Price    decimal.Decimal `json:"price"`
	BoughtAt time.Time       `json:"bought_at"`
}

// Buy purchases a listed invoice. The call may take as long as the underlying
// wallet interaction; closing the request abandons the attempt and leaves the
// invoice claimable only by the same investor.
func (controller *BuyController) Buy(c echo.Context) error {
	userID := c.Get("UserID").(int64)

	invoiceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	result, err := controller.svc.BuyInvoice(c.Request().Context(), userID, invoiceID)
	if err != nil {
		c.Logger().Errorf("Failed to buy invoice: user_id:%v invoice_id:%v error: %v", userID, invoiceID, err)
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, &BuyResponseBody{
		Invoice:  newInvoiceResponse(*result.Invoice),
		TxHash:   result.Purchase.TxHash,
		Price:    result.Purchase.Price,
		BoughtAt: result.Purchase.CreatedAt,
	})
}

// Rollback returns an invoice stuck in settlement back to the marketplace
// after a failed wallet interaction.
func (controller *BuyController) Rollback(c echo.Context) error {
	userID := c.Get("UserID").(int64)

	invoiceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	invoice, err := controller.svc.RollbackPurchase(c.Request().Context(), userID, invoiceID)
	if err != nil {
		c.Logger().Errorf("Failed to roll back purchase: user_id:%v invoice_id:%v error: %v", userID, invoiceID, err)
		return errorResponse(c, err)
	}

	response := newInvoiceResponse(*invoice)
	return c.JSON(http.StatusOK, &response)
}
