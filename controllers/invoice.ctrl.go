package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/openmsme/invoicehub/db/models"
	"github.com/openmsme/invoicehub/lib/responses"
	"github.com/openmsme/invoicehub/lib/service"
	"github.com/shopspring/decimal"
)

// InvoiceController : Invoice controller struct
type InvoiceController struct {
	svc *service.InvoicehubService
}

func NewInvoiceController(svc *service.InvoicehubService) *InvoiceController {
	return &InvoiceController{svc: svc}
}

type Invoice struct {
	ID                int64           `json:"id"`
	ExternalID        string          `json:"external_id"`
	InvoiceNumber     string          `json:"invoice_number"`
	Amount            decimal.Decimal `json:"amount"`
	DueDate           time.Time       `json:"due_date"`
	BuyerEmail        string          `json:"buyer_email"`
	Status            string          `json:"status"`
	BuyerAcknowledged bool            `json:"buyer_acknowledged"`
	ListedPrice       decimal.Decimal `json:"listed_price,omitempty"`
	PdfReference      string          `json:"pdf_reference,omitempty"`
	BlockchainTxHash  string          `json:"blockchain_tx_hash,omitempty"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	SoldAt            time.Time       `json:"sold_at,omitempty"`
}

func newInvoiceResponse(invoice models.Invoice) Invoice {
	response := Invoice{
		ID:                invoice.ID,
		ExternalID:        invoice.ExternalID,
		InvoiceNumber:     invoice.InvoiceNumber,
		Amount:            invoice.Amount,
		DueDate:           invoice.DueDate,
		BuyerEmail:        invoice.BuyerEmail,
		Status:            invoice.Status,
		BuyerAcknowledged: invoice.BuyerAcknowledged,
		PdfReference:      invoice.PdfReference,
		BlockchainTxHash:  invoice.BlockchainTxHash,
		ErrorMessage:      invoice.ErrorMessage,
		CreatedAt:         invoice.CreatedAt,
		SoldAt:            invoice.SoldAt.Time,
	}
	if invoice.ListedPrice.Valid {
		response.ListedPrice = invoice.ListedPrice.Decimal
	}
	return response
}

type CreateInvoiceRequestBody struct {
	InvoiceNumber string          `json:"invoice_number" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	DueDate       time.Time       `json:"due_date" validate:"required"`
	BuyerEmail    string          `json:"buyer_email" validate:"required,email"`
	PdfReference  string          `json:"pdf_reference"`
}

type GetInvoicesResponseBody struct {
	Invoices []Invoice `json:"invoices"`
}

// CreateInvoice : Create invoice Controller
func (controller *InvoiceController) CreateInvoice(c echo.Context) error {
	userID := c.Get("UserID").(int64)

	var body CreateInvoiceRequestBody

	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load create invoice request body: user_id:%v error: %v", userID, err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&body); err != nil {
		c.Logger().Errorf("Invalid create invoice request body: user_id:%v error: %v", userID, err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	invoice, err := controller.svc.CreateInvoice(c.Request().Context(), userID, service.CreateInvoiceParams{
		InvoiceNumber: body.InvoiceNumber,
		Amount:        body.Amount,
		DueDate:       body.DueDate,
		BuyerEmail:    body.BuyerEmail,
		PdfReference:  body.PdfReference,
	})
	if err != nil {
		c.Logger().Errorf("Failed to create invoice: user_id:%v error: %v", userID, err)
		return errorResponse(c, err)
	}

	response := newInvoiceResponse(*invoice)
	return c.JSON(http.StatusOK, &response)
}

// GetInvoices returns the invoices visible to the acting identity: created
// invoices for an msme, addressed invoices for a buyer, purchased invoices
// for an investor.
func (controller *InvoiceController) GetInvoices(c echo.Context) error {
	userID := c.Get("UserID").(int64)

	user, err := controller.svc.FindUser(c.Request().Context(), userID)
	if err != nil {
		return errorResponse(c, err)
	}
	invoices, err := controller.svc.InvoicesForUser(c.Request().Context(), user)
	if err != nil {
		return errorResponse(c, err)
	}

	response := make([]Invoice, len(invoices))
	for i, invoice := range invoices {
		response[i] = newInvoiceResponse(invoice)
	}
	return c.JSON(http.StatusOK, &GetInvoicesResponseBody{Invoices: response})
}

// GetInvoice : Get invoice Controller
func (controller *InvoiceController) GetInvoice(c echo.Context) error {
	userID := c.Get("UserID").(int64)

	invoiceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	invoice, err := controller.svc.FindInvoiceVisibleTo(c.Request().Context(), userID, invoiceID)
	if err != nil {
		return errorResponse(c, err)
	}

	response := newInvoiceResponse(*invoice)
	return c.JSON(http.StatusOK, &response)
}
