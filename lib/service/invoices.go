package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openmsme/invoicehub/common"
	"github.com/openmsme/invoicehub/db/models"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type CreateInvoiceParams struct {
	InvoiceNumber string
	Amount        decimal.Decimal
	DueDate       time.Time
	BuyerEmail    string
	PdfReference  string
}

func (svc *InvoicehubService) FindInvoice(ctx context.Context, invoiceId int64) (*models.Invoice, error) {
	var invoice models.Invoice

	err := svc.DB.NewSelect().Model(&invoice).Where("id = ?", invoiceId).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: invoice %d", ErrNotFound, invoiceId)
		}
		return nil, err
	}
	return &invoice, nil
}

func (svc *InvoicehubService) FindInvoiceByExternalID(ctx context.Context, externalID string) (*models.Invoice, error) {
	var invoice models.Invoice

	err := svc.DB.NewSelect().Model(&invoice).Where("external_id = ?", externalID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: invoice %s", ErrNotFound, externalID)
		}
		return nil, err
	}
	return &invoice, nil
}

// InvoicesForUser returns the invoices visible to a profile: own invoices for
// an MSME, invoices addressed to the buyer's email, purchased invoices for an
// investor.
func (svc *InvoicehubService) InvoicesForUser(ctx context.Context, user *models.User) ([]models.Invoice, error) {
	invoices := []models.Invoice{}
	q := svc.DB.NewSelect().Model(&invoices)
	switch user.Role {
	case common.RoleMSME:
		q = q.Where("created_by = ?", user.ID)
	case common.RoleBuyer:
		q = q.Where("buyer_email = ?", user.Email)
	case common.RoleInvestor:
		q = q.Join("JOIN purchases AS p ON p.invoice_id = invoice.id").
			Where("p.investor_id = ? AND NOT p.superseded", user.ID)
	default:
		return invoices, nil
	}
	err := q.OrderExpr("invoice.id DESC").Scan(ctx)
	return invoices, err
}

// FindInvoiceVisibleTo fetches a single invoice with the same visibility
// rules as InvoicesForUser, plus the marketplace feed for investors. Hidden
// invoices look like missing ones.
func (svc *InvoicehubService) FindInvoiceVisibleTo(ctx context.Context, userID int64, invoiceID int64) (*models.Invoice, error) {
	user, err := svc.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	invoice, err := svc.FindInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	switch user.Role {
	case common.RoleMSME:
		if invoice.CreatedBy == user.ID {
			return invoice, nil
		}
	case common.RoleBuyer:
		if invoice.BuyerEmail == user.Email {
			return invoice, nil
		}
	case common.RoleInvestor:
		if invoice.Status == common.InvoiceStatusListed {
			return invoice, nil
		}
		if invoice.SettlingInvestorID == user.ID {
			return invoice, nil
		}
		purchase, err := svc.FindLivePurchase(ctx, invoiceID)
		if err != nil {
			return nil, err
		}
		if purchase != nil && purchase.InvestorID == user.ID {
			return invoice, nil
		}
	}
	return nil, fmt.Errorf("%w: invoice %d", ErrNotFound, invoiceID)
}

// ListedInvoices is the public marketplace feed.
func (svc *InvoicehubService) ListedInvoices(ctx context.Context) ([]models.Invoice, error) {
	invoices := []models.Invoice{}
	err := svc.DB.NewSelect().Model(&invoices).
		Where("status = ?", common.InvoiceStatusListed).
		OrderExpr("id DESC").Scan(ctx)
	return invoices, err
}

// conditionalUpdateInvoice is the single concurrency-control primitive: an
// UPDATE guarded by the expected current status. applied=false means the
// precondition did not hold; currentStatus then carries what the row moved to.
func (svc *InvoicehubService) conditionalUpdateInvoice(ctx context.Context, invoiceID int64, expectedStatus []string, mutate func(q *bun.UpdateQuery)) (applied bool, currentStatus string, err error) {
	q := svc.DB.NewUpdate().Model((*models.Invoice)(nil)).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", invoiceID).
		Where("status IN (?)", bun.In(expectedStatus))
	mutate(q)
	res, err := q.Exec(ctx)
	if err != nil {
		return false, "", err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, "", err
	}
	if rows > 0 {
		return true, "", nil
	}
	err = svc.DB.NewSelect().Model((*models.Invoice)(nil)).Column("status").Where("id = ?", invoiceID).Limit(1).Scan(ctx, &currentStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, "", fmt.Errorf("%w: invoice %d", ErrNotFound, invoiceID)
		}
		return false, "", err
	}
	return false, currentStatus, nil
}

// CreateInvoice registers a new invoice for the acting MSME. Not idempotent:
// every call creates a new row.
func (svc *InvoicehubService) CreateInvoice(ctx context.Context, userID int64, params CreateInvoiceParams) (*models.Invoice, error) {
	user, err := svc.AuthorizeAction(ctx, userID, ActionCreateInvoice)
	if err != nil {
		return nil, err
	}
	if params.InvoiceNumber == "" || params.BuyerEmail == "" || params.DueDate.IsZero() {
		return nil, fmt.Errorf("%w: invoice_number, buyer_email and due_date are required", ErrValidation)
	}
	if !params.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	invoice := models.Invoice{
		ExternalID:    uuid.NewString(),
		InvoiceNumber: params.InvoiceNumber,
		Amount:        params.Amount,
		DueDate:       params.DueDate,
		BuyerEmail:    params.BuyerEmail,
		Status:        common.InvoiceStatusPending,
		CreatedBy:     user.ID,
		PdfReference:  params.PdfReference,
	}
	_, err = svc.DB.NewInsert().Model(&invoice).Exec(ctx)
	if err != nil {
		return nil, err
	}
	svc.Logger.Infof("Created invoice: invoice_id:%v user_id:%v amount:%v", invoice.ID, user.ID, invoice.Amount)
	return &invoice, nil
}

// AcknowledgeInvoice is the buyer's private confirmation. Only the profile
// whose email matches buyer_email may call it; repeating it on an
// already-Acknowledged invoice succeeds without mutation.
func (svc *InvoicehubService) AcknowledgeInvoice(ctx context.Context, userID int64, invoiceID int64) (*models.Invoice, error) {
	user, err := svc.AuthorizeAction(ctx, userID, ActionAcknowledgeInvoice)
	if err != nil {
		return nil, err
	}
	invoice, err := svc.FindInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.BuyerEmail != user.Email {
		return nil, fmt.Errorf("%w: invoice not addressed to this buyer", ErrAuthorization)
	}
	if invoice.Status == common.InvoiceStatusAcknowledged && invoice.BuyerAcknowledged {
		return invoice, nil
	}

	applied, currentStatus, err := svc.conditionalUpdateInvoice(ctx, invoiceID,
		[]string{common.InvoiceStatusPending, common.InvoiceStatusAcknowledged},
		func(q *bun.UpdateQuery) {
			q.Set("buyer_acknowledged = ?", true).
				Set("status = ?", common.InvoiceStatusAcknowledged)
		})
	if err != nil {
		return nil, err
	}
	if !applied {
		// a concurrent acknowledge commutes with this one
		if currentStatus == common.InvoiceStatusAcknowledged {
			return svc.FindInvoice(ctx, invoiceID)
		}
		return nil, fmt.Errorf("%w: cannot acknowledge invoice in status %s", ErrConflict, currentStatus)
	}

	invoice, err = svc.FindInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	svc.Logger.Infof("Acknowledged invoice: invoice_id:%v buyer_id:%v", invoice.ID, user.ID)
	svc.InvoicePubSub.Publish(common.InvoiceStatusAcknowledged, *invoice)
	return invoice, nil
}

// ListInvoice publishes a price for an acknowledged invoice. The on-chain
// listing is submitted through the gateway before the store transition; a
// ledger failure leaves the invoice Acknowledged. Re-listing with the same
// price is a no-op, with a different price it re-prices only while Listed.
func (svc *InvoicehubService) ListInvoice(ctx context.Context, userID int64, invoiceID int64, price decimal.Decimal) (*models.Invoice, error) {
	user, err := svc.AuthorizeAction(ctx, userID, ActionListInvoice)
	if err != nil {
		return nil, err
	}
	invoice, err := svc.FindInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.CreatedBy != user.ID {
		return nil, fmt.Errorf("%w: invoice belongs to another MSME", ErrAuthorization)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: listed price must be positive", ErrValidation)
	}

	switch invoice.Status {
	case common.InvoiceStatusListed:
		if invoice.ListedPrice.Valid && invoice.ListedPrice.Decimal.Equal(price) {
			return invoice, nil
		}
		// re-pricing is allowed only while still Listed, and the new price
		// goes to the contract first like the original listing did
		_, err = svc.LedgerClient.ListInvoice(ctx, invoice.ExternalID, price)
		if err != nil {
			svc.Logger.Errorf("On-chain re-pricing failed: invoice_id:%v error: %v", invoice.ID, err)
			return nil, err
		}
		applied, currentStatus, err := svc.conditionalUpdateInvoice(ctx, invoiceID,
			[]string{common.InvoiceStatusListed},
			func(q *bun.UpdateQuery) {
				q.Set("listed_price = ?", price)
			})
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, fmt.Errorf("%w: cannot re-price invoice in status %s", ErrConflict, currentStatus)
		}
	case common.InvoiceStatusAcknowledged:
		_, err = svc.LedgerClient.ListInvoice(ctx, invoice.ExternalID, price)
		if err != nil {
			svc.Logger.Errorf("On-chain listing failed: invoice_id:%v error: %v", invoice.ID, err)
			return nil, err
		}
		applied, currentStatus, err := svc.conditionalUpdateInvoice(ctx, invoiceID,
			[]string{common.InvoiceStatusAcknowledged},
			func(q *bun.UpdateQuery) {
				q.Set("listed_price = ?", price).
					Set("status = ?", common.InvoiceStatusListed)
			})
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, fmt.Errorf("%w: cannot list invoice in status %s", ErrConflict, currentStatus)
		}
	default:
		return nil, fmt.Errorf("%w: cannot list invoice in status %s", ErrConflict, invoice.Status)
	}

	invoice, err = svc.FindInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	svc.Logger.Infof("Listed invoice: invoice_id:%v user_id:%v price:%v", invoice.ID, user.ID, price)
	svc.InvoicePubSub.Publish(common.InvoiceStatusListed, *invoice)
	return invoice, nil
}
