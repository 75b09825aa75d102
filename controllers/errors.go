package controllers

import (
	"errors"

	"github.com/labstack/echo/v4"
	"github.com/openmsme/invoicehub/ledger"
	"github.com/openmsme/invoicehub/lib/responses"
	"github.com/openmsme/invoicehub/lib/service"
)

// errorResponse translates service and ledger failures into the stable
// response taxonomy. Ledger failures keep their classification, a failed
// store commit surfaces the retained tx hash.
func errorResponse(c echo.Context, err error) error {
	var syncErr *service.SyncError
	var ledgerErr *ledger.Error
	switch {
	case errors.As(err, &syncErr):
		resp := responses.SyncError(syncErr.TxHash)
		return c.JSON(resp.HttpStatusCode, resp)
	case errors.As(err, &ledgerErr):
		resp := responses.LedgerUnknownError
		switch ledgerErr.Kind {
		case ledger.ErrorUserRejected:
			resp = responses.LedgerUserRejectedError
		case ledger.ErrorInsufficientFunds:
			resp = responses.LedgerInsufficientFundsError
		case ledger.ErrorAlreadySoldOnChain:
			resp = responses.LedgerAlreadySoldError
		}
		return c.JSON(resp.HttpStatusCode, resp)
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(responses.NotFoundError.HttpStatusCode, responses.NotFoundError)
	case errors.Is(err, service.ErrAuthorization):
		return c.JSON(responses.AuthorizationError.HttpStatusCode, responses.AuthorizationError)
	case errors.Is(err, service.ErrConflict):
		return c.JSON(responses.ConflictError.HttpStatusCode, responses.ConflictError)
	case errors.Is(err, service.ErrValidation):
		return c.JSON(responses.BadArgumentsError.HttpStatusCode, responses.BadArgumentsError)
	case errors.Is(err, service.ErrDataIntegrity):
		return c.JSON(responses.DataIntegrityError.HttpStatusCode, responses.DataIntegrityError)
	default:
		return c.JSON(responses.GeneralServerError.HttpStatusCode, responses.GeneralServerError)
	}
}
