package responses

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error          bool   `json:"error"`
	Code           int    `json:"code"`
	Message        string `json:"message"`
	HttpStatusCode int    `json:"-"`
}

var GeneralServerError = ErrorResponse{
	Error:          true,
	Code:           6,
	Message:        "Something went wrong. Please try again later",
	HttpStatusCode: 500,
}

var BadArgumentsError = ErrorResponse{
	Error:          true,
	Code:           8,
	Message:        "Bad arguments",
	HttpStatusCode: 400,
}

var BadAuthError = ErrorResponse{
	Error:          true,
	Code:           1,
	Message:        "bad auth",
	HttpStatusCode: 401,
}

var AuthorizationError = ErrorResponse{
	Error:          true,
	Code:           2,
	Message:        "role or ownership does not permit this action",
	HttpStatusCode: 403,
}

var NotFoundError = ErrorResponse{
	Error:          true,
	Code:           3,
	Message:        "not found",
	HttpStatusCode: 404,
}

var ConflictError = ErrorResponse{
	Error:          true,
	Code:           4,
	Message:        "invoice status changed concurrently, reload and retry",
	HttpStatusCode: 409,
}

var DataIntegrityError = ErrorResponse{
	Error:          true,
	Code:           5,
	Message:        "store and ledger disagree on this invoice. manual reconciliation required",
	HttpStatusCode: 500,
}

var LedgerUserRejectedError = ErrorResponse{
	Error:          true,
	Code:           10,
	Message:        "transaction rejected in wallet",
	HttpStatusCode: 400,
}

var LedgerInsufficientFundsError = ErrorResponse{
	Error:          true,
	Code:           11,
	Message:        "not enough funds to complete the purchase",
	HttpStatusCode: 400,
}

var LedgerAlreadySoldError = ErrorResponse{
	Error:          true,
	Code:           12,
	Message:        "invoice already sold on chain",
	HttpStatusCode: 409,
}

var LedgerUnknownError = ErrorResponse{
	Error:          true,
	Code:           13,
	Message:        "ledger transaction failed",
	HttpStatusCode: 502,
}

var AccountDeactivatedError = ErrorResponse{
	Error:          true,
	Code:           1,
	Message:        "Account has been suspended. Please contact support for further assistance.",
	HttpStatusCode: 401,
}

var EmailTakenError = ErrorResponse{
	Error:          true,
	Code:           7,
	Message:        "an account with this email already exists",
	HttpStatusCode: 400,
}

// SyncErrorResponse carries the retained transaction hash: the on-chain event
// is authoritative and must never be dropped.
type SyncErrorResponse struct {
	ErrorResponse
	TxHash string `json:"tx_hash"`
}

func SyncError(txHash string) *SyncErrorResponse {
	return &SyncErrorResponse{
		ErrorResponse: ErrorResponse{
			Error:          true,
			Code:           20,
			Message:        "purchase confirmed on chain but not yet recorded. keep the tx hash and retry reconciliation",
			HttpStatusCode: 500,
		},
		TxHash: txHash,
	}
}

func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	c.Logger().Error(err)
	if hub := sentryecho.GetHubFromContext(c); hub != nil {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetExtra("UserID", c.Get("UserID"))
			hub.CaptureException(err)
		})
	}
	if he, ok := err.(*echo.HTTPError); ok {
		c.JSON(he.Code, he.Message)
	} else {
		c.JSON(http.StatusInternalServerError, GeneralServerError)
	}
}
