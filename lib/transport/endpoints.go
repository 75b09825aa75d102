package transport

import (
	"github.com/labstack/echo/v4"
	"github.com/openmsme/invoicehub/controllers"
	"github.com/openmsme/invoicehub/lib/service"
)

func RegisterEndpoints(svc *service.InvoicehubService, e *echo.Echo, secured *echo.Group, securedWithStrictRateLimit *echo.Group, strictRateLimitMiddleware echo.MiddlewareFunc, adminMw echo.MiddlewareFunc, logMw echo.MiddlewareFunc) {
	// Public endpoints for account creation and authentication
	e.POST("/auth", controllers.NewAuthController(svc).Auth, logMw)
	if svc.Config.AllowAccountCreation {
		e.POST("/create", controllers.NewCreateUserController(svc).CreateUser, strictRateLimitMiddleware, adminMw, logMw)
	}

	// Public marketplace feed, served through the response cache. A briefly
	// stale feed is harmless: buys re-check status with a conditional write.
	e.GET("/marketplace", controllers.NewMarketplaceController(svc).GetListedInvoices, CreateCacheClient().Middleware(), logMw)

	// Secured endpoints which require an Authorization token (JWT)
	invoiceCtrl := controllers.NewInvoiceController(svc)
	secured.POST("/invoices", invoiceCtrl.CreateInvoice)
	secured.GET("/invoices", invoiceCtrl.GetInvoices)
	secured.GET("/invoices/:id", invoiceCtrl.GetInvoice)
	secured.POST("/invoices/:id/acknowledge", controllers.NewAcknowledgeController(svc).Acknowledge)

	// Value-bearing operations get the strict rate limit
	securedWithStrictRateLimit.POST("/invoices/:id/list", controllers.NewListInvoiceController(svc).ListInvoice)
	buyCtrl := controllers.NewBuyController(svc)
	securedWithStrictRateLimit.POST("/invoices/:id/buy", buyCtrl.Buy)
	securedWithStrictRateLimit.POST("/invoices/:id/rollback", buyCtrl.Rollback)

	// Operator endpoints for settlement reconciliation
	reconcileCtrl := controllers.NewReconcileController(svc)
	admin := e.Group("/admin", adminMw, logMw)
	admin.GET("/settlements/unsynced", reconcileCtrl.GetUnsynced)
	admin.POST("/invoices/:id/commit", reconcileCtrl.Commit)
	admin.POST("/invoices/:id/rollback", reconcileCtrl.Rollback)
}
