package routes

import (
	"github.com/cakedayhq/cakeday_backend/controllers"
	"github.com/cakedayhq/cakeday_backend/middleware"
	"github.com/labstack/echo/v4"
)

// RegisterAdminRoutes sets up admin authentication and the JWT-protected
// dashboard API, returning the protected group so other routes can attach
func RegisterAdminRoutes(e *echo.Echo, authController *controllers.AuthController, subscriptionController *controllers.SubscriptionController, paymentController *controllers.PaymentController) *echo.Group {
	e.POST("/api/admin/login", authController.Login)

	api := e.Group("/api")
	api.Use(middleware.JWTMiddleware())

	// Company subscription management
	api.POST("/companies", subscriptionController.CreateCompany)
	api.GET("/companies", subscriptionController.GetCompanies)
	api.GET("/companies/:id", subscriptionController.GetCompany)
	api.PUT("/companies/:id", subscriptionController.UpdateCompany)
	api.POST("/companies/:id/pause", subscriptionController.PauseCompany)
	api.POST("/companies/:id/cancel", subscriptionController.CancelCompany)
	api.POST("/companies/:id/reactivate", subscriptionController.ReactivateCompany)
	api.POST("/companies/:id/bill-now", subscriptionController.BillNow)

	// Payment ledger
	api.GET("/companies/:id/payments", paymentController.GetCompanyPayments)
	api.GET("/payments/:orderId", paymentController.GetPayment)

	return api
}
