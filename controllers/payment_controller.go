// controllers/payment_controller.go
package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/cakedayhq/cakeday_backend/models"
	"github.com/cakedayhq/cakeday_backend/services"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PaymentController exposes the payment ledger to the admin dashboard
type PaymentController struct {
	ledger services.PaymentLedger
}

// NewPaymentController creates a payment controller
func NewPaymentController(ledger services.PaymentLedger) *PaymentController {
	return &PaymentController{ledger: ledger}
}

// GetCompanyPayments returns a company's payment history, newest first
func (pc *PaymentController) GetCompanyPayments(c echo.Context) error {
	companyID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid company id",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payments, err := pc.ledger.ListByCompany(ctx, companyID)
	if err != nil {
		log.Printf("Error listing payments for company %s: %v", companyID.Hex(), err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to retrieve payments",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Payments retrieved",
		Data:    payments,
	})
}

// GetPayment returns a single payment by order id
func (pc *PaymentController) GetPayment(c echo.Context) error {
	orderID := c.Param("orderId")
	if orderID == "" {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Order id is required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payment, err := pc.ledger.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Payment not found",
			})
		}
		log.Printf("Error loading payment %s: %v", orderID, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load payment",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Payment retrieved",
		Data:    payment,
	})
}
