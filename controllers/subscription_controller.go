// controllers/subscription_controller.go
package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/cakedayhq/cakeday_backend/config"
	"github.com/cakedayhq/cakeday_backend/models"
	"github.com/cakedayhq/cakeday_backend/repositories"
	"github.com/cakedayhq/cakeday_backend/services"
	"github.com/cakedayhq/cakeday_backend/utils"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SubscriptionController handles company subscription management for the
// admin dashboard
type SubscriptionController struct {
	companies *repositories.CompanyRepository
	scheduler *services.BillingScheduler
	cfg       config.BillingConfig
}

// NewSubscriptionController creates a subscription controller
func NewSubscriptionController(companies *repositories.CompanyRepository, scheduler *services.BillingScheduler, cfg config.BillingConfig) *SubscriptionController {
	return &SubscriptionController{
		companies: companies,
		scheduler: scheduler,
		cfg:       cfg,
	}
}

// CreateCompany signs a company up for a subscription. The first billing
// date is today, so the next daily sweep dispatches the first charge.
func (sc *SubscriptionController) CreateCompany(c echo.Context) error {
	var req models.CompanyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}

	phone, err := utils.SanitizeMsisdn(req.Phone)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}
	email, err := utils.SanitizeEmail(req.Email)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}

	now := time.Now()
	company := &models.Company{
		Name:            req.Name,
		Email:           email,
		Phone:           phone,
		MonthlyCost:     req.MonthlyCost,
		Tier:            req.Tier,
		Status:          models.SubscriptionActive,
		NextBillingDate: sc.cfg.BillingDay(now),
		EmployeeCount:   req.EmployeeCount,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sc.companies.Create(ctx, company); err != nil {
		log.Printf("Error creating company: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to create company",
		})
	}

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Company subscription created",
		Data:    company,
	})
}

// GetCompanies lists all companies
func (sc *SubscriptionController) GetCompanies(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	companies, err := sc.companies.List(ctx)
	if err != nil {
		log.Printf("Error listing companies: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to retrieve companies",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Companies retrieved",
		Data:    companies,
	})
}

// GetCompany returns a single company
func (sc *SubscriptionController) GetCompany(c echo.Context) error {
	company, httpErr := sc.loadCompany(c)
	if company == nil {
		return httpErr
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Company retrieved",
		Data:    company,
	})
}

// UpdateCompany updates a company's subscription details
func (sc *SubscriptionController) UpdateCompany(c echo.Context) error {
	companyID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid company id",
		})
	}

	var req models.CompanyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}

	phone, err := utils.SanitizeMsisdn(req.Phone)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}
	email, err := utils.SanitizeEmail(req.Email)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fields := bson.M{
		"name":          req.Name,
		"email":         email,
		"phone":         phone,
		"monthlyCost":   req.MonthlyCost,
		"tier":          req.Tier,
		"employeeCount": req.EmployeeCount,
	}
	if err := sc.companies.Update(ctx, companyID, fields); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Company not found",
			})
		}
		log.Printf("Error updating company %s: %v", companyID.Hex(), err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to update company",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Company updated",
	})
}

// PauseCompany pauses a company's subscription
func (sc *SubscriptionController) PauseCompany(c echo.Context) error {
	return sc.setStatus(c, models.SubscriptionPaused, "Subscription paused")
}

// CancelCompany cancels a company's subscription
func (sc *SubscriptionController) CancelCompany(c echo.Context) error {
	return sc.setStatus(c, models.SubscriptionCancelled, "Subscription cancelled")
}

// ReactivateCompany reactivates a paused, cancelled, or suspended
// subscription. This is the only way out of suspension; billing resumes at
// the next daily sweep.
func (sc *SubscriptionController) ReactivateCompany(c echo.Context) error {
	companyID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid company id",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fields := bson.M{
		"status":          models.SubscriptionActive,
		"nextBillingDate": sc.cfg.BillingDay(time.Now()),
	}
	if err := sc.companies.Update(ctx, companyID, fields); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Company not found",
			})
		}
		log.Printf("Error reactivating company %s: %v", companyID.Hex(), err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to reactivate company",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Subscription reactivated",
	})
}

// BillNow dispatches the company's current cycle immediately instead of
// waiting for the daily sweep. It goes through the same cycle claim, so a
// concurrent sweep can never double-bill the cycle.
func (sc *SubscriptionController) BillNow(c echo.Context) error {
	company, httpErr := sc.loadCompany(c)
	if company == nil {
		return httpErr
	}

	if company.Status != models.SubscriptionActive {
		return c.JSON(http.StatusConflict, models.Response{
			Status:  http.StatusConflict,
			Message: "Subscription is " + company.Status,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	dispatched, err := sc.scheduler.BillCompany(ctx, company)
	if err != nil {
		log.Printf("Manual billing of company %s failed: %v", company.ID.Hex(), err)
		return c.JSON(http.StatusBadGateway, models.Response{
			Status:  http.StatusBadGateway,
			Message: "Charge dispatch failed: " + err.Error(),
		})
	}
	if !dispatched {
		return c.JSON(http.StatusConflict, models.Response{
			Status:  http.StatusConflict,
			Message: "Billing cycle already claimed or chain still open",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Charge dispatched",
	})
}

func (sc *SubscriptionController) setStatus(c echo.Context, status, message string) error {
	companyID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid company id",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sc.companies.SetStatus(ctx, companyID, status); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Company not found",
			})
		}
		log.Printf("Error setting company %s status to %s: %v", companyID.Hex(), status, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to update subscription status",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: message,
	})
}

func (sc *SubscriptionController) loadCompany(c echo.Context) (*models.Company, error) {
	companyID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return nil, c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid company id",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	company, err := sc.companies.FindByID(ctx, companyID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Company not found",
			})
		}
		log.Printf("Error loading company %s: %v", companyID.Hex(), err)
		return nil, c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load company",
		})
	}

	return company, nil
}
