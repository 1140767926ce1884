package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/cakedayhq/cakeday_backend/config"
	"github.com/cakedayhq/cakeday_backend/controllers"
	"github.com/cakedayhq/cakeday_backend/middleware"
	"github.com/cakedayhq/cakeday_backend/repositories"
	"github.com/cakedayhq/cakeday_backend/routes"
	"github.com/cakedayhq/cakeday_backend/services"
	"github.com/cakedayhq/cakeday_backend/utils"
	"github.com/cakedayhq/cakeday_backend/websocket"
)

// CustomValidator is a custom validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates the request body
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func main() {
	// Load .env file
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found")
	}

	// Connect to Redis (sweep locks)
	redisClient := config.ConnectRedis()

	// Connect to database
	client := config.ConnectDB()
	db := client.Database(config.DatabaseName())

	// Billing configuration; gateway credentials are required
	gatewayCfg := config.LoadGatewayConfig()
	billingCfg := config.LoadBillingConfig()

	// Core billing components
	signer := services.NewSigner(gatewayCfg.Secret)
	gateway := services.NewGatewayClient(gatewayCfg, signer)
	companyRepo := repositories.NewCompanyRepository(db)
	paymentRepo := repositories.NewPaymentRepository(db)
	notifier := utils.NewEmailNotifier(db)

	// Dashboard event feed
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Post-outcome processing and the billing/retry sweeps
	eventProcessor := services.NewPaymentEventProcessor(companyRepo, paymentRepo, notifier, wsHub)
	eventProcessor.Start()

	billingScheduler := services.NewBillingScheduler(companyRepo, paymentRepo, gateway, eventProcessor, redisClient, billingCfg)
	billingScheduler.Start()

	retryController := services.NewRetryController(companyRepo, paymentRepo, gateway, eventProcessor, billingCfg)
	retryController.Start()

	// Create a new Echo instance
	e := echo.New()
	e.HideBanner = true

	// Initialize custom validator
	e.Validator = &CustomValidator{validator: validator.New()}

	// Middleware
	rateLimiter := middleware.NewRateLimiter()
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.Secure())
	e.Use(rateLimiter.RateLimit())

	e.Match([]string{"GET", "HEAD"}, "/", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "OK",
			"message": "Cakeday Backend is running",
			"version": "1.0",
		})
	})

	e.Match([]string{"GET", "HEAD"}, "/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":   "healthy",
			"database": "connected",
		})
	})

	// Initialize controllers
	authController := controllers.NewAuthController(db)
	subscriptionController := controllers.NewSubscriptionController(companyRepo, billingScheduler, billingCfg)
	paymentController := controllers.NewPaymentController(paymentRepo)
	webhookController := controllers.NewWebhookController(db, signer, paymentRepo, eventProcessor, billingCfg)

	// Register routes
	routes.RegisterBillingRoutes(e, webhookController)
	adminGroup := routes.RegisterAdminRoutes(e, authController, subscriptionController, paymentController)
	routes.RegisterWebSocketRoutes(adminGroup, wsHub)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	go func() {
		if err := e.Start(":" + port); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Wait for shutdown signal, then stop the sweeps before the server so no
	// dispatch is cut off mid-flight
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down")

	billingScheduler.Stop()
	retryController.Stop()
	eventProcessor.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	config.CloseRedis()
	if err := client.Disconnect(ctx); err != nil {
		log.Printf("MongoDB disconnect error: %v", err)
	}
}
