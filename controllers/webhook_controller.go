// controllers/webhook_controller.go
package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cakedayhq/cakeday_backend/config"
	"github.com/cakedayhq/cakeday_backend/models"
	"github.com/cakedayhq/cakeday_backend/services"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// SignatureHeader carries the gateway's MAC over the raw webhook body
const SignatureHeader = "X-Gateway-Signature"

// WebhookController receives payment-outcome callbacks from the gateway.
// The handler only verifies, durably records, and enqueues; it never calls
// the gateway and never runs business reactions inline.
type WebhookController struct {
	DB     *mongo.Database
	signer *services.Signer
	ledger services.PaymentLedger
	events services.EventSink
	cfg    config.BillingConfig
}

// NewWebhookController creates a webhook controller
func NewWebhookController(db *mongo.Database, signer *services.Signer, ledger services.PaymentLedger, events services.EventSink, cfg config.BillingConfig) *WebhookController {
	return &WebhookController{
		DB:     db,
		signer: signer,
		ledger: ledger,
		events: events,
		cfg:    cfg,
	}
}

// HandleGatewayWebhook processes a payment-status callback. Non-200 is
// returned only for authenticity failures, so the provider redelivers those
// and nothing else; recorded payloads (including idempotent replays) get 200.
func (wc *WebhookController) HandleGatewayWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Failed to read request body",
		})
	}

	signature := c.Request().Header.Get(SignatureHeader)
	if signature == "" || !wc.signer.Verify(body, signature) {
		// Never applied to state; logged for security review
		log.Printf("SECURITY: webhook signature verification failed from %s", c.RealIP())
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid signature",
		})
	}

	var payload models.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Printf("Webhook payload unparseable despite valid signature: %v", err)
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Malformed payload",
		})
	}

	canonical := wc.cfg.CanonicalStatus(payload.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if canonical == models.OutcomeUnknown {
		// Inconclusive: never guessed at, recorded for manual review
		log.Printf("OPERATOR ATTENTION: webhook for order %s carries unrecognized status %q", payload.OrderID, payload.Status)
		wc.recordWebhookEvent(ctx, payload, body, canonical, false)
		return c.JSON(http.StatusOK, models.Response{
			Status:  http.StatusOK,
			Message: "Status recorded for review",
		})
	}

	payment, err := wc.ledger.FindByOrderID(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			// An outcome for an order we never created is an integrity
			// error, not a reason to create a ledger row
			log.Printf("SECURITY: webhook for unknown order %s rejected", payload.OrderID)
			wc.recordWebhookEvent(ctx, payload, body, canonical, false)
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Unknown order",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load payment",
		})
	}

	details := services.TerminalDetails{
		TransactionID: payload.TransactionID,
		FailureReason: payload.ErrorMessage,
		ErrorCode:     payload.ErrorCode,
	}
	if canonical == models.OutcomeFailed && payment.RetryCount < models.MaxRetryCount {
		retryAt := time.Now().Add(wc.cfg.BackoffFor(payment.RetryCount))
		details.NextRetryAt = &retryAt
	}

	applied, err := wc.ledger.UpsertTerminal(ctx, payload.OrderID, canonical, details)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to record payment outcome",
		})
	}

	wc.recordWebhookEvent(ctx, payload, body, canonical, applied)

	if applied {
		wc.events.Enqueue(models.PaymentEvent{
			OrderID:       payload.OrderID,
			Status:        canonical,
			TransactionID: payload.TransactionID,
			Amount:        payload.Amount,
			Timestamp:     time.Unix(payload.Timestamp, 0),
			ErrorCode:     payload.ErrorCode,
		})
		return c.JSON(http.StatusOK, models.Response{
			Status:  http.StatusOK,
			Message: "Payment outcome recorded",
		})
	}

	// Replay of an already-terminal order: idempotent no-op
	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Already processed",
	})
}

func (wc *WebhookController) recordWebhookEvent(ctx context.Context, payload models.WebhookPayload, body []byte, canonical string, applied bool) {
	if wc.DB == nil {
		return
	}

	event := models.WebhookEvent{
		ID:              primitive.NewObjectID(),
		OrderID:         payload.OrderID,
		RawStatus:       payload.Status,
		CanonicalStatus: canonical,
		Payload:         string(body),
		Applied:         applied,
		ReceivedAt:      time.Now(),
	}
	if _, err := wc.DB.Collection("webhook_events").InsertOne(ctx, event); err != nil {
		log.Printf("Failed to record webhook event for order %s: %v", payload.OrderID, err)
	}
}
