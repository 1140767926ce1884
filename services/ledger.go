package services

import (
	"context"
	"errors"
	"time"

	"github.com/cakedayhq/cakeday_backend/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrBillingConflict is returned by AdvanceBillingDate when another process
// already claimed the same company/cycle pair
var ErrBillingConflict = errors.New("billing date already advanced for this cycle")

// ErrNotFound is returned by lookups that matched nothing
var ErrNotFound = errors.New("not found")

// TerminalDetails carries the outcome data recorded alongside a terminal
// status transition
type TerminalDetails struct {
	TransactionID string
	FailureReason string
	ErrorCode     string
	NextRetryAt   *time.Time
}

// SubscriptionStore persists companies and their billing cursors
type SubscriptionStore interface {
	FindDueCompanies(ctx context.Context, asOf time.Time) ([]models.Company, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Company, error)
	// AdvanceBillingDate moves the billing date of the given cycle forward by
	// one period. It is a compare-and-swap on (company, cycle, active):
	// exactly one caller per cycle wins, every other gets ErrBillingConflict.
	AdvanceBillingDate(ctx context.Context, companyID primitive.ObjectID, cycle time.Time) error
	// RevertBillingDate compensates a claim whose dispatch failed at the
	// transport level, restoring the cycle date.
	RevertBillingDate(ctx context.Context, companyID primitive.ObjectID, cycle time.Time) error
	Suspend(ctx context.Context, companyID primitive.ObjectID) error
}

// PaymentLedger persists payment attempts and their state transitions
type PaymentLedger interface {
	Create(ctx context.Context, payment *models.Payment) error
	MarkProcessing(ctx context.Context, orderID, gatewayToken string) error
	// UpsertTerminal records a payment outcome. It only transitions a row
	// from pending/processing; the first terminal status wins and replays
	// report applied=false.
	UpsertTerminal(ctx context.Context, orderID, status string, details TerminalDetails) (bool, error)
	// ClaimForRetry marks a failed payment superseded so exactly one sweep
	// creates its successor. Reports whether this caller won the claim.
	ClaimForRetry(ctx context.Context, paymentID primitive.ObjectID) (bool, error)
	FindRetryable(ctx context.Context, now time.Time) ([]models.Payment, error)
	FindStaleProcessing(ctx context.Context, olderThan time.Time) ([]models.Payment, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	// HasOpenChain reports whether the company has an unresolved payment
	// chain (in flight or awaiting retry), which blocks a new sweep dispatch.
	HasOpenChain(ctx context.Context, companyID primitive.ObjectID) (bool, error)
	ListByCompany(ctx context.Context, companyID primitive.ObjectID) ([]models.Payment, error)
}

// Gateway is the outbound side of the payment provider
type Gateway interface {
	CreateCharge(ctx context.Context, msisdn string, amount int64, description, orderID string) (string, error)
	CheckStatus(ctx context.Context, token string) (string, map[string]interface{}, error)
}

// EventSink receives canonical payment events for post-outcome processing
type EventSink interface {
	Enqueue(event models.PaymentEvent)
}
