package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Payment statuses
const (
	PaymentPending    = "pending"
	PaymentProcessing = "processing"
	PaymentFinished   = "finished"
	PaymentFailed     = "failed"
)

// MaxRetryCount is the last retry attempt of a payment chain. A failed
// payment at this count suspends the owning subscription instead of
// scheduling another attempt.
const MaxRetryCount = 3

// Payment represents one charge attempt against the gateway. Every retry is
// a new row linked to the attempt it replaces through ParentPaymentID;
// Superseded is set on the parent once a successor exists so a failed row is
// never retried twice.
type Payment struct {
	ID              primitive.ObjectID  `json:"id,omitempty" bson:"_id,omitempty"`
	OrderID         string              `json:"orderId" bson:"orderId"`
	CompanyID       primitive.ObjectID  `json:"companyId" bson:"companyId"`
	Amount          int64               `json:"amount" bson:"amount"`
	Status          string              `json:"status" bson:"status"`
	GatewayToken    string              `json:"gatewayToken,omitempty" bson:"gatewayToken,omitempty"`
	TransactionID   string              `json:"transactionId,omitempty" bson:"transactionId,omitempty"`
	RetryCount      int                 `json:"retryCount" bson:"retryCount"`
	NextRetryAt     *time.Time          `json:"nextRetryAt,omitempty" bson:"nextRetryAt,omitempty"`
	Superseded      bool                `json:"superseded" bson:"superseded"`
	FailureReason   string              `json:"failureReason,omitempty" bson:"failureReason,omitempty"`
	ErrorCode       string              `json:"errorCode,omitempty" bson:"errorCode,omitempty"`
	IsRecurring     bool                `json:"isRecurring" bson:"isRecurring"`
	ParentPaymentID *primitive.ObjectID `json:"parentPaymentId,omitempty" bson:"parentPaymentId,omitempty"`
	PeriodStart     time.Time           `json:"periodStart" bson:"periodStart"`
	PeriodEnd       time.Time           `json:"periodEnd" bson:"periodEnd"`
	CreatedAt       time.Time           `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt" bson:"updatedAt"`
}

// IsTerminal reports whether no further state change is permitted for this
// row: finished, or failed with the retry ladder exhausted.
func (p *Payment) IsTerminal() bool {
	if p.Status == PaymentFinished {
		return true
	}
	return p.Status == PaymentFailed && p.RetryCount >= MaxRetryCount
}
