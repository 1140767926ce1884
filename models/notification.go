package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification is an in-app notification row shown on the dashboard
type Notification struct {
	ID        primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	CompanyID primitive.ObjectID `json:"companyId" bson:"companyId"`
	Title     string             `json:"title" bson:"title"`
	Message   string             `json:"message" bson:"message"`
	Type      string             `json:"type" bson:"type"`
	IsRead    bool               `json:"isRead" bson:"isRead"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}

// WebhookEvent is the review log of every callback the gateway delivered,
// including ones that were never applied (unknown status, replays).
type WebhookEvent struct {
	ID              primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	OrderID         string             `json:"orderId" bson:"orderId"`
	RawStatus       string             `json:"rawStatus" bson:"rawStatus"`
	CanonicalStatus string             `json:"canonicalStatus" bson:"canonicalStatus"`
	Payload         string             `json:"payload" bson:"payload"`
	Applied         bool               `json:"applied" bson:"applied"`
	ReceivedAt      time.Time          `json:"receivedAt" bson:"receivedAt"`
}
