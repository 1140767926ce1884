package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Subscription statuses for a company
const (
	SubscriptionActive    = "active"
	SubscriptionPaused    = "paused"
	SubscriptionSuspended = "suspended"
	SubscriptionCancelled = "cancelled"
)

// Subscription tiers
const (
	TierBasic    = "basic"
	TierStandard = "standard"
	TierPremium  = "premium"
)

// Company represents a subscribed company. MonthlyCost is in minor currency
// units. NextBillingDate is stored as midnight of the billing-timezone day;
// BillingVersion is bumped by every successful billing-date update so
// concurrent sweeps can detect each other.
type Company struct {
	ID              primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Name            string             `json:"name" bson:"name"`
	Email           string             `json:"email" bson:"email"`
	Phone           string             `json:"phone" bson:"phone"`
	MonthlyCost     int64              `json:"monthlyCost" bson:"monthlyCost"`
	Tier            string             `json:"tier" bson:"tier"`
	Status          string             `json:"status" bson:"status"`
	NextBillingDate time.Time          `json:"nextBillingDate" bson:"nextBillingDate"`
	BillingVersion  int64              `json:"billingVersion" bson:"billingVersion"`
	EmployeeCount   int                `json:"employeeCount,omitempty" bson:"employeeCount,omitempty"`
	CreatedAt       time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// CompanyRequest represents the request body for creating/updating a company
type CompanyRequest struct {
	Name          string `json:"name" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"required"`
	MonthlyCost   int64  `json:"monthlyCost" validate:"required,gt=0"`
	Tier          string `json:"tier" validate:"required,oneof=basic standard premium"`
	EmployeeCount int    `json:"employeeCount" validate:"omitempty,gte=0"`
}
