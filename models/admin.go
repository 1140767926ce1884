package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Admin represents a dashboard administrator
type Admin struct {
	ID           primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Email        string             `json:"email" bson:"email"`
	PasswordHash string             `json:"-" bson:"passwordHash"`
	FullName     string             `json:"fullName" bson:"fullName"`
	CreatedAt    time.Time          `json:"createdAt" bson:"createdAt"`
}

// LoginRequest represents the admin login request body
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginData carries the issued token pair
type LoginData struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	Email        string `json:"email"`
	FullName     string `json:"fullName"`
}
