package utils

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cakedayhq/cakeday_backend/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"gopkg.in/gomail.v2"
)

// SaveNotification saves an in-app notification to the database
func SaveNotification(db *mongo.Database, companyID primitive.ObjectID, title, message, notifType string) error {
	notification := models.Notification{
		ID:        primitive.NewObjectID(),
		CompanyID: companyID,
		Title:     title,
		Message:   message,
		Type:      notifType,
		IsRead:    false,
		CreatedAt: time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := db.Collection("notifications").InsertOne(ctx, notification)
	return err
}

// EmailNotifier delivers payment-outcome emails over SMTP and mirrors them
// as in-app notification rows. Delivery is fire-and-forget; failures are
// logged, never propagated into billing state.
type EmailNotifier struct {
	db *mongo.Database
}

// NewEmailNotifier creates an email notifier
func NewEmailNotifier(db *mongo.Database) *EmailNotifier {
	return &EmailNotifier{db: db}
}

// NotifyPaymentReceived informs a company that its monthly charge settled
func (n *EmailNotifier) NotifyPaymentReceived(company *models.Company, payment *models.Payment) {
	subject := "Cakeday payment received"
	body := fmt.Sprintf("Dear %s,\n\nYour payment of %d for the period starting %s has been received. Your team's birthday cakes are on the way.\n\nBest regards,\nThe Cakeday Team",
		company.Name, payment.Amount, payment.PeriodStart.Format("2006-01-02"))

	n.sendEmail(company.Email, subject, body)

	if err := SaveNotification(n.db, company.ID, subject,
		fmt.Sprintf("Payment for the period starting %s was received.", payment.PeriodStart.Format("2006-01-02")),
		"payment_received"); err != nil {
		log.Printf("Failed to save payment notification for company %s: %v", company.ID.Hex(), err)
	}
}

// NotifySubscriptionSuspended informs a company that its subscription was
// suspended after repeated payment failures
func (n *EmailNotifier) NotifySubscriptionSuspended(company *models.Company, payment *models.Payment) {
	subject := "Cakeday subscription suspended"
	body := fmt.Sprintf("Dear %s,\n\nWe could not collect your monthly payment after several attempts, and your subscription has been suspended. Please contact support to update your payment details and reactivate your subscription.\n\nBest regards,\nThe Cakeday Team",
		company.Name)

	n.sendEmail(company.Email, subject, body)

	if err := SaveNotification(n.db, company.ID, subject,
		"Your subscription was suspended after repeated payment failures.",
		"subscription_suspended"); err != nil {
		log.Printf("Failed to save suspension notification for company %s: %v", company.ID.Hex(), err)
	}
}

func (n *EmailNotifier) sendEmail(to, subject, body string) {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")
	smtpPort := 2525
	if portStr := os.Getenv("SMTP_PORT"); portStr != "" {
		fmt.Sscanf(portStr, "%d", &smtpPort)
	}

	if smtpHost == "" {
		log.Printf("SMTP not configured, skipping email to %s", to)
		return
	}

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPass)
	if err := d.DialAndSend(m); err != nil {
		log.Printf("Failed to send email to %s: %v", to, err)
	}
}
