package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/cakedayhq/cakeday_backend/models"
	"github.com/cakedayhq/cakeday_backend/services"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PaymentRepository is the MongoDB-backed PaymentLedger
type PaymentRepository struct {
	collection *mongo.Collection
}

// NewPaymentRepository creates a payment repository
func NewPaymentRepository(db *mongo.Database) *PaymentRepository {
	return &PaymentRepository{
		collection: db.Collection("payments"),
	}
}

// Create inserts a new payment attempt
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	result, err := r.collection.InsertOne(ctx, payment)
	if err != nil {
		return err
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		payment.ID = oid
	}
	return nil
}

// MarkProcessing records gateway acceptance of a pending payment
func (r *PaymentRepository) MarkProcessing(ctx context.Context, orderID, gatewayToken string) error {
	filter := bson.M{"orderId": orderID, "status": models.PaymentPending}
	update := bson.M{
		"$set": bson.M{
			"status":       models.PaymentProcessing,
			"gatewayToken": gatewayToken,
			"updatedAt":    time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.ModifiedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

// UpsertTerminal records a payment outcome keyed on order id. The filter
// only matches pending/processing rows, so the first terminal status wins
// and replaying the same webhook is a no-op.
func (r *PaymentRepository) UpsertTerminal(ctx context.Context, orderID, status string, details services.TerminalDetails) (bool, error) {
	if status != models.PaymentFinished && status != models.PaymentFailed {
		return false, errors.New("terminal status must be finished or failed")
	}

	set := bson.M{
		"status":    status,
		"updatedAt": time.Now(),
	}
	if details.TransactionID != "" {
		set["transactionId"] = details.TransactionID
	}
	if details.FailureReason != "" {
		set["failureReason"] = details.FailureReason
	}
	if details.ErrorCode != "" {
		set["errorCode"] = details.ErrorCode
	}
	if details.NextRetryAt != nil {
		set["nextRetryAt"] = *details.NextRetryAt
	}

	filter := bson.M{
		"orderId": orderID,
		"status":  bson.M{"$in": []string{models.PaymentPending, models.PaymentProcessing}},
	}

	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	return result.ModifiedCount > 0, nil
}

// ClaimForRetry marks a failed payment superseded; only the caller that
// flips the flag wins the right to create the successor
func (r *PaymentRepository) ClaimForRetry(ctx context.Context, paymentID primitive.ObjectID) (bool, error) {
	filter := bson.M{"_id": paymentID, "superseded": false}
	update := bson.M{
		"$set": bson.M{
			"superseded": true,
			"updatedAt":  time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount > 0, nil
}

// FindRetryable returns failed, non-superseded payments whose retry time has
// arrived and whose chain is not exhausted
func (r *PaymentRepository) FindRetryable(ctx context.Context, now time.Time) ([]models.Payment, error) {
	filter := bson.M{
		"status":      models.PaymentFailed,
		"superseded":  false,
		"retryCount":  bson.M{"$lt": models.MaxRetryCount},
		"nextRetryAt": bson.M{"$lte": now},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var payments []models.Payment
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// FindStaleProcessing returns payments stuck in processing since before the
// given cutoff, candidates for status-poll reconciliation
func (r *PaymentRepository) FindStaleProcessing(ctx context.Context, olderThan time.Time) ([]models.Payment, error) {
	filter := bson.M{
		"status":    models.PaymentProcessing,
		"updatedAt": bson.M{"$lte": olderThan},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var payments []models.Payment
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// FindByOrderID returns the payment with the given order id
func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.collection.FindOne(ctx, bson.M{"orderId": orderID}).Decode(&payment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// HasOpenChain reports whether the company has a payment chain that is
// still in flight or awaiting retry
func (r *PaymentRepository) HasOpenChain(ctx context.Context, companyID primitive.ObjectID) (bool, error) {
	filter := bson.M{
		"companyId": companyID,
		"$or": []bson.M{
			{"status": bson.M{"$in": []string{models.PaymentPending, models.PaymentProcessing}}},
			{
				"status":      models.PaymentFailed,
				"superseded":  false,
				"retryCount":  bson.M{"$lt": models.MaxRetryCount},
				"nextRetryAt": bson.M{"$exists": true},
			},
		},
	}

	count, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByCompany returns a company's payment history, newest first
func (r *PaymentRepository) ListByCompany(ctx context.Context, companyID primitive.ObjectID) ([]models.Payment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"companyId": companyID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	payments := []models.Payment{}
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}
