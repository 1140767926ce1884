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
)

// billingPeriodDays is the fixed length of one billing cycle
const billingPeriodDays = 30

// CompanyRepository is the MongoDB-backed SubscriptionStore
type CompanyRepository struct {
	collection *mongo.Collection
}

// NewCompanyRepository creates a company repository
func NewCompanyRepository(db *mongo.Database) *CompanyRepository {
	return &CompanyRepository{
		collection: db.Collection("companies"),
	}
}

// FindDueCompanies returns all active companies whose billing date has
// arrived as of the given day
func (r *CompanyRepository) FindDueCompanies(ctx context.Context, asOf time.Time) ([]models.Company, error) {
	filter := bson.M{
		"status":          models.SubscriptionActive,
		"nextBillingDate": bson.M{"$lte": asOf},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var companies []models.Company
	if err := cursor.All(ctx, &companies); err != nil {
		return nil, err
	}
	return companies, nil
}

// FindByID returns a single company
func (r *CompanyRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Company, error) {
	var company models.Company
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&company)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, services.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &company, nil
}

// AdvanceBillingDate claims a billing cycle by moving the date forward one
// period. The filter matches only if the company is still active and its
// date still equals the cycle being claimed, so exactly one concurrent
// caller succeeds.
func (r *CompanyRepository) AdvanceBillingDate(ctx context.Context, companyID primitive.ObjectID, cycle time.Time) error {
	filter := bson.M{
		"_id":             companyID,
		"status":          models.SubscriptionActive,
		"nextBillingDate": cycle,
	}
	update := bson.M{
		"$set": bson.M{
			"nextBillingDate": cycle.AddDate(0, 0, billingPeriodDays),
			"updatedAt":       time.Now(),
		},
		"$inc": bson.M{"billingVersion": 1},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.ModifiedCount == 0 {
		return services.ErrBillingConflict
	}
	return nil
}

// RevertBillingDate restores a cycle date after a dispatch that never
// reached the provider. Conditional on the advanced value so a revert can
// never clobber a later legitimate advance.
func (r *CompanyRepository) RevertBillingDate(ctx context.Context, companyID primitive.ObjectID, cycle time.Time) error {
	filter := bson.M{
		"_id":             companyID,
		"nextBillingDate": cycle.AddDate(0, 0, billingPeriodDays),
	}
	update := bson.M{
		"$set": bson.M{
			"nextBillingDate": cycle,
			"updatedAt":       time.Now(),
		},
		"$inc": bson.M{"billingVersion": 1},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.ModifiedCount == 0 {
		return services.ErrBillingConflict
	}
	return nil
}

// Suspend moves a company to the suspended status
func (r *CompanyRepository) Suspend(ctx context.Context, companyID primitive.ObjectID) error {
	update := bson.M{
		"$set": bson.M{
			"status":    models.SubscriptionSuspended,
			"updatedAt": time.Now(),
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": companyID}, update)
	return err
}

// Create inserts a new company
func (r *CompanyRepository) Create(ctx context.Context, company *models.Company) error {
	result, err := r.collection.InsertOne(ctx, company)
	if err != nil {
		return err
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		company.ID = oid
	}
	return nil
}

// List returns all companies
func (r *CompanyRepository) List(ctx context.Context) ([]models.Company, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	companies := []models.Company{}
	if err := cursor.All(ctx, &companies); err != nil {
		return nil, err
	}
	return companies, nil
}

// Update applies the given field changes to a company
func (r *CompanyRepository) Update(ctx context.Context, companyID primitive.ObjectID, fields bson.M) error {
	fields["updatedAt"] = time.Now()
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": companyID}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

// SetStatus transitions a company's subscription status
func (r *CompanyRepository) SetStatus(ctx context.Context, companyID primitive.ObjectID, status string) error {
	return r.Update(ctx, companyID, bson.M{"status": status})
}
