// config/db.go
package config

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectDB establishes connection to MongoDB
func ConnectDB() *mongo.Client {
	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		mongoURI = os.Getenv("MONGODB_URI")
	}

	if mongoURI == "" {
		env := os.Getenv("ENV")
		if env == "development" || env == "dev" {
			mongoURI = "mongodb://localhost:27017"
		} else {
			log.Fatal("MONGO_URI or MONGODB_URI environment variable is required for production")
		}
	}

	log.Printf("Connecting to MongoDB at: %s", maskMongoURI(mongoURI))

	clientOptions := options.Client().ApplyURI(mongoURI)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		log.Fatal("MongoDB connection error:", err)
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		log.Fatal("MongoDB ping error:", err)
	}

	log.Println("Connected to MongoDB")

	setupCollections(client)

	return client
}

// DatabaseName returns the configured database name
func DatabaseName() string {
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "cakeday"
	}
	return dbName
}

// GetCollection returns MongoDB collection
func GetCollection(client *mongo.Client, collectionName string) *mongo.Collection {
	return client.Database(DatabaseName()).Collection(collectionName)
}

// setupCollections ensures all necessary collections and indexes exist
func setupCollections(client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := client.Database(DatabaseName())

	collections := []string{"companies", "payments", "admins", "notifications", "webhook_events"}
	for _, collName := range collections {
		db.CreateCollection(ctx, collName)
	}

	// Order ids must be unique for the whole payment history, retries included
	paymentColl := db.Collection("payments")
	orderIndexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "orderId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := paymentColl.Indexes().CreateOne(ctx, orderIndexModel); err != nil {
		log.Printf("Error creating orderId index: %v", err)
	}

	// Retry sweep lookup
	retryIndexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "nextRetryAt", Value: 1}},
	}
	if _, err := paymentColl.Indexes().CreateOne(ctx, retryIndexModel); err != nil {
		log.Printf("Error creating retry index: %v", err)
	}

	// Daily sweep lookup
	companyColl := db.Collection("companies")
	dueIndexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "nextBillingDate", Value: 1}},
	}
	if _, err := companyColl.Indexes().CreateOne(ctx, dueIndexModel); err != nil {
		log.Printf("Error creating billing date index: %v", err)
	}

	adminColl := db.Collection("admins")
	emailIndexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := adminColl.Indexes().CreateOne(ctx, emailIndexModel); err != nil {
		log.Printf("Error creating admin email index: %v", err)
	}

	log.Println("Database collections and indexes setup complete")
}

// maskMongoURI masks the password in MongoDB URI for logging
func maskMongoURI(uri string) string {
	if idx := strings.Index(uri, "@"); idx > 0 {
		if colonIdx := strings.LastIndex(uri[:idx], ":"); colonIdx > 0 {
			return uri[:colonIdx+1] + "***" + uri[idx:]
		}
	}
	return uri
}
