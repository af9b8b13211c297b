package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
)

const (
	markerCollection = "_provisioner"
	markerID         = "owner"
)

// MongoDatastore provisions one MongoDB database per merchant.
type MongoDatastore struct {
	client *mongo.Client
	uri    *url.URL
}

// NewMongoDatastore creates the client. The driver connects lazily, so
// reachability is only known after the first call or Ping.
func NewMongoDatastore(uri string) (*MongoDatastore, error) {
	u, err := url.Parse(uri)
	if err != nil || (u.Scheme != "mongodb" && u.Scheme != "mongodb+srv") {
		return nil, fmt.Errorf("tenant mongo uri must be a mongodb:// url")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &MongoDatastore{client: client, uri: u}, nil
}

func (m *MongoDatastore) Engine() enums.DatastoreEngine {
	return enums.DatastoreEngineMongo
}

func (m *MongoDatastore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoDatastore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoDatastore) NamespaceExists(ctx context.Context, name string) (bool, error) {
	names, err := m.client.ListDatabaseNames(ctx, bson.M{"name": name})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

func (m *MongoDatastore) NamespaceOwner(ctx context.Context, name string) (string, error) {
	var marker struct {
		MerchantID string `bson:"merchant_id"`
		Marker     string `bson:"marker"`
	}
	err := m.client.Database(name).Collection(markerCollection).
		FindOne(ctx, bson.M{"_id": markerID}).
		Decode(&marker)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return parseOwnerMarker(marker.Marker), nil
}

// CreateNamespace writes the marker document, which also creates the database.
func (m *MongoDatastore) CreateNamespace(ctx context.Context, name, merchantID string) error {
	if err := ValidateNamespace(name); err != nil {
		return err
	}
	_, err := m.client.Database(name).Collection(markerCollection).InsertOne(ctx, bson.M{
		"_id":         markerID,
		"merchant_id": merchantID,
		"marker":      ownerMarker(merchantID),
		"created_at":  time.Now().UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrNamespaceExists
	}
	if err != nil {
		return fmt.Errorf("write owner marker: %w", err)
	}
	return nil
}

// MarkNamespace upserts the marker document.
func (m *MongoDatastore) MarkNamespace(ctx context.Context, name, merchantID string) error {
	if err := ValidateNamespace(name); err != nil {
		return err
	}
	_, err := m.client.Database(name).Collection(markerCollection).UpdateOne(ctx,
		bson.M{"_id": markerID},
		bson.M{
			"$set":         bson.M{"merchant_id": merchantID, "marker": ownerMarker(merchantID)},
			"$setOnInsert": bson.M{"created_at": time.Now().UTC()},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("write owner marker: %w", err)
	}
	return nil
}

// SeedCollections creates missing collections and their indexes. Index
// creation is a no-op for indexes that already exist with the same keys and options.
func (m *MongoDatastore) SeedCollections(ctx context.Context, name string) ([]string, error) {
	db := m.client.Database(name)
	existing, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c] = true
	}

	indexes := mongoIndexes()
	seeded := make([]string, 0, len(Collections))
	for _, col := range Collections {
		if !have[col] {
			if err := db.CreateCollection(ctx, col); err != nil {
				return seeded, fmt.Errorf("create collection %s: %w", col, err)
			}
		}
		if models := indexes[col]; len(models) > 0 {
			if _, err := db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
				return seeded, fmt.Errorf("create indexes on %s: %w", col, err)
			}
		}
		seeded = append(seeded, col)
	}
	return seeded, nil
}

func (m *MongoDatastore) ConnectionString(name string) (string, error) {
	return mongoTenantURI(m.uri, name)
}

func mongoTenantURI(base *url.URL, name string) (string, error) {
	if err := ValidateNamespace(name); err != nil {
		return "", err
	}
	u := *base
	u.Path = "/" + name
	u.RawPath = ""
	return u.String(), nil
}

func mongoIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		"categories": {
			{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "parent_id", Value: 1}}},
		},
		"products": {
			{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "category_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		"customers": {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "phone", Value: 1}}},
		},
		"orders": {
			{Keys: bson.D{{Key: "order_number", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "customer_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
}
