package catalog

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
)

// CollectionName is the MongoDB collection holding products.
const CollectionName = "products"

// MongoStore is the MongoDB-backed Store. Deleted products are kept with
// isDeleted set so past orders can still reference them.
type MongoStore struct {
	collection *mongo.Collection
	timeout    time.Duration
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		collection: db.Collection(CollectionName),
		timeout:    5 * time.Second,
	}
}

func activeFilter(extra bson.M) bson.M {
	filter := bson.M{"isDeleted": bson.M{"$ne": true}}
	for k, v := range extra {
		filter[k] = v
	}
	return filter
}

func (s *MongoStore) List(ctx context.Context, params ListParams) ([]models.Product, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := activeFilter(nil)
	if keyword := strings.TrimSpace(params.Keyword); keyword != "" {
		filter["name"] = bson.M{"$regex": regexp.QuoteMeta(keyword), "$options": "i"}
	}

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, errors.Wrap(err, "count products")
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip((params.Page - 1) * params.Limit).
		SetLimit(params.Limit)

	cursor, err := s.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, errors.Wrap(err, "find products")
	}
	defer cursor.Close(ctx)

	products, err := decodeProducts(ctx, cursor)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (s *MongoStore) Get(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var p models.Product
	err := s.collection.FindOne(ctx, activeFilter(bson.M{"_id": id})).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find product")
	}
	p.InStock = p.CountInStock > 0
	return &p, nil
}

func (s *MongoStore) Insert(ctx context.Context, p *models.Product) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if _, err := s.collection.InsertOne(ctx, p); err != nil {
		return errors.Wrap(err, "insert product")
	}
	p.InStock = p.CountInStock > 0
	return nil
}

func (s *MongoStore) Update(ctx context.Context, id primitive.ObjectID, set bson.M) (*models.Product, error) {
	return s.findOneAndSet(ctx, id, set)
}

func (s *MongoStore) SoftDelete(ctx context.Context, id primitive.ObjectID, at time.Time) (*models.Product, error) {
	return s.findOneAndSet(ctx, id, bson.M{
		"isDeleted": true,
		"deletedAt": at,
		"updatedAt": at,
	})
}

func (s *MongoStore) findOneAndSet(ctx context.Context, id primitive.ObjectID, set bson.M) (*models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p models.Product
	err := s.collection.FindOneAndUpdate(ctx, activeFilter(bson.M{"_id": id}), bson.M{"$set": set}, opts).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "update product")
	}
	p.InStock = p.CountInStock > 0
	return &p, nil
}

func decodeProducts(ctx context.Context, cursor *mongo.Cursor) ([]models.Product, error) {
	products := make([]models.Product, 0)

	for cursor.Next(ctx) {
		var p models.Product
		if err := cursor.Decode(&p); err != nil {
			return nil, errors.Wrap(err, "decode product")
		}
		p.InStock = p.CountInStock > 0
		products = append(products, p)
	}

	if err := cursor.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate products")
	}
	return products, nil
}
