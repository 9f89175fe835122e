package orders

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
)

// CollectionName is the MongoDB collection holding orders.
const CollectionName = "orders"

const defaultTimeout = 5 * time.Second

// MongoStore is the MongoDB-backed Store. Status transitions are single
// conditional FindOneAndUpdate calls, so concurrent writers in different
// processes cannot both flip the same flag.
type MongoStore struct {
	collection *mongo.Collection
	timeout    time.Duration
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		collection: db.Collection(CollectionName),
		timeout:    defaultTimeout,
	}
}

func (s *MongoStore) Insert(ctx context.Context, order *models.Order) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if _, err := s.collection.InsertOne(ctx, order); err != nil {
		return errors.Wrap(err, "insert")
	}
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var order models.Order
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find order")
	}
	return &order, nil
}

func (s *MongoStore) Find(ctx context.Context, filter Filter) ([]models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := bson.M{}
	if filter.Owner != nil {
		query["user"] = *filter.Owner
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "createdAt", Value: -1},
		{Key: "_id", Value: -1},
	})

	cursor, err := s.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find orders")
	}
	defer cursor.Close(ctx)

	orders := make([]models.Order, 0)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, errors.Wrap(err, "decode orders")
	}
	return orders, nil
}

func (s *MongoStore) MarkPaid(ctx context.Context, id primitive.ObjectID, paidAt time.Time, result models.PaymentResult) (*models.Order, error) {
	return s.transition(ctx, id, "isPaid", bson.M{
		"isPaid":        true,
		"paidAt":        paidAt,
		"paymentResult": result,
		"updatedAt":     paidAt,
	}, ErrAlreadyPaid)
}

func (s *MongoStore) MarkDelivered(ctx context.Context, id primitive.ObjectID, deliveredAt time.Time) (*models.Order, error) {
	return s.transition(ctx, id, "isDelivered", bson.M{
		"isDelivered": true,
		"deliveredAt": deliveredAt,
		"updatedAt":   deliveredAt,
	}, ErrAlreadyDelivered)
}

// transition sets fields on the order only while flag is still false. When
// nothing matches, the id is looked up again to tell a missing order from
// one that already made the transition.
func (s *MongoStore) transition(ctx context.Context, id primitive.ObjectID, flag string, set bson.M, conflict error) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{"_id": id, flag: false}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var order models.Order
	err := s.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&order)
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(err, "update %s", flag)
	}

	count, err := s.collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return nil, errors.Wrap(err, "count order")
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	return nil, conflict
}
