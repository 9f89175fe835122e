package database

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// EnsureIndexes creates every index the storefront queries rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database, log *zap.Logger) error {
	for _, ensure := range []func(context.Context, *mongo.Database, *zap.Logger) error{
		EnsureUserIndexes,
		EnsureProductIndexes,
		EnsureOrderIndexes,
	} {
		if err := ensure(ctx, db, log); err != nil {
			return err
		}
	}
	return nil
}

func EnsureProductIndexes(ctx context.Context, db *mongo.Database, log *zap.Logger) error {
	return createIndexes(ctx, db, log, "products", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("createdAt_desc"),
		},
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetName("name_index"),
		},
	})
}

func EnsureUserIndexes(ctx context.Context, db *mongo.Database, log *zap.Logger) error {
	return createIndexes(ctx, db, log, "users", []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().
				SetName("email_unique").
				SetUnique(true),
		},
	})
}

func EnsureOrderIndexes(ctx context.Context, db *mongo.Database, log *zap.Logger) error {
	return createIndexes(ctx, db, log, "orders", []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user", Value: 1},
				{Key: "createdAt", Value: -1},
			},
			Options: options.Index().SetName("user_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("createdAt_desc"),
		},
	})
}

func createIndexes(ctx context.Context, db *mongo.Database, log *zap.Logger, collection string, models []mongo.IndexModel) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	names, err := db.Collection(collection).Indexes().CreateMany(ctx, models)
	if err != nil {
		log.Error("Index creation failed", zap.String("collection", collection), zap.Error(err))
		return errors.Wrapf(err, "create %s indexes", collection)
	}
	log.Info("Indexes ensured", zap.String("collection", collection), zap.Strings("indexes", names))
	return nil
}
