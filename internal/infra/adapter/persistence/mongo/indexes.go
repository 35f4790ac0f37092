package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// EnsureIndexes creates the indexes the repositories query by. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	pendingByAge := mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
	}

	specs := map[string][]mongo.IndexModel{
		emailCollection: {
			{
				Keys: bson.D{{Key: "eventId", Value: 1}, {Key: "createdAt", Value: -1}},
				Options: options.Index().
					SetPartialFilterExpression(bson.M{"eventId": bson.M{"$gt": ""}}),
			},
			pendingByAge,
		},
		pushCollection: {
			{Keys: bson.D{{Key: "userId", Value: 1}}},
			pendingByAge,
		},
		deviceCollection: {
			{Keys: bson.D{{Key: "token", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "active", Value: 1}, {Key: "updatedAt", Value: -1}}},
		},
	}

	for name, models := range specs {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}
