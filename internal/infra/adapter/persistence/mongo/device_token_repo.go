package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/repository"
)

type DeviceTokenRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewDeviceTokenRepo(db *mongo.Database) repository.DeviceTokenRepository {
	return &DeviceTokenRepo{coll: db.Collection(deviceCollection), now: time.Now}
}

func (repo *DeviceTokenRepo) Save(ctx context.Context, token *entity.DeviceToken) error {
	if err := upsert(ctx, repo.coll, token.ID, toDeviceDoc(token)); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

func (repo *DeviceTokenRepo) FindByToken(ctx context.Context, token string) (*entity.DeviceToken, error) {
	var doc deviceDoc
	err := repo.coll.FindOne(ctx, bson.M{"token": token}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, entity.ErrDeviceTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("FindByToken: %w", err)
	}
	return doc.toEntity(), nil
}

// FindActiveByUser lists a user's active devices, most recently updated first.
func (repo *DeviceTokenRepo) FindActiveByUser(ctx context.Context, userID string) ([]*entity.DeviceToken, error) {
	cur, err := repo.coll.Find(ctx,
		bson.M{"userId": userID, "active": true},
		options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("FindActiveByUser: %w", err)
	}
	var docs []deviceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("FindActiveByUser: %w", err)
	}

	tokens := make([]*entity.DeviceToken, 0, len(docs))
	for _, doc := range docs {
		tokens = append(tokens, doc.toEntity())
	}
	return tokens, nil
}

func (repo *DeviceTokenRepo) Deactivate(ctx context.Context, token string) error {
	res, err := repo.coll.UpdateOne(ctx,
		bson.M{"token": token},
		bson.M{"$set": bson.M{"active": false, "updatedAt": repo.now().UTC()}})
	if err != nil {
		return fmt.Errorf("Deactivate: %w", err)
	}
	if res.MatchedCount == 0 {
		return entity.ErrDeviceTokenNotFound
	}
	return nil
}

func (repo *DeviceTokenRepo) Delete(ctx context.Context, token string) error {
	res, err := repo.coll.DeleteOne(ctx, bson.M{"token": token})
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if res.DeletedCount == 0 {
		return entity.ErrDeviceTokenNotFound
	}
	return nil
}
