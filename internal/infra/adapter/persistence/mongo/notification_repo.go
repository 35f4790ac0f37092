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

type EmailRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewEmailRepo(db *mongo.Database) repository.EmailNotificationRepository {
	return &EmailRepo{coll: db.Collection(emailCollection), now: time.Now}
}

func (repo *EmailRepo) Save(ctx context.Context, n *entity.EmailNotification) error {
	if err := upsert(ctx, repo.coll, n.ID, toEmailDoc(n)); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

func (repo *EmailRepo) SaveAll(ctx context.Context, ns []*entity.EmailNotification) error {
	docs := make(map[string]any, len(ns))
	order := make([]string, 0, len(ns))
	for _, n := range ns {
		if _, seen := docs[n.ID]; !seen {
			order = append(order, n.ID)
		}
		docs[n.ID] = toEmailDoc(n)
	}
	if err := bulkUpsert(ctx, repo.coll, order, docs); err != nil {
		return fmt.Errorf("SaveAll: %w", err)
	}
	return nil
}

func (repo *EmailRepo) FindByID(ctx context.Context, id string) (*entity.EmailNotification, error) {
	var doc emailDoc
	if err := findOne(ctx, repo.coll, bson.M{"_id": id}, &doc); err != nil {
		return nil, fmt.Errorf("FindByID: %w", err)
	}
	return doc.toEntity(), nil
}

// FindByEventID returns the most recent notification created for eventID.
func (repo *EmailRepo) FindByEventID(ctx context.Context, eventID string) (*entity.EmailNotification, error) {
	var doc emailDoc
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if err := findOne(ctx, repo.coll, bson.M{"eventId": eventID}, &doc, opts); err != nil {
		return nil, fmt.Errorf("FindByEventID: %w", err)
	}
	return doc.toEntity(), nil
}

func (repo *EmailRepo) ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := expirePending(ctx, repo.coll, cutoff, repo.now())
	if err != nil {
		return 0, fmt.Errorf("ExpirePendingBefore: %w", err)
	}
	return n, nil
}

type PushRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewPushRepo(db *mongo.Database) repository.PushNotificationRepository {
	return &PushRepo{coll: db.Collection(pushCollection), now: time.Now}
}

func (repo *PushRepo) Save(ctx context.Context, n *entity.PushNotification) error {
	if err := upsert(ctx, repo.coll, n.ID, toPushDoc(n)); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

func (repo *PushRepo) SaveAll(ctx context.Context, ns []*entity.PushNotification) error {
	docs := make(map[string]any, len(ns))
	order := make([]string, 0, len(ns))
	for _, n := range ns {
		if _, seen := docs[n.ID]; !seen {
			order = append(order, n.ID)
		}
		docs[n.ID] = toPushDoc(n)
	}
	if err := bulkUpsert(ctx, repo.coll, order, docs); err != nil {
		return fmt.Errorf("SaveAll: %w", err)
	}
	return nil
}

func (repo *PushRepo) FindByID(ctx context.Context, id string) (*entity.PushNotification, error) {
	var doc pushDoc
	if err := findOne(ctx, repo.coll, bson.M{"_id": id}, &doc); err != nil {
		return nil, fmt.Errorf("FindByID: %w", err)
	}
	return doc.toEntity(), nil
}

func (repo *PushRepo) ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := expirePending(ctx, repo.coll, cutoff, repo.now())
	if err != nil {
		return 0, fmt.Errorf("ExpirePendingBefore: %w", err)
	}
	return n, nil
}

func upsert(ctx context.Context, coll *mongo.Collection, id string, doc any) error {
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

// bulkUpsert replaces every document in one unordered round trip.
// A later write for the same id wins, so order lists each id once.
func bulkUpsert(ctx context.Context, coll *mongo.Collection, order []string, docs map[string]any) error {
	if len(order) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(order))
	for _, id := range order {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": id}).
			SetReplacement(docs[id]).
			SetUpsert(true))
	}
	_, err := coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}

func findOne(ctx context.Context, coll *mongo.Collection, filter bson.M, out any, opts ...options.Lister[options.FindOneOptions]) error {
	err := coll.FindOne(ctx, filter, opts...).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return entity.ErrNotFound
	}
	return err
}

// expirePending moves PENDING documents created before cutoff to EXPIRED.
func expirePending(ctx context.Context, coll *mongo.Collection, cutoff, now time.Time) (int64, error) {
	res, err := coll.UpdateMany(ctx,
		bson.M{"status": string(entity.StatusPending), "createdAt": bson.M{"$lt": cutoff.UTC()}},
		bson.M{"$set": bson.M{"status": string(entity.StatusExpired), "updatedAt": now.UTC()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
