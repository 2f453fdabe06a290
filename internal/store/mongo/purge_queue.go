package mongo

import (
	"context"
	"time"

	"github.com/Abhishek10299/Droply/internal/store"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const purgeQueueCollection = "purge_queue"

// PurgeQueue is the MongoDB implementation of the store.PurgeQueue interface.
type PurgeQueue struct {
	col *mongo.Collection
}

// NewPurgeQueue creates a new PurgeQueue.
func NewPurgeQueue(db *mongo.Database) *PurgeQueue {
	return &PurgeQueue{col: db.Collection(purgeQueueCollection)}
}

// Enqueue records a storage key whose object delete failed. Upserting on the
// key keeps the queue idempotent across repeated purge failures.
func (q *PurgeQueue) Enqueue(ctx context.Context, key string, cause error, now time.Time) error {
	filter := bson.M{"storageKey": key}
	update := bson.M{
		"$set":         bson.M{"lastError": cause.Error()},
		"$setOnInsert": bson.M{"storageKey": key, "attempts": 0, "enqueuedAt": now},
	}
	_, err := q.col.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

// List returns pending deletions, oldest first.
func (q *PurgeQueue) List(ctx context.Context, limit int64) ([]*store.PurgeItem, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "enqueuedAt", Value: 1}})
	if limit > 0 {
		findOptions.SetLimit(limit)
	}

	cursor, err := q.col.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var items []*store.PurgeItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Resolve drops an item after its object was deleted.
func (q *PurgeQueue) Resolve(ctx context.Context, id bson.ObjectID) error {
	_, err := q.col.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// RecordFailure bumps the attempt counter so the next sweep retries.
func (q *PurgeQueue) RecordFailure(ctx context.Context, id bson.ObjectID, cause error) error {
	update := bson.M{
		"$inc": bson.M{"attempts": 1},
		"$set": bson.M{"lastError": cause.Error()},
	}
	_, err := q.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	return err
}
