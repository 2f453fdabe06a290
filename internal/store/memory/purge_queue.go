package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Abhishek10299/Droply/internal/store"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// PurgeQueue is an in-memory store.PurgeQueue.
type PurgeQueue struct {
	mu    sync.Mutex
	items map[bson.ObjectID]*store.PurgeItem
	byKey map[string]bson.ObjectID
}

// NewPurgeQueue creates an empty in-memory purge queue.
func NewPurgeQueue() *PurgeQueue {
	return &PurgeQueue{
		items: make(map[bson.ObjectID]*store.PurgeItem),
		byKey: make(map[string]bson.ObjectID),
	}
}

// Enqueue records a failed object deletion, idempotently per storage key.
func (q *PurgeQueue) Enqueue(ctx context.Context, key string, cause error, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if id, ok := q.byKey[key]; ok {
		q.items[id].LastError = cause.Error()
		return nil
	}
	id := bson.NewObjectID()
	q.items[id] = &store.PurgeItem{
		ID:         id,
		StorageKey: key,
		LastError:  cause.Error(),
		EnqueuedAt: now,
	}
	q.byKey[key] = id
	return nil
}

// List returns pending deletions, oldest first.
func (q *PurgeQueue) List(ctx context.Context, limit int64) ([]*store.PurgeItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*store.PurgeItem
	for _, item := range q.items {
		c := *item
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Resolve drops a completed item.
func (q *PurgeQueue) Resolve(ctx context.Context, id bson.ObjectID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if item, ok := q.items[id]; ok {
		delete(q.byKey, item.StorageKey)
		delete(q.items, id)
	}
	return nil
}

// RecordFailure bumps the attempt counter.
func (q *PurgeQueue) RecordFailure(ctx context.Context, id bson.ObjectID, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if item, ok := q.items[id]; ok {
		item.Attempts++
		item.LastError = cause.Error()
	}
	return nil
}
