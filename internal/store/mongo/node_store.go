package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Abhishek10299/Droply/internal/domain"
	"github.com/Abhishek10299/Droply/internal/store"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const nodeCollection = "nodes"

// maxTreeDepth bounds every ancestry/subtree traversal. A tree this deep is
// corrupt (or adversarial) and is reported as an error rather than walked.
const maxTreeDepth = 128

// NodeStore is the MongoDB implementation of the store.NodeStore interface.
// All folders and files live in a single collection; the hierarchy is resolved
// by explicit parent-pointer traversal, never by embedded child lists.
type NodeStore struct {
	client *mongo.Client
	col    *mongo.Collection
}

// NewNodeStore creates a new NodeStore. The client is kept for starting
// transactions around multi-document cascades.
func NewNodeStore(client *mongo.Client, db *mongo.Database) *NodeStore {
	return &NodeStore{
		client: client,
		col:    db.Collection(nodeCollection),
	}
}

func ensureNodeIndexes(ctx context.Context, col *mongo.Collection) error {
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// Sibling names are unique only among non-trashed nodes; a trashed
			// node's name never blocks reuse. The collation matches the one used
			// for listings, so uniqueness is case-insensitive too.
			Keys: bson.D{{Key: "owner", Value: 1}, {Key: "parent", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetCollation(&options.Collation{Locale: "en", Strength: 2}).
				SetPartialFilterExpression(bson.D{{Key: "trashed", Value: false}}),
		},
		{
			// A storage key registers exactly one file node, ever.
			Keys: bson.D{{Key: "file.storageKey", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "kind", Value: "file"}}),
		},
		{
			// Retention sweep scans by trash age.
			Keys: bson.D{{Key: "trashed", Value: 1}, {Key: "trashedAt", Value: 1}},
		},
	})
	return err
}

// Create inserts a new node document. The partial unique indexes turn racing
// duplicate creates into store.ErrConflict.
func (s *NodeStore) Create(ctx context.Context, node *domain.Node) error {
	res, err := s.col.InsertOne(ctx, node)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrConflict
		}
		return err
	}
	node.ID = res.InsertedID.(bson.ObjectID)
	return nil
}

// Get finds a node by its ID, ensuring it belongs to the specified owner.
// A node owned by someone else is indistinguishable from a missing one.
func (s *NodeStore) Get(ctx context.Context, ownerID, nodeID bson.ObjectID) (*domain.Node, error) {
	var node domain.Node
	filter := bson.M{
		"_id":   nodeID,
		"owner": ownerID,
	}

	err := s.col.FindOne(ctx, filter).Decode(&node)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &node, nil
}

// List retrieves the direct children of a parent matching the given criteria.
func (s *NodeStore) List(ctx context.Context, ownerID bson.ObjectID, parentID string, filter store.ListFilter, opts store.ListOptions) ([]*domain.Node, error) {
	query := bson.M{
		"owner":  ownerID,
		"parent": parentID,
	}
	if !filter.IncludeTrashed {
		query["trashed"] = false
	}
	if filter.OnlyStarred {
		query["starred"] = true
	}

	findOptions := options.Find()
	if opts.SortBy != "" {
		findOptions.SetSort(bson.D{
			{Key: opts.SortBy, Value: opts.SortOrder},
			{Key: "createdAt", Value: 1},
		})
	} else {
		// Deterministic default: name, then creation time, so a restarted
		// listing observes the same order.
		findOptions.SetSort(bson.D{{Key: "name", Value: 1}, {Key: "createdAt", Value: 1}})
	}
	if opts.SortBy == "" || opts.SortBy == "name" {
		findOptions.SetCollation(&options.Collation{Locale: "en", Strength: 2})
	}
	if opts.Limit > 0 {
		findOptions.SetLimit(opts.Limit)
	}

	cursor, err := s.col.Find(ctx, query, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var nodes []*domain.Node
	if err := cursor.All(ctx, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// Rename sets a new display name. The unique sibling index rejects collisions
// at write time, so the losing writer of a race gets store.ErrConflict.
func (s *NodeStore) Rename(ctx context.Context, ownerID, nodeID bson.ObjectID, name string, now time.Time) error {
	return s.updateOne(ctx, ownerID, nodeID, bson.M{"$set": bson.M{"name": name, "updatedAt": now}})
}

// SetParent reparents a node. The destination's ancestor chain is re-walked
// inside the transaction that commits the write: finding the moved node on
// that chain means the move would close a cycle. Each visited ancestor is also
// touched, so two crossing moves produce a write conflict instead of both
// committing against the snapshots they validated on.
func (s *NodeStore) SetParent(ctx context.Context, ownerID, nodeID bson.ObjectID, parentID string, now time.Time) error {
	update := bson.M{"$set": bson.M{"parent": parentID, "updatedAt": now}}
	if parentID == domain.RootParentID {
		return s.updateOne(ctx, ownerID, nodeID, update)
	}

	return s.withTransaction(ctx, func(ctx context.Context) error {
		cur := parentID
		for depth := 0; cur != domain.RootParentID; depth++ {
			if depth >= maxTreeDepth {
				return fmt.Errorf("ancestor chain of %s exceeds depth bound %d", parentID, maxTreeDepth)
			}
			if cur == nodeID.Hex() {
				return store.ErrConflict
			}
			curID, err := bson.ObjectIDFromHex(cur)
			if err != nil {
				return fmt.Errorf("corrupt parent reference %q: %w", cur, store.ErrNotFound)
			}
			var ancestor domain.Node
			err = s.col.FindOneAndUpdate(ctx,
				bson.M{"_id": curID, "owner": ownerID},
				bson.M{"$set": bson.M{"updatedAt": now}},
			).Decode(&ancestor)
			if errors.Is(err, mongo.ErrNoDocuments) {
				return store.ErrNotFound
			}
			if err != nil {
				return err
			}
			cur = ancestor.ParentID
		}
		return s.updateOne(ctx, ownerID, nodeID, update)
	})
}

// SetStarred flips the starred flag.
func (s *NodeStore) SetStarred(ctx context.Context, ownerID, nodeID bson.ObjectID, starred bool, now time.Time) error {
	return s.updateOne(ctx, ownerID, nodeID, bson.M{"$set": bson.M{"starred": starred, "updatedAt": now}})
}

func (s *NodeStore) updateOne(ctx context.Context, ownerID, nodeID bson.ObjectID, update bson.M) error {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": nodeID, "owner": ownerID}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrConflict
		}
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Descendants collects the whole subtree below nodeID with a breadth-first
// walk over parent pointers. Only folders can have children, so each frontier
// is the folder ids of the previous batch.
func (s *NodeStore) Descendants(ctx context.Context, ownerID, nodeID bson.ObjectID) ([]*domain.Node, error) {
	frontier := []string{nodeID.Hex()}
	var out []*domain.Node

	for depth := 0; len(frontier) > 0; depth++ {
		if depth >= maxTreeDepth {
			return nil, fmt.Errorf("subtree of %s exceeds depth bound %d", nodeID.Hex(), maxTreeDepth)
		}

		cursor, err := s.col.Find(ctx, bson.M{"owner": ownerID, "parent": bson.M{"$in": frontier}})
		if err != nil {
			return nil, err
		}
		var batch []*domain.Node
		if err := cursor.All(ctx, &batch); err != nil {
			return nil, err
		}

		frontier = frontier[:0]
		for _, n := range batch {
			out = append(out, n)
			if n.IsFolder() {
				frontier = append(frontier, n.ID.Hex())
			}
		}
	}
	return out, nil
}

// SetTrashed marks the given nodes trashed or restored inside a transaction,
// so no reader ever observes a trashed ancestor above a live descendant.
func (s *NodeStore) SetTrashed(ctx context.Context, ownerID bson.ObjectID, nodeIDs []bson.ObjectID, trashed bool, at time.Time) error {
	if len(nodeIDs) == 0 {
		return nil
	}

	var update bson.M
	if trashed {
		update = bson.M{"$set": bson.M{"trashed": true, "trashedAt": at, "updatedAt": at}}
	} else {
		update = bson.M{
			"$set":   bson.M{"trashed": false, "updatedAt": at},
			"$unset": bson.M{"trashedAt": ""},
		}
	}

	return s.withTransaction(ctx, func(ctx context.Context) error {
		_, err := s.col.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": nodeIDs}, "owner": ownerID}, update)
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrConflict
		}
		return err
	})
}

// RestoreSubtree re-parents the top node and un-trashes the whole subtree in
// one transaction. The un-trash re-enters the live namespace, so the partial
// unique sibling index rejects a name collision at commit time and the
// transaction rolls back the reparent with it.
func (s *NodeStore) RestoreSubtree(ctx context.Context, ownerID, nodeID bson.ObjectID, parentID string, nodeIDs []bson.ObjectID, at time.Time) error {
	return s.withTransaction(ctx, func(ctx context.Context) error {
		if err := s.updateOne(ctx, ownerID, nodeID, bson.M{"$set": bson.M{"parent": parentID, "updatedAt": at}}); err != nil {
			return err
		}
		_, err := s.col.UpdateMany(ctx,
			bson.M{"_id": bson.M{"$in": nodeIDs}, "owner": ownerID},
			bson.M{
				"$set":   bson.M{"trashed": false, "updatedAt": at},
				"$unset": bson.M{"trashedAt": ""},
			},
		)
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrConflict
		}
		return err
	})
}

// FindByStorageKey looks up the file node referencing a storage key. Spans
// owners; the storage-key unique index makes this a point read.
func (s *NodeStore) FindByStorageKey(ctx context.Context, key string) (*domain.Node, error) {
	var node domain.Node
	err := s.col.FindOne(ctx, bson.M{"kind": domain.KindFile, "file.storageKey": key}).Decode(&node)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &node, nil
}

// Remove deletes the given node documents as one unit. Object-storage cleanup
// is the caller's responsibility.
func (s *NodeStore) Remove(ctx context.Context, ownerID bson.ObjectID, nodeIDs []bson.ObjectID) error {
	if len(nodeIDs) == 0 {
		return nil
	}
	return s.withTransaction(ctx, func(ctx context.Context) error {
		_, err := s.col.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": nodeIDs}, "owner": ownerID})
		return err
	})
}

// ListTrashedBefore returns nodes, oldest first, that were trashed at or
// before the cutoff. It deliberately spans owners: retention is global policy.
func (s *NodeStore) ListTrashedBefore(ctx context.Context, cutoff time.Time, limit int64) ([]*domain.Node, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "trashedAt", Value: 1}})
	if limit > 0 {
		findOptions.SetLimit(limit)
	}

	cursor, err := s.col.Find(ctx, bson.M{"trashed": true, "trashedAt": bson.M{"$lte": cutoff}}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var nodes []*domain.Node
	if err := cursor.All(ctx, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// UsageBytes sums file sizes for one owner, trash included.
func (s *NodeStore) UsageBytes(ctx context.Context, ownerID bson.ObjectID) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"owner": ownerID, "kind": domain.KindFile}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$file.sizeBytes"}}}},
	}

	cursor, err := s.col.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var result []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &result); err != nil {
		return 0, err
	}
	if len(result) == 0 {
		return 0, nil
	}
	return result[0].Total, nil
}

// withTransaction runs fn inside a session transaction. Cascading mutations
// are all-or-nothing so the trash-closure invariant holds for every reader.
func (s *NodeStore) withTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, fn(ctx)
	})
	return err
}
