package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Abhishek10299/Droply/internal/domain"
	"github.com/Abhishek10299/Droply/internal/platform/objectstore"
	"github.com/Abhishek10299/Droply/internal/store"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// PurgeReport summarizes a purge. Failed object deletions are not fatal: the
// metadata is gone regardless and the keys sit in the purge queue for retry.
type PurgeReport struct {
	NodesRemoved   int `json:"nodesRemoved"`
	ObjectsDeleted int `json:"objectsDeleted"`
	ObjectsQueued  int `json:"objectsQueued"`
}

// LifecycleService defines the interface for trash, restore and purge logic.
type LifecycleService interface {
	// Trash soft-deletes a node and every descendant as one atomic unit.
	// Idempotent: trashing a trashed node is a no-op.
	Trash(ctx context.Context, ownerID, nodeID bson.ObjectID) error

	// Restore un-trashes a subtree by its top node. If the original parent
	// was purged in the meantime the node is re-attached to the root.
	Restore(ctx context.Context, ownerID, nodeID bson.ObjectID) (*domain.Node, error)

	// Purge irreversibly removes a subtree's metadata and backing objects.
	Purge(ctx context.Context, ownerID, nodeID bson.ObjectID) (*PurgeReport, error)
}

// lifecycleService is the concrete implementation of the LifecycleService
// interface.
type lifecycleService struct {
	nodes   store.NodeStore
	queue   store.PurgeQueue
	storage objectstore.Storage
	gate    *Gate
	clock   Clock
}

// NewLifecycleService creates a new instance of the lifecycle service.
func NewLifecycleService(nodes store.NodeStore, queue store.PurgeQueue, storage objectstore.Storage, gate *Gate, clock Clock) LifecycleService {
	return &lifecycleService{
		nodes:   nodes,
		queue:   queue,
		storage: storage,
		gate:    gate,
		clock:   clock,
	}
}

// Trash marks the node and all descendants trashed in one transition, so no
// reader ever sees a trashed folder above a live child.
func (s *lifecycleService) Trash(ctx context.Context, ownerID, nodeID bson.ObjectID) error {
	node, err := s.gate.Node(ctx, ownerID, nodeID)
	if err != nil {
		return err
	}
	if node.Trashed {
		return nil
	}

	ids, err := s.subtreeIDs(ctx, ownerID, node)
	if err != nil {
		return err
	}
	return s.nodes.SetTrashed(ctx, ownerID, ids, true, s.clock())
}

// Restore un-trashes the subtree rooted at nodeID. Valid only on the top of a
// trashed subtree: a node whose parent is itself trashed cannot be restored
// without restoring the parent first.
func (s *lifecycleService) Restore(ctx context.Context, ownerID, nodeID bson.ObjectID) (*domain.Node, error) {
	node, err := s.gate.Node(ctx, ownerID, nodeID)
	if err != nil {
		return nil, err
	}
	if !node.Trashed {
		return nil, store.ErrNotFound
	}

	targetParent := node.ParentID
	if node.ParentID != domain.RootParentID {
		pID, err := bson.ObjectIDFromHex(node.ParentID)
		if err != nil {
			return nil, fmt.Errorf("corrupt parent reference %q: %w", node.ParentID, store.ErrNotFound)
		}
		parent, err := s.nodes.Get(ctx, ownerID, pID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// Parent was purged from under the trashed subtree; re-attach the
			// restored node at the root.
			targetParent = domain.RootParentID
		case err != nil:
			return nil, err
		case parent.Trashed:
			return nil, fmt.Errorf("parent folder is trashed, restore it instead: %w", store.ErrConflict)
		}
	}

	// The restored name re-enters the live namespace; a live sibling with the
	// same name blocks the restore until the caller renames one of them.
	taken, err := nameExists(ctx, s.nodes, ownerID, targetParent, node.Name)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("name %q already exists at destination: %w", node.Name, store.ErrConflict)
	}

	ids, err := s.subtreeIDs(ctx, ownerID, node)
	if err != nil {
		return nil, err
	}
	// Reparent and un-trash commit together; the store re-checks the name at
	// the destination, so a sibling created after the check above still fails
	// the whole restore instead of half of it.
	if err := s.nodes.RestoreSubtree(ctx, ownerID, nodeID, targetParent, ids, s.clock()); err != nil {
		return nil, err
	}
	return s.nodes.Get(ctx, ownerID, nodeID)
}

// Purge removes the subtree's metadata first, then deletes backing objects
// one by one. A failed object delete is queued for the retry sweep and never
// aborts the rest of the purge.
func (s *lifecycleService) Purge(ctx context.Context, ownerID, nodeID bson.ObjectID) (*PurgeReport, error) {
	node, err := s.gate.Node(ctx, ownerID, nodeID)
	if err != nil {
		return nil, err
	}

	descendants, err := s.nodes.Descendants(ctx, ownerID, node.ID)
	if err != nil {
		return nil, err
	}
	all := append([]*domain.Node{node}, descendants...)

	ids := make([]bson.ObjectID, len(all))
	for i, n := range all {
		ids[i] = n.ID
	}
	if err := s.nodes.Remove(ctx, ownerID, ids); err != nil {
		return nil, err
	}

	report := &PurgeReport{NodesRemoved: len(all)}
	now := s.clock()
	for _, n := range all {
		if n.Kind != domain.KindFile || n.File == nil {
			continue
		}
		if err := s.storage.Remove(ctx, n.File.StorageKey); err != nil {
			report.ObjectsQueued++
			if qErr := s.queue.Enqueue(ctx, n.File.StorageKey, err, now); qErr != nil {
				return report, fmt.Errorf("failed to queue object deletion for %q: %w", n.File.StorageKey, qErr)
			}
			continue
		}
		report.ObjectsDeleted++
	}
	return report, nil
}

func (s *lifecycleService) subtreeIDs(ctx context.Context, ownerID bson.ObjectID, node *domain.Node) ([]bson.ObjectID, error) {
	descendants, err := s.nodes.Descendants(ctx, ownerID, node.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]bson.ObjectID, 0, len(descendants)+1)
	ids = append(ids, node.ID)
	for _, d := range descendants {
		ids = append(ids, d.ID)
	}
	return ids, nil
}
