package service

import (
	"context"

	"github.com/Abhishek10299/Droply/internal/domain"
	"github.com/Abhishek10299/Droply/internal/store"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Gate is the authorization gate in front of every node operation. All loads
// are owner-scoped, so a node belonging to another owner is reported exactly
// like a missing one; foreign ids never leak their existence.
type Gate struct {
	nodes store.NodeStore
}

// NewGate creates a Gate over the given node store.
func NewGate(nodes store.NodeStore) *Gate {
	return &Gate{nodes: nodes}
}

// Node loads a node owned by ownerID, trashed or not.
func (g *Gate) Node(ctx context.Context, ownerID, nodeID bson.ObjectID) (*domain.Node, error) {
	return g.nodes.Get(ctx, ownerID, nodeID)
}

// LiveNode loads a node owned by ownerID that is not trashed. Trashed nodes
// are "missing" for operations that require a live one.
func (g *Gate) LiveNode(ctx context.Context, ownerID, nodeID bson.ObjectID) (*domain.Node, error) {
	node, err := g.nodes.Get(ctx, ownerID, nodeID)
	if err != nil {
		return nil, err
	}
	if node.Trashed {
		return nil, store.ErrNotFound
	}
	return node, nil
}

// ParentFolder validates a parent reference for creation or placement: it
// must be the root or a live folder owned by ownerID. Returns nil for the
// root, which has no stored node.
func (g *Gate) ParentFolder(ctx context.Context, ownerID bson.ObjectID, parentID string) (*domain.Node, error) {
	if parentID == domain.RootParentID {
		return nil, nil
	}

	pID, err := bson.ObjectIDFromHex(parentID)
	if err != nil {
		return nil, store.ErrNotFound
	}

	parent, err := g.LiveNode(ctx, ownerID, pID)
	if err != nil {
		return nil, err
	}
	if !parent.IsFolder() {
		return nil, store.ErrNotFound
	}
	return parent, nil
}
