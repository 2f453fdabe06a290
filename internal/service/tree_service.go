package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Abhishek10299/Droply/internal/domain"
	"github.com/Abhishek10299/Droply/internal/store"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// maxPathDepth bounds ancestor walks. The invariants keep trees shallow; a
// walk this long means a corrupt parent chain and is reported, not followed.
const maxPathDepth = 128

// TreeService defines the interface for folder/file tree business logic.
// We define an interface to allow for mock implementations in tests.
type TreeService interface {
	// CreateFolder creates an empty folder under parentID ("/" for root).
	CreateFolder(ctx context.Context, ownerID bson.ObjectID, parentID, name string) (*domain.Node, error)

	// RegisterFile creates a file node. Called by the upload broker after a
	// registered upload passes its checks; not exposed to callers directly.
	RegisterFile(ctx context.Context, ownerID bson.ObjectID, parentID, name string, attrs domain.FileAttrs) (*domain.Node, error)

	// Move reparents a node. Moving a node into itself or any of its own
	// descendants fails with store.ErrConflict and changes nothing.
	Move(ctx context.Context, ownerID, nodeID bson.ObjectID, newParentID string) (*domain.Node, error)

	// Rename changes a node's display name in place.
	Rename(ctx context.Context, ownerID, nodeID bson.ObjectID, name string) (*domain.Node, error)

	// SetStarred flips the starred flag. Works on trashed nodes too; starring
	// is independent of tree position and trash state.
	SetStarred(ctx context.Context, ownerID, nodeID bson.ObjectID, starred bool) (*domain.Node, error)

	// ListChildren lists the direct children of a parent.
	ListChildren(ctx context.Context, ownerID bson.ObjectID, parentID string, filter store.ListFilter, sortBy string, limit int64) ([]*domain.Node, error)

	// ResolvePath returns the chain of nodes from the root down to nodeID,
	// inclusive.
	ResolvePath(ctx context.Context, ownerID, nodeID bson.ObjectID) ([]*domain.Node, error)
}

// treeService is the concrete implementation of the TreeService interface.
type treeService struct {
	nodes store.NodeStore
	gate  *Gate
	clock Clock
}

// NewTreeService creates a new instance of the tree service.
func NewTreeService(nodes store.NodeStore, gate *Gate, clock Clock) TreeService {
	return &treeService{nodes: nodes, gate: gate, clock: clock}
}

// parseSort converts an API sort string into store-compatible fields.
func parseSort(sortBy string) (field string, order int) {
	switch sortBy {
	case "date_asc":
		return "createdAt", 1
	case "date_desc":
		return "createdAt", -1
	case "alp_desc":
		return "name", -1
	default: // "alp_asc" and everything else
		return "name", 1
	}
}

// CreateFolder handles the business logic for creating a new folder.
func (s *treeService) CreateFolder(ctx context.Context, ownerID bson.ObjectID, parentID, name string) (*domain.Node, error) {
	if name == "" {
		return nil, errors.New("folder name cannot be empty")
	}

	if _, err := s.gate.ParentFolder(ctx, ownerID, parentID); err != nil {
		return nil, fmt.Errorf("could not find parent folder: %w", err)
	}

	now := s.clock()
	node := &domain.Node{
		OwnerID:   ownerID,
		ParentID:  parentID,
		Kind:      domain.KindFolder,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.nodes.Create(ctx, node); err != nil {
		return nil, fmt.Errorf("failed to create folder in store: %w", err)
	}
	return node, nil
}

// RegisterFile creates a file node after the broker validated the upload.
// The storage key is written exactly once here and never updated.
func (s *treeService) RegisterFile(ctx context.Context, ownerID bson.ObjectID, parentID, name string, attrs domain.FileAttrs) (*domain.Node, error) {
	if name == "" {
		return nil, errors.New("file name cannot be empty")
	}

	if _, err := s.gate.ParentFolder(ctx, ownerID, parentID); err != nil {
		return nil, fmt.Errorf("could not find parent folder for upload: %w", err)
	}

	now := s.clock()
	node := &domain.Node{
		OwnerID:   ownerID,
		ParentID:  parentID,
		Kind:      domain.KindFile,
		Name:      name,
		File:      &attrs,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.nodes.Create(ctx, node); err != nil {
		return nil, fmt.Errorf("failed to register file in store: %w", err)
	}
	return node, nil
}

// Move reparents a node after checking that the destination is a live folder.
// The acyclicity check is not done here: the store re-walks the destination's
// ancestors atomically with the write, so two crossing moves cannot both pass
// validation and then both commit.
func (s *treeService) Move(ctx context.Context, ownerID, nodeID bson.ObjectID, newParentID string) (*domain.Node, error) {
	node, err := s.gate.LiveNode(ctx, ownerID, nodeID)
	if err != nil {
		return nil, err
	}

	if newParentID != domain.RootParentID {
		if newParentID == nodeID.Hex() {
			return nil, fmt.Errorf("cannot move a node into itself: %w", store.ErrConflict)
		}
		if _, err := s.gate.ParentFolder(ctx, ownerID, newParentID); err != nil {
			return nil, err
		}
	}

	if err := s.nodes.SetParent(ctx, ownerID, nodeID, newParentID, s.clock()); err != nil {
		return nil, err
	}
	return s.nodes.Get(ctx, ownerID, node.ID)
}

// Rename changes a node's display name, keeping its parent.
func (s *treeService) Rename(ctx context.Context, ownerID, nodeID bson.ObjectID, name string) (*domain.Node, error) {
	if name == "" {
		return nil, errors.New("name cannot be empty")
	}
	if _, err := s.gate.LiveNode(ctx, ownerID, nodeID); err != nil {
		return nil, err
	}
	if err := s.nodes.Rename(ctx, ownerID, nodeID, name, s.clock()); err != nil {
		return nil, err
	}
	return s.nodes.Get(ctx, ownerID, nodeID)
}

// SetStarred flips the starred flag without structural validation.
func (s *treeService) SetStarred(ctx context.Context, ownerID, nodeID bson.ObjectID, starred bool) (*domain.Node, error) {
	if _, err := s.gate.Node(ctx, ownerID, nodeID); err != nil {
		return nil, err
	}
	if err := s.nodes.SetStarred(ctx, ownerID, nodeID, starred, s.clock()); err != nil {
		return nil, err
	}
	return s.nodes.Get(ctx, ownerID, nodeID)
}

// ListChildren retrieves the direct children of a parent. Listing inside a
// trashed folder is only possible when the filter includes trash.
func (s *treeService) ListChildren(ctx context.Context, ownerID bson.ObjectID, parentID string, filter store.ListFilter, sortBy string, limit int64) ([]*domain.Node, error) {
	if parentID != domain.RootParentID {
		pID, err := bson.ObjectIDFromHex(parentID)
		if err != nil {
			return nil, store.ErrNotFound
		}
		parent, err := s.gate.Node(ctx, ownerID, pID)
		if err != nil {
			return nil, err
		}
		if !parent.IsFolder() {
			return nil, store.ErrNotFound
		}
		if parent.Trashed && !filter.IncludeTrashed {
			return nil, store.ErrNotFound
		}
	}

	field, order := parseSort(sortBy)
	opts := store.ListOptions{SortBy: field, SortOrder: order, Limit: limit}

	children, err := s.nodes.List(ctx, ownerID, parentID, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list children from store: %w", err)
	}
	return children, nil
}

// ResolvePath walks parent pointers from the node up and returns the chain in
// root-to-node order. A broken link anywhere in the chain is NotFound; the
// invariants make that impossible, but the walk defends against corruption.
func (s *treeService) ResolvePath(ctx context.Context, ownerID, nodeID bson.ObjectID) ([]*domain.Node, error) {
	node, err := s.gate.Node(ctx, ownerID, nodeID)
	if err != nil {
		return nil, err
	}

	chain := []*domain.Node{node}
	cur := node
	for depth := 0; cur.ParentID != domain.RootParentID; depth++ {
		if depth >= maxPathDepth {
			return nil, fmt.Errorf("ancestor chain of %s exceeds depth bound %d", nodeID.Hex(), maxPathDepth)
		}
		pID, err := bson.ObjectIDFromHex(cur.ParentID)
		if err != nil {
			return nil, fmt.Errorf("corrupt parent reference %q: %w", cur.ParentID, store.ErrNotFound)
		}
		cur, err = s.nodes.Get(ctx, ownerID, pID)
		if err != nil {
			return nil, err
		}
		chain = append(chain, cur)
	}

	// Reverse in place: collected node-to-root, callers want root-to-node.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// nameExists reports whether a live child of parentID already uses the name.
// Used by restore, where the untrashed node re-enters the live namespace.
func nameExists(ctx context.Context, nodes store.NodeStore, ownerID bson.ObjectID, parentID, name string) (bool, error) {
	children, err := nodes.List(ctx, ownerID, parentID, store.ListFilter{}, store.ListOptions{})
	if err != nil {
		return false, err
	}
	for _, c := range children {
		if strings.EqualFold(c.Name, name) {
			return true, nil
		}
	}
	return false, nil
}
