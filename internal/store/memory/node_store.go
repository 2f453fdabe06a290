// Package memory provides in-memory implementations of the store interfaces.
// They back unit tests and the single-binary development mode; a single mutex
// per store makes every multi-node mutation atomic by construction, matching
// the transactional behavior of the Mongo implementations.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Abhishek10299/Droply/internal/domain"
	"github.com/Abhishek10299/Droply/internal/store"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const maxTreeDepth = 128

// NodeStore is an in-memory store.NodeStore.
type NodeStore struct {
	mu    sync.Mutex
	nodes map[bson.ObjectID]*domain.Node
}

// NewNodeStore creates an empty in-memory node store.
func NewNodeStore() *NodeStore {
	return &NodeStore{nodes: make(map[bson.ObjectID]*domain.Node)}
}

func cloneNode(n *domain.Node) *domain.Node {
	c := *n
	if n.File != nil {
		f := *n.File
		c.File = &f
	}
	if n.TrashedAt != nil {
		at := *n.TrashedAt
		c.TrashedAt = &at
	}
	return &c
}

// nameTaken reports whether a non-trashed sibling with the same name exists.
// Caller holds the lock. Comparison is case-insensitive, matching the
// collation on the Mongo unique sibling index.
func (s *NodeStore) nameTaken(ownerID bson.ObjectID, parentID, name string, exclude bson.ObjectID) bool {
	for _, n := range s.nodes {
		if n.OwnerID == ownerID && n.ParentID == parentID && !n.Trashed &&
			strings.EqualFold(n.Name, name) && n.ID != exclude {
			return true
		}
	}
	return false
}

func (s *NodeStore) storageKeyTaken(key string) bool {
	for _, n := range s.nodes {
		if n.Kind == domain.KindFile && n.File != nil && n.File.StorageKey == key {
			return true
		}
	}
	return false
}

// Create inserts a node, enforcing the same uniqueness rules as the Mongo
// partial indexes.
func (s *NodeStore) Create(ctx context.Context, node *domain.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !node.Trashed && s.nameTaken(node.OwnerID, node.ParentID, node.Name, bson.ObjectID{}) {
		return store.ErrConflict
	}
	if node.Kind == domain.KindFile && node.File != nil && s.storageKeyTaken(node.File.StorageKey) {
		return store.ErrConflict
	}

	if node.ID.IsZero() {
		node.ID = bson.NewObjectID()
	}
	s.nodes[node.ID] = cloneNode(node)
	return nil
}

// Get retrieves an owner's node by id.
func (s *NodeStore) Get(ctx context.Context, ownerID, nodeID bson.ObjectID) (*domain.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[nodeID]
	if !ok || n.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	return cloneNode(n), nil
}

// List returns direct children in (name, createdAt) order.
func (s *NodeStore) List(ctx context.Context, ownerID bson.ObjectID, parentID string, filter store.ListFilter, opts store.ListOptions) ([]*domain.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Node
	for _, n := range s.nodes {
		if n.OwnerID != ownerID || n.ParentID != parentID {
			continue
		}
		if !filter.IncludeTrashed && n.Trashed {
			continue
		}
		if filter.OnlyStarred && !n.Starred {
			continue
		}
		out = append(out, cloneNode(n))
	}

	desc := opts.SortOrder == -1
	sortBy := opts.SortBy
	if sortBy == "" {
		sortBy = "name"
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if desc {
			a, b = b, a
		}
		switch sortBy {
		case "createdAt":
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		default:
			an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
			if an != bn {
				return an < bn
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})

	if opts.Limit > 0 && int64(len(out)) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Rename changes the display name, failing on a live sibling collision.
func (s *NodeStore) Rename(ctx context.Context, ownerID, nodeID bson.ObjectID, name string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[nodeID]
	if !ok || n.OwnerID != ownerID {
		return store.ErrNotFound
	}
	if !n.Trashed && s.nameTaken(ownerID, n.ParentID, name, nodeID) {
		return store.ErrConflict
	}
	n.Name = name
	n.UpdatedAt = now
	return nil
}

// SetParent reparents the node. The acyclicity walk runs under the same lock
// as the write, so two crossing moves validate against committed state and
// the second one fails instead of closing a cycle. Destination name
// collisions also fail with ErrConflict.
func (s *NodeStore) SetParent(ctx context.Context, ownerID, nodeID bson.ObjectID, parentID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[nodeID]
	if !ok || n.OwnerID != ownerID {
		return store.ErrNotFound
	}
	if err := s.checkAcyclic(ownerID, nodeID, parentID); err != nil {
		return err
	}
	if !n.Trashed && s.nameTaken(ownerID, parentID, n.Name, nodeID) {
		return store.ErrConflict
	}
	n.ParentID = parentID
	n.UpdatedAt = now
	return nil
}

// checkAcyclic walks the destination's ancestor chain looking for the moved
// node. Caller holds the lock.
func (s *NodeStore) checkAcyclic(ownerID, nodeID bson.ObjectID, parentID string) error {
	cur := parentID
	for depth := 0; cur != domain.RootParentID; depth++ {
		if depth >= maxTreeDepth {
			return fmt.Errorf("ancestor chain of %s exceeds depth bound %d", parentID, maxTreeDepth)
		}
		if cur == nodeID.Hex() {
			return store.ErrConflict
		}
		pID, err := bson.ObjectIDFromHex(cur)
		if err != nil {
			return store.ErrNotFound
		}
		p, ok := s.nodes[pID]
		if !ok || p.OwnerID != ownerID {
			return store.ErrNotFound
		}
		cur = p.ParentID
	}
	return nil
}

// SetStarred flips the starred flag.
func (s *NodeStore) SetStarred(ctx context.Context, ownerID, nodeID bson.ObjectID, starred bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[nodeID]
	if !ok || n.OwnerID != ownerID {
		return store.ErrNotFound
	}
	n.Starred = starred
	n.UpdatedAt = now
	return nil
}

// Descendants walks the subtree breadth-first, excluding the root.
func (s *NodeStore) Descendants(ctx context.Context, ownerID, nodeID bson.ObjectID) ([]*domain.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frontier := map[string]bool{nodeID.Hex(): true}
	var out []*domain.Node

	for depth := 0; len(frontier) > 0; depth++ {
		if depth >= maxTreeDepth {
			return nil, fmt.Errorf("subtree of %s exceeds depth bound %d", nodeID.Hex(), maxTreeDepth)
		}

		next := map[string]bool{}
		for _, n := range s.nodes {
			if n.OwnerID == ownerID && frontier[n.ParentID] {
				out = append(out, cloneNode(n))
				if n.IsFolder() {
					next[n.ID.Hex()] = true
				}
			}
		}
		frontier = next
	}
	return out, nil
}

// SetTrashed transitions all given nodes under one lock acquisition.
func (s *NodeStore) SetTrashed(ctx context.Context, ownerID bson.ObjectID, nodeIDs []bson.ObjectID, trashed bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range nodeIDs {
		n, ok := s.nodes[id]
		if !ok || n.OwnerID != ownerID {
			continue
		}
		n.Trashed = trashed
		n.UpdatedAt = at
		if trashed {
			t := at
			n.TrashedAt = &t
		} else {
			n.TrashedAt = nil
		}
	}
	return nil
}

// RestoreSubtree re-parents the top node and un-trashes the subtree under one
// lock acquisition, so no failure can separate the two.
func (s *NodeStore) RestoreSubtree(ctx context.Context, ownerID, nodeID bson.ObjectID, parentID string, nodeIDs []bson.ObjectID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[nodeID]
	if !ok || n.OwnerID != ownerID {
		return store.ErrNotFound
	}
	if s.nameTaken(ownerID, parentID, n.Name, nodeID) {
		return store.ErrConflict
	}

	n.ParentID = parentID
	for _, id := range nodeIDs {
		c, ok := s.nodes[id]
		if !ok || c.OwnerID != ownerID {
			continue
		}
		c.Trashed = false
		c.TrashedAt = nil
		c.UpdatedAt = at
	}
	return nil
}

// FindByStorageKey looks up the file node referencing a storage key, across
// owners.
func (s *NodeStore) FindByStorageKey(ctx context.Context, key string) (*domain.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.nodes {
		if n.Kind == domain.KindFile && n.File != nil && n.File.StorageKey == key {
			return cloneNode(n), nil
		}
	}
	return nil, store.ErrNotFound
}

// Remove deletes the given nodes under one lock acquisition.
func (s *NodeStore) Remove(ctx context.Context, ownerID bson.ObjectID, nodeIDs []bson.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range nodeIDs {
		if n, ok := s.nodes[id]; ok && n.OwnerID == ownerID {
			delete(s.nodes, id)
		}
	}
	return nil
}

// ListTrashedBefore returns nodes trashed at or before the cutoff, oldest
// first, across owners.
func (s *NodeStore) ListTrashedBefore(ctx context.Context, cutoff time.Time, limit int64) ([]*domain.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Node
	for _, n := range s.nodes {
		if n.Trashed && n.TrashedAt != nil && !n.TrashedAt.After(cutoff) {
			out = append(out, cloneNode(n))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TrashedAt.Before(*out[j].TrashedAt)
	})
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UsageBytes sums file sizes for one owner, trash included.
func (s *NodeStore) UsageBytes(ctx context.Context, ownerID bson.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, n := range s.nodes {
		if n.OwnerID == ownerID && n.Kind == domain.KindFile && n.File != nil {
			total += n.File.SizeBytes
		}
	}
	return total, nil
}
