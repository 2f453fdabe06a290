package store

import (
	"context"
	"errors"
	"time"

	"github.com/Abhishek10299/Droply/internal/domain"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Standard errors returned by the store layer. This allows the service layer
// to handle specific database errors without being coupled to the database
// implementation.
var (
	ErrNotFound = errors.New("requested item not found")
	ErrConflict = errors.New("item already exists")
)

// ListFilter narrows a sibling listing. The zero value lists non-trashed
// children of any starred state.
type ListFilter struct {
	IncludeTrashed bool
	OnlyStarred    bool
}

// ListOptions contains options for listing items, such as sorting and
// pagination. The default ordering is name ascending, then creation time,
// which makes repeated listings restartable and deterministic.
type ListOptions struct {
	SortBy    string
	SortOrder int // 1 for ascending, -1 for descending
	Limit     int64
}

// NodeStore defines the interface for node (folder/file) data operations.
// Every read and write is owner-scoped: a node id belonging to a different
// owner behaves exactly like a missing node.
type NodeStore interface {
	// Create inserts a new node. It returns ErrConflict when a non-trashed
	// sibling with the same name exists under the same parent, or when a file
	// node's storage key was already registered.
	Create(ctx context.Context, node *domain.Node) error

	// Get retrieves a node by id for the given owner. It returns ErrNotFound
	// if the node does not exist or belongs to another owner.
	Get(ctx context.Context, ownerID, nodeID bson.ObjectID) (*domain.Node, error)

	// List retrieves the direct children of a parent, never recursing.
	List(ctx context.Context, ownerID bson.ObjectID, parentID string, filter ListFilter, opts ListOptions) ([]*domain.Node, error)

	// Rename changes a node's display name. Returns ErrConflict on a sibling
	// name collision, enforced by the same conditional write as Create.
	Rename(ctx context.Context, ownerID, nodeID bson.ObjectID, name string, now time.Time) error

	// SetParent reparents a node. The acyclicity check runs inside the commit
	// itself: the destination's ancestor chain is re-walked atomically with the
	// write, so two crossing moves cannot both commit and close a cycle. A move
	// into the node's own subtree and a destination name collision both return
	// ErrConflict.
	SetParent(ctx context.Context, ownerID, nodeID bson.ObjectID, parentID string, now time.Time) error

	// SetStarred flips the starred flag.
	SetStarred(ctx context.Context, ownerID, nodeID bson.ObjectID, starred bool, now time.Time) error

	// Descendants returns every node in the subtree rooted at nodeID,
	// excluding the root itself. Traversal is bounded; a tree deeper than the
	// bound is treated as corrupt and reported as an error.
	Descendants(ctx context.Context, ownerID, nodeID bson.ObjectID) ([]*domain.Node, error)

	// SetTrashed marks the given nodes trashed or restored as one atomic unit.
	SetTrashed(ctx context.Context, ownerID bson.ObjectID, nodeIDs []bson.ObjectID, trashed bool, at time.Time) error

	// RestoreSubtree re-parents the top node to parentID and un-trashes all
	// given nodes as one atomic unit, so a failure can never leave the subtree
	// re-parented but still trashed. A live sibling of the top node's name at
	// the destination fails the whole restore with ErrConflict.
	RestoreSubtree(ctx context.Context, ownerID, nodeID bson.ObjectID, parentID string, nodeIDs []bson.ObjectID, at time.Time) error

	// FindByStorageKey returns the file node referencing the given storage key,
	// across owners, or ErrNotFound. Used by the sweep to avoid reclaiming
	// objects that a registered node still points at.
	FindByStorageKey(ctx context.Context, key string) (*domain.Node, error)

	// Remove deletes the given nodes as one atomic unit. Irreversible.
	Remove(ctx context.Context, ownerID bson.ObjectID, nodeIDs []bson.ObjectID) error

	// ListTrashedBefore returns nodes trashed at or before the cutoff, across
	// all owners. Used by the retention sweep.
	ListTrashedBefore(ctx context.Context, cutoff time.Time, limit int64) ([]*domain.Node, error)

	// UsageBytes sums the sizes of all file nodes, trashed included, for one
	// owner. Trash still occupies storage until purged.
	UsageBytes(ctx context.Context, ownerID bson.ObjectID) (int64, error)
}

// TokenStore defines the interface for upload-token state records.
type TokenStore interface {
	// Create inserts a new token record in the Issued state.
	Create(ctx context.Context, token *domain.UploadToken) error

	// Get retrieves a token record by id. Returns ErrNotFound when missing.
	Get(ctx context.Context, tokenID bson.ObjectID) (*domain.UploadToken, error)

	// Consume atomically transitions the token from Issued to Consumed and
	// returns the updated record. Returns ErrNotFound when the token is not in
	// the Issued state, which is how a second concurrent consumer loses.
	Consume(ctx context.Context, tokenID bson.ObjectID) (*domain.UploadToken, error)

	// MarkRegistered records the created node and moves the token to its
	// terminal Registered state.
	MarkRegistered(ctx context.Context, tokenID, nodeID bson.ObjectID) error

	// MarkStatus force-sets a terminal status (Expired, Revoked) from any
	// non-terminal state. Returns ErrNotFound if the token is already terminal.
	MarkStatus(ctx context.Context, tokenID bson.ObjectID, status domain.TokenStatus) error

	// ListStale returns non-registered tokens whose expiry is at or before the
	// cutoff. Their storage keys may hold orphaned bytes.
	ListStale(ctx context.Context, cutoff time.Time, limit int64) ([]*domain.UploadToken, error)
}

// PurgeItem is a pending object-storage deletion that failed during purge and
// is retried by the sweep.
type PurgeItem struct {
	ID         bson.ObjectID `bson:"_id,omitempty"`
	StorageKey string        `bson:"storageKey"`
	Attempts   int           `bson:"attempts"`
	LastError  string        `bson:"lastError,omitempty"`
	EnqueuedAt time.Time     `bson:"enqueuedAt"`
}

// PurgeQueue holds storage keys whose backing objects still need deleting.
type PurgeQueue interface {
	Enqueue(ctx context.Context, key string, cause error, now time.Time) error
	List(ctx context.Context, limit int64) ([]*PurgeItem, error)
	// Resolve removes an item after a successful delete; RecordFailure bumps
	// its attempt counter so the next sweep tries again.
	Resolve(ctx context.Context, id bson.ObjectID) error
	RecordFailure(ctx context.Context, id bson.ObjectID, cause error) error
}
