package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// RootParentID is the sentinel parent value for top-level nodes. The root itself
// is not stored as a document; every owner implicitly has one.
const RootParentID = "/"

// NodeKind distinguishes folders from files. It is a closed set: a node is
// always exactly one of the two.
type NodeKind string

const (
	KindFolder NodeKind = "folder"
	KindFile   NodeKind = "file"
)

// FileAttrs holds the attributes that only file nodes carry. Folder nodes have
// no storage presence, so the struct is absent (nil) on them rather than
// zero-valued.
type FileAttrs struct {
	// StorageKey is the object-storage key holding the bytes. It is set once at
	// registration and never changes afterwards.
	StorageKey string `bson:"storageKey" json:"-"`
	SizeBytes  int64  `bson:"sizeBytes" json:"sizeBytes"`
	MimeType   string `bson:"mimeType" json:"mimeType"`
}

// Node is a single entry in an owner's folder/file tree. Folders and files live
// in the same collection and differ only by Kind and the presence of File.
type Node struct {
	ID       bson.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID  bson.ObjectID `bson:"owner" json:"owner"`
	ParentID string        `bson:"parent" json:"parent"` // hex id of the parent folder, or "/" for root
	Kind     NodeKind      `bson:"kind" json:"kind"`
	Name     string        `bson:"name" json:"name"`
	File     *FileAttrs    `bson:"file,omitempty" json:"file,omitempty"`

	Starred bool `bson:"starred" json:"starred"`

	// Trashed is stored explicitly (never omitted) so the partial unique index
	// on sibling names can filter on it.
	Trashed   bool       `bson:"trashed" json:"trashed"`
	TrashedAt *time.Time `bson:"trashedAt,omitempty" json:"trashedAt,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// IsFolder reports whether the node can hold children.
func (n *Node) IsFolder() bool {
	return n.Kind == KindFolder
}
