package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// TokenStatus is the state of a single upload attempt. Transitions are
// one-way: Issued -> Consumed -> Registered, or Issued -> {Expired, Revoked}.
type TokenStatus string

const (
	TokenIssued     TokenStatus = "issued"
	TokenConsumed   TokenStatus = "consumed"
	TokenRegistered TokenStatus = "registered"
	TokenExpired    TokenStatus = "expired"
	TokenRevoked    TokenStatus = "revoked"
)

// UploadToken is the server-side record backing a signed upload credential.
// The credential handed to the client is a JWT whose jti is this record's ID;
// single-use enforcement happens on this record, not on the JWT.
type UploadToken struct {
	ID      bson.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID bson.ObjectID `bson:"owner" json:"owner"`

	// Bound upload constraints, fixed at issuance.
	ParentID  string   `bson:"parent" json:"parent"`
	Name      string   `bson:"name" json:"name"`
	MaxSize   int64    `bson:"maxSize" json:"maxSize"`
	MimeTypes []string `bson:"mimeTypes" json:"mimeTypes"`

	// StorageKey is allocated at issuance; the presigned URL only grants a
	// write to this exact key.
	StorageKey string `bson:"storageKey" json:"storageKey"`

	Status TokenStatus `bson:"status" json:"status"`

	// NodeID is set when the token reaches Registered and lets a replayed
	// registration return the node that was already created.
	NodeID bson.ObjectID `bson:"nodeID,omitempty" json:"nodeID,omitempty"`

	ExpiresAt time.Time `bson:"expiresAt" json:"expiresAt"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Terminal reports whether the token can never be consumed again.
func (t *UploadToken) Terminal() bool {
	return t.Status == TokenRegistered || t.Status == TokenExpired || t.Status == TokenRevoked
}

// AllowsMime reports whether the given mime type is inside the token's
// allowlist. An empty allowlist permits nothing.
func (t *UploadToken) AllowsMime(mime string) bool {
	for _, m := range t.MimeTypes {
		if m == mime {
			return true
		}
	}
	return false
}
