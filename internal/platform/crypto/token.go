package crypto

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrInvalidToken is returned for any credential that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims are the claims carried by a caller's access token. Identity
// issuance lives outside this service; we only verify and extract the owner.
type AccessClaims struct {
	OwnerID bson.ObjectID `json:"ownerId"`
	jwt.RegisteredClaims
}

// AccessVerifier turns a caller's credential into a stable owner identity.
type AccessVerifier interface {
	Verify(credential string) (*AccessClaims, error)
}

// JWTVerifier verifies HS256 access tokens against a shared secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the given signing secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify checks the signature and expiry and returns the claims.
func (v *JWTVerifier) Verify(credential string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(credential, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.OwnerID.IsZero() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// UploadClaims bind a signed upload credential to its owner, destination and
// constraints. The jti (RegisteredClaims.ID) is the hex id of the server-side
// token record that enforces single use.
type UploadClaims struct {
	OwnerID    bson.ObjectID `json:"ownerId"`
	ParentID   string        `json:"parent"`
	Name       string        `json:"name"`
	MaxSize    int64         `json:"maxSize"`
	MimeTypes  []string      `json:"mimeTypes"`
	StorageKey string        `json:"storageKey"`
	jwt.RegisteredClaims
}

// UploadTokenSigner signs and verifies upload credentials.
type UploadTokenSigner interface {
	Sign(claims *UploadClaims) (string, error)
	Parse(credential string) (*UploadClaims, error)
}

// JWTUploadSigner is a concrete UploadTokenSigner using HS256.
type JWTUploadSigner struct {
	secret []byte
}

// NewJWTUploadSigner creates a signer for the given secret.
func NewJWTUploadSigner(secret string) *JWTUploadSigner {
	return &JWTUploadSigner{secret: []byte(secret)}
}

// Sign produces the signed upload credential handed to the client.
func (g *JWTUploadSigner) Sign(claims *UploadClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign upload token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and returns the claims. Expiry is deliberately
// not validated here: the broker checks the state record against its own
// clock, so a token that expired in flight is still parseable and its record
// can be marked expired.
func (g *JWTUploadSigner) Parse(credential string) (*UploadClaims, error) {
	token, err := jwt.ParseWithClaims(credential, &UploadClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return g.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*UploadClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// NewExpiry is a small helper for building RegisteredClaims timestamps.
func NewExpiry(now time.Time, ttl time.Duration) *jwt.NumericDate {
	return jwt.NewNumericDate(now.Add(ttl))
}
