package crypto

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	ownerID := bson.NewObjectID()
	claims := &AccessClaims{
		OwnerID: ownerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: NewExpiry(time.Now(), time.Hour),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	got, err := NewJWTVerifier("secret").Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, ownerID, got.OwnerID)
}

func TestJWTVerifier_RejectsBadCredentials(t *testing.T) {
	ownerID := bson.NewObjectID()

	expired := &AccessClaims{
		OwnerID: ownerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	signedExpired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expired).SignedString([]byte("secret"))
	require.NoError(t, err)

	fresh := &AccessClaims{
		OwnerID: ownerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: NewExpiry(time.Now(), time.Hour),
		},
	}
	signedWrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, fresh).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	noOwner := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: NewExpiry(time.Now(), time.Hour),
		},
	}
	signedNoOwner, err := jwt.NewWithClaims(jwt.SigningMethodHS256, noOwner).SignedString([]byte("secret"))
	require.NoError(t, err)

	verifier := NewJWTVerifier("secret")
	for name, credential := range map[string]string{
		"garbage":       "not-a-jwt",
		"expired":       signedExpired,
		"wrong key":     signedWrongKey,
		"missing owner": signedNoOwner,
	} {
		_, err := verifier.Verify(credential)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestJWTUploadSigner_RoundTrip(t *testing.T) {
	signer := NewJWTUploadSigner("upload-secret")

	claims := &UploadClaims{
		OwnerID:    bson.NewObjectID(),
		ParentID:   "/",
		Name:       "cat.png",
		MaxSize:    5 << 20,
		MimeTypes:  []string{"image/png"},
		StorageKey: "owner/key",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        bson.NewObjectID().Hex(),
			ExpiresAt: NewExpiry(time.Now(), 90*time.Second),
		},
	}

	signed, err := signer.Sign(claims)
	require.NoError(t, err)

	got, err := signer.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, claims.OwnerID, got.OwnerID)
	assert.Equal(t, claims.StorageKey, got.StorageKey)
	assert.Equal(t, claims.ID, got.ID)
}

// A credential that expired in flight must still parse so the broker can mark
// its record expired; expiry policy lives on the record, not in the JWT check.
func TestJWTUploadSigner_ParsesExpiredCredential(t *testing.T) {
	signer := NewJWTUploadSigner("upload-secret")

	claims := &UploadClaims{
		OwnerID:    bson.NewObjectID(),
		StorageKey: "owner/key",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        bson.NewObjectID().Hex(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	signed, err := signer.Sign(claims)
	require.NoError(t, err)

	got, err := signer.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, claims.StorageKey, got.StorageKey)
}

func TestJWTUploadSigner_RejectsTampering(t *testing.T) {
	signer := NewJWTUploadSigner("upload-secret")

	signed, err := signer.Sign(&UploadClaims{
		OwnerID:    bson.NewObjectID(),
		StorageKey: "owner/key",
		RegisteredClaims: jwt.RegisteredClaims{
			ID: bson.NewObjectID().Hex(),
		},
	})
	require.NoError(t, err)

	_, err = signer.Parse(signed + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewJWTUploadSigner("different-secret").Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
