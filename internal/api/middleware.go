package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/Abhishek10299/Droply/internal/platform/crypto"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// CtxKey is a custom type for context keys to avoid collisions.
type CtxKey string

// OwnerIDKey is the key for storing the verified owner's ID in the request
// context.
const OwnerIDKey CtxKey = "ownerID"

// AuthMiddleware verifies caller credentials. It is the whole identity
// boundary of the service: everything downstream only sees an owner id.
type AuthMiddleware struct {
	verifier crypto.AccessVerifier
}

// NewAuthMiddleware creates a new AuthMiddleware.
func NewAuthMiddleware(verifier crypto.AccessVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// RequireAuth checks for a valid access token in the Authorization header or
// the "access-token" cookie. On success the owner's ID is added to the
// request context for downstream handlers.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := bearerToken(r)
		if credential == "" {
			if cookie, err := r.Cookie("access-token"); err == nil {
				credential = cookie.Value
			}
		}
		if credential == "" {
			writeError(w, NewUnauthorizedError("Missing authentication token"))
			return
		}

		claims, err := m.verifier.Verify(credential)
		if err != nil {
			writeError(w, NewUnauthorizedError("Invalid authentication token"))
			return
		}

		ctx := context.WithValue(r.Context(), OwnerIDKey, claims.OwnerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// GetOwnerIDFromContext is a helper function to safely retrieve the owner ID
// from the context.
func GetOwnerIDFromContext(ctx context.Context) (bson.ObjectID, bool) {
	ownerID, ok := ctx.Value(OwnerIDKey).(bson.ObjectID)
	return ownerID, ok
}
