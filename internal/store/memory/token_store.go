package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Abhishek10299/Droply/internal/domain"
	"github.com/Abhishek10299/Droply/internal/store"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// TokenStore is an in-memory store.TokenStore. The mutex gives Consume the
// same check-and-swap guarantee as the Mongo conditional update.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[bson.ObjectID]*domain.UploadToken
}

// NewTokenStore creates an empty in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[bson.ObjectID]*domain.UploadToken)}
}

func cloneToken(t *domain.UploadToken) *domain.UploadToken {
	c := *t
	c.MimeTypes = append([]string(nil), t.MimeTypes...)
	return &c
}

// Create inserts a token record.
func (s *TokenStore) Create(ctx context.Context, token *domain.UploadToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token.ID.IsZero() {
		token.ID = bson.NewObjectID()
	}
	s.tokens[token.ID] = cloneToken(token)
	return nil
}

// Get retrieves a token record by id.
func (s *TokenStore) Get(ctx context.Context, tokenID bson.ObjectID) (*domain.UploadToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneToken(t), nil
}

// Consume atomically moves Issued to Consumed; a token in any other state
// fails with ErrNotFound, so only one of two racing calls wins.
func (s *TokenStore) Consume(ctx context.Context, tokenID bson.ObjectID) (*domain.UploadToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenID]
	if !ok || t.Status != domain.TokenIssued {
		return nil, store.ErrNotFound
	}
	t.Status = domain.TokenConsumed
	return cloneToken(t), nil
}

// MarkRegistered records the created node on a Consumed token.
func (s *TokenStore) MarkRegistered(ctx context.Context, tokenID, nodeID bson.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenID]
	if !ok || t.Status != domain.TokenConsumed {
		return store.ErrNotFound
	}
	t.Status = domain.TokenRegistered
	t.NodeID = nodeID
	return nil
}

// MarkStatus force-sets a terminal status on a non-terminal token.
func (s *TokenStore) MarkStatus(ctx context.Context, tokenID bson.ObjectID, status domain.TokenStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenID]
	if !ok || t.Terminal() {
		return store.ErrNotFound
	}
	t.Status = status
	return nil
}

// ListStale returns non-registered tokens expired at or before the cutoff.
func (s *TokenStore) ListStale(ctx context.Context, cutoff time.Time, limit int64) ([]*domain.UploadToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.UploadToken
	for _, t := range s.tokens {
		if (t.Status == domain.TokenIssued || t.Status == domain.TokenConsumed) && !t.ExpiresAt.After(cutoff) {
			out = append(out, cloneToken(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}
