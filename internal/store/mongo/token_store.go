package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/Abhishek10299/Droply/internal/domain"
	"github.com/Abhishek10299/Droply/internal/store"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const tokenCollection = "upload_tokens"

// TokenStore is the MongoDB implementation of the store.TokenStore interface.
// Single-use semantics come from conditional updates on the status field.
type TokenStore struct {
	col *mongo.Collection
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(db *mongo.Database) *TokenStore {
	return &TokenStore{col: db.Collection(tokenCollection)}
}

func ensureTokenIndexes(ctx context.Context, col *mongo.Collection) error {
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// Stale-token scan for the orphan sweep.
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "expiresAt", Value: 1}},
		},
	})
	return err
}

// Create inserts a new token record.
func (s *TokenStore) Create(ctx context.Context, token *domain.UploadToken) error {
	res, err := s.col.InsertOne(ctx, token)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrConflict
		}
		return err
	}
	token.ID = res.InsertedID.(bson.ObjectID)
	return nil
}

// Get retrieves a token record by id.
func (s *TokenStore) Get(ctx context.Context, tokenID bson.ObjectID) (*domain.UploadToken, error) {
	var token domain.UploadToken
	err := s.col.FindOne(ctx, bson.M{"_id": tokenID}).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &token, nil
}

// Consume is the compare-and-swap at the heart of single-use tokens: only a
// token still in the Issued state matches the filter, so of two concurrent
// registrations exactly one gets the document back and the other ErrNotFound.
func (s *TokenStore) Consume(ctx context.Context, tokenID bson.ObjectID) (*domain.UploadToken, error) {
	filter := bson.M{"_id": tokenID, "status": domain.TokenIssued}
	update := bson.M{"$set": bson.M{"status": domain.TokenConsumed}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var token domain.UploadToken
	err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &token, nil
}

// MarkRegistered moves a Consumed token to its terminal Registered state and
// records the node it produced, which later replays of the token return.
func (s *TokenStore) MarkRegistered(ctx context.Context, tokenID, nodeID bson.ObjectID) error {
	filter := bson.M{"_id": tokenID, "status": domain.TokenConsumed}
	update := bson.M{"$set": bson.M{"status": domain.TokenRegistered, "nodeID": nodeID}}

	res, err := s.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// MarkStatus force-sets a terminal status on a token that is not yet terminal.
func (s *TokenStore) MarkStatus(ctx context.Context, tokenID bson.ObjectID, status domain.TokenStatus) error {
	filter := bson.M{
		"_id":    tokenID,
		"status": bson.M{"$in": []domain.TokenStatus{domain.TokenIssued, domain.TokenConsumed}},
	}
	res, err := s.col.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListStale returns tokens that expired without reaching Registered. Their
// pre-allocated storage keys may hold bytes nobody registered.
func (s *TokenStore) ListStale(ctx context.Context, cutoff time.Time, limit int64) ([]*domain.UploadToken, error) {
	filter := bson.M{
		"status":    bson.M{"$in": []domain.TokenStatus{domain.TokenIssued, domain.TokenConsumed}},
		"expiresAt": bson.M{"$lte": cutoff},
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "expiresAt", Value: 1}})
	if limit > 0 {
		findOptions.SetLimit(limit)
	}

	cursor, err := s.col.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var tokens []*domain.UploadToken
	if err := cursor.All(ctx, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}
