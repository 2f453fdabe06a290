package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Abhishek10299/Droply/internal/config"
	"github.com/Abhishek10299/Droply/internal/domain"
	"github.com/Abhishek10299/Droply/internal/platform/crypto"
	"github.com/Abhishek10299/Droply/internal/platform/objectstore"
	"github.com/Abhishek10299/Droply/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// IssuedUpload is what a client needs to push bytes directly to object
// storage and register the result.
type IssuedUpload struct {
	Token     string    `json:"token"`
	UploadURL string    `json:"uploadUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UploadService defines the interface for the signed-upload broker. Each
// upload attempt is a state machine (issued, consumed, registered / expired /
// revoked) backed by a store record; the JWT handed out is just a signed
// pointer into that record plus the bound constraints.
type UploadService interface {
	// Issue validates the destination and returns a single-use upload
	// credential plus a presigned storage URL.
	Issue(ctx context.Context, ownerID bson.ObjectID, parentID, name, mimeType string, declaredSize int64) (*IssuedUpload, error)

	// Register reconciles a finished upload against its token and creates the
	// file node. Replaying a registered token returns the node it created.
	Register(ctx context.Context, ownerID bson.ObjectID, credential, storageKey, mimeType string, size int64) (*domain.Node, error)

	// Revoke cancels an issued token. Idempotent.
	Revoke(ctx context.Context, ownerID bson.ObjectID, credential string) error

	// DownloadURL issues a presigned read URL for a live file node.
	DownloadURL(ctx context.Context, ownerID, nodeID bson.ObjectID) (string, error)

	// Usage reports the owner's total stored bytes, trash included.
	Usage(ctx context.Context, ownerID bson.ObjectID) (int64, error)
}

// uploadService is the concrete implementation of the UploadService interface.
type uploadService struct {
	tokens  store.TokenStore
	nodes   store.NodeStore
	tree    TreeService
	gate    *Gate
	storage objectstore.Storage
	signer  crypto.UploadTokenSigner
	upload  config.Upload
	quota   config.Quota
	logger  *log.Logger
	clock   Clock
}

// NewUploadService creates a new instance of the upload broker.
func NewUploadService(
	tokens store.TokenStore,
	nodes store.NodeStore,
	tree TreeService,
	gate *Gate,
	storage objectstore.Storage,
	signer crypto.UploadTokenSigner,
	upload config.Upload,
	quota config.Quota,
	logger *log.Logger,
	clock Clock,
) UploadService {
	return &uploadService{
		tokens:  tokens,
		nodes:   nodes,
		tree:    tree,
		gate:    gate,
		storage: storage,
		signer:  signer,
		upload:  upload,
		quota:   quota,
		logger:  logger,
		clock:   clock,
	}
}

// Issue binds a new token to (owner, parent, name, size bound, mime
// allowlist), pre-allocates the storage key and presigns the upload URL.
func (s *uploadService) Issue(ctx context.Context, ownerID bson.ObjectID, parentID, name, mimeType string, declaredSize int64) (*IssuedUpload, error) {
	if name == "" {
		return nil, errors.New("file name cannot be empty")
	}

	if _, err := s.gate.ParentFolder(ctx, ownerID, parentID); err != nil {
		return nil, fmt.Errorf("could not find parent folder: %w", err)
	}

	if declaredSize <= 0 || declaredSize > s.upload.MaxBytes {
		return nil, fmt.Errorf("declared size %d outside policy limit %d: %w", declaredSize, s.upload.MaxBytes, ErrQuotaExceeded)
	}
	if s.quota.OwnerMaxBytes > 0 {
		used, err := s.nodes.UsageBytes(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("failed to compute storage usage: %w", err)
		}
		if used+declaredSize > s.quota.OwnerMaxBytes {
			return nil, ErrQuotaExceeded
		}
	}

	allowlist, err := s.resolveAllowlist(mimeType)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	expiresAt := now.Add(s.upload.TokenTTL)

	record := &domain.UploadToken{
		OwnerID:    ownerID,
		ParentID:   parentID,
		Name:       name,
		MaxSize:    declaredSize,
		MimeTypes:  allowlist,
		StorageKey: ownerID.Hex() + "/" + uuid.NewString(),
		Status:     domain.TokenIssued,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist upload token: %w", err)
	}

	claims := &crypto.UploadClaims{
		OwnerID:    ownerID,
		ParentID:   parentID,
		Name:       name,
		MaxSize:    declaredSize,
		MimeTypes:  allowlist,
		StorageKey: record.StorageKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        record.ID.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := s.signer.Sign(claims)
	if err != nil {
		return nil, err
	}

	uploadURL, err := s.storage.PresignPut(ctx, record.StorageKey, s.upload.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload URL: %w", err)
	}

	return &IssuedUpload{Token: signed, UploadURL: uploadURL, ExpiresAt: expiresAt}, nil
}

// resolveAllowlist narrows the configured mime allowlist to the declared
// type. Declaring nothing binds the full configured list.
func (s *uploadService) resolveAllowlist(mimeType string) ([]string, error) {
	if mimeType == "" {
		return append([]string(nil), s.upload.MimeTypes...), nil
	}
	for _, m := range s.upload.MimeTypes {
		if m == mimeType {
			return []string{mimeType}, nil
		}
	}
	return nil, fmt.Errorf("mime type %q not allowed: %w", mimeType, ErrStorageMismatch)
}

// Register drives the token through Consumed to Registered and hands off to
// the tree store. Consumption is a compare-and-swap: under concurrent replays
// of the same token exactly one caller creates the node, and later replays
// get that same node back.
func (s *uploadService) Register(ctx context.Context, ownerID bson.ObjectID, credential, storageKey, mimeType string, size int64) (*domain.Node, error) {
	record, err := s.loadOwnToken(ctx, ownerID, credential)
	if err != nil {
		return nil, err
	}

	// Idempotent replay: the token already produced a node.
	if record.Status == domain.TokenRegistered {
		return s.nodes.Get(ctx, ownerID, record.NodeID)
	}
	if record.Status == domain.TokenExpired || record.Status == domain.TokenRevoked {
		return nil, ErrExpiredToken
	}

	now := s.clock()
	if now.After(record.ExpiresAt) {
		// Best effort; the sweep marks stragglers too.
		_ = s.tokens.MarkStatus(ctx, record.ID, domain.TokenExpired)
		return nil, ErrExpiredToken
	}

	if storageKey != record.StorageKey {
		return nil, fmt.Errorf("storage key does not match token: %w", ErrStorageMismatch)
	}
	if size > record.MaxSize {
		return nil, fmt.Errorf("size %d exceeds bound %d: %w", size, record.MaxSize, ErrStorageMismatch)
	}
	if !record.AllowsMime(mimeType) {
		return nil, fmt.Errorf("mime type %q outside allowlist: %w", mimeType, ErrStorageMismatch)
	}

	info, err := s.storage.Stat(ctx, storageKey)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, fmt.Errorf("object not present in storage: %w", ErrStorageMismatch)
		}
		return nil, fmt.Errorf("failed to stat uploaded object: %w", err)
	}
	if info.Size > record.MaxSize {
		return nil, fmt.Errorf("stored size %d exceeds bound %d: %w", info.Size, record.MaxSize, ErrStorageMismatch)
	}

	if _, err := s.tokens.Consume(ctx, record.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Lost the race. If the winner registered, replay their node.
			return s.replayOrFail(ctx, ownerID, record.ID)
		}
		return nil, err
	}

	node, err := s.tree.RegisterFile(ctx, ownerID, record.ParentID, record.Name, domain.FileAttrs{
		StorageKey: record.StorageKey,
		SizeBytes:  info.Size,
		MimeType:   mimeType,
	})
	if err != nil {
		// The token stays Consumed and the bytes become an orphan; the sweep
		// reclaims them once the record expires.
		return nil, err
	}

	// The node exists either way. A lost write here leaves the record in
	// Consumed; the sweep repairs it by looking the storage key up before it
	// would reclaim anything, so the object is never at risk.
	if err := s.tokens.MarkRegistered(ctx, record.ID, node.ID); err != nil {
		s.logger.Printf("failed to mark token %s registered for node %s: %v", record.ID.Hex(), node.ID.Hex(), err)
	}

	return node, nil
}

func (s *uploadService) replayOrFail(ctx context.Context, ownerID, tokenID bson.ObjectID) (*domain.Node, error) {
	latest, err := s.tokens.Get(ctx, tokenID)
	if err != nil {
		return nil, ErrExpiredToken
	}
	if latest.Status == domain.TokenRegistered {
		return s.nodes.Get(ctx, ownerID, latest.NodeID)
	}
	return nil, ErrExpiredToken
}

// Revoke cancels an issued token. Revoking an already-revoked token is a
// no-op; revoking a registered one fails.
func (s *uploadService) Revoke(ctx context.Context, ownerID bson.ObjectID, credential string) error {
	record, err := s.loadOwnToken(ctx, ownerID, credential)
	if err != nil {
		return err
	}

	err = s.tokens.MarkStatus(ctx, record.ID, domain.TokenRevoked)
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		latest, getErr := s.tokens.Get(ctx, record.ID)
		if getErr == nil && latest.Status == domain.TokenRevoked {
			return nil
		}
		return ErrExpiredToken
	}
	return err
}

// loadOwnToken verifies the credential's signature and loads its state
// record, rejecting tokens issued to a different owner as missing.
func (s *uploadService) loadOwnToken(ctx context.Context, ownerID bson.ObjectID, credential string) (*domain.UploadToken, error) {
	claims, err := s.signer.Parse(credential)
	if err != nil {
		return nil, store.ErrNotFound
	}
	if claims.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}

	tokenID, err := bson.ObjectIDFromHex(claims.ID)
	if err != nil {
		return nil, store.ErrNotFound
	}
	return s.tokens.Get(ctx, tokenID)
}

// DownloadURL presigns a read of a live file's bytes.
func (s *uploadService) DownloadURL(ctx context.Context, ownerID, nodeID bson.ObjectID) (string, error) {
	node, err := s.gate.LiveNode(ctx, ownerID, nodeID)
	if err != nil {
		return "", err
	}
	if node.Kind != domain.KindFile || node.File == nil {
		return "", store.ErrNotFound
	}
	return s.storage.PresignGet(ctx, node.File.StorageKey, s.upload.TokenTTL)
}

// Usage reports the owner's total stored bytes.
func (s *uploadService) Usage(ctx context.Context, ownerID bson.ObjectID) (int64, error) {
	return s.nodes.UsageBytes(ctx, ownerID)
}
