package service

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/Abhishek10299/Droply/internal/config"
	"github.com/Abhishek10299/Droply/internal/domain"
	"github.com/Abhishek10299/Droply/internal/platform/crypto"
	"github.com/Abhishek10299/Droply/internal/platform/objectstore"
	"github.com/Abhishek10299/Droply/internal/store"
	"github.com/Abhishek10299/Droply/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type uploadFixture struct {
	nodes   *memory.NodeStore
	tokens  *memory.TokenStore
	storage *objectstore.MemoryStorage
	signer  crypto.UploadTokenSigner
	tree    TreeService
	uploads UploadService
	clock   *fakeClock
	owner   bson.ObjectID
}

func newUploadFixture(t *testing.T, quota config.Quota) *uploadFixture {
	t.Helper()

	nodes := memory.NewNodeStore()
	tokens := memory.NewTokenStore()
	storage := objectstore.NewMemoryStorage()
	signer := crypto.NewJWTUploadSigner("test-upload-secret")
	clock := newFakeClock()
	gate := NewGate(nodes)
	tree := NewTreeService(nodes, gate, clock.Now)

	upload := config.Upload{
		TokenKey:  "test-upload-secret",
		TokenTTL:  90 * time.Second,
		MaxBytes:  10 << 20,
		MimeTypes: []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
	}

	return &uploadFixture{
		nodes:   nodes,
		tokens:  tokens,
		storage: storage,
		signer:  signer,
		tree:    tree,
		clock:   clock,
		owner:   bson.NewObjectID(),
		uploads: NewUploadService(tokens, nodes, tree, gate, storage, signer, upload, quota, log.New(io.Discard, "", 0), clock.Now),
	}
}

// issue hands out a token and returns it with its bound storage key.
func (f *uploadFixture) issue(t *testing.T, parentID, name, mime string, size int64) (*IssuedUpload, string) {
	t.Helper()
	issued, err := f.uploads.Issue(context.Background(), f.owner, parentID, name, mime, size)
	require.NoError(t, err)

	claims, err := f.signer.Parse(issued.Token)
	require.NoError(t, err)
	return issued, claims.StorageKey
}

func TestIssueRegister_HappyPath(t *testing.T) {
	f := newUploadFixture(t, config.Quota{})
	ctx := context.Background()

	issued, key := f.issue(t, domain.RootParentID, "cat.png", "image/png", 5<<20)
	assert.Equal(t, "memory://upload/"+key, issued.UploadURL)
	assert.Equal(t, f.clock.Now().Add(90*time.Second), issued.ExpiresAt)

	// The client uploads directly to storage, then registers.
	f.storage.Put(key, 4<<20, "image/png")

	node, err := f.uploads.Register(ctx, f.owner, issued.Token, key, "image/png", 4<<20)
	require.NoError(t, err)
	assert.Equal(t, domain.KindFile, node.Kind)
	assert.Equal(t, "cat.png", node.Name)
	require.NotNil(t, node.File)
	assert.Equal(t, key, node.File.StorageKey)
	assert.Equal(t, int64(4<<20), node.File.SizeBytes)
}

func TestRegister_ReplayReturnsSameNode(t *testing.T) {
	f := newUploadFixture(t, config.Quota{})
	ctx := context.Background()

	issued, key := f.issue(t, domain.RootParentID, "cat.png", "image/png", 5<<20)
	f.storage.Put(key, 1<<20, "image/png")

	first, err := f.uploads.Register(ctx, f.owner, issued.Token, key, "image/png", 1<<20)
	require.NoError(t, err)

	second, err := f.uploads.Register(ctx, f.owner, issued.Token, key, "image/png", 1<<20)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	children, err := f.nodes.List(ctx, f.owner, domain.RootParentID, store.ListFilter{}, store.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, children, 1)
}

func TestRegister_ConcurrentCreatesAtMostOneNode(t *testing.T) {
	f := newUploadFixture(t, config.Quota{})
	ctx := context.Background()

	issued, key := f.issue(t, domain.RootParentID, "cat.png", "image/png", 5<<20)
	f.storage.Put(key, 1<<20, "image/png")

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*domain.Node, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.uploads.Register(ctx, f.owner, issued.Token, key, "image/png", 1<<20)
		}(i)
	}
	wg.Wait()

	var winnerID bson.ObjectID
	for i := range results {
		if errs[i] != nil {
			// A racer that lost mid-flight sees the token as spent.
			assert.ErrorIs(t, errs[i], ErrExpiredToken)
			continue
		}
		if winnerID.IsZero() {
			winnerID = results[i].ID
		}
		assert.Equal(t, winnerID, results[i].ID)
	}
	require.False(t, winnerID.IsZero(), "no caller registered the upload")

	children, err := f.nodes.List(ctx, f.owner, domain.RootParentID, store.ListFilter{}, store.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, children, 1)
}

func TestIssue_DeclaredSizeOverPolicy(t *testing.T) {
	f := newUploadFixture(t, config.Quota{})

	_, err := f.uploads.Issue(context.Background(), f.owner, domain.RootParentID, "big.png", "image/png", (10<<20)+1)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestIssue_DisallowedMime(t *testing.T) {
	f := newUploadFixture(t, config.Quota{})

	_, err := f.uploads.Issue(context.Background(), f.owner, domain.RootParentID, "app.exe", "application/octet-stream", 1<<20)
	assert.ErrorIs(t, err, ErrStorageMismatch)
}

func TestIssue_OwnerQuotaEnforced(t *testing.T) {
	f := newUploadFixture(t, config.Quota{OwnerMaxBytes: 5 << 20})
	ctx := context.Background()

	// 4 MiB already stored, 2 MiB more would breach the 5 MiB cap.
	_, err := f.tree.RegisterFile(ctx, f.owner, domain.RootParentID, "existing.png", domain.FileAttrs{
		StorageKey: "k-existing",
		SizeBytes:  4 << 20,
		MimeType:   "image/png",
	})
	require.NoError(t, err)

	_, err = f.uploads.Issue(ctx, f.owner, domain.RootParentID, "more.png", "image/png", 2<<20)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	_, err = f.uploads.Issue(ctx, f.owner, domain.RootParentID, "fits.png", "image/png", 1<<20)
	assert.NoError(t, err)
}

func TestIssue_MissingParent(t *testing.T) {
	f := newUploadFixture(t, config.Quota{})

	_, err := f.uploads.Issue(context.Background(), f.owner, bson.NewObjectID().Hex(), "cat.png", "image/png", 1<<20)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRegister_SizeOverBoundCreatesNoNode(t *testing.T) {
	f := newUploadFixture(t, config.Quota{})
	ctx := context.Background()

	issued, key := f.issue(t, domain.RootParentID, "cat.png", "image/png", 5<<20)
	f.storage.Put(key, 6<<20, "image/png")

	_, err := f.uploads.Register(ctx, f.owner, issued.Token, key, "image/png", 6<<20)
	assert.ErrorIs(t, err, ErrStorageMismatch)

	children, err := f.nodes.List(ctx, f.owner, domain.RootParentID, store.ListFilter{}, store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestRegister_StoredSizeOverBound(t *testing.T) {
	f := newUploadFixture(t, config.Quota{})

	issued, key := f.issue(t, domain.RootParentID, "cat.png", "image/png", 5<<20)
	// The claimed size fits but the bytes in storage do not.
	f.storage.Put(key, 6<<20, "image/png")

	_, err := f.uploads.Register(context.Background(), f.owner, issued.Token, key, "image/png", 1<<20)
	assert.ErrorIs(t, err, ErrStorageMismatch)
}

func TestRegister_WrongStorageKey(t *testing.T) {
	f := newUploadFixture(t, config.Quota{})

	issued, key := f.issue(t, domain.RootParentID, "cat.png", "image/png", 5<<20)
	f.storage.Put(key, 1<<20, "image/png")

	_, err := f.uploads.Register(context.Background(), f.owner, issued.Token, "someone-elses-key", "image/png", 1<<20)
	assert.ErrorIs(t, err, ErrStorageMismatch)
}

func TestRegister_ObjectNeverUploaded(t *testing.T) {
	f := newUploadFixture(t, config.Quota{})

	issued, key := f.issue(t, domain.RootParentID, "cat.png", "image/png", 5<<20)

	_, err := f.uploads.Register(context.Background(), f.owner, issued.Token, key, "image/png", 1<<20)
	assert.ErrorIs(t, err, ErrStorageMismatch)
}

func TestRegister_ExpiredToken(t *testing.T) {
	f := newUploadFixture(t, config.Quota{})
	ctx := context.Background()

	issued, key := f.issue(t, domain.RootParentID, "cat.png", "image/png", 5<<20)
	f.storage.Put(key, 1<<20, "image/png")

	f.clock.Advance(91 * time.Second)

	_, err := f.uploads.Register(ctx, f.owner, issued.Token, key, "image/png", 1<<20)
	assert.ErrorIs(t, err, ErrExpiredToken)

	// The record was pushed to its terminal state on the way out.
	claims, err := f.signer.Parse(issued.Token)
	require.NoError(t, err)
	tokenID, err := bson.ObjectIDFromHex(claims.ID)
	require.NoError(t, err)
	record, err := f.tokens.Get(ctx, tokenID)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenExpired, record.Status)
}

func TestRevoke_BlocksRegistrationAndIsIdempotent(t *testing.T) {
	f := newUploadFixture(t, config.Quota{})
	ctx := context.Background()

	issued, key := f.issue(t, domain.RootParentID, "cat.png", "image/png", 5<<20)
	f.storage.Put(key, 1<<20, "image/png")

	require.NoError(t, f.uploads.Revoke(ctx, f.owner, issued.Token))
	require.NoError(t, f.uploads.Revoke(ctx, f.owner, issued.Token))

	_, err := f.uploads.Register(ctx, f.owner, issued.Token, key, "image/png", 1<<20)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestRegister_ForeignOwnerTokenInvisible(t *testing.T) {
	f := newUploadFixture(t, config.Quota{})
	ctx := context.Background()

	issued, key := f.issue(t, domain.RootParentID, "cat.png", "image/png", 5<<20)
	f.storage.Put(key, 1<<20, "image/png")

	stranger := bson.NewObjectID()
	_, err := f.uploads.Register(ctx, stranger, issued.Token, key, "image/png", 1<<20)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRegister_GarbageCredential(t *testing.T) {
	f := newUploadFixture(t, config.Quota{})

	_, err := f.uploads.Register(context.Background(), f.owner, "not-a-jwt", "k", "image/png", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDownloadURL(t *testing.T) {
	f := newUploadFixture(t, config.Quota{})
	ctx := context.Background()

	issued, key := f.issue(t, domain.RootParentID, "cat.png", "image/png", 5<<20)
	f.storage.Put(key, 1<<20, "image/png")
	node, err := f.uploads.Register(ctx, f.owner, issued.Token, key, "image/png", 1<<20)
	require.NoError(t, err)

	url, err := f.uploads.DownloadURL(ctx, f.owner, node.ID)
	require.NoError(t, err)
	assert.Equal(t, "memory://download/"+key, url)

	// Folders have no bytes to download.
	folder, err := f.tree.CreateFolder(ctx, f.owner, domain.RootParentID, "docs")
	require.NoError(t, err)
	_, err = f.uploads.DownloadURL(ctx, f.owner, folder.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Trashed files are not downloadable.
	require.NoError(t, f.nodes.SetTrashed(ctx, f.owner, []bson.ObjectID{node.ID}, true, f.clock.Now()))
	_, err = f.uploads.DownloadURL(ctx, f.owner, node.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUsage_CountsTrashedFiles(t *testing.T) {
	f := newUploadFixture(t, config.Quota{})
	ctx := context.Background()

	a, err := f.tree.RegisterFile(ctx, f.owner, domain.RootParentID, "a.png", domain.FileAttrs{StorageKey: "ka", SizeBytes: 100, MimeType: "image/png"})
	require.NoError(t, err)
	_, err = f.tree.RegisterFile(ctx, f.owner, domain.RootParentID, "b.png", domain.FileAttrs{StorageKey: "kb", SizeBytes: 50, MimeType: "image/png"})
	require.NoError(t, err)

	require.NoError(t, f.nodes.SetTrashed(ctx, f.owner, []bson.ObjectID{a.ID}, true, f.clock.Now()))

	used, err := f.uploads.Usage(ctx, f.owner)
	require.NoError(t, err)
	assert.Equal(t, int64(150), used)
}
