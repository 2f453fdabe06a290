package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Abhishek10299/Droply/internal/config"
	"github.com/Abhishek10299/Droply/internal/domain"
	"github.com/Abhishek10299/Droply/internal/platform/crypto"
	"github.com/Abhishek10299/Droply/internal/platform/objectstore"
	"github.com/Abhishek10299/Droply/internal/service"
	"github.com/Abhishek10299/Droply/internal/store/memory"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	testAccessSecret = "test-access-secret"
	testUploadSecret = "test-upload-secret"
)

type apiFixture struct {
	server  *httptest.Server
	storage *objectstore.MemoryStorage
	owner   bson.ObjectID
	token   string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	nodes := memory.NewNodeStore()
	tokens := memory.NewTokenStore()
	queue := memory.NewPurgeQueue()
	storage := objectstore.NewMemoryStorage()
	logger := log.New(io.Discard, "", 0)

	gate := service.NewGate(nodes)
	clock := service.Clock(time.Now)
	tree := service.NewTreeService(nodes, gate, clock)
	uploads := service.NewUploadService(tokens, nodes, tree, gate, storage,
		crypto.NewJWTUploadSigner(testUploadSecret),
		config.Upload{
			TokenKey:  testUploadSecret,
			TokenTTL:  90 * time.Second,
			MaxBytes:  10 << 20,
			MimeTypes: []string{"image/png", "image/jpeg"},
		},
		config.Quota{},
		logger,
		clock,
	)
	lifecycle := service.NewLifecycleService(nodes, queue, storage, gate, clock)

	registry := prometheus.NewRegistry()
	mux := http.NewServeMux()
	RegisterRoutes(
		mux,
		NewAuthMiddleware(crypto.NewJWTVerifier(testAccessSecret)),
		NewMetrics(registry),
		registry,
		NewNodeHandler(tree),
		NewUploadHandler(uploads),
		NewLifecycleHandler(lifecycle),
		logger,
	)

	server := httptest.NewServer(NewPatchRouter(mux))
	t.Cleanup(server.Close)

	owner := bson.NewObjectID()
	return &apiFixture{
		server:  server,
		storage: storage,
		owner:   owner,
		token:   signAccessToken(t, owner),
	}
}

func signAccessToken(t *testing.T, ownerID bson.ObjectID) string {
	t.Helper()
	claims := &crypto.AccessClaims{
		OwnerID: ownerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAccessSecret))
	require.NoError(t, err)
	return signed
}

// do sends an authenticated JSON request and decodes the response into out.
func (f *apiFixture) do(t *testing.T, method, path string, body, out interface{}) int {
	t.Helper()

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, f.server.URL+path, payload)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestRoutes_RequireAuthentication(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Get(f.server.URL + "/folder-service/list")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/folder-service/list", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer garbage")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRoutes_AuthViaCookie(t *testing.T) {
	f := newAPIFixture(t)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/folder-service/list", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "access-token", Value: f.token})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t)

	status := f.do(t, http.MethodGet, "/folder-service/create", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestRoutes_FolderLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	var folder domain.Node
	status := f.do(t, http.MethodPost, "/folder-service/create",
		map[string]string{"name": "photos"}, &folder)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, domain.KindFolder, folder.Kind)

	// Duplicate sibling name.
	var apiErr APIError
	status = f.do(t, http.MethodPost, "/folder-service/create",
		map[string]string{"name": "photos"}, &apiErr)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, http.StatusConflict, apiErr.Status)

	var children []domain.Node
	status = f.do(t, http.MethodGet, "/folder-service/list", nil, &children)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, children, 1)
	assert.Equal(t, "photos", children[0].Name)

	var renamed domain.Node
	status = f.do(t, http.MethodPatch, "/node-service/rename",
		map[string]string{"id": folder.ID.Hex(), "name": "pictures"}, &renamed)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "pictures", renamed.Name)

	var starred domain.Node
	status = f.do(t, http.MethodPatch, "/node-service/star",
		map[string]interface{}{"id": folder.ID.Hex(), "starred": true}, &starred)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, starred.Starred)

	status = f.do(t, http.MethodPatch, "/node-service/trash",
		map[string]string{"id": folder.ID.Hex()}, nil)
	require.Equal(t, http.StatusOK, status)

	status = f.do(t, http.MethodGet, "/folder-service/list", nil, &children)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, children)

	var restored domain.Node
	status = f.do(t, http.MethodPatch, "/node-service/restore",
		map[string]string{"id": folder.ID.Hex()}, &restored)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, restored.Trashed)
}

func TestRoutes_MoveIntoDescendant(t *testing.T) {
	f := newAPIFixture(t)

	var a, b domain.Node
	require.Equal(t, http.StatusCreated,
		f.do(t, http.MethodPost, "/folder-service/create", map[string]string{"name": "a"}, &a))
	require.Equal(t, http.StatusCreated,
		f.do(t, http.MethodPost, "/folder-service/create", map[string]string{"name": "b", "parent": a.ID.Hex()}, &b))

	status := f.do(t, http.MethodPatch, "/node-service/move",
		map[string]string{"id": a.ID.Hex(), "parent": b.ID.Hex()}, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestRoutes_UploadFlow(t *testing.T) {
	f := newAPIFixture(t)

	var issued service.IssuedUpload
	status := f.do(t, http.MethodPost, "/file-service/upload-token",
		map[string]interface{}{"name": "cat.png", "mimeType": "image/png", "size": 1 << 20}, &issued)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, issued.Token)
	require.NotEmpty(t, issued.UploadURL)

	// Pull the storage key out of the signed credential and simulate the
	// client's direct upload.
	claims, err := crypto.NewJWTUploadSigner(testUploadSecret).Parse(issued.Token)
	require.NoError(t, err)
	f.storage.Put(claims.StorageKey, 1<<20, "image/png")

	register := map[string]interface{}{
		"token":      issued.Token,
		"storageKey": claims.StorageKey,
		"mimeType":   "image/png",
		"size":       1 << 20,
	}
	var node domain.Node
	status = f.do(t, http.MethodPost, "/file-service/register-upload", register, &node)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cat.png", node.Name)
	require.NotNil(t, node.File)
	assert.Equal(t, int64(1<<20), node.File.SizeBytes)
	assert.Equal(t, "image/png", node.File.MimeType)

	// Replay returns the same node.
	var replay domain.Node
	status = f.do(t, http.MethodPost, "/file-service/register-upload", register, &replay)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, node.ID, replay.ID)

	var dl downloadURLResponse
	status = f.do(t, http.MethodGet, "/file-service/download-url?id="+node.ID.Hex(), nil, &dl)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "memory://download/"+claims.StorageKey, dl.URL)

	var usage usageResponse
	status = f.do(t, http.MethodGet, "/user-service/storage-usage", nil, &usage)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1<<20), usage.UsedBytes)
}

func TestRoutes_RevokedTokenIsGone(t *testing.T) {
	f := newAPIFixture(t)

	var issued service.IssuedUpload
	require.Equal(t, http.StatusCreated,
		f.do(t, http.MethodPost, "/file-service/upload-token",
			map[string]interface{}{"name": "cat.png", "mimeType": "image/png", "size": 1 << 20}, &issued))

	require.Equal(t, http.StatusOK,
		f.do(t, http.MethodPost, "/file-service/revoke-token", map[string]string{"token": issued.Token}, nil))

	claims, err := crypto.NewJWTUploadSigner(testUploadSecret).Parse(issued.Token)
	require.NoError(t, err)
	f.storage.Put(claims.StorageKey, 1<<20, "image/png")

	status := f.do(t, http.MethodPost, "/file-service/register-upload", map[string]interface{}{
		"token":      issued.Token,
		"storageKey": claims.StorageKey,
		"mimeType":   "image/png",
		"size":       1 << 20,
	}, nil)
	assert.Equal(t, http.StatusGone, status)
}

func TestRoutes_PurgeReportsObjectDeletes(t *testing.T) {
	f := newAPIFixture(t)

	var folder domain.Node
	require.Equal(t, http.StatusCreated,
		f.do(t, http.MethodPost, "/folder-service/create", map[string]string{"name": "root"}, &folder))

	var issued service.IssuedUpload
	require.Equal(t, http.StatusCreated,
		f.do(t, http.MethodPost, "/file-service/upload-token",
			map[string]interface{}{"name": "cat.png", "parent": folder.ID.Hex(), "mimeType": "image/png", "size": 1 << 20}, &issued))
	claims, err := crypto.NewJWTUploadSigner(testUploadSecret).Parse(issued.Token)
	require.NoError(t, err)
	f.storage.Put(claims.StorageKey, 1<<20, "image/png")
	require.Equal(t, http.StatusOK,
		f.do(t, http.MethodPost, "/file-service/register-upload", map[string]interface{}{
			"token":      issued.Token,
			"storageKey": claims.StorageKey,
			"mimeType":   "image/png",
			"size":       1 << 20,
		}, nil))

	var report service.PurgeReport
	status := f.do(t, http.MethodPost, "/node-service/purge",
		map[string]string{"id": folder.ID.Hex()}, &report)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, report.NodesRemoved)
	assert.Equal(t, 1, report.ObjectsDeleted)
	assert.False(t, f.storage.Has(claims.StorageKey))

	status = f.do(t, http.MethodGet, "/node-service/path?id="+folder.ID.Hex(), nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRoutes_OwnersAreIsolated(t *testing.T) {
	f := newAPIFixture(t)

	var folder domain.Node
	require.Equal(t, http.StatusCreated,
		f.do(t, http.MethodPost, "/folder-service/create", map[string]string{"name": "mine"}, &folder))

	// Same server, different identity.
	f.token = signAccessToken(t, bson.NewObjectID())

	status := f.do(t, http.MethodPatch, "/node-service/rename",
		map[string]string{"id": folder.ID.Hex(), "name": "stolen"}, nil)
	assert.Equal(t, http.StatusNotFound, status)

	var children []domain.Node
	status = f.do(t, http.MethodGet, "/folder-service/list", nil, &children)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, children)
}

func TestRoutes_MetricsExposed(t *testing.T) {
	f := newAPIFixture(t)

	// Generate one instrumented request first.
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/folder-service/list", nil, nil))

	resp, err := http.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "droply_requests_duration_seconds")
}
