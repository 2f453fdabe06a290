package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Abhishek10299/Droply/internal/domain"
	"github.com/Abhishek10299/Droply/internal/service"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// UploadHandler holds the dependencies for upload-broker HTTP handlers.
type UploadHandler struct {
	uploads service.UploadService
}

// NewUploadHandler creates a new UploadHandler with its dependencies.
func NewUploadHandler(uploads service.UploadService) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

// --- Request/Response Structs ---

type issueTokenRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parent"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"` // declared upper bound in bytes
}

func (r *issueTokenRequest) Validate() error {
	if len(r.Name) < 1 || len(r.Name) > 256 {
		return errors.New("name must be between 1 and 256 characters")
	}
	if r.Size <= 0 {
		return errors.New("size must be a positive byte count")
	}
	if r.ParentID == "" {
		r.ParentID = domain.RootParentID
	}
	return nil
}

type registerUploadRequest struct {
	Token      string `json:"token"`
	StorageKey string `json:"storageKey"`
	MimeType   string `json:"mimeType"`
	Size       int64  `json:"size"`
}

func (r *registerUploadRequest) Validate() error {
	if r.Token == "" {
		return errors.New("token is required")
	}
	if r.StorageKey == "" {
		return errors.New("storageKey is required")
	}
	if r.MimeType == "" {
		return errors.New("mimeType is required")
	}
	return nil
}

type revokeTokenRequest struct {
	Token string `json:"token"`
}

type downloadURLResponse struct {
	URL string `json:"url"`
}

type usageResponse struct {
	UsedBytes int64 `json:"usedBytes"`
}

// --- Handlers ---

// IssueToken handles the POST /file-service/upload-token endpoint. The
// response carries everything the client needs to upload straight to object
// storage and come back for registration.
func (h *UploadHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := GetOwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, NewUnauthorizedError("Owner ID not found in token"))
		return
	}

	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, NewBadRequestError("Invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, NewBadRequestError(err.Error()))
		return
	}

	issued, err := h.uploads.Issue(r.Context(), ownerID, req.ParentID, req.Name, req.MimeType, req.Size)
	if err != nil {
		writeError(w, FromServiceError(err))
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

// RegisterUpload handles the POST /file-service/register-upload endpoint.
// Replaying a successful registration returns the same node with 200 rather
// than creating a duplicate.
func (h *UploadHandler) RegisterUpload(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := GetOwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, NewUnauthorizedError("Owner ID not found in token"))
		return
	}

	var req registerUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, NewBadRequestError("Invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, NewBadRequestError(err.Error()))
		return
	}

	node, err := h.uploads.Register(r.Context(), ownerID, req.Token, req.StorageKey, req.MimeType, req.Size)
	if err != nil {
		writeError(w, FromServiceError(err))
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// RevokeToken handles the POST /file-service/revoke-token endpoint.
func (h *UploadHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := GetOwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, NewUnauthorizedError("Owner ID not found in token"))
		return
	}

	var req revokeTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, NewBadRequestError("Invalid request body"))
		return
	}

	if err := h.uploads.Revoke(r.Context(), ownerID, req.Token); err != nil {
		writeError(w, FromServiceError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// DownloadURL handles the GET /file-service/download-url endpoint.
func (h *UploadHandler) DownloadURL(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := GetOwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, NewUnauthorizedError("Owner ID not found in token"))
		return
	}

	nodeID, err := bson.ObjectIDFromHex(r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, NewBadRequestError("id must be a valid object ID string"))
		return
	}

	url, err := h.uploads.DownloadURL(r.Context(), ownerID, nodeID)
	if err != nil {
		writeError(w, FromServiceError(err))
		return
	}
	writeJSON(w, http.StatusOK, downloadURLResponse{URL: url})
}

// StorageUsage handles the GET /user-service/storage-usage endpoint.
func (h *UploadHandler) StorageUsage(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := GetOwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, NewUnauthorizedError("Owner ID not found in token"))
		return
	}

	used, err := h.uploads.Usage(r.Context(), ownerID)
	if err != nil {
		writeError(w, FromServiceError(err))
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{UsedBytes: used})
}
