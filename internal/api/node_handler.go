package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Abhishek10299/Droply/internal/domain"
	"github.com/Abhishek10299/Droply/internal/service"
	"github.com/Abhishek10299/Droply/internal/store"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// NodeHandler holds the dependencies for tree-related HTTP handlers.
type NodeHandler struct {
	tree service.TreeService
}

// NewNodeHandler creates a new NodeHandler with its dependencies.
func NewNodeHandler(tree service.TreeService) *NodeHandler {
	return &NodeHandler{tree: tree}
}

// --- Request/Response Structs with Validation ---

type createFolderRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parent"` // The ID of the parent folder, or "/" for root.
}

// Validate checks the folder name length and normalizes the parent.
func (r *createFolderRequest) Validate() error {
	if len(r.Name) < 1 || len(r.Name) > 256 {
		return errors.New("folder name must be between 1 and 256 characters")
	}
	if r.ParentID == "" {
		r.ParentID = domain.RootParentID
	}
	return nil
}

type moveRequest struct {
	ID       string `json:"id"`
	ParentID string `json:"parent"`
}

func (r *moveRequest) Validate() error {
	if _, err := bson.ObjectIDFromHex(r.ID); err != nil {
		return errors.New("id must be a valid object ID string")
	}
	if r.ParentID == "" {
		r.ParentID = domain.RootParentID
	}
	if r.ParentID != domain.RootParentID {
		if _, err := bson.ObjectIDFromHex(r.ParentID); err != nil {
			return errors.New("parent must be \"/\" or a valid object ID string")
		}
	}
	return nil
}

type renameRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (r *renameRequest) Validate() error {
	if _, err := bson.ObjectIDFromHex(r.ID); err != nil {
		return errors.New("id must be a valid object ID string")
	}
	if len(r.Name) < 1 || len(r.Name) > 256 {
		return errors.New("name must be between 1 and 256 characters")
	}
	return nil
}

type starRequest struct {
	ID      string `json:"id"`
	Starred bool   `json:"starred"`
}

func (r *starRequest) Validate() error {
	if _, err := bson.ObjectIDFromHex(r.ID); err != nil {
		return errors.New("id must be a valid object ID string")
	}
	return nil
}

// --- Handlers ---

// CreateFolder handles the POST /folder-service/create endpoint.
func (h *NodeHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := GetOwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, NewUnauthorizedError("Owner ID not found in token"))
		return
	}

	var req createFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, NewBadRequestError("Invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, NewBadRequestError(err.Error()))
		return
	}

	node, err := h.tree.CreateFolder(r.Context(), ownerID, req.ParentID, req.Name)
	if err != nil {
		writeError(w, FromServiceError(err))
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

// List handles the GET /folder-service/list endpoint. It lists the direct
// children of a parent; query parameters select trash and starred filters.
func (h *NodeHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := GetOwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, NewUnauthorizedError("Owner ID not found in token"))
		return
	}

	query := r.URL.Query()
	parent := query.Get("parent")
	if parent == "" {
		parent = domain.RootParentID
	}
	sortBy := query.Get("sortBy")
	limit, _ := strconv.ParseInt(query.Get("limit"), 10, 64)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	filter := store.ListFilter{
		IncludeTrashed: query.Get("trashed") == "true",
		OnlyStarred:    query.Get("starred") == "true",
	}

	nodes, err := h.tree.ListChildren(r.Context(), ownerID, parent, filter, sortBy, limit)
	if err != nil {
		writeError(w, FromServiceError(err))
		return
	}

	// Return an empty array instead of null when there are no children.
	if nodes == nil {
		nodes = []*domain.Node{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

// Path handles the GET /node-service/path endpoint, returning the ancestor
// chain from the root down to the requested node.
func (h *NodeHandler) Path(w http.ResponseWriter, r *http.Request) {
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

	chain, err := h.tree.ResolvePath(r.Context(), ownerID, nodeID)
	if err != nil {
		writeError(w, FromServiceError(err))
		return
	}
	writeJSON(w, http.StatusOK, chain)
}

// Move handles the PATCH /node-service/move endpoint.
func (h *NodeHandler) Move(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := GetOwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, NewUnauthorizedError("Owner ID not found in token"))
		return
	}

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, NewBadRequestError("Invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, NewBadRequestError(err.Error()))
		return
	}

	nodeID, _ := bson.ObjectIDFromHex(req.ID)
	node, err := h.tree.Move(r.Context(), ownerID, nodeID, req.ParentID)
	if err != nil {
		writeError(w, FromServiceError(err))
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// Rename handles the PATCH /node-service/rename endpoint.
func (h *NodeHandler) Rename(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := GetOwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, NewUnauthorizedError("Owner ID not found in token"))
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, NewBadRequestError("Invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, NewBadRequestError(err.Error()))
		return
	}

	nodeID, _ := bson.ObjectIDFromHex(req.ID)
	node, err := h.tree.Rename(r.Context(), ownerID, nodeID, req.Name)
	if err != nil {
		writeError(w, FromServiceError(err))
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// Star handles the PATCH /node-service/star endpoint.
func (h *NodeHandler) Star(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := GetOwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, NewUnauthorizedError("Owner ID not found in token"))
		return
	}

	var req starRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, NewBadRequestError("Invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, NewBadRequestError(err.Error()))
		return
	}

	nodeID, _ := bson.ObjectIDFromHex(req.ID)
	node, err := h.tree.SetStarred(r.Context(), ownerID, nodeID, req.Starred)
	if err != nil {
		writeError(w, FromServiceError(err))
		return
	}
	writeJSON(w, http.StatusOK, node)
}
