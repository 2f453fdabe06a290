package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Abhishek10299/Droply/internal/service"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// LifecycleHandler holds the dependencies for trash/restore/purge handlers.
type LifecycleHandler struct {
	lifecycle service.LifecycleService
}

// NewLifecycleHandler creates a new LifecycleHandler with its dependencies.
func NewLifecycleHandler(lifecycle service.LifecycleService) *LifecycleHandler {
	return &LifecycleHandler{lifecycle: lifecycle}
}

type nodeIDRequest struct {
	ID string `json:"id"`
}

func (r *nodeIDRequest) Validate() error {
	if _, err := bson.ObjectIDFromHex(r.ID); err != nil {
		return errors.New("id must be a valid object ID string")
	}
	return nil
}

func (h *LifecycleHandler) decodeNodeID(w http.ResponseWriter, r *http.Request) (bson.ObjectID, bool) {
	var req nodeIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, NewBadRequestError("Invalid request body"))
		return bson.ObjectID{}, false
	}
	if err := req.Validate(); err != nil {
		writeError(w, NewBadRequestError(err.Error()))
		return bson.ObjectID{}, false
	}
	id, _ := bson.ObjectIDFromHex(req.ID)
	return id, true
}

// Trash handles the PATCH /node-service/trash endpoint.
func (h *LifecycleHandler) Trash(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := GetOwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, NewUnauthorizedError("Owner ID not found in token"))
		return
	}

	nodeID, ok := h.decodeNodeID(w, r)
	if !ok {
		return
	}

	if err := h.lifecycle.Trash(r.Context(), ownerID, nodeID); err != nil {
		writeError(w, FromServiceError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "trashed"})
}

// Restore handles the PATCH /node-service/restore endpoint.
func (h *LifecycleHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := GetOwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, NewUnauthorizedError("Owner ID not found in token"))
		return
	}

	nodeID, ok := h.decodeNodeID(w, r)
	if !ok {
		return
	}

	node, err := h.lifecycle.Restore(r.Context(), ownerID, nodeID)
	if err != nil {
		writeError(w, FromServiceError(err))
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// Purge handles the POST /node-service/purge endpoint. The response reports
// partial object-deletion failures; those keys are retried by the background
// sweep and never resurrect the metadata.
func (h *LifecycleHandler) Purge(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := GetOwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, NewUnauthorizedError("Owner ID not found in token"))
		return
	}

	nodeID, ok := h.decodeNodeID(w, r)
	if !ok {
		return
	}

	report, err := h.lifecycle.Purge(r.Context(), ownerID, nodeID)
	if err != nil {
		writeError(w, FromServiceError(err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}
