package api

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// method is a helper function to ensure a handler only responds to a specific HTTP method.
func method(m string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			writeJSON(w, http.StatusMethodNotAllowed, APIError{
				Status:  http.StatusMethodNotAllowed,
				Message: "Method not allowed",
			})
			return
		}
		next(w, r)
	}
}

// RegisterRoutes sets up all the application's routes on the given ServeMux.
// Every node operation sits behind the auth middleware; the only open
// endpoints are the health check (registered by the caller) and /metrics.
func RegisterRoutes(
	mux *http.ServeMux,
	auth *AuthMiddleware,
	metrics *Metrics,
	gatherer prometheus.Gatherer,
	nodes *NodeHandler,
	uploads *UploadHandler,
	lifecycle *LifecycleHandler,
	logger *log.Logger,
) {
	handle := func(route, httpMethod string, handler http.HandlerFunc) {
		mux.Handle(route, metrics.instrument(route, auth.RequireAuth(method(httpMethod, handler))))
	}

	// --- Folder Service Routes ---
	handle("/folder-service/create", "POST", nodes.CreateFolder)
	handle("/folder-service/list", "GET", nodes.List)

	// --- File Service Routes (signed upload broker) ---
	handle("/file-service/upload-token", "POST", uploads.IssueToken)
	handle("/file-service/register-upload", "POST", uploads.RegisterUpload)
	handle("/file-service/revoke-token", "POST", uploads.RevokeToken)
	handle("/file-service/download-url", "GET", uploads.DownloadURL)

	// --- Node Service Routes (structure and lifecycle) ---
	handle("/node-service/path", "GET", nodes.Path)
	handle("/node-service/move", "PATCH", nodes.Move)
	handle("/node-service/rename", "PATCH", nodes.Rename)
	handle("/node-service/star", "PATCH", nodes.Star)
	handle("/node-service/trash", "PATCH", lifecycle.Trash)
	handle("/node-service/restore", "PATCH", lifecycle.Restore)
	handle("/node-service/purge", "POST", lifecycle.Purge)

	// --- User Service Routes ---
	handle("/user-service/storage-usage", "GET", uploads.StorageUsage)

	// Telemetry endpoint, outside auth.
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Println("Registered API routes")
}

// We have to add this custom PATCH handler because the default ServeMux doesn't support it.
// This is a workaround for sticking to the standard library.
// We can wrap our main mux with this to add PATCH support.
func NewPatchRouter(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "PATCH" {
			// Find a handler that matches the path.
			handler, pattern := mux.Handler(r)

			// If a handler is found for the path (even if it's for a different method),
			// serve the request. Our `method` helper inside the handler will
			// then correctly apply method-specific logic.
			if pattern != "" {
				handler.ServeHTTP(w, r)
				return
			}
		}
		// For all other methods, use the default mux behavior.
		mux.ServeHTTP(w, r)
	})
}
