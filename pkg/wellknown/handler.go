package wellknown

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ConfigurationPath is where the protocol metadata is served.
const ConfigurationPath = "/.well-known/pluser-configuration"

// Handler provides HTTP handlers for well-known endpoints
type Handler struct {
	config Config
}

// NewHandler creates a new well-known endpoints handler
func NewHandler(config Config) *Handler {
	return &Handler{
		config: config,
	}
}

// Configuration handles GET /.well-known/pluser-configuration
func (h *Handler) Configuration(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Protocol configuration request received", "method", r.Method, "path", r.URL.Path)

	// Only allow GET requests
	if r.Method != http.MethodGet {
		slog.Warn("Method not allowed for protocol configuration", "method", r.Method)
		w.Header().Set("Allow", "GET")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	metadata := NewProtocolMetadata(h.config)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if err := json.NewEncoder(w).Encode(metadata); err != nil {
		slog.Error("Failed to encode protocol configuration", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

// RegisterRoutes registers all well-known endpoint routes with the provided mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(ConfigurationPath, h.Configuration)
}

// RegisterRoutesWithPrefix registers all well-known endpoint routes with a custom handler function
// This is useful when you need to integrate with existing routing systems
func (h *Handler) RegisterRoutesWithPrefix(registerFunc func(pattern string, handler http.HandlerFunc)) {
	registerFunc(ConfigurationPath, h.Configuration)
}
