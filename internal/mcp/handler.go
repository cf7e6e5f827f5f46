package mcp

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/persona-mcp/internal/common"
)

// CorrelationHeader carries the per-request correlation ID.
const CorrelationHeader = "X-Correlation-ID"

// Handler is the HTTP handler for the MCP endpoint.
// It wraps mcp-go's StreamableHTTPServer and delegates to it.
type Handler struct {
	streamable *mcpserver.StreamableHTTPServer
	logger     *common.Logger
	catalog    *Catalog
	authToken  []byte
}

// NewHandler creates the MCP HTTP handler for s. A non-empty authToken
// requires callers to present it as a bearer token.
func NewHandler(s *mcpserver.MCPServer, catalog *Catalog, authToken string, logger *common.Logger) *Handler {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	streamable := mcpserver.NewStreamableHTTPServer(s,
		mcpserver.WithStateLess(true),
	)

	logger.Info().
		Int("tools", len(catalog.tools)).
		Int("resources", len(catalog.resources)).
		Bool("auth", authToken != "").
		Msg("MCP handler initialized")

	return &Handler{
		streamable: streamable,
		logger:     logger,
		catalog:    catalog,
		authToken:  []byte(authToken),
	}
}

// Catalog returns the catalog served by the handler.
func (h *Handler) Catalog() *Catalog {
	return h.catalog
}

// ServeHTTP checks the bearer token, ensures the request context carries a
// correlation ID and delegates to the mcp-go StreamableHTTPServer.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="mcp"`)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "unauthorized",
			"error_description": "Authentication required to access MCP endpoint",
		})
		return
	}

	id := CorrelationID(r.Context())
	if id == "" {
		id = r.Header.Get(CorrelationHeader)
	}
	if id == "" {
		id = uuid.New().String()
	}
	w.Header().Set(CorrelationHeader, id)
	h.streamable.ServeHTTP(w, r.WithContext(WithCorrelationID(r.Context(), id)))
}

func (h *Handler) authorized(r *http.Request) bool {
	if len(h.authToken) == 0 {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), h.authToken) == 1
}
