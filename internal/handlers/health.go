package handlers

import (
	"net/http"

	"github.com/bobmcallan/persona-mcp/internal/common"
)

// CatalogStats reports the number of exposed tools and resources.
type CatalogStats func() (tools, resources int)

// HealthHandler handles health check requests.
type HealthHandler struct {
	logger *common.Logger
	stats  CatalogStats
}

// NewHealthHandler creates a new health handler. stats may be nil.
func NewHealthHandler(logger *common.Logger, stats CatalogStats) *HealthHandler {
	return &HealthHandler{logger: logger, stats: stats}
}

// ServeHTTP handles GET /api/health.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	body := map[string]interface{}{
		"status": "ok",
	}
	if h.stats != nil {
		tools, resources := h.stats()
		body["tools"] = tools
		body["resources"] = resources
	}
	WriteJSON(w, http.StatusOK, body)
}
