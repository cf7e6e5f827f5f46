package mcp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`

func postMCP(h http.Handler, token, correlation string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(initializeBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if correlation != "" {
		req.Header.Set(CorrelationHeader, correlation)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_NoTokenConfigured(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.server, f.catalog, "", nil)

	rec := postMCP(h, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(CorrelationHeader) == "" {
		t.Error("expected generated correlation ID")
	}
}

func TestHandler_RequiresBearerToken(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.server, f.catalog, "s3cret", nil)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"valid", "s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postMCP(h, tt.token, "")
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusUnauthorized {
				if rec.Header().Get("WWW-Authenticate") == "" {
					t.Error("expected WWW-Authenticate header")
				}
				if !strings.Contains(rec.Body.String(), `"unauthorized"`) {
					t.Errorf("unexpected body %s", rec.Body.String())
				}
			}
		})
	}
}

func TestHandler_PropagatesCorrelationID(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.server, f.catalog, "", nil)

	rec := postMCP(h, "", "corr-123")
	if got := rec.Header().Get(CorrelationHeader); got != "corr-123" {
		t.Errorf("expected corr-123, got %q", got)
	}
}

func TestCorrelationID(t *testing.T) {
	ctx := WithCorrelationID(t.Context(), "abc")
	if CorrelationID(ctx) != "abc" {
		t.Errorf("expected abc, got %q", CorrelationID(ctx))
	}
	if CorrelationID(t.Context()) != "" {
		t.Error("expected empty ID on bare context")
	}
}
