package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bobmcallan/persona-mcp/internal/apierr"
	"github.com/bobmcallan/persona-mcp/internal/common"
	"github.com/bobmcallan/persona-mcp/internal/request"
)

func newTestClient(url string) *Client {
	return New(Options{
		BaseURL: url + "/",
		APIKey:  "sk_test",
		Headers: map[string]string{"Persona-Version": "2023-01-05"},
	}, common.NewSilentLogger())
}

// noSleep records requested delays instead of waiting.
type noSleep struct{ delays []time.Duration }

func (n *noSleep) sleep(_ context.Context, d time.Duration) error {
	n.delays = append(n.delays, d)
	return nil
}

func TestClient_HeadersAndBody(t *testing.T) {
	var got *http.Request
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"act_1"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	resp, err := c.Do(context.Background(), http.MethodPost, "/accounts", url.Values{"include": {"tags"}},
		map[string]any{"data": map[string]any{"attributes": map[string]any{"name": "x"}}}, nil)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.Status != http.StatusCreated {
		t.Errorf("expected 201, got %d", resp.Status)
	}
	if got.URL.Path != "/accounts" || got.URL.Query().Get("include") != "tags" {
		t.Errorf("unexpected URL %s", got.URL)
	}
	if got.Header.Get("Authorization") != "Bearer sk_test" {
		t.Errorf("missing bearer token, got %q", got.Header.Get("Authorization"))
	}
	if got.Header.Get("Persona-Version") != "2023-01-05" || got.Header.Get("Accept") != "application/json" {
		t.Errorf("missing static headers: %v", got.Header)
	}
	if body["data"] == nil {
		t.Errorf("expected JSON body, got %v", body)
	}
	if string(resp.JSON()) != `{"data":{"id":"act_1"}}` {
		t.Errorf("unexpected JSON %s", resp.JSON())
	}
}

func TestAPIResponse_JSON(t *testing.T) {
	if got := string((&APIResponse{}).JSON()); got != "null" {
		t.Errorf("expected null for empty body, got %s", got)
	}
	if got := string((&APIResponse{Body: []byte("plain")}).JSON()); got != `"plain"` {
		t.Errorf("expected quoted text, got %s", got)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errors":[{"title":"Record not found"}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Do(context.Background(), http.MethodGet, "/accounts/x", nil, nil, nil)
	if apierr.KindOf(err) != apierr.KindNotFound {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDispatcher_RetriesTransientExactly(t *testing.T) {
	var calls int32
	keys := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		keys[r.Header.Get(IdempotencyHeader)] = true
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sleeper := &noSleep{}
	d := NewDispatcher(newTestClient(srv.URL), common.NewSilentLogger(),
		WithRetryPolicy(RetryPolicy{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}),
		WithSleeper(sleeper.sleep),
	)

	_, err := d.Dispatch(context.Background(), &request.APIRequest{Method: http.MethodPost, Path: "/widgets"})
	e := apierr.As(err)
	if e == nil || e.Kind != apierr.KindTransient {
		t.Fatalf("expected transient failure, got %v", err)
	}
	if calls != 4 {
		t.Errorf("expected 1 attempt + 3 retries, got %d calls", calls)
	}
	if e.Attempts != 4 {
		t.Errorf("expected 4 attempts recorded, got %d", e.Attempts)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	if len(sleeper.delays) != len(want) {
		t.Fatalf("expected %d delays, got %v", len(want), sleeper.delays)
	}
	for i := range want {
		if sleeper.delays[i] != want[i] {
			t.Errorf("delay %d = %s, want %s", i, sleeper.delays[i], want[i])
		}
	}
	if len(keys) != 1 || keys[""] {
		t.Errorf("expected one idempotency key reused across retries, got %v", keys)
	}
}

func TestDispatcher_AuthenticationNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors":[{"title":"Must be authenticated"}]}`))
	}))
	defer srv.Close()

	sleeper := &noSleep{}
	d := NewDispatcher(newTestClient(srv.URL), common.NewSilentLogger(), WithSleeper(sleeper.sleep))
	_, err := d.Dispatch(context.Background(), &request.APIRequest{Method: http.MethodGet, Path: "/accounts"})
	if apierr.KindOf(err) != apierr.KindAuthentication {
		t.Fatalf("expected authentication failure, got %v", err)
	}
	if calls != 1 || len(sleeper.delays) != 0 {
		t.Errorf("expected zero retries, got %d calls and %d sleeps", calls, len(sleeper.delays))
	}
}

func TestDispatcher_RateLimitedSurfacesHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDispatcher(newTestClient(srv.URL), common.NewSilentLogger(), WithSleeper((&noSleep{}).sleep))
	_, err := d.Dispatch(context.Background(), &request.APIRequest{Method: http.MethodGet, Path: "/x"})
	e := apierr.As(err)
	if e == nil || e.Kind != apierr.KindRateLimited || e.RetryAfter != 7*time.Second || e.Attempts != 1 {
		t.Errorf("expected rate limited with 7s hint after one attempt, got %+v", e)
	}
}

func TestDispatcher_RecoversAfterTransient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	d := NewDispatcher(newTestClient(srv.URL), common.NewSilentLogger(), WithSleeper((&noSleep{}).sleep))
	resp, err := d.Dispatch(context.Background(), &request.APIRequest{Method: http.MethodGet, Path: "/x"})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if string(resp.Body) != `{"ok":true}` || calls != 2 {
		t.Errorf("unexpected result %s after %d calls", resp.Body, calls)
	}
}

func TestDispatcher_NoIdempotencyKeyOnGet(t *testing.T) {
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get(IdempotencyHeader)
	}))
	defer srv.Close()

	d := NewDispatcher(newTestClient(srv.URL), common.NewSilentLogger())
	if _, err := d.Dispatch(context.Background(), &request.APIRequest{Method: http.MethodGet, Path: "/x"}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if key != "" {
		t.Errorf("expected no idempotency key on GET, got %q", key)
	}
}

func TestDispatcher_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	d := NewDispatcher(newTestClient(srv.URL), common.NewSilentLogger(), WithTimeout(50*time.Millisecond))
	_, err := d.Dispatch(context.Background(), &request.APIRequest{Method: http.MethodGet, Path: "/slow"})
	e := apierr.As(err)
	if e == nil || e.Kind != apierr.KindTransient {
		t.Fatalf("expected transient timeout, got %v", err)
	}
	if e.Attempts != 1 || e.Duration <= 0 {
		t.Errorf("expected one attempt and a duration, got %+v", e)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		jitter  float64
		want    time.Duration
	}{
		{0, 1, 0},
		{1, 1, 100 * time.Millisecond},
		{2, 1, 200 * time.Millisecond},
		{3, 1, 400 * time.Millisecond},
		{10, 1, time.Second},
		{1, 0, 50 * time.Millisecond},
		{2, 0.5, 150 * time.Millisecond},
	}
	for _, tt := range tests {
		got := Backoff(tt.attempt, 100*time.Millisecond, time.Second, 2, tt.jitter)
		if got != tt.want {
			t.Errorf("Backoff(%d, jitter=%v) = %s, want %s", tt.attempt, tt.jitter, got, tt.want)
		}
	}
}

func TestRetryPolicy_Normalized(t *testing.T) {
	p := RetryPolicy{MaxRetries: -1}.normalized()
	if p.MaxRetries != 0 || p.BaseDelay <= 0 || p.MaxDelay <= 0 || p.Multiplier < 1 {
		t.Errorf("unexpected normalized policy %+v", p)
	}
}
