package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dosepics/internal/api"
	"dosepics/internal/storage"
	"dosepics/internal/upload"
)

func newTestAPIHandler(t *testing.T) *api.Handler {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewStorage(filepath.Join(dir, "store.json"))
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	files, err := storage.NewFileStore(filepath.Join(dir, "files"))
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	return api.NewHandler(store, files, upload.NewManager())
}

func TestNewReturnsErrorWhenHandlerNil(t *testing.T) {
	t.Parallel()

	srv, err := New(nil, Config{})
	if err == nil {
		t.Fatalf("expected error when handler is nil, got server: %#v", srv)
	}
}

func TestServerRoutesHealthAndResources(t *testing.T) {
	srv, err := New(newTestAPIHandler(t), Config{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	chain := srv.httpServer.Handler

	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected generated request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected security headers on every response")
	}

	// The resource handler answers under any mount point.
	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dosepics/users", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("empty users collection: expected 404, got %d", rec.Code)
	}
}

func TestRequestIDMiddlewareEchoesProvidedID(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := requestIDMiddlewareWithGenerator(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), func() string {
		return "generated"
	}, next)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "caller-chosen")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "caller-chosen" {
		t.Fatalf("expected caller id to be echoed, got %q", got)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := rec.Header().Get("X-Request-Id"); got != "generated" {
		t.Fatalf("expected generated id, got %q", got)
	}
}

func TestGlobalRateLimit(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{GlobalRPS: 0.001, GlobalBurst: 1})
	if !rl.AllowRequest() {
		t.Fatal("first request should pass")
	}
	if rl.AllowRequest() {
		t.Fatal("second request should be limited")
	}
}

func TestUploadRateLimitIsPerClient(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{UploadLimit: 2, UploadWindow: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := rl.AllowUpload(ctx, "10.0.0.1")
		if err != nil || !allowed {
			t.Fatalf("upload %d: allowed=%v err=%v", i, allowed, err)
		}
	}
	allowed, retryAfter, err := rl.AllowUpload(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("AllowUpload error: %v", err)
	}
	if allowed {
		t.Fatal("third upload from the same client should be limited")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected a retry hint, got %v", retryAfter)
	}

	// Another client is unaffected.
	if allowed, _, _ := rl.AllowUpload(ctx, "10.0.0.2"); !allowed {
		t.Fatal("other clients should not share the bucket")
	}
}

func TestRateLimitMiddlewareRejectsExcessPosts(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{UploadLimit: 1, UploadWindow: time.Hour})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := rateLimitMiddleware(rl, nil, next)

	req := httptest.NewRequest(http.MethodPost, "/dosepics/pics", nil)
	req.RemoteAddr = "10.0.0.1:4711"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first post: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second post: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	// Reads bypass the upload limit.
	get := httptest.NewRequest(http.MethodGet, "/dosepics/pics", nil)
	get.RemoteAddr = "10.0.0.1:4711"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, get)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
}

func TestAuditMiddlewareLogsMutations(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	handler := auditMiddleware(logger, next)

	req := httptest.NewRequest(http.MethodPost, "/dosepics/users", nil)
	req.SetBasicAuth("alice", "secret")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode audit entry: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "audit" || entry["username"] != "alice" || entry["method"] != http.MethodPost {
		t.Fatalf("unexpected audit entry: %v", entry)
	}
	if entry["status"] != float64(http.StatusCreated) {
		t.Fatalf("unexpected status in audit entry: %v", entry["status"])
	}

	buf.Reset()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/dosepics/users", nil))
	if buf.Len() != 0 {
		t.Fatalf("reads should not be audited: %s", buf.String())
	}
}

func TestExtractClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if got := extractClientIP(req); got != "192.0.2.1" {
		t.Fatalf("remote addr: got %q", got)
	}
	req.Header.Set("X-Real-IP", "198.51.100.7")
	if got := extractClientIP(req); got != "198.51.100.7" {
		t.Fatalf("real ip: got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := extractClientIP(req); got != "203.0.113.9" {
		t.Fatalf("forwarded for: got %q", got)
	}
}

func TestShouldAuditOnlyMutations(t *testing.T) {
	for method, want := range map[string]bool{
		http.MethodGet:    false,
		http.MethodHead:   false,
		http.MethodPost:   true,
		http.MethodPut:    true,
		http.MethodDelete: true,
	} {
		r := httptest.NewRequest(method, "/dosepics/pics", nil)
		if got := shouldAudit(r); got != want {
			t.Fatalf("%s: shouldAudit=%v, want %v", method, got, want)
		}
	}
}

func TestServerShutdownIsIdempotent(t *testing.T) {
	srv, err := New(newTestAPIHandler(t), Config{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown error: %v", err)
	}
}

func TestNewRejectsInvalidCORSOrigin(t *testing.T) {
	_, err := New(newTestAPIHandler(t), Config{CORS: CORSConfig{AllowedOrigins: []string{"not a url"}}})
	if err == nil {
		t.Fatal("expected error for malformed origin")
	}
	if !strings.Contains(err.Error(), "origin") {
		t.Fatalf("unexpected error: %v", err)
	}
}
