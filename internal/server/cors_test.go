package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newCORSHandler(t *testing.T, origins ...string) http.Handler {
	t.Helper()
	policy, err := newCORSPolicy(CORSConfig{AllowedOrigins: origins})
	if err != nil {
		t.Fatalf("newCORSPolicy error: %v", err)
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return corsMiddleware(policy, nil, next)
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	handler := newCORSHandler(t, "https://gallery.example.com")

	req := httptest.NewRequest(http.MethodGet, "/dosepics/pics", nil)
	req.Header.Set("Origin", "https://gallery.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://gallery.example.com" {
		t.Fatalf("unexpected allow-origin header %q", got)
	}
	if rec.Header().Get("Vary") != "Origin" {
		t.Fatal("expected Vary: Origin")
	}
}

func TestCORSBlocksUnknownOrigin(t *testing.T) {
	handler := newCORSHandler(t, "https://gallery.example.com")

	req := httptest.NewRequest(http.MethodGet, "/dosepics/pics", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestCORSAllowsSameOriginRequests(t *testing.T) {
	handler := newCORSHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/dosepics/pics", nil)
	req.Host = "api.example.com"
	req.Header.Set("Origin", "http://api.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for same-origin request, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := newCORSHandler(t, "https://gallery.example.com")

	req := httptest.NewRequest(http.MethodOptions, "/dosepics/pics", nil)
	req.Header.Set("Origin", "https://gallery.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatal("expected allowed methods on preflight")
	}
}

func TestNormalizeOriginLowercasesAndValidates(t *testing.T) {
	got, err := normalizeOrigin(" HTTPS://Gallery.Example.COM ")
	if err != nil {
		t.Fatalf("normalizeOrigin error: %v", err)
	}
	if got != "https://gallery.example.com" {
		t.Fatalf("unexpected normalized origin %q", got)
	}

	if _, err := normalizeOrigin("gallery.example.com"); err == nil {
		t.Fatal("expected error for origin without scheme")
	}
}
