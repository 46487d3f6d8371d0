package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if called != nil {
			*called = true
		}
		w.WriteHeader(http.StatusOK)
	})
}

func preflight(origin, method string) *http.Request {
	req := httptest.NewRequest(http.MethodOptions, "/api/appointments/", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", method)
	return req
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	called := false
	mw := CORS(CORSPolicy{AllowedOrigins: []string{"https://example.com"}})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()

	mw(okHandler(&called)).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Fatalf("expected allow origin header, got %q", got)
	}
	if rec.Header().Get("Vary") != "Origin" {
		t.Fatalf("expected Vary: Origin")
	}
}

func TestCORSDeniesUnknownOrigin(t *testing.T) {
	called := false
	mw := CORS(CORSPolicy{AllowedOrigins: []string{"https://example.com"}})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://unknown.example")
	rec := httptest.NewRecorder()

	mw(okHandler(&called)).ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow origin header, got %q", got)
	}
	if !called {
		t.Fatalf("simple requests still reach the handler")
	}
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	mw := CORS(CORSPolicy{AllowedOrigins: []string{"*"}})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://random.example")
	rec := httptest.NewRecorder()

	mw(okHandler(nil)).ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://random.example" {
		t.Fatalf("expected allow origin header, got %q", got)
	}
}

func TestCORSPreflightUsesDefaults(t *testing.T) {
	called := false
	mw := CORS(CORSPolicy{AllowedOrigins: []string{"https://example.com"}})
	rec := httptest.NewRecorder()

	mw(okHandler(&called)).ServeHTTP(rec, preflight("https://example.com", "PATCH"))

	if called {
		t.Fatalf("expected handler to not be called on preflight")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PATCH, OPTIONS" {
		t.Fatalf("unexpected methods %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Authorization, Content-Type, X-Request-Id" {
		t.Fatalf("unexpected headers %q", got)
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Fatalf("unexpected max age %q", got)
	}
}

func TestCORSPreflightFollowsPolicy(t *testing.T) {
	mw := CORS(CORSPolicy{
		AllowedOrigins: []string{"https://admin.example"},
		AllowedMethods: []string{"get", " post "},
		AllowedHeaders: []string{"authorization", "x-intake-client"},
		MaxAge:         time.Hour,
	})

	rec := httptest.NewRecorder()
	mw(okHandler(nil)).ServeHTTP(rec, preflight("https://admin.example", "POST"))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST" {
		t.Fatalf("unexpected methods %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Authorization, X-Intake-Client" {
		t.Fatalf("unexpected headers %q", got)
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "3600" {
		t.Fatalf("unexpected max age %q", got)
	}

	rec = httptest.NewRecorder()
	mw(okHandler(nil)).ServeHTTP(rec, preflight("https://admin.example", "PATCH"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected method outside policy to be refused, got %d", rec.Code)
	}
}

func TestCORSPreflightRefusesUnknownOrigin(t *testing.T) {
	called := false
	mw := CORS(CORSPolicy{AllowedOrigins: []string{"https://example.com"}})
	rec := httptest.NewRecorder()

	mw(okHandler(&called)).ServeHTTP(rec, preflight("https://evil.example", "POST"))

	if called || rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without reaching handler, got %d called=%v", rec.Code, called)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("expected no allow origin header")
	}
}

func TestCORSPolicyEnabled(t *testing.T) {
	if (CORSPolicy{AllowedOrigins: []string{" ", ""}}).Enabled() {
		t.Fatal("blank origins should not enable CORS")
	}
	if !(CORSPolicy{AllowedOrigins: []string{"*"}}).Enabled() {
		t.Fatal("wildcard should enable CORS")
	}
}
