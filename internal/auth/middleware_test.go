package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	pkgmw "github.com/chittycorp/chittyrouter/pkg/middleware"
)

func TestMiddlewareAllowsHealthWithoutAuth(t *testing.T) {
	mw := NewMiddleware(NewProviderChain())
	called := false
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("health path should bypass auth, got code=%d called=%v", rec.Code, called)
	}
}

func TestMiddlewareRejectsUnauthenticatedNonHealthPath(t *testing.T) {
	mw := NewMiddleware(NewProviderChain())
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached without credentials")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/todos", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401", rec.Code)
	}
}

func TestMiddlewareAcceptsValidCredentialAndSetsIdentity(t *testing.T) {
	chain := NewProviderChain()
	chain.RegisterProvider(&APIKeyProvider{keys: map[string]bool{"secret-key": true}, enabled: true, defaultRole: "operator"})
	mw := NewMiddleware(chain)

	var sawIdentity bool
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawIdentity = pkgmw.GetIdentity(r.Context()) != nil
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	r.Header.Set("Authorization", "Bearer secret-key")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK || !sawIdentity {
		t.Fatalf("code=%d sawIdentity=%v", rec.Code, sawIdentity)
	}
}

func TestMiddlewareRejectsInvalidCredential(t *testing.T) {
	chain := NewProviderChain()
	chain.RegisterProvider(&APIKeyProvider{keys: map[string]bool{"secret-key": true}, enabled: true})
	mw := NewMiddleware(chain)

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached with an invalid credential")
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	r.Header.Set("Authorization", "Bearer wrong-key")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401", rec.Code)
	}
}
