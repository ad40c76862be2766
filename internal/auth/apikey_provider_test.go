package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIKeyProviderAcceptsBearerToken(t *testing.T) {
	p := &APIKeyProvider{keys: map[string]bool{"secret-key": true}, enabled: true, defaultRole: "operator"}

	r := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	r.Header.Set("Authorization", "Bearer secret-key")

	identity, err := p.Authenticate(context.Background(), r)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if identity == nil || identity.Provider != "apikey" {
		t.Fatalf("identity = %+v, want apikey identity", identity)
	}
}

func TestAPIKeyProviderAcceptsXAPIKeyHeader(t *testing.T) {
	p := &APIKeyProvider{keys: map[string]bool{"secret-key": true}, enabled: true, defaultRole: "operator"}

	r := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	r.Header.Set("X-API-Key", "secret-key")

	identity, err := p.Authenticate(context.Background(), r)
	if err != nil || identity == nil {
		t.Fatalf("Authenticate: identity=%+v err=%v", identity, err)
	}
}

func TestAPIKeyProviderRejectsWrongKey(t *testing.T) {
	p := &APIKeyProvider{keys: map[string]bool{"secret-key": true}, enabled: true, defaultRole: "operator"}

	r := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	r.Header.Set("Authorization", "Bearer wrong-key")

	if _, err := p.Authenticate(context.Background(), r); err == nil {
		t.Fatal("expected error for an invalid key")
	}
}

func TestAPIKeyProviderReturnsNilWhenNoKeyPresent(t *testing.T) {
	p := &APIKeyProvider{keys: map[string]bool{"secret-key": true}, enabled: true}

	r := httptest.NewRequest(http.MethodGet, "/api/todos", nil)

	identity, err := p.Authenticate(context.Background(), r)
	if err != nil || identity != nil {
		t.Fatalf("identity=%+v err=%v, want (nil, nil)", identity, err)
	}
}

func TestAddKeyAndRemoveKeyTogglesEnabled(t *testing.T) {
	p := &APIKeyProvider{keys: map[string]bool{}}

	p.AddKey("fresh-key")
	if !p.Enabled() {
		t.Fatal("expected provider to become enabled after AddKey")
	}

	p.RemoveKey("fresh-key")
	if p.Enabled() {
		t.Fatal("expected provider to become disabled once the last key is removed")
	}
}
