package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestServiceAccountRoundTripsGeneratedToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateToken(secret, "ci-pipeline", "service", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	p := &ServiceAccountProvider{secret: secret, enabled: true}
	r := httptest.NewRequest(http.MethodPost, "/pipeline/evidence/generate", nil)
	r.Header.Set("X-Service-Token", token)

	identity, err := p.Authenticate(context.Background(), r)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if identity.Subject != "svc:ci-pipeline" || identity.Role != "service" {
		t.Fatalf("identity = %+v", identity)
	}
}

func TestServiceAccountRejectsExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateToken(secret, "ci-pipeline", "service", -time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	p := &ServiceAccountProvider{secret: secret, enabled: true}
	r := httptest.NewRequest(http.MethodPost, "/pipeline/evidence/generate", nil)
	r.Header.Set("X-Service-Token", token)

	if _, err := p.Authenticate(context.Background(), r); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestServiceAccountRejectsTamperedSignature(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateToken(secret, "ci-pipeline", "service", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	p := &ServiceAccountProvider{secret: []byte("different-secret"), enabled: true}
	r := httptest.NewRequest(http.MethodPost, "/pipeline/evidence/generate", nil)
	r.Header.Set("X-Service-Token", token)

	if _, err := p.Authenticate(context.Background(), r); err == nil {
		t.Fatal("expected signature mismatch to be rejected")
	}
}

func TestServiceAccountReturnsNilWhenNoTokenPresent(t *testing.T) {
	p := &ServiceAccountProvider{secret: []byte("test-secret"), enabled: true}
	r := httptest.NewRequest(http.MethodGet, "/pipeline/status/abc", nil)

	identity, err := p.Authenticate(context.Background(), r)
	if err != nil || identity != nil {
		t.Fatalf("identity=%+v err=%v, want (nil, nil)", identity, err)
	}
}
