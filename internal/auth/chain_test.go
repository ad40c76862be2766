package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chittycorp/chittyrouter/pkg/contracts"
)

type fakeProvider struct {
	name     string
	enabled  bool
	identity *contracts.Identity
	err      error
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Enabled() bool { return f.enabled }
func (f *fakeProvider) Authenticate(context.Context, *http.Request) (*contracts.Identity, error) {
	return f.identity, f.err
}

func TestChainReturnsFirstSuccessfulIdentity(t *testing.T) {
	chain := NewProviderChain()
	chain.RegisterProvider(&fakeProvider{name: "first", enabled: true})
	chain.RegisterProvider(&fakeProvider{name: "second", enabled: true, identity: &contracts.Identity{Subject: "svc:x"}})

	identity, err := chain.Authenticate(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if identity == nil || identity.Subject != "svc:x" {
		t.Fatalf("identity = %+v, want second provider's identity", identity)
	}
}

func TestChainSkipsDisabledProviders(t *testing.T) {
	chain := NewProviderChain()
	chain.RegisterProvider(&fakeProvider{name: "disabled", enabled: false, identity: &contracts.Identity{Subject: "should-not-match"}})

	identity, err := chain.Authenticate(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil || identity != nil {
		t.Fatalf("identity=%+v err=%v, want (nil, nil)", identity, err)
	}
}

func TestChainStopsAndRejectsOnProviderError(t *testing.T) {
	chain := NewProviderChain()
	chain.RegisterProvider(&fakeProvider{name: "rejecting", enabled: true, err: errors.New("bad token")})
	chain.RegisterProvider(&fakeProvider{name: "never-reached", enabled: true, identity: &contracts.Identity{Subject: "svc:x"}})

	_, err := chain.Authenticate(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err == nil {
		t.Fatal("expected the chain to reject once a provider returns an error")
	}
}

func TestChainReturnsNilWhenNoProviderMatches(t *testing.T) {
	chain := NewProviderChain()
	chain.RegisterProvider(&fakeProvider{name: "apikey", enabled: true})
	chain.RegisterProvider(&fakeProvider{name: "service_account", enabled: true})

	identity, err := chain.Authenticate(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil || identity != nil {
		t.Fatalf("identity=%+v err=%v, want (nil, nil)", identity, err)
	}
}

func TestListProvidersReturnsRegistrationOrder(t *testing.T) {
	chain := NewProviderChain()
	chain.RegisterProvider(&fakeProvider{name: "apikey"})
	chain.RegisterProvider(&fakeProvider{name: "service_account"})

	got := chain.ListProviders()
	if len(got) != 2 || got[0] != "apikey" || got[1] != "service_account" {
		t.Fatalf("ListProviders = %v", got)
	}
}
