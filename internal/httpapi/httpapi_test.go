package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chittycorp/chittyrouter/internal/agent"
	"github.com/chittycorp/chittyrouter/internal/auth"
	"github.com/chittycorp/chittyrouter/internal/config"
	"github.com/chittycorp/chittyrouter/internal/dispatcher"
	"github.com/chittycorp/chittyrouter/internal/gateway"
	"github.com/chittycorp/chittyrouter/internal/identityclient"
	"github.com/chittycorp/chittyrouter/internal/pipeline"
	"github.com/chittycorp/chittyrouter/internal/synchub"
)

const testAPIKey = "test-secret-key"

// newTestServer wires a full Deps bundle against a stub identity
// authority, mirroring what pkg/server/server.go assembles in
// production, and returns an httptest.Server fronting the router.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	identitySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "CHITTY-ACTOR-0001-AB"})
	}))
	t.Cleanup(identitySrv.Close)
	identity := identityclient.New(identitySrv.URL)

	gw := gateway.New()
	disp := dispatcher.New(gw)
	agents := agent.NewRegistry(agent.Config{Identity: identity, Gateway: gw})
	hub := synchub.New(synchub.Config{Identity: identity})
	pl := pipeline.New(identity, stubTrust{}, stubAuthz{})

	apiKeyProvider := auth.NewAPIKeyProvider()
	apiKeyProvider.AddKey(testAPIKey)
	chain := auth.NewProviderChain()
	chain.RegisterProvider(apiKeyProvider)

	d := &Deps{
		Config:     &config.Config{Version: "test"},
		Dispatcher: disp,
		Gateway:    gw,
		Agents:     agents,
		SyncHub:    hub,
		Pipeline:   pl,
		AuthChain:  chain,
	}

	srv := httptest.NewServer(NewRouter(d))
	t.Cleanup(srv.Close)
	return srv
}

type stubTrust struct{}

func (stubTrust) Score(ctx context.Context, caller pipeline.CallerContext) (float64, error) {
	return 1, nil
}

type stubAuthz struct{}

func (stubAuthz) Authorize(ctx context.Context, caller pipeline.CallerContext, kind string) error {
	return nil
}

func authedRequest(method, url string, body []byte) *http.Request {
	var r *http.Request
	if body != nil {
		r, _ = http.NewRequest(method, url, bytes.NewReader(body))
	} else {
		r, _ = http.NewRequest(method, url, nil)
	}
	r.Header.Set("Authorization", "Bearer "+testAPIKey)
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestHealthBypassesAuth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestNonHealthPathRequiresAuth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/router/stats")
	if err != nil {
		t.Fatalf("GET /router/stats: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestTodoCreateGetUpdateDeleteRoundTrips(t *testing.T) {
	srv := newTestServer(t)
	client := http.DefaultClient

	body, _ := json.Marshal(map[string]string{"content": "write the launch doc"})
	req := authedRequest(http.MethodPost, srv.URL+"/api/todos/", body)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("POST /api/todos: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var created struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&created)
	if created.ID == "" {
		t.Fatal("expected an assigned id")
	}

	getResp, err := client.Do(authedRequest(http.MethodGet, srv.URL+"/api/todos/"+created.ID+"/", nil))
	if err != nil {
		t.Fatalf("GET /api/todos/{id}: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", getResp.StatusCode)
	}

	updateBody, _ := json.Marshal(map[string]string{"content": "ship the launch doc", "status": "completed"})
	updateResp, err := client.Do(authedRequest(http.MethodPut, srv.URL+"/api/todos/"+created.ID+"/", updateBody))
	if err != nil {
		t.Fatalf("PUT /api/todos/{id}: %v", err)
	}
	defer updateResp.Body.Close()
	if updateResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", updateResp.StatusCode)
	}

	delResp, err := client.Do(authedRequest(http.MethodDelete, srv.URL+"/api/todos/"+created.ID+"/", nil))
	if err != nil {
		t.Fatalf("DELETE /api/todos/{id}: %v", err)
	}
	defer delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", delResp.StatusCode)
	}
}

func TestPipelineGenerateThenStatus(t *testing.T) {
	srv := newTestServer(t)
	client := http.DefaultClient

	body, _ := json.Marshal(map[string]interface{}{
		"entityType": "FACT",
		"payload":    map[string]string{"k": "v"},
	})
	resp, err := client.Do(authedRequest(http.MethodPost, srv.URL+"/pipeline/fact/generate", body))
	if err != nil {
		t.Fatalf("POST /pipeline/{kind}/generate: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var exec struct {
		PipelineID string `json:"pipelineId"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&exec)
	if exec.PipelineID == "" {
		t.Fatal("expected a pipelineId")
	}

	statusResp, err := client.Do(authedRequest(http.MethodGet, srv.URL+"/pipeline/status/"+exec.PipelineID, nil))
	if err != nil {
		t.Fatalf("GET /pipeline/status/{id}: %v", err)
	}
	defer statusResp.Body.Close()
	if statusResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", statusResp.StatusCode)
	}
}

func TestDLQEndpointsReturnEmptyWhenCollaboratorsUnset(t *testing.T) {
	srv := newTestServer(t)
	client := &http.Client{}

	for _, path := range []string{"/evidence/dlq", "/email/dlq"} {
		resp, err := client.Do(authedRequest(http.MethodGet, srv.URL+path, nil))
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
		var body struct {
			Entries []any `json:"entries"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("GET %s: decode: %v", path, err)
		}
		if len(body.Entries) != 0 {
			t.Fatalf("GET %s entries = %v, want empty", path, body.Entries)
		}
	}
}
