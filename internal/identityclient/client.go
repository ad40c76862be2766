// Package identityclient is a thin wrapper over the external identity
// minting authority. It is the only place in ChittyRouter permitted to
// produce an Identifier; every other package must go through Client.Mint.
package identityclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/chittycorp/chittyrouter/pkg/apierr"
	"github.com/chittycorp/chittyrouter/pkg/models"
)

// shapePattern validates only the local shape of an identifier —
// <PREFIX>-<TYPE>-<SEQ>-<CHECK> — never its authenticity. Authenticity is
// the identity authority's exclusive concern.
var shapePattern = regexp.MustCompile(`^[A-Z0-9]+-[A-Z]+-[A-Z0-9]+-[A-Z0-9]+$`)

// Client talks to the external identity authority over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against the given identity authority base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

type mintRequest struct {
	EntityType models.IdentifierType `json:"entityType"`
	Payload    interface{}           `json:"payload"`
}

type mintResponse struct {
	ID string `json:"id"`
}

// Mint requests a fresh Identifier of the given type for payload. It never
// constructs an identifier locally on success; on upstream failure it
// returns a typed UpstreamUnavailable error rather than fabricating one.
func (c *Client) Mint(ctx context.Context, correlationID string, entityType models.IdentifierType, payload interface{}) (models.Identifier, error) {
	body, err := json.Marshal(mintRequest{EntityType: entityType, Payload: payload})
	if err != nil {
		return "", apierr.Wrap(apierr.Validation, correlationID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mint", bytes.NewReader(body))
	if err != nil {
		return "", apierr.Wrap(apierr.InternalInvariantViolated, correlationID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-Id", correlationID)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apierr.New(apierr.UpstreamUnavailable, correlationID, fmt.Sprintf("identity authority unreachable: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apierr.New(apierr.UpstreamUnavailable, correlationID, fmt.Sprintf("identity authority returned %d", resp.StatusCode))
	}

	var out mintResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apierr.Wrap(apierr.UpstreamUnavailable, correlationID, err)
	}
	if !shapePattern.MatchString(out.ID) {
		return "", apierr.New(apierr.InternalInvariantViolated, correlationID, "identity authority returned malformed identifier")
	}
	return models.Identifier(out.ID), nil
}

// ValidShape performs only a local shape check; it never confirms the
// identifier is registered with the authority.
func ValidShape(id models.Identifier) bool {
	return shapePattern.MatchString(string(id))
}

// Validate asks the identity authority to confirm an identifier is
// registered and live.
func (c *Client) Validate(ctx context.Context, correlationID string, id models.Identifier) (bool, error) {
	if !ValidShape(id) {
		return false, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/validate/"+string(id), nil)
	if err != nil {
		return false, apierr.Wrap(apierr.InternalInvariantViolated, correlationID, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, apierr.New(apierr.UpstreamUnavailable, correlationID, fmt.Sprintf("identity authority unreachable: %v", err))
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}
