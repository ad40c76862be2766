package emailpipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chittycorp/chittyrouter/internal/gateway"
	"github.com/chittycorp/chittyrouter/internal/identityclient"
	"github.com/chittycorp/chittyrouter/internal/memory/working"
)

// fakeIdentityAuthority always mints a well-shaped identifier, so tests
// that need a successful delivery path don't depend on a real network call.
func fakeIdentityAuthority(t *testing.T) *httptest.Server {
	t.Helper()
	seq := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seq++
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id": "CHITTY-EVNT-" + "0000" + string(rune('0'+seq)) + "-AB",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestPipeline(t *testing.T, whitelist *Whitelist, identityBaseURL string) (*Pipeline, *int) {
	t.Helper()
	forwardCount := 0
	cfg := Config{
		Whitelist:       whitelist,
		Router:          NewRouter(DefaultRules(), "general@chitty.cc"),
		RejectThreshold: 80,
		SenderLimit:     1000,
		SenderWindow:    time.Hour,
		DomainLimit:     500,
		DomainWindow:    time.Hour,
		ClassifyTimeout: 2 * time.Second,
		ForwardRetries:  1,
		Working:         working.NewLocalStore(),
		Gateway:         gateway.New(),
		Identity:        identityclient.New(identityBaseURL),
		Forward: func(ctx context.Context, msg Message, destination string) error {
			forwardCount++
			return nil
		},
	}
	return &Pipeline{cfg: cfg}, &forwardCount
}

// scenario 1 (spec §8): a whitelisted sender bypasses the spam and
// rate-limit checks entirely, even when its content looks like spam.
func TestWhitelistedSenderBypassesChecks(t *testing.T) {
	wl := NewWhitelist(nil, []string{"notify.cloudflare.com"})
	srv := fakeIdentityAuthority(t)
	p, forwarded := newTestPipeline(t, wl, srv.URL)

	msg := Message{
		From:     "noreply@notify.cloudflare.com",
		To:       "ops@chitty.cc",
		Subject:  "WIN MONEY NOW!!! $$$",
		BodyText: "act now, risk free, 100% free, unsubscribe here",
	}

	out := p.Process(context.Background(), "corr-1", msg)
	assert.NotEqual(t, "spam", out.RejectReason)
	assert.NotEqual(t, "rate-limit-sender", out.RejectReason)
	assert.NotEqual(t, "rate-limit-domain", out.RejectReason)
	assert.Equal(t, StateDelivered, out.State)
	assert.Equal(t, 1, *forwarded)
}

// scenario 2 (spec §8): the 501st message in one hour from a
// non-whitelisted domain trips the domain rate limit; the first 500 stay
// within it.
func TestDomainRateLimitTripsAt501(t *testing.T) {
	p, _ := newTestPipeline(t, nil, "http://127.0.0.1:1")

	rl := working.NewRateLimiter(p.cfg.Working)
	for i := 0; i < 500; i++ {
		ok, _, err := rl.Allow(context.Background(), "ratelimit:domain:bulk.example", 500, time.Hour)
		require.NoError(t, err)
		require.True(t, ok, "message %d should be within the domain limit", i+1)
	}

	ok, n, err := rl.Allow(context.Background(), "ratelimit:domain:bulk.example", 500, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(501), n)

	msg := Message{From: "blast@bulk.example", To: "ops@chitty.cc", Subject: "newsletter", BodyText: "hello"}
	out := p.Process(context.Background(), "corr-2", msg)
	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, "rate-limit-domain", out.RejectReason)
}

func TestNonWhitelistedCleanMessageReachesDelivered(t *testing.T) {
	srv := fakeIdentityAuthority(t)
	p, forwarded := newTestPipeline(t, nil, srv.URL)

	msg := Message{
		From:     "counsel@partner-firm.example",
		To:       "litigation@chitty.cc",
		Subject:  "Motion filing update",
		BodyText: "Please see attached motion for the upcoming hearing.",
	}
	out := p.Process(context.Background(), "corr-3", msg)

	assert.Equal(t, StateDelivered, out.State)
	assert.Equal(t, 1, *forwarded)
	assert.NotEmpty(t, out.ChittyID)
}

func TestSpamRejected(t *testing.T) {
	p, _ := newTestPipeline(t, nil, "http://127.0.0.1:1")
	msg := Message{
		From:     "spammer@bad.example",
		Subject:  "WIN MONEY NOW!!!",
		BodyText: "act now, risk free, 100% free, claim your prize, cash bonus, click here now",
	}
	out := p.Process(context.Background(), "corr-4", msg)
	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, "spam", out.RejectReason)
}

func TestIdentityMintFailureRejectsMessage(t *testing.T) {
	p, forwarded := newTestPipeline(t, nil, "http://127.0.0.1:1")
	msg := Message{From: "counsel@partner-firm.example", Subject: "hi", BodyText: "hello there"}
	out := p.Process(context.Background(), "corr-5", msg)
	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, "mint-failed", out.RejectReason)
	assert.Equal(t, 0, *forwarded)
}
