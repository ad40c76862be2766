package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeDriver struct {
	kind    string
	fail    bool
	calls   int
	text    string
}

func (f *fakeDriver) Kind() string { return f.kind }

func (f *fakeDriver) Call(_ context.Context, _ CompletionRequest) (string, int, int, error) {
	f.calls++
	if f.fail {
		return "", 0, 0, errors.New("boom")
	}
	return f.text, 10, 10, nil
}

func (f *fakeDriver) HealthCheck(_ context.Context) error { return nil }

func TestCompleteFallsBackOnFailure(t *testing.T) {
	g := New()
	primary := &fakeDriver{kind: "openai", fail: true}
	secondary := &fakeDriver{kind: "anthropic", text: "fallback response"}
	g.RegisterDriver(primary)
	g.RegisterDriver(secondary)

	res := g.Complete(context.Background(), CompletionRequest{Prompt: "hi", Model: "x", PreferredProvider: "openai"})
	assert.True(t, res.Success)
	assert.Equal(t, "anthropic", res.Provider)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestCompleteCachesResponse(t *testing.T) {
	g := New()
	d := &fakeDriver{kind: "openai", text: "cached text"}
	g.RegisterDriver(d)

	req := CompletionRequest{Prompt: "same prompt", Model: "gpt-4o-mini", PreferredProvider: "openai"}
	first := g.Complete(context.Background(), req)
	second := g.Complete(context.Background(), req)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, d.calls, "second call should be served from cache")
}

func TestCompleteAllFailReturnsUnsuccessful(t *testing.T) {
	g := New()
	g.RegisterDriver(&fakeDriver{kind: "openai", fail: true})

	res := g.Complete(context.Background(), CompletionRequest{Prompt: "hi", PreferredProvider: "openai"})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.LastError)
}
