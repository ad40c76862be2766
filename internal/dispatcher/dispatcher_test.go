package dispatcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveHostnameTierWins(t *testing.T) {
	d := New(nil)
	d.SetHostTable([]HostRoute{{Host: "sync.chitty.cc", Service: ServiceSyncHub}})
	d.SetPathTable([]PathRoute{{Prefix: "/", Service: ServiceGateway}})

	svc, tier, err := d.Resolve(context.Background(), "sync.chitty.cc", "/anything")
	assert.NoError(t, err)
	assert.Equal(t, ServiceSyncHub, svc)
	assert.Equal(t, "hostname", tier)
}

func TestResolvePathLongestPrefixWins(t *testing.T) {
	d := New(nil)
	d.SetPathTable([]PathRoute{
		{Prefix: "/agents", Service: ServiceAgent},
		{Prefix: "/agents/bot/complete", Service: ServiceGateway},
	})

	svc, tier, err := d.Resolve(context.Background(), "unknown.host", "/agents/bot/complete")
	assert.NoError(t, err)
	assert.Equal(t, ServiceGateway, svc)
	assert.Equal(t, "path", tier)
}

func TestResolveFallsBackToDefault(t *testing.T) {
	d := New(nil)
	svc, tier, err := d.Resolve(context.Background(), "unknown.host", "/nowhere")
	assert.NoError(t, err)
	assert.Equal(t, ServiceGateway, svc)
	assert.Equal(t, "default", tier)
}
