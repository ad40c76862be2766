package evidence

import (
	"context"
	"testing"

	"github.com/chittycorp/chittyrouter/internal/identityclient"
	"github.com/chittycorp/chittyrouter/internal/pipeline"
	"github.com/chittycorp/chittyrouter/pkg/models"
)

type fixedTrust struct{ score float64 }

func (f fixedTrust) Score(ctx context.Context, caller pipeline.CallerContext) (float64, error) {
	return f.score, nil
}

func TestPipelineMinterMintsThroughFiveStagePipeline(t *testing.T) {
	srv := fakeIdentityAuthority(t, "CHT-EVNT-20-A")
	eng := pipeline.New(identityclient.New(srv.URL), fixedTrust{score: 0.9}, nil)
	m := &PipelineMinter{Engine: eng, Kind: "evidence", Source: "evidence-ingest"}

	id, err := m.Mint(context.Background(), "corr-1", models.TypeEvent, map[string]string{"source": "upload"})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if id != "CHT-EVNT-20-A" {
		t.Fatalf("id = %q, want minted id", id)
	}
}

func TestPipelineMinterSurfacesFailedStageReason(t *testing.T) {
	srv := fakeIdentityAuthority(t, "CHT-EVNT-21-A")
	eng := pipeline.New(identityclient.New(srv.URL), fixedTrust{score: 0.0}, nil)
	m := &PipelineMinter{Engine: eng, Kind: "evidence"}

	_, err := m.Mint(context.Background(), "corr-2", models.TypeEvent, map[string]string{})
	if err == nil {
		t.Fatal("expected mint to fail when trust stage rejects the caller")
	}
}
