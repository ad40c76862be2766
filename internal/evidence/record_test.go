package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chittycorp/chittyrouter/internal/identityclient"
	"github.com/chittycorp/chittyrouter/pkg/models"
)

func fakeIdentityAuthority(t *testing.T, id string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type memLedger struct {
	saved map[models.Identifier]models.EvidenceRecord
}

func newMemLedger() *memLedger { return &memLedger{saved: map[models.Identifier]models.EvidenceRecord{}} }

func (m *memLedger) Save(ctx context.Context, rec models.EvidenceRecord) error {
	m.saved[rec.ChittyID] = rec
	return nil
}
func (m *memLedger) Get(ctx context.Context, chittyID models.Identifier) (models.EvidenceRecord, error) {
	rec, ok := m.saved[chittyID]
	if !ok {
		return models.EvidenceRecord{}, ErrRecordNotFound
	}
	return rec, nil
}
func (m *memLedger) AppendReindex(ctx context.Context, chittyID models.Identifier, ev models.ReindexEvent) error {
	rec := m.saved[chittyID]
	rec.ReindexHistory = append(rec.ReindexHistory, ev)
	m.saved[chittyID] = rec
	return nil
}
func (m *memLedger) RecentForReindex(ctx context.Context, window time.Duration) ([]models.EvidenceRecord, error) {
	var out []models.EvidenceRecord
	for _, rec := range m.saved {
		out = append(out, rec)
	}
	return out, nil
}

type fakeQueue struct {
	enqueued []models.Identifier
}

func (q *fakeQueue) Enqueue(ctx context.Context, chittyID models.Identifier, priority models.Priority, at time.Time) error {
	q.enqueued = append(q.enqueued, chittyID)
	return nil
}

type fixedScorer struct {
	score float64
	err   error
}

func (s fixedScorer) Score(ctx context.Context, payload []byte, hints map[string]string) (float64, error) {
	return s.score, s.err
}

type fixedExtractor struct {
	entities models.Entities
	err      error
}

func (e fixedExtractor) Extract(ctx context.Context, payload []byte, contentType string) (models.Entities, error) {
	return e.entities, e.err
}

func TestIngestHighProbabilityMintsEventAndEnqueues(t *testing.T) {
	srv := fakeIdentityAuthority(t, "CHT-EVNT-1-A")
	ledger := newMemLedger()
	queue := &fakeQueue{}

	p := &Pipeline{
		Identity:  identityclient.New(srv.URL),
		Ledger:    ledger,
		Queue:     queue,
		Scorer:    fixedScorer{score: 0.9},
		Extractor: fixedExtractor{entities: models.Entities{People: []string{"Jane Doe"}}},
	}

	rec, err := p.Ingest(context.Background(), "corr-1", Submission{
		Source: "upload", ContentType: "text/plain", Payload: []byte("evidence body"), Priority: models.PriorityNormal,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if rec.Probability != 0.9 {
		t.Fatalf("probability = %v, want 0.9", rec.Probability)
	}
	if len(queue.enqueued) != 1 {
		t.Fatalf("expected enqueue on probability > 0.7, got %d enqueues", len(queue.enqueued))
	}
	if _, err := ledger.Get(context.Background(), rec.ChittyID); err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
}

func TestIngestLowProbabilityStillPersistedNeverEnqueued(t *testing.T) {
	srv := fakeIdentityAuthority(t, "CHT-INFO-2-A")
	ledger := newMemLedger()
	queue := &fakeQueue{}

	p := &Pipeline{
		Identity:  identityclient.New(srv.URL),
		Ledger:    ledger,
		Queue:     queue,
		Scorer:    fixedScorer{score: 0.1},
		Extractor: fixedExtractor{},
	}

	rec, err := p.Ingest(context.Background(), "corr-2", Submission{
		Source: "upload", Payload: []byte("routine note"), Priority: models.PriorityNormal,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(queue.enqueued) != 0 {
		t.Fatal("low-probability normal-priority submission should not enqueue")
	}
	if _, ok := ledger.saved[rec.ChittyID]; !ok {
		t.Fatal("record must still be persisted regardless of low probability — ingestion never drops input")
	}
}

func TestIngestCriticalPriorityEnqueuesRegardlessOfProbability(t *testing.T) {
	srv := fakeIdentityAuthority(t, "CHT-INFO-3-A")
	ledger := newMemLedger()
	queue := &fakeQueue{}

	p := &Pipeline{
		Identity:  identityclient.New(srv.URL),
		Ledger:    ledger,
		Queue:     queue,
		Scorer:    fixedScorer{score: 0.05},
		Extractor: fixedExtractor{},
	}

	_, err := p.Ingest(context.Background(), "corr-3", Submission{
		Payload: []byte("x"), Priority: models.PriorityCritical,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(queue.enqueued) != 1 {
		t.Fatal("critical priority must enqueue even at low probability")
	}
}

func TestIngestDegradesOnScorerAndExtractorFailure(t *testing.T) {
	srv := fakeIdentityAuthority(t, "CHT-INFO-4-A")
	ledger := newMemLedger()
	queue := &fakeQueue{}

	p := &Pipeline{
		Identity:  identityclient.New(srv.URL),
		Ledger:    ledger,
		Queue:     queue,
		Scorer:    fixedScorer{err: errors.New("gateway down")},
		Extractor: fixedExtractor{err: errors.New("gateway down")},
	}

	rec, err := p.Ingest(context.Background(), "corr-4", Submission{Payload: []byte("x"), Priority: models.PriorityNormal})
	if err != nil {
		t.Fatalf("Ingest must degrade rather than fail on scorer/extractor errors: %v", err)
	}
	if rec.Probability != 0 {
		t.Fatalf("degraded probability = %v, want 0", rec.Probability)
	}
	if len(rec.Entities.People) != 0 || len(rec.Entities.Places) != 0 {
		t.Fatal("degraded extraction should yield empty entities, not an error")
	}
}

func TestIngestMintFailureAbortsIngestion(t *testing.T) {
	ledger := newMemLedger()
	queue := &fakeQueue{}

	p := &Pipeline{
		Identity:  identityclient.New("http://127.0.0.1:1"),
		Ledger:    ledger,
		Queue:     queue,
		Scorer:    fixedScorer{score: 0.5},
		Extractor: fixedExtractor{},
	}

	_, err := p.Ingest(context.Background(), "corr-5", Submission{Payload: []byte("x"), Priority: models.PriorityNormal})
	if err == nil {
		t.Fatal("expected Ingest to fail when identity minting is unreachable")
	}
	if len(ledger.saved) != 0 {
		t.Fatal("no record should be persisted when minting fails")
	}
}

func TestParseProbabilityHandlesFractionAndPercentage(t *testing.T) {
	cases := map[string]float64{
		"0.85":                     0.85,
		"The score is 85 percent.": 0.85,
		"1":                        1,
		"no number here":          0,
	}
	for in, want := range cases {
		if got := parseProbability(in); got != want {
			t.Errorf("parseProbability(%q) = %v, want %v", in, got, want)
		}
	}
}
