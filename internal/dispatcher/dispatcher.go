// Package dispatcher implements the Service Dispatcher: a three-tier
// router (hostname table -> path-prefix table -> AI classification) with
// a forwarding layer that prefers in-process service bindings over HTTP
// egress.
//
// Generalized from the teacher's model-router provider registry
// (internal/router): the same ordered-resolution-with-fallback shape,
// applied to "inbound request -> internal service" instead of
// "completion request -> AI provider".
package dispatcher

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chittycorp/chittyrouter/internal/gateway"
)

// ServiceKey names one internal component the dispatcher can route to.
type ServiceKey string

const (
	ServiceIdentity   ServiceKey = "identity"
	ServiceSyncHub    ServiceKey = "sync-hub"
	ServiceDispatcher ServiceKey = "dispatcher"
	ServiceAgent      ServiceKey = "agent-substrate"
	ServiceEvidence   ServiceKey = "evidence-pipeline"
	ServiceGateway    ServiceKey = "gateway" // default fallback service
)

// HostRoute is one entry of the hostname table.
type HostRoute struct {
	Host    string
	Service ServiceKey
}

// PathRoute is one entry of the path-prefix table, consulted by longest
// prefix first.
type PathRoute struct {
	Prefix  string
	Service ServiceKey
}

// CatalogEntry documents one routable service for the AI classification
// tier — implemented as data, per the design notes, so the AI is a pure
// function over this list plus request context.
type CatalogEntry struct {
	Key         ServiceKey
	Description string
}

// Binding is an in-process handler for a resolved service; when present,
// forwarding invokes it directly instead of issuing an egress HTTP call.
type Binding func(w http.ResponseWriter, r *http.Request)

// RoutingError is the structured dispatcher-level failure Forward returns
// when the resolved service has neither an in-process binding nor an
// egress address. Resolve does not return it: a request that no tier
// matches resolves to the default service. The dispatcher never retries
// silently at this layer.
type RoutingError struct {
	AttemptedTiers []string
	CorrelationID  string
}

func (e *RoutingError) Error() string {
	return "no route matched after tiers: " + strings.Join(e.AttemptedTiers, ", ")
}

// Dispatcher resolves inbound requests to exactly one internal component.
type Dispatcher struct {
	mu          sync.RWMutex
	hostTable   []HostRoute
	pathTable   []PathRoute
	catalog     []CatalogEntry
	bindings    map[ServiceKey]Binding
	egressAddrs map[ServiceKey]string
	gateway     *gateway.Gateway
	defaultSvc  ServiceKey

	correlationSeq atomic.Uint64

	counters    *prometheus.CounterVec
	statsMu     sync.Mutex
	targetStats map[ServiceKey]uint64
}

// New builds a Dispatcher. The default service is "gateway", per spec.
func New(g *gateway.Gateway) *Dispatcher {
	d := &Dispatcher{
		bindings:    make(map[ServiceKey]Binding),
		egressAddrs: make(map[ServiceKey]string),
		gateway:     g,
		defaultSvc:  ServiceGateway,
		targetStats: make(map[ServiceKey]uint64),
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chittyrouter_dispatcher_routes_total",
			Help: "Count of dispatcher resolutions per (target, tier).",
		}, []string{"target", "tier"}),
	}
	return d
}

// Registry returns a prometheus registry containing this dispatcher's
// counters, for the caller to expose on /metrics.
func (d *Dispatcher) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(d.counters)
	return reg
}

// SetHostTable replaces the hostname table.
func (d *Dispatcher) SetHostTable(routes []HostRoute) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hostTable = routes
}

// SetPathTable replaces the path-prefix table, longest-prefix-first.
func (d *Dispatcher) SetPathTable(routes []PathRoute) {
	sorted := append([]PathRoute{}, routes...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i].Prefix) > len(sorted[j].Prefix) })
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pathTable = sorted
}

// SetCatalog replaces the AI-classification service catalogue.
func (d *Dispatcher) SetCatalog(entries []CatalogEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.catalog = entries
}

// Bind registers an in-process handler for a service, preferred over
// egress HTTP forwarding.
func (d *Dispatcher) Bind(key ServiceKey, b Binding) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindings[key] = b
}

// BindEgress registers the public endpoint used when no in-process
// binding exists for a service.
func (d *Dispatcher) BindEgress(key ServiceKey, addr string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.egressAddrs[key] = addr
}

// NextCorrelationID generates one correlation ID at dispatcher entry, to
// be threaded through all downstream calls.
func (d *Dispatcher) NextCorrelationID() string {
	n := d.correlationSeq.Add(1)
	return "chittyrouter-corr-" + itoa(n)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Resolve applies the three-tier resolution order and returns the first
// match.
func (d *Dispatcher) Resolve(ctx context.Context, host, path string) (ServiceKey, string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, hr := range d.hostTable {
		if hr.Host == host {
			d.counters.WithLabelValues(string(hr.Service), "hostname").Inc()
			d.bump(hr.Service)
			return hr.Service, "hostname", nil
		}
	}

	for _, pr := range d.pathTable {
		if strings.HasPrefix(path, pr.Prefix) {
			d.counters.WithLabelValues(string(pr.Service), "path").Inc()
			d.bump(pr.Service)
			return pr.Service, "path", nil
		}
	}

	if len(d.catalog) > 0 && d.gateway != nil {
		key, err := d.classify(ctx, path)
		if err == nil && d.knownService(key) {
			d.counters.WithLabelValues(string(key), "ai").Inc()
			d.bump(key)
			return key, "ai", nil
		}
	}

	d.counters.WithLabelValues(string(d.defaultSvc), "default").Inc()
	d.bump(d.defaultSvc)
	return d.defaultSvc, "default", nil
}

func (d *Dispatcher) bump(key ServiceKey) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	d.targetStats[key]++
}

// Stats returns a snapshot of resolution counts per target, for
// GET /router/stats.
func (d *Dispatcher) Stats() map[string]uint64 {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	out := make(map[string]uint64, len(d.targetStats))
	for k, v := range d.targetStats {
		out[string(k)] = v
	}
	return out
}

func (d *Dispatcher) knownService(key ServiceKey) bool {
	for _, c := range d.catalog {
		if c.Key == key {
			return true
		}
	}
	return false
}

// classify issues a single short AI prompt enumerating the service
// catalogue and returns the chosen key. The dispatcher falls back to the
// default service on any failure or unknown key (handled by the caller).
func (d *Dispatcher) classify(ctx context.Context, path string) (ServiceKey, error) {
	var b strings.Builder
	b.WriteString("Given the request path ")
	b.WriteString(path)
	b.WriteString(", choose exactly one service key from: ")
	for i, c := range d.catalog {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(c.Key))
		b.WriteString(" (")
		b.WriteString(c.Description)
		b.WriteString(")")
	}

	res := d.gateway.Complete(ctx, gateway.CompletionRequest{Prompt: b.String()})
	if !res.Success {
		return "", &RoutingError{AttemptedTiers: []string{"ai"}}
	}
	return ServiceKey(strings.TrimSpace(res.Text)), nil
}

// Forward invokes the in-process binding for key if present, or performs
// an HTTP egress call otherwise, threading the correlation ID header.
func (d *Dispatcher) Forward(key ServiceKey, correlationID string, w http.ResponseWriter, r *http.Request) error {
	d.mu.RLock()
	binding, hasBinding := d.bindings[key]
	addr, hasEgress := d.egressAddrs[key]
	d.mu.RUnlock()

	r.Header.Set("X-Correlation-Id", correlationID)

	if hasBinding {
		binding(w, r)
		return nil
	}
	if !hasEgress {
		return &RoutingError{AttemptedTiers: []string{"forward"}, CorrelationID: correlationID}
	}
	return forwardEgress(addr, w, r)
}

func forwardEgress(addr string, w http.ResponseWriter, r *http.Request) error {
	client := &http.Client{}
	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, addr+r.URL.Path, r.Body)
	if err != nil {
		return err
	}
	outReq.Header = r.Header.Clone()

	resp, err := client.Do(outReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
		}
		if readErr != nil {
			break
		}
	}
	return nil
}
