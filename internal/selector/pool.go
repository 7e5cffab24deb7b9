package selector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/R3E-Network/rpc-gateway/infrastructure/config"
	"github.com/R3E-Network/rpc-gateway/infrastructure/logging"
	"github.com/R3E-Network/rpc-gateway/infrastructure/metrics"
	"github.com/R3E-Network/rpc-gateway/infrastructure/resilience"
)

// AlertEvent describes a healthy-to-unhealthy transition a Pool reports to
// its owner. Delivery is fire-and-forget: the forward/select path never
// blocks on it.
type AlertEvent struct {
	RouteID             string
	EndpointID          string
	URL                 string
	Reason              string
	ConsecutiveFailures int
}

// Pool is the health-tracked, round-robin set of upstream endpoints backing
// a single route. It is the generalized, passive-only descendant of
// infrastructure/chain's RPCPool: same mutex-guarded cursor and health
// bookkeeping, minus the active probing and latency-sort selection, plus
// method filtering and alert gating.
type Pool struct {
	routeID    string
	endpoints  []*Endpoint
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *metrics.Metrics
	opts       config.PoolOptionsConfig

	mu         sync.Mutex
	cursor     uint64
	lastUsedID string

	breakers map[string]*resilience.CircuitBreaker

	alertCh chan AlertEvent
}

// NewPool builds a Pool from its static endpoint configuration. onUnhealthy,
// if non-nil, is invoked (from a dedicated goroutine, never from the
// request path) whenever an endpoint transitions to unhealthy and has not
// already alerted for the current unhealthy interval.
func NewPool(
	routeID string,
	configs []config.EndpointConfig,
	opts config.PoolOptionsConfig,
	httpClient *http.Client,
	logger *logging.Logger,
	m *metrics.Metrics,
	onUnhealthy func(AlertEvent),
) (*Pool, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("route %s: at least one endpoint is required", routeID)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	endpoints := make([]*Endpoint, 0, len(configs))
	breakers := make(map[string]*resilience.CircuitBreaker, len(configs))
	for i, cfg := range configs {
		e, err := newEndpoint(i, cfg)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", routeID, err)
		}
		endpoints = append(endpoints, e)
		breakers[e.ID] = resilience.New(resilience.ServiceCBConfig(resilience.ServiceCircuitBreakerConfig{
			MaxFailures:    maxInt(opts.FailureThreshold, 1),
			TimeoutSeconds: 30,
			HalfOpenMax:    1,
			Logger:         logger,
		}))
	}

	p := &Pool{
		routeID:    routeID,
		endpoints:  endpoints,
		httpClient: httpClient,
		logger:     logger,
		metrics:    m,
		opts:       opts,
		breakers:   breakers,
		alertCh:    make(chan AlertEvent, 32),
	}

	go p.drainAlerts(onUnhealthy)

	for _, e := range endpoints {
		p.recordHealthMetric(e)
	}

	return p, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// drainAlerts runs for the lifetime of the Pool, delivering alerts one at a
// time so a slow or panicking callback never blocks a forward/select call.
func (p *Pool) drainAlerts(onUnhealthy func(AlertEvent)) {
	for evt := range p.alertCh {
		if onUnhealthy == nil {
			continue
		}
		p.invokeAlertCallback(onUnhealthy, evt)
	}
}

func (p *Pool) invokeAlertCallback(onUnhealthy func(AlertEvent), evt AlertEvent) {
	defer func() {
		if r := recover(); r != nil {
			if p.logger != nil {
				p.logger.WithFields(map[string]interface{}{
					"route":       evt.RouteID,
					"endpoint_id": evt.EndpointID,
					"panic":       fmt.Sprintf("%v", r),
				}).Error("alert callback panicked")
			}
		}
	}()
	onUnhealthy(evt)
}

func (p *Pool) dispatchAlert(evt AlertEvent) {
	if p.metrics != nil {
		p.metrics.RecordAlert(evt.RouteID, evt.EndpointID)
	}
	select {
	case p.alertCh <- evt:
	default:
		if p.logger != nil {
			p.logger.WithFields(map[string]interface{}{
				"route":       evt.RouteID,
				"endpoint_id": evt.EndpointID,
			}).Warn("alert channel full, dropping alert")
		}
	}
}

func (p *Pool) recordHealthMetric(e *Endpoint) {
	if p.metrics == nil {
		return
	}
	s := e.snapshot()
	p.metrics.SetEndpointHealth(p.routeID, s.ID, s.Healthy, s.ConsecutiveFailures)
}

// Select applies the round-robin-with-health-fallback algorithm described in
// the pool's selection contract: narrow to endpoints supporting every
// requested method, prefer the healthy subset when it meets minHealthy,
// fall back to the full method-eligible set otherwise, and fall back
// further (ignoring the method filter, then to all endpoints) if that
// still leaves nothing. A Pool with at least one configured endpoint never
// returns nil.
func (p *Pool) Select(methods []string) *Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) == 0 {
		return nil
	}

	candidates := p.candidatePool(methods)

	idx := p.cursor % uint64(len(candidates))
	p.cursor++

	selected := candidates[idx]
	p.lastUsedID = selected.ID
	return selected
}

// candidatePool resolves step 2-5 of the selection algorithm into the
// concrete slice select() will index into.
func (p *Pool) candidatePool(methods []string) []*Endpoint {
	eligible := filterBySupport(p.endpoints, methods)
	if pool := healthyOrFallback(eligible, p.opts.MinHealthy); len(pool) > 0 {
		return pool
	}

	// Method filter excluded everything: retry ignoring it.
	if pool := healthyOrFallback(p.endpoints, p.opts.MinHealthy); len(pool) > 0 {
		return pool
	}

	return p.endpoints
}

func filterBySupport(endpoints []*Endpoint, methods []string) []*Endpoint {
	out := make([]*Endpoint, 0, len(endpoints))
	for _, e := range endpoints {
		if e.supports(methods) {
			out = append(out, e)
		}
	}
	return out
}

// healthyOrFallback returns the healthy subset of candidates when it meets
// minHealthy, otherwise the full candidate set.
func healthyOrFallback(candidates []*Endpoint, minHealthy int) []*Endpoint {
	if len(candidates) == 0 {
		return candidates
	}
	healthy := make([]*Endpoint, 0, len(candidates))
	for _, e := range candidates {
		if e.isHealthy() {
			healthy = append(healthy, e)
		}
	}
	if len(healthy) >= minHealthy {
		return healthy
	}
	return candidates
}

// Outcome classifies the result of a single forward attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSoft    Outcome = "soft_failure"
	OutcomeHard    Outcome = "hard_failure"
)

// Forward executes a single request against e, applying header merge/strip,
// the endpoint's configured timeout, and circuit-breaker protection around
// the actual network call. A hard failure (no HTTP response at all -
// network error, timeout, context cancellation - or a response body that
// cannot be read) is reported via err; any other HTTP response, 2xx or
// not, is returned through status/respHeaders/respBody with err == nil so
// the caller passes it straight through to the client.
func (p *Pool) Forward(ctx context.Context, e *Endpoint, httpMethod string, body []byte, callerHeaders http.Header) (status int, respHeaders http.Header, respBody []byte, err error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	req, buildErr := http.NewRequestWithContext(ctx, httpMethod, e.URL.String(), bytes.NewReader(body))
	if buildErr != nil {
		return 0, nil, nil, fmt.Errorf("build upstream request: %w", buildErr)
	}
	req.Header = buildUpstreamHeaders(callerHeaders, e.Headers)

	breaker := p.breakers[e.ID]

	start := time.Now()
	var resp *http.Response
	var doErr error
	cbErr := breaker.Execute(ctx, func() error {
		resp, doErr = p.httpClient.Do(req)
		return doErr
	})
	latency := time.Since(start)

	if p.logger != nil {
		p.logger.LogUpstreamForward(ctx, e.ID, e.RawURL, latency, doErr)
	}

	if doErr != nil || resp == nil {
		reason := "request failed"
		if doErr != nil {
			reason = doErr.Error()
		} else if cbErr != nil {
			reason = cbErr.Error()
		}
		p.recordOutcome(e, OutcomeHard, reason, latency, false)
		if doErr != nil {
			return 0, nil, nil, doErr
		}
		return 0, nil, nil, cbErr
	}
	defer resp.Body.Close()

	rawBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		p.recordOutcome(e, OutcomeHard, readErr.Error(), latency, true)
		return 0, nil, nil, readErr
	}

	outHeaders := resp.Header.Clone()
	stripHopByHop(outHeaders)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		p.recordOutcome(e, OutcomeSuccess, "", latency, true)
	} else {
		p.recordOutcome(e, OutcomeSoft, fmt.Sprintf("upstream status %d", resp.StatusCode), latency, true)
	}

	return resp.StatusCode, outHeaders, rawBody, nil
}

func (p *Pool) recordOutcome(e *Endpoint, outcome Outcome, reason string, latency time.Duration, hasLatency bool) {
	var shouldAlert bool
	if outcome == OutcomeSuccess {
		e.recordSuccess(latency)
	} else {
		shouldAlert = e.recordFailure(reason, latency, hasLatency, maxInt(p.opts.FailureThreshold, 1))
	}

	if p.metrics != nil {
		p.metrics.RecordUpstreamForward(p.routeID, e.ID, string(outcome), latency)
	}
	p.recordHealthMetric(e)

	if shouldAlert {
		s := e.snapshot()
		p.dispatchAlert(AlertEvent{
			RouteID:             p.routeID,
			EndpointID:          e.ID,
			URL:                 e.RawURL,
			Reason:              reason,
			ConsecutiveFailures: s.ConsecutiveFailures,
		})
	}
}

// MarkHealthy implements the manual markHealthy operation, matching by
// endpoint ID or configured URL.
func (p *Pool) MarkHealthy(urlOrID string) bool {
	e := p.find(urlOrID)
	if e == nil {
		return false
	}
	e.markHealthy()
	p.recordHealthMetric(e)
	return true
}

// MarkUnhealthy implements the manual markUnhealthy operation, matching by
// endpoint ID or configured URL.
func (p *Pool) MarkUnhealthy(urlOrID, reason string) bool {
	e := p.find(urlOrID)
	if e == nil {
		return false
	}
	shouldAlert := e.markUnhealthy(reason)
	p.recordHealthMetric(e)
	if shouldAlert {
		s := e.snapshot()
		p.dispatchAlert(AlertEvent{
			RouteID:             p.routeID,
			EndpointID:          e.ID,
			URL:                 e.RawURL,
			Reason:              reason,
			ConsecutiveFailures: s.ConsecutiveFailures,
		})
	}
	return true
}

func (p *Pool) find(urlOrID string) *Endpoint {
	for _, e := range p.endpoints {
		if e.matchesIdentity(urlOrID) {
			return e
		}
	}
	return nil
}

// Status returns a snapshot of every endpoint in declaration order.
func (p *Pool) Status() []Status {
	out := make([]Status, 0, len(p.endpoints))
	for _, e := range p.endpoints {
		out = append(out, e.snapshot())
	}
	return out
}

// LastUsed returns the snapshot of the most recently selected endpoint, if
// Select has been called at least once.
func (p *Pool) LastUsed() (Status, bool) {
	p.mu.Lock()
	id := p.lastUsedID
	p.mu.Unlock()

	if id == "" {
		return Status{}, false
	}
	if e := p.find(id); e != nil {
		return e.snapshot(), true
	}
	return Status{}, false
}

// RouteID returns the identifier of the route this pool serves.
func (p *Pool) RouteID() string {
	return p.routeID
}

// Size returns the number of endpoints configured for this pool.
func (p *Pool) Size() int {
	return len(p.endpoints)
}
