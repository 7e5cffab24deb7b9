// Package selector implements the health-tracked, round-robin endpoint pool
// that sits behind each gateway route. It is the direct descendant of the
// chain package's RPCPool (infrastructure/chain/rpcpool.go in the wider
// codebase this was extracted from): same health-state-plus-round-robin
// shape, generalized from a single NEO N3 chain to arbitrary JSON-RPC
// upstreams and from latency-sorted selection to strict round robin.
package selector

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/R3E-Network/rpc-gateway/infrastructure/config"
	"github.com/R3E-Network/rpc-gateway/infrastructure/httputil"
)

// Endpoint is a single upstream target plus its mutable health metadata.
// Endpoints are created once at Pool construction and are never added to or
// removed from a Pool afterward; only their health fields mutate.
type Endpoint struct {
	// Immutable after construction.
	ID             string
	RawURL         string
	URL            *url.URL
	Headers        map[string]string
	Timeout        time.Duration
	Methods        map[string]struct{} // whitelist; nil means "no restriction"
	BlockedMethods map[string]struct{} // blocklist; always wins on conflict

	mu                  sync.Mutex
	healthy             bool
	consecutiveFailures int
	lastLatency         time.Duration
	hasLastLatency      bool
	lastError           string
	alertSent           bool
}

// Status is an immutable snapshot of an Endpoint's health, safe to hand to
// callers without aliasing the live Endpoint.
type Status struct {
	ID                  string
	URL                 string
	Healthy             bool
	ConsecutiveFailures int
	LastLatency         time.Duration
	HasLastLatency      bool
	LastError           string
}

// newEndpoint builds a runtime Endpoint from its configuration. id follows
// the "endpoint-<index>" convention mandated by the data model.
func newEndpoint(index int, cfg config.EndpointConfig) (*Endpoint, error) {
	normalized, parsed, err := httputil.NormalizeEndpointURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("endpoint %d: %w", index, err)
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[strings.ToLower(k)] = v
	}

	var methods map[string]struct{}
	if len(cfg.Methods) > 0 {
		methods = make(map[string]struct{}, len(cfg.Methods))
		for _, m := range cfg.Methods {
			methods[m] = struct{}{}
		}
	}

	var blocked map[string]struct{}
	if len(cfg.BlockedMethods) > 0 {
		blocked = make(map[string]struct{}, len(cfg.BlockedMethods))
		for _, m := range cfg.BlockedMethods {
			blocked[m] = struct{}{}
		}
	}

	var timeout time.Duration
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}

	return &Endpoint{
		ID:             fmt.Sprintf("endpoint-%d", index),
		RawURL:         normalized,
		URL:            parsed,
		Headers:        headers,
		Timeout:        timeout,
		Methods:        methods,
		BlockedMethods: blocked,
		healthy:        true,
	}, nil
}

// supports reports whether the endpoint may serve every method in methods:
// its blocklist must not contain the method, and its whitelist (if any) must
// contain it.
func (e *Endpoint) supports(methods []string) bool {
	if len(methods) == 0 {
		return true
	}
	for _, m := range methods {
		if e.BlockedMethods != nil {
			if _, blocked := e.BlockedMethods[m]; blocked {
				return false
			}
		}
		if e.Methods != nil {
			if _, ok := e.Methods[m]; !ok {
				return false
			}
		}
	}
	return true
}

func (e *Endpoint) matchesIdentity(urlOrID string) bool {
	return urlOrID == e.ID || urlOrID == e.RawURL
}

func (e *Endpoint) isHealthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthy
}

func (e *Endpoint) snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		ID:                  e.ID,
		URL:                 e.RawURL,
		Healthy:             e.healthy,
		ConsecutiveFailures: e.consecutiveFailures,
		LastLatency:         e.lastLatency,
		HasLastLatency:      e.hasLastLatency,
		LastError:           e.lastError,
	}
}

// recordSuccess applies the Success outcome effect: it clears the failure
// count, last error and alert gate, and marks the endpoint healthy.
func (e *Endpoint) recordSuccess(latency time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consecutiveFailures = 0
	e.healthy = true
	e.lastError = ""
	e.alertSent = false
	e.lastLatency = latency
	e.hasLastLatency = true
}

// recordFailure applies the Soft/Hard failure outcome effect. It returns
// true exactly once per contiguous unhealthy interval, signaling the caller
// to emit an alert.
func (e *Endpoint) recordFailure(reason string, latency time.Duration, hasLatency bool, threshold int) (shouldAlert bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.consecutiveFailures++
	e.lastError = reason
	if hasLatency {
		e.lastLatency = latency
		e.hasLastLatency = true
	}

	wasHealthy := e.healthy
	if e.consecutiveFailures >= threshold && wasHealthy {
		e.healthy = false
	}

	if !e.healthy && !e.alertSent {
		e.alertSent = true
		return true
	}
	return false
}

// markHealthy implements the manual markHealthy operation.
func (e *Endpoint) markHealthy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.healthy = true
	e.consecutiveFailures = 0
	e.lastError = ""
	e.alertSent = false
}

// markUnhealthy implements the manual markUnhealthy operation. It returns
// true when this call should emit an alert: either it is a fresh
// healthy->unhealthy transition, or no alert has been emitted yet for the
// current unhealthy interval. Repeated markUnhealthy calls within the same
// unhealthy interval, once alertSent is true, do not re-alert.
func (e *Endpoint) markUnhealthy(reason string) (shouldAlert bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.healthy = false
	e.lastError = reason
	if !e.alertSent {
		e.alertSent = true
		return true
	}
	return false
}
