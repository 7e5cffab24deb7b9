// Package prober implements an optional active health check loop on top of
// a selector.Pool. It is the scheduled-ticker counterpart to the passive,
// forward-outcome-driven health tracking in internal/selector: the pool
// stays healthy purely from request traffic, but a route with little
// traffic can go stale between requests, so probing gives it a chance to
// recover (or get evicted) even when nothing is actively being forwarded
// through it. This mirrors the active probing loop the pool/selector shape
// was originally extracted from, generalized to an arbitrary JSON-RPC
// payload instead of a single chain's getblockcount call.
package prober

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/rpc-gateway/infrastructure/logging"
	"github.com/R3E-Network/rpc-gateway/infrastructure/resilience"
	"github.com/R3E-Network/rpc-gateway/internal/selector"
)

// Target names a single endpoint to actively probe on its owning pool.
type Target struct {
	Pool       *selector.Pool
	URLOrID    string
	RawURL     string
	ProbeBody  []byte
	HTTPClient *http.Client
}

// DefaultProbeBody is a minimal, near-universally-accepted JSON-RPC probe:
// most JSON-RPC servers reply to an unknown method with a well-formed
// error envelope rather than closing the connection, which is enough to
// prove liveness without depending on any chain-specific method name.
var DefaultProbeBody = []byte(`{"jsonrpc":"2.0","id":0,"method":"rpc_gateway_probe"}`)

// Prober runs a cron-scheduled active probe across a fixed set of targets,
// calling MarkHealthy/MarkUnhealthy on the owning Pool based on whether the
// probe received any HTTP response at all (mirroring the Pool's own
// hard-failure classification).
type Prober struct {
	cron    *cron.Cron
	targets []Target
	logger  *logging.Logger
	timeout time.Duration
}

// New builds a Prober over targets. timeout bounds each target's probe,
// retries included; it defaults to 5s when <= 0. The schedule is given
// to Start.
func New(targets []Target, logger *logging.Logger, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		cron:    cron.New(),
		targets: targets,
		logger:  logger,
		timeout: timeout,
	}
}

// Start schedules the probe loop with a standard 5-field cron expression
// or a descriptor such as "@every 30s", and begins running it in the
// background. Idempotent only in the sense that calling it twice
// schedules the job twice; callers should call it once per Prober
// instance.
func (p *Prober) Start(schedule string) error {
	_, err := p.cron.AddFunc(schedule, p.probeAll)
	if err != nil {
		return err
	}
	p.cron.Start()
	return nil
}

// Stop cancels the schedule and waits for any in-flight probe to finish.
func (p *Prober) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
}

func (p *Prober) probeAll() {
	for _, t := range p.targets {
		p.probeOne(t)
	}
}

func (p *Prober) probeOne(t Target) {
	client := t.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	body := t.ProbeBody
	if body == nil {
		body = DefaultProbeBody
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	// A single dropped packet on an otherwise-healthy upstream shouldn't flip
	// a route unhealthy, so the probe gets a couple of quick retries before
	// it is allowed to report a hard failure.
	var resp *http.Response
	err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.RawURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = client.Do(req)
		return err
	})
	if err != nil {
		t.Pool.MarkUnhealthy(t.URLOrID, "active probe: "+err.Error())
		if p.logger != nil {
			p.logger.WithFields(map[string]interface{}{
				"endpoint_id": t.URLOrID,
			}).WithError(err).Warn("active probe failed")
		}
		return
	}
	defer resp.Body.Close()

	t.Pool.MarkHealthy(t.URLOrID)
}
