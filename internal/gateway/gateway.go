// Package gateway implements the HTTP front-end: it parses JSON-RPC over
// HTTP, resolves a Route in declaration order, forwards through that
// route's Pool, and shapes responses (and pre-forward errors) back into
// JSON-RPC form.
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/R3E-Network/rpc-gateway/infrastructure/config"
	"github.com/R3E-Network/rpc-gateway/infrastructure/httputil"
	"github.com/R3E-Network/rpc-gateway/infrastructure/logging"
	"github.com/R3E-Network/rpc-gateway/infrastructure/metrics"
	"github.com/R3E-Network/rpc-gateway/internal/jsonrpc"
	"github.com/R3E-Network/rpc-gateway/internal/selector"
)

// Gateway is the HTTP surface described by the system overview: it owns an
// ordered list of Routes (and therefore transitively their Pools), an
// optional global method allowlist, an optional default route, and the
// CORS contract.
type Gateway struct {
	cfg     *config.GatewayConfig
	routes  []*Route
	logger  *logging.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// New constructs a Gateway from cfg. Fails if cfg has no routes, or if any
// route's Pool fails construction (empty endpoint list, missing URL, etc).
func New(cfg *config.GatewayConfig, httpClient *http.Client, logger *logging.Logger, m *metrics.Metrics, onUnhealthy func(selector.AlertEvent)) (*Gateway, error) {
	if cfg == nil || len(cfg.Routes) == 0 {
		return nil, fmt.Errorf("gateway: at least one route is required")
	}
	if cfg.DefaultRouteID != "" && cfg.RouteByID(cfg.DefaultRouteID) == nil {
		return nil, fmt.Errorf("gateway: defaultRouteId %q does not match any configured route", cfg.DefaultRouteID)
	}

	routes := make([]*Route, 0, len(cfg.Routes))
	for _, rc := range cfg.Routes {
		r, err := newRoute(rc, httpClient, logger, m, onUnhealthy)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}

	return &Gateway{cfg: cfg, routes: routes, logger: logger, metrics: m}, nil
}

// Start binds the listening socket and begins serving in the background.
// Idempotent: calling Start on an already-bound Gateway is a no-op.
func (g *Gateway) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.listener != nil {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", g.cfg.Host, g.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway: listen %s: %w", addr, err)
	}

	g.listener = ln
	g.server = &http.Server{Handler: g}

	go func() {
		if err := g.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			if g.logger != nil {
				g.logger.WithError(err).Error("gateway server exited")
			}
		}
	}()

	return nil
}

// Stop releases the listening socket, letting in-flight requests complete.
// Idempotent.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	server := g.server
	g.listener = nil
	g.server = nil
	g.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// Status returns a per-route status projection in declaration order.
func (g *Gateway) Status() []RouteStatus {
	out := make([]RouteStatus, 0, len(g.routes))
	for _, r := range g.routes {
		out = append(out, r.status())
	}
	return out
}

// GetBalancer exposes direct Pool access for test harnesses and manual
// alert/health overrides.
func (g *Gateway) GetBalancer(routeID string) *selector.Pool {
	for _, r := range g.routes {
		if r.ID == routeID {
			return r.Pool
		}
	}
	return nil
}

// ServeHTTP implements the gateway's per-request algorithm.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.cfg.HealthCheckPath != "" && r.Method == http.MethodGet && r.URL.Path == g.cfg.HealthCheckPath {
		w.WriteHeader(http.StatusOK)
		return
	}

	origin := r.Header.Get("Origin")
	if g.cfg.CORS != nil {
		if r.Method == http.MethodOptions {
			applyPreflightCORSHeaders(w, g.cfg.CORS, origin)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		applyOriginHeader(w, g.cfg.CORS, origin)
	}

	if r.Method != http.MethodPost {
		httputil.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Only POST is supported."})
		return
	}

	maxBody := httputil.ResolveMaxBodyBytes(g.cfg.MaxBodyBytes, config.DefaultMaxBodyBytes)
	raw, err := httputil.ReadAllStrict(r.Body, maxBody)
	if err != nil {
		httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Request body too large."})
		return
	}

	env := jsonrpc.Parse(raw)
	if env.Malformed {
		writeJSONRPCError(w, env, jsonrpc.CodeParseError, "Parse error: Invalid JSON.")
		return
	}

	methods := jsonrpc.ExtractMethods(env)
	if len(methods) == 0 {
		writeJSONRPCError(w, env, jsonrpc.CodeInvalidRequest, "Invalid Request.")
		return
	}

	if len(g.cfg.AllowedMethods) > 0 {
		allowed := make(map[string]struct{}, len(g.cfg.AllowedMethods))
		for _, m := range g.cfg.AllowedMethods {
			allowed[m] = struct{}{}
		}
		for _, m := range methods {
			if _, ok := allowed[m]; !ok {
				writeJSONRPCError(w, env, jsonrpc.CodeMethodNotFound, fmt.Sprintf("Method not allowed: %s", m))
				return
			}
		}
	}

	route := g.resolveRoute(methods)
	if route == nil {
		writeJSONRPCError(w, env, jsonrpc.CodeMethodNotFound, "Method not found.")
		return
	}

	g.forward(w, r, route, raw, methods)
}

// resolveRoute walks routes in declaration order, then falls back to
// defaultRouteId.
func (g *Gateway) resolveRoute(methods []string) *Route {
	for _, r := range g.routes {
		if r.matches(methods) {
			return r
		}
	}
	if g.cfg.DefaultRouteID != "" {
		for _, r := range g.routes {
			if r.ID == g.cfg.DefaultRouteID {
				return r
			}
		}
	}
	return nil
}

func (g *Gateway) forward(w http.ResponseWriter, r *http.Request, route *Route, raw []byte, methods []string) {
	endpoint := route.Pool.Select(methods)

	ctx := r.Context()
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, upstreamTimeout)
		defer cancel()
	}

	status, headers, body, err := route.Pool.Forward(ctx, endpoint, http.MethodPost, raw, r.Header.Clone())
	if err != nil {
		if g.logger != nil {
			g.logger.WithFields(map[string]interface{}{
				"route":       route.ID,
				"endpoint_id": endpoint.ID,
				"client_ip":   httputil.ClientIP(r),
			}).WithError(err).Warn("upstream forward hard failure")
		}
		httputil.WriteJSON(w, http.StatusBadGateway, map[string]string{"error": "Bad Gateway: Upstream request failed."})
		return
	}

	for k, values := range headers {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeJSONRPCError(w http.ResponseWriter, env jsonrpc.Envelope, code int, message string) {
	body := jsonrpc.ShapeError(env, code, message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// applyOriginHeader sets only Access-Control-Allow-Origin, per the
// gateway's precedence rule: echo the caller's origin if it is in the
// allowlist, else the first configured origin, else "*". Non-preflight
// responses carry this header alone.
func applyOriginHeader(w http.ResponseWriter, cors *config.CORSConfig, origin string) {
	allowOrigin := "*"
	if len(cors.AllowedOrigins) > 0 {
		allowOrigin = cors.AllowedOrigins[0]
		for _, o := range cors.AllowedOrigins {
			if o == origin {
				allowOrigin = origin
				break
			}
		}
	}
	w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
}

// applyPreflightCORSHeaders sets the full Access-Control-Allow-* trio for an
// OPTIONS preflight response.
func applyPreflightCORSHeaders(w http.ResponseWriter, cors *config.CORSConfig, origin string) {
	applyOriginHeader(w, cors, origin)

	allowMethods := "POST, OPTIONS"
	if len(cors.AllowedMethods) > 0 {
		allowMethods = strings.Join(cors.AllowedMethods, ", ")
	}
	w.Header().Set("Access-Control-Allow-Methods", allowMethods)

	allowHeaders := "content-type"
	if len(cors.AllowedHeaders) > 0 {
		allowHeaders = strings.Join(cors.AllowedHeaders, ", ")
	}
	w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
}
