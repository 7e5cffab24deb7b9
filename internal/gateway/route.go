package gateway

import (
	"net/http"
	"time"

	"github.com/R3E-Network/rpc-gateway/infrastructure/config"
	"github.com/R3E-Network/rpc-gateway/infrastructure/logging"
	"github.com/R3E-Network/rpc-gateway/infrastructure/metrics"
	"github.com/R3E-Network/rpc-gateway/internal/selector"
)

// Route binds a Pool to an optional method filter and a stable id. Routes
// are tried in declaration order; the first whose filter matches (or that
// carries no filter at all) wins.
type Route struct {
	ID      string
	Methods map[string]struct{} // nil means "matches any request"
	Pool    *selector.Pool
}

// RouteStatus is the status() projection for a single route.
type RouteStatus struct {
	ID        string
	Methods   []string
	Endpoints []selector.Status
}

func newRoute(cfg config.RouteConfig, httpClient *http.Client, logger *logging.Logger, m *metrics.Metrics, onUnhealthy func(selector.AlertEvent)) (*Route, error) {
	pool, err := selector.NewPool(cfg.ID, cfg.Endpoints, cfg.Pool, httpClient, logger, m, onUnhealthy)
	if err != nil {
		return nil, err
	}

	var methods map[string]struct{}
	if len(cfg.Methods) > 0 {
		methods = make(map[string]struct{}, len(cfg.Methods))
		for _, mName := range cfg.Methods {
			methods[mName] = struct{}{}
		}
	}

	return &Route{ID: cfg.ID, Methods: methods, Pool: pool}, nil
}

// matches reports whether this route should serve a request whose
// extracted method list is methods. A route with no filter matches
// anything; a filtered route matches only if every requested method is in
// its filter.
func (r *Route) matches(methods []string) bool {
	if r.Methods == nil {
		return true
	}
	for _, m := range methods {
		if _, ok := r.Methods[m]; !ok {
			return false
		}
	}
	return true
}

func (r *Route) status() RouteStatus {
	var methods []string
	for m := range r.Methods {
		methods = append(methods, m)
	}
	return RouteStatus{ID: r.ID, Methods: methods, Endpoints: r.Pool.Status()}
}

// upstreamTimeout is used as the forward-call context deadline when the
// incoming request context carries no deadline of its own. A shorter
// per-endpoint timeout still applies inside Pool.Forward.
const upstreamTimeout = 30 * time.Second
