package config

// EndpointConfig describes a single upstream target as authored in gateway.yaml.
// Fields mirror the runtime Endpoint but are immutable configuration input.
type EndpointConfig struct {
	// URL is the upstream JSON-RPC endpoint. Required.
	URL string `yaml:"url" json:"url"`

	// Weight and Priority are retained for forward compatibility with
	// weighted/priority selection policies but are not consulted by the
	// round-robin selector.
	Weight   int `yaml:"weight,omitempty" json:"weight,omitempty"`
	Priority int `yaml:"priority,omitempty" json:"priority,omitempty"`

	// Headers are overlaid on top of caller-supplied headers when forwarding,
	// and always win on key collision.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// TimeoutMs, if set, arms a per-call cancellation after that many milliseconds.
	TimeoutMs int `yaml:"timeoutMs,omitempty" json:"timeoutMs,omitempty"`

	// Methods is a whitelist; when non-empty, only listed methods are supported.
	Methods []string `yaml:"methods,omitempty" json:"methods,omitempty"`

	// BlockedMethods is a blocklist; it always wins over Methods on conflict.
	BlockedMethods []string `yaml:"blockedMethods,omitempty" json:"blockedMethods,omitempty"`
}

// PoolOptionsConfig configures a Pool's health-tracking behavior.
type PoolOptionsConfig struct {
	// FailureThreshold is the number of consecutive non-success outcomes
	// required to evict a healthy endpoint. Default 3.
	FailureThreshold int `yaml:"failureThreshold,omitempty" json:"failureThreshold,omitempty"`

	// MinHealthy is the minimum healthy endpoint count below which selection
	// falls back to the full candidate set. Default 1.
	MinHealthy int `yaml:"minHealthy,omitempty" json:"minHealthy,omitempty"`
}

// RouteConfig binds a set of endpoints to an optional method filter.
type RouteConfig struct {
	// ID uniquely identifies the route within the gateway.
	ID string `yaml:"id" json:"id"`

	// Methods, if non-empty, restricts this route to requests whose every
	// extracted method is present in this set. Empty means "matches any".
	Methods []string `yaml:"methods,omitempty" json:"methods,omitempty"`

	// Endpoints is the ordered list of upstream targets for this route's pool.
	Endpoints []EndpointConfig `yaml:"endpoints" json:"endpoints"`

	// Pool overrides the route's PoolOptions. Zero value uses defaults.
	Pool PoolOptionsConfig `yaml:"pool,omitempty" json:"pool,omitempty"`
}

// CORSConfig describes the gateway's cross-origin contract.
type CORSConfig struct {
	// AllowedOrigins, when non-empty, restricts Access-Control-Allow-Origin
	// echoing to these origins: a request origin listed verbatim is echoed,
	// any other origin gets the first entry. A "*" entry is compared like
	// any other string, not as a wildcard. Empty with CORS enabled falls
	// back to "*".
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty" json:"allowedOrigins,omitempty"`

	// AllowedMethods defaults to "POST, OPTIONS" when empty.
	AllowedMethods []string `yaml:"allowedMethods,omitempty" json:"allowedMethods,omitempty"`

	// AllowedHeaders defaults to "content-type" when empty.
	AllowedHeaders []string `yaml:"allowedHeaders,omitempty" json:"allowedHeaders,omitempty"`
}

// GatewayConfig is the top-level gateway.yaml shape: listen address, routes,
// and the global dispatch policy.
type GatewayConfig struct {
	// Host defaults to "0.0.0.0".
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port is the gateway's listen port.
	Port int `yaml:"port" json:"port"`

	// Routes is the ordered, non-empty list of routes. Order is significant:
	// the first matching route wins.
	Routes []RouteConfig `yaml:"routes" json:"routes"`

	// DefaultRouteID names the route used when no route's method filter matches.
	DefaultRouteID string `yaml:"defaultRouteId,omitempty" json:"defaultRouteId,omitempty"`

	// AllowedMethods, when non-empty, is a global method allowlist checked
	// before route resolution.
	AllowedMethods []string `yaml:"allowedMethods,omitempty" json:"allowedMethods,omitempty"`

	// MaxBodyBytes caps the downstream request body size. Default 1,000,000.
	MaxBodyBytes int64 `yaml:"maxBodyBytes,omitempty" json:"maxBodyBytes,omitempty"`

	// HealthCheckPath, when set, is served as a plain 200 OK outside the
	// JSON-RPC pipeline.
	HealthCheckPath string `yaml:"healthCheckPath,omitempty" json:"healthCheckPath,omitempty"`

	// CORS configures the gateway's cross-origin contract. Nil disables CORS headers.
	CORS *CORSConfig `yaml:"cors,omitempty" json:"cors,omitempty"`

	// ActiveProbeSchedule, when set, enables a cron-scheduled active health
	// probe against every configured endpoint (e.g. "@every 30s"). Empty
	// disables active probing; pools still track health passively from
	// forwarded traffic outcomes either way.
	ActiveProbeSchedule string `yaml:"activeProbeSchedule,omitempty" json:"activeProbeSchedule,omitempty"`
}

// RouteByID returns the route configuration with the given id, or nil.
func (c *GatewayConfig) RouteByID(id string) *RouteConfig {
	if c == nil {
		return nil
	}
	for i := range c.Routes {
		if c.Routes[i].ID == id {
			return &c.Routes[i]
		}
	}
	return nil
}

// RouteIDs returns the configured route ids in declaration order.
func (c *GatewayConfig) RouteIDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.Routes))
	for _, r := range c.Routes {
		ids = append(ids, r.ID)
	}
	return ids
}
