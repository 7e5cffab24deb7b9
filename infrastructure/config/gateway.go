package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultMaxBodyBytes is applied when GatewayConfig.MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 1_000_000

// LoadGatewayConfig loads the gateway configuration from config/gateway.yaml.
func LoadGatewayConfig() (*GatewayConfig, error) {
	return LoadGatewayConfigFromPath(filepath.Join("config", "gateway.yaml"))
}

// LoadGatewayConfigFromPath loads and validates the gateway configuration from a specific path.
func LoadGatewayConfigFromPath(path string) (*GatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway config: %w", err)
	}

	var cfg GatewayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse gateway config: %w", err)
	}

	if err := ValidateGatewayConfig(&cfg); err != nil {
		return nil, err
	}

	applyGatewayDefaults(&cfg)
	return &cfg, nil
}

// LoadGatewayConfigOrDefault loads the gateway config, falling back to
// DefaultGatewayConfig if the file is absent or cannot be read, parsed or
// validated.
func LoadGatewayConfigOrDefault() *GatewayConfig {
	cfg, err := LoadGatewayConfig()
	if err != nil {
		return DefaultGatewayConfig()
	}
	return cfg
}

// ValidateGatewayConfig enforces the construction-time invariants from the
// data model: routes must be non-empty and every endpoint needs a URL.
func ValidateGatewayConfig(cfg *GatewayConfig) error {
	if cfg == nil {
		return fmt.Errorf("gateway config is nil")
	}
	if len(cfg.Routes) == 0 {
		return fmt.Errorf("gateway config: at least one route is required")
	}
	seen := make(map[string]bool, len(cfg.Routes))
	for _, route := range cfg.Routes {
		if route.ID == "" {
			return fmt.Errorf("gateway config: route missing id")
		}
		if seen[route.ID] {
			return fmt.Errorf("gateway config: duplicate route id %q", route.ID)
		}
		seen[route.ID] = true
		if len(route.Endpoints) == 0 {
			return fmt.Errorf("gateway config: route %q has no endpoints", route.ID)
		}
		for i, ep := range route.Endpoints {
			if ep.URL == "" {
				return fmt.Errorf("gateway config: route %q endpoint %d missing url", route.ID, i)
			}
		}
	}
	if cfg.DefaultRouteID != "" && cfg.RouteByID(cfg.DefaultRouteID) == nil {
		return fmt.Errorf("gateway config: defaultRouteId %q does not match any route", cfg.DefaultRouteID)
	}
	return nil
}

func applyGatewayDefaults(cfg *GatewayConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	for i := range cfg.Routes {
		if cfg.Routes[i].Pool.FailureThreshold <= 0 {
			cfg.Routes[i].Pool.FailureThreshold = 3
		}
		if cfg.Routes[i].Pool.MinHealthy <= 0 {
			cfg.Routes[i].Pool.MinHealthy = 1
		}
	}
}

// DefaultGatewayConfig returns a minimal, single-route configuration suitable
// for local development when no gateway.yaml is present.
func DefaultGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		Host: "0.0.0.0",
		Port: 8080,
		Routes: []RouteConfig{
			{
				ID: "default",
				Endpoints: []EndpointConfig{
					{URL: "http://127.0.0.1:8545"},
				},
				Pool: PoolOptionsConfig{FailureThreshold: 3, MinHealthy: 1},
			},
		},
		MaxBodyBytes:    DefaultMaxBodyBytes,
		HealthCheckPath: "/health",
	}
}
