// Package main is the gateway's entry point: it loads the route/pool
// configuration, wires ambient logging/metrics/recovery, and serves the
// JSON-RPC reverse proxy until a shutdown signal arrives.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/rpc-gateway/infrastructure/config"
	"github.com/R3E-Network/rpc-gateway/infrastructure/httputil"
	sllogging "github.com/R3E-Network/rpc-gateway/infrastructure/logging"
	slmetrics "github.com/R3E-Network/rpc-gateway/infrastructure/metrics"
	slmiddleware "github.com/R3E-Network/rpc-gateway/infrastructure/middleware"
	"github.com/R3E-Network/rpc-gateway/internal/gateway"
	"github.com/R3E-Network/rpc-gateway/internal/prober"
	"github.com/R3E-Network/rpc-gateway/internal/selector"
)

// gatewayVersion is reported on the /healthz surface. Overridden at build
// time with -ldflags "-X main.gatewayVersion=...".
var gatewayVersion = "dev"

func main() {
	logger := sllogging.NewFromEnv("gateway")

	cfg, err := config.LoadGatewayConfig()
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.DefaultGatewayConfig()
	} else if err != nil {
		log.Fatalf("failed to load gateway config: %v", err)
	}
	cfg.Port = config.GetPort(cfg.Port)
	timeouts := config.GetDefaultTimeouts()

	httpClient, err := httputil.NewClient(httputil.ClientConfig{
		HTTPClient: &http.Client{Transport: httputil.DefaultTransportWithMinTLS12()},
		Timeout:    timeouts.Upstream,
	}, httputil.DefaultClientDefaults())
	if err != nil {
		log.Fatalf("failed to construct upstream http client: %v", err)
	}

	var metricsCollector *slmetrics.Metrics
	if slmetrics.Enabled() {
		metricsCollector = slmetrics.Init("gateway")
	}

	onUnhealthy := func(evt selector.AlertEvent) {
		logger.WithFields(map[string]interface{}{
			"route":                evt.RouteID,
			"endpoint_id":          evt.EndpointID,
			"url":                  evt.URL,
			"consecutive_failures": evt.ConsecutiveFailures,
			"reason":               evt.Reason,
		}).Warn("endpoint marked unhealthy")
	}

	gw, err := gateway.New(cfg, httpClient, logger, metricsCollector, onUnhealthy)
	if err != nil {
		log.Fatalf("failed to construct gateway: %v", err)
	}

	if cfg.ActiveProbeSchedule != "" {
		var targets []prober.Target
		for _, rs := range gw.Status() {
			pool := gw.GetBalancer(rs.ID)
			for _, ep := range rs.Endpoints {
				targets = append(targets, prober.Target{
					Pool:       pool,
					URLOrID:    ep.ID,
					RawURL:     ep.URL,
					HTTPClient: httpClient,
				})
			}
		}
		p := prober.New(targets, logger, timeouts.Upstream)
		if err := p.Start(cfg.ActiveProbeSchedule); err != nil {
			log.Fatalf("failed to start active prober: %v", err)
		}
		defer p.Stop()
	}

	healthChecker := slmiddleware.NewHealthChecker(gatewayVersion)
	for _, rs := range gw.Status() {
		routeID := rs.ID
		healthChecker.RegisterCheck(routeID, func() error {
			pool := gw.GetBalancer(routeID)
			if pool == nil {
				return fmt.Errorf("route %q has no pool", routeID)
			}
			for _, s := range pool.Status() {
				if s.Healthy {
					return nil
				}
			}
			return fmt.Errorf("route %q has no healthy endpoints", routeID)
		})
	}

	// ready flips true once the gateway's routes/pools are constructed; the
	// process is live as soon as it starts accepting connections regardless.
	ready := true

	// Ops surfaces (health/metrics/debug) get their own permissive CORS
	// policy so browser-based dashboards on any origin can poll them; this
	// is deliberately separate from the gateway's own JSON-RPC CORS
	// contract (internal/gateway.applyOriginHeader/applyPreflightCORSHeaders),
	// which follows a stricter echo-allowlisted-origin rule.
	opsCORS := slmiddleware.NewCORSMiddleware(&slmiddleware.CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	})

	router := mux.NewRouter()
	router.Use(slmiddleware.LoggingMiddleware(logger))
	router.Use(slmiddleware.NewRecoveryMiddleware(logger).Handler)
	if metricsCollector != nil {
		router.Use(slmiddleware.MetricsMiddleware("gateway", metricsCollector))
		router.Handle("/metrics", opsCORS.Handler(promhttp.Handler())).Methods(http.MethodGet)
	}
	router.Use(slmiddleware.NewBodyLimitMiddleware(cfg.MaxBodyBytes).Handler)
	router.Use(slmiddleware.NewTimeoutMiddleware(timeouts.HTTP).Handler)
	router.Handle("/healthz", opsCORS.Handler(healthChecker.Handler())).Methods(http.MethodGet)
	router.Handle("/livez", opsCORS.Handler(slmiddleware.LivenessHandler())).Methods(http.MethodGet)
	router.Handle("/readyz", opsCORS.Handler(slmiddleware.ReadinessHandler(&ready))).Methods(http.MethodGet)
	router.Handle("/debug/runtime", opsCORS.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(slmiddleware.RuntimeStats())
	}))).Methods(http.MethodGet)
	router.PathPrefix("/").Handler(gw)

	server := &http.Server{
		Addr:              formatAddr(cfg.Host, cfg.Port),
		Handler:           router,
		ReadTimeout:       timeouts.HTTP,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      timeouts.HTTP,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	shutdown := slmiddleware.NewGracefulShutdown(server, timeouts.Shutdown)
	shutdown.OnShutdown(func() {
		logger.Logger.Info("gateway shutting down")
	})
	shutdown.ListenForSignals()

	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":   server.Addr,
			"routes": cfg.RouteIDs(),
		}).Info("gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gateway server error: %v", err)
		}
	}()

	shutdown.Wait()
}

func formatAddr(host string, port int) string {
	if host == "" {
		host = "0.0.0.0"
	}
	return host + ":" + strconv.Itoa(port)
}
