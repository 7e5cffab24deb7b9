package selector

import (
	"testing"

	"github.com/R3E-Network/rpc-gateway/infrastructure/config"
)

func TestNewEndpointRequiresURL(t *testing.T) {
	if _, err := newEndpoint(0, config.EndpointConfig{}); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestNewEndpointAssignsIndexID(t *testing.T) {
	e, err := newEndpoint(2, config.EndpointConfig{URL: "http://x"})
	if err != nil {
		t.Fatalf("newEndpoint: %v", err)
	}
	if e.ID != "endpoint-2" {
		t.Fatalf("expected endpoint-2, got %s", e.ID)
	}
	if !e.isHealthy() {
		t.Fatalf("expected endpoint to start healthy")
	}
}

func TestSupportsWhitelistAndBlocklist(t *testing.T) {
	e, _ := newEndpoint(0, config.EndpointConfig{
		URL:            "http://x",
		Methods:        []string{"getSlot", "getBlockHeight"},
		BlockedMethods: []string{"getBlockHeight"},
	})

	if !e.supports([]string{"getSlot"}) {
		t.Fatalf("expected getSlot to be supported")
	}
	if e.supports([]string{"getBlockHeight"}) {
		t.Fatalf("blocklist should win over whitelist")
	}
	if e.supports([]string{"getProgramAccounts"}) {
		t.Fatalf("method outside whitelist should not be supported")
	}
}

func TestRecordFailureAlertsOnceThenSuppresses(t *testing.T) {
	e, _ := newEndpoint(0, config.EndpointConfig{URL: "http://x"})

	if alert := e.recordFailure("err", 0, false, 3); alert {
		t.Fatalf("should not alert before reaching threshold")
	}
	if alert := e.recordFailure("err", 0, false, 3); alert {
		t.Fatalf("should not alert before reaching threshold")
	}
	if alert := e.recordFailure("err", 0, false, 3); !alert {
		t.Fatalf("expected alert on reaching threshold")
	}
	if alert := e.recordFailure("err", 0, false, 3); alert {
		t.Fatalf("should not re-alert within the same unhealthy interval")
	}
}

func TestRecordSuccessClearsFailureState(t *testing.T) {
	e, _ := newEndpoint(0, config.EndpointConfig{URL: "http://x"})
	e.recordFailure("err", 0, false, 1)
	e.recordSuccess(0)

	s := e.snapshot()
	if !s.Healthy || s.ConsecutiveFailures != 0 || s.LastError != "" {
		t.Fatalf("expected clean state after success, got %+v", s)
	}
}

func TestMarkUnhealthyDoesNotReAlertWithinSameInterval(t *testing.T) {
	e, _ := newEndpoint(0, config.EndpointConfig{URL: "http://x"})
	if !e.markUnhealthy("manual") {
		t.Fatalf("expected first markUnhealthy to alert")
	}
	if e.markUnhealthy("manual again") {
		t.Fatalf("expected no re-alert for repeated markUnhealthy")
	}
}
