package prober

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/R3E-Network/rpc-gateway/infrastructure/config"
	"github.com/R3E-Network/rpc-gateway/infrastructure/logging"
	"github.com/R3E-Network/rpc-gateway/infrastructure/metrics"
	"github.com/R3E-Network/rpc-gateway/internal/selector"
)

func testPool(t *testing.T, url string) *selector.Pool {
	t.Helper()
	logger := logging.New("prober-test", "error", "text")
	m := metrics.NewWithRegistry("prober-test", nil)
	pool, err := selector.NewPool("default", []config.EndpointConfig{{URL: url}}, config.PoolOptionsConfig{FailureThreshold: 1, MinHealthy: 1}, &http.Client{}, logger, m, nil)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return pool
}

func TestProbeOneMarksHealthyOnResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pool := testPool(t, srv.URL)
	pool.MarkUnhealthy("endpoint-0", "seed unhealthy")

	p := New(nil, nil, time.Second)
	p.probeOne(Target{Pool: pool, URLOrID: "endpoint-0", RawURL: srv.URL})

	statuses := pool.Status()
	if len(statuses) != 1 || !statuses[0].Healthy {
		t.Fatalf("expected endpoint healthy after probe, got %+v", statuses)
	}
}

func TestProbeOneMarksUnhealthyOnHardFailure(t *testing.T) {
	pool := testPool(t, "http://127.0.0.1:1")

	p := New(nil, nil, 200*time.Millisecond)
	p.probeOne(Target{Pool: pool, URLOrID: "endpoint-0", RawURL: "http://127.0.0.1:1"})

	statuses := pool.Status()
	if len(statuses) != 1 || statuses[0].Healthy {
		t.Fatalf("expected endpoint unhealthy after failed probe, got %+v", statuses)
	}
}
