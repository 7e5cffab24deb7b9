package selector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/R3E-Network/rpc-gateway/infrastructure/config"
	"github.com/R3E-Network/rpc-gateway/infrastructure/logging"
	"github.com/R3E-Network/rpc-gateway/infrastructure/metrics"
)

func testPool(t *testing.T, urls []string, opts config.PoolOptionsConfig, onUnhealthy func(AlertEvent)) *Pool {
	t.Helper()
	configs := make([]config.EndpointConfig, 0, len(urls))
	for _, u := range urls {
		configs = append(configs, config.EndpointConfig{URL: u})
	}
	logger := logging.New("selector-test", "error", "text")
	m := metrics.NewWithRegistry("selector-test", nil)
	p, err := NewPool("test-route", configs, opts, &http.Client{Timeout: time.Second}, logger, m, onUnhealthy)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return p
}

func TestSelectRoundRobinRotation(t *testing.T) {
	p := testPool(t, []string{"http://a", "http://b", "http://c"}, config.PoolOptionsConfig{FailureThreshold: 3, MinHealthy: 1}, nil)

	var got []string
	for i := 0; i < 4; i++ {
		got = append(got, p.Select(nil).ID)
	}

	want := []string{"endpoint-0", "endpoint-1", "endpoint-2", "endpoint-0"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rotation mismatch at %d: got %v want %v", i, got, want)
		}
	}
}

func TestSelectSingleEndpointAlwaysReturnsIt(t *testing.T) {
	p := testPool(t, []string{"http://solo"}, config.PoolOptionsConfig{FailureThreshold: 1, MinHealthy: 1}, nil)
	e := p.Select(nil)
	p.MarkUnhealthy(e.ID, "forced")
	for i := 0; i < 3; i++ {
		if got := p.Select(nil); got.ID != e.ID {
			t.Fatalf("expected solo endpoint even unhealthy, got %s", got.ID)
		}
	}
}

func TestSelectFallbackWhenStarved(t *testing.T) {
	p := testPool(t, []string{"http://a", "http://b"}, config.PoolOptionsConfig{FailureThreshold: 3, MinHealthy: 2}, nil)
	p.MarkUnhealthy("endpoint-0", "manual")

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		seen[p.Select(nil).ID] = true
	}
	if !seen["endpoint-0"] || !seen["endpoint-1"] {
		t.Fatalf("expected fallback to return both endpoints, got %v", seen)
	}
}

func TestThresholdEvictionAndSingleAlert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var alerts []AlertEvent
	p := testPool(t, []string{srv.URL}, config.PoolOptionsConfig{FailureThreshold: 3, MinHealthy: 1}, func(evt AlertEvent) {
		alerts = append(alerts, evt)
	})

	e := p.Select(nil)
	for i := 0; i < 3; i++ {
		status, _, _, err := p.Forward(context.Background(), e, http.MethodPost, []byte(`{}`), http.Header{})
		if err != nil {
			t.Fatalf("forward: %v", err)
		}
		if status != http.StatusInternalServerError {
			t.Fatalf("expected 500 passthrough, got %d", status)
		}
	}

	statuses := p.Status()
	if statuses[0].Healthy {
		t.Fatalf("expected endpoint unhealthy after 3 failures")
	}
	if statuses[0].ConsecutiveFailures != 3 {
		t.Fatalf("expected 3 consecutive failures, got %d", statuses[0].ConsecutiveFailures)
	}

	deadline := time.Now().Add(time.Second)
	for len(alerts) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(alerts))
	}
	if alerts[0].ConsecutiveFailures != 3 {
		t.Fatalf("expected alert at 3 consecutive failures, got %d", alerts[0].ConsecutiveFailures)
	}
}

func TestMarkUnhealthyThenMarkHealthyResetsState(t *testing.T) {
	p := testPool(t, []string{"http://a"}, config.PoolOptionsConfig{FailureThreshold: 1, MinHealthy: 1}, nil)
	p.MarkUnhealthy("endpoint-0", "boom")
	p.MarkHealthy("endpoint-0")

	s := p.Status()[0]
	if !s.Healthy || s.ConsecutiveFailures != 0 || s.LastError != "" {
		t.Fatalf("expected reset state, got %+v", s)
	}
}

func TestMethodFilterBlocklistWinsOverWhitelist(t *testing.T) {
	configs := []config.EndpointConfig{
		{URL: "http://a", Methods: []string{"getSlot"}, BlockedMethods: []string{"getSlot"}},
	}
	logger := logging.New("selector-test", "error", "text")
	m := metrics.NewWithRegistry("selector-test", nil)
	p, err := NewPool("test-route", configs, config.PoolOptionsConfig{FailureThreshold: 3, MinHealthy: 1}, &http.Client{}, logger, m, nil)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	// Blocklist wins, so the only endpoint doesn't "support" getSlot; the
	// selector still must return something per the no-throw invariant.
	e := p.Select([]string{"getSlot"})
	if e == nil {
		t.Fatalf("expected a fallback endpoint, got nil")
	}
}

func TestForwardHardFailureDoesNotReturnResponse(t *testing.T) {
	p := testPool(t, []string{"http://127.0.0.1:1"}, config.PoolOptionsConfig{FailureThreshold: 3, MinHealthy: 1}, nil)
	e := p.Select(nil)

	status, headers, body, err := p.Forward(context.Background(), e, http.MethodPost, []byte(`{}`), http.Header{})
	if err == nil {
		t.Fatalf("expected hard failure error")
	}
	if status != 0 || headers != nil || body != nil {
		t.Fatalf("expected zero-value response on hard failure, got %d %v %v", status, headers, body)
	}

	s := p.Status()[0]
	if s.ConsecutiveFailures != 1 {
		t.Fatalf("expected 1 consecutive failure, got %d", s.ConsecutiveFailures)
	}
}

func TestForwardSuccessResetsHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "1")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	p := testPool(t, []string{srv.URL}, config.PoolOptionsConfig{FailureThreshold: 3, MinHealthy: 1}, nil)
	e := p.Select(nil)

	status, headers, body, err := p.Forward(context.Background(), e, http.MethodPost, []byte(`{}`), http.Header{})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if status != http.StatusOK || string(body) != `{"ok":true}` {
		t.Fatalf("unexpected response: %d %s", status, body)
	}
	if headers.Get("X-Upstream") != "1" {
		t.Fatalf("expected upstream header preserved")
	}
}

func TestLastUsedTracksMostRecentSelection(t *testing.T) {
	p := testPool(t, []string{"http://a", "http://b"}, config.PoolOptionsConfig{FailureThreshold: 3, MinHealthy: 1}, nil)
	if _, ok := p.LastUsed(); ok {
		t.Fatalf("expected no lastUsed before any select")
	}
	e := p.Select(nil)
	last, ok := p.LastUsed()
	if !ok || last.ID != e.ID {
		t.Fatalf("expected lastUsed to match most recent selection")
	}
}
