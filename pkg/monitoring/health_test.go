package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckHealthAggregation(t *testing.T) {
	hc := NewHealthChecker("curator", "test")
	hc.AddCheck("ok", func() CheckResult {
		return CheckResult{Status: StatusHealthy}
	})

	if status := hc.CheckHealth(); status.Status != StatusHealthy {
		t.Errorf("all-healthy checks should aggregate to healthy, got %s", status.Status)
	}

	hc.AddCheck("slow", func() CheckResult {
		return CheckResult{Status: StatusDegraded}
	})
	if status := hc.CheckHealth(); status.Status != StatusDegraded {
		t.Errorf("a degraded check should degrade the aggregate, got %s", status.Status)
	}

	hc.AddCheck("down", func() CheckResult {
		return CheckResult{Status: StatusUnhealthy}
	})
	status := hc.CheckHealth()
	if status.Status != StatusUnhealthy {
		t.Errorf("an unhealthy check should win, got %s", status.Status)
	}
	if len(status.Checks) != 3 {
		t.Errorf("expected 3 check results, got %d", len(status.Checks))
	}
}

func TestHTTPServiceHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	check := HTTPServiceHealthCheck("publisher", srv.URL)
	if result := check(); result.Status != StatusHealthy {
		t.Errorf("reachable service should be healthy, got %+v", result)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	check = HTTPServiceHealthCheck("publisher", failing.URL)
	if result := check(); result.Status != StatusUnhealthy {
		t.Errorf("5xx response should be unhealthy, got %+v", result)
	}
}

func TestConfigurationHealthCheck(t *testing.T) {
	check := ConfigurationHealthCheck(map[string]string{
		"PUBLISHER_API_URL": "http://publisher:8080",
		"SERVICE_TOKEN":     "",
	})
	result := check()
	if result.Status != StatusUnhealthy {
		t.Errorf("missing config value should be unhealthy, got %+v", result)
	}

	check = ConfigurationHealthCheck(map[string]string{
		"PUBLISHER_API_URL": "http://publisher:8080",
	})
	if result := check(); result.Status != StatusHealthy {
		t.Errorf("complete config should be healthy, got %+v", result)
	}
}
