package dashboard

import (
	"net/http"
	"strings"
	"testing"

	"fundingboard/config"
	"fundingboard/internal/metrics"
	"fundingboard/logger"
)

func TestMetricsEndpointEmitsStoredMetrics(t *testing.T) {
	env := newTestEnv(t, config.DashboardConfig{MetricsHistory: 10, LogHistory: 10}, false)

	metrics.EmitMetric(env.srv.log, "store", "history_rows", 5, "gauge", logger.Fields{"uri": testHistoryURI})

	res := env.do(http.MethodGet, "/api/metrics", "")
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", res.Code)
	}
	if len(env.srv.metricStore.snapshot("")) == 0 {
		t.Fatalf("metrics store empty")
	}
	if !strings.Contains(res.Body.String(), "history_rows") {
		t.Fatalf("metric missing from response: %s", res.Body.String())
	}
}

func TestLogsEndpointReturnsCapturedLogs(t *testing.T) {
	env := newTestEnv(t, config.DashboardConfig{LogHistory: 10}, false)

	env.srv.log.WithComponent("store").Warn("snapshot fetch failed")

	res := env.do(http.MethodGet, "/api/logs", "")
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "snapshot fetch failed") {
		t.Fatalf("log entry missing from response: %s", res.Body.String())
	}

	res = env.do(http.MethodGet, "/api/logs?level=error", "")
	if res.Code != http.StatusOK || strings.Contains(res.Body.String(), "snapshot fetch failed") {
		t.Fatalf("warning should be filtered at error level: %d %s", res.Code, res.Body.String())
	}

	res = env.do(http.MethodGet, "/api/logs?level=loud", "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown level, got %d", res.Code)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	env := newTestEnv(t, config.DashboardConfig{}, true)

	res := env.do(http.MethodGet, "/metrics", "")
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "fundingboard_source_loads_total") {
		t.Fatalf("source load counter missing from exposition")
	}
}
