package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/mailprobe/pkg/metrics"
	"github.com/jihwankim/mailprobe/pkg/probe"
	"github.com/jihwankim/mailprobe/pkg/resilience"
	"github.com/jihwankim/mailprobe/pkg/resource"
)

type fakeProbes struct {
	statuses []probe.Status
}

func (f *fakeProbes) Snapshot() []probe.Status { return f.statuses }

type fakeResources struct {
	sample resource.Sample
}

func (f *fakeResources) Snapshot() resource.Sample { return f.sample }

func status(name string, state resilience.BreakerState) probe.Status {
	return probe.Status{
		Name:         name,
		BreakerState: state,
		LastChecked:  time.Now(),
	}
}

func newTestServer(statuses []probe.Status, sample resource.Sample) *httptest.Server {
	m := metrics.New()
	srv := New(0, m.Registry(), &fakeProbes{statuses: statuses}, &fakeResources{sample: sample}, nil)
	return httptest.NewServer(srv.Handler())
}

func getHealth(t *testing.T, ts *httptest.Server) (int, HealthResponse) {
	t.Helper()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHealthAllProbesHealthy(t *testing.T) {
	ts := newTestServer([]probe.Status{
		status("dns_mx_domain", resilience.StateClosed),
		status("http_port", resilience.StateClosed),
		status("smtp_authenticated", resilience.StateHalfOpen),
	}, resource.Sample{Warnings: []string{}})
	defer ts.Close()

	code, body := getHealth(t, ts)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, 3, body.Probes.Total)
	assert.Equal(t, 3, body.Probes.Healthy)
	assert.Equal(t, 0, body.Probes.Unhealthy)
}

func TestHealthMajorityRule(t *testing.T) {
	// 2 of 4 healthy is not strictly more than half
	ts := newTestServer([]probe.Status{
		status("a", resilience.StateClosed),
		status("b", resilience.StateClosed),
		status("c", resilience.StateOpen),
		status("d", resilience.StateOpen),
	}, resource.Sample{Warnings: []string{}})
	defer ts.Close()

	code, body := getHealth(t, ts)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, 2, body.Probes.Unhealthy)
}

func TestHealthSingleOpenBreakerTolerated(t *testing.T) {
	// 3 of 4 healthy passes the strict majority
	ts := newTestServer([]probe.Status{
		status("a", resilience.StateClosed),
		status("b", resilience.StateClosed),
		status("c", resilience.StateClosed),
		status("d", resilience.StateOpen),
	}, resource.Sample{Warnings: []string{}})
	defer ts.Close()

	code, body := getHealth(t, ts)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, body.Probes.Unhealthy)
}

func TestHealthResourceWarningForcesUnhealthy(t *testing.T) {
	ts := newTestServer([]probe.Status{
		status("a", resilience.StateClosed),
	}, resource.Sample{MemoryMB: 900, Warnings: []string{resource.WarningMemory}})
	defer ts.Close()

	code, body := getHealth(t, ts)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, []string{resource.WarningMemory}, body.Resources.Warnings)
}

func TestHealthSingleProbeDeployment(t *testing.T) {
	ts := newTestServer([]probe.Status{
		status("only", resilience.StateClosed),
	}, resource.Sample{Warnings: []string{}})
	defer ts.Close()

	code, _ := getHealth(t, ts)
	assert.Equal(t, http.StatusOK, code)
}

func TestMetricsEndpointServesTextFormat(t *testing.T) {
	m := metrics.New()
	m.InitProbe("http_port")

	srv := New(0, m.Registry(), &fakeProbes{}, &fakeResources{}, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, families, "email_probe_success_count")
	assert.Contains(t, families, "email_probe_memory_usage_mb")
	assert.Contains(t, families, "email_probe_thread_count")
	assert.Contains(t, families, "email_probe_resource_warnings")
}

func TestUnknownPathReturns404(t *testing.T) {
	ts := newTestServer(nil, resource.Sample{Warnings: []string{}})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
