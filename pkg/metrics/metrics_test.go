package metrics

import (
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostMetricsNilSafe(t *testing.T) {
	var m *HostMetrics
	// None of these should panic on a nil sink.
	m.ObservePhase(StageStart, "transport", time.Second)
	m.SetQueueDepth("requests", 3)
	m.ItemAccepted("requests")
	m.ItemDelivered("requests")
	m.ItemRejected("requests")
	m.ItemsDropped("requests", 2)
}

func TestHostMetricsGather(t *testing.T) {
	m := NewHostMetrics()
	m.AssemblyFailures.Inc()
	m.ObservePhase(StageStart, "transport server", 12*time.Millisecond)
	m.ItemAccepted("requests")
	m.ItemDelivered("requests")

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["blobfront_assembly_failures_total"])
	assert.True(t, names["blobfront_lifecycle_phase_seconds"])
	assert.True(t, names["blobfront_scaling_items_accepted_total"])
}

func TestReporterDisabled(t *testing.T) {
	r := NewReporter(false, 0, nil)
	require.NoError(t, r.Start())
	require.NoError(t, r.Stop())
}

func TestReporterServesMetrics(t *testing.T) {
	m := NewHostMetrics()
	r := NewReporter(true, 0, m)
	require.NoError(t, r.Start())
	defer func() { _ = r.Stop() }()

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", r.Port()))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "blobfront_health_up")

	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop(), "stop must be idempotent")
}
