package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("bom:integrity_scan").End(nil))
	err := errors.New("boom")
	require.ErrorIs(t, m.Track("bom:integrity_scan").End(err), err)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("bom:integrity_scan", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("bom:integrity_scan", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("bom:integrity_scan")))
}

func TestObserveBOMScan(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveBOMScan(2, 5)
	m.ObserveBOMScan(1, 0)

	require.Equal(t, 1.0, testutil.ToFloat64(m.invalidRoots))
	require.Equal(t, 5.0, testutil.ToFloat64(m.bomIssues))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveBOMScan(3, 3)
	require.NoError(t, m.Track("noop").End(nil))
}
