package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveCommit("success")
	m.ObserveCommit("conflict")
	m.ObserveConflictCheck("ok")
	m.ObserveLockHold(0.02)
	m.ObserveTransition("cancelled", "success")

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, fam := range families {
		byName[fam.GetName()] = fam
	}
	commits := byName["salon_booking_commits_total"]
	require.NotNil(t, commits)
	require.Len(t, commits.GetMetric(), 2)
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveCommit("success")
	m.ObserveConflictCheck("ok")
	m.ObserveLockHold(0.1)
	m.ObserveTransition("confirmed", "success")
}
