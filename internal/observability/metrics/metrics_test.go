package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, pair := range metric.GetLabel() {
		if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
			return false
		}
	}
	return true
}

func TestReservationMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReservationMetrics(reg)
	m.ObserveHold("locked")
	m.ObserveHold("locked")
	m.ObserveHold("no_slot")
	m.ObserveConfirm("confirmed")
	m.ObserveRelease()
	m.ObserveConflict("find_and_lock")
	m.ObserveReaped(3)
	m.ObserveReaped(0)
	m.ObserveLatency("find_and_lock", 0.02)

	assert.Equal(t, 2.0, counterValue(t, reg, "kalos_reservation_holds_total", map[string]string{"result": "locked"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "kalos_reservation_holds_total", map[string]string{"result": "no_slot"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "kalos_reservation_releases_total", nil))
	assert.Equal(t, 3.0, counterValue(t, reg, "kalos_reservation_locks_reaped_total", nil))
}

func TestReservationMetricsDefaultRegistry(t *testing.T) {
	m := NewReservationMetrics(nil)
	m.ObserveConfirm("expired")
}

func TestReservationMetricsNilSafe(t *testing.T) {
	var m *ReservationMetrics
	m.ObserveHold("locked")
	m.ObserveConfirm("confirmed")
	m.ObserveRelease()
	m.ObserveConflict("confirm")
	m.ObserveReaped(1)
	m.ObserveLatency("confirm", 0.1)
}
