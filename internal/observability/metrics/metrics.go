package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReservationMetrics exposes counters/histograms for slot reservation flows.
type ReservationMetrics struct {
	holdsTotal     *prometheus.CounterVec
	confirmsTotal  *prometheus.CounterVec
	releasesTotal  prometheus.Counter
	conflictsTotal *prometheus.CounterVec
	reapedTotal    prometheus.Counter
	latency        *prometheus.HistogramVec
}

func NewReservationMetrics(reg prometheus.Registerer) *ReservationMetrics {
	m := &ReservationMetrics{
		holdsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kalos",
			Subsystem: "reservation",
			Name:      "holds_total",
			Help:      "Find-and-lock attempts by outcome",
		}, []string{"result"}),
		confirmsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kalos",
			Subsystem: "reservation",
			Name:      "confirms_total",
			Help:      "Hold confirmations by outcome",
		}, []string{"result"}),
		releasesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kalos",
			Subsystem: "reservation",
			Name:      "releases_total",
			Help:      "Holds released before expiry",
		}),
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kalos",
			Subsystem: "reservation",
			Name:      "write_conflicts_total",
			Help:      "Conditional writes retried after losing a race",
		}, []string{"operation"}),
		reapedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kalos",
			Subsystem: "reservation",
			Name:      "locks_reaped_total",
			Help:      "Expired slot locks cleared by the reaper",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kalos",
			Subsystem: "reservation",
			Name:      "operation_latency_seconds",
			Help:      "Latency of reservation operations including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.holdsTotal, m.confirmsTotal, m.releasesTotal, m.conflictsTotal, m.reapedTotal, m.latency)
	return m
}

func (m *ReservationMetrics) ObserveHold(result string) {
	if m == nil {
		return
	}
	m.holdsTotal.WithLabelValues(result).Inc()
}

func (m *ReservationMetrics) ObserveConfirm(result string) {
	if m == nil {
		return
	}
	m.confirmsTotal.WithLabelValues(result).Inc()
}

func (m *ReservationMetrics) ObserveRelease() {
	if m == nil {
		return
	}
	m.releasesTotal.Inc()
}

func (m *ReservationMetrics) ObserveConflict(operation string) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(operation).Inc()
}

func (m *ReservationMetrics) ObserveReaped(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.reapedTotal.Add(float64(count))
}

func (m *ReservationMetrics) ObserveLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(operation).Observe(seconds)
}
