package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for slot generation,
// validation, and cleanup flows.
type SchedulingMetrics struct {
	slotsGenerated     *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	cleanupSlots       *prometheus.CounterVec
	cleanupDuration    *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		slotsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carelane",
			Subsystem: "scheduling",
			Name:      "slots_generated_total",
			Help:      "Total slots generated, by scheduling rule",
		}, []string{"rule"}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carelane",
			Subsystem: "scheduling",
			Name:      "validation_failures_total",
			Help:      "Total availability validation rejections",
		}, []string{"operation"}),
		cleanupSlots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carelane",
			Subsystem: "scheduling",
			Name:      "cleanup_slots_total",
			Help:      "Slots touched by cleanup, by operation and disposition",
		}, []string{"operation", "disposition"}),
		cleanupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "carelane",
			Subsystem: "scheduling",
			Name:      "cleanup_duration_seconds",
			Help:      "Latency of slot cleanup operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.slotsGenerated, m.validationFailures, m.cleanupSlots, m.cleanupDuration)
	return m
}

func (m *SchedulingMetrics) ObserveSlotsGenerated(rule string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.slotsGenerated.WithLabelValues(rule).Add(float64(count))
}

func (m *SchedulingMetrics) ObserveValidationFailure(operation string) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(operation).Inc()
}

func (m *SchedulingMetrics) ObserveCleanup(operation, disposition string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.cleanupSlots.WithLabelValues(operation, disposition).Add(float64(count))
}

func (m *SchedulingMetrics) ObserveCleanupDuration(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.cleanupDuration.WithLabelValues(operation).Observe(seconds)
}
