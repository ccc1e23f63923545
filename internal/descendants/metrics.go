package descendants

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records dispatcher activity per strategy.
type Metrics struct {
	resolutions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics creates the dispatcher collectors and registers them with reg
// when reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codemapper",
			Subsystem: "descendants",
			Name:      "resolutions_total",
			Help:      "Descendant resolutions by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "codemapper",
			Subsystem: "descendants",
			Name:      "resolution_duration_seconds",
			Help:      "Time spent in backend strategies.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy"}),
	}
	if reg != nil {
		reg.MustRegister(m.resolutions, m.duration)
	}
	return m
}

func (m *Metrics) observe(strategy string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.resolutions.WithLabelValues(strategy, outcome).Inc()
	m.duration.WithLabelValues(strategy).Observe(time.Since(started).Seconds())
}
