package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Prometheus struct {
	registry *prometheus.Registry

	dates     *prometheus.CounterVec
	failures  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	degraded  *prometheus.CounterVec
	invalid   prometheus.Histogram
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		dates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gapfill",
			Name:      "dates_total",
			Help:      "Processed dates by outcome.",
		}, []string{"kind", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gapfill",
			Name:      "date_failures_total",
			Help:      "Skipped dates by error kind.",
		}, []string{"error_kind"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gapfill",
			Name:      "stage_duration_seconds",
			Help:      "Wall clock time of the processing stages.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gapfill",
			Name:      "degraded_solves_total",
			Help:      "Solves that stopped before converging.",
		}, []string{"solver"}),
		invalid: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gapfill",
			Name:      "invalid_fraction",
			Help:      "Fraction of cloud, shadow and invalid pixels per date.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
	p.registry.MustRegister(p.dates, p.failures, p.durations, p.degraded, p.invalid)
	return p
}

func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prometheus) Observe(info *DateMetrics) {
	outcome := "ok"
	if info.Skipped {
		outcome = "skipped"
		p.failures.WithLabelValues(info.ErrorKind).Inc()
	}
	p.dates.WithLabelValues(info.Kind, outcome).Inc()
	p.durations.WithLabelValues("date").Observe(info.Duration.Seconds())

	if d := info.Detection; d != nil {
		p.durations.WithLabelValues("detect").Observe(d.Duration.Seconds())
		p.invalid.Observe(d.PercentCloudy + d.PercentShadows + d.PercentInvalid)
	}
	if f := info.Fill; f != nil {
		p.durations.WithLabelValues("fill").Observe(f.Duration.Seconds())
		if f.Degraded {
			p.degraded.WithLabelValues("laplace").Inc()
		}
		if f.BlendDegraded {
			p.degraded.WithLabelValues("poisson").Inc()
		}
	}
}

// WriteTextfile writes the registry in the node exporter textfile format.
func (p *Prometheus) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, p.registry)
}
